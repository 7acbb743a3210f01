package stream

import (
	"bytes"
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Task selects what the server does with the audio.
type Task string

const (
	TaskTranscribe Task = "transcribe"
	TaskTranslate  Task = "translate"
)

// Control message values and the optional end-of-audio marker.
const (
	MessageServerReady = "SERVER_READY"
	MessageDisconnect  = "DISCONNECT"
	EndOfAudio         = "END_OF_AUDIO"
)

// SessionConfig is the one configuration message sent before any audio.
// A nil Language serializes as null, which asks the server to auto-detect.
type SessionConfig struct {
	UID      string  `json:"uid"`
	Language *string `json:"language"`
	Task     Task    `json:"task"`
	Model    string  `json:"model"`
	UseVAD   bool    `json:"use_vad"`
}

// NewSessionConfig builds the configuration message, generating a uid when
// none is given. An empty or "auto" language means auto-detect.
func NewSessionConfig(uid, language string, task Task, model string, useVAD bool) SessionConfig {
	if uid == "" {
		uid = uuid.NewString()
	}
	var lang *string
	if l := strings.TrimSpace(language); l != "" && !strings.EqualFold(l, "auto") {
		lang = &l
	}
	if task == "" {
		task = TaskTranscribe
	}
	return SessionConfig{UID: uid, Language: lang, Task: task, Model: model, UseVAD: useVAD}
}

// LanguageName returns the configured language or "auto".
func (c SessionConfig) LanguageName() string {
	if c.Language == nil {
		return "auto"
	}
	return *c.Language
}

// Seconds is a segment timestamp. The server sends these either as JSON
// numbers or as strings such as "1.280".
type Seconds struct {
	Value float64
	Valid bool
}

func (s *Seconds) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*s = Seconds{}
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	raw := string(data)
	if data[0] == '"' {
		unq, err := strconv.Unquote(raw)
		if err != nil {
			return nil
		}
		raw = strings.TrimSpace(unq)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		// unusable timestamps fall back to text-based de-duplication
		return nil
	}
	*s = Seconds{Value: v, Valid: true}
	return nil
}

func (s Seconds) MarshalJSON() ([]byte, error) {
	if !s.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(s.Value, 'f', 3, 64)), nil
}

// Segment is one timed piece of text inside a result message.
type Segment struct {
	Start     Seconds `json:"start"`
	End       Seconds `json:"end"`
	Text      string  `json:"text"`
	Completed *bool   `json:"completed,omitempty"`
}

// MessageKind classifies inbound messages.
type MessageKind int

const (
	KindControl MessageKind = iota + 1
	KindStatus
	KindLanguage
	KindResult
)

func (k MessageKind) String() string {
	switch k {
	case KindControl:
		return "control"
	case KindStatus:
		return "status"
	case KindLanguage:
		return "language"
	case KindResult:
		return "result"
	default:
		return "unknown"
	}
}

// Message is a decoded inbound message.
type Message struct {
	Kind         MessageKind
	UID          string
	Control      string
	Status       string
	Detail       string
	Backend      string
	Language     string
	LanguageProb float64
	Segments     []Segment
}

type wireMessage struct {
	UID          string          `json:"uid"`
	Message      json.RawMessage `json:"message"`
	Status       string          `json:"status"`
	Backend      string          `json:"backend"`
	Language     *string         `json:"language"`
	LanguageProb float64         `json:"language_prob"`
	Segments     *[]Segment      `json:"segments"`
}

var errUnrecognised = errors.New("unrecognised message shape")

// DecodeMessage classifies and decodes one inbound message. Anything that
// cannot be understood comes back as a *ProtocolError.
func DecodeMessage(data []byte) (Message, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return Message{}, &ProtocolError{Raw: data, Err: err}
	}
	m := Message{UID: w.UID, Backend: w.Backend}

	switch {
	case w.Segments != nil:
		m.Kind = KindResult
		m.Segments = *w.Segments
	case w.Status != "":
		m.Kind = KindStatus
		m.Status = w.Status
		m.Detail = rawText(w.Message)
	case len(w.Message) > 0 && w.Message[0] == '"':
		var s string
		if err := json.Unmarshal(w.Message, &s); err != nil {
			return Message{}, &ProtocolError{Raw: data, Err: err}
		}
		m.Kind = KindControl
		m.Control = s
	case w.Language != nil:
		m.Kind = KindLanguage
		m.Language = *w.Language
		m.LanguageProb = w.LanguageProb
	default:
		return Message{}, &ProtocolError{Raw: data, Err: errUnrecognised}
	}
	return m, nil
}

// rawText renders a message detail that may be a string, number or object.
func rawText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
