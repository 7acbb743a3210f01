package stream

import (
	"errors"
	"strings"
	"testing"

	"github.com/goccy/go-json"
)

func TestDecodeMessageKinds(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		kind MessageKind
	}{
		{"ready", `{"uid":"u","message":"SERVER_READY","backend":"faster_whisper"}`, KindControl},
		{"disconnect", `{"uid":"u","message":"DISCONNECT"}`, KindControl},
		{"wait status", `{"uid":"u","status":"WAIT","message":3.5}`, KindStatus},
		{"error status", `{"uid":"u","status":"ERROR","message":"model failed"}`, KindStatus},
		{"language", `{"uid":"u","language":"en","language_prob":0.98}`, KindLanguage},
		{"result", `{"uid":"u","segments":[{"start":"0.000","end":"1.000","text":"hi"}]}`, KindResult},
		{"empty result", `{"uid":"u","segments":[]}`, KindResult},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := DecodeMessage([]byte(tt.raw))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if m.Kind != tt.kind {
				t.Fatalf("kind: got %s want %s", m.Kind, tt.kind)
			}
		})
	}
}

func TestDecodeMessageFields(t *testing.T) {
	m, err := DecodeMessage([]byte(`{"uid":"u","segments":[{"start":1.5,"end":"2.25","text":" hi ","completed":true}]}`))
	if err != nil {
		t.Fatal(err)
	}
	s := m.Segments[0]
	if !s.Start.Valid || s.Start.Value != 1.5 || !s.End.Valid || s.End.Value != 2.25 {
		t.Fatalf("timing: %+v", s)
	}
	if s.Completed == nil || !*s.Completed {
		t.Fatalf("completed flag lost")
	}

	st, _ := DecodeMessage([]byte(`{"uid":"u","status":"WAIT","message":3.5}`))
	if st.Status != "WAIT" || st.Detail != "3.5" {
		t.Fatalf("status: %+v", st)
	}
	lang, _ := DecodeMessage([]byte(`{"uid":"u","language":"de","language_prob":0.7}`))
	if lang.Language != "de" || lang.LanguageProb != 0.7 {
		t.Fatalf("language: %+v", lang)
	}
}

func TestDecodeMessageProtocolErrors(t *testing.T) {
	for _, raw := range []string{`not json`, `{"uid":"u"}`, `[]`, `{"foo":1}`} {
		_, err := DecodeMessage([]byte(raw))
		var pe *ProtocolError
		if !errors.As(err, &pe) {
			t.Fatalf("%q: expected ProtocolError, got %v", raw, err)
		}
	}
}

func TestSecondsTolerance(t *testing.T) {
	tests := []struct {
		raw   string
		valid bool
		value float64
	}{
		{`"1.280"`, true, 1.28},
		{`2`, true, 2},
		{`null`, false, 0},
		{`""`, false, 0},
		{`"soon"`, false, 0},
	}
	for _, tt := range tests {
		var s Seconds
		if err := json.Unmarshal([]byte(tt.raw), &s); err != nil {
			t.Fatalf("%s: %v", tt.raw, err)
		}
		if s.Valid != tt.valid || s.Value != tt.value {
			t.Fatalf("%s: got %+v", tt.raw, s)
		}
	}
}

func TestSessionConfigWire(t *testing.T) {
	auto := NewSessionConfig("abc", "auto", "", "small.en", true)
	b, err := json.Marshal(auto)
	if err != nil {
		t.Fatal(err)
	}
	got := string(b)
	for _, want := range []string{`"uid":"abc"`, `"language":null`, `"task":"transcribe"`, `"model":"small.en"`, `"use_vad":true`} {
		if !strings.Contains(got, want) {
			t.Fatalf("config %s missing %s", got, want)
		}
	}

	en := NewSessionConfig("", "en", TaskTranslate, "large-v3", false)
	if en.UID == "" {
		t.Fatalf("uid should be generated")
	}
	b, _ = json.Marshal(en)
	if !strings.Contains(string(b), `"language":"en"`) || !strings.Contains(string(b), `"task":"translate"`) {
		t.Fatalf("config: %s", b)
	}
}
