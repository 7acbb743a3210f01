package sidecar

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/whisperlive-lab/internal/logging"
	"github.com/whisperlive-lab/internal/stream"
)

// Segment is the per-utterance record downstream stages consume.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Timing mirrors the processing statistics block of the transcript JSON.
// AudioSeconds and RealtimeFactor are null when there was no audio.
type Timing struct {
	ProcessingSeconds float64  `json:"processing_seconds"`
	AudioSeconds      *float64 `json:"audio_seconds"`
	RealtimeFactor    *float64 `json:"realtime_factor"`
}

// Document is the transcript JSON written for each session.
type Document struct {
	CorrelationID string    `json:"correlation_id"`
	Outcome       string    `json:"outcome"`
	Endpoint      string    `json:"endpoint,omitempty"`
	Language      string    `json:"language,omitempty"`
	Text          string    `json:"text"`
	Segments      []Segment `json:"segments"`
	Timing        Timing    `json:"timing"`
	Error         string    `json:"error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// FromSummary builds the document for a finished session.
func FromSummary(s stream.Summary) Document {
	doc := Document{
		CorrelationID: s.CorrelationID,
		Outcome:       string(s.Outcome),
		Endpoint:      s.Endpoint,
		Language:      s.Language,
		Text:          s.Text,
		Segments:      make([]Segment, 0, len(s.Segments)),
		Timing:        Timing{ProcessingSeconds: round(s.ElapsedSeconds, 1)},
		Error:         s.Error,
		CreatedAt:     time.Now().UTC(),
	}
	for _, seg := range s.Segments {
		doc.Segments = append(doc.Segments, Segment{Start: seg.Start, End: seg.End, Text: seg.Text})
	}
	if s.AudioSeconds > 0 {
		a := round(s.AudioSeconds, 1)
		r := round(s.RealtimeFactor, 2)
		doc.Timing.AudioSeconds = &a
		doc.Timing.RealtimeFactor = &r
	}
	return doc
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// Manager writes and finds transcript sidecars in Dir. A nil Manager is a
// no-op.
type Manager struct {
	Dir string
	SRT bool
}

func NewManager(dir string, srt bool) *Manager {
	if strings.TrimSpace(dir) == "" {
		return nil
	}
	return &Manager{Dir: dir, SRT: srt}
}

// Paths returns the JSON and SRT paths for a correlation id.
func (m *Manager) Paths(cid string) (jsonPath, srtPath string) {
	base := filepath.Join(m.Dir, "transcript-"+cid)
	return base + ".json", base + ".srt"
}

// Write stores doc atomically and, when enabled, an SRT rendering next to it.
// It returns the JSON path.
func (m *Manager) Write(doc Document) (string, error) {
	if m == nil {
		return "", nil
	}
	if doc.CorrelationID == "" {
		return "", fmt.Errorf("sidecar: document has no correlation id")
	}
	jsonPath, srtPath := m.Paths(doc.CorrelationID)
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("sidecar: marshal: %w", err)
	}
	if err := SaveFileAtomic(jsonPath, append(b, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("sidecar: write %s: %w", jsonPath, err)
	}
	logging.Infow("sidecar: transcript written", "path", jsonPath, "correlation_id", doc.CorrelationID, "segments", len(doc.Segments))

	if m.SRT && len(doc.Segments) > 0 {
		if err := SaveFileAtomic(srtPath, []byte(RenderSRT(doc.Segments)), 0o644); err != nil {
			return jsonPath, fmt.Errorf("sidecar: write %s: %w", srtPath, err)
		}
		logging.Debugw("sidecar: srt written", "path", srtPath, "correlation_id", doc.CorrelationID)
	}
	return jsonPath, nil
}

// FindByCID returns the sidecar path whose correlation_id matches cid, or ""
// when none is found.
func (m *Manager) FindByCID(cid string) string {
	if m == nil || cid == "" {
		return ""
	}
	if p, _ := m.Paths(cid); fileExists(p) {
		return p
	}
	files, err := os.ReadDir(m.Dir)
	if err != nil {
		logging.Warnw("sidecar: failed to list dir", "dir", m.Dir, "err", err)
		return ""
	}
	for _, fi := range files {
		name := fi.Name()
		if fi.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		path := filepath.Join(m.Dir, name)
		doc, err := Read(path)
		if err != nil {
			logging.Debugw("sidecar: skipping unreadable file", "path", path, "err", err)
			continue
		}
		if doc.CorrelationID == cid {
			return path
		}
	}
	return ""
}

// Read loads a sidecar document.
func Read(path string) (Document, error) {
	var doc Document
	b, err := os.ReadFile(path)
	if err != nil {
		return doc, err
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		return doc, fmt.Errorf("sidecar: decode %s: %w", path, err)
	}
	return doc, nil
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}
