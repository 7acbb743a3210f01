package stream

import (
	"math"
	"strings"
)

// TranscriptSegment is one accepted piece of transcript text.
type TranscriptSegment struct {
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
	HasTiming bool    `json:"-"`
	Text      string  `json:"text"`
	Completed bool    `json:"completed,omitempty"`
}

// Change describes what applying a segment did to the transcript.
type Change int

const (
	ChangeIgnored Change = iota
	ChangeAdded
	ChangeUpdated
	ChangeDuplicate
)

func (c Change) String() string {
	switch c {
	case ChangeAdded:
		return "added"
	case ChangeUpdated:
		return "updated"
	case ChangeDuplicate:
		return "duplicate"
	default:
		return "ignored"
	}
}

// Transcript accumulates evolving server segments. Segments with a start
// time are keyed by it, so a later partial for the same utterance replaces
// the earlier one and repeated text is dropped. Segments without usable
// timing are compared against the most recent text only, and replace it
// when they extend an open untimed partial.
type Transcript struct {
	segments []TranscriptSegment
}

func startKey(v float64) int64 { return int64(math.Round(v * 1000)) }

// Apply folds one server segment into the transcript.
func (t *Transcript) Apply(seg Segment) Change {
	text := strings.TrimSpace(seg.Text)
	if text == "" {
		return ChangeIgnored
	}
	completed := seg.Completed != nil && *seg.Completed

	if !seg.Start.Valid {
		if n := len(t.segments); n > 0 {
			last := &t.segments[n-1]
			if last.Text == text {
				return ChangeDuplicate
			}
			// an open untimed partial grows in place
			if !last.HasTiming && !last.Completed && strings.HasPrefix(text, last.Text) {
				last.Text = text
				last.Completed = completed
				return ChangeUpdated
			}
		}
		t.segments = append(t.segments, TranscriptSegment{Text: text, Completed: completed})
		return ChangeAdded
	}

	next := TranscriptSegment{
		Start:     seg.Start.Value,
		End:       seg.End.Value,
		HasTiming: true,
		Text:      text,
		Completed: completed,
	}
	if !seg.End.Valid {
		next.End = next.Start
	}
	key := startKey(next.Start)
	insertAt := len(t.segments)
	for i := range t.segments {
		cur := &t.segments[i]
		if !cur.HasTiming {
			continue
		}
		k := startKey(cur.Start)
		if k == key {
			if cur.Text == text {
				if next.End > cur.End {
					cur.End = next.End
				}
				cur.Completed = cur.Completed || completed
				return ChangeDuplicate
			}
			*cur = next
			return ChangeUpdated
		}
		if k > key && insertAt == len(t.segments) {
			insertAt = i
		}
	}
	t.segments = append(t.segments, TranscriptSegment{})
	copy(t.segments[insertAt+1:], t.segments[insertAt:])
	t.segments[insertAt] = next
	return ChangeAdded
}

// Segments returns a copy of the accepted segments in order.
func (t *Transcript) Segments() []TranscriptSegment {
	out := make([]TranscriptSegment, len(t.segments))
	copy(out, t.segments)
	return out
}

func (t *Transcript) Len() int { return len(t.segments) }

// Text joins segment texts with single spaces.
func (t *Transcript) Text() string { return JoinText(t.segments) }

// JoinText joins segment texts with single spaces.
func JoinText(segs []TranscriptSegment) string {
	parts := make([]string, 0, len(segs))
	for _, s := range segs {
		if s.Text != "" {
			parts = append(parts, s.Text)
		}
	}
	return strings.Join(parts, " ")
}
