package stream

import (
	"reflect"
	"testing"
)

func texts(t *Transcript) []string {
	var out []string
	for _, s := range t.Segments() {
		out = append(out, s.Text)
	}
	return out
}

func TestTranscriptPartialSupersession(t *testing.T) {
	var tr Transcript
	steps := []struct {
		seg  Segment
		want Change
	}{
		{seg("0.000", "0.400", "Hel"), ChangeAdded},
		{seg("0.000", "0.800", "Hello"), ChangeUpdated},
		{seg("0.000", "1.200", "Hello there."), ChangeUpdated},
		{seg("0.000", "1.200", "Hello there."), ChangeDuplicate},
	}
	for i, st := range steps {
		if got := tr.Apply(st.seg); got != st.want {
			t.Fatalf("step %d: got %s want %s", i, got, st.want)
		}
	}
	if got := texts(&tr); !reflect.DeepEqual(got, []string{"Hello there."}) {
		t.Fatalf("texts: %v", got)
	}
}

func TestTranscriptRepeatedWindowsAreIdempotent(t *testing.T) {
	// the server resends recent completed segments alongside the live one
	windows := [][]Segment{
		{seg("0.000", "1.000", "one")},
		{seg("0.000", "1.000", "one"), seg("1.000", "1.500", "tw")},
		{seg("0.000", "1.000", "one"), seg("1.000", "2.000", "two")},
		{seg("0.000", "1.000", "one"), seg("1.000", "2.000", "two"), seg("2.000", "2.500", "three")},
	}
	var once, twice Transcript
	for _, w := range windows {
		for _, s := range w {
			once.Apply(s)
			twice.Apply(s)
			twice.Apply(s)
		}
	}
	want := []string{"one", "two", "three"}
	if got := texts(&once); !reflect.DeepEqual(got, want) {
		t.Fatalf("texts: %v want %v", got, want)
	}
	if !reflect.DeepEqual(once.Segments(), twice.Segments()) {
		t.Fatalf("applying every message twice changed the transcript")
	}
	if once.Text() != "one two three" {
		t.Fatalf("joined text: %q", once.Text())
	}
}

func TestTranscriptOrdersByStart(t *testing.T) {
	var tr Transcript
	tr.Apply(seg("2.0", "3.0", "c"))
	tr.Apply(seg("0.0", "1.0", "a"))
	tr.Apply(seg("1.0", "2.0", "b"))
	if got := texts(&tr); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("order: %v", got)
	}
}

func TestTranscriptUntimedFallsBackToLastText(t *testing.T) {
	var tr Transcript
	plain := func(text string) Segment { return Segment{Text: text} }
	tr.Apply(plain("hi"))
	if c := tr.Apply(plain("hi")); c != ChangeDuplicate {
		t.Fatalf("consecutive repeat: %s", c)
	}
	tr.Apply(plain("there"))
	tr.Apply(plain("hi"))
	if got := texts(&tr); !reflect.DeepEqual(got, []string{"hi", "there", "hi"}) {
		t.Fatalf("texts: %v", got)
	}
}

func TestTranscriptUntimedPartialsGrowInPlace(t *testing.T) {
	var tr Transcript
	plain := func(text string, done bool) Segment { return Segment{Text: text, Completed: &done} }
	steps := []struct {
		seg  Segment
		want Change
	}{
		{plain("Hel", false), ChangeAdded},
		{plain("Hello", false), ChangeUpdated},
		{plain("Hello there.", true), ChangeUpdated},
		{plain("Hello there.", true), ChangeDuplicate},
		// a completed segment is never extended
		{plain("Hello there. Bye", false), ChangeAdded},
	}
	for i, st := range steps {
		if got := tr.Apply(st.seg); got != st.want {
			t.Fatalf("step %d: got %s want %s", i, got, st.want)
		}
	}
	if got := texts(&tr); !reflect.DeepEqual(got, []string{"Hello there.", "Hello there. Bye"}) {
		t.Fatalf("texts: %v", got)
	}

	var garbled Transcript
	for _, text := range []string{"Hel", "Hello", "Hello there."} {
		garbled.Apply(Segment{Start: Seconds{}, End: Seconds{Value: 1, Valid: true}, Text: text})
	}
	if got := texts(&garbled); !reflect.DeepEqual(got, []string{"Hello there."}) {
		t.Fatalf("missing start: %v", got)
	}
}

func TestTranscriptIgnoresBlankText(t *testing.T) {
	var tr Transcript
	if c := tr.Apply(seg("0", "1", "   ")); c != ChangeIgnored {
		t.Fatalf("blank segment: %s", c)
	}
	if tr.Len() != 0 {
		t.Fatalf("blank segment was stored")
	}
}

func TestTranscriptSegmentsIsACopy(t *testing.T) {
	var tr Transcript
	tr.Apply(seg("0", "1", "keep"))
	out := tr.Segments()
	out[0].Text = "mutated"
	if tr.Segments()[0].Text != "keep" {
		t.Fatalf("Segments exposed internal storage")
	}
}
