package tokenizer

import (
	"strings"
	"testing"
)

// byteTok maps every id to a fixed byte string, letting tests place token
// boundaries in the middle of multi-byte characters.
type byteTok map[int]string

func (b byteTok) Encode(string) ([]int, error) { return nil, nil }

func (b byteTok) Decode(ids []int) (string, error) {
	var sb strings.Builder
	for _, id := range ids {
		sb.WriteString(b[id])
	}
	return sb.String(), nil
}

func TestStreamingSegments(t *testing.T) {
	tok := byteTok{0: "Hello", 1: " world", 2: "!"}
	d := NewStreamingDetokenizer(tok)
	want := []string{"Hello", " world", "!"}
	for i, seg := range want {
		if err := d.AddToken(i, nil); err != nil {
			t.Fatalf("AddToken(%d): %v", i, err)
		}
		if got := d.LastSegment(); got != seg {
			t.Fatalf("segment %d = %q, want %q", i, got, seg)
		}
	}
	d.Finalize()
	if got := d.LastSegment(); got != "" {
		t.Fatalf("final flush = %q, want empty", got)
	}
	if d.Text() != "Hello world!" {
		t.Fatalf("Text = %q", d.Text())
	}
}

func TestStreamingWithholdsIncompleteRune(t *testing.T) {
	// "世" is e4 b8 96; token 1 carries only its first byte.
	tok := byteTok{0: "a", 1: "\xe4", 2: "\xb8\x96", 3: "b"}
	d := NewStreamingDetokenizer(tok)

	_ = d.AddToken(0, nil)
	if got := d.LastSegment(); got != "a" {
		t.Fatalf("segment = %q, want %q", got, "a")
	}
	_ = d.AddToken(1, nil)
	if got := d.LastSegment(); got != "" {
		t.Fatalf("incomplete rune leaked: %q", got)
	}
	_ = d.AddToken(2, nil)
	if got := d.LastSegment(); got != "世" {
		t.Fatalf("segment = %q, want %q", got, "世")
	}
	_ = d.AddToken(3, nil)
	if got := d.LastSegment(); got != "b" {
		t.Fatalf("segment = %q, want %q", got, "b")
	}
}

func TestStreamingFinalizeFlushesWithheldTail(t *testing.T) {
	tok := byteTok{0: "x", 1: "\xe4"}
	d := NewStreamingDetokenizer(tok)
	_ = d.AddToken(0, nil)
	_ = d.AddToken(1, nil)
	if got := d.LastSegment(); got != "" {
		t.Fatalf("trailing partial rune leaked: %q", got)
	}
	d.Finalize()
	if got := d.LastSegment(); got != "\xe4" {
		t.Fatalf("Finalize flushed %q, want the raw tail", got)
	}
}

// TestStreamingMatchesOneShotDecode checks the concatenation law: streamed
// segments joined together equal decoding the whole sequence at once.
func TestStreamingMatchesOneShotDecode(t *testing.T) {
	tok := byteTok{0: "th", 1: "e ", 2: "\xe4", 3: "\xb8\x96", 4: " end"}
	seq := []int{0, 1, 2, 3, 4, 0}

	d := NewStreamingDetokenizer(tok)
	var streamed strings.Builder
	for _, id := range seq {
		if err := d.AddToken(id, nil); err != nil {
			t.Fatalf("AddToken: %v", err)
		}
		streamed.WriteString(d.LastSegment())
	}
	d.Finalize()
	streamed.WriteString(d.LastSegment())

	oneShot, _ := tok.Decode(seq)
	if streamed.String() != oneShot {
		t.Fatalf("streamed %q != one-shot %q", streamed.String(), oneShot)
	}
}

func TestStreamingSkipSet(t *testing.T) {
	tok := byteTok{0: "keep", 1: "<eot>", 2: "!"}
	d := NewStreamingDetokenizer(tok)
	skip := map[int]struct{}{1: {}}
	_ = d.AddToken(0, skip)
	_ = d.AddToken(1, skip)
	if got := d.LastSegment(); got != "" {
		t.Fatalf("skipped token produced %q", got)
	}
	_ = d.AddToken(2, skip)
	if got := d.LastSegment(); got != "!" {
		t.Fatalf("segment = %q, want %q", got, "!")
	}
	if d.Text() != "keep!" {
		t.Fatalf("Text = %q, want %q", d.Text(), "keep!")
	}
}

func TestStreamingReset(t *testing.T) {
	tok := byteTok{0: "a"}
	d := NewStreamingDetokenizer(tok)
	_ = d.AddToken(0, nil)
	d.Reset()
	if d.Text() != "" || d.LastSegment() != "" {
		t.Fatal("Reset did not clear state")
	}
	_ = d.AddToken(0, nil)
	if got := d.LastSegment(); got != "a" {
		t.Fatalf("segment after reuse = %q, want %q", got, "a")
	}
}
