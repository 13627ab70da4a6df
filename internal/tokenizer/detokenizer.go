package tokenizer

import (
	"strings"
	"unicode/utf8"
)

// StreamingDetokenizer converts a growing token sequence into text one token
// at a time. After each AddToken call, LastSegment returns exactly the text
// newly revealed since the previous call, never re-emitting earlier output.
// Text whose final rune is still incomplete (subword tokenizers may split a
// multi-byte character across tokens) is withheld until a later token or
// Finalize completes it.
//
// The concatenation of every segment across a session, including the one
// produced by Finalize, equals the one-shot decode of the kept token
// sequence.
type StreamingDetokenizer struct {
	tok     Tokenizer
	tokens  []int
	text    string
	offset  int
	segment string
}

// NewStreamingDetokenizer returns a detokenizer bound to tok. Reset must be
// called before reusing it for another session.
func NewStreamingDetokenizer(tok Tokenizer) *StreamingDetokenizer {
	return &StreamingDetokenizer{tok: tok}
}

// Reset clears all state for reuse across sessions.
func (d *StreamingDetokenizer) Reset() {
	d.tokens = d.tokens[:0]
	d.text = ""
	d.offset = 0
	d.segment = ""
}

// AddToken appends id to the sequence and recomputes the pending segment.
// Ids present in skip are dropped from the decoded output entirely.
func (d *StreamingDetokenizer) AddToken(id int, skip map[int]struct{}) error {
	if _, skipped := skip[id]; !skipped {
		d.tokens = append(d.tokens, id)
	}
	text, err := d.tok.Decode(d.tokens)
	if err != nil {
		return err
	}
	d.text = text
	if d.offset > len(text) {
		// Decoders are expected to grow their output monotonically; clamp
		// in case one rewrites earlier content.
		d.offset = len(text)
	}
	if incompleteTail(text) {
		d.segment = ""
		return nil
	}
	d.segment = text[d.offset:]
	d.offset = len(text)
	return nil
}

// LastSegment returns the text revealed by the most recent AddToken or
// Finalize call.
func (d *StreamingDetokenizer) LastSegment() string { return d.segment }

// Finalize flushes any withheld trailing text. Call it exactly once at the
// end of a session, after the stop condition has fired.
func (d *StreamingDetokenizer) Finalize() {
	d.segment = d.text[d.offset:]
	d.offset = len(d.text)
}

// Text returns everything decoded so far, including withheld content.
func (d *StreamingDetokenizer) Text() string { return d.text }

// incompleteTail reports whether text ends in a partial UTF-8 sequence or a
// replacement character produced from one.
func incompleteTail(text string) bool {
	if text == "" {
		return false
	}
	if strings.HasSuffix(text, "�") {
		return true
	}
	r, size := utf8.DecodeLastRuneInString(text)
	return r == utf8.RuneError && size == 1
}
