// Package tokenizer defines the tokenizer boundary used by the generation
// engine and the incremental detokenizer that turns sampled token ids back
// into streamed text.
package tokenizer

// Tokenizer is the minimal encode/decode surface.
type Tokenizer interface {
	Encode(text string) ([]int, error)
	Decode(ids []int) (string, error)
}

// Handle is the normalized tokenizer capability obtained once during setup.
// It is the sole provider of EOS-id resolution for textual stop sequences and
// of the special-id set used for skip filtering.
type Handle interface {
	Tokenizer
	// EOSTokenIDs returns the end-of-sequence ids configured for the model.
	EOSTokenIDs() []int
	// SpecialTokenIDs returns every special token id known to the
	// tokenizer, for use as a skip set during detokenization.
	SpecialTokenIDs() []int
}
