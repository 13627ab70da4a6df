package toy

import "github.com/DePasqualeOrg/mlx-vlm/internal/tokenizer"

// Vocab returns a self-contained tokenizer description matched to the demo
// model. A handful of common words plus printable-ASCII fallbacks keep
// arbitrary prompts encodable without an external tokenizer file.
func Vocab() tokenizer.VocabFile {
	tokens := []string{"<s>", "</s>", "<unk>"}
	tokens = append(tokens,
		" the", " a", " an", " cat", " dog", " fox", " model", " token",
		" runs", " sees", " jumps", " over", " hello", " world", " stop",
		"ing", "ed", "s",
	)
	for c := byte(' '); c <= '~'; c++ {
		tokens = append(tokens, string(c))
	}
	return tokenizer.VocabFile{
		Tokens:        tokens,
		SpecialTokens: []string{"<s>", "</s>", "<unk>"},
		EOSTokens:     []string{"</s>"},
	}
}
