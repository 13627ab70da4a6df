package tokenizer

import (
	"fmt"
	"os"
	"sort"
	"strings"

	json "github.com/goccy/go-json"
)

// VocabFile is the on-disk tokenizer description: a token list indexed by id,
// plus the special and EOS token sets.
type VocabFile struct {
	Tokens        []string `json:"tokens"`
	SpecialTokens []string `json:"special_tokens"`
	EOSTokens     []string `json:"eos_tokens"`
}

// Vocab is a greedy longest-match tokenizer over a fixed token list. It is
// deliberately simple: the engine only requires the Handle contract, and real
// deployments substitute their own implementation at this boundary.
type Vocab struct {
	tokens  []string
	ids     map[string]int
	special []int
	eos     []int
	// byLen caches token ids ordered by descending token length so Encode
	// can match greedily.
	byLen []int
}

// LoadVocab reads a VocabFile from path.
func LoadVocab(path string) (*Vocab, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file VocabFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse tokenizer json: %w", err)
	}
	return NewVocab(file)
}

// NewVocab builds a tokenizer from an in-memory description.
func NewVocab(file VocabFile) (*Vocab, error) {
	if len(file.Tokens) == 0 {
		return nil, fmt.Errorf("empty token list")
	}
	v := &Vocab{
		tokens: append([]string(nil), file.Tokens...),
		ids:    make(map[string]int, len(file.Tokens)),
	}
	for i, t := range file.Tokens {
		if _, ok := v.ids[t]; !ok {
			v.ids[t] = i
		}
	}
	for _, t := range file.SpecialTokens {
		id, ok := v.ids[t]
		if !ok {
			return nil, fmt.Errorf("special token %q not in vocabulary", t)
		}
		v.special = append(v.special, id)
	}
	for _, t := range file.EOSTokens {
		id, ok := v.ids[t]
		if !ok {
			return nil, fmt.Errorf("eos token %q not in vocabulary", t)
		}
		v.eos = append(v.eos, id)
	}
	v.byLen = make([]int, 0, len(v.ids))
	for _, id := range v.ids {
		v.byLen = append(v.byLen, id)
	}
	sort.Slice(v.byLen, func(a, b int) bool {
		la, lb := len(v.tokens[v.byLen[a]]), len(v.tokens[v.byLen[b]])
		if la != lb {
			return la > lb
		}
		return v.byLen[a] < v.byLen[b]
	})
	return v, nil
}

// Encode maps text to token ids by greedy longest match. Unknown bytes are
// skipped rather than erroring, so Encode is total over its input.
func (v *Vocab) Encode(text string) ([]int, error) {
	var ids []int
	for len(text) > 0 {
		matched := false
		for _, id := range v.byLen {
			t := v.tokens[id]
			if t != "" && strings.HasPrefix(text, t) {
				ids = append(ids, id)
				text = text[len(t):]
				matched = true
				break
			}
		}
		if !matched {
			text = text[1:]
		}
	}
	return ids, nil
}

// Decode concatenates the token strings for ids. Out-of-range ids decode to
// nothing.
func (v *Vocab) Decode(ids []int) (string, error) {
	var b strings.Builder
	for _, id := range ids {
		if id >= 0 && id < len(v.tokens) {
			b.WriteString(v.tokens[id])
		}
	}
	return b.String(), nil
}

// Len reports the vocabulary size.
func (v *Vocab) Len() int { return len(v.tokens) }

// EOSTokenIDs returns the configured end-of-sequence ids.
func (v *Vocab) EOSTokenIDs() []int { return append([]int(nil), v.eos...) }

// SpecialTokenIDs returns every special token id.
func (v *Vocab) SpecialTokenIDs() []int { return append([]int(nil), v.special...) }
