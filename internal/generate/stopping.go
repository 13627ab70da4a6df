package generate

import (
	"fmt"

	"github.com/DePasqualeOrg/mlx-vlm/internal/tokenizer"
)

// StoppingCriteria decides whether a produced token ends the generation. It
// holds the active end-of-sequence id set and a tokenizer used to resolve
// textual stop words on demand. Evaluation happens before detokenization, so
// a stop token never appears in emitted text.
type StoppingCriteria struct {
	eos []int
	set map[int]struct{}
	tok tokenizer.Handle
}

// NewStoppingCriteria starts with eosIDs active. tok may be nil when textual
// stop words are never added.
func NewStoppingCriteria(eosIDs []int, tok tokenizer.Handle) *StoppingCriteria {
	s := &StoppingCriteria{tok: tok}
	s.Reset(eosIDs)
	return s
}

// AddTokenIDs appends ids to the active set.
func (s *StoppingCriteria) AddTokenIDs(ids ...int) {
	for _, id := range ids {
		if _, ok := s.set[id]; ok {
			continue
		}
		s.eos = append(s.eos, id)
		s.set[id] = struct{}{}
	}
}

// AddTokens resolves textual stop words to ids and appends them. Each word is
// encoded prefixed with a space and the last produced id is taken; this is a
// single-token heuristic, so multi-token stop phrases are not supported.
func (s *StoppingCriteria) AddTokens(words ...string) error {
	if s.tok == nil {
		return fmt.Errorf("%w: no tokenizer available to resolve stop words", ErrInvalidArgument)
	}
	for _, w := range words {
		ids, err := s.tok.Encode(" " + w)
		if err != nil {
			return fmt.Errorf("encode stop word %q: %w", w, err)
		}
		if len(ids) == 0 {
			return fmt.Errorf("%w: stop word %q produced no tokens", ErrInvalidArgument, w)
		}
		if len(ids) > 1 {
			// Only the final sub-token is matched; a multi-token phrase
			// would need sequence matching the engine does not do.
			return fmt.Errorf("%w: stop word %q spans %d tokens; only single-token stop words are supported", ErrInvalidArgument, w, len(ids))
		}
		s.AddTokenIDs(ids[len(ids)-1])
	}
	return nil
}

// Reset replaces the active set outright. A nil ids falls back to the
// tokenizer's configured EOS ids.
func (s *StoppingCriteria) Reset(ids []int) {
	if ids == nil && s.tok != nil {
		ids = s.tok.EOSTokenIDs()
	}
	s.eos = append([]int(nil), ids...)
	s.set = make(map[int]struct{}, len(ids))
	for _, id := range ids {
		s.set[id] = struct{}{}
	}
}

// IsStop reports whether id belongs to the active set.
func (s *StoppingCriteria) IsStop(id int) bool {
	_, ok := s.set[id]
	return ok
}

// TokenIDs returns the active set in insertion order.
func (s *StoppingCriteria) TokenIDs() []int {
	return append([]int(nil), s.eos...)
}
