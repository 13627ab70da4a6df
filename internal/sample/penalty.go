package sample

// ApplyRepetitionPenalty rescales the logits of every token id present in
// context: negative logits are multiplied by penalty, non-negative logits
// divided by it. The context is a raw token history, so an id may occur many
// times; each logit is scaled exactly once regardless. The scaling is
// monotonic and index-preserving, and a no-op when the context is empty or
// penalty is 1. Callers validate penalty before the session starts.
func ApplyRepetitionPenalty(logits []float32, context []int, penalty float32) {
	if penalty == 1 || len(context) == 0 {
		return
	}
	seen := make(map[int]struct{}, len(context))
	for _, id := range context {
		if id < 0 || id >= len(logits) {
			continue
		}
		if _, done := seen[id]; done {
			continue
		}
		seen[id] = struct{}{}
		if logits[id] < 0 {
			logits[id] *= penalty
		} else {
			logits[id] /= penalty
		}
	}
}

// Context is a bounded ordered history of the most recently emitted token
// ids, trimmed from the front when it exceeds its size. A size of 0 leaves
// the history unbounded.
type Context struct {
	size   int
	tokens []int
}

// NewContext seeds a history with the prompt tokens, keeping only the last
// size entries when size is set.
func NewContext(size int, prompt []int) *Context {
	tokens := append([]int(nil), prompt...)
	if size > 0 && len(tokens) > size {
		tokens = tokens[len(tokens)-size:]
	}
	return &Context{size: size, tokens: tokens}
}

// Push appends a newly emitted token, dropping the oldest entry if the
// history is full.
func (c *Context) Push(id int) {
	c.tokens = append(c.tokens, id)
	if c.size > 0 && len(c.tokens) > c.size {
		c.tokens = c.tokens[len(c.tokens)-c.size:]
	}
}

// Tokens returns the current history, oldest first.
func (c *Context) Tokens() []int { return c.tokens }
