// Package cache holds per-layer attention key/value state accumulated across
// decode steps. A cache is owned by exactly one generation session: it grows
// monotonically by one position per step and is discarded when the session
// ends.
package cache

import "github.com/DePasqualeOrg/mlx-vlm/internal/tensor"

// Kind selects the cache variant for a model architecture. The choice is a
// property of the architecture and is made once at session start.
type Kind int

const (
	// KindCausal is the full multi-head cache used by causal decoder-only
	// architectures.
	KindCausal Kind = iota
	// KindSimple is the single-tensor variant for architectures whose
	// attention modules manage head splitting internally.
	KindSimple
)

// step is the capacity growth increment in positions. Growing in fixed steps
// keeps appends O(1) amortized instead of reallocating per token.
const step = 256

// Cache is the per-layer contract used by attention modules: Update appends
// the new position(s) and returns the accumulated key/value tensors, Len
// reports how many positions are stored.
type Cache interface {
	Update(key, value *tensor.Tensor) (*tensor.Tensor, *tensor.Tensor)
	Len() int
}

// Make builds one cache per decoder layer of the given kind.
func Make(kind Kind, layers int) []Cache {
	caches := make([]Cache, layers)
	for i := range caches {
		switch kind {
		case KindSimple:
			caches[i] = NewSimple()
		default:
			caches[i] = NewKV()
		}
	}
	return caches
}

// KV is the full multi-head key/value cache. Keys and values have shape
// [batch, heads, seq, headDim] with seq growing along axis 2.
type KV struct {
	keys   *tensor.Tensor
	values *tensor.Tensor
	offset int
}

func NewKV() *KV { return &KV{} }

// Update appends the positions in key/value (shape [batch, heads, n, headDim])
// and returns views over everything accumulated so far. The cache never
// truncates; storage grows in fixed steps ahead of demand.
func (c *KV) Update(key, value *tensor.Tensor) (*tensor.Tensor, *tensor.Tensor) {
	n := key.Dim(2)
	if c.keys == nil || c.offset+n > c.keys.Dim(2) {
		c.grow(key, value, c.offset+n)
	}
	c.keys.CopyInto(key, 2, c.offset)
	c.values.CopyInto(value, 2, c.offset)
	c.offset += n
	return c.keys.Narrow(2, c.offset), c.values.Narrow(2, c.offset)
}

// Len returns the number of cached positions.
func (c *KV) Len() int { return c.offset }

func (c *KV) grow(key, value *tensor.Tensor, need int) {
	capacity := ((need + step - 1) / step) * step
	shape := append([]int(nil), key.Shape...)
	shape[2] = capacity
	keys := tensor.New(shape...)
	values := tensor.New(shape...)
	if c.keys != nil {
		keys.CopyInto(c.keys.Narrow(2, c.offset), 2, 0)
		values.CopyInto(c.values.Narrow(2, c.offset), 2, 0)
	}
	c.keys = keys
	c.values = values
}

// Simple is the single-tensor cache variant: key/value are stored without a
// head axis, shape [batch, seq, dim], with seq growing along axis 1.
type Simple struct {
	keys   *tensor.Tensor
	values *tensor.Tensor
	offset int
}

func NewSimple() *Simple { return &Simple{} }

// Update appends the positions in key/value (shape [batch, n, dim]) and
// returns views over the accumulated state.
func (c *Simple) Update(key, value *tensor.Tensor) (*tensor.Tensor, *tensor.Tensor) {
	n := key.Dim(1)
	if c.keys == nil || c.offset+n > c.keys.Dim(1) {
		c.grow(key, c.offset+n)
	}
	c.keys.CopyInto(key, 1, c.offset)
	c.values.CopyInto(value, 1, c.offset)
	c.offset += n
	return c.keys.Narrow(1, c.offset), c.values.Narrow(1, c.offset)
}

// Len returns the number of cached positions.
func (c *Simple) Len() int { return c.offset }

func (c *Simple) grow(key *tensor.Tensor, need int) {
	capacity := ((need + step - 1) / step) * step
	shape := append([]int(nil), key.Shape...)
	shape[1] = capacity
	keys := tensor.New(shape...)
	values := tensor.New(shape...)
	if c.keys != nil {
		keys.CopyInto(c.keys.Narrow(1, c.offset), 1, 0)
		values.CopyInto(c.values.Narrow(1, c.offset), 1, 0)
	}
	c.keys = keys
	c.values = values
}
