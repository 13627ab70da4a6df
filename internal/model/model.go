// Package model defines the boundary between the generation engine and a
// loaded multimodal language model. Loading, weight conversion, and adapter
// application happen elsewhere; the engine only sees a ready-to-call Model.
package model

import (
	"context"

	"github.com/DePasqualeOrg/mlx-vlm/internal/cache"
	"github.com/DePasqualeOrg/mlx-vlm/internal/tensor"
)

// Capabilities describes the architecture variants the decoding loop has to
// accommodate. It is read once at session start; the engine never probes the
// model again per call.
type Capabilities struct {
	// CacheKind selects the key/value cache variant for this architecture.
	CacheKind cache.Kind
	// IsEncoderDecoder marks architectures that consume decoder input ids
	// plus a fixed encoder output computed at prefill.
	IsEncoderDecoder bool
	// HasCrossAttention marks architectures that re-feed a fixed
	// cross-attention state computed at prefill.
	HasCrossAttention bool
}

// Inputs is the prepared tensor bundle for the prefill pass.
type Inputs struct {
	InputIDs    []int
	PixelValues *tensor.Tensor
	AudioValues *tensor.Tensor
	Mask        []int32
}

// Step is the single-token call for one decode iteration. Exactly one of
// Token or DecoderInputIDs carries the new position, depending on the call
// convention; the side-channel tensors are fixed prefill outputs.
type Step struct {
	Token                int
	DecoderInputIDs      []int
	CrossAttentionStates *tensor.Tensor
	EncoderOutputs       *tensor.Tensor
}

// Output is the result of one forward pass. Logits covers the vocabulary at
// the final position. CrossAttentionStates and EncoderOutputs are only set by
// architectures that produce them, and only at prefill.
type Output struct {
	Logits               []float32
	CrossAttentionStates *tensor.Tensor
	EncoderOutputs       *tensor.Tensor
}

// Model is a ready-to-call generative model. Forward runs the full-prompt
// prefill pass, Step one subsequent decode pass. Both mutate the supplied
// caches, which are exclusively owned by the in-progress session.
type Model interface {
	Capabilities() Capabilities
	NumLayers() int
	Forward(ctx context.Context, in Inputs, caches []cache.Cache) (Output, error)
	Step(ctx context.Context, in Step, caches []cache.Cache) (Output, error)
}

// CacheMaker is implemented by models that build a custom cache stack instead
// of the default per-layer construction.
type CacheMaker interface {
	MakeCache() []cache.Cache
}

// Sized is implemented by models that can report their weight footprint, used
// to warn when a model approaches the device working-set limit.
type Sized interface {
	SizeBytes() uint64
}

// MakeCache returns the cache stack for m: the model's own when it implements
// CacheMaker, otherwise one cache per layer of the capability-selected kind.
func MakeCache(m Model) []cache.Cache {
	if maker, ok := m.(CacheMaker); ok {
		return maker.MakeCache()
	}
	return cache.Make(m.Capabilities().CacheKind, m.NumLayers())
}
