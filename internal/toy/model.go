// Package toy provides a small deterministic model implementing the engine's
// model boundary. It is used for testing and benchmarking the decoding loop
// without loading real weights: logits are a pure function of the token
// history and any multimodal tensors, so generations are reproducible.
package toy

import (
	"context"
	"fmt"

	"github.com/DePasqualeOrg/mlx-vlm/internal/cache"
	"github.com/DePasqualeOrg/mlx-vlm/internal/model"
	"github.com/DePasqualeOrg/mlx-vlm/internal/tensor"
)

// LM is a minimal language model: an embedding matrix, a projection back to
// vocab logits, and per-layer key/value writes that exercise the cache stack
// exactly like a real attention implementation would.
type LM struct {
	VocabSize int
	Hidden    int
	Layers    int
	Heads     int

	Caps model.Capabilities

	// FailAtStep injects a forward-pass error at the given 1-based decode
	// step, for exercising session abort paths. 0 disables it.
	FailAtStep int

	emb  *tensor.Tensor // [VocabSize, Hidden]
	proj *tensor.Tensor // [Hidden, VocabSize]
	step int
}

// New constructs a model with deterministic weights derived from seed.
// Hidden must be divisible by heads.
func New(vocab, hidden, layers, heads int, seed int64, caps model.Capabilities) *LM {
	if hidden%heads != 0 {
		panic("toy: hidden not divisible by heads")
	}
	m := &LM{
		VocabSize: vocab,
		Hidden:    hidden,
		Layers:    layers,
		Heads:     heads,
		Caps:      caps,
		emb:       tensor.New(vocab, hidden),
		proj:      tensor.New(hidden, vocab),
	}
	tensor.FillRand(m.emb, seed+11)
	tensor.FillRand(m.proj, seed+23)
	return m
}

func (m *LM) Capabilities() model.Capabilities { return m.Caps }

func (m *LM) NumLayers() int { return m.Layers }

// SizeBytes reports the weight footprint.
func (m *LM) SizeBytes() uint64 {
	return uint64(len(m.emb.Data)+len(m.proj.Data)) * 4
}

// Forward runs the prefill pass: every prompt position is written to each
// layer's cache and the logits for the final position are returned. For
// encoder-decoder and cross-attention variants the fixed side-channel state
// is produced here.
func (m *LM) Forward(ctx context.Context, in model.Inputs, caches []cache.Cache) (model.Output, error) {
	if err := ctx.Err(); err != nil {
		return model.Output{}, err
	}
	if len(in.InputIDs) == 0 {
		return model.Output{}, fmt.Errorf("toy: empty input ids")
	}
	m.step = 0
	h := m.hiddenState(in.InputIDs, in.PixelValues, in.AudioValues)
	m.writeCache(in.InputIDs, caches)

	out := model.Output{Logits: m.project(h)}
	if m.Caps.HasCrossAttention {
		states := tensor.New(1, len(in.InputIDs), m.Hidden)
		copy(states.Data, m.emb.Data[:min(len(states.Data), len(m.emb.Data))])
		out.CrossAttentionStates = states
	} else if m.Caps.IsEncoderDecoder {
		enc := tensor.New(1, len(in.InputIDs), m.Hidden)
		copy(enc.Data, m.emb.Data[:min(len(enc.Data), len(m.emb.Data))])
		out.EncoderOutputs = enc
	}
	return out, nil
}

// Step runs one decode pass over a single new token.
func (m *LM) Step(ctx context.Context, in model.Step, caches []cache.Cache) (model.Output, error) {
	if err := ctx.Err(); err != nil {
		return model.Output{}, err
	}
	m.step++
	if m.FailAtStep > 0 && m.step >= m.FailAtStep {
		return model.Output{}, fmt.Errorf("toy: injected failure at step %d", m.step)
	}

	token := in.Token
	switch {
	case m.Caps.IsEncoderDecoder:
		if in.EncoderOutputs == nil {
			return model.Output{}, fmt.Errorf("toy: encoder-decoder step without encoder outputs")
		}
		if len(in.DecoderInputIDs) == 0 {
			return model.Output{}, fmt.Errorf("toy: encoder-decoder step without decoder input ids")
		}
		token = in.DecoderInputIDs[len(in.DecoderInputIDs)-1]
	case m.Caps.HasCrossAttention:
		if in.CrossAttentionStates == nil {
			return model.Output{}, fmt.Errorf("toy: cross-attention step without states")
		}
	}

	h := m.hiddenState([]int{token}, nil, nil)
	m.writeCache([]int{token}, caches)
	return model.Output{Logits: m.project(h)}, nil
}

// hiddenState mixes the embeddings of ids with any multimodal tensors into a
// single hidden vector.
func (m *LM) hiddenState(ids []int, pixels, audio *tensor.Tensor) []float32 {
	h := make([]float32, m.Hidden)
	for _, id := range ids {
		id = m.wrap(id)
		for j := 0; j < m.Hidden; j++ {
			h[j] += m.emb.At(id, j)
		}
	}
	scale := 1 / float32(len(ids))
	for j := range h {
		h[j] *= scale
	}
	for _, extra := range []*tensor.Tensor{pixels, audio} {
		if extra == nil {
			continue
		}
		var sum float32
		for _, v := range extra.Data {
			sum += v
		}
		bias := sum / float32(len(extra.Data)+1)
		for j := range h {
			h[j] += bias
		}
	}
	return h
}

func (m *LM) project(h []float32) []float32 {
	logits := make([]float32, m.VocabSize)
	for j := 0; j < m.VocabSize; j++ {
		var sum float32
		for i := 0; i < m.Hidden; i++ {
			sum += h[i] * m.proj.At(i, j)
		}
		logits[j] = sum
	}
	return logits
}

// writeCache appends one key/value position per token to every layer, the
// same pattern a real attention module follows.
func (m *LM) writeCache(ids []int, caches []cache.Cache) {
	headDim := m.Hidden / m.Heads
	for _, c := range caches {
		var k, v *tensor.Tensor
		if _, simple := c.(*cache.Simple); simple {
			k = tensor.New(1, len(ids), m.Hidden)
			v = tensor.New(1, len(ids), m.Hidden)
		} else {
			k = tensor.New(1, m.Heads, len(ids), headDim)
			v = tensor.New(1, m.Heads, len(ids), headDim)
		}
		for i, id := range ids {
			id = m.wrap(id)
			for j := 0; j < m.Hidden; j++ {
				val := m.emb.At(id, j)
				if k.Rank() == 3 {
					k.Set(val, 0, i, j)
					v.Set(-val, 0, i, j)
				} else {
					k.Set(val, 0, j/headDim, i, j%headDim)
					v.Set(-val, 0, j/headDim, i, j%headDim)
				}
			}
		}
		c.Update(k, v)
	}
}

func (m *LM) wrap(id int) int {
	id %= m.VocabSize
	if id < 0 {
		id += m.VocabSize
	}
	return id
}
