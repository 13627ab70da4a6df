package generate

import (
	"context"

	"github.com/DePasqualeOrg/mlx-vlm/internal/cache"
	"github.com/DePasqualeOrg/mlx-vlm/internal/device"
	"github.com/DePasqualeOrg/mlx-vlm/internal/model"
	"github.com/DePasqualeOrg/mlx-vlm/internal/sample"
	"github.com/DePasqualeOrg/mlx-vlm/internal/tensor"
)

// clearCacheEvery is how often (in produced tokens) device scratch memory is
// proactively released to bound peak growth during long generations. This
// never touches the KV cache and has no effect on output.
const clearCacheEvery = 50

// step is one produced token and its log-probability vector.
type step struct {
	token    int
	logprobs []float32
}

// tokenStream is the lazy token producer behind a generation session:
// prefill on first pull, then one decode pass per subsequent pull, up to
// maxTokens. It is stateful and owned by exactly one consumer; ceasing to
// pull is always a safe way to cancel.
type tokenStream struct {
	model     model.Model
	dev       device.Device
	sampler   *sample.Sampler
	inputs    model.Inputs
	caches    []cache.Cache
	maxTokens int

	penalty float32
	repCtx  *sample.Context

	// Fixed side-channel state captured at prefill, selecting the call
	// convention for the rest of the session.
	cross      *tensor.Tensor
	encoder    *tensor.Tensor
	decoderIDs []int

	last    int
	n       int
	started bool
	done    bool
}

func newTokenStream(m model.Model, dev device.Device, pol sample.Policy, in model.Inputs, maxTokens int) *tokenStream {
	s := &tokenStream{
		model:     m,
		dev:       dev,
		sampler:   sample.New(pol),
		inputs:    in,
		caches:    model.MakeCache(m),
		maxTokens: maxTokens,
	}
	if pol.RepetitionPenalty > 0 {
		s.penalty = float32(pol.RepetitionPenalty)
		s.repCtx = sample.NewContext(pol.RepetitionContextSize, in.InputIDs)
	}
	return s
}

// Caches exposes the session's cache stack, for inspection in tests.
func (s *tokenStream) Caches() []cache.Cache { return s.caches }

// Next produces the next token. ok is false when the budget is exhausted.
// Any forward-pass error is fatal to the session: the cache may be
// mid-mutation, so there is no retry.
func (s *tokenStream) Next(ctx context.Context) (step, bool, error) {
	if s.done || s.maxTokens <= 0 {
		s.done = true
		return step{}, false, nil
	}
	if err := ctx.Err(); err != nil {
		s.done = true
		return step{}, false, err
	}

	var out model.Output
	var err error
	if !s.started {
		s.started = true
		out, err = s.model.Forward(ctx, s.inputs, s.caches)
		if err != nil {
			s.done = true
			return step{}, false, err
		}
		s.cross = out.CrossAttentionStates
		s.encoder = out.EncoderOutputs
	} else {
		if s.n >= s.maxTokens {
			s.done = true
			return step{}, false, nil
		}
		out, err = s.model.Step(ctx, s.stepInput(), s.caches)
		if err != nil {
			s.done = true
			return step{}, false, err
		}
	}

	logits := out.Logits
	if s.repCtx != nil && s.started && s.n > 0 {
		sample.ApplyRepetitionPenalty(logits, s.repCtx.Tokens(), s.penalty)
	}
	token, logprobs := s.sampler.Sample(logits)
	if s.repCtx != nil {
		s.repCtx.Push(token)
	}

	s.last = token
	if s.encoder != nil {
		s.decoderIDs = []int{token}
	}
	s.n++
	if s.n%clearCacheEvery == 0 {
		s.dev.ClearCache()
	}
	return step{token: token, logprobs: logprobs}, true, nil
}

// stepInput builds the single-token call for the convention detected at
// prefill: decoder input ids for encoder-decoder models, fixed states for
// cross-attention models, the bare previous token otherwise.
func (s *tokenStream) stepInput() model.Step {
	in := model.Step{Token: s.last}
	switch {
	case s.encoder != nil:
		in.DecoderInputIDs = append([]int(nil), s.decoderIDs...)
		in.EncoderOutputs = s.encoder
	case s.cross != nil:
		in.CrossAttentionStates = s.cross
	}
	return in
}
