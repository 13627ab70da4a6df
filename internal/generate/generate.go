// Package generate drives autoregressive decoding: it owns the per-session
// KV cache lifecycle, applies the sampling policy, evaluates stopping
// criteria, and streams incrementally detokenized text with throughput and
// memory accounting.
package generate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/DePasqualeOrg/mlx-vlm/internal/device"
	"github.com/DePasqualeOrg/mlx-vlm/internal/logger"
	"github.com/DePasqualeOrg/mlx-vlm/internal/model"
	"github.com/DePasqualeOrg/mlx-vlm/internal/processor"
	"github.com/DePasqualeOrg/mlx-vlm/internal/sample"
	"github.com/DePasqualeOrg/mlx-vlm/internal/tensor"
	"github.com/DePasqualeOrg/mlx-vlm/internal/tokenizer"
)

// ErrInvalidArgument marks caller mistakes rejected before a session starts.
var ErrInvalidArgument = errors.New("invalid argument")

const defaultMaxTokens = 256

// Request configures one generation call.
type Request struct {
	// Prompt is resolved through the processor unless InputIDs is set.
	Prompt string
	Images []*tensor.Tensor
	Audio  []*tensor.Tensor

	// InputIDs bypasses input preparation with already-tokenized ids,
	// optionally alongside a prepared tensor bundle.
	InputIDs    []int
	PixelValues *tensor.Tensor
	Mask        []int32

	// MaxTokens bounds the generation; 0 means the default budget.
	MaxTokens int

	Temperature           float64
	TopP                  float64
	RepetitionPenalty     float64
	RepetitionContextSize int
	LogitBias             map[int]float32
	Seed                  int64

	// EOSTokens are extra textual stop words appended to the model's
	// configured EOS set.
	EOSTokens []string
	// Stopping overrides the criteria outright: either a
	// *StoppingCriteria or a func(int) bool.
	Stopping any

	// SkipSpecialTokens drops special token ids from emitted text.
	SkipSpecialTokens bool
}

// Result is one streamed record: the newly revealed text and running
// accounting. One Result is emitted per produced token, plus a final one
// after the stop condition carrying any flushed text.
type Result struct {
	Text             string
	Token            int
	Logprobs         []float32
	PromptTokens     int
	GenerationTokens int
	PromptTPS        float64
	GenerationTPS    float64
	PeakMemory       uint64
}

// Usage summarizes a completed generation.
type Usage struct {
	InputTokens   int
	OutputTokens  int
	TotalTokens   int
	PromptTPS     float64
	GenerationTPS float64
	PeakMemory    uint64
}

// StreamFunc receives one Result per step. Returning false stops the session
// immediately; no further results (including the final flush) are delivered.
type StreamFunc func(Result) bool

// Session wires the collaborators for generation calls. The model, processor,
// and device are ready-made; the session never loads or mutates them beyond
// the per-call cache lifecycle. A session runs one generation at a time:
// callers issuing concurrent requests must serialize them.
type Session struct {
	Model     model.Model
	Processor processor.Processor
	Device    device.Device
	Log       logger.Logger
}

// NewSession builds a session, defaulting the device handle and logger.
func NewSession(m model.Model, p processor.Processor, opts ...func(*Session)) *Session {
	s := &Session{
		Model:     m,
		Processor: p,
		Device:    device.NewHost(),
		Log:       logger.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithDevice overrides the execution-context handle.
func WithDevice(dev device.Device) func(*Session) {
	return func(s *Session) { s.Device = dev }
}

// WithLogger overrides the session logger.
func WithLogger(log logger.Logger) func(*Session) {
	return func(s *Session) { s.Log = log }
}

// Stream runs one generation session, delivering results to fn until the
// stop condition fires, the token budget runs out, or fn returns false.
func (s *Session) Stream(ctx context.Context, req Request, fn StreamFunc) error {
	if err := validate(req); err != nil {
		return err
	}

	tok := s.Processor.Tokenizer()
	criteria, err := s.resolveStopping(req)
	if err != nil {
		return err
	}

	inputs, err := s.resolveInputs(req)
	if err != nil {
		return err
	}

	release := device.WiredLimitScope(s.Device, s.Log, modelBytes(s.Model))
	defer release()
	defer s.Device.ClearCache()

	detok := tokenizer.NewStreamingDetokenizer(tok)
	detok.Reset()
	skip := skipSet(tok, req.SkipSpecialTokens)

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}
	stream := newTokenStream(s.Model, s.Device, sample.Policy{
		Temperature:           req.Temperature,
		TopP:                  req.TopP,
		RepetitionPenalty:     req.RepetitionPenalty,
		RepetitionContextSize: req.RepetitionContextSize,
		LogitBias:             req.LogitBias,
		Seed:                  req.Seed,
	}, *inputs, maxTokens)

	var (
		promptTPS float64
		genTic    time.Time
		emitted   int
		last      = Result{Token: -1}
	)

	tic := time.Now()
	for {
		st, ok, err := stream.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if emitted == 0 {
			promptTPS = float64(len(inputs.InputIDs)) / time.Since(tic).Seconds()
			genTic = time.Now()
		}
		if criteria(st.token) {
			break
		}
		if err := detok.AddToken(st.token, skip); err != nil {
			return fmt.Errorf("detokenize: %w", err)
		}
		emitted++
		last = Result{
			Text:             detok.LastSegment(),
			Token:            st.token,
			Logprobs:         st.logprobs,
			PromptTokens:     len(inputs.InputIDs),
			GenerationTokens: emitted,
			PromptTPS:        promptTPS,
			GenerationTPS:    float64(emitted) / time.Since(genTic).Seconds(),
			PeakMemory:       s.Device.PeakMemory(),
		}
		if !fn(last) {
			return nil
		}
	}

	detok.Finalize()
	final := last
	final.Text = detok.LastSegment()
	final.PromptTokens = len(inputs.InputIDs)
	final.GenerationTokens = emitted
	final.PromptTPS = promptTPS
	final.PeakMemory = s.Device.PeakMemory()
	if emitted > 0 {
		final.GenerationTPS = float64(emitted) / time.Since(genTic).Seconds()
	}
	fn(final)
	return nil
}

// Generate runs a session to completion and returns the concatenated text
// with usage statistics.
func (s *Session) Generate(ctx context.Context, req Request) (string, Usage, error) {
	var (
		text string
		last Result
	)
	err := s.Stream(ctx, req, func(r Result) bool {
		text += r.Text
		last = r
		return true
	})
	if err != nil {
		return "", Usage{}, err
	}
	return text, Usage{
		InputTokens:   last.PromptTokens,
		OutputTokens:  last.GenerationTokens,
		TotalTokens:   last.PromptTokens + last.GenerationTokens,
		PromptTPS:     last.PromptTPS,
		GenerationTPS: last.GenerationTPS,
		PeakMemory:    last.PeakMemory,
	}, nil
}

func validate(req Request) error {
	p := req.RepetitionPenalty
	if p < 0 || math.IsNaN(p) {
		return fmt.Errorf("%w: repetition_penalty must be a non-negative number, got %v", ErrInvalidArgument, p)
	}
	return nil
}

// resolveStopping returns the stop predicate for this call: the caller's
// override when given, otherwise the model-configured EOS set plus any extra
// textual stop words.
func (s *Session) resolveStopping(req Request) (func(int) bool, error) {
	if req.Stopping != nil {
		switch c := req.Stopping.(type) {
		case *StoppingCriteria:
			return c.IsStop, nil
		case func(int) bool:
			return c, nil
		default:
			return nil, fmt.Errorf("%w: stopping criteria must be *StoppingCriteria or func(int) bool, got %T", ErrInvalidArgument, req.Stopping)
		}
	}
	criteria := NewStoppingCriteria(nil, s.Processor.Tokenizer())
	if len(req.EOSTokens) > 0 {
		if err := criteria.AddTokens(req.EOSTokens...); err != nil {
			return nil, err
		}
	}
	return criteria.IsStop, nil
}

func (s *Session) resolveInputs(req Request) (*model.Inputs, error) {
	if len(req.InputIDs) > 0 {
		return &model.Inputs{
			InputIDs:    req.InputIDs,
			PixelValues: req.PixelValues,
			Mask:        req.Mask,
		}, nil
	}
	return processor.Prepare(s.Processor, s.Log, processor.Request{
		Prompt: req.Prompt,
		Images: req.Images,
		Audio:  req.Audio,
	})
}

func skipSet(tok tokenizer.Handle, skipSpecial bool) map[int]struct{} {
	if !skipSpecial {
		return nil
	}
	ids := tok.SpecialTokenIDs()
	set := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func modelBytes(m model.Model) uint64 {
	if sized, ok := m.(model.Sized); ok {
		return sized.SizeBytes()
	}
	return 0
}
