// Package processor is the input-preparation boundary: it turns a prompt and
// any already-decoded multimodal tensors into the input bundle consumed by
// the prefill pass. Image decoding, resizing, and audio resampling happen
// upstream; this package only validates modality support and normalizes the
// result, falling back once to the compatibility tensor representation when
// the native one fails.
package processor

import (
	"errors"
	"fmt"

	"github.com/DePasqualeOrg/mlx-vlm/internal/logger"
	"github.com/DePasqualeOrg/mlx-vlm/internal/model"
	"github.com/DePasqualeOrg/mlx-vlm/internal/tensor"
	"github.com/DePasqualeOrg/mlx-vlm/internal/tokenizer"
)

// ErrUnsupportedModality is returned when a request carries a modality the
// processor cannot handle.
var ErrUnsupportedModality = errors.New("unsupported modality")

// Representation selects the tensor layout a processor produces. Native is
// tried first; Compat is the one-shot fallback.
type Representation string

const (
	RepresentationNative Representation = "native"
	RepresentationCompat Representation = "compat"
)

// Capabilities describes which modalities a processor accepts. Obtained once
// during setup, never re-probed per call.
type Capabilities struct {
	Images bool
	Audio  bool
}

// Request is one input-preparation call.
type Request struct {
	Prompt           string
	Images           []*tensor.Tensor
	Audio            []*tensor.Tensor
	AddSpecialTokens bool
	Representation   Representation
}

// Processor prepares model inputs. Implementations wrap a concrete
// tokenizer/feature-extractor pair.
type Processor interface {
	// Tokenizer returns the normalized tokenizer handle.
	Tokenizer() tokenizer.Handle
	Capabilities() Capabilities
	Process(req Request) (*model.Inputs, error)
}

// Prepare validates the request against p's capabilities and processes it,
// retrying once with the compatibility representation if the native one
// fails. A double failure surfaces both underlying errors.
func Prepare(p Processor, log logger.Logger, req Request) (*model.Inputs, error) {
	caps := p.Capabilities()
	if len(req.Images) > 0 && !caps.Images {
		return nil, fmt.Errorf("%w: processor does not accept images", ErrUnsupportedModality)
	}
	if len(req.Audio) > 0 && !caps.Audio {
		return nil, fmt.Errorf("%w: processor does not accept audio", ErrUnsupportedModality)
	}
	if len(req.Audio) > 1 {
		log.Warn("multiple audio inputs are not supported yet; using the first")
		req.Audio = req.Audio[:1]
	}
	if req.Representation == "" {
		req.Representation = RepresentationNative
	}

	inputs, err := p.Process(req)
	if err == nil {
		return inputs, nil
	}
	if req.Representation == RepresentationCompat {
		return nil, fmt.Errorf("process inputs: %w", err)
	}

	log.Warn("input processing failed; retrying with compat representation", "error", err)
	req.Representation = RepresentationCompat
	inputs, fbErr := p.Process(req)
	if fbErr != nil {
		return nil, fmt.Errorf("process inputs: %w", errors.Join(err, fbErr))
	}
	return inputs, nil
}

// Text is a Processor over a bare tokenizer: text in, token ids out, no
// multimodal support.
type Text struct {
	tok tokenizer.Handle
}

// NewText wraps a tokenizer handle.
func NewText(tok tokenizer.Handle) *Text { return &Text{tok: tok} }

func (t *Text) Tokenizer() tokenizer.Handle { return t.tok }

func (t *Text) Capabilities() Capabilities { return Capabilities{} }

func (t *Text) Process(req Request) (*model.Inputs, error) {
	ids, err := t.tok.Encode(req.Prompt)
	if err != nil {
		return nil, fmt.Errorf("encode prompt: %w", err)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("prompt produced no tokens")
	}
	mask := make([]int32, len(ids))
	for i := range mask {
		mask[i] = 1
	}
	return &model.Inputs{InputIDs: ids, Mask: mask}, nil
}
