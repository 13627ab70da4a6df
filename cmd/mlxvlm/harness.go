package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/DePasqualeOrg/mlx-vlm/internal/cache"
	"github.com/DePasqualeOrg/mlx-vlm/internal/generate"
	"github.com/DePasqualeOrg/mlx-vlm/internal/logger"
	"github.com/DePasqualeOrg/mlx-vlm/internal/model"
	"github.com/DePasqualeOrg/mlx-vlm/internal/processor"
	"github.com/DePasqualeOrg/mlx-vlm/internal/tokenizer"
	"github.com/DePasqualeOrg/mlx-vlm/internal/toy"
)

// Shared model flags. The binary ships with a deterministic built-in model so
// every command works out of the box; --vocab substitutes a tokenizer file.
var (
	vocabPath  string
	hiddenSize int64
	numLayers  int64
	numHeads   int64
	modelSeed  int64
	convention string
)

func commonModelFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "vocab",
			Usage:       "path to tokenizer json (built-in vocabulary when empty)",
			Destination: &vocabPath,
		},
		&cli.Int64Flag{
			Name:        "hidden-size",
			Usage:       "model hidden dimension",
			Value:       64,
			Destination: &hiddenSize,
		},
		&cli.Int64Flag{
			Name:        "layers",
			Usage:       "number of decoder layers",
			Value:       2,
			Destination: &numLayers,
		},
		&cli.Int64Flag{
			Name:        "heads",
			Usage:       "number of attention heads",
			Value:       4,
			Destination: &numHeads,
		},
		&cli.Int64Flag{
			Name:        "model-seed",
			Usage:       "weight initialization seed",
			Value:       1,
			Destination: &modelSeed,
		},
		&cli.StringFlag{
			Name:        "convention",
			Usage:       "call convention (causal, cross-attention, encoder-decoder)",
			Value:       "causal",
			Destination: &convention,
		},
	}
}

func buildSession(ctx context.Context) (*generate.Session, error) {
	var (
		tok *tokenizer.Vocab
		err error
	)
	if vocabPath != "" {
		tok, err = tokenizer.LoadVocab(vocabPath)
		if err != nil {
			return nil, fmt.Errorf("load vocab: %w", err)
		}
	} else {
		tok, err = tokenizer.NewVocab(toy.Vocab())
		if err != nil {
			return nil, fmt.Errorf("built-in vocab: %w", err)
		}
	}

	caps, err := resolveConvention(convention)
	if err != nil {
		return nil, err
	}
	if numHeads <= 0 || hiddenSize%numHeads != 0 {
		return nil, fmt.Errorf("hidden-size %d must be divisible by heads %d", hiddenSize, numHeads)
	}

	lm := toy.New(tok.Len(), int(hiddenSize), int(numLayers), int(numHeads), modelSeed, caps)
	return generate.NewSession(lm, processor.NewText(tok),
		generate.WithLogger(logger.FromContext(ctx))), nil
}

func resolveConvention(name string) (model.Capabilities, error) {
	switch name {
	case "causal", "":
		return model.Capabilities{CacheKind: cache.KindCausal}, nil
	case "cross-attention":
		return model.Capabilities{CacheKind: cache.KindCausal, HasCrossAttention: true}, nil
	case "encoder-decoder":
		return model.Capabilities{CacheKind: cache.KindSimple, IsEncoderDecoder: true}, nil
	default:
		return model.Capabilities{}, fmt.Errorf("unknown call convention %q", name)
	}
}
