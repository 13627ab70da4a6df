package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/DePasqualeOrg/mlx-vlm/internal/generate"
)

func generateCmd() *cli.Command {
	var (
		prompt        string
		maxTokens     int64
		temp          float64
		topP          float64
		repeatPenalty float64
		repeatCtx     int64
		seed          int64
		stopWords     []string
		streamMode    string
		skipSpecial   bool
		verbose       bool
	)

	return &cli.Command{
		Name:      "generate",
		Usage:     "Generate text from a prompt",
		ArgsUsage: "[prompt]",
		Flags: append(commonModelFlags(),
			&cli.StringFlag{
				Name:        "prompt",
				Aliases:     []string{"p"},
				Usage:       "prompt text",
				Destination: &prompt,
			},
			&cli.Int64Flag{
				Name:        "max-tokens",
				Aliases:     []string{"n"},
				Usage:       "maximum number of tokens to generate",
				Value:       256,
				Destination: &maxTokens,
			},
			&cli.Float64Flag{
				Name:        "temp",
				Aliases:     []string{"temperature", "t"},
				Usage:       "sampling temperature (0 = greedy)",
				Value:       0,
				Destination: &temp,
			},
			&cli.Float64Flag{
				Name:        "top-p",
				Aliases:     []string{"top_p"},
				Usage:       "nucleus sampling threshold (1 = disabled)",
				Value:       1.0,
				Destination: &topP,
			},
			&cli.Float64Flag{
				Name:        "repetition-penalty",
				Usage:       "repetition penalty (1 = disabled)",
				Value:       1.0,
				Destination: &repeatPenalty,
			},
			&cli.Int64Flag{
				Name:        "repetition-context-size",
				Usage:       "number of recent tokens the penalty considers",
				Value:       20,
				Destination: &repeatCtx,
			},
			&cli.Int64Flag{
				Name:        "seed",
				Usage:       "sampling RNG seed",
				Value:       0,
				Destination: &seed,
			},
			&cli.StringSliceFlag{
				Name:        "stop",
				Usage:       "additional stop word (repeatable)",
				Destination: &stopWords,
			},
			&cli.StringFlag{
				Name:        "stream-mode",
				Usage:       "output mode (instant, quiet)",
				Value:       string(StreamInstant),
				Destination: &streamMode,
			},
			&cli.BoolFlag{
				Name:        "skip-special-tokens",
				Usage:       "drop special tokens from output",
				Value:       true,
				Destination: &skipSpecial,
			},
			&cli.BoolFlag{
				Name:        "verbose",
				Aliases:     []string{"v"},
				Usage:       "print throughput and memory statistics",
				Destination: &verbose,
			},
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg := LoadConfig()
			applyGenerateConfig(c, cfg, &temp, &topP, &repeatPenalty, &repeatCtx, &maxTokens, &seed, &streamMode)

			if prompt == "" && c.Args().Len() > 0 {
				prompt = strings.Join(c.Args().Slice(), " ")
			}
			if prompt == "" {
				return cli.Exit("error: a prompt is required (--prompt or positional)", 1)
			}

			session, err := buildSession(ctx)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			req := generate.Request{
				Prompt:                prompt,
				MaxTokens:             int(maxTokens),
				Temperature:           temp,
				TopP:                  topP,
				RepetitionPenalty:     repeatPenalty,
				RepetitionContextSize: int(repeatCtx),
				Seed:                  seed,
				EOSTokens:             stopWords,
				SkipSpecialTokens:     skipSpecial,
			}

			if verbose {
				fmt.Println("==========")
				fmt.Printf("Prompt: %s\n", prompt)
			}

			writer := NewStreamWriter(StreamMode(streamMode), int(maxTokens))
			var last generate.Result
			streamErr := session.Stream(ctx, req, func(r generate.Result) bool {
				writer.Write(r.Text)
				last = r
				return true
			})
			writer.Flush()
			fmt.Println()
			if streamErr != nil {
				return cli.Exit(fmt.Sprintf("error: generate: %v", streamErr), 1)
			}

			if verbose {
				fmt.Println("==========")
				fmt.Printf("Prompt: %d tokens, %.3f tokens-per-sec\n", last.PromptTokens, last.PromptTPS)
				fmt.Printf("Generation: %d tokens, %.3f tokens-per-sec\n", last.GenerationTokens, last.GenerationTPS)
				fmt.Printf("Peak memory: %.3f GB\n", float64(last.PeakMemory)/1e9)
			}
			return nil
		},
	}
}
