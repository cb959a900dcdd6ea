package main

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/urfave/cli/v3"

	"seqgen-go/hftokenizer"
	"seqgen-go/onnxmodel"
	"seqgen-go/seqgen"
)

func runCmd() *cli.Command {
	var (
		modelPath string
		tokPath   string
		vocab     int64
		samples   int64
		maxTokens int64
		seed      int64
		stopText  string
		progress  bool
		mock      bool
		cfgPath   string
	)

	return &cli.Command{
		Name:  "run",
		Usage: "Generate completions for one or more prompts",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "model",
				Aliases:     []string{"m"},
				Usage:       "path to an ONNX causal LM",
				Destination: &modelPath,
			},
			&cli.StringFlag{
				Name:        "tokenizer",
				Usage:       "directory holding tokenizer.json",
				Destination: &tokPath,
			},
			&cli.StringSliceFlag{
				Name:    "prompt",
				Aliases: []string{"p"},
				Usage:   "prompt text (repeatable)",
			},
			&cli.IntFlag{
				Name:        "vocab",
				Usage:       "vocabulary size of the model's logits output",
				Value:       32000,
				Destination: &vocab,
			},
			&cli.IntFlag{
				Name:        "samples",
				Aliases:     []string{"n"},
				Usage:       "completions per prompt",
				Value:       1,
				Destination: &samples,
			},
			&cli.IntFlag{
				Name:        "max-tokens",
				Usage:       "token budget per completion (-1 = unbounded)",
				Value:       128,
				Destination: &maxTokens,
			},
			&cli.IntFlag{
				Name:        "seed",
				Usage:       "sampling RNG seed (default -1 = random)",
				Value:       -1,
				Destination: &seed,
			},
			&cli.StringFlag{
				Name:        "stop-text",
				Usage:       "finish a completion once this text appears",
				Destination: &stopText,
			},
			&cli.BoolFlag{
				Name:        "progress",
				Usage:       "show a progress bar while generating",
				Destination: &progress,
			},
			&cli.BoolFlag{
				Name:        "mock",
				Usage:       "run with mock collaborators (no model assets needed)",
				Destination: &mock,
			},
			&cli.StringFlag{
				Name:        "config",
				Usage:       "YAML config file supplying defaults",
				Destination: &cfgPath,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := loadConfig(cfgPath)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			applyConfig(c, cfg, &modelPath, &tokPath, &vocab, &samples, &maxTokens, &seed, &stopText)

			prompts := c.StringSlice("prompt")
			if len(prompts) == 0 {
				return cli.Exit("error: at least one --prompt is required", 1)
			}

			var (
				model seqgen.Model
				tok   seqgen.Tokenizer
				strat seqgen.Strategy
			)

			if mock {
				tok = seqgen.NewMockTokenizer()
				model = seqgen.NewMockModel(512)
				strat = seqgen.StopAt(-1) // budget-bounded only
			} else {
				hf, err := hftokenizer.New(tokPath)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: %v", err), 1)
				}
				defer func() { _ = hf.Close() }()

				m, err := onnxmodel.New(modelPath, int(vocab))
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: %v", err), 1)
				}
				defer func() { _ = m.Close() }()

				tok = hf
				model = m
				strat = seqgen.StopAt(hf.EOSTokenID())
			}

			if stopText != "" {
				strat = &seqgen.StopAtText{Text: stopText, Tokenizer: tok}
			}

			gen := seqgen.NewGenerator(model, tok, strat,
				seqgen.WithMaxTokens(int(maxTokens)),
				seqgen.WithProgress(progress),
			)

			var rng *rand.Rand
			if seed >= 0 {
				rng = rand.New(rand.NewSource(seed))
			}

			completions, err := gen.Generate(prompts, int(samples), rng)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: generate: %v", err), 1)
			}

			for i, completion := range completions {
				prompt := prompts[i/int(samples)]
				fmt.Printf("\nPrompt:     %s\n", prompt)
				fmt.Printf("Completion: %s\n", completion)
			}
			return nil
		},
	}
}

// applyConfig fills in flag values from the config file when the
// corresponding flag was not set on the command line.
func applyConfig(c *cli.Command, cfg fileConfig,
	modelPath, tokPath *string, vocab, samples, maxTokens, seed *int64, stopText *string,
) {
	if cfg.Model != "" && !c.IsSet("model") {
		*modelPath = cfg.Model
	}
	if cfg.Tokenizer != "" && !c.IsSet("tokenizer") {
		*tokPath = cfg.Tokenizer
	}
	if cfg.Vocab != nil && !c.IsSet("vocab") {
		*vocab = *cfg.Vocab
	}
	if cfg.Samples != nil && !c.IsSet("samples") {
		*samples = *cfg.Samples
	}
	if cfg.MaxTokens != nil && !c.IsSet("max-tokens") {
		*maxTokens = *cfg.MaxTokens
	}
	if cfg.Seed != nil && !c.IsSet("seed") {
		*seed = *cfg.Seed
	}
	if cfg.StopText != "" && !c.IsSet("stop-text") {
		*stopText = cfg.StopText
	}
}
