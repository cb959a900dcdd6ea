package seqgen

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"

	"seqgen-go/tensor"
)

// Generator runs the batched generate-until-done loop: it queries the
// model for next-token logits, samples continuation tokens, tracks
// per-row termination, and assembles the final completions. One call
// handles one logical request, expanded internally by the sample count;
// it runs synchronously to completion.
type Generator struct {
	model     Model
	tokenizer Tokenizer
	strategy  Strategy
	maxTokens int
	progress  bool
}

// NewGenerator creates a generator around a model, a tokenizer and a
// strategy. Panics when a collaborator is missing: the strategy carries
// the termination predicate, so there is no usable default.
func NewGenerator(model Model, tokenizer Tokenizer, strategy Strategy, opts ...Option) *Generator {
	g := &Generator{
		model:     model,
		tokenizer: tokenizer,
		strategy:  strategy,
		maxTokens: -1,
	}

	for _, opt := range opts {
		opt(g)
	}

	if err := g.validate(); err != nil {
		panic(err)
	}

	return g
}

func (g *Generator) validate() error {
	if g.model == nil {
		return fmt.Errorf("generator requires a model")
	}
	if g.tokenizer == nil {
		return fmt.Errorf("generator requires a tokenizer")
	}
	if g.strategy == nil {
		return fmt.Errorf("generator requires a strategy: supply a termination predicate such as StopAt")
	}
	return nil
}

// Complete generates a single completion for a single prompt.
func (g *Generator) Complete(prompt string, rng *rand.Rand) (string, error) {
	out, err := g.Generate([]string{prompt}, 1, rng)
	if err != nil {
		return "", err
	}
	return out[0], nil
}

// Generate produces samples-many completions per prompt. The result is
// ordered prompt-major then sample-minor: completions for prompts[0]
// first, each prompt's samples in draw order. A nil rng is seeded from
// the clock; passing an explicitly seeded source makes the output
// reproducible.
func (g *Generator) Generate(prompts []string, samples int, rng *rand.Rand) ([]string, error) {
	if len(prompts) == 0 {
		return nil, fmt.Errorf("no prompts given")
	}
	if samples < 1 {
		return nil, fmt.Errorf("samples must be >= 1, got %d", samples)
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	ids, mask, err := g.tokenizer.Encode(prompts)
	if err != nil {
		return nil, fmt.Errorf("encode prompts: %w", err)
	}

	b := newBatch(ids, mask, samples, g.tokenizer.PadTokenID())

	var bar *progressbar.ProgressBar
	if g.progress {
		bar = progressbar.NewOptions(g.maxTokens,
			progressbar.OptionSetDescription("generating"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
		)
	}

	var state State
	for step := 0; ; step++ {
		if b.allFinished() || b.numGenerated() == g.maxTokens {
			break
		}

		active := b.activeRows()
		activeIDs, activeMask := b.gather(active)

		logits, nextState, err := g.model.Forward(activeIDs, activeMask, state)
		if err != nil {
			return nil, fmt.Errorf("forward pass at step %d: %w", step, err)
		}
		checkLogits(logits, len(active))

		logits = g.strategy.Proposal(b.generatedRows(active), logits)
		checkLogits(logits, len(active))
		probs := tensor.Softmax(logits)

		sampled := Categorical(rng, probs, 1)

		next := make([]int, len(active))
		copy(next, sampled.Data)
		b.appendColumn(active, next)

		done := g.strategy.Finished(b.generatedRows(active))
		kept := b.markFinished(active, done)

		// Prune the cache to the rows still active after this step's
		// finish determinations, so the next forward call's state rows
		// line up with the next active slice.
		if nextState != nil {
			state = nextState.Select(kept)
		} else {
			state = nil
		}

		klog.V(2).Infof("step %d: %d active rows, %d kept, %d tokens generated",
			step, len(active), len(kept), b.numGenerated())
		if bar != nil {
			_ = bar.Add(1)
		}
	}

	if bar != nil {
		_ = bar.Finish()
	}

	completions, err := g.tokenizer.Decode(b.generatedAll())
	if err != nil {
		return nil, fmt.Errorf("decode completions: %w", err)
	}
	if len(completions) != b.rows {
		return nil, fmt.Errorf("tokenizer decoded %d rows, want %d", len(completions), b.rows)
	}

	return g.strategy.Postprocess(completions), nil
}

// checkLogits panics when model or proposal output does not line up
// with the active rows. A mismatch is an integration bug, not a runtime
// condition the caller can recover from.
func checkLogits(logits *tensor.Tensor, rows int) {
	if logits == nil || len(logits.Shape) != 2 {
		panic("seqgen: logits must have shape (rows, vocab)")
	}
	if logits.Shape[0] != rows {
		panic(fmt.Sprintf("seqgen: logits have %d rows, active batch has %d", logits.Shape[0], rows))
	}
}
