package seqgen

import (
	"fmt"
	"math"
	"strings"

	"seqgen-go/tensor"
)

// Strategy supplies the per-use-case hooks the generation loop is
// parameterized over: a proposal transform applied to next-token logits
// before normalization, a termination predicate, and a postprocessing
// pass over the decoded completions.
type Strategy interface {
	// Proposal transforms next-token logits before they are normalized
	// into a probability distribution. generated holds the full
	// generated suffix of each active row, aligned with the logits
	// rows. Implementations must preserve the logits shape.
	Proposal(generated [][]int, logits *tensor.Tensor) *tensor.Tensor

	// Finished reports, per active row, whether the row is done, given
	// the full generated suffix of that row. The loop applies the flags
	// monotonically.
	Finished(generated [][]int) []bool

	// Postprocess cleans up decoded completions before they are
	// returned to the caller.
	Postprocess(completions []string) []string
}

// StopAtToken finishes a row once its latest generated token is one of
// the stop ids. Proposal and postprocessing are identity.
type StopAtToken struct {
	Stop []int
}

// StopAt builds a StopAtToken strategy for the given stop token ids.
func StopAt(ids ...int) *StopAtToken {
	return &StopAtToken{Stop: ids}
}

func (s *StopAtToken) Proposal(_ [][]int, logits *tensor.Tensor) *tensor.Tensor {
	return logits
}

func (s *StopAtToken) Finished(generated [][]int) []bool {
	done := make([]bool, len(generated))
	for i, row := range generated {
		if len(row) == 0 {
			continue
		}
		last := row[len(row)-1]
		for _, id := range s.Stop {
			if last == id {
				done[i] = true
				break
			}
		}
	}
	return done
}

func (s *StopAtToken) Postprocess(completions []string) []string {
	return completions
}

// StopAtText finishes a row once its decoded completion contains the
// stop text, and trims completions at that text. It needs a Tokenizer
// to decode the generated suffix during the termination check.
type StopAtText struct {
	Text      string
	Tokenizer Tokenizer
}

func (s *StopAtText) Proposal(_ [][]int, logits *tensor.Tensor) *tensor.Tensor {
	return logits
}

func (s *StopAtText) Finished(generated [][]int) []bool {
	texts, err := s.Tokenizer.Decode(generated)
	if err != nil {
		// A tokenizer that cannot decode its own output is a broken
		// integration, not a runtime condition.
		panic(fmt.Sprintf("seqgen: decode during termination check: %v", err))
	}
	done := make([]bool, len(generated))
	for i, text := range texts {
		done[i] = strings.Contains(text, s.Text)
	}
	return done
}

func (s *StopAtText) Postprocess(completions []string) []string {
	out := make([]string, len(completions))
	for i, c := range completions {
		if idx := strings.Index(c, s.Text); idx >= 0 {
			c = c[:idx]
		}
		out[i] = c
	}
	return out
}

// MaskedVocab restricts sampling to an allowed token set by masking
// every other logit to -Inf, then delegates to an inner strategy. The
// allowed set must include the inner strategy's stop tokens or the
// caller must bound generation with a token budget.
type MaskedVocab struct {
	Allowed []int
	Inner   Strategy
}

func (m *MaskedVocab) Proposal(generated [][]int, logits *tensor.Tensor) *tensor.Tensor {
	rows, vocab := logits.Shape[0], logits.Shape[1]
	masked := tensor.Full(float32(math.Inf(-1)), logits.Shape...)
	for r := 0; r < rows; r++ {
		for _, id := range m.Allowed {
			if id >= 0 && id < vocab {
				masked.Data[r*vocab+id] = logits.Data[r*vocab+id]
			}
		}
	}
	return m.Inner.Proposal(generated, masked)
}

func (m *MaskedVocab) Finished(generated [][]int) []bool {
	return m.Inner.Finished(generated)
}

func (m *MaskedVocab) Postprocess(completions []string) []string {
	return m.Inner.Postprocess(completions)
}
