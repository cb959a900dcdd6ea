package seqgen

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seqgen-go/tensor"
)

// scriptedModel emits a point-mass distribution per row, chosen by the
// next hook from the row's full token ids. It records what the loop
// hands it so tests can check the batching and pruning invariants.
type scriptedModel struct {
	vocab     int
	next      func(row []int) int
	withState bool

	calls     int
	inputRows []int
	stateRows []int // state.Rows() per call, -1 when nil
}

func (m *scriptedModel) Forward(tokenIDs, attentionMask [][]int, state State) (*tensor.Tensor, State, error) {
	m.calls++
	m.inputRows = append(m.inputRows, len(tokenIDs))
	if state == nil {
		m.stateRows = append(m.stateRows, -1)
	} else {
		m.stateRows = append(m.stateRows, state.Rows())
	}

	rows := len(tokenIDs)
	logits := tensor.Full(float32(math.Inf(-1)), rows, m.vocab)
	for i, row := range tokenIDs {
		logits.Set(0, i, m.next(row))
	}

	var st State
	if m.withState {
		cache := NewKVCache(1)
		seqLen := len(tokenIDs[0])
		cache.SetLayer(0, tensor.NewTensor(rows, 1, seqLen, 2), tensor.NewTensor(rows, 1, seqLen, 2))
		st = cache
	}
	return logits, st, nil
}

// echo repeats the row's last token forever.
func echo(row []int) int {
	return row[len(row)-1]
}

// stopImmediately finishes every row after its first generated token.
type stopImmediately struct{}

func (stopImmediately) Proposal(_ [][]int, logits *tensor.Tensor) *tensor.Tensor { return logits }

func (stopImmediately) Finished(generated [][]int) []bool {
	done := make([]bool, len(generated))
	for i, row := range generated {
		done[i] = len(row) > 0
	}
	return done
}

func (stopImmediately) Postprocess(completions []string) []string { return completions }

func TestGenerateMaxTokensZero(t *testing.T) {
	model := &scriptedModel{vocab: 256, next: echo}
	gen := NewGenerator(model, NewMockTokenizer(), StopAt(1), WithMaxTokens(0))

	out, err := gen.Generate([]string{"hello"}, 1, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	require.Equal(t, []string{""}, out)
	assert.Equal(t, 0, model.calls, "zero token budget must not run the model")
}

func TestGenerateSamplesSinglePrompt(t *testing.T) {
	model := &scriptedModel{vocab: 256, next: echo}
	gen := NewGenerator(model, NewMockTokenizer(), stopImmediately{})

	out, err := gen.Generate([]string{"hi"}, 3, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	require.Len(t, out, 3)
	for _, c := range out {
		assert.Equal(t, "i", c, "each sample holds exactly one generated token")
	}
}

func TestGeneratePromptMajorSampleMinorOrder(t *testing.T) {
	model := &scriptedModel{vocab: 256, next: echo}
	gen := NewGenerator(model, NewMockTokenizer(), stopImmediately{})

	out, err := gen.Generate([]string{"ab", "cd"}, 2, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	require.Equal(t, []string{"b", "b", "d", "d"}, out)
}

func TestGenerateFinishedRowsFrozen(t *testing.T) {
	stop := int('!') + 1
	x := int('x') + 1
	aTok := int('a') + 1

	model := &scriptedModel{
		vocab: 256,
		next: func(row []int) int {
			if row[0] == aTok {
				return stop
			}
			if len(row)-1 < 2 {
				return x
			}
			return stop
		},
	}
	gen := NewGenerator(model, NewMockTokenizer(), StopAt(stop))

	out, err := gen.Generate([]string{"a", "b"}, 1, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	require.Len(t, out, 2)

	// Row 0 finished at the first step; three more iterations ran for
	// row 1 without touching row 0's content beyond padding.
	assert.Equal(t, "!", out[0])
	assert.Equal(t, "xx!", out[1])
	assert.Equal(t, []int{2, 1, 1}, model.inputRows)
}

func TestGenerateStatePruning(t *testing.T) {
	stop := 200
	model := &scriptedModel{
		vocab:     256,
		withState: true,
		next: func(row []int) int {
			// The row whose prompt token is smallest stops first.
			if row[0] == int('a')+1 || len(row)-1 >= 3 {
				return stop
			}
			return 150
		},
	}
	gen := NewGenerator(model, NewMockTokenizer(), StopAt(stop))

	_, err := gen.Generate([]string{"a", "b", "c"}, 1, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	require.Greater(t, model.calls, 1)
	assert.Equal(t, -1, model.stateRows[0], "first call carries no state")
	for i := 1; i < model.calls; i++ {
		assert.Equal(t, model.inputRows[i], model.stateRows[i],
			"call %d: state rows must equal active rows", i)
	}
}

func TestGenerateDeterministicWithSeed(t *testing.T) {
	gen := NewGenerator(NewMockModel(64), NewMockTokenizer(), StopAt(-1), WithMaxTokens(8))

	first, err := gen.Generate([]string{"seed test"}, 2, rand.New(rand.NewSource(42)))
	require.NoError(t, err)
	second, err := gen.Generate([]string{"seed test"}, 2, rand.New(rand.NewSource(42)))
	require.NoError(t, err)
	assert.Equal(t, first, second)

	third, err := gen.Generate([]string{"seed test"}, 2, rand.New(rand.NewSource(43)))
	require.NoError(t, err)
	assert.NotEqual(t, first, third)
}

func TestComplete(t *testing.T) {
	model := &scriptedModel{vocab: 256, next: echo}
	gen := NewGenerator(model, NewMockTokenizer(), stopImmediately{})

	out, err := gen.Complete("go", rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.Equal(t, "o", out)
}

func TestNewGeneratorValidation(t *testing.T) {
	model := &scriptedModel{vocab: 256, next: echo}
	tok := NewMockTokenizer()

	assert.Panics(t, func() { NewGenerator(nil, tok, stopImmediately{}) })
	assert.Panics(t, func() { NewGenerator(model, nil, stopImmediately{}) })
	assert.Panics(t, func() { NewGenerator(model, tok, nil) })
}

func TestGenerateArgumentValidation(t *testing.T) {
	gen := NewGenerator(&scriptedModel{vocab: 256, next: echo}, NewMockTokenizer(), stopImmediately{})

	_, err := gen.Generate(nil, 1, nil)
	assert.Error(t, err)

	_, err = gen.Generate([]string{"x"}, 0, nil)
	assert.Error(t, err)
}

type failingModel struct{}

func (failingModel) Forward([][]int, [][]int, State) (*tensor.Tensor, State, error) {
	return nil, nil, fmt.Errorf("device lost")
}

func TestGenerateForwardErrorAborts(t *testing.T) {
	gen := NewGenerator(failingModel{}, NewMockTokenizer(), stopImmediately{})

	out, err := gen.Generate([]string{"x"}, 1, rand.New(rand.NewSource(1)))
	require.Error(t, err)
	assert.Nil(t, out, "no partial results on failure")
	assert.ErrorContains(t, err, "device lost")
}

type wrongShapeModel struct{}

func (wrongShapeModel) Forward(tokenIDs [][]int, _ [][]int, _ State) (*tensor.Tensor, State, error) {
	return tensor.NewTensor(len(tokenIDs)+1, 16), nil, nil
}

func TestGenerateLogitsShapeMismatchPanics(t *testing.T) {
	gen := NewGenerator(wrongShapeModel{}, NewMockTokenizer(), stopImmediately{})

	assert.Panics(t, func() {
		_, _ = gen.Generate([]string{"x"}, 1, rand.New(rand.NewSource(1)))
	})
}
