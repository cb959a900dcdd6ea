package tensor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSoftmaxRowsSumToOne(t *testing.T) {
	logits := NewTensor(2, 3, 4)
	for i := range logits.Data {
		logits.Data[i] = float32(i%7) - 3
	}

	probs := Softmax(logits)
	require.Equal(t, []int{2, 3, 4}, probs.Shape)

	for i := 0; i < 6; i++ {
		sum := float32(0)
		for j := 0; j < 4; j++ {
			p := probs.Data[i*4+j]
			assert.GreaterOrEqual(t, p, float32(0))
			sum += p
		}
		assert.InDelta(t, 1.0, float64(sum), 1e-5)
	}
}

func TestSoftmaxMaskedLogits(t *testing.T) {
	logits := NewTensor(1, 4)
	negInf := float32(math.Inf(-1))
	logits.Data = []float32{negInf, 2, negInf, 2}

	probs := Softmax(logits)
	assert.Equal(t, float32(0), probs.At(0, 0))
	assert.Equal(t, float32(0), probs.At(0, 2))
	assert.InDelta(t, 0.5, float64(probs.At(0, 1)), 1e-6)
	assert.InDelta(t, 0.5, float64(probs.At(0, 3)), 1e-6)
}

func TestCumSum(t *testing.T) {
	in := NewTensor(2, 3)
	in.Data = []float32{1, 2, 3, 0.5, 0.25, 0.25}

	got := CumSum(in)
	want := []float32{1, 3, 6, 0.5, 0.75, 1}
	require.Equal(t, len(want), len(got.Data))
	for i := range want {
		assert.InDelta(t, float64(want[i]), float64(got.Data[i]), 1e-6)
	}
}

func TestGatherRows(t *testing.T) {
	in := NewTensor(3, 2)
	in.Data = []float32{0, 1, 10, 11, 20, 21}

	got := Gather(in, []int{2, 0})
	require.Equal(t, []int{2, 2}, got.Shape)
	assert.Equal(t, []float32{20, 21, 0, 1}, got.Data)
}

func TestGatherOutOfRangePanics(t *testing.T) {
	in := NewTensor(2, 2)
	assert.Panics(t, func() { Gather(in, []int{3}) })
}

func TestIntTensorIndexing(t *testing.T) {
	it := NewIntTensor(2, 3)
	it.Set(42, 1, 2)
	assert.Equal(t, 42, it.At(1, 2))
	assert.Equal(t, 6, it.Size())
}

func TestFull(t *testing.T) {
	f := Full(-1, 2, 2)
	assert.Equal(t, []float32{-1, -1, -1, -1}, f.Data)
}
