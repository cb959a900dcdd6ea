package tensor

import (
	"fmt"
	"math"
)

// Tensor is a dense float32 array with row-major layout.
type Tensor struct {
	Data  []float32
	Shape []int
}

// NewTensor creates a zero-filled tensor with the given shape.
func NewTensor(shape ...int) *Tensor {
	size := 1
	for _, dim := range shape {
		size *= dim
	}
	return &Tensor{
		Data:  make([]float32, size),
		Shape: shape,
	}
}

// Full creates a tensor with every element set to value.
func Full(value float32, shape ...int) *Tensor {
	t := NewTensor(shape...)
	for i := range t.Data {
		t.Data[i] = value
	}
	return t
}

// Size returns the total number of elements.
func (t *Tensor) Size() int {
	size := 1
	for _, dim := range t.Shape {
		size *= dim
	}
	return size
}

// At returns the element at the given indices.
func (t *Tensor) At(indices ...int) float32 {
	return t.Data[flatIndex(t.Shape, indices)]
}

// Set sets the element at the given indices.
func (t *Tensor) Set(val float32, indices ...int) {
	t.Data[flatIndex(t.Shape, indices)] = val
}

func flatIndex(shape, indices []int) int {
	if len(indices) != len(shape) {
		panic(fmt.Sprintf("wrong number of indices: got %d, want %d", len(indices), len(shape)))
	}
	idx := 0
	stride := 1
	for i := len(indices) - 1; i >= 0; i-- {
		idx += indices[i] * stride
		stride *= shape[i]
	}
	return idx
}

// lastAxis returns the length of the last axis and the number of
// positions in the leading axes.
func lastAxis(t *Tensor) (inner, outer int) {
	if len(t.Shape) == 0 {
		panic("tensor must have at least one axis")
	}
	inner = t.Shape[len(t.Shape)-1]
	if inner == 0 {
		panic("last axis must be non-empty")
	}
	return inner, t.Size() / inner
}

// Softmax normalizes the last axis of t to a probability distribution,
// for tensors of any rank.
func Softmax(t *Tensor) *Tensor {
	inner, outer := lastAxis(t)
	result := NewTensor(t.Shape...)

	for i := 0; i < outer; i++ {
		offset := i * inner

		// Subtract the row max for numerical stability.
		maxVal := t.Data[offset]
		for j := 1; j < inner; j++ {
			if t.Data[offset+j] > maxVal {
				maxVal = t.Data[offset+j]
			}
		}

		sum := float32(0)
		for j := 0; j < inner; j++ {
			val := float32(math.Exp(float64(t.Data[offset+j] - maxVal)))
			result.Data[offset+j] = val
			sum += val
		}

		for j := 0; j < inner; j++ {
			result.Data[offset+j] /= sum
		}
	}

	return result
}

// CumSum computes the running sum along the last axis of t, for tensors
// of any rank.
func CumSum(t *Tensor) *Tensor {
	inner, outer := lastAxis(t)
	result := NewTensor(t.Shape...)

	for i := 0; i < outer; i++ {
		offset := i * inner
		sum := float32(0)
		for j := 0; j < inner; j++ {
			sum += t.Data[offset+j]
			result.Data[offset+j] = sum
		}
	}

	return result
}

// Gather selects rows along the first axis, in the order given.
func Gather(t *Tensor, rows []int) *Tensor {
	if len(t.Shape) < 1 {
		panic("cannot gather rows of a scalar")
	}

	stride := 1
	for i := 1; i < len(t.Shape); i++ {
		stride *= t.Shape[i]
	}

	newShape := make([]int, len(t.Shape))
	newShape[0] = len(rows)
	copy(newShape[1:], t.Shape[1:])

	result := NewTensor(newShape...)
	for i, r := range rows {
		if r < 0 || r >= t.Shape[0] {
			panic(fmt.Sprintf("row %d out of range [0, %d)", r, t.Shape[0]))
		}
		copy(result.Data[i*stride:(i+1)*stride], t.Data[r*stride:(r+1)*stride])
	}
	return result
}

// IntTensor is a dense integer array with row-major layout, used for
// token ids and sampled category indices.
type IntTensor struct {
	Data  []int
	Shape []int
}

// NewIntTensor creates a zero-filled integer tensor with the given shape.
func NewIntTensor(shape ...int) *IntTensor {
	size := 1
	for _, dim := range shape {
		size *= dim
	}
	return &IntTensor{
		Data:  make([]int, size),
		Shape: shape,
	}
}

// Size returns the total number of elements.
func (t *IntTensor) Size() int {
	size := 1
	for _, dim := range t.Shape {
		size *= dim
	}
	return size
}

// At returns the element at the given indices.
func (t *IntTensor) At(indices ...int) int {
	return t.Data[flatIndex(t.Shape, indices)]
}

// Set sets the element at the given indices.
func (t *IntTensor) Set(val int, indices ...int) {
	t.Data[flatIndex(t.Shape, indices)] = val
}
