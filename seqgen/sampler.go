package seqgen

import (
	"fmt"
	"math/rand"

	"seqgen-go/tensor"
)

// Categorical draws samples-many independent category indices from
// every distribution in p, whose last axis must hold a normalized
// categorical distribution (non-negative values summing to 1). The
// result has shape (samples,) + p.Shape[:rank-1].
//
// Sampling is inverse-CDF: one uniform draw in [0, 1) per requested
// sample per distribution, resolved to the count of cumulative-sum
// entries below the draw. Because the count saturates at the last
// category whenever the final cumulative sum covers the draw, a draw
// arbitrarily close to 1 still resolves to a valid index as long as the
// distribution is validly normalized. Normalization is a precondition,
// not checked here.
//
// Draws come only from rng, so two calls with identically seeded
// sources return identical indices.
func Categorical(rng *rand.Rand, p *tensor.Tensor, samples int) *tensor.IntTensor {
	if rng == nil {
		panic("seqgen: Categorical requires a random source")
	}
	if samples < 1 {
		panic(fmt.Sprintf("seqgen: samples must be >= 1, got %d", samples))
	}
	if len(p.Shape) == 0 {
		panic("seqgen: probability tensor must have a category axis")
	}

	vocab := p.Shape[len(p.Shape)-1]
	outer := p.Size() / vocab
	cum := tensor.CumSum(p)

	outShape := append([]int{samples}, p.Shape[:len(p.Shape)-1]...)
	out := tensor.NewIntTensor(outShape...)

	for s := 0; s < samples; s++ {
		for k := 0; k < outer; k++ {
			u := rng.Float32()
			idx := 0
			for _, c := range cum.Data[k*vocab : (k+1)*vocab] {
				if c < u {
					idx++
				}
			}
			out.Data[s*outer+k] = idx
		}
	}

	return out
}
