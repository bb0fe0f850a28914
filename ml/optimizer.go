package ml

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// AdaGrad applies the per-record updates for one worker. Each worker owns its own
// AdaGrad because the update scratch buffers are reused record to record.
type AdaGrad struct {
	LearningRate float64

	dim        int
	upd1, upd2 []float64 // scratch: word and context embedding updates
}

func NewAdaGrad(lr float64, dim int) *AdaGrad {
	return &AdaGrad{
		LearningRate: lr,
		dim:          dim,
		upd1:         make([]float64, dim),
		upd2:         make([]float64, dim),
	}
}

// Step updates the word row at offset l1 and the context row at offset l2 of w, using and
// growing the matching entries of g. fdiff is the weighted residual f(x)*diff before the
// learning rate is applied.
//
// The embedding update is dropped as a whole when either update sum is not finite, but the
// squared gradients are still accumulated. A non-finite bias update is replaced by zero.
// Step returns the number of such recoveries.
func (opt *AdaGrad) Step(w, g []float64, l1, l2 int, fdiff float64) int {
	d := opt.dim
	w1 := w[l1 : l1+d+1 : l1+d+1]
	w2 := w[l2 : l2+d+1 : l2+d+1]
	g1 := g[l1 : l1+d+1 : l1+d+1]
	g2 := g[l2 : l2+d+1 : l2+d+1]

	recovered := 0
	fdiff *= opt.LearningRate

	// 1. Embedding components
	var sum1, sum2 float64
	for b := 0; b < d; b++ {
		temp1 := fdiff * w2[b]
		temp2 := fdiff * w1[b]
		opt.upd1[b] = temp1 / math.Sqrt(g1[b])
		opt.upd2[b] = temp2 / math.Sqrt(g2[b])
		sum1 += opt.upd1[b]
		sum2 += opt.upd2[b]
		g1[b] += temp1 * temp1
		g2[b] += temp2 * temp2
	}
	if finite(sum1) && finite(sum2) {
		floats.Sub(w1[:d], opt.upd1)
		floats.Sub(w2[:d], opt.upd2)
	} else {
		recovered++
	}

	// 2. Bias terms
	u1 := fdiff / math.Sqrt(g1[d])
	if !finite(u1) {
		u1 = 0
		recovered++
	}
	u2 := fdiff / math.Sqrt(g2[d])
	if !finite(u2) {
		u2 = 0
		recovered++
	}
	w1[d] -= u1
	w2[d] -= u2

	fdiff *= fdiff
	g1[d] += fdiff
	g2[d] += fdiff

	return recovered
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
