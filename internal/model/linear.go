package model

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// linear is an affine layer y = W x + b with W of shape (out x in).
// A nil bias means the layer has no bias term.
type linear struct {
	w    *mat.Dense
	bias []float64
}

// newLinear draws weights and bias from U(-1/sqrt(in), 1/sqrt(in)).
func newLinear(in, out int, withBias bool, rng *rand.Rand) *linear {
	bound := 1 / math.Sqrt(float64(in))
	l := &linear{w: uniformDense(out, in, bound, rng)}
	if withBias {
		l.bias = uniformSlice(out, bound, rng)
	}
	return l
}

// forward applies the layer to every row of x (n x in), returning n x out.
func (l *linear) forward(x mat.Matrix) *mat.Dense {
	var y mat.Dense
	y.Mul(x, l.w.T())
	if l.bias != nil {
		n, _ := y.Dims()
		for i := 0; i < n; i++ {
			row := y.RawRowView(i)
			for j, b := range l.bias {
				row[j] += b
			}
		}
	}
	return &y
}

// forwardVec applies the layer to a single vector.
func (l *linear) forwardVec(x []float64) []float64 {
	out, _ := l.w.Dims()
	var y mat.VecDense
	y.MulVec(l.w, mat.NewVecDense(len(x), x))
	res := make([]float64, out)
	for i := range res {
		res[i] = y.AtVec(i)
		if l.bias != nil {
			res[i] += l.bias[i]
		}
	}
	return res
}

func uniformDense(rows, cols int, bound float64, rng *rand.Rand) *mat.Dense {
	return mat.NewDense(rows, cols, uniformSlice(rows*cols, bound, rng))
}

func uniformSlice(n int, bound float64, rng *rand.Rand) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = (rng.Float64()*2 - 1) * bound
	}
	return s
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// Softmax returns exp(x_i) / sum(exp(x)), computed with max subtraction.
func Softmax(x []float64) []float64 {
	out := make([]float64, len(x))
	if len(x) == 0 {
		return out
	}
	m := x[0]
	for _, v := range x[1:] {
		if v > m {
			m = v
		}
	}
	var sum float64
	for i, v := range x {
		out[i] = math.Exp(v - m)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
