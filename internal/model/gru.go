package model

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// gruCell holds one direction of GRU parameters. Gate rows are stacked in
// reset, update, new order: rows [0,H) reset, [H,2H) update, [2H,3H) new.
type gruCell struct {
	input  int
	hidden int
	wIH    *mat.Dense // 3H x input
	wHH    *mat.Dense // 3H x H
	bIH    []float64  // 3H
	bHH    []float64  // 3H
}

func newGRUCell(input, hidden int, rng *rand.Rand) *gruCell {
	bound := 1 / math.Sqrt(float64(hidden))
	return &gruCell{
		input:  input,
		hidden: hidden,
		wIH:    uniformDense(3*hidden, input, bound, rng),
		wHH:    uniformDense(3*hidden, hidden, bound, rng),
		bIH:    uniformSlice(3*hidden, bound, rng),
		bHH:    uniformSlice(3*hidden, bound, rng),
	}
}

// inputGates projects every row of x through the input weights at once,
// returning n x 3H including the input bias.
func (c *gruCell) inputGates(x mat.Matrix) *mat.Dense {
	var gi mat.Dense
	gi.Mul(x, c.wIH.T())
	n, _ := gi.Dims()
	for i := 0; i < n; i++ {
		row := gi.RawRowView(i)
		for j, b := range c.bIH {
			row[j] += b
		}
	}
	return &gi
}

// step advances the hidden state h by one position given that position's
// precomputed input gates gi (length 3H). h is updated in place.
func (c *gruCell) step(gi []float64, h []float64, scratch *mat.VecDense) {
	H := c.hidden
	scratch.MulVec(c.wHH, mat.NewVecDense(H, h))

	for j := 0; j < H; j++ {
		ghR := scratch.AtVec(j) + c.bHH[j]
		ghZ := scratch.AtVec(H+j) + c.bHH[H+j]
		ghN := scratch.AtVec(2*H+j) + c.bHH[2*H+j]

		r := sigmoid(gi[j] + ghR)
		z := sigmoid(gi[H+j] + ghZ)
		n := math.Tanh(gi[2*H+j] + r*ghN)
		h[j] = (1-z)*n + z*h[j]
	}
}

// stepFrom runs a single step from a zero hidden state on input x.
func (c *gruCell) stepFrom(x []float64) []float64 {
	gi := c.inputGates(mat.NewDense(1, len(x), x)).RawRowView(0)
	h := make([]float64, c.hidden)
	c.step(gi, h, mat.NewVecDense(3*c.hidden, nil))
	return h
}

// BiGRU is a single-layer bidirectional GRU encoder.
type BiGRU struct {
	forward  *gruCell
	backward *gruCell
}

func newBiGRU(input, hidden int, rng *rand.Rand) *BiGRU {
	return &BiGRU{
		forward:  newGRUCell(input, hidden, rng),
		backward: newGRUCell(input, hidden, rng),
	}
}

// InputDim returns the expected feature width.
func (e *BiGRU) InputDim() int { return e.forward.input }

// OutputDim returns the encoded width, twice the hidden size.
func (e *BiGRU) OutputDim() int { return 2 * e.forward.hidden }

// Encode runs both directions over x (n x inputDim) from zero state and
// returns n x 2H with the forward state in columns [0,H) and the backward
// state in columns [H,2H).
func (e *BiGRU) Encode(x *mat.Dense) (*mat.Dense, error) {
	n, cols := x.Dims()
	if cols != e.forward.input {
		return nil, fmt.Errorf("encode: feature width %d, want %d: %w", cols, e.forward.input, ErrDimensionMismatch)
	}
	H := e.forward.hidden
	out := mat.NewDense(n, 2*H, nil)

	e.run(e.forward, x, out, 0, false)
	e.run(e.backward, x, out, H, true)
	return out, nil
}

func (e *BiGRU) run(c *gruCell, x *mat.Dense, out *mat.Dense, col int, reverse bool) {
	n, _ := x.Dims()
	gi := c.inputGates(x)
	h := make([]float64, c.hidden)
	scratch := mat.NewVecDense(3*c.hidden, nil)

	for k := 0; k < n; k++ {
		t := k
		if reverse {
			t = n - 1 - k
		}
		c.step(gi.RawRowView(t), h, scratch)
		copy(out.RawRowView(t)[col:col+c.hidden], h)
	}
}
