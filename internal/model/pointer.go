package model

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// pointer computes v . tanh(W1 e_t + W2 d) for every encoder row e_t.
type pointer struct {
	w1 *linear // 2H -> H
	w2 *linear // H -> H
	v  *linear // H -> 1, no bias
}

func newPointer(encoderDim, decoderDim int, rng *rand.Rand) *pointer {
	return &pointer{
		w1: newLinear(encoderDim, decoderDim, true, rng),
		w2: newLinear(decoderDim, decoderDim, true, rng),
		v:  newLinear(decoderDim, 1, false, rng),
	}
}

func (p *pointer) logits(encoded *mat.Dense, state []float64) []float64 {
	proj := p.w1.forward(encoded)
	query := p.w2.forwardVec(state)
	v := p.v.w.RawRowView(0)

	n, _ := proj.Dims()
	scores := make([]float64, n)
	for t := 0; t < n; t++ {
		row := proj.RawRowView(t)
		var s float64
		for j, a := range row {
			s += v[j] * math.Tanh(a+query[j])
		}
		scores[t] = s
	}
	return scores
}

// PointerScorer scores each encoded position against a single decoder state.
// The decoder state is one GRU step from a zero hidden state, fed the encoder
// output at the configured start unit.
type PointerScorer struct {
	decoder   *gruCell
	pointer   *pointer
	startUnit int
}

// StartUnit returns the encoder position that seeds the decoder.
func (s *PointerScorer) StartUnit() int { return s.startUnit }

// Score returns a softmax distribution over the rows of encoded.
func (s *PointerScorer) Score(encoded *mat.Dense) ([]float64, error) {
	n, cols := encoded.Dims()
	if n <= 1 {
		return nil, ErrSequenceTooShort
	}
	if cols != s.decoder.input {
		return nil, fmt.Errorf("score: encoded width %d, want %d: %w", cols, s.decoder.input, ErrDimensionMismatch)
	}
	if s.startUnit >= n {
		return nil, fmt.Errorf("start unit %d with %d positions: %w", s.startUnit, n, ErrStartUnitOutOfRange)
	}

	state := s.decoder.stepFrom(encoded.RawRowView(s.startUnit))
	return Softmax(s.pointer.logits(encoded, state)), nil
}
