package model

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// distanceFloor absorbs rounding in the cosine of identical rows.
const distanceFloor = 1e-12

// HeuristicScorer scores position t by the cosine distance between encoded
// rows t-1 and t, so positions where the representation shifts score higher.
// It needs no learned parameters beyond the encoder's.
type HeuristicScorer struct{}

// Score returns the adjacent-row cosine distances normalized to sum to 1.
// Position 0 has no predecessor and scores 0.
func (HeuristicScorer) Score(encoded *mat.Dense) ([]float64, error) {
	n, _ := encoded.Dims()
	if n <= 1 {
		return nil, ErrSequenceTooShort
	}

	scores := make([]float64, n)
	for t := 1; t < n; t++ {
		prev, cur := encoded.RawRowView(t-1), encoded.RawRowView(t)
		denom := floats.Norm(prev, 2) * floats.Norm(cur, 2)
		if denom == 0 {
			continue
		}
		cos := floats.Dot(prev, cur) / denom
		if d := 1 - cos; d > distanceFloor {
			scores[t] = d
		}
	}

	sum := floats.Sum(scores)
	if sum == 0 {
		for i := range scores {
			scores[i] = 1 / float64(n)
		}
		return scores, nil
	}
	floats.Scale(1/sum, scores)
	return scores, nil
}
