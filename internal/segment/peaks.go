package segment

import "sort"

const (
	// PeakHeight is the minimum normalized score for a boundary candidate.
	PeakHeight = 0.5
	// PeakDistance is the minimum index separation between accepted peaks.
	PeakDistance = 5
)

// Normalize rescales scores to [0,1] by (x-min)/(max-min). The second return
// is false when the profile is flat (max == min) or empty; the returned slice
// is then nil.
func Normalize(scores []float64) ([]float64, bool) {
	if len(scores) == 0 {
		return nil, false
	}
	lo, hi := scores[0], scores[0]
	for _, v := range scores[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if hi == lo {
		return nil, false
	}

	out := make([]float64, len(scores))
	span := hi - lo
	for i, v := range scores {
		out[i] = (v - lo) / span
	}
	return out, true
}

// FindPeaks returns the indices of local maxima in x whose value is at least
// height and that are at least distance positions from any higher accepted
// peak. A flat-topped peak is reported at the middle of its plateau (left
// middle for even widths). The first and last samples are never peaks.
// Indices are returned in increasing order.
func FindPeaks(x []float64, height float64, distance int) []int {
	var peaks []int
	for _, p := range localMaxima(x) {
		if x[p] >= height {
			peaks = append(peaks, p)
		}
	}
	if distance > 1 && len(peaks) > 1 {
		peaks = selectByDistance(peaks, x, distance)
	}
	return peaks
}

// ExtractBoundaries normalizes scores and finds boundary peaks with the
// package height and distance. The bool is false for a flat profile, in
// which case no peak search runs.
func ExtractBoundaries(scores []float64) ([]int, bool) {
	norm, ok := Normalize(scores)
	if !ok {
		return nil, false
	}
	return FindPeaks(norm, PeakHeight, PeakDistance), true
}

func localMaxima(x []float64) []int {
	var peaks []int
	last := len(x) - 1
	i := 1
	for i < last {
		if x[i-1] < x[i] {
			ahead := i + 1
			for ahead < last && x[ahead] == x[i] {
				ahead++
			}
			if x[ahead] < x[i] {
				left, right := i, ahead-1
				peaks = append(peaks, (left+right)/2)
				i = ahead
			}
		}
		i++
	}
	return peaks
}

// selectByDistance keeps peaks in order of decreasing height, discarding any
// peak closer than distance to one already kept.
func selectByDistance(peaks []int, x []float64, distance int) []int {
	order := make([]int, len(peaks))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return x[peaks[order[a]]] < x[peaks[order[b]]]
	})

	keep := make([]bool, len(peaks))
	for i := range keep {
		keep[i] = true
	}
	for i := len(order) - 1; i >= 0; i-- {
		j := order[i]
		if !keep[j] {
			continue
		}
		for k := j - 1; k >= 0 && peaks[j]-peaks[k] < distance; k-- {
			keep[k] = false
		}
		for k := j + 1; k < len(peaks) && peaks[k]-peaks[j] < distance; k++ {
			keep[k] = false
		}
	}

	out := peaks[:0]
	for i, p := range peaks {
		if keep[i] {
			out = append(out, p)
		}
	}
	return out
}
