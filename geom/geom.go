// Package geom holds small geometric-clustering helpers shared by the
// scorer (layoutConsistency signal) and the pattern recognizer (layout
// classification), so both operate on the same row/column grouping logic
// rather than duplicating it.
package geom

import "sort"

// Cluster groups sorted positions so that any two consecutive members of
// the same group are within tolerance of each other (single-linkage).
func Cluster(values []float64, tolerance float64) [][]float64 {
	if len(values) == 0 {
		return nil
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	groups := [][]float64{{sorted[0]}}
	for _, v := range sorted[1:] {
		last := groups[len(groups)-1]
		if v-last[len(last)-1] <= tolerance {
			groups[len(groups)-1] = append(last, v)
		} else {
			groups = append(groups, []float64{v})
		}
	}
	return groups
}

// Variance returns the population variance of xs, 0 for fewer than 2
// samples.
func Variance(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var mean float64
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))

	var sumSq float64
	for _, x := range xs {
		d := x - mean
		sumSq += d * d
	}
	return sumSq / float64(len(xs))
}

// ClusterSizeVariance clusters values and returns the variance of the
// resulting group sizes — the "row_variance"/"col_variance" terms in the
// spec's Grid consistency formula.
func ClusterSizeVariance(values []float64, tolerance float64) (groups [][]float64, sizeVariance float64) {
	groups = Cluster(values, tolerance)
	sizes := make([]float64, len(groups))
	for i, g := range groups {
		sizes[i] = float64(len(g))
	}
	return groups, Variance(sizes)
}
