package stats

// CombineSums adds two partial sums (counters, distances, calories)
func CombineSums(a, b float64) float64 {
	return a + b
}

// CombineMeans returns the count-weighted mean of two partial means.
// Returns 0 when both counts are 0.
func CombineMeans(meanA, countA, meanB, countB float64) float64 {
	n := countA + countB
	if n == 0 {
		return 0
	}
	return (meanA*countA + meanB*countB) / n
}

// CombineVariances merges two population variances using the parallel
// sum-of-squared-deviations identity (Chan et al.):
//
//	M2 = M2a + M2b + delta^2 * na*nb / (na+nb)
//	var = M2 / (na+nb)
func CombineVariances(meanA, varA, countA, meanB, varB, countB float64) float64 {
	n := countA + countB
	if n == 0 {
		return 0
	}
	delta := meanA - meanB
	m2 := varA*countA + varB*countB + delta*delta*countA*countB/n
	return m2 / n
}
