package stats

// Summary is a count-weighted (count, mean, variance) triple
type Summary struct {
	Count    float64 `json:"count"`
	Mean     float64 `json:"mean"`
	Variance float64 `json:"variance"`
}

// Summarize reduces values to a Summary in a single pass (Welford).
func Summarize(values []float64) Summary {
	var (
		n    float64
		mean float64
		m2   float64
	)
	for _, v := range values {
		n++
		delta := v - mean
		mean += delta / n
		m2 += delta * (v - mean)
	}
	if n == 0 {
		return Summary{}
	}
	return Summary{Count: n, Mean: mean, Variance: m2 / n}
}

// Merge combines two summaries as if their underlying samples were pooled.
func (s Summary) Merge(o Summary) Summary {
	return Summary{
		Count:    CombineSums(s.Count, o.Count),
		Mean:     CombineMeans(s.Mean, s.Count, o.Mean, o.Count),
		Variance: CombineVariances(s.Mean, s.Variance, s.Count, o.Mean, o.Variance, o.Count),
	}
}
