package residency

// RunningAverage keeps an incrementally updated arithmetic mean without
// storing the observed values.
type RunningAverage struct {
	count int
	mean  float64
}

// Update folds a new value into the mean using the weighted form
// new = old*(n-1)/n + value*1/n, which keeps intermediate magnitudes close
// to the data.
func (a *RunningAverage) Update(value float64) {
	a.count++
	n := float64(a.count)
	a.mean = a.mean*((n-1)/n) + value/n
}

// Value returns the current mean, zero before any update.
func (a *RunningAverage) Value() float64 {
	return a.mean
}

// Count returns the number of observed values.
func (a *RunningAverage) Count() int {
	return a.count
}
