package filter

// LowPass is a first-order IIR low-pass filter with an explicit time
// constant. The time constant can be changed between samples, which the
// drift estimator uses to keep dt meaningful at irregular update rates.
type LowPass struct {
	alpha float64
	out   float64
}

// SetTimeConstant configures the filter for samples dt seconds apart with
// time constant tc seconds.
func (f *LowPass) SetTimeConstant(dt, tc float64) {
	if dt+tc <= 0 {
		f.alpha = 1
		return
	}
	f.alpha = dt / (dt + tc)
}

// Apply folds one sample into the filter and returns the new output.
func (f *LowPass) Apply(sample float64) float64 {
	f.out += (sample - f.out) * f.alpha
	return f.out
}

// Reset forces the filter output.
func (f *LowPass) Reset(v float64) {
	f.out = v
}

// Output returns the current filter output without updating it.
func (f *LowPass) Output() float64 {
	return f.out
}
