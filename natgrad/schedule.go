package natgrad

// Schedule maps a step count to a learning rate.
type Schedule func(step int) float64

// Const returns a flat schedule.
func Const(lr float64) Schedule {
	return func(int) float64 { return lr }
}

// InvDecay returns the inverse-time schedule lr0 / (1 + step/delay).
func InvDecay(lr0, delay float64) Schedule {
	return func(step int) float64 {
		return lr0 / (1 + float64(step)/delay)
	}
}

// Apply returns a fresh parameter vector params - lr*delta.  The input is
// never mutated - evaluators holding the old snapshot keep seeing it.
func Apply(params, delta []float64, lr float64) []float64 {
	out := make([]float64, len(params))
	for i := range out {
		out[i] = params[i] - lr*delta[i]
	}
	return out
}
