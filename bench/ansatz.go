package bench

import "math"

// Gaussian is the isotropic gaussian ansatz
//
//	log|psi| = -1/2 sum_j a_j x_j^2
//
// with one width parameter per coordinate.  On the harmonic oscillator it
// contains the exact ground state at a_j = 1, where the local energy becomes
// the constant NDim/2 with zero variance.
type Gaussian struct{}

func (Gaussian) LogPsi(params, x []float64) (logpsi, sign float64) {
	l := 0.0
	for j, v := range x {
		l -= 0.5 * params[j] * v * v
	}
	return l, 1
}

func (Gaussian) GradLog(params, x []float64) []float64 {
	g := make([]float64, len(x))
	for j, v := range x {
		g[j] = -params[j] * v
	}
	return g
}

func (Gaussian) LapLog(params, x []float64) float64 {
	l := 0.0
	for j := range x {
		l -= params[j]
	}
	return l
}

func (Gaussian) Score(params, x []float64) []float64 {
	s := make([]float64, len(params))
	for j, v := range x {
		s[j] = -0.5 * v * v
	}
	return s
}

// Slater is the exponential ansatz log|psi| = -a r with a single decay
// parameter, the hydrogenic ground-state form (exact at a = 1 for the
// Hydrogen system).  Configurations are a single 3D particle.
type Slater struct{}

func (Slater) LogPsi(params, x []float64) (logpsi, sign float64) {
	return -params[0] * norm(x), 1
}

func (Slater) GradLog(params, x []float64) []float64 {
	r := norm(x)
	g := make([]float64, len(x))
	for j, v := range x {
		g[j] = -params[0] * v / r
	}
	return g
}

func (Slater) LapLog(params, x []float64) float64 {
	// laplacian of -a*r in d dimensions is -a(d-1)/r
	return -params[0] * float64(len(x)-1) / norm(x)
}

func (Slater) Score(params, x []float64) []float64 {
	return []float64{-norm(x)}
}

func norm(x []float64) float64 {
	tot := 0.0
	for _, v := range x {
		tot += v * v
	}
	return math.Sqrt(tot)
}
