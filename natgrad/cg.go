package natgrad

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// CG approximately solves A x = b for symmetric positive-definite A supplied
// as a matrix-free operator, by conjugate gradients from a zero initial
// guess.  It stops when the residual norm drops below tol*|b| or after
// maxiter iterations, whichever comes first, and reports which happened.  A
// singular or indefinite operator (non-positive curvature along a search
// direction) stops the iteration immediately with converged == false rather
// than producing NaNs - the caller falls back to a rescaled gradient.
func CG(apply Op, b []float64, maxiter int, tol float64) (x []float64, iters int, converged bool) {
	x = make([]float64, len(b))
	bnorm := floats.Norm(b, 2)
	if bnorm == 0 {
		return x, 0, true
	}

	r := append([]float64{}, b...)
	p := append([]float64{}, b...)
	rs := floats.Dot(r, r)

	for k := 0; k < maxiter; k++ {
		Ap := apply(p)
		den := floats.Dot(p, Ap)
		if den <= 0 || math.IsNaN(den) || math.IsInf(den, 0) {
			return x, k, false
		}

		alpha := rs / den
		floats.AddScaled(x, alpha, p)
		floats.AddScaled(r, -alpha, Ap)

		rs2 := floats.Dot(r, r)
		if math.Sqrt(rs2) <= tol*bnorm {
			return x, k + 1, true
		}
		beta := rs2 / rs
		for i := range p {
			p[i] = r[i] + beta*p[i]
		}
		rs = rs2
	}
	return x, maxiter, false
}
