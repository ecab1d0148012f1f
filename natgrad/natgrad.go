// Package natgrad preconditions raw energy gradients with an empirical
// Fisher-information estimate (the covariance of the per-walker score
// vectors), solving the damped system (F + damping I) delta = grad.  Small
// parameter counts solve it exactly via Cholesky on the materialized matrix;
// large ones use conjugate gradients against a matrix-free operator.  The
// damping value is the one piece of optimizer state that persists across
// steps, adapted by a trust-region heuristic.
package natgrad

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

type Option func(*State)

// Damping sets the initial damping added to the Fisher diagonal.
func Damping(v float64) Option {
	return func(st *State) { st.damping = v }
}

// Clamp bounds the adapted damping value.
func Clamp(lo, hi float64) Option {
	return func(st *State) { st.min, st.max = lo, hi }
}

// Factors sets the multiplicative grow/shrink applied when the trust-region
// heuristic finds the last update over- or under-damped.
func Factors(grow, shrink float64) Option {
	return func(st *State) { st.grow, st.shrink = grow, shrink }
}

// Iters caps the conjugate-gradient iteration count.
func Iters(n int) Option {
	return func(st *State) { st.maxiter = n }
}

// Tol sets the relative residual tolerance for the iterative solve.
func Tol(v float64) Option {
	return func(st *State) { st.tol = v }
}

// Dense sets the parameter count at or below which the Fisher matrix is
// materialized and solved exactly instead of iteratively.
func Dense(cutoff int) Option {
	return func(st *State) { st.densecut = cutoff }
}

// EMA blends dense Fisher estimates across steps with the given decay
// (avg = beta*avg + (1-beta)*fresh).  Zero, the default, rebuilds the
// estimate fresh every step.
func EMA(beta float64) Option {
	return func(st *State) { st.ema = beta }
}

// State is the natural-gradient preconditioner.  It is owned by the driver
// and threaded through each step explicitly; nothing here is global.
type State struct {
	damping  float64
	min, max float64
	grow     float64
	shrink   float64
	maxiter  int
	tol      float64
	densecut int
	ema      float64
	avg      *mat.SymDense
}

func NewState(opts ...Option) *State {
	st := &State{
		damping:  1e-3,
		min:      1e-8,
		max:      1e2,
		grow:     2.0,
		shrink:   0.5,
		maxiter:  100,
		tol:      1e-6,
		densecut: 64,
	}
	for _, opt := range opts {
		opt(st)
	}
	return st
}

func (st *State) Damping() float64 { return st.damping }

func (st *State) SetDamping(v float64) {
	if v > 0 {
		st.damping = v
	}
}

// Precondition solves (F + damping I) delta = grad from the batch of score
// vectors.  The Fisher estimate is rebuilt from this step's batch (unless
// EMA blending was configured).  A failed solve - Cholesky breakdown or the
// CG iteration budget - returns the raw gradient rescaled by the mean
// curvature instead of blocking or erroring.
func (st *State) Precondition(grad []float64, scores [][]float64) (delta []float64, converged bool, iters int) {
	p := len(grad)
	if p == 0 || len(scores) == 0 {
		return nil, false, 0
	}

	if p <= st.densecut {
		delta, converged = st.dense(grad, scores)
		if !converged {
			delta = st.fallback(grad, scores)
		}
		return delta, converged, 0
	}

	op := FisherOp(scores, st.damping)
	delta, iters, converged = CG(op, grad, st.maxiter, st.tol)
	if !converged {
		delta = st.fallback(grad, scores)
	}
	return delta, converged, iters
}

func (st *State) dense(grad []float64, scores [][]float64) ([]float64, bool) {
	p := len(grad)
	F := Fisher(scores)
	if st.ema > 0 {
		if st.avg == nil {
			st.avg = mat.NewSymDense(p, nil)
			st.avg.CopySym(F)
		} else {
			for i := 0; i < p; i++ {
				for j := i; j < p; j++ {
					st.avg.SetSym(i, j, st.ema*st.avg.At(i, j)+(1-st.ema)*F.At(i, j))
				}
			}
		}
		F.CopySym(st.avg)
	}
	for i := 0; i < p; i++ {
		F.SetSym(i, i, F.At(i, i)+st.damping)
	}

	var ch mat.Cholesky
	if ok := ch.Factorize(F); !ok {
		return nil, false
	}
	var dv mat.VecDense
	if err := ch.SolveVecTo(&dv, mat.NewVecDense(p, grad)); err != nil {
		return nil, false
	}
	delta := make([]float64, p)
	copy(delta, dv.RawVector().Data)
	return delta, true
}

// fallback rescales the raw gradient by the mean diagonal curvature so a
// failed solve still yields a sanely sized, finite update.
func (st *State) fallback(grad []float64, scores [][]float64) []float64 {
	scale := st.damping + diagMean(scores)
	delta := append([]float64{}, grad...)
	if scale <= 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
		return delta
	}
	for i := range delta {
		delta[i] /= scale
	}
	return delta
}

// Observe adapts damping from the ratio of observed to predicted energy
// change for the last update.  An update that realized much less improvement
// than predicted (or moved the energy the wrong way, or produced a
// non-finite energy) was too aggressive, so damping grows; an update whose
// prediction was reliable lets damping shrink.
func (st *State) Observe(predicted, observed float64) {
	if predicted == 0 {
		return
	}
	rho := observed / predicted
	if math.IsNaN(rho) || rho < 0.25 {
		st.damping *= st.grow
	} else if rho > 0.75 {
		st.damping *= st.shrink
	}
	st.damping = math.Min(math.Max(st.damping, st.min), st.max)
}
