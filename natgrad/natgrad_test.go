package natgrad

import (
	"math"
	"testing"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
)

func TestCGExact(t *testing.T) {
	// A = [[4,1],[1,3]], b = [1,2]: x = (1/11, 7/11)
	apply := func(v []float64) []float64 {
		return []float64{4*v[0] + v[1], v[0] + 3*v[1]}
	}
	x, iters, converged := CG(apply, []float64{1, 2}, 50, 1e-12)
	if !converged {
		t.Fatalf("CG failed to converge on a 2x2 SPD system (%v iters)", iters)
	}
	if math.Abs(x[0]-1.0/11) > 1e-10 || math.Abs(x[1]-7.0/11) > 1e-10 {
		t.Errorf("solution: got %v, want (1/11, 7/11)", x)
	}
	// exact arithmetic terminates in at most dim iterations
	if iters > 2 {
		t.Errorf("took %v iterations on a 2-dimensional system", iters)
	}
}

func TestCGZeroRHS(t *testing.T) {
	apply := func(v []float64) []float64 { return v }
	x, iters, converged := CG(apply, []float64{0, 0, 0}, 50, 1e-10)
	if !converged || iters != 0 {
		t.Errorf("zero right-hand side: converged %v after %v iters", converged, iters)
	}
	for _, v := range x {
		if v != 0 {
			t.Errorf("zero right-hand side produced nonzero solution %v", x)
		}
	}
}

func TestCGSingular(t *testing.T) {
	// the zero operator has no positive curvature anywhere: the iteration
	// must bail out finite instead of dividing by zero
	apply := func(v []float64) []float64 { return make([]float64, len(v)) }
	x, _, converged := CG(apply, []float64{1, 1}, 50, 1e-10)
	if converged {
		t.Errorf("CG claimed convergence on a singular operator")
	}
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("singular operator leaked non-finite iterate %v", x)
		}
	}
}

func TestFisherOpMatchesDense(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	const n, p = 40, 6
	scores := make([][]float64, n)
	for i := range scores {
		s := make([]float64, p)
		for j := range s {
			s[j] = rng.NormFloat64()
		}
		scores[i] = s
	}

	damping := 0.3
	op := FisherOp(scores, damping)
	F := Fisher(scores)

	v := make([]float64, p)
	for j := range v {
		v[j] = rng.NormFloat64()
	}
	got := op(v)

	want := make([]float64, p)
	for i := 0; i < p; i++ {
		for j := 0; j < p; j++ {
			want[i] += F.At(i, j) * v[j]
		}
		want[i] += damping * v[i]
	}

	if !floats.EqualApprox(got, want, 1e-10) {
		t.Errorf("matrix-free product %v disagrees with dense product %v", got, want)
	}
}

func TestPreconditionDense(t *testing.T) {
	// scores {1},{2},{3} have sample variance 1; with damping 1/2 the
	// preconditioned gradient is grad / (3/2)
	scores := [][]float64{{1}, {2}, {3}}
	st := NewState(Damping(0.5))

	delta, converged, _ := st.Precondition([]float64{3}, scores)
	if !converged {
		t.Fatalf("dense solve of a 1x1 SPD system failed")
	}
	if math.Abs(delta[0]-2) > 1e-12 {
		t.Errorf("delta: got %v, want 2", delta[0])
	}
}

func TestPreconditionIterative(t *testing.T) {
	// same problem forced down the CG path must agree with the dense path
	rng := rand.New(rand.NewSource(12))
	const n, p = 60, 4
	scores := make([][]float64, n)
	for i := range scores {
		s := make([]float64, p)
		for j := range s {
			s[j] = rng.NormFloat64()
		}
		scores[i] = s
	}
	grad := []float64{0.3, -1.2, 0.7, 0.1}

	dense := NewState(Damping(0.1))
	dd, ok, _ := dense.Precondition(grad, scores)
	if !ok {
		t.Fatal("dense path failed")
	}

	iter := NewState(Damping(0.1), Dense(0), Tol(1e-12))
	di, ok, iters := iter.Precondition(grad, scores)
	if !ok {
		t.Fatalf("iterative path failed after %v iterations", iters)
	}

	if !floats.EqualApprox(dd, di, 1e-8) {
		t.Errorf("dense %v and iterative %v solutions disagree", dd, di)
	}
}

func TestPreconditionFallback(t *testing.T) {
	// identical scores give a zero covariance; with zero damping neither
	// solve can succeed and the fallback returns the unscaled gradient
	scores := [][]float64{{1, 1}, {1, 1}, {1, 1}}
	grad := []float64{2, -3}

	st := NewState(Dense(0), Damping(0), Iters(5))
	delta, converged, _ := st.Precondition(grad, scores)
	if converged {
		t.Errorf("claimed convergence on a rank-zero Fisher with no damping")
	}
	if len(delta) != 2 {
		t.Fatalf("fallback delta has length %v", len(delta))
	}
	for i := range delta {
		if math.IsNaN(delta[i]) || math.IsInf(delta[i], 0) {
			t.Fatalf("fallback leaked non-finite update %v", delta)
		}
	}

	delta[0] = 99
	if grad[0] == 99 {
		t.Errorf("fallback aliases the gradient")
	}
}

func TestObserve(t *testing.T) {
	st := NewState(Damping(1e-2))

	// realized far less than predicted: damping grows
	st.Observe(-1, -0.1)
	if st.Damping() != 2e-2 {
		t.Errorf("under-delivery: damping %v, want 2e-2", st.Damping())
	}

	// prediction reliable: damping shrinks
	st.Observe(-1, -0.9)
	if st.Damping() != 1e-2 {
		t.Errorf("reliable prediction: damping %v, want 1e-2", st.Damping())
	}

	// in-between ratio leaves damping alone
	st.Observe(-1, -0.5)
	if st.Damping() != 1e-2 {
		t.Errorf("moderate ratio: damping %v, want unchanged 1e-2", st.Damping())
	}

	// non-finite observed energy counts as maximal over-reach
	st.Observe(-1, math.NaN())
	if st.Damping() != 2e-2 {
		t.Errorf("non-finite observation: damping %v, want 2e-2", st.Damping())
	}

	// unusable prediction is ignored
	st.Observe(0, -1)
	if st.Damping() != 2e-2 {
		t.Errorf("zero prediction: damping %v, want unchanged", st.Damping())
	}
}

func TestObserveClamp(t *testing.T) {
	st := NewState(Damping(1), Clamp(0.5, 2))
	for i := 0; i < 10; i++ {
		st.Observe(-1, -0.01) // grow
	}
	if st.Damping() != 2 {
		t.Errorf("damping %v escaped upper clamp 2", st.Damping())
	}
	for i := 0; i < 10; i++ {
		st.Observe(-1, -1) // shrink
	}
	if st.Damping() != 0.5 {
		t.Errorf("damping %v escaped lower clamp 0.5", st.Damping())
	}
}

func TestEMABlending(t *testing.T) {
	// 1-parameter check: first batch variance 2, second batch variance 8,
	// beta 1/2 blends to 5; with damping 1 the second solve divides by 6
	st := NewState(Damping(1), EMA(0.5))

	if _, ok, _ := st.Precondition([]float64{3}, [][]float64{{0}, {2}}); !ok {
		t.Fatal("first solve failed")
	}
	delta, ok, _ := st.Precondition([]float64{6}, [][]float64{{0}, {4}})
	if !ok {
		t.Fatal("second solve failed")
	}
	if math.Abs(delta[0]-1) > 1e-12 {
		t.Errorf("blended delta: got %v, want 1", delta[0])
	}
}

func TestSchedules(t *testing.T) {
	c := Const(0.3)
	if c(0) != 0.3 || c(1000) != 0.3 {
		t.Errorf("Const is not flat: %v, %v", c(0), c(1000))
	}

	d := InvDecay(0.5, 100)
	if d(0) != 0.5 {
		t.Errorf("InvDecay at step 0: got %v, want 0.5", d(0))
	}
	if d(100) != 0.25 {
		t.Errorf("InvDecay at one delay: got %v, want 0.25", d(100))
	}
	if d(300) != 0.125 {
		t.Errorf("InvDecay at three delays: got %v, want 0.125", d(300))
	}
}

func TestApplyFresh(t *testing.T) {
	params := []float64{1, 2}
	delta := []float64{10, 20}
	out := Apply(params, delta, 0.1)
	if out[0] != 0 || out[1] != 0 {
		t.Errorf("update: got %v, want [0 0]", out)
	}
	if params[0] != 1 || params[1] != 2 {
		t.Errorf("Apply mutated its input: %v", params)
	}
}
