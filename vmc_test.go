package vmc

import (
	"errors"
	"math"
	"sync/atomic"
	"testing"
)

// gauss is log|psi| = -1/2 a |x|^2 with a single width parameter.
type gauss struct{}

func (gauss) LogPsi(params, x []float64) (float64, float64) {
	l := 0.0
	for _, v := range x {
		l -= 0.5 * params[0] * v * v
	}
	return l, 1
}

func (gauss) GradLog(params, x []float64) []float64 {
	g := make([]float64, len(x))
	for i, v := range x {
		g[i] = -params[0] * v
	}
	return g
}

func (gauss) LapLog(params, x []float64) float64 {
	return -params[0] * float64(len(x))
}

func (gauss) Score(params, x []float64) []float64 {
	tot := 0.0
	for _, v := range x {
		tot += v * v
	}
	return []float64{-0.5 * tot}
}

type nanpsi struct{ gauss }

func (nanpsi) LogPsi(params, x []float64) (float64, float64) { return math.NaN(), 1 }

type ho1d struct{}

func (ho1d) Potential(x []float64) float64 { return 0.5 * x[0] * x[0] }
func (ho1d) Size() (nparticle, ndim int)   { return 1, 1 }

func TestWalkerCopySemantics(t *testing.T) {
	pos := []float64{1, 2, 3}
	w := NewWalker(pos, -1, 1)

	pos[0] = 99
	if w.At(0) != 1 {
		t.Errorf("walker aliased the constructor slice: got %v, want 1", w.At(0))
	}

	out := w.Pos()
	out[1] = 99
	if w.At(1) != 2 {
		t.Errorf("walker position mutated through accessor copy: got %v, want 2", w.At(1))
	}

	next := []float64{4, 5, 6}
	w.Accept(next, -2, 1)
	next[2] = 99
	if w.At(2) != 6 {
		t.Errorf("walker aliased the accepted slice: got %v, want 6", w.At(2))
	}
	if w.LogPsi != -2 {
		t.Errorf("accept did not install amplitude: got %v", w.LogPsi)
	}
}

func TestWalkerCounters(t *testing.T) {
	w := NewWalker([]float64{0}, 0, 1)
	w.Accept([]float64{1}, -0.5, 1)
	w.Reject()
	w.Reject()
	w.Accept([]float64{2}, -2, 1)

	if w.Nprop != 4 || w.Naccept != 2 {
		t.Errorf("counters: got %v/%v, want 2/4", w.Naccept, w.Nprop)
	}
	if rate := w.AcceptRate(); rate != 0.5 {
		t.Errorf("accept rate: got %v, want 0.5", rate)
	}
}

func TestNewEnsemble(t *testing.T) {
	e, err := NewEnsemble(50, gauss{}, ho1d{}, []float64{1}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if e.Size() != 50 {
		t.Errorf("ensemble size: got %v, want 50", e.Size())
	}
	for i, w := range e.Walkers {
		if math.IsNaN(w.LogPsi) || math.IsInf(w.LogPsi, 0) {
			t.Errorf("walker %v initialized with non-finite log-amplitude %v", i, w.LogPsi)
		}
	}
}

func TestNewEnsembleUnusableAnsatz(t *testing.T) {
	if _, err := NewEnsemble(3, nanpsi{}, ho1d{}, []float64{1}, 1); err == nil {
		t.Errorf("expected error for ansatz with no finite amplitudes")
	}
}

func TestSerialEvalerErr(t *testing.T) {
	boom := errors.New("fake error")
	ncall := 0
	task := func(i int) error {
		ncall++
		if i == 2 {
			return boom
		}
		return nil
	}

	if err := (SerialEvaler{}).Eval(5, task); err != boom {
		t.Errorf("did not propagate error through return: got %v", err)
	}
	if ncall != 3 {
		t.Errorf("stopped at wrong task: %v calls, want 3", ncall)
	}

	ncall = 0
	if err := (SerialEvaler{ContinueOnErr: true}).Eval(5, task); err != boom {
		t.Errorf("ContinueOnErr swallowed the first error: got %v", err)
	}
	if ncall != 5 {
		t.Errorf("ContinueOnErr stopped early: %v calls, want 5", ncall)
	}
}

func TestPoolEvalerJoins(t *testing.T) {
	const n = 200
	out := make([]float64, n)
	var calls int64
	err := PoolEvaler{N: 8}.Eval(n, func(i int) error {
		atomic.AddInt64(&calls, 1)
		out[i] = float64(i)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if calls != n {
		t.Errorf("ran %v tasks, want %v", calls, n)
	}
	for i := range out {
		if out[i] != float64(i) {
			t.Fatalf("task %v result missing after join", i)
		}
	}
}
