package vmc

import (
	"database/sql"
	"fmt"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// Phase is the driver's position in its step cycle.
type Phase int

const (
	Uninitialized Phase = iota
	BurnIn
	Sampling
	Evaluating
	Optimizing
	Terminated
)

func (p Phase) String() string {
	switch p {
	case Uninitialized:
		return "uninitialized"
	case BurnIn:
		return "burn-in"
	case Sampling:
		return "sampling"
	case Evaluating:
		return "evaluating"
	case Optimizing:
		return "optimizing"
	case Terminated:
		return "terminated"
	}
	return fmt.Sprintf("phase(%v)", int(p))
}

const (
	// TblSteps is the sql table holding per-step diagnostics.
	TblSteps = "vmcsteps"
	// TblWalkers is the sql table holding per-walker positions and cached
	// log-amplitudes for each step.
	TblWalkers = "vmcwalkers"
)

// StepStats is one step's diagnostics record, exposed to the external
// logging collaborator through History.
type StepStats struct {
	Step       int
	Energy     EnergyStats
	Acceptance float64
	ProposalSd float64
	Damping    float64
	GradNorm   float64
	LearnRate  float64
	// Degenerate marks an acceptance-rate collapse warning from the
	// sampler for this step.
	Degenerate bool
	// Solved is false when the curvature solve fell back to the rescaled
	// raw gradient.
	Solved bool
	Iters  int
}

// Solver drives repeated sampling -> evaluation -> optimization cycles.
// Configure it as a struct literal the way the optimization iterators are
// configured:
//
//	solv := &vmc.Solver{
//		Psi: psi, Ham: sys, Params: theta,
//		Sampler: sample.New(psi),
//		Eval:    &energy.Evaluator{Psi: psi, Ham: sys},
//		Est:     &energy.Estimator{},
//		Precond: natgrad.NewState(),
//		MaxStep: 500,
//	}
//	for solv.Next() {
//	}
//	err := solv.Err()
//
// The Sampler and Evaluator see a frozen parameter snapshot for the whole
// step; Params is replaced, never mutated, at the end of each step.
type Solver struct {
	Psi     Ansatz
	Ham     Hamiltonian
	Sampler Sampler
	Eval    Evaluator
	Est     Estimator
	Precond Preconditioner

	// Params is the current parameter snapshot.  Set it before the first
	// Next call; read it after the run for the optimized values.
	Params []float64

	// LR maps step count to learning rate.  Nil means a constant 0.05.
	LR func(step int) float64

	// Nwalk is the ensemble size (default 128), used only when Ens is nil.
	Nwalk int
	// InitWidth is the gaussian width for initial walker positions.
	InitWidth float64
	// Ens lets a caller supply a pre-built or checkpointed ensemble.
	Ens *Ensemble

	// NBurn is the number of burn-in sweeps run once before step 0.
	NBurn int
	// MaxStep is the outer step budget.
	MaxStep int
	// MaxBadSteps is the number of consecutive non-finite parameter
	// updates tolerated before the run aborts with ErrDiverged (default 3).
	MaxBadSteps int

	Db *sql.DB

	step  int
	phase Phase
	nbad  int
	err   error
	hist  []StepStats

	// carry-over for the damping trust-region heuristic
	prevMean float64
	prevPred float64
}

func (s *Solver) Step() int { return s.step }

func (s *Solver) Phase() Phase { return s.phase }

// Err returns the fatal error that terminated the run, if any.  Warnings
// (sampler degeneracy, solve fallback) are reported in History, not here.
func (s *Solver) Err() error { return s.err }

// History returns the per-step diagnostics collected so far.
func (s *Solver) History() []StepStats { return s.hist }

// Stats returns the most recent step's diagnostics.
func (s *Solver) Stats() StepStats {
	if len(s.hist) == 0 {
		return StepStats{}
	}
	return s.hist[len(s.hist)-1]
}

func (s *Solver) init() error {
	switch {
	case s.Psi == nil:
		return errors.New("vmc: Solver.Psi is nil")
	case s.Ham == nil:
		return errors.New("vmc: Solver.Ham is nil")
	case s.Sampler == nil:
		return errors.New("vmc: Solver.Sampler is nil")
	case s.Eval == nil:
		return errors.New("vmc: Solver.Eval is nil")
	case s.Est == nil:
		return errors.New("vmc: Solver.Est is nil")
	case s.Precond == nil:
		return errors.New("vmc: Solver.Precond is nil")
	case len(s.Params) == 0:
		return errors.New("vmc: Solver.Params is empty")
	}
	if s.Nwalk == 0 {
		s.Nwalk = 128
	}
	if s.MaxBadSteps == 0 {
		s.MaxBadSteps = 3
	}
	if s.LR == nil {
		s.LR = func(int) float64 { return 0.05 }
	}

	if s.Ens == nil {
		ens, err := NewEnsemble(s.Nwalk, s.Psi, s.Ham, s.Params, s.InitWidth)
		if err != nil {
			return err
		}
		s.Ens = ens
	}

	// Probe the external interfaces once so malformed implementations fail
	// fast with a descriptive error instead of corrupting a step.
	x := s.Ens.Walkers[0].Pos()
	npart, ndim := s.Ham.Size()
	if want := npart * ndim; len(x) != want {
		return errors.Errorf("vmc: walker has %v coordinates, hamiltonian wants %v", len(x), want)
	}
	if g := s.Psi.GradLog(s.Params, x); len(g) != len(x) {
		return errors.Errorf("vmc: ansatz GradLog returned %v entries for %v coordinates", len(g), len(x))
	}
	if sc := s.Psi.Score(s.Params, x); len(sc) != len(s.Params) {
		return errors.Errorf("vmc: ansatz Score returned %v entries for %v parameters", len(sc), len(s.Params))
	}

	s.initdb()
	return nil
}

func (s *Solver) fail(err error) {
	s.err = err
	s.phase = Terminated
}

// Next runs one full outer step and reports whether the run can continue.
// The first call initializes the ensemble and runs burn-in.  After Next
// returns false, Err distinguishes budget exhaustion (nil) from a fatal
// error.
func (s *Solver) Next() bool {
	if s.phase == Terminated {
		return false
	}

	if s.phase == Uninitialized {
		if err := s.init(); err != nil {
			s.fail(err)
			return false
		}
		s.phase = BurnIn
		if err := s.Sampler.Warmup(s.Ens, s.Params, s.NBurn); err != nil {
			s.fail(errors.Wrap(err, "vmc: burn-in failed"))
			return false
		}
	}

	if s.step >= s.MaxStep {
		s.phase = Terminated
		return false
	}

	s.phase = Sampling
	acc, err := s.Sampler.Advance(s.Ens, s.Params)
	degenerate := false
	if err != nil {
		if errors.Cause(err) != ErrDegenerate {
			s.fail(errors.Wrap(err, "vmc: sampling failed"))
			return false
		}
		degenerate = true
	}

	s.phase = Evaluating
	energies, scores, nbad, err := s.Eval.Batch(s.Params, s.Ens)
	if err != nil {
		s.fail(errors.Wrap(err, "vmc: local energy evaluation failed"))
		return false
	}
	if len(energies) != s.Ens.Size() || len(scores) != s.Ens.Size() {
		s.fail(errors.Errorf("vmc: evaluator returned %v energies and %v scores for %v walkers",
			len(energies), len(scores), s.Ens.Size()))
		return false
	}
	stats, grad := s.Est.Estimate(energies, scores)
	stats.Nbad = nbad

	s.phase = Optimizing
	// Feed the trust-region heuristic the previous step's prediction
	// against the energy change actually realized.
	if s.step > 0 {
		s.Precond.Observe(s.prevPred, stats.Clipped-s.prevMean)
	}

	delta, solved, iters := s.Precond.Precondition(grad, scores)
	lr := s.LR(s.step)
	s.prevMean = stats.Clipped
	s.prevPred = -lr * floats.Dot(grad, delta)

	next := make([]float64, len(s.Params))
	finite := true
	for i := range next {
		next[i] = s.Params[i] - lr*delta[i]
		if math.IsNaN(next[i]) || math.IsInf(next[i], 0) {
			finite = false
		}
	}
	if !finite {
		s.nbad++
		if s.nbad >= s.MaxBadSteps {
			s.fail(errors.Wrapf(ErrDiverged, "after %v consecutive non-finite updates at step %v", s.nbad, s.step))
			return false
		}
		// reject the update and keep sampling with the old snapshot
	} else {
		s.nbad = 0
		s.Params = next
	}

	rec := StepStats{
		Step:       s.step,
		Energy:     stats,
		Acceptance: acc,
		ProposalSd: s.Sampler.StepSize(),
		Damping:    s.Precond.Damping(),
		GradNorm:   floats.Norm(grad, 2),
		LearnRate:  lr,
		Degenerate: degenerate,
		Solved:     solved,
		Iters:      iters,
	}
	s.hist = append(s.hist, rec)
	s.updateDb(rec)

	s.step++
	s.phase = Sampling
	return true
}

// Run steps the solver until its budget is exhausted or a fatal error stops
// it, returning the final statistics.
func (s *Solver) Run() (StepStats, error) {
	for s.Next() {
	}
	return s.Stats(), s.Err()
}

func (s *Solver) initdb() {
	if s.Db == nil {
		return
	}

	q := "CREATE TABLE IF NOT EXISTS " + TblSteps +
		" (step INTEGER, energy REAL, variance REAL, stderr REAL, clipped REAL," +
		" acceptance REAL, proposalsd REAL, damping REAL, gradnorm REAL, lr REAL," +
		" nclip INTEGER, nbad INTEGER, degenerate INTEGER, solved INTEGER);"
	_, err := s.Db.Exec(q)
	panicif(err)

	q = "CREATE TABLE IF NOT EXISTS " + TblWalkers + " (step INTEGER, walker INTEGER, logpsi REAL"
	q += s.xdbsql("define")
	q += ");"
	_, err = s.Db.Exec(q)
	panicif(err)
}

func (s *Solver) xdbsql(op string) string {
	str := ""
	for i := 0; i < s.Ens.Walkers[0].Len(); i++ {
		if op == "?" {
			str += ",?"
		} else if op == "define" {
			str += fmt.Sprintf(",x%v REAL", i)
		} else if op == "x" {
			str += fmt.Sprintf(",x%v", i)
		} else {
			panic("invalid db op " + op)
		}
	}
	return str
}

func (s *Solver) updateDb(rec StepStats) {
	if s.Db == nil {
		return
	}

	tx, err := s.Db.Begin()
	panicif(err)
	defer tx.Commit()

	q := "INSERT INTO " + TblSteps + " VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?);"
	_, err = tx.Exec(q, rec.Step, rec.Energy.Mean, rec.Energy.Variance, rec.Energy.StdErr,
		rec.Energy.Clipped, rec.Acceptance, rec.ProposalSd, rec.Damping, rec.GradNorm,
		rec.LearnRate, rec.Energy.Nclipped, rec.Energy.Nbad, b2i(rec.Degenerate), b2i(rec.Solved))
	panicif(err)

	q = "INSERT INTO " + TblWalkers + " (step,walker,logpsi" + s.xdbsql("x") +
		") VALUES (?,?,?" + s.xdbsql("?") + ");"
	for i, w := range s.Ens.Walkers {
		args := []interface{}{rec.Step, i, w.LogPsi}
		args = append(args, pos2iface(w.Pos())...)
		_, err = tx.Exec(q, args...)
		panicif(err)
	}
}

func pos2iface(pos []float64) []interface{} {
	iface := []interface{}{}
	for _, v := range pos {
		iface = append(iface, v)
	}
	return iface
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

func panicif(err error) {
	if err != nil {
		panic(err.Error())
	}
}
