// Package vmc estimates ground-state energies of quantum many-body systems
// by variational Monte Carlo: walkers are sampled from the squared amplitude
// of a trial wavefunction, local energies are evaluated per walker, and a
// natural-gradient step updates the wavefunction parameters.  The Solver in
// this package drives the sample/evaluate/optimize cycle; the algorithms live
// in the sample, energy, and natgrad subpackages.
package vmc

import (
	"errors"
	"math"

	"golang.org/x/exp/rand"
)

// Rand is the random number source used for ensemble initialization.  Tests
// replace it to get reproducible runs.  The sampler owns its own seedable
// source - see sample.Seed.
var Rand = rand.New(rand.NewSource(1))

var (
	// ErrDegenerate is reported (not fatal) by the sampler when the batch
	// acceptance rate collapses to near zero.
	ErrDegenerate = errors.New("vmc: sampler acceptance rate collapsed")
	// ErrNonFinite flags a single walker's local energy or score as invalid.
	// Flagged samples are clipped by the gradient estimator, never dropped.
	ErrNonFinite = errors.New("vmc: non-finite value")
	// ErrDiverged is fatal: parameters stayed non-finite across several
	// consecutive optimizer steps.
	ErrDiverged = errors.New("vmc: parameters diverged")
)

// Walker is one Markov chain: a particle configuration plus the cached
// log-amplitude at that configuration and acceptance counters.  Positions are
// immutable once set - accessors copy out, and only Accept installs a new
// configuration.
type Walker struct {
	pos []float64
	// LogPsi is log|psi| at the current position, cached so the sampler
	// evaluates the ansatz only for proposed positions.
	LogPsi float64
	// Sign is the sign (or phase) of psi at the current position.
	Sign    float64
	Naccept int
	Nprop   int
}

func NewWalker(pos []float64, logpsi, sign float64) *Walker {
	cpos := make([]float64, len(pos))
	copy(cpos, pos)
	return &Walker{pos: cpos, LogPsi: logpsi, Sign: sign}
}

func (w *Walker) At(i int) float64 { return w.pos[i] }

func (w *Walker) Len() int { return len(w.pos) }

func (w *Walker) Pos() []float64 {
	pos := make([]float64, len(w.pos))
	copy(pos, w.pos)
	return pos
}

// Accept installs pos as the walker's new configuration along with the
// amplitude evaluated there.
func (w *Walker) Accept(pos []float64, logpsi, sign float64) {
	cpos := make([]float64, len(pos))
	copy(cpos, pos)
	w.pos = cpos
	w.LogPsi = logpsi
	w.Sign = sign
	w.Naccept++
	w.Nprop++
}

func (w *Walker) Reject() { w.Nprop++ }

func (w *Walker) AcceptRate() float64 {
	if w.Nprop == 0 {
		return 0
	}
	return float64(w.Naccept) / float64(w.Nprop)
}

// Ensemble is a fixed-size collection of independent walkers.  It is created
// once at the start of a run and advanced in place by the sampler; every
// walker contributes exactly one local-energy sample per step.
type Ensemble struct {
	Walkers []*Walker
}

// NewEnsemble initializes n walkers with positions drawn from an isotropic
// gaussian of the given width.  Initial positions that produce a non-finite
// log-amplitude are redrawn; if the ansatz cannot produce a finite amplitude
// anywhere, initialization fails.
func NewEnsemble(n int, psi Ansatz, h Hamiltonian, params []float64, width float64) (*Ensemble, error) {
	npart, ndim := h.Size()
	size := npart * ndim
	if size <= 0 {
		return nil, errors.New("vmc: hamiltonian reports non-positive configuration size")
	}
	if width <= 0 {
		width = 1
	}

	const maxdraw = 100
	e := &Ensemble{Walkers: make([]*Walker, n)}
	for i := 0; i < n; i++ {
		ok := false
		for try := 0; try < maxdraw; try++ {
			pos := make([]float64, size)
			for j := range pos {
				pos[j] = width * Rand.NormFloat64()
			}
			logpsi, sign := psi.LogPsi(params, pos)
			if math.IsNaN(logpsi) || math.IsInf(logpsi, 0) {
				continue
			}
			e.Walkers[i] = NewWalker(pos, logpsi, sign)
			ok = true
			break
		}
		if !ok {
			return nil, errors.New("vmc: could not draw a finite-amplitude initial configuration")
		}
	}
	return e, nil
}

func (e *Ensemble) Size() int { return len(e.Walkers) }

// Positions copies out every walker's configuration (checkpoint boundary).
func (e *Ensemble) Positions() [][]float64 {
	pos := make([][]float64, len(e.Walkers))
	for i, w := range e.Walkers {
		pos[i] = w.Pos()
	}
	return pos
}

// AcceptRate aggregates the lifetime acceptance counters across walkers.
func (e *Ensemble) AcceptRate() float64 {
	var acc, prop int
	for _, w := range e.Walkers {
		acc += w.Naccept
		prop += w.Nprop
	}
	if prop == 0 {
		return 0
	}
	return float64(acc) / float64(prop)
}
