// Package sample advances walker ensembles with Metropolis-Hastings moves so
// they converge to the |psi|^2 stationary distribution of a trial
// wavefunction.  Proposals are symmetric isotropic gaussians, so the
// proposal-density ratio cancels and acceptance reduces to
// min(1, |psi(x')|^2 / |psi(x)|^2), evaluated entirely in log space.
package sample

import (
	"database/sql"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	vmc "github.com/JiahaoYao/vmcnet"
)

// DegenerateRate is the batch acceptance rate below which Advance reports
// vmc.ErrDegenerate so the driver can react (e.g. by noting the collapsed
// proposal step in its diagnostics).
const DegenerateRate = 0.01

// TblSweeps is the sql table holding per-Advance sampler statistics.
const TblSweeps = "samplersweeps"

type Option func(*Sampler)

// StepSize sets the initial standard deviation of proposed moves.
func StepSize(sd float64) Option {
	return func(s *Sampler) { s.Step = sd }
}

// AcceptBand sets the target acceptance band for step-size adaptation.
func AcceptBand(lo, hi float64) Option {
	return func(s *Sampler) { s.Lo, s.Hi = lo, hi }
}

// Fixed disables step-size adaptation, making Advance a pure function of the
// input ensemble (modulo random draws).
func Fixed() Option {
	return func(s *Sampler) { s.Adapt = false }
}

// Decorr sets the number of decorrelation sweeps run per Advance call.  Only
// the final configurations are observed by downstream consumers.
func Decorr(n int) Option {
	return func(s *Sampler) { s.Ndecorr = n }
}

// Seed reseeds the sampler's random source.
func Seed(seed uint64) Option {
	return func(s *Sampler) { s.rng = rand.New(rand.NewSource(seed)) }
}

// DB turns on sqlite recording of per-Advance acceptance statistics.
func DB(db *sql.DB) Option {
	return func(s *Sampler) { s.Db = db }
}

// Sampler proposes and accepts or rejects configuration moves for every
// walker in an ensemble.  Each proposal costs exactly one ansatz evaluation:
// the log-amplitude at the current position is cached on the walker, so old
// and new amplitudes are never recomputed.
type Sampler struct {
	// Step is the proposal standard deviation, shared across walkers and
	// adapted online unless Fixed was set.
	Step float64
	// Lo and Hi bound the target acceptance band.
	Lo, Hi float64
	// Ndecorr is the number of sweeps per Advance.
	Ndecorr int
	Adapt   bool
	Db      *sql.DB

	psi    vmc.Ansatz
	rng    *rand.Rand
	normal distuv.Normal
	count  int
}

func New(psi vmc.Ansatz, opts ...Option) *Sampler {
	s := &Sampler{
		psi:     psi,
		Step:    0.5,
		Lo:      0.4,
		Hi:      0.6,
		Ndecorr: 10,
		Adapt:   true,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(1))
	}
	s.normal = distuv.Normal{Mu: 0, Sigma: 1, Src: s.rng}
	s.initdb()
	return s
}

func (s *Sampler) StepSize() float64 { return s.Step }

// AcceptProb returns the Metropolis acceptance probability for a symmetric
// proposal given the old and proposed log-amplitudes.  A non-finite proposed
// amplitude is rejected outright.  The comparison happens before
// exponentiating so a large positive log-ratio cannot overflow.
func AcceptProb(logpsi, proposed float64) float64 {
	if math.IsNaN(proposed) || math.IsInf(proposed, 0) {
		return 0
	}
	logratio := 2 * (proposed - logpsi)
	if logratio >= 0 {
		return 1
	}
	return math.Exp(logratio)
}

// sweep proposes one move per walker and applies the accept/reject outcome
// in place.  Walkers are independent chains; their proposals share only the
// random source.
func (s *Sampler) sweep(e *vmc.Ensemble, params []float64) (naccept, nprop int) {
	for _, w := range e.Walkers {
		pos := w.Pos()
		for i := range pos {
			pos[i] += s.Step * s.normal.Rand()
		}
		logpsi, sign := s.psi.LogPsi(params, pos)
		if s.rng.Float64() < AcceptProb(w.LogPsi, logpsi) {
			w.Accept(pos, logpsi, sign)
			naccept++
		} else {
			w.Reject()
		}
		nprop++
	}
	return naccept, nprop
}

// Advance runs the configured decorrelation sweeps and returns the batch
// acceptance rate.  If adaptation is on, the proposal step contracts when
// acceptance falls below the band and grows when it rises above.  A
// near-zero acceptance rate is reported via vmc.ErrDegenerate; the ensemble
// remains valid and the caller decides how to react.
func (s *Sampler) Advance(e *vmc.Ensemble, params []float64) (float64, error) {
	s.count++
	var naccept, nprop int
	for k := 0; k < s.Ndecorr; k++ {
		a, p := s.sweep(e, params)
		naccept += a
		nprop += p
	}
	if nprop == 0 {
		return 0, vmc.ErrDegenerate
	}

	acc := float64(naccept) / float64(nprop)
	if s.Adapt {
		if acc < s.Lo {
			s.Step *= 0.9
		} else if acc > s.Hi {
			s.Step *= 1.1
		}
	}
	s.updateDb(acc)

	if acc < DegenerateRate {
		return acc, vmc.ErrDegenerate
	}
	return acc, nil
}

// Warmup runs nsweep burn-in sweeps.  Burn-in outcomes feed neither the
// reported acceptance statistics nor step-size adaptation.
func (s *Sampler) Warmup(e *vmc.Ensemble, params []float64, nsweep int) error {
	for k := 0; k < nsweep; k++ {
		s.sweep(e, params)
	}
	return nil
}

func (s *Sampler) initdb() {
	if s.Db == nil {
		return
	}
	q := "CREATE TABLE IF NOT EXISTS " + TblSweeps + " (advance INTEGER, step REAL, acceptance REAL);"
	_, err := s.Db.Exec(q)
	if err != nil {
		panic(err.Error())
	}
}

func (s *Sampler) updateDb(acc float64) {
	if s.Db == nil {
		return
	}
	q := "INSERT INTO " + TblSweeps + " VALUES (?,?,?);"
	_, err := s.Db.Exec(q, s.count, s.Step, acc)
	if err != nil {
		panic(err.Error())
	}
}
