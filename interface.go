package vmc

// Ansatz is the capability interface for a trial wavefunction.  The core
// never touches raw psi - everything is expressed through log|psi| so that
// exponentially large or small amplitudes stay representable.  Derivatives
// are part of the interface because the local-energy evaluator needs second
// configuration derivatives and the gradient estimator needs parameter
// derivatives; implementations supply them analytically or via their own
// differentiation machinery.  Finite differences are acceptable only as a
// test oracle (see bench.FDiff).
type Ansatz interface {
	// LogPsi returns log|psi(x)| and the sign (or phase) of psi at x.
	LogPsi(params, x []float64) (logpsi, sign float64)
	// GradLog returns the gradient of log|psi| with respect to the
	// configuration coordinates; the result has len(x) entries.
	GradLog(params, x []float64) []float64
	// LapLog returns the Laplacian of log|psi| with respect to the
	// configuration coordinates (the sum of second partials).
	LapLog(params, x []float64) float64
	// Score returns the gradient of log|psi| with respect to the
	// parameters; the result has len(params) entries.
	Score(params, x []float64) []float64
}

// Hamiltonian supplies the potential-energy terms and the configuration
// dimensions.  The kinetic term is computed by the energy evaluator from the
// ansatz derivatives.
type Hamiltonian interface {
	// Potential returns the potential energy at configuration x.  Coulomb
	// singularities at coincident positions need no regularization - exact
	// coincidence has probability zero under continuous sampling.
	Potential(x []float64) float64
	// Size returns the particle count and the dimension per particle.
	Size() (nparticle, ndim int)
}

// Sampler advances a walker ensemble toward the |psi|^2 stationary
// distribution.  Implemented by sample.Sampler.
type Sampler interface {
	// Advance runs the configured decorrelation sub-steps for every walker
	// and returns the batch acceptance rate.  A vmc.ErrDegenerate return is
	// a warning, not a failure - the ensemble is still usable.
	Advance(e *Ensemble, params []float64) (acceptance float64, err error)
	// Warmup runs nsweep burn-in sweeps.  Burn-in outcomes are excluded
	// from the acceptance statistics used for step-size adaptation.
	Warmup(e *Ensemble, params []float64, nsweep int) error
	// StepSize reports the current proposal step size.
	StepSize() float64
}

// Evaluator computes per-walker local energies and score vectors for one
// frozen parameter snapshot.  Implemented by energy.Evaluator.
type Evaluator interface {
	// Batch returns one local energy and one score vector per walker, in
	// walker order.  Walkers with non-finite local energies are included
	// (flagged via nbad), never dropped.
	Batch(params []float64, e *Ensemble) (energies []float64, scores [][]float64, nbad int, err error)
}

// Estimator aggregates a batch of local energies and scores into energy
// statistics and a raw parameter gradient.  Implemented by energy.Estimator.
// Estimation is deterministic - all randomness lives in the Sampler.
type Estimator interface {
	Estimate(energies []float64, scores [][]float64) (EnergyStats, []float64)
}

// Preconditioner turns a raw gradient into a natural-gradient update using
// curvature estimated from the same batch of scores.  Implemented by
// natgrad.State, which also carries the damping value across steps.
type Preconditioner interface {
	// Precondition solves the damped curvature system for the update
	// direction.  On solver non-convergence it returns a rescaled raw
	// gradient and converged == false; it never blocks.
	Precondition(grad []float64, scores [][]float64) (delta []float64, converged bool, iters int)
	// Observe feeds back predicted vs observed energy change from the last
	// update so damping can adapt trust-region style.
	Observe(predicted, observed float64)
	Damping() float64
	SetDamping(v float64)
}

// EnergyStats is the per-step energy estimate and its Monte Carlo error.
type EnergyStats struct {
	// Mean and Variance are the unclipped sample statistics; Variance uses
	// the unbiased n/(n-1) estimator.
	Mean     float64
	Variance float64
	StdErr   float64
	// Clipped is the mean after median/MAD clipping - the robust estimate
	// the gradient is centered on.
	Clipped float64
	// Nclipped counts samples altered by clipping; Nbad counts the subset
	// that was non-finite before clipping.
	Nclipped int
	Nbad     int
}
