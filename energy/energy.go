// Package energy evaluates per-walker local energies and aggregates them
// into an energy estimate and a parameter gradient.  The local energy is
//
//	E_loc(x) = -1/2 (lap L + |grad L|^2) + V(x),  L = log|psi|
//
// which is (H psi)/psi expressed without ever leaving the log domain, so
// exponentially large or small amplitudes never appear as intermediates.
package energy

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	vmc "github.com/JiahaoYao/vmcnet"
)

// Evaluator computes local energies for a frozen parameter snapshot.
type Evaluator struct {
	Psi vmc.Ansatz
	Ham vmc.Hamiltonian
	// Ev fans per-walker work out; nil means serial.
	Ev vmc.Evaler
}

// Local returns the local energy at configuration x.  A non-finite result
// (second derivatives diverge near a wavefunction node) is flagged with
// vmc.ErrNonFinite; the value is still returned so the estimator can clip
// rather than drop the sample.
func (ev *Evaluator) Local(params, x []float64) (float64, error) {
	grad := ev.Psi.GradLog(params, x)
	lap := ev.Psi.LapLog(params, x)
	kin := -0.5 * (lap + floats.Dot(grad, grad))
	e := kin + ev.Ham.Potential(x)
	if math.IsNaN(e) || math.IsInf(e, 0) {
		return e, vmc.ErrNonFinite
	}
	return e, nil
}

// Batch evaluates local energies and score vectors for every walker in the
// ensemble.  Per-walker work runs through the Evaler - each task writes only
// its own index, and Batch returns only after all tasks have joined.  The
// outputs always have exactly one entry per walker.
func (ev *Evaluator) Batch(params []float64, e *vmc.Ensemble) (energies []float64, scores [][]float64, nbad int, err error) {
	n := e.Size()
	energies = make([]float64, n)
	scores = make([][]float64, n)

	evaler := ev.Ev
	if evaler == nil {
		evaler = vmc.SerialEvaler{}
	}
	err = evaler.Eval(n, func(i int) error {
		x := e.Walkers[i].Pos()
		// a flagged local energy is data, not an error - it stays in the
		// batch for clipping
		eloc, _ := ev.Local(params, x)
		energies[i] = eloc
		scores[i] = ev.Psi.Score(params, x)
		return nil
	})
	if err != nil {
		return nil, nil, 0, err
	}

	for i := range scores {
		if len(scores[i]) != len(params) {
			return nil, nil, 0, errors.Errorf(
				"energy: ansatz score has %v entries for %v parameters", len(scores[i]), len(params))
		}
		if math.IsNaN(energies[i]) || math.IsInf(energies[i], 0) {
			nbad++
		}
	}
	return energies, scores, nbad, nil
}
