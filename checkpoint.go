package vmc

import "github.com/pkg/errors"

// Checkpoint is a serializable snapshot of everything needed to resume a
// run: parameters, walker configurations with their cached amplitudes, the
// optimizer's damping value, and the step counter.  Persistence formats are
// the external collaborator's business - all fields are plain exported data.
type Checkpoint struct {
	Step      int
	Params    []float64
	Damping   float64
	Positions [][]float64
	LogPsi    []float64
	Sign      []float64
}

// Snapshot captures the solver's cross-step state.  Call it between steps
// (after Next returns); mid-step state is never exposed.
func (s *Solver) Snapshot() *Checkpoint {
	c := &Checkpoint{
		Step:      s.step,
		Params:    append([]float64{}, s.Params...),
		Positions: make([][]float64, 0, s.Ens.Size()),
		LogPsi:    make([]float64, 0, s.Ens.Size()),
		Sign:      make([]float64, 0, s.Ens.Size()),
	}
	if s.Precond != nil {
		c.Damping = s.Precond.Damping()
	}
	for _, w := range s.Ens.Walkers {
		c.Positions = append(c.Positions, w.Pos())
		c.LogPsi = append(c.LogPsi, w.LogPsi)
		c.Sign = append(c.Sign, w.Sign)
	}
	return c
}

// Resume loads a checkpoint into a freshly configured Solver.  The restored
// ensemble is already equilibrated, so burn-in is skipped on the next call
// to Next.
func (s *Solver) Resume(c *Checkpoint) error {
	if len(c.Positions) == 0 || len(c.Params) == 0 {
		return errors.New("vmc: checkpoint has no walkers or parameters")
	}
	if len(c.LogPsi) != len(c.Positions) || len(c.Sign) != len(c.Positions) {
		return errors.Errorf("vmc: checkpoint has %v walkers but %v amplitudes",
			len(c.Positions), len(c.LogPsi))
	}

	ens := &Ensemble{Walkers: make([]*Walker, len(c.Positions))}
	for i, pos := range c.Positions {
		ens.Walkers[i] = NewWalker(pos, c.LogPsi[i], c.Sign[i])
	}
	s.Ens = ens
	s.Params = append([]float64{}, c.Params...)
	s.step = c.Step
	s.NBurn = 0
	if s.Precond != nil {
		s.Precond.SetDamping(c.Damping)
	}
	return nil
}
