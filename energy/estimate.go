package energy

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	vmc "github.com/JiahaoYao/vmcnet"
)

// DefaultClipWidth is the clipping threshold in multiples of the batch's
// median absolute deviation.
const DefaultClipWidth = 5.0

// Estimator turns a batch of local energies and score vectors into energy
// statistics and the raw energy gradient
//
//	grad E = 2 E[(E_clip - mean(E_clip)) * score],
//
// the covariance between each walker's (clipped, centered) local energy and
// its parameter-gradient of log|psi|.  Clipping affects only the gradient
// weighting; the unclipped mean and variance are reported alongside for
// diagnostics.  Estimate is deterministic given identical inputs.
type Estimator struct {
	// ClipWidth is the clip threshold in MADs; 0 means DefaultClipWidth
	// and a negative value disables clipping.
	ClipWidth float64
}

func (est *Estimator) width() float64 {
	if est.ClipWidth == 0 {
		return DefaultClipWidth
	}
	if est.ClipWidth < 0 {
		return math.Inf(1)
	}
	return est.ClipWidth
}

func (est *Estimator) Estimate(energies []float64, scores [][]float64) (vmc.EnergyStats, []float64) {
	n := len(energies)
	if n == 0 || len(scores) == 0 {
		return vmc.EnergyStats{}, nil
	}

	stats := vmc.EnergyStats{
		// raw statistics, reported as-is - a divergent sample shows up
		// here instead of being hidden
		Mean:     stat.Mean(energies, nil),
		Variance: stat.Variance(energies, nil),
	}
	stats.StdErr = math.Sqrt(stats.Variance / float64(n))

	clipped, nclip := Clip(energies, est.width())
	stats.Clipped = stat.Mean(clipped, nil)
	stats.Nclipped = nclip
	for _, e := range energies {
		if math.IsNaN(e) || math.IsInf(e, 0) {
			stats.Nbad++
		}
	}

	grad := make([]float64, len(scores[0]))
	for i := range clipped {
		dev := clipped[i] - stats.Clipped
		floats.AddScaled(grad, 2*dev/float64(n), scores[i])
	}
	return stats, grad
}
