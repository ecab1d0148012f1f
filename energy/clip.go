package energy

import (
	"math"

	"github.com/petar/GoLLRB/llrb"
)

type sample float64

func (a sample) Less(than llrb.Item) bool { return a < than.(sample) }

// kth walks the ordered tree to the k-th smallest element (0-based).
func kth(t *llrb.LLRB, k int) float64 {
	i := 0
	v := math.NaN()
	t.AscendGreaterOrEqual(t.Min(), func(item llrb.Item) bool {
		if i == k {
			v = float64(item.(sample))
			return false
		}
		i++
		return true
	})
	return v
}

func treemedian(t *llrb.LLRB) float64 {
	n := t.Len()
	if n == 0 {
		return math.NaN()
	}
	if n%2 == 1 {
		return kth(t, n/2)
	}
	return 0.5 * (kth(t, n/2-1) + kth(t, n/2))
}

// medmad computes the median and the median absolute deviation of the finite
// entries of xs using ordered trees for the order statistics.
func medmad(xs []float64) (med, mad float64) {
	vals := llrb.New()
	for _, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			continue
		}
		vals.InsertNoReplace(sample(x))
	}
	if vals.Len() == 0 {
		return math.NaN(), math.NaN()
	}
	med = treemedian(vals)

	devs := llrb.New()
	vals.AscendGreaterOrEqual(vals.Min(), func(item llrb.Item) bool {
		devs.InsertNoReplace(sample(math.Abs(float64(item.(sample)) - med)))
		return true
	})
	return med, treemedian(devs)
}

// Clip limits each sample's deviation from the batch median to width MADs.
// A sample exactly at the boundary passes through unclipped.  Non-finite
// samples (flagged walkers) are pinned to the near boundary so every walker
// still contributes exactly one sample - dropping them would bias the
// estimator.  When the MAD is zero (all finite samples identical) there is
// no scale to clip against, so finite samples pass through and non-finite
// ones are pinned to the median.
func Clip(energies []float64, width float64) (clipped []float64, nclip int) {
	med, mad := medmad(energies)
	clipped = make([]float64, len(energies))

	if math.IsNaN(med) {
		// nothing finite in the batch
		for i := range clipped {
			clipped[i] = 0
		}
		return clipped, len(energies)
	}

	lo := med - width*mad
	hi := med + width*mad
	for i, e := range energies {
		switch {
		case math.IsNaN(e) || math.IsInf(e, 1):
			clipped[i] = hi
			nclip++
		case math.IsInf(e, -1):
			clipped[i] = lo
			nclip++
		case mad == 0:
			clipped[i] = e
		case e < lo:
			clipped[i] = lo
			nclip++
		case e > hi:
			clipped[i] = hi
			nclip++
		default:
			clipped[i] = e
		}
	}
	return clipped, nclip
}
