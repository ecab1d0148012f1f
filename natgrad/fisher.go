package natgrad

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Op applies a curvature matrix to a vector without materializing the
// matrix.  Iterative solvers consume curvature exclusively through this.
type Op func(v []float64) []float64

// center returns per-sample score deviations from the batch mean score.
func center(scores [][]float64) [][]float64 {
	n := len(scores)
	p := len(scores[0])
	mean := make([]float64, p)
	for _, s := range scores {
		floats.Add(mean, s)
	}
	floats.Scale(1/float64(n), mean)

	centered := make([][]float64, n)
	for i, s := range scores {
		c := append([]float64{}, s...)
		floats.Sub(c, mean)
		centered[i] = c
	}
	return centered
}

// FisherOp returns the damped empirical Fisher operator
//
//	F v = cov(score) v + damping v
//
// as a matrix-free product over the centered score vectors.  The covariance
// uses the same n-1 normalization as the dense path.
func FisherOp(scores [][]float64, damping float64) Op {
	centered := center(scores)
	n := len(centered)
	norm := 1.0
	if n > 1 {
		norm = 1 / float64(n-1)
	}
	return func(v []float64) []float64 {
		out := make([]float64, len(v))
		for _, c := range centered {
			floats.AddScaled(out, norm*floats.Dot(c, v), c)
		}
		floats.AddScaled(out, damping, v)
		return out
	}
}

// Fisher materializes the empirical Fisher matrix, the sample covariance of
// the score vectors.  Only viable for modest parameter counts - larger
// problems go through FisherOp.
func Fisher(scores [][]float64) *mat.SymDense {
	n := len(scores)
	p := len(scores[0])
	data := make([]float64, 0, n*p)
	for _, s := range scores {
		data = append(data, s...)
	}
	F := mat.NewSymDense(p, nil)
	stat.CovarianceMatrix(F, mat.NewDense(n, p, data), nil)
	return F
}

// diagMean is the average diagonal entry of the score covariance, used to
// scale the fallback update when a solve fails.
func diagMean(scores [][]float64) float64 {
	centered := center(scores)
	n := len(centered)
	p := len(centered[0])
	if n < 2 {
		return 0
	}
	tot := 0.0
	for _, c := range centered {
		tot += floats.Dot(c, c)
	}
	return tot / float64(n-1) / float64(p)
}
