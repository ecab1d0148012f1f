package bench

// FDiff derives ansatz derivatives from the log-amplitude alone by central
// finite differences.  It exists as a test oracle for checking analytic
// derivative implementations - finite differencing is never a production
// path for local energies.
type FDiff struct {
	// F evaluates log|psi| and the sign.
	F func(params, x []float64) (logpsi, sign float64)
	// H is the difference step; 0 means 1e-4.
	H float64
}

func (fd FDiff) step() float64 {
	if fd.H == 0 {
		return 1e-4
	}
	return fd.H
}

func (fd FDiff) LogPsi(params, x []float64) (logpsi, sign float64) {
	return fd.F(params, x)
}

func (fd FDiff) GradLog(params, x []float64) []float64 {
	h := fd.step()
	g := make([]float64, len(x))
	xx := append([]float64{}, x...)
	for j := range x {
		xx[j] = x[j] + h
		up, _ := fd.F(params, xx)
		xx[j] = x[j] - h
		dn, _ := fd.F(params, xx)
		xx[j] = x[j]
		g[j] = (up - dn) / (2 * h)
	}
	return g
}

func (fd FDiff) LapLog(params, x []float64) float64 {
	h := fd.step()
	mid, _ := fd.F(params, x)
	lap := 0.0
	xx := append([]float64{}, x...)
	for j := range x {
		xx[j] = x[j] + h
		up, _ := fd.F(params, xx)
		xx[j] = x[j] - h
		dn, _ := fd.F(params, xx)
		xx[j] = x[j]
		lap += (up - 2*mid + dn) / (h * h)
	}
	return lap
}

func (fd FDiff) Score(params, x []float64) []float64 {
	h := fd.step()
	s := make([]float64, len(params))
	pp := append([]float64{}, params...)
	for j := range params {
		pp[j] = params[j] + h
		up, _ := fd.F(pp, x)
		pp[j] = params[j] - h
		dn, _ := fd.F(pp, x)
		pp[j] = params[j]
		s[j] = (up - dn) / (2 * h)
	}
	return s
}
