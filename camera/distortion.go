package camera

import "gonum.org/v1/gonum/mat"

// approximateInverseDistortion least-squares fits an nInverse-coefficient
// polynomial approximating the functional inverse of a forward radial
// distortion model. The forward model maps an undistorted radius r to
//
//	rd = r * (1 + forward[0]*r + forward[1]*r^2 + ...)
//
// and the fitted inverse maps rd back as
//
//	r ~ rd * (1 + c[0]*rd + c[1]*rd^2 + ...)
//
// sampled uniformly over (0, maxRadius]. There is no closed-form inverse of
// the forward polynomial; this is what makes undistorting observed pixels
// cheap at lookup time.
func approximateInverseDistortion(forward []float64, nInverse int, maxRadius float64) []float64 {
	const nSamples = 100
	a := mat.NewDense(nSamples, nInverse, nil)
	b := mat.NewVecDense(nSamples, nil)
	for i := 0; i < nSamples; i++ {
		r := maxRadius * float64(i+1) / nSamples
		factor := 1.0
		rp := r
		for _, coeff := range forward {
			factor += coeff * rp
			rp *= r
		}
		rd := r * factor
		// r - rd = c[0]*rd^2 + c[1]*rd^3 + ...
		pow := rd * rd
		for k := 0; k < nInverse; k++ {
			a.Set(i, k, pow)
			pow *= rd
		}
		b.SetVec(i, r-rd)
	}
	coeffs := mat.NewVecDense(nInverse, nil)
	if err := coeffs.SolveVec(a, b); err != nil {
		if _, ok := err.(mat.Condition); !ok {
			return make([]float64, nInverse)
		}
	}
	out := make([]float64, nInverse)
	for i := range out {
		out[i] = coeffs.AtVec(i)
	}
	return out
}
