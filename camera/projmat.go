package camera

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// decomposeP factors a 3x4 projection matrix into a calibration matrix K
// with positive diagonal, a proper rotation R and the camera center C, such
// that P ~ K*R*[I|-C]. K is normalized so its bottom-right entry is 1.
func decomposeP(p *mat.Dense) (k, r *mat.Dense, center r3.Vector, err error) {
	rows, cols := p.Dims()
	if rows != 3 || cols != 4 {
		return nil, nil, r3.Vector{}, errors.Errorf("projection matrix must be 3x4, got %dx%d", rows, cols)
	}
	pp := mat.DenseCopyOf(p)
	m := mat.DenseCopyOf(pp.Slice(0, 3, 0, 3))
	// P is defined up to scale; fix the sign so the rotation is proper.
	if mat.Det(m) < 0 {
		pp.Scale(-1, pp)
		m.Scale(-1, m)
	}

	// RQ decomposition of the left 3x3 block via QR of its row-reversed
	// transpose.
	rev := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			rev.Set(i, j, m.At(2-i, j))
		}
	}
	var qr mat.QR
	qr.Factorize(rev.T())
	var qm, rm mat.Dense
	qr.QTo(&qm)
	qr.RTo(&rm)

	k = mat.NewDense(3, 3, nil)
	r = mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			k.Set(i, j, rm.At(2-j, 2-i))
			r.Set(i, j, qm.At(j, 2-i))
		}
	}
	// Flip signs so K has a positive diagonal.
	for j := 0; j < 3; j++ {
		if k.At(j, j) < 0 {
			for i := 0; i < 3; i++ {
				k.Set(i, j, -k.At(i, j))
				r.Set(j, i, -r.At(j, i))
			}
		}
	}
	if kz := k.At(2, 2); kz != 0 {
		k.Scale(1/kz, k)
	}

	// C = -M^-1 * p4.
	b := mat.NewVecDense(3, []float64{-pp.At(0, 3), -pp.At(1, 3), -pp.At(2, 3)})
	var cvec mat.VecDense
	if serr := cvec.SolveVec(m, b); serr != nil {
		if _, ok := serr.(mat.Condition); !ok {
			return nil, nil, r3.Vector{}, errors.Wrap(serr, "projection matrix is singular")
		}
	}
	center = r3.Vector{X: cvec.AtVec(0), Y: cvec.AtVec(1), Z: cvec.AtVec(2)}
	return k, r, center, nil
}
