// Package adjust refines camera parameters and point coordinates by
// nonlinear least squares. It only assembles the parameter vectors and
// residual terms the cameras and the point manager expose into one nlopt
// problem and writes the refined values back; the optimization loop itself
// belongs to nlopt.
package adjust

import (
	"github.com/edaniels/golog"
	"github.com/go-nlopt/nlopt"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/reconstrukt/sfm/camera"
	"github.com/reconstrukt/sfm/sfmdata"
)

const gradientJump = 1e-7

// Options tunes a bundle adjustment run.
type Options struct {
	// MaxEvaluations bounds the number of objective evaluations.
	MaxEvaluations int
	// Tolerance is the absolute objective-change stopping criterion.
	Tolerance float64
	// IncludeConstraints adds each camera's soft parameter priors to the
	// objective.
	IncludeConstraints bool
}

// DefaultOptions returns the options used by the incremental pipeline
// between camera registrations.
func DefaultOptions() Options {
	return Options{
		MaxEvaluations:     5000,
		Tolerance:          1e-12,
		IncludeConstraints: true,
	}
}

// Cameras refines the parameters of the selected cameras against the points
// they already observe, holding point coordinates fixed.
func Cameras(ds *sfmdata.Dataset, camIdxs []int, opts Options, logger golog.Logger) error {
	return run(ds, camIdxs, false, opts, logger)
}

// CamerasAndPoints refines the selected cameras' parameters together with
// the coordinates of every point they observe.
func CamerasAndPoints(ds *sfmdata.Dataset, camIdxs []int, opts Options, logger golog.Logger) error {
	return run(ds, camIdxs, true, opts, logger)
}

// residualTerm is one reprojection residual: a camera's cost function bound
// to one of its reconstructed observations of one point.
type residualTerm struct {
	camOrd int
	ptSlot int
	fn     camera.ResidualFunc
}

func run(ds *sfmdata.Dataset, camIdxs []int, adjustPoints bool, opts Options, logger golog.Logger) error {
	points := ds.Points()
	data := points.Data()

	// Collect residual terms and the set of participating points.
	var terms []residualTerm
	ptSlots := make(map[int]int)
	var ptIdxs []int
	for ord, camIdx := range camIdxs {
		cam := ds.Cam(camIdx)
		for ptIdx := range data {
			keyIdx, ok := data[ptIdx].Reconstructed[camIdx]
			if !ok {
				continue
			}
			slot, ok := ptSlots[ptIdx]
			if !ok {
				slot = len(ptIdxs)
				ptSlots[ptIdx] = slot
				ptIdxs = append(ptIdxs, ptIdx)
			}
			terms = append(terms, residualTerm{camOrd: ord, ptSlot: slot, fn: cam.CostFunction(keyIdx)})
		}
	}
	if len(terms) == 0 {
		return nil
	}

	// Pack camera parameters, then point coordinates if they take part.
	camOffsets := make([]int, len(camIdxs))
	var x []float64
	for ord, camIdx := range camIdxs {
		camOffsets[ord] = len(x)
		x = append(x, ds.Cam(camIdx).Params()...)
	}
	nCamParams := len(x)
	ptCoords := make([]float64, 3*len(ptIdxs))
	for slot, ptIdx := range ptIdxs {
		coord := points.Coord(ptIdx)
		ptCoords[3*slot] = coord.X
		ptCoords[3*slot+1] = coord.Y
		ptCoords[3*slot+2] = coord.Z
	}
	if adjustPoints {
		x = append(x, ptCoords...)
	}

	camParamsAt := func(x []float64, ord int) []float64 {
		end := nCamParams
		if ord+1 < len(camOffsets) {
			end = camOffsets[ord+1]
		}
		return x[camOffsets[ord]:end]
	}
	pointAt := func(x []float64, slot int) []float64 {
		if adjustPoints {
			return x[nCamParams+3*slot : nCamParams+3*slot+3]
		}
		return ptCoords[3*slot : 3*slot+3]
	}

	var constraints []camera.ResidualFunc
	if opts.IncludeConstraints {
		constraints = make([]camera.ResidualFunc, len(camIdxs))
		for ord, camIdx := range camIdxs {
			constraints[ord] = ds.Cam(camIdx).ConstraintsCostFunction()
		}
	}

	residBuf := make([]float64, 2)
	cost := func(x []float64) float64 {
		total := 0.0
		for _, t := range terms {
			t.fn(camParamsAt(x, t.camOrd), pointAt(x, t.ptSlot), residBuf)
			total += residBuf[0]*residBuf[0] + residBuf[1]*residBuf[1]
		}
		for ord, constraint := range constraints {
			camParams := camParamsAt(x, ord)
			resid := make([]float64, len(camParams))
			constraint(camParams, nil, resid)
			for _, r := range resid {
				total += r * r
			}
		}
		return total
	}

	opt, err := nlopt.NewNLopt(nlopt.LD_SLSQP, uint(len(x)))
	if err != nil {
		return errors.Wrap(err, "nlopt creation error")
	}
	defer opt.Destroy()

	objective := func(x, gradient []float64) float64 {
		v := cost(x)
		if len(gradient) > 0 {
			// central differences; the residual terms are cheap enough
			// that an analytic Jacobian has not been worth the upkeep
			for j := range x {
				orig := x[j]
				x[j] = orig + gradientJump
				fp := cost(x)
				x[j] = orig - gradientJump
				fm := cost(x)
				x[j] = orig
				gradient[j] = (fp - fm) / (2 * gradientJump)
			}
		}
		return v
	}
	if err := opt.SetMinObjective(objective); err != nil {
		return errors.Wrap(err, "setting objective")
	}
	if err := opt.SetFtolAbs(opts.Tolerance); err != nil {
		return errors.Wrap(err, "setting tolerance")
	}
	if err := opt.SetMaxEval(opts.MaxEvaluations); err != nil {
		return errors.Wrap(err, "setting evaluation limit")
	}

	initial := cost(x)
	solution, final, err := opt.Optimize(x)
	if err != nil {
		return errors.Wrap(err, "bundle adjustment failed")
	}
	logger.Debugw("bundle adjustment finished",
		"cameras", len(camIdxs), "points", len(ptIdxs), "residuals", len(terms),
		"initialCost", initial, "finalCost", final)

	for ord, camIdx := range camIdxs {
		ds.Cam(camIdx).SetParams(camParamsAt(solution, ord))
	}
	if adjustPoints {
		for slot, ptIdx := range ptIdxs {
			pt := pointAt(solution, slot)
			points.SetCoord(ptIdx, r3.Vector{X: pt[0], Y: pt[1], Z: pt[2]})
		}
	}
	return nil
}
