package camera

import (
	"fmt"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
)

// Parameter vector layout shared by the camera variants. The pinhole part is
// 3 axis-angle rotation components, 3 center components and 1 focal length;
// the radial variant appends 2 forward distortion coefficients.
const (
	rotIdx    = 0
	centerIdx = 3
	focalIdx  = 6
	radialIdx = 7

	pinholeNumParams = 7
	radialNumParams  = 9
)

// Pinhole is a calibrated pinhole camera with a scalar focal length and the
// principal point fixed at the image center.
type Pinhole struct {
	imageData
	rot       quat.Number
	center    r3.Vector
	focal     float64
	principal r2.Point

	constraints       []float64
	constraintWeights []float64
}

// NewPinhole creates a pinhole camera for an image of known dimensions.
func NewPinhole(imgFilename string, width, height int) *Pinhole {
	return &Pinhole{
		imageData: imageData{filename: imgFilename, width: width, height: height},
		rot:       quat.Number{Real: 1},
		// assume the image center to be the principal point
		principal:         r2.Point{X: 0.5 * float64(width-1), Y: 0.5 * float64(height-1)},
		constraints:       make([]float64, pinholeNumParams),
		constraintWeights: make([]float64, pinholeNumParams),
	}
}

// NewPinholeFromImage creates a pinhole camera, probing the image file for
// its dimensions.
func NewPinholeFromImage(imgFilename string) (*Pinhole, error) {
	w, h, err := ImageDims(imgFilename)
	if err != nil {
		return nil, err
	}
	return NewPinhole(imgFilename, w, h), nil
}

// Project maps a 3D world point to a pixel: rotate into the camera frame,
// divide out depth, scale by focal length and offset by the principal point.
func (c *Pinhole) Project(pt r3.Vector) r2.Point {
	p := quatRotate(c.rot, pt.Sub(c.center))
	return r2.Point{
		X: c.focal*(p.X/p.Z) + c.principal.X,
		Y: c.focal*(p.Y/p.Z) + c.principal.Y,
	}
}

// KeyNormalized maps the i-th observed keypoint to normalized camera
// coordinates. The focal length must be nonzero.
func (c *Pinhole) KeyNormalized(i int) r2.Point {
	k := c.Key(i)
	return r2.Point{
		X: (k.X - c.principal.X) / c.focal,
		Y: (k.Y - c.principal.Y) / c.focal,
	}
}

// NumParams returns the optimizable parameter count.
func (c *Pinhole) NumParams() int { return pinholeNumParams }

// Params serializes rotation (axis-angle), center and focal length.
func (c *Pinhole) Params() []float64 {
	params := make([]float64, pinholeNumParams)
	aa := quatToR3(c.rot)
	params[rotIdx], params[rotIdx+1], params[rotIdx+2] = aa.X, aa.Y, aa.Z
	params[centerIdx], params[centerIdx+1], params[centerIdx+2] = c.center.X, c.center.Y, c.center.Z
	params[focalIdx] = c.focal
	return params
}

// SetParams deserializes a 7-element parameter vector.
func (c *Pinhole) SetParams(params []float64) {
	if len(params) != pinholeNumParams {
		panic(fmt.Sprintf("camera: pinhole parameter vector must have length %d, got %d",
			pinholeNumParams, len(params)))
	}
	c.setBaseParams(params)
}

func (c *Pinhole) setBaseParams(params []float64) {
	c.rot = r3ToQuat(r3.Vector{X: params[rotIdx], Y: params[rotIdx+1], Z: params[rotIdx+2]})
	c.center = r3.Vector{X: params[centerIdx], Y: params[centerIdx+1], Z: params[centerIdx+2]}
	c.focal = params[focalIdx]
}

// SetParamsFromP decomposes a 3x4 projection matrix into focal length,
// rotation and center.
func (c *Pinhole) SetParamsFromP(p *mat.Dense) error {
	k, r, center, err := decomposeP(p)
	if err != nil {
		return err
	}
	c.focal = 0.5 * (k.At(0, 0) + k.At(1, 1))
	c.rot = rotMatToQuat(r)
	c.center = center
	return nil
}

// CostFunction returns the reprojection residual term for the i-th keypoint.
func (c *Pinhole) CostFunction(keyIdx int) ResidualFunc {
	key := c.Key(keyIdx)
	principal := c.principal
	return func(camParams, point, residual []float64) {
		x, y := projectParams(camParams, principal, false, point)
		residual[0] = x - key.X
		residual[1] = y - key.Y
	}
}

// ConstraintsCostFunction returns the soft per-parameter prior term.
func (c *Pinhole) ConstraintsCostFunction() ResidualFunc {
	return constraintsResidual(c.constraints, c.constraintWeights)
}

// ConstrainFocal sets a soft prior on the focal length. A zero weight
// disables it.
func (c *Pinhole) ConstrainFocal(target, weight float64) {
	c.constraints[focalIdx] = target
	c.constraintWeights[focalIdx] = weight
}

// SetParamsConstraints replaces all per-parameter constraint targets and
// weights. Both slices must have NumParams entries.
func (c *Pinhole) SetParamsConstraints(constraints, weights []float64) {
	copy(c.constraints, constraints)
	copy(c.constraintWeights, weights)
}

// Clone returns a deep copy.
func (c *Pinhole) Clone() Camera {
	out := *c
	out.imageData = c.imageData.clone()
	out.constraints = append([]float64(nil), c.constraints...)
	out.constraintWeights = append([]float64(nil), c.constraintWeights...)
	return &out
}

// Focal returns the focal length in pixels.
func (c *Pinhole) Focal() float64 { return c.focal }

// SetFocal sets the focal length in pixels.
func (c *Pinhole) SetFocal(f float64) { c.focal = f }

// Center returns the camera center in world coordinates.
func (c *Pinhole) Center() r3.Vector { return c.center }

// SetCenter sets the camera center in world coordinates.
func (c *Pinhole) SetCenter(center r3.Vector) { c.center = center }

// PrincipalPoint returns the fixed principal point.
func (c *Pinhole) PrincipalPoint() r2.Point { return c.principal }

// RotationMatrix returns the world-to-camera rotation as a 3x3 matrix.
func (c *Pinhole) RotationMatrix() *mat.Dense { return quatToRotMat(c.rot) }

// SetRotationMatrix sets the world-to-camera rotation from a 3x3 matrix.
func (c *Pinhole) SetRotationMatrix(r *mat.Dense) { c.rot = rotMatToQuat(r) }

// K returns the 3x3 calibration matrix.
func (c *Pinhole) K() *mat.Dense {
	k := mat.NewDense(3, 3, nil)
	k.Set(0, 0, c.focal)
	k.Set(1, 1, c.focal)
	k.Set(0, 2, c.principal.X)
	k.Set(1, 2, c.principal.Y)
	k.Set(2, 2, 1)
	return k
}

// P returns the 3x4 projection matrix K*R*[I|-C].
func (c *Pinhole) P() *mat.Dense {
	r := quatToRotMat(c.rot)
	t := quatRotate(c.rot, c.center.Mul(-1))
	pose := mat.NewDense(3, 4, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			pose.Set(i, j, r.At(i, j))
		}
	}
	pose.Set(0, 3, t.X)
	pose.Set(1, 3, t.Y)
	pose.Set(2, 3, t.Z)
	p := mat.NewDense(3, 4, nil)
	p.Mul(c.K(), pose)
	return p
}

// projectParams projects a raw 3D point with a raw parameter vector,
// mirroring Project/Radial.Project exactly. With distort set, the two
// forward distortion coefficients are read from params[radialIdx:].
func projectParams(params []float64, principal r2.Point, distort bool, pt []float64) (float64, float64) {
	q := r3ToQuat(r3.Vector{X: params[rotIdx], Y: params[rotIdx+1], Z: params[rotIdx+2]})
	ctr := r3.Vector{X: params[centerIdx], Y: params[centerIdx+1], Z: params[centerIdx+2]}
	p := quatRotate(q, r3.Vector{X: pt[0], Y: pt[1], Z: pt[2]}.Sub(ctr))
	x, y := p.X/p.Z, p.Y/p.Z
	if distort {
		r2sq := x*x + y*y
		d := 1 + r2sq*(params[radialIdx]+r2sq*params[radialIdx+1])
		x *= d
		y *= d
	}
	f := params[focalIdx]
	return f*x + principal.X, f*y + principal.Y
}

func constraintsResidual(constraints, weights []float64) ResidualFunc {
	return func(camParams, _, residual []float64) {
		for i := range constraints {
			residual[i] = weights[i] * (camParams[i] - constraints[i])
		}
	}
}
