package camera

import (
	"fmt"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// Radial is a pinhole camera with two-coefficient radial lens distortion.
// Four inverse-distortion coefficients are derived from the forward ones by
// a least-squares polynomial fit and used to undistort observed pixels; they
// are never optimized independently.
type Radial struct {
	Pinhole
	radial    [2]float64
	invRadial [4]float64
}

// NewRadial creates a radially distorted pinhole camera for an image of
// known dimensions. Distortion starts at zero.
func NewRadial(imgFilename string, width, height int) *Radial {
	c := &Radial{Pinhole: *NewPinhole(imgFilename, width, height)}
	c.constraints = append(c.constraints, 0, 0)
	c.constraintWeights = append(c.constraintWeights, 0, 0)
	return c
}

// NewRadialFromImage creates a radially distorted camera, probing the image
// file for its dimensions.
func NewRadialFromImage(imgFilename string) (*Radial, error) {
	w, h, err := ImageDims(imgFilename)
	if err != nil {
		return nil, err
	}
	return NewRadial(imgFilename, w, h), nil
}

// Project maps a 3D world point to a pixel, applying the forward distortion
// 1 + r2*(k1 + r2*k2) to the normalized camera-space point.
func (c *Radial) Project(pt r3.Vector) r2.Point {
	p := quatRotate(c.rot, pt.Sub(c.center))
	x, y := p.X/p.Z, p.Y/p.Z
	r2sq := x*x + y*y
	d := 1 + r2sq*(c.radial[0]+r2sq*c.radial[1])
	return r2.Point{
		X: c.focal*d*x + c.principal.X,
		Y: c.focal*d*y + c.principal.Y,
	}
}

// KeyNormalized maps the i-th observed keypoint to normalized camera
// coordinates, multiplying by the fitted inverse-distortion polynomial. The
// result is an approximate undistortion, not an exact algebraic inverse.
func (c *Radial) KeyNormalized(i int) r2.Point {
	distorted := c.Pinhole.KeyNormalized(i)
	radius := distorted.Norm()
	undistort := 1 + radius*
		(c.invRadial[0]+radius*
			(c.invRadial[1]+radius*
				(c.invRadial[2]+radius*c.invRadial[3])))
	return distorted.Mul(undistort)
}

// NumParams returns the optimizable parameter count.
func (c *Radial) NumParams() int { return radialNumParams }

// Params serializes rotation, center, focal length and the two forward
// distortion coefficients.
func (c *Radial) Params() []float64 {
	params := c.Pinhole.Params()
	return append(params, c.radial[0], c.radial[1])
}

// SetParams deserializes a 9-element parameter vector and refits the
// inverse-distortion coefficients.
func (c *Radial) SetParams(params []float64) {
	if len(params) != radialNumParams {
		panic(fmt.Sprintf("camera: radial parameter vector must have length %d, got %d",
			radialNumParams, len(params)))
	}
	c.setBaseParams(params)
	c.radial[0] = params[radialIdx]
	c.radial[1] = params[radialIdx+1]
	c.updateInverseParams()
}

// SetParamsFromP decomposes a 3x4 projection matrix and resets distortion
// to zero.
func (c *Radial) SetParamsFromP(p *mat.Dense) error {
	if err := c.Pinhole.SetParamsFromP(p); err != nil {
		return err
	}
	c.radial = [2]float64{}
	c.invRadial = [4]float64{}
	return nil
}

// SetFocal sets the focal length and refits the inverse-distortion
// coefficients, whose calibrated radius range depends on it.
func (c *Radial) SetFocal(f float64) {
	c.Pinhole.SetFocal(f)
	c.updateInverseParams()
}

// CostFunction returns the reprojection residual term for the i-th keypoint.
func (c *Radial) CostFunction(keyIdx int) ResidualFunc {
	key := c.Key(keyIdx)
	principal := c.principal
	return func(camParams, point, residual []float64) {
		x, y := projectParams(camParams, principal, true, point)
		residual[0] = x - key.X
		residual[1] = y - key.Y
	}
}

// ConstrainRadial sets soft priors on the two forward distortion
// coefficients, typically toward zero to regularize weakly observed lenses.
func (c *Radial) ConstrainRadial(targets, weights [2]float64) {
	c.constraints[radialIdx] = targets[0]
	c.constraints[radialIdx+1] = targets[1]
	c.constraintWeights[radialIdx] = weights[0]
	c.constraintWeights[radialIdx+1] = weights[1]
}

// Clone returns a deep copy.
func (c *Radial) Clone() Camera {
	out := *c
	out.imageData = c.imageData.clone()
	out.constraints = append([]float64(nil), c.constraints...)
	out.constraintWeights = append([]float64(nil), c.constraintWeights...)
	return &out
}

// RadialParams returns the two forward distortion coefficients.
func (c *Radial) RadialParams() [2]float64 { return c.radial }

// InvRadialParams returns the four fitted inverse-distortion coefficients.
func (c *Radial) InvRadialParams() [4]float64 { return c.invRadial }

// updateInverseParams refits the inverse-distortion polynomial over the
// normalized radius range actually observable in this image: from zero to
// the distance between the principal point and the farthest image corner,
// divided by the focal length.
func (c *Radial) updateInverseParams() {
	if c.focal == 0 || (c.radial[0] == 0 && c.radial[1] == 0) {
		c.invRadial = [4]float64{}
		return
	}
	// forward distortion factor as a polynomial in the radius:
	// 1 + 0*r + k1*r^2 + 0*r^3 + k2*r^4
	forward := []float64{0, c.radial[0], 0, c.radial[1]}
	xMax := float64(c.width) - c.principal.X
	yMax := float64(c.height) - c.principal.Y
	maxRadius := math.Hypot(xMax, yMax) / c.focal
	inv := approximateInverseDistortion(forward, len(c.invRadial), maxRadius)
	copy(c.invRadial[:], inv)
}
