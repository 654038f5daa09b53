// Package camera implements the camera models used by the incremental
// reconstruction pipeline: a calibrated pinhole camera and a pinhole camera
// with radial lens distortion. A camera owns its image metadata and detected
// features, exposes its optimizable parameters as a flat vector, and produces
// the reprojection-residual terms an external nonlinear least-squares solver
// consumes.
package camera

import (
	"image"
	// Registered for image dimension probing.
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"
	"gonum.org/v1/gonum/mat"
)

// Keypoint is a single detected image feature. Scale and Orientation come
// from the detector and are not used by projection.
type Keypoint struct {
	Point       r2.Point
	Scale       float64
	Orientation float64
}

// ResidualFunc evaluates a residual vector from a raw camera parameter
// vector and a raw 3D point (x, y, z). It reads the parameter vector rather
// than the camera it was created from, so an optimizer can probe candidate
// parameters without mutating the camera.
type ResidualFunc func(camParams, point, residual []float64)

// Camera is the polymorphic camera contract. Implementations are *Pinhole
// and *Radial.
type Camera interface {
	// Project maps a 3D world point to a pixel.
	Project(pt r3.Vector) r2.Point
	// KeyNormalized maps the i-th observed keypoint back toward normalized
	// camera coordinates, undoing the principal point, focal scaling and
	// (approximately) lens distortion. Zero focal length is a caller error.
	KeyNormalized(i int) r2.Point

	// NumParams is the length of the optimizable parameter vector.
	NumParams() int
	// Params serializes the optimizable parameters into a fresh vector.
	Params() []float64
	// SetParams deserializes a full parameter vector. The layout and length
	// must match NumParams; a mismatch panics.
	SetParams(params []float64)
	// SetParamsFromP decomposes a 3x4 projection matrix into focal length,
	// rotation and center. Distortion, if any, is reset to zero.
	SetParamsFromP(p *mat.Dense) error

	// CostFunction returns a 2-vector reprojection residual term for the
	// i-th observed keypoint: project(point) - observedPixel.
	CostFunction(keyIdx int) ResidualFunc
	// ConstraintsCostFunction returns a NumParams-vector of per-parameter
	// soft constraints, weight*(param - target). Zero weight disables one.
	ConstraintsCostFunction() ResidualFunc

	// Clone returns a deep copy preserving the dynamic variant.
	Clone() Camera

	ImgFilename() string
	ImgWidth() int
	ImgHeight() int

	Keys() []Keypoint
	Key(i int) r2.Point
	// Descriptors is the descriptor matrix, one column per keypoint.
	// Nil once ClearDescriptors has been called.
	Descriptors() *mat.Dense
	// ReserveFeatures allocates storage for num keypoints with descriptors
	// of the given dimension, discarding any previous features.
	ReserveFeatures(num, dim int)
	// SetFeature stores the i-th keypoint and its descriptor column.
	SetFeature(i int, x, y, scale, orientation float64, descr []float64)
	// ClearDescriptors releases descriptor storage. Keypoint positions
	// remain; matching is no longer possible afterwards.
	ClearDescriptors()
}

// ImageDims reads the pixel dimensions of an image file from its header.
func ImageDims(filename string) (width, height int, err error) {
	//nolint:gosec
	f, err := os.Open(filename)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "opening image %q", filename)
	}
	defer goutils.UncheckedErrorFunc(f.Close)
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "reading dimensions of %q", filename)
	}
	return cfg.Width, cfg.Height, nil
}

// imageData is the fixed, non-optimized part every camera variant carries.
type imageData struct {
	filename      string
	width, height int
	keys          []Keypoint
	descr         *mat.Dense
}

func (d *imageData) ImgFilename() string { return d.filename }
func (d *imageData) ImgWidth() int       { return d.width }
func (d *imageData) ImgHeight() int      { return d.height }

func (d *imageData) Keys() []Keypoint { return d.keys }

func (d *imageData) Key(i int) r2.Point { return d.keys[i].Point }

func (d *imageData) Descriptors() *mat.Dense { return d.descr }

func (d *imageData) ReserveFeatures(num, dim int) {
	d.keys = make([]Keypoint, num)
	if num > 0 && dim > 0 {
		d.descr = mat.NewDense(dim, num, nil)
	} else {
		d.descr = nil
	}
}

func (d *imageData) SetFeature(i int, x, y, scale, orientation float64, descr []float64) {
	d.keys[i] = Keypoint{Point: r2.Point{X: x, Y: y}, Scale: scale, Orientation: orientation}
	if d.descr != nil {
		d.descr.SetCol(i, descr)
	}
}

func (d *imageData) ClearDescriptors() { d.descr = nil }

// clone deep-copies the feature storage.
func (d *imageData) clone() imageData {
	out := *d
	out.keys = append([]Keypoint(nil), d.keys...)
	if d.descr != nil {
		out.descr = mat.DenseCopyOf(d.descr)
	}
	return out
}
