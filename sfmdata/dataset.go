package sfmdata

import (
	"github.com/reconstrukt/sfm/camera"
)

// CameraPair holds the pairwise geometric relationship between two cameras:
// matched keypoint index pairs and their descriptor distances. The core
// consumes pairs but never mutates them.
type CameraPair struct {
	Matches [][2]int
	Dists   []float64
}

func (p CameraPair) clone() CameraPair {
	return CameraPair{
		Matches: append([][2]int(nil), p.Matches...),
		Dists:   append([]float64(nil), p.Dists...),
	}
}

// Dataset aggregates everything a reconstruction run owns: the cameras, the
// pair store, the set of already-reconstructed camera indices and the point
// manager. Not safe for concurrent use.
type Dataset struct {
	dir           string
	cams          []camera.Camera
	pairs         map[[2]int]CameraPair
	reconstructed map[int]struct{}
	points        Points
}

// NewDataset creates an empty dataset rooted at the given image directory.
func NewDataset(dir string) *Dataset {
	return &Dataset{
		dir:           dir,
		pairs:         make(map[[2]int]CameraPair),
		reconstructed: make(map[int]struct{}),
	}
}

// Dir returns the image directory this dataset was built from.
func (d *Dataset) Dir() string { return d.dir }

// AddCamera appends a camera and returns its index.
func (d *Dataset) AddCamera(cam camera.Camera) int {
	d.cams = append(d.cams, cam)
	return len(d.cams) - 1
}

// NumCams returns the number of cameras.
func (d *Dataset) NumCams() int { return len(d.cams) }

// Cam returns the camera at the given index.
func (d *Dataset) Cam(idx int) camera.Camera { return d.cams[idx] }

// Cams returns the owned camera list.
func (d *Dataset) Cams() []camera.Camera { return d.cams }

// Pairs returns the pair store, keyed by (lower camera index, higher camera
// index).
func (d *Dataset) Pairs() map[[2]int]CameraPair { return d.pairs }

// Points returns the point manager.
func (d *Dataset) Points() *Points { return &d.points }

// ReconstructedCams returns the set of camera indices already integrated
// into the reconstruction.
func (d *Dataset) ReconstructedCams() map[int]struct{} { return d.reconstructed }

// IsReconstructed reports whether the camera has been integrated.
func (d *Dataset) IsReconstructed(camIdx int) bool {
	_, ok := d.reconstructed[camIdx]
	return ok
}

// MarkCamAsReconstructed records the camera as integrated and promotes its
// pending observations across all points.
func (d *Dataset) MarkCamAsReconstructed(camIdx int) {
	d.reconstructed[camIdx] = struct{}{}
	d.points.MarkCamAsReconstructed(camIdx)
}

// MarkCamAsReconstructedSelective records the camera as integrated and
// promotes its pending observations only for the inlier points, discarding
// the rest. See Points.MarkCamAsReconstructedSelective.
func (d *Dataset) MarkCamAsReconstructedSelective(camIdx int, correspondingPoints, inliers []int) {
	d.reconstructed[camIdx] = struct{}{}
	d.points.MarkCamAsReconstructedSelective(camIdx, correspondingPoints, inliers)
}

// ClearDescriptors releases every camera's descriptor storage. Keypoint
// positions remain, but no further matching is possible.
func (d *Dataset) ClearDescriptors() {
	for _, cam := range d.cams {
		cam.ClearDescriptors()
	}
}

// Copy returns a deep copy: cameras are cloned polymorphically, the pair
// store, reconstructed set and points are duplicated.
func (d *Dataset) Copy() *Dataset {
	out := &Dataset{
		dir:           d.dir,
		cams:          make([]camera.Camera, len(d.cams)),
		pairs:         make(map[[2]int]CameraPair, len(d.pairs)),
		reconstructed: make(map[int]struct{}, len(d.reconstructed)),
		points:        d.points.Clone(),
	}
	for i, cam := range d.cams {
		out.cams[i] = cam.Clone()
	}
	for key, pair := range d.pairs {
		out.pairs[key] = pair.clone()
	}
	for idx := range d.reconstructed {
		out.reconstructed[idx] = struct{}{}
	}
	return out
}
