package adjust

import (
	"testing"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/reconstrukt/sfm/camera"
	"github.com/reconstrukt/sfm/sfmdata"
)

// newTestScene builds two cameras observing a handful of points, with every
// keypoint placed at the exact projection of its point. The reprojection
// error of the scene as built is zero.
func newTestScene(t *testing.T) (*sfmdata.Dataset, []r3.Vector) {
	t.Helper()
	pts := []r3.Vector{
		{X: 0, Y: 0, Z: 5},
		{X: 1, Y: 1, Z: 6},
		{X: -1, Y: 0.5, Z: 4},
		{X: 0.5, Y: -1, Z: 5.5},
		{X: -0.3, Y: -0.6, Z: 4.5},
	}
	ds := sfmdata.NewDataset("scene")
	centers := []r3.Vector{{}, {X: 0.4, Y: 0.1, Z: 0}}
	for _, center := range centers {
		cam := camera.NewPinhole("img.jpg", 640, 480)
		cam.SetFocal(500)
		cam.SetCenter(center)
		cam.ReserveFeatures(len(pts), 0)
		for i, pt := range pts {
			px := cam.Project(pt)
			cam.SetFeature(i, px.X, px.Y, 1, 0, nil)
		}
		ds.AddCamera(cam)
	}

	views := make([]sfmdata.SplitNViewMatch, len(pts))
	for i := range views {
		views[i] = sfmdata.SplitNViewMatch{Observed: sfmdata.NViewMatch{0: i, 1: i}}
	}
	ds.Points().AddPointsSplit(pts, views)
	ds.MarkCamAsReconstructed(0)
	ds.MarkCamAsReconstructed(1)
	return ds, pts
}

// reprojCost sums squared pixel residuals over every reconstructed
// observation.
func reprojCost(ds *sfmdata.Dataset) float64 {
	total := 0.0
	for ptIdx, pd := range ds.Points().Data() {
		for camIdx, keyIdx := range pd.Reconstructed {
			cam := ds.Cam(camIdx)
			px := cam.(*camera.Pinhole).Project(ds.Points().Coord(ptIdx))
			key := cam.Key(keyIdx)
			dx, dy := px.X-key.X, px.Y-key.Y
			total += dx*dx + dy*dy
		}
	}
	return total
}

func perturbCam(cam camera.Camera, delta float64) {
	params := cam.Params()
	for i := range params {
		params[i] += delta * float64(i%3-1)
	}
	cam.SetParams(params)
}

func TestCamerasReducesCost(t *testing.T) {
	logger := golog.NewTestLogger(t)
	ds, _ := newTestScene(t)
	perturbCam(ds.Cam(1), 0.01)
	before := reprojCost(ds)
	test.That(t, before, test.ShouldBeGreaterThan, 0)

	err := Cameras(ds, []int{0, 1}, DefaultOptions(), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, reprojCost(ds), test.ShouldBeLessThan, before)
}

func TestCamerasAndPointsReducesCost(t *testing.T) {
	logger := golog.NewTestLogger(t)
	ds, pts := newTestScene(t)
	perturbCam(ds.Cam(0), 0.005)
	for i := range pts {
		ds.Points().SetCoord(i, pts[i].Add(r3.Vector{X: 0.02, Y: -0.01, Z: 0.03}))
	}
	before := reprojCost(ds)
	test.That(t, before, test.ShouldBeGreaterThan, 0)

	err := CamerasAndPoints(ds, []int{0, 1}, DefaultOptions(), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, reprojCost(ds), test.ShouldBeLessThan, before)
}

func TestCamerasNoObservations(t *testing.T) {
	logger := golog.NewTestLogger(t)
	ds := sfmdata.NewDataset("empty")
	ds.AddCamera(camera.NewPinhole("img.jpg", 640, 480))
	err := Cameras(ds, []int{0}, DefaultOptions(), logger)
	test.That(t, err, test.ShouldBeNil)
}

func TestCamerasFocalConstraint(t *testing.T) {
	logger := golog.NewTestLogger(t)
	ds, _ := newTestScene(t)
	cam := ds.Cam(1).(*camera.Pinhole)
	cam.ConstrainFocal(500, 10)
	cam.SetFocal(520)
	before := reprojCost(ds)

	err := Cameras(ds, []int{0, 1}, DefaultOptions(), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, reprojCost(ds), test.ShouldBeLessThan, before)
	// the constraint pulls the focal back toward its target
	test.That(t, cam.Focal(), test.ShouldBeBetween, 495, 515)
}
