package sfmdata

import (
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/reconstrukt/sfm/camera"
)

func newTestDataset() *Dataset {
	ds := NewDataset("/data/scene")
	for i := 0; i < 3; i++ {
		cam := camera.NewPinhole("img.jpg", 640, 480)
		cam.SetFocal(600)
		cam.ReserveFeatures(2, 4)
		cam.SetFeature(0, 1, 2, 1, 0, []float64{1, 2, 3, 4})
		cam.SetFeature(1, 3, 4, 1, 0, []float64{5, 6, 7, 8})
		ds.AddCamera(cam)
	}
	ds.AddCamera(camera.NewRadial("img3.jpg", 640, 480))
	ds.Pairs()[[2]int{0, 1}] = CameraPair{Matches: [][2]int{{0, 0}, {1, 1}}, Dists: []float64{0.1, 0.2}}
	return ds
}

func TestDatasetBasics(t *testing.T) {
	ds := newTestDataset()
	test.That(t, ds.Dir(), test.ShouldEqual, "/data/scene")
	test.That(t, ds.NumCams(), test.ShouldEqual, 4)
	test.That(t, ds.IsReconstructed(0), test.ShouldBeFalse)
}

func TestDatasetMarkCamAsReconstructed(t *testing.T) {
	ds := newTestDataset()
	ds.Points().SetTracks([]NViewMatch{{0: 0, 1: 0, 2: 1}})
	ds.Points().AddPoints(0, 1, []int{0}, []r3.Vector{{X: 1, Y: 2, Z: 5}})

	ds.MarkCamAsReconstructed(2)
	test.That(t, ds.IsReconstructed(2), test.ShouldBeTrue)
	test.That(t, ds.Points().Data()[0].Reconstructed, test.ShouldResemble, NViewMatch{0: 0, 1: 0, 2: 1})
	test.That(t, ds.Points().Data()[0].ToReconstruct, test.ShouldResemble, NViewMatch{})
}

func TestDatasetMarkCamAsReconstructedSelective(t *testing.T) {
	ds := newTestDataset()
	views := make([]SplitNViewMatch, 2)
	for i := range views {
		views[i] = SplitNViewMatch{Observed: NViewMatch{0: i}, Unobserved: NViewMatch{3: i}}
	}
	ds.Points().AddPointsSplit(make([]r3.Vector, 2), views)

	ds.MarkCamAsReconstructedSelective(3, []int{0, 1}, []int{0})
	test.That(t, ds.IsReconstructed(3), test.ShouldBeTrue)
	test.That(t, ds.Points().Data()[0].Reconstructed, test.ShouldResemble, NViewMatch{0: 0, 3: 0})
	test.That(t, ds.Points().Data()[1].Reconstructed, test.ShouldResemble, NViewMatch{0: 1})
	test.That(t, ds.Points().Data()[1].ToReconstruct, test.ShouldResemble, NViewMatch{})
}

func TestDatasetClearDescriptors(t *testing.T) {
	ds := newTestDataset()
	ds.ClearDescriptors()
	for _, cam := range ds.Cams() {
		test.That(t, cam.Descriptors(), test.ShouldBeNil)
	}
	// keypoints survive
	test.That(t, ds.Cam(0).Keys(), test.ShouldHaveLength, 2)
}

func TestDatasetCopy(t *testing.T) {
	ds := newTestDataset()
	ds.Points().SetTracks([]NViewMatch{{0: 0, 1: 0}})
	ds.Points().AddPoints(0, 1, []int{0}, []r3.Vector{{X: 1}})
	ds.MarkCamAsReconstructed(0)

	cp := ds.Copy()

	// cameras are cloned polymorphically
	_, ok := cp.Cam(3).(*camera.Radial)
	test.That(t, ok, test.ShouldBeTrue)
	ds.Cam(0).(*camera.Pinhole).SetFocal(999)
	test.That(t, cp.Cam(0).(*camera.Pinhole).Focal(), test.ShouldAlmostEqual, 600)

	// pair store, reconstructed set and points are value copies
	delete(ds.Pairs(), [2]int{0, 1})
	test.That(t, cp.Pairs(), test.ShouldContainKey, [2]int{0, 1})
	ds.MarkCamAsReconstructed(1)
	test.That(t, cp.IsReconstructed(1), test.ShouldBeFalse)
	ds.Points().SetCoord(0, r3.Vector{X: 42})
	test.That(t, cp.Points().Coord(0).X, test.ShouldAlmostEqual, 1)
}
