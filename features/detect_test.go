package features

import (
	"testing"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"github.com/reconstrukt/sfm/camera"
)

// fakeDetector yields a fixed number of keypoints per image, positioned from
// the image name so tests can tell cameras apart. failOn fails Run for one
// image.
type fakeDetector struct {
	failOn string

	initOpts  Options
	maxWidth  int
	maxHeight int
	closed    bool
	lastImg   string
}

func (d *fakeDetector) Init(opts Options, maxWidth, maxHeight int) error {
	d.initOpts = opts
	d.maxWidth = maxWidth
	d.maxHeight = maxHeight
	return nil
}

func (d *fakeDetector) Run(imgFilename string) (int, error) {
	if imgFilename == d.failOn {
		return 0, errors.New("image decode failed")
	}
	d.lastImg = imgFilename
	return 2, nil
}

func (d *fakeDetector) Fetch(n int) ([]camera.Keypoint, *mat.Dense, error) {
	keys := make([]camera.Keypoint, n)
	descr := mat.NewDense(4, n, nil)
	for i := range keys {
		keys[i] = camera.Keypoint{
			Point: r2.Point{X: float64(len(d.lastImg)), Y: float64(i)},
			Scale: 2, Orientation: 0.5,
		}
		for j := 0; j < 4; j++ {
			descr.Set(j, i, float64(i*4+j))
		}
	}
	return keys, descr, nil
}

func (d *fakeDetector) Close() { d.closed = true }

func testCams() []camera.Camera {
	return []camera.Camera{
		camera.NewPinhole("a.jpg", 640, 480),
		camera.NewPinhole("bb.jpg", 1024, 768),
		camera.NewPinhole("ccc.jpg", 800, 600),
	}
}

func TestDetectBatch(t *testing.T) {
	logger := golog.NewTestLogger(t)
	det := &fakeDetector{}
	cams := testCams()
	var progress []int
	err := Detect(func() (Detector, error) { return det, nil }, DefaultOptions(), cams,
		func(done int) { progress = append(progress, done) }, logger)
	test.That(t, err, test.ShouldBeNil)

	// context sized to the batch maximum, torn down at the end
	test.That(t, det.maxWidth, test.ShouldEqual, 1024)
	test.That(t, det.maxHeight, test.ShouldEqual, 768)
	test.That(t, det.closed, test.ShouldBeTrue)
	test.That(t, progress, test.ShouldResemble, []int{0, 1, 2})

	for _, cam := range cams {
		test.That(t, cam.Keys(), test.ShouldHaveLength, 2)
		test.That(t, cam.Key(0).X, test.ShouldAlmostEqual, float64(len(cam.ImgFilename())))
	}
	// descriptors copied column by column
	descr := cams[0].Descriptors()
	rows, cols := descr.Dims()
	test.That(t, rows, test.ShouldEqual, 4)
	test.That(t, cols, test.ShouldEqual, 2)
	test.That(t, descr.At(3, 1), test.ShouldAlmostEqual, 7)
}

func TestDetectFactoryFailure(t *testing.T) {
	logger := golog.NewTestLogger(t)
	called := false
	err := Detect(func() (Detector, error) { return nil, errors.New("no GPU") },
		DefaultOptions(), testCams(), func(int) { called = true }, logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "no GPU")
	test.That(t, called, test.ShouldBeFalse)
}

func TestDetectCameraFailureIsSoft(t *testing.T) {
	logger := golog.NewTestLogger(t)
	det := &fakeDetector{failOn: "bb.jpg"}
	cams := testCams()
	var progress []int
	err := Detect(func() (Detector, error) { return det, nil }, DefaultOptions(), cams,
		func(done int) { progress = append(progress, done) }, logger)

	// the failed camera is reported but the run completes
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "bb.jpg")
	test.That(t, progress, test.ShouldResemble, []int{0, 1, 2})
	test.That(t, cams[0].Keys(), test.ShouldHaveLength, 2)
	test.That(t, cams[1].Keys(), test.ShouldHaveLength, 0)
	test.That(t, cams[2].Keys(), test.ShouldHaveLength, 2)
}

func TestDetectEmptyBatch(t *testing.T) {
	logger := golog.NewTestLogger(t)
	err := Detect(func() (Detector, error) {
		t.Fatal("factory must not be called for an empty batch")
		return nil, nil
	}, DefaultOptions(), nil, nil, logger)
	test.That(t, err, test.ShouldBeNil)
}

func TestDetectOne(t *testing.T) {
	logger := golog.NewTestLogger(t)
	det := &fakeDetector{}
	cam := camera.NewPinhole("solo.jpg", 320, 240)
	err := DetectOne(func() (Detector, error) { return det, nil }, DefaultOptions(), cam, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, det.maxWidth, test.ShouldEqual, 320)
	test.That(t, det.maxHeight, test.ShouldEqual, 240)
	test.That(t, cam.Keys(), test.ShouldHaveLength, 2)
}
