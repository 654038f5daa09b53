package features

import (
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gonum.org/v1/gonum/mat"

	"github.com/reconstrukt/sfm/camera"
)

// Detector is the per-batch contract with the external feature detector. A
// Detector is acquired for one detection run, initialized once with a
// pyramid sized to the run's largest image, used sequentially per camera and
// then closed.
type Detector interface {
	// Init configures the detector and sizes its working context.
	Init(opts Options, maxWidth, maxHeight int) error
	// Run detects features in the given image file and returns their count.
	Run(imgFilename string) (int, error)
	// Fetch retrieves the n detected keypoints and their descriptor matrix,
	// one column per keypoint.
	Fetch(n int) ([]camera.Keypoint, *mat.Dense, error)
	// Close releases the detection context.
	Close()
}

// DetectorFactory creates a fresh detector; failure models an unavailable
// GPU context.
type DetectorFactory func() (Detector, error)

// ProgressFunc is invoked after each camera in a batch run, successful or
// not, with the zero-based index of the camera just processed.
type ProgressFunc func(done int)

// Detect runs feature detection over a batch of cameras, copying detected
// features into each camera's own storage. The detection context is sized
// to the largest image in the batch and held for the whole run. A factory
// or Init failure aborts the batch before any camera is processed; a
// per-camera failure is soft: it is logged, the camera is left without
// features and the run continues. The returned error aggregates per-camera
// failures and is nil when every camera succeeded.
func Detect(factory DetectorFactory, opts Options, cams []camera.Camera,
	progress ProgressFunc, logger golog.Logger,
) error {
	if len(cams) == 0 {
		return nil
	}
	maxWidth, maxHeight := 0, 0
	for _, cam := range cams {
		maxWidth = max(maxWidth, cam.ImgWidth())
		maxHeight = max(maxHeight, cam.ImgHeight())
	}

	det, err := factory()
	if err != nil {
		logger.Errorw("could not create detection context", "error", err)
		return errors.Wrap(err, "creating detection context")
	}
	defer det.Close()
	if err := det.Init(opts, maxWidth, maxHeight); err != nil {
		logger.Errorw("could not initialize detection context", "error", err)
		return errors.Wrap(err, "initializing detection context")
	}

	var batchErr error
	for i, cam := range cams {
		if err := detectOne(det, cam); err != nil {
			logger.Errorw("feature detection failed", "image", cam.ImgFilename(), "error", err)
			batchErr = multierr.Append(batchErr,
				errors.Wrapf(err, "detecting features in %q", cam.ImgFilename()))
		}
		if progress != nil {
			progress(i)
		}
	}
	return batchErr
}

// DetectOne runs feature detection for a single camera with a context sized
// to its image alone.
func DetectOne(factory DetectorFactory, opts Options, cam camera.Camera, logger golog.Logger) error {
	det, err := factory()
	if err != nil {
		logger.Errorw("could not create detection context", "error", err)
		return errors.Wrap(err, "creating detection context")
	}
	defer det.Close()
	if err := det.Init(opts, cam.ImgWidth(), cam.ImgHeight()); err != nil {
		logger.Errorw("could not initialize detection context", "error", err)
		return errors.Wrap(err, "initializing detection context")
	}
	if err := detectOne(det, cam); err != nil {
		logger.Errorw("feature detection failed", "image", cam.ImgFilename(), "error", err)
		return errors.Wrapf(err, "detecting features in %q", cam.ImgFilename())
	}
	return nil
}

// detectOne runs the detector on one camera and copies the results into the
// camera's own storage immediately, so nothing references detector-owned
// buffers after the call.
func detectOne(det Detector, cam camera.Camera) error {
	n, err := det.Run(cam.ImgFilename())
	if err != nil {
		return err
	}
	keys, descr, err := det.Fetch(n)
	if err != nil {
		return err
	}
	dim := 0
	if descr != nil {
		dim, _ = descr.Dims()
	}
	cam.ReserveFeatures(len(keys), dim)
	var col []float64
	for i, kp := range keys {
		if descr != nil {
			col = mat.Col(col, i, descr)
		}
		cam.SetFeature(i, kp.Point.X, kp.Point.Y, kp.Scale, kp.Orientation, col)
	}
	return nil
}
