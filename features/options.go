// Package features drives feature detection over a dataset's cameras. The
// detector itself is an external collaborator, typically GPU backed; this
// package owns its configuration, its per-batch lifecycle and the copying of
// detected features into the cameras' own storage.
package features

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/pkg/errors"
	goutils "go.viam.com/utils"
)

// Options configures a detection run. Numeric fields default to -1 meaning
// unset, in which case the detector falls back to its own default.
type Options struct {
	// MaxWorkingDimension caps the working image size; unset means no cap.
	MaxWorkingDimension int
	// FirstOctave is the index of the first pyramid octave; -1 upsamples
	// the input image once.
	FirstOctave int
	// MaxOctaves limits the pyramid depth; unset means automatic.
	MaxOctaves int
	// DogLevelsInAnOctave is the number of difference-of-Gaussian levels
	// per octave; unset means the detector default.
	DogLevelsInAnOctave int
	// DogThresh and EdgeThresh are the detector's response thresholds;
	// unset means the detector defaults.
	DogThresh  float64
	EdgeThresh float64
	// DetectUpright disables multi-orientation detection, forcing a single
	// fixed orientation per feature.
	DetectUpright bool
	// VerbosityLevel is passed through to the detector.
	VerbosityLevel int
}

// DefaultOptions returns options with every tunable unset.
func DefaultOptions() Options {
	return Options{
		MaxWorkingDimension: -1,
		FirstOctave:         -1,
		MaxOctaves:          -1,
		DogLevelsInAnOctave: -1,
		DogThresh:           -1,
		EdgeThresh:          -1,
	}
}

// IsSetMaxWorkingDimension reports whether the cap was set.
func (o *Options) IsSetMaxWorkingDimension() bool { return o.MaxWorkingDimension >= 0 }

// IsSetMaxOctaves reports whether the octave limit was set.
func (o *Options) IsSetMaxOctaves() bool { return o.MaxOctaves >= 0 }

// IsSetDogLevelsInAnOctave reports whether the level count was set.
func (o *Options) IsSetDogLevelsInAnOctave() bool { return o.DogLevelsInAnOctave >= 0 }

// IsSetDogThresh reports whether the DoG threshold was set.
func (o *Options) IsSetDogThresh() bool { return o.DogThresh >= 0 }

// IsSetEdgeThresh reports whether the edge threshold was set.
func (o *Options) IsSetEdgeThresh() bool { return o.EdgeThresh >= 0 }

// Write emits the human-readable option report, one line per option. Unset
// numeric options are printed as their sentinel value.
func (o *Options) Write(w io.Writer) error {
	_, err := fmt.Fprintf(w,
		" maxWorkingDimension: %d\n"+
			" firstOctave: %d\n"+
			" maxOctaves: %d\n"+
			" dogLevelsInAnOctave: %d\n"+
			" dogThresh: %g\n"+
			" edgeThresh: %g\n"+
			" detectUpright: %t\n"+
			" verbosityLevel: %d\n",
		o.MaxWorkingDimension, o.FirstOctave, o.MaxOctaves, o.DogLevelsInAnOctave,
		o.DogThresh, o.EdgeThresh, o.DetectUpright, o.VerbosityLevel)
	return err
}

// WriteToFile persists the option report.
func (o *Options) WriteToFile(path string) error {
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating option report %q", path)
	}
	defer goutils.UncheckedErrorFunc(f.Close)
	return o.Write(f)
}

// Args converts the options to the flag form SiftGPU-style detectors parse.
func (o *Options) Args() []string {
	args := []string{"-fo", strconv.Itoa(o.FirstOctave)}
	if o.IsSetMaxWorkingDimension() {
		args = append(args, "-maxd", strconv.Itoa(o.MaxWorkingDimension))
	}
	if o.IsSetMaxOctaves() {
		args = append(args, "-no", strconv.Itoa(o.MaxOctaves))
	}
	if o.IsSetDogLevelsInAnOctave() {
		args = append(args, "-d", strconv.Itoa(o.DogLevelsInAnOctave))
	}
	if o.IsSetDogThresh() {
		args = append(args, "-t", strconv.FormatFloat(o.DogThresh, 'g', -1, 64))
	}
	if o.IsSetEdgeThresh() {
		args = append(args, "-e", strconv.FormatFloat(o.EdgeThresh, 'g', -1, 64))
	}
	if o.DetectUpright {
		// fix orientation and allow at most one orientation per feature
		args = append(args, "-ofix", "-m", "-mo", "1")
	}
	return append(args, "-v", strconv.Itoa(o.VerbosityLevel))
}
