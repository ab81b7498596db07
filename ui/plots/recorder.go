package plots

import (
	"fmt"
	"path"
	"slices"
	"strings"
	"sync"

	"github.com/gomlx/nanograd/ml/data"
	"github.com/gomlx/nanograd/ml/train"
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"k8s.io/klog/v2"
)

// RecorderName is the name of the hooks registered by a Recorder in a train.Loop.
const RecorderName = "nanograd.ui.plots.Recorder"

// Recorder is a Plotter that keeps the points in memory, and optionally appends them to a file.
// It can be attached to a train.Loop to collect the metrics, and then save them as images with Save.
//
// It is safe for concurrent use.
type Recorder struct {
	mu         sync.Mutex
	points     []Point
	numSamples int

	writer  *PointsWriter
	fileErr error
}

var _ Plotter = (*Recorder)(nil)

// New creates an empty Recorder.
func New() *Recorder {
	return &Recorder{}
}

// WithFile makes the Recorder also append every point to filePath (as JSON lines), loadable with LoadPoints.
// Call Close to flush the file: errors opening or writing the file are returned by Close.
func (r *Recorder) WithFile(filePath string) *Recorder {
	r.writer, r.fileErr = OpenPointsWriter(filePath)
	if r.fileErr != nil {
		klog.Errorf("plots.Recorder: %v", r.fileErr)
	}
	return r
}

// Attach the recorder to the loop: it records the training metrics, and the evaluation metrics on
// evalDatasets, numSamples times during each run of the loop (see train.NTimesDuringLoop), and at the end.
//
// Evaluation resets the datasets, so they shouldn't be the same instance used for training.
func (r *Recorder) Attach(loop *train.Loop, numSamples int, evalDatasets ...train.Dataset) *Recorder {
	train.NTimesDuringLoop(loop, numSamples, RecorderName, 100, func(loop *train.Loop, metrics []float64) error {
		return AddTrainAndEvalMetrics(r, loop, metrics, evalDatasets)
	})
	loop.OnStart(RecorderName, 100, func(loop *train.Loop, _ train.Dataset) error {
		loop.SharedData[RecorderName] = r
		return nil
	})
	return r
}

// AddPoint implements Plotter.
func (r *Recorder) AddPoint(point Point) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.points = append(r.points, point)
	if r.writer != nil {
		_ = r.writer.Write(point)
	}
}

// DynamicSampleDone implements Plotter.
func (r *Recorder) DynamicSampleDone(incomplete bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.numSamples++
	if incomplete {
		klog.Warningf("plots.Recorder: sample #%d has NaN or infinite metrics", r.numSamples)
	}
}

// NumSamples returns the number of samples (calls to DynamicSampleDone) recorded so far.
func (r *Recorder) NumSamples() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.numSamples
}

// Points returns the points recorded so far.
func (r *Recorder) Points() Points {
	r.mu.Lock()
	defer r.mu.Unlock()
	return NewPoints(r.points)
}

// Close flushes and closes the file configured with WithFile, if any.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writer != nil {
		r.fileErr = r.writer.Close()
		r.writer = nil
	}
	if r.fileErr != nil {
		return errors.WithMessage(r.fileErr, "plots.Recorder.Close")
	}
	return nil
}

// MetricTypes returns the metric types recorded, sorted.
func (r *Recorder) MetricTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var types []string
	for _, p := range r.points {
		if !slices.Contains(types, p.MetricType) {
			types = append(types, p.MetricType)
		}
	}
	slices.Sort(types)
	return types
}

// Plot creates a gonum plot with one line per metric of the given metricType, over the global step.
func (r *Recorder) Plot(title, metricType string) (*plot.Plot, error) {
	points := r.Points()
	points.Filter(func(p Point) bool { return p.MetricType == metricType })
	names := points.MetricsNames()
	if len(names) == 0 {
		return nil, errors.Errorf("no points of metric type %q recorded", metricType)
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Global Step"
	p.Y.Label.Text = metricType
	p.Legend.Top = true
	p.Add(plotter.NewGrid())
	for ii, name := range names {
		var xys plotter.XYs
		points.Map(func(pt *Point) {
			if pt.MetricName == name {
				xys = append(xys, plotter.XY{X: pt.Step, Y: pt.Value})
			}
		})
		line, err := plotter.NewLine(xys)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to create line for metric %q", name)
		}
		line.Color = plotutil.Color(ii)
		line.Dashes = plotutil.Dashes(ii)
		p.Add(line)
		p.Legend.Add(name, line)
	}
	return p, nil
}

// Save renders the metrics of each recorded metric type to its own image file, in dir, named
// `<prefix>_<metric type>.<format>`. The format is one of the supported by gonum plot ("png", "svg", "pdf", ...).
//
// It returns the paths of the saved files.
func (r *Recorder) Save(dir, prefix, format string, width, height vg.Length) ([]string, error) {
	dir = data.ReplaceTildeInDir(dir)
	var files []string
	for _, metricType := range r.MetricTypes() {
		p, err := r.Plot(fmt.Sprintf("%s: %s", prefix, metricType), metricType)
		if err != nil {
			return nil, err
		}
		filePath := path.Join(dir, fmt.Sprintf("%s_%s.%s", prefix, sanitize(metricType), format))
		if err := p.Save(width, height, filePath); err != nil {
			return nil, errors.Wrapf(err, "failed to save plot to %q", filePath)
		}
		klog.V(1).Infof("saved %s plot to %q", metricType, filePath)
		files = append(files, filePath)
	}
	if len(files) == 0 {
		return nil, errors.New("no points recorded to plot")
	}
	return files, nil
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '/' || r == '\\' {
			return '_'
		}
		return r
	}, name)
}
