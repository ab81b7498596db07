// Package plots collects training metrics during a train.Loop, and renders them as tables or images.
package plots

import (
	"bufio"
	"cmp"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"math"
	"os"
	"slices"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/gomlx/nanograd/ml/data"
	"github.com/gomlx/nanograd/ml/train"
	"github.com/gomlx/nanograd/ml/train/metrics"
	"github.com/pkg/errors"
)

// TrainingPlotFileName is the default file name to store plot points collected during training.
const TrainingPlotFileName = "training_plot_points.json"

// Point is one measurement of a metric at a global step. It is used to save/load plots.
type Point struct {
	// MetricName is the long name of the metric, prefixed by "Train: " for training metrics, or
	// suffixed by " on <dataset>" for evaluation metrics.
	MetricName string `json:"metric"`

	// Short name, used in narrow tables.
	Short string `json:"short"`

	// MetricType, e.g. metrics.LossMetricType. Metrics of the same type are drawn in the same plot.
	MetricType string `json:"type"`

	// Step is the optimizer global step when the metric was measured.
	Step float64 `json:"step"`

	Value float64 `json:"value"`
}

// Plotter receives the points of the samples of metrics, implemented by Recorder.
type Plotter interface {
	// AddPoint to be drawn. One metric at a time.
	AddPoint(point Point)

	// DynamicSampleDone is called after all the points of one sample (one global step) were added.
	// incomplete is true if some metric was NaN or infinite, and hence skipped.
	DynamicSampleDone(incomplete bool)
}

// finite reports whether v is neither NaN nor infinite.
func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// addPoints adds one point per metric, naming it with nameFn. It returns false if any value is not finite.
func addPoints(plotter Plotter, step float64, ms []metrics.Interface, values []float64,
	nameFn func(m metrics.Interface) (name, short string)) (complete bool) {
	complete = true
	for ii, m := range ms {
		if !finite(values[ii]) {
			complete = false
			continue
		}
		name, short := nameFn(m)
		plotter.AddPoint(Point{MetricName: name, Short: short, MetricType: m.MetricType(), Step: step, Value: values[ii]})
	}
	return
}

// AddTrainAndEvalMetrics adds to plotter the training metrics of the current step (except the noisy
// "Batch Loss"), plus the results of evaluating the model on each of evalDatasets, sequentially.
func AddTrainAndEvalMetrics(plotter Plotter, loop *train.Loop, trainMetrics []float64, evalDatasets []train.Dataset) error {
	step := float64(loop.Trainer.Optimizer().GlobalStep())
	var ms []metrics.Interface
	var values []float64
	for ii, m := range loop.Trainer.TrainMetrics() {
		if m.Name() != "Batch Loss" {
			ms = append(ms, m)
			values = append(values, trainMetrics[ii])
		}
	}
	complete := addPoints(plotter, step, ms, values, func(m metrics.Interface) (string, string) {
		return "Train: " + m.Name(), "T/" + m.ShortName()
	})

	for _, ds := range evalDatasets {
		evalValues, err := loop.Trainer.Eval(ds)
		if err != nil {
			return err
		}
		complete = addPoints(plotter, step, loop.Trainer.EvalMetrics(), evalValues, func(m metrics.Interface) (string, string) {
			return fmt.Sprintf("%s on %s", m.Name(), ds.Name()), fmt.Sprintf("%s(%s)", m.ShortName(), train.ShortName(ds))
		}) && complete
	}
	plotter.DynamicSampleDone(!complete)
	return nil
}

// LoadPoints parses all plot points saved (as JSON lines) in the given file.
func LoadPoints(filePath string) ([]Point, error) {
	f, err := os.Open(data.ReplaceTildeInDir(filePath))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read plot points file %q", filePath)
	}
	defer func() { _ = f.Close() }()

	dec := json.NewDecoder(f)
	var points []Point
	for {
		var point Point
		if err := dec.Decode(&point); err == io.EOF {
			return points, nil
		} else if err != nil {
			return nil, errors.Wrapf(err, "failed decoding point #%d of file %q", len(points), filePath)
		}
		points = append(points, point)
	}
}

// PointsWriter appends points to a file, one JSON object per line.
// The first error is kept, and further writes are ignored.
type PointsWriter struct {
	filePath string
	f        *os.File
	buf      *bufio.Writer
	enc      *json.Encoder
	err      error
}

// OpenPointsWriter opens (or creates) filePath for appending points.
func OpenPointsWriter(filePath string) (*PointsWriter, error) {
	f, err := os.OpenFile(data.ReplaceTildeInDir(filePath), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0664)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open plot points file %q for append", filePath)
	}
	w := &PointsWriter{filePath: filePath, f: f, buf: bufio.NewWriter(f)}
	w.enc = json.NewEncoder(w.buf)
	return w, nil
}

// Write appends the point to the buffer. Points are only guaranteed to be in the file after Close.
func (w *PointsWriter) Write(point Point) error {
	if w.err == nil {
		if err := w.enc.Encode(point); err != nil {
			w.err = errors.Wrapf(err, "failed writing point %+v to %q", point, w.filePath)
		}
	}
	return w.err
}

// Close flushes and closes the file, returning the first error observed.
func (w *PointsWriter) Close() error {
	if w.err == nil {
		if err := w.buf.Flush(); err != nil {
			w.err = errors.Wrapf(err, "failed flushing %q", w.filePath)
		}
	}
	if err := w.f.Close(); err != nil && w.err == nil {
		w.err = errors.Wrapf(err, "failed closing %q", w.filePath)
	}
	return w.err
}

// Points indexes Point objects by their Step.
type Points map[float64][]Point

// NewPoints create a Points object from a collection of individual `Point`.
//
// See LoadPoints if you want to read `rawPoints` from a file.
func NewPoints(rawPoints []Point) Points {
	points := make(Points)
	for _, p := range rawPoints {
		points[p.Step] = append(points[p.Step], p)
	}
	return points
}

// Map executes the given function on all individual points, in `Step` order.
// Note that if `p.Step` change, it is not re-indexed.
func (points Points) Map(fn func(p *Point)) {
	for _, step := range slices.Sorted(maps.Keys(points)) {
		for ii := range points[step] {
			fn(&points[step][ii])
		}
	}
}

// Filter only keeps those points for which `fn` returns true, removing the other ones.
func (points Points) Filter(fn func(p Point) bool) {
	for step, stepPoints := range points {
		kept := slices.DeleteFunc(slices.Clone(stepPoints), func(p Point) bool { return !fn(p) })
		if len(kept) == 0 {
			delete(points, step)
			continue
		}
		points[step] = kept
	}
}

// Extract converts the Points structure back to a list of individual points, sorted by Point.Step.
func (points Points) Extract() (rawPoints []Point) {
	points.Map(func(p *Point) { rawPoints = append(rawPoints, *p) })
	return
}

// MetricsNames return the names of the metrics in the collection, sorted by their type and then by name.
func (points Points) MetricsNames() []string {
	nameToType := make(map[string]string)
	points.Map(func(p *Point) { nameToType[p.MetricName] = p.MetricType })
	return slices.SortedFunc(maps.Keys(nameToType), func(a, b string) int {
		return cmp.Or(cmp.Compare(nameToType[a], nameToType[b]), cmp.Compare(a, b))
	})
}

// TableForMetrics returns a table with the first column being the `Step` followed
// by the columns given by the `metrics` names.
// If `metrics` is empty, it will include all metrics in the table.
func (points Points) TableForMetrics(metricNames ...string) string {
	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	headerStyle := cellStyle.Bold(true).Reverse(true)
	table := lgtable.New().
		Border(lipgloss.RoundedBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == lgtable.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	if len(metricNames) == 0 {
		metricNames = points.MetricsNames()
	}
	table.Headers(append([]string{"Step"}, metricNames...)...)
	for _, step := range slices.Sorted(maps.Keys(points)) {
		row := make([]string, 1+len(metricNames))
		row[0] = strconv.FormatFloat(step, 'f', 0, 64)
		for _, pt := range points[step] {
			if idx := slices.Index(metricNames, pt.MetricName); idx != -1 {
				row[idx+1] = fmt.Sprintf("%f", pt.Value)
			}
		}
		table.Row(row...)
	}
	return table.String()
}

func (points Points) String() string {
	return points.TableForMetrics()
}
