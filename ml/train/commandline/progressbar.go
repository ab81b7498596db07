package commandline

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/nanograd/ml/train"
	"github.com/muesli/termenv"
	"github.com/schollz/progressbar/v3"
)

// progressBar holds a progressbar being displayed.
type progressBar struct {
	out              io.Writer
	numSteps         int
	lastStepReported int
	bar              *progressbar.ProgressBar
	suffix           string
	plain            bool
	totalAmount      int

	// lipgloss-based rich and asynchronous display for terminals.
	termenv          *termenv.Output
	statsStyle       lipgloss.Style
	statsTable       *lgtable.Table
	isFirstOutput    bool
	updates          chan progressBarUpdate
	asyncUpdatesDone sync.WaitGroup
}

// Write implements io.Writer, and appends the current suffix with metrics to each
// line. It is meant to be used as the writer for the enclosed progressbar.ProgressBar,
// so the progress bar and its suffix are written in the same write operation.
func (pBar *progressBar) Write(data []byte) (n int, err error) {
	newData := append(data, []byte(pBar.suffix)...)
	n, err = pBar.out.Write(newData)
	if err == nil {
		n = len(data)
	}
	return
}

func (pBar *progressBar) onStart(loop *train.Loop, ds train.Dataset) error {
	pBar.lastStepReported = loop.LoopStep
	pBar.totalAmount = 0
	var stepsMsg string
	if loop.EndStep < 0 {
		pBar.numSteps = 1000 // Guess for now.
	} else {
		pBar.numSteps = loop.EndStep - loop.StartStep
		stepsMsg = fmt.Sprintf(" (%s steps)", humanize.Comma(int64(pBar.numSteps)))
	}
	pBar.bar = progressbar.NewOptions(pBar.numSteps,
		progressbar.OptionSetDescription(fmt.Sprintf("Training %s%s: ", ds.Name(), stepsMsg)),
		progressbar.OptionUseANSICodes(!pBar.plain),
		progressbar.OptionEnableColorCodes(!pBar.plain),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("steps"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: ".",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionSetWriter(pBar),
	)
	return nil
}

func (pBar *progressBar) onStep(loop *train.Loop, metrics []float64) error {
	// Check whether it is finished.
	if pBar.bar.IsFinished() {
		return nil
	}

	// Check whether there is something to update.
	amount := loop.LoopStep + 1 - pBar.lastStepReported // +1 because the current LoopStep is finished.
	if amount <= 0 {
		return nil
	}

	trainMetrics := loop.Trainer.TrainMetrics()
	if pBar.plain {
		// Plain output: metrics are written as a suffix of the progressbar line, see [progressBar.Write].
		parts := make([]string, 0, len(trainMetrics)+2)
		parts = append(parts, fmt.Sprintf(" [step=%d]", loop.LoopStep))
		for metricIdx, metricObj := range trainMetrics {
			parts = append(parts, fmt.Sprintf(" [%s=%s]", metricObj.ShortName(), metricObj.PrettyPrint(metrics[metricIdx])))
		}
		parts = append(parts, "        ")
		pBar.suffix = strings.Join(parts, "")
		_ = pBar.bar.Add(amount) // Triggers print, see [pBar.Write] method.

	} else {
		// For terminals instead we create and enqueue an update to be asynchronously printed.
		update := progressBarUpdate{
			amount:  amount,
			metrics: make([]string, 0, len(trainMetrics)+1),
		}
		update.metrics = append(update.metrics, fmt.Sprintf("%s / %s",
			humanize.Comma(int64(loop.LoopStep)), humanize.Comma(int64(loop.EndStep))))
		for metricIdx, metricObj := range trainMetrics {
			update.metrics = append(update.metrics, metricObj.PrettyPrint(metrics[metricIdx]))
		}
		pBar.updates <- update
	}

	// Add amount run since last time.
	pBar.totalAmount += amount
	pBar.lastStepReported = loop.LoopStep + 1
	return nil
}

func (pBar *progressBar) onEnd(_ *train.Loop, _ []float64) error {
	pBar.stopAsyncUpdates()
	_, err := fmt.Fprintln(pBar.out)
	return err
}

// stopAsyncUpdates closes the updates channel, if one is open, and waits for the drawing goroutine to finish.
func (pBar *progressBar) stopAsyncUpdates() {
	if pBar.updates == nil {
		return
	}
	close(pBar.updates)
	pBar.updates = nil
	pBar.asyncUpdatesDone.Wait()
}

// ProgressBarName is the name of the hooks registered by AttachProgressBar.
const ProgressBarName = "nanograd.ml.train.commandline.progressBar"

var (
	normalStyle       = lipgloss.NewStyle().Padding(0, 1)
	rightAlignedStyle = lipgloss.NewStyle().Align(lipgloss.Right).Padding(0, 1)
)

type progressBarUpdate struct {
	amount  int
	metrics []string
}

// maxUpdateFrequency is the time between updates to the commandline display of stats.
const maxUpdateFrequency = time.Millisecond * 200

// AttachProgressBar creates a commandline progress bar on the standard output and attaches it to the Loop,
// so that everytime Loop is run it will display a progress bar with progression and metrics.
//
// The associated data will be attached to the train.Loop, so nothing is returned.
func AttachProgressBar(loop *train.Loop) {
	AttachProgressBarTo(loop, os.Stdout)
}

// AttachProgressBarTo is like AttachProgressBar, but writes to out.
//
// If out is a terminal with support for colors, it displays a table with the metrics below the
// progress bar, redrawn asynchronously. Otherwise, it writes the metrics in the same line as the progress bar.
func AttachProgressBarTo(loop *train.Loop, out io.Writer) {
	attachProgressBar(loop, termenv.NewOutput(out))
}

func attachProgressBar(loop *train.Loop, output *termenv.Output) *progressBar {
	pBar := &progressBar{out: output.Writer()}
	pBar.plain = output.Profile == termenv.Ascii
	if !pBar.plain {
		pBar.isFirstOutput = true
		pBar.termenv = output
		pBar.statsStyle = lipgloss.NewStyle().PaddingLeft(8)
		pBar.statsTable = lgtable.New().
			Border(lipgloss.RoundedBorder()).
			StyleFunc(func(row, col int) lipgloss.Style {
				if col == 0 {
					return rightAlignedStyle
				}
				return normalStyle
			})
		loop.OnStart(ProgressBarName, 0, func(loop *train.Loop, _ train.Dataset) error {
			pBar.startAsyncUpdates(loop)
			return nil
		})
	}
	loop.OnStart(ProgressBarName, 0, pBar.onStart)
	// Run at least 1000 during loop or at least every 3 seconds.
	train.NTimesDuringLoop(loop, 1000, ProgressBarName, 0, pBar.onStep)
	train.PeriodicCallback(loop, 3*time.Second, false, ProgressBarName, 0, pBar.onStep)
	loop.OnEnd(ProgressBarName, 0, pBar.onEnd)
	loop.OnFailure(ProgressBarName, 0, func(_ *train.Loop, _ error) { pBar.stopAsyncUpdates() })
	return pBar
}

// startAsyncUpdates starts the goroutine drawing the updates in the terminal, for one run of the loop.
func (pBar *progressBar) startAsyncUpdates(loop *train.Loop) {
	pBar.stopAsyncUpdates()
	pBar.isFirstOutput = true
	updates := make(chan progressBarUpdate, 100) // Large buffer so things are not blocked.
	pBar.updates = updates
	pBar.asyncUpdatesDone.Add(1)
	go func() {
		defer pBar.asyncUpdatesDone.Done()
		// Drawing asynchronously keeps training from waiting on a slow terminal, e.g. over a remote connection.
		for update := range updates {
			// Exhaust the updates in buffer:
			amount := update.amount
		exhaust:
			for {
				select {
				case newUpdate, ok := <-updates:
					if !ok {
						break exhaust
					}
					amount += newUpdate.amount
					update = newUpdate
				default:
					break exhaust
				}
			}

			// Clear the previous lines that will be overwritten.
			if !pBar.isFirstOutput {
				pBar.termenv.ClearLines(len(update.metrics) + 1 + 2)
			}
			pBar.isFirstOutput = false

			// Print update.
			_ = pBar.bar.Add(amount) // Prints progress bar line.
			pBar.statsTable.Data(lgtable.NewStringData())
			_, _ = fmt.Fprintln(pBar.out)
			pBar.statsTable.Row("Global Step", update.metrics[0])
			for metricIdx, metricObj := range loop.Trainer.TrainMetrics() {
				pBar.statsTable.Row(metricObj.Name(), update.metrics[1+metricIdx])
			}
			_, _ = fmt.Fprintln(pBar.out, pBar.statsStyle.Render(pBar.statsTable.String()))
			time.Sleep(maxUpdateFrequency)
		}
	}()
}
