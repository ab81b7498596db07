// nanograd trains small multi-layer perceptrons with a scalar autodiff engine, and evaluates and
// differentiates arithmetic expressions.
//
// Usage:
//
//	nanograd [flags] train
//	nanograd [flags] grad <expression> [name=value ...]
//
// Examples:
//
//	nanograd -dataset=moons -set="steps=200;hidden=16,16" -plots=/tmp/moons train
//	nanograd grad "z := 2*x + 2 + x; q := relu(z) + z*x; h := relu(z*z); h + q + q*x" x=-4
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"
)

var (
	flagDataset = flag.String("dataset", "moons",
		`Dataset to train on: "moons", "blobs", or the path (or URL) of a CSV file with a header.`)
	flagLabel = flag.String("label", "label", "Name of the label column, when -dataset is a CSV file. "+
		`Labels should be -1/+1 for the "hinge" loss, or 0/1 for the "bce" loss.`)
	flagDataDir      = flag.String("data_dir", "~/.cache/nanograd", "Directory where to download datasets given by URL.")
	flagNumExamples  = flag.Int("num_examples", 100, "Number of examples of the synthetic datasets.")
	flagNoise        = flag.Float64("noise", 0.1, "Standard deviation of the noise added to synthetic datasets.")
	flagEvalFraction = flag.Float64("eval_fraction", 0, "Fraction of the examples held out for evaluation. "+
		"If 0, the model is only evaluated on the training data.")
	flagParallel  = flag.Int("parallel", 0, "If > 0, number of goroutines generating training batches.")
	flagPlots     = flag.String("plots", "", "If set, directory where to save the plots of the training metrics.")
	flagProgress  = flag.Bool("progress", true, "Display a progress bar while training.")
	flagNanLogger = flag.Bool("nanlogger", false, "Interrupt training reporting the first parameter or "+
		"prediction with a NaN or Inf value or gradient.")
)

var (
	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)
	cellStyle  = lipgloss.NewStyle().PaddingLeft(1).PaddingRight(1)
	titleStyle = lipgloss.NewStyle().Bold(true).Padding(1, 4, 1, 4)
)

func newPlainTable() *lgtable.Table {
	return lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == lgtable.HeaderRow {
				return headerRowStyle
			}
			if col == 0 {
				return cellStyle.Align(lipgloss.Right)
			}
			return cellStyle.Align(lipgloss.Left)
		})
}

func usage() {
	out := flag.CommandLine.Output()
	_, _ = fmt.Fprintf(out, "Usage:\n\t%s [flags] train\n\t%s [flags] grad <expression> [name=value ...]\n\nFlags:\n",
		os.Args[0], os.Args[0])
	flag.PrintDefaults()
}

func main() {
	klog.InitFlags(nil)
	settings := createDefaultSettings()
	settingsFlag := settings.CreateFlag("")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		klog.Errorf("Missing mode, \"train\" or \"grad\". See 'nanograd -help'.")
		os.Exit(1)
	}
	switch args[0] {
	case "train":
		must.M(settings.Parse(*settingsFlag))
		must.M(trainModel(settings))
	case "grad":
		must.M(grad(os.Stdout, args[1:]))
	default:
		klog.Exitf("Unknown mode %q, valid values are \"train\" or \"grad\". See 'nanograd -help'.", args[0])
	}
}
