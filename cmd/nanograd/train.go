package main

import (
	"fmt"
	"io"
	"os"
	"path"
	"slices"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/exceptions"
	. "github.com/gomlx/nanograd/graph"
	"github.com/gomlx/nanograd/graph/nanlogger"
	"github.com/gomlx/nanograd/ml/data"
	"github.com/gomlx/nanograd/ml/layers"
	"github.com/gomlx/nanograd/ml/layers/activations"
	"github.com/gomlx/nanograd/ml/train"
	"github.com/gomlx/nanograd/ml/train/commandline"
	"github.com/gomlx/nanograd/ml/train/losses"
	"github.com/gomlx/nanograd/ml/train/metrics"
	"github.com/gomlx/nanograd/ml/train/optimizers"
	"github.com/gomlx/nanograd/ml/train/optimizers/cosineschedule"
	"github.com/gomlx/nanograd/ui/plots"
	"github.com/pkg/errors"
	"gonum.org/v1/plot/vg"
	"k8s.io/klog/v2"
)

// createDefaultSettings returns the hyperparameters of the training, with their default values.
// They can be changed with the -set flag.
func createDefaultSettings() *commandline.Settings {
	return commandline.NewSettings().
		Set("optimizer", "sgd").
		Set("learning_rate", 1.0).
		Set("final_learning_rate", 0.1).
		Set("schedule", "linear").
		Set("loss", "hinge").
		Set("hidden", []int{16, 16}).
		Set("activation", "relu").
		Set("l2", 1e-4).
		Set("steps", 100).
		Set("batch_size", 0).
		Set("seed", uint64(42))
}

// loadDataset returns the dataset selected by -dataset.
func loadDataset(seed uint64) (ds *data.InMemoryDataset, err error) {
	switch *flagDataset {
	case "moons":
		err = exceptions.TryCatch[error](func() { ds = data.Moons(*flagNumExamples, *flagNoise, seed) })
	case "blobs":
		err = exceptions.TryCatch[error](func() {
			ds = data.Blobs(*flagNumExamples, [][]float64{{-1, -1}, {1, 1}}, *flagNoise, seed).
				MapLabels(func(label float64) float64 { return 2*label - 1 })
		})
	default:
		ds, err = data.LoadCSVFile(*flagDataset, *flagDataDir, *flagLabel)
	}
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to load dataset %q", *flagDataset)
	}
	return
}

// buildTrainer creates the model and its trainer, as configured by settings.
//
// If nanLogger is not nil, it watches the parameters and traces the predictions of the model.
func buildTrainer(settings *commandline.Settings, numInputs int, nanLogger *nanlogger.NanLogger) (
	model *layers.MLP, trainer *train.Trainer, err error) {
	err = exceptions.TryCatch[error](func() {
		seed := commandline.GetOr(settings, "seed", uint64(42))
		sizes := append(slices.Clone(commandline.GetOr(settings, "hidden", []int{})), 1)
		model = layers.NewMLP(numInputs, sizes...).
			Activation(activations.FromName(commandline.GetOr(settings, "activation", "relu"))).
			Seed(seed).
			Done()
		nanLogger.Watch(model.Parameters()...)
		modelFn := func(inputs []*Node) *Node {
			prediction := model.Call1(inputs)
			nanLogger.Trace(prediction, "prediction")
			return prediction
		}

		optimizer := newOptimizer(settings)
		trainer = train.NewTrainer(model.Parameters(), modelFn,
			losses.FromName(commandline.GetOr(settings, "loss", "hinge")), optimizer,
			[]metrics.Interface{metrics.NewMovingAverageBinaryAccuracy("Moving Average Accuracy", "~acc", 0.01)},
			[]metrics.Interface{metrics.NewMeanBinaryAccuracy("Mean Accuracy", "#acc")}).
			L2Regularization(commandline.GetOr(settings, "l2", 0.0))
	})
	if err != nil {
		return nil, nil, errors.WithMessage(err, "failed to build model")
	}
	return
}

// newSchedule returns the learning rate schedule configured by settings: "linear" decays to the
// "final_learning_rate" in "steps", "cosine" anneals to it, and "constant" ignores it.
func newSchedule(settings *commandline.Settings) optimizers.Schedule {
	learningRate := commandline.GetOr(settings, "learning_rate", optimizers.SgdDefaultLearningRate)
	finalLearningRate := commandline.GetOr(settings, "final_learning_rate", learningRate)
	steps := int64(commandline.GetOr(settings, "steps", 100))
	switch schedule := commandline.GetOr(settings, "schedule", "linear"); schedule {
	case "linear":
		return optimizers.LinearDecaySchedule(learningRate, finalLearningRate, steps)
	case "cosine":
		return cosineschedule.New().
			LearningRate(learningRate).
			MinLearningRate(finalLearningRate).
			PeriodInSteps(steps).
			Done()
	case "constant":
		return optimizers.ConstantSchedule(learningRate)
	default:
		exceptions.Panicf("unknown schedule %q: valid values are \"linear\", \"cosine\" and \"constant\"", schedule)
	}
	return nil
}

// newOptimizer returns the optimizer configured by settings, with the schedule given by newSchedule.
func newOptimizer(settings *commandline.Settings) optimizers.Interface {
	schedule := newSchedule(settings)
	switch optName := commandline.GetOr(settings, "optimizer", "sgd"); optName {
	case "sgd":
		return optimizers.StochasticGradientDescent().Schedule(schedule).Done()
	case "momentum":
		return optimizers.StochasticGradientDescent().Schedule(schedule).Momentum(0.9).Done()
	case "adam":
		return optimizers.Adam().Schedule(schedule).Done()
	case "adamax":
		return optimizers.Adam().Schedule(schedule).Adamax().Done()
	case "adamw":
		return optimizers.Adam().Schedule(schedule).WeightDecay(0.004).Done()
	default:
		// Unknown names panic with the list of valid optimizers.
		return optimizers.ByName(optName, commandline.GetOr(settings, "learning_rate", optimizers.SgdDefaultLearningRate))
	}
}

// trainModel trains the model configured by settings on the dataset selected by the flags, and
// reports the results.
func trainModel(settings *commandline.Settings) error {
	return trainAndReport(os.Stdout, settings)
}

func trainAndReport(out io.Writer, settings *commandline.Settings) error {
	seed := commandline.GetOr(settings, "seed", uint64(42))
	fullDS, err := loadDataset(seed)
	if err != nil {
		return err
	}
	trainData, evalDatasets := fullDS, []train.Dataset{fullDS}
	if *flagEvalFraction > 0 {
		var testData *data.InMemoryDataset
		err = exceptions.TryCatch[error](func() {
			trainData, testData = fullDS.Shuffle(seed).Split(1 - *flagEvalFraction)
		})
		if err != nil {
			return errors.WithMessagef(err, "invalid -eval_fraction=%g", *flagEvalFraction)
		}
		evalDatasets = []train.Dataset{trainData, testData}
	}
	klog.V(1).Infof("Training on %s", trainData)

	var nanLogger *nanlogger.NanLogger
	if *flagNanLogger {
		nanLogger = nanlogger.New()
	}
	model, trainer, err := buildTrainer(settings, trainData.NumInputs(), nanLogger)
	if err != nil {
		return err
	}

	// Training dataset: a separate instance, since evaluation resets the datasets.
	var trainDS train.Dataset = data.NewInMemory(trainData.Name(), trainData.Inputs(), trainData.Labels()).
		BatchSize(commandline.GetOr(settings, "batch_size", 0), false).
		Shuffle(seed).
		Infinite(true)
	if *flagParallel > 0 {
		parallelDS := data.CustomParallel(trainDS).Parallelism(*flagParallel).Buffer(*flagParallel).Start()
		defer parallelDS.Stop()
		trainDS = parallelDS
	}

	loop := train.NewLoop(trainer)
	nanLogger.AttachToLoop(loop)
	if *flagProgress {
		commandline.AttachProgressBarTo(loop, out)
	}
	var recorder *plots.Recorder
	if *flagPlots != "" {
		plotsDir := data.ReplaceTildeInDir(*flagPlots)
		if err := os.MkdirAll(plotsDir, 0777); err != nil {
			return errors.Wrapf(err, "failed to create plots directory %q", plotsDir)
		}
		recorder = plots.New().WithFile(path.Join(plotsDir, plots.TrainingPlotFileName)).
			Attach(loop, 50, evalDatasets...)
	}

	steps := commandline.GetOr(settings, "steps", 100)
	start := time.Now()
	trainMetrics, err := loop.RunSteps(trainDS, steps)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	_, _ = fmt.Fprintln(out, titleStyle.Render("Summary"))
	table := newPlainTable()
	table.Row("run", loop.RunId)
	table.Row("dataset", trainData.String())
	table.Row("model", fmt.Sprintf("%d inputs, hidden layers %v", model.NumInputs(), commandline.GetOr(settings, "hidden", []int{})))
	table.Row("# parameters", humanize.Comma(int64(layers.NumParameters(model))))
	table.Row("# steps", humanize.Comma(int64(steps)))
	table.Row("training time", humanize.SIWithDigits(elapsed.Seconds(), 2, "s"))
	table.Row("median step time", humanize.SIWithDigits(loop.MedianTrainStepDuration().Seconds(), 2, "s"))
	for ii, metric := range trainer.TrainMetrics() {
		table.Row(metric.Name(), metric.PrettyPrint(trainMetrics[ii]))
	}
	_, _ = fmt.Fprintln(out, table.Render())

	_, _ = fmt.Fprintln(out, titleStyle.Render("Evaluation"))
	if err := commandline.ReportEval(out, trainer, evalDatasets...); err != nil {
		return err
	}

	if recorder != nil {
		if err := recorder.Close(); err != nil {
			return err
		}
		files, err := recorder.Save(*flagPlots, "nanograd", "png", 8*vg.Inch, 5*vg.Inch)
		if err != nil {
			return err
		}
		for _, file := range files {
			_, _ = fmt.Fprintf(out, "Saved plot to %s\n", file)
		}
	}
	return nil
}
