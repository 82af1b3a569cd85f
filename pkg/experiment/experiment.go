// Copyright 2025-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package experiment runs an Experiment: it trains and/or evaluates an estimator on its input functions,
// according to a RunConfig, saving checkpoints and the metrics history to the model directory.
package experiment

import (
	"fmt"
	"math"
	"path/filepath"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context/checkpoints"
	"github.com/gomlx/gomlx/pkg/ml/datasets"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/gomlx/gomlx/pkg/ml/train/metrics"
	"github.com/gomlx/gomlx/pkg/ml/train/optimizers"
	"github.com/gomlx/gomlx/ui/commandline"
	"github.com/gomlx/gomlx/ui/plots"
	"github.com/gomlx/trainer/pkg/estimator"
	"github.com/gomlx/trainer/pkg/inputs"
	"github.com/gomlx/trainer/ui/report"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Experiment is what Run trains and evaluates.
type Experiment struct {
	Estimator *estimator.Estimator

	// TrainInputFn is required if the schedule trains.
	TrainInputFn inputs.InputFn

	// EvalInputFn is required if the schedule evaluates, or if RunConfig.EvalEverySteps > 0.
	EvalInputFn inputs.InputFn
}

// Fn builds the Experiment for the given configuration.
type Fn func(config *RunConfig) (*Experiment, error)

// MetricValue is the value of one metric measured on a dataset.
type MetricValue struct {
	Dataset   string
	Name      string
	ShortName string
	Type      string
	Value     float64

	// Pretty is the value formatted by the metric.
	Pretty string
}

// Report is the result of Run.
type Report struct {
	RunID    uuid.UUID
	ModelDir string

	// GlobalStep of the model at the end of the run.
	GlobalStep int64

	// Metrics of the final evaluation. Empty if the schedule doesn't evaluate.
	Metrics []MetricValue

	// History of the metrics measured during training, if RunConfig.EvalEverySteps > 0.
	// NaN and infinite values are left out.
	History []plots.Point
}

// Metric returns the final evaluation value of the metric with the given name or short name.
func (r *Report) Metric(name string) (MetricValue, bool) {
	for _, m := range r.Metrics {
		if m.Name == name || m.ShortName == name {
			return m, true
		}
	}
	return MetricValue{}, false
}

// String implements fmt.Stringer. It renders the final evaluation as a table.
func (r *Report) String() string {
	rows := make([][]string, 0, len(r.Metrics))
	for _, m := range r.Metrics {
		rows = append(rows, []string{fmt.Sprintf("%s (%s)", m.Name, m.ShortName), m.Pretty})
	}
	title := fmt.Sprintf("Run %s at global step %d", r.RunID, r.GlobalStep)
	if len(rows) == 0 {
		return title
	}
	return report.Table(title, rows)
}

// Run builds the experiment with fn and runs it as configured.
//
// If config.ModelDir holds checkpoints, the latest one is restored and training continues from its
// global step. Panics raised while building or executing the model graphs are returned as errors.
func Run(fn Fn, config *RunConfig) (*Report, error) {
	if fn == nil || config == nil {
		return nil, errors.New("experiment.Run requires an experiment function and a RunConfig")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	klog.Infof("Running experiment: %s", config)
	backend := config.Backend
	if backend == nil {
		var err error
		backend, err = backends.New()
		if err != nil {
			return nil, errors.WithMessage(err, "failed to create backend")
		}
	}

	var r *Report
	var runErr error
	err := exceptions.TryCatch[error](func() { r, runErr = run(backend, fn, config) })
	if err == nil {
		err = runErr
	}
	if err != nil {
		return nil, errors.WithMessagef(err, "experiment %s failed", config.RunID)
	}
	return r, nil
}

// runner holds the state of one Run.
type runner struct {
	config     *RunConfig
	backend    backends.Backend
	exp        *Experiment
	trainer    *train.Trainer
	checkpoint *checkpoints.Handler
	evalDS     train.Dataset
	report     *Report

	// pointsWriter appends the history to plots.TrainingPlotFileName in the model directory, while training.
	pointsWriter chan<- plots.Point
}

func run(backend backends.Backend, fn Fn, config *RunConfig) (*Report, error) {
	exp, err := fn(config)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to build experiment")
	}
	if err = checkExperiment(exp, config); err != nil {
		return nil, err
	}
	r := &runner{
		config:  config,
		backend: backend,
		exp:     exp,
		report:  &Report{RunID: config.RunID, ModelDir: config.ModelDir},
	}
	ctx := exp.Estimator.Context()

	// Checkpoints are loaded into the context when the handler is created.
	if config.ModelDir != "" {
		keep := config.NumCheckpoints
		if keep == 0 {
			keep = -1
		}
		r.checkpoint, err = checkpoints.Build(ctx).
			Dir(config.ModelDir).
			Keep(keep).
			ExcludeParams(config.ExcludeParams...).
			Done()
		if err != nil {
			return nil, errors.WithMessagef(err, "failed to create checkpoint handler in %q", config.ModelDir)
		}
		klog.Infof("Checkpoint: %q", r.checkpoint.Dir())
	}
	if !config.Schedule.Trains() {
		hasCheckpoints := false
		if r.checkpoint != nil {
			hasCheckpoints, err = r.checkpoint.HasCheckpoints()
			if err != nil {
				return nil, err
			}
		}
		if !hasCheckpoints {
			return nil, errors.Errorf("schedule %q: no checkpoint to evaluate in %q", config.Schedule, config.ModelDir)
		}
	}

	r.trainer, err = exp.Estimator.NewTrainer(backend)
	if err != nil {
		return nil, err
	}
	if globalStep := optimizers.GetGlobalStep(ctx); globalStep > 0 {
		klog.Infof("Restored model at global step %d", globalStep)
		r.trainer.SetContext(ctx.Reuse())
	}

	if config.Schedule.Trains() {
		if err = r.train(); err != nil {
			return nil, err
		}
	}
	if config.Schedule.Evaluates() {
		r.report.Metrics, err = r.evaluate()
		if err != nil {
			return nil, err
		}
	}
	r.report.GlobalStep = optimizers.GetGlobalStep(ctx)
	r.plotHistory()
	return r.report, nil
}

func checkExperiment(exp *Experiment, config *RunConfig) error {
	switch {
	case exp == nil || exp.Estimator == nil:
		return errors.New("experiment has no estimator")
	case config.Schedule.Trains() && exp.TrainInputFn == nil:
		return errors.Errorf("schedule %q requires a training input function", config.Schedule)
	case (config.Schedule.Evaluates() || config.EvalEverySteps > 0) && exp.EvalInputFn == nil:
		return errors.Errorf("schedule %q requires an evaluation input function", config.Schedule)
	}
	return nil
}

// train runs the training loop until config.TrainSteps, or for one pass over the training input.
func (r *runner) train() error {
	config := r.config
	ds, err := r.exp.TrainInputFn(r.backend)
	if err != nil {
		return errors.WithMessage(err, "failed to create training input")
	}
	if config.TrainSteps > 0 {
		globalStep := int(optimizers.GetGlobalStep(r.exp.Estimator.Context()))
		remaining := config.TrainSteps - globalStep
		if remaining <= 0 {
			klog.Infof("Target train_steps=%d already reached (global step %d), skipping training. "+
				"To train further, set train_steps above the current global step.", config.TrainSteps, globalStep)
			return nil
		}
		ds = datasets.Take(ds, remaining)
	}

	loop := train.NewLoop(r.trainer)
	if config.ProgressBar {
		commandline.AttachProgressBar(loop)
	}
	if r.checkpoint != nil {
		saveFn := func(_ *train.Loop, _ []*tensors.Tensor) error {
			return r.checkpoint.Save()
		}
		if config.CheckpointPeriod > 0 {
			train.PeriodicCallback(loop, config.CheckpointPeriod, true, "saving checkpoint", 100, saveFn)
		} else {
			loop.OnEnd("saving checkpoint", 100, saveFn)
		}
	}
	if config.EvalEverySteps > 0 {
		if config.ModelDir != "" {
			var pointsErr <-chan error
			r.pointsWriter, pointsErr = plots.CreatePointsWriter(filepath.Join(config.ModelDir, plots.TrainingPlotFileName))
			defer r.closePointsWriter(pointsErr)
		}
		train.EveryNSteps(loop, config.EvalEverySteps, "evaluation", 50, r.recordHistory)
	}

	if _, err = loop.RunEpochs(ds, 1); err != nil {
		return errors.WithMessage(err, "training failed")
	}
	klog.V(1).Infof("[Step %d] median train step: %d microseconds",
		loop.LoopStep, loop.MedianTrainStepDuration().Microseconds())
	return nil
}

// evalDataset returns the eval input, limited to config.EvalSteps batches if > 0.
// It is created on first use, and reset on later calls.
func (r *runner) evalDataset() (train.Dataset, error) {
	if r.evalDS == nil {
		var err error
		r.evalDS, err = r.exp.EvalInputFn(r.backend)
		if err != nil {
			return nil, errors.WithMessage(err, "failed to create evaluation input")
		}
	} else {
		r.evalDS.Reset()
	}
	if r.config.EvalSteps > 0 {
		return datasets.Take(r.evalDS, r.config.EvalSteps), nil
	}
	return r.evalDS, nil
}

// evaluate the model over the eval input.
func (r *runner) evaluate() ([]MetricValue, error) {
	ds, err := r.evalDataset()
	if err != nil {
		return nil, err
	}
	values, err := r.trainer.Eval(ds)
	if err != nil {
		return nil, errors.WithMessage(err, "evaluation failed")
	}
	return metricValues("eval", r.trainer.EvalMetrics(), values), nil
}

func metricValues(dataset string, ms []metrics.Interface, values []*tensors.Tensor) []MetricValue {
	results := make([]MetricValue, 0, len(values))
	for ii, value := range values {
		if ii >= len(ms) {
			break
		}
		m := ms[ii]
		results = append(results, MetricValue{
			Dataset:   dataset,
			Name:      m.Name(),
			ShortName: m.ShortName(),
			Type:      m.MetricType(),
			Value:     shapes.ConvertTo[float64](value.Value()),
			Pretty:    m.PrettyPrint(value),
		})
	}
	return results
}

// recordHistory adds the current train metrics and a new evaluation to the report history.
func (r *runner) recordHistory(loop *train.Loop, trainMetrics []*tensors.Tensor) error {
	ds, err := r.evalDataset()
	if err != nil {
		return err
	}
	return plots.AddTrainAndEvalMetrics(r, loop, trainMetrics, []train.Dataset{ds}, nil)
}

// AddPoint implements plots.Plotter.
func (r *runner) AddPoint(point plots.Point) {
	if math.IsNaN(point.Value) || math.IsInf(point.Value, 0) {
		return
	}
	r.report.History = append(r.report.History, point)
	if r.pointsWriter != nil {
		r.pointsWriter <- point
	}
}

// DynamicSampleDone implements plots.Plotter.
func (r *runner) DynamicSampleDone(incomplete bool) {
	if incomplete {
		klog.Warningf("[Step %d] metrics with NaN or infinite values left out of the history",
			r.trainer.GlobalStep())
	}
}

func (r *runner) closePointsWriter(pointsErr <-chan error) {
	close(r.pointsWriter)
	r.pointsWriter = nil
	if err := <-pointsErr; err != nil {
		klog.Errorf("Failed to write metrics history: %+v", err)
	}
}

// plotHistory plots the metrics history saved in the model directory, which includes the points of
// earlier runs. Failures are logged: the model is already saved.
func (r *runner) plotHistory() {
	if r.config.ModelDir == "" || len(r.report.History) == 0 {
		return
	}
	points, err := plots.LoadPoints(filepath.Join(r.config.ModelDir, plots.TrainingPlotFileName))
	if err != nil {
		klog.Errorf("Failed to load metrics history, plotting only this run: %+v", err)
		points = r.report.History
	}
	plotPath := filepath.Join(r.config.ModelDir, report.PlotFileName)
	if err = report.PlotHistory(plotPath, points); err != nil {
		klog.Errorf("Failed to plot metrics history: %+v", err)
		return
	}
	klog.Infof("Metrics plot saved to %q", plotPath)
}
