// Copyright 2025-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package estimator

import (
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers/fnn"
	"github.com/gomlx/gomlx/pkg/ml/train/losses"
	"github.com/gomlx/gomlx/pkg/ml/train/metrics"
	"github.com/gomlx/gomlx/pkg/ml/train/optimizers"
)

// DefaultHyperparameters sets in ctx the hyperparameters used by the canned estimators, if they are not
// set yet. It returns ctx.
func DefaultHyperparameters(ctx *context.Context) *context.Context {
	defaults := map[string]any{
		optimizers.ParamOptimizer:    "adamw",
		optimizers.ParamLearningRate: 0.001,
		fnn.ParamNumHiddenLayers:     2,
		fnn.ParamNumHiddenNodes:      32,
	}
	for key, value := range defaults {
		if _, found := ctx.GetParam(key); !found {
			ctx.SetParam(key, value)
		}
	}
	return ctx
}

// FlattenInputs converts every input to float32, flattens each to [batchSize, -1] and concatenates them
// in the last axis. The result is shaped [batchSize, totalFeatureSize].
func FlattenInputs(inputs []*Node) *Node {
	flat := make([]*Node, len(inputs))
	for ii, x := range inputs {
		x = ConvertDType(x, dtypes.Float32)
		batchSize := x.Shape().Dimensions[0]
		flat[ii] = Reshape(x, batchSize, -1)
	}
	if len(flat) == 1 {
		return flat[0]
	}
	return Concatenate(flat, -1)
}

// linearModel returns one output per example, shaped [batchSize, 1].
func linearModel(ctx *context.Context, _ any, inputs []*Node) []*Node {
	x := FlattenInputs(inputs)
	return []*Node{fnn.New(ctx, x, 1).NumHiddenLayers(0, 1).Done()}
}

// dnnModel uses the fnn hidden layers configured in the context, and returns one logit per example.
func dnnModel(ctx *context.Context, _ any, inputs []*Node) []*Node {
	x := FlattenInputs(inputs)
	return []*Node{fnn.New(ctx, x, 1).Done()}
}

// labelsLike converts labels[0] to the dtype and shape of predictions[0].
func labelsLike(labels, predictions []*Node) []*Node {
	labels0 := ConvertDType(labels[0], predictions[0].DType())
	if !labels0.Shape().Equal(predictions[0].Shape()) {
		labels0 = Reshape(labels0, predictions[0].Shape().Dimensions...)
	}
	adjusted := make([]*Node, len(labels))
	adjusted[0] = labels0
	copy(adjusted[1:], labels[1:])
	return adjusted
}

// meanSquaredError is losses.MeanSquaredError accepting labels of any numeric dtype, shaped [batchSize].
func meanSquaredError(labels, predictions []*Node) *Node {
	return losses.MeanSquaredError(labelsLike(labels, predictions), predictions)
}

// binaryCrossentropyLogits is losses.BinaryCrossentropyLogits accepting labels shaped [batchSize].
func binaryCrossentropyLogits(labels, logits []*Node) *Node {
	return losses.BinaryCrossentropyLogits(labelsLike(labels, logits), logits)
}

// meanAbsoluteErrorGraph is the metric function for the mean absolute error.
func meanAbsoluteErrorGraph(_ *context.Context, labels, predictions []*Node) *Node {
	return losses.MeanAbsoluteError(labelsLike(labels, predictions), predictions)
}

// NewLinearRegressor returns an estimator with one linear output trained on the mean squared error.
// Labels can be of any numeric dtype.
func NewLinearRegressor(ctx *context.Context) *Estimator {
	return New("linear", DefaultHyperparameters(ctx), linearModel, meanSquaredError).
		EvalMetrics(metrics.NewMeanMetric("Mean Absolute Error", "mae", metrics.LossMetricType,
			meanAbsoluteErrorGraph, nil))
}

// NewLinearClassifier returns a logistic regression estimator for binary labels (0 or 1).
func NewLinearClassifier(ctx *context.Context) *Estimator {
	return New("logistic", DefaultHyperparameters(ctx), linearModel, binaryCrossentropyLogits).
		TrainMetrics(metrics.NewMovingAverageBinaryLogitsAccuracy("Moving Average Accuracy", "~acc", 0.01)).
		EvalMetrics(metrics.NewMeanBinaryLogitsAccuracy("Mean Accuracy", "#acc"))
}

// NewDNNClassifier returns a feedforward neural network estimator for binary labels (0 or 1).
// The hidden layers are configured with the fnn hyperparameters (see fnn.ParamNumHiddenLayers).
func NewDNNClassifier(ctx *context.Context) *Estimator {
	return New("dnn", DefaultHyperparameters(ctx), dnnModel, binaryCrossentropyLogits).
		TrainMetrics(metrics.NewMovingAverageBinaryLogitsAccuracy("Moving Average Accuracy", "~acc", 0.01)).
		EvalMetrics(metrics.NewMeanBinaryLogitsAccuracy("Mean Accuracy", "#acc"))
}

// Canned maps the names of the canned estimators to their constructors.
var Canned = map[string]func(ctx *context.Context) *Estimator{
	"linear":   NewLinearRegressor,
	"logistic": NewLinearClassifier,
	"dnn":      NewDNNClassifier,
}
