// Copyright 2025-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package estimator defines Estimator, the trainable model handed to an experiment: the model graph
// function, its loss, optimizer and metrics, plus the context holding its variables and hyperparameters.
//
// Besides the generic New, it provides canned estimators for tabular data (linear regressor, linear
// and DNN classifiers) that work on any set of numeric features.
package estimator

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/backends"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/gomlx/gomlx/pkg/ml/train/losses"
	"github.com/gomlx/gomlx/pkg/ml/train/metrics"
	"github.com/gomlx/gomlx/pkg/ml/train/optimizers"
	"github.com/pkg/errors"
)

// ModelScope is the context scope where the model variables are created.
const ModelScope = "model"

// Estimator bundles what is needed to create a train.Trainer. Create it with New.
type Estimator struct {
	name                      string
	ctx                       *context.Context
	modelFn                   train.ModelFn
	lossFn                    losses.LossFn
	optimizer                 optimizers.Interface
	trainMetrics, evalMetrics []metrics.Interface
}

// New creates an Estimator with the given model and loss functions. The context holds the hyperparameters,
// and will hold the model variables once trained.
//
// modelFn is called with ctx already scoped in ModelScope.
//
// The optimizer defaults to optimizers.FromContext, built when the trainer is created.
func New(name string, ctx *context.Context, modelFn train.ModelFn, lossFn losses.LossFn) *Estimator {
	return &Estimator{
		name:    name,
		ctx:     ctx,
		modelFn: modelFn,
		lossFn:  lossFn,
	}
}

// Optimizer sets the optimizer to use, instead of the one configured in the context.
func (e *Estimator) Optimizer(optimizer optimizers.Interface) *Estimator {
	e.optimizer = optimizer
	return e
}

// TrainMetrics adds metrics reported during training, in addition to the loss.
func (e *Estimator) TrainMetrics(m ...metrics.Interface) *Estimator {
	e.trainMetrics = append(e.trainMetrics, m...)
	return e
}

// EvalMetrics adds metrics reported during evaluation, in addition to the loss.
func (e *Estimator) EvalMetrics(m ...metrics.Interface) *Estimator {
	e.evalMetrics = append(e.evalMetrics, m...)
	return e
}

// Name of the estimator.
func (e *Estimator) Name() string { return e.name }

// Context with the hyperparameters and variables of the estimator.
func (e *Estimator) Context() *context.Context { return e.ctx }

// NewTrainer creates the train.Trainer for the estimator on the given backend.
// Errors in the configuration (e.g. an unknown optimizer) are returned as errors.
func (e *Estimator) NewTrainer(backend backends.Backend) (trainer *train.Trainer, err error) {
	if e.modelFn == nil || e.lossFn == nil {
		return nil, errors.Errorf("estimator %q must have a model function and a loss function", e.name)
	}
	err = exceptions.TryCatch[error](func() {
		optimizer := e.optimizer
		if optimizer == nil {
			optimizer = optimizers.FromContext(e.ctx)
		}
		modelFn := func(ctx *context.Context, spec any, inputs []*Node) []*Node {
			return e.modelFn(ctx.In(ModelScope), spec, inputs)
		}
		trainer = train.NewTrainer(backend, e.ctx, modelFn, e.lossFn, optimizer, e.trainMetrics, e.evalMetrics)
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to create trainer for estimator %q", e.name)
	}
	return trainer, nil
}
