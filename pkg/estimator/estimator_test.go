// Copyright 2025-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package estimator

import (
	"os"
	"testing"

	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers/fnn"
	"github.com/gomlx/gomlx/pkg/ml/train/losses"
	"github.com/gomlx/gomlx/pkg/ml/train/optimizers"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/gomlx/gomlx/backends/simplego"
)

func init() {
	if _, found := os.LookupEnv(backends.ConfigEnvVar); !found {
		must.M(os.Setenv(backends.ConfigEnvVar, "go"))
	}
}

func TestDefaultHyperparameters(t *testing.T) {
	ctx := context.New()
	ctx.SetParam(optimizers.ParamLearningRate, 0.1)
	DefaultHyperparameters(ctx)
	assert.Equal(t, 0.1, context.GetParamOr(ctx, optimizers.ParamLearningRate, 0.0), "values already set are kept")
	assert.Equal(t, "adamw", context.GetParamOr(ctx, optimizers.ParamOptimizer, ""))
	assert.Equal(t, 2, context.GetParamOr(ctx, fnn.ParamNumHiddenLayers, 0))
}

func TestNewTrainerErrors(t *testing.T) {
	backend := backends.MustNew()
	ctx := context.New()
	ctx.SetParam(optimizers.ParamOptimizer, "no-such-optimizer")
	_, err := NewLinearClassifier(ctx).NewTrainer(backend)
	require.Error(t, err)

	_, err = New("empty", context.New(), nil, losses.MeanSquaredError).NewTrainer(backend)
	require.ErrorContains(t, err, "must have a model function")
}

func TestLinearRegressor(t *testing.T) {
	backend := backends.MustNew()
	ctx := context.New()
	ctx.SetParam(optimizers.ParamLearningRate, 0.1)
	est := NewLinearRegressor(ctx)
	assert.Equal(t, "linear", est.Name())
	assert.Same(t, ctx, est.Context())
	trainer, err := est.NewTrainer(backend)
	require.NoError(t, err)

	// y = 2*x + v[0] - v[1], with int64 labels and inputs of different dtypes and shapes.
	x := tensors.FromFlatDataAndDimensions([]int64{0, 1, 2, 3}, 4)
	v := tensors.FromFlatDataAndDimensions([]float32{1, 0, 0, 1, 2, 2, 1, 1}, 4, 2)
	y := tensors.FromFlatDataAndDimensions([]int64{1, 1, 4, 6}, 4)
	var firstLoss, lastLoss float64
	for step := range 200 {
		metrics, err := trainer.TrainStep(nil, []*tensors.Tensor{x, v}, []*tensors.Tensor{y})
		require.NoError(t, err)
		lastLoss = shapes.ConvertTo[float64](metrics[0].Value())
		if step == 0 {
			firstLoss = lastLoss
		}
	}
	assert.Less(t, lastLoss, firstLoss)
	require.NotNil(t, ctx.GetVariableByScopeAndName("/"+ModelScope+"/fnn_output_layer", "weights"),
		"model variables are created under the model scope")
}

func TestClassifiers(t *testing.T) {
	backend := backends.MustNew()
	x := tensors.FromFlatDataAndDimensions([]float32{-2, -1, 1, 2, -3, 3}, 6)
	y := tensors.FromFlatDataAndDimensions([]int64{0, 0, 1, 1, 0, 1}, 6)
	for _, name := range []string{"logistic", "dnn"} {
		t.Run(name, func(t *testing.T) {
			ctx := context.New()
			ctx.SetParam(fnn.ParamNumHiddenNodes, 4)
			est := Canned[name](ctx)
			trainer, err := est.NewTrainer(backend)
			require.NoError(t, err)
			metrics, err := trainer.TrainStep(nil, []*tensors.Tensor{x}, []*tensors.Tensor{y})
			require.NoError(t, err)
			require.Len(t, metrics, len(trainer.TrainMetrics()))
			hidden := ctx.GetVariableByScopeAndName("/"+ModelScope+"/fnn_hidden_layer_0", "weights")
			if name == "dnn" {
				require.NotNil(t, hidden)
			} else {
				require.Nil(t, hidden)
			}
		})
	}
}
