// Copyright 2025-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"maps"
	"slices"

	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/ui/commandline"
	"github.com/gomlx/trainer/pkg/estimator"
	"github.com/gomlx/trainer/pkg/experiment"
	"github.com/gomlx/trainer/pkg/features"
	"github.com/gomlx/trainer/pkg/flags"
	"github.com/gomlx/trainer/pkg/records"
	"github.com/gomlx/trainer/pkg/trainer"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

func trainCmd(ctx *context.Context, settings *string) *cobra.Command {
	var (
		estimatorName string
		label         string
		inferFeatures bool
	)
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train and evaluate a canned estimator",
		Long: "Train and evaluate a canned estimator on the data in --training_set, saving the model to --job_dir.\n" +
			"Hyperparameters are set with --set, and training resumes from the last checkpoint in --job_dir.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			newEstimator, found := estimator.Canned[estimatorName]
			if !found {
				return errors.Errorf("unknown --estimator=%q, valid values are %q",
					estimatorName, slices.Sorted(maps.Keys(estimator.Canned)))
			}
			paramsSet, err := commandline.ParseContextSettings(ctx, *settings)
			if err != nil {
				return err
			}
			klog.V(1).Infof("Hyperparameters:\n%s", commandline.SprintContextSettings(ctx))

			// Hyperparameters set in the command line take precedence over those saved in the checkpoint.
			runConfig, err := experiment.RunConfigFromFlags(flags.Default)
			if err != nil {
				return err
			}
			runConfig.ExcludeParams = paramsSet

			t := trainer.New(newEstimator(ctx)).
				RunConfig(runConfig).
				SplitFeaturesLabel(features.SplitOn(label))
			if inferFeatures {
				recs, _, err := records.ReadDir(trainer.DefaultTrainingDataDir(flags.Default))
				if err != nil {
					return err
				}
				t.FeatureMapping(features.InferMapping(recs, label))
			}
			report, err := t.Run()
			if err != nil {
				return err
			}
			fmt.Println(report)
			return nil
		},
	}
	cmd.Flags().StringVar(&estimatorName, "estimator", "dnn", "Canned estimator to train: linear, logistic or dnn.")
	cmd.Flags().StringVar(&label, "label", features.DefaultLabel, "Name of the feature used as label.")
	cmd.Flags().BoolVar(&inferFeatures, "infer_features", false,
		"Infer the dtype and shape of each feature from the training data. Otherwise every feature is "+
			"parsed as an int64 scalar. The label is always a scalar: float32 if it has float values, "+
			"int64 otherwise. Bytes features are left out.")
	return cmd
}
