// Copyright 2025-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// gomlx_trainer trains the canned estimators on a data directory, and inspects or converts data directories.
//
// Examples:
//
//	$ gomlx_trainer train --training_set=~/data/adult --job_dir=~/work/adult --estimator=dnn \
//		--train_steps=5000 --set="learning_rate=0.003;fnn_num_hidden_layers=3"
//	$ gomlx_trainer inspect ~/data/adult/train
//	$ gomlx_trainer convert ~/data/adult/train ~/data/adult_tfrecord/train
package main

import (
	"flag"
	"os"

	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/ui/commandline"
	"github.com/gomlx/trainer/pkg/estimator"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"k8s.io/klog/v2"

	_ "github.com/gomlx/gomlx/backends/default"
)

func main() {
	klog.InitFlags(nil)

	// Hyperparameters that can be set with --set, listed in the flag help with their default values.
	ctx := estimator.DefaultHyperparameters(context.New())
	settings := commandline.CreateContextSettingsFlag(ctx, "set")

	root := &cobra.Command{
		Use:          "gomlx_trainer",
		Short:        "Train and evaluate models on data directories",
		SilenceUsage: true,
	}
	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)
	root.PersistentFlags().AddFlagSet(pflag.CommandLine)
	root.AddCommand(trainCmd(ctx, settings), inspectCmd(), convertCmd())
	if err := root.Execute(); err != nil {
		klog.Errorf("%+v", err)
		klog.Flush()
		os.Exit(1)
	}
	klog.Flush()
}
