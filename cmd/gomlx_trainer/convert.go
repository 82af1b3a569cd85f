// Copyright 2025-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gomlx/trainer/pkg/features"
	"github.com/gomlx/trainer/pkg/records"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

// ConvertedFileName is the name of the TFRecord file written by the convert command.
const ConvertedFileName = "part-00000.tfrecord"

func convertCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "convert <src_dir> <dst_dir>",
		Short: "Rewrite every record of a data directory (CSV, Parquet or TFRecord) into one TFRecord file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := convert(args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Printf("Converted %d records to %q\n", n, filepath.Join(args[1], ConvertedFileName))
			return nil
		},
	}
}

// convert writes the records of srcDir to dstDir/ConvertedFileName. The feature names file, if present,
// is copied along.
func convert(srcDir, dstDir string) (int, error) {
	recs, _, err := records.ReadDir(srcDir)
	if err != nil {
		return 0, err
	}
	if err = os.MkdirAll(dstDir, 0755); err != nil {
		return 0, errors.Wrapf(err, "failed to create %q", dstDir)
	}
	dstPath := filepath.Join(dstDir, ConvertedFileName)
	f, err := os.Create(dstPath)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to create %q", dstPath)
	}
	buf := bufio.NewWriter(f)
	w := records.NewTFRecordWriter(buf)
	for ii, rec := range recs {
		if err = w.WriteExample(rec); err != nil {
			_ = f.Close()
			return 0, errors.WithMessagef(err, "while writing record #%d to %q", ii, dstPath)
		}
	}
	if err = buf.Flush(); err != nil {
		_ = f.Close()
		return 0, errors.Wrapf(err, "failed to write %q", dstPath)
	}
	if err = f.Close(); err != nil {
		return 0, errors.Wrapf(err, "failed to close %q", dstPath)
	}

	names, found, err := features.ReadNames(srcDir)
	if err != nil {
		return 0, err
	}
	if found {
		specPath := filepath.Join(dstDir, features.SpecFileName)
		if err = os.WriteFile(specPath, []byte(strings.Join(names, "\n")+"\n"), 0644); err != nil {
			return 0, errors.Wrapf(err, "failed to write %q", specPath)
		}
		klog.V(1).Infof("Copied %d feature names to %q", len(names), specPath)
	}
	return len(recs), nil
}
