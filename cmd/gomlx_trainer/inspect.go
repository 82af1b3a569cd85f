// Copyright 2025-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/trainer/pkg/features"
	"github.com/gomlx/trainer/pkg/records"
	"github.com/gomlx/trainer/ui/report"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func inspectCmd() *cobra.Command {
	var label string
	cmd := &cobra.Command{
		Use:   "inspect <data_dir>",
		Short: "List the data files of a directory and the features found in them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, rows, err := inspect(args[0], label)
			if err != nil {
				return err
			}
			fmt.Println(report.Table(fmt.Sprintf("Data files in %q", args[0]), files))
			fmt.Println(report.Table("Features", rows))
			return nil
		},
	}
	cmd.Flags().StringVar(&label, "label", features.DefaultLabel, "Name of the feature used as label.")
	return cmd
}

// inspect returns the rows describing the data files of dir, and the rows describing its features,
// as they would be parsed with features.InferMapping.
func inspect(dir, label string) (fileRows, featureRows [][]string, err error) {
	files, err := records.Files(dir)
	if err != nil {
		return nil, nil, err
	}
	for _, path := range files {
		info, err := os.Stat(path)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "failed to stat %q", path)
		}
		format, compressed := records.FormatOf(path)
		formatName := format.String()
		if compressed {
			formatName += " (gzip)"
		}
		fileRows = append(fileRows, []string{filepath.Base(path), formatName, humanize.Bytes(uint64(info.Size()))})
	}

	recs, names, err := records.ReadDir(dir)
	if err != nil {
		return nil, nil, err
	}
	if specNames, found, err := features.ReadNames(dir); err != nil {
		return nil, nil, err
	} else if found {
		names = specNames
	}
	mapping := features.InferMapping(recs, label)
	presence := make(map[string]int, len(names))
	for _, rec := range recs {
		for name := range rec {
			presence[name]++
		}
	}
	for _, name := range names {
		feature, err := mapping(name)
		description := feature.String()
		if errors.Is(err, features.ErrSkip) {
			description = "skipped (bytes values)"
		} else if err != nil {
			description = err.Error()
		}
		if name == label {
			description += ", label"
		}
		featureRows = append(featureRows, []string{name, description,
			strconv.Itoa(presence[name]) + "/" + humanize.Comma(int64(len(recs))) + " records"})
	}
	return fileRows, featureRows, nil
}
