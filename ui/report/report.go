// Copyright 2025-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package report renders the results of an experiment: metric tables for the command line, and a PNG
// plot of the metrics history collected during training (see package github.com/gomlx/gomlx/ui/plots).
package report

import (
	"cmp"
	"maps"
	"math"
	"slices"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/gomlx/gomlx/ui/plots"
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// PlotFileName is the file, in the model directory, with the metrics history plot.
const PlotFileName = "metrics.png"

var (
	titleStyle        = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	normalStyle       = lipgloss.NewStyle().Padding(0, 1)
	rightAlignedStyle = lipgloss.NewStyle().Align(lipgloss.Right).Padding(0, 1)
	tableBorderColor  = "#705090"
)

// Table renders rows of (name, value) as a rounded table with a title.
func Table(title string, rows [][]string) string {
	table := lgtable.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color(tableBorderColor))).
		StyleFunc(func(row, col int) lipgloss.Style {
			if col == 0 {
				return rightAlignedStyle
			}
			return normalStyle
		}).
		Rows(rows...)
	return lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render(title), table.Render())
}

// PlotHistory plots the points to a PNG file, one line per metric. NaN and infinite values are left out.
func PlotHistory(filePath string, points []plots.Point) error {
	lines := make(map[string]plotter.XYs)
	for _, p := range points {
		if math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
			continue
		}
		name := p.Short
		if name == "" {
			name = p.MetricName
		}
		lines[name] = append(lines[name], plotter.XY{X: p.Step, Y: p.Value})
	}

	if len(lines) == 0 {
		return errors.New("no points to plot")
	}
	p := plot.New()
	p.Title.Text = "Metrics"
	p.X.Label.Text = "global step"
	p.Legend.Top = true
	var lineArgs []any
	for _, name := range slices.Sorted(maps.Keys(lines)) {
		xys := lines[name]
		slices.SortStableFunc(xys, func(a, b plotter.XY) int { return cmp.Compare(a.X, b.X) })
		lineArgs = append(lineArgs, name, xys)
	}
	if err := plotutil.AddLinePoints(p, lineArgs...); err != nil {
		return errors.Wrap(err, "failed to plot metrics")
	}
	if err := p.Save(8*vg.Inch, 4*vg.Inch, filePath); err != nil {
		return errors.Wrapf(err, "failed to save plot to %q", filePath)
	}
	return nil
}
