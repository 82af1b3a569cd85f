// Copyright 2025-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gomlx/trainer/pkg/features"
	"github.com/gomlx/trainer/pkg/records"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeCSVDir writes a CSV data directory with a feature names file.
func writeCSVDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "part-0.csv"), []byte(
		"age,height,city,target\n"+
			"30,1.75,Paris,1\n"+
			"41,NA,Rome,0\n"+
			"25,1.60,Lima,1\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, features.SpecFileName),
		[]byte("# Features used.\nage\nheight\ntarget\n"), 0644))
	return dir
}

func TestConvert(t *testing.T) {
	src := writeCSVDir(t)
	dst := filepath.Join(t.TempDir(), "converted")
	n, err := convert(src, dst)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got, names, err := records.ReadDir(dst)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"age", "city", "height", "target"}, names)
	assert.Equal(t, []int64{30}, got[0]["age"].Int64s)
	assert.InDelta(t, 1.6, got[2]["height"].Floats[0], 1e-6)
	assert.Equal(t, [][]byte{[]byte("Lima")}, got[2]["city"].Bytes)
	assert.Equal(t, []int64{0}, got[1]["target"].Int64s)
	_, found := got[1]["height"]
	assert.False(t, found)

	specNames, found, err := features.ReadNames(dst)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []string{"age", "height", "target"}, specNames)

	_, err = convert(t.TempDir(), dst)
	require.Error(t, err, "empty source directory")
}

func TestInspect(t *testing.T) {
	dir := writeCSVDir(t)
	files, rows, err := inspect(dir, features.DefaultLabel)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "part-0.csv", files[0][0])

	// Features listed in the feature names file only.
	require.Len(t, rows, 3)
	assert.Equal(t, "age", rows[0][0])
	assert.Contains(t, strings.ToLower(rows[0][1]), "fixedlen(int64")
	assert.Equal(t, "height", rows[1][0])
	assert.Contains(t, strings.ToLower(rows[1][1]), "float32")
	assert.Equal(t, "2/3 records", rows[1][2])
	assert.Contains(t, rows[2][1], "label")

	// Without the names file, all features are listed, and bytes are skipped.
	require.NoError(t, os.Remove(filepath.Join(dir, features.SpecFileName)))
	_, rows, err = inspect(dir, features.DefaultLabel)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "city", rows[1][0])
	assert.Contains(t, rows[1][1], "skipped")
}
