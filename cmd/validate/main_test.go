package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/trajectory-cluster/internal/adapter/csvfile"
	"github.com/couchcryptid/trajectory-cluster/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func labeledTrajectory(date time.Time, length int, stratum string, label int) []domain.LabeledSample {
	out := make([]domain.LabeledSample, length)
	for h := range length {
		out[h] = domain.LabeledSample{
			Sample:  domain.Sample{Date: date, HourInc: -h, Lat: 40 + float64(h), Lon: -105 - float64(h)},
			Stratum: stratum,
			Cluster: label,
		}
	}
	return out
}

func validRows() []domain.LabeledSample {
	var rows []domain.LabeledSample
	rows = append(rows, labeledTrajectory(day, 3, "all", 1)...)
	rows = append(rows, labeledTrajectory(day.Add(6*time.Hour), 3, "all", 2)...)
	rows = append(rows, labeledTrajectory(day.Add(12*time.Hour), 3, "all", 1)...)
	return rows
}

func TestValidateCompleteness(t *testing.T) {
	rows := validRows()
	assert.True(t, validateCompleteness(groupTrajectories(rows), 3).passed())

	short := rows[:len(rows)-1]
	p := validateCompleteness(groupTrajectories(short), 3)
	require.Len(t, p.errors, 1)
	assert.Contains(t, p.errors[0], "2 samples, want 3")

	dup := validRows()
	dup[1].HourInc = 0
	p = validateCompleteness(groupTrajectories(dup), 3)
	assert.Contains(t, p.errors[0], "duplicate hour_inc 0")
}

func TestValidateContiguity(t *testing.T) {
	assert.True(t, validateContiguity(validRows()).passed())

	rows := validRows()
	rows[2], rows[3] = rows[3], rows[2]
	p := validateContiguity(rows)
	require.False(t, p.passed())
	assert.Contains(t, p.errors[0], "resumes after other rows")
}

func TestValidateLabels(t *testing.T) {
	assert.True(t, validateLabels(groupTrajectories(validRows()), 2).passed())

	t.Run("out of range", func(t *testing.T) {
		p := validateLabels(groupTrajectories(validRows()), 1)
		require.False(t, p.passed())
		assert.Contains(t, p.errors[0], "cluster 2 outside [1, 1]")
	})

	t.Run("mixed cluster", func(t *testing.T) {
		rows := validRows()
		rows[1].Cluster = 2
		p := validateLabels(groupTrajectories(rows), 2)
		require.Len(t, p.errors, 1)
		assert.Contains(t, p.errors[0], "clusters 1 and 2")
	})

	t.Run("mixed stratum", func(t *testing.T) {
		rows := validRows()
		rows[4].Stratum = "JJA"
		p := validateLabels(groupTrajectories(rows), 2)
		require.Len(t, p.errors, 1)
		assert.Contains(t, p.errors[0], `strata "all" and "JJA"`)
	})
}

func TestValidateCoverage(t *testing.T) {
	rows := validRows()
	input := make([]domain.Sample, 0, len(rows)+3)
	for _, r := range rows {
		input = append(input, r.Sample)
	}
	trajs := groupTrajectories(rows)
	assert.True(t, validateCoverage(trajs, input, 3).passed())

	t.Run("unlabeled trajectory", func(t *testing.T) {
		extra := append(input, labeledSamples(day.Add(18*time.Hour), 3)...)
		p := validateCoverage(trajs, extra, 3)
		require.Len(t, p.errors, 1)
		assert.Contains(t, p.errors[0], "1 complete input trajectories have no label")
	})

	t.Run("moved position", func(t *testing.T) {
		moved := groupTrajectories(validRows())
		moved[0].samples[1].Lat += 0.5
		p := validateCoverage(moved, input, 3)
		require.Len(t, p.errors, 1)
		assert.Contains(t, p.errors[0], "hour -1: position")
	})
}

func labeledSamples(date time.Time, length int) []domain.Sample {
	var out []domain.Sample
	for _, l := range labeledTrajectory(date, length, "", 0) {
		out = append(out, l.Sample)
	}
	return out
}

func writeFixture(t *testing.T, rows []domain.LabeledSample) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "labeled.csv")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, csvfile.WriteLabeled(f, rows))
	require.NoError(t, f.Close())
	return path
}

func TestRun(t *testing.T) {
	t.Run("passes", func(t *testing.T) {
		path := writeFixture(t, validRows())
		var out bytes.Buffer
		code := run([]string{"-labeled", path, "-k", "2", "-length", "3"}, &out, &bytes.Buffer{})
		assert.Equal(t, 0, code)
		assert.Contains(t, out.String(), "All validations passed.")
		assert.Contains(t, out.String(), "Rows: 9 labeled, 3 trajectories, 1 strata")
	})

	t.Run("fails", func(t *testing.T) {
		path := writeFixture(t, validRows())
		var out bytes.Buffer
		code := run([]string{"-labeled", path, "-k", "2", "-length", "4"}, &out, &bytes.Buffer{})
		assert.Equal(t, 1, code)
		assert.Contains(t, out.String(), "Phase 1: Trajectory completeness")
		assert.Contains(t, out.String(), "Validation FAILED.")
	})

	t.Run("missing flag", func(t *testing.T) {
		assert.Equal(t, 2, run(nil, &bytes.Buffer{}, &bytes.Buffer{}))
	})

	t.Run("missing file", func(t *testing.T) {
		var stderr bytes.Buffer
		code := run([]string{"-labeled", filepath.Join(t.TempDir(), "nope.csv")}, &bytes.Buffer{}, &stderr)
		assert.Equal(t, 1, code)
		assert.Contains(t, stderr.String(), "FATAL: load labeled CSV")
	})
}
