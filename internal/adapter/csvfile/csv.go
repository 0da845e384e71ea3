// Package csvfile reads flat trajectory sample tables and writes labeled ones.
package csvfile

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/trajectory-cluster/internal/domain"
)

// LabeledHeader is the column layout written by WriteLabeled.
var LabeledHeader = []string{"date", "hour_inc", "lat", "lon", "stratum", "cluster"}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
}

// columns maps the required fields to their index in a row.
type columns struct {
	date, hourInc, lat, lon int
}

func findColumns(header []string) (columns, error) {
	c := columns{date: -1, hourInc: -1, lat: -1, lon: -1}
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "date":
			c.date = i
		case "hour.inc", "hour_inc", "hourinc":
			c.hourInc = i
		case "lat":
			c.lat = i
		case "lon":
			c.lon = i
		}
	}
	var missing []string
	if c.date < 0 {
		missing = append(missing, "date")
	}
	if c.hourInc < 0 {
		missing = append(missing, "hour_inc")
	}
	if c.lat < 0 {
		missing = append(missing, "lat")
	}
	if c.lon < 0 {
		missing = append(missing, "lon")
	}
	if len(missing) > 0 {
		return c, fmt.Errorf("missing columns: %s", strings.Join(missing, ", "))
	}
	return c, nil
}

// ReadSamples parses a CSV table with a header row naming at least the
// date, hour_inc (or hour.inc), lat and lon columns. Other columns are
// ignored. Dates are read as UTC.
func ReadSamples(r io.Reader) ([]domain.Sample, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("empty sample table")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols, err := findColumns(header)
	if err != nil {
		return nil, err
	}

	var samples []domain.Sample
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		line, _ := cr.FieldPos(0)
		s, err := parseRow(row, cols)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		samples = append(samples, s)
	}
	return samples, nil
}

func parseRow(row []string, c columns) (domain.Sample, error) {
	field := func(i int) (string, error) {
		if i >= len(row) {
			return "", fmt.Errorf("row has %d fields, want at least %d", len(row), i+1)
		}
		return strings.TrimSpace(row[i]), nil
	}

	var s domain.Sample
	v, err := field(c.date)
	if err != nil {
		return s, err
	}
	if s.Date, err = ParseDate(v); err != nil {
		return s, err
	}

	if v, err = field(c.hourInc); err != nil {
		return s, err
	}
	h, err := strconv.ParseFloat(v, 64)
	if err != nil || h != float64(int(h)) {
		return s, fmt.Errorf("invalid hour increment %q", v)
	}
	s.HourInc = int(h)

	if v, err = field(c.lat); err != nil {
		return s, err
	}
	if s.Lat, err = strconv.ParseFloat(v, 64); err != nil {
		return s, fmt.Errorf("invalid lat %q", v)
	}

	if v, err = field(c.lon); err != nil {
		return s, err
	}
	if s.Lon, err = strconv.ParseFloat(v, 64); err != nil {
		return s, fmt.Errorf("invalid lon %q", v)
	}
	return s, nil
}

// ParseDate accepts RFC 3339 or "2006-01-02 15:04[:05]" timestamps.
func ParseDate(v string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, v, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", v)
}

// ReadLabeled parses a table written by WriteLabeled.
func ReadLabeled(r io.Reader) ([]domain.LabeledSample, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("empty labeled table")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols, err := findColumns(header)
	if err != nil {
		return nil, err
	}
	stratumCol, clusterCol := -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "stratum":
			stratumCol = i
		case "cluster":
			clusterCol = i
		}
	}
	if stratumCol < 0 || clusterCol < 0 {
		return nil, errors.New("missing columns: stratum, cluster")
	}

	var out []domain.LabeledSample
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		line, _ := cr.FieldPos(0)
		s, err := parseRow(row, cols)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if stratumCol >= len(row) || clusterCol >= len(row) {
			return nil, fmt.Errorf("line %d: row has %d fields", line, len(row))
		}
		k, err := strconv.Atoi(strings.TrimSpace(row[clusterCol]))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid cluster %q", line, row[clusterCol])
		}
		out = append(out, domain.LabeledSample{Sample: s, Stratum: row[stratumCol], Cluster: k})
	}
	return out, nil
}

// WriteSamples writes unlabeled samples with a date, hour_inc, lat, lon header.
func WriteSamples(w io.Writer, samples []domain.Sample) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(LabeledHeader[:4]); err != nil {
		return err
	}
	for _, s := range samples {
		if err := cw.Write(sampleFields(s)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteLabeled writes labeled samples using LabeledHeader.
func WriteLabeled(w io.Writer, samples []domain.LabeledSample) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(LabeledHeader); err != nil {
		return err
	}
	for _, s := range samples {
		row := append(sampleFields(s.Sample), s.Stratum, strconv.Itoa(s.Cluster))
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteSummary writes the per-cluster mean trajectories.
func WriteSummary(w io.Writer, means []domain.ClusterMean) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"stratum", "cluster", "hour_inc", "lat", "lon", "n"}); err != nil {
		return err
	}
	for _, m := range means {
		row := []string{
			m.Stratum,
			strconv.Itoa(m.Cluster),
			strconv.Itoa(m.HourInc),
			formatFloat(m.Lat),
			formatFloat(m.Lon),
			strconv.Itoa(m.N),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteShares writes the number and percentage of trajectories per cluster.
func WriteShares(w io.Writer, shares []domain.ClusterShare) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"stratum", "cluster", "trajectories", "percent"}); err != nil {
		return err
	}
	for _, s := range shares {
		row := []string{
			s.Stratum,
			strconv.Itoa(s.Cluster),
			strconv.Itoa(s.Trajectories),
			strconv.FormatFloat(s.Percent, 'f', 1, 64),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func sampleFields(s domain.Sample) []string {
	return []string{
		s.Date.UTC().Format(time.RFC3339),
		strconv.Itoa(s.HourInc),
		formatFloat(s.Lat),
		formatFloat(s.Lon),
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
