// Command validate checks the integrity of a labeled trajectory table written
// by trajcluster: every trajectory is complete and contiguous, carries a
// single stratum and cluster label, and, when the input table is given,
// matches the positions it was clustered from.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -labeled out/labeled.csv \
//	  -samples data/mock/samples.csv \
//	  -k 5
package main

import (
	"flag"
	"fmt"
	"io"
	"maps"
	"math"
	"os"
	"slices"
	"time"

	"github.com/couchcryptid/trajectory-cluster/internal/adapter/csvfile"
	"github.com/couchcryptid/trajectory-cluster/internal/cluster"
	"github.com/couchcryptid/trajectory-cluster/internal/domain"
)

// coordTolerance absorbs the float formatting round trip through CSV.
const coordTolerance = 1e-9

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	labeledPath := fs.String("labeled", "", "labeled CSV written by trajcluster")
	samplesPath := fs.String("samples", "", "optional input CSV the labels were computed from")
	k := fs.Int("k", cluster.DefaultClusterCount, "number of clusters per stratum")
	length := fs.Int("length", domain.DefaultLength, "samples per trajectory")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *labeledPath == "" {
		fs.Usage()
		return 2
	}

	fmt.Fprintln(stdout, "=== Trajectory Label Validation ===")

	labeled, err := loadLabeled(*labeledPath)
	if err != nil {
		fmt.Fprintf(stderr, "FATAL: load labeled CSV: %v\n", err)
		return 1
	}

	trajs := groupTrajectories(labeled)
	phases := []*phase{
		validateCompleteness(trajs, *length),
		validateContiguity(labeled),
		validateLabels(trajs, *k),
	}

	if *samplesPath != "" {
		samples, err := loadSamples(*samplesPath)
		if err != nil {
			fmt.Fprintf(stderr, "FATAL: load samples CSV: %v\n", err)
			return 1
		}
		phases = append(phases, validateCoverage(trajs, samples, *length))
	}

	fmt.Fprintln(stdout)
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(stdout, "  %-42s %s\n", p.name, status)
	}

	fmt.Fprintln(stdout)
	fmt.Fprintf(stdout, "Rows: %d labeled, %d trajectories, %d strata\n",
		len(labeled), len(trajs), countStrata(trajs))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(stdout, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(stdout, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(stdout, "\nAll validations passed.")
		return 0
	}
	fmt.Fprintln(stdout, "\nValidation FAILED.")
	return 1
}

// ── Data loading ──

func loadLabeled(path string) ([]domain.LabeledSample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return csvfile.ReadLabeled(f)
}

func loadSamples(path string) ([]domain.Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return csvfile.ReadSamples(f)
}

// trajectory is the labeled samples sharing one release time.
type trajectory struct {
	date    time.Time
	samples []domain.LabeledSample
}

// groupTrajectories groups rows by release time in order of first appearance.
func groupTrajectories(rows []domain.LabeledSample) []trajectory {
	index := make(map[int64]int)
	var out []trajectory
	for _, r := range rows {
		key := r.Date.UnixNano()
		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, trajectory{date: r.Date})
		}
		out[i].samples = append(out[i].samples, r)
	}
	return out
}

func countStrata(trajs []trajectory) int {
	seen := make(map[string]struct{})
	for _, t := range trajs {
		if len(t.samples) > 0 {
			seen[t.samples[0].Stratum] = struct{}{}
		}
	}
	return len(seen)
}

// ── Phase 1: completeness ──

// validateCompleteness checks that every labeled trajectory has exactly
// length samples with distinct hour increments.
func validateCompleteness(trajs []trajectory, length int) *phase {
	p := &phase{name: "Phase 1: Trajectory completeness"}
	for _, t := range trajs {
		id := t.date.Format(time.RFC3339)
		if len(t.samples) != length {
			p.errorf("%s: %d samples, want %d", id, len(t.samples), length)
		}
		hours := make(map[int]struct{}, len(t.samples))
		for _, s := range t.samples {
			if _, dup := hours[s.HourInc]; dup {
				p.errorf("%s: duplicate hour_inc %d", id, s.HourInc)
			}
			hours[s.HourInc] = struct{}{}
		}
	}
	return p
}

// ── Phase 2: contiguity ──

// validateContiguity checks that the rows of each trajectory form one block.
func validateContiguity(rows []domain.LabeledSample) *phase {
	p := &phase{name: "Phase 2: Trajectory contiguity"}
	closed := make(map[int64]bool)
	for i, r := range rows {
		key := r.Date.UnixNano()
		if i > 0 && !rows[i-1].Date.Equal(r.Date) {
			closed[rows[i-1].Date.UnixNano()] = true
		}
		if closed[key] {
			p.errorf("row %d: trajectory %s resumes after other rows", i+1, r.Date.Format(time.RFC3339))
			closed[key] = false
		}
	}
	return p
}

// ── Phase 3: labels ──

// validateLabels checks that each trajectory has one stratum and one cluster
// in [1, k], and that no stratum uses more than k clusters.
func validateLabels(trajs []trajectory, k int) *phase {
	p := &phase{name: "Phase 3: Label consistency"}
	clustersByStratum := make(map[string]map[int]struct{})
	for _, t := range trajs {
		if len(t.samples) == 0 {
			continue
		}
		id := t.date.Format(time.RFC3339)
		first := t.samples[0]
		for _, s := range t.samples[1:] {
			if s.Stratum != first.Stratum {
				p.errorf("%s: strata %q and %q", id, first.Stratum, s.Stratum)
				break
			}
		}
		for _, s := range t.samples[1:] {
			if s.Cluster != first.Cluster {
				p.errorf("%s: clusters %d and %d", id, first.Cluster, s.Cluster)
				break
			}
		}
		if first.Cluster < 1 || first.Cluster > k {
			p.errorf("%s: cluster %d outside [1, %d]", id, first.Cluster, k)
		}
		if clustersByStratum[first.Stratum] == nil {
			clustersByStratum[first.Stratum] = make(map[int]struct{})
		}
		clustersByStratum[first.Stratum][first.Cluster] = struct{}{}
	}
	for _, name := range slices.Sorted(maps.Keys(clustersByStratum)) {
		if n := len(clustersByStratum[name]); n > k {
			p.errorf("stratum %q: %d distinct clusters, want at most %d", name, n, k)
		}
	}
	return p
}

// ── Phase 4: coverage ──

// validateCoverage checks the labeled table against the input it was computed
// from: every labeled sample exists in the input with the same position, and
// every complete input trajectory was labeled. A stratum that failed to
// cluster shows up here as missing trajectories.
func validateCoverage(trajs []trajectory, input []domain.Sample, length int) *phase {
	p := &phase{name: "Phase 4: Input coverage"}

	type key struct {
		date int64
		hour int
	}
	positions := make(map[key]domain.Sample, len(input))
	counts := make(map[int64]int)
	for _, s := range input {
		positions[key{s.Date.UnixNano(), s.HourInc}] = s
		counts[s.Date.UnixNano()]++
	}

	labeled := make(map[int64]bool, len(trajs))
	for _, t := range trajs {
		labeled[t.date.UnixNano()] = true
		for _, s := range t.samples {
			in, ok := positions[key{s.Date.UnixNano(), s.HourInc}]
			if !ok {
				p.errorf("%s hour %d: not in input", s.Date.Format(time.RFC3339), s.HourInc)
				continue
			}
			if math.Abs(in.Lat-s.Lat) > coordTolerance || math.Abs(in.Lon-s.Lon) > coordTolerance {
				p.errorf("%s hour %d: position (%g, %g), input has (%g, %g)",
					s.Date.Format(time.RFC3339), s.HourInc, s.Lat, s.Lon, in.Lat, in.Lon)
			}
		}
	}

	var missing int
	for date, n := range counts {
		if n == length && !labeled[date] {
			missing++
		}
	}
	if missing > 0 {
		p.errorf("%d complete input trajectories have no label", missing)
	}
	return p
}
