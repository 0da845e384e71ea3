package csvfile

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/couchcryptid/trajectory-cluster/internal/cluster"
	"github.com/couchcryptid/trajectory-cluster/internal/domain"
)

// Source reads samples from a CSV file. It implements pipeline.Extractor.
type Source struct {
	path string
}

// NewSource creates a Source for path. A path of "-" reads standard input.
func NewSource(path string) *Source {
	return &Source{path: path}
}

// Extract reads the whole file. The batch has no commit step.
func (s *Source) Extract(_ context.Context) (domain.SampleBatch, error) {
	var r io.Reader = os.Stdin
	if s.path != "-" {
		f, err := os.Open(s.path)
		if err != nil {
			return domain.SampleBatch{}, fmt.Errorf("open samples: %w", err)
		}
		defer f.Close()
		r = f
	}
	samples, err := ReadSamples(r)
	if err != nil {
		return domain.SampleBatch{}, fmt.Errorf("%s: %w", s.path, err)
	}
	return domain.SampleBatch{Samples: samples}, nil
}

// Sink writes labeled samples to a CSV file. It implements pipeline.Loader.
type Sink struct {
	path string
}

// NewSink creates a Sink for path. A path of "-" writes standard output.
func NewSink(path string) *Sink {
	return &Sink{path: path}
}

// Load writes the labeled samples of res, replacing the file atomically.
func (s *Sink) Load(_ context.Context, res cluster.Result) error {
	if s.path == "-" {
		return WriteLabeled(os.Stdout, res.Samples)
	}
	return writeFileAtomic(s.path, func(w io.Writer) error {
		return WriteLabeled(w, res.Samples)
	})
}

// SummarySink writes the mean trajectories and cluster shares of a run next
// to each other as <prefix>_means.csv and <prefix>_shares.csv.
// It implements pipeline.Reporter.
type SummarySink struct {
	prefix string
}

// NewSummarySink creates a SummarySink writing files starting with prefix.
func NewSummarySink(prefix string) *SummarySink {
	return &SummarySink{prefix: prefix}
}

// Report writes both summary tables.
func (s *SummarySink) Report(_ context.Context, res cluster.Result) error {
	sum := res.Summary()
	if err := writeFileAtomic(s.prefix+"_means.csv", func(w io.Writer) error {
		return WriteSummary(w, sum.Means)
	}); err != nil {
		return err
	}
	return writeFileAtomic(s.prefix+"_shares.csv", func(w io.Writer) error {
		return WriteShares(w, sum.Shares)
	})
}

func writeFileAtomic(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return os.Rename(tmp.Name(), path)
}
