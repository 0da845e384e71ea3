package cluster

import (
	"fmt"
	"time"

	"github.com/couchcryptid/trajectory-cluster/internal/domain"
	"github.com/couchcryptid/trajectory-cluster/internal/pam"
	"gonum.org/v1/gonum/mat"
)

// Assignment maps every trajectory of a set to a cluster label in [1, k].
// Dates[i] and Labels[i] describe trajectory i in TrajectorySet column order.
type Assignment struct {
	Dates   []time.Time
	Labels  []int
	Medoids []time.Time // release time of the medoid of cluster c at index c-1
	Cost    float64
}

// Label returns the cluster of the trajectory released at date, or 0.
func (a Assignment) Label(date time.Time) int {
	for i, d := range a.Dates {
		if d.Equal(date) {
			return a.Labels[i]
		}
	}
	return 0
}

// CheckClusterCount reports whether k clusters can be formed from m trajectories.
func CheckClusterCount(k, m int) error {
	if m == 0 {
		return fmt.Errorf("%w: no trajectories", domain.ErrInsufficientData)
	}
	if k < 1 || k > m {
		return fmt.Errorf("%w: k = %d with %d trajectories", domain.ErrInvalidClusterCount, k, m)
	}
	return nil
}

// Partitioner runs medoid partitioning on a dissimilarity matrix and maps the
// result back onto trajectories.
type Partitioner struct {
	opts pam.Options
}

// NewPartitioner returns a Partitioner using the given PAM options.
func NewPartitioner(opts pam.Options) *Partitioner {
	return &Partitioner{opts: opts}
}

// Partition clusters the trajectories of set into k groups using d, whose
// rows and columns must follow the set's column order. The matrix is
// validated first; a malformed matrix is an error, never clustered.
func (p *Partitioner) Partition(d mat.Matrix, set *domain.TrajectorySet, k int) (Assignment, error) {
	m := set.Len()
	if err := CheckClusterCount(k, m); err != nil {
		return Assignment{}, err
	}
	r, c := d.Dims()
	if r != m || c != m {
		return Assignment{}, fmt.Errorf("dissimilarity matrix is %d x %d, want %d x %d", r, c, m, m)
	}

	res, err := pam.Cluster(d, k, p.opts)
	if err != nil {
		return Assignment{}, fmt.Errorf("medoid partitioning: %w", err)
	}

	medoids := make([]time.Time, len(res.Medoids))
	for i, idx := range res.Medoids {
		medoids[i] = set.Dates[idx]
	}
	return Assignment{
		Dates:   set.Dates,
		Labels:  res.Labels,
		Medoids: medoids,
		Cost:    res.Cost,
	}, nil
}
