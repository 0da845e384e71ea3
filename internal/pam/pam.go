// Package pam implements Partitioning Around Medoids (Kaufman and Rousseeuw)
// on a precomputed dissimilarity matrix.
//
// The BUILD phase picks k initial medoids greedily; the SWAP phase then
// exchanges a medoid with a non-medoid while doing so lowers the total
// dissimilarity of every item to its nearest medoid. There is no randomness:
// ties always resolve to the lowest index, so equal input gives equal output.
package pam

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/mat"
)

var (
	ErrEmpty      = errors.New("pam: empty dissimilarity matrix")
	ErrNotSquare  = errors.New("pam: dissimilarity matrix is not square")
	ErrAsymmetric = errors.New("pam: dissimilarity matrix is not symmetric")
	ErrDiagonal   = errors.New("pam: dissimilarity matrix has a non-zero diagonal")
	ErrNegative   = errors.New("pam: dissimilarity matrix has a negative entry")
	ErrNaN        = errors.New("pam: dissimilarity matrix has a NaN entry")
	ErrInvalidK   = errors.New("pam: k out of range")
)

const (
	// DefaultMaxIterations bounds the SWAP phase.
	DefaultMaxIterations = 100

	// DefaultTolerance is the relative tolerance for the symmetry check.
	DefaultTolerance = 1e-9
)

// Options tunes the algorithm. Zero values select the defaults.
type Options struct {
	MaxIterations int
	Tolerance     float64
}

// Result is the outcome of a PAM run over n items.
type Result struct {
	// Medoids holds the item index of each cluster's medoid in ascending
	// order; cluster c (1-based) has medoid Medoids[c-1].
	Medoids []int

	// Labels holds the 1-based cluster of every item.
	Labels []int

	// Cost is the sum of the dissimilarities of all items to their medoid.
	Cost float64

	Iterations int
	Converged  bool
}

// Validate checks that d is a usable dissimilarity matrix and returns its
// dimension. Symmetry is checked within a relative tolerance tol.
func Validate(d mat.Matrix, tol float64) (int, error) {
	r, c := d.Dims()
	if r != c {
		return 0, fmt.Errorf("%w: %d x %d", ErrNotSquare, r, c)
	}
	if r == 0 {
		return 0, ErrEmpty
	}
	for i := 0; i < r; i++ {
		if v := d.At(i, i); v != 0 {
			return 0, fmt.Errorf("%w: [%d,%d] = %g", ErrDiagonal, i, i, v)
		}
		for j := i + 1; j < r; j++ {
			a, b := d.At(i, j), d.At(j, i)
			switch {
			case math.IsNaN(a) || math.IsNaN(b):
				return 0, fmt.Errorf("%w: [%d,%d]", ErrNaN, i, j)
			case a < 0 || b < 0:
				return 0, fmt.Errorf("%w: [%d,%d]", ErrNegative, i, j)
			case math.Abs(a-b) > tol*math.Max(1, math.Max(a, b)):
				return 0, fmt.Errorf("%w: [%d,%d] = %g, [%d,%d] = %g", ErrAsymmetric, i, j, a, j, i, b)
			}
		}
	}
	return r, nil
}

// Cluster partitions the n items of d into k clusters, 1 <= k <= n.
func Cluster(d mat.Matrix, k int, opts Options) (Result, error) {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = DefaultTolerance
	}

	n, err := Validate(d, opts.Tolerance)
	if err != nil {
		return Result{}, err
	}
	if k < 1 || k > n {
		return Result{}, fmt.Errorf("%w: k = %d, n = %d", ErrInvalidK, k, n)
	}

	s := newState(symmetric(d), n)
	s.build(k)
	iter, converged := s.swap(opts.MaxIterations)

	res := Result{
		Medoids:    slices.Clone(s.medoids),
		Labels:     s.labels(),
		Iterations: iter,
		Converged:  converged,
	}
	for j := 0; j < n; j++ {
		res.Cost += s.near[j]
	}
	return res, nil
}

// dissim reads a symmetric matrix through its upper triangle.
type dissim struct {
	stride int
	data   []float64
}

func (m dissim) at(i, j int) float64 {
	if i > j {
		i, j = j, i
	}
	return m.data[i*m.stride+j]
}

func symmetric(d mat.Matrix) dissim {
	if rs, ok := d.(mat.RawSymmetricer); ok {
		raw := rs.RawSymmetric()
		if raw.Uplo == 'U' || raw.Uplo == 0 {
			return dissim{stride: raw.Stride, data: raw.Data}
		}
	}
	n, _ := d.Dims()
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, d.At(i, j))
		}
	}
	raw := sym.RawSymmetric()
	return dissim{stride: raw.Stride, data: raw.Data}
}

type state struct {
	d        dissim
	n        int
	medoids  []int // ascending
	isMedoid []bool
	near     []float64 // distance to nearest medoid
	nearIdx  []int     // nearest medoid item index
	second   []float64 // distance to second nearest medoid
}

func newState(d dissim, n int) *state {
	return &state{
		d:        d,
		n:        n,
		isMedoid: make([]bool, n),
		near:     make([]float64, n),
		nearIdx:  make([]int, n),
		second:   make([]float64, n),
	}
}

// build selects k medoids greedily: first the item with the smallest total
// dissimilarity, then repeatedly the item that lowers the total cost most.
func (s *state) build(k int) {
	first, best := 0, math.Inf(1)
	for i := 0; i < s.n; i++ {
		var sum float64
		for j := 0; j < s.n; j++ {
			sum += s.d.at(i, j)
		}
		if sum < best {
			first, best = i, sum
		}
	}
	s.addMedoid(first)

	for len(s.medoids) < k {
		pick, bestGain := -1, -1.0
		for i := 0; i < s.n; i++ {
			if s.isMedoid[i] {
				continue
			}
			var gain float64
			for j := 0; j < s.n; j++ {
				if g := s.near[j] - s.d.at(i, j); g > 0 {
					gain += g
				}
			}
			if gain > bestGain {
				pick, bestGain = i, gain
			}
		}
		s.addMedoid(pick)
	}
}

func (s *state) addMedoid(m int) {
	s.isMedoid[m] = true
	s.medoids = append(s.medoids, m)
	slices.Sort(s.medoids)
	s.assign()
}

// assign recomputes nearest and second nearest medoid distances.
func (s *state) assign() {
	for j := 0; j < s.n; j++ {
		s.near[j], s.second[j], s.nearIdx[j] = math.Inf(1), math.Inf(1), -1
		for _, m := range s.medoids {
			v := s.d.at(m, j)
			if m == j {
				v = 0
			}
			switch {
			case v < s.near[j] || (m == j && v <= s.near[j]):
				s.second[j] = s.near[j]
				s.near[j], s.nearIdx[j] = v, m
			case v < s.second[j]:
				s.second[j] = v
			}
		}
	}
}

// swap performs best-improvement swaps until none lowers the cost.
func (s *state) swap(maxIter int) (int, bool) {
	for iter := 0; iter < maxIter; iter++ {
		bestDelta, outPos, in := 0.0, -1, -1
		for pos, m := range s.medoids {
			for h := 0; h < s.n; h++ {
				if s.isMedoid[h] {
					continue
				}
				var delta float64
				for j := 0; j < s.n; j++ {
					dh := s.d.at(h, j)
					if s.nearIdx[j] == m {
						delta += math.Min(s.second[j], dh) - s.near[j]
					} else if dh < s.near[j] {
						delta += dh - s.near[j]
					}
				}
				if delta < bestDelta {
					bestDelta, outPos, in = delta, pos, h
				}
			}
		}
		// Ignore improvements lost in floating point noise.
		if outPos < 0 || bestDelta > -1e-12*math.Max(1, s.cost()) {
			return iter, true
		}
		s.isMedoid[s.medoids[outPos]] = false
		s.isMedoid[in] = true
		s.medoids[outPos] = in
		slices.Sort(s.medoids)
		s.assign()
	}
	return maxIter, false
}

func (s *state) cost() float64 {
	var c float64
	for _, v := range s.near {
		c += v
	}
	return c
}

// labels maps every item to the 1-based position of its nearest medoid.
func (s *state) labels() []int {
	label := make(map[int]int, len(s.medoids))
	for i, m := range s.medoids {
		label[m] = i + 1
	}
	out := make([]int, s.n)
	for j := range out {
		out[j] = label[s.nearIdx[j]]
	}
	return out
}
