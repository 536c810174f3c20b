// Package emabund estimates the relative abundance of categories (genes, taxa,
// transcripts) from reads that may align to more than one of them.
// Uniquely assigned reads anchor the estimate; multi-mapped reads are split
// across their candidate categories in proportion to the current abundance,
// and the abundance is re-estimated until it stops changing.
//
// The category universe is fixed from the input at the start of a call and
// abundances are held in dense slices indexed by it. Estimate never mutates its
// input and keeps no state between calls, so it is safe to call concurrently.
package emabund

import (
	"context"
	"math"
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

var (
	// ErrInvalidInput is returned for empty input or out-of-range options.
	ErrInvalidInput = errors.New("emabund: invalid input")
	// ErrDegenerateDistribution is returned when a renormalization would
	// divide by zero, e.g. when the noise threshold removes every category.
	ErrDegenerateDistribution = errors.New("emabund: degenerate distribution")
)

// Assignment says that Read aligns to Category. A read with several
// assignments is split equally among them before abundance weighting.
type Assignment struct {
	Read     string
	Category string
}

// Reporter receives the iteration number and L1 delta after each EM iteration.
type Reporter interface {
	Report(iter int, delta float64)
}

// ReporterFunc adapts a function to a Reporter.
type ReporterFunc func(iter int, delta float64)

// Report calls f(iter, delta).
func (f ReporterFunc) Report(iter int, delta float64) { f(iter, delta) }

// Options control the EM iterations.
type Options struct {
	// NoiseThreshold zeroes any category whose abundance drops below it. Must be in [0, 1).
	NoiseThreshold float64
	// MaxIterations bounds the number of EM iterations. Must be >= 1.
	MaxIterations int
	// MaxDelta is the L1 change between iterations at which the estimate has converged.
	MaxDelta float64
	// Progress is optional.
	Progress Reporter
}

// DefaultOptions returns a threshold of 0, 1000 iterations and a delta of 1e-10.
func DefaultOptions() Options {
	return Options{MaxIterations: 1000, MaxDelta: 1e-10}
}

func (o Options) check() error {
	if math.IsNaN(o.NoiseThreshold) || o.NoiseThreshold < 0 || o.NoiseThreshold >= 1 {
		return errors.Wrapf(ErrInvalidInput, "noise threshold %v not in [0, 1)", o.NoiseThreshold)
	}
	if o.MaxIterations < 1 {
		return errors.Wrapf(ErrInvalidInput, "max iterations must be >= 1, got %d", o.MaxIterations)
	}
	if math.IsNaN(o.MaxDelta) || o.MaxDelta <= 0 {
		return errors.Wrapf(ErrInvalidInput, "max delta must be > 0, got %v", o.MaxDelta)
	}
	return nil
}

// Result holds the estimate for every category seen in the input.
type Result struct {
	// Categories is sorted; it indexes Abundance and UniqueCounts.
	Categories []string
	// Abundance sums to 1, except when ShortCircuit is set, in which case it
	// holds the raw unique read counts.
	Abundance []float64
	// UniqueCounts is the number of uniquely assigned reads per category.
	UniqueCounts []float64
	// Iterations is the number of completed EM iterations (1 for a short-circuit).
	Iterations int
	// Converged is false when the iteration budget ran out first.
	Converged bool
	// ShortCircuit is set when no read was ambiguous and EM was skipped.
	ShortCircuit bool
	// Unique and Ambiguous are read counts after de-duplication.
	Unique, Ambiguous int
	// Trace holds the L1 delta of each iteration.
	Trace []float64
}

// Map returns the abundance keyed by category.
func (r *Result) Map() map[string]float64 {
	m := make(map[string]float64, len(r.Categories))
	for i, c := range r.Categories {
		m[c] = r.Abundance[i]
	}
	return m
}

// Normalized returns a copy of Abundance that sums to 1. It only differs from
// Abundance for short-circuit results.
func (r *Result) Normalized() ([]float64, error) {
	a := make([]float64, len(r.Abundance))
	copy(a, r.Abundance)
	if err := normalize(a); err != nil {
		return nil, err
	}
	return a, nil
}

// reads holds the de-duplicated input in index space.
type reads struct {
	categories []string
	unique     []float64
	nUnique    int
	// candidates of each ambiguous read.
	ambiguous [][]int
}

func index(assignments []Assignment) *reads {
	cidx := make(map[string]int)
	for _, a := range assignments {
		cidx[a.Category] = 0
	}
	cats := make([]string, 0, len(cidx))
	for c := range cidx {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	for i, c := range cats {
		cidx[c] = i
	}

	// candidates per read in first-seen order, de-duplicated.
	ridx := make(map[string]int)
	var cands [][]int
	for _, a := range assignments {
		ri, ok := ridx[a.Read]
		if !ok {
			ri = len(cands)
			ridx[a.Read] = ri
			cands = append(cands, nil)
		}
		ci := cidx[a.Category]
		if !contains(cands[ri], ci) {
			cands[ri] = append(cands[ri], ci)
		}
	}

	rs := &reads{categories: cats, unique: make([]float64, len(cats))}
	for _, c := range cands {
		if len(c) == 1 {
			rs.unique[c[0]]++
			rs.nUnique++
			continue
		}
		rs.ambiguous = append(rs.ambiguous, c)
	}
	return rs
}

func contains(a []int, v int) bool {
	for _, x := range a {
		if x == v {
			return true
		}
	}
	return false
}

// Estimate runs EM over the assignments. See the package documentation.
// ctx is checked once per iteration.
func Estimate(ctx context.Context, assignments []Assignment, opts Options) (*Result, error) {
	if len(assignments) == 0 {
		return nil, errors.Wrap(ErrInvalidInput, "no assignments")
	}
	if err := opts.check(); err != nil {
		return nil, err
	}
	rs := index(assignments)
	G := len(rs.categories)
	if G == 0 {
		return nil, errors.Wrap(ErrInvalidInput, "no categories")
	}

	res := &Result{Categories: rs.categories, UniqueCounts: rs.unique,
		Unique: rs.nUnique, Ambiguous: len(rs.ambiguous)}

	if len(rs.ambiguous) == 0 {
		res.Abundance = make([]float64, G)
		copy(res.Abundance, rs.unique)
		res.Iterations, res.Converged, res.ShortCircuit = 1, true, true
		return res, nil
	}

	nA, nU := float64(len(rs.ambiguous)), float64(rs.nUnique)
	// unique term is fixed across iterations.
	uterm := make([]float64, G)
	if usum := floats.Sum(rs.unique); usum > 0 {
		floats.ScaleTo(uterm, nU/usum, rs.unique)
	}

	last := make([]float64, G)
	for i := range last {
		last[i] = 1 / float64(G)
	}
	cur := make([]float64, G)
	n := make([]float64, G)

	for iter := 1; ; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		estep(last, rs.ambiguous, n)
		if err := mstep(n, uterm, nA, nU, cur); err != nil {
			return nil, errors.Wrapf(err, "iteration %d", iter)
		}
		if err := denoise(cur, opts.NoiseThreshold); err != nil {
			return nil, errors.Wrapf(err, "iteration %d", iter)
		}

		delta := floats.Distance(cur, last, 1)
		res.Trace = append(res.Trace, delta)
		report(opts.Progress, iter, delta)

		if delta <= opts.MaxDelta || iter >= opts.MaxIterations {
			res.Abundance = cur
			res.Iterations = iter
			res.Converged = delta <= opts.MaxDelta
			return res, nil
		}
		last, cur = cur, last
	}
}

// estep fills n with the expected number of ambiguous reads from each category.
func estep(a []float64, ambiguous [][]int, n []float64) {
	for i := range n {
		n[i] = 0
	}
	for _, cands := range ambiguous {
		var p float64
		for _, c := range cands {
			p += a[c]
		}
		// every candidate is at zero abundance, so the read has nowhere to go.
		if p == 0 {
			continue
		}
		for _, c := range cands {
			n[c] += a[c] / p
		}
	}
}

// mstep combines ambiguous and unique evidence, weighted by read counts, into out.
func mstep(n, uterm []float64, nA, nU float64, out []float64) error {
	copy(out, uterm)
	if nsum := floats.Sum(n); nsum > 0 {
		floats.AddScaled(out, nA/nsum, n)
	}
	floats.Scale(1/(nA+nU), out)
	return normalize(out)
}

func denoise(a []float64, threshold float64) error {
	if threshold == 0 {
		return nil
	}
	for i, v := range a {
		if v < threshold {
			a[i] = 0
		}
	}
	return normalize(a)
}

func report(r Reporter, iter int, delta float64) {
	if r == nil {
		return
	}
	defer func() { _ = recover() }()
	r.Report(iter, delta)
}
