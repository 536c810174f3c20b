// Package tmm implements trimmed mean of M-values (TMM) normalization of a
// gene by sample read count matrix.
package tmm

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Options for FactorTMM.
type Options struct {
	// LogRatioTrim is the fraction trimmed from each end of the log ratios.
	LogRatioTrim float64
	// SumTrim is the fraction trimmed from each end of the absolute expression.
	SumTrim float64
	// DoWeighting uses inverse asymptotic variance weights.
	DoWeighting bool
	// ACutoff drops genes with an absolute expression at or below it.
	ACutoff float64
	// LibSizeObs and LibSizeRef default to the column sums when <= 0.
	LibSizeObs, LibSizeRef float64
}

// DefaultOptions match edgeR's calcNormFactors.
func DefaultOptions() Options {
	return Options{LogRatioTrim: 0.3, SumTrim: 0.05, DoWeighting: true, ACutoff: -1e10}
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// FactorTMM returns the TMM scaling factor of obs relative to ref. Genes with
// a zero count in either sample are ignored. When nothing survives the trim
// the factor is 1.
func FactorTMM(obs, ref []float64, opts Options) float64 {
	nO, nR := opts.LibSizeObs, opts.LibSizeRef
	if nO <= 0 {
		nO = floats.Sum(obs)
	}
	if nR <= 0 {
		nR = floats.Sum(ref)
	}

	logR := make([]float64, 0, len(obs))
	absE := make([]float64, 0, len(obs))
	v := make([]float64, 0, len(obs))
	for i, o := range obs {
		r := ref[i]
		lr := math.Log2((o / nO) / (r / nR))
		ae := (math.Log2(o/nO) + math.Log2(r/nR)) / 2
		if !finite(lr) || !finite(ae) || ae <= opts.ACutoff {
			continue
		}
		logR = append(logR, lr)
		absE = append(absE, ae)
		v = append(v, (nO-o)/nO/o+(nR-r)/nR/r)
	}

	n := len(logR)
	loL := int(math.Floor(float64(n)*opts.LogRatioTrim)) + 1
	loS := int(math.Floor(float64(n)*opts.SumTrim)) + 1
	keepL := trimmed(logR, loL, n+1-loL)
	keepS := trimmed(absE, loS, n+1-loS)

	var num, den float64
	for i := range logR {
		if !keepL[i] || !keepS[i] {
			continue
		}
		if opts.DoWeighting {
			num += logR[i] / v[i]
			den += 1 / v[i]
		} else {
			num += logR[i]
			den++
		}
	}
	f := num / den
	if math.IsNaN(f) {
		f = 0
	}
	return math.Exp2(f)
}

// trimmed marks the values whose 0-based rank is in [lo, hi).
func trimmed(x []float64, lo, hi int) []bool {
	keep := make([]bool, len(x))
	if lo >= hi {
		return keep
	}
	s := make([]float64, len(x))
	copy(s, x)
	inds := make([]int, len(x))
	floats.Argsort(s, inds)
	for _, i := range inds[lo:hi] {
		keep[i] = true
	}
	return keep
}

// quantile is numpy's default (linear, R type 7) quantile of sorted x.
func quantile(p float64, x []float64) float64 {
	h := p * float64(len(x)-1)
	lo := int(math.Floor(h))
	if lo+1 >= len(x) {
		return x[len(x)-1]
	}
	return x[lo] + (h-float64(lo))*(x[lo+1]-x[lo])
}

// NormFactors returns one TMM factor per column of counts. The reference is
// the column whose upper quartile is closest to the mean upper quartile, and
// the factors are scaled to a geometric mean of 1.
func NormFactors(counts *mat.Dense) ([]float64, error) {
	r, c := counts.Dims()
	if r == 0 || c == 0 {
		return nil, errors.New("tmm: empty count matrix")
	}
	cols := make([][]float64, c)
	f75 := make([]float64, c)
	for j := range cols {
		cols[j] = mat.Col(nil, j, counts)
		s := make([]float64, r)
		copy(s, cols[j])
		floats.Argsort(s, make([]int, r))
		f75[j] = quantile(0.75, s)
	}
	mean := floats.Sum(f75) / float64(c)
	ref := 0
	for j, q := range f75 {
		if math.Abs(q-mean) < math.Abs(f75[ref]-mean) {
			ref = j
		}
	}

	opts := DefaultOptions()
	f := make([]float64, c)
	logs := make([]float64, c)
	for j := range cols {
		f[j] = FactorTMM(cols[j], cols[ref], opts)
		logs[j] = math.Log(f[j])
	}
	floats.Scale(1/math.Exp(floats.Sum(logs)/float64(c)), f)
	return f, nil
}

// NormCPM returns counts per million, with each library size scaled by its
// TMM factor.
func NormCPM(counts *mat.Dense) (*mat.Dense, error) {
	f, err := NormFactors(counts)
	if err != nil {
		return nil, err
	}
	r, c := counts.Dims()
	out := mat.NewDense(r, c, nil)
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, counts)
		lib := floats.Sum(col)
		if lib == 0 {
			return nil, errors.Errorf("tmm: column %d has no counts", j)
		}
		floats.Scale(1e6/(lib*f[j]), col)
		out.SetCol(j, col)
	}
	return out, nil
}
