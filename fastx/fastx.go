// Package fastx summarizes fasta and fastq files and fetches regions from
// indexed fasta.
package fastx

import (
	"bufio"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/biogo/biogo/alphabet"
	"github.com/biogo/biogo/io/seqio"
	"github.com/biogo/biogo/io/seqio/fasta"
	"github.com/biogo/biogo/io/seqio/fastq"
	"github.com/biogo/biogo/seq"
	"github.com/biogo/biogo/seq/linear"
	"github.com/brentp/faidx"
	"github.com/pkg/errors"
)

// SeqStats summarizes the lengths and base composition of a set of sequences.
type SeqStats struct {
	Count int
	Total int
	Min   int
	Max   int
	Mean  float64
	N50   int
	// GC is the fraction of G and C among all bases.
	GC float64
}

// N50 is the length of the sequence at which the sequences, longest first,
// cover at least half of the total length. It is 0 for no sequences.
func N50(lengths []int) int {
	l := make([]int, len(lengths))
	copy(l, lengths)
	sort.Sort(sort.Reverse(sort.IntSlice(l)))
	total := 0
	for _, v := range l {
		total += v
	}
	half := float64(total) * 0.5
	sofar := 0
	for _, v := range l {
		sofar += v
		if float64(sofar) >= half {
			return v
		}
	}
	return 0
}

func newReader(r io.Reader) (seqio.Reader, error) {
	br := bufio.NewReader(r)
	b, err := br.Peek(1)
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	switch b[0] {
	case '>':
		return fasta.NewReader(br, linear.NewSeq("", nil, alphabet.DNAredundant)), nil
	case '@':
		return fastq.NewReader(br, linear.NewQSeq("", nil, alphabet.DNAredundant, alphabet.Sanger)), nil
	}
	return nil, errors.Errorf("fastx: expected '>' or '@' at start of input, got %q", b[0])
}

// Stats reads fasta or fastq from r, telling them apart by the first byte.
// Empty input gives zero stats.
func Stats(r io.Reader) (SeqStats, error) {
	var st SeqStats
	sr, err := newReader(r)
	if err != nil || sr == nil {
		return st, err
	}
	var lengths []int
	var gc int
	st.Min = math.MaxInt
	sc := seqio.NewScanner(sr)
	for sc.Next() {
		s := sc.Seq()
		n := s.Len()
		lengths = append(lengths, n)
		st.Total += n
		if n < st.Min {
			st.Min = n
		}
		if n > st.Max {
			st.Max = n
		}
		gc += countGC(s)
	}
	if err := sc.Error(); err != nil {
		return st, err
	}
	st.Count = len(lengths)
	if st.Count == 0 {
		st.Min = 0
		return st, nil
	}
	st.Mean = float64(st.Total) / float64(st.Count)
	st.N50 = N50(lengths)
	if st.Total > 0 {
		st.GC = float64(gc) / float64(st.Total)
	}
	return st, nil
}

func countGC(s seq.Sequence) int {
	n := 0
	for i := s.Start(); i < s.End(); i++ {
		switch s.At(i).L {
		case 'g', 'c', 'G', 'C', 's', 'S':
			n++
		}
	}
	return n
}

// Region is a 0-based half-open interval on Chrom.
type Region struct {
	Chrom      string
	Start, End int
}

func (r Region) String() string {
	return r.Chrom + ":" + strconv.Itoa(r.Start+1) + "-" + strconv.Itoa(r.End)
}

// ParseRegion parses samtools-style 1-based inclusive chrom:start-end.
// Commas in the coordinates are allowed.
func ParseRegion(s string) (Region, error) {
	i := strings.LastIndexByte(s, ':')
	if i < 1 {
		return Region{}, errors.Errorf("fastx: region %q must be chrom:start-end", s)
	}
	se := strings.SplitN(strings.Replace(s[i+1:], ",", "", -1), "-", 2)
	if len(se) != 2 {
		return Region{}, errors.Errorf("fastx: region %q must be chrom:start-end", s)
	}
	start, err := strconv.Atoi(se[0])
	if err != nil {
		return Region{}, errors.Wrapf(err, "fastx: region %q", s)
	}
	end, err := strconv.Atoi(se[1])
	if err != nil {
		return Region{}, errors.Wrapf(err, "fastx: region %q", s)
	}
	if start < 1 || end < start {
		return Region{}, errors.Errorf("fastx: bad coordinates in region %q", s)
	}
	return Region{Chrom: s[:i], Start: start - 1, End: end}, nil
}

// Fetched is the sequence of a region along with its composition.
type Fetched struct {
	Region
	Seq             string
	GC, CpG, Masked float64
}

// Fetcher reads regions from an indexed fasta.
type Fetcher struct {
	fa *faidx.Faidx
}

// NewFetcher opens path, which must have a .fai index.
func NewFetcher(path string) (*Fetcher, error) {
	fa, err := faidx.New(path)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return &Fetcher{fa: fa}, nil
}

// Fetch returns the sequence and composition of r.
func (f *Fetcher) Fetch(r Region) (*Fetched, error) {
	s, err := f.fa.Get(r.Chrom, r.Start, r.End)
	if err != nil {
		return nil, errors.Wrap(err, r.String())
	}
	st, err := f.fa.Stats(r.Chrom, r.Start, r.End)
	if err != nil {
		return nil, errors.Wrap(err, r.String())
	}
	return &Fetched{Region: r, Seq: s, GC: st.GC, CpG: st.CpG, Masked: st.Masked}, nil
}

// Close releases the fasta.
func (f *Fetcher) Close() { f.fa.Close() }
