// Package intervals reads BED regions into interval trees for overlap
// filtering and merges nearby intervals and positions.
package intervals

import (
	"bufio"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/biogo/store/interval"
	"github.com/brentp/xopen"
	"github.com/pkg/errors"
)

// Integer-specific intervals
type irange struct {
	Start, End int
	UID        uintptr
}

func (i irange) Overlap(b interval.IntRange) bool {
	// Half-open interval indexing.
	return i.End > b.Start && i.Start < b.End
}
func (i irange) ID() uintptr              { return i.UID }
func (i irange) Range() interval.IntRange { return interval.IntRange{Start: i.Start, End: i.End} }

// Trees holds one interval tree per chromosome.
type Trees map[string]*interval.IntTree

// Overlaps reports whether chrom:start-end overlaps any region. A nil Trees
// means no filter was given and everything overlaps.
func (t Trees) Overlaps(chrom string, start, end int) bool {
	if t == nil {
		return true
	}
	tree, ok := t[chrom]
	if !ok {
		return false
	}
	q := irange{Start: start, End: end, UID: uintptr(tree.Len())}

	overlaps := false
	tree.DoMatching(func(iv interval.IntInterface) bool {
		overlaps = true
		return true
	}, q)
	return overlaps
}

// Len is the total number of regions.
func (t Trees) Len() int {
	var n int
	for _, tree := range t {
		n += tree.Len()
	}
	return n
}

// ReadTree reads a (possibly gzipped) bed file. An empty path returns nil Trees.
func ReadTree(p string) (Trees, error) {
	if p == "" {
		return nil, nil
	}
	r, err := xopen.Ropen(p)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	t, err := ReadTrees(r)
	return t, errors.Wrap(err, p)
}

// ReadTrees reads bed regions from r. Header, track and comment lines are skipped.
func ReadTrees(r io.Reader) (Trees, error) {
	br := bufio.NewReader(r)
	tree := make(Trees, 10)
	k := 0
	for lineNo := 1; ; lineNo++ {
		line, err := br.ReadString('\n')
		if err != nil && err != io.EOF {
			return nil, err
		}
		if l := strings.TrimSpace(line); l != "" && !skipLine(l) {
			chrom, start, end, perr := parseBed(l)
			if perr != nil {
				return nil, errors.Wrapf(perr, "line %d", lineNo)
			}
			if _, ok := tree[chrom]; !ok {
				tree[chrom] = &interval.IntTree{}
			}
			if ierr := tree[chrom].Insert(irange{start, end, uintptr(k)}, false); ierr != nil {
				return nil, errors.Wrapf(ierr, "line %d", lineNo)
			}
			k++
		}
		if err == io.EOF {
			break
		}
	}
	return tree, nil
}

func skipLine(l string) bool {
	return l[0] == '#' || strings.HasPrefix(l, "track") || strings.HasPrefix(l, "browser")
}

func parseBed(l string) (string, int, int, error) {
	toks := strings.SplitN(l, "\t", 4)
	if len(toks) < 3 {
		return "", 0, 0, errors.Errorf("expected at least 3 fields, got %d", len(toks))
	}
	s, err := strconv.Atoi(toks[1])
	if err != nil {
		return "", 0, 0, err
	}
	e, err := strconv.Atoi(strings.TrimSpace(toks[2]))
	if err != nil {
		return "", 0, 0, err
	}
	if e < s {
		return "", 0, 0, errors.Errorf("end %d before start %d", e, s)
	}
	return toks[0], s, e, nil
}

// Block is a closed [Start, End] span.
type Block struct {
	Start, End int
}

// Merge joins blocks that overlap or are separated by at most gap. The input
// need not be sorted and is not modified.
func Merge(blocks []Block, gap int) []Block {
	if len(blocks) == 0 {
		return nil
	}
	tmp := make([]Block, len(blocks))
	copy(tmp, blocks)
	sort.Slice(tmp, func(i, j int) bool {
		return tmp[i].Start < tmp[j].Start || (tmp[i].Start == tmp[j].Start && tmp[i].End < tmp[j].End)
	})
	merged := make([]Block, 0, 4)
	last := tmp[0]
	for _, b := range tmp[1:] {
		if b.Start <= last.End+gap {
			if b.End > last.End {
				last.End = b.End
			}
			continue
		}
		merged = append(merged, last)
		last = b
	}
	return append(merged, last)
}

// Cluster groups positions into blocks where consecutive positions are at
// most gap apart.
func Cluster(positions []int, gap int) []Block {
	if len(positions) == 0 {
		return nil
	}
	x := make([]int, len(positions))
	copy(x, positions)
	sort.Ints(x)
	clustered := []Block{{x[0], x[0]}}
	for _, p := range x[1:] {
		last := &clustered[len(clustered)-1]
		if p-last.End > gap {
			clustered = append(clustered, Block{p, p})
		} else {
			last.End = p
		}
	}
	return clustered
}
