// Package assign builds read-to-category assignments for emabund from the
// output of aligners and taxonomic classifiers.
//
// Every reader returns the raw (read, category) pairs as they appear in the
// file. De-duplication and the split into unique and ambiguous reads happen in
// emabund.Estimate.
package assign

import (
	"bufio"
	"io"
	"path/filepath"
	"strings"

	"github.com/biogo/hts/sam"
	"github.com/brentp/smoove/shared"
	"github.com/brentp/xopen"
	"github.com/pkg/errors"

	"github.com/biofrost/gofrost/emabund"
	"github.com/biofrost/gofrost/intervals"
)

// Format names an input file format.
type Format string

const (
	// TSV is two columns: read and category.
	TSV Format = "tsv"
	// PAF is minimap2's pairwise alignment format; the category is the target.
	PAF Format = "paf"
	// Blast6 is BLAST/DIAMOND tabular output (-outfmt 6); the category is the subject.
	Blast6 Format = "blast6"
	// Kraken2 is the per-read output of kraken2; the category is the taxid.
	Kraken2 Format = "kraken2"
	// Centrifuge is the per-read output of centrifuge; the category is the taxid.
	Centrifuge Format = "centrifuge"
	// BAM is a BAM or CRAM file; the category is the reference name.
	BAM Format = "bam"
)

// Formats lists the supported formats.
var Formats = []Format{TSV, PAF, Blast6, Kraken2, Centrifuge, BAM}

// ParseFormat checks that s names a supported format.
func ParseFormat(s string) (Format, error) {
	for _, f := range Formats {
		if string(f) == strings.ToLower(s) {
			return f, nil
		}
	}
	return "", errors.Errorf("assign: unknown format %q", s)
}

// Guess returns the format implied by the file extension.
func Guess(path string) (Format, error) {
	p := strings.TrimSuffix(strings.ToLower(path), ".gz")
	switch filepath.Ext(p) {
	case ".paf":
		return PAF, nil
	case ".bam", ".cram":
		return BAM, nil
	case ".m8", ".blast6":
		return Blast6, nil
	case ".kraken", ".kraken2":
		return Kraken2, nil
	case ".tsv":
		return TSV, nil
	}
	return "", errors.Errorf("assign: can't guess format of %s", path)
}

// Options filter alignments. The zero value keeps everything.
type Options struct {
	// MinMapQ drops PAF alignments and primary BAM alignments with a lower
	// mapping quality.
	MinMapQ int
	// MinIdentity drops BLAST hits with a lower percent identity.
	MinIdentity float64
	// Regions keeps only PAF and BAM alignments overlapping a region.
	Regions intervals.Trees
	// Fasta is the reference used to decode CRAM.
	Fasta string
}

// Input is what Open read.
type Input struct {
	Assignments []emabund.Assignment
	// Header is set for BAM and CRAM input.
	Header *sam.Header
}

// Open reads the assignments from path. "-" reads text formats from stdin.
func Open(path string, format Format, opts Options) (*Input, error) {
	if format == BAM {
		br, err := shared.NewReader(path, 2, opts.Fasta)
		if err != nil {
			return nil, errors.Wrap(err, path)
		}
		defer br.Close()
		as, err := ReadBAM(br, opts)
		if err != nil {
			return nil, errors.Wrap(err, path)
		}
		return &Input{Assignments: as, Header: br.Header()}, nil
	}

	fh, err := xopen.Ropen(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	var as []emabund.Assignment
	switch format {
	case TSV:
		as, err = ReadTSV(fh)
	case PAF:
		as, err = ReadPAF(fh, opts)
	case Blast6:
		as, err = ReadBlast6(fh, opts)
	case Kraken2:
		as, err = ReadKraken2(fh)
	case Centrifuge:
		as, err = ReadCentrifuge(fh)
	default:
		err = errors.Errorf("assign: unknown format %q", format)
	}
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return &Input{Assignments: as}, nil
}

// Relabel maps every category through fn, dropping assignments fn rejects.
// It returns the new assignments and the number dropped.
func Relabel(as []emabund.Assignment, fn func(string) (string, bool)) ([]emabund.Assignment, int) {
	out := make([]emabund.Assignment, 0, len(as))
	cache := make(map[string]string)
	missing := make(map[string]bool)
	dropped := 0
	for _, a := range as {
		c, ok := cache[a.Category]
		if !ok && !missing[a.Category] {
			if c, ok = fn(a.Category); ok {
				cache[a.Category] = c
			} else {
				missing[a.Category] = true
			}
		}
		if !ok {
			dropped++
			continue
		}
		out = append(out, emabund.Assignment{Read: a.Read, Category: c})
	}
	return out, dropped
}

// ReadKV reads a two-column mapping such as a seqid2taxid or SILVA acc_taxid
// file. Later keys replace earlier ones.
func ReadKV(r io.Reader) (map[string]string, error) {
	m := make(map[string]string, 1024)
	err := eachLine(r, func(toks []string) error {
		if len(toks) < 2 {
			return errors.Errorf("expected 2 fields, got %d", len(toks))
		}
		m[toks[0]] = toks[1]
		return nil
	})
	return m, err
}

// OpenKV is ReadKV on a (possibly gzipped) file.
func OpenKV(path string) (map[string]string, error) {
	fh, err := xopen.Ropen(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	m, err := ReadKV(fh)
	return m, errors.Wrap(err, path)
}

// eachLine calls fn with the tab-separated fields of each non-empty,
// non-comment line, adding the line number to any error.
func eachLine(r io.Reader, fn func(toks []string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 16384), 1<<24)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" || line[0] == '#' {
			continue
		}
		if err := fn(strings.Split(line, "\t")); err != nil {
			return errors.Wrapf(err, "line %d", lineNo)
		}
	}
	return scanner.Err()
}
