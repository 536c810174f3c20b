package assign

import (
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/biofrost/gofrost/emabund"
)

// ReadTSV reads "read<TAB>category" lines. Extra columns are ignored.
func ReadTSV(r io.Reader) ([]emabund.Assignment, error) {
	var as []emabund.Assignment
	err := eachLine(r, func(toks []string) error {
		if len(toks) < 2 {
			return errors.Errorf("expected 2 fields, got %d", len(toks))
		}
		as = append(as, emabund.Assignment{Read: toks[0], Category: toks[1]})
		return nil
	})
	return as, err
}

// ReadPAF reads minimap2 PAF. Each alignment assigns the query to the target.
func ReadPAF(r io.Reader, opts Options) ([]emabund.Assignment, error) {
	var as []emabund.Assignment
	err := eachLine(r, func(toks []string) error {
		if len(toks) < 12 {
			return errors.Errorf("expected at least 12 PAF fields, got %d", len(toks))
		}
		mapq, err := strconv.Atoi(toks[11])
		if err != nil {
			return err
		}
		if mapq < opts.MinMapQ {
			return nil
		}
		if opts.Regions != nil {
			s, err := strconv.Atoi(toks[7])
			if err != nil {
				return err
			}
			e, err := strconv.Atoi(toks[8])
			if err != nil {
				return err
			}
			if !opts.Regions.Overlaps(toks[5], s, e) {
				return nil
			}
		}
		as = append(as, emabund.Assignment{Read: toks[0], Category: toks[5]})
		return nil
	})
	return as, err
}

// ReadBlast6 reads BLAST or DIAMOND tabular output (outfmt 6).
func ReadBlast6(r io.Reader, opts Options) ([]emabund.Assignment, error) {
	var as []emabund.Assignment
	err := eachLine(r, func(toks []string) error {
		if len(toks) < 2 {
			return errors.Errorf("expected at least 2 fields, got %d", len(toks))
		}
		if opts.MinIdentity > 0 {
			if len(toks) < 3 {
				return errors.New("percent identity column missing")
			}
			pident, err := strconv.ParseFloat(toks[2], 64)
			if err != nil {
				return err
			}
			if pident < opts.MinIdentity {
				return nil
			}
		}
		as = append(as, emabund.Assignment{Read: toks[0], Category: toks[1]})
		return nil
	})
	return as, err
}

// ReadKraken2 reads kraken2 per-read output. Unclassified reads are skipped.
// Both plain taxids and the "Name (taxid N)" form of --use-names are accepted.
func ReadKraken2(r io.Reader) ([]emabund.Assignment, error) {
	var as []emabund.Assignment
	err := eachLine(r, func(toks []string) error {
		if len(toks) < 3 {
			return errors.Errorf("expected at least 3 kraken2 fields, got %d", len(toks))
		}
		if toks[0] != "C" {
			return nil
		}
		taxid, err := krakenTaxid(toks[2])
		if err != nil {
			return err
		}
		if taxid == "0" {
			return nil
		}
		as = append(as, emabund.Assignment{Read: toks[1], Category: taxid})
		return nil
	})
	return as, err
}

func krakenTaxid(s string) (string, error) {
	if i := strings.LastIndex(s, "(taxid "); i >= 0 && strings.HasSuffix(s, ")") {
		s = s[i+len("(taxid ") : len(s)-1]
	}
	s = strings.TrimSpace(s)
	if _, err := strconv.Atoi(s); err != nil {
		return "", errors.Errorf("bad taxid %q", s)
	}
	return s, nil
}

// ReadCentrifuge reads centrifuge per-read classifications. A read can be
// reported against several taxa. Unclassified reads are skipped.
func ReadCentrifuge(r io.Reader) ([]emabund.Assignment, error) {
	var as []emabund.Assignment
	err := eachLine(r, func(toks []string) error {
		if toks[0] == "readID" {
			return nil
		}
		if len(toks) < 3 {
			return errors.Errorf("expected at least 3 centrifuge fields, got %d", len(toks))
		}
		if toks[1] == "unclassified" || toks[2] == "0" {
			return nil
		}
		as = append(as, emabund.Assignment{Read: toks[0], Category: toks[2]})
		return nil
	})
	return as, err
}
