package quant

import (
	"fmt"
	"strings"

	"github.com/brentp/xopen"
	"go4.org/sort"

	"github.com/biofrost/gofrost/emabund"
)

// Row is one line of the abundance report.
type Row struct {
	Category    string
	Name        string
	Abundance   float64
	UniqueReads int
}

// Rows turns res into report rows sorted by decreasing abundance, ties by
// category. Short-circuit results are normalized so that the abundance column
// always sums to 1 before filtering.
func Rows(res *emabund.Result, name func(string) string, minAbundance float64) ([]Row, error) {
	abundance := res.Abundance
	if res.ShortCircuit {
		var err error
		if abundance, err = res.Normalized(); err != nil {
			return nil, err
		}
	}
	rows := make([]Row, 0, len(res.Categories))
	for i, c := range res.Categories {
		if abundance[i] < minAbundance || abundance[i] == 0 {
			continue
		}
		rows = append(rows, Row{Category: c, Name: name(c), Abundance: abundance[i], UniqueReads: int(res.UniqueCounts[i])})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Abundance != rows[j].Abundance {
			return rows[i].Abundance > rows[j].Abundance
		}
		return rows[i].Category < rows[j].Category
	})
	return rows, nil
}

// WriteReport writes rows to a tab-delimited (optionally gzipped) file.
func WriteReport(path string, rows []Row, samples []string, res *emabund.Result) error {
	fh, err := xopen.Wopen(path)
	if err != nil {
		return err
	}
	if len(samples) > 0 {
		fmt.Fprintf(fh, "#samples=%s\n", strings.Join(samples, ","))
	}
	fmt.Fprintf(fh, "#reads=%d unique=%d ambiguous=%d\n", res.Unique+res.Ambiguous, res.Unique, res.Ambiguous)
	fmt.Fprintf(fh, "#iterations=%d converged=%v\n", res.Iterations, res.Converged)
	fmt.Fprintln(fh, "#category\tname\tabundance\tunique_reads")
	for _, r := range rows {
		fmt.Fprintf(fh, "%s\t%s\t%.6g\t%d\n", r.Category, r.Name, r.Abundance, r.UniqueReads)
	}
	return fh.Close()
}
