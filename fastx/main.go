package fastx

import (
	"bufio"
	"fmt"
	"io"
	"os"

	arg "github.com/alexflint/go-arg"
	"github.com/brentp/xopen"
	"github.com/fatih/color"
	"github.com/pkg/errors"

	"github.com/biofrost/gofrost"
)

func pcheck(e error) {
	if e != nil {
		c := color.New(color.BgRed).Add(color.Bold)
		fmt.Fprintf(os.Stderr, "%s\n", c.SprintFunc()(fmt.Sprintf("ERROR: %s", e)))
		os.Exit(1)
	}
}

type statsargs struct {
	Files []string `arg:"positional,required,help:fasta or fastq files, optionally gzipped. use - for stdin"`
}

func (statsargs) Version() string {
	return fmt.Sprintf("seqstats %s", gofrost.Version)
}

// StatsMain is run from the dispatcher as seqstats.
func StatsMain() {
	cli := statsargs{}
	arg.MustParse(&cli)
	pcheck(writeStats(os.Stdout, cli.Files))
}

func writeStats(w io.Writer, files []string) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "#file\tcount\ttotal\tmin\tmax\tmean\tn50\tgc")
	for _, f := range files {
		fh, err := xopen.Ropen(f)
		if err != nil {
			return err
		}
		st, err := Stats(fh)
		fh.Close()
		if err != nil {
			return errors.Wrap(err, f)
		}
		fmt.Fprintf(bw, "%s\t%d\t%d\t%d\t%d\t%.2f\t%d\t%.4f\n", f, st.Count, st.Total, st.Min, st.Max, st.Mean, st.N50, st.GC)
	}
	return bw.Flush()
}

type fetchargs struct {
	Stats   bool     `arg:"-s,help:report GC, CpG and masked fraction instead of the sequence"`
	Fasta   string   `arg:"positional,required,help:indexed fasta"`
	Regions []string `arg:"positional,required,help:regions as chrom:start-end (1-based, inclusive)"`
}

func (fetchargs) Version() string {
	return fmt.Sprintf("fetch %s", gofrost.Version)
}

// FetchMain is run from the dispatcher as fetch.
func FetchMain() {
	cli := fetchargs{}
	arg.MustParse(&cli)
	pcheck(fetch(os.Stdout, cli))
}

func fetch(w io.Writer, cli fetchargs) error {
	f, err := NewFetcher(cli.Fasta)
	if err != nil {
		return err
	}
	defer f.Close()
	bw := bufio.NewWriter(w)
	for _, s := range cli.Regions {
		r, err := ParseRegion(s)
		if err != nil {
			return err
		}
		got, err := f.Fetch(r)
		if err != nil {
			return err
		}
		if cli.Stats {
			fmt.Fprintf(bw, "%s\t%d\t%d\t%.3g\t%.3g\t%.3g\n", r.Chrom, r.Start, r.End, got.GC, got.CpG, got.Masked)
			continue
		}
		fmt.Fprintf(bw, ">%s\n%s\n", r, got.Seq)
	}
	return bw.Flush()
}
