package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/biofrost/gofrost"
	"github.com/biofrost/gofrost/fastx"
	"github.com/biofrost/gofrost/quant"
	"github.com/biofrost/gofrost/samplename"
	"github.com/biofrost/gofrost/server"
	"github.com/biofrost/gofrost/tmm"
)

type progPair struct {
	help string
	main func()
}

var progs = map[string]progPair{
	"abundance":  {"estimate category abundance from multi-mapped reads with EM", quant.Main},
	"tmm":        {"TMM-normalized counts per million for a gene by sample matrix", tmm.Main},
	"serve":      {"serve abundance, tmm and seqstats over HTTP", server.Main},
	"seqstats":   {"count, length, N50 and GC of fasta/fastq files", fastx.StatsMain},
	"fetch":      {"extract regions from an indexed fasta", fastx.FetchMain},
	"samplename": {"report samplename(s) from a bam's SM tag", samplename.Main},
}

func printProgs(wtr io.Writer) {
	fmt.Fprintf(wtr, "gofrost Version: %s\n\n", gofrost.Version)
	var keys []string
	l := 5
	for k := range progs {
		keys = append(keys, k)
		if len(k) > l {
			l = len(k)
		}
	}
	fmtr := "%-" + strconv.Itoa(l) + "s : %s\n"
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(wtr, fmtr, k, progs[k].help)
	}
}

func main() {
	if len(os.Args) < 2 {
		printProgs(os.Stdout)
		os.Exit(1)
	}
	p, ok := progs[os.Args[1]]
	if !ok {
		printProgs(os.Stdout)
		os.Exit(1)
	}
	// remove the prog name from the call
	os.Args = append(os.Args[:1], os.Args[2:]...)
	p.main()
}
