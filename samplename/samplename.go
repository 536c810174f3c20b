// Package samplename reports the sample names in the read groups of a bam or
// cram header.
package samplename

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	arg "github.com/alexflint/go-arg"
	"github.com/biogo/hts/sam"
	"github.com/brentp/smoove/shared"
	"github.com/fatih/color"

	"github.com/biofrost/gofrost"
)

var smTag = sam.NewTag("SM")

// Names returns the distinct, sorted SM tags of the read groups in h.
func Names(h *sam.Header) []string {
	m := make(map[string]bool)
	for _, rg := range h.RGs() {
		if v := rg.Get(smTag); v != "" {
			m[v] = true
		}
	}
	names := make([]string, 0, len(m))
	for sm := range m {
		names = append(names, sm)
	}
	sort.Strings(names)
	return names
}

// Label names the sample in h, joining multiple names with ",". Without any
// SM tag the file name of path, minus its extension, is used.
func Label(h *sam.Header, path string) string {
	if names := Names(h); len(names) > 0 {
		return strings.Join(names, ",")
	}
	b := filepath.Base(path)
	return strings.TrimSuffix(b, filepath.Ext(b))
}

type cliargs struct {
	Fasta      string `arg:"-f,help:fasta file. required for cram format"`
	ErrorMulti bool   `arg:"-e,help:return an error if there is not exactly 1 sample in the bam."`
	Bam        string `arg:"positional,required,help:bam or cram for which to get sample name(s)"`
}

func (c cliargs) Version() string {
	return fmt.Sprintf("samplename %s", gofrost.Version)
}

func fail(msg string) {
	c := color.New(color.BgRed).Add(color.Bold)
	fmt.Fprintf(os.Stderr, "%s\n", c.SprintFunc()(msg))
	os.Exit(1)
}

// Main is run from the dispatcher
func Main() {
	cli := &cliargs{}
	arg.MustParse(cli)

	b, err := shared.NewReader(cli.Bam, 1, cli.Fasta)
	if err != nil {
		fail(fmt.Sprintf("ERROR: %s", err))
	}
	defer b.Close()

	names := Names(b.Header())
	if cli.ErrorMulti && len(names) != 1 {
		fail(fmt.Sprintf("gofrost/samplename: found %d samples in %s", len(names), cli.Bam))
	}
	fmt.Println(strings.Join(names, "\n"))
}
