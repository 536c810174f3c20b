// Package quant estimates category abundance from aligner or classifier
// output. It is run as `gofrost abundance`.
package quant

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	arg "github.com/alexflint/go-arg"
	"github.com/fatih/color"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/biofrost/gofrost"
	"github.com/biofrost/gofrost/assign"
	"github.com/biofrost/gofrost/emabund"
	"github.com/biofrost/gofrost/intervals"
	"github.com/biofrost/gofrost/samplename"
	"github.com/biofrost/gofrost/taxonomy"
)

type cliargs struct {
	Format       string  `arg:"-f,help:input format (tsv paf blast6 kraken2 centrifuge bam). guessed from the extension by default"`
	SeqMap       string  `arg:"-s,help:optional two-column file mapping each category (e.g. a reference sequence) to a new one (e.g. a taxid)"`
	Nodes        string  `arg:"help:NCBI nodes.dmp used with --rank"`
	Names        string  `arg:"help:NCBI names.dmp used to name taxids in the report"`
	SilvaTxt     string  `arg:"--silva-txt,help:SILVA tax_slv_[ls]su_VERSION.txt. use with --seqmap pointing at the matching acc_taxid file"`
	SilvaMap     string  `arg:"--silva-map,help:SILVA tax_slv_[ls]su_VERSION.map used to name taxids in the report"`
	Rank         string  `arg:"-r,help:collapse taxids to this rank. requires --nodes or --silva-txt"`
	MapQ         int     `arg:"-Q,help:mapping quality cutoff for PAF and primary BAM alignments"`
	MinIdentity  float64 `arg:"help:percent identity cutoff for blast6 hits"`
	Regions      string  `arg:"-b,help:optional bed file; only PAF and BAM alignments overlapping these regions are used"`
	Fasta        string  `arg:"help:reference fasta. required for cram"`
	Noise        float64 `arg:"-n,help:abundances below this are set to 0 after each iteration"`
	MaxIter      int     `arg:"-m,help:maximum number of EM iterations"`
	MaxDelta     float64 `arg:"-d,help:stop when the L1 change between iterations is at most this"`
	MinAbundance float64 `arg:"help:only report categories with at least this abundance"`
	Plot         bool    `arg:"help:write a bar chart of the top categories and an html convergence trace"`
	Verbose      bool    `arg:"-v,help:log EM progress"`
	Prefix       string  `arg:"-p,help:prefix for output files"`
	Input        string  `arg:"positional,required,help:assignments, alignments or classifications. use - for stdin"`
}

func (c cliargs) Version() string {
	return fmt.Sprintf("abundance %s", gofrost.Version)
}

func pcheck(e error) {
	if e != nil {
		c := color.New(color.BgRed).Add(color.Bold)
		fmt.Fprintf(os.Stderr, "%s\n", c.SprintFunc()(fmt.Sprintf("ERROR: %s", e)))
		os.Exit(1)
	}
}

// Main is run from the dispatcher
func Main() {
	defaults := emabund.DefaultOptions()
	cli := cliargs{MaxIter: defaults.MaxIterations, MaxDelta: defaults.MaxDelta, Prefix: "gofrost"}
	p := arg.MustParse(&cli)
	if cli.Noise < 0 || cli.Noise >= 1 {
		p.Fail("--noise must be in [0, 1)")
	}
	if cli.MaxIter < 1 {
		p.Fail("--maxiter must be at least 1")
	}
	if cli.MaxDelta <= 0 {
		p.Fail("--maxdelta must be positive")
	}
	if cli.Nodes != "" && cli.SilvaTxt != "" {
		p.Fail("use only one of --nodes and --silva-txt")
	}
	if cli.SilvaMap != "" && cli.SilvaTxt == "" {
		p.Fail("--silva-map requires --silva-txt")
	}
	if cli.Rank != "" {
		if cli.Nodes == "" && cli.SilvaTxt == "" {
			p.Fail("--rank requires --nodes or --silva-txt")
		}
		if !taxonomy.IsValidRank(cli.Rank) {
			p.Fail(fmt.Sprintf("--rank must be one of %s", strings.Join(taxonomy.ValidRanks, ", ")))
		}
	}
	if cli.Verbose {
		log.SetLevel(log.DebugLevel)
	}
	pcheck(run(context.Background(), cli))
}

// sample is what was read from the input, after relabelling.
type sample struct {
	names       []string
	assignments []emabund.Assignment
	db          taxonomy.Ranker
}

func load(cli cliargs) (*sample, error) {
	format, err := inputFormat(cli)
	if err != nil {
		return nil, err
	}
	regions, err := intervals.ReadTree(cli.Regions)
	if err != nil {
		return nil, err
	}
	in, err := assign.Open(cli.Input, format, assign.Options{MinMapQ: cli.MapQ,
		MinIdentity: cli.MinIdentity, Regions: regions, Fasta: cli.Fasta})
	if err != nil {
		return nil, err
	}
	s := &sample{assignments: in.Assignments}
	if in.Header != nil {
		s.names = []string{samplename.Label(in.Header, cli.Input)}
	}
	log.Printf("read %d assignments from %s", len(s.assignments), cli.Input)

	if cli.SeqMap != "" {
		m, err := assign.OpenKV(cli.SeqMap)
		if err != nil {
			return nil, err
		}
		var dropped int
		s.assignments, dropped = assign.Relabel(s.assignments, func(c string) (string, bool) {
			v, ok := m[c]
			return v, ok
		})
		if dropped > 0 {
			log.Warnf("%d assignments had no entry in %s", dropped, cli.SeqMap)
		}
	}

	switch {
	case cli.Nodes != "":
		db, err := taxonomy.Open(cli.Nodes, cli.Names)
		if err != nil {
			return nil, err
		}
		s.db = db
		log.Printf("read %d taxonomy nodes", s.db.Len())
	case cli.SilvaTxt != "":
		db, err := taxonomy.OpenSilva(cli.SilvaTxt, cli.SilvaMap)
		if err != nil {
			return nil, err
		}
		s.db = db
		log.Printf("read %d SILVA taxa", s.db.Len())
	}
	if cli.Rank != "" {
		if s.db == nil {
			return nil, errors.New("--rank requires --nodes or --silva-txt")
		}
		var dropped int
		s.assignments, dropped = assign.Relabel(s.assignments, atRank(s.db, cli.Rank))
		if dropped > 0 {
			log.Warnf("%d assignments could not be placed at rank %s", dropped, cli.Rank)
		}
	}
	return s, nil
}

func inputFormat(cli cliargs) (assign.Format, error) {
	if cli.Format != "" {
		return assign.ParseFormat(cli.Format)
	}
	if cli.Input == "-" {
		return assign.TSV, nil
	}
	return assign.Guess(cli.Input)
}

func atRank(db taxonomy.Ranker, rank string) func(string) (string, bool) {
	return func(c string) (string, bool) {
		id, err := strconv.Atoi(c)
		if err != nil {
			return "", false
		}
		if id, ok := db.AtRank(id, rank); ok {
			return strconv.Itoa(id), true
		}
		return "", false
	}
}

func run(ctx context.Context, cli cliargs) error {
	s, err := load(cli)
	if err != nil {
		return err
	}
	if len(s.assignments) == 0 {
		return errors.Errorf("no usable assignments in %s", cli.Input)
	}

	opts := emabund.Options{NoiseThreshold: cli.Noise, MaxIterations: cli.MaxIter, MaxDelta: cli.MaxDelta}
	if cli.Verbose {
		opts.Progress = NewLogReporter(cli.MaxIter)
	}
	res, err := emabund.Estimate(ctx, s.assignments, opts)
	if err != nil {
		return err
	}
	switch {
	case res.ShortCircuit:
		log.Printf("all %d reads were unique; skipped EM", res.Unique)
	case !res.Converged:
		log.Warnf("EM did not converge within %d iterations (last delta %.3g)", res.Iterations, res.Trace[len(res.Trace)-1])
	default:
		log.Printf("EM converged after %d iterations (%d unique, %d ambiguous reads)", res.Iterations, res.Unique, res.Ambiguous)
	}

	rows, err := Rows(res, namer(s.db), cli.MinAbundance)
	if err != nil {
		return err
	}
	path := cli.Prefix + ".abundance.tsv"
	if err := WriteReport(path, rows, s.names, res); err != nil {
		return err
	}
	log.Printf("wrote %d categories to %s", len(rows), path)

	if cli.Plot {
		if err := PlotBars(cli.Prefix+".abundance.png", rows, 30); err != nil {
			return err
		}
		if err := PlotTrace(cli.Prefix+".trace.html", res.Trace); err != nil {
			return err
		}
	}
	return nil
}

// namer names numeric categories from the taxonomy, if one was loaded.
func namer(db taxonomy.Ranker) func(string) string {
	return func(c string) string {
		if db == nil {
			return c
		}
		id, err := strconv.Atoi(c)
		if err != nil {
			return c
		}
		return db.Name(id)
	}
}
