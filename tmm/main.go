package tmm

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	arg "github.com/alexflint/go-arg"
	"github.com/brentp/xopen"
	"github.com/fatih/color"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/biofrost/gofrost"
)

// Table is a gene by sample matrix with its labels.
type Table struct {
	Genes   []string
	Samples []string
	Counts  *mat.Dense
}

// ReadMatrix reads a tab-delimited matrix whose first line holds the sample
// names (after a label for the gene column) and whose first column holds the
// gene names.
func ReadMatrix(r io.Reader) (*Table, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 16384), 1<<24)
	t := &Table{}
	var data []float64
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		toks := strings.Split(line, "\t")
		if t.Samples == nil {
			if len(toks) < 2 {
				return nil, errors.New("tmm: header must name at least one sample")
			}
			t.Samples = toks[1:]
			continue
		}
		if len(toks) != len(t.Samples)+1 {
			return nil, errors.Errorf("tmm: line %d: expected %d fields, got %d", lineNo, len(t.Samples)+1, len(toks))
		}
		t.Genes = append(t.Genes, toks[0])
		for _, tok := range toks[1:] {
			v, err := strconv.ParseFloat(tok, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "tmm: line %d", lineNo)
			}
			if v < 0 {
				return nil, errors.Errorf("tmm: line %d: negative count %v", lineNo, v)
			}
			data = append(data, v)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(t.Genes) == 0 {
		return nil, errors.New("tmm: no genes")
	}
	t.Counts = mat.NewDense(len(t.Genes), len(t.Samples), data)
	return t, nil
}

// WriteMatrix writes t in the format read by ReadMatrix.
func WriteMatrix(w io.Writer, t *Table) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "gene\t%s\n", strings.Join(t.Samples, "\t"))
	for i, g := range t.Genes {
		bw.WriteString(g)
		for j := range t.Samples {
			bw.WriteByte('\t')
			bw.WriteString(strconv.FormatFloat(t.Counts.At(i, j), 'g', 6, 64))
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

type cliargs struct {
	Output string `arg:"-o,help:path for the normalized matrix. default is stdout"`
	Counts string `arg:"positional,required,help:tab-delimited gene by sample count matrix. use - for stdin"`
}

func (c cliargs) Version() string {
	return fmt.Sprintf("tmm %s", gofrost.Version)
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
	cli := cliargs{Output: "-"}
	arg.MustParse(&cli)
	pcheck(run(cli))
}

func run(cli cliargs) error {
	fh, err := xopen.Ropen(cli.Counts)
	if err != nil {
		return err
	}
	t, err := ReadMatrix(fh)
	fh.Close()
	if err != nil {
		return errors.Wrap(err, cli.Counts)
	}
	f, err := NormFactors(t.Counts)
	if err != nil {
		return err
	}
	for j, s := range t.Samples {
		log.WithField("sample", s).Infof("TMM factor %.4f", f[j])
	}
	cpm, err := NormCPM(t.Counts)
	if err != nil {
		return err
	}
	out, err := xopen.Wopen(cli.Output)
	if err != nil {
		return err
	}
	if err := WriteMatrix(out, &Table{Genes: t.Genes, Samples: t.Samples, Counts: cpm}); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
