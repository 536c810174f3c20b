package quant

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biofrost/gofrost/emabund"
)

func identity(s string) string { return s }

func TestRowsSorted(t *testing.T) {
	res := &emabund.Result{
		Categories:   []string{"a", "b", "c", "d"},
		Abundance:    []float64{0.1, 0.6, 0.3, 0},
		UniqueCounts: []float64{1, 5, 2, 0},
	}
	rows, err := Rows(res, strings.ToUpper, 0)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "b", rows[0].Category)
	assert.Equal(t, "B", rows[0].Name)
	assert.Equal(t, 5, rows[0].UniqueReads)
	assert.Equal(t, "c", rows[1].Category)
	assert.Equal(t, "a", rows[2].Category)

	rows, err = Rows(res, identity, 0.2)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestRowsShortCircuit(t *testing.T) {
	res := &emabund.Result{
		Categories:   []string{"A", "B"},
		Abundance:    []float64{2, 1},
		UniqueCounts: []float64{2, 1},
		ShortCircuit: true,
	}
	rows, err := Rows(res, identity, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.InDelta(t, 2.0/3, rows[0].Abundance, 1e-12)
	assert.InDelta(t, 1.0/3, rows[1].Abundance, 1e-12)
	assert.Equal(t, 2, rows[0].UniqueReads)
	assert.Equal(t, []float64{2, 1}, res.Abundance)
}

func TestWriteReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.abundance.tsv")
	res := &emabund.Result{Unique: 3, Ambiguous: 1, Iterations: 12, Converged: true}
	rows := []Row{{Category: "562", Name: "Escherichia coli", Abundance: 0.75, UniqueReads: 3},
		{Category: "561", Name: "Escherichia", Abundance: 0.25}}
	require.NoError(t, WriteReport(path, rows, []string{"s1"}, res))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	assert.Equal(t, []string{
		"#samples=s1",
		"#reads=4 unique=3 ambiguous=1",
		"#iterations=12 converged=true",
		"#category\tname\tabundance\tunique_reads",
		"562\tEscherichia coli\t0.75\t3",
		"561\tEscherichia\t0.25\t0",
	}, lines)
}

func TestLogReporter(t *testing.T) {
	l := NewLogReporter(1000)
	var got []int
	l.log = func(format string, args ...interface{}) { got = append(got, args[0].(int)) }

	l.Report(1, 0.5)   // first magnitude
	l.Report(2, 0.4)   // same magnitude
	l.Report(3, 0.05)  // smaller
	l.Report(4, 0.04)  // same
	l.Report(10, 0.03) // every 10
	l.Report(11, 0.002)
	assert.Equal(t, []int{1, 3, 10, 11}, got)

	l = NewLogReporter(5)
	got = nil
	l.log = func(format string, args ...interface{}) { got = append(got, args[0].(int)) }
	for i := 1; i <= 3; i++ {
		l.Report(i, 0.5)
	}
	assert.Equal(t, []int{1, 2, 3}, got)
}

func TestAsTrace(t *testing.T) {
	tr := asTrace([]float64{1, 0.1, 0, 0.001})
	assert.Equal(t, []float64{1, 2, 4}, tr.Xs())
	assert.InDeltaSlice(t, []float64{0, -1, -3}, tr.Ys(), 1e-12)
	assert.Nil(t, tr.Rs())

	_, err := traceChart([]float64{0.5, 0.1})
	assert.NoError(t, err)
}

func writeFile(t *testing.T, dir, name, content string) string {
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	var sb strings.Builder
	for i := 0; i < 30; i++ {
		fmt.Fprintf(&sb, "u%d\tseqA\n", i)
	}
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&sb, "v%d\tseqB\n", i)
	}
	for i := 0; i < 20; i++ {
		fmt.Fprintf(&sb, "m%d\tseqA\nm%d\tseqB\n", i, i)
	}
	sb.WriteString("x1\tseqZ\n")
	input := writeFile(t, dir, "reads.tsv", sb.String())
	seqmap := writeFile(t, dir, "seqmap.tsv", "seqA\t562\nseqB\t561\n")
	names := writeFile(t, dir, "names.dmp", "562\t|\tEscherichia coli\t|\t\t|\tscientific name\t|\n")
	nodes := writeFile(t, dir, "nodes.dmp", "1\t|\t1\t|\tno rank\t|\n561\t|\t1\t|\tgenus\t|\n562\t|\t561\t|\tspecies\t|\n")

	cli := cliargs{Input: input, SeqMap: seqmap, Nodes: nodes, Names: names, MaxIter: 1000, MaxDelta: 1e-10,
		Prefix: filepath.Join(dir, "out"), Plot: true}
	require.NoError(t, run(context.Background(), cli))

	b, err := os.ReadFile(cli.Prefix + ".abundance.tsv")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "#reads=60 unique=40 ambiguous=20", lines[0])
	assert.True(t, strings.HasPrefix(lines[3], "562\tEscherichia coli\t"), lines[3])
	assert.True(t, strings.HasPrefix(lines[4], "561\t561\t"), lines[4])
	assert.FileExists(t, cli.Prefix+".abundance.png")
	assert.FileExists(t, cli.Prefix+".trace.html")

	cli.Rank = "genus"
	cli.Plot = false
	require.NoError(t, run(context.Background(), cli))
	b, err = os.ReadFile(cli.Prefix + ".abundance.tsv")
	require.NoError(t, err)
	assert.Contains(t, string(b), "561\t561\t1\t60\n")
	assert.Contains(t, string(b), "#iterations=1 converged=true")
}

func TestRunSilva(t *testing.T) {
	dir := t.TempDir()
	var sb strings.Builder
	for i := 0; i < 30; i++ {
		fmt.Fprintf(&sb, "u%d\tAB001.1.1500\n", i)
	}
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&sb, "v%d\tCD002.7.1490\n", i)
	}
	for i := 0; i < 20; i++ {
		fmt.Fprintf(&sb, "m%d\tAB001.1.1500\nm%d\tCD002.7.1490\n", i, i)
	}
	fam := "Bacteria;Proteobacteria;Gammaproteobacteria;Enterobacterales;Enterobacteriaceae;"
	txt := writeFile(t, dir, "tax_slv_ssu.txt", "Bacteria;\t3\tdomain\t\t138\n"+
		fam+"\t2562\tfamily\t\t138\n"+
		fam+"Escherichia-Shigella;\t2583\tgenus\t\t138\n"+
		fam+"Salmonella;\t2590\tgenus\t\t138\n")
	smap := writeFile(t, dir, "tax_slv_ssu.map", "2583\tEscherichia-Shigella\t0\t2562\n")
	acc := writeFile(t, dir, "tax_slv_ssu.acc_taxid", "AB001.1.1500\t2583\nCD002.7.1490\t2590\n")

	cli := cliargs{Input: writeFile(t, dir, "reads.tsv", sb.String()), SeqMap: acc, SilvaTxt: txt, SilvaMap: smap,
		MaxIter: 1000, MaxDelta: 1e-10, Prefix: filepath.Join(dir, "out")}
	require.NoError(t, run(context.Background(), cli))
	b, err := os.ReadFile(cli.Prefix + ".abundance.tsv")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	require.Len(t, lines, 5)
	assert.True(t, strings.HasPrefix(lines[3], "2583\tEscherichia-Shigella\t"), lines[3])
	assert.True(t, strings.HasPrefix(lines[4], "2590\tSalmonella\t"), lines[4])

	cli.Rank = "family"
	require.NoError(t, run(context.Background(), cli))
	b, err = os.ReadFile(cli.Prefix + ".abundance.tsv")
	require.NoError(t, err)
	assert.Contains(t, string(b), "2562\tEnterobacteriaceae\t1\t60\n")
}

func TestRunErrors(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "reads.tsv", "r1\tA\n")
	cli := cliargs{Input: input, SeqMap: writeFile(t, dir, "empty.tsv", "B\tC\n"), MaxIter: 10, MaxDelta: 1e-10,
		Prefix: filepath.Join(dir, "out")}
	assert.Error(t, run(context.Background(), cli))

	cli = cliargs{Input: filepath.Join(dir, "reads.unknown"), MaxIter: 10, MaxDelta: 1e-10}
	assert.Error(t, run(context.Background(), cli))

	cli = cliargs{Input: input, Format: "nope", MaxIter: 10, MaxDelta: 1e-10}
	assert.Error(t, run(context.Background(), cli))

	cli = cliargs{Input: input, Rank: "genus", MaxIter: 10, MaxDelta: 1e-10, Prefix: filepath.Join(dir, "out")}
	assert.Error(t, run(context.Background(), cli))

	cli = cliargs{Input: input, SilvaTxt: filepath.Join(dir, "missing.txt"), MaxIter: 10, MaxDelta: 1e-10}
	assert.Error(t, run(context.Background(), cli))
}
