package tmm

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var (
	colA = []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100, 5, 15}
	colB = []float64{12, 18, 33, 41, 48, 65, 72, 79, 95, 104, 6, 14}
)

// colC is 2*colA with its first gene strongly up.
func colC() []float64 {
	c := make([]float64, len(colA))
	floats.ScaleTo(c, 2, colA)
	c[0] = 500
	return c
}

func TestFactorTMMIdentical(t *testing.T) {
	assert.InDelta(t, 1, FactorTMM(colA, colA, DefaultOptions()), 1e-12)
	c := make([]float64, len(colA))
	floats.ScaleTo(c, 3, colA)
	assert.InDelta(t, 1, FactorTMM(c, colA, DefaultOptions()), 1e-12)
}

func TestFactorTMMOutlier(t *testing.T) {
	// every gene but the outlier has the same log ratio, set by the library sizes.
	assert.InDelta(t, 1140.0/1620, FactorTMM(colC(), colA, DefaultOptions()), 1e-12)
}

func TestFactorTMMWeighting(t *testing.T) {
	opts := DefaultOptions()
	assert.InDelta(t, 1.0168905350807242, FactorTMM(colB, colA, opts), 1e-9)
	opts.DoWeighting = false
	assert.InDelta(t, 1.0159766507341477, FactorTMM(colB, colA, opts), 1e-9)
}

func TestFactorTMMDegenerate(t *testing.T) {
	assert.Equal(t, 1.0, FactorTMM([]float64{0, 0, 0}, []float64{1, 2, 3}, DefaultOptions()))
	assert.Equal(t, 1.0, FactorTMM([]float64{5}, []float64{3}, DefaultOptions()))
}

func TestQuantile(t *testing.T) {
	x := []float64{1, 2, 3, 4}
	assert.InDelta(t, 3.25, quantile(0.75, x), 1e-12)
	assert.Equal(t, 4.0, quantile(1, x))
	assert.Equal(t, 1.0, quantile(0, x))
	assert.Equal(t, 7.0, quantile(0.75, []float64{7}))
}

func matrix(cols ...[]float64) *mat.Dense {
	m := mat.NewDense(len(cols[0]), len(cols), nil)
	for j, c := range cols {
		m.SetCol(j, c)
	}
	return m
}

func TestNormFactors(t *testing.T) {
	f, err := NormFactors(matrix(colA, colB, colC()))
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1.1183259671485948, 1.117733170470587, 0.800006381567331}, f, 1e-9)

	prod := 1.0
	for _, v := range f {
		prod *= v
	}
	assert.InDelta(t, 1, prod, 1e-12)

	_, err = NormFactors(&mat.Dense{})
	assert.Error(t, err)
}

func TestNormCPM(t *testing.T) {
	m := matrix(colA, colB, colC())
	f, err := NormFactors(m)
	require.NoError(t, err)
	cpm, err := NormCPM(m)
	require.NoError(t, err)
	for j := range f {
		assert.InDelta(t, 1e6/f[j], floats.Sum(mat.Col(nil, j, cpm)), 1e-6)
	}

	_, err = NormCPM(matrix(colA, make([]float64, len(colA))))
	assert.Error(t, err)
}

const counts = "gene\ts1\ts2\ng1\t10\t12\ng2\t20\t18\ng3\t0\t4\n"

func TestMatrixRoundTrip(t *testing.T) {
	tab, err := ReadMatrix(strings.NewReader(counts))
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2"}, tab.Samples)
	assert.Equal(t, []string{"g1", "g2", "g3"}, tab.Genes)
	assert.Equal(t, 4.0, tab.Counts.At(2, 1))

	var buf bytes.Buffer
	require.NoError(t, WriteMatrix(&buf, tab))
	assert.Equal(t, counts, buf.String())
}

func TestReadMatrixErrors(t *testing.T) {
	for _, in := range []string{
		"",
		"gene\n",
		"gene\ts1\ts2\ng1\t1\n",
		"gene\ts1\ng1\tx\n",
		"gene\ts1\ng1\t-1\n",
	} {
		_, err := ReadMatrix(strings.NewReader(in))
		assert.Error(t, err, in)
	}
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	buf.WriteString("gene\tA\tB\tC\n")
	c := colC()
	for i := range colA {
		buf.WriteString(strings.Join([]string{"g" + string(rune('a'+i)),
			ftoa(colA[i]), ftoa(colB[i]), ftoa(c[i])}, "\t") + "\n")
	}
	in := filepath.Join(dir, "counts.tsv")
	require.NoError(t, os.WriteFile(in, buf.Bytes(), 0644))
	out := filepath.Join(dir, "cpm.tsv")
	require.NoError(t, run(cliargs{Counts: in, Output: out}))

	fh, err := os.Open(out)
	require.NoError(t, err)
	defer fh.Close()
	tab, err := ReadMatrix(fh)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, tab.Samples)
	assert.Len(t, tab.Genes, len(colA))
}

func ftoa(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
