package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/biofrost/gofrost/emabund"
	"github.com/biofrost/gofrost/fastx"
	"github.com/biofrost/gofrost/tmm"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, errors.Wrap(err, "invalid request body"))
		return false
	}
	return true
}

// AssignmentJSON is one read-to-category assignment.
type AssignmentJSON struct {
	Read     string `json:"read"`
	Category string `json:"category"`
}

// AbundanceRequest is the body of POST /api/abundance. Zero options take the
// emabund defaults.
type AbundanceRequest struct {
	Assignments    []AssignmentJSON `json:"assignments"`
	NoiseThreshold float64          `json:"noise_threshold"`
	MaxIterations  int              `json:"max_iterations"`
	MaxDelta       float64          `json:"max_delta"`
}

// AbundanceResponse holds the estimate keyed by category.
type AbundanceResponse struct {
	Abundance    map[string]float64 `json:"abundance"`
	Iterations   int                `json:"iterations"`
	Converged    bool               `json:"converged"`
	ShortCircuit bool               `json:"short_circuit"`
	Unique       int                `json:"unique_reads"`
	Ambiguous    int                `json:"ambiguous_reads"`
}

// AbundanceHandler runs EM over the posted assignments. The estimate is
// cancelled with the request.
func AbundanceHandler(w http.ResponseWriter, r *http.Request) {
	var req AbundanceRequest
	if !decode(w, r, &req) {
		return
	}
	opts := emabund.DefaultOptions()
	opts.NoiseThreshold = req.NoiseThreshold
	if req.MaxIterations != 0 {
		opts.MaxIterations = req.MaxIterations
	}
	if req.MaxDelta != 0 {
		opts.MaxDelta = req.MaxDelta
	}
	as := make([]emabund.Assignment, len(req.Assignments))
	for i, a := range req.Assignments {
		as[i] = emabund.Assignment{Read: a.Read, Category: a.Category}
	}

	res, err := emabund.Estimate(r.Context(), as, opts)
	switch {
	case errors.Is(err, emabund.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err)
		return
	case errors.Is(err, emabund.ErrDegenerateDistribution):
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		writeError(w, http.StatusServiceUnavailable, err)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	ab := res.Abundance
	if res.ShortCircuit {
		if ab, err = res.Normalized(); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err)
			return
		}
	}
	m := make(map[string]float64, len(res.Categories))
	for i, c := range res.Categories {
		m[c] = ab[i]
	}
	writeJSON(w, http.StatusOK, AbundanceResponse{Abundance: m, Iterations: res.Iterations,
		Converged: res.Converged, ShortCircuit: res.ShortCircuit, Unique: res.Unique, Ambiguous: res.Ambiguous})
}

// TMMRequest is the body of POST /api/tmm: one row of counts per gene, one
// column per sample.
type TMMRequest struct {
	Samples []string    `json:"samples"`
	Counts  [][]float64 `json:"counts"`
}

// TMMResponse holds the factor and normalized counts of each sample.
type TMMResponse struct {
	Factors map[string]float64 `json:"factors"`
	CPM     [][]float64        `json:"cpm"`
}

// TMMHandler computes TMM factors and normalized CPM.
func TMMHandler(w http.ResponseWriter, r *http.Request) {
	var req TMMRequest
	if !decode(w, r, &req) {
		return
	}
	nc := len(req.Samples)
	if nc == 0 || len(req.Counts) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("samples and counts are required"))
		return
	}
	data := make([]float64, 0, nc*len(req.Counts))
	for i, row := range req.Counts {
		if len(row) != nc {
			writeError(w, http.StatusBadRequest, errors.Errorf("row %d has %d counts for %d samples", i, len(row), nc))
			return
		}
		data = append(data, row...)
	}
	counts := mat.NewDense(len(req.Counts), nc, data)
	f, err := tmm.NormFactors(counts)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	cpm, err := tmm.NormCPM(counts)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp := TMMResponse{Factors: make(map[string]float64, nc), CPM: make([][]float64, len(req.Counts))}
	for j, s := range req.Samples {
		resp.Factors[s] = f[j]
	}
	for i := range resp.CPM {
		resp.CPM[i] = mat.Row(nil, i, cpm)
	}
	writeJSON(w, http.StatusOK, resp)
}

// SeqStatsHandler summarizes fasta or fastq posted as the request body.
func SeqStatsHandler(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(http.MaxBytesReader(w, r.Body, MaxBody)); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	st, err := fastx.Stats(&buf)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count": st.Count, "total": st.Total, "min": st.Min, "max": st.Max,
		"mean": st.Mean, "n50": st.N50, "gc": st.GC,
	})
}
