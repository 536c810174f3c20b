package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	h := NewRouter(time.Minute)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestAbundance(t *testing.T) {
	h := NewRouter(time.Minute)
	rec := post(t, h, "/api/abundance", `{"assignments": [
		{"read": "r1", "category": "A"}, {"read": "r2", "category": "A"},
		{"read": "r3", "category": "B"},
		{"read": "r4", "category": "A"}, {"read": "r4", "category": "B"}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp AbundanceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Converged)
	assert.False(t, resp.ShortCircuit)
	assert.Equal(t, 3, resp.Unique)
	assert.Equal(t, 1, resp.Ambiguous)
	assert.Greater(t, resp.Abundance["A"], resp.Abundance["B"])
	assert.InDelta(t, 1, resp.Abundance["A"]+resp.Abundance["B"], 1e-9)
}

func TestAbundanceShortCircuit(t *testing.T) {
	rec := post(t, NewRouter(time.Minute), "/api/abundance",
		`{"assignments": [{"read": "r1", "category": "A"}, {"read": "r2", "category": "A"}, {"read": "r3", "category": "B"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp AbundanceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.ShortCircuit)
	assert.Equal(t, 1, resp.Iterations)
	assert.InDelta(t, 2.0/3, resp.Abundance["A"], 1e-12)
}

func TestAbundanceErrors(t *testing.T) {
	h := NewRouter(time.Minute)
	for _, tc := range []struct {
		body string
		code int
	}{
		{`{"assignments": []}`, http.StatusBadRequest},
		{`{"assignments": [{"read": "r1", "category": "A"}], "noise_threshold": 1.5}`, http.StatusBadRequest},
		{`not json`, http.StatusBadRequest},
		{`{"assignments": [], "unknown": 1}`, http.StatusBadRequest},
		{`{"noise_threshold": 0.5, "assignments": [
			{"read": "r1", "category": "A"}, {"read": "r1", "category": "B"}, {"read": "r1", "category": "C"}]}`,
			http.StatusUnprocessableEntity},
	} {
		rec := post(t, h, "/api/abundance", tc.body)
		assert.Equal(t, tc.code, rec.Code, tc.body)
		var e errorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e), tc.body)
		assert.NotEmpty(t, e.Error)
	}
}

func TestAbundanceDeadline(t *testing.T) {
	rec := post(t, NewRouter(time.Nanosecond), "/api/abundance", `{"max_iterations": 1000000, "max_delta": 1e-300, "assignments": [
		{"read": "r1", "category": "A"}, {"read": "r1", "category": "B"},
		{"read": "r2", "category": "B"}, {"read": "r2", "category": "C"}]}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code, rec.Body.String())
	var e errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	assert.Contains(t, e.Error, "deadline exceeded")
}

func TestTMM(t *testing.T) {
	h := NewRouter(time.Minute)
	rec := post(t, h, "/api/tmm", `{"samples": ["a", "b"], "counts": [[10, 20], [20, 40], [30, 60], [40, 80]]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp TMMResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.InDelta(t, 1, resp.Factors["a"], 1e-9)
	assert.InDelta(t, 1, resp.Factors["b"], 1e-9)
	require.Len(t, resp.CPM, 4)
	assert.InDelta(t, 1e5, resp.CPM[0][0], 1e-6)

	rec = post(t, h, "/api/tmm", `{"samples": ["a", "b"], "counts": [[10]]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = post(t, h, "/api/tmm", `{"samples": [], "counts": []}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSeqStats(t *testing.T) {
	h := NewRouter(time.Minute)
	rec := post(t, h, "/api/seqstats", ">a\nACGT\n>b\nGG\n")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp map[string]float64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2.0, resp["count"])
	assert.Equal(t, 6.0, resp["total"])
	assert.Equal(t, 4.0, resp["n50"])

	rec = post(t, h, "/api/seqstats", "ACGT")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
