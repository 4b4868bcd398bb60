package profiling

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInfoHandler(t *testing.T) {
	p := New(true, "0", logr.Discard())
	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/info", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var info runtimeInfo
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&info))
	assert.Positive(t, info.Goroutines)
	assert.Positive(t, info.NumCPU)
	assert.NotEmpty(t, info.Version)
}

func TestGCHandler(t *testing.T) {
	p := New(true, "0", logr.Discard())

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/gc", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	before := GetGCStats()
	rec = httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/debug/gc", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var after GCStats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&after))
	assert.Greater(t, after.NumGC, before.NumGC)
}

func TestPprofIndex(t *testing.T) {
	rec := httptest.NewRecorder()
	New(true, "0", logr.Discard()).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "goroutine")
}

func TestStartStop(t *testing.T) {
	disabled := New(false, "0", logr.Discard())
	require.NoError(t, disabled.Start())
	require.NoError(t, disabled.Stop(context.Background()))

	p := New(true, "0", logr.Discard())
	require.NoError(t, p.Start())
	assert.NoError(t, p.Stop(context.Background()))
}
