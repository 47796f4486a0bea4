package health

import (
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedReporter int64

func (r fixedReporter) MappedBytes() int64 { return int64(r) }

func serve(t *testing.T, h http.Handler, path string) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	return rw.Code
}

func TestShmFreeCheck(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, ShmFreeCheck(dir, 1)())
	assert.Error(t, ShmFreeCheck(dir, math.MaxUint64)())
	assert.Error(t, ShmFreeCheck(dir+"/missing", 1)())
}

func TestMappedBytesCheck(t *testing.T) {
	assert.NoError(t, MappedBytesCheck(fixedReporter(10), 10)())
	assert.Error(t, MappedBytesCheck(fixedReporter(11), 10)())
}

func TestHandler(t *testing.T) {
	opts := Options{ShmDir: t.TempDir(), MinShmFree: 1, MaxMappedBytes: 100, MaxGoroutines: 1 << 20}

	h := NewHandler(fixedReporter(50), opts)
	assert.Equal(t, http.StatusOK, serve(t, h, "/live"))
	assert.Equal(t, http.StatusOK, serve(t, h, "/ready"))

	h = NewHandler(fixedReporter(500), opts)
	assert.Equal(t, http.StatusOK, serve(t, h, "/live"))
	assert.Equal(t, http.StatusServiceUnavailable, serve(t, h, "/ready"))

	opts.MinShmFree = math.MaxUint64
	h = NewHandler(fixedReporter(0), opts)
	assert.Equal(t, http.StatusServiceUnavailable, serve(t, h, "/live"))
	// readiness includes liveness
	assert.Equal(t, http.StatusServiceUnavailable, serve(t, h, "/ready"))
}

func TestHandlerWithoutChecks(t *testing.T) {
	h := NewHandler(nil, Options{})
	assert.Equal(t, http.StatusOK, serve(t, h, "/live"))
	assert.Equal(t, http.StatusOK, serve(t, h, "/ready"))
}
