package admin_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphite-tools/graphite-proxy/admin"
	"github.com/graphite-tools/graphite-proxy/stats"
)

type fakeSource struct {
	sizes    map[string]uint64
	registry *stats.Registry
}

func (f *fakeSource) BufferSizes() map[string]uint64 { return f.sizes }
func (f *fakeSource) Registry() *stats.Registry       { return f.registry }

func TestStatusHandlerReturnsBufferSizesAndStats(t *testing.T) {
	reg := stats.New()
	reg.Counter(stats.MessagesCreated).Inc(3)

	source := &fakeSource{sizes: map[string]uint64{"a.b": 5}, registry: reg}
	srv := admin.New("127.0.0.1:0", source, func() (string, error) { return "current_state.gp", nil })

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	bufferSizes := body["buffer_sizes"].(map[string]interface{})
	assert.Equal(t, float64(5), bufferSizes["a.b"])

	statsBody := body["stats"].(map[string]interface{})
	assert.Equal(t, float64(3), statsBody[stats.MessagesCreated])

	// Peek must not have cleared the counter.
	assert.Equal(t, int64(3), reg.Peek()[stats.MessagesCreated])
}

func TestDumpHandlerReturnsPath(t *testing.T) {
	source := &fakeSource{sizes: map[string]uint64{}, registry: stats.New()}
	srv := admin.New("127.0.0.1:0", source, func() (string, error) { return "current_state.gp", nil })

	req := httptest.NewRequest(http.MethodPost, "/dump", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "current_state.gp", body["path"])
}

func TestDumpHandlerReturnsErrorStatus(t *testing.T) {
	source := &fakeSource{sizes: map[string]uint64{}, registry: stats.New()}
	srv := admin.New("127.0.0.1:0", source, func() (string, error) { return "", errors.New("disk full") })

	req := httptest.NewRequest(http.MethodPost, "/dump", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
