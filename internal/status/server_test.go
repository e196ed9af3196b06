package status

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turboflakes/skipper/internal/supervisor"
)

type staticSource supervisor.Status

func (s staticSource) Status() supervisor.Status { return supervisor.Status(s) }

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	reg := prometheus.NewRegistry()
	supervisor.NewMetrics(reg)
	logger, _ := test.NewNullLogger()

	src := staticSource{
		State:           supervisor.Recovering,
		Chain:           "Kusama",
		Variant:         "Kusama",
		Sessions:        3,
		LastError:       "decode failure",
		LastErrorKind:   "other",
		ConnectFailures: 2,
		Since:           time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	srv := httptest.NewServer(NewServer(src, reg, logger.WithField("component", "status")).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "recovering", body["state"])
	assert.Equal(t, "Kusama", body["chain"])
	assert.Equal(t, float64(3), body["sessions"])
	assert.Equal(t, "decode failure", body["last_error"])
	assert.Equal(t, "other", body["last_error_kind"])
	assert.Equal(t, float64(2), body["connect_failures"])
	assert.Equal(t, "2024-05-01T12:00:00Z", body["since"])
}

func TestHealthzRejectsPost(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Post(srv.URL+"/healthz", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSecurityHeaders(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	securityHeaders(inner).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	want := map[string]string{
		"X-Content-Type-Options":  "nosniff",
		"X-Frame-Options":         "DENY",
		"Content-Security-Policy": "default-src 'none'",
	}
	for header, expected := range want {
		assert.Equal(t, expected, rec.Header().Get(header), header)
	}
}
