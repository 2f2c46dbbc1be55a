package observability

import (
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/zsl99a/netz/pkg/config"
)

func TestNewLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "netz.log")
	logger, err := NewLogger(config.LogConfig{Level: "info", Format: "json", Outputs: []string{path}})
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("visible")
	require.NoError(t, logger.Sync())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(b), `"msg":"visible"`)
	require.NotContains(t, string(b), "hidden")
}

func TestNewLoggerRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rotated.log")
	c := config.Default().Log
	c.Outputs = []string{"ignored.log"}
	c.Rotation.Enable = true
	c.Rotation.Filename = path

	logger, err := NewLogger(c)
	require.NoError(t, err)
	logger.Warn("rotating")
	require.NoError(t, logger.Sync())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(b), "rotating")
}

func TestNewLoggerRejectsLevel(t *testing.T) {
	_, err := NewLogger(config.LogConfig{Level: "loud"})
	require.Error(t, err)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.FrameRead(6)
	m.FrameRead(4)
	m.FrameWritten(9)
	m.ChannelError("decode")
	m.ConnAccepted("tcp")
	m.StreamAccepted("tcp")
	m.ConnOpened()
	m.ConnOpened()
	m.ConnClosed()

	require.Equal(t, 2.0, testutil.ToFloat64(m.framesRead))
	require.Equal(t, 10.0, testutil.ToFloat64(m.bytesRead))
	require.Equal(t, 9.0, testutil.ToFloat64(m.bytesWritten))
	require.Equal(t, 1.0, testutil.ToFloat64(m.channelErrors.WithLabelValues("decode")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.activeConns))

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Contains(t, rec.Body.String(), "netz_transport_connections_accepted_total")
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.FrameRead(1)
		m.FrameWritten(1)
		m.ChannelError("transport")
		m.ConnAccepted("mem")
		m.StreamAccepted("mem")
		m.ConnOpened()
		m.ConnClosed()
	})
}
