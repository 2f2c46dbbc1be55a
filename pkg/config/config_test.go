package config

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "netz.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("NETZ_CONFIG", "")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
app_name: edge
log:
  level: debug
  format: json
transport:
  kind: quic
  listen: "0.0.0.0:4433"
  peers:
    - name: worker-1
      address: "10.0.0.2:4433"
  quic:
    keep_alive_period: 3s
frame:
  max_frame_length: 1024
  length_field_length: 2
  byte_order: little
codec: cbor
metrics:
  enable: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "edge", cfg.AppName)
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, "json", cfg.Log.Format)
	require.Equal(t, "quic", cfg.Transport.Kind)
	require.Equal(t, []PeerConfig{{Name: "worker-1", Address: "10.0.0.2:4433"}}, cfg.Transport.Peers)
	require.Equal(t, 3*time.Second, cfg.Transport.QUIC.KeepAlivePeriod)
	// untouched keys keep their defaults
	require.Equal(t, 30*time.Second, cfg.Transport.QUIC.MaxIdleTimeout)
	require.Equal(t, "cbor", cfg.Codec)
	require.True(t, cfg.Metrics.Enable)
	require.Equal(t, "/metrics", cfg.Metrics.Path)

	fc, err := cfg.Frame.Build()
	require.NoError(t, err)
	require.Equal(t, 1024, fc.MaxFrameLength)
	require.Equal(t, 2, fc.LengthFieldLength)
	require.Equal(t, binary.LittleEndian, fc.ByteOrder)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, "log:\n  level: info\n")
	t.Setenv("NETZ_LOG_LEVEL", "warn")
	t.Setenv("NETZ_TRANSPORT_KIND", "mem")
	t.Setenv("NETZ_TRANSPORT_TCP_DIAL_TIMEOUT", "750ms")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "warn", cfg.Log.Level)
	require.Equal(t, "mem", cfg.Transport.Kind)
	require.Equal(t, 750*time.Millisecond, cfg.Transport.TCP.DialTimeout)
}

func TestLoadConfigFromEnvPath(t *testing.T) {
	t.Setenv("NETZ_CONFIG", writeConfig(t, "app_name: from-env\n"))

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "from-env", cfg.AppName)
}

func TestLoadRejectsInvalid(t *testing.T) {
	for name, body := range map[string]string{
		"log level":    "log:\n  level: loud\n",
		"kind":         "transport:\n  kind: carrier-pigeon\n",
		"prefix width": "frame:\n  length_field_length: 3\n",
		"max too big":  "frame:\n  length_field_length: 1\n  max_frame_length: 4096\n",
		"byte order":   "frame:\n  byte_order: middle\n",
		"codec":        "codec: xml\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			require.Error(t, err)
		})
	}
}

func TestLoadMalformedFile(t *testing.T) {
	_, err := Load(writeConfig(t, "log: [unclosed\n"))
	require.ErrorContains(t, err, "read config")
}
