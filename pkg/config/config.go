// Package config loads netz configuration from YAML files and NETZ_*
// environment variables.
package config

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/zsl99a/netz/pkg/codec"
	"github.com/zsl99a/netz/pkg/frame"
	"github.com/zsl99a/netz/pkg/transport"
)

// EnvPrefix prefixes every environment override, e.g. NETZ_LOG_LEVEL=debug.
const EnvPrefix = "NETZ"

// Config is the root application configuration.
type Config struct {
	// AppName names the process in logs.
	AppName string `mapstructure:"app_name"`

	Log       LogConfig       `mapstructure:"log"`
	Transport TransportConfig `mapstructure:"transport"`
	Frame     FrameConfig     `mapstructure:"frame"`

	// Codec names the payload format: msgpack, cbor, json or proto.
	Codec string `mapstructure:"codec"`

	Metrics MetricsConfig `mapstructure:"metrics"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level"`
	// Format: console or json
	Format string `mapstructure:"format"`
	// Outputs: stdout, stderr or file paths
	Outputs     []string       `mapstructure:"outputs"`
	Rotation    RotationConfig `mapstructure:"rotation"`
	Development bool           `mapstructure:"development"`
}

// RotationConfig controls rotation of file outputs.
type RotationConfig struct {
	Enable     bool   `mapstructure:"enable"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// FrameConfig mirrors frame.Config with YAML-friendly types.
type FrameConfig struct {
	MaxFrameLength    int    `mapstructure:"max_frame_length"`
	LengthFieldLength int    `mapstructure:"length_field_length"`
	ByteOrder         string `mapstructure:"byte_order"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enable bool   `mapstructure:"enable"`
	Listen string `mapstructure:"listen"`
	Path   string `mapstructure:"path"`
}

// Default returns a Config populated with defaults.
func Default() *Config {
	fc := frame.DefaultConfig()
	return &Config{
		AppName: "netz",
		Log: LogConfig{
			Level:   "info",
			Format:  "console",
			Outputs: []string{"stderr"},
			Rotation: RotationConfig{
				Filename:   "logs/netz.log",
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
		Transport: defaultTransport(),
		Frame: FrameConfig{
			MaxFrameLength:    fc.MaxFrameLength,
			LengthFieldLength: fc.LengthFieldLength,
			ByteOrder:         "big",
		},
		Codec: "msgpack",
		Metrics: MetricsConfig{
			Listen: "127.0.0.1:9464",
			Path:   "/metrics",
		},
	}
}

// Load reads configuration from path when non-empty, otherwise from
// NETZ_CONFIG or a netz.yaml found in the usual places. A missing file is
// not an error. Environment variables override file values; `.` and `-`
// in keys become `_`.
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v, cfg)

	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("netz")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".netz"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults seeds viper so env-only configurations resolve every key.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("app_name", cfg.AppName)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.development", cfg.Log.Development)
	v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
	v.SetDefault("log.rotation.filename", cfg.Log.Rotation.Filename)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)

	t := cfg.Transport
	v.SetDefault("transport.kind", t.Kind)
	v.SetDefault("transport.listen", t.Listen)
	v.SetDefault("transport.peers", t.Peers)
	v.SetDefault("transport.quic.alpn", t.QUIC.ALPN)
	v.SetDefault("transport.quic.server_name", t.QUIC.ServerName)
	v.SetDefault("transport.quic.insecure_skip_verify", t.QUIC.InsecureSkipVerify)
	v.SetDefault("transport.quic.keep_alive_period", t.QUIC.KeepAlivePeriod)
	v.SetDefault("transport.quic.max_idle_timeout", t.QUIC.MaxIdleTimeout)
	v.SetDefault("transport.quic.max_incoming_streams", t.QUIC.MaxIncomingStreams)
	v.SetDefault("transport.mux.accept_backlog", t.Mux.AcceptBacklog)
	v.SetDefault("transport.mux.keep_alive_interval", t.Mux.KeepAliveInterval)
	v.SetDefault("transport.mux.disable_keep_alive", t.Mux.DisableKeepAlive)
	v.SetDefault("transport.mux.max_stream_window_size", t.Mux.MaxStreamWindowSize)
	v.SetDefault("transport.mux.stream_open_timeout", t.Mux.StreamOpenTimeout)
	v.SetDefault("transport.tcp.dial_timeout", t.TCP.DialTimeout)
	v.SetDefault("transport.tcp.keep_alive", t.TCP.KeepAlive)

	v.SetDefault("frame.max_frame_length", cfg.Frame.MaxFrameLength)
	v.SetDefault("frame.length_field_length", cfg.Frame.LengthFieldLength)
	v.SetDefault("frame.byte_order", cfg.Frame.ByteOrder)
	v.SetDefault("codec", cfg.Codec)
	v.SetDefault("metrics.enable", cfg.Metrics.Enable)
	v.SetDefault("metrics.listen", cfg.Metrics.Listen)
	v.SetDefault("metrics.path", cfg.Metrics.Path)
}

func (c *Config) validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Log.Level)) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log.level: %q", c.Log.Level)
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stderr"}
	}

	c.Transport.Kind = strings.ToLower(strings.TrimSpace(c.Transport.Kind))
	if transport.ParseKind(c.Transport.Kind) == transport.KindUnknown {
		return fmt.Errorf("invalid transport.kind: %q", c.Transport.Kind)
	}
	if _, err := c.Frame.Build(); err != nil {
		return fmt.Errorf("invalid frame: %w", err)
	}
	if _, err := codec.NewRegistry().Lookup(c.Codec); err != nil {
		return fmt.Errorf("invalid codec: %w", err)
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	return nil
}

// Build converts the section into a validated frame.Config.
func (f FrameConfig) Build() (frame.Config, error) {
	fc := frame.Config{
		MaxFrameLength:    f.MaxFrameLength,
		LengthFieldLength: f.LengthFieldLength,
	}
	switch strings.ToLower(strings.TrimSpace(f.ByteOrder)) {
	case "", "big", "big_endian":
		fc.ByteOrder = binary.BigEndian
	case "little", "little_endian":
		fc.ByteOrder = binary.LittleEndian
	default:
		return frame.Config{}, fmt.Errorf("unknown byte order %q", f.ByteOrder)
	}
	if err := fc.Validate(); err != nil {
		return frame.Config{}, err
	}
	return fc, nil
}

// MustLoad is a convenience that panics on error.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}
