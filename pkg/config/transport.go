package config

import "time"

// TransportConfig selects the transport provider and its endpoints.
// Example YAML:
//
//	transport:
//	  kind: quic
//	  listen: "0.0.0.0:4433"
//	  peers:
//	    - name: worker-1
//	      address: "10.0.0.2:4433"
//	  quic:
//	    insecure_skip_verify: true
//	    keep_alive_period: 10s
//
// kind is one of quic, tcp, mem or winpipe. For winpipe the addresses are
// pipe names such as \\.\pipe\netz.
type TransportConfig struct {
	Kind   string       `mapstructure:"kind"`
	Listen string       `mapstructure:"listen"`
	Peers  []PeerConfig `mapstructure:"peers"`
	QUIC   QUICConfig   `mapstructure:"quic"`
	TCP    TCPConfig    `mapstructure:"tcp"`
	// Mux tunes yamux for tcp, mem and winpipe.
	Mux MuxConfig `mapstructure:"mux"`
}

// PeerConfig describes a target to dial.
type PeerConfig struct {
	Name    string `mapstructure:"name"`
	Address string `mapstructure:"address"`
}

type QUICConfig struct {
	ALPN               []string      `mapstructure:"alpn"`
	ServerName         string        `mapstructure:"server_name"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
	KeepAlivePeriod    time.Duration `mapstructure:"keep_alive_period"`
	MaxIdleTimeout     time.Duration `mapstructure:"max_idle_timeout"`
	MaxIncomingStreams int64         `mapstructure:"max_incoming_streams"`
}

type TCPConfig struct {
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	KeepAlive   time.Duration `mapstructure:"keep_alive"`
}

type MuxConfig struct {
	AcceptBacklog       int           `mapstructure:"accept_backlog"`
	KeepAliveInterval   time.Duration `mapstructure:"keep_alive_interval"`
	DisableKeepAlive    bool          `mapstructure:"disable_keep_alive"`
	MaxStreamWindowSize uint32        `mapstructure:"max_stream_window_size"`
	StreamOpenTimeout   time.Duration `mapstructure:"stream_open_timeout"`
}

func defaultTransport() TransportConfig {
	return TransportConfig{
		Kind:   "tcp",
		Listen: "127.0.0.1:7700",
		QUIC: QUICConfig{
			ALPN:               []string{"netz"},
			ServerName:         "localhost",
			InsecureSkipVerify: true,
			KeepAlivePeriod:    10 * time.Second,
			MaxIdleTimeout:     30 * time.Second,
			MaxIncomingStreams: 256,
		},
		TCP: TCPConfig{
			DialTimeout: 5 * time.Second,
			KeepAlive:   15 * time.Second,
		},
		Mux: MuxConfig{
			AcceptBacklog:     256,
			KeepAliveInterval: 30 * time.Second,
		},
	}
}
