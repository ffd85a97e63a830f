package gateway

import "time"

const (
	defaultReconnectInterval = 5 * time.Second
	defaultMaxReconnects     = 10
	defaultRequestTimeout    = 30 * time.Second
	defaultHandshakeTimeout  = 15 * time.Second
	defaultPingInterval      = 30 * time.Second
)

// Config holds the connection parameters for one Connector. Changes via
// UpdateConfig or SetToken apply to the next Connect only.
type Config struct {
	URL   string // e.g. "wss://gateway.example/ws"
	Token string // static bearer token for the dial
	Mode  string // client mode reported in the handshake

	ReconnectInterval    time.Duration // fixed delay between retry attempts
	MaxReconnectAttempts int           // retry budget per outage

	RequestTimeout   time.Duration // per-request, never global
	HandshakeTimeout time.Duration // challenge through hello-ok
	PingInterval     time.Duration // client-side keepalive
}

func (c Config) withDefaults() Config {
	if c.Mode == "" {
		c.Mode = "desktop"
	}
	if c.ReconnectInterval <= 0 {
		c.ReconnectInterval = defaultReconnectInterval
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = defaultMaxReconnects
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = defaultHandshakeTimeout
	}
	if c.PingInterval <= 0 {
		c.PingInterval = defaultPingInterval
	}
	return c
}
