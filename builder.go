package mcpclient

import (
	"log/slog"
	"time"
)

// ClientOption configures a ClientConfig built via NewClientConfig. This is
// the fluent configuration builder spec §1 lists as an out-of-scope external
// collaborator for the engine itself; it ships here as the ambient
// construction layer, grounded on the teacher's functional-options
// ClientOption/WithXxx pattern (client.go).
type ClientOption func(*ClientConfig)

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *ClientConfig) { c.Logger = logger }
}

// WithEventSink overrides the default LoggingEventSink.
func WithEventSink(sink EventSink) ClientOption {
	return func(c *ClientConfig) { c.EventSink = sink }
}

// WithIDPrefix sets the log-correlation prefix used by every connection's id
// generator.
func WithIDPrefix(prefix string) ClientOption {
	return func(c *ClientConfig) { c.IDPrefix = prefix }
}

// WithCacheTTL sets ClientConfig.CacheTTL. Manager and Connection do not
// read it; no results are cached by setting it.
func WithCacheTTL(ttl time.Duration) ClientOption {
	return func(c *ClientConfig) { c.CacheTTL = ttl }
}

// WithDisconnectWatchdog overrides the default 5s close watchdog.
func WithDisconnectWatchdog(d time.Duration) ClientOption {
	return func(c *ClientConfig) { c.DisconnectWatchdog = d }
}

// WithRootsCapability advertises the roots capability during every
// handshake.
func WithRootsCapability(listChanged bool) ClientOption {
	return func(c *ClientConfig) {
		c.Capabilities.Roots = &RootsCapability{ListChanged: listChanged}
	}
}

// WithSamplingCapability advertises the sampling capability during every
// handshake.
func WithSamplingCapability() ClientOption {
	return func(c *ClientConfig) {
		c.Capabilities.Sampling = &SamplingCapability{}
	}
}

// NewClientConfig builds a ClientConfig for the given client identity,
// applying options in order and then filling in defaults.
func NewClientConfig(info Info, options ...ClientOption) ClientConfig {
	cfg := ClientConfig{ClientInfo: info}
	for _, opt := range options {
		opt(&cfg)
	}
	return cfg.withDefaults()
}

// StdioServerConfig builds a ServerConfig for a child-process transport.
func StdioServerConfig(name, command string, args []string, timeout time.Duration) ServerConfig {
	return ServerConfig{Name: name, Kind: TransportStdio, Command: command, Args: args, Timeout: timeout}
}

// HTTPServerConfig builds a ServerConfig for an HTTP+SSE transport.
func HTTPServerConfig(name, url string, headers map[string]string, timeout time.Duration) ServerConfig {
	return ServerConfig{Name: name, Kind: TransportHTTP, URL: url, Headers: headers, Timeout: timeout}
}
