package mcpclient_test

import (
	"testing"
	"time"

	"github.com/tidalfoundry/mcpclient"
)

func TestNewClientConfigAppliesOptionsAndDefaults(t *testing.T) {
	cfg := mcpclient.NewClientConfig(
		mcpclient.Info{Name: "test", Version: "1.0"},
		mcpclient.WithIDPrefix("req-"),
		mcpclient.WithCacheTTL(time.Minute),
		mcpclient.WithRootsCapability(true),
	)

	if cfg.IDPrefix != "req-" {
		t.Errorf("IDPrefix = %q, want %q", cfg.IDPrefix, "req-")
	}
	if cfg.CacheTTL != time.Minute {
		t.Errorf("CacheTTL = %v, want %v", cfg.CacheTTL, time.Minute)
	}
	if cfg.Capabilities.Roots == nil || !cfg.Capabilities.Roots.ListChanged {
		t.Error("Capabilities.Roots not set as expected")
	}
	if cfg.Logger == nil {
		t.Error("Logger default not applied")
	}
	if cfg.EventSink == nil {
		t.Error("EventSink default not applied")
	}
	if cfg.DisconnectWatchdog <= 0 {
		t.Error("DisconnectWatchdog default not applied")
	}
}

func TestStdioServerConfig(t *testing.T) {
	cfg := mcpclient.StdioServerConfig("srv", "my-mcp-server", []string{"--flag"}, 5*time.Second)
	if cfg.Kind != mcpclient.TransportStdio {
		t.Errorf("Kind = %v, want TransportStdio", cfg.Kind)
	}
	if cfg.Command != "my-mcp-server" {
		t.Errorf("Command = %q, want %q", cfg.Command, "my-mcp-server")
	}
}

func TestHTTPServerConfig(t *testing.T) {
	cfg := mcpclient.HTTPServerConfig("srv", "https://example.test/mcp", map[string]string{"Authorization": "Bearer x"}, time.Second)
	if cfg.Kind != mcpclient.TransportHTTP {
		t.Errorf("Kind = %v, want TransportHTTP", cfg.Kind)
	}
	if cfg.URL != "https://example.test/mcp" {
		t.Errorf("URL = %q, want %q", cfg.URL, "https://example.test/mcp")
	}
}
