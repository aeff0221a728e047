package config

import (
	"errors"
	"testing"
	"time"
)

func envMap(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(envMap(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.LocalServerURL != DefaultLocalServerURL {
		t.Errorf("expected %q, got %q", DefaultLocalServerURL, cfg.LocalServerURL)
	}
	if cfg.BackendTimeout != 60*time.Second {
		t.Errorf("expected 60s timeout, got %v", cfg.BackendTimeout)
	}
	if cfg.MaxSteps != DefaultMaxSteps {
		t.Errorf("expected %d max steps, got %d", DefaultMaxSteps, cfg.MaxSteps)
	}
	if !cfg.AgentPoolEnabled {
		t.Error("agent pool should be enabled by default")
	}
	if cfg.Retry.MaxAttempts != 1 {
		t.Errorf("expected single attempt by default, got %d", cfg.Retry.MaxAttempts)
	}
	if len(cfg.ExternalServers) != 0 {
		t.Errorf("expected no external servers, got %v", cfg.ExternalServers)
	}
}

func TestLoadFrom_Overrides(t *testing.T) {
	cfg, err := LoadFrom(envMap(map[string]string{
		"MCP_SERVER_URL":       "http://localhost:9000/",
		"EXTERNAL_MCP_SERVERS": "http://a:8000, docs=https://docs.example.com/",
		"BACKEND_TIMEOUT_SEC":  "15",
		"MAX_WORKFLOW_STEPS":   "4",
		"AGENT_POOL_ENABLED":   "false",
		"SMITHERY_API_KEY":     "secret",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.LocalServerURL != "http://localhost:9000" {
		t.Errorf("trailing slash should be trimmed, got %q", cfg.LocalServerURL)
	}
	if cfg.BackendTimeout != 15*time.Second {
		t.Errorf("expected 15s, got %v", cfg.BackendTimeout)
	}
	if cfg.MaxSteps != 4 {
		t.Errorf("expected 4, got %d", cfg.MaxSteps)
	}
	if cfg.AgentPoolEnabled {
		t.Error("agent pool should be disabled")
	}
	if cfg.AgentAPIKey != "secret" {
		t.Errorf("expected api key, got %q", cfg.AgentAPIKey)
	}

	want := []ExternalServer{
		{Name: "http://a:8000", URL: "http://a:8000"},
		{Name: "docs", URL: "https://docs.example.com"},
	}
	if len(cfg.ExternalServers) != len(want) {
		t.Fatalf("expected %d servers, got %v", len(want), cfg.ExternalServers)
	}
	for i := range want {
		if cfg.ExternalServers[i] != want[i] {
			t.Errorf("server %d: expected %+v, got %+v", i, want[i], cfg.ExternalServers[i])
		}
	}
}

func TestLoadFrom_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"non-numeric timeout", map[string]string{"BACKEND_TIMEOUT_SEC": "soon"}},
		{"zero timeout", map[string]string{"BACKEND_TIMEOUT_SEC": "0"}},
		{"bad bool", map[string]string{"AGENT_POOL_ENABLED": "maybe"}},
		{"bad local url", map[string]string{"MCP_SERVER_URL": "mcp_server:8000"}},
		{"bad agent server", map[string]string{"SMITHERY_SERVER_URL": "https://server.smithery.ai"}},
		{"bad external", map[string]string{"EXTERNAL_MCP_SERVERS": "ftp://x"}},
		{"duplicate external", map[string]string{"EXTERNAL_MCP_SERVERS": "a=http://x,a=http://y"}},
		{"zero attempts", map[string]string{"BACKEND_RETRY_MAX_ATTEMPTS": "0"}},
		{"too many attempts", map[string]string{"BACKEND_RETRY_MAX_ATTEMPTS": "11"}},
		{"bad backoff", map[string]string{"BACKEND_RETRY_BACKOFF": "linear"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFrom(envMap(tt.env))
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}
