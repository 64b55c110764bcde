package config

import (
	"os"
	"testing"
	"time"
)

const sampleConfig = `
api:
  base_url: https://chat.example.com/
  timeout: 5s
storage:
  path: /tmp/fastbot-test.db
log:
  level: debug
devserver:
  port: "9000"
  responder: llm
llm:
  base_url: https://llm.example.com
  api_key: dummy
  model: gpt-4o
`

// TestLoad_File verifies that Load unmarshals a config file named by CONFIG_PATH.
func TestLoad_File(t *testing.T) {
	tmp, err := os.CreateTemp(t.TempDir(), "cfg-*.yaml")
	if err != nil {
		t.Fatalf("temp file: %v", err)
	}
	if _, err := tmp.WriteString(sampleConfig); err != nil {
		t.Fatalf("write: %v", err)
	}
	tmp.Close()

	t.Setenv("CONFIG_PATH", tmp.Name())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.API.BaseURL != "https://chat.example.com" {
		t.Fatalf("trailing slash not trimmed: %s", cfg.API.BaseURL)
	}
	if cfg.API.Timeout != 5*time.Second {
		t.Fatalf("unexpected timeout: %s", cfg.API.Timeout)
	}
	if cfg.Storage.Path != "/tmp/fastbot-test.db" {
		t.Fatalf("unexpected storage path: %s", cfg.Storage.Path)
	}
	if cfg.DevServer.Port != "9000" || cfg.DevServer.Responder != "llm" {
		t.Fatalf("unexpected devserver config: %+v", cfg.DevServer)
	}
	// host was not set in the file, default applies
	if cfg.DevServer.Host != "127.0.0.1" {
		t.Fatalf("unexpected devserver host: %s", cfg.DevServer.Host)
	}
	if cfg.LLM.Model != "gpt-4o" {
		t.Fatalf("unexpected model: %s", cfg.LLM.Model)
	}
}

func TestLoad_DefaultsAndEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("FASTBOT_API_BASE_URL", "http://10.0.0.2:8000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.API.BaseURL != "http://10.0.0.2:8000" {
		t.Fatalf("env override ignored: %s", cfg.API.BaseURL)
	}
	if cfg.API.Timeout != 60*time.Second {
		t.Fatalf("unexpected default timeout: %s", cfg.API.Timeout)
	}
	if cfg.Log.Level != "info" {
		t.Fatalf("unexpected default level: %s", cfg.Log.Level)
	}
}

func TestLoad_Malformed(t *testing.T) {
	tmp, err := os.CreateTemp(t.TempDir(), "cfg-*.yaml")
	if err != nil {
		t.Fatalf("temp file: %v", err)
	}
	tmp.WriteString("api: [unterminated")
	tmp.Close()

	t.Setenv("CONFIG_PATH", tmp.Name())
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for malformed config")
	}
}
