package config

import (
	"os"
	"path/filepath"
	"testing"
)

func unsetIdobataEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{envIdobataName, envIdobataAPIToken, envIdobataURL, envIdobataEventURL, envResponderAllow} {
		t.Setenv(key, "")
	}
}

func TestLoadConfigFromEnvPath(t *testing.T) {
	unsetIdobataEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{
	  "idobata": {"name": "hibot", "api_token": "secret", "url": "http://127.0.0.1:9000/"},
	  "responder": {"type": "echo", "allow_rooms": ["3"]},
	  "gateway": {"host": "0.0.0.0", "port": 18790, "workers": 2},
	  "logging": {"format": "json", "level": "debug", "add_source": true}
	}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	t.Setenv(envConfigPath, path)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}

	if cfg.Idobata.Name != "hibot" {
		t.Fatalf("idobata.name = %q, want %q", cfg.Idobata.Name, "hibot")
	}
	if cfg.Idobata.APIToken != "secret" {
		t.Fatalf("idobata.api_token = %q, want %q", cfg.Idobata.APIToken, "secret")
	}
	if got := cfg.Idobata.StreamURL(); got != "http://127.0.0.1:9000/" {
		t.Fatalf("stream url = %q, want messaging url fallback", got)
	}
	if cfg.Gateway.Workers != 2 {
		t.Fatalf("gateway.workers = %d, want 2", cfg.Gateway.Workers)
	}
	if len(cfg.Responder.AllowRooms) != 1 || cfg.Responder.AllowRooms[0] != "3" {
		t.Fatalf("responder.allow_rooms = %v, want [3]", cfg.Responder.AllowRooms)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("logging.format = %q, want %q", cfg.Logging.Format, "json")
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("logging.level = %q, want %q", cfg.Logging.Level, "debug")
	}
	if !cfg.Logging.AddSource {
		t.Fatal("logging.add_source = false, want true")
	}
}

func TestLoadConfigInvalidEnvPath(t *testing.T) {
	t.Setenv(envConfigPath, filepath.Join(t.TempDir(), "missing.json"))

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for missing config path")
	}
}

func TestLoadConfigFromEnvironmentOnly(t *testing.T) {
	unsetIdobataEnv(t)
	t.Setenv(envConfigPath, "")
	t.Chdir(t.TempDir())

	t.Setenv(envIdobataAPIToken, " token ")
	t.Setenv(envIdobataName, "envbot")
	t.Setenv(envIdobataEventURL, "http://events.local/")
	t.Setenv(envResponderAllow, "1, ,2")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}

	if cfg.Idobata.APIToken != "token" {
		t.Fatalf("api token = %q, want %q", cfg.Idobata.APIToken, "token")
	}
	if got := cfg.Idobata.BotName(); got != "envbot" {
		t.Fatalf("bot name = %q, want %q", got, "envbot")
	}
	if got := cfg.Idobata.MessagesURL(); got != DefaultIdobataURL {
		t.Fatalf("messages url = %q, want %q", got, DefaultIdobataURL)
	}
	if got := cfg.Idobata.StreamURL(); got != "http://events.local/" {
		t.Fatalf("stream url = %q, want override", got)
	}
	if len(cfg.Responder.AllowRooms) != 2 {
		t.Fatalf("allow rooms = %v, want 2 entries", cfg.Responder.AllowRooms)
	}
}

func TestLoadConfigNestedEnvOverrides(t *testing.T) {
	unsetIdobataEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{"idobata": {"api_token": "secret"}, "gateway": {"port": 18790, "queue_size": 10}}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	t.Setenv(envConfigPath, path)
	t.Setenv("IDOBRIDGE_GATEWAY__QUEUE_SIZE", "250")
	t.Setenv("IDOBRIDGE_RESPONDER__TYPE", "openai")
	t.Setenv("IDOBRIDGE_RESPONDER__HISTORY_TURNS", "3")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}

	if cfg.Gateway.QueueSize != 250 {
		t.Fatalf("gateway.queue_size = %d, want 250", cfg.Gateway.QueueSize)
	}
	if cfg.Gateway.Port != 18790 {
		t.Fatalf("gateway.port = %d, want file value", cfg.Gateway.Port)
	}
	if cfg.Responder.Type != "openai" {
		t.Fatalf("responder.type = %q, want openai", cfg.Responder.Type)
	}
	if cfg.Responder.HistoryTurns != 3 {
		t.Fatalf("responder.history_turns = %d, want 3", cfg.Responder.HistoryTurns)
	}
}

func TestEnvKey(t *testing.T) {
	if got := envKey("IDOBRIDGE_GATEWAY__QUEUE_SIZE"); got != "gateway.queue_size" {
		t.Fatalf("envKey = %q", got)
	}
}

func TestIdobataConfigValidate(t *testing.T) {
	if err := (IdobataConfig{}).Validate(); err == nil {
		t.Fatal("expected error without api token")
	}
	if err := (IdobataConfig{APIToken: "x"}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := (IdobataConfig{}).BotName(); got != defaultBotName {
		t.Fatalf("default bot name = %q, want %q", got, defaultBotName)
	}
}

func TestParseCSV(t *testing.T) {
	got := parseCSV(" a, ,b ,,c")
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("parseCSV = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("parseCSV[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
