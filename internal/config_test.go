package internal

import (
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.AI.Endpoint = "http://localhost:11434"
	cfg.AI.Model = "llama3"
	cfg.Mongo.URI = "mongodb://localhost:27017"
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestDuration_UnmarshalYAML(t *testing.T) {
	var d Duration
	if err := yaml.Unmarshal([]byte("1m30s"), &d); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if d.Std() != 90*time.Second {
		t.Errorf("duration = %v, want 1m30s", d.Std())
	}

	if err := yaml.Unmarshal([]byte("soon"), &d); err == nil {
		t.Error("expected error for non-duration string")
	}
}

func TestConfig_UnmarshalYAML(t *testing.T) {
	raw := `
app:
  log_level: DEBUG
  http:
    port: 9090
drop:
  path: /data/drops
  extensions: [".txt", ".text"]
  quiet_period: 5s
  workers: 8
ai:
  endpoint: http://ollama:11434
  model: llama3
  timeout: 90s
  max_attempts: 2
mongo:
  uri: mongodb://mongo:27017
  database: munin
  collection: notes
  storage_attempts: 3
ledger:
  path: /data/munin.db
  cache_size: 512
auth:
  mode: token
  token: sekret
`
	cfg := NewDefaultConfig()
	if err := yaml.Unmarshal([]byte(raw), cfg); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if cfg.Drop.QuietPeriod.Std() != 5*time.Second {
		t.Errorf("quiet_period = %v", cfg.Drop.QuietPeriod.Std())
	}
	if cfg.AI.Timeout.Std() != 90*time.Second {
		t.Errorf("timeout = %v", cfg.AI.Timeout.Std())
	}
	if cfg.App.HTTP.Address() != ":9090" {
		t.Errorf("address = %q", cfg.App.HTTP.Address())
	}
	if !cfg.Auth.AuthEnabled() {
		t.Error("auth should be enabled")
	}
}

func TestDropConfig_RejectsZeroQuietPeriod(t *testing.T) {
	cfg := DropConfig{Path: "./drops", Extensions: []string{".txt"}, Workers: 4}
	if err := cfg.Validate(); err == nil {
		t.Fatal("zero quiet_period should fail validation")
	}
}

func TestAIConfig_RequiresEndpointAndModel(t *testing.T) {
	cfg := AIConfig{Timeout: Duration(time.Minute), MaxAttempts: 3}
	if err := cfg.Validate(); err == nil {
		t.Fatal("missing endpoint and model should fail validation")
	}
}

func TestMongoConfig_RequiresURI(t *testing.T) {
	cfg := MongoConfig{Database: "munin", Collection: "notes", StorageAttempts: 3}
	if err := cfg.Validate(); err == nil {
		t.Fatal("missing uri should fail validation")
	}
}
