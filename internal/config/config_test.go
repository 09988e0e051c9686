package config

import (
	"strings"
	"testing"
)

// memBackend is an in-memory ConfigBackend for tests.
type memBackend struct {
	strings map[string]string
	ints    map[string]int
}

func newMemBackend() *memBackend {
	return &memBackend{strings: make(map[string]string), ints: make(map[string]int)}
}

func (m *memBackend) GetString(key string) (string, bool, error) {
	v, ok := m.strings[key]
	return v, ok, nil
}

func (m *memBackend) GetInt(key string) (int, bool, error) {
	v, ok := m.ints[key]
	return v, ok, nil
}

func (m *memBackend) SetString(key, val string) error {
	m.strings[key] = val
	return nil
}

func (m *memBackend) SetInt(key string, val int) error {
	m.ints[key] = val
	return nil
}

func (m *memBackend) Delete(key string) error {
	delete(m.strings, key)
	delete(m.ints, key)
	return nil
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := loadWith(newMemBackend())
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}

	if cfg.Server.Port != 4100 {
		t.Errorf("Port = %d", cfg.Server.Port)
	}
	if cfg.Ollama.ChatModel != "llama3.1" || cfg.Ollama.EmbedModel != "nomic-embed-text" {
		t.Errorf("models = %q, %q", cfg.Ollama.ChatModel, cfg.Ollama.EmbedModel)
	}
	if cfg.Retrieval.TopK != 5 || cfg.Retrieval.ContextBudget != 6000 {
		t.Errorf("retrieval = %+v", cfg.Retrieval)
	}
	if cfg.Retrieval.ChunkSize != 1000 || cfg.Retrieval.ChunkOverlap != 100 {
		t.Errorf("chunking = %+v", cfg.Retrieval)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Level = %q", cfg.Log.Level)
	}
}

func TestLoad_BackendOverridesDefaults(t *testing.T) {
	b := newMemBackend()
	b.ints["server.port"] = 9000
	b.strings["ollama.chat_model"] = "mistral"

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Ollama.ChatModel != "mistral" {
		t.Errorf("ChatModel = %q", cfg.Ollama.ChatModel)
	}
	// Untouched keys keep their defaults.
	if cfg.Retrieval.TopK != 5 {
		t.Errorf("TopK = %d", cfg.Retrieval.TopK)
	}
}

func TestLoad_EnvOverridesBackend(t *testing.T) {
	b := newMemBackend()
	b.ints["server.port"] = 9000

	t.Setenv("DOCCHAT_SERVER_PORT", "9100")
	t.Setenv("DOCCHAT_API_TOKEN", "secret-token")

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("Port = %d, want env override 9100", cfg.Server.Port)
	}
	if cfg.API.Token != "secret-token" {
		t.Errorf("Token = %q", cfg.API.Token)
	}
}

func TestLoad_BadIntEnvIgnored(t *testing.T) {
	t.Setenv("DOCCHAT_RETRIEVAL_TOP_K", "lots")

	cfg, err := loadWith(newMemBackend())
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Retrieval.TopK != 5 {
		t.Errorf("TopK = %d, want default on parse failure", cfg.Retrieval.TopK)
	}
}

func TestShowAll_OmitsSecrets(t *testing.T) {
	cfg, err := loadWith(newMemBackend())
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}

	for _, info := range ShowAll(cfg) {
		if info.Key == "api.token" {
			t.Error("secret key listed in ShowAll")
		}
		if info.EnvVar == "" || !strings.HasPrefix(info.EnvVar, "DOCCHAT_") {
			t.Errorf("key %s has env var %q", info.Key, info.EnvVar)
		}
	}
}

func TestSetKey_RejectsUnknownKey(t *testing.T) {
	err := SetKey("no.such.key", "value")
	if err == nil {
		t.Fatal("expected error for unknown key")
	}
	if !strings.Contains(err.Error(), "unknown config key") {
		t.Errorf("err = %v", err)
	}
}

func TestSetKey_RejectsSecret(t *testing.T) {
	err := SetKey("api.token", "hunter2")
	if err == nil {
		t.Fatal("expected error for secret key")
	}
	if !strings.Contains(err.Error(), "DOCCHAT_API_TOKEN") {
		t.Errorf("err should name the env var, got %v", err)
	}
}

func TestValidKeys(t *testing.T) {
	keys := ValidKeys()
	if len(keys) == 0 {
		t.Fatal("no valid keys")
	}
	for _, k := range keys {
		if k == "api.token" {
			t.Error("secret key listed as settable")
		}
	}
}
