// Package config loads application configuration from an XDG JSON file,
// a local .env file, and environment variables, in that order of precedence
// (environment wins).
package config

type Config struct {
	Server    ServerConfig
	Ollama    OllamaConfig
	Storage   StorageConfig
	Retrieval RetrievalConfig
	Log       LogConfig
	API       APIConfig
}

type ServerConfig struct {
	Port int
}

type OllamaConfig struct {
	BaseURL    string
	ChatModel  string
	EmbedModel string
}

type StorageConfig struct {
	DataDir string
}

type RetrievalConfig struct {
	TopK int
	// ContextBudget caps assembled retrieval context, in characters.
	ContextBudget int
	// ChainBudget caps a carried-over conversation summary, in characters.
	ChainBudget  int
	ChunkSize    int
	ChunkOverlap int
}

type LogConfig struct {
	Level string
}

type APIConfig struct {
	Token string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4100,
		},
		Ollama: OllamaConfig{
			BaseURL:    "http://localhost:11434",
			ChatModel:  "llama3.1",
			EmbedModel: "nomic-embed-text",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Retrieval: RetrievalConfig{
			TopK:          5,
			ContextBudget: 6000,
			ChainBudget:   2000,
			ChunkSize:     1000,
			ChunkOverlap:  100,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON config file at
// $XDG_CONFIG_HOME/docchat/config.json, then applies a .env file from the
// working directory if present, then DOCCHAT_* environment variables.
func Load() (Config, error) {
	return loadWith(newFileBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	loadDotenv()
	applyEnvOverrides(&cfg)

	return cfg, nil
}
