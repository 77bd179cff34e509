// Package config loads service settings from defaults, an optional YAML
// file, a local .env file and RAG_* environment variables, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/WessleyAI/wessley-rag/engine/domain"
)

// EnvPrefix is prepended to every environment override, e.g.
// RAG_SERVER_PORT for server.port.
const EnvPrefix = "RAG"

// Settings is the full service configuration.
type Settings struct {
	Server ServerSettings `mapstructure:"server" yaml:"server"`
	OpenAI OpenAISettings `mapstructure:"openai" yaml:"openai"`
	Qdrant QdrantSettings `mapstructure:"qdrant" yaml:"qdrant"`
	NATS   NATSSettings   `mapstructure:"nats" yaml:"nats"`
	Limits LimitSettings  `mapstructure:"limits" yaml:"limits"`
	RAG    domain.Config  `mapstructure:"rag" yaml:"rag"`
}

type ServerSettings struct {
	Port        int    `mapstructure:"port" yaml:"port"`
	CORSOrigin  string `mapstructure:"cors_origin" yaml:"cors_origin"`
	MaxUploadMB int64  `mapstructure:"max_upload_mb" yaml:"max_upload_mb"`
}

type OpenAISettings struct {
	APIKey  string `mapstructure:"api_key" yaml:"api_key"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
}

// QdrantSettings selects the vector store. An empty Addr keeps vectors in
// process memory.
type QdrantSettings struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// NATSSettings configures event publishing. An empty URL disables it.
type NATSSettings struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// LimitSettings bound outgoing calls to the model provider.
type LimitSettings struct {
	RPS             float64       `mapstructure:"rps" yaml:"rps"`
	Burst           int           `mapstructure:"burst" yaml:"burst"`
	BreakerFailures int           `mapstructure:"breaker_failures" yaml:"breaker_failures"`
	BreakerTimeout  time.Duration `mapstructure:"breaker_timeout" yaml:"breaker_timeout"`
}

func setDefaults(v *viper.Viper) {
	d := domain.DefaultConfig()
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origin", "*")
	v.SetDefault("server.max_upload_mb", 32)
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "")
	v.SetDefault("qdrant.addr", "")
	v.SetDefault("nats.url", "")
	v.SetDefault("limits.rps", 0)
	v.SetDefault("limits.burst", 1)
	v.SetDefault("limits.breaker_failures", 5)
	v.SetDefault("limits.breaker_timeout", "30s")
	v.SetDefault("rag.model_name", d.ModelName)
	v.SetDefault("rag.embedding_model", d.EmbeddingModel)
	v.SetDefault("rag.k", d.K)
	v.SetDefault("rag.chunk_size", d.ChunkSize)
	v.SetDefault("rag.overlap", d.Overlap)
	v.SetDefault("rag.collection_name", d.CollectionName)
}

// Load reads the settings. path may be empty. A missing .env file is not
// an error; a missing YAML file named by path is.
func Load(path string) (Settings, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Settings{}, fmt.Errorf("config: load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// The provider's conventional variable works too.
	if err := v.BindEnv("openai.api_key", EnvPrefix+"_OPENAI_API_KEY", "OPENAI_API_KEY"); err != nil {
		return Settings{}, fmt.Errorf("config: bind env: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Settings{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("config: decode: %w", err)
	}
	return s, nil
}

// Validate checks the settings that cannot be defaulted.
func (s Settings) Validate() error {
	if s.Server.Port <= 0 || s.Server.Port > 65535 {
		return domain.NewValidationError("server.port", fmt.Sprint(s.Server.Port), domain.ErrInvalidConfiguration)
	}
	if s.RAG.K > domain.MaxK {
		return domain.NewValidationError("k", fmt.Sprint(s.RAG.K), domain.ErrInvalidConfiguration)
	}
	return s.RAG.Validate()
}

// Encode renders s as YAML with the API key redacted.
func Encode(s Settings) ([]byte, error) {
	if s.OpenAI.APIKey != "" {
		s.OpenAI.APIKey = redact(s.OpenAI.APIKey)
	}
	out, err := yaml.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("config: encode: %w", err)
	}
	return out, nil
}

func redact(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:3] + "****" + key[len(key)-4:]
}
