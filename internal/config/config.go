package config

import (
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/dig"

	"github.com/davidbz/studygate/internal/attachment"
	"github.com/davidbz/studygate/internal/auth"
	"github.com/davidbz/studygate/internal/completion"
	"github.com/davidbz/studygate/internal/provider/echo"
	"github.com/davidbz/studygate/internal/provider/gemini"
	"github.com/davidbz/studygate/internal/provider/groq"
	"github.com/davidbz/studygate/internal/provider/openai"
	"github.com/davidbz/studygate/internal/quota"
	"github.com/davidbz/studygate/internal/storage/postgres"
	"github.com/davidbz/studygate/internal/title"
)

// Config represents the gateway configuration.
type Config struct {
	Server     ServerConfig
	CORS       CORSConfig
	Chain      ChainConfig
	Auth       auth.Config
	OpenAI     openai.Config
	Groq       groq.Config
	Gemini     gemini.Config
	Echo       echo.Config
	Quota      quota.Config
	Postgres   postgres.Config
	Attachment attachment.Config
	Completion completion.Config
	Title      title.Config
}

// ServerConfig contains HTTP server settings. Streaming responses clear the
// write timeout.
type ServerConfig struct {
	Port            int `env:"SERVER_PORT"             envDefault:"8080"`
	ReadTimeout     int `env:"SERVER_READ_TIMEOUT"     envDefault:"30"`
	WriteTimeout    int `env:"SERVER_WRITE_TIMEOUT"    envDefault:"30"`
	ShutdownTimeout int `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"15"`
}

// CORSConfig contains CORS policy settings.
type CORSConfig struct {
	AllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS"   envSeparator:"," envDefault:"*"`
	AllowedMethods   []string `env:"CORS_ALLOWED_METHODS"   envSeparator:"," envDefault:"GET,POST,PUT,DELETE,OPTIONS"`
	AllowedHeaders   []string `env:"CORS_ALLOWED_HEADERS"   envSeparator:"," envDefault:"Content-Type,Authorization"`
	AllowCredentials bool     `env:"CORS_ALLOW_CREDENTIALS"                  envDefault:"true"`
	MaxAge           int      `env:"CORS_MAX_AGE"                            envDefault:"86400"`
}

// ChainConfig orders the provider fallback chain by name.
type ChainConfig struct {
	ProviderOrder []string `env:"CHAIN_PROVIDER_ORDER" envSeparator:"," envDefault:"gemini,groq,openai"`
}

// DepConfig is used for dependency injection with dig.
type DepConfig struct {
	dig.Out

	Server     *ServerConfig
	CORS       *CORSConfig
	Chain      *ChainConfig
	Auth       *auth.Config
	OpenAI     *openai.Config
	Groq       *groq.Config
	Gemini     *gemini.Config
	Echo       *echo.Config
	Quota      *quota.Config
	Postgres   *postgres.Config
	Attachment *attachment.Config
	Completion *completion.Config
	Title      *title.Config
}

// Load loads environment files and parses configuration.
func Load() *Config {
	for _, file := range []string{".env"} {
		_ = godotenv.Load(file)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		panic(err)
	}

	return &cfg
}

// ParseDependenciesConfig returns pointers to sub-configs for dependency injection.
func ParseDependenciesConfig(cfg *Config) DepConfig {
	return DepConfig{
		Server:     &cfg.Server,
		CORS:       &cfg.CORS,
		Chain:      &cfg.Chain,
		Auth:       &cfg.Auth,
		OpenAI:     &cfg.OpenAI,
		Groq:       &cfg.Groq,
		Gemini:     &cfg.Gemini,
		Echo:       &cfg.Echo,
		Quota:      &cfg.Quota,
		Postgres:   &cfg.Postgres,
		Attachment: &cfg.Attachment,
		Completion: &cfg.Completion,
		Title:      &cfg.Title,
	}
}
