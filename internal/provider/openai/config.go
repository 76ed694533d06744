package openai

// Config contains OpenAI provider configuration.
// Connection fields map to SDK options:
//   - APIKey: option.WithAPIKey(); empty leaves the adapter unavailable
//   - BaseURL: option.WithBaseURL()
//   - Timeout: option.WithRequestTimeout() (in seconds)
//   - MaxRetries: option.WithMaxRetries()
//
// The model fields drive tier selection.
type Config struct {
	APIKey     string `env:"OPENAI_API_KEY"`
	BaseURL    string `env:"OPENAI_BASE_URL"    envDefault:"https://api.openai.com/v1"`
	Timeout    int    `env:"OPENAI_TIMEOUT"     envDefault:"60"`
	MaxRetries int    `env:"OPENAI_MAX_RETRIES" envDefault:"1"`

	DefaultModel     string `env:"OPENAI_MODEL_DEFAULT"     envDefault:"gpt-4o-mini"`
	UpgradedModel    string `env:"OPENAI_MODEL_UPGRADED"    envDefault:"gpt-4o"`
	PremiumModel     string `env:"OPENAI_MODEL_PREMIUM"     envDefault:"gpt-4.1"`
	UpgradeThreshold int    `env:"OPENAI_UPGRADE_THRESHOLD" envDefault:"2000"`
}
