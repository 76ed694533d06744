package groq

// Config contains Groq provider configuration.
// Groq serves the OpenAI chat completions API, so the connection fields map
// to the same SDK options as the OpenAI provider.
type Config struct {
	APIKey     string `env:"GROQ_API_KEY"`
	BaseURL    string `env:"GROQ_BASE_URL"    envDefault:"https://api.groq.com/openai/v1"`
	Timeout    int    `env:"GROQ_TIMEOUT"     envDefault:"30"`
	MaxRetries int    `env:"GROQ_MAX_RETRIES" envDefault:"1"`

	DefaultModel     string `env:"GROQ_MODEL_DEFAULT"     envDefault:"llama-3.1-8b-instant"`
	UpgradedModel    string `env:"GROQ_MODEL_UPGRADED"    envDefault:"llama-3.3-70b-versatile"`
	PremiumModel     string `env:"GROQ_MODEL_PREMIUM"     envDefault:"openai/gpt-oss-120b"`
	UpgradeThreshold int    `env:"GROQ_UPGRADE_THRESHOLD" envDefault:"1200"`
}
