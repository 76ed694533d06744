package gemini

// Config contains Gemini provider configuration.
// Timeout bounds non-streaming calls in seconds; streams are bounded by the
// request context and CompletionOptions.Timeout.
type Config struct {
	APIKey  string `env:"GEMINI_API_KEY"`
	BaseURL string `env:"GEMINI_BASE_URL" envDefault:"https://generativelanguage.googleapis.com/v1beta"`
	Timeout int    `env:"GEMINI_TIMEOUT"  envDefault:"60"`

	DefaultModel     string `env:"GEMINI_MODEL_DEFAULT"     envDefault:"gemini-2.0-flash-lite"`
	UpgradedModel    string `env:"GEMINI_MODEL_UPGRADED"    envDefault:"gemini-2.0-flash"`
	PremiumModel     string `env:"GEMINI_MODEL_PREMIUM"     envDefault:"gemini-2.5-pro"`
	UpgradeThreshold int    `env:"GEMINI_UPGRADE_THRESHOLD" envDefault:"4000"`
}
