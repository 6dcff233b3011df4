package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Provider and sink identifiers
const (
	LLMProviderOpenAI  = "openai"
	LLMProviderBedrock = "bedrock"

	MarketDataYahoo  = "yahoo"
	MarketDataAlpaca = "alpaca"

	NewsProviderTavily  = "tavily"
	NewsProviderNewsAPI = "newsapi"

	SinkSheets   = "sheets"
	SinkPostgres = "postgres"
)

// MaxTopN is the most forecasts a run may rank and write
const MaxTopN = 5

// MinLookbackDays is the shortest price window the forecast prompt is built from
const MinLookbackDays = 30

// Config holds all application configuration
type Config struct {
	// Database configuration
	Database DatabaseConfig

	// Language model configuration
	LLM LLMConfig
	AWS AWSConfig

	// Data provider configurations
	MarketData MarketDataConfig
	Alpaca     AlpacaConfig
	News       NewsConfig

	// Output configuration
	Output OutputConfig

	// Pipeline configuration
	Pipeline PipelineConfig

	// HTTP configuration
	HTTP HTTPConfig

	// Logging and tracing
	Log LogConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	URL string
}

// LLMConfig holds the OpenAI-compatible chat completion configuration
type LLMConfig struct {
	Provider  string
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

// AWSConfig holds AWS Bedrock configuration
type AWSConfig struct {
	Region           string
	BedrockModelID   string
	BedrockMaxTokens int
	AnthropicVersion string
}

// MarketDataConfig holds price history configuration
type MarketDataConfig struct {
	Provider     string
	YahooBaseURL string
	LookbackDays int
}

// AlpacaConfig holds Alpaca API configuration
type AlpacaConfig struct {
	APIKey    string
	APISecret string
}

// NewsConfig holds news and macro search configuration
type NewsConfig struct {
	Provider       string
	TavilyAPIKey   string
	TavilyBaseURL  string
	NewsAPIKey     string
	NewsAPIBaseURL string
}

// OutputConfig holds results sink configuration
type OutputConfig struct {
	Sink            string
	Destination     string // default destination, e.g. a Google Sheet ID
	CredentialsFile string
	SheetsEndpoint  string // overrides the Sheets API endpoint (tests)
}

// PipelineConfig holds pipeline run configuration
type PipelineConfig struct {
	StateDir             string
	ConcurrencyLimit     int
	TopN                 int
	TickerTimeoutSeconds int
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	Addr               string
	CORSAllowedOrigins string
	TimeoutSeconds     int
}

// LogConfig holds logging and tracing configuration
type LogConfig struct {
	Level          string
	Format         string
	TracingEnabled bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		LLM: LLMConfig{
			Provider:  strings.ToLower(getEnvString("LLM_PROVIDER", LLMProviderOpenAI)),
			APIKey:    firstEnv("LLM_API_KEY", "DEEPSEEK_API_KEY", "OPENAI_API_KEY"),
			BaseURL:   getEnvString("LLM_BASE_URL", "https://api.deepseek.com"),
			Model:     getEnvString("LLM_MODEL", "deepseek-reasoner"),
			MaxTokens: getEnvInt("LLM_MAX_TOKENS", 4096),
		},
		AWS: AWSConfig{
			Region:           os.Getenv("AWS_REGION"),
			BedrockModelID:   os.Getenv("BEDROCK_MODEL_ID"),
			BedrockMaxTokens: getEnvInt("BEDROCK_MAX_TOKENS", 4096),
			AnthropicVersion: getEnvString("BEDROCK_ANTHROPIC_VERSION", "bedrock-2023-05-31"),
		},
		MarketData: MarketDataConfig{
			Provider:     strings.ToLower(getEnvString("MARKET_DATA_PROVIDER", MarketDataYahoo)),
			YahooBaseURL: getEnvString("YAHOO_BASE_URL", "https://query1.finance.yahoo.com"),
			LookbackDays: getEnvInt("PRICE_LOOKBACK_DAYS", MinLookbackDays),
		},
		Alpaca: AlpacaConfig{
			APIKey:    os.Getenv("ALPACA_API_KEY"),
			APISecret: os.Getenv("ALPACA_API_SECRET"),
		},
		News: NewsConfig{
			Provider:       strings.ToLower(getEnvString("NEWS_PROVIDER", NewsProviderTavily)),
			TavilyAPIKey:   os.Getenv("TAVILY_API_KEY"),
			TavilyBaseURL:  getEnvString("TAVILY_BASE_URL", "https://api.tavily.com"),
			NewsAPIKey:     os.Getenv("NEWS_API_KEY"),
			NewsAPIBaseURL: getEnvString("NEWS_API_BASE_URL", "https://newsapi.org/v2"),
		},
		Output: OutputConfig{
			Sink:            strings.ToLower(getEnvString("OUTPUT_SINK", SinkSheets)),
			Destination:     os.Getenv("GOOGLE_SHEET_ID"),
			CredentialsFile: getEnvString("GOOGLE_CREDENTIALS_FILE", "service_account.json"),
			SheetsEndpoint:  os.Getenv("SHEETS_ENDPOINT"),
		},
		Pipeline: PipelineConfig{
			StateDir:             getEnvString("PIPELINE_STATE_DIR", "pipeline_state"),
			ConcurrencyLimit:     getEnvInt("CONCURRENCY_LIMIT", 5),
			TopN:                 getEnvInt("TOP_N", 5),
			TickerTimeoutSeconds: getEnvInt("TICKER_TIMEOUT_SECONDS", 120),
		},
		HTTP: HTTPConfig{
			Addr:               getEnvString("HTTP_ADDR", ":8080"),
			CORSAllowedOrigins: getEnvString("CORS_ALLOWED_ORIGINS", "*"),
			TimeoutSeconds:     getEnvInt("HTTP_TIMEOUT_SECONDS", 600),
		},
		Log: LogConfig{
			Level:          strings.ToLower(getEnvString("LOG_LEVEL", "info")),
			Format:         strings.ToLower(getEnvString("LOG_FORMAT", "text")),
			TracingEnabled: getEnvBool("TRACING_ENABLED", false),
		},
	}

	if cfg.MarketData.LookbackDays < MinLookbackDays {
		cfg.MarketData.LookbackDays = MinLookbackDays
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case LLMProviderOpenAI, LLMProviderBedrock:
	default:
		return fmt.Errorf("LLM_PROVIDER must be %q or %q, got %q", LLMProviderOpenAI, LLMProviderBedrock, c.LLM.Provider)
	}

	switch c.MarketData.Provider {
	case MarketDataYahoo, MarketDataAlpaca:
	default:
		return fmt.Errorf("MARKET_DATA_PROVIDER must be %q or %q, got %q", MarketDataYahoo, MarketDataAlpaca, c.MarketData.Provider)
	}

	switch c.News.Provider {
	case NewsProviderTavily, NewsProviderNewsAPI:
	default:
		return fmt.Errorf("NEWS_PROVIDER must be %q or %q, got %q", NewsProviderTavily, NewsProviderNewsAPI, c.News.Provider)
	}

	switch c.Output.Sink {
	case SinkSheets, SinkPostgres:
	default:
		return fmt.Errorf("OUTPUT_SINK must be %q or %q, got %q", SinkSheets, SinkPostgres, c.Output.Sink)
	}

	if c.Output.Sink == SinkPostgres && !c.HasDatabase() {
		return fmt.Errorf("OUTPUT_SINK=postgres requires DATABASE_URL")
	}

	// Validate positive integers
	if c.Pipeline.ConcurrencyLimit <= 0 {
		return fmt.Errorf("CONCURRENCY_LIMIT must be positive, got %d", c.Pipeline.ConcurrencyLimit)
	}
	if c.Pipeline.TopN <= 0 || c.Pipeline.TopN > MaxTopN {
		return fmt.Errorf("TOP_N must be between 1 and %d, got %d", MaxTopN, c.Pipeline.TopN)
	}
	if c.Pipeline.TickerTimeoutSeconds <= 0 {
		return fmt.Errorf("TICKER_TIMEOUT_SECONDS must be positive, got %d", c.Pipeline.TickerTimeoutSeconds)
	}
	if c.MarketData.LookbackDays < MinLookbackDays {
		return fmt.Errorf("PRICE_LOOKBACK_DAYS must be at least %d, got %d", MinLookbackDays, c.MarketData.LookbackDays)
	}

	return nil
}

// HasDatabase returns true if database configuration is available
func (c *Config) HasDatabase() bool {
	return c.Database.URL != ""
}

// HasLLM returns true if the selected language model provider is configured
func (c *Config) HasLLM() bool {
	if c.LLM.Provider == LLMProviderBedrock {
		return c.AWS.Region != "" && c.AWS.BedrockModelID != ""
	}
	return c.LLM.APIKey != ""
}

// HasAlpaca returns true if Alpaca configuration is available
func (c *Config) HasAlpaca() bool {
	return c.Alpaca.APIKey != "" && c.Alpaca.APISecret != ""
}

// HasNews returns true if the selected news provider is configured
func (c *Config) HasNews() bool {
	if c.News.Provider == NewsProviderNewsAPI {
		return c.News.NewsAPIKey != ""
	}
	return c.News.TavilyAPIKey != ""
}

func getEnvString(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}

// firstEnv returns the first non-empty value among keys
func firstEnv(keys ...string) string {
	for _, key := range keys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	return ""
}

func getEnvInt(key string, defaultValue int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// NewTestConfig creates a Config with default values for testing
func NewTestConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			URL: "",
		},
		LLM: LLMConfig{
			Provider:  LLMProviderOpenAI,
			APIKey:    "",
			BaseURL:   "https://api.deepseek.com",
			Model:     "deepseek-reasoner",
			MaxTokens: 4096,
		},
		AWS: AWSConfig{
			BedrockMaxTokens: 4096,
			AnthropicVersion: "bedrock-2023-05-31",
		},
		MarketData: MarketDataConfig{
			Provider:     MarketDataYahoo,
			YahooBaseURL: "https://query1.finance.yahoo.com",
			LookbackDays: MinLookbackDays,
		},
		News: NewsConfig{
			Provider:       NewsProviderTavily,
			TavilyBaseURL:  "https://api.tavily.com",
			NewsAPIBaseURL: "https://newsapi.org/v2",
		},
		Output: OutputConfig{
			Sink:            SinkSheets,
			CredentialsFile: "service_account.json",
		},
		Pipeline: PipelineConfig{
			StateDir:             "pipeline_state",
			ConcurrencyLimit:     5,
			TopN:                 5,
			TickerTimeoutSeconds: 120,
		},
		HTTP: HTTPConfig{
			Addr:               ":8080",
			CORSAllowedOrigins: "*",
			TimeoutSeconds:     600,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
