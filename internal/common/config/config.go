// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Database  DatabaseConfig  `mapstructure:"database"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Market    MarketConfig    `mapstructure:"market"`
	Knowledge KnowledgeConfig `mapstructure:"knowledge"`
	Router    RouterConfig    `mapstructure:"router"`
	Limits    LimitsConfig    `mapstructure:"limits"`
	Defaults  DefaultsConfig  `mapstructure:"defaults"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Enabled    bool     `mapstructure:"enabled"`
	Addresses  []string `mapstructure:"addresses"`
	Username   string   `mapstructure:"username"`
	Password   string   `mapstructure:"password"`
	SSLEnabled bool     `mapstructure:"ssl_enabled"`
	URL        string   `mapstructure:"url"`
}

// GetURL returns the first address or the URL field
func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// --- LLM Config ---

// LLMConfig targets an OpenAI-compatible chat completions endpoint
// (LM Studio locally, any hosted gateway otherwise).
type LLMConfig struct {
	BaseURL             string  `mapstructure:"base_url"`
	APIKey              string  `mapstructure:"api_key"`
	Model               string  `mapstructure:"model"`
	Timeout             int     `mapstructure:"timeout"` // milliseconds
	JSONTemperature     float64 `mapstructure:"json_temperature"`
	ChatTemperature     float64 `mapstructure:"chat_temperature"`
	QueryMaxTokens      int     `mapstructure:"query_max_tokens"`
	SummaryMaxTokens    int     `mapstructure:"summary_max_tokens"`
	ConversationTokens  int     `mapstructure:"conversation_max_tokens"`
}

// --- Market Data Config ---
type MarketConfig struct {
	NSESearchURL     string `mapstructure:"nse_search_url"`
	YahooQuoteURL    string `mapstructure:"yahoo_quote_url"`
	MFApiURL         string `mapstructure:"mfapi_url"`
	Timeout          int    `mapstructure:"timeout"` // milliseconds
	MaxRetries       int    `mapstructure:"max_retries"`
	FundListCacheDir string `mapstructure:"fund_list_cache_dir"`
	FundListCacheTTL int    `mapstructure:"fund_list_cache_ttl"` // seconds
	TopFundsLimit    int    `mapstructure:"top_funds_limit"`
}

// --- Knowledge Retriever Config ---
type KnowledgeConfig struct {
	DocsDir      string `mapstructure:"docs_dir"`
	ChunkSize    int    `mapstructure:"chunk_size"`
	ChunkOverlap int    `mapstructure:"chunk_overlap"`
	TopK         int    `mapstructure:"top_k"`
	IndexName    string `mapstructure:"index_name"`
}

// --- Router Config ---
type RouterConfig struct {
	// StrictBounds turns silent detector declines on out-of-range values
	// into explicit validation errors.
	StrictBounds bool `mapstructure:"strict_bounds"`
}

// --- Validation Limits ---
type LimitsConfig struct {
	SIPMinAmount      float64 `mapstructure:"sip_min_amount"`
	SIPMaxAmount      float64 `mapstructure:"sip_max_amount"`
	SIPMaxYears       int     `mapstructure:"sip_max_years"`
	EMIMinLoan        float64 `mapstructure:"emi_min_loan"`
	EMIMaxLoan        float64 `mapstructure:"emi_max_loan"`
	EMIMinInterest    float64 `mapstructure:"emi_min_interest"`
	EMIMaxInterest    float64 `mapstructure:"emi_max_interest"`
	EMIMaxTenure      int     `mapstructure:"emi_max_tenure"`
	MinAge            int     `mapstructure:"min_age"`
	MaxAge            int     `mapstructure:"max_age"`
	MinRetirementAge  int     `mapstructure:"min_retirement_age"`
	MaxRetirementAge  int     `mapstructure:"max_retirement_age"`
	MinInvestment     float64 `mapstructure:"min_investment"`
	MaxInvestment     float64 `mapstructure:"max_investment"`
	MinMonthlyExpense float64 `mapstructure:"min_monthly_expense"`
	MaxMonthlyExpense float64 `mapstructure:"max_monthly_expense"`
}

// --- Calculation Defaults ---
type DefaultsConfig struct {
	SIPReturn           float64 `mapstructure:"sip_return"`
	SIPYears            int     `mapstructure:"sip_years"`
	EMIInterest         float64 `mapstructure:"emi_interest"`
	EMITenureYears      int     `mapstructure:"emi_tenure_years"`
	Inflation           float64 `mapstructure:"inflation"`
	PostRetirementRate  float64 `mapstructure:"post_retirement_rate"`
	PostRetirementYears int     `mapstructure:"post_retirement_years"`
	RetirementAge       int     `mapstructure:"retirement_age"`
}

// --- Cache TTLs (seconds) ---
type CacheConfig struct {
	StockTTL    int `mapstructure:"stock_ttl"`
	FundTTL     int `mapstructure:"fund_ttl"`
	NegativeTTL int `mapstructure:"negative_ttl"`
	ProfileTTL  int `mapstructure:"profile_ttl"`
}

// --- Metrics ---
type MetricsConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	ListenAddress string `mapstructure:"listen_address"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
