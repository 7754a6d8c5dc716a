// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	loadEnvFile()

	// Base config
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../../configs")
	viper.AddConfigPath(".")

	// Enable ENV override like LLM_API_KEY
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	// Environment-specific overrides, ignored when absent
	envConfigFile := fmt.Sprintf("config.%s", env)
	viper.SetConfigName(envConfigFile)
	_ = viper.MergeInConfig()

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadEnvFile tries .env from a few locations so tests running in nested
// package directories still pick it up.
func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
		"../../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// Find project root by looking for go.mod
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// expandEnvVars resolves ${VAR} placeholders in string values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		val := v.Get(key)

		if strVal, ok := val.(string); ok {
			if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
				expanded := os.ExpandEnv(strVal)
				if expanded != strVal && expanded != "" {
					v.Set(key, expanded)
				}
			}
		}
	}
}

// overrideEmptyConfig fills secrets from the environment when the config
// file left them empty.
func overrideEmptyConfig(cfg *Config) {
	if cfg.LLM.APIKey == "" {
		if val := os.Getenv("LLM_API_KEY"); val != "" {
			cfg.LLM.APIKey = val
		}
	}
	if cfg.LLM.BaseURL == "" {
		if val := os.Getenv("LLM_BASE_URL"); val != "" {
			cfg.LLM.BaseURL = val
		}
	}

	if cfg.Database.Postgres.User == "" {
		if val := os.Getenv("DB_USER"); val != "" {
			cfg.Database.Postgres.User = val
		}
	}
	if cfg.Database.Postgres.Password == "" {
		if val := os.Getenv("DB_PASSWORD"); val != "" {
			cfg.Database.Postgres.Password = val
		}
	}
	if cfg.Database.Redis.Password == "" {
		if val := os.Getenv("REDIS_PASSWORD"); val != "" {
			cfg.Database.Redis.Password = val
		}
	}
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	// Database defaults
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}

	if cfg.Database.Elasticsearch.URL == "" && len(cfg.Database.Elasticsearch.Addresses) > 0 {
		cfg.Database.Elasticsearch.URL = cfg.Database.Elasticsearch.Addresses[0]
	}

	// LLM defaults (LM Studio local endpoint)
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "http://localhost:1234/v1"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "mistral-7b-instruct-v0.3"
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = 60000
	}
	if cfg.LLM.JSONTemperature == 0 {
		cfg.LLM.JSONTemperature = 0.3
	}
	if cfg.LLM.ChatTemperature == 0 {
		cfg.LLM.ChatTemperature = 0.4
	}
	if cfg.LLM.QueryMaxTokens == 0 {
		cfg.LLM.QueryMaxTokens = 300
	}
	if cfg.LLM.SummaryMaxTokens == 0 {
		cfg.LLM.SummaryMaxTokens = 200
	}
	if cfg.LLM.ConversationTokens == 0 {
		cfg.LLM.ConversationTokens = 500
	}

	// Market data defaults
	if cfg.Market.NSESearchURL == "" {
		cfg.Market.NSESearchURL = "https://www.nseindia.com/api/search/autocomplete"
	}
	if cfg.Market.YahooQuoteURL == "" {
		cfg.Market.YahooQuoteURL = "https://query1.finance.yahoo.com/v10/finance/quoteSummary"
	}
	if cfg.Market.MFApiURL == "" {
		cfg.Market.MFApiURL = "https://api.mfapi.in"
	}
	if cfg.Market.Timeout == 0 {
		cfg.Market.Timeout = 10000
	}
	if cfg.Market.MaxRetries == 0 {
		cfg.Market.MaxRetries = 3
	}
	if cfg.Market.FundListCacheDir == "" {
		cfg.Market.FundListCacheDir = "data"
	}
	if cfg.Market.FundListCacheTTL == 0 {
		cfg.Market.FundListCacheTTL = 86400
	}
	if cfg.Market.TopFundsLimit == 0 {
		cfg.Market.TopFundsLimit = 10
	}

	// Knowledge retriever defaults
	if cfg.Knowledge.DocsDir == "" {
		cfg.Knowledge.DocsDir = "data/knowledge"
	}
	if cfg.Knowledge.ChunkSize == 0 {
		cfg.Knowledge.ChunkSize = 400
	}
	if cfg.Knowledge.ChunkOverlap == 0 {
		cfg.Knowledge.ChunkOverlap = 100
	}
	if cfg.Knowledge.TopK == 0 {
		cfg.Knowledge.TopK = 3
	}
	if cfg.Knowledge.IndexName == "" {
		cfg.Knowledge.IndexName = "finchat-knowledge"
	}

	// Validation limits
	if cfg.Limits.SIPMinAmount == 0 {
		cfg.Limits.SIPMinAmount = 100
	}
	if cfg.Limits.SIPMaxAmount == 0 {
		cfg.Limits.SIPMaxAmount = 1000000
	}
	if cfg.Limits.SIPMaxYears == 0 {
		cfg.Limits.SIPMaxYears = 50
	}
	if cfg.Limits.EMIMinLoan == 0 {
		cfg.Limits.EMIMinLoan = 50000
	}
	if cfg.Limits.EMIMaxLoan == 0 {
		cfg.Limits.EMIMaxLoan = 100000000
	}
	if cfg.Limits.EMIMinInterest == 0 {
		cfg.Limits.EMIMinInterest = 1
	}
	if cfg.Limits.EMIMaxInterest == 0 {
		cfg.Limits.EMIMaxInterest = 30
	}
	if cfg.Limits.EMIMaxTenure == 0 {
		cfg.Limits.EMIMaxTenure = 30
	}
	if cfg.Limits.MinAge == 0 {
		cfg.Limits.MinAge = 18
	}
	if cfg.Limits.MaxAge == 0 {
		cfg.Limits.MaxAge = 80
	}
	if cfg.Limits.MinRetirementAge == 0 {
		cfg.Limits.MinRetirementAge = 30
	}
	if cfg.Limits.MaxRetirementAge == 0 {
		cfg.Limits.MaxRetirementAge = 100
	}
	if cfg.Limits.MinInvestment == 0 {
		cfg.Limits.MinInvestment = 1000
	}
	if cfg.Limits.MaxInvestment == 0 {
		cfg.Limits.MaxInvestment = 100000000
	}
	if cfg.Limits.MinMonthlyExpense == 0 {
		cfg.Limits.MinMonthlyExpense = 1000
	}
	if cfg.Limits.MaxMonthlyExpense == 0 {
		cfg.Limits.MaxMonthlyExpense = 1000000
	}

	// Calculation defaults
	if cfg.Defaults.SIPReturn == 0 {
		cfg.Defaults.SIPReturn = 0.12
	}
	if cfg.Defaults.SIPYears == 0 {
		cfg.Defaults.SIPYears = 10
	}
	if cfg.Defaults.EMIInterest == 0 {
		cfg.Defaults.EMIInterest = 8.5
	}
	if cfg.Defaults.EMITenureYears == 0 {
		cfg.Defaults.EMITenureYears = 20
	}
	if cfg.Defaults.Inflation == 0 {
		cfg.Defaults.Inflation = 0.06
	}
	if cfg.Defaults.PostRetirementRate == 0 {
		cfg.Defaults.PostRetirementRate = 0.04
	}
	if cfg.Defaults.PostRetirementYears == 0 {
		cfg.Defaults.PostRetirementYears = 25
	}
	if cfg.Defaults.RetirementAge == 0 {
		cfg.Defaults.RetirementAge = 60
	}

	// Cache TTL defaults (seconds)
	if cfg.Cache.StockTTL == 0 {
		cfg.Cache.StockTTL = 300
	}
	if cfg.Cache.FundTTL == 0 {
		cfg.Cache.FundTTL = 3600
	}
	if cfg.Cache.NegativeTTL == 0 {
		cfg.Cache.NegativeTTL = 3600
	}
	if cfg.Cache.ProfileTTL == 0 {
		cfg.Cache.ProfileTTL = 1800
	}

	// Metrics defaults
	if cfg.Metrics.ListenAddress == "" {
		cfg.Metrics.ListenAddress = ":9102"
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if cfg.LLM.BaseURL == "" {
		return fmt.Errorf("llm.base_url is required")
	}

	if cfg.Limits.SIPMinAmount >= cfg.Limits.SIPMaxAmount {
		return fmt.Errorf("limits.sip_min_amount must be below limits.sip_max_amount")
	}
	if cfg.Limits.EMIMinLoan >= cfg.Limits.EMIMaxLoan {
		return fmt.Errorf("limits.emi_min_loan must be below limits.emi_max_loan")
	}
	if cfg.Limits.MinAge >= cfg.Limits.MaxAge {
		return fmt.Errorf("limits.min_age must be below limits.max_age")
	}

	if cfg.Knowledge.ChunkOverlap >= cfg.Knowledge.ChunkSize {
		return fmt.Errorf("knowledge.chunk_overlap must be below knowledge.chunk_size")
	}

	if cfg.Database.Elasticsearch.Enabled &&
		len(cfg.Database.Elasticsearch.Addresses) == 0 && cfg.Database.Elasticsearch.URL == "" {
		return fmt.Errorf("database.elasticsearch.addresses or url is required when enabled")
	}

	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// TTL converts seconds from config to time.Duration
func TTL(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}
