// Package config loads settings from an optional invoicepay.yaml and the
// environment. Environment variables win over the file.
package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"invoicepay/internal/allocation"
	"invoicepay/internal/logger"
	"invoicepay/internal/reconciliation"
	"invoicepay/internal/sheets"
)

type Config struct {
	// Google Sheets Configuration
	Spreadsheet        string `mapstructure:"spreadsheet"`
	CredentialsFile    string `mapstructure:"credentials_file"`
	CredentialsJSON    string `mapstructure:"credentials_json"`
	ServiceAccountMail string `mapstructure:"service_account_email"`
	PrivateKey         string `mapstructure:"private_key"`

	// Transaction channels, name -> sheet
	ChannelSheets map[string]string `mapstructure:"channels"`

	// Allocation Configuration
	DepositAccount string `mapstructure:"deposit_account"`
	Tolerance      string `mapstructure:"tolerance"`

	// HTTP Configuration
	Port int `mapstructure:"port"`

	// OpenAI Configuration
	OpenAIAPIKey string `mapstructure:"openai_api_key"`
	OpenAIModel  string `mapstructure:"openai_model"`

	// Logging Configuration
	LogLevel      string `mapstructure:"log_level"`
	LogFormat     string `mapstructure:"log_format"`
	LogTimeFormat string `mapstructure:"log_time_format"`
	LogOutput     string `mapstructure:"log_output"`
}

// envBindings maps config keys to the environment variables that set them,
// in order of precedence.
var envBindings = map[string][]string{
	"spreadsheet":           {"SPREADSHEET_ID", "GOOGLE_SHEET_URL"},
	"credentials_file":      {"GOOGLE_APPLICATION_CREDENTIALS"},
	"credentials_json":      {"GOOGLE_CREDENTIALS"},
	"service_account_email": {"GOOGLE_SERVICE_ACCOUNT_EMAIL"},
	"private_key":           {"GOOGLE_PRIVATE_KEY"},
	"deposit_account":       {"DEPOSIT_ACCOUNT_NAME"},
	"tolerance":             {"ALLOCATION_TOLERANCE"},
	"port":                  {"PORT"},
	"openai_api_key":        {"OPENAI_API_KEY"},
	"openai_model":          {"OPENAI_MODEL"},
	"log_level":             {"LOG_LEVEL"},
	"log_format":            {"LOG_FORMAT"},
	"log_time_format":       {"LOG_TIME_FORMAT"},
	"log_output":            {"LOG_OUTPUT"},
}

// Load reads invoicepay.yaml from the working directory or
// $HOME/.invoicepay when present, then applies the environment.
func Load() (*Config, error) {
	v := newViper()
	v.SetConfigName("invoicepay")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.invoicepay")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file %s: %w", v.ConfigFileUsed(), err)
		}
	}
	return build(v)
}

// LoadFile is Load with an explicit config file.
func LoadFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return build(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for key, envs := range envBindings {
		// BindEnv only fails without a key.
		_ = v.BindEnv(append([]string{key}, envs...)...)
	}
	return v
}

func setDefaults(v *viper.Viper) {
	channels := make(map[string]string)
	for _, ch := range reconciliation.DefaultChannels() {
		channels[ch.Name] = ch.Sheet
	}
	v.SetDefault("channels", channels)

	v.SetDefault("deposit_account", allocation.DefaultDepositAccount)
	v.SetDefault("tolerance", "1")
	v.SetDefault("port", 5000)
	v.SetDefault("openai_model", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	v.SetDefault("log_time_format", "2006-01-02T15:04:05Z07:00")
	v.SetDefault("log_output", "stdout")
}

func build(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) validate() error {
	if _, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel)); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL %q", c.LogLevel)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}
	tol, err := decimal.NewFromString(strings.TrimSpace(c.Tolerance))
	if err != nil || !tol.IsPositive() {
		return fmt.Errorf("ALLOCATION_TOLERANCE must be a positive number, got %q", c.Tolerance)
	}
	if strings.TrimSpace(c.DepositAccount) == "" {
		return fmt.Errorf("DEPOSIT_ACCOUNT_NAME must not be empty")
	}
	if len(c.ChannelSheets) == 0 {
		return fmt.Errorf("at least one transaction channel is required")
	}
	return nil
}

// RequireSpreadsheet reports an error when no spreadsheet is configured.
func (c *Config) RequireSpreadsheet() error {
	if c.Spreadsheet == "" {
		return fmt.Errorf("SPREADSHEET_ID or GOOGLE_SHEET_URL is required")
	}
	if c.SheetsCredentials().IsZero() {
		return fmt.Errorf("GOOGLE_APPLICATION_CREDENTIALS, GOOGLE_CREDENTIALS or GOOGLE_SERVICE_ACCOUNT_EMAIL with GOOGLE_PRIVATE_KEY is required")
	}
	return nil
}

// SheetsCredentials returns the service-account credentials.
func (c *Config) SheetsCredentials() sheets.Credentials {
	return sheets.Credentials{
		File:       c.CredentialsFile,
		JSON:       c.CredentialsJSON,
		Email:      c.ServiceAccountMail,
		PrivateKey: c.PrivateKey,
	}
}

// Channels returns the configured channels. The default channels keep their
// usual order and any extra ones follow sorted by name.
func (c *Config) Channels() []reconciliation.Channel {
	var out []reconciliation.Channel
	taken := make(map[string]bool)
	for _, ch := range reconciliation.DefaultChannels() {
		if sheet, ok := c.ChannelSheets[ch.Name]; ok && sheet != "" {
			out = append(out, reconciliation.Channel{Name: ch.Name, Sheet: sheet})
			taken[ch.Name] = true
		}
	}
	var extra []string
	for name, sheet := range c.ChannelSheets {
		if !taken[name] && sheet != "" {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	for _, name := range extra {
		out = append(out, reconciliation.Channel{Name: name, Sheet: c.ChannelSheets[name]})
	}
	return out
}

// AllocationOptions returns engine options for this configuration.
func (c *Config) AllocationOptions() allocation.Options {
	opts := allocation.DefaultOptions()
	opts.DepositAccount = c.DepositAccount
	if tol, err := decimal.NewFromString(strings.TrimSpace(c.Tolerance)); err == nil {
		opts.Tolerance = tol
	}
	return opts
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}
