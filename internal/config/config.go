// Package config loads icoctl settings from flags, environment, a config file
// and an optional .env file, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"solana-token-sale/internal/eligibility"
	"solana-token-sale/internal/icoprogram"
	solrpc "solana-token-sale/internal/solana"
)

// EnvPrefix is prepended to every environment variable, e.g. ICO_RPC_ENDPOINT.
const EnvPrefix = "ICO"

// Config is the resolved configuration.
type Config struct {
	RPCEndpoint string `mapstructure:"rpc_endpoint"`
	WSEndpoint  string `mapstructure:"ws_endpoint"`
	Commitment  string `mapstructure:"commitment"`

	ProgramID     string `mapstructure:"program_id"`
	Mint          string `mapstructure:"mint"`
	ExpectedAdmin string `mapstructure:"expected_admin"`

	// PricePerToken is lamports per whole token, as a decimal string.
	PricePerToken string `mapstructure:"price_per_token"`
	MaxUserTotal  uint64 `mapstructure:"max_user_total"`
	TokenDecimals int32  `mapstructure:"token_decimals"`
	FeeReserve    uint64 `mapstructure:"fee_reserve"`

	KeypairPath    string        `mapstructure:"keypair_path"`
	ConfirmTimeout time.Duration `mapstructure:"confirm_timeout"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`

	PostgresDSN   string `mapstructure:"postgres_dsn"`
	ClickhouseDSN string `mapstructure:"clickhouse_dsn"`
	UseMemory     bool   `mapstructure:"use_memory"`

	MetricsAddr string `mapstructure:"metrics_addr"`
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"`
}

var defaultConfig = Config{
	Commitment:     string(solrpc.CommitmentConfirmed),
	PricePerToken:  "1000000",
	MaxUserTotal:   icoprogram.DefaultMaxUserTotal,
	TokenDecimals:  icoprogram.DefaultTokenDecimals,
	FeeReserve:     icoprogram.DefaultFeeReserve,
	ConfirmTimeout: 60 * time.Second,
	PollInterval:   5 * time.Second,
	MetricsAddr:    ":9090",
	LogLevel:       "info",
	LogFormat:      "text",
}

// legacyEnv maps keys to unprefixed variables that are also honored.
var legacyEnv = map[string]string{
	"rpc_endpoint":   "SOLANA_RPC_ENDPOINT",
	"ws_endpoint":    "SOLANA_WS_ENDPOINT",
	"postgres_dsn":   "POSTGRES_DSN",
	"clickhouse_dsn": "CLICKHOUSE_DSN",
}

// New returns a viper instance with defaults and environment bindings for
// every key. Callers bind flags on it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	v.SetDefault("rpc_endpoint", defaultConfig.RPCEndpoint)
	v.SetDefault("ws_endpoint", defaultConfig.WSEndpoint)
	v.SetDefault("commitment", defaultConfig.Commitment)
	v.SetDefault("program_id", defaultConfig.ProgramID)
	v.SetDefault("mint", defaultConfig.Mint)
	v.SetDefault("expected_admin", defaultConfig.ExpectedAdmin)
	v.SetDefault("price_per_token", defaultConfig.PricePerToken)
	v.SetDefault("max_user_total", defaultConfig.MaxUserTotal)
	v.SetDefault("token_decimals", defaultConfig.TokenDecimals)
	v.SetDefault("fee_reserve", defaultConfig.FeeReserve)
	v.SetDefault("keypair_path", defaultConfig.KeypairPath)
	v.SetDefault("confirm_timeout", defaultConfig.ConfirmTimeout)
	v.SetDefault("poll_interval", defaultConfig.PollInterval)
	v.SetDefault("postgres_dsn", defaultConfig.PostgresDSN)
	v.SetDefault("clickhouse_dsn", defaultConfig.ClickhouseDSN)
	v.SetDefault("use_memory", defaultConfig.UseMemory)
	v.SetDefault("metrics_addr", defaultConfig.MetricsAddr)
	v.SetDefault("log_level", defaultConfig.LogLevel)
	v.SetDefault("log_format", defaultConfig.LogFormat)

	for key, env := range legacyEnv {
		_ = v.BindEnv(key, EnvPrefix+"_"+strings.ToUpper(key), env)
	}
	return v
}

// LoadEnvFile exports variables from path that are not already set.
// A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// Load reads configFile, if given, and unmarshals v.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	cfg := defaultConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// ValidateRead checks the settings every command needs.
func (c *Config) ValidateRead() error {
	var errs []error
	if c.RPCEndpoint == "" {
		errs = append(errs, errors.New("rpc_endpoint is required"))
	}
	if _, err := parseKey("program_id", c.ProgramID); err != nil {
		errs = append(errs, err)
	}
	if _, err := parseKey("mint", c.Mint); err != nil {
		errs = append(errs, err)
	}
	if c.ExpectedAdmin != "" {
		if _, err := parseKey("expected_admin", c.ExpectedAdmin); err != nil {
			errs = append(errs, err)
		}
	}
	if _, err := c.Eligibility(); err != nil {
		errs = append(errs, err)
	}
	if c.TokenDecimals < 0 || c.TokenDecimals > 19 {
		errs = append(errs, fmt.Errorf("token_decimals %d out of range", c.TokenDecimals))
	}
	if _, err := c.CommitmentLevel(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Validate checks everything ValidateRead does plus the signing and
// storage settings.
func (c *Config) Validate() error {
	errs := []error{c.ValidateRead()}
	if c.KeypairPath == "" {
		errs = append(errs, errors.New("keypair_path is required"))
	}
	if c.ConfirmTimeout <= 0 {
		errs = append(errs, errors.New("confirm_timeout must be positive"))
	}
	if !c.UseMemory && (c.PostgresDSN == "" || c.ClickhouseDSN == "") {
		errs = append(errs, errors.New("postgres_dsn and clickhouse_dsn are required unless use_memory is set"))
	}
	return errors.Join(errs...)
}

// ProgramKey returns the sale program id.
func (c *Config) ProgramKey() (solana.PublicKey, error) {
	return parseKey("program_id", c.ProgramID)
}

// MintKey returns the sale token mint.
func (c *Config) MintKey() (solana.PublicKey, error) {
	return parseKey("mint", c.Mint)
}

// ExpectedAdminKey returns the preferred sale admin, zero if unset.
func (c *Config) ExpectedAdminKey() (solana.PublicKey, error) {
	if c.ExpectedAdmin == "" {
		return solana.PublicKey{}, nil
	}
	return parseKey("expected_admin", c.ExpectedAdmin)
}

// CommitmentLevel returns the configured commitment.
func (c *Config) CommitmentLevel() (solrpc.Commitment, error) {
	switch level := solrpc.Commitment(c.Commitment); level {
	case solrpc.CommitmentProcessed, solrpc.CommitmentConfirmed, solrpc.CommitmentFinalized:
		return level, nil
	default:
		return "", fmt.Errorf("unknown commitment %q", c.Commitment)
	}
}

// Eligibility returns the validation limits.
func (c *Config) Eligibility() (eligibility.Config, error) {
	price, err := decimal.NewFromString(c.PricePerToken)
	if err != nil {
		return eligibility.Config{}, fmt.Errorf("price_per_token: %w", err)
	}
	if !price.IsPositive() {
		return eligibility.Config{}, fmt.Errorf("price_per_token must be positive, got %s", price)
	}
	if c.MaxUserTotal == 0 {
		return eligibility.Config{}, errors.New("max_user_total must be positive")
	}
	return eligibility.Config{
		PricePerToken: price,
		MaxUserTotal:  c.MaxUserTotal,
		FeeReserve:    c.FeeReserve,
	}, nil
}

func parseKey(name, value string) (solana.PublicKey, error) {
	if value == "" {
		return solana.PublicKey{}, fmt.Errorf("%s is required", name)
	}
	key, err := solana.PublicKeyFromBase58(value)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%s: %w", name, err)
	}
	return key, nil
}
