package config

import (
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Log      LogConfig      `mapstructure:"log"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Identity IdentityConfig `mapstructure:"identity"`
	Wallet   WalletConfig   `mapstructure:"wallet"`
	Chain    ChainConfig    `mapstructure:"chain"`
	Poll     PollConfig     `mapstructure:"poll"`
	Launch   LaunchConfig   `mapstructure:"launch"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Database DatabaseConfig `mapstructure:"database"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

type ServerConfig struct {
	Port     string `mapstructure:"port"`
	AuditDir string `mapstructure:"audit_dir"`
}

type AuthConfig struct {
	// Local API key for the companion server; empty disables the check.
	RequireAPIKey bool    `mapstructure:"require_api_key"`
	APIKey        string  `mapstructure:"api_key"`
	LaunchQPS     float64 `mapstructure:"launch_qps"`
	LaunchBurst   int     `mapstructure:"launch_burst"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

type GatewayConfig struct {
	BaseURL   string  `mapstructure:"base_url"`
	TimeoutMs int     `mapstructure:"timeout_ms"`
	RPS       float64 `mapstructure:"rps"`
	Burst     int     `mapstructure:"burst"`
}

type IdentityConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	AppID     string `mapstructure:"app_id"`
	ClientID  string `mapstructure:"client_id"`
	TimeoutMs int    `mapstructure:"timeout_ms"`
}

type WalletConfig struct {
	// Hex private key backing the headless EIP-1193 transport.
	PrivateKey string `mapstructure:"private_key"`
	Vendor     string `mapstructure:"vendor"`
	ChainID    int64  `mapstructure:"chain_id"`
	RPCURL     string `mapstructure:"rpc_url"`
}

type ChainConfig struct {
	// Hostname the deployment is served from; defaults to the gateway host.
	Hostname         string           `mapstructure:"hostname"`
	RequiredNetworks map[string]int64 `mapstructure:"required_networks"`
	RPCURL           string           `mapstructure:"rpc_url"`
	EIP1271CacheSec  int              `mapstructure:"eip1271_cache_seconds"`
	EIP1271TimeoutMs int              `mapstructure:"eip1271_timeout_ms"`
	EIP1271Retries   int              `mapstructure:"eip1271_retries"`
}

type PollConfig struct {
	IntervalMs           int    `mapstructure:"interval_ms"`
	MinIntervalMs        int    `mapstructure:"min_interval_ms"`
	Interactive          bool   `mapstructure:"interactive"`
	MaxConsecutiveErrors int    `mapstructure:"max_consecutive_errors"`
	Origin               string `mapstructure:"origin"`
}

type LaunchConfig struct {
	VerifySignatures bool   `mapstructure:"verify_signatures"`
	ProfilePath      string `mapstructure:"profile_path"`
}

type RedisConfig struct {
	Addr       string `mapstructure:"addr"`
	Password   string `mapstructure:"password"`
	DB         int    `mapstructure:"db"`
	KeyPrefix  string `mapstructure:"key_prefix"`
	TTLSeconds int    `mapstructure:"ttl_seconds"`
}

type DatabaseConfig struct {
	DSN                string `mapstructure:"dsn"`
	AuditRetentionDays int    `mapstructure:"audit_retention_days"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8787")
	v.SetDefault("server.audit_dir", "./logs")
	v.SetDefault("auth.require_api_key", false)
	v.SetDefault("auth.launch_qps", 1)
	v.SetDefault("auth.launch_burst", 3)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", true)
	v.SetDefault("gateway.base_url", "http://127.0.0.1:8080/api/frontdoor")
	v.SetDefault("gateway.timeout_ms", 15000)
	v.SetDefault("gateway.rps", 5)
	v.SetDefault("gateway.burst", 5)
	v.SetDefault("identity.timeout_ms", 10000)
	v.SetDefault("wallet.vendor", "unknown")
	v.SetDefault("wallet.chain_id", 1)
	v.SetDefault("chain.eip1271_cache_seconds", 60)
	v.SetDefault("chain.eip1271_timeout_ms", 5000)
	v.SetDefault("chain.eip1271_retries", 1)
	v.SetDefault("poll.interval_ms", 1500)
	v.SetDefault("poll.min_interval_ms", 1200)
	v.SetDefault("poll.interactive", false)
	v.SetDefault("poll.max_consecutive_errors", 1)
	v.SetDefault("launch.verify_signatures", false)
	v.SetDefault("redis.key_prefix", "frontdoor")
	v.SetDefault("redis.ttl_seconds", 86400)
	v.SetDefault("database.audit_retention_days", 30)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// Load reads config.yaml from the working directory or ./configs and overlays
// FRONTDOOR_* environment variables, e.g. FRONTDOOR_GATEWAY_BASE_URL.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file path (used by the CLI --config flag).
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	v.SetEnvPrefix("frontdoor")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No config file found, using defaults and env vars")
		} else {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.normalize()
	return &cfg, nil
}

func (c *Config) normalize() {
	c.Gateway.BaseURL = strings.TrimRight(strings.TrimSpace(c.Gateway.BaseURL), "/")
	c.Identity.BaseURL = strings.TrimRight(strings.TrimSpace(c.Identity.BaseURL), "/")
	c.Wallet.PrivateKey = strings.TrimPrefix(strings.TrimSpace(c.Wallet.PrivateKey), "0x")
	if c.Poll.Origin == "" {
		c.Poll.Origin = c.Gateway.BaseURL
	}
	if c.Chain.RPCURL == "" {
		c.Chain.RPCURL = c.Wallet.RPCURL
	}
}
