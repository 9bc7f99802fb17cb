package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"pegwatch/internal/asset"
	"pegwatch/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Logging     logging.Config    `mapstructure:"logging"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	Aggregation AggregationConfig `mapstructure:"aggregation"`
	Providers   ProvidersConfig   `mapstructure:"providers"`
	Assets      AssetsConfig      `mapstructure:"assets"`
	Alerting    AlertingConfig    `mapstructure:"alerting"`
	Export      ExportConfig      `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// SchedulerConfig governs collection cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// HTTPConfig covers the JSON API server.
type HTTPConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Listen          string        `mapstructure:"listen"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CronSecret      string        `mapstructure:"cron_secret"`
}

// AggregationConfig selects base asset, probe size, and quote selection policy.
type AggregationConfig struct {
	DefaultBase string   `mapstructure:"default_base"`
	PrimarySize string   `mapstructure:"primary_size"`
	Policy      string   `mapstructure:"policy"`
	Priority    []string `mapstructure:"priority"`
}

// ProvidersConfig groups quote provider settings.
type ProvidersConfig struct {
	ZeroX   ZeroXConfig   `mapstructure:"zerox"`
	Cowswap CowswapConfig `mapstructure:"cowswap"`
	OneInch OneInchConfig `mapstructure:"oneinch"`
}

// ZeroXConfig captures 0x Swap API connectivity.
type ZeroXConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	ChainID        int64         `mapstructure:"chain_id"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MinInterval    time.Duration `mapstructure:"min_interval"`
}

// CowswapConfig captures CoW Protocol connectivity.
type CowswapConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BaseURL        string        `mapstructure:"base_url"`
	PriceQuality   string        `mapstructure:"price_quality"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MinInterval    time.Duration `mapstructure:"min_interval"`
}

// OneInchConfig captures 1inch aggregation API connectivity.
type OneInchConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	ChainID        int64         `mapstructure:"chain_id"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MinInterval    time.Duration `mapstructure:"min_interval"`
}

// AssetsConfig overrides the built-in tracked asset universe.
type AssetsConfig struct {
	Tracked []asset.Definition     `mapstructure:"tracked"`
	Bases   []string               `mapstructure:"bases"`
	Sizes   []asset.SizeDefinition `mapstructure:"sizes"`
}

// AlertingConfig defines alert thresholds and routing.
type AlertingConfig struct {
	Enabled      bool           `mapstructure:"enabled"`
	ThresholdBps float64        `mapstructure:"threshold_bps"`
	Cooldown     time.Duration  `mapstructure:"cooldown"`
	Channels     []string       `mapstructure:"channels"`
	Telegram     TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the Telegram alert channel.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// UserAgent is attached to outbound provider requests.
func (c *Config) UserAgent() string {
	return c.App.Name + "/1.0"
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PEGWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "pegwatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.interval", "5m")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x70656777))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("http.enabled", true)
	v.SetDefault("http.listen", ":8080")
	v.SetDefault("http.read_timeout", "15s")
	v.SetDefault("http.write_timeout", "120s")
	v.SetDefault("http.shutdown_timeout", "10s")

	v.SetDefault("aggregation.default_base", "USDT")
	v.SetDefault("aggregation.primary_size", "1M")
	v.SetDefault("aggregation.policy", "fallback")
	v.SetDefault("aggregation.priority", []string{"0x", "cowswap", "1inch"})

	v.SetDefault("providers.zerox.enabled", true)
	v.SetDefault("providers.zerox.base_url", "https://api.0x.org")
	v.SetDefault("providers.zerox.chain_id", int64(1))
	v.SetDefault("providers.zerox.request_timeout", "10s")
	v.SetDefault("providers.zerox.min_interval", "100ms")

	v.SetDefault("providers.cowswap.enabled", true)
	v.SetDefault("providers.cowswap.base_url", "https://api.cow.fi/mainnet/api/v1")
	v.SetDefault("providers.cowswap.price_quality", "fast")
	v.SetDefault("providers.cowswap.request_timeout", "10s")
	v.SetDefault("providers.cowswap.min_interval", "100ms")

	v.SetDefault("providers.oneinch.enabled", false)
	v.SetDefault("providers.oneinch.base_url", "https://api.1inch.dev/swap/v6.0")
	v.SetDefault("providers.oneinch.chain_id", int64(1))
	v.SetDefault("providers.oneinch.request_timeout", "10s")
	v.SetDefault("providers.oneinch.min_interval", "1s")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.threshold_bps", 25.0)
	v.SetDefault("alerting.cooldown", "30m")
	v.SetDefault("alerting.channels", []string{"telegram"})
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// knownProviders maps source labels to whether the provider is enabled and,
// for credentialed providers, whether its credential is present.
func (c *Config) knownProviders() map[string]bool {
	return map[string]bool{
		"0x":      c.Providers.ZeroX.Enabled,
		"cowswap": c.Providers.Cowswap.Enabled,
		"1inch":   c.Providers.OneInch.Enabled,
	}
}

// Validate performs basic sanity checks on the configuration values. Missing
// credentials for enabled providers are startup-fatal rather than silently
// skipping the adapter.
func (c *Config) Validate() error {
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}

	switch c.Aggregation.Policy {
	case "fallback", "best":
	default:
		return fmt.Errorf("aggregation.policy must be \"fallback\" or \"best\", got %q", c.Aggregation.Policy)
	}

	known := c.knownProviders()
	anyEnabled := false
	for _, enabled := range known {
		if enabled {
			anyEnabled = true
		}
	}
	if !anyEnabled {
		return fmt.Errorf("at least one quote provider must be enabled")
	}
	for _, name := range c.Aggregation.Priority {
		if _, ok := known[name]; !ok {
			return fmt.Errorf("aggregation.priority contains unknown provider %q", name)
		}
	}

	if c.Providers.ZeroX.Enabled && c.Providers.ZeroX.APIKey == "" {
		return fmt.Errorf("providers.zerox.api_key is required when the 0x provider is enabled")
	}
	if c.Providers.OneInch.Enabled && c.Providers.OneInch.APIKey == "" {
		return fmt.Errorf("providers.oneinch.api_key is required when the 1inch provider is enabled")
	}

	if c.Alerting.ThresholdBps < 0 {
		return fmt.Errorf("alerting.threshold_bps cannot be negative")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required")
		}
	}

	if c.HTTP.Enabled && c.HTTP.Listen == "" {
		return fmt.Errorf("http.listen is required when the http server is enabled")
	}

	return nil
}

// Universe materialises the tracked asset set, falling back to the built-in
// mainnet list when no override is configured.
func (c *Config) Universe() (*asset.Universe, error) {
	defs := c.Assets.Tracked
	if len(defs) == 0 {
		defs = asset.DefaultDefinitions()
	}
	bases := c.Assets.Bases
	if len(bases) == 0 {
		bases = asset.DefaultBases()
	}
	sizes := c.Assets.Sizes
	if len(sizes) == 0 {
		sizes = asset.DefaultSizes()
	}
	return asset.NewUniverse(defs, bases, sizes)
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
