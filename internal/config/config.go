package config

import (
	"fmt"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Auth    AuthConfig    `mapstructure:"auth" yaml:"auth"`
	Feed    FeedConfig    `mapstructure:"feed" yaml:"feed"`
	Output  OutputConfig  `mapstructure:"output" yaml:"output"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// BrowserConfig holds settings for the headless browser instance.
type BrowserConfig struct {
	Headless       bool          `mapstructure:"headless" yaml:"headless"`
	Args           []string      `mapstructure:"args" yaml:"args"`
	ViewportWidth  int           `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight int           `mapstructure:"viewport_height" yaml:"viewport_height"`
	UserAgent      string        `mapstructure:"user_agent" yaml:"user_agent"`
	// OpTimeout bounds every individual DOM query so a missing element
	// degrades to "absent" instead of blocking the loop.
	OpTimeout         time.Duration `mapstructure:"op_timeout" yaml:"op_timeout"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	// CookieFile persists session cookies between runs so login can be
	// skipped when the stored session is still valid.
	CookieFile string `mapstructure:"cookie_file" yaml:"cookie_file"`
}

// AuthConfig carries feed credentials. These come from the environment or a
// .env file, never from the YAML config.
type AuthConfig struct {
	Username string `mapstructure:"username" yaml:"-"`
	Password string `mapstructure:"password" yaml:"-"`
}

// FeedConfig tunes the collection loop.
type FeedConfig struct {
	// URL of the authenticated feed page to collect from.
	URL string `mapstructure:"url" yaml:"url"`
	// MaxItems caps the number of novel records collected; 0 means run until
	// cancelled or the circuit breaker trips.
	MaxItems int `mapstructure:"max_items" yaml:"max_items"`
	// CandidateCap bounds the per-cycle geometry candidate set.
	CandidateCap int `mapstructure:"candidate_cap" yaml:"candidate_cap"`
	// SettleWait is the fixed pause after a scroll or key dispatch, sized to
	// outlast the feed's transition animation.
	SettleWait time.Duration `mapstructure:"settle_wait" yaml:"settle_wait"`
	// AdvanceBackoff is the sleep between advance retries after a failure.
	AdvanceBackoff time.Duration `mapstructure:"advance_backoff" yaml:"advance_backoff"`
	// MaxAdvanceFailures is the consecutive-failure circuit breaker.
	MaxAdvanceFailures int `mapstructure:"max_advance_failures" yaml:"max_advance_failures"`
	// CheckpointEvery flushes the full collected list each time this many
	// new records have accumulated since the previous flush.
	CheckpointEvery int `mapstructure:"checkpoint_every" yaml:"checkpoint_every"`
	// CycleDelayMin/Max bound the randomized pause between cycles.
	CycleDelayMin time.Duration `mapstructure:"cycle_delay_min" yaml:"cycle_delay_min"`
	CycleDelayMax time.Duration `mapstructure:"cycle_delay_max" yaml:"cycle_delay_max"`
	// CyclesPerSecond is a hard cap on loop speed on top of the randomized
	// delays.
	CyclesPerSecond float64 `mapstructure:"cycles_per_second" yaml:"cycles_per_second"`
}

// OutputConfig selects the checkpoint sink.
type OutputConfig struct {
	Dir    string `mapstructure:"dir" yaml:"dir"`
	Format string `mapstructure:"format" yaml:"format"`
	// File overrides the timestamped default filename when set.
	File string `mapstructure:"file" yaml:"file"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "reelwatch")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.viewport_width", 1280)
	v.SetDefault("browser.viewport_height", 900)
	v.SetDefault("browser.op_timeout", "800ms")
	v.SetDefault("browser.navigation_timeout", "30s")
	v.SetDefault("browser.cookie_file", "~/.reelwatch/cookies.json")

	// -- Feed --
	v.SetDefault("feed.url", "https://www.instagram.com/reels/")
	v.SetDefault("feed.max_items", 0)
	v.SetDefault("feed.candidate_cap", 20)
	v.SetDefault("feed.settle_wait", "4s")
	v.SetDefault("feed.advance_backoff", "3s")
	v.SetDefault("feed.max_advance_failures", 5)
	v.SetDefault("feed.checkpoint_every", 10)
	v.SetDefault("feed.cycle_delay_min", "800ms")
	v.SetDefault("feed.cycle_delay_max", "2500ms")
	v.SetDefault("feed.cycles_per_second", 0.5)

	// -- Output --
	v.SetDefault("output.dir", "output")
	v.SetDefault("output.format", "json")
	v.SetDefault("output.file", "")
}

// NewFromViper builds and validates a Config from a viper instance.
func NewFromViper(v *viper.Viper) (*Config, error) {
	// Credentials are environment-only.
	v.BindEnv("auth.username", "REELWATCH_USERNAME")
	v.BindEnv("auth.password", "REELWATCH_PASSWORD")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// expandPaths resolves "~" in user-supplied paths.
func (c *Config) expandPaths() error {
	for _, p := range []*string{&c.Browser.CookieFile, &c.Output.Dir, &c.Logger.LogFile} {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("expanding path %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Feed.URL == "" {
		return fmt.Errorf("feed.url is required")
	}
	if c.Feed.CandidateCap <= 0 {
		return fmt.Errorf("feed.candidate_cap must be positive")
	}
	if c.Feed.MaxAdvanceFailures <= 0 {
		return fmt.Errorf("feed.max_advance_failures must be positive")
	}
	if c.Feed.CheckpointEvery <= 0 {
		return fmt.Errorf("feed.checkpoint_every must be positive")
	}
	if c.Feed.SettleWait <= 0 {
		return fmt.Errorf("feed.settle_wait must be a positive duration")
	}
	if c.Feed.CycleDelayMin < 0 || c.Feed.CycleDelayMax < c.Feed.CycleDelayMin {
		return fmt.Errorf("feed.cycle_delay_min/max must satisfy 0 <= min <= max")
	}
	if c.Feed.CyclesPerSecond <= 0 {
		return fmt.Errorf("feed.cycles_per_second must be positive")
	}
	switch c.Output.Format {
	case "json", "csv":
	default:
		return fmt.Errorf("output.format must be \"json\" or \"csv\", got %q", c.Output.Format)
	}
	if c.Browser.OpTimeout <= 0 {
		return fmt.Errorf("browser.op_timeout must be a positive duration")
	}
	if c.Browser.ViewportWidth <= 0 || c.Browser.ViewportHeight <= 0 {
		return fmt.Errorf("browser viewport dimensions must be positive")
	}
	return nil
}

// NewDefault returns a configuration populated with defaults only.
// Primarily useful in tests.
func NewDefault() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg, err := NewFromViper(v)
	if err != nil {
		// Defaults must always validate.
		panic(fmt.Sprintf("default config invalid: %v", err))
	}
	return cfg
}
