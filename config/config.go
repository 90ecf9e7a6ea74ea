package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const envPrefix = "SCROLLGRAB_"

// Range is a closed-open interval of durations a random pause is drawn from.
type Range struct {
	Min time.Duration `yaml:"min"`
	Max time.Duration `yaml:"max"`
}

// IntRange is an inclusive integer interval (scroll steps in pixels).
type IntRange struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

// Config holds every knob of a scrape run
type Config struct {
	Browser   BrowserConfig   `yaml:"browser"`
	Output    OutputConfig    `yaml:"output"`
	Site      SiteConfig      `yaml:"site"`
	Scroll    ScrollConfig    `yaml:"scroll"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Challenge ChallengeConfig `yaml:"challenge"`
	Pacing    PacingConfig    `yaml:"pacing"`
	Download  DownloadConfig  `yaml:"download"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// BrowserConfig controls the Chrome instance
type BrowserConfig struct {
	Headless          bool          `yaml:"headless"`
	ExecPath          string        `yaml:"exec_path"`
	UserAgents        []string      `yaml:"user_agents"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout"`
	ScriptTimeout     time.Duration `yaml:"script_timeout"`
}

// OutputConfig is where files land and how they are named
type OutputConfig struct {
	Directory string `yaml:"directory"`
	Prefix    string `yaml:"prefix"`
}

// SiteConfig selects a site profile; "auto" matches on the start URL host
type SiteConfig struct {
	Profile string `yaml:"profile"`
}

// ScrollConfig drives the human-like scroll simulator
type ScrollConfig struct {
	Step          IntRange      `yaml:"step"`
	Pause         Range         `yaml:"pause"`
	ReadChance    float64       `yaml:"read_chance"`
	ReadPause     Range         `yaml:"read_pause"`
	FinalPause    Range         `yaml:"final_pause"`
	FallbackPause time.Duration `yaml:"fallback_pause"`
	MaxSteps      int           `yaml:"max_steps"`
	MarkerWait    time.Duration `yaml:"marker_wait"`
}

// DiscoveryConfig bounds the image enumeration retries
type DiscoveryConfig struct {
	Attempts   int           `yaml:"attempts"`
	Wait       time.Duration `yaml:"wait"`
	RetryPause time.Duration `yaml:"retry_pause"`
}

// ChallengeConfig controls the interstitial challenge poller. MaxWait of
// zero means wait for the operator indefinitely.
type ChallengeConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	SettleDelay  time.Duration `yaml:"settle_delay"`
	MaxWait      time.Duration `yaml:"max_wait"`
}

// PacingConfig shapes the delays between downloads and page transitions
type PacingConfig struct {
	Base           time.Duration `yaml:"base"`
	StepEvery      int           `yaml:"step_every"`
	Ceiling        time.Duration `yaml:"ceiling"`
	Spread         time.Duration `yaml:"spread"`
	LongPauseEvery int           `yaml:"long_pause_every"`
	LongPause      Range         `yaml:"long_pause"`
	BeforeNextLink Range         `yaml:"before_next_link"`
	NextLinkWait   time.Duration `yaml:"next_link_wait"`
	BeforeNavigate Range         `yaml:"before_navigate"`
	AfterNavigate  Range         `yaml:"after_navigate"`
}

// DownloadConfig controls per-image behaviour
type DownloadConfig struct {
	ImageWait          time.Duration `yaml:"image_wait"`
	SkipDuplicates     bool          `yaml:"skip_duplicates"`
	DuplicateCacheSize int           `yaml:"duplicate_cache_size"`
	HTTPFallback       bool          `yaml:"http_fallback"`
	HTTPTimeout        time.Duration `yaml:"http_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	JSON       bool   `yaml:"json"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// MetricsConfig points at an optional Prometheus textfile written at run end
type MetricsConfig struct {
	File string `yaml:"file"`
}

// DefaultUserAgents is the identity pool one string is drawn from per run.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:120.0) Gecko/20100101 Firefox/120.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) Edge/120.0.0.0",
}

// DefaultConfig returns a Config with the stock timings
func DefaultConfig() *Config {
	return &Config{
		Browser: BrowserConfig{
			Headless:          false,
			UserAgents:        append([]string(nil), DefaultUserAgents...),
			NavigationTimeout: 60 * time.Second,
			ScriptTimeout:     30 * time.Second,
		},
		Output: OutputConfig{
			Directory: "./downloads",
			Prefix:    "image",
		},
		Site: SiteConfig{
			Profile: "auto",
		},
		Scroll: ScrollConfig{
			Step:          IntRange{Min: 300, Max: 700},
			Pause:         Range{Min: 200 * time.Millisecond, Max: 500 * time.Millisecond},
			ReadChance:    0.2,
			ReadPause:     Range{Min: 500 * time.Millisecond, Max: time.Second},
			FinalPause:    Range{Min: time.Second, Max: 2 * time.Second},
			FallbackPause: 2 * time.Second,
			MaxSteps:      2000,
			MarkerWait:    10 * time.Second,
		},
		Discovery: DiscoveryConfig{
			Attempts:   3,
			Wait:       10 * time.Second,
			RetryPause: 2 * time.Second,
		},
		Challenge: ChallengeConfig{
			PollInterval: 2 * time.Second,
			SettleDelay:  3 * time.Second,
			MaxWait:      0,
		},
		Pacing: PacingConfig{
			Base:           2 * time.Second,
			StepEvery:      5,
			Ceiling:        8 * time.Second,
			Spread:         3 * time.Second,
			LongPauseEvery: 5,
			LongPause:      Range{Min: 3 * time.Second, Max: 6 * time.Second},
			BeforeNextLink: Range{Min: 4 * time.Second, Max: 7 * time.Second},
			NextLinkWait:   3 * time.Second,
			BeforeNavigate: Range{Min: 3 * time.Second, Max: 5 * time.Second},
			AfterNavigate:  Range{Min: 4 * time.Second, Max: 6 * time.Second},
		},
		Download: DownloadConfig{
			ImageWait:          10 * time.Second,
			SkipDuplicates:     true,
			DuplicateCacheSize: 4096,
			HTTPFallback:       false,
			HTTPTimeout:        30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// LoadFromFile loads configuration from a YAML file. An empty path searches
// the default locations; finding nothing there is not an error.
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = findConfigFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

func findConfigFile() string {
	locations := []string{
		".scrollgrab.yaml",
		".scrollgrab.yml",
	}
	if configDir, err := os.UserConfigDir(); err == nil {
		locations = append(locations,
			filepath.Join(configDir, "scrollgrab", "config.yaml"),
			filepath.Join(configDir, "scrollgrab", "config.yml"),
		)
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}
	return ""
}

// LoadFromEnv overrides fields from SCROLLGRAB_* variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	str := func(name string, dst *string) {
		if v := os.Getenv(envPrefix + name); v != "" {
			*dst = v
		}
	}
	boolean := func(name string, dst *bool) {
		v := os.Getenv(envPrefix + name)
		if v == "" {
			return
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
			return
		}
		*dst = b
	}

	boolean("HEADLESS", &c.Browser.Headless)
	str("EXEC_PATH", &c.Browser.ExecPath)
	if ua := os.Getenv(envPrefix + "USER_AGENT"); ua != "" {
		c.Browser.UserAgents = []string{ua}
	}
	str("OUTPUT_DIR", &c.Output.Directory)
	str("PREFIX", &c.Output.Prefix)
	str("SITE", &c.Site.Profile)
	boolean("HTTP_FALLBACK", &c.Download.HTTPFallback)
	boolean("SKIP_DUPLICATES", &c.Download.SkipDuplicates)
	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_FILE", &c.Logging.File)
	boolean("LOG_JSON", &c.Logging.JSON)
	str("METRICS_FILE", &c.Metrics.File)

	if v := os.Getenv(envPrefix + "CHALLENGE_MAX_WAIT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sCHALLENGE_MAX_WAIT: %w", envPrefix, err))
		} else {
			c.Challenge.MaxWait = d
		}
	}

	return errors.Join(errs...)
}

// MergeCommandLineFlags applies flags the user explicitly set. Keys are the
// flag names; values are already typed by cobra.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["headless"].(bool); ok {
		c.Browser.Headless = v
	}
	if v, ok := flags["exec-path"].(string); ok && v != "" {
		c.Browser.ExecPath = v
	}
	if v, ok := flags["output"].(string); ok && v != "" {
		c.Output.Directory = v
	}
	if v, ok := flags["prefix"].(string); ok && v != "" {
		c.Output.Prefix = v
	}
	if v, ok := flags["site"].(string); ok && v != "" {
		c.Site.Profile = v
	}
	if v, ok := flags["http-fallback"].(bool); ok {
		c.Download.HTTPFallback = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := flags["log-file"].(string); ok && v != "" {
		c.Logging.File = v
	}
	if v, ok := flags["metrics-file"].(string); ok && v != "" {
		c.Metrics.File = v
	}
}

func checkRange(name string, r Range) error {
	if r.Min < 0 || r.Max < r.Min {
		return fmt.Errorf("%s: invalid range [%v, %v]", name, r.Min, r.Max)
	}
	return nil
}

// Validate checks the configuration and reports every problem at once
func (c *Config) Validate() error {
	var errs []error

	if len(c.Browser.UserAgents) == 0 {
		errs = append(errs, errors.New("browser.user_agents must not be empty"))
	}
	if c.Browser.NavigationTimeout <= 0 {
		errs = append(errs, errors.New("browser.navigation_timeout must be positive"))
	}
	if c.Browser.ScriptTimeout <= 0 {
		errs = append(errs, errors.New("browser.script_timeout must be positive"))
	}

	if c.Output.Directory == "" {
		errs = append(errs, errors.New("output directory is required"))
	}
	if c.Output.Prefix == "" || strings.ContainsAny(c.Output.Prefix, `/\`) {
		errs = append(errs, fmt.Errorf("output.prefix %q is not a valid file name prefix", c.Output.Prefix))
	}
	if c.Site.Profile == "" {
		errs = append(errs, errors.New("site.profile is required (use \"auto\" to pick by host)"))
	}

	if c.Scroll.Step.Min <= 0 || c.Scroll.Step.Max < c.Scroll.Step.Min {
		errs = append(errs, fmt.Errorf("scroll.step: invalid range [%d, %d]", c.Scroll.Step.Min, c.Scroll.Step.Max))
	}
	if c.Scroll.ReadChance < 0 || c.Scroll.ReadChance > 1 {
		errs = append(errs, errors.New("scroll.read_chance must be between 0 and 1"))
	}
	if c.Scroll.MaxSteps <= 0 {
		errs = append(errs, errors.New("scroll.max_steps must be positive"))
	}

	if c.Discovery.Attempts < 1 {
		errs = append(errs, errors.New("discovery.attempts must be at least 1"))
	}
	if c.Challenge.PollInterval <= 0 {
		errs = append(errs, errors.New("challenge.poll_interval must be positive"))
	}
	if c.Challenge.MaxWait < 0 {
		errs = append(errs, errors.New("challenge.max_wait cannot be negative"))
	}

	if c.Pacing.Base < 0 || c.Pacing.Ceiling < c.Pacing.Base {
		errs = append(errs, errors.New("pacing.ceiling must be at least pacing.base"))
	}
	if c.Pacing.StepEvery <= 0 || c.Pacing.LongPauseEvery <= 0 {
		errs = append(errs, errors.New("pacing.step_every and pacing.long_pause_every must be positive"))
	}

	for name, d := range map[string]time.Duration{
		"scroll.marker_wait":    c.Scroll.MarkerWait,
		"discovery.wait":        c.Discovery.Wait,
		"pacing.next_link_wait": c.Pacing.NextLinkWait,
		"download.image_wait":   c.Download.ImageWait,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}

	for name, r := range map[string]Range{
		"scroll.pause":            c.Scroll.Pause,
		"scroll.read_pause":       c.Scroll.ReadPause,
		"scroll.final_pause":      c.Scroll.FinalPause,
		"pacing.long_pause":       c.Pacing.LongPause,
		"pacing.before_next_link": c.Pacing.BeforeNextLink,
		"pacing.before_navigate":  c.Pacing.BeforeNavigate,
		"pacing.after_navigate":   c.Pacing.AfterNavigate,
	} {
		if err := checkRange(name, r); err != nil {
			errs = append(errs, err)
		}
	}

	if c.Download.SkipDuplicates && c.Download.DuplicateCacheSize <= 0 {
		errs = append(errs, errors.New("download.duplicate_cache_size must be positive"))
	}
	if c.Download.HTTPFallback && c.Download.HTTPTimeout <= 0 {
		errs = append(errs, errors.New("download.http_timeout must be positive"))
	}

	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Errorf("invalid log level %q", c.Logging.Level))
	}

	return errors.Join(errs...)
}

// Load loads configuration from all sources with proper precedence:
// flags > environment (including .env) > config file > defaults.
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	_ = godotenv.Load(".env")

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
