// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/tik-regcrawler/internal/crawler"
	"github.com/JakeFAU/tik-regcrawler/internal/orchestrator"
	"github.com/JakeFAU/tik-regcrawler/internal/relevance"
	"github.com/JakeFAU/tik-regcrawler/internal/selector"
	"github.com/JakeFAU/tik-regcrawler/internal/source"
	"github.com/JakeFAU/tik-regcrawler/internal/storage/postgres"
	"github.com/JakeFAU/tik-regcrawler/internal/storage/redis"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"

	BlobMemory = "memory"
	BlobLocal  = "local"
	BlobGCS    = "gcs"
	BlobNone   = "none"
)

// Browser automation runners.
const (
	RunnerNone     = ""
	RunnerChromedp = "chromedp"
	RunnerRod      = "rod"
	RunnerExec     = "exec"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig        `mapstructure:"server"`
	Auth       AuthConfig          `mapstructure:"auth"`
	Logging    LoggingConfig       `mapstructure:"logging"`
	Fetch      FetchConfig         `mapstructure:"fetch"`
	Automation AutomationConfig    `mapstructure:"automation"`
	Selector   selector.Config     `mapstructure:"selector"`
	Extract    ExtractConfig       `mapstructure:"extract"`
	Relevance  RelevanceConfig     `mapstructure:"relevance"`
	Health     HealthConfig        `mapstructure:"health"`
	Run        orchestrator.Config `mapstructure:"run"`
	Progress   ProgressConfig      `mapstructure:"progress"`
	Cache      CacheConfig         `mapstructure:"cache"`
	Storage    StorageConfig       `mapstructure:"storage"`
	Redis      RedisConfig         `mapstructure:"redis"`
	PubSub     PubSubConfig        `mapstructure:"pubsub"`
	DB         postgres.Config     `mapstructure:"db"`
	SQLite     SQLiteConfig        `mapstructure:"sqlite"`
	Sources    []crawler.Source    `mapstructure:"sources"`
}

// ServerConfig controls the ops API and the worker pool behind it.
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	Workers        int           `mapstructure:"workers"`
	QueueDepth     int           `mapstructure:"queue_depth"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	ShutdownGrace  time.Duration `mapstructure:"shutdown_grace"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// FetchConfig tunes the plain and alternate-profile transports.
type FetchConfig struct {
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxBodySize int           `mapstructure:"max_body_size"`
}

// AutomationConfig selects the runners behind the browser strategies.
// An empty runner leaves that strategy unregistered.
type AutomationConfig struct {
	BrowserRunner         string        `mapstructure:"browser_runner"`
	StealthRunner         string        `mapstructure:"stealth_runner"`
	ExecCommand           string        `mapstructure:"exec_command"`
	ExecArgs              []string      `mapstructure:"exec_args"`
	MaxParallel           int           `mapstructure:"max_parallel"`
	SettleDelay           time.Duration `mapstructure:"settle_delay"`
	ScrollSteps           int           `mapstructure:"scroll_steps"`
	MaxPreNavigationDelay time.Duration `mapstructure:"max_pre_navigation_delay"`
	RodRemoteURL          string        `mapstructure:"rod_remote_url"`
	RodBinPath            string        `mapstructure:"rod_bin_path"`
}

// ExtractConfig sets validation limits for extracted documents.
type ExtractConfig struct {
	MinTitleLength int `mapstructure:"min_title_length"`
	MaxBodyLength  int `mapstructure:"max_body_length"`
}

// RelevanceConfig points at the keyword table and the adaptive threshold.
type RelevanceConfig struct {
	KeywordsFile   string  `mapstructure:"keywords_file"`
	ThresholdFloor int     `mapstructure:"threshold_floor"`
	LowRatio       float64 `mapstructure:"low_ratio"`
	Window         int     `mapstructure:"window"`
}

// Policy converts the config into a threshold policy.
func (r RelevanceConfig) Policy() relevance.ThresholdPolicy {
	return relevance.ThresholdPolicy{Floor: r.ThresholdFloor, LowRatio: r.LowRatio, Window: r.Window}
}

// HealthConfig controls URL health notifications.
type HealthConfig struct {
	FailureThreshold int    `mapstructure:"failure_threshold"`
	AlertTopic       string `mapstructure:"alert_topic"`
}

// ProgressConfig tunes the progress hub.
type ProgressConfig struct {
	BufferSize     int           `mapstructure:"buffer_size"`
	MaxBatchEvents int           `mapstructure:"max_batch_events"`
	FlushInterval  time.Duration `mapstructure:"flush_interval"`
	Prometheus     bool          `mapstructure:"prometheus"`
}

// CacheConfig sets TTLs for the provenance and strategy side tables.
type CacheConfig struct {
	ProvenanceTTL time.Duration `mapstructure:"provenance_ttl"`
	StrategyTTL   time.Duration `mapstructure:"strategy_ttl"`
}

// StorageConfig picks the record store and the snapshot archive.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	Blob      string `mapstructure:"blob"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// RedisConfig enables the Redis TTL store.
type RedisConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	redis.Config `mapstructure:",squash"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
}

// SQLiteConfig locates the embedded database file.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("REGCRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.normalizeStrategies(); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	run := orchestrator.DefaultConfig()
	sel := selector.DefaultConfig()
	policy := relevance.DefaultThresholdPolicy()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.workers", 4)
	v.SetDefault("server.queue_depth", 64)
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_grace", 30*time.Second)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("fetch.timeout", 45*time.Second)
	v.SetDefault("fetch.max_body_size", 10<<20)
	v.SetDefault("automation.browser_runner", RunnerNone)
	v.SetDefault("automation.stealth_runner", RunnerNone)
	v.SetDefault("automation.max_parallel", 2)
	v.SetDefault("automation.settle_delay", 1500*time.Millisecond)
	v.SetDefault("automation.scroll_steps", 3)
	v.SetDefault("automation.max_pre_navigation_delay", 2*time.Second)
	v.SetDefault("selector.trials", sel.Trials)
	v.SetDefault("selector.trial_pause", sel.TrialPause)
	v.SetDefault("selector.latency_weight", sel.LatencyWeight)
	v.SetDefault("selector.revalidate_after", sel.RevalidateAfter)
	v.SetDefault("selector.timeout", sel.Timeout)
	v.SetDefault("extract.min_title_length", 10)
	v.SetDefault("extract.max_body_length", 50000)
	v.SetDefault("relevance.threshold_floor", policy.Floor)
	v.SetDefault("relevance.low_ratio", policy.LowRatio)
	v.SetDefault("relevance.window", policy.Window)
	v.SetDefault("health.failure_threshold", 3)
	v.SetDefault("health.alert_topic", "regcrawler-url-health")
	v.SetDefault("run.document_target", run.DocumentTarget)
	v.SetDefault("run.max_candidates", run.MaxCandidates)
	v.SetDefault("run.drift_interval", run.DriftInterval)
	v.SetDefault("run.default_delay", run.DefaultDelay)
	v.SetDefault("run.default_timeout", run.DefaultTimeout)
	v.SetDefault("run.min_relevance_score", run.MinRelevanceScore)
	v.SetDefault("run.persist_irrelevant", run.PersistIrrelevant)
	v.SetDefault("run.snapshot_prefix", run.SnapshotPrefix)
	v.SetDefault("run.concurrency", run.Concurrency)
	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.max_batch_events", 256)
	v.SetDefault("progress.flush_interval", 500*time.Millisecond)
	v.SetDefault("progress.prometheus", true)
	v.SetDefault("cache.provenance_ttl", 6*time.Hour)
	v.SetDefault("cache.strategy_ttl", sel.RevalidateAfter)
	v.SetDefault("storage.backend", BackendMemory)
	v.SetDefault("storage.blob", BlobMemory)
	v.SetDefault("storage.prefix", "regcrawler")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.key_prefix", "regcrawler:")
	v.SetDefault("pubsub.enabled", false)
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("sqlite.path", "regcrawler.db")
}

// normalizeStrategies accepts strategy names in any case and spacing.
func (c *Config) normalizeStrategies() error {
	for i := range c.Sources {
		for j, st := range c.Sources[i].Strategies {
			parsed, err := crawler.ParseStrategy(string(st))
			if err != nil {
				return fmt.Errorf("sources[%d]: %w", i, err)
			}
			c.Sources[i].Strategies[j] = parsed
		}
	}
	return nil
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 {
		errs = append(errs, errors.New("server.port must be > 0"))
	}
	if c.Server.Workers <= 0 {
		errs = append(errs, errors.New("server.workers must be > 0"))
	}
	if c.Server.QueueDepth <= 0 {
		errs = append(errs, errors.New("server.queue_depth must be > 0"))
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		errs = append(errs, errors.New("auth.api_key must be set when auth is enabled"))
	}
	if c.Fetch.Timeout <= 0 {
		errs = append(errs, errors.New("fetch.timeout must be > 0"))
	}
	if c.Health.FailureThreshold <= 0 {
		errs = append(errs, errors.New("health.failure_threshold must be > 0"))
	}
	if c.Run.DefaultDelay < 0 {
		errs = append(errs, errors.New("run.default_delay must be >= 0"))
	}
	errs = append(errs, c.validateAutomation()...)
	errs = append(errs, c.validateStorage()...)
	if c.PubSub.Enabled && c.PubSub.ProjectID == "" {
		errs = append(errs, errors.New("pubsub.project_id must be set when pubsub is enabled"))
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr must be set when redis is enabled"))
	}
	seen := make(map[string]bool, len(c.Sources))
	for i, src := range c.Sources {
		if err := source.Validate(src); err != nil {
			errs = append(errs, fmt.Errorf("sources[%d]: %w", i, err))
			continue
		}
		if seen[src.ID] {
			errs = append(errs, fmt.Errorf("sources[%d]: duplicate id %q", i, src.ID))
		}
		seen[src.ID] = true
	}
	return errors.Join(errs...)
}

func (c Config) validateAutomation() []error {
	var errs []error
	for key, runner := range map[string]string{
		"automation.browser_runner": c.Automation.BrowserRunner,
		"automation.stealth_runner": c.Automation.StealthRunner,
	} {
		switch runner {
		case RunnerNone, RunnerChromedp, RunnerRod:
		case RunnerExec:
			if c.Automation.ExecCommand == "" {
				errs = append(errs, fmt.Errorf("automation.exec_command must be set when %s is exec", key))
			}
		default:
			errs = append(errs, fmt.Errorf("%s: unknown runner %q", key, runner))
		}
	}
	return errs
}

func (c Config) validateStorage() []error {
	var errs []error
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.DB.DSN == "" {
			errs = append(errs, errors.New("db.dsn must be set when storage.backend is postgres"))
		}
	case BackendSQLite:
		if c.SQLite.Path == "" {
			errs = append(errs, errors.New("sqlite.path must be set when storage.backend is sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend: unknown backend %q", c.Storage.Backend))
	}
	switch c.Storage.Blob {
	case BlobMemory, BlobNone:
	case BlobLocal:
		if c.Storage.LocalDir == "" {
			errs = append(errs, errors.New("storage.local_dir must be set when storage.blob is local"))
		}
	case BlobGCS:
		if c.Storage.GCSBucket == "" {
			errs = append(errs, errors.New("storage.gcs_bucket must be set when storage.blob is gcs"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.blob: unknown store %q", c.Storage.Blob))
	}
	return errs
}
