// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all harvester configuration knobs loaded via Viper.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging"`
	Crawl     CrawlConfig     `mapstructure:"crawl"`
	Acquire   AcquireConfig   `mapstructure:"acquire"`
	Extract   ExtractConfig   `mapstructure:"extract"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Records   RecordsConfig   `mapstructure:"records"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	RunLog    RunLogConfig    `mapstructure:"runlog"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// CrawlConfig describes the listing and how the browser walks it.
type CrawlConfig struct {
	ListingURL  string        `mapstructure:"listing_url"`
	SitePrefix  string        `mapstructure:"site_prefix"`
	CutoffYear  int           `mapstructure:"cutoff_year"`
	ConsentID   string        `mapstructure:"consent_id"`
	CardID      string        `mapstructure:"card_id"`
	TimestampID string        `mapstructure:"timestamp_id"`
	LoadMoreID  string        `mapstructure:"load_more_id"`
	SettleDelay time.Duration `mapstructure:"settle_delay"`
	NavTimeout  time.Duration `mapstructure:"nav_timeout"`
	Headless    bool          `mapstructure:"headless"`
	UserAgent   string        `mapstructure:"user_agent"`
}

// AcquireConfig governs the worker pool and request pacing.
type AcquireConfig struct {
	Concurrency       int           `mapstructure:"concurrency"`
	DocumentDelay     time.Duration `mapstructure:"document_delay"`
	ImageDelay        time.Duration `mapstructure:"image_delay"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	ImageCDNPrefix    string        `mapstructure:"image_cdn_prefix"`
	Topic             string        `mapstructure:"topic"`

	// Headers are sent on every document and image GET.
	Headers map[string]string `mapstructure:"headers"`
}

// ExtractConfig governs the conversion pass.
type ExtractConfig struct {
	Concurrency int    `mapstructure:"concurrency"`
	Timezone    string `mapstructure:"timezone"`
}

// StorageConfig selects where documents, images and JSON records live.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// RecordsConfig selects the Record sink.
type RecordsConfig struct {
	Backend string `mapstructure:"backend"`
	DSN     string `mapstructure:"dsn"`
	Table   string `mapstructure:"table"`
}

// PubSubConfig holds metadata for acquisition notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
}

// MetricsConfig controls the Prometheus endpoint. An empty address disables it.
type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// TelemetryConfig controls tracing. Spans are exported to Cloud Trace when a project is known.
type TelemetryConfig struct {
	ServiceName string  `mapstructure:"service_name"`
	ProjectID   string  `mapstructure:"project_id"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// TraceProject returns the Cloud Trace project, falling back to the Pub/Sub project.
func (c Config) TraceProject() string {
	if c.Telemetry.ProjectID != "" {
		return c.Telemetry.ProjectID
	}
	return c.PubSub.ProjectID
}

// RunLogConfig sets where the per-run CSV logs are written.
type RunLogConfig struct {
	Dir string `mapstructure:"dir"`
}

// Storage and record backends.
const (
	BackendLocal    = "local"
	BackendGCS      = "gcs"
	BackendMemory   = "memory"
	BackendObject   = "object"
	BackendPostgres = "postgres"
)

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVESTER")
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

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("crawl.listing_url", "https://www.abc.net.au/news/topic/university")
	v.SetDefault("crawl.site_prefix", "https://www.abc.net.au/")
	v.SetDefault("crawl.cutoff_year", 2012)
	v.SetDefault("crawl.consent_id", "CookieBanner_AcceptABCRequired")
	v.SetDefault("crawl.card_id", "CardHeading")
	v.SetDefault("crawl.timestamp_id", "Timestamp")
	v.SetDefault("crawl.load_more_id", "PaginationLoadMoreButton")
	v.SetDefault("crawl.settle_delay", 10*time.Second)
	v.SetDefault("crawl.nav_timeout", 45*time.Second)
	v.SetDefault("crawl.headless", true)
	v.SetDefault("crawl.user_agent", "topic-harvester/0.1")
	v.SetDefault("acquire.concurrency", 0)
	v.SetDefault("acquire.document_delay", 5*time.Second)
	v.SetDefault("acquire.image_delay", 3*time.Second)
	v.SetDefault("acquire.request_timeout", 30*time.Second)
	v.SetDefault("acquire.requests_per_second", 0)
	v.SetDefault("acquire.image_cdn_prefix", "https://live-production.wcms.abc-cdn.net.au")
	v.SetDefault("acquire.topic", "")
	v.SetDefault("acquire.headers", map[string]any{
		"accept": "text/html,application/xhtml+xml,image/avif,image/webp,image/*;q=0.9,*/*;q=0.8",
	})
	v.SetDefault("extract.concurrency", 0)
	v.SetDefault("extract.timezone", "Australia/Melbourne")
	v.SetDefault("storage.backend", BackendLocal)
	v.SetDefault("storage.base_dir", "_data")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "")
	v.SetDefault("records.backend", BackendObject)
	v.SetDefault("records.dsn", "")
	v.SetDefault("records.table", "records")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("metrics.listen_addr", "")
	v.SetDefault("telemetry.service_name", "topic-harvester")
	v.SetDefault("telemetry.project_id", "")
	v.SetDefault("telemetry.sample_ratio", 1.0)
	v.SetDefault("runlog.dir", "_data/logs")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Crawl.SitePrefix == "" {
		return fmt.Errorf("crawl.site_prefix is required")
	}
	if !strings.HasPrefix(c.Crawl.ListingURL, "http") {
		return fmt.Errorf("crawl.listing_url must be an http(s) URL")
	}
	if c.Crawl.CutoffYear <= 0 {
		return fmt.Errorf("crawl.cutoff_year must be > 0")
	}
	if c.Acquire.Concurrency < 0 || c.Extract.Concurrency < 0 {
		return fmt.Errorf("acquire.concurrency and extract.concurrency must be >= 0")
	}
	if c.Acquire.DocumentDelay < 0 || c.Acquire.ImageDelay < 0 || c.Crawl.SettleDelay < 0 {
		return fmt.Errorf("delays must be >= 0")
	}
	if c.Acquire.RequestTimeout <= 0 {
		return fmt.Errorf("acquire.request_timeout must be > 0")
	}
	switch c.Storage.Backend {
	case BackendLocal:
		if c.Storage.BaseDir == "" {
			return fmt.Errorf("storage.base_dir is required for the local backend")
		}
	case BackendGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket is required for the gcs backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("storage.backend %q is not one of local, gcs, memory", c.Storage.Backend)
	}
	switch c.Records.Backend {
	case BackendObject:
	case BackendPostgres:
		if c.Records.DSN == "" {
			return fmt.Errorf("records.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("records.backend %q is not one of object, postgres", c.Records.Backend)
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be between 0 and 1")
	}
	if c.Acquire.Topic != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when acquire.topic is set")
	}
	return nil
}
