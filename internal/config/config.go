package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Resolver   ResolverConfig   `mapstructure:"resolver"`
	Sources    SourcesConfig    `mapstructure:"sources"`
	Validator  ValidatorConfig  `mapstructure:"validator"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Catalog    CatalogConfig    `mapstructure:"catalog"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Format      string `mapstructure:"format"`
	Environment string `mapstructure:"environment"`
	File        string `mapstructure:"file"`
	FileOnly    bool   `mapstructure:"file_only"`
}

// CacheConfig configures the on-disk asset store.
type CacheConfig struct {
	Dir               string        `mapstructure:"dir"`
	MaxAge            time.Duration `mapstructure:"max_age"`
	Manifest          string        `mapstructure:"manifest"` // file | db
	MinWidth          int           `mapstructure:"min_width"`
	MinHeight         int           `mapstructure:"min_height"`
	MaxBytes          int64         `mapstructure:"max_bytes"`
	PlaceholderWidth  int           `mapstructure:"placeholder_width"`
	PlaceholderHeight int           `mapstructure:"placeholder_height"`
	PrewarmTimeout    time.Duration `mapstructure:"prewarm_timeout"`
	RefreshTimeout    time.Duration `mapstructure:"refresh_timeout"`
}

// ResolverConfig configures retries, pacing and the worker pool.
type ResolverConfig struct {
	Workers        int           `mapstructure:"workers"`
	Attempts       int           `mapstructure:"attempts"`
	BackoffBase    time.Duration `mapstructure:"backoff_base"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"`
	MinInterval    time.Duration `mapstructure:"min_interval"`
	TotalBudget    time.Duration `mapstructure:"total_budget"`
	NegativeTTL    time.Duration `mapstructure:"negative_ttl"`
	MaxCandidates  int           `mapstructure:"max_candidates"`
}

type SourcesConfig struct {
	// Priority maps a content hint to the ordered source names tried for it.
	Priority map[string][]string `mapstructure:"priority"`
	Pexels   PexelsConfig        `mapstructure:"pexels"`
	Scrape   ScrapeConfig        `mapstructure:"scrape"`
	Direct   DirectConfig        `mapstructure:"direct"`
	Library  LibraryConfig       `mapstructure:"library"`
	Bucket   BucketConfig        `mapstructure:"bucket"`
}

type PexelsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	PerPage int    `mapstructure:"per_page"`
}

type ScrapeConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	BaseURL   string `mapstructure:"base_url"`
	UserAgent string `mapstructure:"user_agent"`
}

type DirectConfig struct {
	Enabled bool                `mapstructure:"enabled"`
	URLs    map[string][]string `mapstructure:"urls"`
}

type LibraryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type BucketConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Prefix  string `mapstructure:"prefix"`
}

// ValidatorConfig holds per-role limits and the phrase deny-list.
type ValidatorConfig struct {
	Limits       RoleLimits `mapstructure:"limits"`
	DenyList     []string   `mapstructure:"deny_list"`
	CrampedRatio float64    `mapstructure:"cramped_ratio"`
	ThinText     int        `mapstructure:"thin_text"`
	HookMin      int        `mapstructure:"hook_min"`
}

type RoleLimits struct {
	Hook int `mapstructure:"hook"`
	Body int `mapstructure:"body"`
	CTA  int `mapstructure:"cta"`
}

type ClassifierConfig struct {
	LLM LLMConfig `mapstructure:"llm"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite | postgres
	Path            string        `mapstructure:"path"`
	URL             string        `mapstructure:"url"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	LogQueries      bool          `mapstructure:"log_queries"`
}

// DSN returns the driver-specific data source name.
func (c DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		return c.URL
	}
	return c.Path
}

type StorageConfig struct {
	Type      string `mapstructure:"type"` // r2 | s3 | s3compatible, empty auto-detects
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	PublicURL string `mapstructure:"public_url"`
}

type CatalogConfig struct {
	// Path to a YAML catalog; empty uses the built-in one.
	Path string `mapstructure:"path"`
}

// DefaultDenyList holds formulaic phrases that read as machine-written.
var DefaultDenyList = []string{
	"in today's world",
	"let's dive in",
	"let's dive into",
	"without further ado",
	"it's important to note",
	"it's important to remember",
	"in conclusion",
	"furthermore",
	"moreover",
	"nevertheless",
	"truly revolutionary",
	"unlock your potential",
	"game changer",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.environment", "local")
	v.SetDefault("log.file", "./data/logs/carousel.log")

	v.SetDefault("cache.dir", "./data/cache")
	v.SetDefault("cache.max_age", 30*24*time.Hour)
	v.SetDefault("cache.manifest", "file")
	v.SetDefault("cache.min_width", 200)
	v.SetDefault("cache.min_height", 200)
	v.SetDefault("cache.max_bytes", 20<<20)
	v.SetDefault("cache.placeholder_width", 1080)
	v.SetDefault("cache.placeholder_height", 1080)
	v.SetDefault("cache.prewarm_timeout", 2*time.Minute)
	v.SetDefault("cache.refresh_timeout", 30*time.Second)

	v.SetDefault("resolver.workers", 4)
	v.SetDefault("resolver.attempts", 3)
	v.SetDefault("resolver.backoff_base", 500*time.Millisecond)
	v.SetDefault("resolver.attempt_timeout", 8*time.Second)
	v.SetDefault("resolver.min_interval", 500*time.Millisecond)
	v.SetDefault("resolver.total_budget", 45*time.Second)
	v.SetDefault("resolver.negative_ttl", 10*time.Minute)
	v.SetDefault("resolver.max_candidates", 5)

	v.SetDefault("sources.priority", map[string][]string{
		"news":        {"pexels", "scrape"},
		"scene":       {"scrape", "bucket"},
		"infographic": {"pexels", "library"},
		"meme":        {"library"},
	})
	v.SetDefault("sources.pexels.enabled", true)
	v.SetDefault("sources.pexels.base_url", "https://api.pexels.com/v1")
	v.SetDefault("sources.pexels.per_page", 5)
	v.SetDefault("sources.scrape.enabled", true)
	v.SetDefault("sources.scrape.base_url", "https://www.bing.com/images/search")
	v.SetDefault("sources.scrape.user_agent", "Mozilla/5.0 (compatible; carousel-bot/1.0)")
	v.SetDefault("sources.direct.enabled", false)
	v.SetDefault("sources.library.enabled", true)
	v.SetDefault("sources.library.path", "./data/library")
	v.SetDefault("sources.bucket.enabled", false)
	v.SetDefault("sources.bucket.prefix", "curated")

	v.SetDefault("validator.limits.hook", 150)
	v.SetDefault("validator.limits.body", 350)
	v.SetDefault("validator.limits.cta", 180)
	v.SetDefault("validator.deny_list", DefaultDenyList)
	v.SetDefault("validator.cramped_ratio", 0.9)
	v.SetDefault("validator.thin_text", 20)
	v.SetDefault("validator.hook_min", 30)

	v.SetDefault("classifier.llm.enabled", false)
	v.SetDefault("classifier.llm.model", "gpt-4o-mini")
	v.SetDefault("classifier.llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("classifier.llm.timeout", 10*time.Second)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/carousel.db")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("storage.use_ssl", true)
	v.SetDefault("storage.bucket", "carousel-assets")
}

// Load reads configuration from a YAML file, .env and the environment.
// Parameters:
//   - configPath: explicit file path; empty searches ./configs and the working directory.
// Returns:
//   - *Config: the loaded configuration.
//   - error: non-nil if the file exists but cannot be read or decoded.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Secrets are bound explicitly
	_ = v.BindEnv("sources.pexels.api_key", "PEXELS_API_KEY")
	_ = v.BindEnv("classifier.llm.api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("classifier.llm.base_url", "OPENAI_BASE_URL")
	_ = v.BindEnv("database.url", "DATABASE_URL")
	_ = v.BindEnv("storage.endpoint", "STORAGE_ENDPOINT")
	_ = v.BindEnv("storage.access_key", "STORAGE_ACCESS_KEY")
	_ = v.BindEnv("storage.secret_key", "STORAGE_SECRET_KEY")
	_ = v.BindEnv("storage.bucket", "STORAGE_BUCKET")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Classifier.LLM.ResolveEnvVars()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings the pipeline cannot run without.
func (c *Config) Validate() error {
	if c.Cache.Dir == "" {
		return fmt.Errorf("cache.dir must be set")
	}
	switch c.Cache.Manifest {
	case "file", "db":
	default:
		return fmt.Errorf("cache.manifest must be file or db, got %q", c.Cache.Manifest)
	}
	if c.Resolver.Workers < 1 {
		return fmt.Errorf("resolver.workers must be >= 1, got %d", c.Resolver.Workers)
	}
	if c.Resolver.Attempts < 1 {
		return fmt.Errorf("resolver.attempts must be >= 1, got %d", c.Resolver.Attempts)
	}
	if c.Resolver.AttemptTimeout <= 0 {
		return fmt.Errorf("resolver.attempt_timeout must be positive")
	}
	l := c.Validator.Limits
	if l.Hook <= 0 || l.Body <= 0 || l.CTA <= 0 {
		return fmt.Errorf("validator.limits must all be positive, got %+v", l)
	}
	return nil
}
