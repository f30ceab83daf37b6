// Package config loads the YAML configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid config")

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
	StorageSQLite   = "sqlite"

	CacheMemory = "memory"
	CacheRedis  = "redis"

	MediaLocal = "local"
	MediaMinio = "minio"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Metrics MetricsConfig `yaml:"metrics"`
	Storage StorageConfig `yaml:"storage"`
	Cache   CacheConfig   `yaml:"cache"`
	Media   MediaConfig   `yaml:"media"`
	Auth    AuthConfig    `yaml:"auth"`
	Log     LogConfig     `yaml:"log"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type StorageConfig struct {
	// Driver is one of memory, postgres, sqlite.
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type CacheConfig struct {
	// Driver is one of memory, redis.
	Driver string        `yaml:"driver"`
	TTL    time.Duration `yaml:"ttl"`
	Size   int           `yaml:"size"`
	Redis  RedisConfig   `yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type MediaConfig struct {
	// Driver is one of local, minio.
	Driver         string      `yaml:"driver"`
	Dir            string      `yaml:"dir"`
	URLPrefix      string      `yaml:"url_prefix"`
	MaxUploadBytes int64       `yaml:"max_upload_bytes"`
	Minio          MinioConfig `yaml:"minio"`
}

type MinioConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
	PublicURL string `yaml:"public_url"`
}

type AuthConfig struct {
	SessionKey    string        `yaml:"session_key"`
	SecureCookies bool          `yaml:"secure_cookies"`
	AdminSecret   string        `yaml:"admin_secret"`
	AdminTokenTTL time.Duration `yaml:"admin_token_ttl"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a configuration that runs entirely in process.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8000",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Metrics: MetricsConfig{Enabled: true, Addr: ":9090"},
		Storage: StorageConfig{Driver: StorageMemory},
		Cache: CacheConfig{
			Driver: CacheMemory,
			TTL:    20 * time.Second,
			Size:   1024,
			Redis:  RedisConfig{Addr: "localhost:6379", Prefix: "blog"},
		},
		Media: MediaConfig{
			Driver:         MediaLocal,
			Dir:            "media",
			URLPrefix:      "/media/",
			MaxUploadBytes: 5 << 20,
			Minio:          MinioConfig{Bucket: "blog-media"},
		},
		Auth: AuthConfig{AdminTokenTTL: time.Hour},
		Log:  LogConfig{Level: "info"},
	}
}

// Load reads path over the defaults and applies environment overrides.
// An empty path loads defaults only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv(os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup("BLOG_SESSION_KEY"); ok {
		c.Auth.SessionKey = v
	}
	if v, ok := lookup("BLOG_ADMIN_SECRET"); ok {
		c.Auth.AdminSecret = v
	}
	if v, ok := lookup("BLOG_STORAGE_DSN"); ok {
		c.Storage.DSN = v
	}
}

func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Driver {
	case StorageMemory:
	case StoragePostgres, StorageSQLite:
		if c.Storage.DSN == "" {
			errs = append(errs, fmt.Errorf("storage.dsn is required for %s", c.Storage.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.driver %q", c.Storage.Driver))
	}

	switch c.Cache.Driver {
	case CacheMemory, CacheRedis:
	default:
		errs = append(errs, fmt.Errorf("unknown cache.driver %q", c.Cache.Driver))
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, errors.New("cache.ttl must be positive"))
	}

	switch c.Media.Driver {
	case MediaLocal:
		if c.Media.Dir == "" {
			errs = append(errs, errors.New("media.dir is required for local media"))
		}
	case MediaMinio:
		if c.Media.Minio.Endpoint == "" || c.Media.Minio.Bucket == "" {
			errs = append(errs, errors.New("media.minio.endpoint and media.minio.bucket are required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown media.driver %q", c.Media.Driver))
	}
	if c.Media.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("media.max_upload_bytes must be positive"))
	}

	if len(c.Auth.SessionKey) < 32 {
		errs = append(errs, errors.New("auth.session_key (BLOG_SESSION_KEY) must be at least 32 bytes"))
	}
	if c.Auth.AdminSecret == "" {
		errs = append(errs, errors.New("auth.admin_secret (BLOG_ADMIN_SECRET) is required"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
