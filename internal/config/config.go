package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig        `mapstructure:"server"`
	Store        StoreConfig         `mapstructure:"store"`
	Cache        CacheConfig         `mapstructure:"cache"`
	Redis        RedisConfig         `mapstructure:"redis"`
	MinIO        MinIOConfig         `mapstructure:"minio"`
	Files        FilesConfig         `mapstructure:"files"`
	Mail         MailConfig          `mapstructure:"mail"`
	JWT          JWTConfig           `mapstructure:"jwt"`
	Coordinators []CoordinatorConfig `mapstructure:"coordinators"`
	Audit        AuditConfig         `mapstructure:"audit"`
	Log          LogConfig           `mapstructure:"log"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxUploadMB     int           `mapstructure:"max_upload_mb"`
}

// StoreConfig locates the request workbook.
type StoreConfig struct {
	Path          string        `mapstructure:"path"`
	Sheet         string        `mapstructure:"sheet"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
}

// CacheConfig selects the table cache: memory, redis or none.
type CacheConfig struct {
	Backend string        `mapstructure:"backend"`
	TTL     time.Duration `mapstructure:"ttl"`
	Key     string        `mapstructure:"key"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type MinIOConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	PublicURL string `mapstructure:"public_url"`
}

// FilesConfig selects where uploads go: disk or minio.
type FilesConfig struct {
	Backend   string            `mapstructure:"backend"`
	Dir       string            `mapstructure:"dir"`
	PublicURL string            `mapstructure:"public_url"`
	Prefixes  map[string]string `mapstructure:"prefixes"`
}

// MailConfig selects the mail sender: mailjet or log.
type MailConfig struct {
	Backend      string `mapstructure:"backend"`
	APIKey       string `mapstructure:"api_key"`
	APISecret    string `mapstructure:"api_secret"`
	FromEmail    string `mapstructure:"from_email"`
	FromName     string `mapstructure:"from_name"`
	AppURL       string `mapstructure:"app_url"`
	ContactEmail string `mapstructure:"contact_email"`
	SystemName   string `mapstructure:"system_name"`
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"ttl"`
}

type CoordinatorConfig struct {
	Email        string `mapstructure:"email"`
	Name         string `mapstructure:"name"`
	PasswordHash string `mapstructure:"password_hash"`
	Notify       bool   `mapstructure:"notify"`
}

// AuditConfig is the database of the status change history.
type AuditConfig struct {
	Driver   string `mapstructure:"driver"`
	DSN      string `mapstructure:"dsn"`
	LogLevel string `mapstructure:"log_level"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configs/config.yaml or ./config.yaml, or file when given, and
// applies environment overrides.
func Load(file string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	bindEnvVariables(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.max_upload_mb", 50)

	v.SetDefault("store.path", "data/requests.xlsx")
	v.SetDefault("store.sheet", "Communication")
	v.SetDefault("store.retry_attempts", 3)
	v.SetDefault("store.retry_delay", 500*time.Millisecond)

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.ttl", 600*time.Second)
	v.SetDefault("cache.key", "requestdesk:requests")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("files.backend", "disk")
	v.SetDefault("files.dir", "data/files")
	v.SetDefault("files.public_url", "http://localhost:8080/files")

	v.SetDefault("mail.backend", "log")
	v.SetDefault("mail.from_name", "CGHPI Communications")
	v.SetDefault("mail.system_name", "Communications Request System")

	v.SetDefault("jwt.issuer", "requestdesk")
	v.SetDefault("jwt.ttl", 12*time.Hour)

	v.SetDefault("audit.driver", "sqlite")
	v.SetDefault("audit.dsn", "data/requestdesk.db")
	v.SetDefault("audit.log_level", "warn")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

func bindEnvVariables(v *viper.Viper) {
	// Server
	v.BindEnv("server.port", "SERVER_PORT")
	v.BindEnv("server.mode", "SERVER_MODE")

	// Store
	v.BindEnv("store.path", "STORE_PATH")
	v.BindEnv("cache.backend", "CACHE_BACKEND")

	// Redis
	v.BindEnv("redis.enabled", "REDIS_ENABLED")
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	// MinIO
	v.BindEnv("minio.endpoint", "MINIO_ENDPOINT")
	v.BindEnv("minio.access_key", "MINIO_ACCESS_KEY")
	v.BindEnv("minio.secret_key", "MINIO_SECRET_KEY")
	v.BindEnv("minio.bucket", "MINIO_BUCKET")
	v.BindEnv("minio.public_url", "MINIO_PUBLIC_URL")

	// Files
	v.BindEnv("files.backend", "FILES_BACKEND")
	v.BindEnv("files.dir", "FILES_DIR")
	v.BindEnv("files.public_url", "FILES_PUBLIC_URL")

	// Mail
	v.BindEnv("mail.backend", "MAIL_BACKEND")
	v.BindEnv("mail.api_key", "MAILJET_API_KEY")
	v.BindEnv("mail.api_secret", "MAILJET_API_SECRET")
	v.BindEnv("mail.from_email", "MAIL_FROM_EMAIL")
	v.BindEnv("mail.app_url", "APP_URL")

	// JWT
	v.BindEnv("jwt.secret", "JWT_SECRET")

	// Audit
	v.BindEnv("audit.driver", "AUDIT_DRIVER")
	v.BindEnv("audit.dsn", "AUDIT_DSN")

	// Log
	v.BindEnv("log.level", "LOG_LEVEL")
	v.BindEnv("log.format", "LOG_FORMAT")
}

// Validate checks the settings the selected backends need.
func (c *Config) Validate() error {
	var errs []error
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("jwt.secret is required"))
	}
	switch c.Cache.Backend {
	case "memory", "none":
	case "redis":
		if !c.Redis.Enabled {
			errs = append(errs, errors.New("cache.backend redis needs redis.enabled"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown cache.backend %q", c.Cache.Backend))
	}
	switch c.Files.Backend {
	case "disk":
		if c.Files.Dir == "" {
			errs = append(errs, errors.New("files.dir is required for the disk backend"))
		}
	case "minio":
		if c.MinIO.Endpoint == "" || c.MinIO.Bucket == "" {
			errs = append(errs, errors.New("minio.endpoint and minio.bucket are required for the minio backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown files.backend %q", c.Files.Backend))
	}
	switch c.Mail.Backend {
	case "log":
	case "mailjet":
		if c.Mail.APIKey == "" || c.Mail.APISecret == "" || c.Mail.FromEmail == "" {
			errs = append(errs, errors.New("mail.api_key, mail.api_secret and mail.from_email are required for mailjet"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown mail.backend %q", c.Mail.Backend))
	}
	return errors.Join(errs...)
}

// Addr is the listen address of the HTTP server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

// Addr is the redis host:port.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// GetEnvOrDefault returns the variable or fallback when it is unset.
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
