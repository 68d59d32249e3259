// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig          `mapstructure:"app"`
	Server        ServerConfig       `mapstructure:"server"`
	Admin         AdminConfig        `mapstructure:"admin"`
	Store         StoreConfig        `mapstructure:"store"`
	Database      DatabaseConfig     `mapstructure:"database"`
	Logging       LoggingConfig      `mapstructure:"logging"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	RateLimit     RateLimitConfig    `mapstructure:"rate_limit"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Address         string `mapstructure:"address"`
	ReadTimeout     int    `mapstructure:"read_timeout"`     // milliseconds
	WriteTimeout    int    `mapstructure:"write_timeout"`    // milliseconds
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"` // milliseconds
	MaxBodyBytes    int64  `mapstructure:"max_body_bytes"`
}

// AdminConfig holds the server-side admin secret.
type AdminConfig struct {
	Secret string `mapstructure:"secret"`
}

// Store backends
const (
	BackendFile     = "file"
	BackendGitHub   = "github"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// StoreConfig selects and configures the Dataset backend.
type StoreConfig struct {
	Backend         string `mapstructure:"backend"`
	CreateIfMissing bool   `mapstructure:"create_if_missing"`
	Timeout         int    `mapstructure:"timeout"` // milliseconds

	File struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"file"`

	GitHub GitHubConfig `mapstructure:"github"`

	Postgres struct {
		Table string `mapstructure:"table"`
		Name  string `mapstructure:"name"`
	} `mapstructure:"postgres"`

	Redis struct {
		Key string `mapstructure:"key"`
	} `mapstructure:"redis"`
}

// GitHubConfig holds the contents API coordinates of the Dataset file.
type GitHubConfig struct {
	APIURL    string `mapstructure:"api_url"`
	Owner     string `mapstructure:"owner"`
	Repo      string `mapstructure:"repo"`
	Branch    string `mapstructure:"branch"`
	Path      string `mapstructure:"path"`
	Token     string `mapstructure:"token"`
	UserAgent string `mapstructure:"user_agent"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// NotificationConfig holds settings for admin decision notices.
type NotificationConfig struct {
	Timeout int `mapstructure:"timeout"` // milliseconds
	Email   struct {
		Enabled   bool   `mapstructure:"enabled"`
		FromEmail string `mapstructure:"from_email"`
	} `mapstructure:"email"`
	SMS struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"sms"`
	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`
}

// RateLimitConfig throttles signup and login per client address.
type RateLimitConfig struct {
	RequestsPerSecond int `mapstructure:"requests_per_second"`
	Burst             int `mapstructure:"burst"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
