// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	// 1. base config
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	// 2. environment overlay, optional
	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig()

	return finalize(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finalize(v)
}

func newViper() *viper.Viper {
	v := viper.New()

	// STORE_BACKEND overrides store.backend, and so on.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("app.name", "loan-club")
	v.SetDefault("server.address", ":8080")
	v.SetDefault("store.backend", BackendFile)
	v.SetDefault("store.create_if_missing", true)
	v.SetDefault("store.file.path", "data.json")
	v.SetDefault("store.github.api_url", "https://api.github.com")
	v.SetDefault("store.github.branch", "main")
	v.SetDefault("store.github.path", "data.json")
	v.SetDefault("admin.secret", "")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	return v
}

func finalize(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	overrideEmptyConfig(&cfg)
	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadEnvFile loads .env from the first location that has one
func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
		"../../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				fmt.Printf("Loaded .env from: %s\n", path)
				return
			}
		}
	}
}

// Find project root by looking for go.mod
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// expandEnvVars replaces ${VAR} placeholders in string values
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			expanded := os.ExpandEnv(strVal)
			if expanded != strVal {
				v.Set(key, expanded)
			}
		}
	}
}

// overrideEmptyConfig honors the legacy deployment environment names
func overrideEmptyConfig(cfg *Config) {
	if cfg.Admin.Secret == "" {
		for _, name := range []string{"ADMIN_KEY", "ADMIN_PASS"} {
			if val := os.Getenv(name); val != "" {
				cfg.Admin.Secret = val
				break
			}
		}
	}

	gh := &cfg.Store.GitHub
	if gh.Token == "" {
		gh.Token = os.Getenv("GITHUB_TOKEN")
	}
	// GITHUB_REPO is "owner/repo".
	if gh.Owner == "" || gh.Repo == "" {
		if val := os.Getenv("GITHUB_REPO"); val != "" {
			if owner, repo, ok := strings.Cut(val, "/"); ok {
				gh.Owner, gh.Repo = owner, repo
			}
		}
	}
	if val := os.Getenv("GITHUB_BRANCH"); val != "" {
		gh.Branch = val
	}

	if cfg.Database.Postgres.User == "" {
		cfg.Database.Postgres.User = os.Getenv("DB_USER")
	}
	if cfg.Database.Postgres.Password == "" {
		cfg.Database.Postgres.Password = os.Getenv("DB_PASSWORD")
	}
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15000
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30000
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30000
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = 5 << 20
	}

	if cfg.Store.Timeout == 0 {
		cfg.Store.Timeout = 10000
	}
	if cfg.Store.GitHub.UserAgent == "" {
		cfg.Store.GitHub.UserAgent = "loanclub-server"
	}
	if cfg.Store.Postgres.Table == "" {
		cfg.Store.Postgres.Table = "datasets"
	}
	if cfg.Store.Postgres.Name == "" {
		cfg.Store.Postgres.Name = "loanclub"
	}
	if cfg.Store.Redis.Key == "" {
		cfg.Store.Redis.Key = "loanclub:dataset"
	}

	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 10
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 2
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}

	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	if cfg.Notifications.Timeout == 0 {
		cfg.Notifications.Timeout = 5000
	}

	if cfg.RateLimit.RequestsPerSecond == 0 {
		cfg.RateLimit.RequestsPerSecond = 5
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = 10
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if cfg.Admin.Secret == "" {
		return fmt.Errorf("admin.secret is required")
	}

	switch cfg.Store.Backend {
	case BackendFile:
		if cfg.Store.File.Path == "" {
			return fmt.Errorf("store.file.path is required")
		}
	case BackendGitHub:
		gh := cfg.Store.GitHub
		if gh.Owner == "" || gh.Repo == "" {
			return fmt.Errorf("store.github.owner and store.github.repo are required")
		}
		if gh.Token == "" {
			return fmt.Errorf("store.github.token is required")
		}
	case BackendPostgres:
		pg := cfg.Database.Postgres
		if pg.Host == "" {
			return fmt.Errorf("database.postgres.host is required")
		}
		if pg.Database == "" {
			return fmt.Errorf("database.postgres.database is required")
		}
		if pg.User == "" {
			return fmt.Errorf("database.postgres.user is required")
		}
	case BackendRedis:
		if cfg.Database.Redis.Address == "" {
			return fmt.Errorf("database.redis.address is required")
		}
	default:
		return fmt.Errorf("store.backend %q is not supported", cfg.Store.Backend)
	}

	if cfg.Notifications.Email.Enabled && cfg.Notifications.Email.FromEmail == "" {
		return fmt.Errorf("notifications.email.from_email is required when email is enabled")
	}

	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
