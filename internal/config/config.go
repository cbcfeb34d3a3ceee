package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	SiteURL         string          `mapstructure:"site_url" validate:"required,url"`
	VaultPath       string          `mapstructure:"vault_path" validate:"omitempty,dir"`
	Database        DatabaseConfig  `mapstructure:"database" validate:"required"`
	Sync            SyncConfig      `mapstructure:"sync"`
	Dispatch        DispatchConfig  `mapstructure:"dispatch"`
	Receiver        ReceiverConfig  `mapstructure:"receiver"`
	AI              AIConfig        `mapstructure:"ai"`
	Reconcile       ReconcileConfig `mapstructure:"reconcile"`
	Retention       RetentionConfig `mapstructure:"retention"`
	Log             LogConfig       `mapstructure:"log"`
	IgnorePatterns  []string        `mapstructure:"ignore_patterns"`
	IncludePatterns []string        `mapstructure:"include_patterns"`
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host     string `mapstructure:"host" validate:"required"`
	Port     int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	User     string `mapstructure:"user" validate:"required"`
	Password string `mapstructure:"password" validate:"required"`
	Database string `mapstructure:"database" validate:"required"`
	Schema   string `mapstructure:"schema"` // derived from the vault or site name when empty
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int32  `mapstructure:"max_conns" validate:"min=1"`
}

// SyncConfig holds vault sync behaviour
type SyncConfig struct {
	DebounceMs      int `mapstructure:"debounce_ms"`
	MaxBinarySizeMB int `mapstructure:"max_binary_size_mb"`
	RetryAttempts   int `mapstructure:"retry_attempts" validate:"min=0"`
	RetryDelayMs    int `mapstructure:"retry_delay_ms"`
}

// DispatchConfig controls outbound deliveries
type DispatchConfig struct {
	Timeout      time.Duration `mapstructure:"timeout" validate:"gt=0"`
	ProbeTimeout time.Duration `mapstructure:"probe_timeout" validate:"gt=0"`
	WakePause    time.Duration `mapstructure:"wake_pause" validate:"min=0"`
	Workers      int           `mapstructure:"workers" validate:"min=1,max=64"`
	MaxErrorBody int           `mapstructure:"max_error_body" validate:"min=0"`
}

// ReceiverConfig controls the receiving HTTP API
type ReceiverConfig struct {
	ListenAddr         string        `mapstructure:"listen_addr" validate:"required"`
	DefaultAuthor      string        `mapstructure:"default_author" validate:"required"`
	DownloadImages     bool          `mapstructure:"download_images"`
	AllowSEOOverride   bool          `mapstructure:"allow_seo_override"`
	AllowThemeOverride bool          `mapstructure:"allow_theme_override"`
	MediaTimeout       time.Duration `mapstructure:"media_timeout" validate:"gt=0"`
	MaxMediaBytes      int64         `mapstructure:"max_media_bytes" validate:"gt=0"`
	MaxBodyBytes       int64         `mapstructure:"max_body_bytes" validate:"gt=0"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
}

// AIConfig configures the rewrite provider
type AIConfig struct {
	Provider  string        `mapstructure:"provider" validate:"oneof=anthropic none"`
	APIKey    string        `mapstructure:"api_key"`
	Model     string        `mapstructure:"model"`
	MaxWords  int           `mapstructure:"max_words" validate:"min=0"`
	MaxTokens int64         `mapstructure:"max_tokens" validate:"min=1"`
	Timeout   time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

// Enabled reports whether a provider is configured
func (a *AIConfig) Enabled() bool {
	return a.Provider != "none" && a.APIKey != ""
}

// ReconcileConfig controls the stuck-delivery sweep
type ReconcileConfig struct {
	Interval   time.Duration `mapstructure:"interval" validate:"gt=0"`
	StuckAfter time.Duration `mapstructure:"stuck_after" validate:"gt=0"`
}

// RetentionConfig controls pruning of activity and delivery rows
type RetentionConfig struct {
	Interval   time.Duration `mapstructure:"interval" validate:"gt=0"`
	Activity   time.Duration `mapstructure:"activity" validate:"gt=0"`
	Deliveries time.Duration `mapstructure:"deliveries" validate:"gt=0"`
}

// LogConfig selects the slog handler
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json text"`
}

// ConnectionString returns the PostgreSQL connection string
func (d *DatabaseConfig) ConnectionString() string {
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}
	connStr := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, sslMode,
	)
	if d.Schema != "" {
		connStr += "&search_path=" + d.Schema + ",public"
	}
	return connStr
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Port:     5432,
			SSLMode:  "require",
			MaxConns: 10,
		},
		Sync: SyncConfig{
			DebounceMs:      2000,
			MaxBinarySizeMB: 50,
			RetryAttempts:   3,
			RetryDelayMs:    1000,
		},
		Dispatch: DispatchConfig{
			Timeout:      45 * time.Second,
			ProbeTimeout: 5 * time.Second,
			WakePause:    3 * time.Second,
			Workers:      4,
			MaxErrorBody: 2048,
		},
		Receiver: ReceiverConfig{
			ListenAddr:      ":8080",
			DefaultAuthor:   "admin",
			DownloadImages:  true,
			MediaTimeout:    30 * time.Second,
			MaxMediaBytes:   50 << 20,
			MaxBodyBytes:    10 << 20,
			ShutdownTimeout: 15 * time.Second,
		},
		AI: AIConfig{
			Provider:  "anthropic",
			Model:     "claude-sonnet-4-5",
			MaxWords:  4000,
			MaxTokens: 8192,
			Timeout:   90 * time.Second,
		},
		Reconcile: ReconcileConfig{
			Interval:   time.Minute,
			StuckAfter: 10 * time.Minute,
		},
		Retention: RetentionConfig{
			Interval:   6 * time.Hour,
			Activity:   30 * 24 * time.Hour,
			Deliveries: 90 * 24 * time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		IgnorePatterns: []string{
			".obsidian/**",
			".trash/**",
			".git/**",
			"**/.DS_Store",
			"**/node_modules/**",
		},
	}
}

// Load reads configuration from file, .env and environment
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v, DefaultConfig())

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(getConfigDir())
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("SPOKESYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// environment-only configuration is fine
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg.Database.Password = os.ExpandEnv(cfg.Database.Password)
	cfg.AI.APIKey = os.ExpandEnv(cfg.AI.APIKey)
	cfg.SiteURL = strings.TrimRight(cfg.SiteURL, "/")
	cfg.VaultPath = expandPath(cfg.VaultPath)

	if cfg.Database.Schema == "" {
		cfg.Database.Schema = cfg.DefaultSchema()
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks a loaded configuration
func Validate(cfg *Config) error {
	validate := validator.New()

	validate.RegisterValidation("dir", func(fl validator.FieldLevel) bool {
		path := fl.Field().String()
		if path == "" {
			return false
		}
		info, err := os.Stat(path)
		if err != nil {
			return false
		}
		return info.IsDir()
	})

	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// DefaultSchema derives the schema from the vault folder, or the site host
func (c *Config) DefaultSchema() string {
	if c.VaultPath != "" {
		return SanitizeIdentifier(filepath.Base(c.VaultPath))
	}
	host := c.SiteURL
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	if i := strings.IndexAny(host, ":/"); i >= 0 {
		host = host[:i]
	}
	return SanitizeIdentifier(host)
}

// HasVault reports whether the hub side is configured
func (c *Config) HasVault() bool {
	return c.VaultPath != ""
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("database.port", d.Database.Port)
	v.SetDefault("database.sslmode", d.Database.SSLMode)
	v.SetDefault("database.max_conns", d.Database.MaxConns)
	v.SetDefault("sync.debounce_ms", d.Sync.DebounceMs)
	v.SetDefault("sync.max_binary_size_mb", d.Sync.MaxBinarySizeMB)
	v.SetDefault("sync.retry_attempts", d.Sync.RetryAttempts)
	v.SetDefault("sync.retry_delay_ms", d.Sync.RetryDelayMs)
	v.SetDefault("dispatch.timeout", d.Dispatch.Timeout)
	v.SetDefault("dispatch.probe_timeout", d.Dispatch.ProbeTimeout)
	v.SetDefault("dispatch.wake_pause", d.Dispatch.WakePause)
	v.SetDefault("dispatch.workers", d.Dispatch.Workers)
	v.SetDefault("dispatch.max_error_body", d.Dispatch.MaxErrorBody)
	v.SetDefault("receiver.listen_addr", d.Receiver.ListenAddr)
	v.SetDefault("receiver.default_author", d.Receiver.DefaultAuthor)
	v.SetDefault("receiver.download_images", d.Receiver.DownloadImages)
	v.SetDefault("receiver.allow_seo_override", d.Receiver.AllowSEOOverride)
	v.SetDefault("receiver.allow_theme_override", d.Receiver.AllowThemeOverride)
	v.SetDefault("receiver.media_timeout", d.Receiver.MediaTimeout)
	v.SetDefault("receiver.max_media_bytes", d.Receiver.MaxMediaBytes)
	v.SetDefault("receiver.max_body_bytes", d.Receiver.MaxBodyBytes)
	v.SetDefault("receiver.shutdown_timeout", d.Receiver.ShutdownTimeout)
	v.SetDefault("ai.provider", d.AI.Provider)
	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.model", d.AI.Model)
	v.SetDefault("ai.max_words", d.AI.MaxWords)
	v.SetDefault("ai.max_tokens", d.AI.MaxTokens)
	v.SetDefault("ai.timeout", d.AI.Timeout)
	v.SetDefault("reconcile.interval", d.Reconcile.Interval)
	v.SetDefault("reconcile.stuck_after", d.Reconcile.StuckAfter)
	v.SetDefault("retention.interval", d.Retention.Interval)
	v.SetDefault("retention.activity", d.Retention.Activity)
	v.SetDefault("retention.deliveries", d.Retention.Deliveries)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("ignore_patterns", d.IgnorePatterns)
	// registered so AutomaticEnv can see these keys
	v.SetDefault("site_url", "")
	v.SetDefault("vault_path", "")
	v.SetDefault("database.host", "")
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "")
	v.SetDefault("database.schema", "")
}

// getConfigDir returns the appropriate config directory for the OS
func getConfigDir() string {
	switch runtime.GOOS {
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "spokesync")
		}
		return filepath.Join(os.Getenv("USERPROFILE"), ".config", "spokesync")
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			return filepath.Join(xdgConfig, "spokesync")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "spokesync")
	}
}

// ConfigDir returns the directory config and state files live in
func ConfigDir() string {
	return getConfigDir()
}

// GetStateDir returns the directory for storing state files
func GetStateDir() (string, error) {
	dir := getConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create state directory: %w", err)
	}
	return dir, nil
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, path[1:])
	}
	return os.ExpandEnv(path)
}

var (
	invalidIdentChars = regexp.MustCompile(`[^a-z0-9_]`)
	repeatedUnderline = regexp.MustCompile(`_+`)
)

// SanitizeIdentifier turns a vault or host name into a PostgreSQL schema name:
// lowercase, [a-z0-9_] only, never starting with a digit, at most 63 bytes.
func SanitizeIdentifier(name string) string {
	name = strings.ToLower(name)
	name = strings.NewReplacer(" ", "_", "-", "_", ".", "_").Replace(name)
	name = invalidIdentChars.ReplaceAllString(name, "")
	name = repeatedUnderline.ReplaceAllString(name, "_")
	name = strings.Trim(name, "_")

	if len(name) == 0 {
		name = "spokesync"
	} else if unicode.IsDigit(rune(name[0])) {
		name = "site_" + name
	}

	if len(name) > 63 {
		name = strings.TrimRight(name[:63], "_")
	}
	return name
}
