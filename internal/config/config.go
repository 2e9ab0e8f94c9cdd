package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"slices"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const appName = "nebula"

// Repository backends
const (
	BackendAPI      = "api"
	BackendPostgres = "postgres"
)

// Draft store backends
const (
	DraftsFile  = "file"
	DraftsRedis = "redis"
)

// Config holds all application configuration
type Config struct {
	Repository string          `mapstructure:"repository" validate:"oneof=api postgres"`
	API        APIConfig       `mapstructure:"api"`
	Database   DatabaseConfig  `mapstructure:"database"`
	Drafts     DraftsConfig    `mapstructure:"drafts"`
	Autosave   AutosaveConfig  `mapstructure:"autosave"`
	Search     SearchConfig    `mapstructure:"search"`
	Workspace  WorkspaceConfig `mapstructure:"workspace"`
}

// APIConfig holds the notes backend connection
type APIConfig struct {
	BaseURL  string `mapstructure:"base_url" validate:"omitempty,url"`
	Token    string `mapstructure:"token"`
	TimeoutS int    `mapstructure:"timeout_s" validate:"min=1"`
	PageSize int    `mapstructure:"page_size" validate:"min=1,max=100"`
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port" validate:"min=1,max=65535"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	Schema   string `mapstructure:"schema"` // Optional: public when empty
	SSLMode  string `mapstructure:"sslmode" validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`
}

// DraftsConfig selects where unsaved edits are kept
type DraftsConfig struct {
	Backend   string `mapstructure:"backend" validate:"oneof=file redis"`
	Dir       string `mapstructure:"dir"`
	RedisURL  string `mapstructure:"redis_url"`
	KeyPrefix string `mapstructure:"key_prefix"`
	TTLHours  int    `mapstructure:"ttl_hours" validate:"min=0"`
}

// AutosaveConfig holds save timing
type AutosaveConfig struct {
	IntervalS      int `mapstructure:"interval_s" validate:"min=1"`
	SavedDisplayMs int `mapstructure:"saved_display_ms" validate:"min=0"`
	MaxRetries     int `mapstructure:"max_retries" validate:"min=0,max=10"`
	RetryBaseMs    int `mapstructure:"retry_base_ms" validate:"min=1"`
}

// SearchConfig holds list and semantic search defaults
type SearchConfig struct {
	Limit       int    `mapstructure:"limit" validate:"min=1,max=100"`
	DefaultSort string `mapstructure:"default_sort" validate:"oneof=date-desc date-asc name-asc name-desc"`
}

// WorkspaceConfig holds the watched markdown folder settings
type WorkspaceConfig struct {
	Dir            string   `mapstructure:"dir"`
	DebounceMs     int      `mapstructure:"debounce_ms" validate:"min=0"`
	IgnorePatterns []string `mapstructure:"ignore_patterns"`
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

func (a AutosaveConfig) Interval() time.Duration {
	return time.Duration(a.IntervalS) * time.Second
}

func (a AutosaveConfig) SavedDisplay() time.Duration {
	return time.Duration(a.SavedDisplayMs) * time.Millisecond
}

func (a AutosaveConfig) RetryBase() time.Duration {
	return time.Duration(a.RetryBaseMs) * time.Millisecond
}

func (a APIConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutS) * time.Second
}

// TTL is zero when drafts never expire
func (d DraftsConfig) TTL() time.Duration {
	return time.Duration(d.TTLHours) * time.Hour
}

func (w WorkspaceConfig) Debounce() time.Duration {
	return time.Duration(w.DebounceMs) * time.Millisecond
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Repository: BackendAPI,
		API: APIConfig{
			BaseURL:  "http://localhost:8000",
			TimeoutS: 30,
			PageSize: 100,
		},
		Database: DatabaseConfig{
			Port:    5432,
			SSLMode: "require",
		},
		Drafts: DraftsConfig{
			Backend:   DraftsFile,
			KeyPrefix: appName + ":",
		},
		Autosave: AutosaveConfig{
			IntervalS:      30,
			SavedDisplayMs: 2000,
			MaxRetries:     3,
			RetryBaseMs:    1000,
		},
		Search: SearchConfig{
			Limit:       10,
			DefaultSort: "date-desc",
		},
		Workspace: WorkspaceConfig{
			DebounceMs: 2000,
			IgnorePatterns: []string{
				".git/**",
				".trash/**",
				"**/.DS_Store",
				"**/node_modules/**",
			},
		},
	}
}

// Load reads configuration from file and environment
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Every key gets a default so NEBULA_* variables bind without a file
	defaults := DefaultConfig()
	v.SetDefault("repository", defaults.Repository)
	v.SetDefault("api.base_url", defaults.API.BaseURL)
	v.SetDefault("api.token", "")
	v.SetDefault("api.timeout_s", defaults.API.TimeoutS)
	v.SetDefault("api.page_size", defaults.API.PageSize)
	v.SetDefault("database.host", "")
	v.SetDefault("database.port", defaults.Database.Port)
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "")
	v.SetDefault("database.schema", "")
	v.SetDefault("database.sslmode", defaults.Database.SSLMode)
	v.SetDefault("drafts.backend", defaults.Drafts.Backend)
	v.SetDefault("drafts.dir", "")
	v.SetDefault("drafts.redis_url", "")
	v.SetDefault("drafts.key_prefix", defaults.Drafts.KeyPrefix)
	v.SetDefault("drafts.ttl_hours", 0)
	v.SetDefault("autosave.interval_s", defaults.Autosave.IntervalS)
	v.SetDefault("autosave.saved_display_ms", defaults.Autosave.SavedDisplayMs)
	v.SetDefault("autosave.max_retries", defaults.Autosave.MaxRetries)
	v.SetDefault("autosave.retry_base_ms", defaults.Autosave.RetryBaseMs)
	v.SetDefault("search.limit", defaults.Search.Limit)
	v.SetDefault("search.default_sort", defaults.Search.DefaultSort)
	v.SetDefault("workspace.dir", "")
	v.SetDefault("workspace.debounce_ms", defaults.Workspace.DebounceMs)
	v.SetDefault("workspace.ignore_patterns", defaults.Workspace.IgnorePatterns)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(getConfigDir())
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("NEBULA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is okay if we have environment variables
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Secrets may reference environment variables
	cfg.API.Token = os.ExpandEnv(cfg.API.Token)
	cfg.Database.Password = os.ExpandEnv(cfg.Database.Password)
	cfg.Drafts.RedisURL = os.ExpandEnv(cfg.Drafts.RedisURL)

	cfg.Workspace.Dir = expandPath(cfg.Workspace.Dir)
	cfg.Drafts.Dir = expandPath(cfg.Drafts.Dir)
	if cfg.Drafts.Dir == "" {
		cfg.Drafts.Dir = filepath.Join(getConfigDir(), "drafts")
	}
	if cfg.Database.Schema != "" {
		cfg.Database.Schema = SanitizeIdentifier(cfg.Database.Schema)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints and the settings each backend needs
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	switch cfg.Repository {
	case BackendAPI:
		if cfg.API.BaseURL == "" {
			return fmt.Errorf("config validation failed: api.base_url is required for the api repository")
		}
	case BackendPostgres:
		if err := cfg.Database.validate(); err != nil {
			return err
		}
	}

	if cfg.Drafts.Backend == DraftsRedis && cfg.Drafts.RedisURL == "" {
		return fmt.Errorf("config validation failed: drafts.redis_url is required for the redis draft store")
	}
	return nil
}

func (d *DatabaseConfig) validate() error {
	var missing []string
	for key, value := range map[string]string{
		"database.host":     d.Host,
		"database.user":     d.User,
		"database.database": d.Database,
	} {
		if value == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return fmt.Errorf("config validation failed: %s required for the postgres repository", strings.Join(missing, ", "))
	}
	return nil
}

// getConfigDir returns the appropriate config directory for the OS
func getConfigDir() string {
	switch runtime.GOOS {
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, appName)
		}
		return filepath.Join(os.Getenv("USERPROFILE"), ".config", appName)
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			return filepath.Join(xdgConfig, appName)
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", appName)
	}
}

// GetConfigDir returns the directory searched for config.yaml
func GetConfigDir() string {
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

// expandPath expands ~ and environment variables in a path
func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, path[1:])
	}
	return os.ExpandEnv(path)
}

var (
	invalidIdentChars  = regexp.MustCompile(`[^a-z0-9_]`)
	repeatedUnderscore = regexp.MustCompile(`_+`)
)

// SanitizeIdentifier converts a name into a valid PostgreSQL schema identifier:
// lowercase letters, digits and underscores, starting with a letter, at most
// 63 characters.
func SanitizeIdentifier(name string) string {
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, " ", "_")
	name = strings.ReplaceAll(name, "-", "_")
	name = invalidIdentChars.ReplaceAllString(name, "")
	name = repeatedUnderscore.ReplaceAllString(name, "_")
	name = strings.Trim(name, "_")

	if len(name) == 0 {
		name = "notes"
	} else if unicode.IsDigit(rune(name[0])) {
		name = "notes_" + name
	}

	// PostgreSQL max identifier length is 63 characters
	if len(name) > 63 {
		name = strings.TrimRight(name[:63], "_")
	}
	return name
}
