package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Notion NotionConfig `mapstructure:"notion" validate:"required"`
	Posts  PostsConfig  `mapstructure:"posts"`
	Images ImagesConfig `mapstructure:"images"`
	Sync   SyncConfig   `mapstructure:"sync"`
}

// NotionConfig holds Notion API connection settings
type NotionConfig struct {
	Token      string `mapstructure:"token" validate:"required"`
	DatabaseID string `mapstructure:"database_id" validate:"required,notionid"`
	BaseURL    string `mapstructure:"base_url" validate:"omitempty,url"`
	PageSize   int    `mapstructure:"page_size" validate:"min=1,max=100"`
	TimeoutMs  int    `mapstructure:"timeout_ms" validate:"min=1"`
	Attempts   int    `mapstructure:"attempts" validate:"min=1"`
}

// PostsConfig holds catalog behavior settings
type PostsConfig struct {
	PerPage int `mapstructure:"per_page" validate:"min=1"`
}

// ImagesConfig holds image pipeline settings
type ImagesConfig struct {
	Dir          string   `mapstructure:"dir" validate:"required"`
	Width        int      `mapstructure:"width" validate:"min=0"`
	MaxSizeMB    int      `mapstructure:"max_size_mb" validate:"min=1"`
	TimeoutMs    int      `mapstructure:"timeout_ms" validate:"min=1"`
	SkipPatterns []string `mapstructure:"skip_patterns"`
}

// SyncConfig holds sync run behavior settings
type SyncConfig struct {
	Concurrency     int    `mapstructure:"concurrency" validate:"min=1"`
	WatchIntervalMs int    `mapstructure:"watch_interval_ms" validate:"min=0"`
	SnapshotDir     string `mapstructure:"snapshot_dir"`
}

// Timeout returns the per-request timeout as a duration.
func (n *NotionConfig) Timeout() time.Duration {
	return time.Duration(n.TimeoutMs) * time.Millisecond
}

// Timeout returns the per-download timeout as a duration.
func (i *ImagesConfig) Timeout() time.Duration {
	return time.Duration(i.TimeoutMs) * time.Millisecond
}

// WatchInterval returns the resync interval for watch mode.
func (s *SyncConfig) WatchInterval() time.Duration {
	return time.Duration(s.WatchIntervalMs) * time.Millisecond
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Notion: NotionConfig{
			BaseURL:   "https://api.notion.com",
			PageSize:  100,
			TimeoutMs: 10000,
			Attempts:  3,
		},
		Posts: PostsConfig{
			PerPage: 10,
		},
		Images: ImagesConfig{
			Dir:       "public/notion",
			Width:     0,
			MaxSizeMB: 50,
			TimeoutMs: 10000,
		},
		Sync: SyncConfig{
			Concurrency:     4,
			WatchIntervalMs: 300000,
		},
	}
}

// Load reads configuration from file and environment
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	defaults := DefaultConfig()
	v.SetDefault("notion.base_url", defaults.Notion.BaseURL)
	v.SetDefault("notion.page_size", defaults.Notion.PageSize)
	v.SetDefault("notion.timeout_ms", defaults.Notion.TimeoutMs)
	v.SetDefault("notion.attempts", defaults.Notion.Attempts)
	v.SetDefault("posts.per_page", defaults.Posts.PerPage)
	v.SetDefault("images.dir", defaults.Images.Dir)
	v.SetDefault("images.width", defaults.Images.Width)
	v.SetDefault("images.max_size_mb", defaults.Images.MaxSizeMB)
	v.SetDefault("images.timeout_ms", defaults.Images.TimeoutMs)
	v.SetDefault("sync.concurrency", defaults.Sync.Concurrency)
	v.SetDefault("sync.watch_interval_ms", defaults.Sync.WatchIntervalMs)

	// Configure config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Search for config in standard locations
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(getConfigDir())
	}

	// Enable environment variable substitution
	v.AutomaticEnv()
	v.SetEnvPrefix("NOTIONBLOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is okay if we have environment variables
	}

	// Unmarshal into struct
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Expand environment variables in secrets, e.g. token: "${NOTION_TOKEN}"
	cfg.Notion.Token = os.ExpandEnv(cfg.Notion.Token)
	cfg.Notion.DatabaseID = os.ExpandEnv(cfg.Notion.DatabaseID)

	// Expand image and snapshot paths
	cfg.Images.Dir = expandPath(cfg.Images.Dir)
	if cfg.Sync.SnapshotDir != "" {
		cfg.Sync.SnapshotDir = expandPath(cfg.Sync.SnapshotDir)
	}

	// Validate
	validate := validator.New()

	// Register custom validation for Notion ids (UUIDs, dashed or not)
	validate.RegisterValidation("notionid", func(fl validator.FieldLevel) bool {
		_, err := CanonicalID(fl.Field().String())
		return err == nil
	})

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// getConfigDir returns the appropriate config directory for the OS
func getConfigDir() string {
	switch runtime.GOOS {
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "notionblog")
		}
		return filepath.Join(os.Getenv("USERPROFILE"), ".config", "notionblog")
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			return filepath.Join(xdgConfig, "notionblog")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "notionblog")
	}
}

// GetStateDir returns the directory for storing state files
func GetStateDir() (string, error) {
	dir := getConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create state directory: %w", err)
	}
	return dir, nil
}

// GetConfigPath returns the default config file location
func GetConfigPath() (string, error) {
	dir, err := GetStateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// expandPath expands ~ and environment variables in a path
func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, path[1:])
	}
	return os.ExpandEnv(path)
}

// CanonicalID normalizes a Notion page/block/database id to its dashed UUID
// form. The API accepts ids with or without dashes; downstream code always
// compares the dashed form so ids match regardless of where they came from.
func CanonicalID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if compact := strings.ReplaceAll(id, "-", ""); len(compact) == 32 {
		id = compact[0:8] + "-" + compact[8:12] + "-" + compact[12:16] + "-" + compact[16:20] + "-" + compact[20:32]
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", fmt.Errorf("invalid notion id %q: %w", id, err)
	}
	return parsed.String(), nil
}
