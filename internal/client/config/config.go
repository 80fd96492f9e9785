package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dmitrijs2005/artforge/internal/client/apiclient"
	"github.com/dmitrijs2005/artforge/internal/client/assets"
	"github.com/dmitrijs2005/artforge/internal/client/models"
)

const (
	AssetBackendLocal = "local"
	AssetBackendS3    = "s3"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds runtime settings for the artforge CLI.
//
// Units: RequestTimeout is a time.Duration (e.g., 120*time.Second).
type Config struct {
	APIBaseURL     string
	APIKey         string
	EditModel      string
	CreateModel    string
	ImageSize      string
	Quality        string
	Style          string
	RequestTimeout time.Duration

	DataDir      string
	DBFile       string
	AssetBackend string
	S3           assets.S3Config

	FreeGenerations int
	HistoryLimit    int
	PhotoLibraryDir string
	BillingSecret   string

	LogLevel  string
	LogFormat string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	api := apiclient.DefaultConfig()
	c.APIBaseURL = api.BaseURL
	c.EditModel = api.EditModel
	c.CreateModel = api.CreateModel
	c.ImageSize = api.Size
	c.Quality = api.Quality
	c.Style = api.Style
	c.RequestTimeout = api.Timeout

	c.DataDir = defaultDataDir()
	c.DBFile = "artforge.db"
	c.AssetBackend = AssetBackendLocal
	c.S3 = assets.S3Config{Region: "us-east-1", Prefix: "artforge/"}

	c.FreeGenerations = 3
	c.HistoryLimit = models.MaxHistoryEntries
	c.PhotoLibraryDir = defaultPhotoDir()
	c.BillingSecret = "artforge-local-store"

	c.LogLevel = "info"
	c.LogFormat = "text"
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "artforge")
	}
	return ".artforge"
}

func defaultPhotoDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, "Pictures", "artforge")
	}
	return "artforge-photos"
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// the environment (including a .env file), JSON (if present) and command-line
// flags (if present). Later sources take precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseEnv(cfg)
	parseJson(cfg, os.Args[1:])
	parseFlags(cfg, os.Args[1:])
	return cfg
}

// DBPath is the SQLite location: DBFile itself when absolute or in-memory,
// otherwise DBFile inside DataDir.
func (c *Config) DBPath() string {
	if c.DBFile == ":memory:" || filepath.IsAbs(c.DBFile) {
		return c.DBFile
	}
	return filepath.Join(c.DataDir, c.DBFile)
}

// AssetsDir is where the local asset backend keeps history images.
func (c *Config) AssetsDir() string {
	return filepath.Join(c.DataDir, "assets")
}

// API returns the image API client settings.
func (c *Config) API() apiclient.Config {
	return apiclient.Config{
		BaseURL:     c.APIBaseURL,
		APIKey:      c.APIKey,
		EditModel:   c.EditModel,
		CreateModel: c.CreateModel,
		Size:        c.ImageSize,
		Quality:     c.Quality,
		Style:       c.Style,
		Timeout:     c.RequestTimeout,
	}
}

// Validate reports settings the application cannot start with. A missing
// API key is not an error here; the CLI asks for it interactively.
func (c *Config) Validate() error {
	switch c.AssetBackend {
	case AssetBackendLocal:
	case AssetBackendS3:
		if c.S3.Bucket == "" {
			return fmt.Errorf("%w: s3 asset backend needs a bucket", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown asset backend %q", ErrInvalidConfig, c.AssetBackend)
	}
	if c.APIBaseURL == "" {
		return fmt.Errorf("%w: api base url is empty", ErrInvalidConfig)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%w: request timeout must be positive", ErrInvalidConfig)
	}
	if c.FreeGenerations < 0 {
		return fmt.Errorf("%w: free generations must not be negative", ErrInvalidConfig)
	}
	if c.HistoryLimit <= 0 {
		return fmt.Errorf("%w: history limit must be positive", ErrInvalidConfig)
	}
	if c.DataDir == "" {
		return fmt.Errorf("%w: data dir is empty", ErrInvalidConfig)
	}
	return nil
}
