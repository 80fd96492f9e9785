package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/artforge/internal/flagx"
	"github.com/dmitrijs2005/artforge/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling.
// It relies on timex.Duration so JSON can specify the request timeout either
// as a string like "90s" or as integer nanoseconds. Counters are pointers so
// an explicit 0 can be told apart from an absent key.
type JsonConfig struct {
	APIBaseURL     string         `json:"api_base_url"`
	APIKey         string         `json:"api_key"`
	EditModel      string         `json:"edit_model"`
	CreateModel    string         `json:"create_model"`
	ImageSize      string         `json:"image_size"`
	Quality        string         `json:"quality"`
	Style          string         `json:"style"`
	RequestTimeout timex.Duration `json:"request_timeout"`

	DataDir      string `json:"data_dir"`
	DBFile       string `json:"db_file"`
	AssetBackend string `json:"asset_backend"`
	S3           struct {
		Bucket    string `json:"bucket"`
		Region    string `json:"region"`
		Endpoint  string `json:"endpoint"`
		AccessKey string `json:"access_key"`
		SecretKey string `json:"secret_key"`
		Prefix    string `json:"prefix"`
	} `json:"s3"`

	FreeGenerations *int   `json:"free_generations"`
	HistoryLimit    *int   `json:"history_limit"`
	PhotoLibraryDir string `json:"photo_library_dir"`
	BillingSecret   string `json:"billing_secret"`

	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`
}

// parseJson overlays Config with values loaded from a JSON file.
//
// The file path comes from the -c or -config flag (flagx.ConfigPath); without
// it nothing is loaded. Only keys present in the file are applied. Panics on
// read or unmarshal errors (caller should recover if desired).
//
// Intended usage is: defaults -> env -> parseJson -> parseFlags, where later
// stages override earlier ones.
func parseJson(cfg *Config, args []string) {
	jsonConfigFile := flagx.ConfigPath(args)
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}

	set(&cfg.APIBaseURL, jc.APIBaseURL)
	set(&cfg.APIKey, jc.APIKey)
	set(&cfg.EditModel, jc.EditModel)
	set(&cfg.CreateModel, jc.CreateModel)
	set(&cfg.ImageSize, jc.ImageSize)
	set(&cfg.Quality, jc.Quality)
	set(&cfg.Style, jc.Style)
	if jc.RequestTimeout.Duration > 0 {
		cfg.RequestTimeout = jc.RequestTimeout.Duration
	}

	set(&cfg.DataDir, jc.DataDir)
	set(&cfg.DBFile, jc.DBFile)
	set(&cfg.AssetBackend, jc.AssetBackend)
	set(&cfg.S3.Bucket, jc.S3.Bucket)
	set(&cfg.S3.Region, jc.S3.Region)
	set(&cfg.S3.Endpoint, jc.S3.Endpoint)
	set(&cfg.S3.AccessKey, jc.S3.AccessKey)
	set(&cfg.S3.SecretKey, jc.S3.SecretKey)
	set(&cfg.S3.Prefix, jc.S3.Prefix)

	if jc.FreeGenerations != nil {
		cfg.FreeGenerations = *jc.FreeGenerations
	}
	if jc.HistoryLimit != nil {
		cfg.HistoryLimit = *jc.HistoryLimit
	}
	set(&cfg.PhotoLibraryDir, jc.PhotoLibraryDir)
	set(&cfg.BillingSecret, jc.BillingSecret)

	set(&cfg.LogLevel, jc.LogLevel)
	set(&cfg.LogFormat, jc.LogFormat)
}
