package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// EnvFile is the dotenv file read from the working directory, if present.
const EnvFile = ".env"

// parseEnv overlays Config with environment variables. Values from EnvFile
// are loaded first but never override variables already set in the process
// environment.
//
// Supported variables:
//
//	OPENAI_API_KEY, ARTFORGE_API_KEY (wins when both are set)
//	ARTFORGE_API_BASE_URL, ARTFORGE_EDIT_MODEL, ARTFORGE_CREATE_MODEL,
//	ARTFORGE_IMAGE_SIZE, ARTFORGE_QUALITY, ARTFORGE_STYLE,
//	ARTFORGE_REQUEST_TIMEOUT (Go duration, e.g. "90s"),
//	ARTFORGE_DATA_DIR, ARTFORGE_DB_FILE, ARTFORGE_ASSET_BACKEND,
//	ARTFORGE_S3_BUCKET, ARTFORGE_S3_REGION, ARTFORGE_S3_ENDPOINT,
//	ARTFORGE_S3_ACCESS_KEY, ARTFORGE_S3_SECRET_KEY, ARTFORGE_S3_PREFIX,
//	ARTFORGE_FREE_GENERATIONS, ARTFORGE_HISTORY_LIMIT,
//	ARTFORGE_PHOTO_LIBRARY_DIR, ARTFORGE_BILLING_SECRET,
//	ARTFORGE_LOG_LEVEL, ARTFORGE_LOG_FORMAT
//
// Panics on malformed numbers or durations, like the other loaders.
func parseEnv(cfg *Config) {
	if err := godotenv.Load(EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		panic(err)
	}

	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				panic(err)
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				panic(err)
			}
			*dst = d
		}
	}

	str("OPENAI_API_KEY", &cfg.APIKey)
	str("ARTFORGE_API_KEY", &cfg.APIKey)
	str("ARTFORGE_API_BASE_URL", &cfg.APIBaseURL)
	str("ARTFORGE_EDIT_MODEL", &cfg.EditModel)
	str("ARTFORGE_CREATE_MODEL", &cfg.CreateModel)
	str("ARTFORGE_IMAGE_SIZE", &cfg.ImageSize)
	str("ARTFORGE_QUALITY", &cfg.Quality)
	str("ARTFORGE_STYLE", &cfg.Style)
	dur("ARTFORGE_REQUEST_TIMEOUT", &cfg.RequestTimeout)

	str("ARTFORGE_DATA_DIR", &cfg.DataDir)
	str("ARTFORGE_DB_FILE", &cfg.DBFile)
	str("ARTFORGE_ASSET_BACKEND", &cfg.AssetBackend)
	str("ARTFORGE_S3_BUCKET", &cfg.S3.Bucket)
	str("ARTFORGE_S3_REGION", &cfg.S3.Region)
	str("ARTFORGE_S3_ENDPOINT", &cfg.S3.Endpoint)
	str("ARTFORGE_S3_ACCESS_KEY", &cfg.S3.AccessKey)
	str("ARTFORGE_S3_SECRET_KEY", &cfg.S3.SecretKey)
	str("ARTFORGE_S3_PREFIX", &cfg.S3.Prefix)

	num("ARTFORGE_FREE_GENERATIONS", &cfg.FreeGenerations)
	num("ARTFORGE_HISTORY_LIMIT", &cfg.HistoryLimit)
	str("ARTFORGE_PHOTO_LIBRARY_DIR", &cfg.PhotoLibraryDir)
	str("ARTFORGE_BILLING_SECRET", &cfg.BillingSecret)

	str("ARTFORGE_LOG_LEVEL", &cfg.LogLevel)
	str("ARTFORGE_LOG_FORMAT", &cfg.LogFormat)
}
