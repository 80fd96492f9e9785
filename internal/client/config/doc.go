// Package config loads runtime configuration for the artforge CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Environment variables, with a .env file in the working directory
//     loaded through godotenv (see parseEnv).
//  3. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  4. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-u string   base URL of the image API
//	-d string   data directory
//	-b string   asset backend (local|s3)
//	-p string   photo library directory
//	-l string   log level
//	-t int      request timeout (seconds)
//
// # JSON schema
//
// The JSON loader uses timex.Duration for the timeout, so it can be either a
// string like "90s" or integer nanoseconds:
//
//	{
//	  "api_base_url": "https://api.openai.com/v1",
//	  "request_timeout": "90s",
//	  "data_dir": "/home/me/.config/artforge",
//	  "asset_backend": "s3",
//	  "s3": {"bucket": "my-art", "region": "eu-west-1", "prefix": "history/"},
//	  "free_generations": 3,
//	  "history_limit": 50,
//	  "log_level": "debug"
//	}
//
// Primary API
//
//   - type Config                     all runtime settings
//   - func LoadConfig() *Config       defaults, env, JSON, then flags
//   - func (*Config) Validate() error rejects settings the app cannot start with
package config
