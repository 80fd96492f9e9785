package config

import (
	"flag"
	"time"

	"github.com/dmitrijs2005/artforge/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-u string   base URL of the image API
//	-d string   data directory (database and local assets)
//	-b string   asset backend: local or s3
//	-p string   photo library directory used by "save"
//	-l string   log level: debug, info, warn, error
//	-t int      request timeout in seconds
//
// The API key is deliberately not a flag so it never shows up in the process
// list. Args are filtered with flagx.FilterArgs so flags owned by other
// loaders do not interfere.
func parseFlags(cfg *Config, args []string) {
	args = flagx.FilterArgs(args, []string{"-u", "-d", "-b", "-p", "-l", "-t"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.APIBaseURL, "u", cfg.APIBaseURL, "base URL of the image API")
	fs.StringVar(&cfg.DataDir, "d", cfg.DataDir, "data directory")
	fs.StringVar(&cfg.AssetBackend, "b", cfg.AssetBackend, "asset backend (local|s3)")
	fs.StringVar(&cfg.PhotoLibraryDir, "p", cfg.PhotoLibraryDir, "photo library directory")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")
	timeout := fs.Int("t", int(cfg.RequestTimeout.Seconds()), "request timeout (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.RequestTimeout = time.Duration(*timeout) * time.Second
}
