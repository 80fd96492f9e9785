package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/artforge/internal/client/apiclient"
	"github.com/dmitrijs2005/artforge/internal/client/assets"
	"github.com/dmitrijs2005/artforge/internal/client/billing"
	"github.com/dmitrijs2005/artforge/internal/client/config"
	"github.com/dmitrijs2005/artforge/internal/client/entitlement"
	"github.com/dmitrijs2005/artforge/internal/client/history"
	"github.com/dmitrijs2005/artforge/internal/client/photos"
	"github.com/dmitrijs2005/artforge/internal/client/repositories/preferences"
	"github.com/dmitrijs2005/artforge/internal/client/services"
	"github.com/dmitrijs2005/artforge/internal/client/storage"
	"github.com/dmitrijs2005/artforge/internal/logging"
)

// storeLatency simulates the round trip to the app store.
var storeLatency = 300 * time.Millisecond

// Build assembles the application from cfg. in and out are the terminal
// streams of the REPL. The returned App closes the database when Run returns.
func Build(ctx context.Context, cfg *config.Config, log logging.Logger, in io.Reader, out io.Writer) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := storage.InitDatabase(ctx, cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("error initializing database: %w", err)
	}
	prefs := preferences.NewSQLiteRepository(db)

	store, err := newAssetStore(ctx, cfg)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	hist := history.NewStore(prefs, store, log, history.WithMaxEntries(cfg.HistoryLimit))

	secret := []byte(cfg.BillingSecret)
	provider := billing.NewLocalProvider(billing.NewIssuer(secret, nil), prefs, storeLatency, log)
	gate, err := entitlement.NewGate(ctx, prefs, db, provider, billing.NewVerifier(secret, nil), cfg.FreeGenerations, log)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("error loading entitlements: %w", err)
	}

	apiCfg := cfg.API()
	if apiCfg.APIKey == "" {
		apiCfg.APIKey = askAPIKey(ctx, log, out)
	}
	client := apiclient.NewHTTPClient(apiCfg, nil, log)

	gen := services.NewGenerationService(client, gate, hist, photos.NewDirLibrary(cfg.PhotoLibraryDir), log)

	app := NewApp(gen, gate, log, in, out)
	app.closers = append(app.closers, db.Close)

	log.Info(ctx, "application initialized",
		"data_dir", cfg.DataDir, "assets", cfg.AssetBackend, "credential", apiclient.Fingerprint(apiCfg.APIKey))
	return app, nil
}

func newAssetStore(ctx context.Context, cfg *config.Config) (assets.Store, error) {
	switch cfg.AssetBackend {
	case config.AssetBackendS3:
		s, err := assets.NewS3Store(ctx, cfg.S3)
		if err != nil {
			return nil, fmt.Errorf("error configuring s3 assets: %w", err)
		}
		return s, nil
	default:
		s, err := assets.NewLocalStore(cfg.AssetsDir())
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// askAPIKey reads the key without echo when a terminal is attached. Without
// a key every generation fails with an invalid credential error.
func askAPIKey(ctx context.Context, log logging.Logger, out io.Writer) string {
	if !stdinIsTerminal() {
		log.Warn(ctx, "no API key configured")
		return ""
	}
	key, err := GetSecret("OpenAI API key: ", out)
	if err != nil {
		log.Warn(ctx, "reading API key failed", "error", err)
		return ""
	}
	return key
}
