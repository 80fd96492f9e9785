package cli

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dmitrijs2005/artforge/internal/client/config"
	"github.com/dmitrijs2005/artforge/internal/client/models"
	"github.com/dmitrijs2005/artforge/internal/logging"
	"github.com/dmitrijs2005/artforge/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newImageServer(t *testing.T) *httptest.Server {
	t.Helper()
	result := testutil.PNG(t, 8, 8, testutil.Blue)

	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/images/edits", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"created":1,"data":[{"url":%q}]}`, srv.URL+"/out.png")
	})
	mux.HandleFunc("/out.png", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(result)
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, srv *httptest.Server) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.DataDir = t.TempDir()
	cfg.PhotoLibraryDir = t.TempDir()
	cfg.APIBaseURL = srv.URL + "/v1"
	cfg.APIKey = "sk-test"
	cfg.FreeGenerations = 1
	return cfg
}

func TestBuild_EndToEndPersistsAcrossRestarts(t *testing.T) {
	old := storeLatency
	storeLatency = 0
	defer func() { storeLatency = old }()

	srv := newImageServer(t)
	cfg := testConfig(t, srv)
	ctx := context.Background()

	src := filepath.Join(t.TempDir(), "in.png")
	require.NoError(t, os.WriteFile(src, testutil.PNG(t, 4, 4, testutil.Red), 0o600))

	script := strings.Join([]string{
		"source " + src,
		"prompt sunset over mountains",
		"generate",
		"save",
		"generate",
		"exit",
		"",
	}, "\n")
	out := &lockedBuffer{}
	app, err := Build(ctx, cfg, logging.Nop(), strings.NewReader(script), out)
	require.NoError(t, err)
	require.NoError(t, app.Run(ctx))

	assert.Contains(t, out.String(), "Done: png 8x8.")
	assert.Contains(t, out.String(), "Saved to "+cfg.PhotoLibraryDir)
	assert.Contains(t, out.String(), "You have used all free generations.")

	// restart on the same data dir: quota and history survive
	out2 := &lockedBuffer{}
	app2, err := Build(ctx, cfg, logging.Nop(), strings.NewReader("history\nbuy lifetime\n"), out2)
	require.NoError(t, err)
	assert.Equal(t, 0, app2.gate.State().RemainingFree)
	require.NoError(t, app2.Run(ctx))

	assert.Contains(t, out2.String(), "plan: free, no free generations left")
	assert.Contains(t, out2.String(), "sunset over mountains")
	assert.Contains(t, out2.String(), "Thank you! plan: lifetime, unlimited generations")

	app3, err := Build(ctx, cfg, logging.Nop(), strings.NewReader(""), io.Discard)
	require.NoError(t, err)
	defer app3.Close()
	assert.Equal(t, models.TierLifetime, app3.gate.State().Tier)
}

func TestBuild_InvalidConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.DataDir = t.TempDir()
	cfg.AssetBackend = "ftp"

	_, err := Build(context.Background(), cfg, logging.Nop(), strings.NewReader(""), io.Discard)
	require.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestBuild_AsksForMissingKeyOnTerminal(t *testing.T) {
	oldTerm, oldRead := isTerminal, readPassword
	defer func() { isTerminal, readPassword = oldTerm, oldRead }()
	isTerminal = func(int) bool { return true }
	readPassword = func(int) ([]byte, error) { return []byte("sk-test"), nil }

	srv := newImageServer(t)
	cfg := testConfig(t, srv)
	cfg.APIKey = ""

	src := filepath.Join(t.TempDir(), "in.png")
	require.NoError(t, os.WriteFile(src, testutil.PNG(t, 4, 4, testutil.Red), 0o600))

	out := &lockedBuffer{}
	app, err := Build(context.Background(), cfg, logging.Nop(),
		strings.NewReader("source "+src+"\nprompt p\ngenerate\n"), out)
	require.NoError(t, err)
	require.NoError(t, app.Run(context.Background()))

	assert.Contains(t, out.String(), "OpenAI API key: ")
	assert.Contains(t, out.String(), "Done: png 8x8.")
}

func TestBuild_MissingKeyWithoutTerminal(t *testing.T) {
	old := isTerminal
	defer func() { isTerminal = old }()
	isTerminal = func(int) bool { return false }

	srv := newImageServer(t)
	cfg := testConfig(t, srv)
	cfg.APIKey = ""

	src := filepath.Join(t.TempDir(), "in.png")
	require.NoError(t, os.WriteFile(src, testutil.PNG(t, 4, 4, testutil.Red), 0o600))

	out := &lockedBuffer{}
	app, err := Build(context.Background(), cfg, logging.Nop(),
		strings.NewReader("source "+src+"\nprompt p\ngenerate\nplan\n"), out)
	require.NoError(t, err)
	require.NoError(t, app.Run(context.Background()))

	assert.Contains(t, out.String(), "the API key is missing or was rejected")
	assert.Contains(t, out.String(), "plan: free, 1 free generation left")
}
