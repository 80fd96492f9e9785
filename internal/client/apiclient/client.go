// Package apiclient talks to the remote OpenAI-style images API.
//
// Each call performs exactly two sequential round trips: the generation
// request (multipart edit or JSON create) and the download of the first
// result URL. There is no caching and no retry; callers decide on retries.
//
// Errors are classified into the sentinels of errors.go, *RemoteError and
// *TransportError; use errors.Is / errors.As or ErrorKind to inspect them.
package apiclient

import (
	"context"
	"time"

	"github.com/dmitrijs2005/artforge/internal/client/models"
)

// Stage reports the progress of a call.
type Stage int

const (
	// StageUploading is reported before the generation request is sent.
	StageUploading Stage = iota
	// StageProcessing is reported once the API accepted the request and the
	// result asset is being fetched.
	StageProcessing
)

type callOptions struct {
	progress func(Stage)
}

type CallOption func(*callOptions)

// WithProgress registers fn to be called synchronously at each Stage.
func WithProgress(fn func(Stage)) CallOption {
	return func(o *callOptions) { o.progress = fn }
}

func (o *callOptions) report(s Stage) {
	if o.progress != nil {
		o.progress(s)
	}
}

// Client is the contract used by the generation service.
type Client interface {
	GenerateFromImage(ctx context.Context, source *models.Image, prompt string, opts ...CallOption) (*models.Image, error)
	GenerateFromText(ctx context.Context, prompt string, opts ...CallOption) (*models.Image, error)
	// InFlight reports whether a call is outstanding. It is a plain flag, not
	// a counter: overlapping calls must be prevented by the caller.
	InFlight() bool
}

// Config holds the endpoint, credential and fixed request parameters.
type Config struct {
	BaseURL     string
	APIKey      string
	EditModel   string
	CreateModel string
	Size        string
	Quality     string
	Style       string
	Timeout     time.Duration
}

func DefaultConfig() Config {
	return Config{
		BaseURL:     "https://api.openai.com/v1",
		EditModel:   "dall-e-2",
		CreateModel: "dall-e-3",
		Size:        "1024x1024",
		Quality:     "hd",
		Style:       "vivid",
		Timeout:     120 * time.Second,
	}
}
