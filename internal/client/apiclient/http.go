package apiclient

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/artforge/internal/client/models"
	"github.com/dmitrijs2005/artforge/internal/logging"
	"golang.org/x/crypto/blake2b"
)

const (
	editPath     = "/images/edits"
	generatePath = "/images/generations"
	resultCount  = 1
)

// Response size limits. Bodies longer than these are rejected, never truncated.
var (
	maxEnvelope    int64 = 1 << 20
	maxResultBytes int64 = 32 << 20
)

type HTTPClient struct {
	cfg      Config
	http     *http.Client
	log      logging.Logger
	inFlight atomic.Bool
}

// NewHTTPClient builds a client. When httpClient is nil a client with
// cfg.Timeout is created.
func NewHTTPClient(cfg Config, httpClient *http.Client, log logging.Logger) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	c := &HTTPClient{cfg: cfg, http: httpClient, log: log.With("component", "apiclient")}
	c.log.Debug(context.Background(), "image API client configured",
		"base_url", cfg.BaseURL, "credential", Fingerprint(cfg.APIKey))
	return c
}

// Fingerprint returns a short, non-reversible identifier of an API key so
// that logs can tell keys apart without containing them.
func Fingerprint(key string) string {
	if key == "" {
		return "none"
	}
	sum := blake2b.Sum256([]byte(key))
	return hex.EncodeToString(sum[:6])
}

func (c *HTTPClient) InFlight() bool { return c.inFlight.Load() }

type createRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size"`
	Quality        string `json:"quality"`
	Style          string `json:"style"`
	ResponseFormat string `json:"response_format"`
}

type imagesResponse struct {
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
}

type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (c *HTTPClient) GenerateFromImage(ctx context.Context, source *models.Image, prompt string, opts ...CallOption) (*models.Image, error) {
	c.inFlight.Store(true)
	defer c.inFlight.Store(false)

	if err := c.checkPreconditions(prompt); err != nil {
		return nil, err
	}
	if source == nil || len(source.Data) == 0 {
		return nil, ErrInvalidImage
	}
	if _, err := models.DecodeImage(source.Data); err != nil {
		return nil, err
	}

	body, contentType, err := c.editForm(source, prompt)
	if err != nil {
		return nil, err
	}

	return c.run(ctx, "edit", editPath, contentType, body, opts)
}

func (c *HTTPClient) GenerateFromText(ctx context.Context, prompt string, opts ...CallOption) (*models.Image, error) {
	c.inFlight.Store(true)
	defer c.inFlight.Store(false)

	if err := c.checkPreconditions(prompt); err != nil {
		return nil, err
	}

	body, err := json.Marshal(createRequest{
		Model:          c.cfg.CreateModel,
		Prompt:         prompt,
		N:              resultCount,
		Size:           c.cfg.Size,
		Quality:        c.cfg.Quality,
		Style:          c.cfg.Style,
		ResponseFormat: "url",
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	return c.run(ctx, "create", generatePath, "application/json", body, opts)
}

func (c *HTTPClient) checkPreconditions(prompt string) error {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return ErrInvalidCredential
	}
	if strings.TrimSpace(prompt) == "" {
		return ErrEmptyPrompt
	}
	return nil
}

func (c *HTTPClient) editForm(source *models.Image, prompt string) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename="image.%s"`, source.Ext()))
	h.Set("Content-Type", source.ContentType())
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("create image part: %w", err)
	}
	if _, err := part.Write(source.Data); err != nil {
		return nil, "", fmt.Errorf("write image part: %w", err)
	}

	fields := []struct{ name, value string }{
		{"model", c.cfg.EditModel},
		{"prompt", prompt},
		{"size", c.cfg.Size},
		{"n", strconv.Itoa(resultCount)},
	}
	for _, f := range fields {
		if err := w.WriteField(f.name, f.value); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", f.name, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func (c *HTTPClient) run(ctx context.Context, op, path, contentType string, body []byte, opts []CallOption) (*models.Image, error) {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}

	start := time.Now()
	log := c.log.With("op", op)

	o.report(StageUploading)
	resultURL, err := c.submit(ctx, op, path, contentType, body)
	if err != nil {
		log.Warn(ctx, "generation request failed", "kind", ErrorKind(err), "error", err)
		return nil, err
	}

	o.report(StageProcessing)
	img, err := c.download(ctx, resultURL)
	if err != nil {
		log.Warn(ctx, "result download failed", "kind", ErrorKind(err), "error", err)
		return nil, err
	}

	log.Info(ctx, "generation finished",
		"format", img.Format, "bytes", len(img.Data), "duration", time.Since(start))
	return img, nil
}

func (c *HTTPClient) submit(ctx context.Context, op, path, contentType string, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	payload, err := readLimited(resp.Body, maxEnvelope)
	if errors.Is(err, errTooLarge) {
		if !isSuccess(resp.StatusCode) {
			return "", classifyStatus(resp.StatusCode, nil)
		}
		return "", fmt.Errorf("%w: response envelope exceeds %d bytes", ErrInvalidResponse, maxEnvelope)
	}
	if err != nil {
		return "", &TransportError{Op: op, Err: err}
	}

	if !isSuccess(resp.StatusCode) {
		return "", classifyStatus(resp.StatusCode, payload)
	}

	var env imagesResponse
	if err := json.Unmarshal(payload, &env); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if len(env.Data) == 0 {
		return "", fmt.Errorf("%w: empty data", ErrInvalidResponse)
	}
	if strings.TrimSpace(env.Data[0].URL) == "" {
		return "", fmt.Errorf("%w: missing result url", ErrInvalidResponse)
	}
	return env.Data[0].URL, nil
}

var errTooLarge = errors.New("body too large")

func isSuccess(code int) bool { return code >= 200 && code <= 299 }

// readLimited reads r fully, failing with errTooLarge when it holds more than
// limit bytes.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, errTooLarge
	}
	return data, nil
}

// download fetches the result asset. The URL is pre-signed by the API, so
// the bearer credential is deliberately not sent to it.
func (c *HTTPClient) download(ctx context.Context, url string) (*models.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: bad result url: %v", ErrInvalidResponse, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "download", Err: err}
	}
	defer resp.Body.Close()

	data, err := readLimited(resp.Body, maxResultBytes)
	if errors.Is(err, errTooLarge) {
		if !isSuccess(resp.StatusCode) {
			return nil, classifyStatus(resp.StatusCode, nil)
		}
		return nil, fmt.Errorf("%w: result image exceeds %d bytes", ErrInvalidResponse, maxResultBytes)
	}
	if err != nil {
		return nil, &TransportError{Op: "download", Err: err}
	}

	if !isSuccess(resp.StatusCode) {
		return nil, classifyStatus(resp.StatusCode, data)
	}

	img, err := models.DecodeImage(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return img, nil
}

func classifyStatus(code int, body []byte) error {
	switch {
	case code == http.StatusUnauthorized:
		return ErrInvalidCredential
	case code == http.StatusTooManyRequests:
		return ErrRateLimited
	case code >= 500:
		return fmt.Errorf("%w: status %d", ErrServerError, code)
	}

	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && strings.TrimSpace(env.Error.Message) != "" {
		return &RemoteError{StatusCode: code, Message: env.Error.Message}
	}
	return fmt.Errorf("%w: status %d", ErrUnknown, code)
}

// IsRetryable reports whether a caller could sensibly try the same request
// again later. The client itself never retries.
func IsRetryable(err error) bool {
	var transport *TransportError
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrServerError) || errors.As(err, &transport)
}
