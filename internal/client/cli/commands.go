package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/artforge/internal/client/apiclient"
	"github.com/dmitrijs2005/artforge/internal/client/models"
	"github.com/dmitrijs2005/artforge/internal/client/photos"
	"github.com/dmitrijs2005/artforge/internal/client/services"
	"github.com/dmitrijs2005/artforge/internal/filex"
)

var (
	ErrNoSuchEntry    = errors.New("no such history entry")
	ErrAmbiguousEntry = errors.New("id prefix matches more than one entry")
)

// Source loads the image at path and makes it the source of the next generation.
func (a *App) Source(ctx context.Context, path string) error {
	if path == "" {
		var err error
		if path, err = GetSimpleText(a.reader, "Path to the source image", a.out); err != nil {
			return err
		}
	}
	if path == "" {
		return errors.New("no path given")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error reading %s: %w", path, err)
	}
	img, err := models.DecodeImage(data)
	if err != nil {
		return fmt.Errorf("%s is not a supported image: %w", path, err)
	}
	if err := a.gen.SetSource(ctx, img); err != nil {
		return err
	}
	a.println(fmt.Sprintf("Source set: %s %dx%d", img.Format, img.Width, img.Height))
	return nil
}

// Prompt sets the prompt, asking for it when text is empty.
func (a *App) Prompt(ctx context.Context, text string) error {
	if text == "" {
		var err error
		if text, err = GetSimpleText(a.reader, "Describe what you want to see", a.out); err != nil {
			return err
		}
	}
	return a.gen.SetPrompt(ctx, text)
}

// Generate transforms the source image with the prompt.
func (a *App) Generate(ctx context.Context) error {
	return a.generate(ctx, a.gen.Generate)
}

// Create generates an image from the prompt alone.
func (a *App) Create(ctx context.Context) error {
	return a.generate(ctx, a.gen.GenerateFromText)
}

func (a *App) generate(ctx context.Context, fn func(context.Context) error) error {
	err := fn(ctx)
	switch {
	case err == nil:
		img := a.gen.Snapshot().Model.Generated
		if img != nil {
			a.println(fmt.Sprintf("Done: %s %dx%d. Type 'save' to keep it.", img.Format, img.Width, img.Height))
		}
		if st := a.gate.State(); !st.Tier.IsPaid() {
			a.println(describePlan(st))
		}
		return nil

	case errors.Is(err, services.ErrPaywallRequired):
		a.println("You have used all free generations.")
		a.println("Upgrade with 'buy monthly', 'buy yearly' or 'buy lifetime', or 'restore' an earlier purchase.")
		return nil

	case errors.Is(err, services.ErrStaleResult):
		a.println("The generation finished after a reset and was discarded.")
		return nil
	}

	msg := generationMessage(err)
	if apiclient.IsRetryable(err) {
		msg += " (type the command again to retry)"
	}
	return errors.New(msg)
}

// generationMessage turns a generation error into a short user-facing text.
func generationMessage(err error) string {
	var remote *apiclient.RemoteError
	var transport *apiclient.TransportError

	switch {
	case errors.Is(err, services.ErrGenerationInProgress):
		return "a generation is already running"
	case errors.Is(err, apiclient.ErrInvalidCredential):
		return "the API key is missing or was rejected; set OPENAI_API_KEY"
	case errors.Is(err, apiclient.ErrInvalidImage):
		return "pick a valid source image first (source <path>)"
	case errors.Is(err, apiclient.ErrEmptyPrompt):
		return "enter a prompt first (prompt <text>)"
	case errors.Is(err, apiclient.ErrRateLimited):
		return "too many requests, wait a moment"
	case errors.Is(err, apiclient.ErrServerError):
		return "the image service is unavailable"
	case errors.Is(err, apiclient.ErrInvalidResponse):
		return "the image service returned an unexpected response"
	case errors.As(err, &transport):
		return "network error: " + transport.Err.Error()
	case errors.As(err, &remote):
		return "the image service refused the request: " + remote.Message
	default:
		return err.Error()
	}
}

func (a *App) Status(ctx context.Context) error {
	m := a.gen.Snapshot().Model

	a.println("Status: " + m.Status.String())
	if m.Source != nil {
		a.println(fmt.Sprintf("Source: %s %dx%d", m.Source.Format, m.Source.Width, m.Source.Height))
	} else {
		a.println("Source: none (create mode only)")
	}
	if m.Prompt != "" {
		a.println("Prompt: " + m.Prompt)
	}
	if m.Generated != nil {
		a.println(fmt.Sprintf("Result: %s %dx%d", m.Generated.Format, m.Generated.Width, m.Generated.Height))
	}
	a.println(describePlan(a.gate.State()))
	return nil
}

// Save stores the generated image in the photo library.
func (a *App) Save(ctx context.Context) error {
	path, err := a.gen.SaveGeneratedImage(ctx)
	switch {
	case errors.Is(err, services.ErrNoImageToSave):
		return errors.New("nothing to save, generate an image first")
	case errors.Is(err, photos.ErrPermissionDenied):
		return errors.New("no permission to write to the photo library")
	case err != nil:
		return err
	}
	a.println("Saved to " + path)
	return nil
}

func (a *App) Reset(ctx context.Context) error {
	if err := a.gen.Reset(ctx); err != nil {
		return err
	}
	a.println("Ready for a new generation.")
	return nil
}

// History lists past generations, newest first.
func (a *App) History(ctx context.Context) error {
	entries := a.gen.Snapshot().History
	if len(entries) == 0 {
		a.println("No generations yet.")
		return nil
	}
	for _, e := range entries {
		a.println(fmt.Sprintf("%s  %s  %s", shortID(e.ID), e.CreatedAt.Local().Format("2006-01-02 15:04"), truncate(e.Prompt, 60)))
	}
	return nil
}

// Show prints one history entry. When path is set the generated image is
// written there; a directory gets a file named after the entry.
func (a *App) Show(ctx context.Context, id, path string) error {
	e, err := a.findEntry(id)
	if err != nil {
		return err
	}

	a.println("ID:      " + e.ID)
	a.println("Date:    " + e.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	a.println("Prompt:  " + e.Prompt)
	a.println(fmt.Sprintf("Image:   %s %dx%d", e.Image.Format, e.Image.Width, e.Image.Height))
	if e.Source != nil {
		a.println(fmt.Sprintf("Source:  %s %dx%d", e.Source.Format, e.Source.Width, e.Source.Height))
	}

	if path == "" {
		return nil
	}
	if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		path = filepath.Join(path, e.ID+"."+e.Image.Ext())
	}
	if err := filex.WriteAtomic(path, e.Image.Data, 0o600); err != nil {
		return fmt.Errorf("error exporting image: %w", err)
	}
	a.println("Exported to " + path)
	return nil
}

func (a *App) Delete(ctx context.Context, id string) error {
	e, err := a.findEntry(id)
	if err != nil {
		return err
	}
	if err := a.gen.RemoveFromHistory(ctx, e.ID); err != nil {
		return err
	}
	a.println("Deleted " + shortID(e.ID))
	return nil
}

func (a *App) Clear(ctx context.Context) error {
	n := len(a.gen.Snapshot().History)
	if n == 0 {
		a.println("History is already empty.")
		return nil
	}
	if !GetConfirmation(a.reader, fmt.Sprintf("Delete all %d generations?", n), a.out) {
		a.println("Cancelled.")
		return nil
	}
	if err := a.gen.ClearHistory(ctx); err != nil {
		return err
	}
	a.println("History cleared.")
	return nil
}

func (a *App) Plan(ctx context.Context) error {
	a.println(describePlan(a.gate.State()))
	return nil
}

// Buy purchases tier through the store.
func (a *App) Buy(ctx context.Context, tier string) error {
	if tier == "" {
		var err error
		if tier, err = GetSimpleText(a.reader, "Which plan? (monthly, yearly, lifetime)", a.out); err != nil {
			return err
		}
	}
	t, err := models.ParseTier(tier)
	if err != nil {
		return err
	}
	if !t.IsPaid() {
		return fmt.Errorf("%s is not a plan you can buy", t)
	}

	a.println("Contacting the store...")
	return a.transact(a.gate.Purchase(ctx, t))
}

func (a *App) Restore(ctx context.Context) error {
	a.println("Restoring purchases...")
	return a.transact(a.gate.Restore(ctx))
}

func (a *App) transact(err error) error {
	if err != nil {
		if msg := a.gate.State().LastError; msg != "" {
			return errors.New(msg)
		}
		return err
	}
	a.println("Thank you! " + describePlan(a.gate.State()))
	return nil
}

// findEntry resolves a full id or a unique id prefix against the loaded history.
func (a *App) findEntry(id string) (models.HistoryEntry, error) {
	return matchEntry(a.gen.Snapshot().History, id)
}

func matchEntry(entries []models.HistoryEntry, id string) (models.HistoryEntry, error) {
	if id == "" {
		return models.HistoryEntry{}, errors.New("an entry id is required")
	}

	var found []models.HistoryEntry
	for _, e := range entries {
		if e.ID == id {
			return e, nil
		}
		if strings.HasPrefix(e.ID, id) {
			found = append(found, e)
		}
	}
	switch len(found) {
	case 0:
		return models.HistoryEntry{}, fmt.Errorf("%w: %s", ErrNoSuchEntry, id)
	case 1:
		return found[0], nil
	default:
		return models.HistoryEntry{}, fmt.Errorf("%w: %s", ErrAmbiguousEntry, id)
	}
}

func describePlan(st models.EntitlementState) string {
	if st.Tier.IsPaid() {
		return fmt.Sprintf("plan: %s, unlimited generations", st.Tier)
	}
	switch st.RemainingFree {
	case 0:
		return "plan: free, no free generations left"
	case 1:
		return "plan: free, 1 free generation left"
	default:
		return fmt.Sprintf("plan: free, %d free generations left", st.RemainingFree)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
