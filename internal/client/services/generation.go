// Package services contains the application services of the artforge client.
// This file defines the generation service: it drives one generation
// lifecycle from inputs to result and keeps the observable model consistent
// with the entitlement gate, the API client and the history store.
package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/artforge/internal/client/apiclient"
	"github.com/dmitrijs2005/artforge/internal/client/models"
	"github.com/dmitrijs2005/artforge/internal/client/photos"
	"github.com/dmitrijs2005/artforge/internal/logging"
	"github.com/google/uuid"
)

// Gate is the part of the entitlement gate the service depends on.
type Gate interface {
	CanGenerate() bool
	ConsumeOneFreeGeneration(ctx context.Context) error
}

// History is the part of the history store the service depends on.
type History interface {
	Append(ctx context.Context, e models.HistoryEntry) bool
	ReadAll(ctx context.Context) []models.HistoryEntry
	Remove(ctx context.Context, id string) bool
	Clear(ctx context.Context)
}

// State is what observers see: the current model and the history list.
type State struct {
	Model   models.GenerationModel
	History []models.HistoryEntry
}

// GenerationService coordinates generations.
//
// Contract:
//   - Run must be running on its own goroutine; every observable mutation
//     happens there. Other methods block until Run has processed them.
//   - Only one generation may be outstanding; a second Generate call is
//     rejected with ErrGenerationInProgress.
//   - A result that arrives after Reset is dropped with ErrStaleResult.
//   - On success the model is completed first, then the history entry is
//     written in the background, then the free quota is consumed exactly once.
type GenerationService interface {
	Run(ctx context.Context) error

	SetSource(ctx context.Context, img *models.Image) error
	SetPrompt(ctx context.Context, prompt string) error
	Generate(ctx context.Context) error
	GenerateFromText(ctx context.Context) error
	Reset(ctx context.Context) error
	SaveGeneratedImage(ctx context.Context) (string, error)

	LoadHistory(ctx context.Context) error
	RemoveFromHistory(ctx context.Context, id string) error
	ClearHistory(ctx context.Context) error

	Snapshot() State
	Subscribe() (<-chan Event, func())
	Busy() bool
}

type Option func(*generationService)

// WithClock sets the time source for model and history timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *generationService) { s.now = now }
}

type generationService struct {
	client  apiclient.Client
	gate    Gate
	history History
	library photos.Library
	log     logging.Logger
	now     func() time.Time

	ops     chan func()
	stopped chan struct{}
	running atomic.Bool
	events  *broker

	// owned by the Run goroutine
	model    *models.GenerationModel
	version  uint64
	inFlight bool
	entries  []models.HistoryEntry

	refreshMu sync.Mutex
	pubMu     sync.RWMutex
	published State
}

// NewGenerationService wires the service to its collaborators.
func NewGenerationService(client apiclient.Client, gate Gate, history History, library photos.Library, log logging.Logger, opts ...Option) GenerationService {
	s := &generationService{
		client:  client,
		gate:    gate,
		history: history,
		library: library,
		log:     log.With("component", "generation"),
		now:     time.Now,
		ops:     make(chan func()),
		stopped: make(chan struct{}),
		events:  newBroker(),
	}
	for _, o := range opts {
		o(s)
	}
	s.model = models.NewGenerationModel(s.version, s.now())
	s.publishState()
	return s
}

// Run processes operations until ctx is done. It may be called once.
func (s *generationService) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("generation service already running")
	}
	defer close(s.stopped)

	for {
		select {
		case <-ctx.Done():
			return nil
		case op := <-s.ops:
			op()
		}
	}
}

// do runs fn on the Run goroutine and waits for it to finish.
func (s *generationService) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	op := func() {
		defer close(done)
		fn()
	}

	select {
	case s.ops <- op:
	case <-s.stopped:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
	<-done
	return nil
}

func (s *generationService) SetSource(ctx context.Context, img *models.Image) error {
	var err error
	if doErr := s.do(ctx, func() {
		if s.busy() {
			err = ErrGenerationInProgress
			return
		}
		s.model.Source = img.Clone()
		s.publishState()
	}); doErr != nil {
		return doErr
	}
	return err
}

func (s *generationService) SetPrompt(ctx context.Context, prompt string) error {
	var err error
	if doErr := s.do(ctx, func() {
		if s.busy() {
			err = ErrGenerationInProgress
			return
		}
		s.model.Prompt = prompt
		s.publishState()
	}); doErr != nil {
		return doErr
	}
	return err
}

func (s *generationService) Generate(ctx context.Context) error {
	return s.generate(ctx, models.ModeEdit)
}

func (s *generationService) GenerateFromText(ctx context.Context) error {
	return s.generate(ctx, models.ModeCreate)
}

func (s *generationService) Reset(ctx context.Context) error {
	return s.do(ctx, func() {
		s.version++
		s.model = models.NewGenerationModel(s.version, s.now())
		s.log.Debug(ctx, "generation reset", "version", s.version)
		s.publishState()
	})
}

// busy reports whether the current model is loading or a call started for an
// earlier model has not returned yet. Run goroutine only.
func (s *generationService) busy() bool {
	return s.inFlight || s.model.Status.IsLoading()
}

// fail moves the model to failed. Run goroutine only.
func (s *generationService) fail(err error) {
	s.model.Generated = nil
	s.model.Status = models.StatusFailed(err)
	s.publishState()
}

func (s *generationService) generate(ctx context.Context, mode models.Mode) error {
	var (
		req     models.GenerationRequest
		version uint64
		err     error
	)

	if doErr := s.do(ctx, func() {
		if s.busy() {
			err = ErrGenerationInProgress
			return
		}
		if mode == models.ModeEdit && s.model.Source == nil {
			err = apiclient.ErrInvalidImage
			s.fail(err)
			return
		}
		if strings.TrimSpace(s.model.Prompt) == "" {
			err = apiclient.ErrEmptyPrompt
			s.fail(err)
			return
		}
		if !s.gate.CanGenerate() {
			err = ErrPaywallRequired
			s.log.Info(ctx, "generation blocked by entitlement")
			s.events.publish(Event{Type: EventPaywallRequired, Status: s.model.Status})
			return
		}

		req = s.model.Request(s.now())
		if mode == models.ModeCreate {
			req.Source = nil
		}
		version = s.model.Version
		s.inFlight = true
		s.model.Generated = nil
		s.model.Status = models.StatusUploading()
		s.publishState()
	}); doErr != nil {
		return doErr
	}
	if err != nil {
		return err
	}

	// The result must be applied even if the caller gives up waiting.
	loopCtx := context.WithoutCancel(ctx)

	progress := apiclient.WithProgress(func(stage apiclient.Stage) {
		if stage != apiclient.StageProcessing {
			return
		}
		if err := s.do(loopCtx, func() {
			if s.model.Version == version && s.model.Status.Kind == models.StatusKindUploading {
				s.model.Status = models.StatusProcessing()
				s.publishState()
			}
		}); err != nil {
			s.log.Debug(ctx, "progress update dropped", "version", version, "error", err)
		}
	})

	s.log.Info(ctx, "generation started", "mode", req.Mode(), "version", version)

	var img *models.Image
	var callErr error
	if req.Mode() == models.ModeEdit {
		img, callErr = s.client.GenerateFromImage(ctx, req.Source, req.Prompt, progress)
	} else {
		img, callErr = s.client.GenerateFromText(ctx, req.Prompt, progress)
	}

	var (
		result   error
		appended chan struct{}
	)
	if doErr := s.do(loopCtx, func() {
		s.inFlight = false

		if s.model.Version != version {
			s.log.Info(ctx, "discarding stale generation result", "version", version, "current", s.model.Version)
			result = ErrStaleResult
			return
		}
		if callErr != nil {
			s.log.Warn(ctx, "generation failed", "kind", apiclient.ErrorKind(callErr), "error", callErr)
			s.fail(callErr)
			result = callErr
			return
		}

		s.model.Generated = img
		s.model.Status = models.StatusCompleted()
		s.publishState()

		appended = s.appendHistory(loopCtx, models.HistoryEntry{
			ID:        uuid.NewString(),
			Image:     img.Clone(),
			Prompt:    req.Prompt,
			CreatedAt: req.CreatedAt,
			Source:    req.Source.Clone(),
		})
	}); doErr != nil {
		return doErr
	}
	if result != nil {
		return result
	}

	s.consume(loopCtx, appended)
	s.log.Info(ctx, "generation completed", "version", version)
	return nil
}

// appendHistory starts the history write without waiting for it. The
// returned channel is closed once the write has been attempted.
// Run goroutine only.
func (s *generationService) appendHistory(ctx context.Context, e models.HistoryEntry) chan struct{} {
	written := make(chan struct{})
	go func() {
		if !s.history.Append(ctx, e) {
			s.log.Warn(ctx, "generation not recorded in history", "id", e.ID)
		}
		close(written)
		if err := s.refreshHistory(ctx); err != nil {
			s.log.Debug(ctx, "history refresh after append dropped", "error", err)
		}
	}()
	return written
}

// consume charges the successful generation against the free quota after the
// history write. It runs on the caller's goroutine, so observers never wait
// for the disk.
func (s *generationService) consume(ctx context.Context, historyWritten <-chan struct{}) {
	<-historyWritten

	charge := func() {
		if err := s.gate.ConsumeOneFreeGeneration(ctx); err != nil {
			s.log.Error(ctx, "failed to record free generation use", "error", err)
		}
	}
	if err := s.do(ctx, func() {
		charge()
		s.publishState()
	}); err != nil {
		// The loop is gone; the quota must still be charged.
		charge()
	}
}

func (s *generationService) SaveGeneratedImage(ctx context.Context) (string, error) {
	var img *models.Image
	if err := s.do(ctx, func() {
		if s.model.Status.Kind == models.StatusKindCompleted {
			img = s.model.Generated.Clone()
		}
	}); err != nil {
		return "", err
	}
	if img == nil {
		return "", ErrNoImageToSave
	}

	path, err := s.library.SaveImageToLibrary(ctx, img)
	if err != nil {
		s.log.Warn(ctx, "saving generated image failed", "error", err)
		return "", err
	}
	s.log.Info(ctx, "generated image saved", "path", path)
	return path, nil
}

func (s *generationService) LoadHistory(ctx context.Context) error {
	return s.refreshHistory(ctx)
}

func (s *generationService) RemoveFromHistory(ctx context.Context, id string) error {
	if !s.history.Remove(ctx, id) {
		s.log.Debug(ctx, "history entry not removed", "id", id)
	}
	return s.refreshHistory(ctx)
}

func (s *generationService) ClearHistory(ctx context.Context) error {
	s.history.Clear(ctx)
	return s.refreshHistory(ctx)
}

// refreshHistory reads the store off the Run goroutine and installs the
// result on it. Refreshes are serialized so an older read never replaces a
// newer one.
func (s *generationService) refreshHistory(ctx context.Context) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	entries := s.history.ReadAll(ctx)
	return s.do(ctx, func() {
		s.entries = entries
		s.publishState()
		s.events.publish(Event{Type: EventHistoryChanged, Status: s.model.Status})
	})
}

// publishState copies the model for Snapshot readers and notifies
// subscribers. Run goroutine only.
func (s *generationService) publishState() {
	st := State{
		Model:   s.model.Snapshot(),
		History: append([]models.HistoryEntry(nil), s.entries...),
	}

	s.pubMu.Lock()
	s.published = st
	s.pubMu.Unlock()

	s.events.publish(Event{Type: EventStateChanged, Status: st.Model.Status})
}

// Snapshot returns a copy of the last published state that the caller may
// modify freely.
func (s *generationService) Snapshot() State {
	s.pubMu.RLock()
	defer s.pubMu.RUnlock()
	return State{
		Model:   s.published.Model.Snapshot(),
		History: append([]models.HistoryEntry(nil), s.published.History...),
	}
}

func (s *generationService) Subscribe() (<-chan Event, func()) {
	return s.events.subscribe()
}

func (s *generationService) Busy() bool {
	return s.client.InFlight()
}
