// Package history keeps the capped, newest-first list of past generations.
//
// The index is a JSON array of models.HistoryRecord stored under IndexKey in
// the preference store; image bytes live in an assets.Store. Errors are
// logged and absorbed: a history failure never fails a generation.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dmitrijs2005/artforge/internal/client/assets"
	"github.com/dmitrijs2005/artforge/internal/client/models"
	"github.com/dmitrijs2005/artforge/internal/client/repositories/preferences"
	"github.com/dmitrijs2005/artforge/internal/logging"
	"github.com/google/uuid"
)

// IndexKey is the preference key of the history index.
const IndexKey = "generation_history"

type Option func(*Store)

// WithMaxEntries overrides models.MaxHistoryEntries.
func WithMaxEntries(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.max = n
		}
	}
}

// WithClock sets the time source used for entries without a creation date.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

type Store struct {
	prefs  preferences.Repository
	assets assets.Store
	log    logging.Logger
	max    int
	now    func() time.Time

	mu sync.Mutex
}

func NewStore(prefs preferences.Repository, a assets.Store, log logging.Logger, opts ...Option) *Store {
	s := &Store{
		prefs:  prefs,
		assets: a,
		log:    log.With("component", "history"),
		max:    models.MaxHistoryEntries,
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func imageName(id string, img *models.Image) string  { return id + "_image." + img.Ext() }
func sourceName(id string, img *models.Image) string { return id + "_source." + img.Ext() }

// Append stores e at the head of the history, evicting the oldest entries
// beyond the cap. Assets are written before the index; if the index write
// fails the new assets are removed again. It reports whether e was stored.
func (s *Store) Append(ctx context.Context, e models.HistoryEntry) bool {
	if e.Image == nil || len(e.Image.Data) == 0 {
		s.log.Warn(ctx, "history entry without image skipped")
		return false
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// An index that cannot be read must not be replaced, or every stored
	// entry would be lost.
	records, err := s.readIndex(ctx)
	if err != nil {
		s.log.Error(ctx, "history entry not stored, index unreadable", "id", e.ID, "error", err)
		return false
	}

	rec := models.HistoryRecord{
		ID:            e.ID,
		Prompt:        e.Prompt,
		Date:          e.CreatedAt.UTC(),
		ImageFilename: imageName(e.ID, e.Image),
	}
	if err := s.assets.Write(ctx, rec.ImageFilename, e.Image.Data); err != nil {
		s.log.Error(ctx, "failed to write history image", "id", e.ID, "error", err)
		return false
	}
	if e.Source != nil && len(e.Source.Data) > 0 {
		rec.SourceImageFilename = sourceName(e.ID, e.Source)
		if err := s.assets.Write(ctx, rec.SourceImageFilename, e.Source.Data); err != nil {
			s.log.Error(ctx, "failed to write history source image", "id", e.ID, "error", err)
			s.deleteAssets(ctx, models.HistoryRecord{ImageFilename: rec.ImageFilename})
			return false
		}
	}

	records = slices.DeleteFunc(records, func(r models.HistoryRecord) bool { return r.ID == e.ID })
	records = append([]models.HistoryRecord{rec}, records...)

	var evicted []models.HistoryRecord
	if len(records) > s.max {
		evicted = records[s.max:]
		records = records[:s.max]
	}

	if err := s.writeIndex(ctx, records); err != nil {
		s.log.Error(ctx, "failed to write history index, rolling back assets", "id", e.ID, "error", err)
		s.deleteAssets(ctx, rec)
		return false
	}

	for _, r := range evicted {
		s.deleteAssets(ctx, r)
	}
	s.log.Debug(ctx, "history entry stored", "id", e.ID, "entries", len(records), "evicted", len(evicted))
	return true
}

// ReadAll returns the stored entries newest-first. Entries whose generated
// image can no longer be read are skipped; an unreadable source image only
// drops the source.
func (s *Store) ReadAll(ctx context.Context) []models.HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, _ := s.readIndex(ctx)
	out := make([]models.HistoryEntry, 0, len(records))
	for _, r := range records {
		if e, ok := s.load(ctx, r); ok {
			out = append(out, e)
		}
	}
	return out
}

// Get returns one entry by id.
func (s *Store) Get(ctx context.Context, id string) (models.HistoryEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, _ := s.readIndex(ctx)
	for _, r := range records {
		if r.ID == id {
			return s.load(ctx, r)
		}
	}
	return models.HistoryEntry{}, false
}

// Len returns the number of indexed entries, including ones whose assets
// have gone missing.
func (s *Store) Len(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, _ := s.readIndex(ctx)
	return len(records)
}

// Remove deletes one entry and its assets. The index is updated first.
func (s *Store) Remove(ctx context.Context, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.readIndex(ctx)
	if err != nil {
		return false
	}
	i := slices.IndexFunc(records, func(r models.HistoryRecord) bool { return r.ID == id })
	if i < 0 {
		return false
	}
	removed := records[i]
	records = slices.Delete(records, i, i+1)

	if err := s.writeIndex(ctx, records); err != nil {
		s.log.Error(ctx, "failed to write history index", "id", id, "error", err)
		return false
	}
	s.deleteAssets(ctx, removed)
	return true
}

// Clear deletes every referenced asset and empties the index. Nothing is
// changed when the index cannot be read.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.readIndex(ctx)
	if err != nil {
		return
	}
	for _, r := range records {
		s.deleteAssets(ctx, r)
	}
	if err := s.writeIndex(ctx, nil); err != nil {
		s.log.Error(ctx, "failed to clear history index", "error", err)
		return
	}
	s.log.Info(ctx, "history cleared", "entries", len(records))
}

func (s *Store) load(ctx context.Context, r models.HistoryRecord) (models.HistoryEntry, bool) {
	img, err := s.readImage(ctx, r.ImageFilename)
	if err != nil {
		s.log.Warn(ctx, "skipping history entry with unreadable image", "id", r.ID, "error", err)
		return models.HistoryEntry{}, false
	}

	e := models.HistoryEntry{ID: r.ID, Image: img, Prompt: r.Prompt, CreatedAt: r.Date}
	if r.SourceImageFilename != "" {
		src, err := s.readImage(ctx, r.SourceImageFilename)
		if err != nil {
			s.log.Warn(ctx, "history source image unreadable", "id", r.ID, "error", err)
		} else {
			e.Source = src
		}
	}
	return e, true
}

func (s *Store) readImage(ctx context.Context, name string) (*models.Image, error) {
	data, err := s.assets.Read(ctx, name)
	if err != nil {
		return nil, err
	}
	return models.DecodeImage(data)
}

// readIndex returns the persisted records. A missing or corrupt index reads
// as empty; only a failed read of the preference store is an error.
func (s *Store) readIndex(ctx context.Context) ([]models.HistoryRecord, error) {
	raw, err := s.prefs.Get(ctx, IndexKey)
	if err != nil {
		s.log.Error(ctx, "failed to read history index", "error", err)
		return nil, fmt.Errorf("read history index: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var records []models.HistoryRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		s.log.Warn(ctx, "corrupt history index treated as empty", "error", err)
		return nil, nil
	}
	return records, nil
}

func (s *Store) writeIndex(ctx context.Context, records []models.HistoryRecord) error {
	if records == nil {
		records = []models.HistoryRecord{}
	}
	raw, err := json.Marshal(records)
	if err != nil {
		return err
	}
	return s.prefs.Set(ctx, IndexKey, raw)
}

func (s *Store) deleteAssets(ctx context.Context, r models.HistoryRecord) {
	for _, name := range r.AssetFilenames() {
		if err := s.assets.Delete(ctx, name); err != nil {
			s.log.Warn(ctx, "failed to delete history asset", "name", name, "error", err)
		}
	}
}
