package history

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/artforge/internal/client/assets"
	"github.com/dmitrijs2005/artforge/internal/client/models"
	"github.com/dmitrijs2005/artforge/internal/client/repositories/preferences"
	"github.com/dmitrijs2005/artforge/internal/logging"
	"github.com/dmitrijs2005/artforge/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	prefs *preferences.MemoryRepository
	dir   string
	store *Store
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	dir := t.TempDir()
	a, err := assets.NewLocalStore(dir)
	require.NoError(t, err)
	prefs := preferences.NewMemoryRepository()
	return &fixture{prefs: prefs, dir: dir, store: NewStore(prefs, a, logging.Nop(), opts...)}
}

func (f *fixture) files(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(f.dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func image(t *testing.T) *models.Image {
	t.Helper()
	img, err := models.DecodeImage(testutil.PNG(t, 3, 3, testutil.Blue))
	require.NoError(t, err)
	return img
}

func entry(t *testing.T, id string, at time.Time, withSource bool) models.HistoryEntry {
	e := models.HistoryEntry{ID: id, Image: image(t), Prompt: "prompt " + id, CreatedAt: at}
	if withSource {
		src, err := models.DecodeImage(testutil.JPEG(t, 2, 2, testutil.Red))
		require.NoError(t, err)
		e.Source = src
	}
	return e
}

var base = time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

func TestAppendReadAll_RoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	e := entry(t, "a1", base, true)
	require.True(t, f.store.Append(ctx, e))

	got := f.store.ReadAll(ctx)
	require.Len(t, got, 1)
	assert.Equal(t, "a1", got[0].ID)
	assert.Equal(t, "prompt a1", got[0].Prompt)
	assert.True(t, base.Equal(got[0].CreatedAt))
	assert.Equal(t, e.Image.Data, got[0].Image.Data)
	require.NotNil(t, got[0].Source)
	assert.Equal(t, e.Source.Data, got[0].Source.Data)

	assert.ElementsMatch(t, []string{"a1_image.png", "a1_source.jpg"}, f.files(t))
}

func TestAppend_IndexFormat(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.True(t, f.store.Append(ctx, entry(t, "x", base, false)))

	raw, err := f.prefs.Get(ctx, IndexKey)
	require.NoError(t, err)
	assert.JSONEq(t,
		`[{"id":"x","prompt":"prompt x","date":"2025-05-01T10:00:00Z","imageFilename":"x_image.png"}]`,
		string(raw))
}

func TestAppend_NewestFirst(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		require.True(t, f.store.Append(ctx, entry(t, fmt.Sprint(i), base.Add(time.Duration(i)*time.Minute), false)))
	}

	got := f.store.ReadAll(ctx)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"2", "1", "0"}, []string{got[0].ID, got[1].ID, got[2].ID})
}

func TestAppend_CapsAtFiftyAndDeletesEvictedAssets(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for i := 0; i < models.MaxHistoryEntries+1; i++ {
		require.True(t, f.store.Append(ctx, entry(t, fmt.Sprintf("e%02d", i), base.Add(time.Duration(i)*time.Second), true)))
	}

	assert.Equal(t, models.MaxHistoryEntries, f.store.Len(ctx))
	got := f.store.ReadAll(ctx)
	require.Len(t, got, models.MaxHistoryEntries)
	assert.Equal(t, "e50", got[0].ID)
	assert.Equal(t, "e01", got[len(got)-1].ID)

	files := f.files(t)
	assert.Len(t, files, 2*models.MaxHistoryEntries)
	assert.NotContains(t, files, "e00_image.png")
	assert.NotContains(t, files, "e00_source.jpg")
}

func TestAppend_WithMaxEntries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithMaxEntries(2))
	for _, id := range []string{"a", "b", "c"} {
		f.store.Append(ctx, entry(t, id, base, false))
	}
	assert.Equal(t, 2, f.store.Len(ctx))
	assert.ElementsMatch(t, []string{"b_image.png", "c_image.png"}, f.files(t))
}

func TestAppend_SameIDReplaces(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.store.Append(ctx, entry(t, "dup", base, false))
	e := entry(t, "dup", base.Add(time.Hour), false)
	e.Prompt = "second"
	f.store.Append(ctx, e)

	got := f.store.ReadAll(ctx)
	require.Len(t, got, 1)
	assert.Equal(t, "second", got[0].Prompt)
}

func TestAppend_AssignsIDAndDate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithClock(func() time.Time { return base }))

	require.True(t, f.store.Append(ctx, models.HistoryEntry{Image: image(t), Prompt: "p"}))
	got := f.store.ReadAll(ctx)
	require.Len(t, got, 1)
	assert.NotEmpty(t, got[0].ID)
	assert.True(t, base.Equal(got[0].CreatedAt))
}

func TestAppend_WithoutImageIsRejected(t *testing.T) {
	f := newFixture(t)
	assert.False(t, f.store.Append(context.Background(), models.HistoryEntry{ID: "x"}))
	assert.Equal(t, 0, f.store.Len(context.Background()))
}

func TestAppend_IndexFailureRollsBackAssets(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.True(t, f.store.Append(ctx, entry(t, "keep", base, false)))

	f.prefs.FailSet = func(string) error { return errors.New("disk full") }
	assert.False(t, f.store.Append(ctx, entry(t, "lost", base, true)))

	assert.Equal(t, []string{"keep_image.png"}, f.files(t))
	got := f.store.ReadAll(ctx)
	require.Len(t, got, 1)
	assert.Equal(t, "keep", got[0].ID)
}

func TestAppend_UnreadableIndexKeepsHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for i := 0; i < 5; i++ {
		require.True(t, f.store.Append(ctx, entry(t, fmt.Sprintf("e%d", i), base.Add(time.Duration(i)*time.Minute), false)))
	}
	before := f.files(t)

	f.prefs.FailGet = func(string) error { return errors.New("database is locked") }
	assert.False(t, f.store.Append(ctx, entry(t, "new", base.Add(time.Hour), true)))
	f.store.Clear(ctx)
	assert.False(t, f.store.Remove(ctx, "e0"))
	f.prefs.FailGet = nil

	assert.Equal(t, before, f.files(t))
	got := f.store.ReadAll(ctx)
	require.Len(t, got, 5)
	assert.Equal(t, "e4", got[0].ID)
}

func TestReadAll_SkipsEntriesWithMissingAssets(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.store.Append(ctx, entry(t, "a", base, true))
	f.store.Append(ctx, entry(t, "b", base, true))

	require.NoError(t, os.Remove(filepath.Join(f.dir, "a_image.png")))
	require.NoError(t, os.Remove(filepath.Join(f.dir, "b_source.jpg")))

	got := f.store.ReadAll(ctx)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ID)
	assert.Nil(t, got[0].Source)
}

func TestReadAll_CorruptIndexIsEmpty(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.prefs.Set(ctx, IndexKey, []byte("{not json")))

	assert.Empty(t, f.store.ReadAll(ctx))
	require.True(t, f.store.Append(ctx, entry(t, "a", base, false)))
	assert.Len(t, f.store.ReadAll(ctx), 1)
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.store.Append(ctx, entry(t, "a", base, true))
	f.store.Append(ctx, entry(t, "b", base, false))

	assert.True(t, f.store.Remove(ctx, "a"))
	assert.False(t, f.store.Remove(ctx, "a"))

	got := f.store.ReadAll(ctx)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, []string{"b_image.png"}, f.files(t))
}

func TestGet(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.store.Append(ctx, entry(t, "a", base, false))

	e, ok := f.store.Get(ctx, "a")
	require.True(t, ok)
	assert.Equal(t, "prompt a", e.Prompt)

	_, ok = f.store.Get(ctx, "missing")
	assert.False(t, ok)
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.store.Append(ctx, entry(t, "a", base, true))
	f.store.Append(ctx, entry(t, "b", base, false))

	f.store.Clear(ctx)

	assert.Empty(t, f.store.ReadAll(ctx))
	assert.Equal(t, 0, f.store.Len(ctx))
	assert.Empty(t, f.files(t))
}
