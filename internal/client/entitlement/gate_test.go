package entitlement

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/artforge/internal/client/billing"
	"github.com/dmitrijs2005/artforge/internal/client/models"
	"github.com/dmitrijs2005/artforge/internal/client/repositories/preferences"
	"github.com/dmitrijs2005/artforge/internal/client/storage"
	"github.com/dmitrijs2005/artforge/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("gate-secret")

type fakeProvider struct {
	issuer  *billing.Issuer
	release chan struct{}
	started chan struct{}
	err     error
	restore billing.Receipt
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{issuer: billing.NewIssuer(secret, nil)}
}

func (p *fakeProvider) block() {
	if p.started != nil {
		close(p.started)
	}
	if p.release != nil {
		<-p.release
	}
}

func (p *fakeProvider) Purchase(_ context.Context, tier models.Tier) (billing.Receipt, error) {
	p.block()
	if p.err != nil {
		return "", p.err
	}
	return p.issuer.Issue(tier)
}

func (p *fakeProvider) Restore(context.Context) (billing.Receipt, error) {
	p.block()
	if p.err != nil {
		return "", p.err
	}
	if p.restore == "" {
		return "", billing.ErrNothingToRestore
	}
	return p.restore, nil
}

func newGate(t *testing.T, prefs preferences.Repository, p billing.Provider, free int) *Gate {
	t.Helper()
	g, err := NewGate(context.Background(), prefs, nil, p, billing.NewVerifier(secret, nil), free, logging.Nop())
	require.NoError(t, err)
	return g
}

func TestFreshInstall_DefaultsToFreeQuota(t *testing.T) {
	g := newGate(t, preferences.NewMemoryRepository(), newFakeProvider(), DefaultFreeGenerations)

	s := g.State()
	assert.Equal(t, models.TierFree, s.Tier)
	assert.Equal(t, 3, s.RemainingFree)
	assert.False(t, s.PurchaseInProgress)
	assert.Empty(t, s.LastError)
	assert.True(t, g.CanGenerate())
}

func TestConsume_NeverGoesNegative(t *testing.T) {
	ctx := context.Background()
	prefs := preferences.NewMemoryRepository()
	g := newGate(t, prefs, newFakeProvider(), 1)

	require.NoError(t, g.ConsumeOneFreeGeneration(ctx))
	assert.Equal(t, 0, g.State().RemainingFree)
	assert.False(t, g.CanGenerate())

	require.NoError(t, g.ConsumeOneFreeGeneration(ctx))
	assert.Equal(t, 0, g.State().RemainingFree)

	raw, err := prefs.Get(ctx, RemainingKey)
	require.NoError(t, err)
	assert.Equal(t, "0", string(raw))
}

func TestConsume_PaidTierIsNoop(t *testing.T) {
	ctx := context.Background()
	prefs := preferences.NewMemoryRepository()
	require.NoError(t, prefs.Set(ctx, TierKey, []byte("lifetime")))
	require.NoError(t, prefs.Set(ctx, RemainingKey, []byte("0")))

	g := newGate(t, prefs, newFakeProvider(), 3)
	assert.True(t, g.CanGenerate())

	require.NoError(t, g.ConsumeOneFreeGeneration(ctx))
	assert.Equal(t, models.TierLifetime, g.State().Tier)
	assert.Equal(t, 0, g.State().RemainingFree)
}

func TestConsume_PersistFailureStillDecrements(t *testing.T) {
	prefs := preferences.NewMemoryRepository()
	boom := errors.New("disk full")
	prefs.FailSet = func(string) error { return boom }

	g := newGate(t, prefs, newFakeProvider(), 2)
	err := g.ConsumeOneFreeGeneration(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, g.State().RemainingFree)
}

func TestCorruptValues(t *testing.T) {
	ctx := context.Background()
	prefs := preferences.NewMemoryRepository()
	require.NoError(t, prefs.Set(ctx, TierKey, []byte("platinum")))
	require.NoError(t, prefs.Set(ctx, RemainingKey, []byte("-4")))

	g := newGate(t, prefs, newFakeProvider(), 3)
	assert.Equal(t, models.TierFree, g.State().Tier)
	assert.Equal(t, 0, g.State().RemainingFree)
}

func TestState_SurvivesRestartWithSQLite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "artforge.db")

	open := func() *Gate {
		db, err := storage.InitDatabase(ctx, path)
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })

		g, err := NewGate(ctx, preferences.NewSQLiteRepository(db), db, newFakeProvider(),
			billing.NewVerifier(secret, nil), 3, logging.Nop())
		require.NoError(t, err)
		return g
	}

	g := open()
	require.NoError(t, g.ConsumeOneFreeGeneration(ctx))
	require.NoError(t, g.ConsumeOneFreeGeneration(ctx))

	reopened := open()
	assert.Equal(t, 1, reopened.State().RemainingFree)
	assert.Equal(t, models.TierFree, reopened.State().Tier)

	require.NoError(t, reopened.Purchase(ctx, models.TierMonthly))
	assert.Equal(t, models.TierMonthly, open().State().Tier)
}

func TestPurchase_Success(t *testing.T) {
	ctx := context.Background()
	prefs := preferences.NewMemoryRepository()
	g := newGate(t, prefs, newFakeProvider(), 0)
	require.False(t, g.CanGenerate())

	require.NoError(t, g.Purchase(ctx, models.TierYearly))

	s := g.State()
	assert.Equal(t, models.TierYearly, s.Tier)
	assert.False(t, s.PurchaseInProgress)
	assert.Empty(t, s.LastError)
	assert.True(t, g.CanGenerate())

	raw, err := prefs.Get(ctx, TierKey)
	require.NoError(t, err)
	assert.Equal(t, "yearly", string(raw))
}

func TestPurchase_FailureRecordsLastError(t *testing.T) {
	p := newFakeProvider()
	p.err = context.Canceled
	g := newGate(t, preferences.NewMemoryRepository(), p, 3)

	err := g.Purchase(context.Background(), models.TierMonthly)
	require.ErrorIs(t, err, context.Canceled)

	s := g.State()
	assert.Equal(t, models.TierFree, s.Tier)
	assert.False(t, s.PurchaseInProgress)
	assert.Equal(t, "purchase cancelled", s.LastError)
}

func TestPurchase_ConcurrentRequestRejected(t *testing.T) {
	p := newFakeProvider()
	p.started = make(chan struct{})
	p.release = make(chan struct{})
	g := newGate(t, preferences.NewMemoryRepository(), p, 3)

	done := make(chan error, 1)
	go func() { done <- g.Purchase(context.Background(), models.TierLifetime) }()

	<-p.started
	assert.True(t, g.State().PurchaseInProgress)
	require.ErrorIs(t, g.Purchase(context.Background(), models.TierMonthly), ErrPurchaseInProgress)
	require.ErrorIs(t, g.Restore(context.Background()), ErrPurchaseInProgress)

	close(p.release)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("purchase did not finish")
	}
	assert.Equal(t, models.TierLifetime, g.State().Tier)
	assert.False(t, g.State().PurchaseInProgress)
}

func TestPurchase_ClearsPreviousError(t *testing.T) {
	p := newFakeProvider()
	p.err = errors.New("store unavailable")
	g := newGate(t, preferences.NewMemoryRepository(), p, 3)

	require.Error(t, g.Purchase(context.Background(), models.TierMonthly))
	assert.Equal(t, "purchase failed: store unavailable", g.State().LastError)

	p.err = nil
	require.NoError(t, g.Purchase(context.Background(), models.TierMonthly))
	assert.Empty(t, g.State().LastError)
}

func TestRestore(t *testing.T) {
	p := newFakeProvider()
	g := newGate(t, preferences.NewMemoryRepository(), p, 3)

	require.ErrorIs(t, g.Restore(context.Background()), billing.ErrNothingToRestore)
	assert.Equal(t, "no purchases to restore", g.State().LastError)

	r, err := p.issuer.Issue(models.TierLifetime)
	require.NoError(t, err)
	p.restore = r

	require.NoError(t, g.Restore(context.Background()))
	assert.Equal(t, models.TierLifetime, g.State().Tier)
	assert.Empty(t, g.State().LastError)
}

func TestRestore_ForgedReceiptRejected(t *testing.T) {
	p := newFakeProvider()
	forged, err := billing.NewIssuer([]byte("wrong"), nil).Issue(models.TierLifetime)
	require.NoError(t, err)
	p.restore = forged

	g := newGate(t, preferences.NewMemoryRepository(), p, 3)
	require.ErrorIs(t, g.Restore(context.Background()), billing.ErrInvalidReceipt)
	assert.Equal(t, models.TierFree, g.State().Tier)
	assert.Equal(t, "the store returned an invalid receipt", g.State().LastError)
}

func TestLoad_ExpiredSubscriptionFallsBackToFree(t *testing.T) {
	ctx := context.Background()
	prefs := preferences.NewMemoryRepository()

	old := time.Now().Add(-60 * 24 * time.Hour)
	r, err := billing.NewIssuer(secret, func() time.Time { return old }).Issue(models.TierMonthly)
	require.NoError(t, err)
	require.NoError(t, prefs.Set(ctx, billing.ReceiptKey, []byte(r)))
	require.NoError(t, prefs.Set(ctx, TierKey, []byte("monthly")))
	require.NoError(t, prefs.Set(ctx, RemainingKey, []byte("2")))

	g := newGate(t, prefs, newFakeProvider(), 3)
	assert.Equal(t, models.TierFree, g.State().Tier)
	assert.Equal(t, 2, g.State().RemainingFree)

	raw, err := prefs.Get(ctx, TierKey)
	require.NoError(t, err)
	assert.Equal(t, "free", string(raw))
}
