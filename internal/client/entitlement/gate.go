// Package entitlement decides whether the user may start a generation.
//
// A free user gets a fixed number of generations; a paid tier is unlimited.
// State is persisted in the preference store and survives restarts.
package entitlement

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/dmitrijs2005/artforge/internal/client/billing"
	"github.com/dmitrijs2005/artforge/internal/client/models"
	"github.com/dmitrijs2005/artforge/internal/client/repositories/preferences"
	"github.com/dmitrijs2005/artforge/internal/dbx"
	"github.com/dmitrijs2005/artforge/internal/logging"
)

const (
	TierKey      = "entitlement.tier"
	RemainingKey = "entitlement.remaining_free"

	DefaultFreeGenerations = 3
)

var ErrPurchaseInProgress = errors.New("a purchase is already in progress")

// Gate guards generation behind the free quota or a paid tier.
// It is safe for concurrent use.
type Gate struct {
	prefs    preferences.Repository
	db       dbx.TxBeginner
	provider billing.Provider
	verifier *billing.Verifier
	log      logging.Logger

	mu    sync.Mutex
	state models.EntitlementState
}

// NewGate loads the persisted state. db may be nil, in which case the two
// entitlement keys are written without a transaction. A fresh install starts
// on the free tier with freeGenerations remaining.
func NewGate(
	ctx context.Context,
	prefs preferences.Repository,
	db dbx.TxBeginner,
	provider billing.Provider,
	verifier *billing.Verifier,
	freeGenerations int,
	log logging.Logger,
) (*Gate, error) {
	g := &Gate{
		prefs:    prefs,
		db:       db,
		provider: provider,
		verifier: verifier,
		log:      log.With("component", "entitlement"),
	}
	if freeGenerations < 0 {
		freeGenerations = 0
	}
	if err := g.load(ctx, freeGenerations); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Gate) load(ctx context.Context, freeGenerations int) error {
	g.state = models.EntitlementState{Tier: models.TierFree, RemainingFree: freeGenerations}

	rawTier, err := g.prefs.Get(ctx, TierKey)
	if err != nil {
		return fmt.Errorf("load tier: %w", err)
	}
	if rawTier != nil {
		tier, err := models.ParseTier(string(rawTier))
		if err != nil {
			g.log.Warn(ctx, "ignoring corrupt tier", "value", string(rawTier))
		} else {
			g.state.Tier = tier
		}
	}

	rawRemaining, err := g.prefs.Get(ctx, RemainingKey)
	if err != nil {
		return fmt.Errorf("load remaining free generations: %w", err)
	}
	if rawRemaining != nil {
		n, err := strconv.Atoi(string(rawRemaining))
		if err != nil || n < 0 {
			g.log.Warn(ctx, "corrupt free generation counter, treating as exhausted", "value", string(rawRemaining))
			n = 0
		}
		g.state.RemainingFree = n
	}

	if g.state.Tier.IsPaid() {
		g.revalidate(ctx)
	}

	g.log.Debug(ctx, "entitlement loaded", "tier", g.state.Tier, "remaining_free", g.state.RemainingFree)
	return nil
}

// revalidate drops a subscription whose stored receipt has expired.
func (g *Gate) revalidate(ctx context.Context) {
	if g.verifier == nil {
		return
	}
	raw, err := g.prefs.Get(ctx, billing.ReceiptKey)
	if err != nil || raw == nil {
		return
	}
	if _, err := g.verifier.Verify(billing.Receipt(raw)); errors.Is(err, billing.ErrReceiptExpired) {
		g.log.Info(ctx, "subscription expired", "tier", g.state.Tier)
		g.state.Tier = models.TierFree
		if err := g.persist(ctx, g.state); err != nil {
			g.log.Error(ctx, "failed to persist entitlement", "error", err)
		}
	}
}

// State returns a snapshot.
func (g *Gate) State() models.EntitlementState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *Gate) CanGenerate() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state.Tier.IsPaid() || g.state.RemainingFree > 0
}

// ConsumeOneFreeGeneration decrements the free quota of a free-tier user.
// It is a no-op for paid tiers and when the quota is already exhausted.
// The in-memory counter is decremented even if persisting fails; the
// persistence error is returned for logging.
func (g *Gate) ConsumeOneFreeGeneration(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state.Tier.IsPaid() || g.state.RemainingFree <= 0 {
		return nil
	}
	g.state.RemainingFree--

	if err := g.persist(ctx, g.state); err != nil {
		g.log.Error(ctx, "failed to persist free generation counter", "error", err)
		return err
	}
	g.log.Debug(ctx, "free generation consumed", "remaining_free", g.state.RemainingFree)
	return nil
}

// Purchase buys tier through the billing provider.
func (g *Gate) Purchase(ctx context.Context, tier models.Tier) error {
	return g.transact(ctx, "purchase", func(ctx context.Context) (billing.Receipt, error) {
		return g.provider.Purchase(ctx, tier)
	})
}

// Restore re-applies the last purchase known to the billing provider.
func (g *Gate) Restore(ctx context.Context) error {
	return g.transact(ctx, "restore", g.provider.Restore)
}

func (g *Gate) transact(ctx context.Context, op string, call func(context.Context) (billing.Receipt, error)) error {
	g.mu.Lock()
	if g.state.PurchaseInProgress {
		g.mu.Unlock()
		return ErrPurchaseInProgress
	}
	g.state.PurchaseInProgress = true
	g.state.LastError = ""
	g.mu.Unlock()

	tier, err := g.run(ctx, call)

	g.mu.Lock()
	defer g.mu.Unlock()
	g.state.PurchaseInProgress = false

	if err != nil {
		g.state.LastError = userMessage(op, err)
		g.log.Warn(ctx, op+" failed", "error", err)
		return err
	}

	g.state.Tier = tier
	if err := g.persist(ctx, g.state); err != nil {
		g.log.Error(ctx, "failed to persist entitlement", "error", err)
		return err
	}
	g.log.Info(ctx, op+" applied", "tier", tier)
	return nil
}

func (g *Gate) run(ctx context.Context, call func(context.Context) (billing.Receipt, error)) (models.Tier, error) {
	if g.provider == nil {
		return "", errors.New("billing is not configured")
	}
	receipt, err := call(ctx)
	if err != nil {
		return "", err
	}
	if g.verifier == nil {
		return "", errors.New("receipt verification is not configured")
	}
	return g.verifier.Verify(receipt)
}

func (g *Gate) persist(ctx context.Context, s models.EntitlementState) error {
	write := func(ctx context.Context, r preferences.Repository) error {
		if err := r.Set(ctx, TierKey, []byte(s.Tier)); err != nil {
			return err
		}
		return r.Set(ctx, RemainingKey, []byte(strconv.Itoa(s.RemainingFree)))
	}

	if g.db == nil {
		return write(ctx, g.prefs)
	}
	return dbx.WithTx(ctx, g.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return write(ctx, g.prefs.With(tx))
	})
}

func userMessage(op string, err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return op + " cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return op + " timed out"
	case errors.Is(err, billing.ErrNothingToRestore):
		return "no purchases to restore"
	case errors.Is(err, billing.ErrReceiptExpired):
		return "your subscription has expired"
	case errors.Is(err, billing.ErrUnknownProduct):
		return "this product is not available"
	case errors.Is(err, billing.ErrInvalidReceipt):
		return "the store returned an invalid receipt"
	default:
		return op + " failed: " + err.Error()
	}
}
