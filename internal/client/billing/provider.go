package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/artforge/internal/client/models"
	"github.com/dmitrijs2005/artforge/internal/client/repositories/preferences"
	"github.com/dmitrijs2005/artforge/internal/logging"
)

// ReceiptKey is the preference key holding the last receipt.
const ReceiptKey = "billing.receipt"

// Provider is the store front used by the entitlement gate.
type Provider interface {
	Purchase(ctx context.Context, tier models.Tier) (Receipt, error)
	Restore(ctx context.Context) (Receipt, error)
}

// LocalProvider simulates a store: it signs receipts locally after a fixed
// latency and remembers the last one for Restore.
type LocalProvider struct {
	issuer  *Issuer
	prefs   preferences.Repository
	latency time.Duration
	log     logging.Logger
}

func NewLocalProvider(issuer *Issuer, prefs preferences.Repository, latency time.Duration, log logging.Logger) *LocalProvider {
	return &LocalProvider{
		issuer:  issuer,
		prefs:   prefs,
		latency: latency,
		log:     log.With("component", "billing"),
	}
}

func (p *LocalProvider) Purchase(ctx context.Context, tier models.Tier) (Receipt, error) {
	if err := p.wait(ctx); err != nil {
		return "", err
	}

	receipt, err := p.issuer.Issue(tier)
	if err != nil {
		return "", err
	}
	if err := p.prefs.Set(ctx, ReceiptKey, []byte(receipt)); err != nil {
		return "", fmt.Errorf("store receipt: %w", err)
	}

	p.log.Info(ctx, "purchase completed", "tier", tier)
	return receipt, nil
}

func (p *LocalProvider) Restore(ctx context.Context) (Receipt, error) {
	if err := p.wait(ctx); err != nil {
		return "", err
	}

	raw, err := p.prefs.Get(ctx, ReceiptKey)
	if err != nil {
		return "", fmt.Errorf("load receipt: %w", err)
	}
	if len(raw) == 0 {
		return "", ErrNothingToRestore
	}

	p.log.Info(ctx, "purchase restored")
	return Receipt(raw), nil
}

func (p *LocalProvider) wait(ctx context.Context) error {
	if p.latency <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(p.latency)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
