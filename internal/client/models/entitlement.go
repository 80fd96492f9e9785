package models

import (
	"fmt"
	"strings"
)

// Tier is the subscription level of the user.
type Tier string

const (
	TierFree     Tier = "free"
	TierMonthly  Tier = "monthly"
	TierYearly   Tier = "yearly"
	TierLifetime Tier = "lifetime"
)

// ParseTier accepts the persisted identifiers, case-insensitively.
func ParseTier(s string) (Tier, error) {
	switch t := Tier(strings.ToLower(strings.TrimSpace(s))); t {
	case TierFree, TierMonthly, TierYearly, TierLifetime:
		return t, nil
	default:
		return "", fmt.Errorf("unknown tier %q", s)
	}
}

func (t Tier) IsPaid() bool {
	return t == TierMonthly || t == TierYearly || t == TierLifetime
}

// EntitlementState is a snapshot of the entitlement gate.
type EntitlementState struct {
	Tier               Tier
	RemainingFree      int
	PurchaseInProgress bool
	LastError          string
}
