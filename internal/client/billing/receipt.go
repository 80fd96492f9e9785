// Package billing issues and verifies purchase receipts.
//
// A receipt is an HS256-signed JWT carrying the purchased tier. Subscriptions
// carry an expiry; lifetime receipts do not.
package billing

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/artforge/internal/client/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidReceipt   = errors.New("invalid receipt")
	ErrReceiptExpired   = errors.New("subscription expired")
	ErrUnknownProduct   = errors.New("unknown product")
	ErrNothingToRestore = errors.New("no purchases to restore")
)

// Receipt is a signed purchase token.
type Receipt string

// Claims is the payload of a receipt.
type Claims struct {
	jwt.RegisteredClaims
	Tier      string `json:"tier"`
	ProductID string `json:"product_id"`
}

const (
	monthlyPeriod = 31 * 24 * time.Hour
	yearlyPeriod  = 366 * 24 * time.Hour
)

// ProductID maps a paid tier to its store product identifier.
func ProductID(t models.Tier) (string, error) {
	if !t.IsPaid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownProduct, t)
	}
	return "artforge." + string(t), nil
}

func period(t models.Tier) time.Duration {
	switch t {
	case models.TierMonthly:
		return monthlyPeriod
	case models.TierYearly:
		return yearlyPeriod
	default:
		return 0
	}
}

// Issuer signs receipts.
type Issuer struct {
	secret []byte
	now    func() time.Time
}

func NewIssuer(secret []byte, now func() time.Time) *Issuer {
	if now == nil {
		now = time.Now
	}
	return &Issuer{secret: secret, now: now}
}

func (i *Issuer) Issue(t models.Tier) (Receipt, error) {
	productID, err := ProductID(t)
	if err != nil {
		return "", err
	}

	issued := i.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       uuid.NewString(),
			IssuedAt: jwt.NewNumericDate(issued),
		},
		Tier:      string(t),
		ProductID: productID,
	}
	if p := period(t); p > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(issued.Add(p))
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign receipt: %w", err)
	}
	return Receipt(signed), nil
}

// Verifier checks receipt signatures and expiry.
type Verifier struct {
	secret []byte
	now    func() time.Time
}

func NewVerifier(secret []byte, now func() time.Time) *Verifier {
	if now == nil {
		now = time.Now
	}
	return &Verifier{secret: secret, now: now}
}

// Verify returns the paid tier a receipt grants.
func (v *Verifier) Verify(r Receipt) (models.Tier, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(string(r), claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(v.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrReceiptExpired
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidReceipt, err)
	}
	if !token.Valid {
		return "", ErrInvalidReceipt
	}

	tier, err := models.ParseTier(claims.Tier)
	if err != nil || !tier.IsPaid() {
		return "", fmt.Errorf("%w: tier %q", ErrUnknownProduct, claims.Tier)
	}
	if expected, _ := ProductID(tier); claims.ProductID != expected {
		return "", fmt.Errorf("%w: product %q does not match tier %q", ErrInvalidReceipt, claims.ProductID, tier)
	}
	return tier, nil
}
