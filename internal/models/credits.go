package models

import "time"

type TransactionCause string

const (
	// TransactionCauseGeneration is a debit reserved for a generation attempt.
	TransactionCauseGeneration TransactionCause = "debit_generation"
	// TransactionCausePurchase is a credit granted by a verified payment.
	TransactionCausePurchase TransactionCause = "credit_purchase"
	// TransactionCauseGrant is the starting grant for a new profile.
	TransactionCauseGrant TransactionCause = "credit_grant"
	// TransactionCauseCorrection is a manual or policy-driven adjustment,
	// including the optional refund of a failed generation.
	TransactionCauseCorrection TransactionCause = "correction"
)

// CreditTransaction records one signed delta applied to a profile's balance.
// The sum of all deltas for a profile equals its balance minus the initial
// grant; the ledger tests hold this invariant.
type CreditTransaction struct {
	ID              string           `gorm:"primaryKey" json:"id"`
	ProfileID       string           `gorm:"index;not null" json:"profile_id"`
	Cause           TransactionCause `gorm:"index;not null" json:"cause"`
	Amount          int64            `gorm:"not null" json:"amount"`
	BalanceAfter    int64            `gorm:"not null" json:"balance_after"`
	Description     string           `json:"description"`
	Metadata        string           `json:"metadata,omitzero"`
	StripeSessionID string           `gorm:"index" json:"stripe_session_id,omitzero"`
	CreatedAt       time.Time        `gorm:"autoCreateTime;index" json:"created_at"`
}

// ProcessedPaymentEvent claims a provider webhook event id so replays of the
// same event never credit twice. The unique index on EventID is the
// idempotency guarantee; the row is swept after the retention window.
type ProcessedPaymentEvent struct {
	EventID   string    `gorm:"primaryKey" json:"event_id"`
	SessionID string    `gorm:"index" json:"session_id"`
	ProfileID string    `gorm:"index" json:"profile_id"`
	Credits   int64     `json:"credits"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// CreditPackage is one purchasable credit bundle, correlated to a Stripe price.
type CreditPackage struct {
	ID            string `yaml:"id" json:"id"`
	Name          string `yaml:"name" json:"name"`
	Credits       int64  `yaml:"credits" json:"credits"`
	DisplayPrice  string `yaml:"display_price" json:"display_price"`
	StripePriceID string `yaml:"stripe_price_id" json:"-"`
}

// DebitResult reports the outcome of a conditional debit.
type DebitResult struct {
	OK            bool
	NewBalance    int64
	TransactionID string
}

// CreditParams carries a ledger credit request.
type CreditParams struct {
	ProfileID       string
	Amount          int64
	Cause           TransactionCause
	Description     string
	Metadata        string
	StripeSessionID string
}
