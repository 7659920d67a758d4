package models

type StripeConfig struct {
	SecretKey     string `json:"secret_key" yaml:"secret_key"`
	WebhookSecret string `json:"webhook_secret" yaml:"webhook_secret"`
}

// CreditsConfig carries the credit policy knobs the product left open:
// the starting grant for new profiles and whether a failed generation
// refunds its reserved credit.
type CreditsConfig struct {
	InitialGrant            int64           `json:"initial_grant" yaml:"initial_grant"`
	RefundFailedGenerations bool            `json:"refund_failed_generations" yaml:"refund_failed_generations"`
	EventRetentionDays      int             `json:"event_retention_days" yaml:"event_retention_days"`
	Packages                []CreditPackage `json:"packages" yaml:"packages"`
}

// DefaultCreditPackages mirrors the shipped pricing tiers.
func DefaultCreditPackages() []CreditPackage {
	return []CreditPackage{
		{ID: "starter", Name: "Starter", Credits: 10, DisplayPrice: "$4.99"},
		{ID: "growth", Name: "Growth", Credits: 50, DisplayPrice: "$14.99"},
		{ID: "agency", Name: "Agency", Credits: 200, DisplayPrice: "$39.99"},
	}
}

// CreditsForAmount maps a paid amount in cents to a credit grant. This is the
// degraded-mode fallback for completed checkout sessions whose metadata went
// missing; the metadata path is authoritative.
func CreditsForAmount(amountCents int64) int64 {
	switch {
	case amountCents >= 3900:
		return 200
	case amountCents >= 1400:
		return 50
	default:
		return 10
	}
}
