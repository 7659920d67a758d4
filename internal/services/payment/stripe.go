// Package payment creates checkout sessions for credit packages and turns
// verified provider webhooks into ledger credits, exactly once per provider
// event.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/tagmaster/tagmaster-api/internal/models"
	"github.com/tagmaster/tagmaster-api/internal/services/ledger"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/checkout/session"
	"github.com/stripe/stripe-go/v81/webhook"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type StripeService struct {
	secretKey     string
	webhookSecret string
	packages      []models.CreditPackage
	ledger        *ledger.Service
	db            *gorm.DB
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	Packages      []models.CreditPackage
}

func NewStripeService(cfg StripeConfig, ledgerSvc *ledger.Service, db *gorm.DB) *StripeService {
	stripe.Key = cfg.SecretKey

	return &StripeService{
		secretKey:     cfg.SecretKey,
		webhookSecret: cfg.WebhookSecret,
		packages:      cfg.Packages,
		ledger:        ledgerSvc,
		db:            db,
	}
}

// AutoMigrate runs database migrations for the processed-event table
func (s *StripeService) AutoMigrate() error {
	return s.db.AutoMigrate(&models.ProcessedPaymentEvent{})
}

// Packages returns the purchasable credit package catalog.
func (s *StripeService) Packages() []models.CreditPackage {
	return s.packages
}

func (s *StripeService) packageByID(id string) (models.CreditPackage, bool) {
	for _, pkg := range s.packages {
		if pkg.ID == id {
			return pkg, true
		}
	}
	return models.CreditPackage{}, false
}

// CreateCheckoutParams contains parameters for creating a checkout session
type CreateCheckoutParams struct {
	IdentityID string
	PackageID  string
	ReturnURL  string
	Email      string
}

// CreateCheckoutSession creates a provider-hosted checkout session for one
// credit package. The identity and credit amount ride along as metadata so
// the webhook can apply the grant without trusting the client.
func (s *StripeService) CreateCheckoutSession(ctx context.Context, params CreateCheckoutParams) (*stripe.CheckoutSession, error) {
	pkg, ok := s.packageByID(params.PackageID)
	if !ok {
		return nil, models.NewCheckoutError(fmt.Sprintf("unknown credit package: %s", params.PackageID), nil)
	}

	sessionParams := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(pkg.StripePriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(params.ReturnURL + "?session_id={CHECKOUT_SESSION_ID}&payment_success=true"),
		CancelURL:  stripe.String(params.ReturnURL),
		Metadata: map[string]string{
			"user_id": params.IdentityID,
			"credits": strconv.FormatInt(pkg.Credits, 10),
		},
	}

	if params.Email != "" {
		sessionParams.CustomerEmail = stripe.String(params.Email)
	}

	sess, err := session.New(sessionParams)
	if err != nil {
		return nil, models.NewCheckoutError("failed to create checkout session", err)
	}

	return sess, nil
}

// HandleWebhook verifies and processes one provider webhook delivery. The
// signature check runs over the raw, unparsed body; re-serialized payloads
// would not verify.
func (s *StripeService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := webhook.ConstructEvent(payload, signature, s.webhookSecret)
	if err != nil {
		return models.NewSignatureError(err)
	}

	switch event.Type {
	case "checkout.session.completed":
		return s.handleCheckoutCompleted(ctx, event)
	default:
		// Acknowledge and ignore everything else so the provider stops
		// retrying.
		fiberlog.Debugf("ignoring stripe event %s (%s)", event.ID, event.Type)
		return nil
	}
}

func (s *StripeService) handleCheckoutCompleted(ctx context.Context, event stripe.Event) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return fmt.Errorf("failed to parse checkout session: %w", err)
	}

	identityID := sess.Metadata["user_id"]
	if identityID == "" {
		fiberlog.Errorf("stripe event %s: completed checkout session %s has no user_id metadata", event.ID, sess.ID)
		// Nothing to credit; acknowledging is the only option left.
		return nil
	}

	credits, err := strconv.ParseInt(sess.Metadata["credits"], 10, 64)
	if err != nil || credits <= 0 {
		// Degraded mode: metadata went missing, derive the grant from the
		// paid amount tiers.
		credits = models.CreditsForAmount(sess.AmountTotal)
		fiberlog.Warnf("stripe event %s: missing credits metadata, falling back to %d credits for amount %d", event.ID, credits, sess.AmountTotal)
	}

	meta, _ := json.Marshal(map[string]any{
		"stripe_event_id":   event.ID,
		"stripe_session_id": sess.ID,
		"amount_paid":       float64(sess.AmountTotal) / 100.0,
	})

	// The claim insert and the grant commit in one transaction: a crash
	// between them would otherwise mark the event processed without ever
	// crediting, and the provider's retry would be skipped.
	alreadyProcessed := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		claimed, err := claimEvent(tx, event.ID, sess.ID, identityID, credits)
		if err != nil {
			return fmt.Errorf("failed to claim payment event: %w", err)
		}
		if !claimed {
			alreadyProcessed = true
			return nil
		}

		_, err = s.ledger.CreditInTx(tx, models.CreditParams{
			ProfileID:       identityID,
			Amount:          credits,
			Cause:           models.TransactionCausePurchase,
			Description:     fmt.Sprintf("Credit purchase via Stripe (%d credits)", credits),
			Metadata:        string(meta),
			StripeSessionID: sess.ID,
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to add credits: %w", err)
	}
	if alreadyProcessed {
		fiberlog.Infof("stripe event %s already processed, skipping", event.ID)
		return nil
	}

	fiberlog.Infof("credited %d credits to %s for checkout session %s", credits, identityID, sess.ID)
	return nil
}

// claimEvent records the provider event id. The primary key on event_id makes
// the insert the idempotency gate: a replay conflicts and reports not-claimed.
// It runs inside the crediting transaction, so a failed grant rolls the claim
// back and the provider's retry can credit later.
func claimEvent(tx *gorm.DB, eventID, sessionID, profileID string, credits int64) (bool, error) {
	record := models.ProcessedPaymentEvent{
		EventID:   eventID,
		SessionID: sessionID,
		ProfileID: profileID,
		Credits:   credits,
	}

	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&record)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// SweepProcessedEvents deletes processed-event rows older than the retention
// window. Providers stop retrying long before the window closes.
func (s *StripeService) SweepProcessedEvents(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	res := s.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&models.ProcessedPaymentEvent{})
	if res.Error != nil && !errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
