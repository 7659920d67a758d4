package generation

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tagmaster/tagmaster-api/internal/models"
	"github.com/tagmaster/tagmaster-api/internal/services/auth"
	"github.com/tagmaster/tagmaster-api/internal/services/ledger"
	"github.com/tagmaster/tagmaster-api/internal/services/profile"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

// State names one step of the generation cycle.
type State int

const (
	StateIdle State = iota
	StateAuthCheck
	StateBalanceCheck
	StateReserving
	StateGenerating
	StateCommitting
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateAuthCheck:
		return "AuthCheck"
	case StateBalanceCheck:
		return "BalanceCheck"
	case StateReserving:
		return "Reserving"
	case StateGenerating:
		return "Generating"
	case StateCommitting:
		return "Committing"
	case StateDone:
		return "Done"
	default:
		return "Unknown"
	}
}

// Orchestrator drives the gate -> reserve -> generate -> commit cycle. One
// cycle may be in flight per identity; the reserve step is the only credit
// mutation and it is conditional at the storage layer, so a second request
// racing a stale balance view can never generate for free.
type Orchestrator struct {
	profiles *profile.Service
	ledger   *ledger.Service
	client   Client

	// refundFailed restores the reserved credit when the external call
	// fails. Default policy is no refund: the credit pays for the attempt.
	refundFailed bool

	mu       sync.Mutex
	inFlight map[string]State
}

func NewOrchestrator(profiles *profile.Service, ledgerSvc *ledger.Service, client Client, refundFailed bool) *Orchestrator {
	return &Orchestrator{
		profiles:     profiles,
		ledger:       ledgerSvc,
		client:       client,
		refundFailed: refundFailed,
		inFlight:     make(map[string]State),
	}
}

// StateFor reports the current cycle state for an identity.
func (o *Orchestrator) StateFor(identityID string) State {
	o.mu.Lock()
	defer o.mu.Unlock()
	if s, ok := o.inFlight[identityID]; ok {
		return s
	}
	return StateIdle
}

func (o *Orchestrator) setState(identityID string, s State) {
	o.mu.Lock()
	o.inFlight[identityID] = s
	o.mu.Unlock()
	fiberlog.Debugf("generation cycle for %s entered %s", identityID, s)
}

func (o *Orchestrator) tryBegin(identityID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.inFlight[identityID]; busy {
		return false
	}
	o.inFlight[identityID] = StateAuthCheck
	return true
}

func (o *Orchestrator) finish(identityID string) {
	o.mu.Lock()
	delete(o.inFlight, identityID)
	o.mu.Unlock()
}

func newInFlightError() *models.AppError {
	return &models.AppError{
		Type:       models.ErrorTypeValidation,
		Message:    "a generation is already in progress for this account",
		Code:       "GENERATION_IN_FLIGHT",
		StatusCode: http.StatusConflict,
		Retryable:  true,
	}
}

// Submit runs one full generation cycle for the session's identity.
func (o *Orchestrator) Submit(ctx context.Context, session *auth.Session, req models.GenerationRequest) (*models.GenerationResult, error) {
	theme := strings.TrimSpace(req.Theme)
	if theme == "" {
		return nil, models.NewValidationError("theme must not be empty", nil)
	}

	strategy, ok := models.StrategyByID(req.Strategy)
	if !ok {
		return nil, models.NewValidationError("unknown strategy: "+string(req.Strategy), nil)
	}

	// AuthCheck
	if session == nil || session.UserID == "" {
		return nil, models.NewAuthRequiredError()
	}
	identityID := session.UserID

	if !o.tryBegin(identityID) {
		return nil, newInFlightError()
	}
	defer o.finish(identityID)

	// BalanceCheck. GetOrCreate self-heals a missing profile and collapses
	// concurrent reads, so a refresh already in flight is joined, not raced.
	o.setState(identityID, StateBalanceCheck)
	if _, err := o.profiles.GetOrCreate(ctx, identityID, session.Email); err != nil {
		return nil, err
	}

	// Reserving: the conditional debit is the overdraft gate.
	o.setState(identityID, StateReserving)
	debit, err := o.ledger.TryDebit(ctx, identityID, 1)
	if err != nil {
		return nil, err
	}
	if !debit.OK {
		return nil, models.NewInsufficientCreditsError(debit.NewBalance)
	}

	// Generating
	o.setState(identityID, StateGenerating)
	result, err := o.client.Generate(ctx, theme, strategy)
	if err != nil {
		o.rollback(identityID, err)
		return nil, err
	}

	// Committing
	o.setState(identityID, StateCommitting)
	meta, _ := json.Marshal(map[string]any{
		"theme":    theme,
		"strategy": strategy.ID,
		"hashtags": len(result.Hashtags),
	})
	if err := o.ledger.FinalizeDebit(ctx, debit.TransactionID, string(meta)); err != nil {
		return nil, err
	}

	o.setState(identityID, StateDone)
	o.refreshAsync(identityID)
	return result, nil
}

// rollback reconciles after a failed generation. The debit already happened
// server-side; unless the refund policy is enabled the credit stays spent and
// only the cached balance view is resynchronized.
func (o *Orchestrator) rollback(identityID string, cause error) {
	if o.refundFailed {
		refundCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, err := o.ledger.Credit(refundCtx, models.CreditParams{
			ProfileID:   identityID,
			Amount:      1,
			Cause:       models.TransactionCauseCorrection,
			Description: "Refund for failed generation",
		})
		if err != nil {
			fiberlog.Errorf("failed to refund credit for %s: %v", identityID, err)
		}
	}

	fiberlog.Warnf("generation failed for %s: %v", identityID, cause)
	o.refreshAsync(identityID)
}

// refreshAsync reconciles the authoritative balance with any subscribed
// clients without blocking the response.
func (o *Orchestrator) refreshAsync(identityID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := o.profiles.RefreshAndPublish(ctx, identityID); err != nil {
			fiberlog.Warnf("background profile refresh failed for %s: %v", identityID, err)
		}
	}()
}
