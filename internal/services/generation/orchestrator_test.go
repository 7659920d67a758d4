package generation

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tagmaster/tagmaster-api/internal/models"
	"github.com/tagmaster/tagmaster-api/internal/services/auth"
	"github.com/tagmaster/tagmaster-api/internal/services/ledger"
	"github.com/tagmaster/tagmaster-api/internal/services/profile"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// fakeClient counts calls and returns a canned result or error.
type fakeClient struct {
	calls  atomic.Int64
	result *models.GenerationResult
	err    error

	// blockTheme holds calls for that theme until release is closed,
	// reporting each held call on entered.
	blockTheme string
	entered    chan struct{}
	release    chan struct{}
}

func (f *fakeClient) Generate(_ context.Context, theme string, strategy models.Strategy) (*models.GenerationResult, error) {
	f.calls.Add(1)
	if f.blockTheme != "" && theme == f.blockTheme {
		f.entered <- struct{}{}
		<-f.release
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &models.GenerationResult{
		Caption:      "caption for " + theme,
		Hashtags:     []string{"#a", "#b"},
		StrategyUsed: strategy.ID,
	}, nil
}

type testEnv struct {
	db       *gorm.DB
	profiles *profile.Service
	ledger   *ledger.Service
	client   *fakeClient
}

func newTestEnv(t *testing.T, refundFailed bool) (*Orchestrator, *testEnv) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(t.TempDir()+"/orchestrator.db"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	profiles := profile.NewService(db, nil, 3)
	require.NoError(t, profiles.AutoMigrate())
	ledgerSvc := ledger.NewService(db)
	require.NoError(t, ledgerSvc.AutoMigrate())

	client := &fakeClient{}
	orch := NewOrchestrator(profiles, ledgerSvc, client, refundFailed)

	return orch, &testEnv{db: db, profiles: profiles, ledger: ledgerSvc, client: client}
}

func testSession(userID string) *auth.Session {
	return &auth.Session{UserID: userID, Email: userID + "@example.com", IssuedAt: time.Now()}
}

func creditsOf(t *testing.T, db *gorm.DB, id string) int64 {
	t.Helper()
	var p models.UserProfile
	require.NoError(t, db.First(&p, "id = ?", id).Error)
	return p.Credits
}

func TestSubmitHappyPathDebitsOneCredit(t *testing.T) {
	orch, env := newTestEnv(t, false)

	result, err := orch.Submit(context.Background(), testSession("user-1"), models.GenerationRequest{
		Theme:    "sunset surfing",
		Strategy: models.StrategyPillar,
	})
	require.NoError(t, err)

	assert.Equal(t, "caption for sunset surfing", result.Caption)
	assert.Equal(t, models.StrategyPillar, result.StrategyUsed)
	assert.Equal(t, int64(1), env.client.calls.Load())
	assert.Equal(t, int64(2), creditsOf(t, env.db, "user-1"))

	var tx models.CreditTransaction
	require.NoError(t, env.db.First(&tx, "profile_id = ?", "user-1").Error)
	assert.Equal(t, "Generation completed", tx.Description)
	assert.Contains(t, tx.Metadata, "sunset surfing")
}

func TestSubmitWithoutSession(t *testing.T) {
	orch, env := newTestEnv(t, false)

	_, err := orch.Submit(context.Background(), nil, models.GenerationRequest{
		Theme:    "anything",
		Strategy: models.StrategyPillar,
	})

	assert.True(t, models.IsType(err, models.ErrorTypeAuthRequired))
	assert.Zero(t, env.client.calls.Load(), "unauthenticated requests must never reach the provider")
}

func TestSubmitValidation(t *testing.T) {
	orch, env := newTestEnv(t, false)
	ctx := context.Background()

	_, err := orch.Submit(ctx, testSession("user-1"), models.GenerationRequest{
		Theme:    "   ",
		Strategy: models.StrategyPillar,
	})
	assert.True(t, models.IsType(err, models.ErrorTypeValidation))

	_, err = orch.Submit(ctx, testSession("user-1"), models.GenerationRequest{
		Theme:    "ok",
		Strategy: "NOT_A_STRATEGY",
	})
	assert.True(t, models.IsType(err, models.ErrorTypeValidation))

	assert.Zero(t, env.client.calls.Load())
}

func TestSubmitExhaustedBalanceBlocksGeneration(t *testing.T) {
	orch, env := newTestEnv(t, false)
	ctx := context.Background()
	session := testSession("user-1")

	// Burn the initial grant.
	for i := 0; i < 3; i++ {
		_, err := orch.Submit(ctx, session, models.GenerationRequest{Theme: "t", Strategy: models.StrategyMixedBag})
		require.NoError(t, err)
	}

	_, err := orch.Submit(ctx, session, models.GenerationRequest{Theme: "t", Strategy: models.StrategyMixedBag})
	assert.True(t, models.IsType(err, models.ErrorTypeInsufficientCredits))

	// The refused attempt never reached the provider and never went negative.
	assert.Equal(t, int64(3), env.client.calls.Load())
	assert.Equal(t, int64(0), creditsOf(t, env.db, "user-1"))
}

func TestSubmitFailedGenerationKeepsCreditSpent(t *testing.T) {
	orch, env := newTestEnv(t, false)
	env.client.err = errors.New("upstream exploded")

	_, err := orch.Submit(context.Background(), testSession("user-1"), models.GenerationRequest{
		Theme:    "t",
		Strategy: models.StrategyPillar,
	})
	require.Error(t, err)

	// Default policy: the credit paid for the attempt.
	assert.Equal(t, int64(2), creditsOf(t, env.db, "user-1"))
}

func TestSubmitFailedGenerationRefundsWhenEnabled(t *testing.T) {
	orch, env := newTestEnv(t, true)
	env.client.err = errors.New("upstream exploded")

	_, err := orch.Submit(context.Background(), testSession("user-1"), models.GenerationRequest{
		Theme:    "t",
		Strategy: models.StrategyPillar,
	})
	require.Error(t, err)

	assert.Equal(t, int64(3), creditsOf(t, env.db, "user-1"))

	var refund models.CreditTransaction
	require.NoError(t, env.db.First(&refund, "cause = ?", models.TransactionCauseCorrection).Error)
	assert.Equal(t, int64(1), refund.Amount)
}

func TestSubmitRejectsConcurrentCycleForSameIdentity(t *testing.T) {
	orch, env := newTestEnv(t, false)
	env.client.blockTheme = "slow theme"
	env.client.entered = make(chan struct{}, 1)
	env.client.release = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := orch.Submit(context.Background(), testSession("user-1"), models.GenerationRequest{
			Theme:    "slow theme",
			Strategy: models.StrategyPillar,
		})
		done <- err
	}()

	select {
	case <-env.client.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first cycle never reached the provider")
	}
	assert.Equal(t, StateGenerating, orch.StateFor("user-1"))

	// A second submit for the busy identity is refused without spending a
	// credit or reaching the provider.
	_, err := orch.Submit(context.Background(), testSession("user-1"), models.GenerationRequest{
		Theme:    "another theme",
		Strategy: models.StrategyPillar,
	})
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "GENERATION_IN_FLIGHT", appErr.Code)
	assert.Equal(t, http.StatusConflict, appErr.StatusCode)
	assert.True(t, appErr.Retryable)

	// A different identity is not held up by user-1's cycle.
	_, err = orch.Submit(context.Background(), testSession("user-2"), models.GenerationRequest{
		Theme:    "fast theme",
		Strategy: models.StrategyPillar,
	})
	require.NoError(t, err)

	close(env.client.release)
	require.NoError(t, <-done)
	assert.Equal(t, StateIdle, orch.StateFor("user-1"))

	// Only the two completed cycles reached the provider and spent credits.
	assert.Equal(t, int64(2), env.client.calls.Load())
	assert.Equal(t, int64(2), creditsOf(t, env.db, "user-1"))
	assert.Equal(t, int64(2), creditsOf(t, env.db, "user-2"))
}

func TestStateForIdleByDefault(t *testing.T) {
	orch, _ := newTestEnv(t, false)

	assert.Equal(t, StateIdle, orch.StateFor("nobody"))
	assert.Equal(t, "Idle", StateIdle.String())
	assert.Equal(t, "Generating", StateGenerating.String())
}
