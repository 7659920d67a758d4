package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/tagmaster/tagmaster-api/internal/models"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(t.TempDir()+"/ledger.db"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// SQLite serializes writers anyway; a single connection avoids
	// table-lock errors under concurrent test load.
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.UserProfile{}, &models.CreditTransaction{}))
	return db
}

func seedProfile(t *testing.T, db *gorm.DB, id string, credits int64) {
	t.Helper()
	require.NoError(t, db.Create(&models.UserProfile{ID: id, Credits: credits}).Error)
}

func balanceOf(t *testing.T, db *gorm.DB, id string) int64 {
	t.Helper()
	var profile models.UserProfile
	require.NoError(t, db.First(&profile, "id = ?", id).Error)
	return profile.Credits
}

func TestTryDebitSucceedsAndRecordsTransaction(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	seedProfile(t, db, "user-1", 3)

	result, err := svc.TryDebit(context.Background(), "user-1", 1)
	require.NoError(t, err)

	assert.True(t, result.OK)
	assert.Equal(t, int64(2), result.NewBalance)
	assert.NotEmpty(t, result.TransactionID)
	assert.Equal(t, int64(2), balanceOf(t, db, "user-1"))

	var tx models.CreditTransaction
	require.NoError(t, db.First(&tx, "id = ?", result.TransactionID).Error)
	assert.Equal(t, models.TransactionCauseGeneration, tx.Cause)
	assert.Equal(t, int64(-1), tx.Amount)
	assert.Equal(t, int64(2), tx.BalanceAfter)
}

func TestTryDebitInsufficientLeavesBalanceUntouched(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	seedProfile(t, db, "user-1", 0)

	result, err := svc.TryDebit(context.Background(), "user-1", 1)
	require.NoError(t, err)

	assert.False(t, result.OK)
	assert.Equal(t, int64(0), result.NewBalance)
	assert.Equal(t, int64(0), balanceOf(t, db, "user-1"))

	var count int64
	require.NoError(t, db.Model(&models.CreditTransaction{}).Count(&count).Error)
	assert.Zero(t, count, "a refused debit must not write a transaction")
}

func TestTryDebitMissingProfile(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)

	_, err := svc.TryDebit(context.Background(), "ghost", 1)
	assert.True(t, models.IsType(err, models.ErrorTypeProfileUnavailable))
}

func TestTryDebitRejectsNonPositiveAmount(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	seedProfile(t, db, "user-1", 5)

	_, err := svc.TryDebit(context.Background(), "user-1", 0)
	assert.True(t, models.IsType(err, models.ErrorTypeInvalidAmount))

	_, err = svc.TryDebit(context.Background(), "user-1", -2)
	assert.True(t, models.IsType(err, models.ErrorTypeInvalidAmount))
}

func TestTryDebitNeverOverdraftsUnderConcurrency(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	seedProfile(t, db, "user-1", 5)

	const attempts = 20
	var wg sync.WaitGroup
	successes := make(chan models.DebitResult, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := svc.TryDebit(context.Background(), "user-1", 1)
			if err == nil && result.OK {
				successes <- result
			}
		}()
	}
	wg.Wait()
	close(successes)

	granted := 0
	for range successes {
		granted++
	}

	assert.Equal(t, 5, granted, "exactly the funded attempts may succeed")
	assert.Equal(t, int64(0), balanceOf(t, db, "user-1"))
}

func TestCreditIncreasesBalance(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	seedProfile(t, db, "user-1", 2)

	tx, err := svc.Credit(context.Background(), models.CreditParams{
		ProfileID:       "user-1",
		Amount:          50,
		Cause:           models.TransactionCausePurchase,
		Description:     "Credit purchase via Stripe (50 credits)",
		StripeSessionID: "cs_test_1",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(52), tx.BalanceAfter)
	assert.Equal(t, int64(52), balanceOf(t, db, "user-1"))
	assert.Equal(t, "cs_test_1", tx.StripeSessionID)
}

func TestCreditSelfHealsMissingProfile(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)

	tx, err := svc.Credit(context.Background(), models.CreditParams{
		ProfileID: "brand-new",
		Amount:    10,
		Cause:     models.TransactionCausePurchase,
	})
	require.NoError(t, err)

	// The healed profile starts at zero, not at the signup grant; the
	// purchase is the only balance it has.
	assert.Equal(t, int64(10), tx.BalanceAfter)
	assert.Equal(t, int64(10), balanceOf(t, db, "brand-new"))
}

func TestCreditRejectsNonPositiveAmount(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)

	_, err := svc.Credit(context.Background(), models.CreditParams{ProfileID: "user-1", Amount: 0})
	assert.True(t, models.IsType(err, models.ErrorTypeInvalidAmount))
}

func TestFinalizeDebitStampsTransaction(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	seedProfile(t, db, "user-1", 1)

	result, err := svc.TryDebit(context.Background(), "user-1", 1)
	require.NoError(t, err)
	require.True(t, result.OK)

	require.NoError(t, svc.FinalizeDebit(context.Background(), result.TransactionID, `{"theme":"sunset"}`))

	var tx models.CreditTransaction
	require.NoError(t, db.First(&tx, "id = ?", result.TransactionID).Error)
	assert.Equal(t, "Generation completed", tx.Description)
	assert.Equal(t, `{"theme":"sunset"}`, tx.Metadata)
}

func TestFinalizeDebitUnknownTransaction(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)

	err := svc.FinalizeDebit(context.Background(), "missing", "{}")
	assert.True(t, models.IsType(err, models.ErrorTypeCommit))
}

func TestTransactionAmountsSumToBalanceDelta(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	seedProfile(t, db, "user-1", 3)
	ctx := context.Background()

	_, err := svc.TryDebit(ctx, "user-1", 1)
	require.NoError(t, err)
	_, err = svc.Credit(ctx, models.CreditParams{ProfileID: "user-1", Amount: 10, Cause: models.TransactionCausePurchase})
	require.NoError(t, err)
	_, err = svc.TryDebit(ctx, "user-1", 1)
	require.NoError(t, err)

	var sum int64
	require.NoError(t, db.Model(&models.CreditTransaction{}).
		Where("profile_id = ?", "user-1").
		Select("COALESCE(SUM(amount), 0)").
		Scan(&sum).Error)

	assert.Equal(t, balanceOf(t, db, "user-1")-3, sum)
}

func TestGetTransactionHistoryPagination(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	seedProfile(t, db, "user-1", 100)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := svc.TryDebit(ctx, "user-1", 1)
		require.NoError(t, err)
	}

	page, err := svc.GetTransactionHistory(ctx, "user-1", 2, 0)
	require.NoError(t, err)
	assert.Len(t, page, 2)

	rest, err := svc.GetTransactionHistory(ctx, "user-1", 10, 2)
	require.NoError(t, err)
	assert.Len(t, rest, 3)
}
