// Package ledger owns every mutation of a profile's credit balance. Debits are
// conditional on sufficiency and credits are always additive; both run inside a
// row-locking transaction so two requests racing from different instances can
// never both observe the same stale balance.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/tagmaster/tagmaster-api/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// AutoMigrate runs database migrations for ledger tables
func (s *Service) AutoMigrate() error {
	return s.db.AutoMigrate(&models.CreditTransaction{})
}

// TryDebit decrements the profile's balance only if it covers amount. It is
// the fail-closed gate for metered generations: callers learn the outcome from
// DebitResult.OK and the balance is untouched on failure.
func (s *Service) TryDebit(ctx context.Context, profileID string, amount int64) (models.DebitResult, error) {
	if amount <= 0 {
		return models.DebitResult{}, models.NewInvalidAmountError(amount)
	}

	var result models.DebitResult

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var profile models.UserProfile
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", profileID).
			First(&profile).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.NewProfileUnavailableError(err)
			}
			return fmt.Errorf("failed to lock profile: %w", err)
		}

		if profile.Credits < amount {
			result = models.DebitResult{OK: false, NewBalance: profile.Credits}
			return nil
		}

		newBalance := profile.Credits - amount
		if err := tx.Model(&profile).Update("credits", newBalance).Error; err != nil {
			return fmt.Errorf("failed to update credit balance: %w", err)
		}

		transaction := models.CreditTransaction{
			ID:           uuid.New().String(),
			ProfileID:    profileID,
			Cause:        models.TransactionCauseGeneration,
			Amount:       -amount,
			BalanceAfter: newBalance,
			Description:  "Credit reserved for generation",
		}
		if err := tx.Create(&transaction).Error; err != nil {
			return fmt.Errorf("failed to create credit transaction: %w", err)
		}

		result = models.DebitResult{OK: true, NewBalance: newBalance, TransactionID: transaction.ID}
		return nil
	})
	if err != nil {
		return models.DebitResult{}, err
	}

	return result, nil
}

// Credit unconditionally increments the profile's balance. Grants are
// provider-verified before they reach the ledger, so there is no guard beyond
// rejecting non-positive amounts. A missing profile row is created on the
// spot, mirroring the store's self-heal behavior.
func (s *Service) Credit(ctx context.Context, params models.CreditParams) (*models.CreditTransaction, error) {
	var transaction *models.CreditTransaction

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		transaction, err = s.CreditInTx(tx, params)
		return err
	})
	if err != nil {
		return nil, err
	}

	return transaction, nil
}

// CreditInTx applies a credit inside a caller-owned transaction, so the grant
// commits or rolls back together with the caller's own bookkeeping (the
// payment broker pairs it with its idempotency claim).
func (s *Service) CreditInTx(tx *gorm.DB, params models.CreditParams) (*models.CreditTransaction, error) {
	if params.Amount <= 0 {
		return nil, models.NewInvalidAmountError(params.Amount)
	}

	var profile models.UserProfile
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", params.ProfileID).
		First(&profile).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to lock profile: %w", err)
		}
		profile = models.UserProfile{ID: params.ProfileID, Credits: 0}
		if err := tx.Create(&profile).Error; err != nil {
			return nil, fmt.Errorf("failed to create profile: %w", err)
		}
	}

	newBalance := profile.Credits + params.Amount
	if err := tx.Model(&profile).Update("credits", newBalance).Error; err != nil {
		return nil, fmt.Errorf("failed to update credit balance: %w", err)
	}

	transaction := models.CreditTransaction{
		ID:              uuid.New().String(),
		ProfileID:       params.ProfileID,
		Cause:           params.Cause,
		Amount:          params.Amount,
		BalanceAfter:    newBalance,
		Description:     params.Description,
		Metadata:        params.Metadata,
		StripeSessionID: params.StripeSessionID,
	}
	if err := tx.Create(&transaction).Error; err != nil {
		return nil, fmt.Errorf("failed to create credit transaction: %w", err)
	}

	return &transaction, nil
}

// FinalizeDebit stamps a reserve transaction with the generation outcome once
// the external call succeeded. The debit itself is already durable; this only
// records what the credit bought.
func (s *Service) FinalizeDebit(ctx context.Context, transactionID, metadata string) error {
	res := s.db.WithContext(ctx).
		Model(&models.CreditTransaction{}).
		Where("id = ?", transactionID).
		Updates(map[string]any{
			"description": "Generation completed",
			"metadata":    metadata,
		})
	if res.Error != nil {
		return models.NewCommitError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewCommitError(fmt.Errorf("transaction %s not found", transactionID))
	}
	return nil
}

// GetTransactionHistory retrieves transaction history for a profile
func (s *Service) GetTransactionHistory(ctx context.Context, profileID string, limit, offset int) ([]models.CreditTransaction, error) {
	var transactions []models.CreditTransaction

	query := s.db.WithContext(ctx).
		Where("profile_id = ?", profileID).
		Order("created_at DESC")

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	if err := query.Find(&transactions).Error; err != nil {
		return nil, fmt.Errorf("failed to get transaction history: %w", err)
	}

	return transactions, nil
}
