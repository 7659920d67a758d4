// Package profile provides the durable user profile store with lazy,
// race-tolerant creation and a change-notification channel layered on top.
// Notifications are a latency optimization for connected clients; correctness
// of the balance rests entirely on the ledger's conditional updates.
package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/tagmaster/tagmaster-api/internal/models"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// profileChangedChannel carries cross-instance change notifications when Redis
// is configured.
const profileChangedChannel = "tagmaster:profile.changed"

type Service struct {
	db           *gorm.DB
	redis        *redis.Client
	initialGrant int64

	sfGroup singleflight.Group

	mu          sync.Mutex
	subscribers map[string]map[uint64]func(*models.UserProfile)
	nextToken   uint64
}

// NewService creates a profile store. redisClient may be nil; the store then
// falls back to in-process notifications only.
func NewService(db *gorm.DB, redisClient *redis.Client, initialGrant int64) *Service {
	return &Service{
		db:           db,
		redis:        redisClient,
		initialGrant: initialGrant,
		subscribers:  make(map[string]map[uint64]func(*models.UserProfile)),
	}
}

// AutoMigrate runs database migrations for the profile table
func (s *Service) AutoMigrate() error {
	return s.db.AutoMigrate(&models.UserProfile{})
}

// GetOrCreate fetches the profile for identityID, creating it with the
// configured starting grant on first sight. Two near-simultaneous calls for a
// never-seen identity are collapsed by singleflight within one process; across
// processes the insert is conflict-tolerant and the loser re-reads.
func (s *Service) GetOrCreate(ctx context.Context, identityID, email string) (*models.UserProfile, error) {
	v, err, _ := s.sfGroup.Do("getorcreate:"+identityID, func() (any, error) {
		return s.getOrCreate(ctx, identityID, email)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.UserProfile), nil
}

func (s *Service) getOrCreate(ctx context.Context, identityID, email string) (*models.UserProfile, error) {
	var profile models.UserProfile

	err := s.db.WithContext(ctx).Where("id = ?", identityID).First(&profile).Error
	if err == nil {
		return &profile, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.NewProfileUnavailableError(err)
	}

	profile = models.UserProfile{
		ID:      identityID,
		Email:   email,
		Credits: s.initialGrant,
	}

	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&profile)
	if res.Error != nil {
		return nil, models.NewProfileUnavailableError(res.Error)
	}

	if res.RowsAffected == 0 {
		// Another writer won the creation race; theirs is authoritative.
		if err := s.db.WithContext(ctx).Where("id = ?", identityID).First(&profile).Error; err != nil {
			return nil, models.NewProfileUnavailableError(err)
		}
		return &profile, nil
	}

	fiberlog.Infof("Created profile %s with starting grant of %d credits", identityID, s.initialGrant)
	return &profile, nil
}

// Refresh forces a cache-bypassing read of the profile row.
func (s *Service) Refresh(ctx context.Context, identityID string) (*models.UserProfile, error) {
	var profile models.UserProfile
	if err := s.db.WithContext(ctx).Where("id = ?", identityID).First(&profile).Error; err != nil {
		return nil, models.NewProfileUnavailableError(err)
	}
	return &profile, nil
}

// Subscribe registers fn to be called whenever identityID's profile changes.
// The returned function unsubscribes and is safe to call more than once.
func (s *Service) Subscribe(identityID string, fn func(*models.UserProfile)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.subscribers[identityID] == nil {
		s.subscribers[identityID] = make(map[uint64]func(*models.UserProfile))
	}
	s.nextToken++
	token := s.nextToken
	s.subscribers[identityID][token] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subscribers[identityID], token)
			if len(s.subscribers[identityID]) == 0 {
				delete(s.subscribers, identityID)
			}
		})
	}
}

// Publish notifies subscribers that a profile row changed. When Redis is
// configured the change is also broadcast so subscribers on other instances
// hear about it.
func (s *Service) Publish(ctx context.Context, profile *models.UserProfile) {
	s.notifyLocal(profile)

	if s.redis == nil {
		return
	}
	payload, err := json.Marshal(profile)
	if err != nil {
		fiberlog.Errorf("Failed to marshal profile change for %s: %v", profile.ID, err)
		return
	}
	if err := s.redis.Publish(ctx, profileChangedChannel, payload).Err(); err != nil {
		fiberlog.Warnf("Failed to publish profile change for %s: %v", profile.ID, err)
	}
}

// ListenRemoteChanges consumes cross-instance change notifications until ctx
// is cancelled. No-op without Redis.
func (s *Service) ListenRemoteChanges(ctx context.Context) {
	if s.redis == nil {
		return
	}

	sub := s.redis.Subscribe(ctx, profileChangedChannel)
	go func() {
		defer func() {
			if err := sub.Close(); err != nil {
				fiberlog.Warnf("Failed to close profile change subscription: %v", err)
			}
		}()

		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var profile models.UserProfile
				if err := json.Unmarshal([]byte(msg.Payload), &profile); err != nil {
					fiberlog.Warnf("Dropping malformed profile change notification: %v", err)
					continue
				}
				s.notifyLocal(&profile)
			}
		}
	}()
}

func (s *Service) notifyLocal(profile *models.UserProfile) {
	s.mu.Lock()
	fns := make([]func(*models.UserProfile), 0, len(s.subscribers[profile.ID]))
	for _, fn := range s.subscribers[profile.ID] {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(profile)
	}
}

// RefreshAndPublish re-reads the profile and fans the fresh state out to
// subscribers. Used after any operation that could have changed the balance
// server-side.
func (s *Service) RefreshAndPublish(ctx context.Context, identityID string) (*models.UserProfile, error) {
	profile, err := s.Refresh(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("refresh after change: %w", err)
	}
	s.Publish(ctx, profile)
	return profile, nil
}
