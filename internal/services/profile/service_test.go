package profile

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

func newTestService(t *testing.T, initialGrant int64) (*Service, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(t.TempDir()+"/profiles.db"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	svc := NewService(db, nil, initialGrant)
	require.NoError(t, svc.AutoMigrate())
	return svc, db
}

func TestGetOrCreateGrantsInitialCredits(t *testing.T) {
	svc, _ := newTestService(t, 3)

	p, err := svc.GetOrCreate(context.Background(), "user-1", "u1@example.com")
	require.NoError(t, err)

	assert.Equal(t, "user-1", p.ID)
	assert.Equal(t, "u1@example.com", p.Email)
	assert.Equal(t, int64(3), p.Credits)
}

func TestGetOrCreateIsIdempotent(t *testing.T) {
	svc, db := newTestService(t, 3)
	ctx := context.Background()

	first, err := svc.GetOrCreate(ctx, "user-1", "u1@example.com")
	require.NoError(t, err)

	// Spending between calls must not reset the balance to the grant.
	require.NoError(t, db.Model(&models.UserProfile{}).Where("id = ?", "user-1").Update("credits", 1).Error)

	second, err := svc.GetOrCreate(ctx, "user-1", "u1@example.com")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(1), second.Credits)

	var count int64
	require.NoError(t, db.Model(&models.UserProfile{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestGetOrCreateConcurrentCallsCreateOneRow(t *testing.T) {
	svc, db := newTestService(t, 3)

	const callers = 10
	var wg sync.WaitGroup
	errs := make(chan error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.GetOrCreate(context.Background(), "race-user", "race@example.com")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	var count int64
	require.NoError(t, db.Model(&models.UserProfile{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
	var p models.UserProfile
	require.NoError(t, db.First(&p, "id = ?", "race-user").Error)
	assert.Equal(t, int64(3), p.Credits)
}

func TestRefreshUnknownProfile(t *testing.T) {
	svc, _ := newTestService(t, 3)

	_, err := svc.Refresh(context.Background(), "ghost")
	assert.True(t, models.IsType(err, models.ErrorTypeProfileUnavailable))
}

func TestSubscribeReceivesPublishedChanges(t *testing.T) {
	svc, _ := newTestService(t, 3)

	var mu sync.Mutex
	var got []int64
	unsubscribe := svc.Subscribe("user-1", func(p *models.UserProfile) {
		mu.Lock()
		got = append(got, p.Credits)
		mu.Unlock()
	})

	svc.Publish(context.Background(), &models.UserProfile{ID: "user-1", Credits: 2})
	svc.Publish(context.Background(), &models.UserProfile{ID: "other", Credits: 99})

	unsubscribe()
	svc.Publish(context.Background(), &models.UserProfile{ID: "user-1", Credits: 1})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int64{2}, got)
}

func TestUnsubscribeIsSafeToCallTwice(t *testing.T) {
	svc, _ := newTestService(t, 3)

	unsubscribe := svc.Subscribe("user-1", func(*models.UserProfile) {})
	unsubscribe()
	unsubscribe()
}

func TestRefreshAndPublishNotifiesSubscribers(t *testing.T) {
	svc, db := newTestService(t, 3)
	ctx := context.Background()

	_, err := svc.GetOrCreate(ctx, "user-1", "")
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.UserProfile{}).Where("id = ?", "user-1").Update("credits", 7).Error)

	var mu sync.Mutex
	var seen int64 = -1
	svc.Subscribe("user-1", func(p *models.UserProfile) {
		mu.Lock()
		seen = p.Credits
		mu.Unlock()
	})

	p, err := svc.RefreshAndPublish(ctx, "user-1")
	require.NoError(t, err)

	assert.Equal(t, int64(7), p.Credits)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, int64(7), seen)
}
