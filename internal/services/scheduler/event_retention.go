package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/tagmaster/tagmaster-api/internal/services/payment"
)

type EventRetentionScheduler struct {
	stripeService *payment.StripeService
	retention     time.Duration
	interval      time.Duration
	stopChan      chan struct{}
}

func NewEventRetentionScheduler(stripeService *payment.StripeService, retention, interval time.Duration) *EventRetentionScheduler {
	if interval == 0 {
		interval = 12 * time.Hour
	}
	return &EventRetentionScheduler{
		stripeService: stripeService,
		retention:     retention,
		interval:      interval,
		stopChan:      make(chan struct{}),
	}
}

func (s *EventRetentionScheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Printf("Payment event retention scheduler started, running every %s", s.interval)

	for {
		select {
		case <-ticker.C:
			deleted, err := s.stripeService.SweepProcessedEvents(ctx, s.retention)
			if err != nil {
				log.Printf("Error sweeping processed payment events: %v", err)
			} else if deleted > 0 {
				log.Printf("Swept %d processed payment events older than %s", deleted, s.retention)
			}
		case <-s.stopChan:
			log.Println("Payment event retention scheduler stopped")
			return
		case <-ctx.Done():
			log.Println("Payment event retention scheduler stopped due to context cancellation")
			return
		}
	}
}

func (s *EventRetentionScheduler) Stop() {
	close(s.stopChan)
}
