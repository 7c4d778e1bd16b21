package service

import (
	"context"
	"log"
	"sync"
	"time"
)

// Sweeper periodically finds subscriptions whose next charge time has
// elapsed and hands each to the billing engine. Its period is fixed and
// independent of any plan's interval.
type Sweeper struct {
	billing *BillingService
	subs    SubscriptionStore

	interval      time.Duration
	maxConcurrent int

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
	now      func() time.Time
}

// NewSweeper creates a sweeper. interval <= 0 defaults to 30s,
// maxConcurrent <= 0 to 4.
func NewSweeper(billing *BillingService, subs SubscriptionStore, interval time.Duration, maxConcurrent int) *Sweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &Sweeper{
		billing:       billing,
		subs:          subs,
		interval:      interval,
		maxConcurrent: maxConcurrent,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
		now:           time.Now,
	}
}

// Start begins the sweep loop in a background goroutine.
func (s *Sweeper) Start(ctx context.Context) {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			case <-ticker.C:
				s.RunOnce(ctx)
			}
		}
	}()
}

// Stop halts the sweep loop and waits for it to exit. In-flight charges
// from the current pass still run to completion through their own
// contexts.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}

// RunOnce performs a single sweep pass. Charges run with bounded
// concurrency so one slow chain call cannot stall discovery of other
// due subscriptions, and each subscription's outcome is independent: a
// failure never aborts the pass.
func (s *Sweeper) RunOnce(ctx context.Context) {
	due, err := s.subs.FindDue(ctx, s.now())
	if err != nil {
		log.Printf("[Sweep] Failed to query due subscriptions: %v", err)
		return
	}
	if len(due) == 0 {
		return
	}
	log.Printf("[Sweep] Found %d due subscription(s)", len(due))

	sem := make(chan struct{}, s.maxConcurrent)
	var wg sync.WaitGroup
	for _, sub := range due {
		wg.Add(1)
		sem <- struct{}{}
		go func(id string) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := s.billing.ChargeDue(ctx, id); err != nil {
				log.Printf("[Sweep] Charge bookkeeping failed for %s: %v", id, err)
			}
		}(sub.ID)
	}
	wg.Wait()
}
