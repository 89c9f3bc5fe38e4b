package alerting

import (
	"context"
	"fmt"
	"time"
)

// Rate limit rules, both evaluated as sliding windows over the alert log.
const (
	// ServiceCooldown is the minimum gap between sends for the same
	// (user, service) pair. Stops a single flapping service from spamming.
	ServiceCooldown = 30 * time.Minute

	// UserWindow and MaxSendsPerUserWindow cap the aggregate blast radius
	// per user regardless of how many services are in their stack.
	UserWindow            = time.Hour
	MaxSendsPerUserWindow = 10
)

// RateLimiter decides whether a send is currently allowed for a
// (user, service) pair. Counters come from timestamped alert log rows, so
// bursts are smoothed continuously instead of resetting on a clock boundary.
type RateLimiter struct {
	repo Repository
	now  func() time.Time
}

// NewRateLimiter creates a rate limiter backed by the alert log.
func NewRateLimiter(repo Repository) *RateLimiter {
	return &RateLimiter{repo: repo, now: time.Now}
}

// CanSend reports whether both rules pass for the pair right now.
func (l *RateLimiter) CanSend(ctx context.Context, userID, serviceSlug string) (bool, error) {
	now := l.now()

	pairSends, err := l.repo.CountUserServiceSendsSince(ctx, userID, serviceSlug, now.Add(-ServiceCooldown))
	if err != nil {
		return false, fmt.Errorf("count service sends: %w", err)
	}
	if pairSends > 0 {
		return false, nil
	}

	userSends, err := l.repo.CountUserSendsSince(ctx, userID, now.Add(-UserWindow))
	if err != nil {
		return false, fmt.Errorf("count user sends: %w", err)
	}
	if userSends >= MaxSendsPerUserWindow {
		return false, nil
	}

	return true, nil
}
