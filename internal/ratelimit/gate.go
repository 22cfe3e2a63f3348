// Package ratelimit decides whether a new website request may be submitted.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"

	"dev365-portal/internal/clock"
	"dev365-portal/internal/models"
)

// Checker asks the backend for the current limit and can drop a cached answer
type Checker interface {
	CheckLimit(ctx context.Context) (*models.CheckLimitResponse, error)
	InvalidateLimit(ctx context.Context) error
}

// Decision is the outcome of one submission attempt
type Decision struct {
	Allowed         bool
	NextAllowedTime *time.Time
	// Wait is zero when the attempt is allowed or the backend's time has passed
	Wait      time.Duration
	HoursLeft int
	Message   string
	// Recheck is set when the answer was blocked but could not say until when.
	// The cached answer has been dropped and the caller should ask again.
	Recheck bool
}

// Gate evaluates the limit at the moment of each attempt
type Gate struct {
	checker Checker
	clock   clock.Clock
}

// NewGate creates a gate
func NewGate(checker Checker, clk clock.Clock) *Gate {
	if clk == nil {
		clk = clock.System
	}
	return &Gate{checker: checker, clock: clk}
}

// Attempt checks the limit now. canSubmit from the backend is the only
// authority: a past nextAllowedTime never unblocks.
func (g *Gate) Attempt(ctx context.Context) (Decision, error) {
	resp, err := g.checker.CheckLimit(ctx)
	if err != nil {
		return Decision{}, err
	}
	if resp.CanSubmit {
		return Decision{Allowed: true, Message: resp.Message}, nil
	}

	now := g.clock.Now()
	d := Decision{NextAllowedTime: resp.NextAllowedTime}
	if resp.NextAllowedTime == nil || !resp.NextAllowedTime.After(now) {
		if err := g.checker.InvalidateLimit(ctx); err != nil {
			return Decision{}, err
		}
		d.Recheck = true
		d.Message = resp.Message
		if d.Message == "" {
			d.Message = "You cannot submit another request yet. Please try again shortly."
		}
		return d, nil
	}

	d.Wait = resp.NextAllowedTime.Sub(now)
	d.HoursLeft = HoursLeft(d.Wait)
	d.Message = WaitMessage(d.HoursLeft)
	return d, nil
}

// HoursLeft rounds a positive wait up to whole hours, so any wait is at least 1
func HoursLeft(wait time.Duration) int {
	if wait <= 0 {
		return 0
	}
	return int(math.Ceil(wait.Hours()))
}

// WaitMessage is shown when a submission is blocked
func WaitMessage(hours int) string {
	return fmt.Sprintf("You can submit another request in %d hours. Please try again later.", hours)
}
