// Package quota decides whether an organization may start a new recording
// session and records usage minutes once a session finalizes.
package quota

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	apperrors "github.com/kbukum/sttrelay/internal/errors"
	"github.com/kbukum/sttrelay/internal/logger"
	"github.com/kbukum/sttrelay/internal/provider"
	"github.com/kbukum/sttrelay/internal/resilience"
	"github.com/kbukum/sttrelay/internal/store"
)

// Availability is the result of a quota check, mirroring the wire shape the
// gateway attaches to a quota:exceeded event.
type Availability struct {
	Allowed          bool
	RemainingMinutes float64
	UsedMinutes      float64
	QuotaMinutes     float64
	PlanName         string
}

// Service evaluates and records quota usage for organizations.
type Service struct {
	store  *store.QuotaStore
	lookup provider.RequestResponse[string, *store.SubscriptionWithPlan]
	log    *logger.Logger
	now    func() time.Time
}

// New constructs a quota Service over db. Subscription lookups are routed
// through provider.WithResilience so a flaky connection retries with
// backoff instead of failing the admission check outright.
func New(db *gorm.DB, log *logger.Logger) *Service {
	qs := store.NewQuotaStore(db)
	lookup := provider.WithResilience[string, *store.SubscriptionWithPlan](qs, provider.ResilienceConfig{
		Retry: &resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: 50 * time.Millisecond,
			BackoffFactor:  2.0,
			MaxBackoff:     1 * time.Second,
			RetryIf:        isTransientDBError,
		},
	})
	return &Service{
		store:  qs,
		lookup: lookup,
		log:    log.WithComponent("quota"),
		now:    time.Now,
	}
}

// transientDBSubstrings mirrors the writequeue package's substring-based
// classification of retryable infrastructure failures.
var transientDBSubstrings = []string{
	"connection refused",
	"no such host",
	"i/o timeout",
	"deadlock",
	"context deadline exceeded",
	"broken pipe",
	"connection reset",
}

// isTransientDBError reports whether err looks like a retryable
// infrastructure failure rather than a missing-subscription result.
func isTransientDBError(err error) bool {
	if err == nil || errors.Is(err, store.ErrNoSubscription) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range transientDBSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// CheckQuotaAvailability loads the organization's subscription and plan and
// decides whether a new session may be admitted.
func (s *Service) CheckQuotaAvailability(ctx context.Context, orgID string) (Availability, error) {
	sub, err := s.lookup.Execute(ctx, orgID)
	if errors.Is(err, store.ErrNoSubscription) {
		return Availability{}, apperrors.NoSubscription(orgID)
	}
	if err != nil {
		return Availability{}, apperrors.DatabaseError(err)
	}

	if !sub.Subscription.IsActive() {
		return Availability{}, apperrors.QuotaExceeded(sub.Plan.Name, sub.Plan.QuotaMinutes, 0)
	}

	used, err := s.usedMinutes(ctx, sub)
	if err != nil {
		return Availability{}, apperrors.DatabaseError(err)
	}

	remaining := sub.Plan.QuotaMinutes - used
	avail := Availability{
		Allowed:          remaining > 0,
		RemainingMinutes: remaining,
		UsedMinutes:      used,
		QuotaMinutes:     sub.Plan.QuotaMinutes,
		PlanName:         sub.Plan.Name,
	}
	if !avail.Allowed {
		return avail, apperrors.QuotaExceeded(sub.Plan.Name, sub.Plan.QuotaMinutes, used)
	}
	return avail, nil
}

// usedMinutes reads the current usage figure without mutating any row,
// except when the monthly period has expired and must be rolled forward.
func (s *Service) usedMinutes(ctx context.Context, sub *store.SubscriptionWithPlan) (float64, error) {
	if !sub.Plan.QuotaResetsMonthly {
		return sub.Subscription.LifetimeUsageMinutes, nil
	}

	var used float64
	err := s.store.WithTransaction(ctx, func(tx *gorm.DB) error {
		period, err := s.store.CurrentUsagePeriod(ctx, tx, &sub.Subscription, s.now())
		if err != nil {
			return err
		}
		used = period.UsageMinutes
		return nil
	})
	return used, err
}

// RecordUsage converts durationMs into minutes and atomically increments
// the organization's lifetime or current-period counter, whichever the
// plan uses.
func (s *Service) RecordUsage(ctx context.Context, orgID string, durationMs int64) error {
	sub, err := s.lookup.Execute(ctx, orgID)
	if errors.Is(err, store.ErrNoSubscription) {
		s.log.Warn("recordUsage: no subscription", map[string]interface{}{"organization_id": orgID})
		return nil
	}
	if err != nil {
		return apperrors.DatabaseError(err)
	}

	minutes := float64(durationMs) / 60000.0

	if !sub.Plan.QuotaResetsMonthly {
		return s.store.IncrementLifetimeUsage(ctx, sub.Subscription.ID, minutes)
	}

	return s.store.WithTransaction(ctx, func(tx *gorm.DB) error {
		period, err := s.store.CurrentUsagePeriod(ctx, tx, &sub.Subscription, s.now())
		if err != nil {
			return err
		}
		return s.store.IncrementPeriodUsage(ctx, tx, period.ID, minutes)
	})
}
