package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kbukum/sttrelay/internal/provider"
)

// ErrNoSubscription is returned when an organization has no subscription row.
var ErrNoSubscription = errors.New("store: no subscription for organization")

// SubscriptionWithPlan is a subscription joined with its plan, the shape the
// quota service needs for every decision.
type SubscriptionWithPlan struct {
	Subscription OrganizationSubscription
	Plan         SubscriptionPlan
}

// QuotaStore loads subscriptions/plans and maintains usage periods and
// counters under row-level transactions so concurrent sessions for the same
// organization never race on the same increment.
type QuotaStore struct {
	db *gorm.DB
}

// NewQuotaStore constructs a QuotaStore over the given GORM handle.
func NewQuotaStore(db *gorm.DB) *QuotaStore {
	return &QuotaStore{db: db}
}

// LoadSubscription returns the organization's subscription and plan, or
// ErrNoSubscription if none exists.
func (s *QuotaStore) LoadSubscription(ctx context.Context, orgID string) (*SubscriptionWithPlan, error) {
	var sub OrganizationSubscription
	err := s.db.WithContext(ctx).Where("organization_id = ?", orgID).Take(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoSubscription
	}
	if err != nil {
		return nil, err
	}

	var plan SubscriptionPlan
	if err := s.db.WithContext(ctx).Where("id = ?", sub.PlanID).Take(&plan).Error; err != nil {
		return nil, err
	}

	return &SubscriptionWithPlan{Subscription: sub, Plan: plan}, nil
}

// Name and IsAvailable, together with Execute below, satisfy
// provider.RequestResponse so subscription lookups can be wrapped with the
// same retry/circuit-breaker chain as any other provider.
func (s *QuotaStore) Name() string { return "quota-store" }

func (s *QuotaStore) IsAvailable(ctx context.Context) bool {
	sqlDB, err := s.db.DB()
	if err != nil {
		return false
	}
	return sqlDB.PingContext(ctx) == nil
}

// Execute implements provider.RequestResponse[string, *SubscriptionWithPlan]
// over LoadSubscription.
func (s *QuotaStore) Execute(ctx context.Context, orgID string) (*SubscriptionWithPlan, error) {
	return s.LoadSubscription(ctx, orgID)
}

var _ provider.RequestResponse[string, *SubscriptionWithPlan] = (*QuotaStore)(nil)

// CurrentUsagePeriod returns the usage period covering now, rolling one
// forward (and persisting the subscription's advanced CurrentPeriodStart)
// if the existing period has expired or none exists yet. The previous
// period's length in days is carried forward; see DESIGN.md open question
// on calendar drift.
func (s *QuotaStore) CurrentUsagePeriod(ctx context.Context, tx *gorm.DB, sub *OrganizationSubscription, now time.Time) (*UsagePeriod, error) {
	var period UsagePeriod
	err := tx.Where("subscription_id = ? AND period_start <= ? AND period_end >= ?", sub.ID, now, now).
		Take(&period).Error
	if err == nil {
		return &period, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	return s.rollPeriodForward(ctx, tx, sub, now)
}

func (s *QuotaStore) rollPeriodForward(ctx context.Context, tx *gorm.DB, sub *OrganizationSubscription, now time.Time) (*UsagePeriod, error) {
	periodStart := sub.CurrentPeriodStart
	periodLength := 30 * 24 * time.Hour
	if sub.CurrentPeriodEnd != nil && sub.CurrentPeriodEnd.After(periodStart) {
		periodLength = sub.CurrentPeriodEnd.Sub(periodStart)
	}

	for !now.Before(periodStart.Add(periodLength)) {
		periodStart = periodStart.Add(periodLength)
	}
	periodEnd := periodStart.Add(periodLength)

	sub.CurrentPeriodStart = periodStart
	sub.CurrentPeriodEnd = &periodEnd
	if err := tx.Model(&OrganizationSubscription{}).Where("id = ?", sub.ID).
		Updates(map[string]interface{}{
			"current_period_start": periodStart,
			"current_period_end":   periodEnd,
		}).Error; err != nil {
		return nil, err
	}

	period := UsagePeriod{
		ID:             uuid.NewString(),
		SubscriptionID: sub.ID,
		PeriodStart:    periodStart,
		PeriodEnd:      periodEnd,
		UsageMinutes:   0,
	}
	if err := tx.Where("subscription_id = ? AND period_start = ?", sub.ID, periodStart).
		FirstOrCreate(&period).Error; err != nil {
		return nil, err
	}
	return &period, nil
}

// IncrementLifetimeUsage atomically adds minutes to the subscription's
// lifetime counter, expressed as a SQL-side increment so concurrent
// sessions for the same organization never lose an update.
func (s *QuotaStore) IncrementLifetimeUsage(ctx context.Context, subscriptionID string, minutes float64) error {
	return s.db.WithContext(ctx).Model(&OrganizationSubscription{}).
		Where("id = ?", subscriptionID).
		Update("lifetime_usage_minutes", gorm.Expr("lifetime_usage_minutes + ?", minutes)).Error
}

// IncrementPeriodUsage atomically adds minutes to a usage period's counter.
func (s *QuotaStore) IncrementPeriodUsage(ctx context.Context, tx *gorm.DB, periodID string, minutes float64) error {
	return tx.Model(&UsagePeriod{}).
		Where("id = ?", periodID).
		Update("usage_minutes", gorm.Expr("usage_minutes + ?", minutes)).Error
}

// WithTransaction runs fn inside a GORM transaction on the store's DB.
func (s *QuotaStore) WithTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return s.db.WithContext(ctx).Transaction(fn)
}
