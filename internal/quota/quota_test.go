package quota

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	apperrors "github.com/kbukum/sttrelay/internal/errors"
	"github.com/kbukum/sttrelay/internal/logger"
	"github.com/kbukum/sttrelay/internal/store"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(store.Models()...); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func seedPlanAndSubscription(t *testing.T, db *gorm.DB, quotaMinutes float64, resetsMonthly bool, status string) {
	t.Helper()
	plan := store.SubscriptionPlan{ID: "plan-1", Slug: "pro", Name: "Pro", NormalPrice: 1999, QuotaMinutes: quotaMinutes, QuotaResetsMonthly: resetsMonthly, IsActive: true}
	if err := db.Create(&plan).Error; err != nil {
		t.Fatalf("seed plan: %v", err)
	}
	sub := store.OrganizationSubscription{ID: "sub-1", OrganizationID: "org-1", PlanID: plan.ID, Status: status, CurrentPeriodStart: time.Now().Add(-time.Hour)}
	if err := db.Create(&sub).Error; err != nil {
		t.Fatalf("seed subscription: %v", err)
	}
}

func TestService_CheckQuotaAvailability_NoSubscription(t *testing.T) {
	db := newTestDB(t)
	svc := New(db, logger.NewDefault("test"))

	_, err := svc.CheckQuotaAvailability(context.Background(), "no-such-org")
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		t.Fatalf("expected an AppError, got %v", err)
	}
	if appErr.Code != apperrors.ErrCodeNoSubscription {
		t.Errorf("expected ErrCodeNoSubscription, got %s", appErr.Code)
	}
}

func TestService_CheckQuotaAvailability_InactiveSubscriptionExceedsQuota(t *testing.T) {
	db := newTestDB(t)
	seedPlanAndSubscription(t, db, 100, false, "canceled")
	svc := New(db, logger.NewDefault("test"))

	_, err := svc.CheckQuotaAvailability(context.Background(), "org-1")
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		t.Fatalf("expected an AppError, got %v", err)
	}
	if appErr.Code != apperrors.ErrCodeQuotaExceeded {
		t.Errorf("expected ErrCodeQuotaExceeded for inactive subscription, got %s", appErr.Code)
	}
}

func TestService_CheckQuotaAvailability_WithinQuota(t *testing.T) {
	db := newTestDB(t)
	seedPlanAndSubscription(t, db, 100, false, "active")
	svc := New(db, logger.NewDefault("test"))

	avail, err := svc.CheckQuotaAvailability(context.Background(), "org-1")
	if err != nil {
		t.Fatalf("CheckQuotaAvailability: %v", err)
	}
	if !avail.Allowed {
		t.Error("expected quota to be allowed with no usage yet")
	}
	if avail.RemainingMinutes != 100 {
		t.Errorf("expected 100 remaining minutes, got %f", avail.RemainingMinutes)
	}
}

func TestService_CheckQuotaAvailability_ExceededAfterUsage(t *testing.T) {
	db := newTestDB(t)
	seedPlanAndSubscription(t, db, 10, false, "active")
	svc := New(db, logger.NewDefault("test"))

	// Burn the entire lifetime quota with one recorded session.
	if err := svc.RecordUsage(context.Background(), "org-1", 10*60*1000); err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}

	_, err := svc.CheckQuotaAvailability(context.Background(), "org-1")
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		t.Fatalf("expected an AppError, got %v", err)
	}
	if appErr.Code != apperrors.ErrCodeQuotaExceeded {
		t.Errorf("expected ErrCodeQuotaExceeded, got %s", appErr.Code)
	}
}

func TestService_RecordUsage_LifetimePlanIncrementsLifetimeCounter(t *testing.T) {
	db := newTestDB(t)
	seedPlanAndSubscription(t, db, 100, false, "active")
	svc := New(db, logger.NewDefault("test"))

	if err := svc.RecordUsage(context.Background(), "org-1", 90_000); err != nil { // 1.5 minutes
		t.Fatalf("RecordUsage: %v", err)
	}

	avail, err := svc.CheckQuotaAvailability(context.Background(), "org-1")
	if err != nil {
		t.Fatalf("CheckQuotaAvailability: %v", err)
	}
	if avail.UsedMinutes != 1.5 {
		t.Errorf("expected 1.5 used minutes, got %f", avail.UsedMinutes)
	}
}

func TestService_RecordUsage_MonthlyPlanIncrementsCurrentPeriod(t *testing.T) {
	db := newTestDB(t)
	seedPlanAndSubscription(t, db, 100, true, "active")
	svc := New(db, logger.NewDefault("test"))

	if err := svc.RecordUsage(context.Background(), "org-1", 120_000); err != nil { // 2 minutes
		t.Fatalf("RecordUsage: %v", err)
	}

	avail, err := svc.CheckQuotaAvailability(context.Background(), "org-1")
	if err != nil {
		t.Fatalf("CheckQuotaAvailability: %v", err)
	}
	if avail.UsedMinutes != 2 {
		t.Errorf("expected 2 used minutes in current period, got %f", avail.UsedMinutes)
	}
}

func TestService_RecordUsage_NoSubscriptionIsNonFatal(t *testing.T) {
	db := newTestDB(t)
	svc := New(db, logger.NewDefault("test"))

	if err := svc.RecordUsage(context.Background(), "ghost-org", 1000); err != nil {
		t.Errorf("expected RecordUsage to swallow missing-subscription errors, got %v", err)
	}
}
