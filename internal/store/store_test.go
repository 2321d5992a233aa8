package store

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(Models()...); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func strptr(s string) *string { return &s }

func TestOrganizationSubscription_IsActive(t *testing.T) {
	active := OrganizationSubscription{Status: "active"}
	if !active.IsActive() {
		t.Error("expected active status to report IsActive true")
	}
	canceled := OrganizationSubscription{Status: "canceled"}
	if canceled.IsActive() {
		t.Error("expected canceled status to report IsActive false")
	}
}

func TestTranscriptionStore_UpsertCreatesNewRow(t *testing.T) {
	db := newTestDB(t)
	ts := NewTranscriptionStore(db)

	err := ts.Upsert(context.Background(), TranscriptionWrite{
		ID:             "conv-1",
		OrganizationID: "org-1",
		ModelName:      "stt-rt-v3",
		DurationInMs:   1000,
		Status:         StatusInProgress,
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	row, err := ts.Get(context.Background(), "conv-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if row.Status != StatusInProgress || row.Version != 1 {
		t.Errorf("unexpected row: %+v", row)
	}
}

func TestTranscriptionStore_UpsertUpdatesInPlaceAndBumpsVersion(t *testing.T) {
	db := newTestDB(t)
	ts := NewTranscriptionStore(db)

	_ = ts.Upsert(context.Background(), TranscriptionWrite{ID: "conv-1", OrganizationID: "org-1", ModelName: "m", Status: StatusInProgress})
	err := ts.Upsert(context.Background(), TranscriptionWrite{
		ID: "conv-1", OrganizationID: "org-1", ModelName: "m",
		DurationInMs: 5000, Status: StatusInProgress,
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	row, _ := ts.Get(context.Background(), "conv-1")
	if row.Version != 2 {
		t.Errorf("expected version 2 after second write, got %d", row.Version)
	}
	if row.DurationInMs != 5000 {
		t.Errorf("expected duration updated to 5000, got %d", row.DurationInMs)
	}
}

func TestTranscriptionStore_UpsertNeverDowngradesCompletedStatus(t *testing.T) {
	db := newTestDB(t)
	ts := NewTranscriptionStore(db)

	_ = ts.Upsert(context.Background(), TranscriptionWrite{ID: "conv-1", OrganizationID: "org-1", ModelName: "m", Status: StatusCompleted, IsFinal: true})

	// A stale periodic write arrives after the final write landed.
	err := ts.Upsert(context.Background(), TranscriptionWrite{ID: "conv-1", OrganizationID: "org-1", ModelName: "m", Status: StatusInProgress})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	row, _ := ts.Get(context.Background(), "conv-1")
	if row.Status != StatusCompleted {
		t.Errorf("expected status to stay COMPLETED, got %s", row.Status)
	}
}

func TestTranscriptionStore_FinalWriteSetsLanguagesOnlyWhenFinal(t *testing.T) {
	db := newTestDB(t)
	ts := NewTranscriptionStore(db)

	_ = ts.Upsert(context.Background(), TranscriptionWrite{ID: "conv-1", OrganizationID: "org-1", ModelName: "m", Status: StatusInProgress, TargetLanguage: strptr("fr")})
	_ = ts.Upsert(context.Background(), TranscriptionWrite{ID: "conv-1", OrganizationID: "org-1", ModelName: "m", Status: StatusInProgress, TargetLanguage: strptr("de")})
	row, _ := ts.Get(context.Background(), "conv-1")
	if row.TargetLanguage == nil || *row.TargetLanguage != "fr" {
		t.Errorf("non-final write should not change target language of an existing row, got %v", row.TargetLanguage)
	}

	_ = ts.Upsert(context.Background(), TranscriptionWrite{ID: "conv-1", OrganizationID: "org-1", ModelName: "m", Status: StatusCompleted, TargetLanguage: strptr("de"), IsFinal: true})
	row, _ = ts.Get(context.Background(), "conv-1")
	if row.TargetLanguage == nil || *row.TargetLanguage != "de" {
		t.Errorf("final write should set target language, got %v", row.TargetLanguage)
	}
}

func TestQuotaStore_LoadSubscriptionReturnsErrNoSubscription(t *testing.T) {
	db := newTestDB(t)
	qs := NewQuotaStore(db)

	_, err := qs.LoadSubscription(context.Background(), "no-such-org")
	if err != ErrNoSubscription {
		t.Errorf("expected ErrNoSubscription, got %v", err)
	}
}

func seedSubscription(t *testing.T, db *gorm.DB, quotaMinutes float64, resetsMonthly bool) OrganizationSubscription {
	t.Helper()
	plan := SubscriptionPlan{ID: "plan-1", Slug: "pro", Name: "Pro", NormalPrice: 1999, QuotaMinutes: quotaMinutes, QuotaResetsMonthly: resetsMonthly, IsActive: true}
	if err := db.Create(&plan).Error; err != nil {
		t.Fatalf("seed plan: %v", err)
	}
	sub := OrganizationSubscription{ID: "sub-1", OrganizationID: "org-1", PlanID: plan.ID, Status: "active", CurrentPeriodStart: time.Now().Add(-time.Hour)}
	if err := db.Create(&sub).Error; err != nil {
		t.Fatalf("seed subscription: %v", err)
	}
	return sub
}

func TestQuotaStore_CurrentUsagePeriodCreatesFirstPeriod(t *testing.T) {
	db := newTestDB(t)
	qs := NewQuotaStore(db)
	sub := seedSubscription(t, db, 100, true)

	var period *UsagePeriod
	err := qs.WithTransaction(context.Background(), func(tx *gorm.DB) error {
		p, err := qs.CurrentUsagePeriod(context.Background(), tx, &sub, time.Now())
		period = p
		return err
	})
	if err != nil {
		t.Fatalf("CurrentUsagePeriod: %v", err)
	}
	if period.UsageMinutes != 0 {
		t.Errorf("expected new period to start at 0 usage, got %f", period.UsageMinutes)
	}
}

func TestQuotaStore_CurrentUsagePeriodRollsForwardPastPeriodEnd(t *testing.T) {
	db := newTestDB(t)
	qs := NewQuotaStore(db)
	sub := seedSubscription(t, db, 100, true)

	past := time.Now().Add(-60 * 24 * time.Hour)
	sub.CurrentPeriodStart = past
	periodEnd := past.Add(30 * 24 * time.Hour)
	sub.CurrentPeriodEnd = &periodEnd
	db.Save(&sub)

	var period *UsagePeriod
	err := qs.WithTransaction(context.Background(), func(tx *gorm.DB) error {
		p, err := qs.CurrentUsagePeriod(context.Background(), tx, &sub, time.Now())
		period = p
		return err
	})
	if err != nil {
		t.Fatalf("CurrentUsagePeriod: %v", err)
	}
	if !period.PeriodStart.After(past) {
		t.Error("expected rolled-forward period to start after the stale period")
	}
	now := time.Now()
	if now.Before(period.PeriodStart) || now.After(period.PeriodEnd) {
		t.Errorf("expected rolled period to cover now: start=%v end=%v now=%v", period.PeriodStart, period.PeriodEnd, now)
	}
}

func TestQuotaStore_IncrementLifetimeUsageIsAdditive(t *testing.T) {
	db := newTestDB(t)
	qs := NewQuotaStore(db)
	sub := seedSubscription(t, db, 100, false)

	if err := qs.IncrementLifetimeUsage(context.Background(), sub.ID, 5.5); err != nil {
		t.Fatalf("increment 1: %v", err)
	}
	if err := qs.IncrementLifetimeUsage(context.Background(), sub.ID, 2.5); err != nil {
		t.Fatalf("increment 2: %v", err)
	}

	reloaded, err := qs.LoadSubscription(context.Background(), "org-1")
	if err != nil {
		t.Fatalf("LoadSubscription: %v", err)
	}
	if reloaded.Subscription.LifetimeUsageMinutes != 8 {
		t.Errorf("expected lifetime usage 8, got %f", reloaded.Subscription.LifetimeUsageMinutes)
	}
}
