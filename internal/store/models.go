// Package store holds the GORM models and query helpers backing the quota
// service and the durable write queue: subscription plans, per-organization
// subscriptions, monthly usage periods, and transcription records.
package store

import (
	"time"
)

// TranscriptionStatus is the lifecycle state of a TranscriptionRecord.
type TranscriptionStatus string

const (
	StatusInProgress TranscriptionStatus = "IN_PROGRESS"
	StatusCompleted  TranscriptionStatus = "COMPLETED"
	StatusNoData     TranscriptionStatus = "NO_DATA"
	StatusFailed     TranscriptionStatus = "FAILED"
)

// statusRank orders statuses for the monotonicity guard in TranscriptionStore.Upsert:
// a write may never move a record to a lower rank than it already holds.
var statusRank = map[TranscriptionStatus]int{
	StatusInProgress: 0,
	StatusNoData:      1,
	StatusFailed:      1,
	StatusCompleted:  2,
}

// SubscriptionPlan is a purchasable tier: its quota and billing terms.
type SubscriptionPlan struct {
	ID                 string         `gorm:"primaryKey"`
	Slug               string         `gorm:"uniqueIndex;not null"`
	Name               string         `gorm:"not null"`
	Description        *string
	NormalPrice        int            `gorm:"not null"`
	PromoPrice         *int
	IsPromo            bool           `gorm:"not null;default:false"`
	PaymentLink        *string
	Currency           string         `gorm:"not null;default:USD"`
	QuotaMinutes       float64        `gorm:"not null"`
	QuotaResetsMonthly bool           `gorm:"not null;default:true"`
	Features           string         `gorm:"type:text"`
	IsActive           bool           `gorm:"not null;default:true"`
	// Price is a legacy column some seeding paths still order by.
	// NormalPrice is authoritative; Price is kept read-only for that path. See DESIGN.md.
	Price     *int
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// OrganizationSubscription binds one organization to one plan with its own
// billing period and lifetime usage counter.
type OrganizationSubscription struct {
	ID                 string    `gorm:"primaryKey"`
	OrganizationID     string    `gorm:"uniqueIndex;not null"`
	PlanID             string    `gorm:"not null"`
	Plan               SubscriptionPlan `gorm:"foreignKey:PlanID"`
	Status             string    `gorm:"not null"`
	CurrentPeriodStart time.Time `gorm:"not null"`
	CurrentPeriodEnd   *time.Time
	LifetimeUsageMinutes float64 `gorm:"not null;default:0"`
	CanceledAt         *time.Time
	CreatedAt          time.Time `gorm:"autoCreateTime"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime"`
}

// IsActive reports whether the subscription currently admits usage.
func (s *OrganizationSubscription) IsActive() bool {
	return s.Status == "active"
}

// UsagePeriod accumulates usage minutes within one monthly billing window.
type UsagePeriod struct {
	ID             string    `gorm:"primaryKey"`
	SubscriptionID string    `gorm:"uniqueIndex:idx_usage_period_sub_start;not null"`
	PeriodStart    time.Time `gorm:"uniqueIndex:idx_usage_period_sub_start;not null"`
	PeriodEnd      time.Time `gorm:"not null"`
	UsageMinutes   float64   `gorm:"not null;default:0"`
	CreatedAt      time.Time `gorm:"autoCreateTime"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime"`
}

// Transcription is the durable record of one session's transcript and
// translation. Its primary key is the externally supplied conversationId,
// not a generated UUID, so periodic and final writes always target the
// same row.
type Transcription struct {
	ID                  string `gorm:"primaryKey"`
	OrganizationID      string `gorm:"index;not null"`
	DurationInMs        int64  `gorm:"not null;default:0"`
	ModelName           string `gorm:"not null"`
	TargetLanguage      *string
	SourceLanguage      *string
	TranscriptionResult *string `gorm:"type:text"`
	TranslationResult   *string `gorm:"type:text"`
	Vocabularies        *string `gorm:"type:text"`
	Status              TranscriptionStatus `gorm:"not null;default:IN_PROGRESS"`
	Version             int                 `gorm:"not null;default:1"`
	CreatedAt           time.Time           `gorm:"autoCreateTime"`
	UpdatedAt           time.Time           `gorm:"autoUpdateTime"`
}

// Models returns every model the store package owns, for AutoMigrate.
func Models() []interface{} {
	return []interface{}{
		&SubscriptionPlan{},
		&OrganizationSubscription{},
		&UsagePeriod{},
		&Transcription{},
	}
}
