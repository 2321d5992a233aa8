package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TranscriptionWrite is the payload of one durable write-queue operation
// against the Transcription table. Create carries every column; Update
// carries only the streaming fields that periodic and final writes refresh.
type TranscriptionWrite struct {
	ID             string
	OrganizationID string
	ModelName      string
	TargetLanguage *string
	SourceLanguage *string

	DurationInMs        int64
	TranscriptionResult *string
	TranslationResult   *string
	Vocabularies        *string
	Status              TranscriptionStatus

	// IsFinal marks a finalization write. Only final writes may carry
	// TargetLanguage/SourceLanguage updates on an existing row.
	IsFinal bool
}

// TranscriptionStore persists Transcription rows with an upsert that
// never regresses status rank (IN_PROGRESS -> {COMPLETED,FAILED,NO_DATA},
// never COMPLETED -> NO_DATA).
type TranscriptionStore struct {
	db *gorm.DB
}

// NewTranscriptionStore constructs a TranscriptionStore over the given GORM handle.
func NewTranscriptionStore(db *gorm.DB) *TranscriptionStore {
	return &TranscriptionStore{db: db}
}

// Upsert creates the row if absent, otherwise updates it in place, refusing
// to downgrade a COMPLETED row to NO_DATA or FAILED.
func (s *TranscriptionStore) Upsert(ctx context.Context, w TranscriptionWrite) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Transcription
		err := tx.Where("id = ?", w.ID).Take(&existing).Error
		switch {
		case err == nil:
			return s.applyUpdate(tx, &existing, w)
		case gorm.ErrRecordNotFound == err:
			return s.applyCreate(tx, w)
		default:
			return fmt.Errorf("transcription lookup: %w", err)
		}
	})
}

func (s *TranscriptionStore) applyCreate(tx *gorm.DB, w TranscriptionWrite) error {
	row := Transcription{
		ID:                  w.ID,
		OrganizationID:      w.OrganizationID,
		DurationInMs:        w.DurationInMs,
		ModelName:           w.ModelName,
		TargetLanguage:      w.TargetLanguage,
		SourceLanguage:      w.SourceLanguage,
		TranscriptionResult: w.TranscriptionResult,
		TranslationResult:   w.TranslationResult,
		Vocabularies:        w.Vocabularies,
		Status:              w.Status,
		Version:             1,
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(&row).Error
}

func (s *TranscriptionStore) applyUpdate(tx *gorm.DB, existing *Transcription, w TranscriptionWrite) error {
	if statusRank[w.Status] < statusRank[existing.Status] {
		// Never downgrade a terminal COMPLETED row with a stale periodic write.
		return nil
	}

	updates := map[string]interface{}{
		"duration_in_ms": w.DurationInMs,
		"status":         w.Status,
		"version":        existing.Version + 1,
	}
	if w.TranscriptionResult != nil || w.Status != StatusInProgress {
		updates["transcription_result"] = w.TranscriptionResult
	}
	if w.TranslationResult != nil || w.Status != StatusInProgress {
		updates["translation_result"] = w.TranslationResult
	}
	if w.Vocabularies != nil {
		updates["vocabularies"] = w.Vocabularies
	}
	if w.IsFinal {
		if w.TargetLanguage != nil {
			updates["target_language"] = w.TargetLanguage
		}
		if w.SourceLanguage != nil {
			updates["source_language"] = w.SourceLanguage
		}
	}

	return tx.Model(&Transcription{}).Where("id = ?", existing.ID).Updates(updates).Error
}

// Get returns the Transcription row for conversationId, or gorm.ErrRecordNotFound.
func (s *TranscriptionStore) Get(ctx context.Context, conversationID string) (*Transcription, error) {
	var row Transcription
	if err := s.db.WithContext(ctx).Where("id = ?", conversationID).Take(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}
