package models

import (
	"context"
	"encoding/json"
	"time"

	"bitbucket.org/mmdatafocus/estimator_backend/config"
	"bitbucket.org/mmdatafocus/estimator_backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EstimateEventRecord implements a transactional outbox: the row is written
// inside the caller's DB transaction but NOT published to Pub/Sub. Publishing
// is performed asynchronously by the outbox dispatcher after commit.
type EstimateEventRecord struct {
	ID            int                 `gorm:"primary_key" json:"id"`
	CompanyId     string              `gorm:"index;not null" json:"company_id"`
	EstimateId    string              `gorm:"index;size:64;not null" json:"estimate_id"`
	EventType     EstimateEventType   `gorm:"size:64;not null" json:"event_type"`
	Payload       []byte              `gorm:"type:blob" json:"payload"`
	IsProcessed   bool                `gorm:"default:false" json:"is_processed"`
	PublishStatus OutboxPublishStatus `gorm:"type:enum('Pending','Processing','Published','Failed');default:Pending" json:"publish_status"`
	Attempts      int                 `gorm:"default:0" json:"attempts"`
	LastError     string              `gorm:"type:text" json:"last_error"`
	CorrelationId string              `gorm:"size:64" json:"correlation_id"`
	OccurredAt    time.Time           `gorm:"not null" json:"occurred_at"`
	PublishedAt   *time.Time          `gorm:"default:null" json:"published_at"`
	CreatedAt     time.Time           `gorm:"autoCreateTime" json:"created_at"`
}

func enqueueEstimateEventTx(tx *gorm.DB, ctx context.Context, companyId string, estimateId string, eventType EstimateEventType, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	record := EstimateEventRecord{
		CompanyId:     companyId,
		EstimateId:    estimateId,
		EventType:     eventType,
		Payload:       data,
		IsProcessed:   false,
		PublishStatus: OutboxPublishStatusPending,
		CorrelationId: correlationIdFromContextOrNew(ctx),
		OccurredAt:    time.Now().UTC(),
	}
	return tx.Create(&record).Error
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}

// FetchPendingEstimateEvents claims up to limit pending rows for the
// dispatcher, oldest first, marking them Processing so a second dispatcher
// instance skips them.
func FetchPendingEstimateEvents(ctx context.Context, limit int) ([]EstimateEventRecord, error) {
	db := config.GetDB()
	var records []EstimateEventRecord

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("is_processed = false AND publish_status = ?", OutboxPublishStatusPending).
			Order("id ASC").
			Limit(limit).
			Find(&records).Error; err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}
		ids := make([]int, 0, len(records))
		for i := range records {
			ids = append(ids, records[i].ID)
		}
		return tx.Model(&EstimateEventRecord{}).
			Where("id IN ?", ids).
			Updates(map[string]any{
				"publish_status": OutboxPublishStatusProcessing,
				"attempts":       gorm.Expr("attempts + 1"),
			}).Error
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func MarkEstimateEventPublished(ctx context.Context, id int) error {
	db := config.GetDB()
	now := time.Now().UTC()
	return db.WithContext(ctx).Model(&EstimateEventRecord{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"is_processed":   true,
			"publish_status": OutboxPublishStatusPublished,
			"published_at":   &now,
			"last_error":     "",
		}).Error
}

func MarkEstimateEventFailed(ctx context.Context, id int, publishErr error) error {
	db := config.GetDB()
	return db.WithContext(ctx).Model(&EstimateEventRecord{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"publish_status": OutboxPublishStatusFailed,
			"last_error":     publishErr.Error(),
		}).Error
}

// RevertStuckEstimateEvents puts rows stuck in Processing/Failed back to
// Pending so the dispatcher retries them.
func RevertStuckEstimateEvents(ctx context.Context, olderThan time.Duration) (int64, error) {
	db := config.GetDB()
	cutoff := time.Now().UTC().Add(-olderThan)
	result := db.WithContext(ctx).Model(&EstimateEventRecord{}).
		Where("is_processed = false AND publish_status IN ? AND created_at < ?",
			[]OutboxPublishStatus{OutboxPublishStatusProcessing, OutboxPublishStatusFailed}, cutoff).
		Update("publish_status", OutboxPublishStatusPending)
	return result.RowsAffected, result.Error
}

func (r *EstimateEventRecord) ToEvent() *config.EstimateEvent {
	return &config.EstimateEvent{
		ID:            r.ID,
		CompanyId:     r.CompanyId,
		OccurredAt:    r.OccurredAt,
		EstimateId:    r.EstimateId,
		EventType:     string(r.EventType),
		Payload:       r.Payload,
		CorrelationId: r.CorrelationId,
	}
}
