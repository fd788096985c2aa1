// Package repo – delivery journal.
//
// The journal records one row per relayed update: destination chat, route,
// provider error kind, transport status and latency. Message text is never
// stored.
//
// Functions:
//
//   - CreateDelivery(ctx, db, d) -> error
//     Inserts d, assigning ID and CreatedAt when unset.
//
//   - ListRecentDeliveries(ctx, db, limit) -> ([]domain.Delivery, error)
//     Returns the newest rows first.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-chat-relay/internal/domain"
)

// DefaultListLimit bounds ListRecentDeliveries when limit <= 0.
const DefaultListLimit = 20

// CreateDelivery inserts a journal row.
func CreateDelivery(ctx context.Context, db *gorm.DB, d *domain.Delivery) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Create(d).Error
}

// ListRecentDeliveries returns up to limit rows, newest first.
func ListRecentDeliveries(ctx context.Context, db *gorm.DB, limit int) ([]domain.Delivery, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	var out []domain.Delivery
	err := db.WithContext(ctx).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// Journal adapts the package functions to the relay's recorder interface.
type Journal struct {
	DB *gorm.DB
}

// RecordDelivery implements services.Recorder.
func (j Journal) RecordDelivery(ctx context.Context, d *domain.Delivery) error {
	return CreateDelivery(ctx, j.DB, d)
}
