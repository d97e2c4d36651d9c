package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/prasetya/receiptbot/internal/receipt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReceiptRepository implements the receipt.Repository interface using GORM
type ReceiptRepository struct {
	db *gorm.DB
}

func NewReceiptRepository(db *gorm.DB) receipt.Repository {
	return &ReceiptRepository{db: db}
}

func (r *ReceiptRepository) Create(ctx context.Context, rec *receipt.Receipt) error {
	// Positions cascade through the association.
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *ReceiptRepository) GetByID(ctx context.Context, id int64) (*receipt.Receipt, error) {
	var rec receipt.Receipt
	err := r.db.WithContext(ctx).
		Preload("Positions").
		Where("id = ?", id).
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, receipt.ErrReceiptNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// Update replaces the receipt row and its positions. Old positions are
// dropped first so a revised draft with fewer items does not leave orphans.
func (r *ReceiptRepository) Update(ctx context.Context, rec *receipt.Receipt) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("receipt_id = ?", rec.ID).Delete(&receipt.Position{}).Error; err != nil {
			return err
		}
		for i := range rec.Positions {
			rec.Positions[i].ID = 0
			rec.Positions[i].ReceiptID = rec.ID
		}
		return tx.Session(&gorm.Session{FullSaveAssociations: true}).Save(rec).Error
	})
}

func (r *ReceiptRepository) ListByUser(ctx context.Context, userID int64, limit, offset int, filters receipt.Filters) ([]*receipt.Receipt, error) {
	var receipts []*receipt.Receipt

	q := r.db.WithContext(ctx).
		Preload("Positions").
		Where("user_id = ?", userID)

	if filters.Category != "" {
		q = q.Where("category = ?", filters.Category)
	}
	if filters.From != nil {
		q = q.Where("purchase_date >= ?", *filters.From)
	}
	if filters.To != nil {
		q = q.Where("purchase_date <= ?", *filters.To)
	}

	err := q.Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&receipts).Error
	return receipts, err
}

func (r *ReceiptRepository) ListSince(ctx context.Context, userID int64, since time.Time) ([]*receipt.Receipt, error) {
	var receipts []*receipt.Receipt
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND purchase_date >= ?", userID, since).
		Order("purchase_date DESC").
		Find(&receipts).Error
	return receipts, err
}

func (r *ReceiptRepository) UpdateMediaRef(ctx context.Context, id int64, ref string) error {
	return r.db.WithContext(ctx).
		Model(&receipt.Receipt{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"media_ref":  ref,
			"updated_at": time.Now(),
		}).Error
}

func (r *ReceiptRepository) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).
		Select(clause.Associations).
		Delete(&receipt.Receipt{ID: id}).Error
}
