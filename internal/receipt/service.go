package receipt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/prasetya/receiptbot/internal"
)

// Service is the persistence gateway for receipts. Every operation is scoped
// by the owning user id; touching another user's receipt yields NOT_OWNER,
// never a silent no-op.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
	}
}

// Save persists a new receipt together with its positions and returns its id.
func (s *Service) Save(ctx context.Context, r *Receipt) (int64, error) {
	now := time.Now()
	r.CreatedAt = now
	r.UpdatedAt = now

	if err := s.repo.Create(ctx, r); err != nil {
		s.logger.Error("failed to save receipt", "error", err, "user_id", r.UserID)
		return 0, internal.NewInternalError("failed to save receipt", internal.ErrCodeWriteFailed).WithCause(err)
	}

	s.logger.Info("receipt saved",
		"receipt_id", r.ID,
		"user_id", r.UserID,
		"merchant", r.Merchant,
		"total", r.TotalAmount)

	return r.ID, nil
}

// Get returns one of the user's receipts.
func (s *Service) Get(ctx context.Context, userID, receiptID int64) (*Receipt, error) {
	existing, err := s.repo.GetByID(ctx, receiptID)
	if err != nil {
		if errors.Is(err, ErrReceiptNotFound) {
			return nil, internal.NewNotFoundError("receipt not found", internal.ErrCodeReceiptNotFound)
		}
		return nil, err
	}

	if existing.UserID != userID {
		s.logger.Warn("cross-user receipt access refused", "receipt_id", receiptID, "user_id", userID)
		return nil, internal.NewForbiddenError("receipt belongs to another user", internal.ErrCodeNotOwner)
	}

	return existing, nil
}

// Update overwrites one of the user's receipts in place, keeping its identity.
func (s *Service) Update(ctx context.Context, userID int64, updated *Receipt) error {
	existing, err := s.Get(ctx, userID, updated.ID)
	if err != nil {
		return err
	}

	updated.UserID = existing.UserID
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = time.Now()

	if err := s.repo.Update(ctx, updated); err != nil {
		s.logger.Error("failed to update receipt", "error", err, "receipt_id", updated.ID)
		return internal.NewInternalError("failed to update receipt", internal.ErrCodeWriteFailed).WithCause(err)
	}

	s.logger.Info("receipt updated", "receipt_id", updated.ID, "user_id", userID)
	return nil
}

// List returns the user's receipts, newest first.
func (s *Service) List(ctx context.Context, userID int64, limit, offset int, filters Filters) ([]*Receipt, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	receipts, err := s.repo.ListByUser(ctx, userID, limit, offset, filters)
	if err != nil {
		s.logger.Error("failed to list receipts", "error", err, "user_id", userID)
		return nil, err
	}
	return receipts, nil
}

// LastN returns the user's N most recent receipts.
func (s *Service) LastN(ctx context.Context, userID int64, n int) ([]*Receipt, error) {
	return s.List(ctx, userID, n, 0, Filters{})
}

// Delete removes one of the user's receipts. NOT_FOUND and NOT_OWNER are
// distinct outcomes so the caller can render an honest message.
func (s *Service) Delete(ctx context.Context, userID, receiptID int64) error {
	if _, err := s.Get(ctx, userID, receiptID); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, receiptID); err != nil {
		s.logger.Error("failed to delete receipt", "error", err, "receipt_id", receiptID)
		return internal.NewInternalError("failed to delete receipt", internal.ErrCodeWriteFailed).WithCause(err)
	}

	s.logger.Info("receipt deleted", "receipt_id", receiptID, "user_id", userID)
	return nil
}

// SetMediaRef records where a receipt's original media ended up. Ownership
// is verified first like every other mutation.
func (s *Service) SetMediaRef(ctx context.Context, userID, receiptID int64, ref string) error {
	if _, err := s.Get(ctx, userID, receiptID); err != nil {
		return err
	}

	if err := s.repo.UpdateMediaRef(ctx, receiptID, ref); err != nil {
		s.logger.Error("failed to record media ref", "error", err, "receipt_id", receiptID)
		return internal.NewInternalError("failed to record media reference", internal.ErrCodeWriteFailed).WithCause(err)
	}
	return nil
}

// MonthlySummary aggregates the user's spending per calendar month over the
// last n months. Aggregation happens here rather than in SQL so the summary
// behaves the same on every database backend.
func (s *Service) MonthlySummary(ctx context.Context, userID int64, months int) ([]MonthTotal, error) {
	if months <= 0 {
		months = 3
	}

	since := time.Now().AddDate(0, -months, 0)
	receipts, err := s.repo.ListSince(ctx, userID, since)
	if err != nil {
		s.logger.Error("failed to load receipts for summary", "error", err, "user_id", userID)
		return nil, err
	}

	byMonth := make(map[string]*MonthTotal)
	for _, r := range receipts {
		if r.PurchaseDate == nil {
			continue
		}
		key := r.PurchaseDate.Format("01-2006")
		entry, ok := byMonth[key]
		if !ok {
			entry = &MonthTotal{Month: key}
			byMonth[key] = entry
		}
		entry.Total = entry.Total.Add(r.TotalAmount)
		entry.Count++
	}

	summary := make([]MonthTotal, 0, len(byMonth))
	for _, entry := range byMonth {
		summary = append(summary, *entry)
	}
	sort.Slice(summary, func(i, j int) bool {
		return monthSortKey(summary[i].Month) > monthSortKey(summary[j].Month)
	})

	return summary, nil
}

// monthSortKey turns MM-YYYY into YYYY-MM so lexical order is chronological.
func monthSortKey(month string) string {
	if len(month) != 7 {
		return month
	}
	return fmt.Sprintf("%s-%s", month[3:], month[:2])
}

// TotalOf is a convenience for rendering: the sum of a receipt set.
func TotalOf(receipts []*Receipt) decimal.Decimal {
	total := decimal.Zero
	for _, r := range receipts {
		total = total.Add(r.TotalAmount)
	}
	return total
}
