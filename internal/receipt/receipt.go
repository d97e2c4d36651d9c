package receipt

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Receipt is a confirmed, persisted expense record. It is owned exclusively
// by its user and is never visible to anyone else.
type Receipt struct {
	ID          int64           `json:"id" gorm:"primaryKey"`
	UserID      int64           `json:"user_id" gorm:"column:user_id;not null;index"`
	Merchant    string          `json:"merchant" gorm:"not null"`
	Category    string          `json:"category" gorm:"not null"`
	Description string          `json:"description,omitempty"`
	TotalAmount decimal.Decimal `json:"total_amount" gorm:"column:total_amount;type:numeric(14,2);not null"`
	// ManualTotal marks a total the user confirmed even though it does not
	// match the position sum within tolerance.
	ManualTotal  bool       `json:"manual_total" gorm:"column:manual_total;not null;default:false"`
	PurchaseDate *time.Time `json:"purchase_date,omitempty" gorm:"column:purchase_date;type:date"`
	MediaRef     *string    `json:"media_ref,omitempty" gorm:"column:media_ref"`
	Positions    []Position `json:"positions" gorm:"foreignKey:ReceiptID;constraint:OnDelete:CASCADE"`
	CreatedAt    time.Time  `json:"created_at" gorm:"column:created_at"`
	UpdatedAt    time.Time  `json:"updated_at" gorm:"column:updated_at"`
}

func (Receipt) TableName() string {
	return "receipts"
}

// Position is one line item of a persisted receipt.
type Position struct {
	ID          int64           `json:"id" gorm:"primaryKey"`
	ReceiptID   int64           `json:"-" gorm:"column:receipt_id;not null;index"`
	Description string          `json:"description" gorm:"not null"`
	Quantity    decimal.Decimal `json:"quantity" gorm:"type:numeric(10,3);not null"`
	Category    string          `json:"category" gorm:"not null"`
	Price       decimal.Decimal `json:"price" gorm:"type:numeric(14,2);not null"`
}

func (Position) TableName() string {
	return "positions"
}

// PositionSum adds up all line item prices.
func (r *Receipt) PositionSum() decimal.Decimal {
	sum := decimal.Zero
	for _, p := range r.Positions {
		sum = sum.Add(p.Price)
	}
	return sum
}

// Filters narrows a receipt listing.
type Filters struct {
	Category string
	From     *time.Time
	To       *time.Time
}

// MonthTotal is one row of a monthly spending summary.
type MonthTotal struct {
	Month string          `json:"month"` // MM-YYYY
	Total decimal.Decimal `json:"total"`
	Count int             `json:"count"`
}

// Domain errors
var (
	ErrReceiptNotFound = errors.New("receipt not found")
	ErrNotOwner        = errors.New("receipt belongs to another user")
)

// Repository defines the data access methods for receipts. Ownership rules
// live in the service; the repository only fetches and mutates rows.
type Repository interface {
	Create(ctx context.Context, r *Receipt) error
	GetByID(ctx context.Context, id int64) (*Receipt, error)
	Update(ctx context.Context, r *Receipt) error
	ListByUser(ctx context.Context, userID int64, limit, offset int, filters Filters) ([]*Receipt, error)
	ListSince(ctx context.Context, userID int64, since time.Time) ([]*Receipt, error)
	UpdateMediaRef(ctx context.Context, id int64, ref string) error
	Delete(ctx context.Context, id int64) error
}
