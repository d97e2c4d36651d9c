package user

import (
	"context"
	"errors"
	"time"
)

// User is a chat-platform account known to the bot. Records are created on
// first contact and only ever flagged, never deleted.
type User struct {
	ID              int64     `json:"id" gorm:"primaryKey;autoIncrement:false"`
	DisplayName     string    `json:"display_name" gorm:"column:display_name;not null"`
	IsAuthorized    bool      `json:"is_authorized" gorm:"column:is_authorized;not null;default:false"`
	PendingApproval bool      `json:"pending_approval" gorm:"column:pending_approval;not null;default:false"`
	IsDenied        bool      `json:"is_denied" gorm:"column:is_denied;not null;default:false"`
	CreatedAt       time.Time `json:"created_at" gorm:"column:created_at"`
	UpdatedAt       time.Time `json:"updated_at" gorm:"column:updated_at"`
}

func (User) TableName() string {
	return "users"
}

// Decision is the outcome of an authorization check.
type Decision string

const (
	DecisionAuthorized      Decision = "authorized"
	DecisionPendingApproval Decision = "pending_approval"
	DecisionDenied          Decision = "denied"
)

var ErrUserNotFound = errors.New("user not found")

// Repository defines the data access methods for users.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*User, error)
	Create(ctx context.Context, u *User) error
	Update(ctx context.Context, u *User) error
	ListPending(ctx context.Context) ([]*User, error)
}
