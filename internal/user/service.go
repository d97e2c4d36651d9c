package user

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prasetya/receiptbot/internal"
	"github.com/prasetya/receiptbot/internal/core/events"
)

const EventUserPendingApproval = "user.pending_approval"

// Service is the authorization gate. Every decision is read fresh from the
// repository so an admin approval is visible on the next call.
type Service struct {
	repo        Repository
	adminUserID int64
	bus         *events.EventBus
	logger      *slog.Logger
}

func NewService(repo Repository, adminUserID int64, bus *events.EventBus, logger *slog.Logger) *Service {
	return &Service{
		repo:        repo,
		adminUserID: adminUserID,
		bus:         bus,
		logger:      logger,
	}
}

// Authorize decides whether userID may use the bot, creating the user record
// on first contact. The configured admin id is authorized immediately; anyone
// else starts out pending until an admin approves them.
func (s *Service) Authorize(ctx context.Context, userID int64, displayName string) (Decision, error) {
	existing, err := s.repo.GetByID(ctx, userID)
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		s.logger.Error("authorize: lookup failed", "error", err, "user_id", userID)
		return "", err
	}

	if existing == nil {
		return s.firstContact(ctx, userID, displayName)
	}

	switch {
	case existing.IsDenied:
		return DecisionDenied, nil
	case existing.IsAuthorized:
		return DecisionAuthorized, nil
	default:
		// Re-requesting while pending does not duplicate the record.
		return DecisionPendingApproval, nil
	}
}

func (s *Service) firstContact(ctx context.Context, userID int64, displayName string) (Decision, error) {
	now := time.Now()
	u := &User{
		ID:          userID,
		DisplayName: displayName,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if userID == s.adminUserID {
		u.IsAuthorized = true
		if err := s.repo.Create(ctx, u); err != nil {
			return "", err
		}
		s.logger.Info("admin user auto-authorized", "user_id", userID)
		return DecisionAuthorized, nil
	}

	u.PendingApproval = true
	if err := s.repo.Create(ctx, u); err != nil {
		return "", err
	}

	s.logger.Info("new user pending approval", "user_id", userID, "display_name", displayName)
	s.publishPending(ctx, u)
	return DecisionPendingApproval, nil
}

func (s *Service) publishPending(ctx context.Context, u *User) {
	if s.bus == nil {
		return
	}
	event := events.NewBaseEvent(EventUserPendingApproval, map[string]interface{}{
		"user_id":      u.ID,
		"display_name": u.DisplayName,
	})
	if err := s.bus.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish pending approval event", "error", err, "user_id", u.ID)
	}
}

// Approve flips a pending or denied user to authorized.
func (s *Service) Approve(ctx context.Context, userID int64) (*User, error) {
	u, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, internal.NewNotFoundError("user not found", internal.ErrCodeUserNotFound)
		}
		return nil, err
	}

	u.IsAuthorized = true
	u.PendingApproval = false
	u.IsDenied = false
	u.UpdatedAt = time.Now()

	if err := s.repo.Update(ctx, u); err != nil {
		s.logger.Error("approve: update failed", "error", err, "user_id", userID)
		return nil, err
	}

	s.logger.Info("user approved", "user_id", userID)
	return u, nil
}

// Deny permanently locks a user out until an admin approves them again.
func (s *Service) Deny(ctx context.Context, userID int64) (*User, error) {
	u, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, internal.NewNotFoundError("user not found", internal.ErrCodeUserNotFound)
		}
		return nil, err
	}

	u.IsAuthorized = false
	u.PendingApproval = false
	u.IsDenied = true
	u.UpdatedAt = time.Now()

	if err := s.repo.Update(ctx, u); err != nil {
		s.logger.Error("deny: update failed", "error", err, "user_id", userID)
		return nil, err
	}

	s.logger.Info("user denied", "user_id", userID)
	return u, nil
}

// PendingUsers lists users waiting for an admin decision.
func (s *Service) PendingUsers(ctx context.Context) ([]*User, error) {
	return s.repo.ListPending(ctx)
}
