package extraction

import (
	"context"

	"github.com/prasetya/receiptbot/internal/filegate"
)

// Adapter is the only component allowed to talk to an external AI service.
// Every failure it returns is an *internal.AppError classified as either
// AI_TRANSIENT (safe to retry once) or AI_PERMANENT (surface to the user).
type Adapter interface {
	// ExtractFromImage parses a staged receipt photo into a draft. An
	// optional user comment overrides what the image says.
	ExtractFromImage(ctx context.Context, staged *filegate.StagedFile, comment string) (*Draft, error)

	// ExtractFromVoice builds a draft from a staged voice note describing
	// a purchase.
	ExtractFromVoice(ctx context.Context, staged *filegate.StagedFile, comment string) (*Draft, error)

	// ExtractFromText builds a draft from a free-text purchase description.
	ExtractFromText(ctx context.Context, text, comment string) (*Draft, error)

	// ReviseDraft re-extracts a prior draft with a new user comment as
	// context, producing a revised draft. Corrections are a full
	// re-extraction, not an incremental patch.
	ReviseDraft(ctx context.Context, prior *Draft, comment string) (*Draft, error)
}
