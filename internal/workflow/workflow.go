package workflow

import (
	"context"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/prasetya/receiptbot/internal"
	"github.com/prasetya/receiptbot/internal/extraction"
	"github.com/prasetya/receiptbot/internal/filegate"
	"github.com/prasetya/receiptbot/internal/ratelimit"
	"github.com/prasetya/receiptbot/internal/receipt"
	"github.com/prasetya/receiptbot/internal/storage"
	"github.com/prasetya/receiptbot/internal/user"
)

// Modality is the kind of input carrying receipt data.
type Modality string

const (
	ModalityImage Modality = "image"
	ModalityVoice Modality = "voice"
	ModalityText  Modality = "text"
)

// State tracks how far a workflow invocation got.
type State string

const (
	StateReceived             State = "received"
	StateValidated            State = "validated"
	StateExtracted            State = "extracted"
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StatePersisted            State = "persisted"
	StateAborted              State = "aborted"
)

// Submission is one raw user input: a chat message's payload plus identity.
type Submission struct {
	UserID      int64
	DisplayName string
	Modality    Modality
	Payload     []byte // image or voice bytes
	Text        string // text modality
	Comment     string
}

// ConfirmInput carries a user's explicit confirmation of a draft.
type ConfirmInput struct {
	Draft *extraction.Draft
	// AcceptTotalMismatch must be set when the draft's total disagrees
	// with its position sum; the persisted receipt is then marked as a
	// manual override.
	AcceptTotalMismatch bool
	Media               *MediaUpload
}

// MediaUpload is the original media to attach to a confirmed receipt.
type MediaUpload struct {
	ContentType string
	Data        []byte
}

// Outcome is what one invocation produced. Aborts carry the AppError so the
// chat layer can render a specific, actionable message.
type Outcome struct {
	State        State              `json:"state"`
	Draft        *extraction.Draft  `json:"draft,omitempty"`
	ReceiptID    int64              `json:"receipt_id,omitempty"`
	Receipt      *receipt.Receipt   `json:"receipt,omitempty"`
	AbortReason  *internal.AppError `json:"abort_reason,omitempty"`
	MediaWarning string             `json:"media_warning,omitempty"`
}

// Authorizer decides whether a user may proceed.
type Authorizer interface {
	Authorize(ctx context.Context, userID int64, displayName string) (user.Decision, error)
}

// Limiter guards request cadence per user.
type Limiter interface {
	Check(userID int64) ratelimit.Decision
}

// FileGate validates and stages binary uploads.
type FileGate interface {
	Stage(data []byte, kind filegate.Kind) (*filegate.StagedFile, error)
}

// ReceiptGateway is the slice of the persistence layer the workflow needs.
type ReceiptGateway interface {
	Save(ctx context.Context, r *receipt.Receipt) (int64, error)
	Get(ctx context.Context, userID, receiptID int64) (*receipt.Receipt, error)
	Update(ctx context.Context, userID int64, r *receipt.Receipt) error
	SetMediaRef(ctx context.Context, userID, receiptID int64, ref string) error
}

// Workflow drives a receipt from raw input to a persisted, user-confirmed
// record. It never blocks waiting for chat input: confirmation and every
// correction arrive as separate invocations linked by draft or receipt id.
type Workflow struct {
	auth      Authorizer
	limiter   Limiter
	gate      FileGate
	adapter   extraction.Adapter
	receipts  ReceiptGateway
	blobs     storage.BlobStorage
	uploader  *storage.Uploader
	aiTimeout time.Duration
	dbTimeout time.Duration
	logger    *slog.Logger
}

type Config struct {
	AITimeout time.Duration
	DBTimeout time.Duration
}

func New(
	auth Authorizer,
	limiter Limiter,
	gate FileGate,
	adapter extraction.Adapter,
	receipts ReceiptGateway,
	blobs storage.BlobStorage,
	uploader *storage.Uploader,
	cfg Config,
	logger *slog.Logger,
) *Workflow {
	if cfg.AITimeout <= 0 {
		cfg.AITimeout = internal.DefaultGeminiTimeout
	}
	if cfg.DBTimeout <= 0 {
		cfg.DBTimeout = 5 * time.Second
	}
	return &Workflow{
		auth:      auth,
		limiter:   limiter,
		gate:      gate,
		adapter:   adapter,
		receipts:  receipts,
		blobs:     blobs,
		uploader:  uploader,
		aiTimeout: cfg.AITimeout,
		dbTimeout: cfg.DBTimeout,
		logger:    logger,
	}
}

// Submit runs one raw input through validation and extraction and returns a
// draft awaiting the user's confirmation.
func (w *Workflow) Submit(ctx context.Context, sub Submission) (*Outcome, error) {
	if abort := w.guard(ctx, sub.UserID, sub.DisplayName); abort != nil {
		return abort, nil
	}

	var (
		draft *extraction.Draft
		err   error
	)

	switch sub.Modality {
	case ModalityText:
		// Text skips the file gate entirely.
		draft, err = w.extract(ctx, func(ctx context.Context) (*extraction.Draft, error) {
			return w.adapter.ExtractFromText(ctx, sub.Text, sub.Comment)
		})

	case ModalityImage, ModalityVoice:
		kind := filegate.KindImage
		extractFn := w.adapter.ExtractFromImage
		if sub.Modality == ModalityVoice {
			kind = filegate.KindAudio
			extractFn = w.adapter.ExtractFromVoice
		}

		staged, stageErr := w.gate.Stage(sub.Payload, kind)
		if stageErr != nil {
			return w.abort(StateReceived, stageErr, sub.UserID), nil
		}
		// Released on every exit path, success or failure.
		defer staged.Release()

		draft, err = w.extract(ctx, func(ctx context.Context) (*extraction.Draft, error) {
			return extractFn(ctx, staged, sub.Comment)
		})

	default:
		return w.abort(StateReceived,
			internal.NewValidationError("unknown input modality", internal.ErrCodeEmptyInput),
			sub.UserID), nil
	}

	if err != nil {
		return w.abort(StateValidated, err, sub.UserID), nil
	}

	w.logger.Info("draft extracted",
		"user_id", sub.UserID,
		"modality", sub.Modality,
		"merchant", draft.Merchant,
		"positions", len(draft.Positions))

	return &Outcome{State: StateAwaitingConfirmation, Draft: draft}, nil
}

// Revise re-extracts a prior draft with a new user comment. Each correction
// is a fresh invocation re-entering extraction, not an incremental patch.
func (w *Workflow) Revise(ctx context.Context, userID int64, displayName string, prior *extraction.Draft, comment string) (*Outcome, error) {
	if abort := w.guard(ctx, userID, displayName); abort != nil {
		return abort, nil
	}

	draft, err := w.extract(ctx, func(ctx context.Context) (*extraction.Draft, error) {
		return w.adapter.ReviseDraft(ctx, prior, comment)
	})
	if err != nil {
		return w.abort(StateExtracted, err, userID), nil
	}

	return &Outcome{State: StateAwaitingConfirmation, Draft: draft}, nil
}

// Confirm converts an approved draft into a persisted receipt. Original
// media, when present, is stored after the metadata write; its failure is a
// warning, never a rollback.
func (w *Workflow) Confirm(ctx context.Context, userID int64, displayName string, in ConfirmInput) (*Outcome, error) {
	if abort := w.guard(ctx, userID, displayName); abort != nil {
		return abort, nil
	}

	if in.Draft == nil {
		return w.abort(StateAwaitingConfirmation,
			internal.NewValidationError("nothing to confirm", internal.ErrCodeInvalidDraft),
			userID), nil
	}
	if err := in.Draft.Validate(); err != nil {
		return w.abort(StateAwaitingConfirmation, err, userID), nil
	}
	if in.Draft.TotalMismatch && !in.AcceptTotalMismatch {
		return w.abort(StateAwaitingConfirmation,
			internal.NewValidationError(
				"receipt total does not match the item sum, confirm the total to save anyway",
				internal.ErrCodeInvalidDraft,
			), userID), nil
	}

	rec := receiptFromDraft(userID, in.Draft)
	rec.ManualTotal = in.Draft.TotalMismatch

	dbCtx, cancel := internal.WithTimeout(ctx, w.dbTimeout)
	defer cancel()

	id, err := w.receipts.Save(dbCtx, rec)
	if err != nil {
		return w.abort(StateAwaitingConfirmation, err, userID), nil
	}

	outcome := &Outcome{State: StatePersisted, ReceiptID: id, Receipt: rec}
	if in.Media != nil {
		outcome.MediaWarning = w.storeMedia(ctx, userID, id, in.Media)
	}

	return outcome, nil
}

// Amend corrects an already-persisted receipt with a later user comment. The
// existing receipt identity is kept; no duplicate is created.
func (w *Workflow) Amend(ctx context.Context, userID int64, displayName string, receiptID int64, comment string) (*Outcome, error) {
	if abort := w.guard(ctx, userID, displayName); abort != nil {
		return abort, nil
	}

	dbCtx, cancel := internal.WithTimeout(ctx, w.dbTimeout)
	defer cancel()

	existing, err := w.receipts.Get(dbCtx, userID, receiptID)
	if err != nil {
		return w.abort(StateReceived, err, userID), nil
	}

	revised, err := w.extract(ctx, func(ctx context.Context) (*extraction.Draft, error) {
		return w.adapter.ReviseDraft(ctx, draftFromReceipt(existing), comment)
	})
	if err != nil {
		return w.abort(StateExtracted, err, userID), nil
	}

	updated := receiptFromDraft(userID, revised)
	updated.ID = existing.ID
	updated.MediaRef = existing.MediaRef
	updated.ManualTotal = revised.TotalMismatch

	updCtx, cancelUpd := internal.WithTimeout(ctx, w.dbTimeout)
	defer cancelUpd()

	if err := w.receipts.Update(updCtx, userID, updated); err != nil {
		return w.abort(StateExtracted, err, userID), nil
	}

	w.logger.Info("receipt amended", "receipt_id", receiptID, "user_id", userID)
	return &Outcome{State: StatePersisted, ReceiptID: existing.ID, Receipt: updated}, nil
}

// guard runs the cheap checks first: authorization, then rate limiting.
// Returns a non-nil aborted outcome when the invocation may not proceed.
func (w *Workflow) guard(ctx context.Context, userID int64, displayName string) *Outcome {
	decision, err := w.auth.Authorize(ctx, userID, displayName)
	if err != nil {
		return w.abort(StateReceived, err, userID)
	}

	switch decision {
	case user.DecisionAuthorized:
	case user.DecisionPendingApproval:
		return w.abort(StateReceived,
			internal.NewForbiddenError("your access request is waiting for admin approval", internal.ErrCodePendingApproval),
			userID)
	default:
		return w.abort(StateReceived,
			internal.NewForbiddenError("access denied", internal.ErrCodeAccessDenied),
			userID)
	}

	if rl := w.limiter.Check(userID); !rl.Allowed {
		return w.abort(StateReceived, internal.NewRateLimitError(rl.RetryAfterSeconds), userID)
	}

	return nil
}

// extract calls the adapter with a timeout and at most one retry, and only
// for transient failures. Permanent failures surface immediately.
func (w *Workflow) extract(ctx context.Context, fn func(context.Context) (*extraction.Draft, error)) (*extraction.Draft, error) {
	var draft *extraction.Draft

	backoff := retry.WithMaxRetries(1, retry.NewConstant(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		aiCtx, cancel := internal.WithTimeout(ctx, w.aiTimeout)
		defer cancel()

		d, err := fn(aiCtx)
		if err != nil {
			if internal.IsTransient(err) {
				w.logger.Warn("transient extraction failure, retrying once", "error", err)
				return retry.RetryableError(err)
			}
			return err
		}
		draft = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return draft, nil
}

// storeMedia attempts the synchronous blob write; on failure it hands the
// upload to the background retrier and returns a warning for the caller.
func (w *Workflow) storeMedia(ctx context.Context, userID, receiptID int64, media *MediaUpload) string {
	blobCtx, cancel := internal.WithTimeout(ctx, w.dbTimeout)
	defer cancel()

	ref, err := w.blobs.Save(blobCtx, receiptID, media.ContentType, media.Data)
	if err == nil {
		if refErr := w.receipts.SetMediaRef(blobCtx, userID, receiptID, ref); refErr != nil {
			w.logger.Warn("media stored but reference not recorded", "receipt_id", receiptID, "error", refErr)
			return "receipt saved; media stored but not linked"
		}
		return ""
	}

	w.logger.Warn("media upload failed after metadata write", "receipt_id", receiptID, "error", err)

	if w.uploader != nil && w.uploader.Enqueue(storage.UploadJob{
		ReceiptID:   receiptID,
		ContentType: media.ContentType,
		Data:        media.Data,
	}) {
		return "receipt saved; original media upload will be retried in the background"
	}
	return "receipt saved; original media could not be stored"
}

func (w *Workflow) abort(from State, err error, userID int64) *Outcome {
	appErr := internal.AsAppError(err)
	w.logger.Warn("workflow aborted",
		"from_state", from,
		"user_id", userID,
		"code", appErr.Code,
		"error", appErr.Error())
	return &Outcome{State: StateAborted, AbortReason: appErr}
}
