package workflow_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/prasetya/receiptbot/internal"
	"github.com/prasetya/receiptbot/internal/extraction"
	"github.com/prasetya/receiptbot/internal/filegate"
	"github.com/prasetya/receiptbot/internal/ratelimit"
	"github.com/prasetya/receiptbot/internal/receipt"
	"github.com/prasetya/receiptbot/internal/user"
	"github.com/prasetya/receiptbot/internal/workflow"
)

func TestWorkflow(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Workflow Suite")
}

// Fake authorizer
type fakeAuthorizer struct {
	decision user.Decision
	err      error
	calls    int
}

func (f *fakeAuthorizer) Authorize(ctx context.Context, userID int64, displayName string) (user.Decision, error) {
	f.calls++
	return f.decision, f.err
}

// Fake rate limiter
type fakeLimiter struct {
	decision ratelimit.Decision
	calls    int
}

func (f *fakeLimiter) Check(userID int64) ratelimit.Decision {
	f.calls++
	return f.decision
}

// Fake file gate
type fakeGate struct {
	err    error
	calls  int
	staged *filegate.StagedFile
}

func (f *fakeGate) Stage(data []byte, kind filegate.Kind) (*filegate.StagedFile, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	path := filepath.Join(GinkgoT().TempDir(), "staged.png")
	Expect(os.WriteFile(path, data, 0600)).To(Succeed())
	f.staged = &filegate.StagedFile{Path: path, MIMEType: "image/png", Size: int64(len(data))}
	return f.staged, nil
}

// Fake extraction adapter; errs are consumed one per call, then draft is returned.
type fakeAdapter struct {
	draft *extraction.Draft
	errs  []error
	calls int
}

func (f *fakeAdapter) next() (*extraction.Draft, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	return f.draft, nil
}

func (f *fakeAdapter) ExtractFromImage(ctx context.Context, staged *filegate.StagedFile, comment string) (*extraction.Draft, error) {
	return f.next()
}

func (f *fakeAdapter) ExtractFromVoice(ctx context.Context, staged *filegate.StagedFile, comment string) (*extraction.Draft, error) {
	return f.next()
}

func (f *fakeAdapter) ExtractFromText(ctx context.Context, text, comment string) (*extraction.Draft, error) {
	return f.next()
}

func (f *fakeAdapter) ReviseDraft(ctx context.Context, prior *extraction.Draft, comment string) (*extraction.Draft, error) {
	return f.next()
}

// Fake receipt gateway
type fakeGateway struct {
	receipts  map[int64]*receipt.Receipt
	nextID    int64
	saveErr   error
	mediaRefs map[int64]string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		receipts:  make(map[int64]*receipt.Receipt),
		mediaRefs: make(map[int64]string),
		nextID:    1,
	}
}

func (f *fakeGateway) Save(ctx context.Context, r *receipt.Receipt) (int64, error) {
	if f.saveErr != nil {
		return 0, f.saveErr
	}
	r.ID = f.nextID
	f.nextID++
	copied := *r
	f.receipts[r.ID] = &copied
	return r.ID, nil
}

func (f *fakeGateway) Get(ctx context.Context, userID, receiptID int64) (*receipt.Receipt, error) {
	r, exists := f.receipts[receiptID]
	if !exists {
		return nil, internal.NewNotFoundError("receipt not found", internal.ErrCodeReceiptNotFound)
	}
	if r.UserID != userID {
		return nil, internal.NewForbiddenError("receipt belongs to another user", internal.ErrCodeNotOwner)
	}
	copied := *r
	return &copied, nil
}

func (f *fakeGateway) Update(ctx context.Context, userID int64, r *receipt.Receipt) error {
	if _, err := f.Get(ctx, userID, r.ID); err != nil {
		return err
	}
	copied := *r
	f.receipts[r.ID] = &copied
	return nil
}

func (f *fakeGateway) SetMediaRef(ctx context.Context, userID, receiptID int64, ref string) error {
	if _, err := f.Get(ctx, userID, receiptID); err != nil {
		return err
	}
	f.mediaRefs[receiptID] = ref
	return nil
}

// Fake blob storage
type fakeBlobs struct {
	saveErr error
	saved   map[int64][]byte
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{saved: make(map[int64][]byte)}
}

func (f *fakeBlobs) Save(ctx context.Context, receiptID int64, contentType string, data []byte) (string, error) {
	if f.saveErr != nil {
		return "", f.saveErr
	}
	f.saved[receiptID] = data
	return "media/receipt-1.jpg", nil
}

func (f *fakeBlobs) Get(ctx context.Context, ref string) ([]byte, error) {
	return nil, internal.NewNotFoundError("blob not found", internal.ErrCodeReceiptNotFound)
}

func (f *fakeBlobs) Delete(ctx context.Context, ref string) error {
	return nil
}

func sampleDraft() *extraction.Draft {
	return &extraction.Draft{
		Merchant:    "REWE",
		Category:    "food",
		TotalAmount: decimal.NewFromFloat(12.50),
		Date:        "10-08-2025",
		Positions: []extraction.Position{
			{Description: "Milk", Quantity: decimal.NewFromInt(2), Category: "food", Price: decimal.NewFromFloat(12.50)},
		},
	}
}

var _ = Describe("Workflow", func() {
	var (
		auth    *fakeAuthorizer
		limiter *fakeLimiter
		gate    *fakeGate
		adapter *fakeAdapter
		gateway *fakeGateway
		blobs   *fakeBlobs
		wf      *workflow.Workflow
		ctx     context.Context
	)

	BeforeEach(func() {
		auth = &fakeAuthorizer{decision: user.DecisionAuthorized}
		limiter = &fakeLimiter{decision: ratelimit.Decision{Allowed: true}}
		gate = &fakeGate{}
		adapter = &fakeAdapter{draft: sampleDraft()}
		gateway = newFakeGateway()
		blobs = newFakeBlobs()
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		wf = workflow.New(auth, limiter, gate, adapter, gateway, blobs, nil, workflow.Config{}, logger)
		ctx = context.Background()
	})

	Describe("Submit", func() {
		Context("with a text description", func() {
			It("should return a draft awaiting confirmation", func() {
				outcome, err := wf.Submit(ctx, workflow.Submission{
					UserID:   1,
					Modality: workflow.ModalityText,
					Text:     "coffee for 4.50 at the bakery",
				})

				Expect(err).ToNot(HaveOccurred())
				Expect(outcome.State).To(Equal(workflow.StateAwaitingConfirmation))
				Expect(outcome.Draft).ToNot(BeNil())
				Expect(adapter.calls).To(Equal(1))
				Expect(gate.calls).To(BeZero(), "text input never touches the file gate")
			})
		})

		Context("with an image", func() {
			It("should stage, extract and release the file", func() {
				outcome, err := wf.Submit(ctx, workflow.Submission{
					UserID:   1,
					Modality: workflow.ModalityImage,
					Payload:  []byte("fake image bytes"),
				})

				Expect(err).ToNot(HaveOccurred())
				Expect(outcome.State).To(Equal(workflow.StateAwaitingConfirmation))
				Expect(gate.calls).To(Equal(1))
				Expect(gate.staged.Path).ToNot(BeAnExistingFile(), "staged file must be released")
			})

			It("should abort without calling the adapter when the gate rejects", func() {
				gate.err = internal.NewValidationError("file too large", internal.ErrCodeFileTooLarge)

				outcome, err := wf.Submit(ctx, workflow.Submission{
					UserID:   1,
					Modality: workflow.ModalityImage,
					Payload:  []byte("huge"),
				})

				Expect(err).ToNot(HaveOccurred())
				Expect(outcome.State).To(Equal(workflow.StateAborted))
				Expect(outcome.AbortReason.Code).To(Equal(internal.ErrCodeFileTooLarge))
				Expect(adapter.calls).To(BeZero())
			})
		})

		Context("when the user is not authorized", func() {
			It("should abort pending users before any other work", func() {
				auth.decision = user.DecisionPendingApproval

				outcome, err := wf.Submit(ctx, workflow.Submission{UserID: 1, Modality: workflow.ModalityText, Text: "x"})

				Expect(err).ToNot(HaveOccurred())
				Expect(outcome.State).To(Equal(workflow.StateAborted))
				Expect(outcome.AbortReason.Code).To(Equal(internal.ErrCodePendingApproval))
				Expect(limiter.calls).To(BeZero(), "authorization runs before rate limiting")
				Expect(adapter.calls).To(BeZero())
			})

			It("should abort denied users", func() {
				auth.decision = user.DecisionDenied

				outcome, err := wf.Submit(ctx, workflow.Submission{UserID: 1, Modality: workflow.ModalityText, Text: "x"})

				Expect(err).ToNot(HaveOccurred())
				Expect(outcome.AbortReason.Code).To(Equal(internal.ErrCodeAccessDenied))
			})
		})

		Context("when the user is rate limited", func() {
			It("should abort with the retry-after hint", func() {
				limiter.decision = ratelimit.Decision{Allowed: false, RetryAfterSeconds: 42}

				outcome, err := wf.Submit(ctx, workflow.Submission{UserID: 1, Modality: workflow.ModalityText, Text: "x"})

				Expect(err).ToNot(HaveOccurred())
				Expect(outcome.State).To(Equal(workflow.StateAborted))
				Expect(outcome.AbortReason.Code).To(Equal(internal.ErrCodeRateLimitExceeded))
				Expect(adapter.calls).To(BeZero())
			})
		})

		Context("when extraction fails transiently", func() {
			It("should retry once and succeed", func() {
				adapter.errs = []error{internal.NewAITransientError("model overloaded", nil)}

				outcome, err := wf.Submit(ctx, workflow.Submission{UserID: 1, Modality: workflow.ModalityText, Text: "x"})

				Expect(err).ToNot(HaveOccurred())
				Expect(outcome.State).To(Equal(workflow.StateAwaitingConfirmation))
				Expect(adapter.calls).To(Equal(2))
			})

			It("should give up after the single retry", func() {
				adapter.errs = []error{
					internal.NewAITransientError("model overloaded", nil),
					internal.NewAITransientError("model overloaded", nil),
				}

				outcome, err := wf.Submit(ctx, workflow.Submission{UserID: 1, Modality: workflow.ModalityText, Text: "x"})

				Expect(err).ToNot(HaveOccurred())
				Expect(outcome.State).To(Equal(workflow.StateAborted))
				Expect(outcome.AbortReason.Code).To(Equal(internal.ErrCodeAITransient))
				Expect(adapter.calls).To(Equal(2))
			})
		})

		Context("when extraction fails permanently", func() {
			It("should not retry at all", func() {
				adapter.errs = []error{internal.NewAIPermanentError("gibberish response", nil)}

				outcome, err := wf.Submit(ctx, workflow.Submission{UserID: 1, Modality: workflow.ModalityText, Text: "x"})

				Expect(err).ToNot(HaveOccurred())
				Expect(outcome.State).To(Equal(workflow.StateAborted))
				Expect(outcome.AbortReason.Code).To(Equal(internal.ErrCodeAIPermanent))
				Expect(adapter.calls).To(Equal(1))
			})
		})
	})

	Describe("Confirm", func() {
		It("should persist an approved draft", func() {
			outcome, err := wf.Confirm(ctx, 1, "Alice", workflow.ConfirmInput{Draft: sampleDraft()})

			Expect(err).ToNot(HaveOccurred())
			Expect(outcome.State).To(Equal(workflow.StatePersisted))
			Expect(outcome.ReceiptID).To(BeNumerically(">", 0))
			Expect(gateway.receipts).To(HaveKey(outcome.ReceiptID))
			saved := gateway.receipts[outcome.ReceiptID]
			Expect(saved.ManualTotal).To(BeFalse())
			Expect(saved.TotalAmount.Equal(decimal.NewFromFloat(12.50))).To(BeTrue())
			Expect(saved.PurchaseDate).ToNot(BeNil())
			Expect(saved.Positions).To(HaveLen(1))
		})

		It("should abort when there is nothing to confirm", func() {
			outcome, err := wf.Confirm(ctx, 1, "Alice", workflow.ConfirmInput{})

			Expect(err).ToNot(HaveOccurred())
			Expect(outcome.State).To(Equal(workflow.StateAborted))
			Expect(outcome.AbortReason.Code).To(Equal(internal.ErrCodeInvalidDraft))
		})

		Context("when the total disagrees with the position sum", func() {
			var mismatched *extraction.Draft

			BeforeEach(func() {
				mismatched = sampleDraft()
				mismatched.TotalAmount = decimal.NewFromFloat(20.00)
				mismatched.TotalMismatch = true
			})

			It("should require an explicit override", func() {
				outcome, err := wf.Confirm(ctx, 1, "Alice", workflow.ConfirmInput{Draft: mismatched})

				Expect(err).ToNot(HaveOccurred())
				Expect(outcome.State).To(Equal(workflow.StateAborted))
				Expect(outcome.AbortReason.Code).To(Equal(internal.ErrCodeInvalidDraft))
				Expect(gateway.receipts).To(BeEmpty())
			})

			It("should persist with the manual total flag once overridden", func() {
				outcome, err := wf.Confirm(ctx, 1, "Alice", workflow.ConfirmInput{
					Draft:               mismatched,
					AcceptTotalMismatch: true,
				})

				Expect(err).ToNot(HaveOccurred())
				Expect(outcome.State).To(Equal(workflow.StatePersisted))
				Expect(gateway.receipts[outcome.ReceiptID].ManualTotal).To(BeTrue())
			})
		})

		Context("with attached media", func() {
			It("should store the blob and record its reference", func() {
				outcome, err := wf.Confirm(ctx, 1, "Alice", workflow.ConfirmInput{
					Draft: sampleDraft(),
					Media: &workflow.MediaUpload{ContentType: "image/jpeg", Data: []byte("jpeg bytes")},
				})

				Expect(err).ToNot(HaveOccurred())
				Expect(outcome.State).To(Equal(workflow.StatePersisted))
				Expect(outcome.MediaWarning).To(BeEmpty())
				Expect(blobs.saved).To(HaveKey(outcome.ReceiptID))
				Expect(gateway.mediaRefs).To(HaveKey(outcome.ReceiptID))
			})

			It("should keep the receipt and warn when blob storage fails", func() {
				blobs.saveErr = internal.NewInternalError("bucket unavailable", internal.ErrCodeBlobUploadFailed)

				outcome, err := wf.Confirm(ctx, 1, "Alice", workflow.ConfirmInput{
					Draft: sampleDraft(),
					Media: &workflow.MediaUpload{ContentType: "image/jpeg", Data: []byte("jpeg bytes")},
				})

				Expect(err).ToNot(HaveOccurred())
				Expect(outcome.State).To(Equal(workflow.StatePersisted))
				Expect(outcome.MediaWarning).ToNot(BeEmpty())
				Expect(gateway.receipts).To(HaveKey(outcome.ReceiptID))
				Expect(gateway.mediaRefs).ToNot(HaveKey(outcome.ReceiptID))
			})
		})

		It("should abort when the metadata write fails", func() {
			gateway.saveErr = internal.NewInternalError("failed to save receipt", internal.ErrCodeWriteFailed)

			outcome, err := wf.Confirm(ctx, 1, "Alice", workflow.ConfirmInput{Draft: sampleDraft()})

			Expect(err).ToNot(HaveOccurred())
			Expect(outcome.State).To(Equal(workflow.StateAborted))
			Expect(outcome.AbortReason.Code).To(Equal(internal.ErrCodeWriteFailed))
		})
	})

	Describe("Amend", func() {
		var receiptID int64

		BeforeEach(func() {
			outcome, err := wf.Confirm(ctx, 1, "Alice", workflow.ConfirmInput{
				Draft: sampleDraft(),
				Media: &workflow.MediaUpload{ContentType: "image/jpeg", Data: []byte("jpeg bytes")},
			})
			Expect(err).ToNot(HaveOccurred())
			receiptID = outcome.ReceiptID
		})

		It("should keep the receipt's identity and media", func() {
			revised := sampleDraft()
			revised.Merchant = "Edeka"
			adapter.draft = revised

			outcome, err := wf.Amend(ctx, 1, "Alice", receiptID, "the merchant was Edeka")

			Expect(err).ToNot(HaveOccurred())
			Expect(outcome.State).To(Equal(workflow.StatePersisted))
			Expect(outcome.ReceiptID).To(Equal(receiptID))
			Expect(gateway.receipts[receiptID].Merchant).To(Equal("Edeka"))
			Expect(gateway.receipts).To(HaveLen(1), "no duplicate may be created")
		})

		It("should refuse amending another user's receipt", func() {
			outcome, err := wf.Amend(ctx, 2, "Mallory", receiptID, "make it mine")

			Expect(err).ToNot(HaveOccurred())
			Expect(outcome.State).To(Equal(workflow.StateAborted))
			Expect(outcome.AbortReason.Code).To(Equal(internal.ErrCodeNotOwner))
		})

		It("should abort on an unknown receipt", func() {
			outcome, err := wf.Amend(ctx, 1, "Alice", receiptID+100, "fix it")

			Expect(err).ToNot(HaveOccurred())
			Expect(outcome.State).To(Equal(workflow.StateAborted))
			Expect(outcome.AbortReason.Code).To(Equal(internal.ErrCodeReceiptNotFound))
		})
	})

	Describe("Revise", func() {
		It("should re-extract with the new comment", func() {
			revised := sampleDraft()
			revised.Category = "household"
			adapter.draft = revised

			outcome, err := wf.Revise(ctx, 1, "Alice", sampleDraft(), "that was cleaning supplies")

			Expect(err).ToNot(HaveOccurred())
			Expect(outcome.State).To(Equal(workflow.StateAwaitingConfirmation))
			Expect(outcome.Draft.Category).To(Equal("household"))
		})
	})
})
