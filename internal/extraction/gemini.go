package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/prasetya/receiptbot/internal"
	"github.com/prasetya/receiptbot/internal/filegate"
)

// Gemini implements the Adapter interface against Google Gemini. All four
// operations are single multimodal calls; voice notes go straight to the
// model rather than through a separate transcription step.
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
	logger *slog.Logger
	now    func() time.Time
}

func NewGemini(ctx context.Context, apiKey, modelName string, logger *slog.Logger) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = internal.DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &Gemini{
		client: client,
		model:  client.GenerativeModel(modelName),
		logger: logger,
		now:    time.Now,
	}, nil
}

func (g *Gemini) Close() error {
	return g.client.Close()
}

func (g *Gemini) ExtractFromImage(ctx context.Context, staged *filegate.StagedFile, comment string) (*Draft, error) {
	data, err := os.ReadFile(staged.Path)
	if err != nil {
		return nil, internal.NewAIPermanentError("staged image is no longer readable", err)
	}

	parts := []genai.Part{
		genai.Blob{MIMEType: staged.MIMEType, Data: data},
		genai.Text(imagePrompt(comment, g.now())),
	}

	return g.generateDraft(ctx, "image", comment, parts)
}

func (g *Gemini) ExtractFromVoice(ctx context.Context, staged *filegate.StagedFile, comment string) (*Draft, error) {
	data, err := os.ReadFile(staged.Path)
	if err != nil {
		return nil, internal.NewAIPermanentError("staged voice note is no longer readable", err)
	}

	parts := []genai.Part{
		genai.Blob{MIMEType: staged.MIMEType, Data: data},
		genai.Text(voicePrompt(comment, g.now())),
	}

	return g.generateDraft(ctx, "voice", comment, parts)
}

func (g *Gemini) ExtractFromText(ctx context.Context, text, comment string) (*Draft, error) {
	if strings.TrimSpace(text) == "" {
		return nil, internal.NewAIPermanentError("text input is empty", nil)
	}

	parts := []genai.Part{genai.Text(textPrompt(text, comment, g.now()))}
	return g.generateDraft(ctx, "text", comment, parts)
}

func (g *Gemini) ReviseDraft(ctx context.Context, prior *Draft, comment string) (*Draft, error) {
	originalJSON, err := json.Marshal(prior)
	if err != nil {
		return nil, internal.NewAIPermanentError("could not encode prior draft", err)
	}

	parts := []genai.Part{genai.Text(revisePrompt(string(originalJSON), comment, g.now()))}
	return g.generateDraft(ctx, "revise", comment, parts)
}

func (g *Gemini) generateDraft(ctx context.Context, operation, comment string, parts []genai.Part) (*Draft, error) {
	start := g.now()
	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, g.classify(operation, err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, internal.NewAITransientError("AI service returned an empty response", nil)
	}

	var out strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			out.WriteString(string(text))
		}
	}

	draft, err := ParseDraft(stripCodeFences(out.String()))
	if err != nil {
		g.logger.Error("gemini returned unparseable draft", "operation", operation, "error", err)
		return nil, err
	}
	draft.Comment = comment

	g.logger.Info("extraction complete",
		"operation", operation,
		"merchant", draft.Merchant,
		"positions", len(draft.Positions),
		"elapsed", g.now().Sub(start).Round(100*time.Millisecond))

	return draft, nil
}

// classify normalizes provider failures into the two-way taxonomy. Quota,
// server-side and timeout failures are transient; everything else means the
// request itself was bad and retrying the same input will not help.
func (g *Gemini) classify(operation string, err error) error {
	g.logger.Error("gemini request failed", "operation", operation, "error", err)

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return internal.NewAITransientError("AI service timed out", err)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return internal.NewAITransientError("AI service is temporarily unavailable", err)
		default:
			return internal.NewAIPermanentError("AI service rejected the request", err)
		}
	}

	// Unclassified network-level failures are worth one retry.
	return internal.NewAITransientError("AI service request failed", err)
}
