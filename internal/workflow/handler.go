package workflow

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi"

	"github.com/prasetya/receiptbot/internal/transport"
	"github.com/prasetya/receiptbot/pkg/logger"
)

// multipart bodies are mostly the receipt photo; cap form memory well above
// the file gate's limit so the gate, not the parser, is what rejects.
const maxMultipartMemory = 32 << 20

type Handler struct {
	*transport.BaseHandler
	Workflow *Workflow
}

func NewHandler(wf *Workflow) *Handler {
	return &Handler{
		BaseHandler: transport.NewBaseHandler(logger.L()),
		Workflow:    wf,
	}
}

// Submit accepts a new receipt input. Text arrives as JSON; image and voice
// arrive as multipart forms with the payload in the "file" part.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		h.submitMultipart(w, r)
		return
	}

	var dto SubmitDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := dto.Validate(); err != nil {
		h.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	outcome, err := h.Workflow.Submit(r.Context(), Submission{
		UserID:      dto.UserID,
		DisplayName: dto.DisplayName,
		Modality:    Modality(dto.Modality),
		Text:        dto.Text,
		Comment:     dto.Comment,
	})
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.writeOutcome(w, outcome)
}

func (h *Handler) submitMultipart(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	userID, err := strconv.ParseInt(r.FormValue("user_id"), 10, 64)
	if err != nil || userID == 0 {
		h.WriteError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	modality := Modality(r.FormValue("modality"))
	if modality != ModalityImage && modality != ModalityVoice {
		h.WriteError(w, http.StatusBadRequest, "modality must be image or voice for file submissions")
		return
	}

	payload, ok := h.readFilePart(w, r, "file")
	if !ok {
		return
	}

	outcome, err := h.Workflow.Submit(r.Context(), Submission{
		UserID:      userID,
		DisplayName: r.FormValue("display_name"),
		Modality:    modality,
		Payload:     payload,
		Comment:     r.FormValue("comment"),
	})
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.writeOutcome(w, outcome)
}

// Revise re-runs extraction over a prior draft with a new user comment.
func (h *Handler) Revise(w http.ResponseWriter, r *http.Request) {
	var dto ReviseDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := dto.Validate(); err != nil {
		h.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	outcome, err := h.Workflow.Revise(r.Context(), dto.UserID, dto.DisplayName, dto.Draft, dto.Comment)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.writeOutcome(w, outcome)
}

// Confirm persists an approved draft. A multipart request may carry the
// original media in the "media" part alongside a "payload" JSON field.
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	var (
		dto   ConfirmDTO
		media *MediaUpload
	)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
			h.WriteError(w, http.StatusBadRequest, "invalid multipart form")
			return
		}
		if err := json.Unmarshal([]byte(r.FormValue("payload")), &dto); err != nil {
			h.WriteError(w, http.StatusBadRequest, "invalid payload field")
			return
		}
		if file, header, err := r.FormFile("media"); err == nil {
			data, readErr := io.ReadAll(file)
			file.Close()
			if readErr != nil {
				h.WriteError(w, http.StatusBadRequest, "could not read media part")
				return
			}
			media = &MediaUpload{
				ContentType: header.Header.Get("Content-Type"),
				Data:        data,
			}
		}
	} else {
		if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
			h.WriteError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	if err := dto.Validate(); err != nil {
		h.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	outcome, err := h.Workflow.Confirm(r.Context(), dto.UserID, dto.DisplayName, ConfirmInput{
		Draft:               dto.Draft,
		AcceptTotalMismatch: dto.AcceptTotalMismatch,
		Media:               media,
	})
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.writeOutcome(w, outcome)
}

// Amend applies a follow-up comment to an already-saved receipt.
func (h *Handler) Amend(w http.ResponseWriter, r *http.Request) {
	receiptID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid receipt ID")
		return
	}

	var dto AmendDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := dto.Validate(); err != nil {
		h.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	outcome, err := h.Workflow.Amend(r.Context(), dto.UserID, dto.DisplayName, receiptID, dto.Comment)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.writeOutcome(w, outcome)
}

func (h *Handler) readFilePart(w http.ResponseWriter, r *http.Request, field string) ([]byte, bool) {
	file, _, err := r.FormFile(field)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, field+" part is required")
		return nil, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "could not read "+field+" part")
		return nil, false
	}
	return data, true
}

// writeOutcome renders an outcome; aborted invocations keep the status code
// of their underlying reason so the bot can relay an honest message.
func (h *Handler) writeOutcome(w http.ResponseWriter, outcome *Outcome) {
	status := http.StatusOK
	if outcome.State == StateAborted && outcome.AbortReason != nil {
		status = outcome.AbortReason.StatusCode
	}
	h.WriteJSON(w, status, outcome)
}
