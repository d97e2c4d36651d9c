package workflow

import (
	"errors"

	"github.com/prasetya/receiptbot/internal/extraction"
)

// SubmitDTO is the JSON request body for text submissions. Binary
// submissions arrive as multipart forms instead.
type SubmitDTO struct {
	UserID      int64  `json:"user_id"`
	DisplayName string `json:"display_name"`
	Modality    string `json:"modality"`
	Text        string `json:"text,omitempty"`
	Comment     string `json:"comment,omitempty"`
}

func (dto SubmitDTO) Validate() error {
	if dto.UserID == 0 {
		return errors.New("user_id is required")
	}
	switch Modality(dto.Modality) {
	case ModalityText:
		if dto.Text == "" {
			return errors.New("text is required for text submissions")
		}
	case ModalityImage, ModalityVoice:
		return errors.New("binary submissions must be sent as multipart form data")
	default:
		return errors.New("modality must be one of image, voice, text")
	}
	return nil
}

// ReviseDTO asks for a prior draft to be re-extracted with a new comment.
type ReviseDTO struct {
	UserID      int64             `json:"user_id"`
	DisplayName string            `json:"display_name"`
	Draft       *extraction.Draft `json:"draft"`
	Comment     string            `json:"comment"`
}

func (dto ReviseDTO) Validate() error {
	if dto.UserID == 0 {
		return errors.New("user_id is required")
	}
	if dto.Draft == nil {
		return errors.New("draft is required")
	}
	if dto.Comment == "" {
		return errors.New("comment is required")
	}
	return nil
}

// ConfirmDTO carries the user's approval of a draft.
type ConfirmDTO struct {
	UserID              int64             `json:"user_id"`
	DisplayName         string            `json:"display_name"`
	Draft               *extraction.Draft `json:"draft"`
	AcceptTotalMismatch bool              `json:"accept_total_mismatch,omitempty"`
}

func (dto ConfirmDTO) Validate() error {
	if dto.UserID == 0 {
		return errors.New("user_id is required")
	}
	if dto.Draft == nil {
		return errors.New("draft is required")
	}
	return nil
}

// AmendDTO corrects an already-saved receipt with a follow-up comment.
type AmendDTO struct {
	UserID      int64  `json:"user_id"`
	DisplayName string `json:"display_name"`
	Comment     string `json:"comment"`
}

func (dto AmendDTO) Validate() error {
	if dto.UserID == 0 {
		return errors.New("user_id is required")
	}
	if dto.Comment == "" {
		return errors.New("comment is required")
	}
	return nil
}
