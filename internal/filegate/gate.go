package filegate

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/prasetya/receiptbot/internal"
)

// Kind is the declared family of an upload.
type Kind string

const (
	KindImage Kind = "image"
	KindAudio Kind = "audio"
)

// Allowed MIME types per kind, mirroring what the extraction provider accepts.
var allowedTypes = map[Kind]map[string]bool{
	KindImage: {
		"image/jpeg": true,
		"image/png":  true,
		"image/gif":  true,
		"image/webp": true,
	},
	KindAudio: {
		"audio/ogg":  true,
		"audio/mpeg": true,
		"audio/wav":  true,
		"audio/mp4":  true,
	},
}

// StagedFile is a validated upload held in a temp file. The holder must call
// Release exactly once; Release is safe to call more than once.
type StagedFile struct {
	Path     string
	MIMEType string
	Size     int64

	once sync.Once
}

// Release deletes the staged file. Idempotent.
func (f *StagedFile) Release() {
	f.once.Do(func() {
		if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
			slog.Warn("failed to remove staged file", "path", f.Path, "error", err)
		}
	})
}

// Gate validates uploads before anything else touches them: size first,
// then content type sniffed from magic bytes rather than trusted from the
// declared MIME hint.
type Gate struct {
	maxSizeBytes int64
	tempDir      string
	logger       *slog.Logger
}

func NewGate(maxSizeBytes int64, tempDir string, logger *slog.Logger) *Gate {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &Gate{
		maxSizeBytes: maxSizeBytes,
		tempDir:      tempDir,
		logger:       logger,
	}
}

// Stage validates data and writes it to a uniquely named temp file. On any
// failure the partial file is cleaned up before returning.
func (g *Gate) Stage(data []byte, declared Kind) (*StagedFile, error) {
	if len(data) == 0 {
		return nil, internal.NewValidationError("empty upload", internal.ErrCodeEmptyInput)
	}

	if int64(len(data)) > g.maxSizeBytes {
		g.logger.Warn("upload rejected: too large", "size", len(data), "max", g.maxSizeBytes)
		return nil, internal.NewValidationError(
			fmt.Sprintf("file too large, maximum size is %dMB", g.maxSizeBytes>>20),
			internal.ErrCodeFileTooLarge,
		)
	}

	allowed, ok := allowedTypes[declared]
	if !ok {
		return nil, internal.NewValidationError(
			fmt.Sprintf("unsupported upload kind %q", declared),
			internal.ErrCodeUnsupportedType,
		)
	}

	detected := mimetype.Detect(data)
	mime := normalizeMIME(detected.String())
	if !allowed[mime] {
		// Distinguish "we never accept this" from "this is not what you said it was".
		if isKnownType(mime) {
			g.logger.Warn("upload rejected: content mismatch", "declared", declared, "detected", mime)
			return nil, internal.NewValidationError(
				fmt.Sprintf("file content is %s, which does not match the declared %s upload", mime, declared),
				internal.ErrCodeContentMismatch,
			)
		}
		g.logger.Warn("upload rejected: unsupported type", "detected", mime)
		return nil, internal.NewValidationError(
			"unsupported file type, only common image and audio formats are accepted",
			internal.ErrCodeUnsupportedType,
		)
	}

	path := filepath.Join(g.tempDir, uuid.NewString()+detected.Extension())
	if err := os.WriteFile(path, data, 0600); err != nil {
		// best-effort cleanup of whatever made it to disk
		os.Remove(path)
		return nil, fmt.Errorf("staging upload: %w", err)
	}

	g.logger.Debug("upload staged", "path", path, "mime", mime, "size", len(data))

	return &StagedFile{
		Path:     path,
		MIMEType: mime,
		Size:     int64(len(data)),
	}, nil
}

// normalizeMIME folds provider aliases into the canonical types we allow.
func normalizeMIME(mime string) string {
	switch mime {
	case "audio/x-wav", "audio/wave":
		return "audio/wav"
	case "audio/mp3":
		return "audio/mpeg"
	case "video/webm", "audio/webm":
		return "audio/ogg"
	default:
		return mime
	}
}

// isKnownType reports whether mime belongs to any allowed family at all.
func isKnownType(mime string) bool {
	for _, types := range allowedTypes {
		if types[mime] {
			return true
		}
	}
	return false
}
