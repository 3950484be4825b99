package textextract

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/yungbote/verbatim-backend/internal/platform/logger"
)

var ErrUnsupportedType = errors.New("unsupported file type")

type Kind string

const (
	KindText     Kind = "text"
	KindDocument Kind = "document"
	KindAudio    Kind = "audio"
)

// DocumentReader and Transcriber are the cloud collaborators for binary
// uploads. Either may be nil, in which case that kind is rejected.
type DocumentReader interface {
	ExtractText(ctx context.Context, data []byte, mimeType string) (string, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

type Extractor struct {
	log    *logger.Logger
	docs   DocumentReader
	speech Transcriber
}

func NewExtractor(log *logger.Logger, docs DocumentReader, speech Transcriber) *Extractor {
	return &Extractor{log: log.With("service", "TextExtractor"), docs: docs, speech: speech}
}

// KindOf classifies an upload by extension, then by MIME type.
func KindOf(fileName, mimeType string) (Kind, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".txt", ".md", ".text":
		return KindText, nil
	case ".pdf", ".docx", ".doc":
		return KindDocument, nil
	case ".wav", ".mp3", ".flac", ".ogg", ".opus", ".m4a":
		return KindAudio, nil
	}
	m := strings.ToLower(mimeType)
	switch {
	case strings.HasPrefix(m, "text/"):
		return KindText, nil
	case m == "application/pdf", strings.Contains(m, "wordprocessingml"), m == "application/msword":
		return KindDocument, nil
	case strings.HasPrefix(m, "audio/"):
		return KindAudio, nil
	}
	return "", fmt.Errorf("%s (%s): %w", fileName, mimeType, ErrUnsupportedType)
}

// Extract returns the plain text of an uploaded guide or transcript.
func (e *Extractor) Extract(ctx context.Context, fileName, mimeType string, data []byte) (string, error) {
	kind, err := KindOf(fileName, mimeType)
	if err != nil {
		return "", err
	}
	var text string
	switch kind {
	case KindText:
		text, err = DecodeText(data)
	case KindDocument:
		if e.docs == nil {
			return "", fmt.Errorf("%s: document extraction is not configured: %w", fileName, ErrUnsupportedType)
		}
		text, err = e.docs.ExtractText(ctx, data, mimeType)
	case KindAudio:
		if e.speech == nil {
			return "", fmt.Errorf("%s: speech transcription is not configured: %w", fileName, ErrUnsupportedType)
		}
		text, err = e.speech.Transcribe(ctx, data, mimeType)
	}
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%s: %w", fileName, ErrEmptyDocument)
	}
	e.log.Debug("Extracted upload text", "file", fileName, "kind", string(kind), "chars", len(text))
	return text, nil
}
