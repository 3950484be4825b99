package gcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"google.golang.org/api/option"
	"google.golang.org/protobuf/types/known/fieldmaskpb"

	"github.com/yungbote/verbatim-backend/internal/platform/ctxutil"
	"github.com/yungbote/verbatim-backend/internal/platform/logger"
)

type DocumentConfig struct {
	ProjectID        string
	Location         string
	ProcessorID      string
	ProcessorVersion string
	Credentials      string
}

func (c DocumentConfig) Enabled() bool {
	return strings.TrimSpace(c.ProjectID) != "" && strings.TrimSpace(c.ProcessorID) != ""
}

// Document turns binary documents (PDF, DOCX) into plain text.
type Document interface {
	ExtractText(ctx context.Context, data []byte, mimeType string) (string, error)
	Close() error
}

type documentService struct {
	log    *logger.Logger
	cfg    DocumentConfig
	client *documentai.DocumentProcessorClient
}

func NewDocument(ctx context.Context, log *logger.Logger, cfg DocumentConfig) (Document, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("documentai: project_id and processor_id are required")
	}
	if cfg.Location == "" {
		cfg.Location = "us"
	}
	slog := log.With("service", "gcp.Document")
	endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", cfg.Location)

	opts := append([]option.ClientOption{option.WithEndpoint(endpoint)}, ClientOptions(cfg.Credentials)...)
	c, err := documentai.NewDocumentProcessorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("documentai client: %w", err)
	}
	slog.Info("Document AI initialized", "endpoint", endpoint, "processor", cfg.ProcessorID)
	return &documentService{log: slog, cfg: cfg, client: c}, nil
}

func (s *documentService) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *documentService) ExtractText(ctx context.Context, data []byte, mimeType string) (string, error) {
	ctx, cancel := context.WithTimeout(ctxutil.Default(ctx), 3*time.Minute)
	defer cancel()

	if len(data) == 0 {
		return "", nil
	}
	if mimeType == "" {
		mimeType = "application/pdf"
	}
	name := processorName(s.cfg.ProjectID, s.cfg.Location, s.cfg.ProcessorID, s.cfg.ProcessorVersion)
	req := &documentaipb.ProcessRequest{
		Name: name,
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  data,
				MimeType: mimeType,
			},
		},
		FieldMask: &fieldmaskpb.FieldMask{Paths: []string{"text"}},
	}
	resp, err := s.client.ProcessDocument(ctx, req)
	if err != nil {
		return "", fmt.Errorf("documentai ProcessDocument: %w", err)
	}
	if resp == nil || resp.Document == nil {
		return "", nil
	}
	s.log.Debug("Document processed", "mime_type", mimeType, "chars", len(resp.Document.Text))
	return resp.Document.Text, nil
}

func processorName(project, location, processorID, version string) string {
	name := fmt.Sprintf("projects/%s/locations/%s/processors/%s", project, location, processorID)
	if strings.TrimSpace(version) != "" {
		name += "/processorVersions/" + version
	}
	return name
}
