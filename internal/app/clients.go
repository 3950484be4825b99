package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yungbote/verbatim-backend/internal/observability"
	"github.com/yungbote/verbatim-backend/internal/platform/gcp"
	"github.com/yungbote/verbatim-backend/internal/platform/logger"
	"github.com/yungbote/verbatim-backend/internal/platform/openai"
	"github.com/yungbote/verbatim-backend/internal/platform/qdrant"
	"github.com/yungbote/verbatim-backend/internal/platform/textextract"
	"github.com/yungbote/verbatim-backend/internal/platform/tokens"
	"github.com/yungbote/verbatim-backend/internal/realtime/bus"
)

const tokenEncoding = "cl100k_base"

type Clients struct {
	AI        openai.Client
	Store     gcp.ObjectStore
	Document  gcp.Document
	Speech    gcp.Speech
	Extractor *textextract.Extractor
	Index     qdrant.Index
	Bus       bus.Bus
	Tokens    *tokens.Counter
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config, metrics *observability.Metrics) (Clients, error) {
	log.Info("Wiring clients...")
	var c Clients
	fail := func(err error) (Clients, error) {
		c.Close(log)
		if c.Bus != nil {
			_ = c.Bus.Close()
		}
		return Clients{}, err
	}

	// Redis
	if strings.TrimSpace(cfg.Redis.Addr) != "" {
		b, err := bus.NewRedisBus(log, bus.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Channel:  cfg.Redis.Channel,
		})
		if err != nil {
			return Clients{}, fmt.Errorf("init redis progress bus: %w", err)
		}
		c.Bus = b
	}

	// Openai
	ai, err := openai.New(log, openai.Config{
		APIKey:         cfg.OpenAI.APIKey,
		BaseURL:        cfg.OpenAI.BaseURL,
		Model:          cfg.OpenAI.Model,
		EmbedModel:     cfg.OpenAI.EmbedModel,
		Timeout:        cfg.OpenAI.Timeout,
		MaxRetries:     cfg.OpenAI.MaxRetries,
		Temperature:    cfg.OpenAI.Temperature,
		MaxTokens:      cfg.OpenAI.MaxTokens,
		MaxConcurrent:  cfg.OpenAI.MaxConcurrent,
		DryRun:         cfg.OpenAI.DryRun,
		EmbedDimension: cfg.Qdrant.VectorDim,
	})
	if err != nil {
		return fail(fmt.Errorf("init openai client: %w", err))
	}
	c.AI = instrumentAI(ai, metrics)

	// Gcs
	store, err := resolveObjectStore(ctx, log, cfg)
	if err != nil {
		return fail(err)
	}
	c.Store = store

	// Document AI and Speech back binary uploads; either may be absent.
	var docs textextract.DocumentReader
	if dcfg := documentConfig(cfg); dcfg.Enabled() {
		d, err := gcp.NewDocument(ctx, log, dcfg)
		if err != nil {
			return fail(fmt.Errorf("init document ai: %w", err))
		}
		c.Document = d
		docs = d
	} else {
		log.Warn("Document AI not configured; PDF and DOCX uploads are rejected")
	}
	var speech textextract.Transcriber
	if cfg.Speech.Enabled {
		s, err := gcp.NewSpeech(ctx, log, gcp.SpeechConfig{
			LanguageCode:    cfg.Speech.LanguageCode,
			Model:           cfg.Speech.Model,
			MinSpeakerCount: cfg.Speech.MinSpeakerCount,
			MaxSpeakerCount: cfg.Speech.MaxSpeakerCount,
			Credentials:     cfg.Storage.Credentials,
			MaxRetries:      cfg.OpenAI.MaxRetries,
		})
		if err != nil {
			return fail(fmt.Errorf("init speech: %w", err))
		}
		c.Speech = s
		speech = s
	}
	c.Extractor = textextract.NewExtractor(log, docs, speech)

	// Qdrant
	index, _, err := resolveVerbatimIndex(log, cfg, metrics)
	if err != nil {
		return fail(err)
	}
	c.Index = index

	counter, err := tokens.NewCounter(tokenEncoding)
	if err != nil {
		return fail(fmt.Errorf("init token counter: %w", err))
	}
	c.Tokens = counter
	return c, nil
}

func documentConfig(cfg Config) gcp.DocumentConfig {
	return gcp.DocumentConfig{
		ProjectID:        cfg.DocumentAI.ProjectID,
		Location:         cfg.DocumentAI.Location,
		ProcessorID:      cfg.DocumentAI.ProcessorID,
		ProcessorVersion: cfg.DocumentAI.ProcessorVersion,
		Credentials:      cfg.Storage.Credentials,
	}
}

// Close releases every client that was opened. The progress bus is owned by
// the hub once wired and is closed there.
func (c *Clients) Close(log *logger.Logger) {
	var errs []error
	if c.Store != nil {
		errs = append(errs, c.Store.Close())
	}
	if c.Document != nil {
		errs = append(errs, c.Document.Close())
	}
	if c.Speech != nil {
		errs = append(errs, c.Speech.Close())
	}
	if c.Index != nil {
		errs = append(errs, c.Index.Close())
	}
	if err := errors.Join(errs...); err != nil && log != nil {
		log.Warn("Closing clients", "error", err)
	}
}
