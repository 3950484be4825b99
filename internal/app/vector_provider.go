package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/yungbote/verbatim-backend/internal/observability"
	"github.com/yungbote/verbatim-backend/internal/platform/logger"
	"github.com/yungbote/verbatim-backend/internal/platform/qdrant"
)

var newQdrantIndex = qdrant.New

type VectorProvider string

const (
	VectorProviderQdrant VectorProvider = "qdrant"
	VectorProviderMemory VectorProvider = "memory"
)

type VectorProviderBootstrapErrorCode string

const (
	VectorProviderBootstrapErrorMissingQdrantHost   VectorProviderBootstrapErrorCode = "missing_qdrant_host"
	VectorProviderBootstrapErrorInvalidQdrantPort   VectorProviderBootstrapErrorCode = "invalid_qdrant_port"
	VectorProviderBootstrapErrorMissingQdrantColl   VectorProviderBootstrapErrorCode = "missing_qdrant_collection"
	VectorProviderBootstrapErrorInvalidQdrantVector VectorProviderBootstrapErrorCode = "invalid_qdrant_vector_dim"
	VectorProviderBootstrapErrorQdrantConfigFailed  VectorProviderBootstrapErrorCode = "qdrant_config_failed"
	VectorProviderBootstrapErrorConnectFailed       VectorProviderBootstrapErrorCode = "connect_failed"
)

type VectorProviderBootstrapError struct {
	Code     VectorProviderBootstrapErrorCode
	Provider VectorProvider
	Cause    error
}

func (e *VectorProviderBootstrapError) Error() string {
	if e == nil {
		return "vector provider bootstrap failed"
	}
	return fmt.Sprintf("vector provider bootstrap failed (code=%s provider=%q): %v", e.Code, e.Provider, e.Cause)
}

func (e *VectorProviderBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// resolveVerbatimIndex returns the Qdrant index when a host is configured and
// the in-process index otherwise. The result is wrapped with metrics.
func resolveVerbatimIndex(log *logger.Logger, cfg Config, metrics *observability.Metrics) (qdrant.Index, VectorProvider, error) {
	qcfg := qdrant.Config{
		Host:       strings.TrimSpace(cfg.Qdrant.Host),
		Port:       cfg.Qdrant.Port,
		APIKey:     cfg.Qdrant.APIKey,
		UseTLS:     cfg.Qdrant.UseTLS,
		Collection: strings.TrimSpace(cfg.Qdrant.Collection),
		VectorDim:  cfg.Qdrant.VectorDim,
	}
	if !qcfg.Enabled() {
		log.Warn("QDRANT_HOST not set; similar-verbatim search uses the in-process index")
		return instrumentIndex(VectorProviderMemory, qdrant.NewMemoryIndex(), metrics), VectorProviderMemory, nil
	}

	log.Info(
		"Selecting vector store provider",
		"provider", VectorProviderQdrant,
		"qdrant_host", qcfg.Host,
		"qdrant_port", qcfg.Port,
		"qdrant_collection", qcfg.Collection,
		"qdrant_vector_dim", qcfg.VectorDim,
	)
	if err := qdrant.ValidateConfig(qcfg); err != nil {
		classified := classifyVectorProviderBootstrapError(err)
		log.Error("Vector store provider selection failed", "error_code", vectorProviderBootstrapErrorCode(classified), "error", err)
		return nil, "", classified
	}
	ix, err := newQdrantIndex(log, qcfg)
	if err != nil {
		classified := &VectorProviderBootstrapError{
			Code:     VectorProviderBootstrapErrorConnectFailed,
			Provider: VectorProviderQdrant,
			Cause:    err,
		}
		log.Error("Vector store provider bootstrap failed", "error_code", classified.Code, "error", err)
		return nil, "", classified
	}
	return instrumentIndex(VectorProviderQdrant, ix, metrics), VectorProviderQdrant, nil
}

func classifyVectorProviderBootstrapError(err error) error {
	code := VectorProviderBootstrapErrorQdrantConfigFailed
	var qerr *qdrant.ConfigError
	if errors.As(err, &qerr) {
		switch qerr.Code {
		case qdrant.ConfigErrorMissingHost:
			code = VectorProviderBootstrapErrorMissingQdrantHost
		case qdrant.ConfigErrorInvalidPort:
			code = VectorProviderBootstrapErrorInvalidQdrantPort
		case qdrant.ConfigErrorMissingCollection:
			code = VectorProviderBootstrapErrorMissingQdrantColl
		case qdrant.ConfigErrorInvalidVectorDim:
			code = VectorProviderBootstrapErrorInvalidQdrantVector
		}
	}
	return &VectorProviderBootstrapError{Code: code, Provider: VectorProviderQdrant, Cause: err}
}

func vectorProviderBootstrapErrorCode(err error) VectorProviderBootstrapErrorCode {
	var bootstrapErr *VectorProviderBootstrapError
	if errors.As(err, &bootstrapErr) && bootstrapErr.Code != "" {
		return bootstrapErr.Code
	}
	return VectorProviderBootstrapErrorConnectFailed
}
