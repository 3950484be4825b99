package qdrant

import (
	"fmt"
	"strings"
)

type Config struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
	VectorDim  int
}

func (c Config) Enabled() bool { return strings.TrimSpace(c.Host) != "" }

type ConfigErrorCode string

const (
	ConfigErrorMissingHost       ConfigErrorCode = "missing_host"
	ConfigErrorInvalidPort       ConfigErrorCode = "invalid_port"
	ConfigErrorMissingCollection ConfigErrorCode = "missing_collection"
	ConfigErrorInvalidVectorDim  ConfigErrorCode = "invalid_vector_dim"
)

type ConfigError struct {
	Code  ConfigErrorCode
	Value string
}

func (e *ConfigError) Error() string {
	if e == nil {
		return "invalid qdrant config"
	}
	switch e.Code {
	case ConfigErrorMissingHost:
		return "QDRANT_HOST is required"
	case ConfigErrorInvalidPort:
		return fmt.Sprintf("invalid QDRANT_PORT=%q; expected the gRPC port, usually 6334", e.Value)
	case ConfigErrorMissingCollection:
		return "QDRANT_COLLECTION is required"
	case ConfigErrorInvalidVectorDim:
		return fmt.Sprintf("invalid QDRANT_VECTOR_DIM=%q; expected positive integer", e.Value)
	default:
		return "invalid qdrant config"
	}
}

func ValidateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.Host) == "" {
		return &ConfigError{Code: ConfigErrorMissingHost}
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return &ConfigError{Code: ConfigErrorInvalidPort, Value: fmt.Sprint(cfg.Port)}
	}
	if strings.TrimSpace(cfg.Collection) == "" {
		return &ConfigError{Code: ConfigErrorMissingCollection}
	}
	if cfg.VectorDim <= 0 {
		return &ConfigError{Code: ConfigErrorInvalidVectorDim, Value: fmt.Sprint(cfg.VectorDim)}
	}
	return nil
}
