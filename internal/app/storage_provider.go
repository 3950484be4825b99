package app

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/yungbote/verbatim-backend/internal/platform/gcp"
	"github.com/yungbote/verbatim-backend/internal/platform/logger"
)

var newObjectStore = gcp.NewObjectStore

type StorageProviderBootstrapErrorCode string

const (
	StorageProviderBootstrapErrorInvalidMode         StorageProviderBootstrapErrorCode = "invalid_mode"
	StorageProviderBootstrapErrorMissingBucket       StorageProviderBootstrapErrorCode = "missing_bucket"
	StorageProviderBootstrapErrorMissingEmulatorHost StorageProviderBootstrapErrorCode = "missing_emulator_host"
	StorageProviderBootstrapErrorInvalidEmulatorHost StorageProviderBootstrapErrorCode = "invalid_emulator_host"
	StorageProviderBootstrapErrorConnectFailed       StorageProviderBootstrapErrorCode = "connect_failed"
)

type StorageProviderBootstrapError struct {
	Code         StorageProviderBootstrapErrorCode
	Mode         string
	EmulatorHost string
	Cause        error
}

func (e *StorageProviderBootstrapError) Error() string {
	if e == nil {
		return "object storage bootstrap failed"
	}
	return fmt.Sprintf(
		"object storage bootstrap failed (code=%s mode=%q emulator_host=%q): %v",
		e.Code,
		e.Mode,
		e.EmulatorHost,
		e.Cause,
	)
}

func (e *StorageProviderBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// resolveObjectStore picks the upload store for cfg.Storage.Mode. An empty
// mode keeps uploads in memory.
func resolveObjectStore(ctx context.Context, log *logger.Logger, cfg Config) (gcp.ObjectStore, error) {
	storageCfg := gcp.StorageConfig{
		Mode:         gcp.StorageMode(strings.TrimSpace(cfg.Storage.Mode)),
		Bucket:       strings.TrimSpace(cfg.Storage.Bucket),
		EmulatorHost: strings.TrimSpace(cfg.Storage.EmulatorHost),
		Credentials:  strings.TrimSpace(cfg.Storage.Credentials),
	}
	if storageCfg.Mode == "" {
		storageCfg.Mode = gcp.StorageModeMemory
	}

	if err := precheckStorageConfig(storageCfg); err != nil {
		log.Error(
			"Object storage provider selection failed",
			"mode", storageCfg.Mode,
			"bucket", storageCfg.Bucket,
			"emulator_host", storageCfg.EmulatorHost,
			"error_code", storageProviderBootstrapErrorCode(err),
			"error", err,
		)
		return nil, err
	}

	log.Info(
		"Selecting object storage provider",
		"mode", storageCfg.Mode,
		"bucket", storageCfg.Bucket,
		"emulator_host", storageCfg.EmulatorHost,
	)

	store, err := newObjectStore(ctx, log, storageCfg)
	if err != nil {
		classified := &StorageProviderBootstrapError{
			Code:         StorageProviderBootstrapErrorConnectFailed,
			Mode:         string(storageCfg.Mode),
			EmulatorHost: storageCfg.EmulatorHost,
			Cause:        err,
		}
		log.Error(
			"Object storage provider bootstrap failed",
			"mode", storageCfg.Mode,
			"error_code", classified.Code,
			"error", err,
		)
		return nil, classified
	}
	return store, nil
}

func precheckStorageConfig(cfg gcp.StorageConfig) error {
	fail := func(code StorageProviderBootstrapErrorCode, cause error) error {
		return &StorageProviderBootstrapError{
			Code:         code,
			Mode:         string(cfg.Mode),
			EmulatorHost: cfg.EmulatorHost,
			Cause:        cause,
		}
	}
	switch cfg.Mode {
	case gcp.StorageModeMemory:
		return nil
	case gcp.StorageModeGCS, gcp.StorageModeGCSEmulator:
	default:
		return fail(StorageProviderBootstrapErrorInvalidMode, fmt.Errorf("unsupported object storage mode %q", cfg.Mode))
	}
	if cfg.Bucket == "" {
		return fail(StorageProviderBootstrapErrorMissingBucket, errors.New("GCS_BUCKET is required"))
	}
	if cfg.Mode != gcp.StorageModeGCSEmulator {
		return nil
	}
	if cfg.EmulatorHost == "" {
		return fail(StorageProviderBootstrapErrorMissingEmulatorHost, errors.New("STORAGE_EMULATOR_HOST is required"))
	}
	if u, err := url.Parse(cfg.EmulatorHost); err != nil || u.Scheme == "" || u.Host == "" {
		return fail(StorageProviderBootstrapErrorInvalidEmulatorHost, fmt.Errorf("expected absolute URL like http://fake-gcs:4443, got %q", cfg.EmulatorHost))
	}
	return nil
}

func storageProviderBootstrapErrorCode(err error) StorageProviderBootstrapErrorCode {
	var bootstrapErr *StorageProviderBootstrapError
	if errors.As(err, &bootstrapErr) {
		if bootstrapErr.Code != "" {
			return bootstrapErr.Code
		}
	}
	return StorageProviderBootstrapErrorConnectFailed
}
