package storage

import (
	"fmt"
	"strings"
)

// NewStorage creates the artifact store described by cfg.
// Returns nil, nil when no bucket is configured; artifacts then stay local.
func NewStorage(cfg *S3Config) (ObjectStorage, error) {
	if cfg == nil || cfg.Bucket == "" {
		return nil, nil
	}
	if cfg.Type == "" {
		cfg.Type = DetectType(cfg.Endpoint)
	}
	if cfg.Endpoint == "" && cfg.Type != StorageTypeS3 {
		return nil, fmt.Errorf("storage endpoint is required for %s bucket %s", cfg.Type, cfg.Bucket)
	}

	return NewS3Storage(cfg)
}

// DetectType guesses the provider from the endpoint host.
func DetectType(endpoint string) StorageType {
	endpoint = strings.ToLower(endpoint)

	switch {
	case strings.Contains(endpoint, "r2.cloudflarestorage.com"):
		return StorageTypeR2
	case endpoint == "" || strings.Contains(endpoint, "amazonaws.com"):
		return StorageTypeS3
	default:
		return StorageTypeS3Compatible
	}
}
