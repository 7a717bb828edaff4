// Package blob stores generated image bytes content-addressed, behind a
// small Store interface with local-disk and S3 implementations.
package blob

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/localai/gateway/internal/config"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("blob: not found")

type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

type ObjectInfo struct {
	Key         string
	Size        int64
	ContentType string
	Metadata    map[string]string
}

// Store persists and serves content-addressed image bytes.
type Store interface {
	Put(ctx context.Context, key string, body io.Reader, opts PutOptions) (ObjectInfo, error)
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}

// New builds the configured Store implementation.
func New(ctx context.Context, cfg config.ImagesConfig) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Storage)) {
	case "s3":
		awsCfg, err := loadS3Config(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return newS3Store(cfg, awsCfg)
	default:
		return newLocalStore(cfg)
	}
}
