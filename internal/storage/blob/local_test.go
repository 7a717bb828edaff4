package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localai/gateway/internal/config"
)

func TestLocalStorePutGetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := newLocalStore(config.ImagesConfig{Dir: dir})
	require.NoError(t, err)

	ctx := context.Background()
	info, err := s.Put(ctx, "1700000000_abc123def456.png", bytes.NewReader([]byte("pngbytes")), PutOptions{ContentType: "image/png"})
	require.NoError(t, err)
	assert.Equal(t, int64(len("pngbytes")), info.Size)

	reader, got, err := s.Get(ctx, "1700000000_abc123def456.png")
	require.NoError(t, err)
	defer reader.Close()
	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, "pngbytes", string(data))
	assert.Equal(t, "image/png", got.ContentType)
}

func TestLocalStoreGetMissingReturnsErrNotFound(t *testing.T) {
	s, err := newLocalStore(config.ImagesConfig{Dir: t.TempDir()})
	require.NoError(t, err)
	_, _, err = s.Get(context.Background(), "missing.png")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLocalStoreRejectsPathTraversal(t *testing.T) {
	s, err := newLocalStore(config.ImagesConfig{Dir: t.TempDir()})
	require.NoError(t, err)
	_, err = s.Put(context.Background(), "../escape.png", bytes.NewReader([]byte("x")), PutOptions{})
	require.Error(t, err)
}

func TestLocalStoreDuplicateWriteIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	s, err := newLocalStore(config.ImagesConfig{Dir: dir})
	require.NoError(t, err)

	ctx := context.Background()
	_, err = s.Put(ctx, "same.png", bytes.NewReader([]byte("bytes")), PutOptions{ContentType: "image/png"})
	require.NoError(t, err)
	_, err = s.Put(ctx, "same.png", bytes.NewReader([]byte("bytes")), PutOptions{ContentType: "image/png"})
	require.NoError(t, err)

	reader, _, err := s.Get(ctx, "same.png")
	require.NoError(t, err)
	defer reader.Close()
	data, _ := io.ReadAll(reader)
	assert.Equal(t, "bytes", string(data))
	assert.FileExists(t, filepath.Join(dir, "same.png"))
}
