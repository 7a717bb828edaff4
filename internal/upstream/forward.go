package upstream

import (
	"context"
	"sync"

	"github.com/localai/gateway/internal/models"
)

// YieldFunc receives converted chat chunks; returning false stops forwarding.
type YieldFunc func(models.ChatChunk) bool

// Forward wraps backend-specific streaming logic with a shared channel
// lifecycle: the forward callback invokes yield for every chunk until it
// returns false or the upstream stream is exhausted, and closer is called
// exactly once regardless of which side stops first.
func Forward(ctx context.Context, closer func() error, forward func(ctx context.Context, yield YieldFunc)) (<-chan models.ChatChunk, func() error) {
	chunks := make(chan models.ChatChunk)
	var once sync.Once
	callCloser := func() {
		if closer == nil {
			return
		}
		once.Do(func() { _ = closer() })
	}

	go func() {
		defer close(chunks)
		defer callCloser()

		forward(ctx, func(chunk models.ChatChunk) bool {
			select {
			case <-ctx.Done():
				return false
			case chunks <- chunk:
				return true
			}
		})
	}()

	return chunks, func() error {
		callCloser()
		return nil
	}
}
