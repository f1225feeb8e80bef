package embed

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Pool wraps an Embedder with a bounded number of concurrent in-flight
// requests, so that many fsproc/vocab producers feeding the Embedding Pool
// cannot overrun the backing provider's own concurrency limit (an Ollama
// server only runs a handful of batches at once before it starts queuing or
// thermal-throttling).
type Pool struct {
	inner Embedder
	sem   *semaphore.Weighted
	size  int64
}

// NewPool wraps embedder with a semaphore sized to size concurrent
// EmbedBatch/Embed calls. size <= 0 defaults to 1 (fully serialized).
func NewPool(embedder Embedder, size int) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{
		inner: embedder,
		sem:   semaphore.NewWeighted(int64(size)),
		size:  int64(size),
	}
}

// Embed acquires a pool slot and delegates to the wrapped embedder.
func (p *Pool) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer p.sem.Release(1)
	return p.inner.Embed(ctx, text)
}

// EmbedBatch acquires a pool slot and delegates to the wrapped embedder.
// A whole batch occupies a single slot: batching is already the unit of
// concurrency control the provider expects.
func (p *Pool) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer p.sem.Release(1)
	return p.inner.EmbedBatch(ctx, texts)
}

// Dimensions delegates to the wrapped embedder.
func (p *Pool) Dimensions() int { return p.inner.Dimensions() }

// ModelName delegates to the wrapped embedder.
func (p *Pool) ModelName() string { return p.inner.ModelName() }

// Available delegates to the wrapped embedder.
func (p *Pool) Available(ctx context.Context) bool { return p.inner.Available(ctx) }

// Close releases the wrapped embedder's resources.
func (p *Pool) Close() error { return p.inner.Close() }

// SetBatchIndex delegates to the wrapped embedder.
func (p *Pool) SetBatchIndex(idx int) { p.inner.SetBatchIndex(idx) }

// SetFinalBatch delegates to the wrapped embedder.
func (p *Pool) SetFinalBatch(isFinal bool) { p.inner.SetFinalBatch(isFinal) }

// Size returns the configured number of concurrent slots.
func (p *Pool) Size() int { return int(p.size) }

var _ Embedder = (*Pool)(nil)
