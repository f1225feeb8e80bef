package embed

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type blockingEmbedder struct {
	*mockEmbedder
	inFlight    atomic.Int64
	maxInFlight atomic.Int64
	release     chan struct{}
}

func newBlockingEmbedder() *blockingEmbedder {
	return &blockingEmbedder{
		mockEmbedder: newMockEmbedder(8),
		release:      make(chan struct{}),
	}
}

func (b *blockingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	n := b.inFlight.Add(1)
	defer b.inFlight.Add(-1)
	for {
		cur := b.maxInFlight.Load()
		if n <= cur || b.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}
	<-b.release
	return b.mockEmbedder.EmbedBatch(ctx, texts)
}

func TestPool_EmbedBatch_BoundsConcurrency(t *testing.T) {
	inner := newBlockingEmbedder()
	pool := NewPool(inner, 2)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := pool.EmbedBatch(context.Background(), []string{"a"})
			assert.NoError(t, err)
		}()
	}

	// Give goroutines a moment to pile up against the semaphore.
	time.Sleep(50 * time.Millisecond)
	close(inner.release)
	wg.Wait()

	assert.LessOrEqual(t, inner.maxInFlight.Load(), int64(2))
	assert.Equal(t, 2, pool.Size())
}

func TestPool_Embed_DelegatesToInner(t *testing.T) {
	inner := newMockEmbedder(4)
	pool := NewPool(inner, 1)

	vec, err := pool.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, inner.returnedVector, vec)
	assert.Equal(t, int64(1), inner.embedCalls.Load())
}

func TestPool_SizeDefaultsToOne(t *testing.T) {
	pool := NewPool(newMockEmbedder(4), 0)
	assert.Equal(t, 1, pool.Size())
}

func TestPool_DelegatesMetadataAndClose(t *testing.T) {
	inner := newMockEmbedder(4)
	pool := NewPool(inner, 3)

	assert.Equal(t, inner.Dimensions(), pool.Dimensions())
	assert.Equal(t, inner.ModelName(), pool.ModelName())
	pool.SetBatchIndex(2)
	pool.SetFinalBatch(true)
	require.NoError(t, pool.Close())
}
