package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateCollection_ExistsAfterCreate(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	require.NoError(t, s.CreateCollection(ctx, CollectionConfig{Name: "c1", DenseDimensions: 4}))

	exists, err := s.CollectionExists(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestUpsertPoints_RejectsDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	require.NoError(t, s.CreateCollection(ctx, CollectionConfig{Name: "c1", DenseDimensions: 4}))

	err := s.UpsertPoints(ctx, "c1", []Point{{ID: "a", Dense: []float32{1, 2, 3}}})
	require.Error(t, err)
	var mismatch ErrDimensionMismatch
	assert.ErrorAs(t, err, &mismatch)
}

func TestQuery_ReturnsClosestDenseMatch(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	require.NoError(t, s.CreateCollection(ctx, CollectionConfig{Name: "c1", DenseDimensions: 3}))

	require.NoError(t, s.UpsertPoints(ctx, "c1", []Point{
		{ID: "a", Dense: []float32{1, 0, 0}, Payload: map[string]string{"tenant_id": "t1"}},
		{ID: "b", Dense: []float32{0, 1, 0}, Payload: map[string]string{"tenant_id": "t1"}},
	}))

	results, err := s.Query(ctx, "c1", QueryRequest{DenseVector: []float32{1, 0, 0}, TopK: 1})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
}

func TestQuery_FiltersByPayload(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	require.NoError(t, s.CreateCollection(ctx, CollectionConfig{Name: "c1", DenseDimensions: 2}))

	require.NoError(t, s.UpsertPoints(ctx, "c1", []Point{
		{ID: "a", Dense: []float32{1, 0}, Payload: map[string]string{"tenant_id": "t1"}},
		{ID: "b", Dense: []float32{1, 0}, Payload: map[string]string{"tenant_id": "t2"}},
	}))

	results, err := s.Query(ctx, "c1", QueryRequest{
		DenseVector: []float32{1, 0},
		TopK:        10,
		Filter:      map[string]string{"tenant_id": "t2"},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].ID)
}

func TestQuery_HybridFusesSparseAndDense(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	require.NoError(t, s.CreateCollection(ctx, CollectionConfig{Name: "c1", DenseDimensions: 2}))

	require.NoError(t, s.UpsertPoints(ctx, "c1", []Point{
		{ID: "a", Dense: []float32{1, 0}, Sparse: map[uint32]float32{7: 3}},
		{ID: "b", Dense: []float32{0, 1}, Sparse: map[uint32]float32{7: 1}},
	}))

	results, err := s.Query(ctx, "c1", QueryRequest{
		DenseVector:  []float32{0, 1},
		SparseVector: map[uint32]float32{7: 1},
		TopK:         2,
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	// Dense ranks b first and sparse ranks a first, so both fuse to
	// 1/61 + 1/62; the tie is broken by ascending ID.
	assert.Equal(t, "a", results[0].ID)
}

func TestDeletePoints_RemovesFromFutureQueries(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	require.NoError(t, s.CreateCollection(ctx, CollectionConfig{Name: "c1", DenseDimensions: 2}))
	require.NoError(t, s.UpsertPoints(ctx, "c1", []Point{{ID: "a", Dense: []float32{1, 0}}}))

	require.NoError(t, s.DeletePoints(ctx, "c1", []string{"a"}))

	info, err := s.GetCollectionInfo(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 0, info.PointCount)
}

func TestSaveAndLoadCollection_RoundTrips(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := NewInMemoryStore()
	require.NoError(t, s.CreateCollection(ctx, CollectionConfig{Name: "c1", DenseDimensions: 2}))
	require.NoError(t, s.UpsertPoints(ctx, "c1", []Point{
		{ID: "a", Dense: []float32{1, 0}, Payload: map[string]string{"branch": "main"}},
	}))

	require.NoError(t, s.SaveCollection("c1", dir))

	restored := NewInMemoryStore()
	require.NoError(t, restored.LoadCollection("c1", dir))

	info, err := restored.GetCollectionInfo(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, info.PointCount)

	results, err := restored.Query(ctx, "c1", QueryRequest{DenseVector: []float32{1, 0}, TopK: 1})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "main", results[0].Payload["branch"])
}

func TestGetCollectionInfo_UnknownCollectionErrors(t *testing.T) {
	s := NewInMemoryStore()
	_, err := s.GetCollectionInfo(context.Background(), "missing")
	require.Error(t, err)
	var notFound ErrCollectionNotFound
	assert.ErrorAs(t, err, &notFound)
}
