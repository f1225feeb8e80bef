// Package vectorstore defines the contract every hybrid vector store
// backend must satisfy and ships an in-process reference
// implementation on top of coder/hnsw for dense vectors and an inverted
// index for the raw term-frequency sparse vector.
package vectorstore

import "context"

// Point is a single hybrid vector with its payload. Dense and Sparse are
// named vectors on the same point, mirroring the wire contract: a point
// carries both "dense" (cosine ANN) and "sparse_tf" (raw term frequency,
// no IDF applied at ingest).
type Point struct {
	ID      string
	Dense   []float32
	Sparse  map[uint32]float32
	Payload map[string]string
}

// CollectionConfig describes a collection's vector schema.
type CollectionConfig struct {
	Name              string
	DenseDimensions   int
	Metric            string // "cos" or "l2", defaults to "cos"
	M                 int    // HNSW M parameter
	EfConstruction    int    // HNSW ef_construction
	EfSearch          int    // HNSW ef_search
	OnDisk            bool
	PayloadIndexKeys  []string // keys that should be indexed for filtering
}

// CollectionInfo reports a collection's current shape, used by the
// Collection Manager to detect dimension drift.
type CollectionInfo struct {
	Name            string
	DenseDimensions int
	PointCount      int
}

// QueryRequest is a hybrid search request against one collection.
type QueryRequest struct {
	DenseVector  []float32
	SparseVector map[uint32]float32
	TopK         int
	// Filter restricts results to points whose payload matches every
	// key/value pair exactly (tenant_id, repo_id, branch, ...).
	Filter map[string]string
}

// SearchResult is one hybrid search hit, score already fused.
type SearchResult struct {
	ID      string
	Score   float32
	Payload map[string]string
}

// Store is the vector-store contract the rest of the pipeline depends on.
// It is satisfied by the in-process reference implementation in this
// package; a production deployment may instead talk to a networked vector
// database behind the same interface.
type Store interface {
	CollectionExists(ctx context.Context, name string) (bool, error)
	GetCollectionInfo(ctx context.Context, name string) (*CollectionInfo, error)
	CreateCollection(ctx context.Context, cfg CollectionConfig) error
	DeleteCollection(ctx context.Context, name string) error
	UpsertPoints(ctx context.Context, collection string, points []Point) error
	DeletePoints(ctx context.Context, collection string, ids []string) error
	Query(ctx context.Context, collection string, req QueryRequest) ([]SearchResult, error)
	Close() error
}

// ErrDimensionMismatch is returned when a vector's length doesn't match
// the collection's configured dimensionality.
type ErrDimensionMismatch struct {
	Collection string
	Expected   int
	Got        int
}

func (e ErrDimensionMismatch) Error() string {
	return "vectorstore: dimension mismatch in collection " + e.Collection
}

// ErrCollectionNotFound is returned by operations against an unknown collection.
type ErrCollectionNotFound struct {
	Name string
}

func (e ErrCollectionNotFound) Error() string {
	return "vectorstore: collection not found: " + e.Name
}
