package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/coder/hnsw"
)

// rrfConstant is the Reciprocal Rank Fusion smoothing constant used to
// combine the dense and sparse candidate rankings, matching the industry
// default (Azure AI Search, OpenSearch) the rest of the pack also uses.
const rrfConstant = 60

type posting struct {
	id    string
	count float32
}

type collection struct {
	mu  sync.RWMutex
	cfg CollectionConfig

	graph *hnsw.Graph[uint64]

	idToKey map[string]uint64
	keyToID map[uint64]string
	nextKey uint64

	payload map[string]map[string]string
	sparse  map[string]map[uint32]float32 // point id -> sparse vector, for re-derivable postings
	index   map[uint32][]posting          // token id -> postings list
}

func newCollection(cfg CollectionConfig) *collection {
	if cfg.Metric == "" {
		cfg.Metric = "cos"
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 40
	}

	graph := hnsw.NewGraph[uint64]()
	switch cfg.Metric {
	case "l2":
		graph.Distance = hnsw.EuclideanDistance
	default:
		graph.Distance = hnsw.CosineDistance
	}
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &collection{
		cfg:     cfg,
		graph:   graph,
		idToKey: make(map[string]uint64),
		keyToID: make(map[uint64]string),
		payload: make(map[string]map[string]string),
		sparse:  make(map[string]map[uint32]float32),
		index:   make(map[uint32][]posting),
	}
}

// InMemoryStore is the reference vectorstore.Store implementation: one
// coder/hnsw dense graph and one inverted index per collection, held in
// process memory with no persistence of its own (persistence is the
// caller's responsibility via SaveCollection/LoadCollection).
type InMemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

// NewInMemoryStore constructs an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{collections: make(map[string]*collection)}
}

func (s *InMemoryStore) CollectionExists(ctx context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.collections[name]
	return ok, nil
}

func (s *InMemoryStore) GetCollectionInfo(ctx context.Context, name string) (*CollectionInfo, error) {
	s.mu.RLock()
	c, ok := s.collections[name]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrCollectionNotFound{Name: name}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return &CollectionInfo{
		Name:            name,
		DenseDimensions: c.cfg.DenseDimensions,
		PointCount:      len(c.idToKey),
	}, nil
}

func (s *InMemoryStore) CreateCollection(ctx context.Context, cfg CollectionConfig) error {
	if cfg.Name == "" {
		return fmt.Errorf("vectorstore: collection name must not be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[cfg.Name] = newCollection(cfg)
	return nil
}

func (s *InMemoryStore) DeleteCollection(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections, name)
	return nil
}

func (s *InMemoryStore) getCollection(name string) (*collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return nil, ErrCollectionNotFound{Name: name}
	}
	return c, nil
}

func (s *InMemoryStore) UpsertPoints(ctx context.Context, collectionName string, points []Point) error {
	c, err := s.getCollection(collectionName)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, p := range points {
		if len(p.Dense) != c.cfg.DenseDimensions {
			return ErrDimensionMismatch{Collection: collectionName, Expected: c.cfg.DenseDimensions, Got: len(p.Dense)}
		}

		// Lazy-delete any existing point under this ID before re-adding:
		// orphan the mapping instead of calling graph.Delete, which dodges a
		// coder/hnsw bug when deleting the graph's last node.
		if existingKey, exists := c.idToKey[p.ID]; exists {
			delete(c.keyToID, existingKey)
			c.removeFromIndex(p.ID)
		}

		vec := make([]float32, len(p.Dense))
		copy(vec, p.Dense)
		if c.cfg.Metric != "l2" {
			normalize(vec)
		}

		key := c.nextKey
		c.nextKey++
		c.graph.Add(hnsw.MakeNode(key, vec))

		c.idToKey[p.ID] = key
		c.keyToID[key] = p.ID
		c.payload[p.ID] = p.Payload
		c.sparse[p.ID] = p.Sparse

		for tokenID, count := range p.Sparse {
			c.index[tokenID] = append(c.index[tokenID], posting{id: p.ID, count: count})
		}
	}

	return nil
}

// removeFromIndex drops id from every postings list it appears on. Called
// while c.mu is already held.
func (c *collection) removeFromIndex(id string) {
	old := c.sparse[id]
	for tokenID := range old {
		postings := c.index[tokenID]
		for i, p := range postings {
			if p.id == id {
				c.index[tokenID] = append(postings[:i], postings[i+1:]...)
				break
			}
		}
	}
	delete(c.sparse, id)
	delete(c.payload, id)
}

func (s *InMemoryStore) DeletePoints(ctx context.Context, collectionName string, ids []string) error {
	c, err := s.getCollection(collectionName)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range ids {
		if key, exists := c.idToKey[id]; exists {
			delete(c.keyToID, key)
			delete(c.idToKey, id)
			c.removeFromIndex(id)
		}
	}
	return nil
}

func (s *InMemoryStore) Query(ctx context.Context, collectionName string, req QueryRequest) ([]SearchResult, error) {
	c, err := s.getCollection(collectionName)
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	topK := req.TopK
	if topK <= 0 {
		topK = 10
	}

	denseRanked := c.searchDense(req.DenseVector, topK*4)
	sparseRanked := c.searchSparse(req.SparseVector, topK*4)

	fused := fuseRRF(denseRanked, sparseRanked)

	results := make([]SearchResult, 0, topK)
	for _, f := range fused {
		if !matchesFilter(c.payload[f.id], req.Filter) {
			continue
		}
		results = append(results, SearchResult{ID: f.id, Score: f.score, Payload: c.payload[f.id]})
		if len(results) >= topK {
			break
		}
	}

	return results, nil
}

type rankedID struct {
	id    string
	score float64
}

// searchDense returns up to k nearest neighbors by dense cosine/L2 distance.
func (c *collection) searchDense(query []float32, k int) []rankedID {
	if len(query) == 0 || c.graph.Len() == 0 {
		return nil
	}

	q := make([]float32, len(query))
	copy(q, query)
	if c.cfg.Metric != "l2" {
		normalize(q)
	}

	nodes := c.graph.Search(q, k)
	out := make([]rankedID, 0, len(nodes))
	for _, n := range nodes {
		id, ok := c.keyToID[n.Key]
		if !ok {
			continue
		}
		distance := c.graph.Distance(q, n.Value)
		out = append(out, rankedID{id: id, score: float64(1 - distance/2)})
	}
	return out
}

// searchSparse scores candidates by raw term-frequency dot product against
// the query's sparse vector, returning the top k by score.
func (c *collection) searchSparse(query map[uint32]float32, k int) []rankedID {
	if len(query) == 0 {
		return nil
	}

	scores := make(map[string]float64)
	for tokenID, weight := range query {
		for _, p := range c.index[tokenID] {
			scores[p.id] += float64(weight) * float64(p.count)
		}
	}

	out := make([]rankedID, 0, len(scores))
	for id, score := range scores {
		out = append(out, rankedID{id: id, score: score})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].score > out[j].score })
	if len(out) > k {
		out = out[:k]
	}
	return out
}

type fusedID struct {
	id    string
	score float32
}

// fuseRRF combines two ranked candidate lists via Reciprocal Rank Fusion:
// score(d) = sum(1/(rrfConstant+rank_i)) across the lists d appears in.
func fuseRRF(dense, sparse []rankedID) []fusedID {
	scores := make(map[string]float64, len(dense)+len(sparse))
	for rank, r := range dense {
		scores[r.id] += 1.0 / float64(rrfConstant+rank+1)
	}
	for rank, r := range sparse {
		scores[r.id] += 1.0 / float64(rrfConstant+rank+1)
	}

	out := make([]fusedID, 0, len(scores))
	for id, score := range scores {
		out = append(out, fusedID{id: id, score: float32(score)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return out[i].id < out[j].id
	})
	return out
}

func matchesFilter(payload map[string]string, filter map[string]string) bool {
	for k, v := range filter {
		if payload[k] != v {
			return false
		}
	}
	return true
}

func normalize(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}

func (s *InMemoryStore) Close() error {
	return nil
}

var _ Store = (*InMemoryStore)(nil)
