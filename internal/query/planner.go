// Package query implements the search-time planner: resolve a repository
// and branch to a collection, embed the query text, run a hybrid
// dense+sparse search against the vector store, and project the raw hits
// into ranked results.
package query

import (
	"context"
	"strconv"
	"strings"

	"github.com/codectx/codectx/internal/apperrors"
	"github.com/codectx/codectx/internal/collection"
	"github.com/codectx/codectx/internal/config"
	"github.com/codectx/codectx/internal/embed"
	"github.com/codectx/codectx/internal/tenant"
	"github.com/codectx/codectx/internal/vectorstore"
	"github.com/codectx/codectx/internal/vocab"
)

// previewMaxChars caps the rendered preview line; longer lines are cut and
// marked with an ellipsis rather than spilling the full first line.
const previewMaxChars = 120

// RepoInfo is what the Planner needs to know about a repository to
// resolve a search request against it.
type RepoInfo struct {
	ID            string
	TenantID      string
	DefaultBranch string
}

// RepoResolver looks up repository identity, owned by the sync/reposync
// layer's repository registry.
type RepoResolver interface {
	Resolve(ctx context.Context, repoID string) (*RepoInfo, error)
}

// Request is one semantic_code_search call.
type Request struct {
	TenantID    string
	RepoID      string
	Branch      string // empty means the repo's default branch
	Query       string
	TopK        int
	Language    string // optional payload filter
	ElementType string // optional payload filter, e.g. "function"
	ShowCode    bool   // when true, Result.Content is populated
}

// Result is one ranked hit, ready to render to a caller.
type Result struct {
	ChunkID     string
	Score       float32
	FilePath    string
	Language    string
	ElementType string
	StartLine   int    // 1-indexed, inclusive
	EndLine     int    // exclusive
	Preview     string // first line of the chunk, truncated
	Content     string // full chunk content; only set when ShowCode was requested
}

// Planner implements the query-time half of the pipeline.
type Planner struct {
	repos     RepoResolver
	tenancy   config.TenancyConfig
	embedder  embed.Embedder
	vocabulary *vocab.Manager
	store     vectorstore.Store
}

// New builds a Planner from its collaborators.
func New(repos RepoResolver, tenancy config.TenancyConfig, embedder embed.Embedder, vocabulary *vocab.Manager, store vectorstore.Store) *Planner {
	return &Planner{repos: repos, tenancy: tenancy, embedder: embedder, vocabulary: vocabulary, store: store}
}

// Search runs the planner's resolve -> embed -> fetch -> project pipeline.
func (p *Planner) Search(ctx context.Context, req Request) ([]Result, error) {
	// 1. Resolve the repository.
	repo, err := p.repos.Resolve(ctx, req.RepoID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindNotFound, "query.Planner.Search", err).
			WithDetail("repo_id", req.RepoID)
	}

	// 2. Tenant isolation check: the caller's tenant must own this repo.
	requester := tenant.Resolve(p.tenancy, req.TenantID)
	if err := tenant.CheckAccess(p.tenancy, repo.TenantID, requester); err != nil {
		return nil, err
	}

	// 3. Resolve the branch.
	branch := req.Branch
	if branch == "" {
		branch = repo.DefaultBranch
	}

	// 4. Compute the collection name.
	collName := collection.NameForTenant(p.tenancy, requester, repo.ID, branch)

	// 5. Build the payload filter. branch is mandatory so a search never
	// leaks hits indexed against another branch of the same collection;
	// language and element_type are optional narrowing filters.
	filter := map[string]string{"branch": branch}
	if req.Language != "" {
		filter["language"] = req.Language
	}
	if req.ElementType != "" {
		filter["element_type"] = req.ElementType
	}

	// 6. Embed the query text.
	dense, err := p.embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindEmbedding, "query.Planner.Search", err)
	}
	sparse := p.vocabulary.InternAll(vocab.Tokenize(req.Query))

	topK := req.TopK
	if topK <= 0 {
		topK = 10
	}

	// 7. Hybrid search against the vector store.
	hits, err := p.store.Query(ctx, collName, vectorstore.QueryRequest{
		DenseVector:  dense,
		SparseVector: sparse,
		TopK:         topK,
		Filter:       filter,
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindVectorStore, "query.Planner.Search", err).
			WithDetail("collection", collName)
	}

	// 8. Project to the caller-facing result shape.
	results := make([]Result, len(hits))
	for i, h := range hits {
		endLine, _ := strconv.Atoi(h.Payload["end_line"])
		startLine, _ := strconv.Atoi(h.Payload["start_line"])
		content := h.Payload["chunk_content"]

		results[i] = Result{
			ChunkID:     h.ID,
			Score:       h.Score,
			FilePath:    h.Payload["file_path"],
			Language:    h.Payload["language"],
			ElementType: h.Payload["element_type"],
			StartLine:   startLine,
			EndLine:     endLine + 1, // payload end_line is inclusive; Result.EndLine is exclusive
			Preview:     preview(content),
		}
		if req.ShowCode {
			results[i].Content = content
		}
	}
	return results, nil
}

// preview renders content's first line, truncated to previewMaxChars with
// an ellipsis marker if it was cut short.
func preview(content string) string {
	line := content
	if idx := strings.IndexByte(content, '\n'); idx != -1 {
		line = content[:idx]
	}
	if len(line) <= previewMaxChars {
		return line
	}
	return line[:previewMaxChars] + "…"
}
