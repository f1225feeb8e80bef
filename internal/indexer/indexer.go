// Package indexer drives the end-to-end ingestion pipeline: it pulls
// chunked files from the Syntax Chunker, builds sparse term-frequency
// vectors through the Vocabulary Manager, computes dense vectors through
// the Embedding Pool, and upserts the resulting hybrid points into a
// repository/branch-scoped vector-store collection.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/codectx/codectx/internal/apperrors"
	"github.com/codectx/codectx/internal/collection"
	"github.com/codectx/codectx/internal/config"
	"github.com/codectx/codectx/internal/embed"
	"github.com/codectx/codectx/internal/fsproc"
	"github.com/codectx/codectx/internal/vectorstore"
	"github.com/codectx/codectx/internal/vocab"
	"golang.org/x/sync/semaphore"
)

// Options identifies which collection an indexing run targets and which
// root directory it scans.
type Options struct {
	TenantID string
	RepoID   string
	Branch   string
	RootDir  string

	// CommitHash identifies the commit opts.RootDir is checked out at. Only
	// meaningful for IndexRepoFiles; IndexPaths leaves it empty since it has
	// no repository context to report.
	CommitHash string

	// ProgressFunc, if set, is called after each upsert batch completes.
	ProgressFunc func(filesProcessed, chunksIndexed int)
}

// Stats summarizes one indexing run.
type Stats struct {
	FilesScanned  int
	FilesIndexed  int
	FilesFailed   int
	ChunksIndexed int
}

// Indexer wires together the pipeline stages.
type Indexer struct {
	processor   *fsproc.Processor
	vocabulary  *vocab.Manager
	embedder    embed.Embedder
	store       vectorstore.Store
	collections *collection.Manager
	tenancy     config.TenancyConfig
	storeCfg    config.StoreConfig
}

// New builds an Indexer from its collaborators.
func New(processor *fsproc.Processor, vocabulary *vocab.Manager, embedder embed.Embedder, store vectorstore.Store, collections *collection.Manager, tenancy config.TenancyConfig, storeCfg config.StoreConfig) *Indexer {
	return &Indexer{
		processor:   processor,
		vocabulary:  vocabulary,
		embedder:    embedder,
		store:       store,
		collections: collections,
		tenancy:     tenancy,
		storeCfg:    storeCfg,
	}
}

// IndexPaths scans opts.RootDir, chunks every discoverable file, and
// upserts the resulting hybrid points into the collection for
// opts.TenantID/opts.RepoID/opts.Branch. It has no repository context, so
// payload points carry no branch or commit_hash: a vocabulary-persist
// failure here is logged and demoted to a warning rather than failing the
// run, since arbitrary-path scans aren't expected to track repo identity.
func (ix *Indexer) IndexPaths(ctx context.Context, opts Options) (*Stats, error) {
	return ix.index(ctx, opts, false)
}

// IndexRepoFiles indexes opts.RootDir within a known repository context:
// opts.Branch and opts.CommitHash are threaded into every point's payload.
// A vocabulary-persist failure here is returned as a hard error, since a
// repo sync that can't persist its vocabulary has left the collection in an
// inconsistent, unrecoverable-without-reindex state.
func (ix *Indexer) IndexRepoFiles(ctx context.Context, opts Options) (*Stats, error) {
	return ix.index(ctx, opts, true)
}

func (ix *Indexer) index(ctx context.Context, opts Options, repoContext bool) (*Stats, error) {
	op := "indexer.IndexPaths"
	if repoContext {
		op = "indexer.IndexRepoFiles"
	}

	collName := collection.NameForTenant(ix.tenancy, opts.TenantID, opts.RepoID, opts.Branch)

	if err := ix.collections.Ensure(ctx, collName, ix.embedder.Dimensions()); err != nil {
		return nil, err
	}

	results, err := ix.processor.Run(ctx, &fsproc.ScanOptions{RootDir: opts.RootDir})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindFilesystem, op, err)
	}

	stats := &Stats{}
	batchSize := ix.storeCfg.UpsertBatchSize
	if batchSize <= 0 {
		batchSize = 128
	}
	concurrency := ix.storeCfg.UpsertConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	sem := semaphore.NewWeighted(int64(concurrency))

	var pending []*fsproc.ProcessedFile
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		batch := pending
		pending = nil

		if err := sem.Acquire(ctx, 1); err != nil {
			return err
		}
		defer sem.Release(1)

		n, err := ix.upsertFiles(ctx, collName, batch, opts, repoContext)
		stats.ChunksIndexed += n
		if opts.ProgressFunc != nil {
			opts.ProgressFunc(stats.FilesScanned, stats.ChunksIndexed)
		}
		return err
	}

	for r := range results {
		stats.FilesScanned++
		if r.Error != nil {
			stats.FilesFailed++
			slog.Warn("file processing failed", slog.String("error", r.Error.Error()))
			continue
		}
		if r.File == nil || len(r.File.Chunks) == 0 {
			continue
		}
		pending = append(pending, r.File)
		stats.FilesIndexed++

		if countChunks(pending) >= batchSize {
			if err := flush(); err != nil {
				return stats, apperrors.Wrap(apperrors.KindVectorStore, op, err)
			}
		}
	}
	if err := flush(); err != nil {
		return stats, apperrors.Wrap(apperrors.KindVectorStore, op, err)
	}

	if err := ix.vocabulary.Save(); err != nil {
		if !repoContext {
			slog.Warn("vocabulary persist failed", slog.String("error", err.Error()))
			return stats, nil
		}
		return stats, err
	}

	return stats, nil
}

func countChunks(files []*fsproc.ProcessedFile) int {
	n := 0
	for _, f := range files {
		n += len(f.Chunks)
	}
	return n
}

// upsertFiles embeds and upserts every chunk across files, returning the
// number of chunks successfully indexed. Every point's payload carries the
// full reserved-key set (file_path, start_line, end_line, language,
// file_extension, element_type, chunk_content); branch and commit_hash are
// added only when opts identifies a repository context.
func (ix *Indexer) upsertFiles(ctx context.Context, collName string, files []*fsproc.ProcessedFile, opts Options, repoContext bool) (int, error) {
	var texts []string
	var meta []pointMeta

	for _, f := range files {
		for _, ch := range f.Chunks {
			texts = append(texts, ch.Content)
			meta = append(meta, pointMeta{
				id:          ch.ID,
				filePath:    ch.FilePath,
				language:    ch.Language,
				content:     ch.Content,
				startLine:   ch.StartLine,
				endLine:     ch.EndLine,
				elementType: string(ch.ElementType),
			})
		}
	}
	if len(texts) == 0 {
		return 0, nil
	}

	vectors, err := ix.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.KindEmbedding, "indexer.upsertFiles", err)
	}
	if len(vectors) != len(texts) {
		return 0, apperrors.New(apperrors.KindEmbedding, "indexer.upsertFiles",
			fmt.Sprintf("embedder returned %d vectors for %d texts", len(vectors), len(texts)), nil)
	}

	points := make([]vectorstore.Point, len(texts))
	for i, m := range meta {
		sparse := ix.vocabulary.InternAll(vocab.Tokenize(m.content))
		payload := map[string]string{
			"file_path":      m.filePath,
			"start_line":     fmt.Sprintf("%d", m.startLine),
			"end_line":       fmt.Sprintf("%d", m.endLine),
			"language":       m.language,
			"file_extension": strings.TrimPrefix(filepath.Ext(m.filePath), "."),
			"element_type":   m.elementType,
			"chunk_content":  m.content,
		}
		if repoContext {
			payload["branch"] = opts.Branch
			payload["commit_hash"] = opts.CommitHash
		}
		points[i] = vectorstore.Point{
			ID:      m.id,
			Dense:   vectors[i],
			Sparse:  sparse,
			Payload: payload,
		}
	}

	if err := ix.store.UpsertPoints(ctx, collName, points); err != nil {
		return 0, apperrors.Wrap(apperrors.KindVectorStore, "indexer.upsertFiles", err).
			WithDetail("collection", collName)
	}

	return len(points), nil
}

type pointMeta struct {
	id          string
	filePath    string
	language    string
	content     string
	startLine   int
	endLine     int
	elementType string
}

// RemoveChunks deletes the given chunk IDs from the given collection.
// Chunk IDs aren't tracked outside the vector store, so the caller is
// expected to have listed them via a prior query/listing step;
// RemoveChunks is a thin wrapper kept here so reposync/sync callers don't
// need to reach into vectorstore directly.
func (ix *Indexer) RemoveChunks(ctx context.Context, collName string, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	if err := ix.store.DeletePoints(ctx, collName, chunkIDs); err != nil {
		return apperrors.Wrap(apperrors.KindVectorStore, "indexer.RemoveChunks", err).
			WithDetail("collection", collName)
	}
	return nil
}
