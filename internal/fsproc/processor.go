package fsproc

import (
	"context"
	"os"
	"sync"

	"github.com/codectx/codectx/internal/apperrors"
	"github.com/codectx/codectx/internal/chunk"
	"golang.org/x/sync/errgroup"
)

// ProcessedFile is one file's chunking output, ready for the Embedding
// Pool and Indexer.
type ProcessedFile struct {
	Path     string
	Language string
	Chunks   []*chunk.Chunk
}

// ProcessResult pairs a ProcessedFile with any per-file error, mirroring
// ScanResult so callers can keep streaming past individual file failures
// (a parse failure on one file must not abort the run).
type ProcessResult struct {
	File  *ProcessedFile
	Error error
}

// Processor reads discovered files from the Scanner and runs them through
// the Syntax Chunker concurrently, bounded by a worker pool.
type Processor struct {
	scanner  *Scanner
	chunkers map[string]chunk.Chunker
	fallback chunk.Chunker
	workers  int
}

// NewProcessor builds a Processor. chunkers maps a DetectLanguage result to
// the Chunker that should handle it; fallback handles every other
// language (typically a line-window chunker).
func NewProcessor(scanner *Scanner, chunkers map[string]chunk.Chunker, fallback chunk.Chunker, workers int) *Processor {
	if workers <= 0 {
		workers = 4
	}
	return &Processor{scanner: scanner, chunkers: chunkers, fallback: fallback, workers: workers}
}

// Run scans opts.RootDir and chunks every discovered file concurrently,
// streaming results on the returned channel. The channel closes once
// every file has been processed or ctx is canceled.
func (p *Processor) Run(ctx context.Context, opts *ScanOptions) (<-chan ProcessResult, error) {
	scanResults, err := p.scanner.Scan(ctx, opts)
	if err != nil {
		return nil, err
	}

	out := make(chan ProcessResult, p.workers*4)

	go func() {
		defer close(out)

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(p.workers)

		var mu sync.Mutex
		emit := func(r ProcessResult) {
			mu.Lock()
			defer mu.Unlock()
			select {
			case out <- r:
			case <-ctx.Done():
			}
		}

		for sr := range scanResults {
			sr := sr
			if sr.Error != nil {
				emit(ProcessResult{Error: sr.Error})
				continue
			}
			file := sr.File
			g.Go(func() error {
				processed, err := p.processOne(gctx, file)
				if err != nil {
					emit(ProcessResult{Error: err})
					return nil
				}
				emit(ProcessResult{File: processed})
				return nil
			})
		}

		_ = g.Wait()
	}()

	return out, nil
}

func (p *Processor) processOne(ctx context.Context, file *FileInfo) (*ProcessedFile, error) {
	content, err := os.ReadFile(file.AbsPath)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindFilesystem, "fsproc.Processor.processOne", err).
			WithDetail("path", file.Path)
	}

	chunker, ok := p.chunkers[file.Language]
	if !ok {
		chunker = p.fallback
	}
	if chunker == nil {
		return &ProcessedFile{Path: file.Path, Language: file.Language}, nil
	}

	chunks, err := chunker.Chunk(ctx, &chunk.FileInput{
		Path:     file.Path,
		Content:  content,
		Language: file.Language,
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindParse, "fsproc.Processor.processOne", err).
			WithDetail("path", file.Path)
	}

	return &ProcessedFile{Path: file.Path, Language: file.Language, Chunks: chunks}, nil
}
