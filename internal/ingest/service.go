// Package ingest loads source documents, chunks them, and feeds the vector
// index. It is a thin collaborator of the retrieval core: the core never
// depends on it, only on the index it fills.
package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/document/loader/file"
	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/components/document/parser"
	"github.com/rs/zerolog/log"

	"ragchatgo/internal/embedding"
	"ragchatgo/internal/namespace"
	"ragchatgo/internal/vectorindex"
)

// Service ingests documents into a namespace and keeps the source registry.
type Service struct {
	db       *sql.DB
	index    *vectorindex.Index
	embedder embedding.Embedder
	loader   *file.FileLoader
	splitter document.Transformer
}

// Summary reports one ingested source.
type Summary struct {
	Source string `json:"source"`
	Chunks int    `json:"chunks"`
}

func NewService(db *sql.DB, index *vectorindex.Index, embedder embedding.Embedder, chunkSize, chunkOverlap int) (*Service, error) {
	parserExt, err := parser.NewExtParser(context.Background(), &parser.ExtParserConfig{
		FallbackParser: parser.TextParser{},
	})
	if err != nil {
		return nil, fmt.Errorf("init document parser: %w", err)
	}
	loader, err := file.NewFileLoader(context.Background(), &file.FileLoaderConfig{
		UseNameAsID: true,
		Parser:      parserExt,
	})
	if err != nil {
		return nil, fmt.Errorf("init file loader: %w", err)
	}
	if chunkSize <= 0 {
		chunkSize = 1500
	}
	if chunkOverlap <= 0 {
		chunkOverlap = 300
	}
	splitter, err := newSplitter(context.Background(), chunkSize, chunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("init text splitter: %w", err)
	}
	return &Service{
		db:       db,
		index:    index,
		embedder: embedder,
		loader:   loader,
		splitter: splitter,
	}, nil
}

// AddFiles loads, chunks, embeds, and indexes the given files under the
// namespace. Unsupported file types are skipped with a log line rather than
// failing the batch; a storage or index failure aborts it.
func (s *Service) AddFiles(ctx context.Context, ns string, paths []string) ([]Summary, error) {
	if ns == "" {
		ns = namespace.Default
	}
	encNS := namespace.Encode(ns)

	var summaries []Summary
	for _, path := range paths {
		source := filepath.Base(path)
		switch strings.ToLower(filepath.Ext(path)) {
		case ".txt", ".md":
		default:
			log.Warn().Str("path", path).Msg("unsupported file format, skipping")
			continue
		}

		docs, err := s.loader.Load(ctx, document.Source{URI: path})
		if err != nil {
			return summaries, fmt.Errorf("load %s: %w", source, err)
		}
		var content strings.Builder
		for _, doc := range docs {
			if doc == nil || strings.TrimSpace(doc.Content) == "" {
				continue
			}
			if content.Len() > 0 {
				content.WriteString(" ")
			}
			content.WriteString(strings.ReplaceAll(doc.Content, "\n", " "))
		}

		texts, err := splitText(ctx, s.splitter, content.String())
		if err != nil {
			return summaries, fmt.Errorf("chunk %s: %w", source, err)
		}
		if len(texts) == 0 {
			log.Warn().Str("source", source).Msg("no usable content, skipping")
			continue
		}

		chunks := make([]vectorindex.Chunk, 0, len(texts))
		for _, text := range texts {
			vector, err := s.embedder.Embed(ctx, text)
			if err != nil {
				return summaries, fmt.Errorf("embed chunk of %s: %w", source, err)
			}
			chunks = append(chunks, vectorindex.Chunk{Text: text, Vector: vector})
		}
		// drop any earlier version of this source so a re-ingest replaces
		// its vectors instead of accumulating them
		if _, err := s.index.DeleteBySource(ctx, encNS, source); err != nil {
			return summaries, fmt.Errorf("replace vectors of %s: %w", source, err)
		}
		if err := s.index.Add(ctx, encNS, source, chunks); err != nil {
			return summaries, fmt.Errorf("index %s: %w", source, err)
		}
		if err := s.recordSource(ctx, encNS, source, len(chunks)); err != nil {
			return summaries, err
		}
		log.Info().Str("namespace", ns).Str("source", source).Int("chunks", len(chunks)).Msg("document indexed")
		summaries = append(summaries, Summary{Source: source, Chunks: len(chunks)})
	}
	return summaries, nil
}

// DeleteSource removes a source's vectors and its registry row, returning the
// number of vectors deleted.
func (s *Service) DeleteSource(ctx context.Context, ns, source string) (int, error) {
	if ns == "" {
		ns = namespace.Default
	}
	encNS := namespace.Encode(ns)
	deleted, err := s.index.DeleteBySource(ctx, encNS, source)
	if err != nil {
		return deleted, fmt.Errorf("delete vectors for %s: %w", source, err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE namespace = ? AND source = ?`, encNS, source); err != nil {
		return deleted, fmt.Errorf("delete registry row for %s: %w", source, err)
	}
	return deleted, nil
}

// ListSources returns the registered sources of a namespace.
func (s *Service) ListSources(ctx context.Context, ns string) ([]Summary, error) {
	if ns == "" {
		ns = namespace.Default
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT source, chunks FROM documents WHERE namespace = ? ORDER BY source`,
		namespace.Encode(ns),
	)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sm Summary
		if err := rows.Scan(&sm.Source, &sm.Chunks); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		out = append(out, sm)
	}
	return out, rows.Err()
}

// Health probes the registry database. Readiness only.
func (s *Service) Health(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		log.Error().Err(err).Msg("document registry health check failed")
		return false
	}
	return true
}

func (s *Service) recordSource(ctx context.Context, encNS, source string, chunks int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin registry tx for %s: %w", source, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE namespace = ? AND source = ?`, encNS, source); err != nil {
		return fmt.Errorf("replace registry row for %s: %w", source, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO documents (namespace, source, chunks, created_at) VALUES (?, ?, ?, ?)`,
		encNS, source, chunks, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("record source %s: %w", source, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit registry row for %s: %w", source, err)
	}
	return nil
}
