package ingest

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/cloudwego/eino-ext/components/document/transformer/splitter/recursive"
	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/schema"
)

var separators = []string{"\n\n", "\n", " "}

func newSplitter(ctx context.Context, chunkSize, chunkOverlap int) (document.Transformer, error) {
	if chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 5
	}
	return recursive.NewSplitter(ctx, &recursive.Config{
		ChunkSize:   chunkSize,
		OverlapSize: chunkOverlap,
		Separators:  separators,
		LenFunc:     utf8.RuneCountInString,
		KeepType:    recursive.KeepTypeNone,
	})
}

// splitText runs the recursive splitter over one document's text and returns
// the non-blank chunk contents.
func splitText(ctx context.Context, sp document.Transformer, text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	docs, err := sp.Transform(ctx, []*schema.Document{{Content: text}})
	if err != nil {
		return nil, fmt.Errorf("split text: %w", err)
	}
	chunks := make([]string, 0, len(docs))
	for _, doc := range docs {
		if doc == nil || strings.TrimSpace(doc.Content) == "" {
			continue
		}
		chunks = append(chunks, doc.Content)
	}
	return chunks, nil
}
