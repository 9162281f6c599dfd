// Package rag turns a user query plus conversation history into a
// namespace-scoped similarity search, an assembled prompt, and a synthesized
// answer with source attribution.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"ragchatgo/internal/embedding"
	"ragchatgo/internal/models"
	"ragchatgo/internal/namespace"
)

var (
	// ErrRetrievalUnavailable reports that the indexed store (or the
	// embedding function in front of it) could not be reached.
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")

	// ErrSynthesisUnavailable reports that the answer-synthesis model could
	// not be reached or returned a malformed response.
	ErrSynthesisUnavailable = errors.New("answer synthesis unavailable")
)

// SearchIndex is the similarity-search capability consumed from the indexed
// store. The namespace argument is the encoded partition key.
type SearchIndex interface {
	Search(ctx context.Context, ns string, vector []float32, k, fetchK int) ([]models.Passage, error)
}

// ChatModel is the narrow slice of the eino chat model the pipeline needs.
type ChatModel interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// Options are the retrieval knobs.
type Options struct {
	TopK   int
	FetchK int
	// ScoreThreshold filters retrieved passages. Nil means the default 0.3;
	// an explicit zero keeps every candidate.
	ScoreThreshold *float64
	AnswerLanguage string
}

// Service is the retrieval pipeline. Stateless; safe for concurrent turns.
type Service struct {
	chatModel ChatModel
	embedder  embedding.Embedder
	index     SearchIndex
	opts      Options
	threshold float64
}

func NewService(chatModel ChatModel, embedder embedding.Embedder, index SearchIndex, opts Options) *Service {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.FetchK <= 0 {
		opts.FetchK = 8
	}
	threshold := 0.3
	if opts.ScoreThreshold != nil {
		threshold = *opts.ScoreThreshold
	}
	if opts.AnswerLanguage == "" {
		opts.AnswerLanguage = "Arabic"
	}
	return &Service{chatModel: chatModel, embedder: embedder, index: index, opts: opts, threshold: threshold}
}

const promptTemplate = `You are a professional and knowledgeable assistant helping users retrieve information from a document collection.

### Context:
%s

### Instructions:
- Answer in %s.
- Answer strictly based on the provided context.
- Do not make assumptions or fabricate information.
- Be concise, accurate, and neutral.
- If the context includes multiple relevant facts, summarize them clearly.
- If the answer can be summarized in bullet points then do it.
- If the user shows any signs of gratitude (like saying thanks, for instance), reply nicely.
- If the context contains nothing relevant, say that no information was found.`

// Answer runs one retrieval turn: embed the query, search the namespace,
// assemble the prompt, synthesize once. Zero passages above the threshold is
// not an error; the model is instructed to say nothing was found. Either
// backend being unreachable aborts the turn with no partial result.
func (s *Service) Answer(ctx context.Context, query, ns string, history []models.Message) (*models.TurnResult, error) {
	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %v", ErrRetrievalUnavailable, err)
	}

	candidates, err := s.index.Search(ctx, namespace.Encode(ns), vector, s.opts.TopK, s.opts.FetchK)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRetrievalUnavailable, err)
	}

	passages := make([]models.Passage, 0, len(candidates))
	for _, p := range candidates {
		if p.Score >= s.threshold {
			passages = append(passages, p)
		}
	}

	messages := s.buildMessages(query, passages, history)
	resp, err := s.chatModel.Generate(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSynthesisUnavailable, err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return nil, fmt.Errorf("%w: empty model response", ErrSynthesisUnavailable)
	}

	return &models.TurnResult{
		Answer:    resp.Content,
		Passages:  passages,
		Namespace: ns,
	}, nil
}

// buildMessages assembles the single synthesis call: instructions plus
// retrieved context as the system message, the full session history oldest
// first (the model's own context policy decides what to keep), then the raw
// query.
func (s *Service) buildMessages(query string, passages []models.Passage, history []models.Message) []*schema.Message {
	var contextBlock strings.Builder
	for i, p := range passages {
		if i > 0 {
			contextBlock.WriteString("\n\n")
		}
		contextBlock.WriteString(p.Text)
	}

	messages := make([]*schema.Message, 0, len(history)+2)
	messages = append(messages, &schema.Message{
		Role:    schema.System,
		Content: fmt.Sprintf(promptTemplate, contextBlock.String(), s.opts.AnswerLanguage),
	})
	for _, msg := range history {
		role := schema.User
		if msg.Role == models.RoleAssistant {
			role = schema.Assistant
		}
		messages = append(messages, &schema.Message{
			Role:    role,
			Content: msg.Content,
		})
	}
	messages = append(messages, &schema.Message{
		Role:    schema.User,
		Content: query,
	})
	return messages
}
