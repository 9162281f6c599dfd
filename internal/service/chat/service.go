// Package chat binds the session store, namespace directory, and retrieval
// pipeline into the per-turn request/response cycle. The service holds no
// per-turn state of its own; everything lives in the session store.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"ragchatgo/internal/models"
	"ragchatgo/internal/namespace"
)

// SessionStore is the message-log contract the orchestrator consumes.
type SessionStore interface {
	Append(ctx context.Context, ns, sessionID string, role models.Role, content string) error
	Read(ctx context.Context, ns, sessionID string, limit int) ([]models.Message, error)
	Clear(ctx context.Context, ns, sessionID string) error
	Health(ctx context.Context) bool
}

// Pipeline is the retrieval/synthesis contract.
type Pipeline interface {
	Answer(ctx context.Context, query, ns string, history []models.Message) (*models.TurnResult, error)
}

// NamespaceLister resolves namespace display names.
type NamespaceLister interface {
	List(ctx context.Context) ([]string, error)
}

// Service is the per-turn orchestrator.
type Service struct {
	sessions  SessionStore
	pipeline  Pipeline
	directory NamespaceLister
}

func NewService(sessions SessionStore, pipeline Pipeline, directory NamespaceLister) *Service {
	return &Service{sessions: sessions, pipeline: pipeline, directory: directory}
}

// AddTurn runs one conversational turn: read history, retrieve and
// synthesize, persist the human and assistant messages, re-read the log.
// A retrieval or synthesis failure aborts the turn before any write. Persist
// failures after a successful answer are logged and reported as warnings on
// the result; a lost history write must not hide a correct answer. The
// refresh read is best effort.
func (s *Service) AddTurn(ctx context.Context, ns, sessionID, query string) (*models.TurnResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("query must not be empty")
	}
	if sessionID == "" {
		return nil, errors.New("session_id is required")
	}
	if ns == "" {
		ns = namespace.Default
	}

	history, err := s.sessions.Read(ctx, ns, sessionID, 0)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}

	result, err := s.pipeline.Answer(ctx, query, ns, history)
	if err != nil {
		return nil, err
	}
	result.SessionID = sessionID
	result.Namespace = ns

	if err := s.sessions.Append(ctx, ns, sessionID, models.RoleHuman, query); err != nil {
		log.Error().Err(err).Str("session", sessionID).Msg("persist human message failed")
		result.Warnings = append(result.Warnings, fmt.Sprintf("human message not persisted: %v", err))
	}
	if err := s.sessions.Append(ctx, ns, sessionID, models.RoleAssistant, result.Answer); err != nil {
		log.Error().Err(err).Str("session", sessionID).Msg("persist assistant message failed")
		result.Warnings = append(result.Warnings, fmt.Sprintf("assistant message not persisted: %v", err))
	}

	refreshed, err := s.sessions.Read(ctx, ns, sessionID, 0)
	if err != nil {
		log.Warn().Err(err).Str("session", sessionID).Msg("history refresh failed")
	} else {
		result.History = refreshed
	}
	return result, nil
}

// GetHistory returns the session log in insertion order, oldest first.
func (s *Service) GetHistory(ctx context.Context, ns, sessionID string) ([]models.Message, error) {
	if ns == "" {
		ns = namespace.Default
	}
	return s.sessions.Read(ctx, ns, sessionID, 0)
}

// ClearHistory deletes the session log. Idempotent.
func (s *Service) ClearHistory(ctx context.Context, ns, sessionID string) error {
	if ns == "" {
		ns = namespace.Default
	}
	return s.sessions.Clear(ctx, ns, sessionID)
}

// ListNamespaces returns the display names of namespaces holding documents.
func (s *Service) ListNamespaces(ctx context.Context) ([]string, error) {
	return s.directory.List(ctx)
}

// Ready reports whether the session store can be reached. Readiness only.
func (s *Service) Ready(ctx context.Context) bool {
	return s.sessions.Health(ctx)
}
