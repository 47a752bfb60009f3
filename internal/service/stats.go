package service

import (
	"context"
	"errors"

	"github.com/Miguel0728/ChatBot-AI-V2/internal/domain"
)

// GetStats summarizes a session. Unknown sessions report zero counts and no times.
func (s *Service) GetStats(ctx context.Context, sessionID string) (*domain.Stats, error) {
	const op = "get_stats"

	session, err := s.store.GetSession(ctx, sessionID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return &domain.Stats{}, nil
	}
	if err != nil {
		return nil, wrapErr(op, sessionID, err)
	}

	counts, err := s.store.CountMessages(ctx, sessionID)
	if err != nil {
		return nil, wrapErr(op, sessionID, err)
	}

	createdAt := session.CreatedAt
	lastActivity := session.LastActivityAt
	return &domain.Stats{
		TotalMessages:     counts.Total,
		UserMessages:      counts.User,
		AssistantMessages: counts.Assistant,
		TotalTokens:       counts.Tokens,
		CreatedAt:         &createdAt,
		LastActivityAt:    &lastActivity,
	}, nil
}
