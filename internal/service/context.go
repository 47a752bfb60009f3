package service

import (
	"context"

	"github.com/Miguel0728/ChatBot-AI-V2/internal/domain"
)

// BuildModelContext returns at most limit messages for the completion call:
// the system message first, then the limit-1 most recent user and assistant
// messages in order. A limit <= 0 returns the whole conversation.
func (s *Service) BuildModelContext(ctx context.Context, sessionID string, limit int) ([]domain.ContextMessage, error) {
	const op = "build_model_context"

	release, err := s.locks.acquire(ctx, sessionID)
	if err != nil {
		return nil, wrapErr(op, sessionID, err)
	}
	defer release()

	msgs, err := s.buildModelContext(ctx, sessionID, limit)
	if err != nil {
		err = wrapErr(op, sessionID, err)
		s.logFailure(op, sessionID, err)
		return nil, err
	}
	return msgs, nil
}

func (s *Service) buildModelContext(ctx context.Context, sessionID string, limit int) ([]domain.ContextMessage, error) {
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	if err := s.ensureSeed(ctx, s.store, sessionID); err != nil {
		return nil, err
	}

	seed, err := s.store.SystemMessage(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	out := []domain.ContextMessage{{Role: seed.Role, Content: seed.Content}}
	if limit == 1 {
		return out, nil
	}

	recentLimit := 0
	if limit > 1 {
		recentLimit = limit - 1
	}
	recent, err := s.store.HistoryFiltered(ctx, sessionID, domain.ConversationRoles, recentLimit)
	if err != nil {
		return nil, err
	}
	for _, m := range recent {
		out = append(out, domain.ContextMessage{Role: m.Role, Content: m.Content})
	}
	return out, nil
}
