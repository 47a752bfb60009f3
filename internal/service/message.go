package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Miguel0728/ChatBot-AI-V2/internal/domain"
	"github.com/Miguel0728/ChatBot-AI-V2/internal/policy"
	"github.com/Miguel0728/ChatBot-AI-V2/internal/repository"
)

// SubmitUserMessage stores a user message, creating the session if needed.
// Blank or policy-blocked text is rejected without touching storage.
func (s *Service) SubmitUserMessage(ctx context.Context, sessionID, text string) (*domain.Message, error) {
	const op = "submit_user_message"

	release, err := s.locks.acquire(ctx, sessionID)
	if err != nil {
		return nil, wrapErr(op, sessionID, err)
	}
	defer release()

	msg, err := s.submitUserMessage(ctx, sessionID, text)
	if err != nil {
		err = wrapErr(op, sessionID, err)
		s.logFailure(op, sessionID, err)
		return nil, err
	}
	return msg, nil
}

func (s *Service) submitUserMessage(ctx context.Context, sessionID, text string) (*domain.Message, error) {
	content := strings.TrimSpace(text)
	if content == "" {
		return nil, domain.ErrEmptyMessage
	}
	if err := s.checkPolicy(ctx, sessionID, content); err != nil {
		return nil, err
	}
	if _, err := s.ensureSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.appendAndTouch(ctx, sessionID, domain.RoleUser, content, 0)
}

func (s *Service) checkPolicy(ctx context.Context, sessionID, content string) error {
	if s.policy == nil {
		return nil
	}
	decision, err := s.policy.Evaluate(ctx, policy.Input{
		SessionID:     sessionID,
		Role:          string(domain.RoleUser),
		ContentLength: len([]rune(content)),
		MaxChars:      s.config.MaxMessageChars,
	})
	if err != nil {
		return domain.NewError(domain.KindInternal, "check_policy", sessionID, err)
	}
	if !decision.Allowed() {
		if decision.Reason != "" {
			return fmt.Errorf("%w: %s", domain.ErrMessageBlocked, decision.Reason)
		}
		return domain.ErrMessageBlocked
	}
	return nil
}

// RecordAssistantReply stores an assistant reply for the session.
func (s *Service) RecordAssistantReply(ctx context.Context, sessionID, text string, tokensUsed int) (*domain.Message, error) {
	const op = "record_assistant_reply"

	release, err := s.locks.acquire(ctx, sessionID)
	if err != nil {
		return nil, wrapErr(op, sessionID, err)
	}
	defer release()

	msg, err := s.recordAssistantReply(ctx, sessionID, text, tokensUsed)
	if err != nil {
		err = wrapErr(op, sessionID, err)
		s.logFailure(op, sessionID, err)
		return nil, err
	}
	return msg, nil
}

func (s *Service) recordAssistantReply(ctx context.Context, sessionID, text string, tokensUsed int) (*domain.Message, error) {
	if _, err := s.ensureSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.appendAndTouch(ctx, sessionID, domain.RoleAssistant, text, tokensUsed)
}

func (s *Service) appendAndTouch(ctx context.Context, sessionID string, role domain.Role, content string, tokens int) (*domain.Message, error) {
	var msg *domain.Message
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		msg, err = tx.AppendMessage(ctx, sessionID, role, content, tokens)
		if err != nil {
			return err
		}
		return tx.TouchSession(ctx, sessionID)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordMessage(string(role))
	s.logger.Debug("message appended",
		"session_id", sessionID,
		"role", string(role),
		"seq", msg.Seq,
		"length", len([]rune(content)),
	)
	return msg, nil
}

// ClearConversation deletes every non-system message of the session.
// Clearing an unknown session is a no-op.
func (s *Service) ClearConversation(ctx context.Context, sessionID string) error {
	const op = "clear_conversation"

	release, err := s.locks.acquire(ctx, sessionID)
	if err != nil {
		return wrapErr(op, sessionID, err)
	}
	defer release()

	var deleted int64
	var found bool
	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		if _, err := tx.GetSession(ctx, sessionID); err != nil {
			if errors.Is(err, domain.ErrSessionNotFound) {
				return nil
			}
			return err
		}
		found = true
		var err error
		deleted, err = tx.DeleteNonSystem(ctx, sessionID)
		if err != nil {
			return err
		}
		return tx.TouchSession(ctx, sessionID)
	})
	if err != nil {
		err = wrapErr(op, sessionID, err)
		s.logFailure(op, sessionID, err)
		return err
	}
	if found {
		s.metrics.RecordClear()
		s.logger.Info("conversation cleared", "session_id", sessionID, "messages_deleted", deleted)
	}
	return nil
}

// GetDisplayHistory returns the most recent user and assistant messages.
// Unknown sessions have an empty history.
func (s *Service) GetDisplayHistory(ctx context.Context, sessionID string, limit int) ([]domain.DisplayMessage, error) {
	msgs, err := s.store.HistoryFiltered(ctx, sessionID, domain.ConversationRoles, limit)
	if err != nil {
		return nil, wrapErr("get_display_history", sessionID, err)
	}

	history := make([]domain.DisplayMessage, len(msgs))
	for i, m := range msgs {
		history[i] = domain.DisplayMessage{
			Role:      m.Role,
			Content:   m.Content,
			Timestamp: m.CreatedAt,
		}
	}
	return history, nil
}
