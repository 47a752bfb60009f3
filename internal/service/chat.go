package service

import (
	"context"
	"time"

	"github.com/Miguel0728/ChatBot-AI-V2/internal/domain"
)

// Chat runs one turn: store the user message, send the bounded context to the
// gateway and store the reply. The session lock is held for the whole turn.
// When the gateway fails the user message stays and no reply is stored.
func (s *Service) Chat(ctx context.Context, sessionID, text string) (*domain.TurnResult, error) {
	const op = "chat"

	release, err := s.locks.acquire(ctx, sessionID)
	if err != nil {
		return nil, wrapErr(op, sessionID, err)
	}
	defer release()

	result, err := s.chat(ctx, sessionID, text)
	if err != nil {
		err = wrapErr(op, sessionID, err)
		s.metrics.RecordTurn(string(domain.KindOf(err)))
		s.logFailure(op, sessionID, err)
		return nil, err
	}
	s.metrics.RecordTurn("ok")
	return result, nil
}

func (s *Service) chat(ctx context.Context, sessionID, text string) (*domain.TurnResult, error) {
	user, err := s.submitUserMessage(ctx, sessionID, text)
	if err != nil {
		return nil, err
	}

	window, err := s.buildModelContext(ctx, sessionID, s.config.ContextLimit)
	if err != nil {
		return nil, err
	}

	gatewayCtx := ctx
	if s.config.LLMTimeout > 0 {
		var cancel context.CancelFunc
		gatewayCtx, cancel = context.WithTimeout(ctx, s.config.LLMTimeout)
		defer cancel()
	}

	start := time.Now()
	completion, err := s.gateway.Complete(gatewayCtx, window)
	elapsed := time.Since(start)
	if err != nil {
		s.metrics.RecordGatewayCall(elapsed, 0)
		return nil, domain.NewError(domain.KindGateway, "chat", sessionID, err)
	}
	s.metrics.RecordGatewayCall(elapsed, completion.TokensUsed)

	assistant, err := s.appendAndTouch(ctx, sessionID, domain.RoleAssistant, completion.Reply, completion.TokensUsed)
	if err != nil {
		return nil, err
	}

	s.logger.Info("chat turn completed",
		"session_id", sessionID,
		"context_messages", len(window),
		"tokens_used", completion.TokensUsed,
		"duration_ms", elapsed.Milliseconds(),
	)

	return &domain.TurnResult{
		SessionID:  sessionID,
		Reply:      completion.Reply,
		TokensUsed: completion.TokensUsed,
		User:       user,
		Assistant:  assistant,
	}, nil
}
