// Package service implements the conversation manager: session lifecycle,
// message ordering, context truncation and chat turns.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Miguel0728/ChatBot-AI-V2/internal/config"
	"github.com/Miguel0728/ChatBot-AI-V2/internal/domain"
	"github.com/Miguel0728/ChatBot-AI-V2/internal/metrics"
	"github.com/Miguel0728/ChatBot-AI-V2/internal/policy"
	"github.com/Miguel0728/ChatBot-AI-V2/internal/repository"
)

// Gateway produces the assistant reply for a context window.
type Gateway interface {
	Complete(ctx context.Context, messages []domain.ContextMessage) (*domain.Completion, error)
}

// PolicyEvaluator decides whether a user message may be stored.
type PolicyEvaluator interface {
	Evaluate(ctx context.Context, input policy.Input) (policy.Decision, error)
}

type Service struct {
	store   repository.Store
	gateway Gateway
	policy  PolicyEvaluator
	metrics *metrics.Collector
	config  *config.Config
	locks   *sessionLocks
	logger  *slog.Logger
}

// New creates the conversation manager. policyEngine and collector may be nil.
func New(store repository.Store, gateway Gateway, policyEngine PolicyEvaluator, collector *metrics.Collector, cfg *config.Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:   store,
		gateway: gateway,
		policy:  policyEngine,
		metrics: collector,
		config:  cfg,
		locks:   newSessionLocks(),
		logger:  logger.With("component", "conversation"),
	}
}

// wrapErr classifies err into a domain.Error. Errors that already carry a
// kind are returned unchanged.
func wrapErr(op, sessionID string, err error) error {
	if err == nil {
		return nil
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}

	kind := domain.KindStorage
	switch {
	case errors.Is(err, domain.ErrEmptyMessage),
		errors.Is(err, domain.ErrEmptyContent),
		errors.Is(err, domain.ErrInvalidRole),
		errors.Is(err, domain.ErrMessageBlocked):
		kind = domain.KindValidation
	case errors.Is(err, domain.ErrSessionNotFound):
		kind = domain.KindNotFound
	case errors.Is(err, domain.ErrSessionRetired):
		kind = domain.KindRetired
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		kind = domain.KindInternal
	}
	return domain.NewError(kind, op, sessionID, err)
}

func (s *Service) logFailure(op, sessionID string, err error) {
	kind := domain.KindOf(err)
	level := slog.LevelError
	if kind == domain.KindValidation || kind == domain.KindRetired || kind == domain.KindNotFound {
		level = slog.LevelWarn
	}
	s.logger.Log(context.Background(), level, "operation failed",
		"op", op,
		"session_id", sessionID,
		"kind", string(kind),
		"error", err,
	)
}
