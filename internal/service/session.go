package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Miguel0728/ChatBot-AI-V2/internal/domain"
	"github.com/Miguel0728/ChatBot-AI-V2/internal/repository"
)

// EnsureSession returns the session, creating it with its seed message if it
// does not exist. A session found without a seed gets one before returning.
func (s *Service) EnsureSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	const op = "ensure_session"

	release, err := s.locks.acquire(ctx, sessionID)
	if err != nil {
		return nil, wrapErr(op, sessionID, err)
	}
	defer release()

	session, err := s.ensureSession(ctx, sessionID)
	if err != nil {
		err = wrapErr(op, sessionID, err)
		s.logFailure(op, sessionID, err)
		return nil, err
	}
	return session, nil
}

func (s *Service) ensureSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	retired, err := s.store.IsRetired(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if retired {
		return nil, domain.ErrSessionRetired
	}

	session, err := s.store.GetSession(ctx, sessionID)
	if err == nil {
		if err := s.ensureSeed(ctx, s.store, sessionID); err != nil {
			return nil, err
		}
		return session, nil
	}
	if !errors.Is(err, domain.ErrSessionNotFound) {
		return nil, err
	}

	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		created, err := tx.CreateSession(ctx, sessionID, "", nil)
		if err != nil {
			return err
		}
		session = created
		return s.ensureSeed(ctx, tx, sessionID)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("session created", "session_id", sessionID)
	return session, nil
}

// ensureSeed inserts the system message when the session has none.
func (s *Service) ensureSeed(ctx context.Context, store repository.Store, sessionID string) error {
	seed, err := store.SystemMessage(ctx, sessionID)
	if err != nil {
		return err
	}
	if seed != nil {
		return nil
	}

	persona, err := s.persona(ctx, store)
	if err != nil {
		return err
	}
	count, err := store.CountMessages(ctx, sessionID)
	if err != nil {
		return err
	}
	if _, err := store.InsertSeed(ctx, sessionID, persona); err != nil {
		return err
	}
	s.metrics.RecordMessage(string(domain.RoleSystem))

	if count.Total > 0 {
		s.logger.Warn("repaired missing system message", "session_id", sessionID, "messages", count.Total)
	}
	return nil
}

// persona returns the stored system prompt override, or the configured one.
func (s *Service) persona(ctx context.Context, store repository.Store) (string, error) {
	value, ok, err := store.GetSetting(ctx, domain.SettingSystemPrompt)
	if err != nil {
		return "", err
	}
	if ok && value != "" {
		return value, nil
	}
	return s.config.SystemPrompt, nil
}

// SystemPrompt returns the persona used for new sessions.
func (s *Service) SystemPrompt(ctx context.Context) (string, error) {
	prompt, err := s.persona(ctx, s.store)
	return prompt, wrapErr("get_system_prompt", "", err)
}

// SetSystemPrompt overrides the persona for sessions seeded from now on.
func (s *Service) SetSystemPrompt(ctx context.Context, prompt string) error {
	if prompt == "" {
		return domain.NewError(domain.KindValidation, "set_system_prompt", "", domain.ErrEmptyContent)
	}
	if err := s.store.PutSetting(ctx, domain.SettingSystemPrompt, prompt); err != nil {
		return wrapErr("set_system_prompt", "", err)
	}
	s.logger.Info("system prompt updated", "length", len([]rune(prompt)))
	return nil
}

// ListSessions returns the most recently active sessions.
func (s *Service) ListSessions(ctx context.Context, limit int) ([]domain.SessionSummary, error) {
	sessions, err := s.store.ListSessions(ctx, limit)
	if err != nil {
		return nil, wrapErr("list_sessions", "", err)
	}
	if sessions == nil {
		sessions = []domain.SessionSummary{}
	}
	return sessions, nil
}

// WipeSession deletes the session with every message, seed included, and
// retires the id so it can never be used again.
func (s *Service) WipeSession(ctx context.Context, sessionID string) error {
	const op = "wipe_session"

	release, err := s.locks.acquire(ctx, sessionID)
	if err != nil {
		return wrapErr(op, sessionID, err)
	}
	defer release()

	deleted, err := s.wipeSession(ctx, sessionID)
	if err != nil {
		err = wrapErr(op, sessionID, err)
		s.logFailure(op, sessionID, err)
		return err
	}
	s.logger.Info("session wiped", "session_id", sessionID, "messages_deleted", deleted)
	return nil
}

func (s *Service) wipeSession(ctx context.Context, sessionID string) (int64, error) {
	var deleted int64
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		_, err := tx.GetSession(ctx, sessionID)
		if errors.Is(err, domain.ErrSessionNotFound) {
			count, cerr := tx.CountMessages(ctx, sessionID)
			if cerr != nil {
				return cerr
			}
			if count.Total == 0 {
				return err
			}
		} else if err != nil {
			return err
		}

		deleted, err = tx.DeleteAll(ctx, sessionID)
		if err != nil {
			return err
		}
		return tx.DeleteSession(ctx, sessionID)
	})
	return deleted, err
}

// WipeAll wipes every session and returns how many were removed.
func (s *Service) WipeAll(ctx context.Context) (int, error) {
	sessions, err := s.store.ListSessions(ctx, 0)
	if err != nil {
		return 0, wrapErr("wipe_all", "", err)
	}

	wiped := 0
	for _, session := range sessions {
		if err := s.WipeSession(ctx, session.ID); err != nil {
			return wiped, fmt.Errorf("failed to wipe session %s: %w", session.ID, err)
		}
		wiped++
	}
	return wiped, nil
}
