package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Miguel0728/ChatBot-AI-V2/internal/domain"
)

// runStoreSuite exercises the Store contract against any backend.
// Session ids are prefixed so the suite can share a database with other runs.
func runStoreSuite(t *testing.T, store Store, prefix string) {
	id := func(name string) string { return prefix + name }

	t.Run("sessions", func(t *testing.T) {
		ctx := context.Background()
		sid := id("s1")

		_, err := store.GetSession(ctx, sid)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)

		s, err := store.CreateSession(ctx, sid, "Ana", json.RawMessage(`{"tier":"pro"}`))
		require.NoError(t, err)
		assert.Equal(t, sid, s.ID)
		assert.Equal(t, "Ana", s.DisplayName)
		assert.JSONEq(t, `{"tier":"pro"}`, string(s.Metadata))
		assert.False(t, s.CreatedAt.IsZero())

		later := s.CreatedAt.Add(time.Hour)
		now = func() time.Time { return later }
		again, err := store.CreateSession(ctx, sid, "", nil)
		now = time.Now
		require.NoError(t, err)
		assert.Equal(t, "Ana", again.DisplayName, "blank name keeps the stored one")
		assert.JSONEq(t, `{"tier":"pro"}`, string(again.Metadata))
		assert.Equal(t, later.UnixNano(), again.CreatedAt.UnixNano(), "re-create refreshes timestamps")
		assert.Equal(t, later.UnixNano(), again.LastActivityAt.UnixNano())

		renamed, err := store.CreateSession(ctx, sid, "Other", nil)
		require.NoError(t, err)
		assert.Equal(t, "Other", renamed.DisplayName)

		require.NoError(t, store.TouchSession(ctx, sid))
		touched, err := store.GetSession(ctx, sid)
		require.NoError(t, err)
		assert.False(t, touched.LastActivityAt.Before(s.LastActivityAt))

		require.NoError(t, store.TouchSession(ctx, id("missing")))
	})

	t.Run("append assigns sequences", func(t *testing.T) {
		ctx := context.Background()
		sid := id("seq")
		_, err := store.CreateSession(ctx, sid, "", nil)
		require.NoError(t, err)

		sys, err := store.AppendMessage(ctx, sid, domain.RoleSystem, "persona", 0)
		require.NoError(t, err)
		assert.Equal(t, int64(1), sys.Seq)

		u, err := store.AppendMessage(ctx, sid, domain.RoleUser, "hola", 0)
		require.NoError(t, err)
		assert.Equal(t, int64(2), u.Seq)

		a, err := store.AppendMessage(ctx, sid, domain.RoleAssistant, "hey", -4)
		require.NoError(t, err)
		assert.Equal(t, int64(3), a.Seq)
		assert.Equal(t, 0, a.TokensUsed, "negative tokens are clamped")

		_, err = store.AppendMessage(ctx, sid, domain.Role("tool"), "x", 0)
		assert.ErrorIs(t, err, domain.ErrInvalidRole)

		_, err = store.AppendMessage(ctx, sid, domain.RoleUser, "   ", 0)
		assert.ErrorIs(t, err, domain.ErrEmptyContent)

		counts, err := store.CountMessages(ctx, sid)
		require.NoError(t, err)
		assert.Equal(t, 3, counts.Total, "rejected appends leave no rows")
	})

	t.Run("history returns most recent ascending", func(t *testing.T) {
		ctx := context.Background()
		sid := id("hist")
		_, err := store.AppendMessage(ctx, sid, domain.RoleSystem, "persona", 0)
		require.NoError(t, err)
		for i := 1; i <= 5; i++ {
			_, err := store.AppendMessage(ctx, sid, domain.RoleUser, fmt.Sprintf("m%d", i), 0)
			require.NoError(t, err)
		}

		all, err := store.History(ctx, sid, 0)
		require.NoError(t, err)
		require.Len(t, all, 6)
		assert.Equal(t, domain.RoleSystem, all[0].Role)

		recent, err := store.History(ctx, sid, 2)
		require.NoError(t, err)
		require.Len(t, recent, 2)
		assert.Equal(t, "m4", recent[0].Content)
		assert.Equal(t, "m5", recent[1].Content)

		filtered, err := store.HistoryFiltered(ctx, sid, domain.ConversationRoles, 10)
		require.NoError(t, err)
		assert.Len(t, filtered, 5)
		for _, m := range filtered {
			assert.NotEqual(t, domain.RoleSystem, m.Role)
		}

		empty, err := store.History(ctx, id("nobody"), 10)
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("system message and deletes", func(t *testing.T) {
		ctx := context.Background()
		sid := id("del")

		seed, err := store.SystemMessage(ctx, sid)
		require.NoError(t, err)
		assert.Nil(t, seed)

		_, err = store.AppendMessage(ctx, sid, domain.RoleSystem, "persona", 0)
		require.NoError(t, err)
		_, err = store.AppendMessage(ctx, sid, domain.RoleUser, "q", 0)
		require.NoError(t, err)
		_, err = store.AppendMessage(ctx, sid, domain.RoleAssistant, "a", 3)
		require.NoError(t, err)

		seed, err = store.SystemMessage(ctx, sid)
		require.NoError(t, err)
		require.NotNil(t, seed)
		assert.Equal(t, "persona", seed.Content)

		n, err := store.DeleteNonSystem(ctx, sid)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		next, err := store.AppendMessage(ctx, sid, domain.RoleUser, "again", 0)
		require.NoError(t, err)
		assert.Equal(t, int64(4), next.Seq, "cleared sequence numbers are not reused")

		n, err = store.DeleteAll(ctx, sid)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
	})

	t.Run("seed is ordered first", func(t *testing.T) {
		ctx := context.Background()

		fresh, err := store.InsertSeed(ctx, id("seed-fresh"), "persona")
		require.NoError(t, err)
		assert.Equal(t, int64(1), fresh.Seq)

		sid := id("seed-late")
		_, err = store.AppendMessage(ctx, sid, domain.RoleUser, "first", 0)
		require.NoError(t, err)
		_, err = store.InsertSeed(ctx, sid, "persona")
		require.NoError(t, err)

		msgs, err := store.History(ctx, sid, 0)
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.Equal(t, domain.RoleSystem, msgs[0].Role)
		assert.Equal(t, "first", msgs[1].Content)
	})

	t.Run("sequences survive clears", func(t *testing.T) {
		ctx := context.Background()
		sid := id("hwm")

		for _, text := range []string{"q1", "a1", "q2"} {
			_, err := store.AppendMessage(ctx, sid, domain.RoleUser, text, 0)
			require.NoError(t, err)
		}
		_, err := store.DeleteNonSystem(ctx, sid)
		require.NoError(t, err)

		m, err := store.AppendMessage(ctx, sid, domain.RoleUser, "q3", 0)
		require.NoError(t, err)
		assert.Equal(t, int64(4), m.Seq)

		// A seed repaired after the clear sorts below every number ever used.
		seed, err := store.InsertSeed(ctx, sid, "persona")
		require.NoError(t, err)
		assert.Equal(t, int64(0), seed.Seq)

		_, err = store.DeleteNonSystem(ctx, sid)
		require.NoError(t, err)
		m, err = store.AppendMessage(ctx, sid, domain.RoleUser, "q4", 0)
		require.NoError(t, err)
		assert.Equal(t, int64(5), m.Seq)

		msgs, err := store.History(ctx, sid, 0)
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.Equal(t, domain.RoleSystem, msgs[0].Role)
		assert.Equal(t, "q4", msgs[1].Content)
	})

	t.Run("counts", func(t *testing.T) {
		ctx := context.Background()
		sid := id("count")
		_, err := store.AppendMessage(ctx, sid, domain.RoleSystem, "persona", 0)
		require.NoError(t, err)
		_, err = store.AppendMessage(ctx, sid, domain.RoleUser, "Hola", 0)
		require.NoError(t, err)
		_, err = store.AppendMessage(ctx, sid, domain.RoleAssistant, "¡Hola!", 5)
		require.NoError(t, err)

		c, err := store.CountMessages(ctx, sid)
		require.NoError(t, err)
		assert.Equal(t, domain.MessageCounts{Total: 3, User: 1, Assistant: 1, Tokens: 5}, c)

		zero, err := store.CountMessages(ctx, id("none"))
		require.NoError(t, err)
		assert.Equal(t, domain.MessageCounts{}, zero)
	})

	t.Run("list sessions", func(t *testing.T) {
		ctx := context.Background()
		_, err := store.CreateSession(ctx, id("list-a"), "", nil)
		require.NoError(t, err)
		_, err = store.CreateSession(ctx, id("list-b"), "", nil)
		require.NoError(t, err)
		_, err = store.AppendMessage(ctx, id("list-a"), domain.RoleSystem, "persona", 0)
		require.NoError(t, err)
		require.NoError(t, store.TouchSession(ctx, id("list-a")))

		sessions, err := store.ListSessions(ctx, 0)
		require.NoError(t, err)
		require.NotEmpty(t, sessions)
		assert.Equal(t, id("list-a"), sessions[0].ID, "most recent activity first")
		assert.Equal(t, 1, sessions[0].MessageCount)

		limited, err := store.ListSessions(ctx, 1)
		require.NoError(t, err)
		assert.Len(t, limited, 1)
	})

	t.Run("delete retires id", func(t *testing.T) {
		ctx := context.Background()
		sid := id("wipe")
		_, err := store.CreateSession(ctx, sid, "", nil)
		require.NoError(t, err)

		retired, err := store.IsRetired(ctx, sid)
		require.NoError(t, err)
		assert.False(t, retired)

		require.NoError(t, store.DeleteSession(ctx, sid))
		_, err = store.GetSession(ctx, sid)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)

		retired, err = store.IsRetired(ctx, sid)
		require.NoError(t, err)
		assert.True(t, retired)
	})

	t.Run("settings", func(t *testing.T) {
		ctx := context.Background()
		key := id("system_prompt")
		_, ok, err := store.GetSetting(ctx, key)
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, store.PutSetting(ctx, key, "one"))
		require.NoError(t, store.PutSetting(ctx, key, "two"))
		v, ok, err := store.GetSetting(ctx, key)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "two", v)
	})

	t.Run("transaction rollback", func(t *testing.T) {
		ctx := context.Background()
		sid := id("tx")
		boom := errors.New("boom")

		err := store.WithTx(ctx, func(tx Store) error {
			if _, err := tx.CreateSession(ctx, sid, "", nil); err != nil {
				return err
			}
			if _, err := tx.AppendMessage(ctx, sid, domain.RoleSystem, "persona", 0); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		_, err = store.GetSession(ctx, sid)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
		c, err := store.CountMessages(ctx, sid)
		require.NoError(t, err)
		assert.Zero(t, c.Total)

		err = store.WithTx(ctx, func(tx Store) error {
			if _, err := tx.CreateSession(ctx, sid, "", nil); err != nil {
				return err
			}
			return tx.WithTx(ctx, func(inner Store) error {
				_, err := inner.AppendMessage(ctx, sid, domain.RoleSystem, "persona", 0)
				return err
			})
		})
		require.NoError(t, err)
		c, err = store.CountMessages(ctx, sid)
		require.NoError(t, err)
		assert.Equal(t, 1, c.Total)
	})

	t.Run("concurrent appends on different sessions", func(t *testing.T) {
		ctx := context.Background()
		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				sid := id(fmt.Sprintf("par-%d", n))
				for j := 0; j < 5; j++ {
					_, err := store.AppendMessage(ctx, sid, domain.RoleUser, "x", 0)
					assert.NoError(t, err)
				}
			}(i)
		}
		wg.Wait()

		for i := 0; i < 4; i++ {
			msgs, err := store.History(ctx, id(fmt.Sprintf("par-%d", i)), 0)
			require.NoError(t, err)
			require.Len(t, msgs, 5)
			for j, m := range msgs {
				assert.Equal(t, int64(j+1), m.Seq)
			}
		}
	})
}
