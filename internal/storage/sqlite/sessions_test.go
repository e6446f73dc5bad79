package sqlite

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slbhq/accounts/internal/models"
	"github.com/slbhq/accounts/internal/storage"
)

func TestSessionStorage_SaveSession(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	accountID := createTestAccount(t, ctx, s)

	tests := []struct {
		name    string
		session *models.RefreshSession
	}{
		{
			name: "save new session",
			session: &models.RefreshSession{
				AccountID: accountID,
				Token:     "token-1",
				IssuedAt:  time.Now().UTC(),
			},
		},
		{
			name: "login overwrites existing slot",
			session: &models.RefreshSession{
				AccountID: accountID,
				Token:     "token-2",
				IssuedAt:  time.Now().UTC(),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, s.SaveSession(ctx, tt.session))

			got, err := s.GetSession(ctx, accountID)
			require.NoError(t, err)
			assert.Equal(t, tt.session.Token, got.Token)
		})
	}
}

func TestSessionStorage_GetSession_NotFound(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	accountID := createTestAccount(t, ctx, s)

	_, err := s.GetSession(ctx, accountID)
	assert.ErrorIs(t, err, storage.ErrSessionNotFound)
}

func TestSessionStorage_RotateSession(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	accountID := createTestAccount(t, ctx, s)
	require.NoError(t, s.SaveSession(ctx, &models.RefreshSession{
		AccountID: accountID,
		Token:     "current",
		IssuedAt:  time.Now().UTC(),
	}))

	t.Run("matching token rotates", func(t *testing.T) {
		err := s.RotateSession(ctx, accountID, "current", "next", time.Now().UTC())
		require.NoError(t, err)

		got, err := s.GetSession(ctx, accountID)
		require.NoError(t, err)
		assert.Equal(t, "next", got.Token)
	})

	t.Run("stale token is rejected and slot untouched", func(t *testing.T) {
		err := s.RotateSession(ctx, accountID, "current", "evil", time.Now().UTC())
		assert.ErrorIs(t, err, storage.ErrSessionMismatch)

		got, err := s.GetSession(ctx, accountID)
		require.NoError(t, err)
		assert.Equal(t, "next", got.Token)
	})

	t.Run("absent slot is a mismatch", func(t *testing.T) {
		other := createTestAccount(t, ctx, s)
		err := s.RotateSession(ctx, other, "anything", "new", time.Now().UTC())
		assert.ErrorIs(t, err, storage.ErrSessionMismatch)
	})
}

func TestSessionStorage_ConcurrentRotation(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	accountID := createTestAccount(t, ctx, s)
	require.NoError(t, s.SaveSession(ctx, &models.RefreshSession{
		AccountID: accountID,
		Token:     "shared",
		IssuedAt:  time.Now().UTC(),
	}))

	// Two refreshes race with the same valid token: exactly one may win.
	const racers = 2
	results := make([]error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = s.RotateSession(ctx, accountID, "shared", "winner-"+string(rune('a'+i)), time.Now().UTC())
		}(i)
	}
	wg.Wait()

	var successes, mismatches int
	for _, err := range results {
		switch {
		case err == nil:
			successes++
		case assert.ErrorIs(t, err, storage.ErrSessionMismatch):
			mismatches++
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, racers-1, mismatches)
}

func TestSessionStorage_DeleteSession(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	accountID := createTestAccount(t, ctx, s)
	require.NoError(t, s.SaveSession(ctx, &models.RefreshSession{
		AccountID: accountID,
		Token:     "tok",
		IssuedAt:  time.Now().UTC(),
	}))

	require.NoError(t, s.DeleteSession(ctx, accountID))

	_, err := s.GetSession(ctx, accountID)
	assert.ErrorIs(t, err, storage.ErrSessionNotFound)

	// Logout is idempotent: deleting an absent slot is not an error.
	require.NoError(t, s.DeleteSession(ctx, accountID))
}
