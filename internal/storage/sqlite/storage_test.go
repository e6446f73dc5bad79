package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/slbhq/accounts/internal/models"
)

func setupTestStorage(t *testing.T) (*Storage, func()) {
	t.Helper()

	s, err := New(context.Background(), ":memory:")
	require.NoError(t, err)

	cleanup := func() {
		require.NoError(t, s.Close())
	}
	return s, cleanup
}

func createTestAccount(t *testing.T, ctx context.Context, s *Storage) string {
	t.Helper()

	id := uuid.New().String()
	now := time.Now().UTC()
	account := &models.Account{
		ID:           id,
		Name:         "Test Account",
		Email:        id + "@example.com",
		PasswordHash: "$2a$10$testhash",
		Role:         models.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, s.CreateAccount(ctx, account))
	return id
}

func TestStorage_Ping(t *testing.T) {
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	require.NoError(t, s.Ping(context.Background()))
}
