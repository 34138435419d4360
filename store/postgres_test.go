package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/casper-member-portal/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Integration tests against real services run only when the connection
// URLs are exported, e.g. TEST_DATABASE_URL=postgres://localhost/portal_test.

func newTestPostgres(t *testing.T) *PostgresStore {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	s, err := NewPostgresStore(ctx, url)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	require.NoError(t, s.Migrate(ctx))
	return s
}

func TestPostgresStore_AccountRoundTrip(t *testing.T) {
	s := newTestPostgres(t)
	ctx := context.Background()

	a := newAccount(uuid.NewString() + "@example.com")
	require.NoError(t, s.SaveAccount(ctx, a))

	got, err := s.GetAccountByEmail(ctx, a.Email)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	assert.Equal(t, interfaces.MemberStatusNew, got.MemberStatus)
	assert.Nil(t, got.NodeVerifiedAt)

	_, err = s.GetAccount(ctx, uuid.New())
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestPostgresStore_RunInTx(t *testing.T) {
	s := newTestPostgres(t)
	ctx := context.Background()

	a := newAccount(uuid.NewString() + "@example.com")
	require.NoError(t, s.SaveAccount(ctx, a))

	boom := errors.New("boom")
	err := s.RunInTx(ctx, a.ID, func(ctx context.Context, tx interfaces.AccountStore) error {
		acc, err := tx.GetAccount(ctx, a.ID)
		require.NoError(t, err)
		acc.SignedFile = "signed_file/x/signature"
		require.NoError(t, tx.SaveAccount(ctx, acc))
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.GetAccount(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, got.SignedFile)

	err = s.RunInTx(ctx, a.ID, func(ctx context.Context, tx interfaces.AccountStore) error {
		acc, err := tx.GetAccount(ctx, a.ID)
		if err != nil {
			return err
		}
		now := time.Now().UTC().Truncate(time.Microsecond)
		acc.SignedFile = "signed_file/x/signature"
		acc.NodeVerifiedAt = &now
		if err := tx.SaveAccount(ctx, acc); err != nil {
			return err
		}
		return tx.ReplaceOwnerNodes(ctx, a.ID, []interfaces.OwnerNode{{UserID: a.ID, Email: "b@example.com", Percent: 25, CreatedAt: now}})
	})
	require.NoError(t, err)

	got, err = s.GetAccount(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.NodeVerified())

	nodes, err := s.ListOwnerNodes(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, 25.0, nodes[0].Percent)

	err = s.RunInTx(ctx, uuid.New(), func(ctx context.Context, tx interfaces.AccountStore) error { return nil })
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestRedisLocker(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	ctx := context.Background()

	client, err := NewRedisClient(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	locker := NewRedisLocker(client, log, WithLockWait(100*time.Millisecond))
	id := uuid.New()

	release, err := locker.Lock(ctx, id)
	require.NoError(t, err)

	_, err = locker.Lock(ctx, id)
	assert.ErrorIs(t, err, interfaces.ErrLocked)

	release()
	release2, err := locker.Lock(ctx, id)
	require.NoError(t, err)
	release2()

	trl := NewRedisRevocationList(client, time.Minute)
	jti := uuid.NewString()
	require.NoError(t, trl.Revoke(ctx, id, jti))
	revoked, err := trl.IsRevoked(ctx, jti)
	require.NoError(t, err)
	assert.True(t, revoked)
}
