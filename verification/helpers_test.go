package verification

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/casper-member-portal/interfaces"
	"github.com/ruteri/casper-member-portal/store"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testDay = time.Date(2026, 10, 14, 15, 4, 5, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixedClock(t time.Time) interfaces.Clock {
	return func() time.Time { return t }
}

// MockBlobStorage implements interfaces.BlobStorage for testing
type MockBlobStorage struct {
	mock.Mock
}

func (m *MockBlobStorage) Put(ctx context.Context, path interfaces.BlobPath, data []byte) error {
	args := m.Called(ctx, path, data)
	return args.Error(0)
}

func (m *MockBlobStorage) Get(ctx context.Context, path interfaces.BlobPath) ([]byte, error) {
	args := m.Called(ctx, path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockBlobStorage) Available(ctx context.Context) bool {
	return m.Called(ctx).Bool(0)
}

func (m *MockBlobStorage) Name() string        { return "mock" }
func (m *MockBlobStorage) LocationURI() string { return "mock:" }

// MockEventPublisher implements interfaces.EventPublisher for testing
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) PublishNodeVerified(ctx context.Context, event interfaces.NodeVerifiedEvent) error {
	return m.Called(ctx, event).Error(0)
}

// spyVerifier records calls and returns a fixed result.
type spyVerifier struct {
	result bool
	calls  int
}

func (v *spyVerifier) Verify(artifact []byte, claimedPublicKey string, message string) bool {
	v.calls++
	return v.result
}

// memBlobs is a trivial in-memory BlobStorage.
type memBlobs map[interfaces.BlobPath][]byte

func (m memBlobs) Put(ctx context.Context, path interfaces.BlobPath, data []byte) error {
	m[path] = append([]byte(nil), data...)
	return nil
}

func (m memBlobs) Get(ctx context.Context, path interfaces.BlobPath) ([]byte, error) {
	data, ok := m[path]
	if !ok {
		return nil, interfaces.ErrContentNotFound
	}
	return data, nil
}

func (m memBlobs) Available(ctx context.Context) bool { return true }
func (m memBlobs) Name() string                       { return "mem" }
func (m memBlobs) LocationURI() string                { return "mem:" }

// quotaBackend accepts the first accept writes and rejects the rest.
type quotaBackend struct {
	interfaces.BlobStorage
	accept int
}

func (b *quotaBackend) Put(ctx context.Context, path interfaces.BlobPath, data []byte) error {
	if b.accept == 0 {
		return errors.New("write quota exceeded")
	}
	b.accept--
	return b.BlobStorage.Put(ctx, path, data)
}

// commitFailingTx runs fn against the store and then fails the first
// failures commits, rolling the transaction back.
type commitFailingTx struct {
	store    *store.MemoryStore
	failures int
}

func (t *commitFailingTx) RunInTx(ctx context.Context, id interfaces.AccountID, fn func(ctx context.Context, store interfaces.AccountStore) error) error {
	return t.store.RunInTx(ctx, id, func(ctx context.Context, st interfaces.AccountStore) error {
		if err := fn(ctx, st); err != nil {
			return err
		}
		if t.failures > 0 {
			t.failures--
			return fmt.Errorf("%w: commit: connection reset", interfaces.ErrPersistence)
		}
		return nil
	})
}

func seedAccount(t *testing.T, s *store.MemoryStore, publicKey string) *interfaces.Account {
	t.Helper()
	a := &interfaces.Account{
		ID:                uuid.New(),
		Email:             uuid.NewString() + "@example.com",
		Type:              interfaces.IndividualAccount,
		MemberStatus:      interfaces.MemberStatusNew,
		PublicAddressNode: publicKey,
		CreatedAt:         testDay,
		UpdatedAt:         testDay,
	}
	require.NoError(t, s.SaveAccount(context.Background(), a))
	return a
}
