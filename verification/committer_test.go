package verification

import (
	"context"
	"errors"
	"testing"

	"github.com/ruteri/casper-member-portal/interfaces"
	"github.com/ruteri/casper-member-portal/storage"
	"github.com/ruteri/casper-member-portal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestBindingCommitter_Commit(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	account := seedAccount(t, s, "01aa")
	blobs := memBlobs{}

	committer := NewBindingCommitter(blobs, fixedClock(testDay), discardLogger())
	undo, err := committer.Commit(ctx, s, account, []byte("abcd"))
	require.NoError(t, err)
	require.NotNil(t, undo)

	path := interfaces.BlobPath("signed_file/" + account.ID.String() + "/signature")
	assert.Equal(t, []byte("abcd"), blobs[path])
	assert.Equal(t, path.String(), account.SignedFile)
	require.NotNil(t, account.NodeVerifiedAt)
	assert.Equal(t, testDay, *account.NodeVerifiedAt)

	stored, err := s.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, stored.NodeVerified())

	// re-binding overwrites
	undo, err = committer.Commit(ctx, s, account, []byte("ef01"))
	require.NoError(t, err)
	assert.Equal(t, []byte("ef01"), blobs[path])

	undo(ctx)
	assert.Equal(t, []byte("abcd"), blobs[path])
}

func TestBindingCommitter_StorageFailure(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	account := seedAccount(t, s, "01aa")

	blobs := &MockBlobStorage{}
	blobs.On("Get", mock.Anything, mock.Anything).Return(nil, interfaces.ErrContentNotFound)
	blobs.On("Put", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("bucket unreachable"))

	committer := NewBindingCommitter(blobs, fixedClock(testDay), discardLogger())
	undo, err := committer.Commit(ctx, s, account, []byte("abcd"))

	require.Error(t, err)
	assert.Nil(t, undo)
	assert.ErrorIs(t, err, interfaces.ErrPersistence)
	var commitErr *CommitError
	require.ErrorAs(t, err, &commitErr)
	assert.Equal(t, "put artifact", commitErr.Op)

	assert.Nil(t, account.NodeVerifiedAt)
	assert.Empty(t, account.SignedFile)

	stored, err := s.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.NodeVerifiedAt)
	assert.Empty(t, stored.SignedFile)
	blobs.AssertExpectations(t)
}

func TestBindingCommitter_SaveFailureRestoresPreviousArtifact(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	account := seedAccount(t, s, "01aa")

	blobs := memBlobs{}
	committer := NewBindingCommitter(blobs, fixedClock(testDay), discardLogger())
	_, err := committer.Commit(ctx, s, account, []byte("old"))
	require.NoError(t, err)
	before := account.Clone()

	undo, err := committer.Commit(ctx, failingStore{s}, account, []byte("new"))
	require.ErrorIs(t, err, interfaces.ErrPersistence)
	assert.Nil(t, undo)

	path, err := ArtifactPath(account.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("old"), blobs[path])
	assert.Equal(t, before, account)
}

func TestBindingCommitter_PartialPutRestoresPreviousArtifact(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	account := seedAccount(t, s, "01aa")

	primary, err := storage.NewFileBackend(t.TempDir(), discardLogger())
	require.NoError(t, err)
	replica, err := storage.NewFileBackend(t.TempDir(), discardLogger())
	require.NoError(t, err)
	flaky := &quotaBackend{BlobStorage: replica, accept: 1}
	blobs := storage.NewMultiStorageBackend([]interfaces.BlobStorage{primary, flaky}, discardLogger())

	committer := NewBindingCommitter(blobs, fixedClock(testDay), discardLogger())
	_, err = committer.Commit(ctx, s, account, []byte("old-sig"))
	require.NoError(t, err)
	before := account.Clone()

	_, err = committer.Commit(ctx, s, account, []byte("new-sig"))
	require.ErrorIs(t, err, interfaces.ErrPersistence)
	require.ErrorIs(t, err, interfaces.ErrBackendUnavailable)
	assert.Equal(t, before, account)

	stored, err := s.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, before.NodeVerifiedAt, stored.NodeVerifiedAt)

	path, err := ArtifactPath(account.ID)
	require.NoError(t, err)
	got, err := primary.Get(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, []byte("old-sig"), got)
	got, err = replica.Get(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, []byte("old-sig"), got)
}
