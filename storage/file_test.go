package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ruteri/casper-member-portal/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileBackend_PutGet(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	backend, err := NewFileBackend(dir, discardLogger())
	require.NoError(t, err)
	assert.True(t, backend.Available(ctx))
	assert.Equal(t, "file://"+dir, backend.LocationURI())

	path, err := interfaces.NewBlobPath("signed_file", "3f1c", "signature")
	require.NoError(t, err)

	_, err = backend.Get(ctx, path)
	assert.ErrorIs(t, err, interfaces.ErrContentNotFound)

	require.NoError(t, backend.Put(ctx, path, []byte("first")))
	require.NoError(t, backend.Put(ctx, path, []byte("second")))

	got, err := backend.Get(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), got)

	onDisk, err := os.ReadFile(filepath.Join(dir, "signed_file", "3f1c", "signature"))
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), onDisk)

	entries, err := os.ReadDir(filepath.Join(dir, "signed_file", "3f1c"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestFileBackend_Unavailable(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "blobs")
	backend, err := NewFileBackend(dir, discardLogger())
	require.NoError(t, err)

	require.NoError(t, os.RemoveAll(dir))
	assert.False(t, backend.Available(context.Background()))
}

func TestStorageBackendFactory(t *testing.T) {
	factory := NewStorageBackendFactory(discardLogger())
	dir := t.TempDir()

	loc, err := interfaces.NewStorageBackendLocation("file://" + dir)
	require.NoError(t, err)

	backend, err := factory.StorageBackendFor(loc)
	require.NoError(t, err)
	assert.IsType(t, &FileBackend{}, backend)

	s3loc, err := interfaces.NewStorageBackendLocation("s3://AKIA:secret@bucket/prefix/?region=eu-west-1&endpoint=http://localhost:9000")
	require.NoError(t, err)
	s3backend, err := factory.StorageBackendFor(s3loc)
	require.NoError(t, err)
	assert.Equal(t, "s3-bucket", s3backend.Name())
	assert.NotContains(t, s3backend.LocationURI(), "secret")

	ipfsloc, err := interfaces.NewStorageBackendLocation("ipfs://localhost:5001/blobs?timeout=5s")
	require.NoError(t, err)
	ipfsbackend, err := factory.StorageBackendFor(ipfsloc)
	require.NoError(t, err)
	assert.Equal(t, "ipfs-localhost-5001", ipfsbackend.Name())

	vaultloc, err := interfaces.NewStorageBackendLocation("vault://token@vault.local:8200/secret/portal?tls=false")
	require.NoError(t, err)
	vaultbackend, err := factory.StorageBackendFor(vaultloc)
	require.NoError(t, err)
	assert.Equal(t, "vault-secret-portal", vaultbackend.Name())

	_, err = interfaces.NewStorageBackendLocation("github://owner/repo")
	assert.ErrorIs(t, err, interfaces.ErrInvalidLocationURI)

	multi, err := factory.CreateMultiBackend([]interfaces.StorageBackendLocation{loc, s3loc})
	require.NoError(t, err)
	assert.IsType(t, &MultiStorageBackend{}, multi)

	single, err := factory.CreateMultiBackend([]interfaces.StorageBackendLocation{loc})
	require.NoError(t, err)
	assert.IsType(t, &FileBackend{}, single)

	_, err = factory.CreateMultiBackend(nil)
	assert.Error(t, err)
}
