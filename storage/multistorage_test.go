package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/ruteri/casper-member-portal/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockStorageBackend implements interfaces.BlobStorage for testing
type MockStorageBackend struct {
	mock.Mock
	name string
}

func (m *MockStorageBackend) Get(ctx context.Context, path interfaces.BlobPath) ([]byte, error) {
	args := m.Called(ctx, path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockStorageBackend) Put(ctx context.Context, path interfaces.BlobPath, data []byte) error {
	args := m.Called(ctx, path, data)
	return args.Error(0)
}

func (m *MockStorageBackend) Available(ctx context.Context) bool {
	args := m.Called(ctx)
	return args.Bool(0)
}

func (m *MockStorageBackend) Name() string {
	return m.name
}

func (m *MockStorageBackend) LocationURI() string {
	return "mock:" + m.name
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMultiStorageBackend_Available(t *testing.T) {
	tests := []struct {
		name     string
		backends []bool
		expected bool
	}{
		{
			name:     "all backends available",
			backends: []bool{true, true, true},
			expected: true,
		},
		{
			name:     "some backends available",
			backends: []bool{false, true, false},
			expected: true,
		},
		{
			name:     "no backends available",
			backends: []bool{false, false, false},
			expected: false,
		},
		{
			name:     "no backends",
			backends: []bool{},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var backends []interfaces.BlobStorage
			for _, available := range tt.backends {
				backend := &MockStorageBackend{name: "mock"}
				backend.On("Available", mock.Anything).Return(available).Maybe()
				backends = append(backends, backend)
			}

			multi := NewMultiStorageBackend(backends, discardLogger())
			assert.Equal(t, tt.expected, multi.Available(context.Background()))
		})
	}
}

func TestMultiStorageBackend_Get(t *testing.T) {
	ctx := context.Background()
	path := interfaces.BlobPath("signed_file/acc/signature")
	data := []byte("deadbeef")

	t.Run("falls back to next backend", func(t *testing.T) {
		first := &MockStorageBackend{name: "first"}
		first.On("Available", mock.Anything).Return(true)
		first.On("Get", mock.Anything, path).Return(nil, errors.New("connection reset"))

		second := &MockStorageBackend{name: "second"}
		second.On("Available", mock.Anything).Return(true)
		second.On("Get", mock.Anything, path).Return(data, nil)

		multi := NewMultiStorageBackend([]interfaces.BlobStorage{first, second}, discardLogger())
		got, err := multi.Get(ctx, path)
		require.NoError(t, err)
		assert.Equal(t, data, got)

		first.AssertExpectations(t)
		second.AssertExpectations(t)
	})

	t.Run("skips unavailable backends", func(t *testing.T) {
		down := &MockStorageBackend{name: "down"}
		down.On("Available", mock.Anything).Return(false)

		up := &MockStorageBackend{name: "up"}
		up.On("Available", mock.Anything).Return(true)
		up.On("Get", mock.Anything, path).Return(data, nil)

		multi := NewMultiStorageBackend([]interfaces.BlobStorage{down, up}, discardLogger())
		got, err := multi.Get(ctx, path)
		require.NoError(t, err)
		assert.Equal(t, data, got)
		down.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
	})

	t.Run("not found everywhere", func(t *testing.T) {
		a := &MockStorageBackend{name: "a"}
		a.On("Available", mock.Anything).Return(true)
		a.On("Get", mock.Anything, path).Return(nil, interfaces.ErrContentNotFound)

		b := &MockStorageBackend{name: "b"}
		b.On("Available", mock.Anything).Return(true)
		b.On("Get", mock.Anything, path).Return(nil, interfaces.ErrContentNotFound)

		multi := NewMultiStorageBackend([]interfaces.BlobStorage{a, b}, discardLogger())
		_, err := multi.Get(ctx, path)
		assert.ErrorIs(t, err, interfaces.ErrContentNotFound)
	})

	t.Run("all backends failing", func(t *testing.T) {
		a := &MockStorageBackend{name: "a"}
		a.On("Available", mock.Anything).Return(true)
		a.On("Get", mock.Anything, path).Return(nil, errors.New("timeout"))

		multi := NewMultiStorageBackend([]interfaces.BlobStorage{a}, discardLogger())
		_, err := multi.Get(ctx, path)
		assert.ErrorIs(t, err, interfaces.ErrBackendUnavailable)
		assert.NotErrorIs(t, err, interfaces.ErrContentNotFound)
	})
}

func TestMultiStorageBackend_Put(t *testing.T) {
	ctx := context.Background()
	path := interfaces.BlobPath("signed_file/acc/signature")
	data := []byte("deadbeef")

	t.Run("writes to every available backend", func(t *testing.T) {
		a := &MockStorageBackend{name: "a"}
		a.On("Available", mock.Anything).Return(true)
		a.On("Put", mock.Anything, path, data).Return(nil)

		b := &MockStorageBackend{name: "b"}
		b.On("Available", mock.Anything).Return(true)
		b.On("Put", mock.Anything, path, data).Return(nil)

		multi := NewMultiStorageBackend([]interfaces.BlobStorage{a, b}, discardLogger())
		require.NoError(t, multi.Put(ctx, path, data))

		a.AssertExpectations(t)
		b.AssertExpectations(t)
	})

	t.Run("partial failure fails the write", func(t *testing.T) {
		a := &MockStorageBackend{name: "a"}
		a.On("Available", mock.Anything).Return(true)
		a.On("Put", mock.Anything, path, data).Return(errors.New("disk full"))

		b := &MockStorageBackend{name: "b"}
		b.On("Available", mock.Anything).Return(true)
		b.On("Put", mock.Anything, path, data).Return(nil)

		multi := NewMultiStorageBackend([]interfaces.BlobStorage{a, b}, discardLogger())
		err := multi.Put(ctx, path, data)
		assert.ErrorIs(t, err, interfaces.ErrBackendUnavailable)
		b.AssertExpectations(t)
	})

	t.Run("unavailable backend fails the write", func(t *testing.T) {
		a := &MockStorageBackend{name: "a"}
		a.On("Available", mock.Anything).Return(true)
		a.On("Put", mock.Anything, path, data).Return(nil)

		b := &MockStorageBackend{name: "b"}
		b.On("Available", mock.Anything).Return(false)

		multi := NewMultiStorageBackend([]interfaces.BlobStorage{a, b}, discardLogger())
		err := multi.Put(ctx, path, data)
		assert.ErrorIs(t, err, interfaces.ErrBackendUnavailable)
		b.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("all failures", func(t *testing.T) {
		a := &MockStorageBackend{name: "a"}
		a.On("Available", mock.Anything).Return(true)
		a.On("Put", mock.Anything, path, data).Return(errors.New("disk full"))

		b := &MockStorageBackend{name: "b"}
		b.On("Available", mock.Anything).Return(false)

		multi := NewMultiStorageBackend([]interfaces.BlobStorage{a, b}, discardLogger())
		err := multi.Put(ctx, path, data)
		assert.ErrorIs(t, err, interfaces.ErrBackendUnavailable)
	})
}

// rejectingBackend accepts the first n writes and rejects the rest.
type rejectingBackend struct {
	*FileBackend
	accept int
}

func (b *rejectingBackend) Put(ctx context.Context, path interfaces.BlobPath, data []byte) error {
	if b.accept == 0 {
		return errors.New("write quota exceeded")
	}
	b.accept--
	return b.FileBackend.Put(ctx, path, data)
}

func TestMultiStorageBackend_OverwriteWithFailingBackend(t *testing.T) {
	ctx := context.Background()
	path := interfaces.BlobPath("signed_file/acc/signature")

	first, err := NewFileBackend(t.TempDir(), discardLogger())
	require.NoError(t, err)
	inner, err := NewFileBackend(t.TempDir(), discardLogger())
	require.NoError(t, err)
	second := &rejectingBackend{FileBackend: inner, accept: 1}

	multi := NewMultiStorageBackend([]interfaces.BlobStorage{second, first}, discardLogger())
	require.NoError(t, multi.Put(ctx, path, []byte("old-sig")))

	err = multi.Put(ctx, path, []byte("new-sig"))
	require.ErrorIs(t, err, interfaces.ErrBackendUnavailable)

	// the rejecting backend still holds the previous bytes
	got, err := multi.Get(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, []byte("old-sig"), got)
}
