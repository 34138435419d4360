package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ruteri/casper-member-portal/interfaces"
)

const (
	signedFileDir         = "signed_file"
	signatureArtifactName = "signature"
)

// CommitError reports a failed binding. It always matches
// interfaces.ErrPersistence and the underlying cause.
type CommitError struct {
	Op  string
	Err error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("commit %s: %v", e.Op, e.Err)
}

// Unwrap exposes both the persistence sentinel and the cause.
func (e *CommitError) Unwrap() []error {
	return []error{interfaces.ErrPersistence, e.Err}
}

// ArtifactPath returns the storage path of an account's signature artifact.
func ArtifactPath(id interfaces.AccountID) (interfaces.BlobPath, error) {
	return interfaces.NewBlobPath(signedFileDir, id.String(), signatureArtifactName)
}

// BindingCommitter persists a verified artifact and marks the account verified.
// It does not verify the artifact itself.
type BindingCommitter struct {
	blobs interfaces.BlobStorage
	now   interfaces.Clock
	log   *slog.Logger
}

// NewBindingCommitter creates a committer writing artifacts to blobs.
func NewBindingCommitter(blobs interfaces.BlobStorage, now interfaces.Clock, log *slog.Logger) *BindingCommitter {
	if now == nil {
		now = time.Now
	}
	return &BindingCommitter{blobs: blobs, now: now, log: log}
}

// Undo puts back the artifact that was bound before a commit.
type Undo func(ctx context.Context)

// Commit stores artifact and records the binding on account through store.
// It must run inside the account's transaction scope. On any failure the
// account is left unchanged and the previous artifact, if any, is restored.
//
// On success the returned Undo restores the previous artifact. The caller
// runs it when the surrounding transaction fails to commit.
func (c *BindingCommitter) Commit(ctx context.Context, store interfaces.AccountStore, account *interfaces.Account, artifact []byte) (Undo, error) {
	path, err := ArtifactPath(account.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid artifact path: %w", err)
	}

	previous, err := c.blobs.Get(ctx, path)
	if err != nil && !errors.Is(err, interfaces.ErrContentNotFound) {
		return nil, &CommitError{Op: "read previous artifact", Err: err}
	}

	if err := c.blobs.Put(ctx, path, artifact); err != nil {
		// some replicas may already hold the new bytes
		c.restore(ctx, path, previous)
		return nil, &CommitError{Op: "put artifact", Err: err}
	}

	now := c.now()
	updated := account.Clone()
	updated.SignedFile = path.String()
	updated.NodeVerifiedAt = &now
	updated.UpdatedAt = now

	if err := store.SaveAccount(ctx, updated); err != nil {
		c.restore(ctx, path, previous)
		return nil, &CommitError{Op: "save account", Err: err}
	}

	*account = *updated
	return func(ctx context.Context) { c.restore(ctx, path, previous) }, nil
}

// restore puts back the artifact that was bound before a failed commit.
func (c *BindingCommitter) restore(ctx context.Context, path interfaces.BlobPath, previous []byte) {
	if previous == nil {
		return
	}
	if err := c.blobs.Put(ctx, path, previous); err != nil {
		c.log.Error("Failed to restore previous signature artifact",
			slog.String("path", path.String()),
			"err", err)
	}
}
