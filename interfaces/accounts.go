package interfaces

import (
	"context"
	"time"
)

// AccountStore persists member accounts and their onboarding records.
// Get methods return ErrNotFound for missing records.
type AccountStore interface {
	GetAccount(ctx context.Context, id AccountID) (*Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*Account, error)
	// SaveAccount inserts or fully replaces the account row.
	SaveAccount(ctx context.Context, account *Account) error

	GetProfile(ctx context.Context, userID AccountID) (*Profile, error)
	SaveProfile(ctx context.Context, profile *Profile) error

	// ReplaceOwnerNodes deletes the member's owners and inserts nodes.
	ReplaceOwnerNodes(ctx context.Context, userID AccountID, nodes []OwnerNode) error
	ListOwnerNodes(ctx context.Context, userID AccountID) ([]OwnerNode, error)

	// SaveAMLReference replaces any existing reference of the member.
	SaveAMLReference(ctx context.Context, ref *AMLReference) error
	GetAMLReference(ctx context.Context, userID AccountID, referenceID string) (*AMLReference, error)

	// SaveEmailVerification upserts the code keyed by (email, kind).
	SaveEmailVerification(ctx context.Context, v *EmailVerification) error
	GetEmailVerification(ctx context.Context, email string, kind VerificationKind) (*EmailVerification, error)
	// DeleteEmailVerificationsBefore purges codes created before cutoff.
	DeleteEmailVerificationsBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// AccountTx is the per-account mutation scope. RunInTx serializes all
// mutations of one account: fn runs while the account is locked, and every
// write fn makes through store is committed only if fn returns nil.
type AccountTx interface {
	RunInTx(ctx context.Context, id AccountID, fn func(ctx context.Context, store AccountStore) error) error
}

// AccountLocker provides an exclusive per-account lock. The returned release
// function must be called on every exit path.
type AccountLocker interface {
	Lock(ctx context.Context, id AccountID) (release func(), err error)
}
