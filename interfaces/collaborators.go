package interfaces

import (
	"context"
	"time"
)

// SignatureVerifier decides whether artifact is a valid signature of message
// under claimedPublicKey. It never returns an error: any malformed input is
// reported as false.
type SignatureVerifier interface {
	Verify(artifact []byte, claimedPublicKey string, message string) bool
}

// Mailer delivers transactional email.
type Mailer interface {
	SendVerificationCode(ctx context.Context, to string, code string) error
	SendOwnerInvite(ctx context.Context, to string, registerURL string) error
}

// ESignRequest is an embedded e-signature request created for a member.
type ESignRequest struct {
	SignatureRequestID string `json:"signature_request_id"`
	URL                string `json:"url"`
}

// ESignProvider creates user agreement signature requests.
type ESignProvider interface {
	CreateAgreementRequest(ctx context.Context, account *Account) (*ESignRequest, error)
}

// AMLChecker hands a booked AML reference to the vendor check.
type AMLChecker interface {
	Check(ctx context.Context, ref *AMLReference) error
}

// SessionRevoker revokes the bearer token of the current request.
type SessionRevoker interface {
	Revoke(ctx context.Context, accountID AccountID, tokenID string) error
}

// NodeVerifiedEvent is published after a signature artifact is bound.
type NodeVerifiedEvent struct {
	AccountID  AccountID `json:"account_id"`
	PublicKey  string    `json:"public_key"`
	SignedFile string    `json:"signed_file"`
	VerifiedAt time.Time `json:"verified_at"`
}

// EventPublisher delivers verification-result events to downstream consumers.
type EventPublisher interface {
	PublishNodeVerified(ctx context.Context, event NodeVerifiedEvent) error
}

// Clock returns the current time.
type Clock func() time.Time

// TokenRevocationList records revoked bearer tokens by token id.
type TokenRevocationList interface {
	SessionRevoker
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}
