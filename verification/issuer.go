package verification

import (
	"context"
	"fmt"
	"time"

	"github.com/ruteri/casper-member-portal/cryptoutils"
	"github.com/ruteri/casper-member-portal/interfaces"
)

// MessagePrefix is the fixed instruction in front of every challenge message.
const MessagePrefix = "Please use the Casper Signature python tool to sign this message!"

const (
	messageDateLayout = "01/02/2006"
	nonceLength       = 16
)

// MessageIssuer produces challenge messages and stores them on the account.
//
// By default the message only carries the current UTC date, so every issuance
// on the same day yields the same text. WithNonce appends a random suffix to
// make each issuance unique.
type MessageIssuer struct {
	now   interfaces.Clock
	nonce bool
}

// IssuerOption configures a MessageIssuer.
type IssuerOption func(*MessageIssuer)

// WithClock overrides the time source.
func WithClock(now interfaces.Clock) IssuerOption {
	return func(i *MessageIssuer) { i.now = now }
}

// WithNonce enables a random per-issuance suffix.
func WithNonce(enabled bool) IssuerOption {
	return func(i *MessageIssuer) { i.nonce = enabled }
}

// NewMessageIssuer creates an issuer.
func NewMessageIssuer(opts ...IssuerOption) *MessageIssuer {
	i := &MessageIssuer{now: time.Now}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Message returns the challenge text for t.
func (i *MessageIssuer) Message(t time.Time) (string, error) {
	msg := fmt.Sprintf("%s %s", MessagePrefix, t.UTC().Format(messageDateLayout))
	if !i.nonce {
		return msg, nil
	}

	nonce, err := cryptoutils.RandomString(nonceLength)
	if err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return msg + " " + nonce, nil
}

// Issue overwrites the account's challenge message and persists it through store.
// The account is updated in place only after the write succeeds.
func (i *MessageIssuer) Issue(ctx context.Context, store interfaces.AccountStore, account *interfaces.Account) (string, error) {
	now := i.now()
	msg, err := i.Message(now)
	if err != nil {
		return "", err
	}

	updated := account.Clone()
	updated.MessageContent = msg
	updated.UpdatedAt = now

	if err := store.SaveAccount(ctx, updated); err != nil {
		return "", fmt.Errorf("failed to save challenge message: %w", err)
	}

	*account = *updated
	return msg, nil
}
