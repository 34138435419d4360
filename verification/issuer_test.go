package verification

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ruteri/casper-member-portal/interfaces"
	"github.com/ruteri/casper-member-portal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageIssuer_Message(t *testing.T) {
	issuer := NewMessageIssuer()

	msg, err := issuer.Message(testDay)
	require.NoError(t, err)
	assert.Equal(t, "Please use the Casper Signature python tool to sign this message! 10/14/2026", msg)

	sameDay, err := issuer.Message(testDay.Add(8 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, msg, sameDay)

	nextDay, err := issuer.Message(testDay.Add(9 * time.Hour))
	require.NoError(t, err)
	assert.NotEqual(t, msg, nextDay)
	assert.True(t, strings.HasSuffix(nextDay, "10/15/2026"))
}

func TestMessageIssuer_UsesUTCDate(t *testing.T) {
	issuer := NewMessageIssuer()
	tz := time.FixedZone("UTC-10", -10*3600)

	// 20:00 local on the 13th is already the 14th in UTC
	msg, err := issuer.Message(time.Date(2026, 10, 13, 20, 0, 0, 0, tz))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(msg, "10/14/2026"))
}

func TestMessageIssuer_Nonce(t *testing.T) {
	issuer := NewMessageIssuer(WithNonce(true))

	a, err := issuer.Message(testDay)
	require.NoError(t, err)
	b, err := issuer.Message(testDay)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, MessagePrefix+" 10/14/2026 "))
}

func TestMessageIssuer_Issue(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	account := seedAccount(t, s, "")
	account.MessageContent = "stale"

	issuer := NewMessageIssuer(WithClock(fixedClock(testDay)))
	msg, err := issuer.Issue(ctx, s, account)
	require.NoError(t, err)
	assert.Equal(t, msg, account.MessageContent)

	stored, err := s.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, msg, stored.MessageContent)
}

type failingStore struct {
	*store.MemoryStore
}

func (f failingStore) SaveAccount(ctx context.Context, account *interfaces.Account) error {
	return interfaces.ErrPersistence
}

func TestMessageIssuer_IssueFailure(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	account := seedAccount(t, s, "")

	issuer := NewMessageIssuer(WithClock(fixedClock(testDay)))
	_, err := issuer.Issue(ctx, failingStore{s}, account)
	assert.ErrorIs(t, err, interfaces.ErrPersistence)
	assert.Empty(t, account.MessageContent)
}
