package accounts

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/casper-member-portal/interfaces"
	"github.com/ruteri/casper-member-portal/storage"
	"github.com/ruteri/casper-member-portal/store"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 10, 14, 15, 4, 5, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// MockMailer implements interfaces.Mailer for testing
type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) SendVerificationCode(ctx context.Context, to string, code string) error {
	return m.Called(ctx, to, code).Error(0)
}

func (m *MockMailer) SendOwnerInvite(ctx context.Context, to string, registerURL string) error {
	return m.Called(ctx, to, registerURL).Error(0)
}

// MockAMLChecker implements interfaces.AMLChecker for testing
type MockAMLChecker struct {
	mock.Mock
}

func (m *MockAMLChecker) Check(ctx context.Context, ref *interfaces.AMLReference) error {
	return m.Called(ctx, ref).Error(0)
}

type testEnv struct {
	svc      *Service
	store    *store.MemoryStore
	blobs    *storage.FileBackend
	mailer   *MockMailer
	aml      *MockAMLChecker
	sessions *store.MemoryRevocationList
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	log := discardLogger()

	blobs, err := storage.NewFileBackend(t.TempDir(), log)
	require.NoError(t, err)

	env := &testEnv{
		store:    store.NewMemoryStore(),
		blobs:    blobs,
		mailer:   &MockMailer{},
		aml:      &MockAMLChecker{},
		sessions: store.NewMemoryRevocationList(time.Hour),
	}
	env.svc = NewService(cfg, Dependencies{
		Tx:       env.store,
		Store:    env.store,
		Blobs:    env.blobs,
		Mailer:   env.mailer,
		ESign:    NewLogESignProvider("https://esign.example.com", log),
		AML:      env.aml,
		Sessions: env.sessions,
		Clock:    func() time.Time { return testNow },
	}, log)
	return env
}

func (e *testEnv) seedAccount(t *testing.T, email string) *interfaces.Account {
	t.Helper()
	a := &interfaces.Account{
		ID:           uuid.New(),
		Email:        email,
		FirstName:    "Ada",
		LastName:     "Lovelace",
		Type:         interfaces.IndividualAccount,
		MemberStatus: interfaces.MemberStatusNew,
		CreatedAt:    testNow.Add(-time.Hour),
		UpdatedAt:    testNow.Add(-time.Hour),
	}
	require.NoError(t, e.store.SaveAccount(context.Background(), a))
	return a
}

func (e *testEnv) account(t *testing.T, id interfaces.AccountID) *interfaces.Account {
	t.Helper()
	a, err := e.store.GetAccount(context.Background(), id)
	require.NoError(t, err)
	return a
}

func validKYC() SubmitKYCRequest {
	return SubmitKYCRequest{
		FirstName:          "Ada",
		LastName:           "Lovelace",
		DOB:                "12/10/1985",
		CountryCitizenship: "United Kingdom",
		CountryResidence:   "United Kingdom",
		Address:            "12 St James's Square",
		City:               "London",
		Zip:                "SW1Y 4LB",
	}
}
