package mailer

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendGridMailer(t *testing.T) {
	var got struct {
		From struct {
			Email string `json:"email"`
		} `json:"from"`
		Subject          string `json:"subject"`
		Personalizations []struct {
			To []struct {
				Email string `json:"email"`
			} `json:"to"`
		} `json:"personalizations"`
		MailSettings struct {
			SandboxMode struct {
				Enable bool `json:"enable"`
			} `json:"sandbox_mode"`
		} `json:"mail_settings"`
	}
	var auth, path string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		path = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	m, err := NewSendGridMailer(Config{
		APIKey:    "SG.test",
		FromName:  "Portal",
		FromEmail: "noreply@example.com",
		Host:      srv.URL,
		Sandbox:   true,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	require.NoError(t, m.SendVerificationCode(context.Background(), "member@example.com", "ABC1234"))

	assert.Equal(t, "Bearer SG.test", auth)
	assert.Equal(t, "/v3/mail/send", path)
	assert.Equal(t, "noreply@example.com", got.From.Email)
	assert.Equal(t, "Verify your email address", got.Subject)
	require.Len(t, got.Personalizations, 1)
	assert.Equal(t, "member@example.com", got.Personalizations[0].To[0].Email)
	assert.True(t, got.MailSettings.SandboxMode.Enable)
}

func TestSendGridMailer_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"errors":[{"message":"bad key"}]}`))
	}))
	defer srv.Close()

	m, err := NewSendGridMailer(Config{APIKey: "bad", FromEmail: "noreply@example.com", Host: srv.URL},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	err = m.SendOwnerInvite(context.Background(), "owner@example.com", "https://portal.example.com/register")
	assert.ErrorContains(t, err, "status 401")
}

func TestNewSendGridMailer_RequiresConfig(t *testing.T) {
	_, err := NewSendGridMailer(Config{FromEmail: "noreply@example.com"}, slog.Default())
	assert.Error(t, err)
	_, err = NewSendGridMailer(Config{APIKey: "k"}, slog.Default())
	assert.Error(t, err)
}

func TestOwnerInviteContent(t *testing.T) {
	_, plain, html := ownerInviteContent("https://portal.example.com/register")
	assert.Contains(t, plain, "https://portal.example.com/register")
	assert.Contains(t, html, `href="https://portal.example.com/register"`)
}
