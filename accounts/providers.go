package accounts

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/ruteri/casper-member-portal/interfaces"
)

// LogESignProvider issues local signature request ids and logs them. It
// stands in for a hosted e-signature vendor in development deployments.
type LogESignProvider struct {
	baseURL string
	log     *slog.Logger
}

// NewLogESignProvider creates a provider whose request URLs start with baseURL.
func NewLogESignProvider(baseURL string, log *slog.Logger) *LogESignProvider {
	return &LogESignProvider{baseURL: baseURL, log: log}
}

// CreateAgreementRequest implements interfaces.ESignProvider.
func (p *LogESignProvider) CreateAgreementRequest(ctx context.Context, account *interfaces.Account) (*interfaces.ESignRequest, error) {
	id := uuid.NewString()
	p.log.Info("Created user agreement signature request",
		slog.String("account_id", account.ID.String()),
		slog.String("signature_request_id", id))

	return &interfaces.ESignRequest{
		SignatureRequestID: id,
		URL:                fmt.Sprintf("%s/sign/%s", p.baseURL, id),
	}, nil
}

// LogAMLChecker accepts every booked reference.
type LogAMLChecker struct {
	log *slog.Logger
}

// NewLogAMLChecker creates a checker that only logs the references it receives.
func NewLogAMLChecker(log *slog.Logger) *LogAMLChecker {
	return &LogAMLChecker{log: log}
}

// Check implements interfaces.AMLChecker.
func (c *LogAMLChecker) Check(ctx context.Context, ref *interfaces.AMLReference) error {
	c.log.Info("AML reference booked",
		slog.String("account_id", ref.UserID.String()),
		slog.String("reference_id", ref.ReferenceID))
	return nil
}
