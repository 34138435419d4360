// Package verification implements the node ownership proof: issuing a
// challenge message, verifying the member's signature of it, and binding the
// verified signature artifact to the account.
package verification

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ruteri/casper-member-portal/interfaces"
	"github.com/ruteri/casper-member-portal/metrics"
)

// RequiredArtifactName is the file name a signature upload must declare.
const RequiredArtifactName = signatureArtifactName

// Service orchestrates challenge issuance and signature binding under the
// per-account transaction scope.
type Service struct {
	tx        interfaces.AccountTx
	issuer    *MessageIssuer
	verifier  interfaces.SignatureVerifier
	committer *BindingCommitter
	events    interfaces.EventPublisher
	metrics   *metrics.Metrics
	log       *slog.Logger
}

// NewService wires the verification flow. events and m may be nil.
func NewService(
	tx interfaces.AccountTx,
	issuer *MessageIssuer,
	verifier interfaces.SignatureVerifier,
	committer *BindingCommitter,
	events interfaces.EventPublisher,
	m *metrics.Metrics,
	log *slog.Logger,
) *Service {
	return &Service{
		tx:        tx,
		issuer:    issuer,
		verifier:  verifier,
		committer: committer,
		events:    events,
		metrics:   m,
		log:       log,
	}
}

// IssueMessage replaces the account's challenge message and returns it.
func (s *Service) IssueMessage(ctx context.Context, accountID interfaces.AccountID) (string, error) {
	var msg string
	err := s.tx.RunInTx(ctx, accountID, func(ctx context.Context, store interfaces.AccountStore) error {
		account, err := store.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}
		msg, err = s.issuer.Issue(ctx, store, account)
		return err
	})
	if err != nil {
		s.storageFailure("issue_message", err)
		return "", err
	}

	if s.metrics != nil {
		s.metrics.ChallengesIssued.Inc()
	}
	s.log.Debug("Issued challenge message", slog.String("account_id", accountID.String()))
	return msg, nil
}

// VerifyAndBind checks that artifact is a signature of the account's active
// challenge under its claimed public key and, if so, binds it to the account.
//
// Errors match interfaces.ErrValidation when the upload is malformed,
// interfaces.ErrVerificationFailed when the signature does not verify, and
// interfaces.ErrPersistence when the binding could not be stored. The
// account is not modified in any of these cases.
func (s *Service) VerifyAndBind(ctx context.Context, accountID interfaces.AccountID, declaredName string, artifact []byte) error {
	if declaredName != RequiredArtifactName {
		s.outcome(metrics.OutcomeInvalid)
		return fmt.Errorf("%w: artifact must be named %q", interfaces.ErrValidation, RequiredArtifactName)
	}

	trimmed := bytes.TrimSpace(artifact)
	if len(trimmed) == 0 {
		s.outcome(metrics.OutcomeInvalid)
		return fmt.Errorf("%w: empty signature artifact", interfaces.ErrValidation)
	}

	var (
		event    interfaces.NodeVerifiedEvent
		previous *interfaces.Account
		undo     Undo
	)
	err := s.tx.RunInTx(ctx, accountID, func(ctx context.Context, store interfaces.AccountStore) error {
		account, err := store.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}

		if account.MessageContent == "" {
			return fmt.Errorf("%w: no challenge message issued", interfaces.ErrValidation)
		}
		if account.PublicAddressNode == "" {
			return fmt.Errorf("%w: no public key submitted", interfaces.ErrValidation)
		}

		if !s.verifier.Verify(trimmed, account.PublicAddressNode, account.MessageContent) {
			return interfaces.ErrVerificationFailed
		}

		previous = account.Clone()
		undo, err = s.committer.Commit(ctx, store, account, trimmed)
		if err != nil {
			return err
		}

		event = interfaces.NodeVerifiedEvent{
			AccountID:  account.ID,
			PublicKey:  account.PublicAddressNode,
			SignedFile: account.SignedFile,
			VerifiedAt: *account.NodeVerifiedAt,
		}
		return nil
	})
	if err != nil && undo != nil {
		// the artifact was written but the account row was not committed
		s.undoBinding(ctx, previous, undo)
		err = &CommitError{Op: "commit transaction", Err: err}
	}

	switch {
	case err == nil:
	case errors.Is(err, interfaces.ErrVerificationFailed):
		s.outcome(metrics.OutcomeRejected)
		s.log.Info("Signature verification failed", slog.String("account_id", accountID.String()))
		return err
	case errors.Is(err, interfaces.ErrValidation):
		s.outcome(metrics.OutcomeInvalid)
		return err
	default:
		s.storageFailure("bind_signature", err)
		return err
	}

	s.outcome(metrics.OutcomeVerified)
	if s.metrics != nil {
		s.metrics.BindingsCommitted.Inc()
	}
	s.log.Info("Node signature bound",
		slog.String("account_id", accountID.String()),
		slog.String("signed_file", event.SignedFile))

	s.publish(ctx, event)
	return nil
}

// undoBinding restores the artifact replaced by a binding whose transaction
// failed to commit. It is skipped when another binding committed in between.
// If the account cannot be read the artifact is restored regardless.
func (s *Service) undoBinding(ctx context.Context, previous *interfaces.Account, undo Undo) {
	ctx = context.WithoutCancel(ctx)
	err := s.tx.RunInTx(ctx, previous.ID, func(ctx context.Context, store interfaces.AccountStore) error {
		current, err := store.GetAccount(ctx, previous.ID)
		if err != nil {
			return err
		}
		if !sameBinding(current, previous) {
			s.log.Info("Account re-bound concurrently, keeping stored artifact",
				slog.String("account_id", previous.ID.String()))
			return nil
		}
		undo(ctx)
		return nil
	})
	if err != nil {
		s.log.Warn("Could not re-read account, restoring previous artifact",
			slog.String("account_id", previous.ID.String()),
			"err", err)
		undo(ctx)
	}
}

func sameBinding(a, b *interfaces.Account) bool {
	if a.SignedFile != b.SignedFile {
		return false
	}
	if a.NodeVerifiedAt == nil || b.NodeVerifiedAt == nil {
		return a.NodeVerifiedAt == nil && b.NodeVerifiedAt == nil
	}
	return a.NodeVerifiedAt.Equal(*b.NodeVerifiedAt)
}

// publish delivers the event without affecting the committed binding.
func (s *Service) publish(ctx context.Context, event interfaces.NodeVerifiedEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishNodeVerified(ctx, event); err != nil {
		if s.metrics != nil {
			s.metrics.EventPublishFailures.Inc()
		}
		s.log.Warn("Failed to publish node verified event",
			slog.String("account_id", event.AccountID.String()),
			"err", err)
	}
}

func (s *Service) outcome(outcome string) {
	if s.metrics != nil {
		s.metrics.VerificationOutcomes.WithLabelValues(outcome).Inc()
	}
}

func (s *Service) storageFailure(op string, err error) {
	if !errors.Is(err, interfaces.ErrPersistence) {
		return
	}
	if s.metrics != nil {
		s.metrics.StorageFailures.WithLabelValues(op).Inc()
	}
	s.log.Error("Durable write failed", slog.String("op", op), "err", err)
}
