// Package accounts implements the authenticated member operations of the
// onboarding flow: contact details, agreement and letter uploads, KYC
// profile, declared node owners and AML references.
package accounts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/ruteri/casper-member-portal/cryptoutils"
	"github.com/ruteri/casper-member-portal/interfaces"
)

const (
	// MaxLetterSize bounds uploaded letters.
	MaxLetterSize = 20000 * 1024

	verificationCodeLength = 7
	registerPath           = "/register-type"
)

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Config holds deployment switches of the account service.
type Config struct {
	// AllowBypass enables VerifyBypass. Never set in production.
	AllowBypass bool
	// DefaultOrigin builds invitation links when the request carries no Origin.
	DefaultOrigin string
}

// Service implements the member operations. All mutations of one account run
// inside its transaction scope.
type Service struct {
	cfg      Config
	tx       interfaces.AccountTx
	store    interfaces.AccountStore
	blobs    interfaces.BlobStorage
	mailer   interfaces.Mailer
	esign    interfaces.ESignProvider
	aml      interfaces.AMLChecker
	sessions interfaces.SessionRevoker
	now      interfaces.Clock
	log      *slog.Logger
}

// Dependencies groups the collaborators of the Service.
type Dependencies struct {
	Tx       interfaces.AccountTx
	Store    interfaces.AccountStore
	Blobs    interfaces.BlobStorage
	Mailer   interfaces.Mailer
	ESign    interfaces.ESignProvider
	AML      interfaces.AMLChecker
	Sessions interfaces.SessionRevoker
	Clock    interfaces.Clock
}

// NewService creates the account service.
func NewService(cfg Config, deps Dependencies, log *slog.Logger) *Service {
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	return &Service{
		cfg:      cfg,
		tx:       deps.Tx,
		store:    deps.Store,
		blobs:    deps.Blobs,
		mailer:   deps.Mailer,
		esign:    deps.ESign,
		aml:      deps.AML,
		sessions: deps.Sessions,
		now:      now,
		log:      log,
	}
}

// update loads the account inside its transaction, applies mutate and saves it.
func (s *Service) update(ctx context.Context, id interfaces.AccountID, mutate func(ctx context.Context, store interfaces.AccountStore, account *interfaces.Account) error) error {
	return s.tx.RunInTx(ctx, id, func(ctx context.Context, store interfaces.AccountStore) error {
		account, err := store.GetAccount(ctx, id)
		if err != nil {
			return err
		}
		if err := mutate(ctx, store, account); err != nil {
			return err
		}
		account.UpdatedAt = s.now()
		return store.SaveAccount(ctx, account)
	})
}

// ChangeEmail replaces the account email, marks it unverified and emails a new code.
func (s *Service) ChangeEmail(ctx context.Context, id interfaces.AccountID, req ChangeEmailRequest) error {
	if err := validateRequest(req); err != nil {
		return err
	}

	code, err := cryptoutils.RandomString(verificationCodeLength)
	if err != nil {
		return fmt.Errorf("failed to generate verification code: %w", err)
	}

	return s.update(ctx, id, func(ctx context.Context, store interfaces.AccountStore, account *interfaces.Account) error {
		existing, err := store.GetAccountByEmail(ctx, req.Email)
		switch {
		case err == nil && existing.ID != account.ID:
			return fmt.Errorf("%w: email already in use", interfaces.ErrValidation)
		case err != nil && !errors.Is(err, interfaces.ErrNotFound):
			return err
		}

		account.Email = req.Email
		account.EmailVerifiedAt = nil

		err = store.SaveEmailVerification(ctx, &interfaces.EmailVerification{
			Email:     req.Email,
			Kind:      interfaces.VerifyEmail,
			Code:      code,
			CreatedAt: s.now(),
		})
		if err != nil {
			return err
		}

		// sent inside the transaction so a failed delivery leaves the old email in place
		if err := s.mailer.SendVerificationCode(ctx, req.Email, code); err != nil {
			return fmt.Errorf("failed to send verification code: %w", err)
		}
		return nil
	})
}

// ChangePassword stores a new password hash. The new password must differ
// from the current one.
func (s *Service) ChangePassword(ctx context.Context, id interfaces.AccountID, req ChangePasswordRequest) error {
	if err := validateRequest(req); err != nil {
		return err
	}

	return s.update(ctx, id, func(ctx context.Context, store interfaces.AccountStore, account *interfaces.Account) error {
		if cryptoutils.PasswordMatches(account.PasswordHash, req.NewPassword) {
			return fmt.Errorf("%w: new password must differ from the current password", interfaces.ErrValidation)
		}
		hash, err := cryptoutils.HashPassword(req.NewPassword)
		if err != nil {
			return err
		}
		account.PasswordHash = hash
		return nil
	})
}

// GetProfile returns the account with its KYC profile, if submitted.
func (s *Service) GetProfile(ctx context.Context, id interfaces.AccountID) (*AccountView, error) {
	account, err := s.store.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}

	profile, err := s.store.GetProfile(ctx, id)
	if err != nil && !errors.Is(err, interfaces.ErrNotFound) {
		return nil, err
	}
	return newAccountView(account, profile), nil
}

// Logout revokes the bearer token identified by tokenID.
func (s *Service) Logout(ctx context.Context, id interfaces.AccountID, tokenID string) error {
	if err := s.sessions.Revoke(ctx, id, tokenID); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

// UploadLetter stores a PDF letter and records its path on the account.
func (s *Service) UploadLetter(ctx context.Context, id interfaces.AccountID, filename string, data []byte) (string, error) {
	ext := filepath.Ext(filename)
	if !strings.EqualFold(ext, ".pdf") {
		return "", fmt.Errorf("%w: letter must be a PDF file", interfaces.ErrValidation)
	}
	if len(data) == 0 || len(data) > MaxLetterSize {
		return "", fmt.Errorf("%w: letter must be between 1 byte and %d bytes", interfaces.ErrValidation, MaxLetterSize)
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		return "", fmt.Errorf("%w: letter is not a PDF document", interfaces.ErrValidation)
	}

	base := unsafeNameChars.ReplaceAllString(strings.TrimSuffix(filepath.Base(filename), ext), "_")
	base = strings.Trim(base, "._")
	if base == "" {
		base = "letter"
	}

	path, err := interfaces.NewBlobPath("users", fmt.Sprintf("%s_%d.pdf", base, s.now().Unix()))
	if err != nil {
		return "", err
	}

	if err := s.blobs.Put(ctx, path, data); err != nil {
		return "", fmt.Errorf("%w: failed to store letter: %v", interfaces.ErrPersistence, err)
	}

	err = s.update(ctx, id, func(ctx context.Context, store interfaces.AccountStore, account *interfaces.Account) error {
		account.LetterFile = path.String()
		return nil
	})
	if err != nil {
		return "", err
	}
	return path.String(), nil
}

// SendESignRequest creates a user agreement signature request for the member.
func (s *Service) SendESignRequest(ctx context.Context, id interfaces.AccountID) (*interfaces.ESignRequest, error) {
	var req *interfaces.ESignRequest
	err := s.update(ctx, id, func(ctx context.Context, store interfaces.AccountStore, account *interfaces.Account) error {
		var err error
		req, err = s.esign.CreateAgreementRequest(ctx, account)
		if err != nil {
			return fmt.Errorf("failed to create signature request: %w", err)
		}
		account.SignatureRequestID = req.SignatureRequestID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

// VerifyBypass fills in onboarding steps without performing them. It is only
// available when the deployment enables it.
func (s *Service) VerifyBypass(ctx context.Context, id interfaces.AccountID, req VerifyBypassRequest) error {
	if !s.cfg.AllowBypass {
		return fmt.Errorf("%w: verification bypass is disabled", interfaces.ErrForbidden)
	}
	if err := validateRequest(req); err != nil {
		return err
	}

	return s.update(ctx, id, func(ctx context.Context, store interfaces.AccountStore, account *interfaces.Account) error {
		now := s.now()
		switch req.Type {
		case BypassHellosign:
			account.SignatureRequestID = "signature_" + account.ID.String()
			account.HellosignForm = "hellosign_form_" + account.ID.String()
			account.LetterFile = "letter_file.pdf"
		case BypassVerifyNode:
			account.PublicAddressNode = "public_address_node" + account.ID.String()
			account.MessageContent = "message_content"
			account.SignedFile = "signature"
			account.NodeVerifiedAt = &now
		case BypassSubmitKYC:
			account.KYCVerifiedAt = &now
			_, err := store.GetProfile(ctx, account.ID)
			if errors.Is(err, interfaces.ErrNotFound) {
				return store.SaveProfile(ctx, placeholderProfile(account))
			}
			return err
		}
		return nil
	})
}

func placeholderProfile(account *interfaces.Account) *interfaces.Profile {
	return &interfaces.Profile{
		UserID:             account.ID,
		FirstName:          account.FirstName,
		LastName:           account.LastName,
		DOB:                "1990-01-01",
		CountryCitizenship: "United States",
		CountryResidence:   "United States",
		Address:            "New York",
		City:               "New York",
		Zip:                "10025",
		TypeOwnerNode:      interfaces.OwnerNodeSole,
		Type:               account.Type,
	}
}

// SubmitPublicAddress records the member's claimed node public key. A
// different key invalidates any existing binding.
func (s *Service) SubmitPublicAddress(ctx context.Context, id interfaces.AccountID, req SubmitPublicAddressRequest) error {
	if err := validateRequest(req); err != nil {
		return err
	}

	key, err := cryptoutils.ParseCasperPublicKey(req.PublicAddress)
	if err != nil {
		return fmt.Errorf("%w: invalid public key: %v", interfaces.ErrValidation, err)
	}
	canonical := key.String()

	return s.update(ctx, id, func(ctx context.Context, store interfaces.AccountStore, account *interfaces.Account) error {
		if account.PublicAddressNode != canonical {
			account.SignedFile = ""
			account.NodeVerifiedAt = nil
		}
		account.PublicAddressNode = canonical
		return nil
	})
}

// SubmitKYC stores the member's KYC profile and marks the membership incomplete
// pending review.
func (s *Service) SubmitKYC(ctx context.Context, id interfaces.AccountID, req SubmitKYCRequest) error {
	if err := validateRequest(req); err != nil {
		return err
	}
	dob, err := normalizeDOB(req.DOB)
	if err != nil {
		return err
	}

	return s.update(ctx, id, func(ctx context.Context, store interfaces.AccountStore, account *interfaces.Account) error {
		profile, err := store.GetProfile(ctx, id)
		if errors.Is(err, interfaces.ErrNotFound) {
			profile = &interfaces.Profile{UserID: id}
		} else if err != nil {
			return err
		}

		profile.FirstName = req.FirstName
		profile.LastName = req.LastName
		profile.DOB = dob
		profile.CountryCitizenship = req.CountryCitizenship
		profile.CountryResidence = req.CountryResidence
		profile.Address = req.Address
		profile.City = req.City
		profile.Zip = req.Zip
		if req.TypeOwnerNode != 0 {
			profile.TypeOwnerNode = interfaces.OwnerNodeType(req.TypeOwnerNode)
		}
		profile.Type = account.Type
		if req.Type != "" {
			profile.Type = interfaces.AccountType(req.Type)
		}
		profile.EntityName = req.EntityName
		profile.EntityType = req.EntityType
		profile.EntityRegisterNo = req.EntityRegisterNo
		profile.EntityCountry = req.EntityCountry
		profile.EntityTax = req.EntityTax

		if err := store.SaveProfile(ctx, profile); err != nil {
			return err
		}
		account.MemberStatus = interfaces.MemberStatusIncomplete
		return nil
	})
}

// VerifyOwnerNode records the owner node type on the profile. Without a
// profile there is nothing to update.
func (s *Service) VerifyOwnerNode(ctx context.Context, id interfaces.AccountID, req OwnerNodeTypeRequest) error {
	if err := validateRequest(req); err != nil {
		return err
	}

	return s.tx.RunInTx(ctx, id, func(ctx context.Context, store interfaces.AccountStore) error {
		profile, err := store.GetProfile(ctx, id)
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		profile.TypeOwnerNode = interfaces.OwnerNodeType(req.Type)
		return store.SaveProfile(ctx, profile)
	})
}

// UpdateTypeOwnerNode records the owner node type. A sole owner completes KYC.
func (s *Service) UpdateTypeOwnerNode(ctx context.Context, id interfaces.AccountID, req OwnerNodeTypeRequest) error {
	if err := validateRequest(req); err != nil {
		return err
	}

	return s.update(ctx, id, func(ctx context.Context, store interfaces.AccountStore, account *interfaces.Account) error {
		profile, err := store.GetProfile(ctx, id)
		if errors.Is(err, interfaces.ErrNotFound) {
			return fmt.Errorf("%w: submit KYC before choosing the owner node type", interfaces.ErrValidation)
		}
		if err != nil {
			return err
		}

		profile.TypeOwnerNode = interfaces.OwnerNodeType(req.Type)
		if err := store.SaveProfile(ctx, profile); err != nil {
			return err
		}
		if profile.TypeOwnerNode == interfaces.OwnerNodeSole {
			now := s.now()
			account.KYCVerifiedAt = &now
		}
		return nil
	})
}

// AddOwnerNodes replaces the member's declared owners and invites those
// without an account. Ownership shares must total less than 100 percent.
func (s *Service) AddOwnerNodes(ctx context.Context, id interfaces.AccountID, origin string, owners []OwnerNodeInput) error {
	if err := validateRequest(ownerNodesRequest{Owners: owners}); err != nil {
		return err
	}

	var total float64
	seen := make(map[string]struct{}, len(owners))
	nodes := make([]interfaces.OwnerNode, 0, len(owners))
	now := s.now()
	for _, o := range owners {
		email := strings.ToLower(strings.TrimSpace(o.Email))
		if _, dup := seen[email]; dup {
			return fmt.Errorf("%w: duplicate owner %s", interfaces.ErrValidation, email)
		}
		seen[email] = struct{}{}
		total += o.Percent
		nodes = append(nodes, interfaces.OwnerNode{UserID: id, Email: email, Percent: o.Percent, CreatedAt: now})
	}
	if total >= 100 {
		return fmt.Errorf("%w: total percent must be less than 100", interfaces.ErrValidation)
	}

	err := s.update(ctx, id, func(ctx context.Context, store interfaces.AccountStore, account *interfaces.Account) error {
		if err := store.ReplaceOwnerNodes(ctx, id, nodes); err != nil {
			return err
		}
		account.KYCVerifiedAt = &now
		return nil
	})
	if err != nil {
		return err
	}

	link := s.registerURL(origin)
	for _, n := range nodes {
		if err := s.inviteIfUnregistered(ctx, n.Email, link); err != nil {
			// the owner list is saved; a missed invite can be resent
			s.log.Warn("Failed to invite owner",
				slog.String("account_id", id.String()),
				slog.String("owner_email", n.Email),
				"err", err)
		}
	}
	return nil
}

// GetOwnerNodes lists the declared owners with their own KYC state.
func (s *Service) GetOwnerNodes(ctx context.Context, id interfaces.AccountID) (*OwnerNodesView, error) {
	account, err := s.store.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	nodes, err := s.store.ListOwnerNodes(ctx, id)
	if err != nil {
		return nil, err
	}

	view := &OwnerNodesView{KYCVerifiedAt: account.KYCVerifiedAt, OwnerNodes: make([]OwnerNodeView, 0, len(nodes))}
	for _, n := range nodes {
		entry := OwnerNodeView{OwnerNode: n}
		owner, err := s.store.GetAccountByEmail(ctx, n.Email)
		switch {
		case err == nil:
			entry.KYCVerifiedAt = owner.KYCVerifiedAt
		case !errors.Is(err, interfaces.ErrNotFound):
			return nil, err
		}
		view.OwnerNodes = append(view.OwnerNodes, entry)
	}
	return view, nil
}

// ResendOwnerNodeInvite re-sends the invitation to one declared owner.
func (s *Service) ResendOwnerNodeInvite(ctx context.Context, id interfaces.AccountID, origin string, req ResendInviteRequest) error {
	if err := validateRequest(req); err != nil {
		return err
	}

	nodes, err := s.store.ListOwnerNodes(ctx, id)
	if err != nil {
		return err
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	for _, n := range nodes {
		if n.Email == email {
			return s.inviteIfUnregistered(ctx, email, s.registerURL(origin))
		}
	}
	return fmt.Errorf("%w: %s is not a declared owner", interfaces.ErrNotFound, email)
}

func (s *Service) inviteIfUnregistered(ctx context.Context, email, link string) error {
	_, err := s.store.GetAccountByEmail(ctx, email)
	if err == nil {
		return nil
	}
	if !errors.Is(err, interfaces.ErrNotFound) {
		return err
	}
	return s.mailer.SendOwnerInvite(ctx, email, link)
}

func (s *Service) registerURL(origin string) string {
	if origin == "" {
		origin = s.cfg.DefaultOrigin
	}
	return strings.TrimSuffix(origin, "/") + registerPath
}

// SaveAMLReference replaces the member's pending AML check reference.
func (s *Service) SaveAMLReference(ctx context.Context, id interfaces.AccountID, req AMLReferenceRequest) error {
	if err := validateRequest(req); err != nil {
		return err
	}

	return s.tx.RunInTx(ctx, id, func(ctx context.Context, store interfaces.AccountStore) error {
		return store.SaveAMLReference(ctx, &interfaces.AMLReference{
			UserID:      id,
			ReferenceID: req.ReferenceID,
			Status:      interfaces.AMLStatusPending,
			CreatedAt:   s.now(),
		})
	})
}

// UpdateAMLReference marks the reference booked and hands it to the AML check.
func (s *Service) UpdateAMLReference(ctx context.Context, id interfaces.AccountID, req AMLReferenceRequest) error {
	if err := validateRequest(req); err != nil {
		return err
	}

	return s.tx.RunInTx(ctx, id, func(ctx context.Context, store interfaces.AccountStore) error {
		ref, err := store.GetAMLReference(ctx, id, req.ReferenceID)
		if err != nil {
			return err
		}
		ref.Status = interfaces.AMLStatusBooked
		if err := store.SaveAMLReference(ctx, ref); err != nil {
			return err
		}
		if err := s.aml.Check(ctx, ref); err != nil {
			return fmt.Errorf("AML check failed: %w", err)
		}
		return nil
	})
}
