package accounts

import (
	"time"

	"github.com/ruteri/casper-member-portal/interfaces"
)

// AccountView is the account as returned to its owner. Credentials are never included.
type AccountView struct {
	ID                 interfaces.AccountID    `json:"id"`
	Email              string                  `json:"email"`
	EmailVerifiedAt    *time.Time              `json:"email_verified_at"`
	FirstName          string                  `json:"first_name"`
	LastName           string                  `json:"last_name"`
	Type               interfaces.AccountType  `json:"type"`
	MemberStatus       interfaces.MemberStatus `json:"member_status"`
	SignatureRequestID string                  `json:"signature_request_id"`
	HellosignForm      string                  `json:"hellosign_form"`
	LetterFile         string                  `json:"letter_file"`
	PublicAddressNode  string                  `json:"public_address_node"`
	MessageContent     string                  `json:"message_content"`
	SignedFile         string                  `json:"signed_file"`
	NodeVerifiedAt     *time.Time              `json:"node_verified_at"`
	KYCVerifiedAt      *time.Time              `json:"kyc_verified_at"`
	CreatedAt          time.Time               `json:"created_at"`
	UpdatedAt          time.Time               `json:"updated_at"`
	Profile            *interfaces.Profile     `json:"profile"`
}

func newAccountView(a *interfaces.Account, p *interfaces.Profile) *AccountView {
	return &AccountView{
		ID:                 a.ID,
		Email:              a.Email,
		EmailVerifiedAt:    a.EmailVerifiedAt,
		FirstName:          a.FirstName,
		LastName:           a.LastName,
		Type:               a.Type,
		MemberStatus:       a.MemberStatus,
		SignatureRequestID: a.SignatureRequestID,
		HellosignForm:      a.HellosignForm,
		LetterFile:         a.LetterFile,
		PublicAddressNode:  a.PublicAddressNode,
		MessageContent:     a.MessageContent,
		SignedFile:         a.SignedFile,
		NodeVerifiedAt:     a.NodeVerifiedAt,
		KYCVerifiedAt:      a.KYCVerifiedAt,
		CreatedAt:          a.CreatedAt,
		UpdatedAt:          a.UpdatedAt,
		Profile:            p,
	}
}

// OwnerNodeView is a declared owner with the owner's own KYC state, if registered.
type OwnerNodeView struct {
	interfaces.OwnerNode
	KYCVerifiedAt *time.Time `json:"kyc_verified_at"`
}

// OwnerNodesView is returned by GET /users/owner-nodes.
type OwnerNodesView struct {
	KYCVerifiedAt *time.Time      `json:"kyc_verified_at"`
	OwnerNodes    []OwnerNodeView `json:"owner_node"`
}
