package interfaces

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AccountID identifies a member account.
type AccountID = uuid.UUID

// NewAccountIDFromString parses a textual account identifier.
func NewAccountIDFromString(s string) (AccountID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return AccountID{}, fmt.Errorf("%w: invalid account id: %v", ErrValidation, err)
	}
	return id, nil
}

// AccountType distinguishes individual members from legal entities.
type AccountType string

const (
	IndividualAccount AccountType = "individual"
	EntityAccount     AccountType = "entity"
)

// MemberStatus is the onboarding status shown to administrators.
type MemberStatus string

const (
	MemberStatusNew        MemberStatus = "new"
	MemberStatusIncomplete MemberStatus = "incomplete"
	MemberStatusApproved   MemberStatus = "approved"
)

// Account is the member record mutated by the onboarding flows.
//
// NodeVerifiedAt is non-nil if and only if SignedFile references an artifact
// that was validated against the MessageContent active at validation time.
type Account struct {
	ID              AccountID
	Email           string
	EmailVerifiedAt *time.Time
	PasswordHash    string
	FirstName       string
	LastName        string
	Type            AccountType
	MemberStatus    MemberStatus

	// e-signature (user agreement)
	SignatureRequestID string
	HellosignForm      string
	LetterFile         string

	// PublicAddressNode is the claimed node public key, unverified until bound.
	PublicAddressNode string
	// MessageContent is the active challenge message.
	MessageContent string
	// SignedFile is the storage reference of the bound signature artifact.
	SignedFile     string
	NodeVerifiedAt *time.Time

	KYCVerifiedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	c.EmailVerifiedAt = cloneTime(a.EmailVerifiedAt)
	c.NodeVerifiedAt = cloneTime(a.NodeVerifiedAt)
	c.KYCVerifiedAt = cloneTime(a.KYCVerifiedAt)
	return &c
}

// NodeVerified reports whether a signature artifact has been bound.
func (a *Account) NodeVerified() bool {
	return a.NodeVerifiedAt != nil && a.SignedFile != ""
}

// OwnerNodeType records whether the member operates the node alone (1) or
// declares additional beneficial owners (2).
type OwnerNodeType int

const (
	OwnerNodeSole     OwnerNodeType = 1
	OwnerNodeMultiple OwnerNodeType = 2
)

// Valid reports whether t is a known owner node type.
func (t OwnerNodeType) Valid() bool {
	return t == OwnerNodeSole || t == OwnerNodeMultiple
}

// Profile is the KYC profile submitted by a member.
type Profile struct {
	UserID             AccountID     `json:"user_id"`
	FirstName          string        `json:"first_name"`
	LastName           string        `json:"last_name"`
	DOB                string        `json:"dob"`
	CountryCitizenship string        `json:"country_citizenship"`
	CountryResidence   string        `json:"country_residence"`
	Address            string        `json:"address"`
	City               string        `json:"city"`
	Zip                string        `json:"zip"`
	TypeOwnerNode      OwnerNodeType `json:"type_owner_node"`
	Type               AccountType   `json:"type"`
	EntityName         string        `json:"entity_name,omitempty"`
	EntityType         string        `json:"entity_type,omitempty"`
	EntityRegisterNo   string        `json:"entity_register_number,omitempty"`
	EntityCountry      string        `json:"entity_register_country,omitempty"`
	EntityTax          string        `json:"entity_tax,omitempty"`
}

// OwnerNode is a declared beneficial owner of the member's node.
type OwnerNode struct {
	UserID    AccountID `json:"user_id"`
	Email     string    `json:"email"`
	Percent   float64   `json:"percent"`
	CreatedAt time.Time `json:"created_at"`
}

// AMLStatus tracks a third-party AML check reference.
type AMLStatus string

const (
	AMLStatusPending AMLStatus = "pending"
	AMLStatusBooked  AMLStatus = "booked"
)

// AMLReference is the vendor reference of a pending AML check.
type AMLReference struct {
	UserID      AccountID
	ReferenceID string
	Status      AMLStatus
	CreatedAt   time.Time
}

// VerificationKind is the purpose of an emailed verification code.
type VerificationKind string

const VerifyEmail VerificationKind = "verify_email"

// EmailVerification is an outstanding emailed verification code.
type EmailVerification struct {
	Email     string
	Kind      VerificationKind
	Code      string
	CreatedAt time.Time
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
