package accounts

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ruteri/casper-member-portal/interfaces"
)

var validate = validator.New()

// ChangeEmailRequest is the body of POST /users/change-email.
type ChangeEmailRequest struct {
	Email string `json:"email" validate:"required,email,max=255"`
}

// ChangePasswordRequest is the body of POST /users/change-password.
type ChangePasswordRequest struct {
	NewPassword string `json:"new_password" validate:"required,min=8,max=72"`
}

// Bypass types accepted by VerifyBypass.
const (
	BypassHellosign  = "hellosign"
	BypassVerifyNode = "verify-node"
	BypassSubmitKYC  = "submit-kyc"
)

// VerifyBypassRequest is the body of POST /users/verify-bypass.
type VerifyBypassRequest struct {
	Type string `json:"type" validate:"required,oneof=hellosign verify-node submit-kyc"`
}

// SubmitPublicAddressRequest is the body of POST /users/submit-public-address.
type SubmitPublicAddressRequest struct {
	PublicAddress string `json:"public_address" validate:"required,max=140"`
}

// SubmitKYCRequest is the body of POST /users/submit-kyc.
type SubmitKYCRequest struct {
	FirstName          string `json:"first_name" validate:"required,max=255"`
	LastName           string `json:"last_name" validate:"required,max=255"`
	DOB                string `json:"dob" validate:"required"`
	CountryCitizenship string `json:"country_citizenship" validate:"required,max=255"`
	CountryResidence   string `json:"country_residence" validate:"required,max=255"`
	Address            string `json:"address" validate:"required,max=255"`
	City               string `json:"city" validate:"required,max=255"`
	Zip                string `json:"zip" validate:"required,max=32"`
	TypeOwnerNode      int    `json:"type_owner_node" validate:"omitempty,oneof=1 2"`
	Type               string `json:"type" validate:"omitempty,oneof=individual entity"`
	EntityName         string `json:"entity_name" validate:"required_if=Type entity,max=255"`
	EntityType         string `json:"entity_type" validate:"max=255"`
	EntityRegisterNo   string `json:"entity_register_number" validate:"max=255"`
	EntityCountry      string `json:"entity_register_country" validate:"max=255"`
	EntityTax          string `json:"entity_tax" validate:"max=255"`
}

// OwnerNodeTypeRequest is the body of POST /users/verify-owner-node and
// POST /users/type-owner-node.
type OwnerNodeTypeRequest struct {
	Type int `json:"type" validate:"required,oneof=1 2"`
}

// OwnerNodeInput is one declared owner of POST /users/owner-nodes.
type OwnerNodeInput struct {
	Email   string  `json:"email" validate:"required,email,max=255"`
	Percent float64 `json:"percent" validate:"gt=0,lt=100"`
}

type ownerNodesRequest struct {
	Owners []OwnerNodeInput `validate:"required,min=1,dive"`
}

// ResendInviteRequest is the body of POST /users/resend-invite-owner.
type ResendInviteRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// AMLReferenceRequest is the body of POST and PUT /users/shuftipro-temp.
type AMLReferenceRequest struct {
	ReferenceID string `json:"reference_id" validate:"required,max=255"`
}

// validateRequest runs struct validation and reports failures as ErrValidation.
func validateRequest(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", interfaces.ErrValidation, err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed on %s", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", interfaces.ErrValidation, strings.Join(msgs, "; "))
}

var dobLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	time.RFC3339,
	"2006-01-02 15:04:05",
}

// normalizeDOB parses the accepted date of birth formats into YYYY-MM-DD.
func normalizeDOB(s string) (string, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dobLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), nil
		}
	}
	return "", fmt.Errorf("%w: unrecognized date of birth %q", interfaces.ErrValidation, s)
}
