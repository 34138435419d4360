package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/ruteri/casper-member-portal/accounts"
	"github.com/ruteri/casper-member-portal/interfaces"
	"github.com/ruteri/casper-member-portal/verification"
)

const (
	// MessageFileName is the download name of the challenge message.
	MessageFileName = "message.txt"

	// artifactFormField is the multipart field carrying uploads.
	artifactFormField = "file"

	// maxBodySize is the maximum allowed JSON request body size (1MB).
	maxBodySize = 1024 * 1024

	// maxArtifactSize bounds signature uploads; a hex signature is 130 bytes.
	maxArtifactSize = 64 * 1024
)

// Handler serves the authenticated member API. Every method expects the
// account id in the request context, put there by JWTAccountResolver.
type Handler struct {
	verification *verification.Service
	accounts     *accounts.Service
	debugErrors  bool
	log          *slog.Logger
}

// NewHandler creates the member API handler.
func NewHandler(verificationSvc *verification.Service, accountSvc *accounts.Service, debugErrors bool, log *slog.Logger) *Handler {
	return &Handler{
		verification: verificationSvc,
		accounts:     accountSvc,
		debugErrors:  debugErrors,
		log:          log,
	}
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	writeError(w, h.log, h.debugErrors, err)
}

func (h *Handler) account(w http.ResponseWriter, r *http.Request) (interfaces.AccountID, bool) {
	id, ok := accountFromContext(r.Context())
	if !ok {
		h.fail(w, fmt.Errorf("%w: no account in request", errUnauthorized))
	}
	return id, ok
}

// decodeJSON reads a bounded JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: malformed JSON body: %v", interfaces.ErrValidation, err)
	}
	return nil
}

// readUpload returns the name and content of the multipart file field.
func readUpload(w http.ResponseWriter, r *http.Request, limit int64) (string, []byte, error) {
	// multipart framing adds a little on top of the file itself
	r.Body = http.MaxBytesReader(w, r.Body, limit+4096)
	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", nil, fmt.Errorf("%w: upload exceeds %d bytes", interfaces.ErrValidation, limit)
		}
		return "", nil, fmt.Errorf("%w: malformed multipart body: %v", interfaces.ErrValidation, err)
	}

	file, header, err := r.FormFile(artifactFormField)
	if err != nil {
		return "", nil, fmt.Errorf("%w: missing %q upload: %v", interfaces.ErrValidation, artifactFormField, err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return "", nil, fmt.Errorf("%w: failed to read upload: %v", interfaces.ErrValidation, err)
	}
	if int64(len(data)) > limit {
		return "", nil, fmt.Errorf("%w: upload exceeds %d bytes", interfaces.ErrValidation, limit)
	}
	return header.Filename, data, nil
}

// HandleMessageContent issues the challenge message and serves it as a
// message.txt download.
//
// URL format: GET /api/v1/users/message-content
func (h *Handler) HandleMessageContent(w http.ResponseWriter, r *http.Request) {
	id, ok := h.account(w, r)
	if !ok {
		return
	}

	msg, err := h.verification.IssueMessage(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", MessageFileName))
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, msg); err != nil {
		h.log.Error("Failed to write message", "err", err)
	}
}

// HandleVerifySignature checks an uploaded signature artifact against the
// issued challenge and binds it to the account.
//
// URL format: POST /api/v1/users/verify-file-casper-signer
// Request body: multipart form, field "file", file name "signature"
func (h *Handler) HandleVerifySignature(w http.ResponseWriter, r *http.Request) {
	id, ok := h.account(w, r)
	if !ok {
		return
	}

	name, artifact, err := readUpload(w, r, maxArtifactSize)
	if err != nil {
		h.fail(w, err)
		return
	}

	if err := h.verification.VerifyAndBind(r.Context(), id, name, artifact); err != nil {
		h.fail(w, err)
		return
	}
	writeSuccess(w, h.log, nil)
}

// HandleChangeEmail handles POST /api/v1/users/change-email.
func (h *Handler) HandleChangeEmail(w http.ResponseWriter, r *http.Request) {
	var req accounts.ChangeEmailRequest
	h.withBody(w, r, &req, func(id interfaces.AccountID) (any, error) {
		return nil, h.accounts.ChangeEmail(r.Context(), id, req)
	})
}

// HandleChangePassword handles POST /api/v1/users/change-password.
func (h *Handler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req accounts.ChangePasswordRequest
	h.withBody(w, r, &req, func(id interfaces.AccountID) (any, error) {
		return nil, h.accounts.ChangePassword(r.Context(), id, req)
	})
}

// HandleProfile handles GET /api/v1/users/profile.
func (h *Handler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	h.without(w, r, func(id interfaces.AccountID) (any, error) {
		return h.accounts.GetProfile(r.Context(), id)
	})
}

// HandleLogout revokes the bearer token of the request.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.without(w, r, func(id interfaces.AccountID) (any, error) {
		return nil, h.accounts.Logout(r.Context(), id, tokenIDFromContext(r.Context()))
	})
}

// HandleUploadLetter handles POST /api/v1/users/upload-letter (multipart "file").
func (h *Handler) HandleUploadLetter(w http.ResponseWriter, r *http.Request) {
	id, ok := h.account(w, r)
	if !ok {
		return
	}

	name, data, err := readUpload(w, r, accounts.MaxLetterSize)
	if err != nil {
		h.fail(w, err)
		return
	}

	path, err := h.accounts.UploadLetter(r.Context(), id, name, data)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeSuccess(w, h.log, map[string]string{"letter_file": path})
}

// HandleESignRequest handles POST /api/v1/users/hellosign-request.
func (h *Handler) HandleESignRequest(w http.ResponseWriter, r *http.Request) {
	h.without(w, r, func(id interfaces.AccountID) (any, error) {
		return h.accounts.SendESignRequest(r.Context(), id)
	})
}

// HandleVerifyBypass handles POST /api/v1/users/verify-bypass.
func (h *Handler) HandleVerifyBypass(w http.ResponseWriter, r *http.Request) {
	var req accounts.VerifyBypassRequest
	h.withBody(w, r, &req, func(id interfaces.AccountID) (any, error) {
		return nil, h.accounts.VerifyBypass(r.Context(), id, req)
	})
}

// HandleSubmitPublicAddress handles POST /api/v1/users/submit-public-address.
func (h *Handler) HandleSubmitPublicAddress(w http.ResponseWriter, r *http.Request) {
	var req accounts.SubmitPublicAddressRequest
	h.withBody(w, r, &req, func(id interfaces.AccountID) (any, error) {
		return nil, h.accounts.SubmitPublicAddress(r.Context(), id, req)
	})
}

// HandleSubmitKYC handles POST /api/v1/users/submit-kyc.
func (h *Handler) HandleSubmitKYC(w http.ResponseWriter, r *http.Request) {
	var req accounts.SubmitKYCRequest
	h.withBody(w, r, &req, func(id interfaces.AccountID) (any, error) {
		return nil, h.accounts.SubmitKYC(r.Context(), id, req)
	})
}

// HandleVerifyOwnerNode handles POST /api/v1/users/verify-owner-node.
func (h *Handler) HandleVerifyOwnerNode(w http.ResponseWriter, r *http.Request) {
	var req accounts.OwnerNodeTypeRequest
	h.withBody(w, r, &req, func(id interfaces.AccountID) (any, error) {
		return nil, h.accounts.VerifyOwnerNode(r.Context(), id, req)
	})
}

// HandleAddOwnerNodes handles POST /api/v1/users/owner-nodes. The body is a
// JSON array of {email, percent}.
func (h *Handler) HandleAddOwnerNodes(w http.ResponseWriter, r *http.Request) {
	var req []accounts.OwnerNodeInput
	h.withBody(w, r, &req, func(id interfaces.AccountID) (any, error) {
		return nil, h.accounts.AddOwnerNodes(r.Context(), id, r.Header.Get("Origin"), req)
	})
}

// HandleOwnerNodes handles GET /api/v1/users/owner-nodes.
func (h *Handler) HandleOwnerNodes(w http.ResponseWriter, r *http.Request) {
	h.without(w, r, func(id interfaces.AccountID) (any, error) {
		return h.accounts.GetOwnerNodes(r.Context(), id)
	})
}

// HandleResendInvite handles POST /api/v1/users/resend-invite-owner.
func (h *Handler) HandleResendInvite(w http.ResponseWriter, r *http.Request) {
	var req accounts.ResendInviteRequest
	h.withBody(w, r, &req, func(id interfaces.AccountID) (any, error) {
		return nil, h.accounts.ResendOwnerNodeInvite(r.Context(), id, r.Header.Get("Origin"), req)
	})
}

// HandleSaveAMLReference handles POST /api/v1/users/shuftipro-temp.
func (h *Handler) HandleSaveAMLReference(w http.ResponseWriter, r *http.Request) {
	var req accounts.AMLReferenceRequest
	h.withBody(w, r, &req, func(id interfaces.AccountID) (any, error) {
		return nil, h.accounts.SaveAMLReference(r.Context(), id, req)
	})
}

// HandleUpdateAMLReference handles PUT /api/v1/users/shuftipro-temp.
func (h *Handler) HandleUpdateAMLReference(w http.ResponseWriter, r *http.Request) {
	var req accounts.AMLReferenceRequest
	h.withBody(w, r, &req, func(id interfaces.AccountID) (any, error) {
		return nil, h.accounts.UpdateAMLReference(r.Context(), id, req)
	})
}

// HandleTypeOwnerNode handles POST /api/v1/users/type-owner-node.
func (h *Handler) HandleTypeOwnerNode(w http.ResponseWriter, r *http.Request) {
	var req accounts.OwnerNodeTypeRequest
	h.withBody(w, r, &req, func(id interfaces.AccountID) (any, error) {
		return nil, h.accounts.UpdateTypeOwnerNode(r.Context(), id, req)
	})
}

// withBody decodes the JSON body into dst before running op.
func (h *Handler) withBody(w http.ResponseWriter, r *http.Request, dst any, op func(id interfaces.AccountID) (any, error)) {
	id, ok := h.account(w, r)
	if !ok {
		return
	}
	if err := decodeJSON(w, r, dst); err != nil {
		h.fail(w, err)
		return
	}
	h.respond(w, id, op)
}

func (h *Handler) without(w http.ResponseWriter, r *http.Request, op func(id interfaces.AccountID) (any, error)) {
	id, ok := h.account(w, r)
	if !ok {
		return
	}
	h.respond(w, id, op)
}

func (h *Handler) respond(w http.ResponseWriter, id interfaces.AccountID, op func(id interfaces.AccountID) (any, error)) {
	data, err := op(id)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeSuccess(w, h.log, data)
}
