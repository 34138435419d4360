/*
Package httpserver implements the HTTP API of the member portal.

Every endpoint under /api/v1/users requires a bearer token. The token subject
is the member's account id; logging out revokes the token id.

# Node Verification

A member proves control of a node key in two requests:

  - GET /api/v1/users/message-content issues the challenge message and serves
    it as a text/plain download named message.txt
  - POST /api/v1/users/verify-file-casper-signer accepts a multipart upload in
    the "file" field. The uploaded file must be named "signature" and contain
    the hex signature of the message made with the key previously submitted to
    POST /api/v1/users/submit-public-address

A verified signature is stored and the account is marked node-verified.

# Responses

Successful requests return:

	{"message": "ok", "data": ...}

Failed requests return an error code:

	{"message": "failed verification", "code": "verification_failed"}

Status codes:

  - 400 validation_error, verification_failed: nothing was changed
  - 401 unauthorized: missing, expired or revoked token
  - 403 forbidden: the deployment does not allow the operation
  - 404 not_found
  - 409 account_locked: another request holds the account, retry
  - 503 persistence_error: nothing was changed, retry
  - 500 internal_error

Diagnostic detail is added for validation errors and, when the server runs
with debug errors enabled, for every error.

# Health Endpoints

  - GET /livez: liveness
  - GET /readyz: readiness, 503 while draining
  - GET /drain, GET /undrain: toggle readiness
*/
package httpserver
