// Package interfaces defines the core types and interfaces of the member
// portal, separating interface definitions from implementations.
//
// # Account Interfaces
//
// AccountStore: Persists member accounts with their KYC profile, declared
// owner nodes, AML references and emailed verification codes.
//
// AccountTx: The per-account mutation scope. All writes to one account happen
// inside RunInTx and are committed together or not at all.
//
// AccountLocker: An exclusive per-account lock shared between server instances.
//
// # Storage Interfaces
//
// BlobStorage: Stores opaque payloads (signature artifacts, uploaded letters)
// under caller-chosen paths across multiple backend types (file, S3, IPFS, Vault).
//
// StorageBackendFactory: Creates storage backends from URI strings and manages
// multi-backend configurations for redundant storage.
//
// # Collaborators
//
// SignatureVerifier, Mailer, ESignProvider, AMLChecker, SessionRevoker and
// EventPublisher are the outbound dependencies of the verification and account
// services.
//
// # Errors
//
// The sentinel errors in this package are the only error kinds the HTTP layer
// maps to responses: ErrValidation, ErrVerificationFailed, ErrPersistence,
// ErrForbidden, ErrNotFound and ErrLocked.
package interfaces
