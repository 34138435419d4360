// Package storage provides path-keyed blob storage with pluggable backends.
//
// Backends hold opaque byte payloads such as signature artifacts and uploaded
// documents under slash-separated paths (see interfaces.BlobPath):
//
//   - File system storage for local development and testing
//   - S3-compatible storage for cloud deployments
//   - IPFS mutable file system storage
//   - Vault KV v2 storage for deployments that keep artifacts with secrets
//
// # Storage URI Format
//
// Storage backends are specified using URI format:
//
//	[scheme]://[auth@]host[:port][/path][?params]
//
// Supported URI schemes:
//
//   - file:///var/lib/member-portal/blobs/
//   - s3://bucket-name/prefix/?region=us-west-2
//   - s3://KEY:SECRET@bucket-name/?endpoint=http://minio:9000
//   - ipfs://ipfs.example.com:5001/member-portal?timeout=30s
//   - vault://TOKEN@vault.example.com:8200/secret/member-portal
//
// # Redundancy
//
// Several locations can be combined with StorageBackendFactory.CreateMultiBackend.
// A multi backend writes to every backend, failing the write if any of them
// cannot take it, and reads from the first one that holds the blob:
//
//	factory := storage.NewStorageBackendFactory(logger)
//	blobs, err := factory.CreateMultiBackend(locations)
//	if err != nil {
//		return err
//	}
//	err = blobs.Put(ctx, path, data)
package storage
