// Package cryptoutils provides the cryptographic primitives of the member portal.
//
// # Casper Keys
//
// Node operators identify their node with a tagged public key, hex encoded:
//
//	01 || 32-byte Ed25519 key
//	02 || 33-byte compressed secp256k1 key
//
// A signature artifact is the hex encoding of the 64-byte signature, optionally
// preceded by the same tag byte. Ed25519 keys sign the raw message bytes;
// secp256k1 keys sign SHA-256(message) as compact r||s, and high-S signatures
// are rejected.
//
// # Passwords and Codes
//
// HashPassword and PasswordMatches wrap bcrypt. RandomString produces the
// alphanumeric codes emailed to members.
package cryptoutils
