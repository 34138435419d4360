// Package main (cmd/signer) is the member-side counterpart of the portal's
// signature verification.
//
// Typical flow:
//
//	casper-signer keygen --algorithm ed25519     # prints the public key to submit
//	casper-signer sign --message message.txt     # writes ./signature
//	casper-signer prove --token "$PORTAL_TOKEN"  # fetch, sign and submit in one step
package main
