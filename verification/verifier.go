package verification

import (
	"log/slog"

	"github.com/ruteri/casper-member-portal/cryptoutils"
)

// CasperVerifier verifies hex signature artifacts against tagged Casper public keys.
// It fails closed: malformed input of any kind is a rejection.
type CasperVerifier struct {
	log *slog.Logger
}

// NewCasperVerifier creates a verifier. log may be nil.
func NewCasperVerifier(log *slog.Logger) *CasperVerifier {
	return &CasperVerifier{log: log}
}

// Verify implements interfaces.SignatureVerifier.
func (v *CasperVerifier) Verify(artifact []byte, claimedPublicKey string, message string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			v.debug("Signature verification panicked", "panic", r)
			ok = false
		}
	}()

	if len(artifact) == 0 || claimedPublicKey == "" {
		return false
	}

	pub, err := cryptoutils.ParseCasperPublicKey(claimedPublicKey)
	if err != nil {
		v.debug("Rejecting malformed public key", "err", err)
		return false
	}

	sig, err := cryptoutils.DecodeSignatureHex(artifact, pub.Algorithm)
	if err != nil {
		v.debug("Rejecting malformed signature", "err", err, slog.String("algorithm", pub.Algorithm.String()))
		return false
	}

	return pub.VerifyMessage([]byte(message), sig)
}

func (v *CasperVerifier) debug(msg string, args ...any) {
	if v.log != nil {
		v.log.Debug(msg, args...)
	}
}
