package cryptoutils

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// KeyAlgorithm is the leading tag byte of a Casper public key or signature.
type KeyAlgorithm byte

const (
	// Ed25519Algorithm keys sign the raw message bytes.
	Ed25519Algorithm KeyAlgorithm = 0x01
	// Secp256k1Algorithm keys sign SHA-256(message) as compact r||s.
	Secp256k1Algorithm KeyAlgorithm = 0x02
)

const (
	ed25519PublicKeyLength   = ed25519.PublicKeySize // 32
	secp256k1PublicKeyLength = 33                    // compressed SEC1
	rawSignatureLength       = 64
)

var (
	ErrUnknownAlgorithm = errors.New("unknown key algorithm")
	ErrInvalidKeyLength = errors.New("invalid public key length")
	ErrInvalidSignature = errors.New("invalid signature encoding")
)

// String returns the algorithm name.
func (a KeyAlgorithm) String() string {
	switch a {
	case Ed25519Algorithm:
		return "ed25519"
	case Secp256k1Algorithm:
		return "secp256k1"
	default:
		return fmt.Sprintf("unknown(%#x)", byte(a))
	}
}

// CasperPublicKey is a tagged public key as used by Casper node operators:
// hex(tag || raw key).
type CasperPublicKey struct {
	Algorithm KeyAlgorithm
	Raw       []byte
}

// ParseCasperPublicKey decodes a hex public key with its algorithm tag.
// A "0x" or "0X" prefix and surrounding whitespace are tolerated.
func ParseCasperPublicKey(s string) (CasperPublicKey, error) {
	clean := trimHexPrefix(s)
	decoded, err := hex.DecodeString(clean)
	if err != nil {
		return CasperPublicKey{}, fmt.Errorf("invalid hex format: %w", err)
	}
	if len(decoded) == 0 {
		return CasperPublicKey{}, ErrInvalidKeyLength
	}

	alg := KeyAlgorithm(decoded[0])
	raw := decoded[1:]
	switch alg {
	case Ed25519Algorithm:
		if len(raw) != ed25519PublicKeyLength {
			return CasperPublicKey{}, fmt.Errorf("%w: ed25519 key must be %d bytes, got %d", ErrInvalidKeyLength, ed25519PublicKeyLength, len(raw))
		}
	case Secp256k1Algorithm:
		if len(raw) != secp256k1PublicKeyLength {
			return CasperPublicKey{}, fmt.Errorf("%w: secp256k1 key must be %d bytes, got %d", ErrInvalidKeyLength, secp256k1PublicKeyLength, len(raw))
		}
		if _, err := crypto.DecompressPubkey(raw); err != nil {
			return CasperPublicKey{}, fmt.Errorf("invalid secp256k1 point: %w", err)
		}
	default:
		return CasperPublicKey{}, fmt.Errorf("%w: %#x", ErrUnknownAlgorithm, byte(alg))
	}

	return CasperPublicKey{Algorithm: alg, Raw: raw}, nil
}

// String returns the lowercase tagged hex form.
func (k CasperPublicKey) String() string {
	return hex.EncodeToString(append([]byte{byte(k.Algorithm)}, k.Raw...))
}

// DecodeSignatureHex decodes a hex signature artifact. The artifact may carry
// the algorithm tag byte in front of the 64 signature bytes; when it does the
// tag must match alg.
func DecodeSignatureHex(artifact []byte, alg KeyAlgorithm) ([]byte, error) {
	clean := trimHexPrefix(string(artifact))
	sig, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	switch len(sig) {
	case rawSignatureLength:
		return sig, nil
	case rawSignatureLength + 1:
		if KeyAlgorithm(sig[0]) != alg {
			return nil, fmt.Errorf("%w: signature tag %s does not match key %s", ErrInvalidSignature, KeyAlgorithm(sig[0]), alg)
		}
		return sig[1:], nil
	default:
		return nil, fmt.Errorf("%w: unexpected length %d", ErrInvalidSignature, len(sig))
	}
}

// VerifyMessage checks a raw 64-byte signature of message under the key.
// secp256k1 signatures with a high S value are rejected.
func (k CasperPublicKey) VerifyMessage(message []byte, sig []byte) bool {
	if len(sig) != rawSignatureLength {
		return false
	}
	switch k.Algorithm {
	case Ed25519Algorithm:
		if len(k.Raw) != ed25519PublicKeyLength {
			return false
		}
		return ed25519.Verify(ed25519.PublicKey(k.Raw), message, sig)
	case Secp256k1Algorithm:
		digest := sha256.Sum256(message)
		return crypto.VerifySignature(k.Raw, digest[:], sig)
	default:
		return false
	}
}

// CasperPrivateKey is the signing half of a CasperPublicKey.
type CasperPrivateKey struct {
	Algorithm KeyAlgorithm
	ed        ed25519.PrivateKey
	secp      *ecdsa.PrivateKey
}

// GenerateCasperKey creates a random key pair for alg.
func GenerateCasperKey(alg KeyAlgorithm) (*CasperPrivateKey, error) {
	switch alg {
	case Ed25519Algorithm:
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, err
		}
		return &CasperPrivateKey{Algorithm: alg, ed: priv}, nil
	case Secp256k1Algorithm:
		priv, err := crypto.GenerateKey()
		if err != nil {
			return nil, err
		}
		return &CasperPrivateKey{Algorithm: alg, secp: priv}, nil
	default:
		return nil, fmt.Errorf("%w: %#x", ErrUnknownAlgorithm, byte(alg))
	}
}

// ParseCasperPrivateKeyHex decodes hex(tag || seed) as produced by MarshalHex.
func ParseCasperPrivateKeyHex(s string) (*CasperPrivateKey, error) {
	decoded, err := hex.DecodeString(trimHexPrefix(s))
	if err != nil {
		return nil, fmt.Errorf("invalid hex format: %w", err)
	}
	if len(decoded) != 33 {
		return nil, errors.New("invalid private key length: expected tag byte and 32-byte seed")
	}

	switch alg := KeyAlgorithm(decoded[0]); alg {
	case Ed25519Algorithm:
		return &CasperPrivateKey{Algorithm: alg, ed: ed25519.NewKeyFromSeed(decoded[1:])}, nil
	case Secp256k1Algorithm:
		priv, err := crypto.ToECDSA(decoded[1:])
		if err != nil {
			return nil, fmt.Errorf("invalid secp256k1 key: %w", err)
		}
		return &CasperPrivateKey{Algorithm: alg, secp: priv}, nil
	default:
		return nil, fmt.Errorf("%w: %#x", ErrUnknownAlgorithm, byte(alg))
	}
}

// MarshalHex returns hex(tag || 32-byte seed).
func (k *CasperPrivateKey) MarshalHex() string {
	var seed []byte
	switch k.Algorithm {
	case Ed25519Algorithm:
		seed = k.ed.Seed()
	case Secp256k1Algorithm:
		seed = crypto.FromECDSA(k.secp)
	}
	return hex.EncodeToString(append([]byte{byte(k.Algorithm)}, seed...))
}

// PublicKey returns the tagged public key.
func (k *CasperPrivateKey) PublicKey() CasperPublicKey {
	switch k.Algorithm {
	case Ed25519Algorithm:
		return CasperPublicKey{Algorithm: k.Algorithm, Raw: []byte(k.ed.Public().(ed25519.PublicKey))}
	default:
		return CasperPublicKey{Algorithm: k.Algorithm, Raw: crypto.CompressPubkey(&k.secp.PublicKey)}
	}
}

// Sign returns the raw 64-byte signature of message.
func (k *CasperPrivateKey) Sign(message []byte) ([]byte, error) {
	switch k.Algorithm {
	case Ed25519Algorithm:
		return ed25519.Sign(k.ed, message), nil
	case Secp256k1Algorithm:
		digest := sha256.Sum256(message)
		sig, err := crypto.Sign(digest[:], k.secp)
		if err != nil {
			return nil, err
		}
		// drop the recovery id, Casper signatures are compact r||s
		return sig[:rawSignatureLength], nil
	default:
		return nil, fmt.Errorf("%w: %#x", ErrUnknownAlgorithm, byte(k.Algorithm))
	}
}

// SignHex returns the hex signature artifact as written by the signing tool.
func (k *CasperPrivateKey) SignHex(message []byte) (string, error) {
	sig, err := k.Sign(message)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sig), nil
}

// trimHexPrefix drops surrounding whitespace and a 0x or 0X prefix.
func trimHexPrefix(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
