package verification

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/ruteri/casper-member-portal/cryptoutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCasperVerifier(t *testing.T) {
	verifier := NewCasperVerifier(discardLogger())
	issuer := NewMessageIssuer()
	message, err := issuer.Message(testDay)
	require.NoError(t, err)

	for _, alg := range []cryptoutils.KeyAlgorithm{cryptoutils.Ed25519Algorithm, cryptoutils.Secp256k1Algorithm} {
		t.Run(alg.String(), func(t *testing.T) {
			priv, err := cryptoutils.GenerateCasperKey(alg)
			require.NoError(t, err)
			pub := priv.PublicKey().String()

			sigHex, err := priv.SignHex([]byte(message))
			require.NoError(t, err)

			// tool output usually ends with a newline
			assert.True(t, verifier.Verify([]byte(sigHex+"\n"), pub, message))
			assert.True(t, verifier.Verify([]byte(hex.EncodeToString([]byte{byte(alg)})+sigHex), pub, message))

			other, err := issuer.Message(testDay.AddDate(0, 0, 1))
			require.NoError(t, err)
			assert.False(t, verifier.Verify([]byte(sigHex), pub, other))

			unrelated, err := cryptoutils.GenerateCasperKey(alg)
			require.NoError(t, err)
			assert.False(t, verifier.Verify([]byte(sigHex), unrelated.PublicKey().String(), message))
		})
	}
}

func TestCasperVerifier_FailsClosed(t *testing.T) {
	verifier := NewCasperVerifier(nil)
	priv, err := cryptoutils.GenerateCasperKey(cryptoutils.Ed25519Algorithm)
	require.NoError(t, err)
	pub := priv.PublicKey().String()
	sigHex, err := priv.SignHex([]byte("m"))
	require.NoError(t, err)

	testCases := []struct {
		name     string
		artifact []byte
		key      string
	}{
		{name: "nil artifact", artifact: nil, key: pub},
		{name: "empty artifact", artifact: []byte{}, key: pub},
		{name: "whitespace artifact", artifact: []byte(" \n"), key: pub},
		{name: "not hex", artifact: []byte("zz" + sigHex[2:]), key: pub},
		{name: "odd length", artifact: []byte(sigHex[1:]), key: pub},
		{name: "truncated", artifact: []byte(sigHex[:64]), key: pub},
		{name: "wrong tag", artifact: []byte("02" + sigHex), key: pub},
		{name: "empty key", artifact: []byte(sigHex), key: ""},
		{name: "short key", artifact: []byte(sigHex), key: pub[:20]},
		{name: "unknown key tag", artifact: []byte(sigHex), key: "09" + pub[2:]},
		{name: "binary junk", artifact: []byte{0xff, 0x00, 0x13}, key: pub},
		{name: "huge input", artifact: []byte(strings.Repeat("ab", 1<<16)), key: pub},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				assert.False(t, verifier.Verify(tc.artifact, tc.key, "m"))
			})
		})
	}
}

func TestCasperVerifier_Idempotent(t *testing.T) {
	verifier := NewCasperVerifier(nil)
	priv, err := cryptoutils.GenerateCasperKey(cryptoutils.Secp256k1Algorithm)
	require.NoError(t, err)
	sigHex, err := priv.SignHex([]byte("m"))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		assert.True(t, verifier.Verify([]byte(sigHex), priv.PublicKey().String(), "m"))
	}
}
