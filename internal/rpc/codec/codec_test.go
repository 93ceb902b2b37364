package codec

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionKeyLength(t *testing.T) {
	key := NewSessionKey()
	assert.Len(t, key, keySize)
}

func TestSessionKeyNotReused(t *testing.T) {
	a := NewSessionKey()
	b := NewSessionKey()
	assert.NotEqual(t, a, b)
}

// TestRoundTrip is invariant 1 from the testable-properties list: for any
// payload map p and key k, decode(encrypt(p, k) ++ k) == p modulo pad
// removal, where "++" is byte-concatenation of ciphertext and key on the
// wire, base64-encoded.
func TestRoundTrip(t *testing.T) {
	cases := []map[string]any{
		{"foo": "bar"},
		{"n": int64(42), "nested": map[string]any{"a": int64(1)}},
		{},
	}
	for _, payload := range cases {
		key := NewSessionKey()
		cipherText, err := Encrypt(payload, key)
		require.NoError(t, err)

		wire := append(append([]byte{}, cipherText...), key...)
		b64 := base64.StdEncoding.EncodeToString(wire)

		got, err := Decrypt([]byte(b64))
		require.NoError(t, err)
		for k, v := range payload {
			assert.EqualValues(t, v, got[k])
		}
	}
}

func TestDecryptMalformedReturnsEmptyMap(t *testing.T) {
	got, err := Decrypt([]byte("not-base64!!"))
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = Decrypt([]byte(base64.StdEncoding.EncodeToString([]byte("short"))))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPKCS7PadUnpad(t *testing.T) {
	data := []byte("hello")
	padded := pkcs7Pad(data, 16)
	assert.Len(t, padded, 16)

	unpadded, err := pkcs7Unpad(padded, 16)
	require.NoError(t, err)
	assert.Equal(t, data, unpadded)
}
