// Package codec implements the symmetric encryption and framing used by the
// upstream game's binary RPC protocol: msgpack payload, PKCS7-style padding,
// AES-CBC under a fresh per-call session key and a fixed IV, base64 on the
// wire.
package codec

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

// keySize is the session-key length in bytes, appended to the ciphertext on
// the wire by the server and stripped by us on decode.
const keySize = 32

// blockIV is the fixed 16-byte initialization vector the protocol uses for
// every AES-CBC operation. It is not secret: the session key is what varies
// per call.
var blockIV = []byte("0123456789abcdef")

// NewSessionKey returns a fresh 32-byte session key: a UUID v1, hex-encoded
// and lowercased, which happens to be exactly 32 bytes wide.
func NewSessionKey() []byte {
	id, err := uuid.NewUUID()
	if err != nil {
		// uuid.NewUUID only fails if the system clock/node id can't be read;
		// fall back to a random v4 rather than propagate an error from a
		// function the rest of the package treats as infallible.
		id = uuid.New()
	}
	hexKey := strings.ReplaceAll(id.String(), "-", "")
	return []byte(strings.ToLower(hexKey))[:keySize]
}

// Encrypt msgpack-encodes payload, pads it to a 16-byte boundary, and
// AES-CBC-encrypts it under key and the fixed IV. The returned bytes are the
// raw ciphertext; callers append the key themselves before base64-encoding
// onto the wire (the key travels with the ciphertext, not inside it).
func Encrypt(payload map[string]any, key []byte) ([]byte, error) {
	raw, err := msgpack.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("codec: marshal payload: %w", err)
	}
	padded := pkcs7Pad(raw, aes.BlockSize)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("codec: new cipher: %w", err)
	}
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, blockIV).CryptBlocks(out, padded)
	return out, nil
}

// Decrypt reverses Encrypt given the base64 wire body the server returned:
// strip the trailing 32-byte key, AES-CBC-decrypt the remainder under the
// fixed IV, strip the PKCS7 pad, and msgpack-decode.
//
// A malformed or non-map response yields an empty map rather than an error:
// the caller decides whether a missing expected field is itself the
// protocol error.
func Decrypt(base64Body []byte) (map[string]any, error) {
	raw, err := base64.StdEncoding.DecodeString(string(base64Body))
	if err != nil || len(raw) <= keySize {
		return map[string]any{}, nil
	}

	cipherText := raw[:len(raw)-keySize]
	key := raw[len(raw)-keySize:]
	if len(cipherText)%aes.BlockSize != 0 {
		return map[string]any{}, nil
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return map[string]any{}, nil
	}
	plain := make([]byte, len(cipherText))
	cipher.NewCBCDecrypter(block, blockIV).CryptBlocks(plain, cipherText)

	unpadded, err := pkcs7Unpad(plain, aes.BlockSize)
	if err != nil {
		return map[string]any{}, nil
	}

	var out map[string]any
	if err := msgpack.Unmarshal(unpadded, &out); err != nil {
		return map[string]any{}, nil
	}
	return out, nil
}

// EncryptViewerID encrypts the numeric viewer-id under the same session key
// used for the envelope and returns the base64 string the server expects
// placed back into the payload before the envelope is built.
func EncryptViewerID(viewerID int64, key []byte) (string, error) {
	payload := map[string]any{"viewer_id": viewerID}
	raw, err := msgpack.Marshal(payload["viewer_id"])
	if err != nil {
		return "", fmt.Errorf("codec: marshal viewer id: %w", err)
	}
	padded := pkcs7Pad(raw, aes.BlockSize)
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("codec: new cipher: %w", err)
	}
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, blockIV).CryptBlocks(out, padded)
	return base64.StdEncoding.EncodeToString(out), nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	pad := bytes.Repeat([]byte{byte(padLen)}, padLen)
	return append(data, pad...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("codec: empty plaintext")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return nil, fmt.Errorf("codec: invalid pad length %d", padLen)
	}
	return data[:len(data)-padLen], nil
}
