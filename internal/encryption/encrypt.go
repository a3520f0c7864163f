// internal/encryption/encrypt.go
package encryption

/*
 * Hybrid public-key encryption of individual property values.
 *
 * Scheme (ECIES-style, version 0):
 *   1. Generate an ephemeral P-256 key pair
 *   2. ECDH between the ephemeral private key and the recipient public key;
 *      the shared secret is the X coordinate
 *   3. AES-256 key = SHA-256(shared secret)
 *   4. AES-GCM with a random 16-byte IV and a 16-byte tag
 *
 * Wire format, base64 (standard alphabet, padded):
 *
 *   0x00 | ephemeral pub (65, uncompressed) | IV (16) | tag (16) | ciphertext
 *
 * The tag precedes the ciphertext, unlike Go's Seal output, so Seal's
 * trailing tag is moved during assembly.
 *
 * A fresh ephemeral key and IV per call make repeated encryptions of the
 * same plaintext differ. Callers treat any error as "omit the value".
 */

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/solatis/schemainspector/internal/types"
)

const (
	// Version is the leading byte of every ciphertext.
	Version byte = 0x00

	ivLen     = 16
	tagLen    = 16
	headerLen = 1 + uncompressedLen + ivLen + tagLen
)

// Encrypt encrypts plaintext for the recipient public key given in hex.
// Returns types.ErrEmptyPlaintext or types.ErrMissingKey for empty inputs and
// wraps types.ErrInvalidPublicKey when the key does not parse.
func Encrypt(plaintext, recipientPublicKeyHex string) (string, error) {
	if plaintext == "" {
		return "", types.ErrEmptyPlaintext
	}
	if recipientPublicKeyHex == "" {
		return "", types.ErrMissingKey
	}

	recipient, err := ParsePublicKey(recipientPublicKeyHex)
	if err != nil {
		return "", err
	}

	ephemeral, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return "", fmt.Errorf("generate ephemeral key: %w", err)
	}

	aead, err := newAEAD(ephemeral, recipient)
	if err != nil {
		return "", err
	}

	iv := make([]byte, ivLen)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}

	sealed := aead.Seal(nil, iv, []byte(plaintext), nil)
	ctLen := len(sealed) - tagLen

	out := make([]byte, 0, headerLen+ctLen)
	out = append(out, Version)
	out = append(out, ephemeral.PublicKey().Bytes()...)
	out = append(out, iv...)
	out = append(out, sealed[ctLen:]...)
	out = append(out, sealed[:ctLen]...)

	return base64.StdEncoding.EncodeToString(out), nil
}

// EncryptValue encrypts the JSON form of v.
func EncryptValue(v types.Value, recipientPublicKeyHex string) (string, error) {
	data, err := v.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("encode value: %w", err)
	}
	return Encrypt(string(data), recipientPublicKeyHex)
}

// newAEAD derives the AES-256-GCM cipher for a key agreement.
func newAEAD(priv *ecdh.PrivateKey, pub *ecdh.PublicKey) (cipher.AEAD, error) {
	shared, err := priv.ECDH(pub)
	if err != nil {
		return nil, fmt.Errorf("ecdh: %w", err)
	}
	key := sha256.Sum256(shared)

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("aes: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, ivLen)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}
	return aead, nil
}
