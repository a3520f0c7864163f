// internal/encryption/keys.go
package encryption

import (
	"crypto/ecdh"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/solatis/schemainspector/internal/types"
)

const (
	uncompressedLen = 65
	rawXYLen        = 64
	compressedLen   = 33
	privateKeyLen   = 32
)

// KeyPair holds a hex-encoded P-256 key pair. PublicKey is the 65-byte
// uncompressed point; PrivateKey is the 32-byte scalar.
type KeyPair struct {
	PublicKey  string `json:"publicKey"`
	PrivateKey string `json:"privateKey"`
}

// GenerateKeyPair creates a fresh recipient key pair for value encryption.
func GenerateKeyPair() (KeyPair, error) {
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, fmt.Errorf("generate P-256 key: %w", err)
	}
	return KeyPair{
		PublicKey:  hex.EncodeToString(priv.PublicKey().Bytes()),
		PrivateKey: hex.EncodeToString(priv.Bytes()),
	}, nil
}

// ParsePublicKey decodes a recipient key given as hex, with optional 0x prefix.
// Accepts 65-byte uncompressed (0x04 prefix), 64-byte raw X||Y, and 33-byte
// compressed (0x02/0x03 prefix) encodings.
func ParsePublicKey(keyHex string) (*ecdh.PublicKey, error) {
	raw, err := decodeHex(keyHex)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidPublicKey, err)
	}

	var point []byte
	switch {
	case len(raw) == uncompressedLen && raw[0] == 0x04:
		point = raw
	case len(raw) == rawXYLen:
		point = append([]byte{0x04}, raw...)
	case len(raw) == compressedLen && (raw[0] == 0x02 || raw[0] == 0x03):
		x, y := elliptic.UnmarshalCompressed(elliptic.P256(), raw)
		if x == nil {
			return nil, fmt.Errorf("%w: compressed point not on curve", types.ErrInvalidPublicKey)
		}
		point = make([]byte, uncompressedLen)
		point[0] = 0x04
		x.FillBytes(point[1:33])
		y.FillBytes(point[33:])
	default:
		return nil, fmt.Errorf("%w: unsupported length %d", types.ErrInvalidPublicKey, len(raw))
	}

	pub, err := ecdh.P256().NewPublicKey(point)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidPublicKey, err)
	}
	return pub, nil
}

// ParsePrivateKey decodes a 32-byte P-256 scalar given as hex.
func ParsePrivateKey(keyHex string) (*ecdh.PrivateKey, error) {
	raw, err := decodeHex(keyHex)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidPrivateKey, err)
	}
	if len(raw) != privateKeyLen {
		return nil, fmt.Errorf("%w: unsupported length %d", types.ErrInvalidPrivateKey, len(raw))
	}
	priv, err := ecdh.P256().NewPrivateKey(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidPrivateKey, err)
	}
	return priv, nil
}

func decodeHex(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[2:]
	}
	return hex.DecodeString(s)
}
