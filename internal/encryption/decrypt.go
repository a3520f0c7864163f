// internal/encryption/decrypt.go
package encryption

import (
	"encoding/base64"
	"fmt"

	"github.com/solatis/schemainspector/internal/types"
)

// Decrypt reverses Encrypt using the recipient private key given in hex.
// Used by tooling and tests; the inspector itself only encrypts.
func Decrypt(ciphertextB64, privateKeyHex string) (string, error) {
	if privateKeyHex == "" {
		return "", types.ErrMissingKey
	}
	priv, err := ParsePrivateKey(privateKeyHex)
	if err != nil {
		return "", err
	}

	data, err := base64.StdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrInvalidCiphertext, err)
	}
	if len(data) < headerLen {
		return "", fmt.Errorf("%w: %d bytes", types.ErrInvalidCiphertext, len(data))
	}
	if data[0] != Version {
		return "", fmt.Errorf("%w: 0x%02x", types.ErrUnsupportedVersion, data[0])
	}

	pubStart := 1
	ivStart := pubStart + uncompressedLen
	tagStart := ivStart + ivLen
	ctStart := tagStart + tagLen

	ephemeral, err := ParsePublicKey(fmt.Sprintf("%x", data[pubStart:ivStart]))
	if err != nil {
		return "", fmt.Errorf("%w: ephemeral key: %v", types.ErrInvalidCiphertext, err)
	}

	aead, err := newAEAD(priv, ephemeral)
	if err != nil {
		return "", err
	}

	sealed := make([]byte, 0, len(data)-ctStart+tagLen)
	sealed = append(sealed, data[ctStart:]...)
	sealed = append(sealed, data[tagStart:ctStart]...)

	plain, err := aead.Open(nil, data[ivStart:tagStart], sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrInvalidCiphertext, err)
	}
	return string(plain), nil
}
