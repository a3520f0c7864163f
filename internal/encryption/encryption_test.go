package encryption

import (
	"crypto/elliptic"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"math/big"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/solatis/schemainspector/internal/types"
)

func mustKeyPair(t *testing.T) KeyPair {
	t.Helper()
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() error = %v, want nil", err)
	}
	return kp
}

func TestEncrypt_RoundTrip(t *testing.T) {
	kp := mustKeyPair(t)

	for _, plaintext := range []string{"hello", `"quoted"`, "üñíçødé", string(make([]byte, 4096))} {
		ct, err := Encrypt(plaintext, kp.PublicKey)
		if err != nil {
			t.Fatalf("Encrypt() error = %v, want nil", err)
		}
		got, err := Decrypt(ct, kp.PrivateKey)
		if err != nil {
			t.Fatalf("Decrypt() error = %v, want nil", err)
		}
		if got != plaintext {
			t.Errorf("Decrypt() = %q, want %q", got, plaintext)
		}
	}
}

func TestEncrypt_WireFormat(t *testing.T) {
	kp := mustKeyPair(t)

	ct, err := Encrypt("abc", kp.PublicKey)
	if err != nil {
		t.Fatalf("Encrypt() error = %v, want nil", err)
	}
	raw, err := base64.StdEncoding.DecodeString(ct)
	if err != nil {
		t.Fatalf("output is not standard base64: %v", err)
	}
	if raw[0] != 0x00 || raw[1] != 0x04 {
		t.Errorf("prefix = %#x %#x, want 0x00 0x04", raw[0], raw[1])
	}
	if want := 1 + 65 + 16 + 16 + 3; len(raw) != want {
		t.Errorf("len = %d, want %d", len(raw), want)
	}
}

func TestEncrypt_Fresh(t *testing.T) {
	kp := mustKeyPair(t)
	a, _ := Encrypt("same", kp.PublicKey)
	b, _ := Encrypt("same", kp.PublicKey)
	if a == b {
		t.Errorf("two encryptions of the same plaintext are identical")
	}
}

func TestEncrypt_EmptyInputs(t *testing.T) {
	kp := mustKeyPair(t)

	if _, err := Encrypt("", kp.PublicKey); !errors.Is(err, types.ErrEmptyPlaintext) {
		t.Errorf("Encrypt(empty plaintext) error = %v, want ErrEmptyPlaintext", err)
	}
	if _, err := Encrypt("x", ""); !errors.Is(err, types.ErrMissingKey) {
		t.Errorf("Encrypt(empty key) error = %v, want ErrMissingKey", err)
	}
	if _, err := Decrypt("AAAA", ""); !errors.Is(err, types.ErrMissingKey) {
		t.Errorf("Decrypt(empty key) error = %v, want ErrMissingKey", err)
	}
}

func TestParsePublicKey_Encodings(t *testing.T) {
	kp := mustKeyPair(t)
	full, _ := hex.DecodeString(kp.PublicKey)
	x := new(big.Int).SetBytes(full[1:33])
	y := new(big.Int).SetBytes(full[33:])
	compressed := elliptic.MarshalCompressed(elliptic.P256(), x, y)

	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{name: "uncompressed", key: kp.PublicKey},
		{name: "0x prefix", key: "0x" + kp.PublicKey},
		{name: "raw xy", key: hex.EncodeToString(full[1:])},
		{name: "compressed", key: hex.EncodeToString(compressed)},
		{name: "not hex", key: "zz", wantErr: true},
		{name: "odd length", key: "abc", wantErr: true},
		{name: "wrong length", key: hex.EncodeToString(full[:40]), wantErr: true},
		{name: "not on curve", key: "04" + hex.EncodeToString(make([]byte, 64)), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub, err := ParsePublicKey(tt.key)
			if tt.wantErr {
				if !errors.Is(err, types.ErrInvalidPublicKey) {
					t.Errorf("ParsePublicKey() error = %v, want ErrInvalidPublicKey", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePublicKey() error = %v, want nil", err)
			}
			if hex.EncodeToString(pub.Bytes()) != kp.PublicKey {
				t.Errorf("ParsePublicKey() decoded a different point")
			}

			ct, err := Encrypt("v", tt.key)
			if err != nil {
				t.Fatalf("Encrypt() error = %v, want nil", err)
			}
			if got, err := Decrypt(ct, kp.PrivateKey); err != nil || got != "v" {
				t.Errorf("Decrypt() = %q, %v, want v, nil", got, err)
			}
		})
	}
}

func TestDecrypt_Rejects(t *testing.T) {
	kp := mustKeyPair(t)
	other := mustKeyPair(t)
	ct, _ := Encrypt("secret", kp.PublicKey)
	raw, _ := base64.StdEncoding.DecodeString(ct)

	badVersion := append([]byte{0x01}, raw[1:]...)
	tampered := append([]byte(nil), raw...)
	tampered[len(tampered)-1] ^= 0xff

	tests := []struct {
		name    string
		ct      string
		key     string
		wantErr error
	}{
		{name: "wrong key", ct: ct, key: other.PrivateKey, wantErr: types.ErrInvalidCiphertext},
		{name: "tampered", ct: base64.StdEncoding.EncodeToString(tampered), key: kp.PrivateKey, wantErr: types.ErrInvalidCiphertext},
		{name: "bad version", ct: base64.StdEncoding.EncodeToString(badVersion), key: kp.PrivateKey, wantErr: types.ErrUnsupportedVersion},
		{name: "too short", ct: base64.StdEncoding.EncodeToString(raw[:50]), key: kp.PrivateKey, wantErr: types.ErrInvalidCiphertext},
		{name: "not base64", ct: "***", key: kp.PrivateKey, wantErr: types.ErrInvalidCiphertext},
		{name: "bad private key", ct: ct, key: "abcd", wantErr: types.ErrInvalidPrivateKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decrypt(tt.ct, tt.key); !errors.Is(err, tt.wantErr) {
				t.Errorf("Decrypt() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestEncryptValue(t *testing.T) {
	kp := mustKeyPair(t)
	v := types.Map(map[string]types.Value{"b": types.Int(1), "a": types.String("x")})

	ct, err := EncryptValue(v, kp.PublicKey)
	if err != nil {
		t.Fatalf("EncryptValue() error = %v, want nil", err)
	}
	got, err := Decrypt(ct, kp.PrivateKey)
	if err != nil {
		t.Fatalf("Decrypt() error = %v, want nil", err)
	}
	if want := `{"a":"x","b":1}`; got != want {
		t.Errorf("Decrypt() = %s, want %s", got, want)
	}

	// A string value encrypts its JSON form, so "" is not empty plaintext.
	if _, err := EncryptValue(types.String(""), kp.PublicKey); err != nil {
		t.Errorf("EncryptValue(\"\") error = %v, want nil", err)
	}
}

// Property: decrypt(encrypt(p)) == p for any non-empty plaintext.
func TestEncrypt_PropertyRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	kp := mustKeyPair(t)
	properties.Property("round trip preserves plaintext", prop.ForAll(
		func(s string) bool {
			if s == "" {
				return true
			}
			ct, err := Encrypt(s, kp.PublicKey)
			if err != nil {
				return false
			}
			got, err := Decrypt(ct, kp.PrivateKey)
			return err == nil && got == s
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
