package types

import "errors"

// Sentinel errors for schemainspector operations.
var (
	// ErrInvalidEnv indicates an environment name other than prod, dev or staging.
	ErrInvalidEnv = errors.New("invalid environment")

	// ErrEmptyPlaintext indicates an encryption call with nothing to encrypt.
	ErrEmptyPlaintext = errors.New("plaintext is empty")

	// ErrMissingKey indicates an encryption or decryption call without a key.
	ErrMissingKey = errors.New("encryption key is empty")

	// ErrInvalidPublicKey indicates the recipient key is not a P-256 point.
	ErrInvalidPublicKey = errors.New("invalid P-256 public key")

	// ErrInvalidPrivateKey indicates the decryption key is not a P-256 scalar.
	ErrInvalidPrivateKey = errors.New("invalid P-256 private key")

	// ErrInvalidCiphertext indicates a ciphertext too short or not base64.
	ErrInvalidCiphertext = errors.New("invalid ciphertext")

	// ErrUnsupportedVersion indicates a ciphertext version byte other than 0x00.
	ErrUnsupportedVersion = errors.New("unsupported ciphertext version")

	// ErrUnexpectedStatus indicates a non-200 response from the backend.
	ErrUnexpectedStatus = errors.New("unexpected response status")

	// ErrMalformedSpec indicates a tracking-plan response missing required fields.
	ErrMalformedSpec = errors.New("malformed event spec response")

	// ErrStorageNotInitialized indicates a storage backend that is not ready.
	ErrStorageNotInitialized = errors.New("storage not initialized")

	// ErrUnsupportedStorage indicates a storage URL with an unknown scheme.
	ErrUnsupportedStorage = errors.New("unsupported storage scheme")

	// ErrLoopClosed indicates a task posted after the main loop stopped.
	ErrLoopClosed = errors.New("loop closed")

	// ErrInspectorClosed indicates Close was called on a closed inspector.
	ErrInspectorClosed = errors.New("inspector closed")
)
