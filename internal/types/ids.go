package types

import (
	"time"

	"github.com/google/uuid"
)

// NewMessageID generates a random UUIDv4 identifying one transmitted record.
// Backend deduplicates retried records on this value.
func NewMessageID() string {
	return uuid.NewString()
}

// NewSessionID generates a UUIDv4 session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

// NewAnonymousID generates a UUIDv4 used as the stream identifier of an
// installation that has not been assigned one by the host.
func NewAnonymousID() string {
	return uuid.NewString()
}

// NewBatchID generates a UUIDv7 batch identifier.
// Time-ordered IDs keep log lines for consecutive batches sortable.
// Panics on clock regression (uuid.Must); acceptable for ID generation.
func NewBatchID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// ParseID validates a UUID string of any version.
func ParseID(s string) (string, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", err
	}
	return s, nil
}

// BatchIDTime extracts the timestamp embedded in a UUIDv7 batch ID.
// Returns zero time for invalid UUIDs; caller should check IsZero().
func BatchIDTime(id string) time.Time {
	u, err := uuid.Parse(id)
	if err != nil || u.Version() != 7 {
		return time.Time{}
	}
	sec, nsec := u.Time().UnixTime()
	return time.Unix(sec, nsec)
}
