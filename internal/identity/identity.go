// Package identity resolves the anonymous and installation identifiers
// reported with every record.
//
// The anonymous ID doubles as the stream ID for tracking-plan fetches, so it
// must stay stable across restarts: it is read from storage once, generated
// and persisted when absent, and cached in memory afterwards.
package identity

import (
	"context"
	"log/slog"
	"sync"

	"github.com/solatis/schemainspector/internal/storage"
	"github.com/solatis/schemainspector/internal/types"
)

// Storage keys shared with other inspector SDKs writing the same store.
const (
	AnonymousIDKey    = "AvoInspectorAnonymousId"
	InstallationIDKey = "AvoInspectorInstallationIdKey"
)

// UnknownID is reported while storage is not initialized.
const UnknownID = "unknown"

// Resolver caches identifiers backed by a storage.Storage.
type Resolver struct {
	mu             sync.Mutex
	store          storage.Storage
	logger         *slog.Logger
	anonymousID    string
	installationID string
}

// New creates a resolver. A nil store behaves as never initialized.
func New(store storage.Storage, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Resolver{store: store, logger: logger}
}

// AnonymousID returns the cached ID, loading or generating it on first use.
// Returns UnknownID without caching when storage is not ready, so a later
// call can still pick up the persisted value.
func (r *Resolver) AnonymousID(ctx context.Context) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.anonymousID != "" {
		return r.anonymousID
	}
	if !r.ready(ctx) {
		return UnknownID
	}

	stored, ok, err := r.store.GetItem(ctx, AnonymousIDKey)
	if err != nil {
		r.logger.Warn("failed to read anonymous id", "error", err)
	}
	if ok && stored != "" {
		r.anonymousID = stored
		return stored
	}

	r.anonymousID = types.NewAnonymousID()
	if err := r.store.SetItem(ctx, AnonymousIDKey, r.anonymousID); err != nil {
		r.logger.Warn("failed to persist anonymous id", "error", err)
	}
	return r.anonymousID
}

// SetAnonymousID overrides the anonymous ID and persists it. An empty id
// clears the override so the next AnonymousID call reloads from storage.
func (r *Resolver) SetAnonymousID(ctx context.Context, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.anonymousID = id
	if r.store == nil {
		return
	}
	var err error
	if id == "" {
		err = r.store.RemoveItem(ctx, AnonymousIDKey)
	} else {
		err = r.store.SetItem(ctx, AnonymousIDKey, id)
	}
	if err != nil {
		r.logger.Warn("failed to persist anonymous id", "error", err)
	}
}

// InstallationID returns a per-installation identifier. It is persisted when
// storage is ready and kept in memory otherwise.
func (r *Resolver) InstallationID(ctx context.Context) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.installationID != "" {
		return r.installationID
	}
	if r.ready(ctx) {
		stored, ok, err := r.store.GetItem(ctx, InstallationIDKey)
		if err != nil {
			r.logger.Warn("failed to read installation id", "error", err)
		}
		if ok && stored != "" {
			r.installationID = stored
			return stored
		}
	}

	r.installationID = types.NewAnonymousID()
	if r.ready(ctx) {
		if err := r.store.SetItem(ctx, InstallationIDKey, r.installationID); err != nil {
			r.logger.Warn("failed to persist installation id", "error", err)
		}
	}
	return r.installationID
}

// ClearCache forgets cached identifiers; the next call rereads storage.
func (r *Resolver) ClearCache() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.anonymousID = ""
	r.installationID = ""
}

func (r *Resolver) ready(ctx context.Context) bool {
	return r.store != nil && r.store.IsInitialized(ctx)
}
