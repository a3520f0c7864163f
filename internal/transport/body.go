// internal/transport/body.go
package transport

/*
 * Transmission records for the track endpoint.
 *
 * Every record shares the base fields (api key, app, env, ids, sampling rate).
 * Event records carry the extracted schema as a property list; validated
 * records add the stream ID, the event spec metadata, and per-property event ID
 * sets. In dev and staging, with a public key configured, each leaf value is
 * encrypted into encryptedPropertyValue.
 */

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"sync/atomic"
	"time"

	"github.com/solatis/schemainspector/internal/encryption"
	"github.com/solatis/schemainspector/internal/metrics"
	"github.com/solatis/schemainspector/internal/schema"
	"github.com/solatis/schemainspector/internal/types"
)

// Record types.
const (
	TypeEvent          = "event"
	TypeSessionStarted = "sessionStarted"
)

// LibPlatform identifies this library in every record.
const LibPlatform = "go"

// createdAtLayout is ISO-8601 UTC with milliseconds.
const createdAtLayout = "2006-01-02T15:04:05.000Z"

// Property is one schema entry of an event record.
type Property struct {
	PropertyName           string     `json:"propertyName"`
	PropertyType           string     `json:"propertyType"`
	Children               []Property `json:"children,omitempty"`
	FailedEventIDs         []string   `json:"failedEventIds,omitempty"`
	PassedEventIDs         []string   `json:"passedEventIds,omitempty"`
	EncryptedPropertyValue string     `json:"encryptedPropertyValue,omitempty"`
}

// Body is one record posted to the track endpoint.
type Body struct {
	Type                string  `json:"type"`
	APIKey              string  `json:"apiKey"`
	AppName             string  `json:"appName"`
	AppVersion          string  `json:"appVersion"`
	LibVersion          string  `json:"libVersion"`
	Env                 string  `json:"env"`
	LibPlatform         string  `json:"libPlatform"`
	MessageID           string  `json:"messageId"`
	TrackingID          string  `json:"trackingId"`
	CreatedAt           string  `json:"createdAt"`
	SessionID           string  `json:"sessionId"`
	AnonymousID         string  `json:"anonymousId"`
	SamplingRate        float64 `json:"samplingRate"`
	PublicEncryptionKey string  `json:"publicEncryptionKey,omitempty"`

	EventName       string     `json:"eventName,omitempty"`
	EventProperties []Property `json:"eventProperties,omitempty"`
	AvoFunction     *bool      `json:"avoFunction,omitempty"`
	EventID         string     `json:"eventId,omitempty"`
	EventHash       string     `json:"eventHash,omitempty"`

	StreamID          string                   `json:"streamId,omitempty"`
	EventSpecMetadata *types.EventSpecMetadata `json:"eventSpecMetadata,omitempty"`
}

// Event describes one tracked event for the builder.
type Event struct {
	Name       string
	Schema     map[string]schema.Type
	Properties types.Value
	// EventID and EventHash are set for generated (automated) events only.
	EventID   string
	EventHash string
}

// SamplingRate is the server-controlled fraction of batches to send.
// Shared by the builder, which reports it, and the sender, which applies
// and updates it.
type SamplingRate struct {
	bits atomic.Uint64
}

// NewSamplingRate starts at rate.
func NewSamplingRate(rate float64) *SamplingRate {
	s := &SamplingRate{}
	s.Store(rate)
	return s
}

// Load returns the current rate.
func (s *SamplingRate) Load() float64 { return math.Float64frombits(s.bits.Load()) }

// Store replaces the rate.
func (s *SamplingRate) Store(rate float64) { s.bits.Store(math.Float64bits(rate)) }

// Identity supplies the per-record identifiers.
type Identity interface {
	AnonymousID(ctx context.Context) string
	SessionID() string
}

// BuilderConfig configures a Builder.
type BuilderConfig struct {
	APIKey              string
	Env                 types.Env
	AppName             string
	AppVersion          string
	LibVersion          string
	PublicEncryptionKey string
	Sampling            *SamplingRate
	Identity            Identity
	Now                 func() time.Time
	Logger              *slog.Logger
	Metrics             *metrics.Metrics
}

// Builder assembles transmission records.
type Builder struct {
	cfg BuilderConfig
}

// NewBuilder fills defaults for nil Sampling, Now and Logger.
func NewBuilder(cfg BuilderConfig) *Builder {
	if cfg.Sampling == nil {
		cfg.Sampling = NewSamplingRate(1.0)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Builder{cfg: cfg}
}

// ShouldEncrypt reports whether values are encrypted: dev or staging with a
// public key configured.
func (b *Builder) ShouldEncrypt() bool {
	return b.cfg.PublicEncryptionKey != "" && b.cfg.Env.IsDevelopment()
}

// EventBody builds the record for an event sent through the batch path.
func (b *Builder) EventBody(ctx context.Context, ev Event) Body {
	body := b.base(ctx, TypeEvent)
	b.fillEvent(&body, ev, remap(ev.Schema, nil))
	return body
}

// ValidatedBody builds the record for an event validated against its spec.
// Passing a nil result yields an event record tagged with the stream ID.
func (b *Builder) ValidatedBody(ctx context.Context, ev Event, result *types.ValidationResult, streamID string) Body {
	body := b.base(ctx, TypeEvent)
	var results map[string]*types.PropertyValidationResult
	if result != nil {
		results = result.PropertyResults
		if result.Metadata != nil {
			md := *result.Metadata
			body.EventSpecMetadata = &md
		}
	}
	b.fillEvent(&body, ev, remap(ev.Schema, results))
	body.StreamID = streamID
	return body
}

// SessionStartedBody builds a session start record.
func (b *Builder) SessionStartedBody(ctx context.Context) Body {
	return b.base(ctx, TypeSessionStarted)
}

func (b *Builder) base(ctx context.Context, recordType string) Body {
	body := Body{
		Type:                recordType,
		APIKey:              b.cfg.APIKey,
		AppName:             b.cfg.AppName,
		AppVersion:          b.cfg.AppVersion,
		LibVersion:          b.cfg.LibVersion,
		Env:                 string(b.cfg.Env),
		LibPlatform:         LibPlatform,
		MessageID:           types.NewMessageID(),
		CreatedAt:           b.cfg.Now().UTC().Format(createdAtLayout),
		SamplingRate:        b.cfg.Sampling.Load(),
		PublicEncryptionKey: b.cfg.PublicEncryptionKey,
	}
	if b.cfg.Identity != nil {
		body.SessionID = b.cfg.Identity.SessionID()
		body.AnonymousID = b.cfg.Identity.AnonymousID(ctx)
	}
	return body
}

func (b *Builder) fillEvent(body *Body, ev Event, props []Property) {
	generated := ev.EventID != ""
	body.EventName = ev.Name
	body.AvoFunction = &generated
	if generated {
		body.EventID = ev.EventID
		body.EventHash = ev.EventHash
	}
	if b.ShouldEncrypt() {
		b.encryptValues(props, ev.Properties)
	}
	body.EventProperties = props
}

// encryptValues fills EncryptedPropertyValue on every leaf whose value is
// present. Objects never carry a ciphertext of their own and recurse into
// their children; lists stay unencrypted. A failed encryption leaves the
// value out.
func (b *Builder) encryptValues(props []Property, values types.Value) {
	for i := range props {
		v, ok := values.Field(props[i].PropertyName)
		if !ok {
			continue
		}
		switch v.Kind() {
		case types.KindList:
			continue
		case types.KindMap:
			if len(props[i].Children) > 0 {
				b.encryptValues(props[i].Children, v)
			}
			continue
		}
		ct, err := encryption.EncryptValue(v, b.cfg.PublicEncryptionKey)
		if err != nil {
			b.cfg.Logger.Warn("omitting property value, encryption failed",
				"property", props[i].PropertyName, "error", err)
			b.cfg.Metrics.EncryptionFailed()
			continue
		}
		props[i].EncryptedPropertyValue = ct
	}
}

// remap converts a schema to the wire property list, sorted by name, and
// attaches validation results where present.
func remap(s map[string]schema.Type, results map[string]*types.PropertyValidationResult) []Property {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)

	props := make([]Property, 0, len(names))
	for _, name := range names {
		t := s[name]
		p := Property{PropertyName: name, PropertyType: t.ReportedName()}

		var res *types.PropertyValidationResult
		if results != nil {
			res = results[name]
		}
		if !res.Empty() {
			p.FailedEventIDs = res.FailedEventIDs
			p.PassedEventIDs = res.PassedEventIDs
		}

		if t.Kind() == schema.KindObject {
			var childResults map[string]*types.PropertyValidationResult
			if res != nil {
				childResults = res.Children
			}
			p.Children = remap(t.Children(), childResults)
		}
		props = append(props, p)
	}
	return props
}
