// internal/inspector/inspector.go
package inspector

/*
 * Inspector facade.
 *
 * Wires extraction, deduplication, tracking-plan validation, encryption and
 * batching into the entry points a host calls. The caller's goroutine runs
 * the dedup gate, schema extraction, session bookkeeping and debugger
 * publishing; everything after that is posted to the main loop:
 *
 *   cache hit, spec present  -> validate, send a validated record now
 *   cache hit, spec nil      -> batch
 *   cache miss               -> batch, fetch the event spec in the background,
 *                               cache the answer on the loop
 *
 * Branch state and every batch mutation are loop-owned. Validated sends and
 * fetches run on their own goroutines and never touch loop state directly.
 */

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/solatis/schemainspector/internal/batch"
	"github.com/solatis/schemainspector/internal/core/config"
	"github.com/solatis/schemainspector/internal/debugger"
	"github.com/solatis/schemainspector/internal/dedup"
	"github.com/solatis/schemainspector/internal/eventspec"
	"github.com/solatis/schemainspector/internal/identity"
	"github.com/solatis/schemainspector/internal/loop"
	"github.com/solatis/schemainspector/internal/metrics"
	"github.com/solatis/schemainspector/internal/rules"
	"github.com/solatis/schemainspector/internal/schema"
	"github.com/solatis/schemainspector/internal/session"
	"github.com/solatis/schemainspector/internal/storage"
	"github.com/solatis/schemainspector/internal/transport"
	"github.com/solatis/schemainspector/internal/types"
)

// LibVersion is reported in every record.
const LibVersion = "1.0.0"

// Deps carries optional collaborators. Nil fields get production defaults.
type Deps struct {
	// Storage backs identity, session and batch persistence. When nil the
	// inspector opens Config.StorageURL and closes it on Close.
	Storage storage.Storage
	// Sender posts records. Defaults to a KafkaSender when Config.KafkaBrokers
	// is set and to an HTTPSender on Config.TrackURL otherwise.
	Sender transport.Sender
	// SpecClient performs tracking-plan GETs; defaults to eventspec.HTTPClient.
	SpecClient eventspec.RequestClient
	// Debugger receives every tracked event. Defaults to debugger.Log when
	// Config.Verbose is set and debugger.Noop otherwise.
	Debugger debugger.Sink
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Now      func() time.Time
}

// Inspector is the host-facing API. Safe for concurrent use.
type Inspector struct {
	cfg     config.InspectorConfig
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	loop      *loop.Loop
	extractor *schema.Extractor
	dedup     *dedup.Deduplicator
	cache     *eventspec.Cache
	fetcher   *eventspec.Fetcher
	validator *rules.Validator
	identity  *identity.Resolver
	session   *session.Tracker
	builder   *transport.Builder
	sender    transport.Sender
	batcher   *batch.Batcher
	debugger  debugger.Sink

	store      storage.Storage
	ownedStore storage.Backend
	ownedKafka *transport.KafkaSender

	// Loop-owned.
	branchID string

	ctx    context.Context
	cancel context.CancelFunc
	sends  sync.WaitGroup
	closed atomic.Bool
}

// recordIdentity feeds the builder from the resolver and session tracker.
type recordIdentity struct {
	resolver *identity.Resolver
	tracker  *session.Tracker
}

func (r recordIdentity) AnonymousID(ctx context.Context) string { return r.resolver.AnonymousID(ctx) }
func (r recordIdentity) SessionID() string                      { return r.tracker.SessionID() }

// New validates cfg and builds an inspector from it and deps.
func New(ctx context.Context, cfg config.InspectorConfig, deps Deps) (*Inspector, error) {
	if err := config.Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid inspector config: %w", err)
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("component", "inspector")
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	i := &Inspector{
		cfg:     cfg,
		logger:  logger,
		metrics: deps.Metrics,
		now:     now,
		store:   deps.Storage,
	}

	if i.store == nil {
		backend, err := storage.Open(ctx, cfg.StorageURL)
		if err != nil {
			return nil, fmt.Errorf("open storage: %w", err)
		}
		i.store = backend
		i.ownedStore = backend
	}

	i.ctx, i.cancel = context.WithCancel(context.Background())
	i.loop = loop.New(logger)
	i.extractor = schema.NewExtractor(logger, cfg.Verbose)
	i.dedup = dedup.New(dedup.WithWindow(cfg.DedupWindow), dedup.WithClock(now))
	i.cache = eventspec.NewCache(
		eventspec.WithCacheClock(now),
		eventspec.WithCacheLogger(logger),
		eventspec.WithCacheMetrics(deps.Metrics),
	)

	client := deps.SpecClient
	if client == nil {
		client = eventspec.NewHTTPClient(cfg.RequestTimeout)
	}
	i.fetcher = eventspec.NewFetcher(eventspec.FetcherConfig{
		BaseURL:        cfg.BaseURL,
		Env:            cfg.Env,
		RequestTimeout: cfg.RequestTimeout,
		WallTimeout:    cfg.EffectiveWallTimeout(),
		Client:         client,
		Logger:         logger,
		Metrics:        deps.Metrics,
	})
	i.validator = rules.NewValidator(
		rules.WithMaxDepth(cfg.MaxValidationDepth),
		rules.WithLogger(logger),
		rules.WithMetrics(deps.Metrics),
	)

	i.identity = identity.New(i.store, logger)
	i.session = session.New(ctx, i.store,
		session.WithTimeout(cfg.SessionTimeout),
		session.WithClock(now),
		session.WithLogger(logger),
	)

	sampling := transport.NewSamplingRate(1.0)
	i.builder = transport.NewBuilder(transport.BuilderConfig{
		APIKey:              cfg.APIKey,
		Env:                 cfg.Env,
		AppName:             cfg.AppName,
		AppVersion:          cfg.AppVersion,
		LibVersion:          LibVersion,
		PublicEncryptionKey: cfg.PublicEncryptionKey,
		Sampling:            sampling,
		Identity:            recordIdentity{resolver: i.identity, tracker: i.session},
		Now:                 now,
		Logger:              logger,
		Metrics:             deps.Metrics,
	})

	i.sender = deps.Sender
	if i.sender == nil && cfg.KafkaBrokers != "" {
		ks, err := transport.NewKafkaSender(transport.KafkaConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
			Logger:  logger,
			Metrics: deps.Metrics,
		})
		if err != nil {
			_ = i.release()
			return nil, err
		}
		i.sender = ks
		i.ownedKafka = ks
	}
	if i.sender == nil {
		i.sender = transport.NewHTTPSender(transport.SenderConfig{
			TrackURL: cfg.TrackURL,
			Timeout:  cfg.RequestTimeout,
			Sampling: sampling,
			Logger:   logger,
			Metrics:  deps.Metrics,
		})
	}
	i.batcher = batch.New(batch.Config{
		Loop:          i.loop,
		Sender:        i.sender,
		Store:         i.store,
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.BatchFlushInterval,
		MaxStored:     cfg.MaxStoredEvents,
		Now:           now,
		Logger:        logger,
		Metrics:       deps.Metrics,
	})

	i.debugger = deps.Debugger
	if i.debugger == nil {
		if cfg.Verbose {
			i.debugger = debugger.Log{Logger: logger}
		} else {
			i.debugger = debugger.Noop{}
		}
	}

	logger.Info("inspector started",
		"env", cfg.Env,
		"app", cfg.AppName,
		"installation_id", i.identity.InstallationID(ctx),
		"encryption", i.builder.ShouldEncrypt(),
	)
	return i, nil
}

// TrackSchemaFromEvent tracks an event the host reported by hand and returns
// its schema. A deduplicated event returns an empty schema.
func (i *Inspector) TrackSchemaFromEvent(eventName string, props any) map[string]schema.Type {
	defer i.recoverPanic("TrackSchemaFromEvent")
	return i.trackEvent(eventName, types.FromGo(props), "", "")
}

// TrackGeneratedEvent tracks an event emitted by generated tracking code.
// eventID and eventHash identify the tracking-plan event it was generated
// from.
func (i *Inspector) TrackGeneratedEvent(eventName string, props any, eventID, eventHash string) map[string]schema.Type {
	defer i.recoverPanic("TrackGeneratedEvent")
	return i.trackEvent(eventName, types.FromGo(props), eventID, eventHash)
}

// TrackSchema tracks an already extracted schema. Without values there is
// nothing to validate, so the record always takes the batch path.
func (i *Inspector) TrackSchema(eventName string, s map[string]schema.Type) {
	defer i.recoverPanic("TrackSchema")

	if !i.dedup.ShouldRegisterSchema(eventName, s) {
		i.deduplicated(eventName)
		return
	}
	i.logger.Debug("tracking schema", "event", eventName, "properties", len(s))

	ctx := i.ctx
	i.prolongSession(ctx)
	i.debugger.Publish(debugger.SchemaEntry(i.now(), eventName, s))

	ev := transport.Event{Name: eventName, Schema: s}
	i.post(func() { i.batchEvent(ctx, ev) })
}

// ExtractSchema returns the schema of props without tracking anything.
func (i *Inspector) ExtractSchema(props any) map[string]schema.Type {
	defer i.recoverPanic("ExtractSchema")
	return i.extractor.ExtractGo(props)
}

// SetAnonymousID overrides the stored anonymous ID. An empty id removes it,
// and a fresh one is generated on next use.
func (i *Inspector) SetAnonymousID(id string) {
	defer i.recoverPanic("SetAnonymousID")
	i.identity.SetAnonymousID(i.ctx, id)
}

// AnonymousID returns the current anonymous ID, also used as the stream ID.
func (i *Inspector) AnonymousID() string {
	return i.identity.AnonymousID(i.ctx)
}

// SessionID returns the current session ID.
func (i *Inspector) SessionID() string {
	return i.session.SessionID()
}

// EnterForeground restores records persisted by EnterBackground, sends them
// and prolongs the session.
func (i *Inspector) EnterForeground() {
	defer i.recoverPanic("EnterForeground")
	i.batcher.EnterForeground()
	i.prolongSession(i.ctx)
}

// EnterBackground persists queued records so a host shutdown loses nothing.
func (i *Inspector) EnterBackground() {
	defer i.recoverPanic("EnterBackground")
	i.batcher.EnterBackground()
}

// Flush sends everything queued and waits for in-flight work to settle.
func (i *Inspector) Flush(ctx context.Context) error {
	if err := i.settle(ctx); err != nil {
		return err
	}
	return i.batcher.Drain(ctx)
}

// Close flushes pending records, waits for fetches and sends, then releases
// the loop and any storage the inspector opened itself.
func (i *Inspector) Close(ctx context.Context) error {
	if !i.closed.CompareAndSwap(false, true) {
		return types.ErrInspectorClosed
	}

	err := i.Flush(ctx)

	i.batcher.Close()
	if rerr := i.release(); rerr != nil && err == nil {
		err = rerr
	}
	i.logger.Info("inspector closed")
	return err
}

// release stops the loop and closes what New opened itself.
func (i *Inspector) release() error {
	i.cancel()
	i.loop.Stop()

	var err error
	if i.ownedKafka != nil {
		if cerr := i.ownedKafka.Close(); cerr != nil {
			err = fmt.Errorf("close kafka sender: %w", cerr)
		}
	}
	if i.ownedStore != nil {
		if cerr := i.ownedStore.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close storage: %w", cerr)
		}
	}
	return err
}

// settle waits until routed events, fetch callbacks and validated sends are
// done. Fetch callbacks post to the loop, so the loop is flushed again after.
func (i *Inspector) settle(ctx context.Context) error {
	if err := i.loop.Flush(ctx); err != nil {
		return err
	}
	i.fetcher.Wait()
	if err := i.loop.Flush(ctx); err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		i.sends.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (i *Inspector) trackEvent(eventName string, props types.Value, eventID, eventHash string) map[string]schema.Type {
	if !i.dedup.ShouldRegister(eventName, props, eventID != "") {
		i.deduplicated(eventName)
		return map[string]schema.Type{}
	}
	if i.cfg.Verbose {
		i.logger.Debug("supplied event", "event", eventName, "properties", props)
	}

	s := i.extractor.ExtractAll(props)

	ctx := i.ctx
	i.prolongSession(ctx)
	at := i.now()
	i.debugger.Publish(debugger.EventEntry(at, eventName, props))
	i.debugger.Publish(debugger.SchemaEntry(at, eventName, s))

	ev := transport.Event{
		Name:       eventName,
		Schema:     s,
		Properties: props,
		EventID:    eventID,
		EventHash:  eventHash,
	}
	i.post(func() { i.route(ctx, ev) })
	return s
}

func (i *Inspector) deduplicated(eventName string) {
	i.logger.Debug("deduplicated event", "event", eventName)
	i.metrics.EventTracked(metrics.PathDeduplicated)
}

// prolongSession queues a session start record when a new session began.
func (i *Inspector) prolongSession(ctx context.Context) {
	if i.session.StartOrProlong(ctx) {
		i.logger.Debug("session started", "session_id", i.session.SessionID())
		i.batcher.Add(i.builder.SessionStartedBody(ctx))
	}
}

// route picks the delivery path for ev. Runs on the loop.
func (i *Inspector) route(ctx context.Context, ev transport.Event) {
	streamID := i.identity.AnonymousID(ctx)

	spec, hit := i.cache.Get(i.cfg.APIKey, streamID, ev.Name)
	if !hit {
		i.batchEvent(ctx, ev)
		i.fetcher.Fetch(ctx, eventspec.FetchParams{
			APIKey:    i.cfg.APIKey,
			StreamID:  streamID,
			EventName: ev.Name,
		}, func(fetched *types.EventSpecResponse) {
			i.post(func() {
				i.checkBranch(fetched)
				i.cache.Set(i.cfg.APIKey, streamID, ev.Name, fetched)
			})
		})
		return
	}
	if spec == nil {
		i.batchEvent(ctx, ev)
		return
	}

	i.checkBranch(spec)
	result, ok := i.validate(ev.Properties, spec)
	if !ok {
		i.batchEvent(ctx, ev)
		return
	}
	i.sendValidated(ctx, ev, result, streamID)
}

// checkBranch clears the cache when a spec comes from a different branch
// than the last one seen. Runs on the loop.
func (i *Inspector) checkBranch(spec *types.EventSpecResponse) {
	if spec == nil || spec.Metadata == nil || spec.Metadata.BranchID == "" {
		return
	}
	branch := spec.Metadata.BranchID
	if i.branchID != "" && i.branchID != branch {
		i.logger.Info("tracking plan branch changed, clearing spec cache",
			"from", i.branchID, "to", branch)
		i.cache.Clear()
	}
	i.branchID = branch
}

// validate runs the validator, reporting false if it panicked.
func (i *Inspector) validate(props types.Value, spec *types.EventSpecResponse) (result *types.ValidationResult, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			i.logger.Error("validation panicked, using batch path", "panic", r)
			result, ok = nil, false
		}
	}()
	return i.validator.Validate(props, spec), true
}

func (i *Inspector) sendValidated(ctx context.Context, ev transport.Event, result *types.ValidationResult, streamID string) {
	i.metrics.EventTracked(metrics.PathValidated)
	i.sends.Add(1)
	go func() {
		defer i.sends.Done()
		body := i.builder.ValidatedBody(ctx, ev, result, streamID)
		if err := i.sender.SendValidated(ctx, body); err != nil {
			i.logger.Warn("validated event send failed", "event", ev.Name, "error", err)
		}
	}()
}

func (i *Inspector) batchEvent(ctx context.Context, ev transport.Event) {
	i.metrics.EventTracked(metrics.PathBatched)
	i.batcher.Add(i.builder.EventBody(ctx, ev))
}

func (i *Inspector) post(task func()) {
	if err := i.loop.Post(task); err != nil {
		i.logger.Warn("event dropped, inspector is closed", "error", err)
	}
}
