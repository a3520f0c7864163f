package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/solatis/schemainspector/internal/metrics"
	"github.com/solatis/schemainspector/internal/types"
)

// DefaultTrackURL is the inspector track endpoint.
const DefaultTrackURL = "https://api.avo.app/inspector/v1/track"

// DefaultSendTimeout bounds one track request.
const DefaultSendTimeout = 5 * time.Second

// maxTrackResponseBytes caps how much of a track response is read.
const maxTrackResponseBytes = 64 << 10

// Sender delivers records to the backend.
type Sender interface {
	// SendBatch posts queued records. A nil error means the records are
	// done with (sent, or dropped by sampling); an error means retry later.
	SendBatch(ctx context.Context, bodies []Body) error

	// SendValidated posts one validated record immediately.
	SendValidated(ctx context.Context, body Body) error
}

// SenderConfig configures an HTTPSender.
type SenderConfig struct {
	TrackURL string
	Timeout  time.Duration
	Client   *http.Client
	Sampling *SamplingRate
	// Rand returns a value in [0, 1). Defaults to math/rand/v2.
	Rand    func() float64
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// HTTPSender posts JSON arrays of records to the track endpoint.
type HTTPSender struct {
	url      string
	client   *http.Client
	sampling *SamplingRate
	rand     func() float64
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewHTTPSender fills defaults for every zero field.
func NewHTTPSender(cfg SenderConfig) *HTTPSender {
	if cfg.TrackURL == "" {
		cfg.TrackURL = DefaultTrackURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultSendTimeout
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Sampling == nil {
		cfg.Sampling = NewSamplingRate(1.0)
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.Float64
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &HTTPSender{
		url:      cfg.TrackURL,
		client:   cfg.Client,
		sampling: cfg.Sampling,
		rand:     cfg.Rand,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
	}
}

// trackResponse is the optional body of a successful track call.
type trackResponse struct {
	SamplingRate *float64 `json:"samplingRate"`
}

// SendBatch applies sampling, then posts. A 200 response may carry a new
// sampling rate.
func (s *HTTPSender) SendBatch(ctx context.Context, bodies []Body) error {
	if len(bodies) == 0 {
		return nil
	}
	if s.rand() > s.sampling.Load() {
		s.logger.Debug("batch dropped by sampling rate", "records", len(bodies), "rate", s.sampling.Load())
		return nil
	}

	for _, b := range bodies {
		if b.Type == TypeEvent {
			s.logger.Debug("sending event", "event", b.EventName, "properties", len(b.EventProperties))
		}
	}

	resp, err := s.post(ctx, bodies)
	s.metrics.BatchSent(err == nil)
	if err != nil {
		return err
	}

	var tr trackResponse
	if err := json.Unmarshal(resp, &tr); err == nil && tr.SamplingRate != nil {
		s.sampling.Store(*tr.SamplingRate)
	}
	return nil
}

// SendValidated posts a single record without sampling.
func (s *HTTPSender) SendValidated(ctx context.Context, body Body) error {
	s.logger.Debug("sending validated event", "event", body.EventName, "stream", body.StreamID)
	_, err := s.post(ctx, []Body{body})
	return err
}

func (s *HTTPSender) post(ctx context.Context, bodies []Body) ([]byte, error) {
	payload, err := json.Marshal(bodies)
	if err != nil {
		return nil, fmt.Errorf("encode records: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build track request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("track request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxTrackResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read track response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d", types.ErrUnexpectedStatus, resp.StatusCode)
	}
	return data, nil
}
