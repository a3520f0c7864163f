package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/solatis/schemainspector/internal/types"
)

type trackServer struct {
	*httptest.Server
	requests atomic.Int32
	last     chan []Body
}

func newTrackServer(t *testing.T, status int, response string) *trackServer {
	t.Helper()
	ts := &trackServer{last: make(chan []Body, 16)}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.requests.Add(1)
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("request %s with content type %q", r.Method, r.Header.Get("Content-Type"))
		}
		data, _ := io.ReadAll(r.Body)
		var bodies []Body
		if err := json.Unmarshal(data, &bodies); err != nil {
			t.Errorf("request body is not a JSON array of records: %v", err)
		}
		ts.last <- bodies
		w.WriteHeader(status)
		_, _ = io.WriteString(w, response)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestSendBatch(t *testing.T) {
	ts := newTrackServer(t, http.StatusOK, `{"samplingRate":0.3}`)
	sampling := NewSamplingRate(1)
	s := NewHTTPSender(SenderConfig{TrackURL: ts.URL, Sampling: sampling})

	bodies := []Body{{Type: TypeEvent, EventName: "A"}, {Type: TypeSessionStarted}}
	if err := s.SendBatch(context.Background(), bodies); err != nil {
		t.Fatalf("SendBatch() error = %v", err)
	}
	got := <-ts.last
	if len(got) != 2 || got[0].EventName != "A" || got[1].Type != TypeSessionStarted {
		t.Errorf("server received %+v", got)
	}
	if sampling.Load() != 0.3 {
		t.Errorf("sampling rate = %v, want 0.3 from response", sampling.Load())
	}
}

func TestSendBatch_ResponseWithoutRateKeepsRate(t *testing.T) {
	ts := newTrackServer(t, http.StatusOK, `not json`)
	sampling := NewSamplingRate(0.8)
	s := NewHTTPSender(SenderConfig{TrackURL: ts.URL, Sampling: sampling, Rand: func() float64 { return 0 }})

	if err := s.SendBatch(context.Background(), []Body{{Type: TypeEvent}}); err != nil {
		t.Fatalf("SendBatch() error = %v", err)
	}
	if sampling.Load() != 0.8 {
		t.Errorf("sampling rate = %v, want unchanged 0.8", sampling.Load())
	}
}

func TestSendBatch_Sampling(t *testing.T) {
	tests := []struct {
		name     string
		rate     float64
		draw     float64
		wantSent bool
	}{
		{name: "draw below rate", rate: 0.5, draw: 0.4, wantSent: true},
		{name: "draw equal to rate", rate: 0.5, draw: 0.5, wantSent: true},
		{name: "draw above rate", rate: 0.5, draw: 0.6, wantSent: false},
		{name: "zero rate", rate: 0, draw: 0.01, wantSent: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTrackServer(t, http.StatusOK, `{}`)
			s := NewHTTPSender(SenderConfig{
				TrackURL: ts.URL,
				Sampling: NewSamplingRate(tt.rate),
				Rand:     func() float64 { return tt.draw },
			})
			if err := s.SendBatch(context.Background(), []Body{{Type: TypeEvent}}); err != nil {
				t.Fatalf("SendBatch() error = %v, want nil (sampled batches are not retried)", err)
			}
			if sent := ts.requests.Load() == 1; sent != tt.wantSent {
				t.Errorf("sent = %v, want %v", sent, tt.wantSent)
			}
		})
	}
}

func TestSendBatch_NonOK(t *testing.T) {
	ts := newTrackServer(t, http.StatusServiceUnavailable, ``)
	s := NewHTTPSender(SenderConfig{TrackURL: ts.URL})

	err := s.SendBatch(context.Background(), []Body{{Type: TypeEvent}})
	if !errors.Is(err, types.ErrUnexpectedStatus) {
		t.Errorf("SendBatch() error = %v, want ErrUnexpectedStatus", err)
	}
}

func TestSendBatch_Empty(t *testing.T) {
	ts := newTrackServer(t, http.StatusOK, ``)
	s := NewHTTPSender(SenderConfig{TrackURL: ts.URL})
	if err := s.SendBatch(context.Background(), nil); err != nil {
		t.Errorf("SendBatch(nil) error = %v", err)
	}
	if ts.requests.Load() != 0 {
		t.Error("empty batch issued a request")
	}
}

func TestSendValidated_IgnoresSampling(t *testing.T) {
	ts := newTrackServer(t, http.StatusOK, ``)
	s := NewHTTPSender(SenderConfig{
		TrackURL: ts.URL,
		Sampling: NewSamplingRate(0),
		Rand:     func() float64 { return 0.99 },
	})

	if err := s.SendValidated(context.Background(), Body{Type: TypeEvent, StreamID: "anon"}); err != nil {
		t.Fatalf("SendValidated() error = %v", err)
	}
	got := <-ts.last
	if len(got) != 1 || got[0].StreamID != "anon" {
		t.Errorf("server received %+v, want one validated record", got)
	}
}

func TestSend_ConnectionError(t *testing.T) {
	ts := newTrackServer(t, http.StatusOK, ``)
	url := ts.URL
	ts.Close()

	s := NewHTTPSender(SenderConfig{TrackURL: url})
	if err := s.SendValidated(context.Background(), Body{Type: TypeEvent}); err == nil {
		t.Error("SendValidated() against closed server error = nil")
	}
}
