package eventspec

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/solatis/schemainspector/internal/types"
)

// blockingClient holds every request until release is closed or the request
// context ends.
type blockingClient struct {
	calls   atomic.Int32
	release chan struct{}
	spec    *types.EventSpecResponse
}

func (c *blockingClient) Get(ctx context.Context, _ string) (*types.EventSpecResponse, error) {
	c.calls.Add(1)
	select {
	case <-c.release:
		return c.spec, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type panicClient struct{}

func (panicClient) Get(context.Context, string) (*types.EventSpecResponse, error) {
	panic("boom")
}

func collect(t *testing.T) (Callback, func() []*types.EventSpecResponse, *sync.WaitGroup) {
	t.Helper()
	var (
		mu      sync.Mutex
		results []*types.EventSpecResponse
		wg      sync.WaitGroup
	)
	cb := func(s *types.EventSpecResponse) {
		mu.Lock()
		results = append(results, s)
		mu.Unlock()
		wg.Done()
	}
	get := func() []*types.EventSpecResponse {
		mu.Lock()
		defer mu.Unlock()
		return append([]*types.EventSpecResponse(nil), results...)
	}
	return cb, get, &wg
}

func TestFetcher_HTTP(t *testing.T) {
	queries := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/trackingPlan/eventSpec" {
			http.NotFound(w, r)
			return
		}
		queries <- r.URL.RawQuery
		w.Write([]byte(purchaseSpecJSON))
	}))
	defer srv.Close()

	f := NewFetcher(FetcherConfig{BaseURL: srv.URL, Env: types.EnvDev, RequestTimeout: time.Second})
	cb, results, wg := collect(t)
	wg.Add(1)
	f.Fetch(context.Background(), FetchParams{APIKey: "key 1", StreamID: "s&1", EventName: "Purchase Done"}, cb)
	wg.Wait()

	got := results()
	if len(got) != 1 || got[0] == nil {
		t.Fatalf("callback results = %v, want one spec", got)
	}
	if got[0].Metadata.SchemaID != "sch_1" {
		t.Errorf("SchemaID = %s, want sch_1", got[0].Metadata.SchemaID)
	}
	if gotQuery, want := <-queries, "apiKey=key+1&streamId=s%261&eventName=Purchase+Done"; gotQuery != want {
		t.Errorf("query = %s, want %s", gotQuery, want)
	}
	if f.InFlight() != 0 {
		t.Errorf("InFlight() = %d after delivery, want 0", f.InFlight())
	}
}

func TestFetcher_FailuresDeliverNil(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{name: "non-200", handler: func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", http.StatusInternalServerError)
		}},
		{name: "malformed body", handler: func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"events":[]}`))
		}},
		{name: "not json", handler: func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`not json`))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			f := NewFetcher(FetcherConfig{BaseURL: srv.URL, Env: types.EnvStaging})
			cb, results, wg := collect(t)
			wg.Add(1)
			f.Fetch(context.Background(), FetchParams{APIKey: "k", StreamID: "s", EventName: "e"}, cb)
			wg.Wait()

			if got := results(); len(got) != 1 || got[0] != nil {
				t.Errorf("callback results = %v, want [nil]", got)
			}
		})
	}
}

func TestFetcher_ClientPanicDeliversNil(t *testing.T) {
	f := NewFetcher(FetcherConfig{Env: types.EnvDev, Client: panicClient{}})
	cb, results, wg := collect(t)
	wg.Add(1)
	f.Fetch(context.Background(), FetchParams{EventName: "e"}, cb)
	wg.Wait()

	if got := results(); len(got) != 1 || got[0] != nil {
		t.Errorf("callback results = %v, want [nil]", got)
	}
}

func TestFetcher_ProdSkipsNetwork(t *testing.T) {
	client := &blockingClient{release: make(chan struct{})}
	f := NewFetcher(FetcherConfig{Env: types.EnvProd, Client: client})

	called := false
	f.Fetch(context.Background(), FetchParams{EventName: "e"}, func(s *types.EventSpecResponse) {
		called = true
		if s != nil {
			t.Errorf("callback spec = %v, want nil", s)
		}
	})

	if !called {
		t.Errorf("callback not invoked synchronously in prod")
	}
	if client.calls.Load() != 0 {
		t.Errorf("client called %d times in prod, want 0", client.calls.Load())
	}
}

func TestFetcher_CoalescesSameKey(t *testing.T) {
	spec := testSpec("sch")
	client := &blockingClient{release: make(chan struct{}), spec: spec}
	f := NewFetcher(FetcherConfig{Env: types.EnvDev, Client: client, WallTimeout: 5 * time.Second})

	const callers = 8
	cb, results, wg := collect(t)
	wg.Add(callers + 1)

	params := FetchParams{APIKey: "k", StreamID: "s", EventName: "e"}
	var start sync.WaitGroup
	start.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer start.Done()
			f.Fetch(context.Background(), params, cb)
		}()
	}
	start.Wait()

	// A different key fetches independently.
	f.Fetch(context.Background(), FetchParams{APIKey: "k", StreamID: "s", EventName: "other"}, cb)

	close(client.release)
	wg.Wait()

	if got := client.calls.Load(); got != 2 {
		t.Errorf("client calls = %d, want 2", got)
	}
	got := results()
	if len(got) != callers+1 {
		t.Fatalf("callbacks = %d, want %d", len(got), callers+1)
	}
	for i, s := range got {
		if s != spec {
			t.Errorf("result %d = %v, want shared spec", i, s)
		}
	}
}

func TestFetcher_WallTimeout(t *testing.T) {
	client := &blockingClient{release: make(chan struct{}), spec: testSpec("late")}
	f := NewFetcher(FetcherConfig{Env: types.EnvDev, Client: client, WallTimeout: 20 * time.Millisecond})

	cb, results, wg := collect(t)
	wg.Add(1)
	started := time.Now()
	f.Fetch(context.Background(), FetchParams{EventName: "e"}, cb)
	wg.Wait()

	if got := results(); len(got) != 1 || got[0] != nil {
		t.Errorf("callback results = %v, want [nil]", got)
	}
	if elapsed := time.Since(started); elapsed > 2*time.Second {
		t.Errorf("timeout took %v", elapsed)
	}
	if f.InFlight() != 0 {
		t.Errorf("InFlight() = %d after timeout, want 0", f.InFlight())
	}
}

func TestFetcher_LateResultDropped(t *testing.T) {
	// First request ignores cancellation and answers late.
	late := make(chan struct{})
	var calls atomic.Int32
	client := clientFunc(func(ctx context.Context, _ string) (*types.EventSpecResponse, error) {
		if calls.Add(1) == 1 {
			<-late
			return testSpec("stale"), nil
		}
		return testSpec("fresh"), nil
	})
	f := NewFetcher(FetcherConfig{Env: types.EnvDev, Client: client, WallTimeout: 20 * time.Millisecond})
	params := FetchParams{EventName: "e"}

	cb, results, wg := collect(t)
	wg.Add(1)
	f.Fetch(context.Background(), params, cb)
	wg.Wait()

	wg.Add(1)
	f.Fetch(context.Background(), params, cb)
	wg.Wait()
	close(late)
	f.Wait()

	got := results()
	if len(got) != 2 {
		t.Fatalf("callbacks = %d, want 2", len(got))
	}
	if got[0] != nil {
		t.Errorf("first result = %v, want nil", got[0])
	}
	if got[1] == nil || got[1].Metadata.SchemaID != "fresh" {
		t.Errorf("second result = %v, want fresh spec", got[1])
	}
}

type clientFunc func(ctx context.Context, rawURL string) (*types.EventSpecResponse, error)

func (fn clientFunc) Get(ctx context.Context, rawURL string) (*types.EventSpecResponse, error) {
	return fn(ctx, rawURL)
}
