package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/artifact-cache/internal/adapter/httpclient"
	"github.com/vertextoedge/artifact-cache/internal/adapter/memory"
	"github.com/vertextoedge/artifact-cache/internal/domain"
	"github.com/vertextoedge/artifact-cache/internal/port"
)

// gatedStore holds Get for one key until the context is done
type gatedStore struct {
	*memory.Store
	key     string
	entered chan<- string
}

func (g *gatedStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if key == g.key {
		g.entered <- key
		<-ctx.Done()
		return nil, false, ctx.Err()
	}
	return g.Store.Get(ctx, key)
}

func TestService_CancelInEveryState(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(o *fakeOrigin)
		cached     int    // chunks seeded before the load
		gateKey    string // store key whose read blocks
		download   bool   // DownloadInChunks instead of Load
		during     string
		wantMeta   bool
		wantRanges int
	}{
		{
			name:   "size request",
			setup:  func(o *fakeOrigin) { o.headWait = true },
			during: domain.FetchStateProbing,
		},
		{
			name:   "latency check",
			setup:  func(o *fakeOrigin) { o.pingWait = true },
			during: domain.FetchStateProbing,
		},
		{
			name:     "cached chunk scan",
			cached:   1,
			gateKey:  domain.ChunkKey("model", 0),
			download: true,
			during:   domain.FetchStateChecking,
			wantMeta: true,
		},
		{
			name:     "cache hit assembly",
			cached:   3,
			gateKey:  domain.ChunkKey("model", 1),
			during:   domain.FetchStateAssembling,
			wantMeta: true,
		},
		{
			name:       "chunk download",
			setup:      func(o *fakeOrigin) { o.block = make(chan struct{}) },
			during:     domain.FetchStateDownloading,
			wantMeta:   true,
			wantRanges: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			entered := make(chan string, 8)
			origin := newOrigin(3000)
			origin.entered = entered
			if tt.setup != nil {
				tt.setup(origin)
			}

			mem := memory.New()
			if tt.cached > 0 {
				seedCache(t, mem, origin, 1000, tt.cached)
			}
			var store port.BlobStore = mem
			if tt.gateKey != "" {
				store = &gatedStore{Store: mem, key: tt.gateKey, entered: entered}
			}
			s := newServiceWithStore(origin, store, 1000)

			log := &progressLog{}
			load := s.Load
			if tt.download {
				load = s.DownloadInChunks
			}
			errc := make(chan error, 1)
			go func() {
				_, err := load(ctx, log.callbacks())
				errc <- err
			}()

			select {
			case <-entered:
			case <-time.After(5 * time.Second):
				t.Fatal("load never reached the blocking call")
			}
			if state := s.Session().State; state != tt.during {
				t.Errorf("state before cancel = %q, want %q", state, tt.during)
			}
			if !s.Cancel() {
				t.Fatal("Cancel() = false with an active session")
			}

			var err error
			select {
			case err = <-errc:
			case <-time.After(5 * time.Second):
				t.Fatal("load did not stop after cancel")
			}

			if !domain.IsCancelled(err) {
				t.Fatalf("error = %v, want ErrDownloadCancelled", err)
			}
			if errors.Is(err, domain.ErrSizeUnavailable) || errors.Is(err, domain.ErrChunkFetchFailed) {
				t.Errorf("cancellation reported as failure: %v", err)
			}
			if session := s.Session(); session.State != domain.FetchStateCancelled || session.IsActive {
				t.Errorf("session = %+v", session)
			}
			if got := mem.Has(ctx, domain.MetadataKey("model")); got != tt.wantMeta {
				t.Errorf("metadata stored = %v, want %v", got, tt.wantMeta)
			}
			if got := len(origin.requests()); got != tt.wantRanges {
				t.Errorf("range requests = %d, want %d", got, tt.wantRanges)
			}

			log.mu.Lock()
			defer log.mu.Unlock()
			if log.completes != 0 || len(log.errs) != 1 {
				t.Errorf("completes = %d, errors = %d", log.completes, len(log.errs))
			}
		})
	}
}

func TestService_CancelDuringSizeRequestOverHTTP(t *testing.T) {
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			entered <- struct{}{}
			select {
			case <-r.Context().Done():
			case <-release:
			}
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()
	defer close(release)

	store := memory.New()
	cfg := DefaultConfig()
	cfg.ArtifactID = "model"
	cfg.URL = srv.URL + "/models/model.bin"
	s := New(cfg, store, httpclient.New(nil), nil, zap.NewNop())

	errc := make(chan error, 1)
	go func() {
		_, err := s.Load(context.Background(), nil)
		errc <- err
	}()

	<-entered
	if !s.Cancel() {
		t.Fatal("Cancel() = false with an active session")
	}

	select {
	case err := <-errc:
		if !domain.IsCancelled(err) {
			t.Errorf("Load() error = %v, want ErrDownloadCancelled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("size request was not aborted")
	}
	if state := s.Session().State; state != domain.FetchStateCancelled {
		t.Errorf("state = %q, want cancelled", state)
	}
	if store.Has(context.Background(), domain.MetadataKey("model")) {
		t.Error("metadata written by a cancelled load")
	}
}
