package httpclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vertextoedge/artifact-cache/internal/domain"
)

func TestClient_ContentLength(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    int64
		wantErr error
	}{
		{
			name: "declared length",
			handler: func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodHead {
					t.Errorf("method = %s, want HEAD", r.Method)
				}
				w.Header().Set("Content-Length", "26214400")
			},
			want: 26214400,
		},
		{
			name: "not found",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			},
			wantErr: domain.ErrSizeUnavailable,
		},
		{
			name: "chunked response without length",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Transfer-Encoding", "chunked")
				w.WriteHeader(http.StatusOK)
			},
			wantErr: domain.ErrSizeUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			got, err := New(nil).ContentLength(context.Background(), srv.URL+"/model.bin")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ContentLength() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ContentLength() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ContentLength() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestClient_GetRange(t *testing.T) {
	payload := []byte("0123456789abcdef")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Range"); got != "bytes=4-7" {
			t.Errorf("Range header = %q", got)
		}
		if got := r.Header.Get("User-Agent"); got != "tester" {
			t.Errorf("User-Agent = %q", got)
		}
		if got := r.Header.Get("X-Token"); got != "secret" {
			t.Errorf("X-Token = %q", got)
		}
		w.WriteHeader(http.StatusPartialContent)
		w.Write(payload[4:8])
	}))
	defer srv.Close()

	c := New(&Config{UserAgent: "tester", Headers: map[string]string{"X-Token": "secret"}})
	resp, err := c.GetRange(context.Background(), srv.URL, 4, 7)
	if err != nil {
		t.Fatalf("GetRange() error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPartialContent {
		t.Errorf("StatusCode = %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "4567" {
		t.Errorf("body = %q", body)
	}
}

func TestClient_Ping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(nil)
	if _, err := c.Ping(context.Background(), srv.URL+"/network-test"); err != nil {
		t.Errorf("Ping() error = %v, a 404 is still a round trip", err)
	}

	srv.Close()
	if _, err := c.Ping(context.Background(), srv.URL+"/network-test"); err == nil {
		t.Error("Ping() to closed server should fail")
	}
}
