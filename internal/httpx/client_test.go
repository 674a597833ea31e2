package httpx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/elmoxbt/x402-defi-yield-api/internal/apierr"
)

func TestDoJSONRetriesServerError(t *testing.T) {
	var count int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&count, 1)
		if n == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"x"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	client := New(2*time.Second, 1)
	var out map[string]any
	if err := client.GetJSON(context.Background(), srv.URL, &out); err != nil {
		t.Fatalf("GetJSON failed: %v", err)
	}
	if out["ok"] != true {
		t.Fatalf("unexpected response: %#v", out)
	}
}

func TestDoJSONMapsRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := New(2*time.Second, 0)
	err := client.GetJSON(context.Background(), srv.URL, nil)
	apiErr, ok := apierr.As(err)
	if !ok || apiErr.Code != apierr.CodeRateLimited {
		t.Fatalf("expected rate limited error, got %v", err)
	}
}

func TestDoJSONUnexpectedStatusIsNotRetried(t *testing.T) {
	var count int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&count, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := New(2*time.Second, 3)
	err := client.GetJSON(context.Background(), srv.URL, nil)
	apiErr, ok := apierr.As(err)
	if !ok || apiErr.Code != apierr.CodeUnsupported {
		t.Fatalf("expected unsupported status error, got %v", err)
	}
	if atomic.LoadInt32(&count) != 1 {
		t.Fatalf("expected single attempt for 404, got %d", count)
	}
}

func TestPostJSONRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Fatalf("expected JSON content type, got %q", ct)
		}
		_, _ = w.Write([]byte(`{"echo":true}`))
	}))
	defer srv.Close()

	client := New(2*time.Second, 0)
	var out map[string]any
	if err := client.PostJSON(context.Background(), srv.URL, []byte(`{"x":1}`), &out); err != nil {
		t.Fatalf("PostJSON failed: %v", err)
	}
	if out["echo"] != true {
		t.Fatalf("unexpected response: %#v", out)
	}
}
