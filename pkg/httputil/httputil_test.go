package httputil

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/corestream/cincinnati/pkg/errors"
)

func TestClientGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Accept"); got != "application/json" {
			t.Errorf("Accept = %q", got)
		}
		w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	body, err := NewClient(time.Second).Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if string(body) != `{"ok": true}` {
		t.Errorf("body = %q", body)
	}
}

func TestClientGetStatusErrors(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		transient bool
	}{
		{"not found", http.StatusNotFound, false},
		{"forbidden", http.StatusForbidden, false},
		{"server error", http.StatusInternalServerError, true},
		{"bad gateway", http.StatusBadGateway, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			_, err := NewClient(time.Second).Get(context.Background(), srv.URL)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, errors.ErrCodeUpstream) {
				t.Errorf("error code = %q, want UPSTREAM_ERROR", errors.GetCode(err))
			}
			if got := errors.IsTransient(err); got != tc.transient {
				t.Errorf("transient = %v, want %v", got, tc.transient)
			}
		})
	}
}

func TestClientGetNetworkErrorIsTransient(t *testing.T) {
	_, err := NewClient(time.Second).Get(context.Background(), "http://127.0.0.1:1/")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.IsTransient(err) {
		t.Error("network failure should be transient")
	}
}

func TestRetry(t *testing.T) {
	t.Run("retries transient failures", func(t *testing.T) {
		attempts := 0
		err := Retry(context.Background(), 3, time.Millisecond, func() error {
			attempts++
			if attempts < 3 {
				return errors.NewTransient(errors.ErrCodeUpstream, "transient")
			}
			return nil
		})
		if err != nil {
			t.Fatalf("Retry error: %v", err)
		}
		if attempts != 3 {
			t.Errorf("attempts = %d, want 3", attempts)
		}
	})

	t.Run("permanent failure stops immediately", func(t *testing.T) {
		attempts := 0
		err := Retry(context.Background(), 3, time.Millisecond, func() error {
			attempts++
			return errors.New(errors.ErrCodeUpstream, "permanent")
		})
		if err == nil {
			t.Fatal("expected error")
		}
		if attempts != 1 {
			t.Errorf("attempts = %d, want 1", attempts)
		}
	})

	t.Run("exhausts attempts", func(t *testing.T) {
		attempts := 0
		err := Retry(context.Background(), 3, time.Millisecond, func() error {
			attempts++
			return errors.NewTransient(errors.ErrCodeUpstream, "still down")
		})
		if err == nil {
			t.Fatal("expected error")
		}
		if !errors.IsTransient(err) {
			t.Errorf("exhausted retry should surface the last failure, got %v", err)
		}
		if attempts != 3 {
			t.Errorf("attempts = %d, want 3", attempts)
		}
	})

	t.Run("cancelled context aborts backoff", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := Retry(ctx, 3, time.Minute, func() error {
			return errors.NewTransient(errors.ErrCodeUpstream, "transient")
		})
		if err == nil || !stderrors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	})
}
