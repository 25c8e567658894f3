// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fetch

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/crosswin/xwin/internal/xwinerr"
	"github.com/crosswin/xwin/lib/clock"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(new(discardWriter), &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestFetchSucceedsFirstTry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c, err := New(Config{Clock: clock.Fake(time.Now()), Logger: discardLogger()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	data, err := c.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(data) != `{"ok":true}` {
		t.Errorf("body = %q", data)
	}
}

func TestFetchRetriesOn503ThenSucceeds(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	fc := clock.Fake(time.Now())
	c, err := New(Config{Clock: fc, Logger: discardLogger()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	done := make(chan struct{})
	var data []byte
	var fetchErr error
	go func() {
		data, fetchErr = c.Fetch(context.Background(), srv.URL)
		close(done)
	}()

	fc.WaitForTimers(1)
	fc.Advance(1 * time.Second)
	fc.WaitForTimers(1)
	fc.Advance(2 * time.Second)

	<-done
	if fetchErr != nil {
		t.Fatalf("Fetch: %v", fetchErr)
	}
	if string(data) != "ok" {
		t.Errorf("body = %q, want ok", data)
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestFetchDoesNotRetryOn404(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c, err := New(Config{Clock: clock.Fake(time.Now()), Logger: discardLogger()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = c.Fetch(context.Background(), srv.URL)
	if !xwinerr.Is(err, xwinerr.KindNetwork) {
		t.Errorf("expected KindNetwork, got %v", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Errorf("attempts = %d, want 1 (no retry on permanent error)", got)
	}
}

func TestFetchExhaustsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	fc := clock.Fake(time.Now())
	c, err := New(Config{Clock: fc, Logger: discardLogger()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := c.Fetch(context.Background(), srv.URL)
		done <- err
	}()

	fc.WaitForTimers(1)
	fc.Advance(1 * time.Second)
	fc.WaitForTimers(1)
	fc.Advance(2 * time.Second)

	err = <-done
	if !xwinerr.Is(err, xwinerr.KindNetwork) {
		t.Errorf("expected KindNetwork after exhausting retries, got %v", err)
	}
}

func TestOpenStreamsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("streamed content"))
	}))
	defer srv.Close()

	c, err := New(Config{Clock: clock.Fake(time.Now()), Logger: discardLogger()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	body, _, err := c.Open(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer body.Close()

	buf := make([]byte, 64)
	n, _ := body.Read(buf)
	if string(buf[:n]) != "streamed content" {
		t.Errorf("read %q, want streamed content", buf[:n])
	}
}
