// Sessionlens - Agent Session Log Analytics
// Copyright 2026 The Sessionlens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sessionlens/sessionlens

package services

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

// mockServer blocks in ListenAndServe until Shutdown is called, like the
// real http.Server.
type mockServer struct {
	serveErr    error
	shutdownErr error

	done     chan struct{}
	shutdown chan struct{}
}

func newMockServer() *mockServer {
	return &mockServer{
		done:     make(chan struct{}),
		shutdown: make(chan struct{}),
	}
}

func (m *mockServer) ListenAndServe() error {
	if m.serveErr != nil {
		return m.serveErr
	}
	<-m.done
	return http.ErrServerClosed
}

func (m *mockServer) Shutdown(ctx context.Context) error {
	close(m.shutdown)
	close(m.done)
	return m.shutdownErr
}

func TestServeShutsDownOnContextCancel(t *testing.T) {
	srv := newMockServer()
	svc := NewHTTPServerService(srv, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx) }()

	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	select {
	case <-srv.shutdown:
	default:
		t.Error("Shutdown was not called")
	}
}

func TestServeReportsListenFailure(t *testing.T) {
	srv := newMockServer()
	srv.serveErr = errors.New("bind: address already in use")
	svc := NewHTTPServerService(srv, time.Second)

	err := svc.Serve(context.Background())
	if err == nil || !errors.Is(err, srv.serveErr) {
		t.Errorf("Serve returned %v, want wrapped listen error", err)
	}
}

func TestServeTreatsServerClosedAsClean(t *testing.T) {
	srv := newMockServer()
	srv.serveErr = http.ErrServerClosed
	svc := NewHTTPServerService(srv, time.Second)

	if err := svc.Serve(context.Background()); err != nil {
		t.Errorf("Serve returned %v, want nil", err)
	}
}

func TestServeReportsShutdownFailure(t *testing.T) {
	srv := newMockServer()
	srv.shutdownErr = errors.New("connections still draining")
	svc := NewHTTPServerService(srv, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := svc.Serve(ctx)
	if err == nil || !errors.Is(err, srv.shutdownErr) {
		t.Errorf("Serve returned %v, want wrapped shutdown error", err)
	}
}

func TestNewHTTPServerServiceDefaultsTimeout(t *testing.T) {
	svc := NewHTTPServerService(newMockServer(), 0)
	if svc.shutdownTimeout != 10*time.Second {
		t.Errorf("shutdownTimeout = %v", svc.shutdownTimeout)
	}
}

func TestHTTPServiceName(t *testing.T) {
	if got := NewHTTPServerService(newMockServer(), time.Second).String(); got != "http-server" {
		t.Errorf("String() = %q", got)
	}
}
