package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestServer() *http.Server {
	return &http.Server{Addr: "127.0.0.1:0", Handler: http.NewServeMux(), ReadHeaderTimeout: time.Second}
}

func TestServe_CleanupWaitsForBackground(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var (
		stopped        atomic.Bool
		sawStopped     atomic.Bool
		cleanupCalls   atomic.Int32
		beforeShutdown atomic.Bool
		started        = make(chan struct{})
	)
	info := AppInfo{
		ServiceName: "test",
		Background: []func(ctx context.Context) error{
			func(ctx context.Context) error {
				close(started)
				<-ctx.Done()
				// 模拟一次收尾中的清理，期间仍在使用客户端
				time.Sleep(50 * time.Millisecond)
				stopped.Store(true)
				return nil
			},
		},
		Cleanup: []func(ctx context.Context){
			func(context.Context) {
				sawStopped.Store(stopped.Load())
				cleanupCalls.Add(1)
			},
		},
	}

	done := make(chan error, 1)
	go func() { done <- serve(ctx, newTestServer(), info, func() { beforeShutdown.Store(true) }) }()

	<-started
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancel")
	}

	if cleanupCalls.Load() != 1 {
		t.Errorf("cleanup ran %d times, want 1", cleanupCalls.Load())
	}
	if !sawStopped.Load() {
		t.Error("cleanup ran before the background task returned")
	}
	if !beforeShutdown.Load() {
		t.Error("beforeShutdown hook was not called")
	}
}

func TestServe_BackgroundErrorStopsEverything(t *testing.T) {
	boom := errors.New("boom")

	var (
		mu    sync.Mutex
		order []string
	)
	record := func(s string) {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, s)
	}
	info := AppInfo{
		ServiceName: "test",
		Background: []func(ctx context.Context) error{
			func(context.Context) error { return boom },
			func(ctx context.Context) error {
				<-ctx.Done()
				record("worker stopped")
				return nil
			},
		},
		Cleanup: []func(ctx context.Context){
			func(context.Context) { record("cleanup") },
		},
	}

	err := serve(context.Background(), newTestServer(), info, nil)
	if !errors.Is(err, boom) {
		t.Fatalf("serve error = %v, want %v", err, boom)
	}
	if len(order) != 2 || order[0] != "worker stopped" || order[1] != "cleanup" {
		t.Errorf("unexpected shutdown order %v", order)
	}
}
