package lifecycle_test

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/JaimeStill/warden/pkg/lifecycle"
)

func TestNotReadyBeforeStartup(t *testing.T) {
	lc := lifecycle.New()
	if lc.Ready() {
		t.Error("should not be ready before WaitForStartup")
	}
}

func TestReadyAfterStartup(t *testing.T) {
	lc := lifecycle.New()
	if err := lc.WaitForStartup(); err != nil {
		t.Fatalf("WaitForStartup() error: %v", err)
	}

	if !lc.Ready() {
		t.Error("should be ready after WaitForStartup")
	}
}

func TestStartupHooksExecute(t *testing.T) {
	lc := lifecycle.New()

	var count atomic.Int32
	for range 3 {
		lc.OnStartup(func() {
			count.Add(1)
		})
	}

	lc.WaitForStartup()

	if got := count.Load(); got != 3 {
		t.Errorf("startup hooks: got %d, want 3", got)
	}
}

func TestStartupFailureBlocksReadiness(t *testing.T) {
	lc := lifecycle.New()

	lc.OnStartupErr("storage", func() error { return errors.New("bucket unreachable") })
	lc.OnStartupErr("database", func() error { return nil })

	err := lc.WaitForStartup()
	if err == nil {
		t.Fatal("expected startup error, got nil")
	}
	if !strings.Contains(err.Error(), "storage: bucket unreachable") {
		t.Errorf("error = %q, want named failure", err)
	}
	if lc.Ready() {
		t.Error("should not be ready after a failed startup hook")
	}
}

func TestReadinessChecks(t *testing.T) {
	lc := lifecycle.New()

	var healthy atomic.Bool
	lc.AddCheck("detector", lifecycle.ReadinessFunc(healthy.Load))
	lc.WaitForStartup()

	if lc.Ready() {
		t.Error("ready with failing check")
	}
	if got := lc.Checks()["detector"]; got {
		t.Error("Checks()[detector] = true, want false")
	}

	healthy.Store(true)
	if !lc.Ready() {
		t.Error("not ready after check passes")
	}
}

func TestShutdownHooksExecute(t *testing.T) {
	lc := lifecycle.New()

	var cleaned atomic.Bool
	lc.OnShutdown(func() {
		<-lc.Context().Done()
		cleaned.Store(true)
	})

	lc.WaitForStartup()

	if err := lc.Shutdown(5 * time.Second); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}

	if !cleaned.Load() {
		t.Error("shutdown hook did not execute")
	}
}

func TestShutdownTimeout(t *testing.T) {
	lc := lifecycle.New()

	lc.OnShutdown(func() {
		<-lc.Context().Done()
		time.Sleep(500 * time.Millisecond)
	})

	lc.WaitForStartup()

	if err := lc.Shutdown(50 * time.Millisecond); err == nil {
		t.Error("expected timeout error, got nil")
	}
}

func TestParentContextCancelsCoordinator(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	lc := lifecycle.NewWithContext(parent)

	cancel()

	select {
	case <-lc.Context().Done():
	case <-time.After(time.Second):
		t.Fatal("coordinator context not cancelled with parent")
	}
}
