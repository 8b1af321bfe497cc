package offline

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestSetOfflineWaitRunsInline(t *testing.T) {
	var fsyncs atomic.Int32
	var committed atomic.Bool
	var committedArchived atomic.Bool

	m := New(
		func() error { fsyncs.Add(1); return nil },
		func(archived bool) error { committed.Store(true); committedArchived.Store(archived); return nil },
		nil,
	)

	if err := m.SetOffline(true, false); err != nil {
		t.Fatalf("SetOffline: %v", err)
	}
	if fsyncs.Load() != 2 {
		t.Fatalf("fsync called %d times, want 2 (pre-commit and post-commit)", fsyncs.Load())
	}
	if !committed.Load() || committedArchived.Load() {
		t.Fatalf("expected commit(false) to have run")
	}
	if m.State() != "idle" {
		t.Fatalf("state = %s, want idle after an inline SetOffline+join", m.State())
	}
}

func TestSetOfflineArchived(t *testing.T) {
	var gotArchived atomic.Bool
	m := New(
		func() error { return nil },
		func(archived bool) error { gotArchived.Store(archived); return nil },
		nil,
	)

	if err := m.SetOffline(true, true); err != nil {
		t.Fatalf("SetOffline: %v", err)
	}
	if !gotArchived.Load() {
		t.Fatal("expected commit to be called with archived=true")
	}
}

func TestSetOfflineAsyncThenSetOnlineCancels(t *testing.T) {
	release := make(chan struct{})
	var committed atomic.Bool

	m := New(
		func() error { <-release; return nil },
		func(archived bool) error { committed.Store(true); return nil },
		nil,
	)

	if err := m.SetOffline(false, false); err != nil {
		t.Fatalf("SetOffline: %v", err)
	}

	// Give the worker a moment to reach the blocking fsync inside "syncing".
	time.Sleep(10 * time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- m.SetOnline() }()

	close(release)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("SetOnline: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("SetOnline did not return after worker unblocked")
	}

	if m.State() != "idle" {
		t.Fatalf("state = %s, want idle after SetOnline joins the worker", m.State())
	}
}
