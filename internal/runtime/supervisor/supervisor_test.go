package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestGoPanicIsContained(t *testing.T) {
	t.Parallel()
	sup := New(context.Background(), WithCancelOnError(false))
	sup.Go("panics", func(context.Context) error {
		panic("boom")
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sup.Wait(ctx); err == nil {
		t.Fatal("panic not surfaced as supervisor error")
	}

	snap := sup.Snapshot()
	if snap.FirstError == "" {
		t.Fatal("panic not recorded in snapshot")
	}
	if len(snap.LastErrors) == 0 || snap.LastErrors[0].Name != "panics" {
		t.Fatalf("task error not recorded: %+v", snap.LastErrors)
	}
}

func TestCancelOnError(t *testing.T) {
	t.Parallel()
	sup := New(context.Background(), WithCancelOnError(true))
	want := errors.New("fatal")
	sup.Go("fails", func(context.Context) error { return want })

	select {
	case <-sup.Context().Done():
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor context not cancelled after task error")
	}
	if !errors.Is(sup.Err(), want) {
		t.Fatalf("Err = %v, want %v", sup.Err(), want)
	}
}

func TestGoRestartStopsOnCleanExit(t *testing.T) {
	t.Parallel()
	sup := New(context.Background(), WithCancelOnError(false))
	var runs atomic.Int32
	sup.GoRestart("oneshot", func(context.Context) error {
		runs.Add(1)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sup.Wait(ctx); err != nil {
		t.Fatalf("Wait error: %v", err)
	}
	if got := runs.Load(); got != 1 {
		t.Fatalf("runs = %d, want 1", got)
	}
}

func TestGoRestartRetriesUntilCancel(t *testing.T) {
	t.Parallel()
	sup := New(context.Background(), WithCancelOnError(false))
	var runs atomic.Int32
	sup.GoRestart("flaky", func(context.Context) error {
		runs.Add(1)
		return errors.New("transient")
	}, WithRestartBackoff(time.Millisecond, 5*time.Millisecond))

	deadline := time.After(2 * time.Second)
	for runs.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("only %d runs before deadline", runs.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
	sup.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sup.Wait(ctx); err != nil {
		t.Fatalf("Wait error: %v", err)
	}
}

func TestGoRestartMaxRestarts(t *testing.T) {
	t.Parallel()
	sup := New(context.Background(), WithCancelOnError(false))
	var runs atomic.Int32
	sup.GoRestart("bounded", func(context.Context) error {
		runs.Add(1)
		return errors.New("always")
	}, WithRestartBackoff(time.Millisecond, 2*time.Millisecond), WithMaxRestarts(2))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sup.Wait(ctx); err != nil {
		t.Fatalf("Wait error: %v", err)
	}
	// Initial run plus two restarts.
	if got := runs.Load(); got != 3 {
		t.Fatalf("runs = %d, want 3", got)
	}
}
