package twitchchat

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"
)

func TestDisconnectOnSignal_RetriesUntilConnectionOpens(t *testing.T) {
	stopped := make(chan struct{})
	runDone := make(chan struct{})

	// Disconnect is a no-op while the dial is in flight; simulate the
	// connection becoming active only on the fourth attempt.
	var calls atomic.Int32
	disconnect := func() error {
		if calls.Add(1) < 4 {
			return twitch.ErrConnectionIsNotOpen
		}
		close(runDone)
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		disconnectOnSignal(context.Background(), stopped, runDone, disconnect)
	}()

	// Stop lands before the connection is open.
	close(stopped)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not retry Disconnect to completion")
	}
	if got := calls.Load(); got != 4 {
		t.Errorf("disconnect calls = %d, want 4", got)
	}
}

func TestDisconnectOnSignal_ExitsWhenRunEndsOnItsOwn(t *testing.T) {
	stopped := make(chan struct{})
	runDone := make(chan struct{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		disconnectOnSignal(context.Background(), stopped, runDone, func() error {
			t.Error("disconnect called without a stop signal")
			return nil
		})
	}()

	// The connect loop fails fast (bad credentials, unreachable host); the
	// watcher must not linger.
	close(runDone)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not exit on runDone")
	}
}

func TestDisconnectOnSignal_StopDuringConnectFailure(t *testing.T) {
	stopped := make(chan struct{})
	runDone := make(chan struct{})
	close(stopped)

	done := make(chan struct{})
	go func() {
		defer close(done)
		disconnectOnSignal(context.Background(), stopped, runDone, func() error {
			return twitch.ErrConnectionIsNotOpen
		})
	}()

	// The connection never opens and the connect loop exits with an error;
	// runDone must break the retry loop.
	time.Sleep(3 * disconnectRetryDelay)
	close(runDone)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("retry loop did not exit on runDone")
	}
}

func TestStop_BeforeRunReturnsCleanly(t *testing.T) {
	c := New(nil, nil, "somechannel")
	c.Stop()
	c.Stop() // idempotent

	select {
	case <-c.stopped:
	default:
		t.Fatal("stopped channel not closed")
	}
}
