package coalesce

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// waitForWaiters polls until n callers have joined the in-flight call for key.
func waitForWaiters[T any](t *testing.T, g *Gate[T], key string, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for g.Waiters(key) < n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d waiters on %s, got %d", n, key, g.Waiters(key))
		}
		time.Sleep(time.Millisecond)
	}
}

func TestDoRunsWorkOnceForConcurrentCallers(t *testing.T) {
	g := New[string](0)
	release := make(chan struct{})
	var invocations atomic.Int32

	work := func(ctx context.Context) (string, error) {
		invocations.Add(1)
		<-release
		return "edition", nil
	}

	const callers = 10
	var wg sync.WaitGroup
	results := make([]string, callers)
	shared := make([]bool, callers)
	errs := make([]error, callers)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], shared[0], errs[0] = g.Do(context.Background(), "k", work)
	}()
	// Ensure the first caller owns the call before the rest arrive.
	for g.InFlight() == 0 {
		time.Sleep(time.Millisecond)
	}
	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], shared[i], errs[i] = g.Do(context.Background(), "k", work)
		}(i)
	}

	waitForWaiters(t, g, "k", callers-1)
	close(release)
	wg.Wait()

	if got := invocations.Load(); got != 1 {
		t.Fatalf("expected work to run once, ran %d times", got)
	}
	owners := 0
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Errorf("caller %d: unexpected error %v", i, errs[i])
		}
		if results[i] != "edition" {
			t.Errorf("caller %d: expected shared result, got %q", i, results[i])
		}
		if !shared[i] {
			owners++
		}
	}
	if owners != 1 {
		t.Errorf("expected exactly one owner, got %d", owners)
	}
	if g.InFlight() != 0 {
		t.Errorf("expected in-flight map to be empty after settle, got %d", g.InFlight())
	}
}

func TestDoBroadcastsFailureAndClearsEntry(t *testing.T) {
	g := New[int](0)
	boom := errors.New("provider unavailable")
	release := make(chan struct{})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _, errs[0] = g.Do(context.Background(), "k", func(ctx context.Context) (int, error) {
			<-release
			return 0, boom
		})
	}()
	for g.InFlight() == 0 {
		time.Sleep(time.Millisecond)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _, errs[1] = g.Do(context.Background(), "k", func(ctx context.Context) (int, error) {
			t.Error("waiter work must not run")
			return 0, nil
		})
	}()
	waitForWaiters(t, g, "k", 1)
	close(release)
	wg.Wait()

	for i, err := range errs {
		if !errors.Is(err, boom) {
			t.Errorf("caller %d: expected broadcast failure, got %v", i, err)
		}
	}

	// A fresh top-level call after failure owns new work.
	v, shared, err := g.Do(context.Background(), "k", func(ctx context.Context) (int, error) {
		return 7, nil
	})
	if err != nil || shared || v != 7 {
		t.Fatalf("expected fresh call to succeed unshared, got v=%d shared=%v err=%v", v, shared, err)
	}
}

func TestDoTimeoutReleasesWaiters(t *testing.T) {
	g := New[int](20 * time.Millisecond)
	hang := make(chan struct{})
	defer close(hang)

	_, _, err := g.Do(context.Background(), "k", func(ctx context.Context) (int, error) {
		<-hang
		return 1, nil
	})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if g.InFlight() != 0 {
		t.Fatalf("expected entry removed after timeout")
	}
}

func TestDoCallerCanStopWaiting(t *testing.T) {
	g := New[int](0)
	release := make(chan struct{})
	finished := make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := g.Do(ctx, "k", func(workCtx context.Context) (int, error) {
		<-release
		if workCtx.Err() != nil {
			t.Error("work context must not inherit caller cancellation")
		}
		close(finished)
		return 1, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	close(release)
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("work did not continue after caller left")
	}
}

func TestDoRecoversPanics(t *testing.T) {
	g := New[int](0)
	_, _, err := g.Do(context.Background(), "k", func(ctx context.Context) (int, error) {
		panic("tts exploded")
	})
	if err == nil {
		t.Fatal("expected error from panicking work")
	}
}

func TestWaitersExcludesCallersThatLeft(t *testing.T) {
	g := New[int](0)
	release := make(chan struct{})
	work := func(ctx context.Context) (int, error) {
		<-release
		return 1, nil
	}

	ownerDone := make(chan struct{})
	go func() {
		defer close(ownerDone)
		g.Do(context.Background(), "k", work)
	}()
	for g.InFlight() == 0 {
		time.Sleep(time.Millisecond)
	}

	ctx, cancel := context.WithCancel(context.Background())
	left := make(chan error, 1)
	go func() {
		_, _, err := g.Do(ctx, "k", work)
		left <- err
	}()
	stay := make(chan error, 1)
	go func() {
		_, _, err := g.Do(context.Background(), "k", work)
		stay <- err
	}()
	waitForWaiters(t, g, "k", 2)

	cancel()
	if err := <-left; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if n := g.Waiters("k"); n != 1 {
		t.Errorf("expected 1 remaining waiter, got %d", n)
	}

	close(release)
	if err := <-stay; err != nil {
		t.Errorf("remaining waiter error = %v", err)
	}
	<-ownerDone
	if n := g.Waiters("k"); n != -1 {
		t.Errorf("expected no call in flight, got %d", n)
	}
}
