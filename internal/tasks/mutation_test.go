package tasks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestMutation(t *testing.T) {
	ctx := context.Background()
	errPersist := errors.New("persist failed")

	t.Run("Commit On Success", func(t *testing.T) {
		state := "old"
		got, err := mutation[string]{
			apply:   func() func() { state = "optimistic"; return func() { state = "old" } },
			persist: func(context.Context) (string, error) { return "server", nil },
			commit:  func(v string) { state = v },
		}.run(ctx)

		if err != nil || got != "server" || state != "server" {
			t.Errorf("expected committed server value, got %q, %q, %v", got, state, err)
		}
	})

	t.Run("Rollback On Failure", func(t *testing.T) {
		state := "old"
		_, err := mutation[string]{
			apply:    func() func() { state = "optimistic"; return func() { state = "old" } },
			persist:  func(context.Context) (string, error) { return "", errPersist },
			rollback: func(error) bool { return true },
		}.run(ctx)

		if !errors.Is(err, errPersist) {
			t.Fatalf("expected persist error, got %v", err)
		}
		if state != "old" {
			t.Errorf("expected rollback, got %q", state)
		}
	})

	t.Run("Keeps Optimistic Value Without Rollback", func(t *testing.T) {
		state := "old"
		mutation[string]{
			apply:   func() func() { state = "optimistic"; return func() { state = "old" } },
			persist: func(context.Context) (string, error) { return "", errPersist },
		}.run(ctx)

		if state != "optimistic" {
			t.Errorf("expected optimistic value kept, got %q", state)
		}
	})

	t.Run("Rollback Declined", func(t *testing.T) {
		state := "old"
		mutation[string]{
			apply:    func() func() { state = "optimistic"; return func() { state = "old" } },
			persist:  func(context.Context) (string, error) { return "", errPersist },
			rollback: func(error) bool { return false },
		}.run(ctx)

		if state != "optimistic" {
			t.Errorf("expected optimistic value kept, got %q", state)
		}
	})

	t.Run("Confirm First", func(t *testing.T) {
		var committed bool
		mutation[int]{
			persist: func(context.Context) (int, error) { return 0, errPersist },
			commit:  func(int) { committed = true },
		}.run(ctx)

		if committed {
			t.Error("commit must not run after a failed persist")
		}
	})
}

func TestKeyedMutex(t *testing.T) {
	t.Run("Serializes Same Key", func(t *testing.T) {
		var k keyedMutex
		var mu sync.Mutex
		active, maxActive := 0, 0

		var wg sync.WaitGroup
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				unlock := k.Lock(7)
				defer unlock()

				mu.Lock()
				active++
				maxActive = max(maxActive, active)
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				active--
				mu.Unlock()
			}()
		}
		wg.Wait()

		if maxActive != 1 {
			t.Errorf("expected one holder at a time, saw %d", maxActive)
		}
		if len(k.locks) != 0 {
			t.Errorf("expected idle locks to be released, %d remain", len(k.locks))
		}
	})

	t.Run("Different Keys Do Not Block", func(t *testing.T) {
		var k keyedMutex
		unlock := k.Lock(1)
		defer unlock()

		done := make(chan struct{})
		go func() {
			k.Lock(2)()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("lock on another key blocked")
		}
	})
}
