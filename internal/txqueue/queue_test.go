package txqueue

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func testLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func TestDoRunsJobsInOrder(t *testing.T) {
	q := New(testLog(), 8)
	q.Start()
	defer q.Stop()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup

	for i := 0; i < 5; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Do(context.Background(), func(context.Context) error {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			})
		}()
		// Stagger submissions so queue order is deterministic.
		time.Sleep(10 * time.Millisecond)
	}
	wg.Wait()

	for i, got := range order {
		if got != i {
			t.Fatalf("order %v", order)
		}
	}
}

func TestDoNeverOverlaps(t *testing.T) {
	q := New(testLog(), 8)
	q.Start()
	defer q.Stop()

	var running, maxRunning int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Do(context.Background(), func(context.Context) error {
				mu.Lock()
				running++
				if running > maxRunning {
					maxRunning = running
				}
				mu.Unlock()

				time.Sleep(5 * time.Millisecond)

				mu.Lock()
				running--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	if maxRunning != 1 {
		t.Fatalf("observed %d concurrent jobs", maxRunning)
	}
}

func TestDoPropagatesError(t *testing.T) {
	q := New(testLog(), 4)
	q.Start()
	defer q.Stop()

	want := errors.New("boom")
	if err := q.Do(context.Background(), func(context.Context) error { return want }); !errors.Is(err, want) {
		t.Fatalf("got %v", err)
	}
}

func TestDoAfterStop(t *testing.T) {
	q := New(testLog(), 4)
	q.Start()
	q.Stop()

	err := q.Do(context.Background(), func(context.Context) error { return nil })
	if !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("got %v, want ErrQueueClosed", err)
	}
}

func TestDoHonorsCallerContext(t *testing.T) {
	q := New(testLog(), 4)
	q.Start()
	defer q.Stop()

	release := make(chan struct{})
	go q.Do(context.Background(), func(context.Context) error {
		<-release
		return nil
	})
	time.Sleep(10 * time.Millisecond) // let the blocker occupy the worker

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := q.Do(ctx, func(context.Context) error { return nil })
	close(release)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v, want deadline exceeded", err)
	}
}

func TestRecoversFromPanic(t *testing.T) {
	q := New(testLog(), 4)
	q.Start()
	defer q.Stop()

	if err := q.Do(context.Background(), func(context.Context) error { panic("kaboom") }); err == nil {
		t.Fatal("expected error from panicking job")
	}
	// Worker must still be alive.
	if err := q.Do(context.Background(), func(context.Context) error { return nil }); err != nil {
		t.Fatalf("queue dead after panic: %v", err)
	}
}
