package daemon

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestLoopProcessesBatches(t *testing.T) {
	var mu sync.Mutex
	processed := map[int]int{}
	batches := 0

	ctx, cancel := context.WithCancel(context.Background())
	loop := &Loop{
		Name:     "test",
		Interval: 10 * time.Millisecond,
		Workers:  2,
		Fetch: func(ctx context.Context) ([]int, error) {
			batches++
			if batches > 1 {
				cancel()
				return nil, nil
			}
			return []int{1, 2, 3}, nil
		},
		Process: func(ctx context.Context, id int) error {
			mu.Lock()
			processed[id]++
			mu.Unlock()
			return nil
		},
	}

	err := loop.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	for _, id := range []int{1, 2, 3} {
		if processed[id] != 1 {
			t.Errorf("processed[%d] = %d, want 1", id, processed[id])
		}
	}
}

func TestLoopSurvivesProcessErrorsAndPanics(t *testing.T) {
	var mu sync.Mutex
	var processed []int

	ctx, cancel := context.WithCancel(context.Background())
	loop := &Loop{
		Name:     "test",
		Interval: 10 * time.Millisecond,
		Workers:  1,
		Fetch: func(ctx context.Context) ([]int, error) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
			cancel()
			return []int{1, 2, 3}, nil
		},
		Process: func(ctx context.Context, id int) error {
			mu.Lock()
			processed = append(processed, id)
			mu.Unlock()
			switch id {
			case 1:
				return errors.New("boom")
			case 2:
				panic("worker panic")
			}
			return nil
		},
	}

	_ = loop.Run(ctx)

	if len(processed) != 3 {
		t.Errorf("processed = %v, want all three despite error and panic", processed)
	}
}

func TestLoopBeforeBatch(t *testing.T) {
	refreshes := 0
	batches := 0

	ctx, cancel := context.WithCancel(context.Background())
	loop := &Loop{
		Name:     "test",
		Interval: 10 * time.Millisecond,
		Workers:  1,
		Fetch: func(ctx context.Context) ([]int, error) {
			batches++
			switch batches {
			case 1:
				return nil, nil // idle poll: BeforeBatch must not run
			case 2:
				return []int{1}, nil
			default:
				cancel()
				return nil, nil
			}
		},
		BeforeBatch: func(ctx context.Context) error {
			refreshes++
			return nil
		},
		Process: func(ctx context.Context, id int) error { return nil },
	}

	_ = loop.Run(ctx)

	if refreshes != 1 {
		t.Errorf("BeforeBatch runs = %d, want 1", refreshes)
	}
}

func TestLoopBeforeBatchFailureSkipsBatch(t *testing.T) {
	processed := 0
	batches := 0

	ctx, cancel := context.WithCancel(context.Background())
	loop := &Loop{
		Name:     "test",
		Interval: 10 * time.Millisecond,
		Workers:  1,
		Fetch: func(ctx context.Context) ([]int, error) {
			batches++
			if batches > 1 {
				cancel()
				return nil, nil
			}
			return []int{1}, nil
		},
		BeforeBatch: func(ctx context.Context) error {
			return errors.New("taxonomy unavailable")
		},
		Process: func(ctx context.Context, id int) error {
			processed++
			return nil
		},
	}

	_ = loop.Run(ctx)

	if processed != 0 {
		t.Errorf("processed = %d, want 0 when batch setup fails", processed)
	}
}

func TestLoopFinishesInFlightWorkOnCancel(t *testing.T) {
	var procErr error

	ctx, cancel := context.WithCancel(context.Background())
	loop := &Loop{
		Name:     "test",
		Interval: 10 * time.Millisecond,
		Workers:  1,
		Fetch: func(ctx context.Context) ([]int, error) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
			return []int{1}, nil
		},
		Process: func(ctx context.Context, id int) error {
			cancel()
			procErr = ctx.Err()
			return nil
		},
	}

	_ = loop.Run(ctx)

	if procErr != nil {
		t.Errorf("in-flight document saw context error %v, want nil", procErr)
	}
}

func TestLoopStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	loop := &Loop{
		Name:     "test",
		Interval: time.Hour,
		Fetch: func(ctx context.Context) ([]int, error) {
			t.Error("Fetch ran with cancelled context")
			return nil, nil
		},
		Process: func(ctx context.Context, id int) error { return nil },
	}

	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run() did not stop on cancelled context")
	}
}
