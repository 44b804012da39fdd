package exchange

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"
)

func testDispatcher(t *testing.T) (*Dispatcher, context.Context) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	d := NewDispatcher(2, logger)
	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)
	t.Cleanup(func() {
		cancel()
		d.Stop()
	})
	return d, ctx
}

func TestDispatcherRunsTaskAndReportsResult(t *testing.T) {
	t.Parallel()
	d, ctx := testDispatcher(t)

	id := d.Submit(ctx, "place", func(ctx context.Context) ([]int64, []int64, error) {
		return []int64{1, 2}, nil, nil
	})

	select {
	case res := <-d.Results():
		if res.ID != id {
			t.Errorf("result id = %v, want %v", res.ID, id)
		}
		if res.Err != nil {
			t.Errorf("unexpected error: %v", res.Err)
		}
		if len(res.ClientOrderIDs) != 2 {
			t.Errorf("client order ids = %v, want 2 entries", res.ClientOrderIDs)
		}
		if len(res.Rejected) != 0 {
			t.Errorf("rejected = %v, want none", res.Rejected)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for result")
	}
}

func TestDispatcherReportsRejectedIDs(t *testing.T) {
	t.Parallel()
	d, ctx := testDispatcher(t)

	d.Submit(ctx, "place", func(ctx context.Context) ([]int64, []int64, error) {
		return []int64{1}, []int64{2}, nil
	})

	select {
	case res := <-d.Results():
		if len(res.Rejected) != 1 || res.Rejected[0] != 2 {
			t.Errorf("rejected = %v, want [2]", res.Rejected)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for result")
	}
}

func TestDispatcherPropagatesTaskError(t *testing.T) {
	t.Parallel()
	d, ctx := testDispatcher(t)

	wantErr := errors.New("venue unreachable")
	d.Submit(ctx, "cancel", func(ctx context.Context) ([]int64, []int64, error) {
		return nil, nil, wantErr
	})

	select {
	case res := <-d.Results():
		if res.Err == nil {
			t.Fatal("expected error")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for result")
	}
}
