package async

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGo_RunsTask(t *testing.T) {
	done := make(chan struct{})
	Go(context.Background(), nil, "ping", func(context.Context) error {
		close(done)
		return nil
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task never ran")
	}
}

func TestGo_RecoversPanic(t *testing.T) {
	ran := make(chan struct{})
	Go(context.Background(), nil, "bomb", func(context.Context) error {
		defer close(ran)
		panic("task bug")
	})

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("task never ran")
	}
	// The panic was recovered on the task goroutine; reaching here means the
	// test process survived it.
}

func TestGo_PassesContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got := make(chan error, 1)
	Go(ctx, nil, "watcher", func(ctx context.Context) error {
		<-ctx.Done()
		got <- ctx.Err()
		return ctx.Err()
	})

	select {
	case err := <-got:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("task never observed cancellation")
	}
}

func TestGo_LogsError(t *testing.T) {
	done := make(chan struct{})
	Go(context.Background(), nil, "flaky", func(context.Context) error {
		defer close(done)
		return errors.New("transient")
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task never ran")
	}
}
