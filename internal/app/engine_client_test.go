package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dkeye/VideoRooms/internal/core/coretest"
	"github.com/dkeye/VideoRooms/internal/domain"
	"github.com/sourcegraph/conc"
)

func TestEngineClientConnectsOnce(t *testing.T) {
	d := coretest.NewDialer()
	d.DialDelay = 20 * time.Millisecond
	c := NewEngineClient(d)

	var wg conc.WaitGroup
	for range 10 {
		wg.Go(func() {
			if _, err := c.Connect(context.Background()); err != nil {
				t.Errorf("connect: %v", err)
			}
		})
	}
	wg.Wait()

	if _, err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if d.Dials() != 1 {
		t.Fatalf("dialed %d times, want 1", d.Dials())
	}
}

func TestEngineClientRetriesAfterFailure(t *testing.T) {
	d := coretest.NewDialer()
	d.FailDials.Store(1)
	c := NewEngineClient(d)

	if _, err := c.Connect(context.Background()); !errors.Is(err, domain.ErrEngineUnavailable) {
		t.Fatalf("err = %v, want EngineUnavailable", err)
	}
	engine, err := c.Connect(context.Background())
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if engine != d.Engine {
		t.Fatal("unexpected engine handle")
	}
	if d.Dials() != 2 {
		t.Fatalf("dialed %d times, want 2", d.Dials())
	}
}

func TestEngineClientCanceledCallerDoesNotCancelDial(t *testing.T) {
	d := coretest.NewDialer()
	d.DialDelay = 50 * time.Millisecond
	c := NewEngineClient(d)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	if _, err := c.Connect(ctx); !errors.Is(err, domain.ErrEngineUnavailable) {
		t.Fatalf("err = %v, want EngineUnavailable", err)
	}

	if _, err := c.Connect(context.Background()); err != nil {
		t.Fatalf("second caller: %v", err)
	}
	if d.Dials() != 1 {
		t.Fatalf("dialed %d times, want the first dial to be reused", d.Dials())
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
}
