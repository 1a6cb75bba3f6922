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

func newTestManager() (*RoomManager, *coretest.Dialer) {
	d := coretest.NewDialer()
	return NewRoomManager(NewEngineClient(d), nil), d
}

func TestConcurrentAcquireSharesOnePipeline(t *testing.T) {
	m, d := newTestManager()
	d.Engine.PipelineDelay = 30 * time.Millisecond

	const joins = 10
	rooms := make([]*Room, joins)
	var wg conc.WaitGroup
	for i := range joins {
		wg.Go(func() {
			r, err := m.Acquire(context.Background(), "r1")
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			rooms[i] = r
		})
	}
	wg.Wait()

	if n := len(d.Engine.Pipelines()); n != 1 {
		t.Fatalf("created %d pipelines, want 1", n)
	}
	for _, r := range rooms {
		if r != rooms[0] {
			t.Fatal("concurrent joins got different rooms")
		}
	}

	for _, r := range rooms {
		m.Release(r)
	}
	if _, ok := m.Get("r1"); ok {
		t.Fatal("empty room should be torn down once every hold is released")
	}
	if !d.Engine.Pipelines()[0].Released() {
		t.Fatal("pipeline should be released with the room")
	}
}

func TestRoomRecreatedAfterTeardown(t *testing.T) {
	m, d := newTestManager()
	ctx := context.Background()

	first, err := m.Acquire(ctx, "r1")
	if err != nil {
		t.Fatal(err)
	}
	m.Release(first)

	second, err := m.Acquire(ctx, "r1")
	if err != nil {
		t.Fatal(err)
	}
	defer m.Release(second)

	if first == second || first.Pipeline().ID() == second.Pipeline().ID() {
		t.Fatal("join after teardown should build a fresh pipeline")
	}
	pipes := d.Engine.Pipelines()
	if len(pipes) != 2 || !pipes[0].Released() || pipes[1].Released() {
		t.Fatalf("unexpected pipeline states")
	}
}

func TestAcquireEngineFailureRegistersNothing(t *testing.T) {
	tests := []struct {
		name   string
		inject func(d *coretest.Dialer)
	}{
		{"dial", func(d *coretest.Dialer) { d.FailDials.Store(1) }},
		{"pipeline", func(d *coretest.Dialer) { d.Engine.FailPipelines.Store(1) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, d := newTestManager()
			tt.inject(d)

			_, err := m.Acquire(context.Background(), "r1")
			if !errors.Is(err, domain.ErrEngineUnavailable) {
				t.Fatalf("err = %v, want EngineUnavailable", err)
			}
			if len(m.List()) != 0 {
				t.Fatal("failed creation must not register a room")
			}

			r, err := m.Acquire(context.Background(), "r1")
			if err != nil {
				t.Fatalf("retry: %v", err)
			}
			m.Release(r)
		})
	}
}

func TestParticipantsKeepRoomOpen(t *testing.T) {
	m, d := newTestManager()
	r, err := m.Acquire(context.Background(), "r1")
	if err != nil {
		t.Fatal(err)
	}
	p, _ := newTestParticipant(t, r.Pipeline(), "alice")
	r.Add(p)
	m.Release(r)

	if _, ok := m.Get("r1"); !ok {
		t.Fatal("room with a participant must stay")
	}
	if got := m.List(); len(got) != 1 || got[0].Name != "r1" || got[0].Participants != 1 {
		t.Fatalf("List = %+v", got)
	}

	r.Remove(p.ID())
	if !m.Evict(r) {
		t.Fatal("empty unheld room should be evicted")
	}
	if m.Evict(r) {
		t.Fatal("room is torn down only once")
	}
	if !d.Engine.Pipelines()[0].Released() {
		t.Fatal("pipeline should be released")
	}
}

func TestHeldRoomSurvivesEvict(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()
	a, _ := m.Acquire(ctx, "r1")
	b, _ := m.Acquire(ctx, "r1")

	m.Release(a)
	if _, ok := m.Get("r1"); !ok {
		t.Fatal("room still held by a join in progress")
	}
	m.Release(b)
	if _, ok := m.Get("r1"); ok {
		t.Fatal("room should be gone after the last hold")
	}
}

func TestRetiredRoomRefusesJoinsAndTearsDownOnRelease(t *testing.T) {
	m, d := newTestManager()
	ctx := context.Background()
	r, err := m.Acquire(ctx, "r1")
	if err != nil {
		t.Fatal(err)
	}

	retired, left, ok := m.Retire("r1")
	if !ok || retired != r || len(left) != 0 {
		t.Fatalf("Retire = %v, %v, %v", retired, left, ok)
	}
	if _, ok := m.Get("r1"); ok {
		t.Fatal("retired room must be unlisted")
	}
	p, _ := newTestParticipant(t, r.Pipeline(), "alice")
	if _, ok := r.Add(p); ok {
		t.Fatal("retired room must refuse new participants")
	}
	if d.Engine.Pipelines()[0].Released() {
		t.Fatal("pipeline is held until Release")
	}

	m.Release(r)
	if !d.Engine.Pipelines()[0].Released() {
		t.Fatal("pipeline should be released with the last hold")
	}
	if _, _, ok := m.Retire("r1"); ok {
		t.Fatal("nothing left to retire")
	}

	fresh, err := m.Acquire(ctx, "r1")
	if err != nil || fresh == r {
		t.Fatalf("Acquire after retire = %v, %v", fresh, err)
	}
	m.Release(fresh)
}

func TestShutdownReleasesEverything(t *testing.T) {
	m, d := newTestManager()
	ctx := context.Background()
	for _, name := range []domain.RoomName{"a", "b"} {
		r, err := m.Acquire(ctx, name)
		if err != nil {
			t.Fatal(err)
		}
		p, _ := newTestParticipant(t, r.Pipeline(), string(name)+"-user")
		r.Add(p)
		m.Release(r)
	}

	m.Shutdown()
	if len(m.List()) != 0 {
		t.Fatal("Shutdown should forget every room")
	}
	for _, p := range d.Engine.Pipelines() {
		if !p.Released() {
			t.Fatalf("pipeline %s not released", p.ID())
		}
	}
}
