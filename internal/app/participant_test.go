package app

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dkeye/VideoRooms/internal/core"
	"github.com/dkeye/VideoRooms/internal/core/coretest"
	"github.com/dkeye/VideoRooms/internal/domain"
	"github.com/sourcegraph/conc"
)

func coreID(s string) core.SessionID { return core.SessionID(s) }

func newTestPipeline(t *testing.T, e *coretest.Engine) core.Pipeline {
	t.Helper()
	p, err := e.CreatePipeline(context.Background())
	if err != nil {
		t.Fatalf("create pipeline: %v", err)
	}
	return p
}

func newTestStream(t *testing.T, p core.Pipeline) *coretest.Stream {
	t.Helper()
	s, err := p.CreateStream(context.Background())
	if err != nil {
		t.Fatalf("create stream: %v", err)
	}
	return s.(*coretest.Stream)
}

func newTestParticipant(t *testing.T, p core.Pipeline, id string) (*Participant, *coretest.Stream) {
	t.Helper()
	out := newTestStream(t, p)
	return NewParticipant(domain.User{ID: domain.UserID(id), Username: id}, nil, out), out
}

func bodies(cs []domain.Candidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Candidate
	}
	return out
}

func TestApplyOrQueueOwnAppliesImmediately(t *testing.T) {
	p, out := newTestParticipant(t, newTestPipeline(t, coretest.NewEngine()), "alice")

	queued, err := p.ApplyOrQueue(Own(), coretest.Candidate("c1"))
	if err != nil || queued {
		t.Fatalf("ApplyOrQueue = %v, %v", queued, err)
	}
	if got := bodies(out.Candidates()); len(got) != 1 || got[0] != "c1" {
		t.Fatalf("outbound candidates = %v", got)
	}
}

func TestAttachInboundDrainsQueueInOrder(t *testing.T) {
	pipe := newTestPipeline(t, coretest.NewEngine())
	p, _ := newTestParticipant(t, pipe, "bob")
	alice := Peer("alice")

	for _, c := range []string{"c1", "c2", "c3"} {
		queued, err := p.ApplyOrQueue(alice, coretest.Candidate(c))
		if err != nil || !queued {
			t.Fatalf("candidate %s: queued=%v err=%v", c, queued, err)
		}
	}
	if p.Queued(alice) != 3 {
		t.Fatalf("queued = %d", p.Queued(alice))
	}

	in := newTestStream(t, pipe)
	n, err := p.AttachInbound("alice", in)
	if err != nil || n != 3 {
		t.Fatalf("AttachInbound = %d, %v", n, err)
	}
	queued, err := p.ApplyOrQueue(alice, coretest.Candidate("c4"))
	if err != nil || queued {
		t.Fatalf("post-attach candidate: queued=%v err=%v", queued, err)
	}

	got := bodies(in.Candidates())
	want := []string{"c1", "c2", "c3", "c4"}
	if len(got) != len(want) {
		t.Fatalf("inbound candidates = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("inbound candidates = %v, want %v", got, want)
		}
	}
	if p.Queued(alice) != 0 {
		t.Fatal("queue should be empty after attach")
	}
}

func TestConcurrentApplyAndAttachKeepsOrder(t *testing.T) {
	pipe := newTestPipeline(t, coretest.NewEngine())
	p, _ := newTestParticipant(t, pipe, "bob")
	in := newTestStream(t, pipe)

	const n = 200
	var wg conc.WaitGroup
	wg.Go(func() {
		for i := range n {
			if _, err := p.ApplyOrQueue(Peer("alice"), coretest.Candidate(fmt.Sprintf("c%d", i))); err != nil {
				t.Errorf("apply %d: %v", i, err)
			}
		}
	})
	wg.Go(func() {
		if _, err := p.AttachInbound("alice", in); err != nil {
			t.Errorf("attach: %v", err)
		}
	})
	wg.Wait()

	got := in.Candidates()
	if len(got) != n {
		t.Fatalf("applied %d candidates, want %d", len(got), n)
	}
	for i, c := range got {
		want := fmt.Sprintf("c%d", i)
		if c.Candidate != want {
			t.Fatalf("candidate %d = %q, want %q", i, c.Candidate, want)
		}
	}
}

func TestDetachInboundOnlyRemovesExpectedStream(t *testing.T) {
	pipe := newTestPipeline(t, coretest.NewEngine())
	p, _ := newTestParticipant(t, pipe, "bob")
	first := newTestStream(t, pipe)
	other := newTestStream(t, pipe)
	if _, err := p.AttachInbound("alice", first); err != nil {
		t.Fatal(err)
	}

	if _, ok := p.DetachInbound("alice", other); ok {
		t.Fatal("detach with a different stream should fail")
	}
	s, ok := p.DetachInbound("alice", first)
	if !ok || s != first {
		t.Fatalf("DetachInbound = %v, %v", s, ok)
	}
	if _, ok := p.Inbound("alice"); ok {
		t.Fatal("inbound entry should be gone")
	}
}

func TestDetachInboundDropsQueueWithoutStream(t *testing.T) {
	p, _ := newTestParticipant(t, newTestPipeline(t, coretest.NewEngine()), "bob")
	if _, err := p.ApplyOrQueue(Peer("alice"), coretest.Candidate("c1")); err != nil {
		t.Fatal(err)
	}
	if _, err := p.ApplyOrQueue(Own(), coretest.Candidate("own")); err != nil {
		t.Fatal(err)
	}

	if _, ok := p.DetachInbound("alice", nil); ok {
		t.Fatal("nothing was attached for alice")
	}
	if n := p.Queued(Peer("alice")); n != 0 {
		t.Fatalf("%d candidates still queued for alice", n)
	}
}

func TestEndOfferKeepsSharedStream(t *testing.T) {
	tests := []struct {
		name     string
		run      func(p *Participant, s core.MediaStream) bool
		detached bool
	}{
		{"lone failure", func(p *Participant, s core.MediaStream) bool {
			p.BeginOffer("alice")
			return p.EndOffer("alice", s, false)
		}, true},
		{"failure while another offer is in flight", func(p *Participant, s core.MediaStream) bool {
			p.BeginOffer("alice")
			p.BeginOffer("alice")
			dropped := p.EndOffer("alice", s, false)
			p.EndOffer("alice", s, true)
			return dropped
		}, false},
		{"failure after a success", func(p *Participant, s core.MediaStream) bool {
			p.BeginOffer("alice")
			p.BeginOffer("alice")
			p.EndOffer("alice", s, true)
			return p.EndOffer("alice", s, false)
		}, false},
		{"both fail", func(p *Participant, s core.MediaStream) bool {
			p.BeginOffer("alice")
			p.BeginOffer("alice")
			first := p.EndOffer("alice", s, false)
			return !first && p.EndOffer("alice", s, false)
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pipe := newTestPipeline(t, coretest.NewEngine())
			p, _ := newTestParticipant(t, pipe, "bob")
			in := newTestStream(t, pipe)
			if _, err := p.AttachInbound("alice", in); err != nil {
				t.Fatal(err)
			}

			if got := tt.run(p, in); got != tt.detached {
				t.Fatalf("detached = %v, want %v", got, tt.detached)
			}
			_, attached := p.Inbound("alice")
			if attached == tt.detached {
				t.Fatalf("inbound attached = %v after detached = %v", attached, tt.detached)
			}
		})
	}
}

func TestPairSharesOneCreation(t *testing.T) {
	pipe := newTestPipeline(t, coretest.NewEngine())
	p, _ := newTestParticipant(t, pipe, "bob")

	var created atomic.Int32
	release := make(chan struct{})
	create := func(context.Context) (core.MediaStream, error) {
		created.Add(1)
		<-release
		s, err := pipe.CreateStream(context.Background())
		if err != nil {
			return nil, err
		}
		if _, err := p.AttachInbound("alice", s); err != nil {
			return nil, err
		}
		return s, nil
	}

	const callers = 8
	results := make([]core.MediaStream, callers)
	var started sync.WaitGroup
	started.Add(callers)
	var wg conc.WaitGroup
	for i := range callers {
		wg.Go(func() {
			started.Done()
			s, _, err := p.Pair(context.Background(), "alice", create)
			if err != nil {
				t.Errorf("pair: %v", err)
				return
			}
			results[i] = s
		})
	}
	started.Wait()
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if created.Load() != 1 {
		t.Fatalf("create ran %d times, want 1", created.Load())
	}
	for i := 1; i < callers; i++ {
		if results[i] != results[0] {
			t.Fatal("callers observed different streams")
		}
	}
}

func TestCloseReturnsStreamsAndRejectsLateWork(t *testing.T) {
	pipe := newTestPipeline(t, coretest.NewEngine())
	p, out := newTestParticipant(t, pipe, "bob")
	in := newTestStream(t, pipe)
	if _, err := p.AttachInbound("alice", in); err != nil {
		t.Fatal(err)
	}
	if _, err := p.ApplyOrQueue(Peer("carol"), coretest.Candidate("c")); err != nil {
		t.Fatal(err)
	}

	streams := p.Close()
	if len(streams) != 2 {
		t.Fatalf("Close returned %d streams, want 2", len(streams))
	}
	seen := map[core.MediaStream]bool{}
	for _, s := range streams {
		seen[s] = true
	}
	if !seen[out] || !seen[in] {
		t.Fatal("Close should return outbound and inbound streams")
	}
	if again := p.Close(); again != nil {
		t.Fatal("second Close should return nothing")
	}
	if _, err := p.ApplyOrQueue(Own(), coretest.Candidate("late")); err == nil {
		t.Fatal("closed participant should reject candidates")
	}
	if _, err := p.AttachInbound("dave", newTestStream(t, pipe)); err == nil {
		t.Fatal("closed participant should reject inbound streams")
	}
}
