package signal

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/VideoRooms/internal/app"
	"github.com/dkeye/VideoRooms/internal/app/orch"
	"github.com/dkeye/VideoRooms/internal/core"
	"github.com/dkeye/VideoRooms/internal/core/coretest"
)

type recordConn struct {
	mu     sync.Mutex
	frames []core.Frame
}

func (c *recordConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, f)
	return nil
}

func (c *recordConn) Close() {}

func (c *recordConn) events(t *testing.T) []map[string]any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, 0, len(c.frames))
	for _, f := range c.frames {
		var m map[string]any
		if err := json.Unmarshal(f, &m); err != nil {
			t.Fatalf("bad frame %s: %v", f, err)
		}
		out = append(out, m)
	}
	return out
}

func (c *recordConn) last(t *testing.T) map[string]any {
	t.Helper()
	evs := c.events(t)
	if len(evs) == 0 {
		t.Fatal("no frames sent")
	}
	return evs[len(evs)-1]
}

func newTestController(t *testing.T, opts Options) *SignalWSController {
	t.Helper()
	o := &orch.Orchestrator{
		Registry: app.NewRegistry(),
		Rooms:    app.NewRoomManager(app.NewEngineClient(coretest.NewDialer()), nil),
		Policy:   app.SimplePolicy{},
	}
	return NewSignalWSController(o, opts)
}

func connect(ctl *SignalWSController, sid, name string) (*wsClient, *recordConn) {
	rec := &recordConn{}
	client := &wsClient{sid: core.SessionID(sid), conn: rec, name: name}
	ctl.Orch.Registry.BindSignal(client.sid, client, func() {})
	return client, rec
}

func frame(t *testing.T, v map[string]any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestJoinFallsBackToSessionName(t *testing.T) {
	ctl := newTestController(t, Options{})
	ctx := context.Background()

	alice, aliceRec := connect(ctl, "alice-sid", "alice")
	ctl.handleSignal(ctx, alice, frame(t, map[string]any{"event": "joinRoom", "roomName": "r1"}))
	if got := aliceRec.last(t)["event"]; got != core.EventExistingParticipants {
		t.Fatalf("alice got %v, want existingParticipants", got)
	}

	bob, _ := connect(ctl, "bob-sid", "guest")
	ctl.handleSignal(ctx, bob, frame(t, map[string]any{"event": "joinRoom", "userName": "bob", "roomName": "r1"}))

	arrived := aliceRec.last(t)
	if arrived["event"] != core.EventNewParticipantArrived || arrived["userName"] != "bob" || arrived["userId"] != "bob-sid" {
		t.Fatalf("unexpected arrival: %v", arrived)
	}
}

func TestRequestErrors(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		request string
		kind    string
	}{
		{"malformed json", []byte("{"), "", "BadRequest"},
		{"unknown event", []byte(`{"event":"dance"}`), "dance", "BadRequest"},
		{"empty room name", []byte(`{"event":"joinRoom","roomName":""}`), EventJoinRoom, "BadRequest"},
		{"candidate without body", []byte(`{"event":"candidate","userId":"x","roomName":"r1"}`), EventCandidate, "BadRequest"},
		{"candidate for unknown room", []byte(`{"event":"candidate","userId":"x","roomName":"nope","candidate":{"candidate":"c"}}`), EventCandidate, "RoomNotFound"},
		{"leave without room", []byte(`{"event":"leaveRoom"}`), EventLeaveRoom, "RoomNotFound"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctl := newTestController(t, Options{})
			client, rec := connect(ctl, "sid", "guest")
			ctl.handleSignal(context.Background(), client, tt.data)

			got := rec.last(t)
			if got["event"] != core.EventError {
				t.Fatalf("event = %v, want error", got["event"])
			}
			if got["kind"] != tt.kind {
				t.Fatalf("kind = %v, want %s", got["kind"], tt.kind)
			}
			if req, _ := got["request"].(string); req != tt.request {
				t.Fatalf("request = %q, want %q", req, tt.request)
			}
		})
	}
}

func TestJoinRateLimited(t *testing.T) {
	ctl := newTestController(t, Options{JoinLimit: 1, JoinInterval: time.Hour})
	client, rec := connect(ctl, "sid", "guest")
	ctx := context.Background()

	ctl.handleSignal(ctx, client, frame(t, map[string]any{"event": "joinRoom", "roomName": "r1"}))
	ctl.handleSignal(ctx, client, frame(t, map[string]any{"event": "joinRoom", "roomName": "r2"}))

	got := rec.last(t)
	if got["event"] != core.EventError || got["kind"] != "RateLimited" {
		t.Fatalf("unexpected reply: %v", got)
	}
}

func TestReceiveVideoFromOwnStream(t *testing.T) {
	ctl := newTestController(t, Options{})
	client, rec := connect(ctl, "sid", "guest")
	ctx := context.Background()

	ctl.handleSignal(ctx, client, frame(t, map[string]any{"event": "joinRoom", "roomName": "r1"}))
	ctl.handleSignal(ctx, client, frame(t, map[string]any{
		"event": "receiveVideoFrom", "userId": "sid", "roomName": "r1", "sdpOffer": "offer",
	}))
	client.handlers.Wait()

	got := rec.last(t)
	if got["event"] != core.EventReceiveVideoAnswer || got["sdpAnswer"] != "answer-to:offer" || got["senderId"] != "sid" {
		t.Fatalf("unexpected reply: %v", got)
	}
}

func TestPingAndLeave(t *testing.T) {
	ctl := newTestController(t, Options{})
	client, rec := connect(ctl, "sid", "guest")
	ctx := context.Background()

	ctl.handleSignal(ctx, client, []byte(`{"event":"ping"}`))
	if got := rec.last(t)["event"]; got != core.EventPong {
		t.Fatalf("got %v, want pong", got)
	}

	ctl.handleSignal(ctx, client, frame(t, map[string]any{"event": "joinRoom", "roomName": "r1"}))
	ctl.handleSignal(ctx, client, []byte(`{"event":"leaveRoom"}`))
	if got := rec.last(t)["event"]; got != core.EventLeft {
		t.Fatalf("got %v, want left", got)
	}
	if _, ok := ctl.Orch.Rooms.Get("r1"); ok {
		t.Fatal("room should be torn down after the last participant left")
	}
}

func TestRoomRateLimiter(t *testing.T) {
	now := time.Unix(1000, 0)
	rl := NewRoomRateLimiter(2, 10*time.Second)
	rl.now = func() time.Time { return now }

	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatal("first two attempts should pass")
	}
	if rl.Allow("a") {
		t.Fatal("third attempt inside the window should be blocked")
	}
	if !rl.Allow("b") {
		t.Fatal("sessions are limited independently")
	}

	now = now.Add(11 * time.Second)
	if !rl.Allow("a") {
		t.Fatal("attempts outside the window should be forgotten")
	}

	rl.Forget("a")
	if _, ok := rl.history["a"]; ok {
		t.Fatal("Forget should drop history")
	}
}
