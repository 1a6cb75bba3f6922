package app

import "github.com/dkeye/VideoRooms/internal/core"

// StreamTarget names which of a participant's streams a request addresses:
// its own outbound stream, or the inbound stream carrying one peer's media.
type StreamTarget struct {
	peer core.SessionID
}

// Own addresses the participant's outbound stream.
func Own() StreamTarget { return StreamTarget{} }

// Peer addresses the inbound stream fed by peer.
func Peer(peer core.SessionID) StreamTarget { return StreamTarget{peer: peer} }

// TargetFor resolves the target once per request: a participant asking about
// itself means its own stream.
func TargetFor(self, other core.SessionID) StreamTarget {
	if self == other {
		return Own()
	}
	return Peer(other)
}

func (t StreamTarget) IsOwn() bool { return t.peer == "" }

// PeerID returns the peer for a Peer target and false for Own.
func (t StreamTarget) PeerID() (core.SessionID, bool) {
	return t.peer, t.peer != ""
}

func (t StreamTarget) String() string {
	if t.IsOwn() {
		return "own"
	}
	return "peer:" + string(t.peer)
}
