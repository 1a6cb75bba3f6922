package core

import (
	"context"

	"github.com/dkeye/VideoRooms/internal/domain"
)

// EngineDialer establishes the connection to a media engine.
type EngineDialer interface {
	Dial(ctx context.Context) (MediaEngine, error)
}

// MediaEngine is a connected media-routing engine.
type MediaEngine interface {
	CreatePipeline(ctx context.Context) (Pipeline, error)
	Close() error
}

// Pipeline binds together all streams of one room.
type Pipeline interface {
	ID() string
	CreateStream(ctx context.Context) (MediaStream, error)
	// Release stops the pipeline and every stream created on it.
	Release() error
}

// MediaStream is one negotiated media path (an engine-side WebRTC endpoint).
type MediaStream interface {
	ID() string
	// ProcessOffer negotiates sdpOffer and returns the SDP answer.
	ProcessOffer(ctx context.Context, sdpOffer string) (string, error)
	AddCandidate(c domain.Candidate) error
	// ConnectTo routes this stream's media into sink. Connecting twice is a no-op.
	ConnectTo(ctx context.Context, sink MediaStream) error
	// GatherCandidates starts delivering local candidates to the OnCandidateFound listener.
	GatherCandidates(ctx context.Context) error
	OnCandidateFound(fn func(domain.Candidate))
	Release() error
}
