package core

import "errors"

// Frame is a raw encoded signaling payload.
type Frame []byte

var ErrBackpressure = errors.New("backpressure")

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// SignalClient is the coordinator's view of one connected client.
//
//go:generate mockgen -destination=mock/signal_mock.go -package=mock . SignalClient
type SignalClient interface {
	SessionID() SessionID
	// Send encodes msg and queues it; ErrBackpressure means the queue is full.
	Send(msg Message) error
}
