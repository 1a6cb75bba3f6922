package app

import "github.com/dkeye/VideoRooms/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickMember
	DropMessage
)

// Policy decides what happens to a client whose send queue is full.
type Policy interface {
	OnBackPressure(client core.SignalClient, msg core.Message) BackpressureAction
}

// SimplePolicy kicks slow clients. A client that missed an answer or a
// candidate cannot finish negotiation anyway.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(core.SignalClient, core.Message) BackpressureAction {
	return KickMember
}
