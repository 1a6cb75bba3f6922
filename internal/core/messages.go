package core

import "github.com/dkeye/VideoRooms/internal/domain"

// Outbound event names.
const (
	EventCandidate             = "candidate"
	EventNewParticipantArrived = "newParticipantArrived"
	EventExistingParticipants  = "existingParticipants"
	EventReceiveVideoAnswer    = "receiveVideoAnswer"
	EventParticipantLeft       = "participantLeft"
	EventLeft                  = "left"
	EventPong                  = "pong"
	EventError                 = "error"
)

// Message is anything the coordinator emits to a client.
type Message interface {
	EventName() string
}

type CandidateMessage struct {
	Event     string           `json:"event"`
	UserID    domain.UserID    `json:"userId"`
	Candidate domain.Candidate `json:"candidate"`
}

func NewCandidateMessage(owner domain.UserID, c domain.Candidate) *CandidateMessage {
	return &CandidateMessage{Event: EventCandidate, UserID: owner, Candidate: c}
}

type NewParticipantMessage struct {
	Event    string        `json:"event"`
	UserID   domain.UserID `json:"userId"`
	UserName string        `json:"userName"`
}

func NewParticipantArrived(u domain.User) *NewParticipantMessage {
	return &NewParticipantMessage{Event: EventNewParticipantArrived, UserID: u.ID, UserName: u.Username}
}

type ExistingParticipantsMessage struct {
	Event         string        `json:"event"`
	ExistingUsers []domain.User `json:"existingUsers"`
	UserID        domain.UserID `json:"userId"`
}

func NewExistingParticipants(self domain.UserID, others []domain.User) *ExistingParticipantsMessage {
	if others == nil {
		others = []domain.User{}
	}
	return &ExistingParticipantsMessage{Event: EventExistingParticipants, ExistingUsers: others, UserID: self}
}

type VideoAnswerMessage struct {
	Event     string        `json:"event"`
	SenderID  domain.UserID `json:"senderId"`
	SDPAnswer string        `json:"sdpAnswer"`
}

func NewVideoAnswer(sender domain.UserID, answer string) *VideoAnswerMessage {
	return &VideoAnswerMessage{Event: EventReceiveVideoAnswer, SenderID: sender, SDPAnswer: answer}
}

type ParticipantLeftMessage struct {
	Event  string        `json:"event"`
	UserID domain.UserID `json:"userId"`
}

func NewParticipantLeft(id domain.UserID) *ParticipantLeftMessage {
	return &ParticipantLeftMessage{Event: EventParticipantLeft, UserID: id}
}

// EventMessage carries no payload besides its event name.
type EventMessage struct {
	Event string `json:"event"`
}

func NewEvent(name string) *EventMessage { return &EventMessage{Event: name} }

type ErrorMessage struct {
	Event   string `json:"event"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Request string `json:"request,omitempty"`
}

func NewErrorMessage(request string, err error) *ErrorMessage {
	return &ErrorMessage{
		Event:   EventError,
		Kind:    domain.ErrorKind(err),
		Message: err.Error(),
		Request: request,
	}
}

func (m *CandidateMessage) EventName() string            { return m.Event }
func (m *NewParticipantMessage) EventName() string       { return m.Event }
func (m *ExistingParticipantsMessage) EventName() string { return m.Event }
func (m *VideoAnswerMessage) EventName() string          { return m.Event }
func (m *ParticipantLeftMessage) EventName() string      { return m.Event }
func (m *EventMessage) EventName() string                { return m.Event }
func (m *ErrorMessage) EventName() string                { return m.Event }
