package domain

import "errors"

// Error kinds reported back to the client that issued a failing request.
var (
	ErrEngineUnavailable      = errors.New("media engine unavailable")
	ErrRoomNotFound           = errors.New("room not found")
	ErrParticipantNotFound    = errors.New("participant not found")
	ErrNegotiationFailed      = errors.New("negotiation failed")
	ErrInvalidCandidateTarget = errors.New("invalid candidate target")
	ErrBadRequest             = errors.New("bad request")
	ErrRateLimited            = errors.New("rate limited")
)

var kinds = []struct {
	err  error
	kind string
}{
	{ErrEngineUnavailable, "EngineUnavailable"},
	{ErrRoomNotFound, "RoomNotFound"},
	{ErrParticipantNotFound, "ParticipantNotFound"},
	{ErrNegotiationFailed, "NegotiationFailed"},
	{ErrInvalidCandidateTarget, "InvalidCandidateTarget"},
	{ErrBadRequest, "BadRequest"},
	{ErrRateLimited, "RateLimited"},
}

// ErrorKind maps err to its wire name. Validation errors count as BadRequest.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	switch {
	case errors.Is(err, ErrUsernameEmpty), errors.Is(err, ErrUsernameTooLong),
		errors.Is(err, ErrRoomNameEmpty), errors.Is(err, ErrRoomNameTooLong):
		return "BadRequest"
	}
	return "Internal"
}
