package core

import "github.com/dkeye/VideoRooms/internal/domain"

// SessionID identifies one signaling connection. It doubles as the participant id.
type SessionID string

func (s SessionID) UserID() domain.UserID { return domain.UserID(s) }
