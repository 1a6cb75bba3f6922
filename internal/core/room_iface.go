package core

import "github.com/dkeye/VideoRooms/internal/domain"

// RoomInfo is a read-only view for APIs (no media handles).
type RoomInfo struct {
	Name         domain.RoomName `json:"name"`
	Participants int             `json:"participants"`
}
