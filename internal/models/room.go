package models

// RoomStatus is informational occupancy derived after a scheduling run.
type RoomStatus string

const (
	RoomStatusAvailable         RoomStatus = "available"
	RoomStatusPartiallyOccupied RoomStatus = "partially_occupied"
	RoomStatusOccupied          RoomStatus = "occupied"
)

// Room hosts at most one exam at a time.
type Room struct {
	ID       string     `json:"id"`
	Name     string     `json:"name,omitempty"`
	Capacity int        `json:"capacity"`
	Status   RoomStatus `json:"status,omitempty"`
}

// Fits reports whether the room can seat the given number of candidates. An
// unknown participant count fits anywhere.
func (r Room) Fits(participants int) bool {
	return participants <= 0 || r.Capacity >= participants
}
