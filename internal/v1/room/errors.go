package room

import "errors"

// Domain failures. Each maps to a Failed(reason) reply; none of them close
// the connection.
var (
	ErrRoomExists     = errors.New("room already exists")
	ErrRoomNotFound   = errors.New("room not found")
	ErrUserExists     = errors.New("user already in a room")
	ErrUserNotFound   = errors.New("user not found")
	ErrNotHost        = errors.New("not host")
	ErrNotInRoom      = errors.New("not in room")
	ErrBadState       = errors.New("operation not allowed in current state")
	ErrRoomLocked     = errors.New("room is locked")
	ErrRoomFull       = errors.New("room is full")
	ErrNotWhitelisted = errors.New("room creation restricted")
)
