package core

import "errors"

// Error codes carried in error records.
const (
	// Authorization failures: reported, connection stays open.
	ErrCodeDuplicateUsername     = "duplicate_username"
	ErrCodeBanned                = "banned"
	ErrCodeInsufficientPrivilege = "insufficient_privilege"
	ErrCodeMuted                 = "muted"
	ErrCodeNotConnected          = "not_connected"

	// Not-found failures.
	ErrCodeRoomNotFound   = "room_not_found"
	ErrCodeTargetNotFound = "target_not_found"
	ErrCodeNotInRoom      = "not_in_room"

	// State conflicts.
	ErrCodeNameTaken     = "name_taken"
	ErrCodeWrongPassword = "wrong_password"
	ErrCodeRoomLocked    = "room_locked"

	// Resource exhaustion.
	ErrCodeRoomFull      = "room_full"
	ErrCodeQueueOverflow = "queue_overflow"

	ErrCodeBadRequest = "bad_request"
)

var (
	ErrDuplicateUsername = errors.New("username already taken")
	ErrBanned            = errors.New("username is banned")
	ErrInsufficient      = errors.New("insufficient privilege")
	ErrMuted             = errors.New("muted")
	ErrRoomNotFound      = errors.New("room not found")
	ErrTargetNotFound    = errors.New("target not found")
	ErrNotInRoom         = errors.New("not in a room")
	ErrNameTaken         = errors.New("room name taken")
	ErrWrongPassword     = errors.New("wrong password")
	ErrRoomLocked        = errors.New("room is locked")
	ErrRoomFull          = errors.New("room is full")
	ErrBadRequest        = errors.New("bad request")
)

// errorCode maps registry sentinels to wire error codes.
func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrDuplicateUsername):
		return ErrCodeDuplicateUsername
	case errors.Is(err, ErrBanned):
		return ErrCodeBanned
	case errors.Is(err, ErrInsufficient):
		return ErrCodeInsufficientPrivilege
	case errors.Is(err, ErrMuted):
		return ErrCodeMuted
	case errors.Is(err, ErrRoomNotFound):
		return ErrCodeRoomNotFound
	case errors.Is(err, ErrTargetNotFound):
		return ErrCodeTargetNotFound
	case errors.Is(err, ErrNotInRoom):
		return ErrCodeNotInRoom
	case errors.Is(err, ErrNameTaken):
		return ErrCodeNameTaken
	case errors.Is(err, ErrWrongPassword):
		return ErrCodeWrongPassword
	case errors.Is(err, ErrRoomLocked):
		return ErrCodeRoomLocked
	case errors.Is(err, ErrRoomFull):
		return ErrCodeRoomFull
	default:
		return ErrCodeBadRequest
	}
}
