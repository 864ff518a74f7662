package proto

import (
	"encoding/json"
	"fmt"
	"time"
)

// Record is the structured unit carried by every frame: a type tag,
// a Unix timestamp, and a type-specific data payload.
type Record struct {
	Type      string          `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Message type taxonomy. Bidirectional unless noted.
const (
	TypeConnect    = "connect"
	TypeDisconnect = "disconnect"

	TypeCreateRoom = "create-room"
	TypeJoinRoom   = "join-room"
	TypeLeaveRoom  = "leave-room"
	TypeListRooms  = "list-rooms"
	TypeListUsers  = "list-users"

	TypeMessage        = "message"
	TypePrivateMessage = "private-message"

	TypeKickUser    = "kick-user"
	TypeBanUser     = "ban-user"
	TypeUnbanUser   = "unban-user"
	TypeMuteUser    = "mute-user"
	TypeUnmuteUser  = "unmute-user"
	TypePromoteUser = "promote-user"
	TypeDemoteUser  = "demote-user"
	TypeSetTopic    = "set-topic"
	TypeInviteUser  = "invite-user"
	TypeLockRoom    = "lock-room"
	TypeUnlockRoom  = "unlock-room"
	TypeClearRoom   = "clear-room"

	// Client to server.
	TypeFlagSubmit = "flag-submit"
	TypeFlagList   = "flag-list"
	// Server to client.
	TypeFlagResponse = "flag-response"

	TypeSuccess      = "success"
	TypeError        = "error"
	TypeNotification = "notification"
)

// NewRecord builds a record with the current timestamp, marshaling the
// payload into the data field. A nil payload leaves data empty.
func NewRecord(recType string, payload any) (*Record, error) {
	rec := &Record{
		Type:      recType,
		Timestamp: time.Now().Unix(),
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", recType, err)
		}
		rec.Data = data
	}
	return rec, nil
}

// DecodeData unmarshals the record's data payload into v.
func (r *Record) DecodeData(v any) error {
	if len(r.Data) == 0 {
		return fmt.Errorf("%s record has no data", r.Type)
	}
	if err := json.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", r.Type, err)
	}
	return nil
}

// ConnectData introduces a client to the server. Token optionally
// resumes a previously granted role for the same username.
type ConnectData struct {
	Username string `json:"username"`
	Token    string `json:"token,omitempty"`
}

// CreateRoomData requests creation of a new room.
type CreateRoomData struct {
	Room       string `json:"room"`
	Visibility string `json:"visibility,omitempty"`
	Password   string `json:"password,omitempty"`
}

// JoinRoomData requests to join a room, with a password for private rooms.
type JoinRoomData struct {
	Room     string `json:"room"`
	Password string `json:"password,omitempty"`
}

// MessageData is a chat message body sent into the sender's room.
type MessageData struct {
	Content string `json:"content"`
}

// PrivateMessageData is a direct message to a single user.
type PrivateMessageData struct {
	To      string `json:"to"`
	Content string `json:"content"`
}

// TargetData names a user for kick/ban/unban/invite operations.
type TargetData struct {
	Username string `json:"username"`
}

// MuteData mutes a user in the issuer's room, or server-wide when
// Global is set. Zero Seconds means an indefinite mute.
type MuteData struct {
	Username string `json:"username"`
	Seconds  int64  `json:"seconds,omitempty"`
	Global   bool   `json:"global,omitempty"`
}

// RoleChangeData promotes or demotes a user. Role defaults to
// "moderator" for promote and "user" for demote.
type RoleChangeData struct {
	Username string `json:"username"`
	Role     string `json:"role,omitempty"`
}

// TopicData sets the topic of the issuer's room.
type TopicData struct {
	Topic string `json:"topic"`
}

// RoomTargetData names a room for lock/unlock/clear operations.
// An empty room means the issuer's current room.
type RoomTargetData struct {
	Room string `json:"room,omitempty"`
}

// FlagSubmitData is an explicit flag report.
type FlagSubmitData struct {
	Flag string `json:"flag"`
}

// BroadcastMessage is the data payload of a message record fanned out
// to room members. Seq orders messages within a room.
type BroadcastMessage struct {
	Room    string `json:"room"`
	From    string `json:"from"`
	Content string `json:"content"`
	Seq     uint64 `json:"seq"`
}

// PrivateDelivery is the data payload of a delivered private message.
type PrivateDelivery struct {
	From    string `json:"from"`
	Content string `json:"content"`
}

// RoomSummary describes one room in a list-rooms reply.
type RoomSummary struct {
	Name              string `json:"name"`
	Visibility        string `json:"visibility"`
	PasswordProtected bool   `json:"password_protected"`
	Members           int    `json:"members"`
	Capacity          int    `json:"capacity"`
	Topic             string `json:"topic,omitempty"`
	Locked            bool   `json:"locked,omitempty"`
}

// UserSummary describes one user in a list-users reply.
type UserSummary struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

// ServerStats is included in connect and list-rooms replies.
type ServerStats struct {
	ConnectedUsers int   `json:"connected_users"`
	ActiveRooms    int   `json:"active_rooms"`
	UptimeSeconds  int64 `json:"uptime"`
}

// HistoryMessage is one replayed history entry.
type HistoryMessage struct {
	Room      string `json:"room"`
	From      string `json:"from"`
	Content   string `json:"content"`
	Seq       uint64 `json:"seq"`
	Timestamp int64  `json:"timestamp"`
}

// FlagCapture describes one recorded flag.
type FlagCapture struct {
	Flag       string `json:"flag"`
	Finder     string `json:"finder"`
	Room       string `json:"room,omitempty"`
	CapturedAt int64  `json:"captured_at"`
}

// LeaderboardEntry is one row of the capture leaderboard.
type LeaderboardEntry struct {
	Username     string `json:"username"`
	Captures     int    `json:"captures"`
	FirstCapture int64  `json:"first_capture"`
}

// Flag capture statuses carried in flag-response records.
const (
	FlagStatusNew             = "new_capture"
	FlagStatusAlreadyCaptured = "already_captured"
)

// FlagResponseData reports the outcome of a flag detection or submission.
type FlagResponseData struct {
	Flag   string `json:"flag"`
	Status string `json:"status"`
	Finder string `json:"finder,omitempty"`
	Room   string `json:"room,omitempty"`
}

// SuccessData is the payload of a success record. Optional fields are
// populated depending on the operation being acknowledged.
type SuccessData struct {
	Message     string             `json:"message"`
	Token       string             `json:"token,omitempty"`
	Rooms       []RoomSummary      `json:"rooms,omitempty"`
	Users       []UserSummary      `json:"users,omitempty"`
	History     []HistoryMessage   `json:"history,omitempty"`
	Flags       []FlagCapture      `json:"flags,omitempty"`
	Leaderboard []LeaderboardEntry `json:"leaderboard,omitempty"`
	Stats       *ServerStats       `json:"stats,omitempty"`
	Total       int                `json:"total,omitempty"`
}

// ErrorData is the payload of an error record.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Notification events.
const (
	NotifyJoined       = "joined"
	NotifyLeft         = "left"
	NotifyDisconnected = "disconnected"
	NotifyKicked       = "kicked"
	NotifyBanned       = "banned"
	NotifyMuted        = "muted"
	NotifyUnmuted      = "unmuted"
	NotifyPromoted     = "promoted"
	NotifyDemoted      = "demoted"
	NotifyTopic        = "topic"
	NotifyLocked       = "locked"
	NotifyUnlocked     = "unlocked"
	NotifyCleared      = "cleared"
	NotifyInvited      = "invited"
)

// NotificationData is an informational event: join/leave traffic and
// moderation notices.
type NotificationData struct {
	Event   string `json:"event"`
	Room    string `json:"room,omitempty"`
	User    string `json:"user,omitempty"`
	Message string `json:"message"`
}
