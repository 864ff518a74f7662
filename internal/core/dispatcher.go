package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/axiomchronicles/drevoid-server/internal/auth"
	"github.com/axiomchronicles/drevoid-server/internal/ctf"
	"github.com/axiomchronicles/drevoid-server/internal/proto"
)

// Policy holds dispatcher behavior toggles.
type Policy struct {
	// EchoMessages controls whether a room message is delivered back
	// to its own sender.
	EchoMessages bool
	// HistoryReplay is how many history entries a join replays.
	HistoryReplay int
}

// Dispatcher routes decoded records to handlers, enforces the
// privilege matrix, and drives broadcasts. It owns no domain state of
// its own; it coordinates the session registry, the room registry, and
// the flag detector, and is invoked concurrently from connection
// workers.
type Dispatcher struct {
	sessions *Sessions
	rooms    *Rooms
	detector *ctf.Detector
	policy   Policy
	jwt      *auth.JWTConfig
	admins   map[string]struct{}
	log      *zerolog.Logger
}

// NewDispatcher wires the dispatcher to its registries. admins lists
// usernames granted the admin role on connect.
func NewDispatcher(sessions *Sessions, rooms *Rooms, detector *ctf.Detector, jwtCfg *auth.JWTConfig, admins []string, policy Policy, logger *zerolog.Logger) *Dispatcher {
	adminSet := make(map[string]struct{}, len(admins))
	for _, name := range admins {
		adminSet[name] = struct{}{}
	}
	return &Dispatcher{
		sessions: sessions,
		rooms:    rooms,
		detector: detector,
		policy:   policy,
		jwt:      jwtCfg,
		admins:   adminSet,
		log:      logger,
	}
}

// Connect performs the handshake for a not-yet-authenticated
// connection. On success the session is registered and its welcome
// reply is already queued; on failure the returned record is the error
// to write directly, and no session exists.
func (d *Dispatcher) Connect(connID string, rec *proto.Record) (*Session, *proto.Record) {
	if rec.Type != proto.TypeConnect {
		return nil, errorRecord(ErrCodeNotConnected, "connect first")
	}

	var data proto.ConnectData
	if err := rec.DecodeData(&data); err != nil {
		return nil, errorRecord(ErrCodeBadRequest, "connect requires a username")
	}
	username := strings.TrimSpace(data.Username)
	if username == "" {
		return nil, errorRecord(ErrCodeBadRequest, "connect requires a username")
	}

	role := RoleUser
	if data.Token != "" && d.jwt != nil {
		if claims, err := auth.ValidateToken(d.jwt, data.Token); err == nil && claims.Username == username {
			role = ParseRole(claims.Role)
		}
	}
	if _, ok := d.admins[username]; ok {
		role = RoleAdmin
	}

	s, err := d.sessions.Register(connID, username, role)
	if err != nil {
		return nil, errorRecord(errorCode(err), err.Error())
	}

	reply := proto.SuccessData{
		Message: "Welcome to the server",
		Rooms:   d.rooms.List(),
		Stats:   d.stats(),
	}
	if d.jwt != nil {
		token, tokenErr := auth.GenerateToken(d.jwt, username, string(role))
		if tokenErr != nil {
			d.log.Error().Err(tokenErr).Str("username", username).Msg("issue resume token")
		} else {
			reply.Token = token
		}
	}
	d.send(s, proto.TypeSuccess, reply)

	d.log.Info().
		Str("conn_id", connID).
		Str("username", username).
		Str("role", string(role)).
		Msg("session connected")
	return s, nil
}

// Dispatch routes one inbound record for an authenticated session.
// Failures become error records on the session; they never escape to
// abort the connection worker, let alone the process.
func (d *Dispatcher) Dispatch(s *Session, rec *proto.Record) {
	if min, privileged := RequiredRole(rec.Type); privileged && !s.Role().AtLeast(min) {
		d.fail(s, ErrInsufficient)
		return
	}

	switch rec.Type {
	case proto.TypeDisconnect:
		d.Disconnect(s)
	case proto.TypeCreateRoom:
		d.handleCreateRoom(s, rec)
	case proto.TypeJoinRoom:
		d.handleJoinRoom(s, rec)
	case proto.TypeLeaveRoom:
		d.handleLeaveRoom(s)
	case proto.TypeListRooms:
		d.handleListRooms(s)
	case proto.TypeListUsers:
		d.handleListUsers(s)
	case proto.TypeMessage:
		d.handleMessage(s, rec)
	case proto.TypePrivateMessage:
		d.handlePrivateMessage(s, rec)
	case proto.TypeKickUser:
		d.handleKick(s, rec)
	case proto.TypeBanUser:
		d.handleBan(s, rec)
	case proto.TypeUnbanUser:
		d.handleUnban(s, rec)
	case proto.TypeMuteUser:
		d.handleMute(s, rec)
	case proto.TypeUnmuteUser:
		d.handleUnmute(s, rec)
	case proto.TypePromoteUser:
		d.handleRoleChange(s, rec, true)
	case proto.TypeDemoteUser:
		d.handleRoleChange(s, rec, false)
	case proto.TypeSetTopic:
		d.handleSetTopic(s, rec)
	case proto.TypeInviteUser:
		d.handleInvite(s, rec)
	case proto.TypeLockRoom:
		d.handleSetLock(s, rec, true)
	case proto.TypeUnlockRoom:
		d.handleSetLock(s, rec, false)
	case proto.TypeClearRoom:
		d.handleClearRoom(s, rec)
	case proto.TypeFlagSubmit:
		d.handleFlagSubmit(s, rec)
	case proto.TypeFlagList:
		d.handleFlagList(s)
	default:
		d.sendError(s, ErrCodeBadRequest, fmt.Sprintf("unknown message type %q", rec.Type))
	}
}

// Disconnect finalizes a session: leaves its room, removes it from the
// registry, and closes it. Safe to call from racing paths (socket
// close, explicit disconnect, ban); only the first call tears down.
func (d *Dispatcher) Disconnect(s *Session) {
	removed := d.sessions.Remove(s.Username)
	if removed == nil {
		s.Close()
		return
	}

	if roomName := s.Room(); roomName != "" {
		if room, err := d.rooms.Get(roomName); err == nil {
			room.Leave(s.Username)
			d.notifyRoom(room, s.Username, proto.NotificationData{
				Event:   proto.NotifyDisconnected,
				Room:    roomName,
				User:    s.Username,
				Message: fmt.Sprintf("%s disconnected", s.Username),
			})
			d.rooms.Collect(roomName)
		}
		s.clearRoom(roomName)
	}
	s.Close()
	d.log.Info().Str("username", s.Username).Msg("session disconnected")
}

// Stats summarizes the server for connect replies and the HTTP API.
func (d *Dispatcher) Stats() proto.ServerStats {
	return *d.stats()
}

// RoomSummaries lists all rooms for the HTTP API.
func (d *Dispatcher) RoomSummaries() []proto.RoomSummary {
	return d.rooms.List()
}

func (d *Dispatcher) stats() *proto.ServerStats {
	return &proto.ServerStats{
		ConnectedUsers: d.sessions.Count(),
		ActiveRooms:    d.rooms.ActiveCount(),
		UptimeSeconds:  int64(d.sessions.Uptime().Seconds()),
	}
}

func (d *Dispatcher) handleCreateRoom(s *Session, rec *proto.Record) {
	var data proto.CreateRoomData
	if err := rec.DecodeData(&data); err != nil {
		d.sendError(s, ErrCodeBadRequest, "create-room requires a room name")
		return
	}
	visibility := VisibilityPublic
	if data.Visibility == string(VisibilityPrivate) {
		visibility = VisibilityPrivate
	}
	room, err := d.rooms.Create(data.Room, visibility, data.Password)
	if err != nil {
		d.fail(s, err)
		return
	}
	d.success(s, proto.SuccessData{Message: fmt.Sprintf("Room %s created", room.Name())})
	d.log.Info().Str("room", room.Name()).Str("username", s.Username).Str("visibility", string(visibility)).Msg("room created")
}

func (d *Dispatcher) handleJoinRoom(s *Session, rec *proto.Record) {
	var data proto.JoinRoomData
	if err := rec.DecodeData(&data); err != nil {
		d.sendError(s, ErrCodeBadRequest, "join-room requires a room name")
		return
	}

	room, err := d.rooms.Get(data.Room)
	if err != nil {
		d.fail(s, err)
		return
	}

	// Implicit leave: a session occupies at most one room, and the
	// transfer is one atomic transition. A rejected admission leaves
	// the session in its previous room.
	var prev *Room
	prevName := s.Room()
	if prevName != "" && prevName != room.Name() {
		if prevRoom, prevErr := d.rooms.Get(prevName); prevErr == nil {
			prev = prevRoom
		}
	}
	if err := room.JoinFrom(s, prev, data.Password); err != nil {
		d.fail(s, err)
		return
	}
	if prev != nil {
		d.notifyRoom(prev, s.Username, proto.NotificationData{
			Event:   proto.NotifyLeft,
			Room:    prevName,
			User:    s.Username,
			Message: fmt.Sprintf("%s left", s.Username),
		})
		d.rooms.Collect(prevName)
	}

	history := room.History(d.policy.HistoryReplay)
	replay := make([]proto.HistoryMessage, 0, len(history))
	for _, m := range history {
		replay = append(replay, proto.HistoryMessage{
			Room:      m.Room,
			From:      m.From,
			Content:   m.Body,
			Seq:       m.Seq,
			Timestamp: m.CreatedAt.Unix(),
		})
	}
	d.success(s, proto.SuccessData{
		Message: fmt.Sprintf("Joined %s", room.Name()),
		History: replay,
	})
	d.notifyRoom(room, s.Username, proto.NotificationData{
		Event:   proto.NotifyJoined,
		Room:    room.Name(),
		User:    s.Username,
		Message: fmt.Sprintf("%s joined", s.Username),
	})
	d.log.Info().Str("username", s.Username).Str("room", room.Name()).Msg("joined room")
}

func (d *Dispatcher) handleLeaveRoom(s *Session) {
	roomName := s.Room()
	if roomName == "" {
		d.fail(s, ErrNotInRoom)
		return
	}
	room, err := d.rooms.Get(roomName)
	if err != nil {
		d.fail(s, err)
		return
	}
	room.Leave(s.Username)
	s.clearRoom(roomName)
	d.success(s, proto.SuccessData{Message: fmt.Sprintf("Left %s", roomName)})
	d.notifyRoom(room, s.Username, proto.NotificationData{
		Event:   proto.NotifyLeft,
		Room:    roomName,
		User:    s.Username,
		Message: fmt.Sprintf("%s left", s.Username),
	})
	d.rooms.Collect(roomName)
	d.log.Info().Str("username", s.Username).Str("room", roomName).Msg("left room")
}

func (d *Dispatcher) handleListRooms(s *Session) {
	d.success(s, proto.SuccessData{
		Message: "Room list",
		Rooms:   d.rooms.List(),
		Stats:   d.stats(),
	})
}

func (d *Dispatcher) handleListUsers(s *Session) {
	roomName := s.Room()
	if roomName == "" {
		d.fail(s, ErrNotInRoom)
		return
	}
	room, err := d.rooms.Get(roomName)
	if err != nil {
		d.fail(s, err)
		return
	}
	members := room.MemberSessions()
	users := make([]proto.UserSummary, 0, len(members))
	for _, m := range members {
		users = append(users, proto.UserSummary{Username: m.Username, Role: string(m.Role())})
	}
	d.success(s, proto.SuccessData{
		Message: fmt.Sprintf("Users in %s", roomName),
		Users:   users,
	})
}

func (d *Dispatcher) handleMessage(s *Session, rec *proto.Record) {
	var data proto.MessageData
	if err := rec.DecodeData(&data); err != nil {
		d.sendError(s, ErrCodeBadRequest, "message requires content")
		return
	}
	roomName := s.Room()
	if roomName == "" {
		d.fail(s, ErrNotInRoom)
		return
	}
	if d.sessions.IsMuted(s.Username, roomName) {
		d.fail(s, ErrMuted)
		return
	}
	room, err := d.rooms.Get(roomName)
	if err != nil {
		d.fail(s, ErrNotInRoom)
		return
	}

	msg, slow := room.Post(s.Username, data.Content, d.policy.EchoMessages)
	d.dropSlow(slow)
	d.scanForFlags(s, roomName, data.Content)
	d.log.Debug().Str("username", s.Username).Str("room", roomName).Uint64("seq", msg.Seq).Msg("message")
}

func (d *Dispatcher) handlePrivateMessage(s *Session, rec *proto.Record) {
	var data proto.PrivateMessageData
	if err := rec.DecodeData(&data); err != nil {
		d.sendError(s, ErrCodeBadRequest, "private-message requires a target and content")
		return
	}
	target := d.sessions.Lookup(data.To)
	if target == nil {
		d.fail(s, ErrTargetNotFound)
		return
	}
	delivery, err := proto.NewRecord(proto.TypePrivateMessage, proto.PrivateDelivery{
		From:    s.Username,
		Content: data.Content,
	})
	if err != nil {
		d.log.Error().Err(err).Msg("encode private message")
		return
	}
	if !target.Send(delivery) {
		d.dropSlow([]*Session{target})
	}
	d.success(s, proto.SuccessData{Message: fmt.Sprintf("Private message sent to %s", data.To)})
}

func (d *Dispatcher) handleKick(s *Session, rec *proto.Record) {
	var data proto.TargetData
	if err := rec.DecodeData(&data); err != nil {
		d.sendError(s, ErrCodeBadRequest, "kick-user requires a username")
		return
	}
	roomName := s.Room()
	if roomName == "" {
		d.fail(s, ErrNotInRoom)
		return
	}
	target := d.sessions.Lookup(data.Username)
	if target == nil || target.Room() != roomName {
		d.fail(s, ErrTargetNotFound)
		return
	}
	room, err := d.rooms.Get(roomName)
	if err != nil {
		d.fail(s, err)
		return
	}

	// Membership is re-checked at removal time: the target may have
	// moved since the lookup, and a failed removal must not touch its
	// room pointer.
	if !room.Leave(target.Username) {
		d.fail(s, ErrTargetNotFound)
		return
	}
	target.clearRoom(roomName)
	d.notifyUser(target, proto.NotificationData{
		Event:   proto.NotifyKicked,
		Room:    roomName,
		User:    s.Username,
		Message: fmt.Sprintf("You were kicked from %s by %s", roomName, s.Username),
	})
	d.notifyRoom(room, target.Username, proto.NotificationData{
		Event:   proto.NotifyKicked,
		Room:    roomName,
		User:    target.Username,
		Message: fmt.Sprintf("%s was kicked by %s", target.Username, s.Username),
	})
	d.success(s, proto.SuccessData{Message: fmt.Sprintf("%s kicked", target.Username)})
	d.log.Warn().Str("username", target.Username).Str("room", roomName).Str("by", s.Username).Msg("user kicked")
}

func (d *Dispatcher) handleBan(s *Session, rec *proto.Record) {
	var data proto.TargetData
	if err := rec.DecodeData(&data); err != nil {
		d.sendError(s, ErrCodeBadRequest, "ban-user requires a username")
		return
	}
	target := d.sessions.Lookup(data.Username)
	if target == nil {
		d.fail(s, ErrTargetNotFound)
		return
	}

	d.sessions.Ban(target.Username, s.Username)
	d.notifyUser(target, proto.NotificationData{
		Event:   proto.NotifyBanned,
		User:    s.Username,
		Message: fmt.Sprintf("You were banned by %s", s.Username),
	})
	if roomName := target.Room(); roomName != "" {
		if room, err := d.rooms.Get(roomName); err == nil {
			d.notifyRoom(room, target.Username, proto.NotificationData{
				Event:   proto.NotifyBanned,
				Room:    roomName,
				User:    target.Username,
				Message: fmt.Sprintf("%s was banned by %s", target.Username, s.Username),
			})
		}
	}
	d.Disconnect(target)
	d.success(s, proto.SuccessData{Message: fmt.Sprintf("%s banned", data.Username)})
	d.log.Warn().Str("username", data.Username).Str("by", s.Username).Msg("user banned")
}

func (d *Dispatcher) handleUnban(s *Session, rec *proto.Record) {
	var data proto.TargetData
	if err := rec.DecodeData(&data); err != nil {
		d.sendError(s, ErrCodeBadRequest, "unban-user requires a username")
		return
	}
	d.sessions.Unban(data.Username)
	d.success(s, proto.SuccessData{Message: fmt.Sprintf("%s unbanned", data.Username)})
	d.log.Info().Str("username", data.Username).Str("by", s.Username).Msg("user unbanned")
}

func (d *Dispatcher) handleMute(s *Session, rec *proto.Record) {
	var data proto.MuteData
	if err := rec.DecodeData(&data); err != nil {
		d.sendError(s, ErrCodeBadRequest, "mute-user requires a username")
		return
	}
	target := d.sessions.Lookup(data.Username)
	if target == nil {
		d.fail(s, ErrTargetNotFound)
		return
	}

	scope := GlobalScope
	if !data.Global {
		scope = s.Room()
		if scope == "" {
			d.fail(s, ErrNotInRoom)
			return
		}
	}
	var until time.Time
	if data.Seconds > 0 {
		until = time.Now().Add(time.Duration(data.Seconds) * time.Second)
	}
	d.sessions.SetMute(target.Username, scope, until)

	d.notifyUser(target, proto.NotificationData{
		Event:   proto.NotifyMuted,
		Room:    scope,
		User:    s.Username,
		Message: fmt.Sprintf("You were muted by %s", s.Username),
	})
	if scope != GlobalScope {
		if room, err := d.rooms.Get(scope); err == nil {
			d.notifyRoom(room, target.Username, proto.NotificationData{
				Event:   proto.NotifyMuted,
				Room:    scope,
				User:    target.Username,
				Message: fmt.Sprintf("%s was muted by %s", target.Username, s.Username),
			})
		}
	}
	d.success(s, proto.SuccessData{Message: fmt.Sprintf("%s muted", target.Username)})
	d.log.Warn().Str("username", target.Username).Str("scope", scope).Str("by", s.Username).Msg("user muted")
}

func (d *Dispatcher) handleUnmute(s *Session, rec *proto.Record) {
	var data proto.MuteData
	if err := rec.DecodeData(&data); err != nil {
		d.sendError(s, ErrCodeBadRequest, "unmute-user requires a username")
		return
	}
	scope := GlobalScope
	if !data.Global {
		scope = s.Room()
		if scope == "" {
			d.fail(s, ErrNotInRoom)
			return
		}
	}
	d.sessions.ClearMute(data.Username, scope)

	if target := d.sessions.Lookup(data.Username); target != nil {
		d.notifyUser(target, proto.NotificationData{
			Event:   proto.NotifyUnmuted,
			Room:    scope,
			User:    s.Username,
			Message: fmt.Sprintf("You were unmuted by %s", s.Username),
		})
	}
	d.success(s, proto.SuccessData{Message: fmt.Sprintf("%s unmuted", data.Username)})
}

func (d *Dispatcher) handleRoleChange(s *Session, rec *proto.Record, promote bool) {
	var data proto.RoleChangeData
	if err := rec.DecodeData(&data); err != nil {
		d.sendError(s, ErrCodeBadRequest, "role change requires a username")
		return
	}
	target := d.sessions.Lookup(data.Username)
	if target == nil {
		d.fail(s, ErrTargetNotFound)
		return
	}

	role := ParseRole(data.Role)
	if promote && role == RoleUser {
		role = RoleModerator
	}
	if !promote {
		role = RoleUser
		if data.Role != "" {
			role = ParseRole(data.Role)
		}
	}
	target.setRole(role)

	event := proto.NotifyPromoted
	if !promote {
		event = proto.NotifyDemoted
	}
	notice := proto.SuccessData{Message: fmt.Sprintf("You are now %s", role)}
	if d.jwt != nil {
		// Fresh resume token so the new role survives a reconnect.
		if token, err := auth.GenerateToken(d.jwt, target.Username, string(role)); err == nil {
			notice.Token = token
		}
	}
	d.send(target, proto.TypeSuccess, notice)
	d.notifyUser(target, proto.NotificationData{
		Event:   event,
		User:    s.Username,
		Message: fmt.Sprintf("Your role was changed to %s by %s", role, s.Username),
	})
	d.success(s, proto.SuccessData{Message: fmt.Sprintf("%s is now %s", target.Username, role)})
	d.log.Info().Str("username", target.Username).Str("role", string(role)).Str("by", s.Username).Msg("role changed")
}

func (d *Dispatcher) handleSetTopic(s *Session, rec *proto.Record) {
	var data proto.TopicData
	if err := rec.DecodeData(&data); err != nil {
		d.sendError(s, ErrCodeBadRequest, "set-topic requires a topic")
		return
	}
	roomName := s.Room()
	if roomName == "" {
		d.fail(s, ErrNotInRoom)
		return
	}
	room, err := d.rooms.Get(roomName)
	if err != nil {
		d.fail(s, err)
		return
	}
	room.SetTopic(data.Topic)
	d.notifyRoom(room, "", proto.NotificationData{
		Event:   proto.NotifyTopic,
		Room:    roomName,
		User:    s.Username,
		Message: fmt.Sprintf("Topic set to: %s", data.Topic),
	})
	d.success(s, proto.SuccessData{Message: "Topic updated"})
}

func (d *Dispatcher) handleInvite(s *Session, rec *proto.Record) {
	var data proto.TargetData
	if err := rec.DecodeData(&data); err != nil {
		d.sendError(s, ErrCodeBadRequest, "invite-user requires a username")
		return
	}
	roomName := s.Room()
	if roomName == "" {
		d.fail(s, ErrNotInRoom)
		return
	}
	target := d.sessions.Lookup(data.Username)
	if target == nil {
		d.fail(s, ErrTargetNotFound)
		return
	}
	d.notifyUser(target, proto.NotificationData{
		Event:   proto.NotifyInvited,
		Room:    roomName,
		User:    s.Username,
		Message: fmt.Sprintf("%s invited you to %s", s.Username, roomName),
	})
	d.success(s, proto.SuccessData{Message: fmt.Sprintf("Invited %s to %s", data.Username, roomName)})
}

func (d *Dispatcher) handleSetLock(s *Session, rec *proto.Record, locked bool) {
	room, err := d.targetRoom(s, rec)
	if err != nil {
		d.fail(s, err)
		return
	}
	room.SetLocked(locked)

	event, verb := proto.NotifyLocked, "locked"
	if !locked {
		event, verb = proto.NotifyUnlocked, "unlocked"
	}
	d.notifyRoom(room, "", proto.NotificationData{
		Event:   event,
		Room:    room.Name(),
		User:    s.Username,
		Message: fmt.Sprintf("Room %s by %s", verb, s.Username),
	})
	d.success(s, proto.SuccessData{Message: fmt.Sprintf("Room %s %s", room.Name(), verb)})
	d.log.Info().Str("room", room.Name()).Bool("locked", locked).Str("by", s.Username).Msg("room lock changed")
}

func (d *Dispatcher) handleClearRoom(s *Session, rec *proto.Record) {
	room, err := d.targetRoom(s, rec)
	if err != nil {
		d.fail(s, err)
		return
	}
	room.ClearHistory()
	d.notifyRoom(room, "", proto.NotificationData{
		Event:   proto.NotifyCleared,
		Room:    room.Name(),
		User:    s.Username,
		Message: fmt.Sprintf("History cleared by %s", s.Username),
	})
	d.success(s, proto.SuccessData{Message: fmt.Sprintf("History of %s cleared", room.Name())})
}

// targetRoom resolves a room-targeted moderation record: the named
// room, or the issuer's current room when the payload names none.
func (d *Dispatcher) targetRoom(s *Session, rec *proto.Record) (*Room, error) {
	var data proto.RoomTargetData
	if len(rec.Data) > 0 {
		if err := rec.DecodeData(&data); err != nil {
			return nil, ErrBadRequest
		}
	}
	name := data.Room
	if name == "" {
		name = s.Room()
		if name == "" {
			return nil, ErrNotInRoom
		}
	}
	return d.rooms.Get(name)
}

func (d *Dispatcher) handleFlagSubmit(s *Session, rec *proto.Record) {
	var data proto.FlagSubmitData
	if err := rec.DecodeData(&data); err != nil {
		d.sendError(s, ErrCodeBadRequest, "flag-submit requires a flag")
		return
	}
	values := d.detector.Scan(data.Flag)
	if len(values) == 0 {
		d.sendError(s, ErrCodeBadRequest, "not a recognized flag format")
		return
	}

	capture, isNew := d.detector.Record(values[0], s.Username, s.Room())
	status := proto.FlagStatusAlreadyCaptured
	if isNew {
		status = proto.FlagStatusNew
		d.log.Info().Str("flag", capture.Value).Str("finder", s.Username).Msg("flag captured")
	}
	d.send(s, proto.TypeFlagResponse, proto.FlagResponseData{
		Flag:   capture.Value,
		Status: status,
		Finder: capture.Finder,
		Room:   capture.Room,
	})
}

func (d *Dispatcher) handleFlagList(s *Session) {
	captures := d.detector.Captures()
	flags := make([]proto.FlagCapture, 0, len(captures))
	for _, c := range captures {
		flags = append(flags, proto.FlagCapture{
			Flag:       c.Value,
			Finder:     c.Finder,
			Room:       c.Room,
			CapturedAt: c.CapturedAt.Unix(),
		})
	}
	standings := d.detector.Leaderboard()
	board := make([]proto.LeaderboardEntry, 0, len(standings))
	for _, st := range standings {
		board = append(board, proto.LeaderboardEntry{
			Username:     st.Username,
			Captures:     st.Captures,
			FirstCapture: st.FirstCapture.Unix(),
		})
	}
	d.success(s, proto.SuccessData{
		Message:     "All flags",
		Flags:       flags,
		Leaderboard: board,
		Total:       len(flags),
	})
}

// scanForFlags runs detection over an accepted message body. First
// captures are acknowledged to the sender; repeats of known flags stay
// silent for the implicit in-message path.
func (d *Dispatcher) scanForFlags(s *Session, roomName, body string) {
	for _, value := range d.detector.Scan(body) {
		capture, isNew := d.detector.Record(value, s.Username, roomName)
		if !isNew {
			continue
		}
		d.log.Info().Str("flag", capture.Value).Str("finder", s.Username).Str("room", roomName).Msg("flag captured")
		d.send(s, proto.TypeFlagResponse, proto.FlagResponseData{
			Flag:   capture.Value,
			Status: proto.FlagStatusNew,
			Finder: capture.Finder,
			Room:   capture.Room,
		})
	}
}

func (d *Dispatcher) send(s *Session, recType string, payload any) {
	rec, err := proto.NewRecord(recType, payload)
	if err != nil {
		d.log.Error().Err(err).Str("type", recType).Msg("encode outbound record")
		return
	}
	if !s.Send(rec) {
		d.dropSlow([]*Session{s})
	}
}

func (d *Dispatcher) success(s *Session, data proto.SuccessData) {
	d.send(s, proto.TypeSuccess, data)
}

func (d *Dispatcher) sendError(s *Session, code, msg string) {
	d.send(s, proto.TypeError, proto.ErrorData{Code: code, Message: msg})
}

func (d *Dispatcher) fail(s *Session, err error) {
	d.sendError(s, errorCode(err), err.Error())
}

func (d *Dispatcher) notifyUser(s *Session, data proto.NotificationData) {
	d.send(s, proto.TypeNotification, data)
}

func (d *Dispatcher) notifyRoom(room *Room, exclude string, data proto.NotificationData) {
	rec, err := proto.NewRecord(proto.TypeNotification, data)
	if err != nil {
		d.log.Error().Err(err).Msg("encode notification")
		return
	}
	d.dropSlow(room.Notify(rec, exclude))
}

// dropSlow disconnects sessions whose outbound queue overflowed, so a
// slow peer degrades alone instead of stalling its room.
func (d *Dispatcher) dropSlow(slow []*Session) {
	for _, s := range slow {
		d.log.Warn().Str("username", s.Username).Msg("outbound queue overflow, dropping session")
		d.Disconnect(s)
	}
}

func errorRecord(code, msg string) *proto.Record {
	rec, err := proto.NewRecord(proto.TypeError, proto.ErrorData{Code: code, Message: msg})
	if err != nil {
		return &proto.Record{Type: proto.TypeError, Timestamp: time.Now().Unix()}
	}
	return rec
}
