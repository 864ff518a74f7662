package core

import (
	"sync"
	"time"

	"github.com/axiomchronicles/drevoid-server/internal/auth"
	"github.com/axiomchronicles/drevoid-server/internal/proto"
)

// Visibility of a room.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// Room is a named broadcast group with bounded history. Every mutating
// operation, including broadcast fan-out, runs under the room's own
// mutex: operations on one room serialize while different rooms proceed
// in parallel, and history order always equals delivery order.
type Room struct {
	name         string
	visibility   Visibility
	passwordHash string
	capacity     int
	historyCap   int

	mu      sync.Mutex
	topic   string
	locked  bool
	members map[string]*Session
	history []Message
	nextSeq uint64
}

func newRoom(name string, visibility Visibility, passwordHash string, capacity, historyCap int) *Room {
	return &Room{
		name:         name,
		visibility:   visibility,
		passwordHash: passwordHash,
		capacity:     capacity,
		historyCap:   historyCap,
		members:      make(map[string]*Session),
	}
}

// Name returns the room's unique name.
func (r *Room) Name() string { return r.name }

// Join admits a session, checking lock state, capacity, and password.
// Already-present members rejoin without effect.
func (r *Room) Join(s *Session, password string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[s.Username]; ok {
		return nil
	}
	if err := r.admitLocked(password); err != nil {
		return err
	}
	r.members[s.Username] = s
	return nil
}

// admitLocked checks password, lock state, and capacity. Callers hold r.mu.
func (r *Room) admitLocked(password string) error {
	if r.visibility == VisibilityPrivate {
		if auth.ComparePassword(r.passwordHash, password) != nil {
			return ErrWrongPassword
		}
	}
	if r.locked {
		return ErrRoomLocked
	}
	if r.capacity > 0 && len(r.members) >= r.capacity {
		return ErrRoomFull
	}
	return nil
}

// JoinFrom admits a session and removes it from prev as one membership
// transition. Admission is validated before anything changes, so a
// rejected join leaves the session where it was; both member sets and
// the session's room pointer change inside the same critical section,
// so no observer can find the session in two rooms. prev may be nil.
// The two locks are taken in room-name order; this is the only place
// two room locks are held at once.
func (r *Room) JoinFrom(s *Session, prev *Room, password string) error {
	if prev == r {
		prev = nil
	}
	if prev == nil {
		r.mu.Lock()
		defer r.mu.Unlock()
	} else {
		first, second := prev, r
		if r.name < prev.name {
			first, second = r, prev
		}
		first.mu.Lock()
		second.mu.Lock()
		defer second.mu.Unlock()
		defer first.mu.Unlock()
	}

	if _, ok := r.members[s.Username]; !ok {
		if err := r.admitLocked(password); err != nil {
			return err
		}
		r.members[s.Username] = s
	}
	if prev != nil {
		delete(prev.members, s.Username)
	}
	s.setRoom(r.name)
	return nil
}

// Leave removes a member. Returns false if the user was not present.
func (r *Room) Leave(username string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[username]; !ok {
		return false
	}
	delete(r.members, username)
	return true
}

// Members returns a snapshot of member usernames.
func (r *Room) Members() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.members))
	for name := range r.members {
		names = append(names, name)
	}
	return names
}

// MemberSessions returns a snapshot of member sessions.
func (r *Room) MemberSessions() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	sessions := make([]*Session, 0, len(r.members))
	for _, s := range r.members {
		sessions = append(sessions, s)
	}
	return sessions
}

// Empty reports whether the room has no members.
func (r *Room) Empty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members) == 0
}

// Post appends a message to history and broadcasts it to members in one
// critical section, so two racing sends cannot interleave their history
// and delivery effects. When echo is false the sender is excluded from
// delivery. Sessions whose outbound queue overflowed are returned for
// the caller to disconnect.
func (r *Room) Post(from, body string, echo bool) (Message, []*Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextSeq++
	msg := Message{
		Seq:       r.nextSeq,
		Room:      r.name,
		From:      from,
		Body:      body,
		CreatedAt: time.Now(),
	}
	r.history = append(r.history, msg)
	if r.historyCap > 0 && len(r.history) > r.historyCap {
		r.history = r.history[len(r.history)-r.historyCap:]
	}

	rec, err := proto.NewRecord(proto.TypeMessage, proto.BroadcastMessage{
		Room:    msg.Room,
		From:    msg.From,
		Content: msg.Body,
		Seq:     msg.Seq,
	})
	if err != nil {
		return msg, nil
	}

	var slow []*Session
	for name, s := range r.members {
		if !echo && name == from {
			continue
		}
		if !s.Send(rec) {
			slow = append(slow, s)
		}
	}
	return msg, slow
}

// Notify broadcasts a record to members under the room lock, keeping
// notices ordered with messages. Overflowed sessions are returned.
func (r *Room) Notify(rec *proto.Record, exclude string) []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	var slow []*Session
	for name, s := range r.members {
		if name == exclude {
			continue
		}
		if !s.Send(rec) {
			slow = append(slow, s)
		}
	}
	return slow
}

// History returns up to n most recent messages, oldest first.
// n <= 0 returns everything retained.
func (r *Room) History(n int) []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	start := 0
	if n > 0 && len(r.history) > n {
		start = len(r.history) - n
	}
	out := make([]Message, len(r.history)-start)
	copy(out, r.history[start:])
	return out
}

// ClearHistory drops all retained messages.
func (r *Room) ClearHistory() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = nil
}

// Topic returns the room topic.
func (r *Room) Topic() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.topic
}

// SetTopic replaces the room topic.
func (r *Room) SetTopic(topic string) {
	r.mu.Lock()
	r.topic = topic
	r.mu.Unlock()
}

// Locked reports whether new joins are rejected.
func (r *Room) Locked() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.locked
}

// SetLocked toggles the lock. Existing members are never evicted.
func (r *Room) SetLocked(locked bool) {
	r.mu.Lock()
	r.locked = locked
	r.mu.Unlock()
}

// Summary describes the room for list-rooms replies.
func (r *Room) Summary() proto.RoomSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return proto.RoomSummary{
		Name:              r.name,
		Visibility:        string(r.visibility),
		PasswordProtected: r.passwordHash != "",
		Members:           len(r.members),
		Capacity:          r.capacity,
		Topic:             r.topic,
		Locked:            r.locked,
	}
}
