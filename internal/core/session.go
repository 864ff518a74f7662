package core

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/axiomchronicles/drevoid-server/internal/proto"
	"github.com/axiomchronicles/drevoid-server/internal/store"
)

// GlobalScope is the mute scope covering every room.
const GlobalScope = ""

// Session is a live, authenticated connection bound to a unique
// username. Outbound records go through a bounded non-blocking queue;
// a full queue marks the session for forcible disconnect so one slow
// peer cannot stall a room.
type Session struct {
	ID       string
	Username string

	mu       sync.Mutex
	role     Role
	room     string
	out      chan *proto.Record
	done     chan struct{}
	closed   bool
	overflow bool
}

func newSession(id, username string, role Role, queueSize int) *Session {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Session{
		ID:       id,
		Username: username,
		role:     role,
		out:      make(chan *proto.Record, queueSize),
		done:     make(chan struct{}),
	}
}

// Role returns the session's current role.
func (s *Session) Role() Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}

func (s *Session) setRole(r Role) {
	s.mu.Lock()
	s.role = r
	s.mu.Unlock()
}

// Room returns the name of the room the session occupies, or "".
func (s *Session) Room() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

func (s *Session) setRoom(name string) {
	s.mu.Lock()
	s.room = name
	s.mu.Unlock()
}

// clearRoom resets the room pointer only while it still names room, so
// a kick or disconnect racing a concurrent move cannot wipe the room
// the session just transitioned into.
func (s *Session) clearRoom(room string) {
	s.mu.Lock()
	if s.room == room {
		s.room = ""
	}
	s.mu.Unlock()
}

// Send queues a record for delivery without blocking. It returns false
// when the session is closed or its queue overflowed; an overflowed
// session must be disconnected by the caller.
func (s *Session) Send(rec *proto.Record) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.overflow {
		return false
	}
	select {
	case s.out <- rec:
		return true
	default:
		s.overflow = true
		return false
	}
}

// Outbound is drained by the session's connection writer.
func (s *Session) Outbound() <-chan *proto.Record {
	return s.out
}

// Done is closed when the session has been shut down (disconnect,
// kick-by-ban, or queue overflow).
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close shuts the session down. Safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
}

// muteEntry is one (username, scope) mute. A zero Until means indefinite.
type muteEntry struct {
	Until time.Time
}

func (m muteEntry) expired(now time.Time) bool {
	return !m.Until.IsZero() && now.After(m.Until)
}

// Sessions tracks connected identities, roles, and mute/ban state.
// All public operations are atomic under one registry mutex.
type Sessions struct {
	log       *zerolog.Logger
	queueSize int
	bans      store.BanStore // optional write-through ledger

	mu      sync.Mutex
	byName  map[string]*Session
	banned  map[string]struct{}
	mutes   map[string]map[string]muteEntry // username -> scope -> entry
	started time.Time
}

// NewSessions builds the session registry. banStore may be nil; when
// present, bans are written through and SeedBans restores them.
func NewSessions(queueSize int, banStore store.BanStore, logger *zerolog.Logger) *Sessions {
	return &Sessions{
		log:       logger,
		queueSize: queueSize,
		bans:      banStore,
		byName:    make(map[string]*Session),
		banned:    make(map[string]struct{}),
		mutes:     make(map[string]map[string]muteEntry),
		started:   time.Now(),
	}
}

// SeedBans loads persisted bans into the registry at startup.
func (r *Sessions) SeedBans(bans []store.Ban) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range bans {
		r.banned[b.Username] = struct{}{}
	}
}

// Register creates a session for username. It fails for banned or
// duplicate usernames.
func (r *Sessions) Register(id, username string, role Role) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, banned := r.banned[username]; banned {
		return nil, ErrBanned
	}
	if _, exists := r.byName[username]; exists {
		return nil, ErrDuplicateUsername
	}
	s := newSession(id, username, role, r.queueSize)
	r.byName[username] = s
	return s, nil
}

// Lookup returns the live session for username, or nil.
func (r *Sessions) Lookup(username string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byName[username]
}

// Remove drops the session for username. It returns the removed
// session, or nil when the name was already gone, so a disconnect
// racing a kick tears down exactly once.
func (r *Sessions) Remove(username string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byName[username]
	if !ok {
		return nil
	}
	delete(r.byName, username)
	return s
}

// Count returns the number of connected sessions.
func (r *Sessions) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byName)
}

// Uptime reports how long the registry has been running.
func (r *Sessions) Uptime() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return time.Since(r.started)
}

// Ban marks username banned server-wide and persists the ban.
func (r *Sessions) Ban(username, bannedBy string) {
	r.mu.Lock()
	r.banned[username] = struct{}{}
	r.mu.Unlock()

	if r.bans != nil {
		if err := r.bans.AddBan(context.Background(), username, bannedBy); err != nil {
			r.log.Error().Err(err).Str("username", username).Msg("persist ban")
		}
	}
}

// Unban lifts a server-wide ban.
func (r *Sessions) Unban(username string) {
	r.mu.Lock()
	delete(r.banned, username)
	r.mu.Unlock()

	if r.bans != nil {
		if err := r.bans.RemoveBan(context.Background(), username); err != nil {
			r.log.Error().Err(err).Str("username", username).Msg("remove ban")
		}
	}
}

// IsBanned reports whether username is banned.
func (r *Sessions) IsBanned(username string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, banned := r.banned[username]
	return banned
}

// SetMute mutes username within scope (a room name, or GlobalScope).
// A zero until means indefinite.
func (r *Sessions) SetMute(username, scope string, until time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	scopes, ok := r.mutes[username]
	if !ok {
		scopes = make(map[string]muteEntry)
		r.mutes[username] = scopes
	}
	scopes[scope] = muteEntry{Until: until}
}

// ClearMute lifts a mute for (username, scope).
func (r *Sessions) ClearMute(username, scope string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if scopes, ok := r.mutes[username]; ok {
		delete(scopes, scope)
		if len(scopes) == 0 {
			delete(r.mutes, username)
		}
	}
}

// IsMuted reports whether username may not send into room. Expired
// timed mutes are cleared here as a side effect, so no timer is needed.
func (r *Sessions) IsMuted(username, room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	scopes, ok := r.mutes[username]
	if !ok {
		return false
	}
	now := time.Now()
	for _, scope := range []string{GlobalScope, room} {
		entry, ok := scopes[scope]
		if !ok {
			continue
		}
		if entry.expired(now) {
			delete(scopes, scope)
			continue
		}
		return true
	}
	if len(scopes) == 0 {
		delete(r.mutes, username)
	}
	return false
}
