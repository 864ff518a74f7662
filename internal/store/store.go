package store

import (
	"context"
	"time"
)

// Ban is a persisted server-wide ban record.
type Ban struct {
	Username  string
	BannedBy  string
	CreatedAt time.Time
}

// FlagCapture is a persisted first-finder flag record.
type FlagCapture struct {
	Value      string
	Finder     string
	Room       string
	CapturedAt time.Time
}

// BanStore persists server-wide bans so they survive restarts.
type BanStore interface {
	// AddBan records a ban. Re-banning an already banned user is a no-op.
	AddBan(ctx context.Context, username, bannedBy string) error

	// RemoveBan lifts a ban. Removing a missing ban is a no-op.
	RemoveBan(ctx context.Context, username string) error

	// ListBans returns all active bans.
	ListBans(ctx context.Context) ([]Ban, error)
}

// FlagStore persists flag captures. Captures are append-only.
type FlagStore interface {
	// AddFlag records a capture. The flag value is unique server-wide.
	AddFlag(ctx context.Context, capture FlagCapture) error

	// ListFlags returns all captures in capture order.
	ListFlags(ctx context.Context) ([]FlagCapture, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	BanStore
	FlagStore

	// Close closes the underlying database connection.
	Close() error
}
