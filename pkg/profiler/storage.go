package profiler

import (
	"context"
	"time"
)

// ListOrder selects the ordering of List results by start time.
type ListOrder int

const (
	// Descending returns the newest sessions first.
	Descending ListOrder = iota
	// Ascending returns the oldest sessions first.
	Ascending
)

// String returns "desc" or "asc".
func (o ListOrder) String() string {
	if o == Ascending {
		return "asc"
	}
	return "desc"
}

// ParseListOrder accepts "asc"/"ascending" and treats anything else as Descending.
func ParseListOrder(s string) ListOrder {
	switch s {
	case "asc", "ascending":
		return Ascending
	default:
		return Descending
	}
}

// Storage persists stopped sessions and tracks which of them each user has viewed.
//
// Implementations must be safe for concurrent use. Every method honours ctx
// cancellation; a caller that must not block runs the call on its own goroutine.
type Storage interface {
	// Save persists a stopped session. Saving the same id twice is a harmless no-op
	// for the tree; view state may be refreshed.
	Save(ctx context.Context, p *Profiler) error

	// Load returns the session with the given id, or nil when it does not exist.
	Load(ctx context.Context, id string) (*Profiler, error)

	// List returns up to maxResults session ids started within [start, finish].
	// Zero times leave the corresponding bound open.
	List(ctx context.Context, maxResults int, start, finish time.Time, order ListOrder) ([]string, error)

	// SetUnviewed marks a session as not yet seen by user.
	SetUnviewed(ctx context.Context, user, id string) error

	// SetViewed marks a session as seen by user.
	SetViewed(ctx context.Context, user, id string) error

	// GetUnviewedIDs returns the sessions user has not viewed, oldest first.
	GetUnviewedIDs(ctx context.Context, user string) ([]string, error)

	// SetUnviewedAfterSave reports whether Save leaves view state untouched, so the
	// session must call SetUnviewed after saving.
	SetUnviewedAfterSave() bool
}
