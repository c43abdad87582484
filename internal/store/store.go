package store

import (
	"context"
	"errors"
	"time"

	"github.com/seantiz/gradbridge/internal/model"
)

// ErrInvalidKind is returned when an event carries an unknown kind.
var ErrInvalidKind = errors.New("invalid event kind")

// EventStats holds aggregate teardown statistics across the journal.
type EventStats struct {
	Total           int            `json:"total"`
	CountByKind     map[string]int `json:"count_by_kind"`
	Released        int            `json:"released"`
	ContextsDropped int            `json:"contexts_dropped"`
}

// Store defines the persistence operations for model sessions and the
// lifecycle journal.
type Store interface {
	CreateSession(ctx context.Context, s *model.Session) error
	GetSession(ctx context.Context, id string) (*model.Session, error)
	ListSessions(ctx context.Context, limit, offset int) ([]*model.Session, int, error)
	MarkSessionUnloaded(ctx context.Context, id string, at time.Time) error
	RecordEvent(ctx context.Context, e *model.LifecycleEvent) error
	ListEvents(ctx context.Context, limit, offset int) ([]*model.LifecycleEvent, int, error)
	GetEventStats(ctx context.Context) (*EventStats, error)
	PruneEvents(ctx context.Context, before time.Time) (int, error)
	Close() error
}
