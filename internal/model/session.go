package model

import "time"

// Session status constants.
const (
	SessionLoaded   = "loaded"
	SessionUnloaded = "unloaded"
)

// Lifecycle event kinds written to the journal.
const (
	EventModelLoaded    = "model_loaded"
	EventModelUnloaded  = "model_unloaded"
	EventGlobalTeardown = "global_teardown"
)

// Session describes one loaded model: the autograd functions it registered
// and when it was loaded.
type Session struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Status     string     `json:"status"`
	Functions  []string   `json:"functions"`
	LoadedAt   time.Time  `json:"loaded_at"`
	UnloadedAt *time.Time `json:"unloaded_at,omitempty"`
}

// LifecycleEvent is one journal entry recording a model load or a registry
// teardown.
type LifecycleEvent struct {
	ID              string    `json:"id"`
	Kind            string    `json:"kind"`
	SessionID       string    `json:"session_id,omitempty"`
	Phase           string    `json:"phase,omitempty"`
	FromState       string    `json:"from_state"`
	ToState         string    `json:"to_state"`
	Released        int       `json:"released"`
	ContextsDropped int       `json:"contexts_dropped"`
	CreatedAt       time.Time `json:"created_at"`
}

// validKinds lists every event kind the journal accepts.
var validKinds = map[string]bool{
	EventModelLoaded:    true,
	EventModelUnloaded:  true,
	EventGlobalTeardown: true,
}

// ValidKind reports whether kind is a known lifecycle event kind.
func ValidKind(kind string) bool {
	return validKinds[kind]
}
