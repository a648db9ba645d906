// Package store persists per-embed-code session state: the backend-issued
// session id and the greeting rotation index. It is the widget's stand-in
// for browser local storage, so every operation fails soft — a widget with
// no working storage still chats, it just loses greeting variety and
// session continuity across restarts.
package store

// CurrentVersion is the persisted format version. Records with any other
// version are treated as corrupt and replaced with a fresh state.
const CurrentVersion = 1

// State is the session state persisted per embed code id.
type State struct {
	Version       int    `json:"version"`
	SessionID     string `json:"session_id,omitempty"`
	GreetingIndex int    `json:"greeting_index"`
}

// Fresh returns a zero-valued state at the current version.
func Fresh() State {
	return State{Version: CurrentVersion}
}

// Store loads and saves session state keyed by embed code id.
//
// Load returning an error means "no usable persisted state"; callers are
// expected to continue with Fresh() rather than surface the failure.
// Save is best-effort: a failure only degrades persistence, never chat.
type Store interface {
	Load(codeID string) (State, error)
	Save(codeID string, st State) error
}
