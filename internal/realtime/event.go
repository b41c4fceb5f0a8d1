// Package realtime carries committed row changes from the store to subscribers.
package realtime

import (
	"slices"
	"time"
)

// EventType is the kind of row change.
type EventType string

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
)

// Event is one committed row change.
type Event struct {
	Table     string         `json:"table"`
	Type      EventType      `json:"type"`
	New       map[string]any `json:"new,omitempty"`
	Old       map[string]any `json:"old,omitempty"`
	Timestamp time.Time      `json:"commit_timestamp"`
}

// matches reports whether e is of table and one of types. No types means any.
func (e Event) matches(table string, types []EventType) bool {
	if e.Table != table {
		return false
	}
	return len(types) == 0 || slices.Contains(types, e.Type)
}
