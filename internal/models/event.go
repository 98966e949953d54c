package models

// EventType discriminates realtime task events.
type EventType string

const (
	EventCreate   EventType = "CREATE"
	EventUpdate   EventType = "UPDATE"
	EventDelete   EventType = "DELETE"
	EventSnapshot EventType = "SNAPSHOT"
)

// Event is the realtime payload pushed to connected clients. Every mutation
// produces single-entity events (CREATE/UPDATE carry Task, DELETE carries
// ID); SNAPSHOT carries the full list and is sent only on subscribe or when
// a client asks to resync. Owner scopes delivery and is never serialized.
type Event struct {
	Type  EventType `json:"type"`
	Task  *Task     `json:"task,omitempty"`
	ID    string    `json:"id,omitempty"`
	Tasks []*Task   `json:"tasks,omitempty"`
	Owner string    `json:"-"`
}
