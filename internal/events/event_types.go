package events

import "time"

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventUserRegistered EventType = "user_registered"
	EventUserLoggedIn   EventType = "user_logged_in"
	EventUserLoggedOut  EventType = "user_logged_out"
	EventTaskCreated    EventType = "task_created"
	EventTaskUpdated    EventType = "task_updated"
	EventTaskDeleted    EventType = "task_deleted"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	ActorID   string      `json:"actor_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// LoginPayload accompanies EventUserLoggedIn.
type LoginPayload struct {
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
	// Cached is false for degraded logins where the token store was down.
	Cached bool `json:"cached"`
}

// TaskPayload accompanies the task events.
type TaskPayload struct {
	TaskID string `json:"task_id"`
	Status string `json:"status,omitempty"`
}
