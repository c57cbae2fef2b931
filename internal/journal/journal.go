// Package journal
package journal

import "time"

// Event represents a journaled run event. Events double as notification
// payloads, so Data must stay JSON-friendly.
type Event struct {
	Time        time.Time      `json:"time"`
	Type        string         `json:"type"` // e.g., "order", "warning", "error"
	Description string         `json:"description"`
	Data        map[string]any `json:"data,omitempty"`
}

// New stamps an event with the current UTC time.
func New(eventType, description string, data map[string]any) Event {
	return Event{
		Time:        time.Now().UTC(),
		Type:        eventType,
		Description: description,
		Data:        data,
	}
}
