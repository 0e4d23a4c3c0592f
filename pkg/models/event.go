package models

import (
	"encoding/json"
	"time"
)

// EventType enumerates the scheduled work the background scheduler executes.
type EventType string

const (
	EventUnlockLesson       EventType = "unlock_lesson"
	EventSendEmail          EventType = "send_email"
	EventOverviewStatistics EventType = "overview_statistics"
)

// ScheduledEvent is one row of the persisted event log. Time is wall-clock
// milliseconds; an event is due when Time <= now and Done is false. Once
// Done is set the event is never reconsidered.
type ScheduledEvent struct {
	ID      string          `json:"id" db:"id"`
	Type    EventType       `json:"type" db:"type"`
	Time    int64           `json:"time" db:"time"`
	Data    json.RawMessage `json:"data" db:"data"`
	Done    bool            `json:"done" db:"done"`
	User    string          `json:"user" db:"user_id"`
	SavedAt time.Time       `json:"saved_at" db:"saved_at"`
}

// Due reports whether the event should be picked up at the given instant.
func (e *ScheduledEvent) Due(now time.Time) bool {
	return !e.Done && e.Time < now.UnixMilli()
}

// UnlockLessonData is the payload of an unlock_lesson event.
type UnlockLessonData struct {
	NamespaceName string `json:"namespaceName"`
	LessonName    string `json:"lessonName"`
}

// SendEmailData is the payload of a send_email event. It is handed to the
// mail collaborator verbatim; delivery retries are the mail layer's problem.
type SendEmailData struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
	HTML    string `json:"html,omitempty"`
}
