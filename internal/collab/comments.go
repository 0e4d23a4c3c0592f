// Package collab holds the in-memory collaborative document core: comment
// and cursor bookkeeping, the authoritative document instance, and the
// process-wide instance registry with eviction and periodic persistence.
package collab

import (
	"encoding/json"
	"fmt"

	"classhub/internal/ot"
)

// Comment is one annotation anchored to a document range.
type Comment struct {
	ID   string `json:"id"`
	From int    `json:"from"`
	To   int    `json:"to"`
	Text string `json:"text"`
}

// CommentEvent is one client-issued mutation of the comment set.
type CommentEvent struct {
	Type string `json:"type"` // "create" or "delete"
	ID   string `json:"id"`
	From int    `json:"from,omitempty"`
	To   int    `json:"to,omitempty"`
	Text string `json:"text,omitempty"`
}

const (
	CommentCreate = "create"
	CommentDelete = "delete"
)

// Comments tracks the live comment set plus an append-only event log whose
// length is the comment version.
type Comments struct {
	comments []Comment
	events   []CommentEvent
}

// NewComments builds an empty comment set.
func NewComments() *Comments {
	return &Comments{}
}

// CommentsFromJSON rebuilds the live set from a persisted array. The event
// log restarts empty: versions are per process lifetime.
func CommentsFromJSON(raw json.RawMessage) (*Comments, error) {
	c := NewComments()
	if len(raw) == 0 {
		return c, nil
	}
	if err := json.Unmarshal(raw, &c.comments); err != nil {
		return nil, fmt.Errorf("decode comments: %w", err)
	}
	return c, nil
}

// Version is the number of events ever applied.
func (c *Comments) Version() int {
	return len(c.events)
}

// List returns a copy of the live comments.
func (c *Comments) List() []Comment {
	out := make([]Comment, len(c.comments))
	copy(out, c.comments)
	return out
}

// MarshalJSON persists only the live comment array.
func (c *Comments) MarshalJSON() ([]byte, error) {
	if c.comments == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(c.comments)
}

// Create appends a comment and records a create event.
func (c *Comments) Create(cm Comment) {
	c.comments = append(c.comments, cm)
	c.events = append(c.events, CommentEvent{Type: CommentCreate, ID: cm.ID})
}

// Delete removes the comment with the given id and records a delete event.
// Deleting an unknown id still records the event so clients converge.
func (c *Comments) Delete(id string) {
	for i, cm := range c.comments {
		if cm.ID == id {
			c.comments = append(c.comments[:i], c.comments[i+1:]...)
			break
		}
	}
	c.events = append(c.events, CommentEvent{Type: CommentDelete, ID: id})
}

// Apply executes a batch of client events in order.
func (c *Comments) Apply(events []CommentEvent) {
	for _, ev := range events {
		switch ev.Type {
		case CommentCreate:
			c.Create(Comment{ID: ev.ID, From: ev.From, To: ev.To, Text: ev.Text})
		case CommentDelete:
			c.Delete(ev.ID)
		}
	}
}

// MapThrough rewrites every stored range through the mapping, walking
// back-to-front so removals do not disturb iteration. Comments whose mapped
// range collapses are dropped without synthesising a delete event.
func (c *Comments) MapThrough(m ot.Mapping) {
	for i := len(c.comments) - 1; i >= 0; i-- {
		from := m.Map(c.comments[i].From, 1)
		to := m.Map(c.comments[i].To, -1)
		if from >= to {
			c.comments = append(c.comments[:i], c.comments[i+1:]...)
			continue
		}
		c.comments[i].From = from
		c.comments[i].To = to
	}
}

// EventsAfter replays the event log from start. Deletes are emitted
// verbatim; creates are resolved against the current live set, so a comment
// created and deleted inside the window is omitted entirely.
func (c *Comments) EventsAfter(start int) []CommentEvent {
	if start < 0 {
		start = 0
	}
	if start >= len(c.events) {
		return nil
	}
	var out []CommentEvent
	for _, ev := range c.events[start:] {
		if ev.Type == CommentDelete {
			out = append(out, ev)
			continue
		}
		if live, ok := c.find(ev.ID); ok {
			out = append(out, CommentEvent{
				Type: CommentCreate,
				ID:   live.ID,
				From: live.From,
				To:   live.To,
				Text: live.Text,
			})
		}
	}
	return out
}

func (c *Comments) find(id string) (Comment, bool) {
	for _, cm := range c.comments {
		if cm.ID == id {
			return cm, true
		}
	}
	return Comment{}, false
}
