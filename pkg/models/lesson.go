package models

import "time"

// Namespace is a course: it owns lessons and has one or more instructor owners.
type Namespace struct {
	ID        string    `json:"id" db:"id"`
	Title     string    `json:"title" db:"title"`
	Slug      string    `json:"slug" db:"slug"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Lesson is an interactive page within a namespace; the smallest unit that
// has a live Room.
type Lesson struct {
	ID          string     `json:"id" db:"id"`
	NamespaceID string     `json:"namespace_id" db:"namespace_id"`
	Title       string     `json:"title" db:"title"`
	Active      bool       `json:"active" db:"active"`
	LockUntil   *time.Time `json:"lock_until,omitempty" db:"lock_until"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// RoomName builds the canonical room identity for a lesson.
func RoomName(namespaceTitle, lessonTitle string) string {
	return namespaceTitle + "/" + lessonTitle
}
