package models

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"
)

// CollabDocRecord is the persisted form of one collaborative document,
// keyed by (component, namespace, lesson). Steps are stored merged and
// compressed; Users holds the persistent ids of users active at save time.
type CollabDocRecord struct {
	ComponentID string          `json:"component_id" db:"component_id"`
	NamespaceID string          `json:"namespace_id" db:"namespace_id"`
	LessonID    string          `json:"lesson_id" db:"lesson_id"`
	Version     int             `json:"version" db:"version"`
	Doc         json.RawMessage `json:"doc" db:"doc"`
	Comments    json.RawMessage `json:"comments" db:"comments"`
	Steps       []byte          `json:"steps" db:"steps"`
	Users       []string        `json:"users" db:"users"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// docIDPattern splits "<namespaceID>-<lessonID>-<componentID>". The component
// part is allowed to contain further dashes.
var docIDPattern = regexp.MustCompile(`^([^-]+)-([^-]+)-([\s\S]+?)$`)

// DocID builds the in-memory instance id for a document.
func DocID(namespaceID, lessonID, componentID string) string {
	return namespaceID + "-" + lessonID + "-" + componentID
}

// ParseDocID splits an instance id back into its three parts.
func ParseDocID(id string) (namespaceID, lessonID, componentID string, err error) {
	m := docIDPattern.FindStringSubmatch(id)
	if m == nil {
		return "", "", "", fmt.Errorf("malformed document id %q", id)
	}
	return m[1], m[2], m[3], nil
}
