package collab

import (
	"fmt"
	"sync"
	"time"

	"classhub/internal/ot"
	"classhub/pkg/models"
)

// MaxStepHistory caps the retained step tail per instance. Clients whose
// base version falls off the tail must do a full reload.
const MaxStepHistory = 10000

// instanceUser tracks one registered user of an instance. Active entries
// count towards userCount; persistent ids survive saves.
type instanceUser struct {
	Active       bool
	PersistentID string
}

// SaveFunc is called whenever an instance becomes dirty; it is expected to
// record the id and the highest version seen for the next periodic save.
type SaveFunc func(id string, version int)

// Instance is the in-memory authoritative copy of one collaboratively
// edited document. All exported methods serialise on the instance lock.
type Instance struct {
	mu sync.Mutex

	id         string
	doc        *ot.Doc
	version    int
	steps      []ot.Step
	comments   *Comments
	cursors    *Cursors
	users      map[string]*instanceUser
	userCount  int
	lastActive time.Time

	scheduleSave SaveFunc
}

// NewInstance builds a fresh instance around a seed document.
func NewInstance(id string, doc *ot.Doc, save SaveFunc) *Instance {
	if doc == nil {
		doc = ot.NewDefaultDoc()
	}
	return &Instance{
		id:           id,
		doc:          doc,
		comments:     NewComments(),
		cursors:      NewCursors(),
		users:        make(map[string]*instanceUser),
		lastActive:   time.Now(),
		scheduleSave: save,
	}
}

// RehydratedInstance rebuilds an instance from persisted state. Every
// persisted user entry is loaded, all of them inactive until re-registered.
func RehydratedInstance(id string, doc *ot.Doc, comments *Comments, steps []ot.Step, version int, persistedUsers []string, save SaveFunc) *Instance {
	inst := NewInstance(id, doc, save)
	inst.comments = comments
	inst.steps = steps
	inst.version = version
	for _, pid := range persistedUsers {
		inst.users[pid] = &instanceUser{Active: false, PersistentID: pid}
	}
	return inst
}

// ID returns the instance id.
func (i *Instance) ID() string { return i.id }

// Version returns the number of steps ever applied.
func (i *Instance) Version() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.version
}

// LastActive returns the eviction timestamp.
func (i *Instance) LastActive() time.Time {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.lastActive
}

// Touch refreshes the eviction timestamp.
func (i *Instance) Touch() {
	i.mu.Lock()
	i.lastActive = time.Now()
	i.mu.Unlock()
}

// AddResult is the successful outcome of AddEvents.
type AddResult struct {
	Version        int `json:"version"`
	CommentVersion int `json:"commentVersion"`
	UserCount      int `json:"users"`
}

// AddEvents applies a client batch: steps are re-applied sequentially to the
// authoritative document, tagged with the client id, appended to the step
// tail, and the composed mapping is pushed through comments and cursors.
// Nothing is applied when any step fails.
func (i *Instance) AddEvents(baseVersion int, steps []ot.Step, commentEvents []CommentEvent, clientID string) (*AddResult, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if baseVersion < 0 || baseVersion > i.version {
		return nil, fmt.Errorf("%w: base %d, current %d", models.ErrVersionConflict, baseVersion, i.version)
	}

	// Dry-run on a copy so a failing step leaves no partial application.
	doc := i.doc
	tagged := make([]ot.Step, 0, len(steps))
	for _, s := range steps {
		s.ClientID = clientID
		next, err := s.Apply(doc)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrStepApply, err)
		}
		doc = next
		tagged = append(tagged, s)
	}

	i.doc = doc
	i.steps = append(i.steps, tagged...)
	i.version += len(tagged)
	if len(i.steps) > MaxStepHistory {
		i.steps = append([]ot.Step(nil), i.steps[len(i.steps)-MaxStepHistory:]...)
	}

	if len(tagged) > 0 {
		mapping := ot.NewMapping(tagged)
		i.comments.MapThrough(mapping)
		i.cursors.MapThrough(mapping)
	}
	i.comments.Apply(commentEvents)

	i.lastActive = time.Now()
	if i.scheduleSave != nil && (len(tagged) > 0 || len(commentEvents) > 0) {
		i.scheduleSave(i.id, i.version)
	}

	return &AddResult{
		Version:        i.version,
		CommentVersion: i.comments.Version(),
		UserCount:      i.userCount,
	}, nil
}

// EventsDiff is the catch-up payload for a client that is behind.
type EventsDiff struct {
	Version        int                  `json:"version"`
	Steps          []ot.Step            `json:"steps,omitempty"`
	ClientIDs      []string             `json:"clientIDs,omitempty"`
	Comment        []CommentEvent       `json:"comment,omitempty"`
	CommentVersion int                  `json:"commentVersion"`
	Cursors        map[string]Selection `json:"cursors,omitempty"`
	CursorVersion  int                  `json:"cursorVersion"`
	Users          int                  `json:"users"`
}

// GetEvents returns everything the client has not seen yet, or false when
// it is already current. A base version that has fallen off the step tail
// yields an error: the client must reload the whole document.
func (i *Instance) GetEvents(baseVersion, baseCommentVersion, baseCursorVersion int) (*EventsDiff, bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if baseVersion < 0 || baseVersion > i.version {
		return nil, false, fmt.Errorf("%w: base %d, current %d", models.ErrVersionConflict, baseVersion, i.version)
	}
	behind := i.version - baseVersion
	if behind > len(i.steps) {
		return nil, false, models.ErrHistoryTruncated
	}

	diff := &EventsDiff{
		Version:        i.version,
		CommentVersion: i.comments.Version(),
		CursorVersion:  i.cursors.Version(),
		Users:          i.userCount,
	}
	if behind > 0 {
		tail := i.steps[len(i.steps)-behind:]
		diff.Steps = append([]ot.Step(nil), tail...)
		for _, s := range tail {
			diff.ClientIDs = append(diff.ClientIDs, s.ClientID)
		}
	}
	diff.Comment = i.comments.EventsAfter(baseCommentVersion)
	diff.Cursors = i.cursors.Get(baseCursorVersion)

	if len(diff.Steps) == 0 && len(diff.Comment) == 0 && diff.Cursors == nil {
		return nil, false, nil
	}
	return diff, true, nil
}

// UpdateCursor records a client selection.
func (i *Instance) UpdateCursor(clientID string, sel Selection) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.cursors.Update(clientID, sel)
	i.lastActive = time.Now()
}

// RegisterUser marks a user active on this instance. Re-registering an
// already-active email is a no-op apart from the cursor reset.
func (i *Instance) RegisterUser(email, display, persistentID string) {
	i.mu.Lock()
	defer i.mu.Unlock()

	u, ok := i.users[email]
	if !ok {
		u = &instanceUser{}
		i.users[email] = u
	}
	if !u.Active {
		u.Active = true
		i.userCount++
	}
	if persistentID != "" {
		u.PersistentID = persistentID
	}
	i.cursors.Remove(display)
	i.lastActive = time.Now()
}

// DeactivateUser clears a user's active flag and drops their cursor.
// It reports whether the user was active on this instance.
func (i *Instance) DeactivateUser(email, display string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	u, ok := i.users[email]
	if !ok || !u.Active {
		return false
	}
	u.Active = false
	if i.userCount > 0 {
		i.userCount--
	}
	i.cursors.Remove(display)
	return true
}

// ActiveEmails lists the emails currently active on the instance.
func (i *Instance) ActiveEmails() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	var out []string
	for email, u := range i.users {
		if u.Active {
			out = append(out, email)
		}
	}
	return out
}

// UserCount returns the number of active users.
func (i *Instance) UserCount() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.userCount
}

// JoinSnapshot is what a freshly joining client receives.
type JoinSnapshot struct {
	Doc            *ot.Doc   `json:"doc"`
	Version        int       `json:"version"`
	Comments       []Comment `json:"comments"`
	CommentVersion int       `json:"commentVersion"`
	Users          int       `json:"users"`
}

// Join returns the current document state for a new participant.
func (i *Instance) Join() *JoinSnapshot {
	i.mu.Lock()
	defer i.mu.Unlock()
	return &JoinSnapshot{
		Doc:            i.doc.Clone(),
		Version:        i.version,
		Comments:       i.comments.List(),
		CommentVersion: i.comments.Version(),
		Users:          i.userCount,
	}
}

// Export produces the persistable snapshot: serialised doc, the live
// comment array, the step tail merged per author run, and the persistent
// ids of currently-active users.
func (i *Instance) Export(merger ot.Merger) (*ExportedState, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	docJSON, err := i.doc.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("serialise doc: %w", err)
	}
	commentsJSON, err := i.comments.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("serialise comments: %w", err)
	}

	merged := ot.MergeSteps(i.steps, merger)

	var users []string
	for _, u := range i.users {
		if u.Active && u.PersistentID != "" {
			users = append(users, u.PersistentID)
		}
	}

	return &ExportedState{
		Doc:      docJSON,
		Comments: commentsJSON,
		Steps:    merged,
		Version:  i.version,
		Users:    users,
	}, nil
}

// ExportedState is the intermediate form handed to the document store.
type ExportedState struct {
	Doc      []byte
	Comments []byte
	Steps    []ot.Step
	Version  int
	Users    []string
}
