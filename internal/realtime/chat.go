package realtime

import (
	"time"

	"github.com/sirupsen/logrus"

	"classhub/pkg/models"
)

// DefaultMaxMessages bounds chat scrollback per chat.
const DefaultMaxMessages = 250

// ChatMessage is one canonical chat entry. History always stores the
// canonical form; anonymity redaction happens per viewer at fan-out time.
type ChatMessage struct {
	Chatroom    string    `json:"chatroom"`
	Body        string    `json:"msg"`
	AuthorName  string    `json:"name"`
	AuthorEmail string    `json:"email"`
	Avatar      string    `json:"avatar"`
	Anonymous   bool      `json:"anonymous"`
	Timestamp   time.Time `json:"timestamp"`
}

// project returns the message as the viewer may see it: owners get the
// canonical form, students get anonymous entries redacted.
func (m ChatMessage) project(viewerIsOwner bool) ChatMessage {
	if !m.Anonymous || viewerIsOwner {
		return m
	}
	out := m
	out.AuthorName = "Anonymous"
	out.AuthorEmail = "anonymous"
	out.Avatar = models.DefaultAvatar
	return out
}

// ChatStatistics is the per-chat summary broadcast to the room.
type ChatStatistics struct {
	Name         string `json:"name"`
	MemberCount  int    `json:"memberCount"`
	MessageCount int    `json:"messageCount"`
}

// emitFunc delivers an event to every live socket of one email. Supplied by
// the owning room so chat fan-out reaches mirror sockets too.
type emitFunc func(email, event string, payload interface{})

// Chat is one named message stream inside a Room. All methods run under the
// owning room's lock; Chat carries no lock of its own.
type Chat struct {
	name        string // fully qualified "<roomName>:<localName>"
	maxMessages int
	messages    []ChatMessage
	members     []*Member // deduped by email
	emit        emitFunc
}

// newChat builds an empty chat with the given fully-qualified name.
func newChat(name string, maxMessages int, emit emitFunc) *Chat {
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	return &Chat{name: name, maxMessages: maxMessages, emit: emit}
}

// Name returns the fully qualified chat name.
func (c *Chat) Name() string { return c.name }

// Statistics summarises the chat.
func (c *Chat) Statistics() ChatStatistics {
	return ChatStatistics{
		Name:         c.name,
		MemberCount:  len(c.members),
		MessageCount: len(c.messages),
	}
}

func (c *Chat) hasMember(email string) bool {
	for _, m := range c.members {
		if m.Email == email {
			return true
		}
	}
	return false
}

// roster returns the member views of everyone in the chat.
func (c *Chat) roster() []MemberView {
	out := make([]MemberView, 0, len(c.members))
	for _, m := range c.members {
		out = append(out, m.Snapshot())
	}
	return out
}

// historyFor projects the scrollback for a viewer role.
func (c *Chat) historyFor(viewerIsOwner bool) []ChatMessage {
	out := make([]ChatMessage, 0, len(c.messages))
	for _, msg := range c.messages {
		out = append(out, msg.project(viewerIsOwner))
	}
	return out
}

// deliverState sends history plus roster to one specific socket, projected
// for the receiving member's role.
func (c *Chat) deliverState(to *Member) {
	payload := map[string]interface{}{
		"chatroom": c.name,
		"messages": c.historyFor(to.Owner),
		"members":  c.roster(),
	}
	if err := to.Socket.Emit(EventChatHistory, payload); err != nil {
		logrus.Warnf("chat %s: history delivery to %s failed: %v", c.name, to.Email, err)
	}
}

// Join adds a member. A join by an email already present is a mirror-join:
// state is re-delivered to the new socket, no broadcast is emitted, and the
// roster gains no duplicate.
func (c *Chat) Join(m *Member) {
	if c.hasMember(m.Email) {
		c.deliverState(m)
		return
	}

	joined := map[string]interface{}{
		"chatroom": c.name,
		"member":   m.Snapshot(),
	}
	for _, existing := range c.members {
		c.emit(existing.Email, EventMemberJoinedChat, joined)
	}

	c.members = append(c.members, m)
	c.deliverState(m)
}

// MirrorJoin re-delivers chat state to a new socket of an existing member
// through a dedicated mirror_join frame.
func (c *Chat) MirrorJoin(m *Member) {
	if !c.hasMember(m.Email) {
		return
	}
	payload := map[string]interface{}{
		"chatroom": c.name,
		"messages": c.historyFor(m.Owner),
		"members":  c.roster(),
	}
	if err := m.Socket.Emit(EventMirrorJoin, payload); err != nil {
		logrus.Warnf("chat %s: mirror delivery to %s failed: %v", c.name, m.Email, err)
	}
}

// Leave broadcasts the departure, then removes the member's email from the
// roster.
func (c *Chat) Leave(m *Member) {
	if !c.hasMember(m.Email) {
		return
	}
	left := map[string]interface{}{
		"chatroom": c.name,
		"member":   m.Snapshot(),
	}
	for _, existing := range c.members {
		c.emit(existing.Email, EventMemberLeftChat, left)
	}
	for i := len(c.members) - 1; i >= 0; i-- {
		if c.members[i].Email == m.Email {
			c.members = append(c.members[:i], c.members[i+1:]...)
		}
	}
}

// Send fans a message out with per-viewer redaction, then appends the
// canonical form to history so late-joining sockets still see it. A failed
// transport write never aborts the append.
func (c *Chat) Send(msg ChatMessage) {
	msg.Chatroom = c.name
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	for _, member := range c.members {
		c.emit(member.Email, EventChatMessage, msg.project(member.Owner))
	}

	c.messages = append(c.messages, msg)
	if len(c.messages) > c.maxMessages {
		c.messages = c.messages[1:]
	}
}

// CloseForAll broadcasts a closure notice, then clears roster and history.
// Used by instructors tearing down breakout chats.
func (c *Chat) CloseForAll() {
	notice := map[string]interface{}{"chatroom": c.name}
	for _, member := range c.members {
		c.emit(member.Email, EventClosedChat, notice)
	}
	c.members = nil
	c.messages = nil
}

// MessageCount returns the current history length.
func (c *Chat) MessageCount() int { return len(c.messages) }

// MemberCount returns the current roster size.
func (c *Chat) MemberCount() int { return len(c.members) }
