package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Question is one entry in a room's student question queue. Removal matches
// on exact (email, value).
type Question struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Room is the in-memory presence and fan-out hub for one lesson. All
// mutations serialise on the room lock; chats are accessed only under it.
type Room struct {
	mu sync.Mutex

	name      string
	members   []*Member           // one entry per email
	owners    []*Member           // subset of members
	sockets   map[string][]Socket // email -> all live sockets
	chats     map[string]*Chat    // fully-qualified name -> chat
	groups    json.RawMessage     // breakout configuration, broadcast verbatim
	questions []Question
	startTime time.Time
	destroyed bool

	maxChatMessages int
}

// NewRoom builds an empty room for a lesson.
func NewRoom(name string, maxChatMessages int) *Room {
	return &Room{
		name:            name,
		sockets:         make(map[string][]Socket),
		chats:           make(map[string]*Chat),
		startTime:       time.Now(),
		maxChatMessages: maxChatMessages,
	}
}

// Name returns the "<namespaceTitle>/<lessonTitle>" identity.
func (r *Room) Name() string { return r.name }

// StartTime returns when the room came alive.
func (r *Room) StartTime() time.Time { return r.startTime }

// emitToEmailLocked delivers an event to every socket of an email. Caller
// holds r.mu. Dropped writes are tolerated.
func (r *Room) emitToEmailLocked(email, event string, payload interface{}) {
	for _, s := range r.sockets[email] {
		if err := s.Emit(event, payload); err != nil {
			logrus.Debugf("room %s: emit %s to %s dropped: %v", r.name, event, email, err)
		}
	}
}

// emitToAllLocked delivers an event to every socket in the room.
func (r *Room) emitToAllLocked(event string, payload interface{}) {
	for email := range r.sockets {
		r.emitToEmailLocked(email, event, payload)
	}
}

// emitToOwnersLocked delivers an event to every owner socket.
func (r *Room) emitToOwnersLocked(event string, payload interface{}) {
	for _, o := range r.owners {
		r.emitToEmailLocked(o.Email, event, payload)
	}
}

func (r *Room) rosterLocked() []MemberView {
	out := make([]MemberView, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, m.Snapshot())
	}
	return out
}

func (r *Room) chatStatisticsLocked() []ChatStatistics {
	out := make([]ChatStatistics, 0, len(r.chats))
	for _, c := range r.chats {
		out = append(out, c.Statistics())
	}
	return out
}

// sendRoomStateLocked delivers the current room view to one socket:
// roster, chat statistics, breakout groups and the question queue.
func (r *Room) sendRoomStateLocked(to *Member) {
	emit := func(event string, payload interface{}) {
		if err := to.Socket.Emit(event, payload); err != nil {
			logrus.Debugf("room %s: state delivery %s to %s dropped: %v", r.name, event, to.Email, err)
		}
	}
	emit(EventUserList, map[string]interface{}{"members": r.rosterLocked()})
	emit(EventChatStatistics, map[string]interface{}{"statistics": r.chatStatisticsLocked()})
	if r.groups != nil {
		emit(EventCreatedGroups, map[string]interface{}{"groups": r.groups})
	}
	emit(EventQueueQuestions, map[string]interface{}{"questions": r.questionsLocked()})
}

func (r *Room) questionsLocked() []Question {
	out := make([]Question, len(r.questions))
	copy(out, r.questions)
	return out
}

// Join attaches a member. The first socket for an email broadcasts
// user_joins; further sockets of the same email mirror-join: channels are
// re-joined on the new socket, per-chat state is re-delivered, and no
// presence broadcast is emitted.
func (r *Room) Join(m *Member) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return
	}

	_, present := r.sockets[m.Email]
	r.sockets[m.Email] = append(r.sockets[m.Email], m.Socket)

	if present {
		// Mirror join.
		for _, c := range r.chats {
			c.MirrorJoin(m)
		}
		r.sendRoomStateLocked(m)
		logrus.Debugf("room %s: mirror join for %s", r.name, m.Email)
		return
	}

	r.members = append(r.members, m)
	if m.Owner {
		r.owners = append(r.owners, m)
	}
	r.emitToAllLocked(EventUserJoins, map[string]interface{}{"member": m.Snapshot()})
	r.sendRoomStateLocked(m)
	logrus.Debugf("room %s: %s joined (%d members)", r.name, m.Email, len(r.members))
}

// Leave detaches one socket. Only when the last socket of an email is gone
// does the member actually leave: chats are left, the exit is stamped, and
// user_leaves is broadcast. Returns true when the room became empty.
func (r *Room) Leave(m *Member) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return true
	}

	socks := r.sockets[m.Email]
	for i, s := range socks {
		if s.ID() == m.Socket.ID() {
			socks = append(socks[:i], socks[i+1:]...)
			break
		}
	}
	if len(socks) > 0 {
		r.sockets[m.Email] = socks
		return false
	}
	delete(r.sockets, m.Email)

	for i, existing := range r.members {
		if existing.Email == m.Email {
			r.members = append(r.members[:i], r.members[i+1:]...)
			break
		}
	}
	for i, o := range r.owners {
		if o.Email == m.Email {
			r.owners = append(r.owners[:i], r.owners[i+1:]...)
			break
		}
	}
	for _, c := range r.chats {
		c.Leave(m)
	}
	m.MarkExit()
	r.emitToAllLocked(EventUserLeaves, map[string]interface{}{"member": m.Snapshot()})
	logrus.Debugf("room %s: %s left (%d members)", r.name, m.Email, len(r.members))

	return len(r.members) == 0
}

// anonymise overwrites identifying fields when the payload asks for it.
func anonymise(data map[string]interface{}) map[string]interface{} {
	anon, _ := data["anonymous"].(bool)
	if !anon {
		return data
	}
	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		out[k] = v
	}
	out["email"] = "anonymous"
	out["name"] = "anonymous"
	return out
}

// EmitToMembers fans an event out to the whole room, sender included.
func (r *Room) EmitToMembers(event string, data map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return
	}
	r.emitToAllLocked(event, anonymise(data))
}

// EmitToOwners fans an event out to the owners sub-channel and echoes it to
// the sender.
func (r *Room) EmitToOwners(sender *Member, event string, data map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return
	}
	payload := anonymise(data)
	r.emitToOwnersLocked(event, payload)
	if sender != nil && !sender.Owner {
		r.emitToEmailLocked(sender.Email, event, payload)
	}
}

// EmitToEmail delivers an event to every socket of one user.
func (r *Room) EmitToEmail(email, event string, data interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return
	}
	r.emitToEmailLocked(email, event, data)
}

// EmitProgress reports a member's lesson progress to the owners.
func (r *Room) EmitProgress(progress float64, m *Member) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return
	}
	r.emitToOwnersLocked(EventProgress, map[string]interface{}{
		"email":    m.Email,
		"progress": progress,
	})
}

// CreateGroups replaces the breakout configuration and broadcasts it.
func (r *Room) CreateGroups(groups json.RawMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return
	}
	r.groups = groups
	r.emitToAllLocked(EventCreatedGroups, map[string]interface{}{"groups": groups})
}

// DeleteGroups clears the breakout configuration and broadcasts the removal.
func (r *Room) DeleteGroups() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return
	}
	r.groups = nil
	r.emitToAllLocked(EventDeletedGroups, map[string]interface{}{})
}

// AddQuestion appends to the question queue and broadcasts the new list.
func (r *Room) AddQuestion(q Question) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return
	}
	r.questions = append(r.questions, q)
	r.emitToAllLocked(EventQueueQuestions, map[string]interface{}{"questions": r.questionsLocked()})
}

// RemoveQuestion drops the first exact (email, value) match and broadcasts
// the new list.
func (r *Room) RemoveQuestion(q Question) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return
	}
	for i, existing := range r.questions {
		if existing.Email == q.Email && existing.Value == q.Value {
			r.questions = append(r.questions[:i], r.questions[i+1:]...)
			break
		}
	}
	r.emitToAllLocked(EventQueueQuestions, map[string]interface{}{"questions": r.questionsLocked()})
}

// qualifyChatName builds "<roomName>:<localName>".
func (r *Room) qualifyChatName(localName string) string {
	return r.name + ":" + localName
}

// JoinChat adds the member to a chat, creating it on first use.
func (r *Room) JoinChat(localName string, m *Member) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return
	}
	name := r.qualifyChatName(localName)
	c, ok := r.chats[name]
	if !ok {
		c = newChat(name, r.maxChatMessages, r.emitToEmailLocked)
		r.chats[name] = c
	}
	c.Join(m)
}

// LeaveChat removes the member from a chat.
func (r *Room) LeaveChat(localName string, m *Member) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return
	}
	if c, ok := r.chats[r.qualifyChatName(localName)]; ok {
		c.Leave(m)
	}
}

// SendChatMessage routes a message into its chat and then pushes refreshed
// chat statistics to the whole room.
func (r *Room) SendChatMessage(localName string, msg ChatMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return
	}
	c, ok := r.chats[r.qualifyChatName(localName)]
	if !ok {
		logrus.Warnf("room %s: message for unknown chat %q dropped", r.name, localName)
		return
	}
	c.Send(msg)
	r.emitToAllLocked(EventChatStatistics, map[string]interface{}{"statistics": r.chatStatisticsLocked()})
}

// CloseChatForAll tears a chat down for every member and clears its history.
func (r *Room) CloseChatForAll(localName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return
	}
	if c, ok := r.chats[r.qualifyChatName(localName)]; ok {
		c.CloseForAll()
	}
}

// FindMemberByEmail returns the first member with the given email.
func (r *Room) FindMemberByEmail(email string) (*Member, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.members {
		if m.Email == email {
			return m, true
		}
	}
	return nil, false
}

// MemberCount returns the number of distinct present users.
func (r *Room) MemberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// OwnerCount returns the number of present owners.
func (r *Room) OwnerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.owners)
}

// Roster returns the presence snapshot of the room.
func (r *Room) Roster() []MemberView {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rosterLocked()
}

// ChatStatistics summarises every chat in the room.
func (r *Room) ChatStatistics() []ChatStatistics {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.chatStatisticsLocked()
}

// markDestroyed flips the room into its terminal state; subsequent
// operations become safe no-ops.
func (r *Room) markDestroyed() {
	r.mu.Lock()
	r.destroyed = true
	r.mu.Unlock()
}

// Destroyed reports whether the room has been torn down.
func (r *Room) Destroyed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.destroyed
}
