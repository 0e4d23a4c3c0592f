package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"classhub/internal/collab"
	"classhub/internal/realtime"
	"classhub/internal/repository"
	"classhub/pkg/logger"
	"classhub/pkg/models"
	"classhub/pkg/utils"
)

// Dispatcher translates inbound commands into calls on the room registry
// and the document instance registry. One connection state per socket; the
// per-connection read loop calls Handle sequentially, so conn needs no lock.
type Dispatcher struct {
	rooms      *realtime.RoomRegistry
	docs       *collab.Registry
	namespaces repository.NamespaceRepository
}

// NewDispatcher wires the dispatcher to its registries.
func NewDispatcher(rooms *realtime.RoomRegistry, docs *collab.Registry, namespaces repository.NamespaceRepository) *Dispatcher {
	return &Dispatcher{rooms: rooms, docs: docs, namespaces: namespaces}
}

// conn is the mutable per-connection state: the authenticated user, the
// member identity once joined, and the current room.
type conn struct {
	socket realtime.Socket
	user   *models.User
	member *realtime.Member
	room   *realtime.Room
}

func (d *Dispatcher) newConn(socket realtime.Socket, user *models.User) *conn {
	return &conn{socket: socket, user: user}
}

// sendError delivers a typed error reply to the originating socket and
// never crashes the connection.
func (c *conn) sendError(code, message string) {
	c.socket.Emit(eventError, models.ErrorReply{
		Code:      code,
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
}

// decode unmarshals a command payload, reporting malformed input to the
// sender. Returns false when the command must be aborted.
func (c *conn) decode(data json.RawMessage, dst interface{}) bool {
	if err := json.Unmarshal(data, dst); err != nil {
		c.sendError(models.ErrCodeBadRequest, "malformed payload: "+err.Error())
		return false
	}
	return true
}

// requireRoom aborts commands arriving before a successful join.
func (c *conn) requireRoom() bool {
	if c.room == nil || c.member == nil {
		c.sendError(models.ErrCodeBadRequest, "not joined to a room")
		return false
	}
	return true
}

// Handle routes one inbound frame. Unknown commands are reported, not
// fatal.
func (d *Dispatcher) Handle(ctx context.Context, c *conn, frame envelope) {
	switch frame.Type {
	case cmdJoin:
		d.handleJoin(ctx, c, frame.Data)
	case cmdProgress:
		d.handleProgress(c, frame.Data)
	case cmdEvent:
		d.handleEvent(c, frame.Data)
	case cmdJoinChat:
		d.handleJoinChat(c, frame.Data)
	case cmdLeaveChat:
		d.handleLeaveChat(c, frame.Data)
	case cmdCloseChat:
		d.handleCloseChat(c, frame.Data)
	case cmdChatMessage:
		d.handleChatMessage(c, frame.Data)
	case cmdChatInvitation:
		d.handleInvitation(c, frame.Data, realtime.EventChatInvitation)
	case cmdVideoInvitation:
		d.handleInvitation(c, frame.Data, realtime.EventVideoInvitation)
	case cmdCreateGroups:
		d.handleCreateGroups(c, frame.Data)
	case cmdDeleteGroups:
		d.handleDeleteGroups(c)
	case cmdQuestion:
		d.handleQuestion(c, frame.Data, true)
	case cmdRemoveQuestion:
		d.handleQuestion(c, frame.Data, false)
	case cmdConsole:
		d.handleConsole(c, frame.Data)
	case cmdCollabJoin:
		d.handleCollabJoin(ctx, c, frame.Data)
	case cmdCollabSend:
		d.handleCollabSend(ctx, c, frame.Data)
	case cmdCollabPoll:
		d.handleCollabPoll(ctx, c, frame.Data)
	case cmdLeave, cmdDisconnect:
		d.Disconnect(c)
	default:
		c.sendError(models.ErrCodeBadRequest, "unknown command: "+frame.Type)
	}
}

// handleJoin resolves owner status, attaches the member to the lesson room
// and records it as the connection's current room.
func (d *Dispatcher) handleJoin(ctx context.Context, c *conn, data json.RawMessage) {
	var p joinPayload
	if !c.decode(data, &p) {
		return
	}
	if utils.ValidateTitlePart(p.NamespaceName) != nil || utils.ValidateTitlePart(p.LessonName) != nil {
		c.sendError(models.ErrCodeValidation, "namespaceName and lessonName are required")
		return
	}
	if c.room != nil {
		// One room per connection; joining again moves the socket.
		d.Disconnect(c)
	}

	if _, err := d.namespaces.GetByTitle(ctx, p.NamespaceName); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			c.sendError(models.ErrCodeValidation, "unknown namespace: "+p.NamespaceName)
			return
		}
		// Transient lookup failures do not block the join.
		logrus.Warnf("dispatcher: namespace lookup for %s failed: %v", p.NamespaceName, err)
	}

	owner, err := d.namespaces.IsOwner(ctx, c.user.ID, p.NamespaceName)
	if err != nil {
		logrus.Warnf("dispatcher: owner check for %s in %s failed: %v", c.user.Email, p.NamespaceName, err)
		owner = false
	}
	if c.user.Admin {
		owner = true
	}

	name := models.RoomName(p.NamespaceName, p.LessonName)
	room := d.rooms.GetOrCreate(name)
	member := realtime.NewMember(c.user, owner, c.socket)
	room.Join(member)

	c.room = room
	c.member = member
	logger.WebSocket(name, "join", c.user.Email)
}

func (d *Dispatcher) handleProgress(c *conn, data json.RawMessage) {
	if !c.requireRoom() {
		return
	}
	var p progressPayload
	if !c.decode(data, &p) {
		return
	}
	if p.Progress < 0 || p.Progress > 1 {
		c.sendError(models.ErrCodeValidation, "progress must be within [0,1]")
		return
	}
	c.room.EmitProgress(p.Progress, c.member)
}

// handleEvent routes a free-form action to "members", "owners" or a single
// email. The payload's anonymous flag is honoured by the room emitters.
func (d *Dispatcher) handleEvent(c *conn, data json.RawMessage) {
	if !c.requireRoom() {
		return
	}
	var p eventPayload
	if !c.decode(data, &p) {
		return
	}
	if p.Data == nil {
		p.Data = map[string]interface{}{}
	}
	switch p.Target {
	case targetMembers:
		c.room.EmitToMembers(cmdEvent, p.Data)
	case targetOwners:
		c.room.EmitToOwners(c.member, cmdEvent, p.Data)
	case "":
		c.sendError(models.ErrCodeValidation, "event target is required")
	default:
		if utils.ValidateEmail(p.Target) != nil {
			c.sendError(models.ErrCodeValidation, "event target must be members, owners or an email")
			return
		}
		c.room.EmitToEmail(p.Target, cmdEvent, p.Data)
	}
}

func (d *Dispatcher) handleJoinChat(c *conn, data json.RawMessage) {
	if !c.requireRoom() {
		return
	}
	var p chatPayload
	if !c.decode(data, &p) {
		return
	}
	if utils.ValidateChatName(p.Chatroom) != nil {
		c.sendError(models.ErrCodeValidation, "invalid chat name")
		return
	}
	c.room.JoinChat(p.Chatroom, c.member)
}

func (d *Dispatcher) handleLeaveChat(c *conn, data json.RawMessage) {
	if !c.requireRoom() {
		return
	}
	var p chatPayload
	if !c.decode(data, &p) {
		return
	}
	c.room.LeaveChat(p.Chatroom, c.member)
}

func (d *Dispatcher) handleCloseChat(c *conn, data json.RawMessage) {
	if !c.requireRoom() {
		return
	}
	if !c.member.Owner {
		c.sendError(models.ErrCodeForbidden, "only instructors can close a chat")
		return
	}
	var p chatPayload
	if !c.decode(data, &p) {
		return
	}
	c.room.CloseChatForAll(p.Chatroom)
}

// handleChatMessage stamps the canonical author identity on the message
// before it enters the room; clients cannot spoof the sender.
func (d *Dispatcher) handleChatMessage(c *conn, data json.RawMessage) {
	if !c.requireRoom() {
		return
	}
	var msg realtime.ChatMessage
	if !c.decode(data, &msg) {
		return
	}
	if msg.Chatroom == "" {
		c.sendError(models.ErrCodeValidation, "chatroom is required")
		return
	}
	msg.AuthorEmail = c.member.Email
	msg.AuthorName = c.member.Name
	msg.Avatar = c.member.Avatar
	msg.Timestamp = time.Now()
	c.room.SendChatMessage(msg.Chatroom, msg)
}

// handleInvitation delivers a chat or video invitation to the first member
// with a matching email.
func (d *Dispatcher) handleInvitation(c *conn, data json.RawMessage, event string) {
	if !c.requireRoom() {
		return
	}
	var p invitationPayload
	if !c.decode(data, &p) {
		return
	}
	if _, ok := c.room.FindMemberByEmail(p.To); !ok {
		logrus.Debugf("dispatcher: %s for absent member %s dropped", event, p.To)
		return
	}
	if p.Data == nil {
		p.Data = map[string]interface{}{}
	}
	p.Data["from"] = c.member.Email
	c.room.EmitToEmail(p.To, event, p.Data)
}

func (d *Dispatcher) handleCreateGroups(c *conn, data json.RawMessage) {
	if !c.requireRoom() {
		return
	}
	if !c.member.Owner {
		c.sendError(models.ErrCodeForbidden, "only instructors can create groups")
		return
	}
	var p groupsPayload
	if !c.decode(data, &p) {
		return
	}
	c.room.CreateGroups(p.Groups)
}

func (d *Dispatcher) handleDeleteGroups(c *conn) {
	if !c.requireRoom() {
		return
	}
	if !c.member.Owner {
		c.sendError(models.ErrCodeForbidden, "only instructors can delete groups")
		return
	}
	c.room.DeleteGroups()
}

func (d *Dispatcher) handleQuestion(c *conn, data json.RawMessage, add bool) {
	if !c.requireRoom() {
		return
	}
	var p questionPayload
	if !c.decode(data, &p) {
		return
	}
	q := realtime.Question{
		Email: c.member.Email,
		Name:  c.member.Name,
		Value: p.Value,
	}
	if add {
		c.room.AddQuestion(q)
	} else {
		c.room.RemoveQuestion(q)
	}
}

// handleConsole broadcasts an instructor notice to the whole room.
func (d *Dispatcher) handleConsole(c *conn, data json.RawMessage) {
	if !c.requireRoom() {
		return
	}
	if !c.member.Owner {
		c.sendError(models.ErrCodeForbidden, "only instructors can broadcast notices")
		return
	}
	var p consolePayload
	if !c.decode(data, &p) {
		return
	}
	if p.Text == "" {
		c.sendError(models.ErrCodeValidation, "text is required")
		return
	}
	c.room.EmitToMembers(realtime.EventConsole, map[string]interface{}{
		"text": p.Text,
		"from": c.member.Name,
	})
}

// handleCollabJoin fetches or creates the document instance and replies
// with the full snapshot.
func (d *Dispatcher) handleCollabJoin(ctx context.Context, c *conn, data json.RawMessage) {
	if !c.requireRoom() {
		return
	}
	var p collabJoinPayload
	if !c.decode(data, &p) {
		return
	}

	inst, err := d.docs.GetInstance(ctx, p.DocID, c.member.Email, c.member.Name, c.member.PersistentID, p.Doc)
	if err != nil {
		d.replyCollabError(c, p.DocID, err)
		return
	}
	c.socket.Emit(eventCollabJoined, collabJoined{
		DocID:        p.DocID,
		JoinSnapshot: inst.Join(),
	})
}

// handleCollabSend applies the client batch: success is acknowledged to the
// sender and broadcast to every other member of the current room whose
// email is active on the instance.
func (d *Dispatcher) handleCollabSend(ctx context.Context, c *conn, data json.RawMessage) {
	if !c.requireRoom() {
		return
	}
	var p collabSendPayload
	if !c.decode(data, &p) {
		return
	}
	if p.Version < 0 {
		c.sendError(models.ErrCodeValidation, "version must be non-negative")
		return
	}

	inst, err := d.docs.GetInstance(ctx, p.DocID, c.member.Email, c.member.Name, c.member.PersistentID, nil)
	if err != nil {
		d.replyCollabError(c, p.DocID, err)
		return
	}

	result, err := inst.AddEvents(p.Version, p.Steps, p.Comment, p.ClientID)
	if err != nil {
		d.replyCollabError(c, p.DocID, err)
		return
	}
	if p.Cursor != nil {
		inst.UpdateCursor(p.ClientID, *p.Cursor)
	}

	c.socket.Emit(eventCollabSent, map[string]interface{}{
		"docID":          p.DocID,
		"version":        result.Version,
		"commentVersion": result.CommentVersion,
		"users":          result.UserCount,
	})

	clientIDs := make([]string, len(p.Steps))
	for i := range clientIDs {
		clientIDs[i] = p.ClientID
	}
	broadcast := collabBroadcast{
		DocID:          p.DocID,
		Version:        result.Version,
		Steps:          p.Steps,
		ClientIDs:      clientIDs,
		CommentEvents:  p.Comment,
		CommentVersion: result.CommentVersion,
		Users:          result.UserCount,
	}
	for _, email := range inst.ActiveEmails() {
		if email == c.member.Email {
			continue
		}
		c.room.EmitToEmail(email, eventCollabEvents, broadcast)
	}
}

// handleCollabPoll returns the catch-up diff, or stays silent when the
// client is already current.
func (d *Dispatcher) handleCollabPoll(ctx context.Context, c *conn, data json.RawMessage) {
	if !c.requireRoom() {
		return
	}
	var p collabPollPayload
	if !c.decode(data, &p) {
		return
	}
	if p.Version < 0 || p.CommentVersion < 0 || p.CursorVersion < 0 {
		c.sendError(models.ErrCodeValidation, "versions must be non-negative")
		return
	}

	inst, ok := d.docs.Lookup(p.DocID)
	if !ok {
		logrus.Debugf("dispatcher: poll for unloaded instance %s", p.DocID)
		return
	}
	diff, pending, err := inst.GetEvents(p.Version, p.CommentVersion, p.CursorVersion)
	if err != nil {
		d.replyCollabError(c, p.DocID, err)
		return
	}
	if !pending {
		return
	}
	c.socket.Emit(eventCollabPolled, map[string]interface{}{
		"docID": p.DocID,
		"diff":  diff,
	})
}

// replyCollabError maps core errors onto typed replies.
func (d *Dispatcher) replyCollabError(c *conn, docID string, err error) {
	switch {
	case errors.Is(err, models.ErrVersionConflict):
		c.sendError(models.ErrCodeConflict, err.Error())
	case errors.Is(err, models.ErrStepApply):
		c.sendError(models.ErrCodeConflict, err.Error())
	case errors.Is(err, models.ErrHistoryTruncated):
		c.sendError(models.ErrCodeConflict, err.Error())
	case errors.Is(err, models.ErrInvalidInput), errors.Is(err, models.ErrNotFound):
		c.sendError(models.ErrCodeValidation, err.Error())
	default:
		logrus.Errorf("dispatcher: collab operation on %s failed: %v", docID, err)
		c.sendError(models.ErrCodeInternal, "document operation failed")
	}
}

// Disconnect deactivates the member on every document instance and leaves
// the current room; the registry collects the room when it empties.
func (d *Dispatcher) Disconnect(c *conn) {
	if c.member != nil {
		d.docs.RemoveFromInstances(c.member.Email, c.member.Name)
	}
	if c.room != nil && c.member != nil {
		logger.WebSocket(c.room.Name(), "leave", c.member.Email)
		d.rooms.Leave(c.room, c.member)
	}
	c.room = nil
	c.member = nil
}
