package websocket

import (
	"encoding/json"

	"classhub/internal/collab"
	"classhub/internal/ot"
)

// Inbound command names. Outbound event names live in the realtime package
// since the core emits them directly.
const (
	cmdJoin            = "join"
	cmdProgress        = "progress"
	cmdEvent           = "event"
	cmdJoinChat        = "join_chat"
	cmdLeaveChat       = "leave_chat"
	cmdCloseChat       = "close_chat"
	cmdChatMessage     = "chat_message"
	cmdChatInvitation  = "chat_invitation"
	cmdVideoInvitation = "video_invitation"
	cmdCreateGroups    = "create_groups"
	cmdDeleteGroups    = "delete_groups"
	cmdQuestion        = "question"
	cmdRemoveQuestion  = "remove_question"
	cmdConsole         = "console"
	cmdCollabJoin      = "join_collaborative_editing"
	cmdCollabSend      = "send_collaborative_editing_events"
	cmdCollabPoll      = "poll_collaborative_editing_events"
	cmdLeave           = "leave"
	cmdDisconnect      = "disconnect"
)

// Outbound reply names owned by the transport layer.
const (
	eventError        = "error"
	eventCollabJoined = "joined_collaborative_editing"
	eventCollabSent   = "sent_collaborative_editing_events"
	eventCollabEvents = "collaborative_editing_events"
	eventCollabPolled = "polled_collaborative_editing_events"
)

// Routing targets for the generic event command.
const (
	targetMembers = "members"
	targetOwners  = "owners"
)

type joinPayload struct {
	NamespaceName string `json:"namespaceName"`
	LessonName    string `json:"lessonName"`
}

type progressPayload struct {
	Progress float64 `json:"progress"`
}

// eventPayload routes a free-form action to a room channel. Target is
// "members", "owners" or a member email.
type eventPayload struct {
	Target string                 `json:"target"`
	Data   map[string]interface{} `json:"data"`
}

type chatPayload struct {
	Chatroom string `json:"chatroom"`
}

type invitationPayload struct {
	To   string                 `json:"to"`
	Data map[string]interface{} `json:"data"`
}

type groupsPayload struct {
	Groups json.RawMessage `json:"groups"`
}

type questionPayload struct {
	Value string `json:"value"`
}

type consolePayload struct {
	Text string `json:"text"`
}

type collabJoinPayload struct {
	DocID string `json:"docID"`
	// Doc seeds a fresh instance when nothing is persisted yet.
	Doc json.RawMessage `json:"doc,omitempty"`
}

type collabSendPayload struct {
	DocID    string                `json:"docID"`
	Version  int                   `json:"version"`
	Steps    []ot.Step             `json:"steps"`
	Comment  []collab.CommentEvent `json:"comment"`
	ClientID string                `json:"clientID"`
	Cursor   *collab.Selection     `json:"cursor,omitempty"`
}

type collabPollPayload struct {
	DocID          string `json:"docID"`
	Version        int    `json:"version"`
	CommentVersion int    `json:"commentVersion"`
	CursorVersion  int    `json:"cursorVersion"`
}

// collabBroadcast is the apply result pushed to every other active member
// of an instance after a successful batch.
type collabBroadcast struct {
	DocID          string                `json:"docID"`
	Version        int                   `json:"version"`
	Steps          []ot.Step             `json:"steps"`
	ClientIDs      []string              `json:"clientIDs"`
	CommentEvents  []collab.CommentEvent `json:"comment,omitempty"`
	CommentVersion int                   `json:"commentVersion"`
	Users          int                   `json:"users"`
}

// collabJoined decorates the instance snapshot with its id so clients with
// several open documents can route it.
type collabJoined struct {
	DocID string `json:"docID"`
	*collab.JoinSnapshot
}
