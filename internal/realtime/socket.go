// Package realtime holds the in-memory presence core: members, chats,
// rooms and the process-wide room registry. It is transport-agnostic; the
// websocket layer plugs in through the Socket interface.
package realtime

// Socket is one live client transport. Emit must never block the caller:
// implementations buffer writes and drop the connection on overflow. A
// write to a disconnected socket is silently tolerated.
type Socket interface {
	// ID identifies the socket (not the user) for the lifetime of the
	// connection.
	ID() string
	// Emit sends a named event with a JSON-serialisable payload.
	Emit(event string, payload interface{}) error
	// Close tears the transport down.
	Close() error
}

// Wire event names shared by the realtime core and the dispatcher.
const (
	EventUserJoins  = "user_joins"
	EventUserLeaves = "user_leaves"
	EventUserList   = "userlist"
	EventConsole    = "console"
	EventProgress   = "progress"

	EventChatMessage         = "chat_message"
	EventChatHistory         = "chat_history"
	EventChatStatistics      = "chat_statistics"
	EventMemberJoinedChat    = "member_has_joined_chat"
	EventMemberLeftChat      = "member_has_left_chat"
	EventClosedChat          = "closed_chat"
	EventMirrorJoin          = "mirror_join"
	EventChatInvitation      = "chat_invitation"
	EventVideoInvitation     = "video_invitation"

	EventCreatedGroups  = "created_groups"
	EventDeletedGroups  = "deleted_groups"
	EventQueueQuestions = "queue_questions"
)
