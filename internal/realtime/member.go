package realtime

import (
	"time"

	"classhub/pkg/models"
)

// Member is one live socket of a signed-in user inside a Room. A user with
// several browser windows produces several Members sharing one email; the
// room dedupes presence by email. Members are never persisted.
type Member struct {
	Email        string
	Name         string
	Avatar       string
	Owner        bool
	PersistentID string
	JoinedAt     time.Time
	ExitedAt     *time.Time
	Socket       Socket
}

// NewMember builds a member from a resolved user and a live socket.
func NewMember(user *models.User, owner bool, socket Socket) *Member {
	return &Member{
		Email:        user.Email,
		Name:         user.Name,
		Avatar:       user.Avatar,
		Owner:        owner,
		PersistentID: user.ID,
		JoinedAt:     time.Now(),
		Socket:       socket,
	}
}

// MarkExit stamps the exit time.
func (m *Member) MarkExit() {
	now := time.Now()
	m.ExitedAt = &now
}

// MemberView is the broadcast-safe presence snapshot.
type MemberView struct {
	Email    string     `json:"email"`
	Name     string     `json:"name"`
	Owner    bool       `json:"owner"`
	Avatar   string     `json:"avatar"`
	JoinedAt time.Time  `json:"joinedAt"`
	ExitedAt *time.Time `json:"exitedAt,omitempty"`
}

// Snapshot returns the presence view of this member.
func (m *Member) Snapshot() MemberView {
	return MemberView{
		Email:    m.Email,
		Name:     m.Name,
		Owner:    m.Owner,
		Avatar:   m.Avatar,
		JoinedAt: m.JoinedAt,
		ExitedAt: m.ExitedAt,
	}
}
