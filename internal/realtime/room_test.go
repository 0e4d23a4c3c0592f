package realtime

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classhub/pkg/models"
)

// fakeSocket records every emitted event for assertions.
type fakeSocket struct {
	mu     sync.Mutex
	id     string
	events []emittedEvent
	closed bool
}

type emittedEvent struct {
	Event   string
	Payload interface{}
}

var socketSeq int

func newFakeSocket() *fakeSocket {
	socketSeq++
	return &fakeSocket{id: fmt.Sprintf("sock-%d", socketSeq)}
}

func (s *fakeSocket) ID() string { return s.id }

func (s *fakeSocket) Emit(event string, payload interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, emittedEvent{Event: event, Payload: payload})
	return nil
}

func (s *fakeSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// count returns how many times an event name was emitted.
func (s *fakeSocket) count(event string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.Event == event {
			n++
		}
	}
	return n
}

// last returns the most recent payload for an event name.
func (s *fakeSocket) last(event string) (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].Event == event {
			return s.events[i].Payload, true
		}
	}
	return nil, false
}

func testUser(email, name string) *models.User {
	return &models.User{
		ID:     "id-" + email,
		Email:  email,
		Name:   name,
		Avatar: "/images/" + name + ".png",
	}
}

func testMember(email, name string, owner bool) (*Member, *fakeSocket) {
	sock := newFakeSocket()
	return NewMember(testUser(email, name), owner, sock), sock
}

func TestRoomJoinBroadcastsPresence(t *testing.T) {
	room := NewRoom("ns/lesson", 0)

	alice, aliceSock := testMember("alice@x.io", "Alice", true)
	room.Join(alice)
	assert.Equal(t, 1, aliceSock.count(EventUserJoins))
	assert.Equal(t, 1, aliceSock.count(EventUserList))

	bob, bobSock := testMember("bob@x.io", "Bob", false)
	room.Join(bob)

	// Both parties see Bob's arrival; Bob also gets full room state.
	assert.Equal(t, 2, aliceSock.count(EventUserJoins))
	assert.Equal(t, 1, bobSock.count(EventUserJoins))
	assert.Equal(t, 1, bobSock.count(EventUserList))
	assert.Equal(t, 2, room.MemberCount())
	assert.Equal(t, 1, room.OwnerCount())
}

func TestRoomMirrorJoin(t *testing.T) {
	room := NewRoom("ns/lesson", 0)

	alice, _ := testMember("alice@x.io", "Alice", false)
	room.Join(alice)
	room.JoinChat("general", alice)

	// Second window of the same user.
	mirror, mirrorSock := testMember("alice@x.io", "Alice", false)
	room.Join(mirror)

	assert.Equal(t, 1, room.MemberCount(), "mirror join adds no roster entry")
	assert.Equal(t, 0, mirrorSock.count(EventUserJoins), "no presence broadcast for a mirror join")
	assert.Equal(t, 1, mirrorSock.count(EventUserList), "state is re-delivered to the new socket")
	assert.Equal(t, 1, mirrorSock.count(EventMirrorJoin), "chat state is re-delivered too")
}

func TestRoomLeaveLastSocketWins(t *testing.T) {
	room := NewRoom("ns/lesson", 0)

	alice, _ := testMember("alice@x.io", "Alice", false)
	mirror, _ := testMember("alice@x.io", "Alice", false)
	observer, obsSock := testMember("bob@x.io", "Bob", false)
	room.Join(alice)
	room.Join(mirror)
	room.Join(observer)

	// Closing one window changes nothing for the room.
	empty := room.Leave(mirror)
	assert.False(t, empty)
	assert.Equal(t, 2, room.MemberCount())
	assert.Equal(t, 0, obsSock.count(EventUserLeaves))

	// Closing the last window is the real departure.
	empty = room.Leave(alice)
	assert.False(t, empty)
	assert.Equal(t, 1, room.MemberCount())
	assert.Equal(t, 1, obsSock.count(EventUserLeaves))
	assert.NotNil(t, alice.ExitedAt)

	empty = room.Leave(observer)
	assert.True(t, empty, "room reports empty after the last member leaves")
}

func TestRoomOwnersSubsetOfMembers(t *testing.T) {
	room := NewRoom("ns/lesson", 0)
	owner, _ := testMember("teacher@x.io", "Teacher", true)
	student, _ := testMember("student@x.io", "Student", false)
	room.Join(owner)
	room.Join(student)

	assert.Equal(t, 2, room.MemberCount())
	assert.Equal(t, 1, room.OwnerCount())

	room.Leave(owner)
	assert.Equal(t, 1, room.MemberCount())
	assert.Equal(t, 0, room.OwnerCount())
}

func TestRoomEmitToOwnersEchoesSender(t *testing.T) {
	room := NewRoom("ns/lesson", 0)
	owner, ownerSock := testMember("teacher@x.io", "Teacher", true)
	student, studentSock := testMember("student@x.io", "Student", false)
	bystander, bystanderSock := testMember("other@x.io", "Other", false)
	room.Join(owner)
	room.Join(student)
	room.Join(bystander)

	room.EmitToOwners(student, "event", map[string]interface{}{"kind": "raise_hand"})

	assert.Equal(t, 1, ownerSock.count("event"))
	assert.Equal(t, 1, studentSock.count("event"), "non-owner sender gets an echo")
	assert.Equal(t, 0, bystanderSock.count("event"))
}

func TestRoomAnonymousEventRedaction(t *testing.T) {
	room := NewRoom("ns/lesson", 0)
	alice, aliceSock := testMember("alice@x.io", "Alice", false)
	room.Join(alice)

	room.EmitToMembers("event", map[string]interface{}{
		"email":     "alice@x.io",
		"name":      "Alice",
		"anonymous": true,
	})

	payload, ok := aliceSock.last("event")
	require.True(t, ok)
	data := payload.(map[string]interface{})
	assert.Equal(t, "anonymous", data["email"])
	assert.Equal(t, "anonymous", data["name"])
}

func TestRoomQuestionQueue(t *testing.T) {
	room := NewRoom("ns/lesson", 0)
	alice, aliceSock := testMember("alice@x.io", "Alice", false)
	room.Join(alice)

	q := Question{Email: "alice@x.io", Name: "Alice", Value: "why?"}
	room.AddQuestion(q)
	room.AddQuestion(Question{Email: "alice@x.io", Name: "Alice", Value: "how?"})

	payload, ok := aliceSock.last(EventQueueQuestions)
	require.True(t, ok)
	questions := payload.(map[string]interface{})["questions"].([]Question)
	assert.Len(t, questions, 2)

	// Removal matches on exact (email, value).
	room.RemoveQuestion(Question{Email: "alice@x.io", Value: "nope"})
	payload, _ = aliceSock.last(EventQueueQuestions)
	assert.Len(t, payload.(map[string]interface{})["questions"].([]Question), 2)

	room.RemoveQuestion(Question{Email: "alice@x.io", Value: "why?"})
	payload, _ = aliceSock.last(EventQueueQuestions)
	questions = payload.(map[string]interface{})["questions"].([]Question)
	require.Len(t, questions, 1)
	assert.Equal(t, "how?", questions[0].Value)
}

func TestRoomGroups(t *testing.T) {
	room := NewRoom("ns/lesson", 0)
	alice, aliceSock := testMember("alice@x.io", "Alice", false)
	room.Join(alice)

	room.CreateGroups([]byte(`[{"name":"g1"}]`))
	assert.Equal(t, 1, aliceSock.count(EventCreatedGroups))

	// Late joiners receive the current configuration with room state.
	late, lateSock := testMember("late@x.io", "Late", false)
	room.Join(late)
	assert.Equal(t, 1, lateSock.count(EventCreatedGroups))

	room.DeleteGroups()
	assert.Equal(t, 1, aliceSock.count(EventDeletedGroups))
}

func TestRoomDestroyedIsNoOp(t *testing.T) {
	room := NewRoom("ns/lesson", 0)
	room.markDestroyed()

	alice, aliceSock := testMember("alice@x.io", "Alice", false)
	room.Join(alice)
	room.EmitToMembers("event", map[string]interface{}{})
	room.AddQuestion(Question{Email: "alice@x.io", Value: "?"})

	assert.Equal(t, 0, room.MemberCount())
	assert.Empty(t, aliceSock.events)
}
