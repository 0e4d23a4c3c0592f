package collab

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classhub/internal/ot"
	"classhub/pkg/models"
)

func newTestInstance(t *testing.T, text string) *Instance {
	t.Helper()
	return NewInstance("ns-lesson-comp", &ot.Doc{Text: text}, nil)
}

func TestInstanceAddEvents(t *testing.T) {
	inst := newTestInstance(t, "hello world")

	result, err := inst.AddEvents(0, []ot.Step{
		{From: 5, To: 5, Text: ","},
		{From: 12, To: 12, Text: "!"},
	}, nil, "client-1")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Version)
	assert.Equal(t, 2, inst.Version())

	snap := inst.Join()
	assert.Equal(t, "hello, world!", snap.Doc.Text)
}

func TestInstanceAddEventsTagsClientID(t *testing.T) {
	inst := newTestInstance(t, "abc")
	_, err := inst.AddEvents(0, []ot.Step{{From: 0, To: 0, Text: "x"}}, nil, "client-7")
	require.NoError(t, err)

	diff, pending, err := inst.GetEvents(0, 0, 0)
	require.NoError(t, err)
	require.True(t, pending)
	require.Len(t, diff.Steps, 1)
	assert.Equal(t, "client-7", diff.Steps[0].ClientID)
	assert.Equal(t, []string{"client-7"}, diff.ClientIDs)
}

func TestInstanceAddEventsVersionConflict(t *testing.T) {
	inst := newTestInstance(t, "abc")

	_, err := inst.AddEvents(5, nil, nil, "c")
	assert.ErrorIs(t, err, models.ErrVersionConflict)

	_, err = inst.AddEvents(-1, nil, nil, "c")
	assert.ErrorIs(t, err, models.ErrVersionConflict)
}

func TestInstanceAddEventsNoPartialApplication(t *testing.T) {
	inst := newTestInstance(t, "abc")

	_, err := inst.AddEvents(0, []ot.Step{
		{From: 0, To: 0, Text: "x"},
		{From: 100, To: 200}, // out of bounds
	}, nil, "c")
	require.ErrorIs(t, err, models.ErrStepApply)

	assert.Equal(t, 0, inst.Version(), "a failing batch leaves nothing applied")
	assert.Equal(t, "abc", inst.Join().Doc.Text)
}

func TestInstanceAddEventsMapsComments(t *testing.T) {
	inst := newTestInstance(t, "0123456789")
	_, err := inst.AddEvents(0, nil, []CommentEvent{
		{Type: CommentCreate, ID: "a", From: 4, To: 8, Text: "note"},
	}, "c")
	require.NoError(t, err)

	// An insertion before the comment shifts it.
	_, err = inst.AddEvents(1, []ot.Step{{From: 0, To: 0, Text: "xy"}}, nil, "c")
	require.NoError(t, err)

	snap := inst.Join()
	require.Len(t, snap.Comments, 1)
	assert.Equal(t, 6, snap.Comments[0].From)
	assert.Equal(t, 10, snap.Comments[0].To)
}

func TestInstanceGetEvents(t *testing.T) {
	inst := newTestInstance(t, "abc")

	// Current client: no payload, no error.
	diff, pending, err := inst.GetEvents(0, 0, 0)
	require.NoError(t, err)
	assert.False(t, pending)
	assert.Nil(t, diff)

	_, err = inst.AddEvents(0, []ot.Step{{From: 0, To: 0, Text: "x"}}, nil, "c1")
	require.NoError(t, err)
	_, err = inst.AddEvents(1, []ot.Step{{From: 1, To: 1, Text: "y"}}, nil, "c2")
	require.NoError(t, err)

	diff, pending, err = inst.GetEvents(1, 0, 0)
	require.NoError(t, err)
	require.True(t, pending)
	assert.Equal(t, 2, diff.Version)
	require.Len(t, diff.Steps, 1)
	assert.Equal(t, "y", diff.Steps[0].Text)
	assert.Equal(t, []string{"c2"}, diff.ClientIDs)

	// Bad base versions are rejected.
	_, _, err = inst.GetEvents(3, 0, 0)
	assert.ErrorIs(t, err, models.ErrVersionConflict)
}

func TestInstanceGetEventsHistoryTruncated(t *testing.T) {
	inst := RehydratedInstance("ns-l-c", &ot.Doc{Text: "abc"}, NewComments(), nil, 50, nil, nil)

	// Version 50 with an empty step tail: anyone behind must reload.
	_, _, err := inst.GetEvents(10, 0, 0)
	assert.ErrorIs(t, err, models.ErrHistoryTruncated)

	// A current client is still fine.
	_, pending, err := inst.GetEvents(50, 0, 0)
	require.NoError(t, err)
	assert.False(t, pending)
}

func TestInstanceCursors(t *testing.T) {
	inst := newTestInstance(t, "0123456789")
	inst.UpdateCursor("c1", Selection{From: 5, To: 7})

	diff, pending, err := inst.GetEvents(0, 0, 0)
	require.NoError(t, err)
	require.True(t, pending)
	assert.Equal(t, Selection{From: 5, To: 7}, diff.Cursors["c1"])

	// Cursors ride the mapping like comments do.
	_, err = inst.AddEvents(0, []ot.Step{{From: 0, To: 0, Text: "ab"}}, nil, "c2")
	require.NoError(t, err)
	diff, _, err = inst.GetEvents(1, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, Selection{From: 7, To: 9}, diff.Cursors["c1"])
}

func TestInstanceUserRegistration(t *testing.T) {
	inst := newTestInstance(t, "abc")

	inst.RegisterUser("a@x.io", "Alice", "user-1")
	inst.RegisterUser("b@x.io", "Bob", "user-2")
	assert.Equal(t, 2, inst.UserCount())

	// Re-registering the same email (mirror join) changes nothing.
	inst.RegisterUser("a@x.io", "Alice", "user-1")
	assert.Equal(t, 2, inst.UserCount())
	assert.ElementsMatch(t, []string{"a@x.io", "b@x.io"}, inst.ActiveEmails())

	assert.True(t, inst.DeactivateUser("a@x.io", "Alice"))
	assert.Equal(t, 1, inst.UserCount())
	assert.False(t, inst.DeactivateUser("a@x.io", "Alice"), "already inactive")
	assert.False(t, inst.DeactivateUser("ghost@x.io", "Ghost"))
}

func TestInstanceDirtyCallback(t *testing.T) {
	var gotID string
	var gotVersion int
	inst := NewInstance("ns-l-c", &ot.Doc{Text: "abc"}, func(id string, version int) {
		gotID = id
		gotVersion = version
	})

	_, err := inst.AddEvents(0, []ot.Step{{From: 0, To: 0, Text: "x"}}, nil, "c")
	require.NoError(t, err)
	assert.Equal(t, "ns-l-c", gotID)
	assert.Equal(t, 1, gotVersion)
}

func TestInstanceExport(t *testing.T) {
	inst := newTestInstance(t, "abc")
	inst.RegisterUser("a@x.io", "Alice", "user-1")

	_, err := inst.AddEvents(0, []ot.Step{
		{From: 0, To: 0, Text: "x"},
		{From: 1, To: 1, Text: "y"},
	}, []CommentEvent{
		{Type: CommentCreate, ID: "cm", From: 0, To: 2, Text: "hi"},
	}, "c1")
	require.NoError(t, err)

	state, err := inst.Export(ot.RangeMerger{})
	require.NoError(t, err)
	assert.Equal(t, 2, state.Version)
	assert.Equal(t, []string{"user-1"}, state.Users)
	// The same-author run collapses to one persisted step.
	require.Len(t, state.Steps, 1)
	assert.Equal(t, "xy", state.Steps[0].Text)

	doc, err := ot.DecodeDoc(state.Doc)
	require.NoError(t, err)
	assert.Equal(t, "xyabc", doc.Text)
}
