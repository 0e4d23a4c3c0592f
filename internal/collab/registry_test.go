package collab

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classhub/internal/ot"
	"classhub/pkg/models"
)

// memDocStore is an in-memory CollabDocRepository for registry tests.
type memDocStore struct {
	mu      sync.Mutex
	records map[string]*models.CollabDocRecord
	saves   int
	failing bool
}

func newMemDocStore() *memDocStore {
	return &memDocStore{records: make(map[string]*models.CollabDocRecord)}
}

func (s *memDocStore) key(namespaceID, lessonID, componentID string) string {
	return namespaceID + "|" + lessonID + "|" + componentID
}

func (s *memDocStore) Load(_ context.Context, namespaceID, lessonID, componentID string) (*models.CollabDocRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[s.key(namespaceID, lessonID, componentID)]
	if !ok {
		return nil, fmt.Errorf("load: %w", models.ErrNotFound)
	}
	copied := *rec
	return &copied, nil
}

func (s *memDocStore) Save(_ context.Context, rec *models.CollabDocRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return fmt.Errorf("save: store unavailable")
	}
	s.saves++
	copied := *rec
	s.records[s.key(rec.NamespaceID, rec.LessonID, rec.ComponentID)] = &copied
	return nil
}

func TestRegistryCreatesFreshInstance(t *testing.T) {
	r := NewRegistry(newMemDocStore(), 4)

	inst, err := r.GetInstance(context.Background(), "ns1-l1-comp1", "a@x.io", "Alice", "user-1", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, inst.Version())
	assert.Equal(t, 1, inst.UserCount())
	assert.Equal(t, ot.NewDefaultDoc().Text, inst.Join().Doc.Text)
	assert.Equal(t, 1, r.Count())

	// Second lookup returns the same live instance.
	again, err := r.GetInstance(context.Background(), "ns1-l1-comp1", "", "", "", nil)
	require.NoError(t, err)
	assert.Same(t, inst, again)
}

func TestRegistryRejectsMalformedID(t *testing.T) {
	r := NewRegistry(newMemDocStore(), 4)
	_, err := r.GetInstance(context.Background(), "not-an-id", "", "", "", nil)
	assert.Error(t, err)
}

func TestRegistrySaveAndRehydrate(t *testing.T) {
	store := newMemDocStore()
	r := NewRegistry(store, 4)
	ctx := context.Background()

	inst, err := r.GetInstance(ctx, "ns1-l1-comp1", "a@x.io", "Alice", "user-1", nil)
	require.NoError(t, err)
	_, err = inst.AddEvents(0, []ot.Step{{From: 0, To: 0, Text: "hello"}}, []CommentEvent{
		{Type: CommentCreate, ID: "cm", From: 0, To: 3, Text: "hi"},
	}, "c1")
	require.NoError(t, err)

	assert.Equal(t, 1, r.PendingCount())
	r.SavePending(ctx)
	assert.Equal(t, 0, r.PendingCount())
	assert.Equal(t, 1, store.saves)

	// A new registry rehydrates the saved state.
	r2 := NewRegistry(store, 4)
	loaded, err := r2.GetInstance(ctx, "ns1-l1-comp1", "", "", "", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Version())
	snap := loaded.Join()
	assert.Equal(t, "hello"+ot.NewDefaultDoc().Text, snap.Doc.Text)
	require.Len(t, snap.Comments, 1)
	assert.Equal(t, "cm", snap.Comments[0].ID)
	assert.Equal(t, 0, loaded.UserCount(), "persisted users load inactive")
}

func TestRegistrySaveIsStableWithoutNewSteps(t *testing.T) {
	store := newMemDocStore()
	r := NewRegistry(store, 4)
	ctx := context.Background()

	inst, err := r.GetInstance(ctx, "ns1-l1-comp1", "a@x.io", "Alice", "user-1", nil)
	require.NoError(t, err)
	_, err = inst.AddEvents(0, []ot.Step{{From: 0, To: 0, Text: "x"}}, nil, "c1")
	require.NoError(t, err)
	r.SavePending(ctx)
	first := *store.records["ns1|l1|comp1"]

	// Reload and save again without edits: the persisted payload must not
	// drift.
	r2 := NewRegistry(store, 4)
	_, err = r2.GetInstance(ctx, "ns1-l1-comp1", "", "", "", nil)
	require.NoError(t, err)
	r2.scheduleSave("ns1-l1-comp1", 1)
	r2.SavePending(ctx)
	second := *store.records["ns1|l1|comp1"]

	assert.Equal(t, first.Version, second.Version)
	assert.Equal(t, string(first.Doc), string(second.Doc))
	assert.Equal(t, string(first.Comments), string(second.Comments))
	assert.Equal(t, first.Steps, second.Steps)
}

func TestRegistryFailedSaveRequeues(t *testing.T) {
	store := newMemDocStore()
	r := NewRegistry(store, 4)
	ctx := context.Background()

	inst, err := r.GetInstance(ctx, "ns1-l1-comp1", "", "", "", nil)
	require.NoError(t, err)
	_, err = inst.AddEvents(0, []ot.Step{{From: 0, To: 0, Text: "x"}}, nil, "c1")
	require.NoError(t, err)

	store.failing = true
	r.SavePending(ctx)
	assert.Equal(t, 1, r.PendingCount(), "failed save stays dirty")

	store.failing = false
	r.SavePending(ctx)
	assert.Equal(t, 0, r.PendingCount())
	assert.Equal(t, 1, store.saves)
}

func TestRegistryEvictionSkipsDirty(t *testing.T) {
	store := newMemDocStore()
	r := NewRegistry(store, 2)
	ctx := context.Background()

	a, err := r.GetInstance(ctx, "ns1-l1-a", "", "", "", nil)
	require.NoError(t, err)
	_, err = r.GetInstance(ctx, "ns1-l1-b", "", "", "", nil)
	require.NoError(t, err)

	// Make the oldest instance dirty; eviction must pass over it.
	_, err = a.AddEvents(0, []ot.Step{{From: 0, To: 0, Text: "x"}}, nil, "c1")
	require.NoError(t, err)

	_, err = r.GetInstance(ctx, "ns1-l1-c", "", "", "", nil)
	require.NoError(t, err)

	assert.Equal(t, 2, r.Count())
	_, stillLive := r.Lookup("ns1-l1-a")
	assert.True(t, stillLive, "dirty instance survives eviction")
	_, evicted := r.Lookup("ns1-l1-b")
	assert.False(t, evicted, "clean least-recently-active instance is evicted")
}

func TestRegistryRemoveFromInstances(t *testing.T) {
	r := NewRegistry(newMemDocStore(), 4)
	ctx := context.Background()

	a, err := r.GetInstance(ctx, "ns1-l1-a", "a@x.io", "Alice", "user-1", nil)
	require.NoError(t, err)
	b, err := r.GetInstance(ctx, "ns1-l1-b", "a@x.io", "Alice", "user-1", nil)
	require.NoError(t, err)

	r.RemoveFromInstances("a@x.io", "Alice")
	assert.Equal(t, 0, a.UserCount())
	assert.Equal(t, 0, b.UserCount())
}
