package collab

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"classhub/internal/ot"
	"classhub/internal/repository"
	"classhub/pkg/logger"
	"classhub/pkg/models"
)

// DefaultMaxInstances bounds the number of live instances.
const DefaultMaxInstances = 256

// Registry is the process-wide map from document id to live Instance. It
// owns rehydration from the document store, last-active eviction that skips
// dirty instances, and the periodic batched persistence of pending saves.
type Registry struct {
	mu        sync.Mutex
	instances map[string]*Instance

	pendingMu sync.Mutex
	pending   map[string]int // id -> max version seen since last save

	store        repository.CollabDocRepository
	merger       ot.Merger
	maxInstances int
}

// NewRegistry creates an instance registry backed by the given store.
func NewRegistry(store repository.CollabDocRepository, maxInstances int) *Registry {
	if maxInstances <= 0 {
		maxInstances = DefaultMaxInstances
	}
	return &Registry{
		instances:    make(map[string]*Instance),
		pending:      make(map[string]int),
		store:        store,
		merger:       ot.RangeMerger{},
		maxInstances: maxInstances,
	}
}

// GetInstance returns the live instance for id, rehydrating it from the
// store or creating a fresh one from the seed document. When email is
// non-empty the user is registered as active.
func (r *Registry) GetInstance(ctx context.Context, id, email, display, persistentID string, seed json.RawMessage) (*Instance, error) {
	inst, err := r.lookupOrLoad(ctx, id, seed)
	if err != nil {
		return nil, err
	}
	if email != "" {
		inst.RegisterUser(email, display, persistentID)
	}
	inst.Touch()
	return inst, nil
}

func (r *Registry) lookupOrLoad(ctx context.Context, id string, seed json.RawMessage) (*Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if inst, ok := r.instances[id]; ok {
		return inst, nil
	}

	namespaceID, lessonID, componentID, err := models.ParseDocID(id)
	if err != nil {
		return nil, err
	}

	var inst *Instance
	rec, err := r.store.Load(ctx, namespaceID, lessonID, componentID)
	switch {
	case err == nil:
		inst, err = r.rehydrate(id, rec)
		if err != nil {
			return nil, err
		}
	case errors.Is(err, models.ErrNotFound):
		var doc *ot.Doc
		if len(seed) > 0 {
			doc, err = ot.DecodeDoc(seed)
			if err != nil {
				return nil, err
			}
		}
		inst = NewInstance(id, doc, r.scheduleSave)
		logrus.Debugf("created new document instance %s", id)
	default:
		return nil, err
	}

	r.instances[id] = inst
	r.evictLocked()
	return inst, nil
}

func (r *Registry) rehydrate(id string, rec *models.CollabDocRecord) (*Instance, error) {
	doc, err := ot.DecodeDoc(rec.Doc)
	if err != nil {
		return nil, err
	}
	comments, err := CommentsFromJSON(rec.Comments)
	if err != nil {
		return nil, err
	}
	steps, err := DecodeSteps(rec.Steps)
	if err != nil {
		return nil, err
	}
	logrus.Debugf("rehydrated document instance %s at version %d", id, rec.Version)
	return RehydratedInstance(id, doc, comments, steps, rec.Version, rec.Users, r.scheduleSave), nil
}

// evictLocked drops least-recently-active instances over the cap, never
// touching one with a pending unsaved write. Caller holds r.mu.
func (r *Registry) evictLocked() {
	for len(r.instances) > r.maxInstances {
		var victim string
		var oldest time.Time
		for id, inst := range r.instances {
			if r.hasPending(id) {
				continue
			}
			if t := inst.LastActive(); victim == "" || t.Before(oldest) {
				victim = id
				oldest = t
			}
		}
		if victim == "" {
			return // everything live is dirty; try again after the next save
		}
		delete(r.instances, victim)
		logrus.Infof("evicted document instance %s (last active %s)", victim, oldest.Format(time.RFC3339))
	}
}

// RemoveFromInstances deactivates the user on every instance they are
// active on and clears their cursor slot.
func (r *Registry) RemoveFromInstances(email, display string) {
	r.mu.Lock()
	instances := make([]*Instance, 0, len(r.instances))
	for _, inst := range r.instances {
		instances = append(instances, inst)
	}
	r.mu.Unlock()

	for _, inst := range instances {
		inst.DeactivateUser(email, display)
	}
}

// scheduleSave records the highest version seen per dirty instance.
func (r *Registry) scheduleSave(id string, version int) {
	r.pendingMu.Lock()
	if version > r.pending[id] {
		r.pending[id] = version
	}
	r.pendingMu.Unlock()
}

func (r *Registry) hasPending(id string) bool {
	r.pendingMu.Lock()
	defer r.pendingMu.Unlock()
	_, ok := r.pending[id]
	return ok
}

// SavePending persists every dirty instance. The pending map is drained
// before the writes run, so edits arriving mid-save are picked up by the
// next tick. Failed saves are re-queued.
func (r *Registry) SavePending(ctx context.Context) {
	r.pendingMu.Lock()
	batch := r.pending
	r.pending = make(map[string]int)
	r.pendingMu.Unlock()

	for id, version := range batch {
		if err := r.saveOne(ctx, id); err != nil {
			logrus.Errorf("failed to save document instance %s: %v", id, err)
			r.scheduleSave(id, version)
		}
	}
}

func (r *Registry) saveOne(ctx context.Context, id string) error {
	r.mu.Lock()
	inst, ok := r.instances[id]
	r.mu.Unlock()
	if !ok {
		return nil // evicted after its last save; nothing to do
	}

	state, err := inst.Export(r.merger)
	if err != nil {
		return err
	}
	namespaceID, lessonID, componentID, err := models.ParseDocID(id)
	if err != nil {
		return err
	}
	compressed, err := EncodeSteps(state.Steps)
	if err != nil {
		return err
	}

	if err := r.store.Save(ctx, &models.CollabDocRecord{
		ComponentID: componentID,
		NamespaceID: namespaceID,
		LessonID:    lessonID,
		Version:     state.Version,
		Doc:         state.Doc,
		Comments:    state.Comments,
		Steps:       compressed,
		Users:       state.Users,
	}); err != nil {
		return err
	}
	logger.Collab(id, "saved", state.Version)
	return nil
}

// Count returns the number of live instances.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.instances)
}

// PendingCount returns the number of instances with unsaved writes.
func (r *Registry) PendingCount() int {
	r.pendingMu.Lock()
	defer r.pendingMu.Unlock()
	return len(r.pending)
}

// Lookup returns a live instance without loading from the store.
func (r *Registry) Lookup(id string) (*Instance, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instances[id]
	return inst, ok
}
