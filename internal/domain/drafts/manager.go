// Package drafts keeps server-side editing sessions. A draft wraps one
// field registry loaded for an institute; administrators mutate it through
// many requests and finally save it as a whole.
package drafts

import (
	"context"
	"sync"
	"time"

	"github.com/erni27/imcache"

	"fieldsettings/internal/core/apperror"
	"fieldsettings/internal/core/id"
	"fieldsettings/internal/domain/fieldsettings"
	"fieldsettings/pkg/logger"
)

// DefaultTTL is how long an untouched draft survives.
const DefaultTTL = 30 * time.Minute

// BackendFactory returns the settings backend of one institute.
type BackendFactory func(instituteID string) fieldsettings.Backend

// Draft is one editing session. Its methods are safe for concurrent use.
type Draft struct {
	ID          string    `json:"id"`
	InstituteID string    `json:"instituteId"`
	CreatedAt   time.Time `json:"createdAt"`

	mu     sync.Mutex
	saveMu sync.Mutex
	rc     *fieldsettings.Reconciler
}

// Apply runs fn against the registry and returns the resulting snapshot.
// Mutations wait for an outstanding save to finish.
func (d *Draft) Apply(fn func(reg *fieldsettings.Registry) error) (*fieldsettings.Snapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := fn(d.rc.Registry()); err != nil {
		return nil, err
	}
	return d.rc.Registry().Snapshot(), nil
}

// View runs fn against the registry without expecting changes.
func (d *Draft) View(fn func(reg *fieldsettings.Registry)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(d.rc.Registry())
}

// Snapshot returns a copy of the draft contents.
func (d *Draft) Snapshot() *fieldsettings.Snapshot {
	var s *fieldsettings.Snapshot
	d.View(func(reg *fieldsettings.Registry) { s = reg.Snapshot() })
	return s
}

// Reload replaces the draft contents with the stored settings.
func (d *Draft) Reload(ctx context.Context, refresh bool) (*fieldsettings.Snapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.rc.Load(ctx, refresh); err != nil {
		return nil, err
	}
	return d.rc.Registry().Snapshot(), nil
}

// Save persists the draft. A second save while one is outstanding fails
// immediately with SaveInProgress.
func (d *Draft) Save(ctx context.Context) (*fieldsettings.SaveResult, *fieldsettings.Snapshot, error) {
	if !d.saveMu.TryLock() {
		return nil, nil, apperror.NewSaveInProgress()
	}
	defer d.saveMu.Unlock()

	d.mu.Lock()
	defer d.mu.Unlock()

	res, err := d.rc.Save(ctx)
	if err != nil {
		return nil, nil, err
	}
	return res, d.rc.Registry().Snapshot(), nil
}

// Manager owns the live drafts. Drafts expire after a period without access.
type Manager struct {
	sessions *imcache.Cache[string, *Draft]
	backends BackendFactory
	cache    fieldsettings.SnapshotCache
	ttl      time.Duration
	log      *logger.Logger
}

// NewManager creates a draft manager. cache may be nil.
func NewManager(backends BackendFactory, cache fieldsettings.SnapshotCache, ttl time.Duration, log *logger.Logger) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = logger.Default()
	}
	log = log.WithComponent("drafts")

	m := &Manager{
		backends: backends,
		cache:    cache,
		ttl:      ttl,
		log:      log,
	}
	m.sessions = imcache.New[string, *Draft](
		imcache.WithCleanerOption[string, *Draft](ttl/2),
		imcache.WithEvictionCallbackOption[string, *Draft](func(key string, d *Draft, reason imcache.EvictionReason) {
			log.WithInstitute(d.InstituteID).Debugw("draft evicted", "draft_id", key, "reason", reason)
		}),
	)
	return m
}

// Open loads the institute's settings into a new draft.
func (m *Manager) Open(ctx context.Context, instituteID string, refresh bool) (*Draft, error) {
	if instituteID == "" {
		return nil, apperror.NewValidation("institute is required")
	}

	var opts []fieldsettings.ReconcilerOption
	if m.cache != nil {
		opts = append(opts, fieldsettings.WithCache(m.cache, instituteID))
	}
	rc := fieldsettings.NewReconciler(fieldsettings.NewRegistry(), m.backends(instituteID), opts...)
	if err := rc.Load(ctx, refresh); err != nil {
		return nil, err
	}

	d := &Draft{
		ID:          id.NewString(),
		InstituteID: instituteID,
		CreatedAt:   time.Now().UTC(),
		rc:          rc,
	}
	m.sessions.Set(d.ID, d, imcache.WithSlidingExpiration(m.ttl))

	logger.Info(ctx, "draft opened", "draft_id", d.ID, "version", rc.Registry().Version())
	return d, nil
}

// Get returns a live draft of the institute.
func (m *Manager) Get(instituteID, draftID string) (*Draft, error) {
	d, ok := m.sessions.Get(draftID)
	if !ok || d.InstituteID != instituteID {
		return nil, apperror.NewNotFound("draft", draftID)
	}
	return d, nil
}

// Discard drops a draft without saving it.
func (m *Manager) Discard(instituteID, draftID string) error {
	if _, err := m.Get(instituteID, draftID); err != nil {
		return err
	}
	m.sessions.Remove(draftID)
	return nil
}

// Len returns the number of live drafts.
func (m *Manager) Len() int {
	return m.sessions.Len()
}

// Close stops the background cleaner and drops every draft.
func (m *Manager) Close() {
	m.sessions.Close()
}
