package fieldsettings

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-set/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"fieldsettings/internal/core/apperror"
	"fieldsettings/internal/core/id"
	"fieldsettings/pkg/logger"
)

var tracer = otel.Tracer("fieldsettings/reconciler")

// Backend is the load/save contract of the settings store.
type Backend interface {
	// Load returns the current snapshot.
	Load(ctx context.Context) (*Snapshot, error)

	// Save persists the whole snapshot atomically. A successful result maps
	// every temporary id of s to its persisted id.
	Save(ctx context.Context, s *Snapshot) (*SaveResult, error)
}

// SnapshotCache keeps recently loaded snapshots.
type SnapshotCache interface {
	Get(key string) (*Snapshot, bool)
	Add(key string, s *Snapshot)
	Remove(key string)
}

// Reconciler moves snapshots between a Registry and a Backend.
type Reconciler struct {
	reg     *Registry
	backend Backend

	cache    SnapshotCache
	cacheKey string

	saving atomic.Bool
	now    func() time.Time
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithCache serves non-forced loads from cache under key.
func WithCache(cache SnapshotCache, key string) ReconcilerOption {
	return func(rc *Reconciler) {
		rc.cache = cache
		rc.cacheKey = key
	}
}

// WithClock overrides the clock used to stamp saved snapshots.
func WithClock(now func() time.Time) ReconcilerOption {
	return func(rc *Reconciler) {
		rc.now = now
	}
}

// NewReconciler creates a reconciler for reg.
func NewReconciler(reg *Registry, backend Backend, opts ...ReconcilerOption) *Reconciler {
	rc := &Reconciler{
		reg:     reg,
		backend: backend,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(rc)
	}
	return rc
}

// Registry returns the registry the reconciler populates.
func (rc *Reconciler) Registry() *Registry {
	return rc.reg
}

// Saving reports whether a save is outstanding.
func (rc *Reconciler) Saving() bool {
	return rc.saving.Load()
}

// Load populates the registry. With forceRefresh the cached snapshot is
// dropped before fetching. On failure the registry keeps its prior state.
func (rc *Reconciler) Load(ctx context.Context, forceRefresh bool) error {
	ctx, span := tracer.Start(ctx, "fieldsettings.load",
		trace.WithAttributes(attribute.Bool("refresh", forceRefresh)))
	defer span.End()

	if rc.cache != nil {
		if forceRefresh {
			rc.cache.Remove(rc.cacheKey)
		} else if cached, ok := rc.cache.Get(rc.cacheKey); ok {
			if err := rc.reg.Replace(cached); err == nil {
				logger.Debug(ctx, "field settings served from cache", "version", cached.Version)
				return nil
			}
			rc.cache.Remove(rc.cacheKey)
		}
	}

	snap, err := rc.backend.Load(ctx)
	if err == nil && snap == nil {
		err = errors.New("backend returned no snapshot")
	}
	if err != nil {
		span.RecordError(err)
		logger.Warn(ctx, "field settings load failed", "error", err)
		return apperror.NewLoadFailed(err)
	}
	if err := rc.reg.Replace(snap); err != nil {
		span.RecordError(err)
		return apperror.NewLoadFailed(err)
	}
	if rc.cache != nil {
		rc.cache.Add(rc.cacheKey, snap)
	}

	logger.Debug(ctx, "field settings loaded", "version", snap.Version)
	return nil
}

// Save submits the whole registry. On success every temporary id is
// replaced by its persisted one; on failure the registry keeps the
// caller's edits. Only one save may be outstanding at a time.
func (rc *Reconciler) Save(ctx context.Context) (*SaveResult, error) {
	if !rc.saving.CompareAndSwap(false, true) {
		return nil, apperror.NewSaveInProgress()
	}
	defer rc.saving.Store(false)

	ctx, span := tracer.Start(ctx, "fieldsettings.save")
	defer span.End()

	snap := rc.reg.Snapshot()
	snap.LastUpdated = rc.now().UTC()
	span.SetAttributes(attribute.Int("version", snap.Version))

	res, err := rc.backend.Save(ctx, snap)
	if err != nil {
		span.RecordError(err)
		logger.Warn(ctx, "field settings save failed", "error", err)
		if apperror.IsConcurrentModification(err) {
			return nil, err
		}
		return nil, apperror.NewSaveFailed(err)
	}
	if res == nil || !res.Success {
		return nil, apperror.NewSaveFailed(errors.New("backend rejected the snapshot"))
	}
	for _, tmp := range snap.TempIDs() {
		persisted, ok := res.IDMap[tmp]
		if !ok || persisted == "" || id.IsTemp(persisted) {
			return nil, apperror.NewSaveFailed(fmt.Errorf("no persisted id for %s", tmp))
		}
	}

	rc.reg.promoteIDs(res.IDMap)
	rc.reg.version = res.Version
	rc.reg.lastUpdated = res.LastUpdated
	if rc.reg.lastUpdated.IsZero() {
		rc.reg.lastUpdated = snap.LastUpdated
	}
	if rc.cache != nil {
		rc.cache.Add(rc.cacheKey, rc.reg.Snapshot())
	}

	logger.Info(ctx, "field settings saved",
		"version", res.Version,
		"promoted", len(res.IDMap),
	)
	return res, nil
}

// promoteIDs swaps ids according to idMap everywhere they occur.
func (r *Registry) promoteIDs(idMap map[string]string) {
	if len(idMap) == 0 {
		return
	}
	swap := func(v string) string {
		if p, ok := idMap[v]; ok {
			return p
		}
		return v
	}
	for i := range r.fixed {
		r.fixed[i].ID = swap(r.fixed[i].ID)
	}
	for i := range r.institute {
		r.institute[i].ID = swap(r.institute[i].ID)
	}
	for i := range r.custom {
		r.custom[i].ID = swap(r.custom[i].ID)
	}
	for gi := range r.groups {
		g := &r.groups[gi]
		g.ID = swap(g.ID)
		for mi := range g.Members {
			g.Members[mi].FieldID = swap(g.Members[mi].FieldID)
		}
	}
	memberships := make(map[string]*set.Set[string], len(r.memberships))
	for fieldID, groups := range r.memberships {
		promoted := set.New[string](groups.Size())
		for _, groupID := range groups.Slice() {
			promoted.Insert(swap(groupID))
		}
		memberships[swap(fieldID)] = promoted
	}
	r.memberships = memberships
	r.reindex()
}
