package fieldsettings

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldsettings/internal/core/apperror"
	"fieldsettings/internal/core/id"
)

type fakeBackend struct {
	snapshot *Snapshot
	loadErr  error
	loads    int

	saved   []*Snapshot
	saveFn  func(s *Snapshot) (*SaveResult, error)
	release chan struct{}
	entered chan struct{}
}

func (b *fakeBackend) Load(context.Context) (*Snapshot, error) {
	b.loads++
	if b.loadErr != nil {
		return nil, b.loadErr
	}
	return b.snapshot.Clone(), nil
}

func (b *fakeBackend) Save(_ context.Context, s *Snapshot) (*SaveResult, error) {
	if b.entered != nil {
		b.entered <- struct{}{}
		<-b.release
	}
	b.saved = append(b.saved, s)
	if b.saveFn != nil {
		return b.saveFn(s)
	}
	return persistAll(s), nil
}

// persistAll assigns a persisted id to every temporary one.
func persistAll(s *Snapshot) *SaveResult {
	idMap := make(map[string]string)
	for i, tmp := range s.TempIDs() {
		idMap[tmp] = fmt.Sprintf("p-%d", i+1)
	}
	return &SaveResult{Success: true, Version: s.Version + 1, LastUpdated: s.LastUpdated, IDMap: idMap}
}

type mapCache map[string]*Snapshot

func (c mapCache) Get(key string) (*Snapshot, bool) {
	s, ok := c[key]
	return s.Clone(), ok
}

func (c mapCache) Add(key string, s *Snapshot) { c[key] = s.Clone() }
func (c mapCache) Remove(key string)           { delete(c, key) }

func TestReconciler_Load(t *testing.T) {
	backend := &fakeBackend{snapshot: testSnapshot()}
	rc := NewReconciler(NewRegistry(), backend)

	require.NoError(t, rc.Load(context.Background(), false))

	snap := rc.Registry().Snapshot()
	assert.Len(t, snap.SystemFields, 3)
	assert.Len(t, snap.InstituteFields, 2)
	assert.Equal(t, 3, rc.Registry().Version())
}

func TestReconciler_LoadFailureKeepsState(t *testing.T) {
	backend := &fakeBackend{snapshot: testSnapshot()}
	rc := NewReconciler(NewRegistry(), backend)
	require.NoError(t, rc.Load(context.Background(), false))
	_, err := rc.Registry().AddCustomField("Locker", TypeText)
	require.NoError(t, err)
	before := rc.Registry().Snapshot()

	backend.loadErr = errors.New("connection reset")
	err = rc.Load(context.Background(), true)
	require.ErrorIs(t, err, ErrLoadFailure)
	assert.Equal(t, before, rc.Registry().Snapshot())

	backend.loadErr = nil
	backend.snapshot = &Snapshot{CustomFields: []Field{{ID: "x", Name: "Dup"}, {ID: "y", Name: "Other", Type: "bad"}}}
	require.ErrorIs(t, rc.Load(context.Background(), true), ErrLoadFailure)
	assert.Equal(t, before, rc.Registry().Snapshot())
}

func TestReconciler_LoadUsesCacheUnlessForced(t *testing.T) {
	backend := &fakeBackend{snapshot: testSnapshot()}
	cache := mapCache{}
	rc := NewReconciler(NewRegistry(), backend, WithCache(cache, "inst-1"))

	require.NoError(t, rc.Load(context.Background(), false))
	require.NoError(t, rc.Load(context.Background(), false))
	assert.Equal(t, 1, backend.loads)

	backend.snapshot.CustomFields = append(backend.snapshot.CustomFields, Field{ID: "cu-new", Name: "New", Order: 1})
	require.NoError(t, rc.Load(context.Background(), true))
	assert.Equal(t, 2, backend.loads)
	assert.Len(t, rc.Registry().Snapshot().CustomFields, 2)
	assert.Len(t, cache["inst-1"].CustomFields, 2)
}

func TestReconciler_SavePromotesTempIDs(t *testing.T) {
	backend := &fakeBackend{snapshot: testSnapshot()}
	cache := mapCache{}
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	rc := NewReconciler(NewRegistry(), backend, WithCache(cache, "inst-1"), WithClock(func() time.Time { return now }))
	require.NoError(t, rc.Load(context.Background(), false))
	reg := rc.Registry()

	custom, err := reg.AddCustomField("Locker", TypeText)
	require.NoError(t, err)
	g, err := reg.CreateGroupFromSelection([]string{"in-house", custom.ID}, "Hostel")
	require.NoError(t, err)
	added, err := reg.AddFieldToGroup(g.ID, FieldDraft{Name: "Room", Type: TypeText})
	require.NoError(t, err)

	res, err := rc.Save(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 4, reg.Version())
	assert.Equal(t, now, reg.LastUpdated())

	require.Len(t, backend.saved, 1)
	assert.Equal(t, now, backend.saved[0].LastUpdated)
	assert.Equal(t, 3, backend.saved[0].Version)

	snap := reg.Snapshot()
	assert.Empty(t, snap.TempIDs())
	for _, f := range snap.CustomFields {
		assert.False(t, id.IsTemp(f.ID))
		for _, gid := range f.GroupIDs {
			assert.False(t, id.IsTemp(gid))
		}
	}
	require.Len(t, snap.FieldGroups, 1)
	group := snap.FieldGroups[0]
	assert.Equal(t, res.IDMap[g.ID], group.ID)
	assert.Equal(t, []string{"in-house", res.IDMap[custom.ID], res.IDMap[added.ID]}, memberIDs(group))
	assert.Equal(t, "Hostel", reg.GroupLabel(res.IDMap[added.ID]))
	assert.Equal(t, []string{group.ID}, reg.GroupsOf("in-house"))

	// Promoted ids are usable right away.
	require.NoError(t, reg.RemoveFieldFromGroup(group.ID, res.IDMap[custom.ID]))

	assert.Empty(t, cache["inst-1"].TempIDs())
}

func TestReconciler_SaveFailureKeepsEdits(t *testing.T) {
	backend := &fakeBackend{snapshot: testSnapshot()}
	rc := NewReconciler(NewRegistry(), backend)
	require.NoError(t, rc.Load(context.Background(), false))
	f, err := rc.Registry().AddCustomField("Locker", TypeText)
	require.NoError(t, err)
	before := rc.Registry().Snapshot()

	tests := []struct {
		name   string
		saveFn func(s *Snapshot) (*SaveResult, error)
	}{
		{name: "transport", saveFn: func(*Snapshot) (*SaveResult, error) { return nil, errors.New("timeout") }},
		{name: "rejected", saveFn: func(*Snapshot) (*SaveResult, error) { return &SaveResult{Success: false}, nil }},
		{name: "incomplete id map", saveFn: func(s *Snapshot) (*SaveResult, error) {
			return &SaveResult{Success: true, Version: 9, IDMap: map[string]string{}}, nil
		}},
		{name: "temp id returned", saveFn: func(s *Snapshot) (*SaveResult, error) {
			return &SaveResult{Success: true, Version: 9, IDMap: map[string]string{f.ID: id.NewTemp()}}, nil
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend.saveFn = tt.saveFn
			_, err := rc.Save(context.Background())
			require.ErrorIs(t, err, ErrSaveFailure)
			assert.Equal(t, before, rc.Registry().Snapshot())
			assert.False(t, rc.Saving())
		})
	}
}

func TestReconciler_SaveConcurrentModification(t *testing.T) {
	backend := &fakeBackend{
		snapshot: testSnapshot(),
		saveFn: func(*Snapshot) (*SaveResult, error) {
			return nil, apperror.NewConcurrentModification("field settings", "inst-1")
		},
	}
	rc := NewReconciler(NewRegistry(), backend)
	require.NoError(t, rc.Load(context.Background(), false))

	_, err := rc.Save(context.Background())
	assert.True(t, apperror.IsConcurrentModification(err))
}

func TestReconciler_SecondSaveIsRejected(t *testing.T) {
	backend := &fakeBackend{
		snapshot: testSnapshot(),
		entered:  make(chan struct{}),
		release:  make(chan struct{}),
	}
	rc := NewReconciler(NewRegistry(), backend)
	require.NoError(t, rc.Load(context.Background(), false))

	done := make(chan error, 1)
	go func() {
		_, err := rc.Save(context.Background())
		done <- err
	}()
	<-backend.entered

	assert.True(t, rc.Saving())
	_, err := rc.Save(context.Background())
	assert.ErrorIs(t, err, ErrSaveInProgress)

	close(backend.release)
	require.NoError(t, <-done)
	assert.False(t, rc.Saving())
}

func TestReconciler_BloodGroupScenario(t *testing.T) {
	backend := &fakeBackend{snapshot: testSnapshot()}
	rc := NewReconciler(NewRegistry(), backend)
	require.NoError(t, rc.Load(context.Background(), false))
	reg := rc.Registry()

	f, err := reg.AddCustomField("Blood Group", TypeDropdown, "A", "B")
	require.NoError(t, err)
	require.NoError(t, reg.SetFieldVisibility(f.ID, LocationLearnersList))

	res, err := rc.Save(context.Background())
	require.NoError(t, err)

	cols := Project(LocationLearnersList, reg.Snapshot())
	require.Len(t, cols, 1)
	assert.Equal(t, ColumnDescriptor{ID: res.IDMap[f.ID], DisplayName: "Blood Group", Type: TypeDropdown}, cols[0])

	_, err = reg.AddCustomField("blood group", TypeText)
	require.ErrorIs(t, err, ErrDuplicateName)

	count := 0
	for _, c := range reg.Snapshot().CustomFields {
		if c.Name == "Blood Group" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}
