package fieldsettings

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMoveItem(t *testing.T) {
	tests := []struct {
		name     string
		from, to int
		want     []string
	}{
		{name: "forward", from: 0, to: 2, want: []string{"b", "c", "a", "d"}},
		{name: "backward", from: 3, to: 1, want: []string{"a", "d", "b", "c"}},
		{name: "adjacent", from: 1, to: 2, want: []string{"a", "c", "b", "d"}},
		{name: "same", from: 2, to: 2, want: []string{"a", "b", "c", "d"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items := []string{"a", "b", "c", "d"}
			moveItem(items, tt.from, tt.to)
			assert.Equal(t, tt.want, items)
		})
	}
}

func instituteIDs(t *testing.T, reg *Registry) []string {
	t.Helper()
	snap := reg.Snapshot()
	out := make([]string, len(snap.InstituteFields))
	for i, f := range snap.InstituteFields {
		out[i] = f.ID
		require.Equal(t, i, f.Order, "institute orders must be contiguous")
	}
	return out
}

func TestMove_SameIDIsNoOp(t *testing.T) {
	reg := newTestRegistry(t)
	before := reg.Snapshot()

	assert.False(t, reg.Move("in-house", "in-house"))
	assert.Equal(t, before, reg.Snapshot())
}

func TestMove_RoundTripRestoresOrder(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Replace(&Snapshot{
		InstituteFields: []Field{
			{ID: "a", Name: "A", Order: 0},
			{ID: "b", Name: "B", Order: 1},
			{ID: "c", Name: "C", Order: 2},
			{ID: "d", Name: "D", Order: 3},
		},
	}))

	require.True(t, reg.Move("a", "c"))
	assert.Equal(t, []string{"b", "c", "a", "d"}, instituteIDs(t, reg))

	// "b" now sits where "a" started.
	require.True(t, reg.Move("a", "b"))
	assert.Equal(t, []string{"a", "b", "c", "d"}, instituteIDs(t, reg))
}

func TestMove_SystemFieldsAreOneBased(t *testing.T) {
	reg := newTestRegistry(t)

	require.True(t, reg.Move(KeyPhone, KeyFullName))

	snap := reg.Snapshot()
	keys := []string{snap.SystemFields[0].Key, snap.SystemFields[1].Key, snap.SystemFields[2].Key}
	assert.Equal(t, []string{KeyPhone, KeyFullName, KeyEmail}, keys)
	for i, f := range snap.SystemFields {
		assert.Equal(t, i+1, f.Order)
	}
}

func TestMove_FixedAndCustom(t *testing.T) {
	reg := newTestRegistry(t)
	f, err := reg.AddCustomField("Locker", TypeText)
	require.NoError(t, err)

	require.True(t, reg.Move("fx-city", "fx-guardian"))
	require.True(t, reg.Move(f.ID, "cu-bus"))

	snap := reg.Snapshot()
	assert.Equal(t, "fx-city", snap.FixedFields[0].ID)
	assert.Equal(t, 0, snap.FixedFields[0].Order)
	assert.Equal(t, f.ID, snap.CustomFields[0].ID)
	assert.Equal(t, 1, snap.CustomFields[1].Order)
}

func TestMove_CrossCollectionIsNoOp(t *testing.T) {
	reg := newTestRegistry(t)
	before := reg.Snapshot()

	assert.False(t, reg.Move("in-house", "cu-bus"))
	assert.False(t, reg.Move(KeyEmail, "fx-guardian"))
	assert.False(t, reg.Move("in-house", "missing"))
	assert.False(t, reg.Move("missing", "in-house"))
	assert.Equal(t, before, reg.Snapshot())
}

func TestMove_Groups(t *testing.T) {
	reg := newTestRegistry(t)
	a, err := reg.CreateGroupFromSelection([]string{"in-house"}, "Alpha")
	require.NoError(t, err)
	b, err := reg.CreateGroupFromSelection([]string{"in-club"}, "Beta")
	require.NoError(t, err)

	require.True(t, reg.Move(b.ID, a.ID))

	snap := reg.Snapshot()
	assert.Equal(t, b.ID, snap.FieldGroups[0].ID)
	assert.Equal(t, 0, snap.FieldGroups[0].Order)
	assert.Equal(t, 1, snap.FieldGroups[1].Order)

	// Labels follow group order.
	_, err = reg.CreateGroupFromSelection([]string{"in-house", "in-club"}, "Gamma")
	require.NoError(t, err)
	assert.Equal(t, "Beta, Gamma", reg.GroupLabel("in-club"))
	assert.Equal(t, "Alpha, Gamma", reg.GroupLabel("in-house"))
	require.True(t, reg.Move(a.ID, b.ID))
	_, err = reg.CreateGroupFromSelection([]string{"in-club"}, "Delta")
	require.NoError(t, err)
	assert.Equal(t, "Beta, Gamma, Delta", reg.GroupLabel("in-club"))
}

func TestMove_GroupedFieldsAcrossCollections(t *testing.T) {
	reg := newTestRegistry(t)
	g, err := reg.CreateGroupFromSelection([]string{"in-house", "fx-guardian", "cu-bus"}, "Mixed")
	require.NoError(t, err)
	before := reg.Snapshot()

	// Sharing a group does not put two fields in the same collection.
	assert.False(t, reg.Move("cu-bus", "in-house"))
	assert.Equal(t, before, reg.Snapshot())

	require.True(t, reg.MoveGroupMember(g.ID, "cu-bus", "in-house"))
	group, _ := reg.Group(g.ID)
	assert.Equal(t, []string{"cu-bus", "in-house", "fx-guardian"}, memberIDs(group))
	for i, m := range group.Members {
		assert.Equal(t, i, m.InternalOrder)
	}
	assert.Equal(t, []string{"in-house", "in-club"}, instituteIDs(t, reg))
}

func TestMoveGroupMember(t *testing.T) {
	reg := newTestRegistry(t)
	g, err := reg.CreateGroupFromSelection([]string{"in-house", "in-club"}, "Pair")
	require.NoError(t, err)

	require.True(t, reg.MoveGroupMember(g.ID, "in-club", "in-house"))

	group, _ := reg.Group(g.ID)
	assert.Equal(t, []string{"in-club", "in-house"}, memberIDs(group))
	assert.Equal(t, []string{"in-house", "in-club"}, instituteIDs(t, reg))

	assert.False(t, reg.MoveGroupMember(g.ID, "in-club", "cu-bus"))
	assert.False(t, reg.MoveGroupMember("missing", "in-club", "in-house"))
	assert.False(t, reg.MoveGroupMember(g.ID, "in-club", "in-club"))
}
