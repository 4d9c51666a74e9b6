package fieldsettings

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldsettings/internal/core/apperror"
	"fieldsettings/internal/core/id"
)

func memberIDs(g FieldGroup) []string {
	out := make([]string, len(g.Members))
	for i, m := range g.Members {
		out[i] = m.FieldID
	}
	return out
}

func TestCreateGroupFromSelection_ContactInfo(t *testing.T) {
	reg := newTestRegistry(t)

	g, err := reg.CreateGroupFromSelection([]string{"in-club", "fx-guardian", "in-house"}, "Contact Info")
	require.NoError(t, err)
	require.NotNil(t, g)

	assert.True(t, id.IsTemp(g.ID))
	assert.True(t, strings.HasPrefix(g.ID, "temp_group_"))
	assert.Equal(t, []string{"in-club", "fx-guardian", "in-house"}, memberIDs(*g))
	for i, m := range g.Members {
		assert.Equal(t, i, m.InternalOrder)
	}
	assert.Equal(t, CategoryFixed, g.Members[1].Category)

	snap := reg.Snapshot()
	assert.Len(t, snap.InstituteFields, 2)
	assert.Len(t, snap.FixedFields, 2)
	for _, fieldID := range []string{"in-club", "fx-guardian", "in-house"} {
		f, _, ok := reg.Field(fieldID)
		require.True(t, ok)
		assert.Equal(t, "Contact Info", f.GroupName)
		assert.Equal(t, []string{g.ID}, f.GroupIDs)
	}
	f, _, _ := reg.Field("cu-bus")
	assert.Empty(t, f.GroupName)
}

func TestCreateGroupFromSelection_FlattensNestedGroups(t *testing.T) {
	reg := newTestRegistry(t)

	inner, err := reg.CreateGroupFromSelection([]string{"in-house", "in-club"}, "Inner")
	require.NoError(t, err)

	outer, err := reg.CreateGroupFromSelection([]string{inner.ID, "cu-bus", "in-house"}, "Outer")
	require.NoError(t, err)

	assert.Equal(t, []string{"in-house", "in-club", "cu-bus"}, memberIDs(*outer))
	assert.Equal(t, 1, outer.Order)
	assert.Equal(t, "Inner, Outer", reg.GroupLabel("in-house"))
	assert.Equal(t, "Outer", reg.GroupLabel("cu-bus"))

	// The inner group is untouched.
	g, ok := reg.Group(inner.ID)
	require.True(t, ok)
	assert.Equal(t, []string{"in-house", "in-club"}, memberIDs(g))
}

func TestCreateGroupFromSelection_NoOp(t *testing.T) {
	reg := newTestRegistry(t)

	g, err := reg.CreateGroupFromSelection(nil, "Empty")
	assert.NoError(t, err)
	assert.Nil(t, g)

	g, err = reg.CreateGroupFromSelection([]string{"in-house"}, "   ")
	assert.NoError(t, err)
	assert.Nil(t, g)

	assert.Empty(t, reg.Snapshot().FieldGroups)
}

func TestCreateGroupFromSelection_Rejects(t *testing.T) {
	reg := newTestRegistry(t)

	_, err := reg.CreateGroupFromSelection([]string{"in-house", "missing"}, "G")
	assert.True(t, apperror.IsNotFound(err))

	_, err = reg.CreateGroupFromSelection([]string{KeyEmail}, "G")
	assert.True(t, apperror.IsAppError(err))

	assert.Empty(t, reg.Snapshot().FieldGroups)
	assert.Empty(t, reg.GroupsOf("in-house"))
}

func TestAddFieldToGroup(t *testing.T) {
	reg := newTestRegistry(t)
	g, err := reg.CreateGroupFromSelection([]string{"in-house"}, "Hostel")
	require.NoError(t, err)

	f, err := reg.AddFieldToGroup(g.ID, FieldDraft{Name: "Room", Type: TypeDropdown})
	require.NoError(t, err)
	assert.True(t, id.IsTemp(f.ID))
	assert.Equal(t, []string{DefaultOption}, f.Options)
	assert.Equal(t, "Hostel", f.GroupName)

	snap := reg.Snapshot()
	require.Len(t, snap.CustomFields, 2)
	assert.Equal(t, f.ID, snap.CustomFields[1].ID)
	assert.Equal(t, "Hostel", snap.CustomFields[1].GroupName)

	group, _ := reg.Group(g.ID)
	require.Len(t, group.Members, 2)
	assert.Equal(t, GroupMember{FieldID: f.ID, Category: CategoryCustom, InternalOrder: 1}, group.Members[1])
}

func TestAddFieldToGroup_Rejects(t *testing.T) {
	reg := newTestRegistry(t)
	g, err := reg.CreateGroupFromSelection([]string{"in-house"}, "Hostel")
	require.NoError(t, err)

	_, err = reg.AddFieldToGroup(g.ID, FieldDraft{Type: TypeText})
	assert.True(t, apperror.IsAppError(err))

	_, err = reg.AddFieldToGroup(g.ID, FieldDraft{Name: "Room"})
	assert.True(t, apperror.IsAppError(err))

	_, err = reg.AddFieldToGroup(g.ID, FieldDraft{Name: "bus route", Type: TypeText})
	assert.ErrorIs(t, err, ErrDuplicateName)

	_, err = reg.AddFieldToGroup("missing", FieldDraft{Name: "Room", Type: TypeText})
	assert.True(t, apperror.IsNotFound(err))

	// A field id is not a group id.
	_, err = reg.AddFieldToGroup("in-house", FieldDraft{Name: "Room", Type: TypeText})
	assert.True(t, apperror.IsNotFound(err))

	assert.Len(t, reg.Snapshot().CustomFields, 1)
	group, _ := reg.Group(g.ID)
	assert.Len(t, group.Members, 1)
}

func TestRemoveGroup_CleansLabels(t *testing.T) {
	reg := newTestRegistry(t)
	a, err := reg.CreateGroupFromSelection([]string{"in-house", "fx-guardian", "cu-bus"}, "Alpha")
	require.NoError(t, err)
	b, err := reg.CreateGroupFromSelection([]string{"in-house", "in-club"}, "Beta")
	require.NoError(t, err)

	require.NoError(t, reg.RemoveGroup(a.ID))

	snap := reg.Snapshot()
	var all []Field
	for _, f := range snap.FixedFields {
		all = append(all, f.Field)
	}
	all = append(all, snap.InstituteFields...)
	all = append(all, snap.CustomFields...)
	require.Len(t, all, 5)
	for _, f := range all {
		assert.NotContains(t, f.GroupName, "Alpha", f.ID)
		assert.NotContains(t, f.GroupIDs, a.ID, f.ID)
	}

	assert.Equal(t, "Beta", reg.GroupLabel("in-house"))
	assert.Equal(t, "Beta", reg.GroupLabel("in-club"))
	assert.Empty(t, reg.GroupLabel("cu-bus"))

	require.Len(t, snap.FieldGroups, 1)
	assert.Equal(t, b.ID, snap.FieldGroups[0].ID)
	assert.Equal(t, 0, snap.FieldGroups[0].Order)

	assert.True(t, apperror.IsNotFound(reg.RemoveGroup(a.ID)))
}

func TestRemoveFieldFromGroup(t *testing.T) {
	reg := newTestRegistry(t)
	a, err := reg.CreateGroupFromSelection([]string{"in-house", "in-club", "cu-bus"}, "Alpha")
	require.NoError(t, err)
	_, err = reg.CreateGroupFromSelection([]string{"in-club"}, "Beta")
	require.NoError(t, err)

	require.NoError(t, reg.RemoveFieldFromGroup(a.ID, "in-club"))

	group, _ := reg.Group(a.ID)
	assert.Equal(t, []string{"in-house", "cu-bus"}, memberIDs(group))
	assert.Equal(t, 1, group.Members[1].InternalOrder)
	assert.Equal(t, "Beta", reg.GroupLabel("in-club"))

	_, _, ok := reg.Field("in-club")
	assert.True(t, ok)

	assert.True(t, apperror.IsNotFound(reg.RemoveFieldFromGroup(a.ID, "in-club")))
	assert.True(t, apperror.IsNotFound(reg.RemoveFieldFromGroup("missing", "in-house")))
}

func TestRenameGroup(t *testing.T) {
	reg := newTestRegistry(t)
	g, err := reg.CreateGroupFromSelection([]string{"in-house"}, "Alpha")
	require.NoError(t, err)

	require.NoError(t, reg.RenameGroup(g.ID, "Residence"))
	assert.Equal(t, "Residence", reg.GroupLabel("in-house"))

	assert.True(t, apperror.IsAppError(reg.RenameGroup(g.ID, " ")))
	assert.True(t, apperror.IsNotFound(reg.RenameGroup("in-house", "X")))
}
