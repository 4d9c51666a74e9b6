package fieldsettings

import (
	"slices"
	"strings"

	"github.com/hashicorp/go-set/v2"

	"fieldsettings/internal/core/apperror"
	"fieldsettings/internal/core/id"
)

// GroupLabelSeparator joins group names in a field's derived group label.
const GroupLabelSeparator = ", "

// CreateGroupFromSelection builds a new group out of the selected fields.
// Selected groups are flattened into their member fields; a field selected
// more than once keeps its first position. Nothing happens when the
// selection is empty or the name is blank.
func (r *Registry) CreateGroupFromSelection(selectedIDs []string, name string) (*FieldGroup, error) {
	name = strings.TrimSpace(name)
	if len(selectedIDs) == 0 || name == "" {
		return nil, nil
	}

	var members []GroupMember
	seen := make(map[string]struct{}, len(selectedIDs))
	add := func(fieldID string, category Category) {
		if _, dup := seen[fieldID]; dup {
			return
		}
		seen[fieldID] = struct{}{}
		members = append(members, GroupMember{
			FieldID:       fieldID,
			Category:      category,
			InternalOrder: len(members),
		})
	}

	for _, selected := range selectedIDs {
		s, ok := r.index[selected]
		if !ok {
			return nil, errFieldNotFound(selected)
		}
		switch s.category {
		case CategoryFixed, CategoryInstitute, CategoryCustom:
			add(selected, s.category)
		case CategoryGroup:
			for _, m := range r.groups[s.pos].Members {
				add(m.FieldID, m.Category)
			}
		default:
			return nil, apperror.NewValidation("system fields cannot be grouped").
				WithDetail("key", selected)
		}
	}
	if len(members) == 0 {
		return nil, nil
	}

	g := FieldGroup{
		ID:      id.NewTempGroup(),
		Name:    name,
		Order:   len(r.groups),
		Members: members,
	}
	r.groups = append(r.groups, g)
	for _, m := range members {
		r.attach(m.FieldID, g.ID)
	}
	r.reindex()

	out := g.clone()
	return &out, nil
}

// AddFieldToGroup creates a custom field from the draft and appends it to
// the group. The field stays visible on its own as a custom field.
func (r *Registry) AddFieldToGroup(groupID string, draft FieldDraft) (Field, error) {
	s, ok := r.index[groupID]
	if !ok || s.category != CategoryGroup {
		return Field{}, apperror.NewNotFound("field group", groupID)
	}
	if strings.TrimSpace(draft.Name) == "" || draft.Type == "" {
		return Field{}, apperror.NewValidation("field name and type are required")
	}
	f, err := r.newField(draft)
	if err != nil {
		return Field{}, err
	}

	f.Order = len(r.custom)
	r.custom = append(r.custom, f)

	g := &r.groups[s.pos]
	g.Members = append(g.Members, GroupMember{
		FieldID:       f.ID,
		Category:      CategoryCustom,
		InternalOrder: len(g.Members),
	})
	r.attach(f.ID, groupID)
	r.reindex()
	return r.decorate(f), nil
}

// RemoveGroup deletes a group. Its member fields are detached, not deleted.
func (r *Registry) RemoveGroup(groupID string) error {
	s, ok := r.index[groupID]
	if !ok || s.category != CategoryGroup {
		return apperror.NewNotFound("field group", groupID)
	}
	for _, m := range r.groups[s.pos].Members {
		r.detach(m.FieldID, groupID)
	}
	r.groups = slices.Delete(r.groups, s.pos, s.pos+1)
	renumberGroups(r.groups)
	r.reindex()
	return nil
}

// RemoveFieldFromGroup detaches one field from one group.
func (r *Registry) RemoveFieldFromGroup(groupID, fieldID string) error {
	s, ok := r.index[groupID]
	if !ok || s.category != CategoryGroup {
		return apperror.NewNotFound("field group", groupID)
	}
	pos, ok := r.members[groupID][fieldID]
	if !ok {
		return apperror.NewNotFound("group member", fieldID).WithDetail("groupId", groupID)
	}
	g := &r.groups[s.pos]
	g.Members = slices.Delete(g.Members, pos, pos+1)
	renumberMembers(g)
	r.detach(fieldID, groupID)
	r.reindex()
	return nil
}

// RenameGroup changes a group's name. Group names need not be unique.
func (r *Registry) RenameGroup(groupID, name string) error {
	s, ok := r.index[groupID]
	if !ok || s.category != CategoryGroup {
		return apperror.NewNotFound("field group", groupID)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return apperror.NewValidation("group name is required")
	}
	r.groups[s.pos].Name = name
	return nil
}

// Group returns a copy of the group with groupID.
func (r *Registry) Group(groupID string) (FieldGroup, bool) {
	s, ok := r.index[groupID]
	if !ok || s.category != CategoryGroup {
		return FieldGroup{}, false
	}
	return r.groups[s.pos].clone(), true
}

// GroupsOf returns the ids of the groups fieldID belongs to, in group order.
func (r *Registry) GroupsOf(fieldID string) []string {
	in, ok := r.memberships[fieldID]
	if !ok || in.Empty() {
		return nil
	}
	out := make([]string, 0, in.Size())
	for _, g := range r.groups {
		if in.Contains(g.ID) {
			out = append(out, g.ID)
		}
	}
	return out
}

// GroupLabel returns the names of the groups fieldID belongs to, joined
// in group order. It is empty for ungrouped fields.
func (r *Registry) GroupLabel(fieldID string) string {
	in, ok := r.memberships[fieldID]
	if !ok || in.Empty() {
		return ""
	}
	names := make([]string, 0, in.Size())
	for _, g := range r.groups {
		if in.Contains(g.ID) {
			names = append(names, g.Name)
		}
	}
	return strings.Join(names, GroupLabelSeparator)
}

func (r *Registry) attach(fieldID, groupID string) {
	in, ok := r.memberships[fieldID]
	if !ok {
		in = set.New[string](1)
		r.memberships[fieldID] = in
	}
	in.Insert(groupID)
}

func (r *Registry) detach(fieldID, groupID string) {
	in, ok := r.memberships[fieldID]
	if !ok {
		return
	}
	in.Remove(groupID)
	if in.Empty() {
		delete(r.memberships, fieldID)
	}
}

// detachEverywhere removes fieldID from every group it belongs to.
func (r *Registry) detachEverywhere(fieldID string) {
	for gi := range r.groups {
		g := &r.groups[gi]
		i := slices.IndexFunc(g.Members, func(m GroupMember) bool { return m.FieldID == fieldID })
		if i < 0 {
			continue
		}
		g.Members = slices.Delete(g.Members, i, i+1)
		renumberMembers(g)
	}
	delete(r.memberships, fieldID)
}
