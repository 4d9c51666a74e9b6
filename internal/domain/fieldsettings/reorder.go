package fieldsettings

// Move places draggedID at targetID's position and renumbers the collection.
// draggedID resolves to its collection (system, fixed, institute, custom or
// groups); a target outside that collection is a no-op. Member lists are
// reordered with MoveGroupMember. Move reports whether the registry changed.
func (r *Registry) Move(draggedID, targetID string) bool {
	if draggedID == targetID {
		return false
	}
	from, okFrom := r.index[draggedID]
	to, okTo := r.index[targetID]
	if !okFrom || !okTo || from.category != to.category {
		return false
	}
	switch from.category {
	case CategorySystem:
		moveItem(r.system, from.pos, to.pos)
		renumberSystem(r.system)
	case CategoryFixed:
		moveItem(r.fixed, from.pos, to.pos)
		renumberFixed(r.fixed)
	case CategoryInstitute:
		moveItem(r.institute, from.pos, to.pos)
		renumberFields(r.institute)
	case CategoryCustom:
		moveItem(r.custom, from.pos, to.pos)
		renumberFields(r.custom)
	case CategoryGroup:
		moveItem(r.groups, from.pos, to.pos)
		renumberGroups(r.groups)
	}
	r.reindex()
	return true
}

// MoveGroupMember reorders the member list of one group.
func (r *Registry) MoveGroupMember(groupID, draggedID, targetID string) bool {
	if draggedID == targetID {
		return false
	}
	s, ok := r.index[groupID]
	if !ok || s.category != CategoryGroup {
		return false
	}
	return r.moveWithinGroup(s.pos, draggedID, targetID)
}

func (r *Registry) moveWithinGroup(gi int, draggedID, targetID string) bool {
	g := &r.groups[gi]
	pos := r.members[g.ID]
	from, okFrom := pos[draggedID]
	to, okTo := pos[targetID]
	if !okFrom || !okTo {
		return false
	}
	moveItem(g.Members, from, to)
	renumberMembers(g)
	r.reindex()
	return true
}

// moveItem removes the element at from and reinserts it at to, shifting
// the elements in between.
func moveItem[T any](items []T, from, to int) {
	if from == to {
		return
	}
	item := items[from]
	if from < to {
		copy(items[from:to], items[from+1:to+1])
	} else {
		copy(items[to+1:from+1], items[to:from])
	}
	items[to] = item
}
