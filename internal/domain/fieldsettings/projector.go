package fieldsettings

import (
	"cmp"
	"slices"
)

// ColumnDescriptor describes one visible field for table renderers.
type ColumnDescriptor struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	Type        FieldType `json:"type"`
}

// Project returns the institute fields followed by the custom fields that
// are visible at loc, each in registry order. The result is never nil.
func Project(loc Location, s *Snapshot) []ColumnDescriptor {
	out := []ColumnDescriptor{}
	if s == nil || !loc.Valid() {
		return out
	}
	for _, fields := range [][]Field{s.InstituteFields, s.CustomFields} {
		ordered := slices.Clone(fields)
		slices.SortStableFunc(ordered, func(a, b Field) int { return cmp.Compare(a.Order, b.Order) })
		for _, f := range ordered {
			if !f.Visibility.Shown(loc) {
				continue
			}
			out = append(out, ColumnDescriptor{ID: f.ID, DisplayName: f.Name, Type: f.Type})
		}
	}
	return out
}

// Columns projects the current registry contents.
func (r *Registry) Columns(loc Location) []ColumnDescriptor {
	return Project(loc, &Snapshot{InstituteFields: r.institute, CustomFields: r.custom})
}
