// Package fieldsettings implements the custom field settings engine: a
// registry of system, fixed, institute and custom fields plus field groups,
// with per-location visibility, grouping, reordering, column projection and
// snapshot persistence.
//
// A Registry is owned by a single caller and is not safe for concurrent use.
package fieldsettings

import (
	"slices"
	"time"

	"fieldsettings/internal/core/apperror"
	"fieldsettings/internal/core/id"
)

// FieldType is the input type of an administrator-defined field.
type FieldType string

const (
	TypeText     FieldType = "text"
	TypeDropdown FieldType = "dropdown"
)

// DefaultOption seeds every new dropdown field.
const DefaultOption = "Option 1"

// Valid reports whether t is a supported field type.
func (t FieldType) Valid() bool {
	return t == TypeText || t == TypeDropdown
}

// ParseFieldType validates a field type coming from the outside.
func ParseFieldType(s string) (FieldType, error) {
	t := FieldType(s)
	if !t.Valid() {
		return "", apperror.NewValidation("unknown field type").
			WithDetail("type", s)
	}
	return t, nil
}

// Category names the collection a record belongs to.
type Category string

const (
	CategorySystem    Category = "system"
	CategoryFixed     Category = "fixed"
	CategoryInstitute Category = "institute"
	CategoryCustom    Category = "custom"
	CategoryGroup     Category = "group"
)

// SystemField is a built-in field whose key never changes. Only its label
// and visibility can be customized. Order is 1-based.
type SystemField struct {
	Key          string `json:"key"`
	DefaultLabel string `json:"defaultLabel"`
	Label        string `json:"label,omitempty"`
	Visible      bool   `json:"visible"`
	Order        int    `json:"order"`
}

// DisplayLabel returns the override label or the default one.
func (f SystemField) DisplayLabel() string {
	if f.Label != "" {
		return f.Label
	}
	return f.DefaultLabel
}

// Field is an institute or custom field. Fixed fields embed it.
//
// GroupIDs and GroupName are derived from the registry's membership
// relation when a snapshot is taken; they are ignored on load.
type Field struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Type       FieldType  `json:"type"`
	Options    []string   `json:"options,omitempty"`
	Required   bool       `json:"required"`
	Visibility Visibility `json:"visibility"`
	Order      int        `json:"order"`
	GroupIDs   []string   `json:"groupIds,omitempty"`
	GroupName  string     `json:"groupName,omitempty"`
}

func (f Field) clone() Field {
	out := f
	out.Options = slices.Clone(f.Options)
	out.Visibility = f.Visibility.Clone()
	out.GroupIDs = slices.Clone(f.GroupIDs)
	return out
}

// FixedField is a system-owned field administrators may only partially customize.
type FixedField struct {
	Field
	CanBeDeleted bool `json:"canBeDeleted"`
	CanBeEdited  bool `json:"canBeEdited"`
	CanBeRenamed bool `json:"canBeRenamed"`
}

func (f FixedField) clone() FixedField {
	out := f
	out.Field = f.Field.clone()
	return out
}

// GroupMember references a field that belongs to a group.
type GroupMember struct {
	FieldID       string   `json:"fieldId"`
	Category      Category `json:"category"`
	InternalOrder int      `json:"groupInternalOrder"`
}

// FieldGroup is a named, ordered collection of fields shown together.
type FieldGroup struct {
	ID      string        `json:"id"`
	Name    string        `json:"name"`
	Order   int           `json:"order"`
	Members []GroupMember `json:"fields"`
}

func (g FieldGroup) clone() FieldGroup {
	out := g
	out.Members = slices.Clone(g.Members)
	return out
}

// Snapshot is the full settings payload exchanged with the backend.
type Snapshot struct {
	SystemFields    []SystemField `json:"systemFields"`
	FixedFields     []FixedField  `json:"fixedFields"`
	InstituteFields []Field       `json:"instituteFields"`
	CustomFields    []Field       `json:"customFields"`
	FieldGroups     []FieldGroup  `json:"fieldGroups"`
	LastUpdated     time.Time     `json:"lastUpdated"`
	Version         int           `json:"version"`
}

// Clone returns a deep copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	out := &Snapshot{
		SystemFields:    slices.Clone(s.SystemFields),
		FixedFields:     make([]FixedField, len(s.FixedFields)),
		InstituteFields: make([]Field, len(s.InstituteFields)),
		CustomFields:    make([]Field, len(s.CustomFields)),
		FieldGroups:     make([]FieldGroup, len(s.FieldGroups)),
		LastUpdated:     s.LastUpdated,
		Version:         s.Version,
	}
	for i, f := range s.FixedFields {
		out.FixedFields[i] = f.clone()
	}
	for i, f := range s.InstituteFields {
		out.InstituteFields[i] = f.clone()
	}
	for i, f := range s.CustomFields {
		out.CustomFields[i] = f.clone()
	}
	for i, g := range s.FieldGroups {
		out.FieldGroups[i] = g.clone()
	}
	return out
}

// TempIDs returns every temporary identifier in the snapshot, fields first.
func (s *Snapshot) TempIDs() []string {
	var out []string
	seen := make(map[string]struct{})
	add := func(v string) {
		if !id.IsTemp(v) {
			return
		}
		if _, ok := seen[v]; ok {
			return
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	for _, f := range s.FixedFields {
		add(f.ID)
	}
	for _, f := range s.InstituteFields {
		add(f.ID)
	}
	for _, f := range s.CustomFields {
		add(f.ID)
	}
	for _, g := range s.FieldGroups {
		for _, m := range g.Members {
			add(m.FieldID)
		}
	}
	for _, g := range s.FieldGroups {
		add(g.ID)
	}
	return out
}

// SaveResult is what the backend returns for a successful save.
// IDMap exchanges every temporary id in the submitted snapshot for a persisted one.
type SaveResult struct {
	Success     bool              `json:"success"`
	Version     int               `json:"version"`
	LastUpdated time.Time         `json:"lastUpdated"`
	IDMap       map[string]string `json:"idMap,omitempty"`
}

// FieldDraft is a pending field definition submitted by an administrator.
type FieldDraft struct {
	Name    string
	Type    FieldType
	Options []string
}
