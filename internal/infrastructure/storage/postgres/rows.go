package postgres

import (
	"time"

	"fieldsettings/internal/core/id"
	"fieldsettings/internal/domain/fieldsettings"
)

// Table names.
const (
	tableSettings = "field_settings"
	tableSystem   = "field_settings_system"
	tableFields   = "field_settings_fields"
	tableGroups   = "field_settings_groups"
	tableMembers  = "field_settings_group_members"
	tableHistory  = "field_settings_history"
)

type settingsRow struct {
	InstituteID string    `db:"institute_id"`
	Version     int       `db:"version"`
	LastUpdated time.Time `db:"last_updated"`
}

type systemFieldRow struct {
	InstituteID  string `db:"institute_id"`
	Key          string `db:"field_key"`
	DefaultLabel string `db:"default_label"`
	Label        string `db:"label"`
	Visible      bool   `db:"visible"`
	SortOrder    int    `db:"sort_order"`
}

// fieldRow stores fixed, institute and custom fields in one table.
type fieldRow struct {
	InstituteID  string                   `db:"institute_id"`
	ID           string                   `db:"id"`
	Category     fieldsettings.Category   `db:"category"`
	Name         string                   `db:"name"`
	FieldType    fieldsettings.FieldType  `db:"field_type"`
	Options      []string                 `db:"options"`
	Required     bool                     `db:"required"`
	Visibility   fieldsettings.Visibility `db:"visibility"`
	SortOrder    int                      `db:"sort_order"`
	CanBeDeleted bool                     `db:"can_be_deleted"`
	CanBeEdited  bool                     `db:"can_be_edited"`
	CanBeRenamed bool                     `db:"can_be_renamed"`
}

type groupRow struct {
	InstituteID string `db:"institute_id"`
	ID          string `db:"id"`
	Name        string `db:"name"`
	SortOrder   int    `db:"sort_order"`
}

type memberRow struct {
	InstituteID string `db:"institute_id"`
	GroupID     string `db:"group_id"`
	FieldID     string `db:"field_id"`
	SortOrder   int    `db:"sort_order"`
}

var (
	settingsColumns = ExtractDBColumns[settingsRow]()
	systemColumns   = ExtractDBColumns[systemFieldRow]()
	fieldColumns    = ExtractDBColumns[fieldRow]()
	groupColumns    = ExtractDBColumns[groupRow]()
	memberColumns   = ExtractDBColumns[memberRow]()
)

// settingsRows is the relational form of one institute's snapshot.
type settingsRows struct {
	head    settingsRow
	system  []systemFieldRow
	fields  []fieldRow
	groups  []groupRow
	members []memberRow
}

// persistIDs maps every temporary id in s to a fresh persisted one.
func persistIDs(s *fieldsettings.Snapshot) map[string]string {
	idMap := make(map[string]string)
	for _, tmp := range s.TempIDs() {
		idMap[tmp] = id.NewString()
	}
	return idMap
}

// toRows flattens s, exchanging ids through idMap.
func toRows(instituteID string, s *fieldsettings.Snapshot, idMap map[string]string) settingsRows {
	swap := func(v string) string {
		if p, ok := idMap[v]; ok {
			return p
		}
		return v
	}
	field := func(f fieldsettings.Field, category fieldsettings.Category) fieldRow {
		return fieldRow{
			InstituteID: instituteID,
			ID:          swap(f.ID),
			Category:    category,
			Name:        f.Name,
			FieldType:   f.Type,
			Options:     f.Options,
			Required:    f.Required,
			Visibility:  f.Visibility.Clone(),
			SortOrder:   f.Order,
		}
	}

	rows := settingsRows{
		head: settingsRow{InstituteID: instituteID, Version: s.Version, LastUpdated: s.LastUpdated},
	}
	for _, f := range s.SystemFields {
		rows.system = append(rows.system, systemFieldRow{
			InstituteID:  instituteID,
			Key:          f.Key,
			DefaultLabel: f.DefaultLabel,
			Label:        f.Label,
			Visible:      f.Visible,
			SortOrder:    f.Order,
		})
	}
	for _, f := range s.FixedFields {
		r := field(f.Field, fieldsettings.CategoryFixed)
		r.CanBeDeleted = f.CanBeDeleted
		r.CanBeEdited = f.CanBeEdited
		r.CanBeRenamed = f.CanBeRenamed
		rows.fields = append(rows.fields, r)
	}
	for _, f := range s.InstituteFields {
		rows.fields = append(rows.fields, field(f, fieldsettings.CategoryInstitute))
	}
	for _, f := range s.CustomFields {
		rows.fields = append(rows.fields, field(f, fieldsettings.CategoryCustom))
	}
	for _, g := range s.FieldGroups {
		groupID := swap(g.ID)
		rows.groups = append(rows.groups, groupRow{
			InstituteID: instituteID,
			ID:          groupID,
			Name:        g.Name,
			SortOrder:   g.Order,
		})
		for _, m := range g.Members {
			rows.members = append(rows.members, memberRow{
				InstituteID: instituteID,
				GroupID:     groupID,
				FieldID:     swap(m.FieldID),
				SortOrder:   m.InternalOrder,
			})
		}
	}
	return rows
}

// fromRows assembles a snapshot. Rows are expected in sort order.
func fromRows(rows settingsRows) *fieldsettings.Snapshot {
	s := &fieldsettings.Snapshot{
		SystemFields:    make([]fieldsettings.SystemField, 0, len(rows.system)),
		FixedFields:     []fieldsettings.FixedField{},
		InstituteFields: []fieldsettings.Field{},
		CustomFields:    []fieldsettings.Field{},
		FieldGroups:     make([]fieldsettings.FieldGroup, 0, len(rows.groups)),
		LastUpdated:     rows.head.LastUpdated,
		Version:         rows.head.Version,
	}
	for _, r := range rows.system {
		s.SystemFields = append(s.SystemFields, fieldsettings.SystemField{
			Key:          r.Key,
			DefaultLabel: r.DefaultLabel,
			Label:        r.Label,
			Visible:      r.Visible,
			Order:        r.SortOrder,
		})
	}

	categories := make(map[string]fieldsettings.Category, len(rows.fields))
	for _, r := range rows.fields {
		f := fieldsettings.Field{
			ID:         r.ID,
			Name:       r.Name,
			Type:       r.FieldType,
			Options:    r.Options,
			Required:   r.Required,
			Visibility: r.Visibility.Clone(),
			Order:      r.SortOrder,
		}
		categories[r.ID] = r.Category
		switch r.Category {
		case fieldsettings.CategoryFixed:
			s.FixedFields = append(s.FixedFields, fieldsettings.FixedField{
				Field:        f,
				CanBeDeleted: r.CanBeDeleted,
				CanBeEdited:  r.CanBeEdited,
				CanBeRenamed: r.CanBeRenamed,
			})
		case fieldsettings.CategoryInstitute:
			s.InstituteFields = append(s.InstituteFields, f)
		default:
			s.CustomFields = append(s.CustomFields, f)
		}
	}

	members := make(map[string][]fieldsettings.GroupMember, len(rows.groups))
	for _, r := range rows.members {
		members[r.GroupID] = append(members[r.GroupID], fieldsettings.GroupMember{
			FieldID:       r.FieldID,
			Category:      categories[r.FieldID],
			InternalOrder: r.SortOrder,
		})
	}
	for _, r := range rows.groups {
		g := fieldsettings.FieldGroup{
			ID:      r.ID,
			Name:    r.Name,
			Order:   r.SortOrder,
			Members: members[r.ID],
		}
		if g.Members == nil {
			g.Members = []fieldsettings.GroupMember{}
		}
		s.FieldGroups = append(s.FieldGroups, g)
	}
	return s
}
