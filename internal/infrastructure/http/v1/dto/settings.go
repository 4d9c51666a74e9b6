package dto

import (
	"time"

	"fieldsettings/internal/domain/drafts"
	"fieldsettings/internal/domain/fieldsettings"
)

// --- Settings ---

// SaveResponse is returned by every successful save.
type SaveResponse struct {
	Success     bool              `json:"success"`
	Version     int               `json:"version"`
	LastUpdated time.Time         `json:"lastUpdated"`
	IDMap       map[string]string `json:"idMap"`
}

// FromSaveResult creates SaveResponse from a reconciler result.
func FromSaveResult(r *fieldsettings.SaveResult) SaveResponse {
	idMap := r.IDMap
	if idMap == nil {
		idMap = map[string]string{}
	}
	return SaveResponse{
		Success:     r.Success,
		Version:     r.Version,
		LastUpdated: r.LastUpdated,
		IDMap:       idMap,
	}
}

// ColumnsResponse lists the columns of one location.
type ColumnsResponse struct {
	Location fieldsettings.Location           `json:"location"`
	Columns  []fieldsettings.ColumnDescriptor `json:"columns"`
}

// --- Drafts ---

// DraftResponse describes a draft and its current contents.
type DraftResponse struct {
	ID          string                  `json:"id"`
	InstituteID string                  `json:"instituteId"`
	CreatedAt   time.Time               `json:"createdAt"`
	Settings    *fieldsettings.Snapshot `json:"settings"`
}

// FromDraft creates DraftResponse.
func FromDraft(d *drafts.Draft, s *fieldsettings.Snapshot) DraftResponse {
	return DraftResponse{
		ID:          d.ID,
		InstituteID: d.InstituteID,
		CreatedAt:   d.CreatedAt,
		Settings:    s,
	}
}

// DraftSaveResponse is a save result plus the promoted contents.
type DraftSaveResponse struct {
	SaveResponse
	Settings *fieldsettings.Snapshot `json:"settings"`
}

// CreatedResponse carries the id of a new field or group with the contents.
type CreatedResponse struct {
	ID       string                  `json:"id"`
	Settings *fieldsettings.Snapshot `json:"settings"`
}

// ReorderResponse reports whether anything moved.
type ReorderResponse struct {
	Moved    bool                    `json:"moved"`
	Settings *fieldsettings.Snapshot `json:"settings"`
}

// RenameRequest renames a field or group.
type RenameRequest struct {
	Name string `json:"name"`
}

// RenameSystemFieldRequest overrides a system field label. An empty label
// restores the default.
type RenameSystemFieldRequest struct {
	Label string `json:"label"`
}

// ChangeTypeRequest changes an institute field type.
type ChangeTypeRequest struct {
	Type string `json:"type" binding:"required"`
}

// VisibilityRequest flips one location bit.
type VisibilityRequest struct {
	Location string `json:"location" binding:"required"`
}

// AddOptionRequest appends a dropdown option.
type AddOptionRequest struct {
	Value string `json:"value"`
}

// EditOptionRequest replaces the option at Index.
type EditOptionRequest struct {
	Value string `json:"value"`
}

// FieldRequest describes a new custom field.
type FieldRequest struct {
	Name    string   `json:"name"`
	Type    string   `json:"type"`
	Options []string `json:"options"`
}

// ToDraft converts the request into a field draft.
func (r FieldRequest) ToDraft() (fieldsettings.FieldDraft, error) {
	t, err := fieldsettings.ParseFieldType(r.Type)
	if err != nil {
		return fieldsettings.FieldDraft{}, err
	}
	return fieldsettings.FieldDraft{Name: r.Name, Type: t, Options: r.Options}, nil
}

// CreateGroupRequest groups the selected fields or groups.
type CreateGroupRequest struct {
	Name     string   `json:"name"`
	FieldIDs []string `json:"fieldIds"`
}

// ReorderRequest moves DraggedID to TargetID's position. With GroupID set
// the move happens inside that group.
type ReorderRequest struct {
	DraggedID string `json:"draggedId" binding:"required"`
	TargetID  string `json:"targetId" binding:"required"`
	GroupID   string `json:"groupId,omitempty"`
}
