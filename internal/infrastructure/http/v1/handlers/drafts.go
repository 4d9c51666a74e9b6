package handlers

import (
	"github.com/gin-gonic/gin"

	"fieldsettings/internal/domain/drafts"
	"fieldsettings/internal/domain/fieldsettings"
	"fieldsettings/internal/infrastructure/http/v1/dto"
)

// DraftHandler exposes editing sessions and every registry mutation.
type DraftHandler struct {
	*BaseHandler
	manager *drafts.Manager
}

// NewDraftHandler creates a draft handler.
func NewDraftHandler(base *BaseHandler, manager *drafts.Manager) *DraftHandler {
	return &DraftHandler{BaseHandler: base, manager: manager}
}

func (h *DraftHandler) draft(c *gin.Context) (*drafts.Draft, bool) {
	d, err := h.manager.Get(h.GetInstituteID(c), c.Param("id"))
	if err != nil {
		h.Error(c, err)
		return nil, false
	}
	return d, true
}

// apply runs fn on the draft and answers with the resulting snapshot.
func (h *DraftHandler) apply(c *gin.Context, fn func(reg *fieldsettings.Registry) error) {
	d, ok := h.draft(c)
	if !ok {
		return
	}
	snap, err := d.Apply(fn)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, snap)
}

// --- Session ---

// Open handles POST /drafts.
func (h *DraftHandler) Open(c *gin.Context) {
	d, err := h.manager.Open(c.Request.Context(), h.GetInstituteID(c), h.ParseBoolQuery(c, "refresh"))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromDraft(d, d.Snapshot()))
}

// Get handles GET /drafts/:id.
func (h *DraftHandler) Get(c *gin.Context) {
	d, ok := h.draft(c)
	if !ok {
		return
	}
	h.OK(c, dto.FromDraft(d, d.Snapshot()))
}

// Discard handles DELETE /drafts/:id.
func (h *DraftHandler) Discard(c *gin.Context) {
	if err := h.manager.Discard(h.GetInstituteID(c), c.Param("id")); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}

// Reload handles POST /drafts/:id/reload.
func (h *DraftHandler) Reload(c *gin.Context) {
	d, ok := h.draft(c)
	if !ok {
		return
	}
	snap, err := d.Reload(c.Request.Context(), h.ParseBoolQuery(c, "refresh"))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromDraft(d, snap))
}

// Save handles POST /drafts/:id/save.
func (h *DraftHandler) Save(c *gin.Context) {
	d, ok := h.draft(c)
	if !ok {
		return
	}
	res, snap, err := d.Save(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.DraftSaveResponse{SaveResponse: dto.FromSaveResult(res), Settings: snap})
}

// Columns handles GET /drafts/:id/columns/:location.
func (h *DraftHandler) Columns(c *gin.Context) {
	loc, err := fieldsettings.ParseLocation(c.Param("location"))
	if err != nil {
		h.Error(c, err)
		return
	}
	d, ok := h.draft(c)
	if !ok {
		return
	}
	var cols []fieldsettings.ColumnDescriptor
	d.View(func(reg *fieldsettings.Registry) { cols = reg.Columns(loc) })
	h.OK(c, dto.ColumnsResponse{Location: loc, Columns: cols})
}

// --- System fields ---

// RenameSystemField handles POST /drafts/:id/system-fields/:key/rename.
func (h *DraftHandler) RenameSystemField(c *gin.Context) {
	var req dto.RenameSystemFieldRequest
	if !h.BindJSON(c, &req) {
		return
	}
	h.apply(c, func(reg *fieldsettings.Registry) error {
		return reg.RenameSystemField(c.Param("key"), req.Label)
	})
}

// ToggleSystemField handles POST /drafts/:id/system-fields/:key/toggle.
func (h *DraftHandler) ToggleSystemField(c *gin.Context) {
	h.apply(c, func(reg *fieldsettings.Registry) error {
		return reg.ToggleSystemFieldVisibility(c.Param("key"))
	})
}

// --- Fields ---

// RenameField handles POST /drafts/:id/fields/:fieldId/rename.
func (h *DraftHandler) RenameField(c *gin.Context) {
	var req dto.RenameRequest
	if !h.BindJSON(c, &req) {
		return
	}
	h.apply(c, func(reg *fieldsettings.Registry) error {
		return reg.RenameInstituteField(c.Param("fieldId"), req.Name)
	})
}

// ChangeType handles POST /drafts/:id/fields/:fieldId/type.
func (h *DraftHandler) ChangeType(c *gin.Context) {
	var req dto.ChangeTypeRequest
	if !h.BindJSON(c, &req) {
		return
	}
	t, err := fieldsettings.ParseFieldType(req.Type)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.apply(c, func(reg *fieldsettings.Registry) error {
		return reg.SetInstituteFieldType(c.Param("fieldId"), t)
	})
}

// ToggleRequired handles POST /drafts/:id/fields/:fieldId/required.
func (h *DraftHandler) ToggleRequired(c *gin.Context) {
	h.apply(c, func(reg *fieldsettings.Registry) error {
		return reg.ToggleRequired(c.Param("fieldId"))
	})
}

// ToggleVisibility handles POST /drafts/:id/fields/:fieldId/visibility.
func (h *DraftHandler) ToggleVisibility(c *gin.Context) {
	var req dto.VisibilityRequest
	if !h.BindJSON(c, &req) {
		return
	}
	loc, err := fieldsettings.ParseLocation(req.Location)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.apply(c, func(reg *fieldsettings.Registry) error {
		return reg.ToggleVisibility(c.Param("fieldId"), loc)
	})
}

// RemoveField handles DELETE /drafts/:id/fields/:fieldId.
func (h *DraftHandler) RemoveField(c *gin.Context) {
	h.apply(c, func(reg *fieldsettings.Registry) error {
		return reg.RemoveField(c.Param("fieldId"))
	})
}

// AddCustomField handles POST /drafts/:id/custom-fields.
func (h *DraftHandler) AddCustomField(c *gin.Context) {
	var req dto.FieldRequest
	if !h.BindJSON(c, &req) {
		return
	}
	draft, err := req.ToDraft()
	if err != nil {
		h.Error(c, err)
		return
	}
	d, ok := h.draft(c)
	if !ok {
		return
	}

	var created fieldsettings.Field
	snap, err := d.Apply(func(reg *fieldsettings.Registry) error {
		f, err := reg.AddCustomField(draft.Name, draft.Type, draft.Options...)
		created = f
		return err
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.CreatedResponse{ID: created.ID, Settings: snap})
}

// --- Options ---

// AddOption handles POST /drafts/:id/fields/:fieldId/options.
func (h *DraftHandler) AddOption(c *gin.Context) {
	var req dto.AddOptionRequest
	if !h.BindJSON(c, &req) {
		return
	}
	h.apply(c, func(reg *fieldsettings.Registry) error {
		return reg.AddOption(c.Param("fieldId"), req.Value)
	})
}

// EditOption handles PUT /drafts/:id/fields/:fieldId/options/:index.
func (h *DraftHandler) EditOption(c *gin.Context) {
	index, ok := h.ParseIntParam(c, "index")
	if !ok {
		return
	}
	var req dto.EditOptionRequest
	if !h.BindJSON(c, &req) {
		return
	}
	h.apply(c, func(reg *fieldsettings.Registry) error {
		return reg.EditOption(c.Param("fieldId"), index, req.Value)
	})
}

// RemoveOption handles DELETE /drafts/:id/fields/:fieldId/options/:index.
func (h *DraftHandler) RemoveOption(c *gin.Context) {
	index, ok := h.ParseIntParam(c, "index")
	if !ok {
		return
	}
	h.apply(c, func(reg *fieldsettings.Registry) error {
		return reg.RemoveOption(c.Param("fieldId"), index)
	})
}

// --- Groups ---

// CreateGroup handles POST /drafts/:id/groups. An empty selection or a
// blank name changes nothing and answers 200 without an id.
func (h *DraftHandler) CreateGroup(c *gin.Context) {
	var req dto.CreateGroupRequest
	if !h.BindJSON(c, &req) {
		return
	}
	d, ok := h.draft(c)
	if !ok {
		return
	}

	var created *fieldsettings.FieldGroup
	snap, err := d.Apply(func(reg *fieldsettings.Registry) error {
		g, err := reg.CreateGroupFromSelection(req.FieldIDs, req.Name)
		created = g
		return err
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	if created == nil {
		h.OK(c, dto.CreatedResponse{Settings: snap})
		return
	}
	h.Created(c, dto.CreatedResponse{ID: created.ID, Settings: snap})
}

// AddFieldToGroup handles POST /drafts/:id/groups/:groupId/fields.
func (h *DraftHandler) AddFieldToGroup(c *gin.Context) {
	var req dto.FieldRequest
	if !h.BindJSON(c, &req) {
		return
	}
	draft, err := req.ToDraft()
	if err != nil {
		h.Error(c, err)
		return
	}
	d, ok := h.draft(c)
	if !ok {
		return
	}

	var created fieldsettings.Field
	snap, err := d.Apply(func(reg *fieldsettings.Registry) error {
		f, err := reg.AddFieldToGroup(c.Param("groupId"), draft)
		created = f
		return err
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.CreatedResponse{ID: created.ID, Settings: snap})
}

// RenameGroup handles POST /drafts/:id/groups/:groupId/rename.
func (h *DraftHandler) RenameGroup(c *gin.Context) {
	var req dto.RenameRequest
	if !h.BindJSON(c, &req) {
		return
	}
	h.apply(c, func(reg *fieldsettings.Registry) error {
		return reg.RenameGroup(c.Param("groupId"), req.Name)
	})
}

// RemoveGroup handles DELETE /drafts/:id/groups/:groupId.
func (h *DraftHandler) RemoveGroup(c *gin.Context) {
	h.apply(c, func(reg *fieldsettings.Registry) error {
		return reg.RemoveGroup(c.Param("groupId"))
	})
}

// RemoveFieldFromGroup handles DELETE /drafts/:id/groups/:groupId/fields/:fieldId.
func (h *DraftHandler) RemoveFieldFromGroup(c *gin.Context) {
	h.apply(c, func(reg *fieldsettings.Registry) error {
		return reg.RemoveFieldFromGroup(c.Param("groupId"), c.Param("fieldId"))
	})
}

// --- Reorder ---

// Reorder handles POST /drafts/:id/reorder. Invalid targets are ignored
// and reported as moved=false.
func (h *DraftHandler) Reorder(c *gin.Context) {
	var req dto.ReorderRequest
	if !h.BindJSON(c, &req) {
		return
	}
	d, ok := h.draft(c)
	if !ok {
		return
	}

	var moved bool
	snap, _ := d.Apply(func(reg *fieldsettings.Registry) error {
		if req.GroupID != "" {
			moved = reg.MoveGroupMember(req.GroupID, req.DraggedID, req.TargetID)
		} else {
			moved = reg.Move(req.DraggedID, req.TargetID)
		}
		return nil
	})
	h.OK(c, dto.ReorderResponse{Moved: moved, Settings: snap})
}
