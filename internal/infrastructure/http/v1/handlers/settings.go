package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"fieldsettings/internal/domain/drafts"
	"fieldsettings/internal/domain/fieldsettings"
	"fieldsettings/internal/infrastructure/http/v1/dto"
	"fieldsettings/internal/infrastructure/storage/postgres"
)

// HistoryReader lists saved versions of an institute's settings.
type HistoryReader interface {
	List(ctx context.Context, instituteID string, limit int) ([]postgres.HistoryEntry, error)
}

// SettingsHandler serves whole-snapshot reads and writes.
type SettingsHandler struct {
	*BaseHandler
	backends drafts.BackendFactory
	cache    fieldsettings.SnapshotCache
	history  HistoryReader
}

// NewSettingsHandler creates a settings handler. cache and history may be nil.
func NewSettingsHandler(base *BaseHandler, backends drafts.BackendFactory, cache fieldsettings.SnapshotCache, history HistoryReader) *SettingsHandler {
	return &SettingsHandler{
		BaseHandler: base,
		backends:    backends,
		cache:       cache,
		history:     history,
	}
}

func (h *SettingsHandler) reconciler(instituteID string, reg *fieldsettings.Registry) *fieldsettings.Reconciler {
	var opts []fieldsettings.ReconcilerOption
	if h.cache != nil {
		opts = append(opts, fieldsettings.WithCache(h.cache, instituteID))
	}
	return fieldsettings.NewReconciler(reg, h.backends(instituteID), opts...)
}

func (h *SettingsHandler) load(c *gin.Context) (*fieldsettings.Registry, bool) {
	rc := h.reconciler(h.GetInstituteID(c), fieldsettings.NewRegistry())
	if err := rc.Load(c.Request.Context(), h.ParseBoolQuery(c, "refresh")); err != nil {
		h.Error(c, err)
		return nil, false
	}
	return rc.Registry(), true
}

// Get handles GET /settings.
func (h *SettingsHandler) Get(c *gin.Context) {
	reg, ok := h.load(c)
	if !ok {
		return
	}
	h.OK(c, reg.Snapshot())
}

// Put handles PUT /settings. The body is a full snapshot whose version must
// match the stored one.
func (h *SettingsHandler) Put(c *gin.Context) {
	var snap fieldsettings.Snapshot
	if !h.BindJSON(c, &snap) {
		return
	}
	reg, err := fieldsettings.NewRegistryFromSnapshot(&snap)
	if err != nil {
		h.Error(c, err)
		return
	}

	res, err := h.reconciler(h.GetInstituteID(c), reg).Save(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromSaveResult(res))
}

// Columns handles GET /settings/columns/:location.
func (h *SettingsHandler) Columns(c *gin.Context) {
	loc, err := fieldsettings.ParseLocation(c.Param("location"))
	if err != nil {
		h.Error(c, err)
		return
	}
	reg, ok := h.load(c)
	if !ok {
		return
	}
	h.OK(c, dto.ColumnsResponse{Location: loc, Columns: reg.Columns(loc)})
}

// History handles GET /settings/history.
func (h *SettingsHandler) History(c *gin.Context) {
	if h.history == nil {
		h.OK(c, []postgres.HistoryEntry{})
		return
	}
	entries, err := h.history.List(c.Request.Context(), h.GetInstituteID(c), h.ParseIntQuery(c, "limit", 20))
	if err != nil {
		h.Error(c, err)
		return
	}
	if entries == nil {
		entries = []postgres.HistoryEntry{}
	}
	h.OK(c, entries)
}
