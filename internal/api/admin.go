package api

import (
	"net/http"
	"strconv"
)

// Reindex handles POST /api/reindex.
//
//	@Summary		Rebuild the graph and index from storage
//	@Tags			admin
//	@Produce		json
//	@Success		200	{object}	ReindexResponse
//	@Security		BearerAuth
//	@Router			/reindex [post]
func (h *Handler) Reindex(w http.ResponseWriter, r *http.Request) {
	rep, err := h.svc.Reindex(r.Context())
	if err != nil {
		writeError(w, "reindex", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// Sync handles POST /api/sync.
//
//	@Summary		Pick up files changed in storage since the last load
//	@Tags			admin
//	@Produce		json
//	@Success		200	{object}	SyncResponse
//	@Security		BearerAuth
//	@Router			/sync [post]
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	rep, err := h.svc.Sync(r.Context())
	if err != nil {
		writeError(w, "sync", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// Snapshot handles GET /api/snapshot.
//
//	@Summary		Renderer snapshot of every document with resolved links
//	@Tags			admin
//	@Produce		json
//	@Param			include_drafts	query	bool	false	"Include drafts"
//	@Success		200	{array}	snapshot.Entry
//	@Security		BearerAuth
//	@Router			/snapshot [get]
func (h *Handler) Snapshot(w http.ResponseWriter, r *http.Request) {
	include := false
	if v := r.URL.Query().Get("include_drafts"); v != "" {
		var err error
		if include, err = strconv.ParseBool(v); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("include_drafts must be a boolean"))
			return
		}
	}
	entries, err := h.svc.Snapshot(r.Context(), include)
	if err != nil {
		writeError(w, "snapshot", err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// ExportSnapshot handles POST /api/snapshot.
//
//	@Summary		Write the renderer snapshot to the configured SQLite file
//	@Tags			admin
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ExportSnapshotRequest	false	"Export options"
//	@Success		200		{object}	ExportSnapshotResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/snapshot [post]
func (h *Handler) ExportSnapshot(w http.ResponseWriter, r *http.Request) {
	if h.snapshotPath == "" {
		writeJSON(w, http.StatusNotFound, errorBody("snapshot export is not configured"))
		return
	}
	var req ExportSnapshotRequest
	if r.ContentLength != 0 {
		if !decodeBody(w, r, &req) {
			return
		}
	}
	n, err := h.svc.ExportSnapshot(r.Context(), h.snapshotPath, req.IncludeDrafts)
	if err != nil {
		writeError(w, "export snapshot", err)
		return
	}
	writeJSON(w, http.StatusOK, ExportSnapshotResponse{Path: h.snapshotPath, Documents: n})
}
