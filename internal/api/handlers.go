package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/paravault/internal/noteservice"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 10 << 20

// Handler holds API route handlers.
type Handler struct {
	svc          *noteservice.Service
	snapshotPath string
}

// NewHandler creates a new Handler. snapshotPath is where POST /snapshot
// writes the SQLite export; empty disables the endpoint.
func NewHandler(svc *noteservice.Service, snapshotPath string) *Handler {
	return &Handler{svc: svc, snapshotPath: snapshotPath}
}

// notePath extracts the note path from the URL (everything after the route
// prefix). Supports encoded slashes from OpenAPI clients (e.g. projects%2Fplan.md).
func notePath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// ifMatch returns the If-Match header with ETag quoting removed.
func ifMatch(r *http.Request) string {
	v := strings.TrimSpace(r.Header.Get("If-Match"))
	v = strings.TrimPrefix(v, "W/")
	return strings.Trim(v, `"`)
}

func setETag(w http.ResponseWriter, checksum string) {
	if checksum != "" {
		w.Header().Set("ETag", `"`+checksum+`"`)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body: "+err.Error()))
		return false
	}
	return true
}

// GetNote handles GET /api/notes/*.
//
//	@Summary		Get a single note by path
//	@Tags			notes
//	@Produce		json
//	@Param			path	path		string	true	"Note path"
//	@Success		200		{object}	NoteDetail
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{path} [get]
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	note, err := h.svc.Read(r.Context(), path)
	if err != nil {
		writeError(w, "read note", err)
		return
	}
	setETag(w, note.Checksum)
	writeJSON(w, http.StatusOK, note)
}

// CreateNote handles POST /api/notes.
//
//	@Summary		Create a new note
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateNoteRequest	true	"Note to create"
//	@Success		201		{object}	NoteDetail
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes [post]
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	var req CreateNoteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	note, err := h.svc.Create(r.Context(), req.Path, req.Metadata, req.Content)
	if err != nil {
		writeError(w, "create note", err)
		return
	}
	setETag(w, note.Checksum)
	writeJSON(w, http.StatusCreated, note)
}

// PatchNote handles PATCH /api/notes/*.
//
//	@Summary		Update a note's content and/or metadata
//	@Description	Content is appended unless replace_content is set. A replacement keeps dropped links in a "Preserved Links" section unless preserve_links is false.
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			path		path		string				true	"Note path"
//	@Param			If-Match	header		string				false	"Checksum for optimistic concurrency"
//	@Param			body		body		UpdateNoteRequest	true	"Changes"
//	@Success		200			{object}	UpdateNoteResponse
//	@Failure		400			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{path} [patch]
func (h *Handler) PatchNote(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, false)
}

// ReplaceNote handles PUT /api/notes/*. It is PATCH with replace_content
// forced on and content required.
//
//	@Summary		Replace a note's content
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			path		path		string				true	"Note path"
//	@Param			If-Match	header		string				false	"Checksum for optimistic concurrency"
//	@Param			body		body		UpdateNoteRequest	true	"New content"
//	@Success		200			{object}	UpdateNoteResponse
//	@Failure		400			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{path} [put]
func (h *Handler) ReplaceNote(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, true)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request, replace bool) {
	path := notePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	var req UpdateNoteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if replace {
		if req.Content == nil {
			writeJSON(w, http.StatusBadRequest, errorBody("content is required"))
			return
		}
		req.ReplaceContent = true
	}
	if v := ifMatch(r); v != "" {
		req.IfMatch = v
	}

	res, err := h.svc.Update(r.Context(), path, req)
	if err != nil {
		writeError(w, "update note", err)
		return
	}
	setETag(w, res.Note.Checksum)
	writeJSON(w, http.StatusOK, res)
}

// DeleteNote handles DELETE /api/notes/*.
//
//	@Summary		Delete a note
//	@Tags			notes
//	@Produce		json
//	@Param			path	path		string	true	"Note path"
//	@Success		200		{object}	DeleteNoteResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{path} [delete]
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	res, err := h.svc.Delete(r.Context(), path)
	if err != nil {
		writeError(w, "delete note", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// MoveNote handles POST /api/move.
//
//	@Summary		Move or rename a note, rewriting links that point at it
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		MoveNoteRequest	true	"Source and destination"
//	@Success		200		{object}	MoveNoteResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/move [post]
func (h *Handler) MoveNote(w http.ResponseWriter, r *http.Request) {
	var req MoveNoteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.From == "" || req.To == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("from and to are required"))
		return
	}
	res, err := h.svc.Move(r.Context(), req.From, req.To)
	if err != nil {
		writeError(w, "move note", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
