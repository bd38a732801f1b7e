package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/starford/paravault/internal/models"
	"github.com/starford/paravault/internal/search"
)

// dateLayouts are accepted for the from/to search parameters.
var dateLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

func parseTime(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", s)
}

func queryInt(q url.Values, key string) (int, error) {
	v := q.Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	return n, nil
}

// parseFilter builds a search filter from query parameters. tag may repeat
// or carry a comma-separated list.
func parseFilter(q url.Values) (search.Filter, error) {
	f := search.Filter{
		Text:        q.Get("q"),
		TagOperator: search.Operator(strings.ToLower(q.Get("op"))),
		Category:    models.Category(strings.ToLower(q.Get("category"))),
	}
	for _, v := range q["tag"] {
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				f.Tags = append(f.Tags, t)
			}
		}
	}
	var err error
	if v := q.Get("from"); v != "" {
		if f.ModifiedFrom, err = parseTime(v); err != nil {
			return f, err
		}
	}
	if v := q.Get("to"); v != "" {
		if f.ModifiedTo, err = parseTime(v); err != nil {
			return f, err
		}
	}
	if v := q.Get("exclude_drafts"); v != "" {
		if f.ExcludeDrafts, err = strconv.ParseBool(v); err != nil {
			return f, fmt.Errorf("exclude_drafts must be a boolean")
		}
	}
	if f.Offset, err = queryInt(q, "offset"); err != nil {
		return f, err
	}
	if f.Limit, err = queryInt(q, "limit"); err != nil {
		return f, err
	}
	return f, f.Validate()
}

// ListNotes handles GET /api/notes. It is a search without text, so every
// document matching the filters is listed.
//
//	@Summary		List notes with optional filtering and pagination
//	@Tags			notes
//	@Produce		json
//	@Param			tag				query		string	false	"Filter by tag (repeatable)"
//	@Param			op				query		string	false	"Tag operator"	Enums(and, or)
//	@Param			category		query		string	false	"Filter by category"	Enums(projects, areas, resources, archives)
//	@Param			from			query		string	false	"Modified at or after (RFC3339 or YYYY-MM-DD)"
//	@Param			to				query		string	false	"Modified at or before (RFC3339 or YYYY-MM-DD)"
//	@Param			exclude_drafts	query		bool	false	"Skip drafts"
//	@Param			limit			query		int		false	"Page size"
//	@Param			offset			query		int		false	"Page offset"
//	@Success		200				{object}	SearchResponse
//	@Failure		400				{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes [get]
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r.URL.Query())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	f.Text = ""
	h.search(w, r, f)
}

// Search handles GET /api/search.
//
//	@Summary		Ranked full-text search across notes
//	@Tags			search
//	@Produce		json
//	@Param			q				query		string	true	"Search text"
//	@Param			tag				query		string	false	"Filter by tag (repeatable)"
//	@Param			op				query		string	false	"Tag operator"	Enums(and, or)
//	@Param			category		query		string	false	"Filter by category"
//	@Param			from			query		string	false	"Modified at or after"
//	@Param			to				query		string	false	"Modified at or before"
//	@Param			exclude_drafts	query		bool	false	"Skip drafts"
//	@Param			limit			query		int		false	"Max results"
//	@Param			offset			query		int		false	"Page offset"
//	@Success		200				{object}	SearchResponse
//	@Failure		400				{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r.URL.Query())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if strings.TrimSpace(f.Text) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	h.search(w, r, f)
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request, f search.Filter) {
	res, err := h.svc.Search(r.Context(), f)
	if err != nil {
		writeError(w, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Backlinks handles GET /api/backlinks/*.
//
//	@Summary		Documents linking to a note, with context excerpts
//	@Tags			graph
//	@Produce		json
//	@Param			path	path		string	true	"Note path"
//	@Success		200		{object}	BacklinksResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/backlinks/{path} [get]
func (h *Handler) Backlinks(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	rep, err := h.svc.Backlinks(r.Context(), path)
	if err != nil {
		writeError(w, "backlinks", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// ForwardLinks handles GET /api/forward/*.
//
//	@Summary		A note's outgoing links and whether each resolves
//	@Tags			graph
//	@Produce		json
//	@Param			path	path		string	true	"Note path"
//	@Success		200		{object}	ForwardLinksResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/forward/{path} [get]
func (h *Handler) ForwardLinks(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	links, err := h.svc.ForwardLinks(r.Context(), path)
	if err != nil {
		writeError(w, "forward links", err)
		return
	}
	writeJSON(w, http.StatusOK, ForwardLinksResponse{Path: path, Links: links})
}

// Neighborhood handles GET /api/neighborhood/*.
//
//	@Summary		Documents within a few links of a note
//	@Tags			graph
//	@Produce		json
//	@Param			path	path		string	true	"Note path"
//	@Param			depth	query		int		false	"Maximum hops"
//	@Param			limit	query		int		false	"Maximum neighbors"
//	@Success		200		{object}	NeighborhoodResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/neighborhood/{path} [get]
func (h *Handler) Neighborhood(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	q := r.URL.Query()
	depth, err := queryInt(q, "depth")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	limit, err := queryInt(q, "limit")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	ns, err := h.svc.Neighborhood(r.Context(), path, depth, limit)
	if err != nil {
		writeError(w, "neighborhood", err)
		return
	}
	writeJSON(w, http.StatusOK, NeighborhoodResponse{Path: path, Neighbors: ns})
}

// BrokenLinks handles GET /api/links/broken.
//
//	@Summary		Links whose target matches no document
//	@Tags			graph
//	@Produce		json
//	@Success		200	{object}	BrokenLinksResponse
//	@Security		BearerAuth
//	@Router			/links/broken [get]
func (h *Handler) BrokenLinks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, BrokenLinksResponse{Links: h.svc.BrokenLinks(r.Context())})
}

// Orphans handles GET /api/orphans.
//
//	@Summary		Documents nothing links to
//	@Tags			graph
//	@Produce		json
//	@Success		200	{object}	OrphansResponse
//	@Security		BearerAuth
//	@Router			/orphans [get]
func (h *Handler) Orphans(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, OrphansResponse{Paths: h.svc.Orphans(r.Context())})
}

// Stats handles GET /api/stats.
//
//	@Summary		Document, category and link counts
//	@Tags			graph
//	@Produce		json
//	@Success		200	{object}	StatsResponse
//	@Security		BearerAuth
//	@Router			/stats [get]
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Stats(r.Context()))
}
