package api

import (
	"github.com/starford/paravault/internal/graph"
	"github.com/starford/paravault/internal/models"
	"github.com/starford/paravault/internal/noteservice"
	"github.com/starford/paravault/internal/search"
)

// CreateNoteRequest is the request body for creating a note.
type CreateNoteRequest struct {
	Path     string          `json:"path" example:"projects/launch.md" validate:"required"`
	Metadata models.Metadata `json:"metadata"`
	Content  string          `json:"content" example:"# Launch\nSee [[roadmap]]"`
}

// UpdateNoteRequest is the request body for PATCH /notes/{path}. The
// If-Match header, when present, overrides if_match.
type UpdateNoteRequest = noteservice.UpdateRequest

// MoveNoteRequest is the request body for moving a note.
type MoveNoteRequest struct {
	From string `json:"from" example:"projects/launch.md" validate:"required"`
	To   string `json:"to" example:"archives/2025/launch.md" validate:"required"`
}

// ExportSnapshotRequest is the request body for a snapshot export.
type ExportSnapshotRequest struct {
	IncludeDrafts bool `json:"include_drafts"`
}

// ExportSnapshotResponse reports a finished export.
type ExportSnapshotResponse struct {
	Path      string `json:"path" example:"data/snapshot.db" validate:"required"`
	Documents int    `json:"documents" example:"42" validate:"required"`
}

// NoteDetail is the full note response type (aliased from the domain layer).
type NoteDetail = noteservice.NoteDetail

// UpdateNoteResponse is returned by a successful update.
type UpdateNoteResponse = noteservice.UpdateResult

// MoveNoteResponse is returned by a successful move.
type MoveNoteResponse = noteservice.MoveResult

// DeleteNoteResponse is returned by a successful delete.
type DeleteNoteResponse = noteservice.DeleteResult

// SearchResponse is one page of ranked results.
type SearchResponse = search.Results

// BacklinksResponse lists the documents linking to a note.
type BacklinksResponse = noteservice.BacklinkReport

// ForwardLinksResponse lists a note's outgoing links.
type ForwardLinksResponse struct {
	Path  string              `json:"path" example:"projects/launch.md" validate:"required"`
	Links []graph.ForwardLink `json:"links" validate:"required"`
}

// NeighborhoodResponse lists documents near a note.
type NeighborhoodResponse struct {
	Path      string           `json:"path" example:"projects/launch.md" validate:"required"`
	Neighbors []graph.Neighbor `json:"neighbors" validate:"required"`
}

// BrokenLinksResponse lists links whose target does not exist.
type BrokenLinksResponse struct {
	Links []models.Link `json:"links" validate:"required"`
}

// OrphansResponse lists documents nothing links to.
type OrphansResponse struct {
	Paths []string `json:"paths" validate:"required"`
}

// StatsResponse summarises the vault.
type StatsResponse = noteservice.Stats

// ReindexResponse is returned by a full rebuild.
type ReindexResponse = noteservice.LoadReport

// SyncResponse is returned by a storage reconcile.
type SyncResponse = noteservice.SyncReport
