// Package models defines the domain types for the vault.
package models

import (
	"slices"
	"time"
)

// Category is one of the four fixed PARA buckets.
type Category string

// PARA categories. The set is closed.
const (
	CategoryProjects  Category = "projects"
	CategoryAreas     Category = "areas"
	CategoryResources Category = "resources"
	CategoryArchives  Category = "archives"
)

// Categories lists every category in canonical order.
var Categories = []Category{CategoryProjects, CategoryAreas, CategoryResources, CategoryArchives}

// Valid reports whether c is one of the four categories.
func (c Category) Valid() bool {
	return slices.Contains(Categories, c)
}

// Metadata is the structured header of a document.
//
// Title and Created are pinned after the first write. Extra holds any
// header field that is not one of the fixed ones.
type Metadata struct {
	Title    string         `json:"title"`
	Created  time.Time      `json:"created"`
	Modified time.Time      `json:"modified"`
	Tags     []string       `json:"tags,omitempty"`
	Category Category       `json:"category,omitempty"`
	Status   string         `json:"status,omitempty"`
	Priority string         `json:"priority,omitempty"`
	Extra    map[string]any `json:"extra,omitempty"`
}

// IsZero reports whether no header field is set.
func (m Metadata) IsZero() bool {
	return m.Title == "" && m.Created.IsZero() && m.Modified.IsZero() &&
		len(m.Tags) == 0 && m.Category == "" && m.Status == "" &&
		m.Priority == "" && len(m.Extra) == 0
}

// Clone returns a deep copy of the slice and map fields.
func (m Metadata) Clone() Metadata {
	out := m
	out.Tags = slices.Clone(m.Tags)
	if m.Extra != nil {
		out.Extra = make(map[string]any, len(m.Extra))
		for k, v := range m.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// IsDraft reports whether the document is marked as a draft.
func (m Metadata) IsDraft() bool {
	return m.Status == "draft"
}

// Document is a stored text document: a path, its header and its body.
type Document struct {
	Path     string   `json:"path"`
	Metadata Metadata `json:"metadata"`
	Body     string   `json:"body"`
	Checksum string   `json:"checksum"`
}

// WikiLink is one [[...]] occurrence in a body. Start and End are byte
// offsets of Raw within the body.
type WikiLink struct {
	Raw       string `json:"raw"`
	RawTarget string `json:"raw_target"`
	Target    string `json:"target"`
	Anchor    string `json:"anchor,omitempty"`
	Display   string `json:"display,omitempty"`
	Start     int    `json:"start"`
	End       int    `json:"end"`
}

// Link represents a directed edge between a document and a link target.
type Link struct {
	Source string `json:"source"`
	Target string `json:"target"`
}
