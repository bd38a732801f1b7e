package noteservice

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/starford/paravault/internal/apperr"
	"github.com/starford/paravault/internal/graph"
	"github.com/starford/paravault/internal/models"
	"github.com/starford/paravault/internal/para"
	"github.com/starford/paravault/internal/parser"
	"github.com/starford/paravault/internal/search"
	"github.com/starford/paravault/internal/snapshot"
)

// LinkRef is one referrer of a document with the text around its link.
type LinkRef struct {
	Source  string `json:"source"`
	Title   string `json:"title"`
	Context string `json:"context"`
}

// BacklinkReport is the result of Backlinks.
type BacklinkReport struct {
	Path        string    `json:"path"`
	Sources     []LinkRef `json:"sources"`
	BrokenCount int       `json:"broken_count"`
}

// Stats summarises the vault.
type Stats struct {
	Documents  int                     `json:"documents"`
	Drafts     int                     `json:"drafts"`
	Categories map[models.Category]int `json:"categories"`
	Graph      graph.Stats             `json:"graph"`
}

// Search runs a ranked query against the index.
func (s *Service) Search(ctx context.Context, f search.Filter) (_ *search.Results, err error) {
	defer s.observe(ctx, "search", time.Now(), &err)
	_, ix := s.state()
	return ix.Query(ctx, f)
}

// Backlinks returns the documents linking to path, each with a short excerpt
// around its first link to path.
func (s *Service) Backlinks(ctx context.Context, path string) (_ *BacklinkReport, err error) {
	defer s.observe(ctx, "backlinks", time.Now(), &err)

	rel, err := s.paths.Validate(path)
	if err != nil {
		return nil, err
	}
	g, _ := s.state()
	if !g.Has(rel) {
		return nil, apperr.New(apperr.KindNotFound, rel, nil)
	}

	b := g.BacklinksOf(rel)
	rep := &BacklinkReport{Path: rel, Sources: make([]LinkRef, 0, len(b.Sources)), BrokenCount: b.BrokenCount}
	for _, src := range b.Sources {
		d, ok := s.doc(src)
		if !ok {
			continue
		}
		ref := LinkRef{Source: src, Title: parser.DeriveTitle(d.Metadata, d.Body, d.Path)}
		for _, l := range parser.ExtractLinks(d.Body) {
			if p, ok := g.Resolve(l.Target); ok && p == rel {
				ref.Context = parser.LinkContext(d.Body, l, linkContextRadius)
				break
			}
		}
		rep.Sources = append(rep.Sources, ref)
	}
	return rep, nil
}

// ForwardLinks returns the outgoing targets of path and whether each resolves.
func (s *Service) ForwardLinks(ctx context.Context, path string) (_ []graph.ForwardLink, err error) {
	defer s.observe(ctx, "forward_links", time.Now(), &err)

	rel, err := s.paths.Validate(path)
	if err != nil {
		return nil, err
	}
	g, _ := s.state()
	if !g.Has(rel) {
		return nil, apperr.New(apperr.KindNotFound, rel, nil)
	}
	return nonNilSlice(g.ForwardLinksOf(rel)), nil
}

// BrokenLinks lists every link whose target resolves to no document.
func (s *Service) BrokenLinks(ctx context.Context) []models.Link {
	g, _ := s.state()
	return nonNilSlice(g.BrokenLinks())
}

// Orphans lists documents nothing links to.
func (s *Service) Orphans(ctx context.Context) []string {
	g, _ := s.state()
	return nonNilSlice(g.Orphans())
}

// Neighborhood returns documents within depth link hops of path, in either
// direction. Depth and limit are clamped to the configured maximums.
func (s *Service) Neighborhood(ctx context.Context, path string, depth, limit int) (_ []graph.Neighbor, err error) {
	defer s.observe(ctx, "neighborhood", time.Now(), &err)

	rel, err := s.paths.Validate(path)
	if err != nil {
		return nil, err
	}
	g, _ := s.state()
	if !g.Has(rel) {
		return nil, apperr.New(apperr.KindNotFound, rel, nil)
	}
	if depth <= 0 {
		depth = graph.DefaultDepth
	}
	if limit <= 0 {
		limit = graph.DefaultLimit
	}
	depth, limit = min(depth, s.maxDepth), min(limit, s.maxNeighbors)
	return nonNilSlice(g.Neighborhood(rel, depth, limit)), nil
}

// Stats reports document, category and link counts and refreshes the
// exported gauges.
func (s *Service) Stats(ctx context.Context) *Stats {
	g, ix := s.state()
	st := &Stats{Categories: ix.CategoryCounts(), Graph: g.Stats()}

	s.mu.RLock()
	st.Documents = len(s.docs)
	for _, d := range s.docs {
		if d.Metadata.IsDraft() {
			st.Drafts++
		}
	}
	s.mu.RUnlock()

	s.publishGauges(ctx)
	return st
}

// Snapshot returns a read-only copy of every document with its resolved
// outgoing and incoming links, in path order.
func (s *Service) Snapshot(ctx context.Context, includeDrafts bool) (_ []snapshot.Entry, err error) {
	defer s.observe(ctx, "snapshot", time.Now(), &err)

	s.barrier.RLock()
	defer s.barrier.RUnlock()

	g, _ := s.state()
	s.mu.RLock()
	docs := make([]*models.Document, 0, len(s.docs))
	for _, d := range s.docs {
		docs = append(docs, d)
	}
	s.mu.RUnlock()
	slices.SortFunc(docs, func(a, b *models.Document) int { return strings.Compare(a.Path, b.Path) })

	out := make([]snapshot.Entry, 0, len(docs))
	for i, d := range docs {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if !includeDrafts && d.Metadata.IsDraft() {
			continue
		}
		e := snapshot.Entry{
			Path:     d.Path,
			Title:    parser.DeriveTitle(d.Metadata, d.Body, d.Path),
			Category: para.EffectiveCategory(d.Path, d.Metadata),
			Draft:    d.Metadata.IsDraft(),
			Metadata: d.Metadata.Clone(),
			Body:     d.Body,
			Outgoing: []snapshot.OutLink{},
			Incoming: nonNilSlice(g.BacklinksOf(d.Path).Sources),
		}
		for _, fl := range g.ForwardLinksOf(d.Path) {
			e.Outgoing = append(e.Outgoing, snapshot.OutLink{Target: fl.Target, Path: fl.Path})
		}
		out = append(out, e)
	}
	return out, nil
}

// ExportSnapshot writes Snapshot to a SQLite database at dsn and returns the
// number of documents written.
func (s *Service) ExportSnapshot(ctx context.Context, dsn string, includeDrafts bool) (int, error) {
	entries, err := s.Snapshot(ctx, includeDrafts)
	if err != nil {
		return 0, err
	}
	if err := snapshot.Export(ctx, dsn, entries); err != nil {
		return 0, err
	}
	s.log.Info("snapshot exported", "dsn", dsn, "documents", len(entries))
	return len(entries), nil
}
