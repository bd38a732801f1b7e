package noteservice

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/starford/paravault/internal/apperr"
	"github.com/starford/paravault/internal/checksum"
	"github.com/starford/paravault/internal/graph"
	"github.com/starford/paravault/internal/models"
	"github.com/starford/paravault/internal/parser"
)

// preservedHeading titles the section that collects links dropped by a
// content replacement.
const preservedHeading = "## Preserved Links"

// UpdateRequest describes a change to one document.
type UpdateRequest struct {
	// Content is the new body text. Nil leaves the body unchanged.
	Content *string `json:"content,omitempty"`
	// ReplaceContent replaces the body with Content; otherwise Content is
	// appended to it.
	ReplaceContent bool `json:"replace_content"`
	// PreserveLinks keeps links dropped by a replacement in a generated
	// section. Nil means true.
	PreserveLinks *bool          `json:"preserve_links,omitempty"`
	Metadata      *MetadataPatch `json:"metadata,omitempty"`
	// IfMatch, when set, must equal the current checksum.
	IfMatch string `json:"if_match,omitempty"`
}

// UpdateResult reports what an update changed.
type UpdateResult struct {
	Note             *NoteDetail `json:"note"`
	LinksPreserved   int         `json:"links_preserved"`
	PreservedTargets []string    `json:"preserved_targets,omitempty"`
}

// DeleteResult reports the effect of a delete.
type DeleteResult struct {
	Path string `json:"path"`
	// Orphaned lists former link targets left with no backlinks.
	Orphaned []string `json:"orphaned"`
	// BrokenReferrers lists documents whose links to the deleted document are
	// now broken.
	BrokenReferrers []string `json:"broken_referrers"`
}

// Create writes a new document. A missing title is derived from the first
// heading or the file name; created and modified default to now.
func (s *Service) Create(ctx context.Context, path string, meta models.Metadata, content string) (_ *NoteDetail, err error) {
	defer s.observe(ctx, "create", time.Now(), &err)

	rel, _, err := s.paths.DocumentPath(path)
	if err != nil {
		return nil, err
	}
	meta = meta.Clone()
	meta.Category = models.Category(strings.ToLower(string(meta.Category)))
	if err := validateMetadata(rel, meta, nil); err != nil {
		return nil, err
	}

	s.barrier.RLock()
	defer s.barrier.RUnlock()
	unlock, sources, err := s.lockWith(ctx, []string{rel}, func(g *graph.Graph) []string {
		_, srcs := pinsFor(g.Shadowed(rel), "")
		return srcs
	})
	if err != nil {
		return nil, err
	}
	defer unlock()

	if _, ok := s.doc(rel); ok {
		return nil, apperr.New(apperr.KindAlreadyExists, rel, nil)
	}
	exists, err := s.store.Exists(ctx, rel)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperr.New(apperr.KindAlreadyExists, rel, nil)
	}

	now := s.now().UTC()
	if meta.Title == "" {
		meta.Title = parser.DeriveTitle(meta, content, rel)
	}
	if meta.Created.IsZero() {
		meta.Created = now
	}
	meta.Modified = now

	// Links that would start resolving to the new document keep their
	// current target.
	g, _ := s.state()
	pp, _ := pinsFor(g.Shadowed(rel), "")
	pinPlan, pinned, err := s.planPins(ctx, sources, pp, now)
	if err != nil {
		return nil, err
	}
	if err := s.writeAll(ctx, pinPlan); err != nil {
		return nil, err
	}

	d, err := s.write(ctx, rel, meta, content)
	if err != nil {
		s.restore(ctx, pinPlan)
		return nil, err
	}
	s.apply(append(docsOf(pinPlan), d), nil)
	s.log.Info("document created", "path", rel, "pinned_links", pinned)
	s.notify(ChangeCreated, rel, "")
	for _, w := range pinPlan {
		s.notify(ChangeUpdated, w.doc.Path, "")
	}
	return s.detail(d), nil
}

// write serialises and stores a document, returning its new in-memory form.
// Nothing in memory changes.
func (s *Service) write(ctx context.Context, path string, meta models.Metadata, body string) (*models.Document, error) {
	raw, err := parser.Serialize(meta, body)
	if err != nil {
		return nil, apperr.New(apperr.KindInvalidMetadata, path, err)
	}
	if err := s.store.WriteFile(ctx, path, raw); err != nil {
		return nil, err
	}
	return &models.Document{Path: path, Metadata: meta, Body: body, Checksum: checksum.String(raw)}, nil
}

// Update changes a document's body and/or metadata. When content is replaced
// with link preservation on, every link target present in the old body but
// absent from the new one is appended in a preserved-links section.
func (s *Service) Update(ctx context.Context, path string, req UpdateRequest) (_ *UpdateResult, err error) {
	defer s.observe(ctx, "update", time.Now(), &err)

	rel, err := s.paths.Validate(path)
	if err != nil {
		return nil, err
	}

	s.barrier.RLock()
	defer s.barrier.RUnlock()
	unlock, err := s.lock(ctx, rel)
	if err != nil {
		return nil, err
	}
	defer unlock()

	cur, ok := s.doc(rel)
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, rel, nil)
	}
	if req.IfMatch != "" && req.IfMatch != cur.Checksum {
		return nil, apperr.Newf(apperr.KindConflict, rel, "checksum %s does not match current %s", req.IfMatch, cur.Checksum)
	}

	res := &UpdateResult{}
	body := cur.Body
	if req.Content != nil {
		if req.ReplaceContent {
			body = *req.Content
			if req.PreserveLinks == nil || *req.PreserveLinks {
				var lost []models.WikiLink
				body, lost = preserveLinks(cur.Body, body)
				res.LinksPreserved = len(lost)
				for _, l := range lost {
					res.PreservedTargets = append(res.PreservedTargets, l.Target)
				}
			}
		} else {
			body = appendContent(cur.Body, *req.Content)
		}
	}

	meta, err := mergeMetadata(rel, cur.Metadata, req.Metadata)
	if err != nil {
		return nil, err
	}
	meta.Modified = s.now().UTC()
	if err := validateMetadata(rel, meta, &cur.Metadata); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d, err := s.write(ctx, rel, meta, body)
	if err != nil {
		return nil, err
	}
	s.apply([]*models.Document{d}, nil)
	s.log.Info("document updated", "path", rel, "links_preserved", res.LinksPreserved)
	s.notify(ChangeUpdated, rel, "")

	res.Note = s.detail(d)
	return res, nil
}

// preserveLinks returns newBody with a preserved-links section listing every
// link of oldBody whose target no longer appears, one entry per target.
func preserveLinks(oldBody, newBody string) (string, []models.WikiLink) {
	keep := make(map[string]bool)
	for _, t := range parser.Targets(parser.ExtractLinks(newBody)) {
		keep[t] = true
	}
	var lost []models.WikiLink
	for _, l := range parser.ExtractLinks(oldBody) {
		if keep[l.Target] {
			continue
		}
		keep[l.Target] = true
		lost = append(lost, l)
	}
	if len(lost) == 0 {
		return newBody, nil
	}

	var b strings.Builder
	b.WriteString(strings.TrimRight(newBody, "\n"))
	if b.Len() > 0 {
		b.WriteString("\n\n")
	}
	b.WriteString(preservedHeading)
	b.WriteString("\n\n")
	for _, l := range lost {
		fmt.Fprintf(&b, "- %s\n", l.Raw)
	}
	return b.String(), lost
}

func appendContent(body, extra string) string {
	if body == "" {
		return extra
	}
	if strings.HasSuffix(body, "\n\n") {
		return body + extra
	}
	if strings.HasSuffix(body, "\n") {
		return body + "\n" + extra
	}
	return body + "\n\n" + extra
}

// Delete removes a document from storage, the graph and the index.
func (s *Service) Delete(ctx context.Context, path string) (_ *DeleteResult, err error) {
	defer s.observe(ctx, "delete", time.Now(), &err)

	rel, err := s.paths.Validate(path)
	if err != nil {
		return nil, err
	}

	s.barrier.RLock()
	defer s.barrier.RUnlock()
	unlock, err := s.lock(ctx, rel)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if _, ok := s.doc(rel); !ok {
		return nil, apperr.New(apperr.KindNotFound, rel, nil)
	}
	g, _ := s.state()
	referrers := g.BacklinksOf(rel).Sources

	if err := s.store.DeleteFile(ctx, rel); err != nil {
		return nil, err
	}
	orphaned := s.apply(nil, []string{rel})
	s.log.Info("document deleted", "path", rel, "orphaned", len(orphaned))
	s.notify(ChangeDeleted, rel, "")

	broken := make([]string, 0, len(referrers))
	for _, r := range referrers {
		if r != rel {
			broken = append(broken, r)
		}
	}
	return &DeleteResult{Path: rel, Orphaned: nonNilSlice(orphaned), BrokenReferrers: broken}, nil
}
