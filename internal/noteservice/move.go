package noteservice

import (
	"context"
	"errors"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/starford/paravault/internal/apperr"
	"github.com/starford/paravault/internal/checksum"
	"github.com/starford/paravault/internal/graph"
	"github.com/starford/paravault/internal/models"
	"github.com/starford/paravault/internal/parser"
)

// moveAttempts bounds how often Move re-plans when new referrers appear
// while it waits for its locks.
const moveAttempts = 3

// MoveResult reports the effect of a move.
type MoveResult struct {
	From             string      `json:"from"`
	To               string      `json:"to"`
	Note             *NoteDetail `json:"note,omitempty"`
	RewrittenLinks   int         `json:"rewritten_links"`
	UpdatedReferrers []string    `json:"updated_referrers"`
	CategoryChanged  bool        `json:"category_changed"`
	// PinnedLinks counts links in other documents rewritten to their full
	// path so that the destination does not take them over.
	PinnedLinks int `json:"pinned_links,omitempty"`
}

// rewrite is one planned document write with the content it replaces.
type rewrite struct {
	doc      *models.Document
	raw      string
	original string
}

// Move relocates src to dst and rewrites every link that resolved to src in
// every referrer. Either every write lands or, after compensation, storage
// and memory are left as they were.
func (s *Service) Move(ctx context.Context, src, dst string) (_ *MoveResult, err error) {
	defer s.observe(ctx, "move", time.Now(), &err)

	from, err := s.paths.Validate(src)
	if err != nil {
		return nil, err
	}
	to, dstCat, err := s.paths.DocumentPath(dst)
	if err != nil {
		return nil, err
	}
	if from == to {
		return nil, apperr.Newf(apperr.KindInvalidPath, to, "source and destination are the same")
	}

	s.barrier.RLock()
	defer s.barrier.RUnlock()

	unlock, referrers, err := s.lockWith(ctx, []string{from, to}, moveDeps(from, to))
	if err != nil {
		return nil, err
	}
	defer unlock()

	if _, ok := s.doc(from); !ok {
		return nil, apperr.New(apperr.KindNotFound, from, nil)
	}
	if _, ok := s.doc(to); ok {
		return nil, apperr.New(apperr.KindAlreadyExists, to, nil)
	}
	exists, err := s.store.Exists(ctx, to)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperr.New(apperr.KindAlreadyExists, to, nil)
	}

	plan, res, err := s.planMove(ctx, from, to, dstCat, referrers)
	if err != nil {
		return nil, err
	}
	if err := s.commitMove(ctx, from, plan); err != nil {
		return nil, err
	}

	s.apply(docsOf(plan), []string{from})
	s.log.Info("document moved",
		"from", from,
		"to", to,
		"rewritten_links", res.RewrittenLinks,
		"referrers", len(res.UpdatedReferrers),
	)

	s.notify(ChangeMoved, to, from)
	for _, r := range res.UpdatedReferrers {
		s.notify(ChangeUpdated, r, "")
	}

	res.Note = s.detail(plan[0].doc)
	return res, nil
}

// moveDeps lists the documents a move of from to to may rewrite: every
// referrer of from and every document whose links to would shadow.
func moveDeps(from, to string) func(*graph.Graph) []string {
	return func(g *graph.Graph) []string {
		_, pinned := pinsFor(g.Shadowed(to), from)
		deps := append(g.BacklinksOf(from).Sources, pinned...)
		slices.Sort(deps)
		return slices.Compact(deps)
	}
}

func isSubset(a, b []string) bool {
	for _, x := range a {
		if !slices.Contains(b, x) {
			return false
		}
	}
	return true
}

// planMove computes every write of the move without touching storage. The
// first element is the relocated document; referrers follow in path order.
func (s *Service) planMove(ctx context.Context, from, to string, dstCat models.Category, referrers []string) ([]rewrite, *MoveResult, error) {
	g, _ := s.state()
	now := s.now().UTC()
	target := strings.TrimSuffix(to, path.Ext(to))
	res := &MoveResult{From: from, To: to, UpdatedReferrers: []string{}}
	pp, _ := pinsFor(g.Shadowed(to), from)

	relink := func(body string) (string, int) {
		return parser.RewriteLinks(body, func(l models.WikiLink) (string, bool) {
			if repl, ok := pp.pinned(l); ok {
				res.PinnedLinks++
				return repl, true
			}
			if p, ok := g.Resolve(l.Target); !ok || p != from {
				return "", false
			}
			return parser.FormatLink(target, l.Anchor, l.Display), true
		})
	}

	srcRaw, err := s.store.ReadFile(ctx, from)
	if err != nil {
		return nil, nil, err
	}
	moved, _, err := parseDocument(to, srcRaw)
	if err != nil {
		return nil, nil, apperr.New(apperr.KindMalformedHeader, from, err)
	}
	moved.Metadata = moved.Metadata.Clone()
	body, n := relink(moved.Body)
	res.RewrittenLinks += n
	moved.Body = body
	if srcCat := s.categoryOf(from); srcCat != dstCat {
		moved.Metadata.Category = dstCat
		res.CategoryChanged = true
	}
	moved.Metadata.Modified = now
	raw, err := parser.Serialize(moved.Metadata, moved.Body)
	if err != nil {
		return nil, nil, apperr.New(apperr.KindInvalidMetadata, to, err)
	}
	plan := []rewrite{{doc: withChecksum(moved, raw), raw: raw}}

	for _, r := range referrers {
		if r == from {
			continue
		}
		original, err := s.store.ReadFile(ctx, r)
		if err != nil {
			return nil, nil, apperr.New(apperr.KindLinkRewriteFailed, r, err)
		}
		d, _, err := parseDocument(r, original)
		if err != nil {
			return nil, nil, apperr.New(apperr.KindLinkRewriteFailed, r, err)
		}
		body, n := relink(d.Body)
		if n == 0 {
			continue
		}
		d.Body = body
		d.Metadata.Modified = now
		raw, err := parser.Serialize(d.Metadata, d.Body)
		if err != nil {
			return nil, nil, apperr.New(apperr.KindLinkRewriteFailed, r, err)
		}
		plan = append(plan, rewrite{doc: withChecksum(d, raw), raw: raw, original: original})
		res.RewrittenLinks += n
		res.UpdatedReferrers = append(res.UpdatedReferrers, r)
	}
	return plan, res, nil
}

func (s *Service) categoryOf(p string) models.Category {
	c, err := s.paths.CategoryOf(p)
	if err != nil {
		return ""
	}
	return c
}

func withChecksum(d *models.Document, raw string) *models.Document {
	d.Checksum = checksum.String(raw)
	return d
}

// commitMove writes the destination, then every referrer, then deletes the
// source. A failure undoes the steps already taken.
func (s *Service) commitMove(ctx context.Context, from string, plan []rewrite) error {
	moved := plan[0]
	if err := s.store.WriteFile(ctx, moved.doc.Path, moved.raw); err != nil {
		return asKind(apperr.KindWriteFailed, moved.doc.Path, err)
	}

	var written []rewrite
	for _, w := range plan[1:] {
		if err := s.store.WriteFile(ctx, w.doc.Path, w.raw); err != nil {
			s.rollbackMove(ctx, moved.doc.Path, written)
			return apperr.New(apperr.KindLinkRewriteFailed, w.doc.Path, err)
		}
		written = append(written, w)
	}

	if err := s.store.DeleteFile(ctx, from); err != nil {
		s.rollbackMove(ctx, moved.doc.Path, written)
		return asKind(apperr.KindWriteFailed, from, err)
	}
	return nil
}

// rollbackMove restores the referrers already rewritten and removes the
// destination. Compensation runs even if ctx was cancelled.
func (s *Service) rollbackMove(ctx context.Context, dst string, written []rewrite) {
	ctx = context.WithoutCancel(ctx)
	var errs []error
	for i := len(written) - 1; i >= 0; i-- {
		w := written[i]
		if err := s.store.WriteFile(ctx, w.doc.Path, w.original); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.store.DeleteFile(ctx, dst); err != nil && !errors.Is(err, apperr.ErrNotFound) {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		s.log.Error("move rollback incomplete", "destination", dst, "error", err)
		return
	}
	s.log.Warn("move rolled back", "destination", dst, "restored", len(written))
}

// asKind keeps err's own kind when it has one.
func asKind(kind apperr.Kind, path string, err error) error {
	if apperr.KindOf(err) != "" {
		return err
	}
	return apperr.New(kind, path, err)
}
