package noteservice

import (
	"context"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/starford/paravault/internal/apperr"
	"github.com/starford/paravault/internal/graph"
	"github.com/starford/paravault/internal/models"
	"github.com/starford/paravault/internal/parser"
)

// pins maps a link target to the full path, without extension, it must keep
// pointing at.
type pins map[string]string

// pinsFor collects the shadowed targets of a new document at p. Targets that
// currently resolve to skip are left out; the caller rewrites those itself.
func pinsFor(shadows []graph.Shadow, skip string) (pins, []string) {
	pp := make(pins)
	var sources []string
	for _, sh := range shadows {
		if sh.Path == skip {
			continue
		}
		pp[sh.Target] = strings.TrimSuffix(sh.Path, path.Ext(sh.Path))
		sources = append(sources, sh.Sources...)
	}
	slices.Sort(sources)
	return pp, slices.Compact(sources)
}

// pinned returns the replacement for l when its target is pinned. The
// visible text is kept.
func (pp pins) pinned(l models.WikiLink) (string, bool) {
	full, ok := pp[l.Target]
	if !ok {
		return "", false
	}
	display := l.Display
	if display == "" {
		display = l.RawTarget
	}
	return parser.FormatLink(full, l.Anchor, display), true
}

// lockWith locks fixed plus the documents deps reports, re-reading deps once
// the locks are held and retrying if the set grew meanwhile.
func (s *Service) lockWith(ctx context.Context, fixed []string, deps func(*graph.Graph) []string) (func(), []string, error) {
	for range moveAttempts {
		g, _ := s.state()
		want := deps(g)

		unlock, err := s.lock(ctx, append(slices.Clone(fixed), want...)...)
		if err != nil {
			return nil, nil, err
		}
		current := deps(g)
		if isSubset(current, want) {
			return unlock, current, nil
		}
		unlock()
		s.log.Debug("dependent documents changed, retrying", "path", fixed[0])
	}
	return nil, nil, apperr.Newf(apperr.KindConflict, fixed[0], "linked documents kept changing")
}

// planPins rewrites the pinned links of every source. Sources with nothing
// to rewrite are dropped.
func (s *Service) planPins(ctx context.Context, sources []string, pp pins, now time.Time) ([]rewrite, int, error) {
	var plan []rewrite
	total := 0
	for _, src := range sources {
		original, err := s.store.ReadFile(ctx, src)
		if err != nil {
			return nil, 0, apperr.New(apperr.KindLinkRewriteFailed, src, err)
		}
		d, _, err := parseDocument(src, original)
		if err != nil {
			return nil, 0, apperr.New(apperr.KindLinkRewriteFailed, src, err)
		}
		body, n := parser.RewriteLinks(d.Body, pp.pinned)
		if n == 0 {
			continue
		}
		d.Body = body
		d.Metadata.Modified = now
		raw, err := parser.Serialize(d.Metadata, d.Body)
		if err != nil {
			return nil, 0, apperr.New(apperr.KindLinkRewriteFailed, src, err)
		}
		plan = append(plan, rewrite{doc: withChecksum(d, raw), raw: raw, original: original})
		total += n
	}
	return plan, total, nil
}

// writeAll stores every planned rewrite in order. On failure the ones
// already written are restored and the error is returned.
func (s *Service) writeAll(ctx context.Context, plan []rewrite) error {
	for i, w := range plan {
		if err := s.store.WriteFile(ctx, w.doc.Path, w.raw); err != nil {
			s.restore(ctx, plan[:i])
			return apperr.New(apperr.KindLinkRewriteFailed, w.doc.Path, err)
		}
	}
	return nil
}

// restore puts back the original content of written rewrites. It runs even
// if ctx was cancelled.
func (s *Service) restore(ctx context.Context, written []rewrite) {
	ctx = context.WithoutCancel(ctx)
	for i := len(written) - 1; i >= 0; i-- {
		w := written[i]
		if err := s.store.WriteFile(ctx, w.doc.Path, w.original); err != nil {
			s.log.Error("restore failed", "path", w.doc.Path, "error", err)
		}
	}
}

func docsOf(plan []rewrite) []*models.Document {
	out := make([]*models.Document, 0, len(plan))
	for _, w := range plan {
		out = append(out, w.doc)
	}
	return out
}
