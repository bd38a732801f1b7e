package noteservice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/paravault/internal/apperr"
	"github.com/starford/paravault/internal/checksum"
	"github.com/starford/paravault/internal/graph"
	"github.com/starford/paravault/internal/models"
	"github.com/starford/paravault/internal/parser"
)

// LoadFailure describes one document that was skipped or degraded.
type LoadFailure struct {
	Path  string `json:"path"`
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

// LoadReport summarises a corpus-wide load.
type LoadReport struct {
	Loaded   int           `json:"loaded"`
	Degraded int           `json:"degraded"`
	Skipped  int           `json:"skipped"`
	Failures []LoadFailure `json:"failures,omitempty"`
	Duration time.Duration `json:"duration"`
}

type loaded struct {
	doc      *models.Document
	degraded error
	skipped  error
}

// Load scans storage and rebuilds the document set, link graph and search
// index from scratch. Documents with a malformed header are skipped and
// documents with an undecodable header are loaded with empty metadata; both
// are counted and logged, and never fail the load.
func (s *Service) Load(ctx context.Context) (_ *LoadReport, err error) {
	defer s.observe(ctx, "load", time.Now(), &err)
	start := time.Now()

	s.barrier.Lock()
	defer s.barrier.Unlock()

	files, err := s.store.ListFiles(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("noteservice: list: %w", err)
	}

	results := make([]loaded, len(files))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(s.loadWorkers)
	for i, p := range files {
		eg.Go(func() error {
			r, err := s.loadOne(egCtx, p)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("noteservice: load: %w", err)
	}

	docs := make(map[string]*models.Document, len(files))
	g := graph.New()
	ix := s.newIndex()
	report := &LoadReport{}

	for i, r := range results {
		switch {
		case r.skipped != nil:
			report.Skipped++
			report.Failures = append(report.Failures, failure(files[i], r.skipped))
			s.metrics.RecordError(ctx, "load", string(apperr.KindOf(r.skipped)))
			s.log.Warn("document skipped", "path", files[i], "error", r.skipped)
			continue
		case r.degraded != nil:
			report.Degraded++
			report.Failures = append(report.Failures, failure(files[i], r.degraded))
			s.metrics.RecordError(ctx, "load", string(apperr.KindMalformedHeader))
			s.log.Warn("document header degraded", "path", files[i], "error", r.degraded)
		}
		docs[r.doc.Path] = r.doc
		g.AddDocument(r.doc.Path)
	}
	for _, d := range docs {
		g.Upsert(d.Path, parser.Targets(parser.ExtractLinks(d.Body)))
		ix.Index(d)
		s.log.Debug("document indexed", "path", d.Path)
	}
	report.Loaded = len(docs)

	s.mu.Lock()
	s.docs, s.g, s.ix = docs, g, ix
	s.mu.Unlock()

	report.Duration = time.Since(start)
	s.publishGauges(ctx)
	s.notify(ChangeReloaded, "", "")
	s.log.Info("vault loaded",
		"loaded", report.Loaded,
		"degraded", report.Degraded,
		"skipped", report.Skipped,
		"duration", report.Duration,
	)
	return report, nil
}

// Reindex is Load under another name: a full rebuild from storage.
func (s *Service) Reindex(ctx context.Context) (*LoadReport, error) {
	return s.Load(ctx)
}

// loadOne reads and parses a single file. Per-document problems are returned
// inside loaded; only context errors abort the load.
func (s *Service) loadOne(ctx context.Context, p string) (loaded, error) {
	rel, _, err := s.paths.DocumentPath(p)
	if err != nil {
		return loaded{skipped: err}, nil
	}
	raw, err := s.store.ReadFile(ctx, rel)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return loaded{}, ctxErr
		}
		return loaded{skipped: err}, nil
	}
	d, res, err := parseDocument(rel, raw)
	if err != nil {
		return loaded{skipped: apperr.New(apperr.KindMalformedHeader, rel, err)}, nil
	}
	l := loaded{doc: d}
	if res.Degraded {
		l.degraded = apperr.New(apperr.KindMalformedHeader, rel, res.DecodeErr)
	}
	return l, nil
}

// parseDocument builds a Document from raw text.
func parseDocument(path, raw string) (*models.Document, *parser.Result, error) {
	res, err := parser.Parse(raw)
	if err != nil {
		return nil, nil, err
	}
	return &models.Document{
		Path:     path,
		Metadata: res.Metadata,
		Body:     res.Body,
		Checksum: checksum.String(raw),
	}, res, nil
}

func failure(path string, err error) LoadFailure {
	return LoadFailure{Path: path, Kind: string(apperr.KindOf(err)), Error: err.Error()}
}

// Refresh re-reads one document from storage after an external change. An
// unchanged checksum is a no-op and a missing file is forgotten.
func (s *Service) Refresh(ctx context.Context, path string) (err error) {
	defer s.observe(ctx, "refresh", time.Now(), &err)

	rel, _, err := s.paths.DocumentPath(path)
	if err != nil {
		return err
	}

	s.barrier.RLock()
	defer s.barrier.RUnlock()
	unlock, err := s.lock(ctx, rel)
	if err != nil {
		return err
	}
	defer unlock()

	raw, err := s.store.ReadFile(ctx, rel)
	if errors.Is(err, apperr.ErrNotFound) {
		s.forgetLocked(rel)
		return nil
	}
	if err != nil {
		return err
	}
	if cur, ok := s.doc(rel); ok && cur.Checksum == checksum.String(raw) {
		return nil
	}

	d, res, err := parseDocument(rel, raw)
	if err != nil {
		s.log.Warn("refresh skipped malformed document", "path", rel, "error", err)
		return apperr.New(apperr.KindMalformedHeader, rel, err)
	}
	if res.Degraded {
		s.log.Warn("document header degraded", "path", rel, "error", res.DecodeErr)
	}
	s.apply([]*models.Document{d}, nil)
	s.log.Debug("document refreshed", "path", rel)
	s.notify(ChangeUpdated, rel, "")
	return nil
}

// Forget drops a document from memory without touching storage.
func (s *Service) Forget(ctx context.Context, path string) (err error) {
	defer s.observe(ctx, "forget", time.Now(), &err)

	rel, err := s.paths.Validate(path)
	if err != nil {
		return err
	}
	s.barrier.RLock()
	defer s.barrier.RUnlock()
	unlock, err := s.lock(ctx, rel)
	if err != nil {
		return err
	}
	defer unlock()

	s.forgetLocked(rel)
	return nil
}

func (s *Service) forgetLocked(rel string) {
	if _, ok := s.doc(rel); !ok {
		return
	}
	s.apply(nil, []string{rel})
	s.log.Debug("document forgotten", "path", rel)
	s.notify(ChangeDeleted, rel, "")
}

func (s *Service) publishGauges(ctx context.Context) {
	g, ix := s.state()
	for c, n := range ix.CategoryCounts() {
		s.metrics.SetDocuments(ctx, string(c), n)
	}
	st := g.Stats()
	s.metrics.SetLinks(ctx, "valid", st.ValidLinks)
	s.metrics.SetLinks(ctx, "broken", st.BrokenLinks)
}

// SyncReport counts the changes a Sync applied.
type SyncReport struct {
	Refreshed int `json:"refreshed"`
	Forgotten int `json:"forgotten"`
	Failed    int `json:"failed"`
}

// Sync brings memory up to date with storage one document at a time:
// changed or new files are refreshed and documents whose file is gone are
// forgotten. Per-document failures are logged and counted.
func (s *Service) Sync(ctx context.Context) (_ *SyncReport, err error) {
	defer s.observe(ctx, "sync", time.Now(), &err)

	files, err := s.store.ListFiles(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("noteservice: list: %w", err)
	}
	onDisk := make(map[string]struct{}, len(files))
	rep := &SyncReport{}

	for _, p := range files {
		rel, _, err := s.paths.DocumentPath(p)
		if err != nil {
			continue
		}
		onDisk[rel] = struct{}{}
		before, _ := s.doc(rel)
		if err := s.Refresh(ctx, rel); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return rep, ctxErr
			}
			rep.Failed++
			s.log.Warn("sync: refresh failed", "path", rel, "error", err)
			continue
		}
		if after, _ := s.doc(rel); after != before {
			rep.Refreshed++
		}
	}

	s.mu.RLock()
	var stale []string
	for p := range s.docs {
		if _, ok := onDisk[p]; !ok {
			stale = append(stale, p)
		}
	}
	s.mu.RUnlock()

	// Refresh rechecks storage under the path lock, so a document created
	// after the listing is kept.
	for _, p := range stale {
		if err := s.Refresh(ctx, p); err != nil {
			rep.Failed++
			s.log.Warn("sync: forget failed", "path", p, "error", err)
			continue
		}
		if _, ok := s.doc(p); !ok {
			rep.Forgotten++
		}
	}
	if rep.Refreshed+rep.Forgotten > 0 {
		s.publishGauges(ctx)
	}
	s.log.Debug("sync done", "refreshed", rep.Refreshed, "forgotten", rep.Forgotten, "failed", rep.Failed)
	return rep, nil
}
