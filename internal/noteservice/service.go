// Package noteservice is the vault's update engine. It owns the in-memory
// document set, the link graph and the search index, and keeps all three
// consistent with storage across creates, updates, moves and deletes.
package noteservice

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/paravault/internal/apperr"
	"github.com/starford/paravault/internal/graph"
	"github.com/starford/paravault/internal/lockset"
	"github.com/starford/paravault/internal/metrics"
	"github.com/starford/paravault/internal/models"
	"github.com/starford/paravault/internal/para"
	"github.com/starford/paravault/internal/parser"
	"github.com/starford/paravault/internal/search"
	"github.com/starford/paravault/internal/storage"
)

// linkContextRadius is how many bytes around a link a backlink excerpt shows.
const linkContextRadius = 50

// NoteDetail is the full representation of a document.
type NoteDetail struct {
	Path         string              `json:"path"`
	Title        string              `json:"title"`
	Category     models.Category     `json:"category"`
	Draft        bool                `json:"draft"`
	Metadata     models.Metadata     `json:"metadata"`
	Body         string              `json:"body"`
	Checksum     string              `json:"checksum"`
	Backlinks    []string            `json:"backlinks"`
	ForwardLinks []graph.ForwardLink `json:"forward_links"`
}

// Service coordinates storage, the link graph and the search index.
type Service struct {
	store storage.Provider
	paths *para.Resolver
	locks *lockset.Set

	// barrier is held shared by every mutation and exclusively by Load and
	// Reindex, which swap the whole state.
	barrier sync.RWMutex

	mu   sync.RWMutex
	docs map[string]*models.Document
	g    *graph.Graph
	ix   *search.Index

	log          *slog.Logger
	metrics      metrics.Collector
	notifier     Notifier
	now          func() time.Time
	searchOpts   []search.Option
	loadWorkers  int
	lockTimeout  time.Duration
	maxDepth     int
	maxNeighbors int
}

// NewService creates a service over store. Call Load before serving.
func NewService(store storage.Provider, paths *para.Resolver, opts ...Option) *Service {
	s := &Service{
		store:        store,
		paths:        paths,
		locks:        lockset.New(),
		docs:         make(map[string]*models.Document),
		log:          slog.Default(),
		metrics:      metrics.Noop{},
		now:          time.Now,
		loadWorkers:  8,
		lockTimeout:  5 * time.Second,
		maxDepth:     graph.DefaultDepth,
		maxNeighbors: graph.DefaultLimit,
	}
	for _, o := range opts {
		o(s)
	}
	s.g = graph.New()
	s.ix = s.newIndex()
	return s
}

func (s *Service) newIndex() *search.Index {
	opts := append([]search.Option{search.WithClock(s.now)}, s.searchOpts...)
	return search.NewIndex(opts...)
}

// state returns the current graph and index.
func (s *Service) state() (*graph.Graph, *search.Index) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.g, s.ix
}

func (s *Service) doc(path string) (*models.Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.docs[path]
	return d, ok
}

// lock acquires the per-path sections for paths, bounded by the configured
// lock timeout.
func (s *Service) lock(ctx context.Context, paths ...string) (func(), error) {
	if s.lockTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.lockTimeout)
		defer cancel()
	}
	return s.locks.Lock(ctx, paths...)
}

// apply installs the new versions of changed documents and drops removed
// ones. It never fails and never blocks on I/O.
func (s *Service) apply(changed []*models.Document, removed []string) (orphaned []string) {
	g, ix := s.state()

	s.mu.Lock()
	for _, p := range removed {
		delete(s.docs, p)
	}
	for _, d := range changed {
		s.docs[d.Path] = d
	}
	s.mu.Unlock()

	for _, d := range changed {
		g.Upsert(d.Path, parser.Targets(parser.ExtractLinks(d.Body)))
		ix.Index(d)
	}
	for _, p := range removed {
		orphaned = append(orphaned, g.Remove(p)...)
		ix.Remove(p)
	}
	return orphaned
}

// Read returns the document at path.
func (s *Service) Read(ctx context.Context, path string) (_ *NoteDetail, err error) {
	defer s.observe(ctx, "read", time.Now(), &err)

	rel, err := s.paths.Validate(path)
	if err != nil {
		return nil, err
	}
	d, ok := s.doc(rel)
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, rel, nil)
	}
	return s.detail(d), nil
}

func (s *Service) detail(d *models.Document) *NoteDetail {
	g, _ := s.state()
	return &NoteDetail{
		Path:         d.Path,
		Title:        parser.DeriveTitle(d.Metadata, d.Body, d.Path),
		Category:     para.EffectiveCategory(d.Path, d.Metadata),
		Draft:        d.Metadata.IsDraft(),
		Metadata:     d.Metadata,
		Body:         d.Body,
		Checksum:     d.Checksum,
		Backlinks:    g.BacklinksOf(d.Path).Sources,
		ForwardLinks: g.ForwardLinksOf(d.Path),
	}
}

// observe records the outcome of an operation.
func (s *Service) observe(ctx context.Context, op string, start time.Time, errp *error) {
	status := "ok"
	if err := *errp; err != nil {
		status = "error"
		kind := string(apperr.KindOf(err))
		switch {
		case kind != "":
		case errors.Is(err, lockset.ErrLockTimeout):
			kind = "lock_timeout"
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			kind = "canceled"
		default:
			kind = "internal"
		}
		s.metrics.RecordError(ctx, op, kind)
	}
	s.metrics.RecordOperation(ctx, op, status, time.Since(start))
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
