// Package graph maintains the bidirectional link graph between vault
// documents.
//
// Edges are stored against normalised link targets, not resolved paths, so a
// link to a document that does not exist yet is kept as a broken link and
// starts resolving as soon as the document appears. Resolution happens on
// read.
package graph

import (
	"path"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/starford/paravault/internal/models"
	"github.com/starford/paravault/internal/parser"
)

// Default traversal caps for Neighborhood.
const (
	DefaultDepth = 2
	DefaultLimit = 50
)

// Documents that are entry points by convention and never reported as orphans.
var indexNames = []string{"index.md", "_index.md", "readme.md"}

type set map[string]struct{}

func (s set) sorted() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Graph is the in-memory link graph. It is safe for concurrent use: reads run
// in parallel, mutations are serialised internally and never block on I/O.
type Graph struct {
	mu   sync.RWMutex
	docs map[string]string // path → full key
	keys map[string]set    // every path suffix key → paths
	out  map[string]set    // source path → target keys
	in   map[string]set    // target key → source paths
}

// Backlinks is the result of BacklinksOf.
type Backlinks struct {
	Sources []string `json:"sources"`
	// BrokenCount is the number of the document's own outgoing targets that
	// resolve to no document.
	BrokenCount int `json:"broken_count"`
}

// ForwardLink is one outgoing target of a document.
type ForwardLink struct {
	Target string `json:"target"`
	Path   string `json:"path,omitempty"`
	Exists bool   `json:"exists"`
}

// Neighbor is a document reached by Neighborhood.
type Neighbor struct {
	Path  string `json:"path"`
	Depth int    `json:"depth"`
}

// Stats summarises the graph.
type Stats struct {
	Documents     int `json:"documents"`
	TotalLinks    int `json:"total_links"`
	ValidLinks    int `json:"valid_links"`
	BrokenLinks   int `json:"broken_links"`
	WithBacklinks int `json:"with_backlinks"`
	Orphans       int `json:"orphans"`
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		docs: make(map[string]string),
		keys: make(map[string]set),
		out:  make(map[string]set),
		in:   make(map[string]set),
	}
}

// Key returns the normalised link key a document path answers to in full.
func Key(p string) string {
	return parser.NormalizeTarget(p)
}

// suffixes lists every trailing segment run of key: "a/b/c" → c, b/c, a/b/c.
func suffixes(key string) []string {
	var out []string
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == '/' {
			out = append(out, key[i+1:])
		}
	}
	return append(out, key)
}

// AddDocument registers path as an existing document without changing its
// edges.
func (g *Graph) AddDocument(p string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.addDocumentLocked(p)
}

func (g *Graph) addDocumentLocked(p string) {
	if _, ok := g.docs[p]; ok {
		return
	}
	key := Key(p)
	g.docs[p] = key
	for _, k := range suffixes(key) {
		if g.keys[k] == nil {
			g.keys[k] = make(set)
		}
		g.keys[k][p] = struct{}{}
	}
}

// Upsert registers path and replaces its outgoing targets. Only the
// difference between the old and new target sets is applied, so incoming
// sets of unrelated targets are not touched.
func (g *Graph) Upsert(p string, targets []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.addDocumentLocked(p)

	next := make(set, len(targets))
	for _, t := range targets {
		if t != "" {
			next[t] = struct{}{}
		}
	}
	prev := g.out[p]
	for t := range prev {
		if _, keep := next[t]; !keep {
			g.unlinkLocked(p, t)
		}
	}
	for t := range next {
		if _, had := prev[t]; had {
			continue
		}
		if g.in[t] == nil {
			g.in[t] = make(set)
		}
		g.in[t][p] = struct{}{}
	}
	if len(next) == 0 {
		delete(g.out, p)
		return
	}
	g.out[p] = next
}

func (g *Graph) unlinkLocked(source, target string) {
	if srcs, ok := g.in[target]; ok {
		delete(srcs, source)
		if len(srcs) == 0 {
			delete(g.in, target)
		}
	}
}

// Remove deletes path and its outgoing edges. It returns the documents that
// path linked to which have no remaining backlinks.
func (g *Graph) Remove(p string) (orphaned []string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	key, ok := g.docs[p]
	if !ok {
		return nil
	}

	var former []string
	for t := range g.out[p] {
		if dst, ok := g.resolveLocked(t); ok && dst != p {
			former = append(former, dst)
		}
		g.unlinkLocked(p, t)
	}
	delete(g.out, p)

	delete(g.docs, p)
	for _, k := range suffixes(key) {
		if paths, ok := g.keys[k]; ok {
			delete(paths, p)
			if len(paths) == 0 {
				delete(g.keys, k)
			}
		}
	}

	slices.Sort(former)
	former = slices.Compact(former)
	for _, dst := range former {
		if len(g.sourcesLocked(dst)) == 0 {
			orphaned = append(orphaned, dst)
		}
	}
	return orphaned
}

// Has reports whether path is a registered document.
func (g *Graph) Has(p string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.docs[p]
	return ok
}

// Resolve returns the document a link target points at. An exact full-path
// match wins; otherwise the lexicographically first document whose trailing
// path segments equal the target. Because adding a document can change that
// choice, writers consult Shadowed first and pin affected links.
func (g *Graph) Resolve(target string) (string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.resolveLocked(target)
}

func (g *Graph) resolveLocked(target string) (string, bool) {
	best := ""
	for p := range g.keys[target] {
		if best == "" || preferred(p, g.docs[p], best, g.docs[best], target) {
			best = p
		}
	}
	return best, best != ""
}

// preferred reports whether document a (full key aKey) wins target over b.
func preferred(a, aKey, b, bKey, target string) bool {
	aExact, bExact := aKey == target, bKey == target
	if aExact != bExact {
		return aExact
	}
	return a < b
}

// Shadow is a link target whose resolution would move to a new document.
type Shadow struct {
	Target string `json:"target"`
	// Path is the document Target resolves to now.
	Path    string   `json:"path"`
	Sources []string `json:"sources"`
}

// Shadowed returns the linked targets that would stop resolving to their
// current document if p were added. Broken targets that p would satisfy are
// not included.
func (g *Graph) Shadowed(p string) []Shadow {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, ok := g.docs[p]; ok {
		return nil
	}
	key := Key(p)
	var out []Shadow
	for _, k := range suffixes(key) {
		srcs := g.in[k]
		if len(srcs) == 0 {
			continue
		}
		cur, ok := g.resolveLocked(k)
		if !ok || !preferred(p, key, cur, g.docs[cur], k) {
			continue
		}
		out = append(out, Shadow{Target: k, Path: cur, Sources: srcs.sorted()})
	}
	return out
}

// sourcesLocked returns every source whose outgoing targets resolve to p.
func (g *Graph) sourcesLocked(p string) set {
	key, ok := g.docs[p]
	if !ok {
		return nil
	}
	srcs := make(set)
	for _, k := range suffixes(key) {
		in := g.in[k]
		if len(in) == 0 {
			continue
		}
		if dst, ok := g.resolveLocked(k); !ok || dst != p {
			continue
		}
		for s := range in {
			srcs[s] = struct{}{}
		}
	}
	return srcs
}

// BacklinksOf returns the documents linking to path.
func (g *Graph) BacklinksOf(p string) Backlinks {
	g.mu.RLock()
	defer g.mu.RUnlock()

	b := Backlinks{Sources: g.sourcesLocked(p).sorted()}
	for t := range g.out[p] {
		if _, ok := g.resolveLocked(t); !ok {
			b.BrokenCount++
		}
	}
	return b
}

// ForwardLinksOf returns the outgoing targets of path, sorted by target.
func (g *Graph) ForwardLinksOf(p string) []ForwardLink {
	g.mu.RLock()
	defer g.mu.RUnlock()

	targets := g.out[p].sorted()
	out := make([]ForwardLink, 0, len(targets))
	for _, t := range targets {
		dst, ok := g.resolveLocked(t)
		out = append(out, ForwardLink{Target: t, Path: dst, Exists: ok})
	}
	return out
}

// Targets returns the raw outgoing target keys of path.
func (g *Graph) Targets(p string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.out[p].sorted()
}

// BrokenLinks lists every (source, target) pair whose target resolves to no
// document, once per pair, sorted.
func (g *Graph) BrokenLinks() []models.Link {
	g.mu.RLock()
	defer g.mu.RUnlock()

	sources := make([]string, 0, len(g.out))
	for s := range g.out {
		sources = append(sources, s)
	}
	sort.Strings(sources)

	var out []models.Link
	for _, s := range sources {
		for _, t := range g.out[s].sorted() {
			if _, ok := g.resolveLocked(t); !ok {
				out = append(out, models.Link{Source: s, Target: t})
			}
		}
	}
	return out
}

// Neighborhood walks forward and backward edges breadth-first from path and
// returns the documents reached, nearest first. The walk stops at depth hops
// or limit documents. The start document is not included.
func (g *Graph) Neighborhood(p string, depth, limit int) []Neighbor {
	if depth <= 0 {
		depth = DefaultDepth
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, ok := g.docs[p]; !ok {
		return nil
	}

	type item struct {
		path  string
		depth int
	}
	visited := map[string]bool{p: true}
	queue := []item{{p, 0}}
	var out []Neighbor

	for len(queue) > 0 && len(out) < limit {
		cur := queue[0]
		queue = queue[1:]
		if cur.depth >= depth {
			continue
		}

		next := make(set)
		for t := range g.out[cur.path] {
			if dst, ok := g.resolveLocked(t); ok {
				next[dst] = struct{}{}
			}
		}
		for s := range g.sourcesLocked(cur.path) {
			next[s] = struct{}{}
		}

		for _, n := range next.sorted() {
			if visited[n] {
				continue
			}
			visited[n] = true
			out = append(out, Neighbor{Path: n, Depth: cur.depth + 1})
			if len(out) >= limit {
				break
			}
			queue = append(queue, item{n, cur.depth + 1})
		}
	}
	return out
}

// Orphans returns documents with no backlinks, sorted. Index pages are
// excluded.
func (g *Graph) Orphans() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []string
	for p := range g.docs {
		if isIndexPage(p) {
			continue
		}
		if len(g.sourcesLocked(p)) == 0 {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// Stats computes link statistics over the whole graph.
func (g *Graph) Stats() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	st := Stats{Documents: len(g.docs)}
	for _, targets := range g.out {
		for t := range targets {
			st.TotalLinks++
			if _, ok := g.resolveLocked(t); ok {
				st.ValidLinks++
			} else {
				st.BrokenLinks++
			}
		}
	}
	for p := range g.docs {
		if len(g.sourcesLocked(p)) > 0 {
			st.WithBacklinks++
		} else if !isIndexPage(p) {
			st.Orphans++
		}
	}
	return st
}

func isIndexPage(p string) bool {
	return slices.Contains(indexNames, strings.ToLower(path.Base(p)))
}
