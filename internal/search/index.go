// Package search is the in-memory lexical index over vault documents.
//
// Every document is tokenised once when it is indexed. Queries only consult
// the precomputed token tables, so their cost grows with the number of
// documents and the corpus vocabulary, not with the size of their bodies.
// Query words match any indexed word containing them: "search" finds
// "searching" and "research".
package search

import (
	"slices"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/starford/paravault/internal/models"
	"github.com/starford/paravault/internal/para"
	"github.com/starford/paravault/internal/parser"
)

// Default paging and snippet settings.
const (
	DefaultLimit         = 20
	DefaultMaxLimit      = 100
	DefaultSnippetRadius = 80
)

// Index holds one entry per document path.
type Index struct {
	mu      sync.RWMutex
	entries map[string]*entry
	// terms counts, per body word, the documents containing it.
	terms map[string]int

	now           func() time.Time
	defaultLimit  int
	maxLimit      int
	snippetRadius int
}

// Option configures an Index.
type Option func(*Index)

// WithClock sets the clock used for the recency boost.
func WithClock(now func() time.Time) Option {
	return func(ix *Index) { ix.now = now }
}

// WithPageSize sets the default and maximum result page size.
func WithPageSize(def, maxLimit int) Option {
	return func(ix *Index) {
		if def > 0 {
			ix.defaultLimit = def
		}
		if maxLimit > 0 {
			ix.maxLimit = maxLimit
		}
	}
}

// WithSnippetRadius sets how many bytes of context surround a snippet match.
func WithSnippetRadius(n int) Option {
	return func(ix *Index) {
		if n > 0 {
			ix.snippetRadius = n
		}
	}
}

// NewIndex returns an empty index.
func NewIndex(opts ...Option) *Index {
	ix := &Index{
		entries:       make(map[string]*entry),
		terms:         make(map[string]int),
		now:           time.Now,
		defaultLimit:  DefaultLimit,
		maxLimit:      DefaultMaxLimit,
		snippetRadius: DefaultSnippetRadius,
	}
	for _, o := range opts {
		o(ix)
	}
	if ix.defaultLimit > ix.maxLimit {
		ix.defaultLimit = ix.maxLimit
	}
	return ix
}

// span is the byte range of a token's first occurrence in the body.
type span struct{ start, end int }

// entry is the immutable precomputed form of one document.
type entry struct {
	path       string
	title      string
	titleLower string
	category   models.Category
	tags       []string
	tagsLower  []string
	modified   time.Time
	draft      bool

	body    string
	freq    map[string]int
	first   map[string]span
	bigrams map[string]struct{}
}

func newEntry(doc *models.Document) *entry {
	e := &entry{
		path:     doc.Path,
		title:    parser.DeriveTitle(doc.Metadata, doc.Body, doc.Path),
		category: para.EffectiveCategory(doc.Path, doc.Metadata),
		tags:     append([]string(nil), doc.Metadata.Tags...),
		modified: doc.Metadata.Modified,
		draft:    doc.Metadata.IsDraft(),
		body:     doc.Body,
		freq:     make(map[string]int),
		first:    make(map[string]span),
		bigrams:  make(map[string]struct{}),
	}
	e.titleLower = strings.ToLower(e.title)
	e.tagsLower = make([]string, len(e.tags))
	for i, t := range e.tags {
		e.tagsLower[i] = strings.ToLower(t)
	}

	prev := ""
	for _, tok := range tokenize(doc.Body) {
		e.freq[tok.text]++
		if _, seen := e.first[tok.text]; !seen {
			e.first[tok.text] = span{tok.start, tok.end}
		}
		if prev != "" {
			e.bigrams[prev+" "+tok.text] = struct{}{}
		}
		prev = tok.text
	}
	return e
}

// Index adds or replaces the entry for doc.Path. Indexing unchanged content
// again leaves the index unchanged.
func (ix *Index) Index(doc *models.Document) {
	if doc == nil {
		return
	}
	e := newEntry(doc)
	ix.mu.Lock()
	ix.dropLocked(doc.Path)
	ix.entries[doc.Path] = e
	for t := range e.freq {
		ix.terms[t]++
	}
	ix.mu.Unlock()
}

// Remove drops the entry for path.
func (ix *Index) Remove(path string) {
	ix.mu.Lock()
	ix.dropLocked(path)
	ix.mu.Unlock()
}

func (ix *Index) dropLocked(path string) {
	old, ok := ix.entries[path]
	if !ok {
		return
	}
	for t := range old.freq {
		if ix.terms[t]--; ix.terms[t] <= 0 {
			delete(ix.terms, t)
		}
	}
	delete(ix.entries, path)
}

// Reset drops every entry.
func (ix *Index) Reset() {
	ix.mu.Lock()
	ix.entries = make(map[string]*entry)
	ix.terms = make(map[string]int)
	ix.mu.Unlock()
}

// Terms returns the number of distinct body words in the index.
func (ix *Index) Terms() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.terms)
}

// expandLocked returns every indexed body word containing tok, the exact
// word first and the rest sorted.
func (ix *Index) expandLocked(tok string) []string {
	var out []string
	for t := range ix.terms {
		if t != tok && strings.Contains(t, tok) {
			out = append(out, t)
		}
	}
	slices.Sort(out)
	if _, ok := ix.terms[tok]; ok {
		out = append([]string{tok}, out...)
	}
	return out
}

// Len returns the number of indexed documents.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

// CategoryCounts returns the number of indexed documents per category. Every
// category is present in the result.
func (ix *Index) CategoryCounts() map[models.Category]int {
	out := make(map[models.Category]int, len(models.Categories))
	for _, c := range models.Categories {
		out[c] = 0
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	for _, e := range ix.entries {
		if e.category != "" {
			out[e.category]++
		}
	}
	return out
}

type token struct {
	text       string
	start, end int
}

// tokenize splits s into lower-cased runs of letters and digits, keeping the
// byte offsets of each run in s.
func tokenize(s string) []token {
	var out []token
	start := -1
	for i, r := range s {
		word := unicode.IsLetter(r) || unicode.IsDigit(r)
		switch {
		case word && start < 0:
			start = i
		case !word && start >= 0:
			out = append(out, token{strings.ToLower(s[start:i]), start, i})
			start = -1
		}
	}
	if start >= 0 {
		out = append(out, token{strings.ToLower(s[start:]), start, len(s)})
	}
	return out
}
