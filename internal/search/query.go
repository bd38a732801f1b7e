package search

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/paravault/internal/models"
)

// Operator combines filter tags.
type Operator string

const (
	OperatorAnd Operator = "and"
	OperatorOr  Operator = "or"
)

// Ranking weights. Each tier outranks everything below it.
const (
	weightTagExact  = 8.0
	weightTagPrefix = 4.0
	weightTitle     = 3.0
	weightPhrase    = 2.0
	weightRecency   = 0.5

	maxBodyOccurrences = 5
	recencyHalfLife    = 30 * 24 * time.Hour
)

// Filter selects and pages documents.
type Filter struct {
	// Text is matched token by token against title, body and tags. Every
	// token must match somewhere.
	Text          string          `json:"text,omitempty"`
	Tags          []string        `json:"tags,omitempty"`
	TagOperator   Operator        `json:"tag_operator,omitempty"`
	Category      models.Category `json:"category,omitempty"`
	ModifiedFrom  time.Time       `json:"modified_from,omitzero"`
	ModifiedTo    time.Time       `json:"modified_to,omitzero"`
	ExcludeDrafts bool            `json:"exclude_drafts,omitempty"`
	Offset        int             `json:"offset,omitempty"`
	Limit         int             `json:"limit,omitempty"`
}

// Validate checks the filter's fields.
func (f Filter) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.TagOperator, validation.In(OperatorAnd, OperatorOr)),
		validation.Field(&f.Category, validation.By(func(any) error {
			if f.Category != "" && !f.Category.Valid() {
				return fmt.Errorf("unknown category %q", f.Category)
			}
			return nil
		})),
		validation.Field(&f.Offset, validation.Min(0)),
		validation.Field(&f.Limit, validation.Min(0)),
		validation.Field(&f.ModifiedTo, validation.By(func(any) error {
			if !f.ModifiedFrom.IsZero() && !f.ModifiedTo.IsZero() && f.ModifiedTo.Before(f.ModifiedFrom) {
				return fmt.Errorf("must not be before modified_from")
			}
			return nil
		})),
	)
}

// Result is one ranked document.
type Result struct {
	Path     string          `json:"path"`
	Title    string          `json:"title"`
	Category models.Category `json:"category"`
	Tags     []string        `json:"tags,omitempty"`
	Modified time.Time       `json:"modified,omitzero"`
	Score    float64         `json:"score"`
	// Snippet is empty when only the title or tags matched.
	Snippet string `json:"snippet"`
}

// Results is one page of ranked documents.
type Results struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Offset  int      `json:"offset"`
	Limit   int      `json:"limit"`
}

type hit struct {
	e     *entry
	score float64
	match span
	found bool
}

// Query ranks every document passing f. Ties break by path. A cancelled ctx
// discards the partial result.
func (ix *Index) Query(ctx context.Context, f Filter) (*Results, error) {
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	q := compile(f)
	now := ix.now()

	ix.mu.RLock()
	q.expand(ix)
	hits := make([]hit, 0, len(ix.entries))
	n := 0
	for _, e := range ix.entries {
		if n++; n%256 == 0 {
			if err := ctx.Err(); err != nil {
				ix.mu.RUnlock()
				return nil, err
			}
		}
		if h, ok := q.match(e, now); ok {
			hits = append(hits, h)
		}
	}
	ix.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].e.path < hits[j].e.path
	})

	limit := f.Limit
	if limit == 0 {
		limit = ix.defaultLimit
	}
	limit = min(limit, ix.maxLimit)

	res := &Results{Results: []Result{}, Total: len(hits), Offset: f.Offset, Limit: limit}
	if f.Offset >= len(hits) {
		return res, nil
	}
	page := hits[f.Offset:min(f.Offset+limit, len(hits))]
	for _, h := range page {
		r := Result{
			Path:     h.e.path,
			Title:    h.e.title,
			Category: h.e.category,
			Tags:     h.e.tags,
			Modified: h.e.modified,
			Score:    h.score,
		}
		if h.found {
			r.Snippet = snippet(h.e.body, h.match, ix.snippetRadius)
		}
		res.Results = append(res.Results, r)
	}
	return res, nil
}

type compiled struct {
	f       Filter
	tokens  []string
	bigrams []string
	tags    []string
	// words[i] lists the indexed body words containing tokens[i].
	words [][]string
}

// expand resolves each query token against the corpus vocabulary. The
// caller holds ix.mu.
func (q *compiled) expand(ix *Index) {
	q.words = make([][]string, len(q.tokens))
	for i, tok := range q.tokens {
		q.words[i] = ix.expandLocked(tok)
	}
}

func compile(f Filter) *compiled {
	q := &compiled{f: f}
	toks := tokenize(f.Text)
	seen := make(map[string]bool, len(toks))
	for i, tok := range toks {
		if i > 0 {
			q.bigrams = append(q.bigrams, toks[i-1].text+" "+tok.text)
		}
		if !seen[tok.text] {
			seen[tok.text] = true
			q.tokens = append(q.tokens, tok.text)
		}
	}
	for _, t := range f.Tags {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			q.tags = append(q.tags, t)
		}
	}
	return q
}

func (q *compiled) match(e *entry, now time.Time) (hit, bool) {
	f := q.f
	if f.Category != "" && e.category != f.Category {
		return hit{}, false
	}
	if f.ExcludeDrafts && e.draft {
		return hit{}, false
	}
	if !f.ModifiedFrom.IsZero() || !f.ModifiedTo.IsZero() {
		if e.modified.IsZero() ||
			(!f.ModifiedFrom.IsZero() && e.modified.Before(f.ModifiedFrom)) ||
			(!f.ModifiedTo.IsZero() && e.modified.After(f.ModifiedTo)) {
			return hit{}, false
		}
	}

	h := hit{e: e}
	if len(q.tags) > 0 {
		matched := 0
		for _, want := range q.tags {
			if slices.Contains(e.tagsLower, want) {
				matched++
			}
		}
		if matched == 0 || (f.TagOperator != OperatorOr && matched < len(q.tags)) {
			return hit{}, false
		}
		h.score += weightTagExact * float64(matched)
	}

	for i, tok := range q.tokens {
		s := tagScore(e.tagsLower, tok)
		if strings.Contains(e.titleLower, tok) {
			s += weightTitle
		}
		c := 0
		for _, w := range q.words[i] {
			n := e.freq[w]
			if n == 0 {
				continue
			}
			c += n
			sp := e.first[w]
			if !h.found || sp.start < h.match.start {
				h.match, h.found = sp, true
			}
		}
		for k := 1; k <= min(c, maxBodyOccurrences); k++ {
			s += 1 / float64(k)
		}
		if s == 0 {
			return hit{}, false
		}
		h.score += s
	}

	if len(q.bigrams) > 0 {
		phrase := true
		for _, bg := range q.bigrams {
			if _, ok := e.bigrams[bg]; !ok {
				phrase = false
				break
			}
		}
		if phrase {
			h.score += weightPhrase
		}
	}

	if !e.modified.IsZero() {
		age := max(now.Sub(e.modified), 0)
		h.score += weightRecency / (1 + float64(age)/float64(recencyHalfLife))
	}
	return h, true
}

func tagScore(tags []string, tok string) float64 {
	best := 0.0
	for _, t := range tags {
		switch {
		case t == tok:
			return weightTagExact
		case strings.HasPrefix(t, tok):
			best = weightTagPrefix
		}
	}
	return best
}

var flatten = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ", "\t", " ")

// snippet cuts about radius bytes of body on each side of m, snapped to rune
// and word boundaries, and wraps the match in <b></b>.
func snippet(body string, m span, radius int) string {
	start := max(m.start-radius, 0)
	for start > 0 && !utf8.RuneStart(body[start]) {
		start--
	}
	end := min(m.end+radius, len(body))
	for end < len(body) && !utf8.RuneStart(body[end]) {
		end++
	}
	if start > 0 {
		if i := strings.IndexAny(body[start:m.start], " \n\t"); i >= 0 {
			start += i + 1
		}
	}
	if end < len(body) {
		if i := strings.LastIndexAny(body[m.end:end], " \n\t"); i >= 0 {
			end = m.end + i
		}
	}

	var b strings.Builder
	if start > 0 {
		b.WriteString("...")
	}
	b.WriteString(flatten.Replace(body[start:m.start]))
	b.WriteString("<b>")
	b.WriteString(body[m.start:m.end])
	b.WriteString("</b>")
	b.WriteString(flatten.Replace(body[m.end:end]))
	if end < len(body) {
		b.WriteString("...")
	}
	return b.String()
}
