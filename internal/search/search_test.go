package search

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/paravault/internal/models"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestIndex(t *testing.T, docs ...*models.Document) *Index {
	t.Helper()
	ix := NewIndex(WithClock(func() time.Time { return now }))
	for _, d := range docs {
		ix.Index(d)
	}
	return ix
}

func doc(path, title, body string, tags ...string) *models.Document {
	return &models.Document{
		Path:     path,
		Metadata: models.Metadata{Title: title, Tags: tags, Modified: now.Add(-24 * time.Hour)},
		Body:     body,
	}
}

func paths(r *Results) []string {
	out := make([]string, 0, len(r.Results))
	for _, res := range r.Results {
		out = append(out, res.Path)
	}
	return out
}

func TestTagAndIsTagOnlyMatch(t *testing.T) {
	ix := newTestIndex(t,
		doc("projects/a.md", "A", "alpha body", "x"),
		doc("projects/b.md", "B", "beta body", "x", "y"),
		doc("projects/c.md", "C", "gamma body", "y"),
	)
	res, err := ix.Query(context.Background(), Filter{Tags: []string{"x", "y"}, TagOperator: OperatorAnd})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if diff := cmp.Diff([]string{"projects/b.md"}, paths(res)); diff != "" {
		t.Fatalf("results mismatch (-want +got):\n%s", diff)
	}
	if r := res.Results[0]; r.Score <= 0 || r.Snippet != "" {
		t.Errorf("tag-only match: score %v snippet %q", r.Score, r.Snippet)
	}
}

func TestTagOr(t *testing.T) {
	ix := newTestIndex(t,
		doc("projects/a.md", "A", "", "x"),
		doc("projects/b.md", "B", "", "x", "y"),
		doc("projects/c.md", "C", "", "z"),
	)
	res, err := ix.Query(context.Background(), Filter{Tags: []string{"X", "y"}, TagOperator: OperatorOr})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if diff := cmp.Diff([]string{"projects/b.md", "projects/a.md"}, paths(res)); diff != "" {
		t.Errorf("results mismatch (-want +got):\n%s", diff)
	}
}

func TestRankingTiers(t *testing.T) {
	ix := newTestIndex(t,
		doc("resources/body.md", "Notes", strings.Repeat("golang ", 50)),
		doc("resources/title.md", "Golang tips", "nothing relevant"),
		doc("resources/prefix.md", "P", "nothing", "golang-advanced"),
		doc("resources/exact.md", "E", "nothing", "golang"),
		doc("resources/none.md", "N", "rust only"),
	)
	res, err := ix.Query(context.Background(), Filter{Text: "golang"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	want := []string{"resources/exact.md", "resources/prefix.md", "resources/title.md", "resources/body.md"}
	if diff := cmp.Diff(want, paths(res)); diff != "" {
		t.Errorf("ranking mismatch (-want +got):\n%s", diff)
	}
}

func TestBodyWeightIsCapped(t *testing.T) {
	ix := newTestIndex(t,
		doc("areas/few.md", "F", strings.Repeat("term ", 5)),
		doc("areas/many.md", "M", strings.Repeat("term ", 500)),
	)
	res, err := ix.Query(context.Background(), Filter{Text: "term"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if res.Results[0].Score != res.Results[1].Score {
		t.Errorf("scores should be capped equal: %v vs %v", res.Results[0].Score, res.Results[1].Score)
	}
	if diff := cmp.Diff([]string{"areas/few.md", "areas/many.md"}, paths(res)); diff != "" {
		t.Errorf("ties should break by path (-want +got):\n%s", diff)
	}
}

func TestRecencyBoost(t *testing.T) {
	old := doc("areas/old.md", "O", "shared word")
	old.Metadata.Modified = now.AddDate(-1, 0, 0)
	fresh := doc("areas/zfresh.md", "Z", "shared word")
	fresh.Metadata.Modified = now
	ix := newTestIndex(t, old, fresh)

	res, err := ix.Query(context.Background(), Filter{Text: "shared"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if diff := cmp.Diff([]string{"areas/zfresh.md", "areas/old.md"}, paths(res)); diff != "" {
		t.Errorf("recency mismatch (-want +got):\n%s", diff)
	}
}

func TestAllTokensMustMatch(t *testing.T) {
	ix := newTestIndex(t,
		doc("projects/a.md", "A", "apple banana"),
		doc("projects/b.md", "B", "apple only"),
	)
	res, err := ix.Query(context.Background(), Filter{Text: "apple banana"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if diff := cmp.Diff([]string{"projects/a.md"}, paths(res)); diff != "" {
		t.Errorf("results mismatch (-want +got):\n%s", diff)
	}
}

func TestPhraseBonus(t *testing.T) {
	ix := newTestIndex(t,
		doc("projects/a.md", "A", "banana then apple"),
		doc("projects/b.md", "B", "we like apple banana"),
	)
	res, err := ix.Query(context.Background(), Filter{Text: "apple banana"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if diff := cmp.Diff([]string{"projects/b.md", "projects/a.md"}, paths(res)); diff != "" {
		t.Errorf("phrase ordering mismatch (-want +got):\n%s", diff)
	}
}

func TestSnippet(t *testing.T) {
	body := strings.Repeat("lead ", 40) + "the Needle is here\nand " + strings.Repeat("tail ", 40)
	ix := newTestIndex(t, doc("resources/s.md", "S", body))
	res, err := ix.Query(context.Background(), Filter{Text: "needle"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	s := res.Results[0].Snippet
	if !strings.Contains(s, "<b>Needle</b>") {
		t.Errorf("snippet should mark the original-case match: %q", s)
	}
	if !strings.HasPrefix(s, "...") || !strings.HasSuffix(s, "...") {
		t.Errorf("snippet should be elided on both sides: %q", s)
	}
	if strings.Contains(s, "\n") {
		t.Errorf("snippet should be a single line: %q", s)
	}
	if len(s) > 2*DefaultSnippetRadius+40 {
		t.Errorf("snippet too long (%d): %q", len(s), s)
	}
}

func TestTitleOnlyMatchHasNoSnippet(t *testing.T) {
	ix := newTestIndex(t, doc("resources/s.md", "Kubernetes", "unrelated text"))
	res, err := ix.Query(context.Background(), Filter{Text: "kubernetes"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(res.Results) != 1 || res.Results[0].Snippet != "" {
		t.Errorf("results = %+v", res.Results)
	}
}

func TestCategoryDateAndDraftFilters(t *testing.T) {
	a := doc("projects/a.md", "A", "word")
	a.Metadata.Modified = time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	b := doc("areas/b.md", "B", "word")
	b.Metadata.Modified = time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)
	c := doc("projects/c.md", "C", "word")
	c.Metadata.Modified = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	c.Metadata.Status = "draft"
	d := doc("projects/d.md", "D", "word")
	d.Metadata.Category = models.CategoryArchives
	ix := newTestIndex(t, a, b, c, d)
	ctx := context.Background()

	res, _ := ix.Query(ctx, Filter{Category: models.CategoryProjects})
	if diff := cmp.Diff([]string{"projects/c.md", "projects/a.md"}, paths(res)); diff != "" {
		t.Errorf("category mismatch (-want +got):\n%s", diff)
	}

	res, _ = ix.Query(ctx, Filter{Category: models.CategoryArchives})
	if diff := cmp.Diff([]string{"projects/d.md"}, paths(res)); diff != "" {
		t.Errorf("header category override mismatch (-want +got):\n%s", diff)
	}

	res, _ = ix.Query(ctx, Filter{
		ModifiedFrom: time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC),
		ModifiedTo:   time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC),
	})
	if diff := cmp.Diff([]string{"areas/b.md", "projects/a.md"}, paths(res)); diff != "" {
		t.Errorf("inclusive date range mismatch (-want +got):\n%s", diff)
	}

	res, _ = ix.Query(ctx, Filter{Category: models.CategoryProjects, ExcludeDrafts: true})
	if diff := cmp.Diff([]string{"projects/a.md"}, paths(res)); diff != "" {
		t.Errorf("draft filter mismatch (-want +got):\n%s", diff)
	}
}

func TestPagination(t *testing.T) {
	ix := NewIndex(WithClock(func() time.Time { return now }), WithPageSize(2, 3))
	for i := range 7 {
		ix.Index(doc(fmt.Sprintf("areas/n%d.md", i), "", "common"))
	}
	ctx := context.Background()

	res, _ := ix.Query(ctx, Filter{Text: "common"})
	if res.Total != 7 || len(res.Results) != 2 || res.Limit != 2 {
		t.Errorf("default page: total %d len %d limit %d", res.Total, len(res.Results), res.Limit)
	}
	res, _ = ix.Query(ctx, Filter{Text: "common", Limit: 50, Offset: 5})
	if res.Limit != 3 || len(res.Results) != 2 || res.Results[0].Path != "areas/n5.md" {
		t.Errorf("clamped page: %+v", res)
	}
	res, _ = ix.Query(ctx, Filter{Text: "common", Offset: 99})
	if len(res.Results) != 0 || res.Total != 7 {
		t.Errorf("past the end: %+v", res)
	}
}

func TestIdempotentReindex(t *testing.T) {
	d := doc("projects/a.md", "A", "stable content", "t")
	ix := newTestIndex(t, d)
	before, _ := ix.Query(context.Background(), Filter{Text: "stable"})
	ix.Index(d)
	ix.Index(d)
	after, _ := ix.Query(context.Background(), Filter{Text: "stable"})
	if ix.Len() != 1 {
		t.Errorf("Len = %d, want 1", ix.Len())
	}
	if diff := cmp.Diff(before, after); diff != "" {
		t.Errorf("results changed after reindex (-before +after):\n%s", diff)
	}
}

func TestRemoveAndCategoryCounts(t *testing.T) {
	ix := newTestIndex(t,
		doc("projects/a.md", "A", ""),
		doc("projects/b.md", "B", ""),
		doc("archives/c.md", "C", ""),
	)
	ix.Remove("projects/a.md")
	want := map[models.Category]int{
		models.CategoryProjects: 1, models.CategoryAreas: 0,
		models.CategoryResources: 0, models.CategoryArchives: 1,
	}
	if diff := cmp.Diff(want, ix.CategoryCounts()); diff != "" {
		t.Errorf("counts mismatch (-want +got):\n%s", diff)
	}
}

func TestInvalidFilter(t *testing.T) {
	ix := newTestIndex(t)
	bad := []Filter{
		{TagOperator: "xor"},
		{Category: "inbox"},
		{Offset: -1},
		{ModifiedFrom: now, ModifiedTo: now.Add(-time.Hour)},
	}
	for _, f := range bad {
		if _, err := ix.Query(context.Background(), f); err == nil {
			t.Errorf("Query(%+v) should fail validation", f)
		}
	}
}

func TestCancelledQuery(t *testing.T) {
	ix := newTestIndex(t, doc("projects/a.md", "A", "x"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := ix.Query(ctx, Filter{}); err == nil {
		t.Error("cancelled query should fail")
	}
}

func TestBodySubstringMatch(t *testing.T) {
	ix := newTestIndex(t,
		doc("resources/a.md", "A", "we are searching for answers"),
		doc("resources/b.md", "B", "basic research notes"),
		doc("resources/c.md", "C", "nothing to see"),
	)
	res, err := ix.Query(context.Background(), Filter{Text: "search"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if diff := cmp.Diff([]string{"resources/a.md", "resources/b.md"}, paths(res)); diff != "" {
		t.Fatalf("results mismatch (-want +got):\n%s", diff)
	}
	if s := res.Results[0].Snippet; !strings.Contains(s, "<b>searching</b>") {
		t.Errorf("snippet should mark the containing word: %q", s)
	}
}

func TestExactWordBeforeLongerWord(t *testing.T) {
	body := "testing comes before the test itself"
	ix := newTestIndex(t, doc("areas/a.md", "A", body))
	res, err := ix.Query(context.Background(), Filter{Text: "test"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if s := res.Results[0].Snippet; !strings.Contains(s, "<b>testing</b>") {
		t.Errorf("snippet should mark the earliest match: %q", s)
	}
}

func TestVocabularyFollowsDocuments(t *testing.T) {
	ix := newTestIndex(t,
		doc("areas/a.md", "A", "alpha shared"),
		doc("areas/b.md", "B", "beta shared"),
	)
	if got := ix.Terms(); got != 3 {
		t.Fatalf("Terms = %d, want 3", got)
	}

	ix.Index(doc("areas/a.md", "A", "gamma shared"))
	ix.Remove("areas/b.md")
	if got := ix.Terms(); got != 2 {
		t.Errorf("Terms = %d, want 2", got)
	}
	res, _ := ix.Query(context.Background(), Filter{Text: "alph"})
	if res.Total != 0 {
		t.Errorf("replaced words should no longer match: %+v", res.Results)
	}
}
