package snapshot

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/paravault/internal/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "snapshot.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleEntries() []Entry {
	mod := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return []Entry{
		{
			Path:     "projects/a.md",
			Title:    "A",
			Category: models.CategoryProjects,
			Metadata: models.Metadata{Title: "A", Modified: mod, Tags: []string{"go", "vault"}},
			Body:     "see [[b]] and [[missing]]",
			Outgoing: []OutLink{{Target: "b", Path: "areas/b.md"}, {Target: "missing"}},
		},
		{
			Path:     "areas/b.md",
			Title:    "B",
			Category: models.CategoryAreas,
			Draft:    true,
			Metadata: models.Metadata{Status: "draft", Tags: []string{"go"}},
			Body:     "back to [[projects/a]]",
			Outgoing: []OutLink{{Target: "projects/a", Path: "projects/a.md"}},
			Incoming: []string{"projects/a.md"},
		},
	}
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	for _, table := range []string{"documents", "links", "tags"} {
		var n int
		if err := db.conn.QueryRow(`SELECT count(*) FROM ` + table).Scan(&n); err != nil {
			t.Fatalf("%s table missing: %v", table, err)
		}
	}
}

func TestReplaceAndQuery(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	if err := db.Replace(ctx, sampleEntries()); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	row, err := db.Document(ctx, "projects/a.md")
	if err != nil || row == nil {
		t.Fatalf("Document: %v, %v", row, err)
	}
	if row.Title != "A" || row.Category != "projects" || row.Draft {
		t.Errorf("row = %+v", row)
	}
	if !row.Modified.Equal(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("modified = %v", row.Modified)
	}

	back, err := db.Backlinks(ctx, "areas/b.md")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"projects/a.md"}, back); diff != "" {
		t.Errorf("backlinks (-want +got):\n%s", diff)
	}

	tagged, err := db.Tagged(ctx, "go")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"areas/b.md", "projects/a.md"}, tagged); diff != "" {
		t.Errorf("tagged (-want +got):\n%s", diff)
	}

	broken, err := db.BrokenLinks(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := []models.Link{{Source: "projects/a.md", Target: "missing"}}
	if diff := cmp.Diff(want, broken); diff != "" {
		t.Errorf("broken (-want +got):\n%s", diff)
	}
}

func TestReplaceDropsPreviousContents(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	if err := db.Replace(ctx, sampleEntries()); err != nil {
		t.Fatal(err)
	}
	if err := db.Replace(ctx, sampleEntries()[1:]); err != nil {
		t.Fatal(err)
	}
	row, err := db.Document(ctx, "projects/a.md")
	if err != nil {
		t.Fatal(err)
	}
	if row != nil {
		t.Errorf("stale row survived: %+v", row)
	}
	tagged, _ := db.Tagged(ctx, "vault")
	if len(tagged) != 0 {
		t.Errorf("stale tags survived: %v", tagged)
	}
}

func TestExport(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "out.db")
	if err := Export(context.Background(), dsn, sampleEntries()); err != nil {
		t.Fatalf("Export: %v", err)
	}
	db, err := Open(dsn)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	var n int
	if err := db.conn.QueryRow(`SELECT count(*) FROM documents`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("documents = %d, want 2", n)
	}
}
