package parser

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/starford/paravault/internal/models"
)

func TestExtractLinks_Forms(t *testing.T) {
	body := "See [[Target]], [[other|Shown]], [[deep/Note.md#Section]] and [[x#h|label]]."
	links := ExtractLinks(body)

	want := []models.WikiLink{
		{Raw: "[[Target]]", RawTarget: "Target", Target: "target"},
		{Raw: "[[other|Shown]]", RawTarget: "other", Target: "other", Display: "Shown"},
		{Raw: "[[deep/Note.md#Section]]", RawTarget: "deep/Note.md", Target: "deep/note", Anchor: "Section"},
		{Raw: "[[x#h|label]]", RawTarget: "x", Target: "x", Anchor: "h", Display: "label"},
	}
	if diff := cmp.Diff(want, links, cmpopts.IgnoreFields(models.WikiLink{}, "Start", "End")); diff != "" {
		t.Errorf("links mismatch (-want +got):\n%s", diff)
	}
	for _, l := range links {
		if body[l.Start:l.End] != l.Raw {
			t.Errorf("offsets for %q point at %q", l.Raw, body[l.Start:l.End])
		}
	}
}

func TestExtractLinks_SkipsCode(t *testing.T) {
	body := strings.Join([]string{
		"real [[one]]",
		"inline `[[nope]]` code",
		"```",
		"[[fenced]]",
		"```",
		"double ``a [[nope2]] ` b`` then [[two]]",
		"~~~ is not a fence here [[three]]",
		"    ```",
		"indented fence marker is text [[four]]",
	}, "\n")

	got := Targets(ExtractLinks(body))
	want := []string{"one", "two", "three", "four"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("targets mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractLinks_AdjacentCodeAndLink(t *testing.T) {
	got := Targets(ExtractLinks("`code`[[after]] and [[before]]`code`"))
	if diff := cmp.Diff([]string{"after", "before"}, got); diff != "" {
		t.Errorf("targets mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractLinks_StrayBacktickStopsAtParagraph(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
	}{
		{
			name: "blank line",
			body: "Use the ` key to open.\n\nSee [[target]] here.\n\nAnother `code` span.",
			want: []string{"target"},
		},
		{
			name: "fence line",
			body: "stray ` tick\n```\n[[hidden]]\n```\n[[shown]] and `x`",
			want: []string{"shown"},
		},
		{
			name: "same paragraph still closes",
			body: "a `span\ncontinues [[nope]]` then [[yes]]",
			want: []string{"yes"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Targets(ExtractLinks(tt.body))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("targets mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestExtractLinks_LongerFenceClosesOnlyWithEqualOrLonger(t *testing.T) {
	body := "````\n```\n[[inside]]\n````\n[[outside]]"
	got := Targets(ExtractLinks(body))
	if diff := cmp.Diff([]string{"outside"}, got); diff != "" {
		t.Errorf("targets mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractLinks_Malformed(t *testing.T) {
	cases := map[string]string{
		"unterminated":   "start [[never closed",
		"newline inside": "[[broken\nlink]]",
		"empty":          "[[]] and [[ | x]]",
		"parent escape":  "[[../outside]]",
		"unmatched tick": "`[[not code]] is plain",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			links := ExtractLinks(body)
			if name == "unmatched tick" {
				if len(links) != 1 || links[0].Target != "not code" {
					t.Errorf("unmatched backtick should be literal, got %+v", links)
				}
				return
			}
			if len(links) != 0 {
				t.Errorf("expected no links, got %+v", links)
			}
		})
	}
}

func TestExtractLinks_NestedOpenTakesInner(t *testing.T) {
	got := Targets(ExtractLinks("[[outer [[inner]]"))
	if diff := cmp.Diff([]string{"inner"}, got); diff != "" {
		t.Errorf("targets mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalizeTarget(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Note", "note"},
		{" Projects/Launch.md ", "projects/launch"},
		{`areas\health.markdown`, "areas/health"},
		{"/resources//go/../rust", "resources/rust"},
		{"report.pdf", "report.pdf"},
		{"..", ""},
		{"../x", ""},
		{".md", ".md"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := NormalizeTarget(tc.in); got != tc.want {
			t.Errorf("NormalizeTarget(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestRewriteLinks(t *testing.T) {
	body := "a [[old#s|Old]] b [[keep]] `[[old]]` c [[Old.md]]"
	out, n := RewriteLinks(body, func(l models.WikiLink) (string, bool) {
		if l.Target != "old" {
			return "", false
		}
		return FormatLink("archives/new", l.Anchor, l.Display), true
	})
	if n != 2 {
		t.Errorf("replaced %d, want 2", n)
	}
	want := "a [[archives/new#s|Old]] b [[keep]] `[[old]]` c [[archives/new]]"
	if out != want {
		t.Errorf("out = %q, want %q", out, want)
	}

	same, n := RewriteLinks("no links here", func(models.WikiLink) (string, bool) { return "x", true })
	if n != 0 || same != "no links here" {
		t.Errorf("got %q, %d", same, n)
	}
}

func TestLinkContext(t *testing.T) {
	body := "first line\nsome words before [[target]] and words after\nlast"
	links := ExtractLinks(body)
	if len(links) != 1 {
		t.Fatalf("links = %d", len(links))
	}

	full := LinkContext(body, links[0], 1000)
	if strings.Contains(full, "\n") || strings.Contains(full, "...") {
		t.Errorf("full context = %q", full)
	}

	short := LinkContext(body, links[0], 6)
	if !strings.HasPrefix(short, "...") || !strings.HasSuffix(short, "...") {
		t.Errorf("short context should be elided on both sides: %q", short)
	}
	if !strings.Contains(short, "[[target]]") {
		t.Errorf("context lost the link: %q", short)
	}
}

func TestLinkContext_RuneBoundary(t *testing.T) {
	body := "日本語のテキスト [[t]] 続き"
	links := ExtractLinks(body)
	ctx := LinkContext(body, links[0], 4)
	if !utf8.ValidString(ctx) {
		t.Fatalf("context split a rune: %q", ctx)
	}
}
