package parser

import (
	"path"
	"strings"
	"unicode/utf8"

	"github.com/starford/paravault/internal/models"
)

// documentExts are stripped from link targets during normalisation.
var documentExts = []string{".markdown", ".md"}

// ExtractLinks scans body left to right and returns every [[...]] occurrence
// outside fenced and inline code spans. Code-span state is tracked before
// link syntax is considered, so a link is never matched inside code.
func ExtractLinks(body string) []models.WikiLink {
	var out []models.WikiLink

	n := len(body)
	inFence := false
	fenceLen := 0
	lineStart := true

	for i := 0; i < n; {
		if lineStart {
			lineStart = false
			j := i
			for j < n && j-i < 4 && body[j] == ' ' {
				j++
			}
			if j-i < 4 {
				if run := countRun(body, j, '`'); run >= 3 {
					switch {
					case !inFence:
						inFence, fenceLen = true, run
					case run >= fenceLen && blankToEOL(body, j+run):
						inFence = false
					}
					i, lineStart = skipLine(body, i), true
					continue
				}
			}
			if inFence {
				i, lineStart = skipLine(body, i), true
				continue
			}
		}

		switch c := body[i]; {
		case c == '\n':
			lineStart = true
			i++
		case c == '`':
			run := countRun(body, i, '`')
			if end := closingRun(body, i+run, run); end >= 0 {
				i = end + run
			} else {
				i += run
			}
		case c == '[' && i+1 < n && body[i+1] == '[':
			if link, ok := scanLink(body, i); ok {
				out = append(out, link)
				i = link.End
			} else {
				i += 2
			}
		default:
			i++
		}
	}
	return out
}

// scanLink parses the link opening at body[start]. Unterminated or empty
// links are reported as not ok and treated as plain text by the caller.
func scanLink(body string, start int) (models.WikiLink, bool) {
	for j := start + 2; j+1 < len(body); j++ {
		switch {
		case body[j] == '\n':
			return models.WikiLink{}, false
		case body[j] == '[' && body[j+1] == '[':
			return models.WikiLink{}, false
		case body[j] == ']' && body[j+1] == ']':
			link, ok := parseLinkContent(body[start+2 : j])
			if !ok {
				return models.WikiLink{}, false
			}
			link.Raw = body[start : j+2]
			link.Start = start
			link.End = j + 2
			return link, true
		}
	}
	return models.WikiLink{}, false
}

func parseLinkContent(content string) (models.WikiLink, bool) {
	targetPart, display, hasDisplay := strings.Cut(content, "|")
	// Obsidian escapes the pipe inside tables: [[a\|b]].
	targetPart = strings.TrimSuffix(targetPart, `\`)
	rawTarget, anchor, _ := strings.Cut(targetPart, "#")

	rawTarget = strings.TrimSpace(rawTarget)
	target := NormalizeTarget(rawTarget)
	if target == "" {
		return models.WikiLink{}, false
	}

	link := models.WikiLink{
		RawTarget: rawTarget,
		Target:    target,
		Anchor:    strings.TrimSpace(anchor),
	}
	if hasDisplay {
		link.Display = strings.TrimSpace(display)
	}
	return link, true
}

// NormalizeTarget lower-cases a link target or document path, converts it to
// a clean slash path and strips a trailing document extension.
func NormalizeTarget(s string) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, `\`, "/"))
	s = strings.TrimLeft(s, "/")
	if s == "" {
		return ""
	}
	s = path.Clean(strings.ToLower(s))
	for _, ext := range documentExts {
		if strings.HasSuffix(s, ext) && len(s) > len(ext) {
			s = strings.TrimSuffix(s, ext)
			break
		}
	}
	if s == "." || s == ".." || strings.HasPrefix(s, "../") {
		return ""
	}
	return s
}

// Targets returns the distinct normalised targets of links, in first
// occurrence order.
func Targets(links []models.WikiLink) []string {
	seen := make(map[string]struct{}, len(links))
	out := make([]string, 0, len(links))
	for _, l := range links {
		if _, ok := seen[l.Target]; ok {
			continue
		}
		seen[l.Target] = struct{}{}
		out = append(out, l.Target)
	}
	return out
}

// FormatLink renders a wikilink from its parts.
func FormatLink(target, anchor, display string) string {
	var b strings.Builder
	b.WriteString("[[")
	b.WriteString(target)
	if anchor != "" {
		b.WriteString("#")
		b.WriteString(anchor)
	}
	if display != "" {
		b.WriteString("|")
		b.WriteString(display)
	}
	b.WriteString("]]")
	return b.String()
}

// RewriteLinks replaces each link for which fn returns ok with the returned
// text. It returns the new body and the number of replaced occurrences.
func RewriteLinks(body string, fn func(models.WikiLink) (string, bool)) (string, int) {
	links := ExtractLinks(body)
	if len(links) == 0 {
		return body, 0
	}

	var b strings.Builder
	b.Grow(len(body))
	last, count := 0, 0
	for _, l := range links {
		repl, ok := fn(l)
		if !ok {
			continue
		}
		b.WriteString(body[last:l.Start])
		b.WriteString(repl)
		last = l.End
		count++
	}
	if count == 0 {
		return body, 0
	}
	b.WriteString(body[last:])
	return b.String(), count
}

// LinkContext returns the text around a link occurrence: up to radius bytes
// on each side, on rune boundaries, flattened to one line, with "..." where
// the excerpt was truncated.
func LinkContext(body string, link models.WikiLink, radius int) string {
	if link.Start < 0 || link.End > len(body) || link.Start > link.End {
		return ""
	}
	start := max(link.Start-radius, 0)
	for start > 0 && !utf8.RuneStart(body[start]) {
		start--
	}
	end := min(link.End+radius, len(body))
	for end < len(body) && !utf8.RuneStart(body[end]) {
		end++
	}

	ctx := strings.Join(strings.Fields(body[start:end]), " ")
	if start > 0 {
		ctx = "..." + ctx
	}
	if end < len(body) {
		ctx += "..."
	}
	return ctx
}

func countRun(s string, i int, c byte) int {
	j := i
	for j < len(s) && s[j] == c {
		j++
	}
	return j - i
}

// closingRun finds the next backtick run of exactly length run at or after
// from, returning its offset or -1. Inline code never spans a paragraph, so
// the search stops at a blank line or a fence line.
func closingRun(s string, from, run int) int {
	for j := from; j < len(s); {
		switch s[j] {
		case '`':
			r := countRun(s, j, '`')
			if r == run {
				return j
			}
			j += r
		case '\n':
			if blankToEOL(s, j+1) || isFenceLine(s, j+1) {
				return -1
			}
			j++
		default:
			j++
		}
	}
	return -1
}

// isFenceLine reports whether the line starting at i opens or closes a fence.
func isFenceLine(s string, i int) bool {
	j := i
	for j < len(s) && j-i < 4 && s[j] == ' ' {
		j++
	}
	return j-i < 4 && countRun(s, j, '`') >= 3
}

func blankToEOL(s string, i int) bool {
	for ; i < len(s) && s[i] != '\n'; i++ {
		if s[i] != ' ' && s[i] != '\t' && s[i] != '\r' {
			return false
		}
	}
	return true
}

func skipLine(s string, i int) int {
	if nl := strings.IndexByte(s[i:], '\n'); nl >= 0 {
		return i + nl + 1
	}
	return len(s)
}
