// Package parser converts between raw document text and the structured
// header + body pair, and extracts wikilinks from bodies.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/starford/paravault/internal/apperr"
	"github.com/starford/paravault/internal/models"
)

const delim = "---"

var errUnclosedHeader = errors.New("header delimiter opened but never closed")

// Result holds the output of parsing a raw document.
type Result struct {
	Metadata models.Metadata
	Body     string
	// Degraded is set when the header could not be decoded. Metadata is
	// then empty and Body holds the whole input.
	Degraded  bool
	DecodeErr error
}

// Parse splits a leading YAML header from the body.
//
// It fails with apperr.ErrMalformedHeader only when the opening delimiter
// is never closed. An undecodable header degrades to empty metadata with the
// whole input as body.
func Parse(raw string) (*Result, error) {
	header, body, found, err := splitFrontmatter(raw)
	if err != nil {
		return nil, err
	}
	if !found {
		return &Result{Body: raw}, nil
	}

	var fields map[string]any
	if err := yaml.Unmarshal([]byte(header), &fields); err != nil {
		return &Result{Body: raw, Degraded: true, DecodeErr: err}, nil
	}

	return &Result{Metadata: decodeMetadata(fields), Body: body}, nil
}

// splitFrontmatter separates the header (between a leading --- line and the
// next --- line) from the body. found is false when the input has no header.
func splitFrontmatter(raw string) (header, body string, found bool, err error) {
	raw = strings.TrimPrefix(raw, "\ufeff")

	var rest string
	switch {
	case strings.HasPrefix(raw, delim+"\n"):
		rest = raw[len(delim)+1:]
	case strings.HasPrefix(raw, delim+"\r\n"):
		rest = raw[len(delim)+2:]
	default:
		return "", raw, false, nil
	}

	pos := 0
	for {
		nl := strings.IndexByte(rest[pos:], '\n')
		line, next := rest[pos:], len(rest)
		if nl >= 0 {
			line, next = rest[pos:pos+nl], pos+nl+1
		}
		if strings.TrimSuffix(line, "\r") == delim {
			return rest[:pos], rest[next:], true, nil
		}
		if nl < 0 {
			break
		}
		pos = next
	}

	return "", "", false, fmt.Errorf("parser: %w: %w", apperr.ErrMalformedHeader, errUnclosedHeader)
}

// decodeMetadata maps decoded header fields onto Metadata. Unknown keys and
// known keys with unusable values land in Extra.
func decodeMetadata(fields map[string]any) models.Metadata {
	var m models.Metadata
	extra := make(map[string]any)

	for k, v := range fields {
		switch k {
		case "title":
			m.Title = scalarString(v)
		case "created", "modified":
			t, ok := toTime(v)
			if !ok {
				extra[k] = v
				continue
			}
			if k == "created" {
				m.Created = t
			} else {
				m.Modified = t
			}
		case "tags":
			m.Tags = ToStringList(v)
		case "category":
			m.Category = models.Category(strings.ToLower(strings.TrimSpace(scalarString(v))))
		case "status":
			m.Status = scalarString(v)
		case "priority":
			m.Priority = scalarString(v)
		default:
			extra[k] = v
		}
	}

	if len(extra) > 0 {
		m.Extra = extra
	}
	return m
}

// Serialize renders metadata and body back into raw document text. It is the
// left inverse of Parse for metadata produced by this package.
func Serialize(m models.Metadata, body string) (string, error) {
	if m.IsZero() {
		if strings.HasPrefix(body, delim) {
			return delim + "\n" + delim + "\n" + body, nil
		}
		return body, nil
	}

	node := &yaml.Node{Kind: yaml.MappingNode}
	add := func(key string, value any) error {
		var v yaml.Node
		if err := v.Encode(value); err != nil {
			return fmt.Errorf("parser: encode %s: %w", key, err)
		}
		node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: key}, &v)
		return nil
	}

	fixed := []struct {
		key   string
		set   bool
		value any
	}{
		{"title", m.Title != "", m.Title},
		{"created", !m.Created.IsZero(), m.Created.UTC()},
		{"modified", !m.Modified.IsZero(), m.Modified.UTC()},
		{"tags", len(m.Tags) > 0, m.Tags},
		{"category", m.Category != "", string(m.Category)},
		{"status", m.Status != "", m.Status},
		{"priority", m.Priority != "", m.Priority},
	}
	for _, f := range fixed {
		if !f.set {
			continue
		}
		if err := add(f.key, f.value); err != nil {
			return "", err
		}
	}

	keys := make([]string, 0, len(m.Extra))
	for k := range m.Extra {
		if IsFixedKey(k) && !fallbackKey(m, k) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := add(k, m.Extra[k]); err != nil {
			return "", err
		}
	}

	var buf bytes.Buffer
	buf.WriteString(delim + "\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(node); err != nil {
		return "", fmt.Errorf("parser: encode header: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("parser: encode header: %w", err)
	}
	buf.WriteString(delim + "\n")
	buf.WriteString(body)
	return buf.String(), nil
}

// IsFixedKey reports whether k is a header field with a typed Metadata field.
func IsFixedKey(k string) bool {
	switch k {
	case "title", "created", "modified", "tags", "category", "status", "priority":
		return true
	}
	return false
}

// fallbackKey reports whether an unparsed timestamp kept in Extra should be
// written back because the typed field is unset.
func fallbackKey(m models.Metadata, k string) bool {
	return (k == "created" && m.Created.IsZero()) || (k == "modified" && m.Modified.IsZero())
}

func scalarString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case time.Time:
		return s.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(s)
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), true
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed.UTC(), true
			}
		}
	}
	return time.Time{}, false
}

// ToStringList converts a decoded tag value (a YAML sequence or a
// comma-separated string) into a deduplicated, order-preserving list.
func ToStringList(v any) []string {
	var raw []string
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			raw = append(raw, scalarString(item))
		}
	case []string:
		raw = t
	case string:
		raw = strings.Split(t, ",")
	}

	seen := make(map[string]struct{}, len(raw))
	var out []string
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
