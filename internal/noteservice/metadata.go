package noteservice

import (
	"fmt"
	"slices"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/paravault/internal/apperr"
	"github.com/starford/paravault/internal/models"
	"github.com/starford/paravault/internal/parser"
)

// ArrayMode selects how list-valued metadata fields are merged.
type ArrayMode string

const (
	ArrayReplace ArrayMode = "replace"
	ArrayAppend  ArrayMode = "append"
)

// MetadataPatch is a field-by-field metadata update. Keys are header field
// names; a nil value removes the field when AllowRemove is set and is
// ignored otherwise.
type MetadataPatch struct {
	Fields      map[string]any `json:"fields"`
	ArrayMode   ArrayMode      `json:"array_mode,omitempty"`
	AllowRemove bool           `json:"allow_remove,omitempty"`
}

// mergeMetadata applies patch to prev. title and created always keep their
// previous values.
func mergeMetadata(path string, prev models.Metadata, patch *MetadataPatch) (models.Metadata, error) {
	m := prev.Clone()
	if patch == nil {
		return m, nil
	}
	mode := patch.ArrayMode
	if mode == "" {
		mode = ArrayReplace
	}
	if mode != ArrayReplace && mode != ArrayAppend {
		return prev, apperr.Newf(apperr.KindInvalidMetadata, path, "unknown array mode %q", mode)
	}

	for key, v := range patch.Fields {
		if v == nil {
			if patch.AllowRemove {
				removeField(&m, key)
			}
			continue
		}
		switch key {
		case "title", "created", "modified":
			// pinned or managed
		case "tags":
			tags, err := stringList(v)
			if err != nil {
				return prev, apperr.Newf(apperr.KindInvalidMetadata, path, "tags: %v", err)
			}
			if mode == ArrayAppend {
				tags = parser.ToStringList(append(append([]string{}, m.Tags...), tags...))
			}
			m.Tags = tags
		case "category":
			s, ok := v.(string)
			if !ok {
				return prev, apperr.Newf(apperr.KindInvalidMetadata, path, "category must be a string")
			}
			m.Category = models.Category(strings.ToLower(strings.TrimSpace(s)))
		case "status":
			s, ok := v.(string)
			if !ok {
				return prev, apperr.Newf(apperr.KindInvalidMetadata, path, "status must be a string")
			}
			m.Status = s
		case "priority":
			s, ok := v.(string)
			if !ok {
				return prev, apperr.Newf(apperr.KindInvalidMetadata, path, "priority must be a string")
			}
			m.Priority = s
		default:
			if m.Extra == nil {
				m.Extra = make(map[string]any)
			}
			m.Extra[key] = mergeExtra(m.Extra[key], v, mode)
		}
	}

	m.Title = prev.Title
	m.Created = prev.Created
	return m, nil
}

func removeField(m *models.Metadata, key string) {
	switch key {
	case "title", "created", "modified":
	case "tags":
		m.Tags = nil
	case "category":
		m.Category = ""
	case "status":
		m.Status = ""
	case "priority":
		m.Priority = ""
	default:
		delete(m.Extra, key)
		if len(m.Extra) == 0 {
			m.Extra = nil
		}
	}
}

func stringList(v any) ([]string, error) {
	switch v.(type) {
	case []any, []string, string:
		return parser.ToStringList(v), nil
	}
	return nil, fmt.Errorf("expected a list of strings, got %T", v)
}

// mergeExtra appends list values with deduplication in append mode and
// replaces everything else.
func mergeExtra(old, v any, mode ArrayMode) any {
	if mode != ArrayAppend {
		return v
	}
	oldList, ok1 := old.([]any)
	newList, ok2 := v.([]any)
	if !ok1 || !ok2 {
		return v
	}
	out := append([]any{}, oldList...)
	seen := make(map[string]bool, len(out))
	for _, e := range out {
		seen[fmt.Sprint(e)] = true
	}
	for _, e := range newList {
		if k := fmt.Sprint(e); !seen[k] {
			seen[k] = true
			out = append(out, e)
		}
	}
	return out
}

// validateMetadata checks metadata at the update boundary. With prev set,
// only fields that differ from prev are checked, so values already on disk
// never block an unrelated change.
func validateMetadata(path string, m models.Metadata, prev *models.Metadata) error {
	changed := func(field string) bool {
		if prev == nil {
			return true
		}
		switch field {
		case "title":
			return m.Title != prev.Title
		case "tags":
			return !slices.Equal(m.Tags, prev.Tags)
		case "category":
			return m.Category != prev.Category
		case "status":
			return m.Status != prev.Status
		case "priority":
			return m.Priority != prev.Priority
		}
		return false
	}

	err := validation.ValidateStruct(&m,
		validation.Field(&m.Title, validation.When(changed("title"), validation.Length(0, 256))),
		validation.Field(&m.Tags, validation.When(changed("tags"),
			validation.Each(validation.Required, validation.Length(1, 128)))),
		validation.Field(&m.Category, validation.When(changed("category"), validation.By(func(any) error {
			if m.Category != "" && !m.Category.Valid() {
				return fmt.Errorf("unknown category %q", m.Category)
			}
			return nil
		}))),
		validation.Field(&m.Status, validation.When(changed("status"), validation.Length(0, 64))),
		validation.Field(&m.Priority, validation.When(changed("priority"), validation.Length(0, 64))),
		validation.Field(&m.Extra, validation.By(func(any) error {
			for k := range m.Extra {
				if _, had := prevExtra(prev)[k]; had {
					continue
				}
				if parser.IsFixedKey(k) {
					return fmt.Errorf("%q is a reserved field", k)
				}
			}
			return nil
		})),
	)
	if err != nil {
		return apperr.New(apperr.KindInvalidMetadata, path, err)
	}
	return nil
}

func prevExtra(prev *models.Metadata) map[string]any {
	if prev == nil {
		return nil
	}
	return prev.Extra
}
