package parser

import (
	"path"
	"strings"

	"github.com/starford/paravault/internal/models"
)

// DeriveTitle returns the header title if present, otherwise the first H1
// heading of body, otherwise the file stem of p.
func DeriveTitle(m models.Metadata, body, p string) string {
	if t := strings.TrimSpace(m.Title); t != "" {
		return t
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	stem := path.Base(strings.ReplaceAll(p, `\`, "/"))
	return strings.TrimSuffix(stem, path.Ext(stem))
}
