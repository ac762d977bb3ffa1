package catalog

import (
	"strings"
	"unicode"

	"newscurator/internal/model"
)

const maxSlugLen = 64

// Slugify derives a URL-safe slug from a bundle name: lowercase ASCII
// letters and digits, with every other run of characters collapsed to "_".
func Slugify(name string) (string, error) {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(name) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	slug := b.String()
	if len(slug) > maxSlugLen {
		slug = strings.TrimRight(slug[:maxSlugLen], "_")
	}
	if slug == "" {
		return "", model.NewValidationError("name", "must contain at least one letter or digit")
	}
	return slug, nil
}
