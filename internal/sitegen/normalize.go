package sitegen

import (
	"strings"
	"unicode"
)

// Slug lowercases name and joins its runs of letters and digits with single
// hyphens: "Windows 11 (ARM64)" becomes "windows-11-arm64".
func Slug(name string) string {
	words := strings.FieldsFunc(name, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.ToLower(strings.Join(words, "-"))
}

// releaseSlug names the directory holding a release's page.
func releaseSlug(release string) string {
	return Slug("windows " + release)
}
