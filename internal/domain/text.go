package domain

import (
	"strings"

	"golang.org/x/text/language"
)

// Text holds a bilingual display string. The storefront serves English and
// Arabic; either side may be empty when the catalogue entry is monolingual.
type Text struct {
	En string
	Ar string
}

var textMatcher = language.NewMatcher([]language.Tag{
	language.English,
	language.Arabic,
})

// Resolve picks the side of the text matching the given BCP 47 locale,
// falling back to whichever side is non-empty.
func (t Text) Resolve(locale string) string {
	tag, err := language.Parse(strings.TrimSpace(locale))
	if err != nil {
		tag = language.English
	}
	_, idx, _ := textMatcher.Match(tag)

	primary, secondary := t.En, t.Ar
	if idx == 1 {
		primary, secondary = t.Ar, t.En
	}
	if strings.TrimSpace(primary) != "" {
		return strings.TrimSpace(primary)
	}
	return strings.TrimSpace(secondary)
}

// Empty reports whether both sides are blank.
func (t Text) Empty() bool {
	return strings.TrimSpace(t.En) == "" && strings.TrimSpace(t.Ar) == ""
}
