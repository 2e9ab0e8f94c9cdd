package note

import (
	"strings"
	"unicode/utf8"
)

// UntitledTitle is used when neither title nor content yield one
const UntitledTitle = "Untitled Note"

// MaxDerivedTitleLen bounds a title taken from content, in characters
const MaxDerivedTitleLen = 100

// DeriveTitle returns title when set, else the first line of the trimmed
// content cut to MaxDerivedTitleLen characters, else UntitledTitle.
func DeriveTitle(title, content string) string {
	if title != "" {
		return title
	}
	first, _, _ := strings.Cut(strings.TrimSpace(content), "\n")
	first = strings.TrimRight(first, "\r")
	if utf8.RuneCountInString(first) > MaxDerivedTitleLen {
		first = string([]rune(first)[:MaxDerivedTitleLen])
	}
	if first == "" {
		return UntitledTitle
	}
	return first
}
