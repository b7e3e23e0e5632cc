package study

import (
	"path"
	"strings"
)

// Classify infers the information source of an answer. Each reference
// title (extension stripped, case-folded) is tested for substring
// containment in the case-folded answer; the first title in list order
// that matches wins. No scoring, no longest-match preference.
//
// A title match means textbook; otherwise the expanded-web-search flag
// decides between web and the textbook default. Absence of a match is a
// normal outcome, never an error.
func Classify(answer string, bookTitles []string, expandSearchOnline bool) (SourceKind, string) {
	folded := strings.ToLower(answer)

	for _, title := range bookTitles {
		clean := strings.ToLower(strings.TrimSuffix(title, path.Ext(title)))
		if clean == "" {
			continue
		}
		if strings.Contains(folded, clean) {
			return SourceTextbook, title
		}
	}

	if expandSearchOnline {
		return SourceWeb, ""
	}
	return SourceTextbook, ""
}
