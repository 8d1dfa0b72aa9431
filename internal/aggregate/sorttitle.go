package aggregate

import (
	"strings"

	"github.com/franz/bibcluster/internal/model"
)

// SortTitle lowercases title and strips one leading stopword of lang. Elided
// articles such as "l'" are stripped as a prefix.
func (a *Aggregator) SortTitle(title, lang string) string {
	title = strings.ToLower(strings.TrimSpace(title))
	words := strings.Fields(title)
	if len(words) == 0 {
		return ""
	}

	stop := a.sortStop[lang]
	first := words[0]
	if stop[first] && len(words) > 1 {
		return strings.Join(words[1:], " ")
	}
	for sw := range stop {
		if strings.HasSuffix(sw, "'") && strings.HasPrefix(first, sw) && len(first) > len(sw) {
			words[0] = strings.TrimPrefix(first, sw)
			return strings.Join(words, " ")
		}
	}
	return strings.Join(words, " ")
}

// workLanguage picks the language used for sort titles: the first declared
// language, a detected one, or the default.
func (a *Aggregator) workLanguage(w *model.Work) string {
	for _, l := range w.Languages {
		if l.ISO3 != "" {
			return strings.ToLower(l.ISO3)
		}
	}
	if a.detector != nil && w.Title != "" {
		if lang, ok := a.detector.DetectISO3(w.Title); ok {
			return lang
		}
	}
	return a.rules.DefaultLanguage
}
