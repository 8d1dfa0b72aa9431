package aggregate

import (
	"strings"

	"github.com/franz/bibcluster/internal/model"
	"github.com/franz/bibcluster/internal/textnorm"
)

// mostCommon returns the most frequent non-empty value. Ties go to the value
// seen first.
func mostCommon(values []string) string {
	counts := make(map[string]int, len(values))
	var order []string
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if counts[v] == 0 {
			order = append(order, v)
		}
		counts[v]++
	}

	best, bestCount := "", 0
	for _, v := range order {
		if counts[v] > bestCount {
			best, bestCount = v, counts[v]
		}
	}
	return best
}

// field collects one scalar field across records.
func field(records []*model.Record, get func(*model.Record) string) []string {
	values := make([]string, 0, len(records))
	for _, r := range records {
		values = append(values, get(r))
	}
	return values
}

// union appends items not already present by key, keeping first-seen order.
func union[T any](key func(T) string, lists ...[]T) []T {
	seen := make(map[string]bool)
	var out []T
	for _, list := range lists {
		for _, it := range list {
			k := key(it)
			if k == "" || seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, it)
		}
	}
	return out
}

func identifierKey(i model.Identifier) string {
	if i.Value == "" {
		return ""
	}
	return i.Key()
}

func languageKey(l model.Language) string {
	switch {
	case l.ISO3 != "":
		return l.ISO3
	case l.ISO2 != "":
		return l.ISO2
	default:
		return strings.ToLower(strings.TrimSpace(l.Name))
	}
}

func dateKey(d model.Date) string {
	if d.Value == "" {
		return ""
	}
	return model.FormatDate(d)
}

func measurementKey(m model.Measurement) string {
	if m.Value == "" && m.Type == "" {
		return ""
	}
	return model.FormatMeasurement(m)
}

func rightsKey(r model.Rights) string {
	if r == (model.Rights{}) {
		return ""
	}
	return model.FormatRights(r)
}

func linkKey(l model.Link) string { return l.URL }

func stringKey(s string) string { return strings.TrimSpace(s) }

// publicationYear returns the edition grouping key of a record: the year of
// its publication date, any dated year, or "" for the undated bucket.
func publicationYear(r *model.Record) string {
	for _, d := range r.Dates {
		if d.Type == "publication_date" {
			if y := textnorm.Year(d.Value); y != "" {
				return y
			}
		}
	}
	for _, d := range r.Dates {
		if y := textnorm.Year(d.Value); y != "" {
			return y
		}
	}
	return ""
}
