package aggregate

import (
	"strings"

	"github.com/franz/bibcluster/internal/model"
	"github.com/franz/bibcluster/internal/textnorm"
)

// ConsolidateSubjects merges headings that differ only in case or trailing
// punctuation. The first-seen casing is kept; authority and control number
// come from the first variant that has them.
func ConsolidateSubjects(subjects []model.Subject) []model.Subject {
	index := make(map[string]int)
	var out []model.Subject
	for _, s := range subjects {
		heading := strings.TrimRight(strings.TrimSpace(s.Heading), ".,; ")
		if heading == "" {
			continue
		}
		key := textnorm.SubjectKey(heading)

		if i, ok := index[key]; ok {
			if out[i].Authority == "" && out[i].ControlNo == "" {
				out[i].Authority = s.Authority
				out[i].ControlNo = s.ControlNo
			}
			continue
		}
		index[key] = len(out)
		out = append(out, model.Subject{Heading: heading, Authority: s.Authority, ControlNo: s.ControlNo})
	}
	return out
}
