package aggregate

import (
	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"

	"github.com/franz/bibcluster/internal/model"
	"github.com/franz/bibcluster/internal/textnorm"
)

// NameSimilarity is the Jaro-Winkler similarity of two normalized names.
func NameSimilarity(a, b string) float64 {
	na, nb := textnorm.NormalizeName(a), textnorm.NormalizeName(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}
	return strutil.Similarity(na, nb, metrics.NewJaroWinkler())
}

func sameAgent(a, b model.Agent, threshold float64) bool {
	if a.VIAF != "" && a.VIAF == b.VIAF {
		return true
	}
	if a.LCNAF != "" && a.LCNAF == b.LCNAF {
		return true
	}
	return NameSimilarity(a.Name, b.Name) >= threshold
}

func mergeAgent(into, from model.Agent) model.Agent {
	if into.Name == "" {
		into.Name = from.Name
	}
	if into.VIAF == "" {
		into.VIAF = from.VIAF
	}
	if into.LCNAF == "" {
		into.LCNAF = from.LCNAF
	}
	into.Primary = into.Primary || from.Primary
	into.Roles = union(stringKey, into.Roles, from.Roles)
	return into
}

// DedupAgents merges agents that share a viaf or lcnaf id or whose names are
// at least threshold similar. Merged agents union their roles and keep any
// non-empty authority id.
func DedupAgents(agents []model.Agent, threshold float64) []model.Agent {
	var out []model.Agent
	for _, ag := range agents {
		if ag.Name == "" && ag.VIAF == "" && ag.LCNAF == "" {
			continue
		}
		merged := false
		for i := range out {
			if sameAgent(out[i], ag, threshold) {
				out[i] = mergeAgent(out[i], ag)
				merged = true
				break
			}
		}
		if !merged {
			ag.Roles = append([]string(nil), ag.Roles...)
			out = append(out, ag)
		}
	}
	return out
}

// routed holds contributors split by the entity that receives them.
type routed struct {
	work, edition, item []model.Agent
}

// routeContributors sends each contributor role to the work, edition or item.
// A contributor with several roles is split per role.
func (a *Aggregator) routeContributors(contributors []model.Agent) routed {
	var r routed
	for _, c := range contributors {
		if len(c.Roles) == 0 {
			r.work = append(r.work, c)
			continue
		}
		for _, role := range c.Roles {
			single := c
			single.Roles = []string{role}
			switch {
			case a.editionRoles[role]:
				r.edition = append(r.edition, single)
			case a.itemRoles[role]:
				r.item = append(r.item, single)
			default:
				r.work = append(r.work, single)
			}
		}
	}
	return r
}

// CleanupAgents re-deduplicates the agents of a persisted work with the
// looser cleanup threshold. It reports whether anything changed.
func (a *Aggregator) CleanupAgents(w *model.Work) bool {
	authors := DedupAgents(w.Authors, a.rules.CleanupSimilarity)
	contributors := DedupAgents(w.Contributors, a.rules.CleanupSimilarity)

	changed := len(authors) != len(w.Authors) || len(contributors) != len(w.Contributors)
	w.Authors = authors
	w.Contributors = contributors
	return changed
}
