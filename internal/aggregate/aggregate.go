// Package aggregate collapses a cluster of matched records into one Work
// with its Editions and Items.
package aggregate

import (
	"errors"
	"sort"
	"strings"

	"github.com/franz/bibcluster/internal/config"
	"github.com/franz/bibcluster/internal/model"
	"github.com/franz/bibcluster/internal/util"
)

// LanguageDetector guesses the ISO 639-3 code of a piece of text.
type LanguageDetector interface {
	DetectISO3(text string) (string, bool)
}

// Aggregator folds matched records into a Work with its Editions and Items.
type Aggregator struct {
	rules        config.AggregateRules
	editionRoles map[string]bool
	itemRoles    map[string]bool
	typedIDs     map[string]bool
	sortStop     map[string]map[string]bool
	detector     LanguageDetector
}

// New creates an aggregator. detector may be nil.
func New(rules config.AggregateRules, detector LanguageDetector) *Aggregator {
	sortStop := make(map[string]map[string]bool, len(rules.SortStopwords))
	for lang, words := range rules.SortStopwords {
		sortStop[lang] = config.Set(words)
	}
	return &Aggregator{
		rules:        rules,
		editionRoles: config.Set(rules.EditionRoles),
		itemRoles:    config.Set(rules.ItemRoles),
		typedIDs:     config.Set(rules.TypedIdentifiers),
		sortStop:     sortStop,
		detector:     detector,
	}
}

// Build aggregates records into a new, unsaved Work. Records are expected in
// a stable order; ties in consensus fields go to the earliest record.
func (a *Aggregator) Build(records []*model.Record) (*model.Work, error) {
	if len(records) == 0 {
		return nil, errors.New("no records to aggregate")
	}

	w := &model.Work{
		Title:    mostCommon(field(records, func(r *model.Record) string { return r.Title })),
		SubTitle: mostCommon(field(records, func(r *model.Record) string { return r.SubTitle })),
		Medium:   mostCommon(field(records, func(r *model.Record) string { return r.Medium })),
	}

	var (
		altTitles    [][]string
		authors      []model.Agent
		contributors []model.Agent
		subjects     []model.Subject
		languages    [][]model.Language
		measurements [][]model.Measurement
		identifiers  [][]model.Identifier
	)
	for _, r := range records {
		alts := append([]string(nil), r.AlternativeTitles...)
		if t := strings.TrimSpace(r.Title); t != "" && t != w.Title {
			alts = append(alts, t)
		}
		altTitles = append(altTitles, alts)
		authors = append(authors, r.Authors...)
		contributors = append(contributors, a.routeContributors(r.Contributors).work...)
		subjects = append(subjects, r.Subjects...)
		languages = append(languages, r.Languages)
		measurements = append(measurements, r.Measurements)
		identifiers = append(identifiers, a.typed(r.Identifiers))
	}

	w.AltTitles = union(stringKey, altTitles...)
	w.Authors = DedupAgents(authors, a.rules.AgentSimilarity)
	w.Contributors = DedupAgents(contributors, a.rules.AgentSimilarity)
	w.Subjects = ConsolidateSubjects(subjects)
	w.Languages = union(languageKey, languages...)
	w.Measurements = union(measurementKey, measurements...)
	w.Identifiers = union(identifierKey, identifiers...)

	for _, group := range groupByYear(records) {
		w.Editions = append(w.Editions, a.buildEdition(group.year, group.records))
	}

	w.SortTitle = a.SortTitle(w.Title, a.workLanguage(w))
	return w, nil
}

type yearGroup struct {
	year    string
	records []*model.Record
}

// groupByYear buckets records by publication year, oldest first, with the
// undated bucket last.
func groupByYear(records []*model.Record) []yearGroup {
	index := make(map[string]int)
	var groups []yearGroup
	for _, r := range records {
		y := publicationYear(r)
		i, ok := index[y]
		if !ok {
			i = len(groups)
			index[y] = i
			groups = append(groups, yearGroup{year: y})
		}
		groups[i].records = append(groups[i].records, r)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		a, b := groups[i].year, groups[j].year
		if a == "" || b == "" {
			return b == "" && a != ""
		}
		return a < b
	})
	return groups
}

func (a *Aggregator) buildEdition(year string, records []*model.Record) *model.Edition {
	e := &model.Edition{
		Title:            mostCommon(field(records, func(r *model.Record) string { return r.Title })),
		SubTitle:         mostCommon(field(records, func(r *model.Record) string { return r.SubTitle })),
		PublicationDate:  year,
		PublicationPlace: mostCommon(field(records, func(r *model.Record) string { return r.PublicationPlace })),
		EditionStatement: mostCommon(field(records, func(r *model.Record) string { return r.HasVersion.Statement })),
		Volume:           mostCommon(field(records, func(r *model.Record) string { return r.Volume })),
		Extent:           mostCommon(field(records, func(r *model.Record) string { return r.Extent })),
		Summary:          mostCommon(field(records, func(r *model.Record) string { return r.Summary })),
		TableOfContents:  mostCommon(field(records, func(r *model.Record) string { return r.TableOfContents })),
	}

	var (
		languages    [][]model.Language
		contributors []model.Agent
		publishers   []model.Agent
		dates        [][]model.Date
		identifiers  [][]model.Identifier
		rights       [][]model.Rights
		covers       []model.Link
	)
	for _, r := range records {
		languages = append(languages, r.Languages)
		contributors = append(contributors, a.routeContributors(r.Contributors).edition...)
		publishers = append(publishers, r.Publishers...)
		dates = append(dates, r.Dates)
		identifiers = append(identifiers, a.typed(r.Identifiers))
		rights = append(rights, r.Rights)
		e.DCDWUUIDs = append(e.DCDWUUIDs, r.UUID)

		for _, p := range r.Parts {
			if p.Flags.Cover {
				covers = append(covers, partLink(p))
			}
		}
		e.Items = append(e.Items, a.buildItems(r)...)
	}

	e.Languages = union(languageKey, languages...)
	e.Contributors = DedupAgents(contributors, a.rules.AgentSimilarity)
	e.Publishers = DedupAgents(publishers, a.rules.AgentSimilarity)
	e.Dates = union(dateKey, dates...)
	e.Identifiers = union(identifierKey, identifiers...)
	e.Rights = union(rightsKey, rights...)
	e.Links = union(linkKey, covers)
	return e
}

// buildItems creates one item per has_part index of a record. A record with
// unparseable parts contributes no items; a record with no file links gets a
// single item when it carries holding data.
func (a *Aggregator) buildItems(r *model.Record) []*model.Item {
	if len(r.MalformedParts) > 0 {
		util.WarnLog("Record %s has %d malformed has_part entries, skipping its items", r.SourceID, len(r.MalformedParts))
		return nil
	}

	newItem := func() *model.Item {
		return &model.Item{
			Source:           r.Source,
			ContentType:      r.ContentType,
			PhysicalLocation: r.PhysicalLocation,
			Contributors:     DedupAgents(a.routeContributors(r.Contributors).item, a.rules.AgentSimilarity),
			Identifiers:      union(identifierKey, a.untyped(r.Identifiers)),
			Rights:           union(rightsKey, r.Rights),
		}
	}

	index := make(map[int]*model.Item)
	var items []*model.Item
	for _, p := range r.Parts {
		if p.Flags.Cover {
			continue
		}
		it, ok := index[p.Index]
		if !ok {
			it = newItem()
			index[p.Index] = it
			items = append(items, it)
		}
		it.Links = union(linkKey, it.Links, []model.Link{partLink(p)})
	}

	if len(items) == 0 && (r.PhysicalLocation != "" || len(a.untyped(r.Identifiers)) > 0) {
		items = append(items, newItem())
	}
	return items
}

func partLink(p model.Part) model.Link {
	return model.Link{URL: p.URI, MediaType: p.MediaType, Flags: p.Flags}
}

func (a *Aggregator) typed(ids []model.Identifier) []model.Identifier {
	var out []model.Identifier
	for _, id := range ids {
		if a.typedIDs[id.Authority] {
			out = append(out, id)
		}
	}
	return out
}

func (a *Aggregator) untyped(ids []model.Identifier) []model.Identifier {
	var out []model.Identifier
	for _, id := range ids {
		if !a.typedIDs[id.Authority] {
			out = append(out, id)
		}
	}
	return out
}
