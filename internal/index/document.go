// Package index projects persisted Works into search documents and keeps the
// search index in step with the store.
package index

import (
	"context"
	"sort"
	"strings"

	"github.com/franz/bibcluster/internal/model"
)

// Projector pushes works to and retracts works from a search index. Upsert
// creates or updates documents; Delete ignores unknown uuids.
type Projector interface {
	Upsert(ctx context.Context, works []*model.Work) error
	Delete(ctx context.Context, uuids []string) error
}

// Pinger is implemented by projectors backed by a remote service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Document is the search document of one work. Every field is always
// written so that an update replaces stale values.
type Document struct {
	UUID                 string           `json:"uuid"`
	Title                string           `json:"title"`
	SortTitle            string           `json:"sort_title"`
	SubTitle             string           `json:"sub_title"`
	AltTitles            []string         `json:"alt_titles"`
	Medium               string           `json:"medium"`
	Agents               []Agent          `json:"agents"`
	Subjects             []model.Subject  `json:"subjects"`
	Languages            []model.Language `json:"languages"`
	Identifiers          []Identifier     `json:"identifiers"`
	IsGovernmentDocument bool             `json:"is_government_document"`
	Editions             []Edition        `json:"editions"`
	DateCreated          string           `json:"date_created"`
	DateModified         string           `json:"date_modified"`
}

// Agent is an author or contributor as indexed.
type Agent struct {
	Name     string   `json:"name"`
	SortName string   `json:"sort_name"`
	VIAF     string   `json:"viaf,omitempty"`
	LCNAF    string   `json:"lcnaf,omitempty"`
	Roles    []string `json:"roles"`
}

// Identifier is a typed identifier as indexed.
type Identifier struct {
	Identifier string `json:"identifier"`
	Authority  string `json:"authority"`
}

// Edition is the indexed form of an edition, nested in its work document.
type Edition struct {
	UUID             string           `json:"uuid"`
	Title            string           `json:"title,omitempty"`
	SubTitle         string           `json:"sub_title,omitempty"`
	PublicationDate  string           `json:"publication_date,omitempty"`
	PublicationPlace string           `json:"publication_place,omitempty"`
	EditionStatement string           `json:"edition_statement,omitempty"`
	Volume           string           `json:"volume,omitempty"`
	Extent           string           `json:"extent,omitempty"`
	Summary          string           `json:"summary,omitempty"`
	TableOfContents  string           `json:"table_of_contents,omitempty"`
	Languages        []model.Language `json:"languages,omitempty"`
	Agents           []Agent          `json:"agents,omitempty"`
	Identifiers      []Identifier     `json:"identifiers,omitempty"`
	Rights           []model.Rights   `json:"rights,omitempty"`
	Formats          []string         `json:"formats,omitempty"`
	Items            []Item           `json:"items,omitempty"`
}

// Item is the indexed form of an item.
type Item struct {
	UUID             string         `json:"uuid"`
	Source           string         `json:"source,omitempty"`
	ContentType      string         `json:"content_type,omitempty"`
	PhysicalLocation string         `json:"physical_location,omitempty"`
	Agents           []Agent        `json:"agents,omitempty"`
	Identifiers      []Identifier   `json:"identifiers,omitempty"`
	Links            []Link         `json:"links,omitempty"`
	Rights           []model.Rights `json:"rights,omitempty"`
}

// Link is a link with its flags as indexed.
type Link struct {
	URL       string          `json:"url"`
	MediaType string          `json:"media_type,omitempty"`
	Flags     model.LinkFlags `json:"flags"`
}

const timeLayout = "2006-01-02T15:04:05Z"

// BuildDocument flattens a persisted work with its editions and items.
func BuildDocument(w *model.Work) Document {
	doc := Document{
		UUID:                 w.UUID,
		Title:                w.Title,
		SortTitle:            w.SortTitle,
		SubTitle:             w.SubTitle,
		AltTitles:            w.AltTitles,
		Medium:               w.Medium,
		Subjects:             w.Subjects,
		Languages:            w.Languages,
		Identifiers:          identifiers(w.Identifiers),
		IsGovernmentDocument: w.IsGovernmentDocument(),
	}
	if !w.DateCreated.IsZero() {
		doc.DateCreated = w.DateCreated.UTC().Format(timeLayout)
	}
	if !w.DateModified.IsZero() {
		doc.DateModified = w.DateModified.UTC().Format(timeLayout)
	}

	for _, a := range w.Authors {
		doc.Agents = append(doc.Agents, agent(a, "author"))
	}
	for _, a := range w.Contributors {
		doc.Agents = append(doc.Agents, agent(a, "author"))
	}

	for _, e := range w.Editions {
		doc.Editions = append(doc.Editions, buildEdition(e))
	}
	return doc
}

func buildEdition(e *model.Edition) Edition {
	ed := Edition{
		UUID:             e.UUID,
		Title:            e.Title,
		SubTitle:         e.SubTitle,
		PublicationDate:  e.PublicationDate,
		PublicationPlace: e.PublicationPlace,
		EditionStatement: e.EditionStatement,
		Volume:           e.Volume,
		Extent:           e.Extent,
		Summary:          e.Summary,
		TableOfContents:  e.TableOfContents,
		Languages:        e.Languages,
		Identifiers:      identifiers(e.Identifiers),
		Rights:           e.Rights,
	}
	for _, a := range e.Contributors {
		ed.Agents = append(ed.Agents, agent(a, ""))
	}
	for _, a := range e.Publishers {
		ed.Agents = append(ed.Agents, agent(a, "publisher"))
	}

	formats := make(map[string]bool)
	for _, it := range e.Items {
		item := Item{
			UUID:             it.UUID,
			Source:           it.Source,
			ContentType:      it.ContentType,
			PhysicalLocation: it.PhysicalLocation,
			Identifiers:      identifiers(it.Identifiers),
			Rights:           it.Rights,
		}
		for _, a := range it.Contributors {
			item.Agents = append(item.Agents, agent(a, ""))
		}
		for _, l := range it.Links {
			item.Links = append(item.Links, Link{URL: l.URL, MediaType: l.MediaType, Flags: l.Flags})
			if l.MediaType != "" {
				formats[l.MediaType] = true
			}
		}
		ed.Items = append(ed.Items, item)
	}
	for f := range formats {
		ed.Formats = append(ed.Formats, f)
	}
	sort.Strings(ed.Formats)
	return ed
}

// agent converts an agent, filling defaultRole when it has no roles.
func agent(a model.Agent, defaultRole string) Agent {
	out := Agent{
		Name:     a.Name,
		SortName: strings.ToLower(a.Name),
		VIAF:     a.VIAF,
		LCNAF:    a.LCNAF,
		Roles:    a.Roles,
	}
	if len(out.Roles) == 0 && defaultRole != "" {
		out.Roles = []string{defaultRole}
	}
	return out
}

func identifiers(ids []model.Identifier) []Identifier {
	out := make([]Identifier, 0, len(ids))
	for _, id := range ids {
		out = append(out, Identifier{Identifier: id.Value, Authority: id.Authority})
	}
	return out
}
