package model

import "time"

// Work is the canonical aggregate for one intellectual creation.
type Work struct {
	ID           int64
	UUID         string
	Title        string
	SortTitle    string
	SubTitle     string
	AltTitles    []string
	Medium       string
	Authors      []Agent
	Contributors []Agent
	Subjects     []Subject
	Languages    []Language
	Measurements []Measurement
	Identifiers  []Identifier
	Editions     []*Edition
	DateCreated  time.Time
	DateModified time.Time
}

// Edition is one published instantiation of a Work.
type Edition struct {
	ID               int64
	UUID             string
	WorkID           int64
	Title            string
	SubTitle         string
	PublicationDate  string
	PublicationPlace string
	EditionStatement string
	Volume           string
	Extent           string
	Summary          string
	TableOfContents  string
	Languages        []Language
	Contributors     []Agent
	Publishers       []Agent
	Dates            []Date
	Identifiers      []Identifier
	Links            []Link
	Rights           []Rights
	DCDWUUIDs        []string
	Items            []*Item
}

// Item is one holding or access point of an Edition.
type Item struct {
	ID               int64
	UUID             string
	EditionID        int64
	Source           string
	ContentType      string
	PhysicalLocation string
	Contributors     []Agent
	Links            []Link
	Identifiers      []Identifier
	Rights           []Rights
}

// Link is a URL shared across items and editions.
type Link struct {
	ID        int64
	URL       string
	MediaType string
	Flags     LinkFlags
}

// Measurement types with special meaning.
const MeasurementGovernmentDocument = "government_document"

// IsGovernmentDocument reports whether the work carries the government
// document measurement set to "1".
func (w *Work) IsGovernmentDocument() bool {
	for _, m := range w.Measurements {
		if m.Type == MeasurementGovernmentDocument && m.Value == "1" {
			return true
		}
	}
	return false
}

// RecordUUIDs returns every dcdw uuid across the work's editions.
func (w *Work) RecordUUIDs() []string {
	var out []string
	for _, e := range w.Editions {
		out = append(out, e.DCDWUUIDs...)
	}
	return out
}
