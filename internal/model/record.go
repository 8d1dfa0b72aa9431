// Package model holds the bibliographic record and Work/Edition/Item types
// shared by every stage of the clustering pipeline.
package model

import "time"

// FRBRStatus tracks whether source-specific enrichment has run on a record.
type FRBRStatus string

const (
	FRBRToDo       FRBRStatus = "to_do"
	FRBRInProgress FRBRStatus = "in_progress"
	FRBRComplete   FRBRStatus = "complete"
)

// Valid reports whether s is a known status.
func (s FRBRStatus) Valid() bool {
	switch s {
	case FRBRToDo, FRBRInProgress, FRBRComplete:
		return true
	}
	return false
}

// Record is one source's normalized description of a bibliographic item.
type Record struct {
	ID            int64
	UUID          string
	SourceID      string
	Source        string
	ContentType   string
	FRBRStatus    FRBRStatus
	ClusterStatus bool

	Title             string
	SubTitle          string
	AlternativeTitles []string
	Medium            string
	Authors           []Agent
	Contributors      []Agent
	Publishers        []Agent
	Identifiers       []Identifier
	Languages         []Language
	Dates             []Date
	Subjects          []Subject
	Rights            []Rights
	Parts             []Part
	Measurements      []Measurement
	HasVersion        Version
	PublicationPlace  string
	Extent            string
	Summary           string
	TableOfContents   string
	Volume            string
	PhysicalLocation  string

	// MalformedParts keeps has_part entries that did not parse so they
	// survive a store round trip.
	MalformedParts []string

	DateCreated  time.Time
	DateModified time.Time
}

// Identifier is a (value, authority) pair shared across the store.
type Identifier struct {
	ID        int64  `json:"-"`
	Value     string `json:"identifier"`
	Authority string `json:"authority"`
}

// Key is the natural key used for deduplication.
func (i Identifier) Key() string {
	return i.Value + "|" + i.Authority
}

// Agent is a person or organization attached to a work, edition or item.
type Agent struct {
	Name    string   `json:"name"`
	VIAF    string   `json:"viaf,omitempty"`
	LCNAF   string   `json:"lcnaf,omitempty"`
	Roles   []string `json:"roles,omitempty"`
	Primary bool     `json:"primary,omitempty"`
}

// HasRole reports whether the agent carries role.
func (a Agent) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type Language struct {
	Name string `json:"language,omitempty"`
	ISO2 string `json:"iso_2,omitempty"`
	ISO3 string `json:"iso_3,omitempty"`
}

type Date struct {
	Value string `json:"date"`
	Type  string `json:"type"`
}

type Subject struct {
	Heading   string `json:"heading"`
	Authority string `json:"authority,omitempty"`
	ControlNo string `json:"control_number,omitempty"`
}

type Rights struct {
	Source    string `json:"source,omitempty"`
	License   string `json:"license,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Statement string `json:"statement,omitempty"`
	Date      string `json:"date,omitempty"`
}

type Measurement struct {
	Value string `json:"value"`
	Type  string `json:"type"`
}

// Version is an edition statement and its number.
type Version struct {
	Statement string
	Number    string
}

// LinkFlags are the access flags carried on a file link.
type LinkFlags struct {
	Cover     bool `json:"cover,omitempty"`
	Download  bool `json:"download,omitempty"`
	Reader    bool `json:"reader,omitempty"`
	Embed     bool `json:"embed,omitempty"`
	Catalog   bool `json:"catalog,omitempty"`
	NYPLLogin bool `json:"nypl_login,omitempty"`
}

// Part is one has_part entry: a file link belonging to item group Index.
type Part struct {
	Index     int
	URI       string
	Source    string
	MediaType string
	Flags     LinkFlags
}
