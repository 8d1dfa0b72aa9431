package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Payload is the wire shape of a normalized record: descriptive fields keep
// the upstream pipe-delimited encoding.
type Payload struct {
	UUID             string   `json:"uuid,omitempty"`
	SourceID         string   `json:"source_id"`
	Source           string   `json:"source"`
	ContentType      string   `json:"content_type,omitempty"`
	FRBRStatus       string   `json:"frbr_status,omitempty"`
	Title            string   `json:"title,omitempty"`
	SubTitle         string   `json:"sub_title,omitempty"`
	Alternative      []string `json:"alternative,omitempty"`
	Medium           string   `json:"medium,omitempty"`
	Authors          []string `json:"authors,omitempty"`
	Contributors     []string `json:"contributors,omitempty"`
	Publisher        []string `json:"publisher,omitempty"`
	Identifiers      []string `json:"identifiers,omitempty"`
	Languages        []string `json:"languages,omitempty"`
	Dates            []string `json:"dates,omitempty"`
	Subjects         []string `json:"subjects,omitempty"`
	Rights           []string `json:"rights,omitempty"`
	HasPart          []string `json:"has_part,omitempty"`
	Measurements     []string `json:"measurements,omitempty"`
	HasVersion       string   `json:"has_version,omitempty"`
	Spatial          string   `json:"spatial,omitempty"`
	Extent           string   `json:"extent,omitempty"`
	Summary          string   `json:"summary,omitempty"`
	TableOfContents  string   `json:"table_of_contents,omitempty"`
	Volume           string   `json:"volume,omitempty"`
	PhysicalLocation string   `json:"physical_location,omitempty"`
}

// DecodePayload unmarshals a JSON payload and converts it to a Record.
func DecodePayload(data []byte) (*Record, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to decode record payload: %w", err)
	}
	return p.Record()
}

// Record converts the payload into a Record, parsing every delimited field.
func (p Payload) Record() (*Record, error) {
	if strings.TrimSpace(p.SourceID) == "" {
		return nil, fmt.Errorf("record payload: missing source_id")
	}
	if strings.TrimSpace(p.Source) == "" {
		return nil, fmt.Errorf("record payload %s: missing source", p.SourceID)
	}

	status := FRBRStatus(p.FRBRStatus)
	if status == "" {
		status = FRBRToDo
	}
	if !status.Valid() {
		return nil, fmt.Errorf("record payload %s: unknown frbr_status %q", p.SourceID, p.FRBRStatus)
	}

	parts, bad := ParseParts(p.HasPart)

	return &Record{
		UUID:              p.UUID,
		SourceID:          strings.TrimSpace(p.SourceID),
		Source:            strings.TrimSpace(p.Source),
		ContentType:       p.ContentType,
		FRBRStatus:        status,
		Title:             p.Title,
		SubTitle:          p.SubTitle,
		AlternativeTitles: p.Alternative,
		Medium:            p.Medium,
		Authors:           ParseAll(p.Authors, ParseAuthor),
		Contributors:      ParseAll(p.Contributors, ParseContributor),
		Publishers:        ParseAll(p.Publisher, ParsePublisher),
		Identifiers:       ParseAll(p.Identifiers, ParseIdentifier),
		Languages:         ParseAll(p.Languages, ParseLanguage),
		Dates:             ParseAll(p.Dates, ParseDate),
		Subjects:          ParseAll(p.Subjects, ParseSubject),
		Rights:            ParseAll(p.Rights, ParseRights),
		Measurements:      ParseAll(p.Measurements, ParseMeasurement),
		Parts:             parts,
		MalformedParts:    bad,
		HasVersion:        ParseVersion(p.HasVersion),
		PublicationPlace:  p.Spatial,
		Extent:            p.Extent,
		Summary:           p.Summary,
		TableOfContents:   p.TableOfContents,
		Volume:            p.Volume,
		PhysicalLocation:  p.PhysicalLocation,
	}, nil
}

// PayloadOf converts a Record back into its wire shape.
func PayloadOf(r *Record) Payload {
	hasPart := FormatAll(r.Parts, FormatPart)
	hasPart = append(hasPart, r.MalformedParts...)

	return Payload{
		UUID:             r.UUID,
		SourceID:         r.SourceID,
		Source:           r.Source,
		ContentType:      r.ContentType,
		FRBRStatus:       string(r.FRBRStatus),
		Title:            r.Title,
		SubTitle:         r.SubTitle,
		Alternative:      r.AlternativeTitles,
		Medium:           r.Medium,
		Authors:          FormatAll(r.Authors, FormatAuthor),
		Contributors:     FormatAll(r.Contributors, FormatContributor),
		Publisher:        FormatAll(r.Publishers, FormatPublisher),
		Identifiers:      FormatAll(r.Identifiers, FormatIdentifier),
		Languages:        FormatAll(r.Languages, FormatLanguage),
		Dates:            FormatAll(r.Dates, FormatDate),
		Subjects:         FormatAll(r.Subjects, FormatSubject),
		Rights:           FormatAll(r.Rights, FormatRights),
		HasPart:          hasPart,
		Measurements:     FormatAll(r.Measurements, FormatMeasurement),
		HasVersion:       FormatVersion(r.HasVersion),
		Spatial:          r.PublicationPlace,
		Extent:           r.Extent,
		Summary:          r.Summary,
		TableOfContents:  r.TableOfContents,
		Volume:           r.Volume,
		PhysicalLocation: r.PhysicalLocation,
	}
}
