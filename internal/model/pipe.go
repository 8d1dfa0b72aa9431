package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Pipe-delimited grammar of the upstream record schema. Parsing is lenient:
// missing trailing segments are empty. Only has_part entries can fail.

func splitPipe(s string, n int) []string {
	parts := strings.SplitN(s, "|", n)
	for len(parts) < n {
		parts = append(parts, "")
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func joinPipe(parts ...string) string {
	return strings.Join(parts, "|")
}

// ParseIdentifier parses "value|authority".
func ParseIdentifier(s string) Identifier {
	p := splitPipe(s, 2)
	return Identifier{Value: p[0], Authority: strings.ToLower(p[1])}
}

func FormatIdentifier(i Identifier) string { return joinPipe(i.Value, i.Authority) }

// ParseAuthor parses "name|viaf|lcnaf|primary".
func ParseAuthor(s string) Agent {
	p := splitPipe(s, 4)
	primary, _ := strconv.ParseBool(p[3])
	return Agent{Name: p[0], VIAF: p[1], LCNAF: p[2], Roles: []string{"author"}, Primary: primary}
}

func FormatAuthor(a Agent) string {
	primary := ""
	if a.Primary {
		primary = "true"
	}
	return joinPipe(a.Name, a.VIAF, a.LCNAF, primary)
}

// ParseContributor parses "name|viaf|lcnaf|role".
func ParseContributor(s string) Agent {
	p := splitPipe(s, 4)
	a := Agent{Name: p[0], VIAF: p[1], LCNAF: p[2]}
	if p[3] != "" {
		a.Roles = []string{strings.ToLower(p[3])}
	}
	return a
}

func FormatContributor(a Agent) string {
	role := ""
	if len(a.Roles) > 0 {
		role = a.Roles[0]
	}
	return joinPipe(a.Name, a.VIAF, a.LCNAF, role)
}

// ParsePublisher parses "name|viaf|lcnaf".
func ParsePublisher(s string) Agent {
	p := splitPipe(s, 3)
	return Agent{Name: p[0], VIAF: p[1], LCNAF: p[2], Roles: []string{"publisher"}}
}

func FormatPublisher(a Agent) string { return joinPipe(a.Name, a.VIAF, a.LCNAF) }

// ParseLanguage parses "name|iso2|iso3".
func ParseLanguage(s string) Language {
	p := splitPipe(s, 3)
	return Language{Name: p[0], ISO2: strings.ToLower(p[1]), ISO3: strings.ToLower(p[2])}
}

func FormatLanguage(l Language) string { return joinPipe(l.Name, l.ISO2, l.ISO3) }

// ParseDate parses "value|type".
func ParseDate(s string) Date {
	p := splitPipe(s, 2)
	return Date{Value: p[0], Type: p[1]}
}

func FormatDate(d Date) string { return joinPipe(d.Value, d.Type) }

// ParseSubject parses "heading|authority|controlNo".
func ParseSubject(s string) Subject {
	p := splitPipe(s, 3)
	return Subject{Heading: p[0], Authority: p[1], ControlNo: p[2]}
}

func FormatSubject(sub Subject) string { return joinPipe(sub.Heading, sub.Authority, sub.ControlNo) }

// ParseRights parses "source|license|reason|statement|date".
func ParseRights(s string) Rights {
	p := splitPipe(s, 5)
	return Rights{Source: p[0], License: p[1], Reason: p[2], Statement: p[3], Date: p[4]}
}

func FormatRights(r Rights) string {
	return joinPipe(r.Source, r.License, r.Reason, r.Statement, r.Date)
}

// ParseMeasurement parses "value|type".
func ParseMeasurement(s string) Measurement {
	p := splitPipe(s, 2)
	return Measurement{Value: p[0], Type: p[1]}
}

func FormatMeasurement(m Measurement) string { return joinPipe(m.Value, m.Type) }

// ParseVersion parses "statement|number".
func ParseVersion(s string) Version {
	p := splitPipe(s, 2)
	return Version{Statement: p[0], Number: p[1]}
}

func FormatVersion(v Version) string {
	if v.Statement == "" && v.Number == "" {
		return ""
	}
	return joinPipe(v.Statement, v.Number)
}

// ParsePart parses "index|uri|source|mediaType|jsonFlags".
func ParsePart(s string) (Part, error) {
	raw := strings.SplitN(s, "|", 5)
	if len(raw) != 5 {
		return Part{}, fmt.Errorf("has_part %q: expected 5 segments, got %d", s, len(raw))
	}

	var part Part
	if idx := strings.TrimSpace(raw[0]); idx != "" {
		n, err := strconv.Atoi(idx)
		if err != nil {
			return Part{}, fmt.Errorf("has_part %q: invalid index: %w", s, err)
		}
		part.Index = n
	}

	part.URI = strings.TrimSpace(raw[1])
	if part.URI == "" {
		return Part{}, fmt.Errorf("has_part %q: missing uri", s)
	}
	part.Source = strings.TrimSpace(raw[2])
	part.MediaType = strings.TrimSpace(raw[3])

	if flags := strings.TrimSpace(raw[4]); flags != "" {
		if err := json.Unmarshal([]byte(flags), &part.Flags); err != nil {
			return Part{}, fmt.Errorf("has_part %q: invalid flags: %w", s, err)
		}
	}
	return part, nil
}

func FormatPart(p Part) string {
	flags, _ := json.Marshal(p.Flags)
	return joinPipe(strconv.Itoa(p.Index), p.URI, p.Source, p.MediaType, string(flags))
}

// ParseParts splits raw has_part entries into parsed parts and the entries
// that did not parse.
func ParseParts(raw []string) ([]Part, []string) {
	var parts []Part
	var bad []string
	for _, s := range raw {
		p, err := ParsePart(s)
		if err != nil {
			bad = append(bad, s)
			continue
		}
		parts = append(parts, p)
	}
	return parts, bad
}

// ParseAll parses each non-empty raw string with parse.
func ParseAll[T any](raw []string, parse func(string) T) []T {
	if len(raw) == 0 {
		return nil
	}
	out := make([]T, 0, len(raw))
	for _, s := range raw {
		if strings.TrimSpace(s) == "" {
			continue
		}
		out = append(out, parse(s))
	}
	return out
}

// FormatAll formats each item with format.
func FormatAll[T any](items []T, format func(T) string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, format(it))
	}
	return out
}
