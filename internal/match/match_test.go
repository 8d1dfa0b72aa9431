package match

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/franz/bibcluster/internal/config"
	"github.com/franz/bibcluster/internal/model"
	"github.com/franz/bibcluster/internal/textnorm"
	"github.com/franz/bibcluster/internal/util"
)

// memorySource is an in-memory CandidateSource.
type memorySource struct {
	records []*model.Record
	queries int
	maxKeys int
}

func (s *memorySource) RecordsWithIdentifiers(_ context.Context, keys []string) ([]*model.Record, error) {
	s.queries++
	if len(keys) > s.maxKeys {
		s.maxKeys = len(keys)
	}
	want := make(map[string]bool, len(keys))
	for _, k := range keys {
		want[k] = true
	}
	var out []*model.Record
	for _, r := range s.records {
		for _, id := range r.Identifiers {
			if want[id.Key()] {
				out = append(out, r)
				break
			}
		}
	}
	return out, nil
}

func (s *memorySource) add(title string, ids ...string) *model.Record {
	r := &model.Record{
		ID:          int64(len(s.records) + 1),
		UUID:        fmt.Sprintf("rec-%d", len(s.records)+1),
		Title:       title,
		Identifiers: model.ParseAll(ids, model.ParseIdentifier),
	}
	s.records = append(s.records, r)
	return r
}

func newMatcher() *Matcher {
	return New(config.DefaultRules().Match)
}

func TestTitlesOverlap(t *testing.T) {
	stop := config.Set(config.DefaultRules().Match.TitleStopwords)

	tests := []struct {
		a, b string
		want bool
	}{
		{"Sample Work", "Sample Work: A Study", true},
		{"Dracula", "Dracula: a novel", true},
		{"Dracula", "Frankenstein", false},
		{"The History of Rome", "History of Rome, Volume 2", true},
		{"The History of Rome", "A History of Greece", false},
		{"Moby Dick", "Completely Different Book", false},
		{"", "Anything", false},
	}

	for _, tt := range tests {
		t.Run(tt.a+" vs "+tt.b, func(t *testing.T) {
			got := TitlesOverlap(textnorm.TitleTokens(tt.a, stop), textnorm.TitleTokens(tt.b, stop))
			if got != tt.want {
				t.Errorf("TitlesOverlap(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestMatch_TitleGateOnlyBeyondFirstHop(t *testing.T) {
	src := &memorySource{maxKeys: 0}
	seed := src.add("Sample Work", "1|isbn")
	direct := src.add("Totally Different Thing Here", "1|isbn", "2|oclc")
	disjoint := src.add("Another Unrelated Volume", "2|oclc")
	companion := src.add("Sample Work Companion", "2|oclc")

	ids, err := newMatcher().Match(context.Background(), src, seed)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}

	got := make(map[int64]bool)
	for _, id := range ids {
		got[id] = true
	}
	if !got[seed.ID] || !got[direct.ID] {
		t.Errorf("direct identifier matches must be accepted, got %v", ids)
	}
	if got[disjoint.ID] {
		t.Errorf("disjoint title at distance 1 must be rejected, got %v", ids)
	}
	if !got[companion.ID] {
		t.Errorf("overlapping title at distance 1 must be accepted, got %v", ids)
	}
}

func TestMatch_NonQualifyingIdentifiersIgnored(t *testing.T) {
	src := &memorySource{}
	seed := src.add("Sample Work", "abc|test", "x|ddc")
	src.add("Sample Work", "abc|test")

	ids, err := newMatcher().Match(context.Background(), src, seed)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("expected no matches without qualifying identifiers, got %v", ids)
	}
	if src.queries != 0 {
		t.Errorf("expected no lookups, got %d", src.queries)
	}
}

func TestMatch_MaxDistance(t *testing.T) {
	src := &memorySource{}
	seed := src.add("Long Chain Title", "0|isbn")
	for i := 0; i < 8; i++ {
		src.add("Long Chain Title", fmt.Sprintf("%d|isbn", i), fmt.Sprintf("%d|isbn", i+1))
	}

	ids, err := newMatcher().Match(context.Background(), src, seed)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	// Four expansions reach the seed plus the four nearest links of the chain
	if len(ids) != 5 {
		t.Errorf("expected 5 records within 4 hops, got %d: %v", len(ids), ids)
	}
}

func TestMatch_InvalidTitle(t *testing.T) {
	src := &memorySource{}
	seed := src.add("   ", "1|isbn")

	_, err := newMatcher().Match(context.Background(), src, seed)
	if !errors.Is(err, util.ErrInvalidTitle) {
		t.Errorf("expected ErrInvalidTitle, got %v", err)
	}
}

func TestMatch_SizeCap(t *testing.T) {
	src := &memorySource{}
	seed := src.add("Common Title", "shared|isbn")
	for i := 0; i < 10000; i++ {
		src.add("Common Title", "shared|isbn", fmt.Sprintf("own%d|oclc", i))
	}

	_, err := newMatcher().Match(context.Background(), src, seed)
	if !errors.Is(err, util.ErrMatchSizeExceeded) {
		t.Fatalf("expected ErrMatchSizeExceeded, got %v", err)
	}
}

func TestMatch_BatchesIdentifierLookups(t *testing.T) {
	src := &memorySource{}
	var ids []string
	for i := 0; i < 250; i++ {
		ids = append(ids, fmt.Sprintf("%d|oclc", i))
	}
	seed := src.add("Many Identifiers", ids...)

	matched, err := newMatcher().Match(context.Background(), src, seed)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if len(matched) != 1 {
		t.Errorf("expected only the seed, got %v", matched)
	}
	if src.maxKeys > 100 {
		t.Errorf("lookup batch exceeded 100 identifiers: %d", src.maxKeys)
	}
	if src.queries != 3 {
		t.Errorf("expected 3 batched lookups, got %d", src.queries)
	}
}
