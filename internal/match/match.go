// Package match finds the records that describe the same work as a seed
// record by expanding over shared identifiers.
package match

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/franz/bibcluster/internal/config"
	"github.com/franz/bibcluster/internal/model"
	"github.com/franz/bibcluster/internal/textnorm"
	"github.com/franz/bibcluster/internal/util"
)

// CandidateSource looks up titled records carrying any of the identifier
// keys ("value|authority"). *store.Store satisfies it.
type CandidateSource interface {
	RecordsWithIdentifiers(ctx context.Context, keys []string) ([]*model.Record, error)
}

// Matcher expands a seed record into its cluster.
type Matcher struct {
	authorities map[string]bool
	stopwords   map[string]bool
	maxDistance int
	maxSize     int
	batchSize   int
}

// New creates a Matcher from the match rules.
func New(rules config.MatchRules) *Matcher {
	m := &Matcher{
		authorities: config.Set(rules.Authorities),
		stopwords:   config.Set(rules.TitleStopwords),
		maxDistance: rules.MaxDistance,
		maxSize:     rules.MaxClusterSize,
		batchSize:   rules.IdentifierBatchSize,
	}
	if m.batchSize <= 0 {
		m.batchSize = 100
	}
	return m
}

// Match returns the ids of every record that clusters with seed, in
// ascending order. A seed without qualifying identifiers yields no matches.
// Records reached through an identifier hop must share title tokens with the
// seed; direct identifier matches are accepted regardless of title.
func (m *Matcher) Match(ctx context.Context, src CandidateSource, seed *model.Record) ([]int64, error) {
	if strings.TrimSpace(seed.Title) == "" {
		return nil, fmt.Errorf("record %s: %w", seed.UUID, util.ErrInvalidTitle)
	}
	seedTokens := textnorm.TitleTokens(seed.Title, m.stopwords)

	checked := make(map[string]bool)
	frontier := m.qualifying(seed.Identifiers, checked, nil)
	matched := make(map[int64]bool)

	for distance := 0; distance < m.maxDistance && len(frontier) > 0; distance++ {
		for _, key := range frontier {
			checked[key] = true
		}

		candidates, err := m.lookup(ctx, src, frontier)
		if err != nil {
			return nil, err
		}

		queued := make(map[string]bool)
		var next []string
		for _, c := range candidates {
			if matched[c.ID] {
				continue
			}
			if strings.TrimSpace(c.Title) == "" {
				continue
			}
			if distance > 0 && !TitlesOverlap(seedTokens, textnorm.TitleTokens(c.Title, m.stopwords)) {
				continue
			}

			matched[c.ID] = true
			if len(matched) > m.maxSize {
				return nil, fmt.Errorf("record %s matched more than %d records: %w",
					seed.UUID, m.maxSize, util.ErrMatchSizeExceeded)
			}

			next = append(next, m.qualifying(c.Identifiers, checked, queued)...)
		}

		util.DebugLog("Match %s: distance %d accepted %d records, %d identifiers queued",
			seed.UUID, distance, len(matched), len(next))
		frontier = next
	}

	ids := make([]int64, 0, len(matched))
	for id := range matched {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// qualifying returns the match-eligible identifier keys not yet checked or
// queued, marking them queued.
func (m *Matcher) qualifying(ids []model.Identifier, checked, queued map[string]bool) []string {
	var keys []string
	seen := make(map[string]bool)
	for _, id := range ids {
		if id.Value == "" || !m.authorities[id.Authority] {
			continue
		}
		key := id.Key()
		if checked[key] || queued[key] || seen[key] {
			continue
		}
		seen[key] = true
		if queued != nil {
			queued[key] = true
		}
		keys = append(keys, key)
	}
	return keys
}

// lookup queries src in batches and returns distinct candidates by id.
func (m *Matcher) lookup(ctx context.Context, src CandidateSource, keys []string) ([]*model.Record, error) {
	seen := make(map[int64]bool)
	var out []*model.Record
	for start := 0; start < len(keys); start += m.batchSize {
		end := start + m.batchSize
		if end > len(keys) {
			end = len(keys)
		}
		batch, err := src.RecordsWithIdentifiers(ctx, keys[start:end])
		if err != nil {
			return nil, fmt.Errorf("identifier lookup failed: %w", err)
		}
		for _, r := range batch {
			if !seen[r.ID] {
				seen[r.ID] = true
				out = append(out, r)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// TitlesOverlap reports whether two title token sets describe the same
// title. A single-token side must be contained in the other; otherwise at
// least two tokens must be shared.
func TitlesOverlap(a, b map[string]bool) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	if len(a) == 1 || len(b) == 1 {
		return subset(a, b) || subset(b, a)
	}

	shared := 0
	for tok := range a {
		if b[tok] {
			shared++
			if shared >= 2 {
				return true
			}
		}
	}
	return false
}

func subset(a, b map[string]bool) bool {
	for tok := range a {
		if !b[tok] {
			return false
		}
	}
	return true
}
