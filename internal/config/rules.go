// Package config holds the clustering rules: the tunable thresholds, caps and
// word lists consumed by matching and aggregation.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/franz/bibcluster/internal/util"
)

// Rules is the documented clustering rule set. Zero-valued fields in a rules
// file fall back to the defaults.
type Rules struct {
	Match     MatchRules     `yaml:"match"`
	Aggregate AggregateRules `yaml:"aggregate"`
	// IdentifierSources are sources whose records only supply identifiers;
	// they are never cluster seeds and keep their frbr_status on re-ingest.
	IdentifierSources []string `yaml:"identifier_sources"`
}

// MatchRules bound the identifier graph walk of the matching engine.
type MatchRules struct {
	Authorities         []string `yaml:"authorities"`
	TitleStopwords      []string `yaml:"title_stopwords"`
	MaxDistance         int      `yaml:"max_distance"`
	MaxClusterSize      int      `yaml:"max_cluster_size"`
	IdentifierBatchSize int      `yaml:"identifier_batch_size"`
}

// AggregateRules tune how matched records are consolidated into a Work.
type AggregateRules struct {
	AgentSimilarity   float64             `yaml:"agent_similarity"`
	CleanupSimilarity float64             `yaml:"cleanup_similarity"`
	EditionRoles      []string            `yaml:"edition_roles"`
	ItemRoles         []string            `yaml:"item_roles"`
	TypedIdentifiers  []string            `yaml:"typed_identifiers"`
	SortStopwords     map[string][]string `yaml:"sort_stopwords"`
	DefaultLanguage   string              `yaml:"default_language"`
}

// DefaultRules returns the rule set the pipeline ships with.
func DefaultRules() *Rules {
	return &Rules{
		Match: MatchRules{
			Authorities:         []string{"isbn", "issn", "oclc", "lccn", "owi"},
			TitleStopwords:      []string{"a", "an", "the", "of"},
			MaxDistance:         4,
			MaxClusterSize:      10000,
			IdentifierBatchSize: 100,
		},
		Aggregate: AggregateRules{
			AgentSimilarity:   0.9,
			CleanupSimilarity: 0.74,
			EditionRoles:      []string{"publisher", "manufacturer", "distributor", "printer"},
			ItemRoles:         []string{"provider", "repository", "digitizer", "responsible"},
			TypedIdentifiers:  []string{"isbn", "issn", "oclc", "lccn", "owi", "ddc", "lcc", "nypl"},
			SortStopwords: map[string][]string{
				"eng": {"a", "an", "the"},
				"fre": {"le", "la", "les", "l'", "un", "une"},
				"ger": {"der", "die", "das", "ein", "eine"},
				"spa": {"el", "la", "los", "las", "un", "una"},
				"ita": {"il", "lo", "la", "i", "gli", "le", "un", "una"},
				"por": {"o", "a", "os", "as", "um", "uma"},
				"dut": {"de", "het", "een"},
			},
			DefaultLanguage: "eng",
		},
		IdentifierSources: []string{"oclcClassify", "oclcCatalog"},
	}
}

// LoadRules reads a YAML rules file over the defaults. An empty path returns
// the defaults.
func LoadRules(path string) (*Rules, error) {
	rules := DefaultRules()
	if path == "" {
		return rules, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	var fromFile Rules
	if err := yaml.Unmarshal(data, &fromFile); err != nil {
		return nil, fmt.Errorf("failed to parse rules file %s: %w", path, err)
	}
	rules.overlay(&fromFile)

	if err := rules.Validate(); err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *Rules) overlay(o *Rules) {
	if len(o.Match.Authorities) > 0 {
		r.Match.Authorities = o.Match.Authorities
	}
	if len(o.Match.TitleStopwords) > 0 {
		r.Match.TitleStopwords = o.Match.TitleStopwords
	}
	if o.Match.MaxDistance > 0 {
		r.Match.MaxDistance = o.Match.MaxDistance
	}
	if o.Match.MaxClusterSize > 0 {
		r.Match.MaxClusterSize = o.Match.MaxClusterSize
	}
	if o.Match.IdentifierBatchSize > 0 {
		r.Match.IdentifierBatchSize = o.Match.IdentifierBatchSize
	}
	if o.Aggregate.AgentSimilarity > 0 {
		r.Aggregate.AgentSimilarity = o.Aggregate.AgentSimilarity
	}
	if o.Aggregate.CleanupSimilarity > 0 {
		r.Aggregate.CleanupSimilarity = o.Aggregate.CleanupSimilarity
	}
	if len(o.Aggregate.EditionRoles) > 0 {
		r.Aggregate.EditionRoles = o.Aggregate.EditionRoles
	}
	if len(o.Aggregate.ItemRoles) > 0 {
		r.Aggregate.ItemRoles = o.Aggregate.ItemRoles
	}
	if len(o.Aggregate.TypedIdentifiers) > 0 {
		r.Aggregate.TypedIdentifiers = o.Aggregate.TypedIdentifiers
	}
	for lang, words := range o.Aggregate.SortStopwords {
		r.Aggregate.SortStopwords[lang] = words
	}
	if o.Aggregate.DefaultLanguage != "" {
		r.Aggregate.DefaultLanguage = o.Aggregate.DefaultLanguage
	}
	if o.IdentifierSources != nil {
		r.IdentifierSources = o.IdentifierSources
	}
}

// Validate checks value ranges.
func (r *Rules) Validate() error {
	for name, v := range map[string]float64{
		"aggregate.agent_similarity":   r.Aggregate.AgentSimilarity,
		"aggregate.cleanup_similarity": r.Aggregate.CleanupSimilarity,
	} {
		if v <= 0 || v > 1 {
			return fmt.Errorf("%w: %s must be in (0, 1], got %v", util.ErrInvalidConfig, name, v)
		}
	}
	if len(r.Match.Authorities) == 0 {
		return fmt.Errorf("%w: match.authorities is empty", util.ErrInvalidConfig)
	}
	return nil
}

// IsIdentifierSource reports whether source only supplies identifiers.
func (r *Rules) IsIdentifierSource(source string) bool {
	for _, s := range r.IdentifierSources {
		if s == source {
			return true
		}
	}
	return false
}

// Set builds a lookup set from a word list.
func Set(words []string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}
