package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Feature names. They double as cache collection names and as the first part
// of every cache key a feature derives.
const (
	FeatureDetectLanguage    = "detect_language"
	FeatureTranslate         = "translate"
	FeatureCulturalContext   = "cultural_context"
	FeatureFormalityAnalysis = "formality_analysis"
	FeatureFormalityAdjust   = "formality_adjust"
	FeatureSlangDetect       = "slang_detect"
	FeatureExplainPhrase     = "explain_phrase"
	FeatureSmartReplies      = "smart_replies"
	FeatureStructuredData    = "structured_data"
)

const thirtyDays = 30 * 24 * time.Hour

// FeatureRule is the cache and validation policy of one feature.
type FeatureRule struct {
	// TTL of cached results. Zero means entries never expire.
	TTL time.Duration
	// MaxLength is the upper bound, in characters, of the feature's free-form
	// text input.
	MaxLength int
}

// FeaturePolicy maps feature names to their rules.
type FeaturePolicy map[string]FeatureRule

// DefaultFeaturePolicy returns the built-in rules. Language detection is
// content-deterministic and cached for 30 days; smart replies depend on the
// conversation tail and expire after an hour; everything else is unbounded.
func DefaultFeaturePolicy() FeaturePolicy {
	return FeaturePolicy{
		FeatureDetectLanguage:    {TTL: thirtyDays, MaxLength: 5000},
		FeatureTranslate:         {TTL: 0, MaxLength: 10000},
		FeatureCulturalContext:   {TTL: 0, MaxLength: 5000},
		FeatureFormalityAnalysis: {TTL: 0, MaxLength: 5000},
		FeatureFormalityAdjust:   {TTL: 0, MaxLength: 5000},
		FeatureSlangDetect:       {TTL: 0, MaxLength: 5000},
		FeatureExplainPhrase:     {TTL: 0, MaxLength: 200},
		FeatureSmartReplies:      {TTL: time.Hour, MaxLength: 5000},
		FeatureStructuredData:    {TTL: 0, MaxLength: 5000},
	}
}

// Rule returns the rule for feature, falling back to a 5,000 character,
// no-TTL rule for names the policy does not know.
func (p FeaturePolicy) Rule(feature string) FeatureRule {
	if r, ok := p[feature]; ok {
		return r
	}
	return FeatureRule{MaxLength: 5000}
}

// policyFile is the YAML shape:
//
//	features:
//	  detect_language:
//	    ttl: 720h
//	    max_length: 5000
//	  translate:
//	    ttl: none
type policyFile struct {
	Features map[string]struct {
		TTL       *string `yaml:"ttl"`
		MaxLength *int    `yaml:"max_length"`
	} `yaml:"features"`
}

// LoadFeaturePolicy reads a YAML policy file and overlays it on the defaults.
// An empty path returns the defaults.
func LoadFeaturePolicy(path string) (FeaturePolicy, error) {
	if path == "" {
		return DefaultFeaturePolicy(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read feature policy: %w", err)
	}
	return ParseFeaturePolicy(data)
}

// ParseFeaturePolicy overlays YAML policy data on the defaults. Unknown
// feature names, unparsable TTLs and non-positive lengths are errors.
func ParseFeaturePolicy(data []byte) (FeaturePolicy, error) {
	var file policyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("config: parse feature policy: %w", err)
	}

	policy := DefaultFeaturePolicy()
	for name, override := range file.Features {
		rule, ok := policy[name]
		if !ok {
			return nil, fmt.Errorf("config: unknown feature %q in policy", name)
		}
		if override.TTL != nil {
			ttl, err := parseTTL(*override.TTL)
			if err != nil {
				return nil, fmt.Errorf("config: feature %q: %w", name, err)
			}
			rule.TTL = ttl
		}
		if override.MaxLength != nil {
			if *override.MaxLength < 1 {
				return nil, fmt.Errorf("config: feature %q: max_length must be positive", name)
			}
			rule.MaxLength = *override.MaxLength
		}
		policy[name] = rule
	}
	return policy, nil
}

func parseTTL(s string) (time.Duration, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "0", "none", "never":
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid ttl %q: %w", s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid ttl %q: must not be negative", s)
	}
	return d, nil
}
