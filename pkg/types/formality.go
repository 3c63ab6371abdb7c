package types

import "strings"

// FormalityLevel is a point on the closed five-level ordinal scale
// very_formal > formal > neutral > casual > very_casual.
type FormalityLevel string

const (
	FormalityVeryFormal FormalityLevel = "very_formal"
	FormalityFormal     FormalityLevel = "formal"
	FormalityNeutral    FormalityLevel = "neutral"
	FormalityCasual     FormalityLevel = "casual"
	FormalityVeryCasual FormalityLevel = "very_casual"
)

// FormalityLevels lists every level from most to least formal.
var FormalityLevels = []FormalityLevel{
	FormalityVeryFormal,
	FormalityFormal,
	FormalityNeutral,
	FormalityCasual,
	FormalityVeryCasual,
}

// ParseFormalityLevel normalizes s and reports whether it names a level.
// Spaces and hyphens are accepted in place of underscores ("very formal").
func ParseFormalityLevel(s string) (FormalityLevel, bool) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
	l := FormalityLevel(norm)
	return l, l.Valid()
}

// Valid reports whether l is one of the five defined levels.
func (l FormalityLevel) Valid() bool {
	return l.Rank() >= 0
}

// Rank returns 4 for very_formal down to 0 for very_casual, or -1 when l is
// not a defined level.
func (l FormalityLevel) Rank() int {
	for i, lvl := range FormalityLevels {
		if lvl == l {
			return len(FormalityLevels) - 1 - i
		}
	}
	return -1
}

// String implements fmt.Stringer.
func (l FormalityLevel) String() string {
	return string(l)
}
