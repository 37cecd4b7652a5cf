package newsparser

import (
	"regexp"
	"strings"
)

// SourceProfile is pure site-specific configuration consulted by Parse
// for noise stripping, date parsing, and classification. Grounded on
// app/processing/source_profiles.py.
type SourceProfile struct {
	Name             string
	DisplayName      string
	Timezone         string
	UTCOffset        string
	DatePatterns     []string
	SectionLabels    []string
	NoiseMarkers     []string
	SponsoredMarkers []string
	ExclusiveMarkers []string
	OpinionLabels    []string

	dateRegex *regexp.Regexp
}

func compileDateRegex(patterns []string) *regexp.Regexp {
	parts := make([]string, len(patterns))
	for i, p := range patterns {
		parts[i] = "(?:" + p + ")"
	}
	return regexp.MustCompile("(?i)" + strings.Join(parts, "|"))
}

var scmpProfile = SourceProfile{
	Name:        "scmp",
	DisplayName: "South China Morning Post",
	Timezone:    "Asia/Hong_Kong",
	UTCOffset:   "+08:00",
	DatePatterns: []string{
		`\d{1,2}\s+\w+\s+\d{4}\s*-\s*\d{1,2}:\d{2}[AP]M`,
		`\d+\s+(minutes?|hours?)\s+ago`,
	},
	SectionLabels: []string{
		"Business", "Tech", "China Economy", "Banking & Finance", "Opinion",
		"Markets", "Companies", "Property", "China", "Asia", "World",
	},
	NoiseMarkers:     []string{"TRENDING TOPICS", "MOST POPULAR", "MORE LATEST NEWS", "MORE COMMENT"},
	SponsoredMarkers: []string{"In partnership with:", "Paid Post:"},
	ExclusiveMarkers: []string{"Exclusive"},
	OpinionLabels:    []string{"Opinion", "Macroscope", "As I see it"},
}

var genericProfile = SourceProfile{
	Name:        "generic",
	DisplayName: "Unknown Source",
	Timezone:    "UTC",
	UTCOffset:   "+00:00",
	DatePatterns: []string{
		`\d{1,2}\s+\w+\s+\d{4}\s*-\s*\d{1,2}:\d{2}[AP]M`,
		`\d{4}-\d{2}-\d{2}T\d{2}:\d{2}`,
		`\w+\s+\d{1,2},?\s+\d{4}`,
		`\d+\s+(minutes?|hours?|days?)\s+ago`,
	},
	SectionLabels:    nil,
	NoiseMarkers:     []string{"TRENDING", "MOST POPULAR", "ADVERTISEMENT", "SPONSORED"},
	SponsoredMarkers: []string{"Sponsored:", "Paid Post:", "In partnership with:"},
	ExclusiveMarkers: []string{"Exclusive", "EXCLUSIVE"},
	OpinionLabels:    []string{"Opinion", "Editorial", "Commentary"},
}

var sourceProfiles map[string]SourceProfile

func init() {
	scmpProfile.dateRegex = compileDateRegex(scmpProfile.DatePatterns)
	genericProfile.dateRegex = compileDateRegex(genericProfile.DatePatterns)
	sourceProfiles = map[string]SourceProfile{
		scmpProfile.Name: scmpProfile,
	}
}

// GetSourceProfile returns the named profile, or the generic fallback
// when name is empty or unrecognized.
func GetSourceProfile(name string) SourceProfile {
	if name != "" {
		if p, ok := sourceProfiles[name]; ok {
			return p
		}
	}
	return genericProfile
}
