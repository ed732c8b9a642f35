// Package relations discovers and serves the franchise graph around a
// catalog entry in three tiers: basic edges, detailed edges with metadata,
// and the complete chronologically grouped franchise.
package relations

import (
	"time"

	"github.com/kitsurai/torii/internal/provider"
)

// Category groups relation edges for presentation.
type Category string

// Relation categories.
const (
	CategoryMainStory Category = "main_story"
	CategorySideStory Category = "side_story"
	CategoryMovie     Category = "movie"
	CategoryOVA       Category = "ova_special"
	CategoryOther     Category = "other"
)

// mainStoryTypes and sideStoryTypes drive categorization; the format only
// matters for edges that are neither.
var (
	mainStoryTypes = map[string]struct{}{
		"SEQUEL":       {},
		"PREQUEL":      {},
		"PARENT_STORY": {},
		"FULL_STORY":   {},
	}
	sideStoryTypes = map[string]struct{}{
		"SIDE_STORY":  {},
		"SPIN_OFF":    {},
		"ALTERNATIVE": {},
	}
)

// Categorize maps a provider relation type and media format to a category.
func Categorize(relationType, format string) Category {
	if _, ok := mainStoryTypes[relationType]; ok {
		return CategoryMainStory
	}
	if _, ok := sideStoryTypes[relationType]; ok {
		return CategorySideStory
	}
	switch format {
	case "MOVIE":
		return CategoryMovie
	case "OVA", "ONA", "SPECIAL", "TV_SHORT", "MUSIC":
		return CategoryOVA
	}
	return CategoryOther
}

// Edge is one persisted relation of a catalog entry.
type Edge struct {
	ID               string    `json:"id"`
	AnimeID          string    `json:"anime_id"`
	TargetExternalID string    `json:"target_external_id"`
	Type             string    `json:"relation_type"`
	Category         Category  `json:"category"`
	Provider         string    `json:"provider"`
	CreatedAt        time.Time `json:"created_at"`
}

// Detail is an edge plus a metadata snapshot of its target. When the target
// could not be resolved the snapshot holds only the external id and the
// Placeholder flag is set.
type Detail struct {
	Edge        Edge    `json:"edge"`
	Title       string  `json:"title,omitempty"`
	Format      string  `json:"format,omitempty"`
	Episodes    int     `json:"episodes,omitempty"`
	StartYear   int     `json:"start_year,omitempty"`
	Score       float64 `json:"score,omitempty"`
	ImageURL    string  `json:"image_url,omitempty"`
	Placeholder bool    `json:"placeholder,omitempty"`
}

// FranchiseEntry is one title in the complete franchise view.
type FranchiseEntry struct {
	TargetExternalID string        `json:"target_external_id"`
	Title            string        `json:"title,omitempty"`
	Type             string        `json:"relation_type"`
	Format           string        `json:"format,omitempty"`
	StartYear        int           `json:"start_year,omitempty"`
	Provider         provider.Name `json:"provider"`
}

// Franchise is the complete franchise grouped by category, each group in
// chronological order with unknown years last.
type Franchise struct {
	SeedID     string                        `json:"seed_id"`
	Categories map[Category][]FranchiseEntry `json:"categories"`
	Total      int                           `json:"total"`
}
