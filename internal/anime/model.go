// Package anime holds the reconciled, provider-agnostic catalog record and
// its SQLite repository.
package anime

import (
	"encoding/json"
	"time"
)

// Status is the airing status of a title.
type Status string

// Airing statuses.
const (
	StatusAiring   Status = "airing"
	StatusFinished Status = "finished"
	StatusUpcoming Status = "upcoming"
	StatusUnknown  Status = "unknown"
)

// Type is the media format of a title.
type Type string

// Media formats.
const (
	TypeTV      Type = "tv"
	TypeMovie   Type = "movie"
	TypeOVA     Type = "ova"
	TypeONA     Type = "ona"
	TypeSpecial Type = "special"
	TypeMusic   Type = "music"
	TypeUnknown Type = "unknown"
)

// Tier is an ordinal rating of a record's data completeness.
type Tier string

// Quality tiers, best first.
const (
	TierGold   Tier = "gold"
	TierSilver Tier = "silver"
	TierBronze Tier = "bronze"
	TierStub   Tier = "stub"
)

// Titles holds all known title variants for a record.
type Titles struct {
	Main     string   `json:"main"`
	English  string   `json:"english,omitempty"`
	Japanese string   `json:"japanese,omitempty"`
	Romaji   string   `json:"romaji,omitempty"`
	Native   string   `json:"native,omitempty"`
	Synonyms []string `json:"synonyms,omitempty"`
}

// Variants returns all non-empty title strings, main first.
func (t Titles) Variants() []string {
	var out []string
	for _, v := range []string{t.Main, t.English, t.Romaji, t.Japanese, t.Native} {
		if v != "" {
			out = append(out, v)
		}
	}
	out = append(out, t.Synonyms...)
	return out
}

// Provenance records which providers contributed to a record.
type Provenance struct {
	PrimaryProvider string  `json:"primary_provider"`
	ProvidersUsed   []string `json:"providers_used"`
	Confidence      float64 `json:"confidence"`
	FetchTimeMS     int64   `json:"fetch_time_ms,omitempty"`
}

// Quality holds the derived data-quality assessment of a record.
type Quality struct {
	Score          float64  `json:"score"`
	Completeness   float64  `json:"completeness"`
	Consistency    float64  `json:"consistency"`
	RelevanceScore float64  `json:"relevance_score"`
	MissingFields  []string `json:"missing_fields,omitempty"`
}

// Record is the reconciled representation of one anime title.
type Record struct {
	ID       string `json:"id"`
	Titles   Titles `json:"titles"`
	Synopsis string `json:"synopsis,omitempty"`

	Episodes       int    `json:"episodes"`
	Status         Status `json:"status"`
	Type           Type   `json:"type"`
	SourceMaterial string `json:"source_material,omitempty"`
	DurationMin    int    `json:"duration_minutes,omitempty"`
	StartYear      int    `json:"start_year,omitempty"`
	AiredFrom      string `json:"aired_from,omitempty"`
	AiredTo        string `json:"aired_to,omitempty"`

	Genres  []string `json:"genres,omitempty"`
	Studios []string `json:"studios,omitempty"`

	Score     float64 `json:"score"`
	Favorites int     `json:"favorites"`
	AgeRating string  `json:"age_rating,omitempty"`

	ImageURL   string `json:"image_url,omitempty"`
	BannerURL  string `json:"banner_url,omitempty"`
	TrailerURL string `json:"trailer_url,omitempty"`

	Quality Quality `json:"quality"`
	Tier    Tier    `json:"tier,omitempty"`

	// ExternalIDs maps provider name to that provider's id for this title.
	ExternalIDs map[string]string `json:"external_ids"`
	Provenance  Provenance        `json:"provenance"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ExternalID returns the record's id at the given provider, if known.
func (r *Record) ExternalID(provider string) (string, bool) {
	id, ok := r.ExternalIDs[provider]
	return id, ok && id != ""
}

// marshalStringSlice encodes a string slice as a JSON array column value.
func marshalStringSlice(s []string) string {
	if s == nil {
		return "[]"
	}
	data, _ := json.Marshal(s)
	return string(data)
}

func unmarshalStringSlice(data string) []string {
	if data == "" || data == "[]" {
		return nil
	}
	var s []string
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return nil
	}
	return s
}

func marshalStringMap(m map[string]string) string {
	if m == nil {
		return "{}"
	}
	data, _ := json.Marshal(m)
	return string(data)
}

func unmarshalStringMap(data string) map[string]string {
	if data == "" || data == "{}" {
		return map[string]string{}
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return map[string]string{}
	}
	return m
}
