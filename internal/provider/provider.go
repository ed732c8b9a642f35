// Package provider defines the upstream metadata source abstraction: the
// adapter interface, the registry, the shared rate limiter, the response
// cache, and the health-aware query orchestrator.
package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/kitsurai/torii/internal/anime"
)

// Name uniquely identifies a metadata provider.
type Name string

// Known provider names.
const (
	NameJikan   Name = "jikan"
	NameAniList Name = "anilist"
	NameKitsu   Name = "kitsu"
)

// AllNames returns all known provider names in display order.
func AllNames() []Name {
	return []Name{NameJikan, NameAniList, NameKitsu}
}

// DisplayName returns a human-readable name for the provider.
func (n Name) DisplayName() string {
	switch n {
	case NameJikan:
		return "Jikan"
	case NameAniList:
		return "AniList"
	case NameKitsu:
		return "Kitsu"
	default:
		return string(n)
	}
}

// Season identifies a broadcast season for seasonal queries.
type Season string

// Broadcast seasons.
const (
	SeasonWinter Season = "winter"
	SeasonSpring Season = "spring"
	SeasonSummer Season = "summer"
	SeasonFall   Season = "fall"
)

// Relation is one franchise edge reported by a provider.
type Relation struct {
	TargetID    string `json:"target_id"`
	TargetTitle string `json:"target_title,omitempty"`
	Type        string `json:"relation_type"`
	Format      string `json:"format,omitempty"`
	StartYear   int    `json:"start_year,omitempty"`
	Provider    Name   `json:"provider"`
	// Nested edges from deep franchise queries (one level per hop).
	Relations []Relation `json:"relations,omitempty"`
}

// Adapter is the interface all metadata source adapters implement. Adapters
// return normalized records with provenance and quality already assessed;
// wire format and HTTP details stay inside the adapter.
type Adapter interface {
	// Name returns the unique provider identifier.
	Name() Name

	// Search queries the provider by title.
	Search(ctx context.Context, query string, limit int) ([]anime.Record, error)

	// GetByID fetches one title by the provider's own id.
	// Returns ErrNotFound when the provider has no data for the id.
	GetByID(ctx context.Context, id string) (*anime.Record, error)

	// GetTop fetches a page of top-ranked titles.
	GetTop(ctx context.Context, page, limit int) ([]anime.Record, error)

	// GetSeasonal fetches a page of titles for a broadcast season.
	GetSeasonal(ctx context.Context, year int, season Season, page int) ([]anime.Record, error)
}

// RelationSource is an optional adapter capability for franchise discovery.
type RelationSource interface {
	// GetRelations lists direct relation edges for a title. With deep set,
	// the provider resolves nested edges in a single query where supported.
	GetRelations(ctx context.Context, id string, deep bool) ([]Relation, error)
}

// ErrUnavailable indicates a transient provider failure (timeout, server
// error, connection refused).
type ErrUnavailable struct {
	Provider Name
	Cause    error
}

func (e *ErrUnavailable) Error() string {
	return fmt.Sprintf("provider %s unavailable: %v", e.Provider, e.Cause)
}

func (e *ErrUnavailable) Unwrap() error { return e.Cause }

// ErrRateLimited indicates the provider rejected the request for exceeding
// its quota.
type ErrRateLimited struct {
	Provider   Name
	RetryAfter time.Duration
}

func (e *ErrRateLimited) Error() string {
	return fmt.Sprintf("provider %s: rate limit exceeded", e.Provider)
}

// ErrNotFound indicates the provider has no data for the requested id.
type ErrNotFound struct {
	Provider Name
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("provider %s: anime %s not found", e.Provider, e.ID)
}

// ErrUpstream indicates a malformed or unexpected provider response.
type ErrUpstream struct {
	Provider Name
	Cause    error
}

func (e *ErrUpstream) Error() string {
	return fmt.Sprintf("provider %s: unexpected response: %v", e.Provider, e.Cause)
}

func (e *ErrUpstream) Unwrap() error { return e.Cause }
