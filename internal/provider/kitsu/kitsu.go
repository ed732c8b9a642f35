// Package kitsu implements the provider adapter for the Kitsu JSON:API.
// The public endpoint needs no authentication. Kitsu does not expose a
// usable franchise graph, so this adapter implements only the base
// capability set.
package kitsu

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/kitsurai/torii/internal/anime"
	"github.com/kitsurai/torii/internal/provider"
)

const defaultBaseURL = "https://kitsu.io/api/edge"

// Adapter implements provider.Adapter for Kitsu.
type Adapter struct {
	client  *http.Client
	limiter *provider.RateLimiterMap
	logger  *slog.Logger
	baseURL string
}

// New creates a Kitsu adapter with the default base URL.
func New(limiter *provider.RateLimiterMap, logger *slog.Logger) *Adapter {
	return NewWithBaseURL(limiter, logger, defaultBaseURL)
}

// NewWithBaseURL creates a Kitsu adapter with a custom base URL (for testing).
func NewWithBaseURL(limiter *provider.RateLimiterMap, logger *slog.Logger, baseURL string) *Adapter {
	return &Adapter{
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: limiter,
		logger:  logger.With(slog.String("provider", "kitsu")),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Name returns the provider identifier.
func (a *Adapter) Name() provider.Name { return provider.NameKitsu }

// Search queries Kitsu for titles matching the query.
func (a *Adapter) Search(ctx context.Context, query string, limit int) ([]anime.Record, error) {
	if query == "" {
		return nil, nil
	}
	if limit < 1 {
		limit = 10
	}

	params := url.Values{
		"filter[text]":       {query},
		"page[limit]":        {strconv.Itoa(limit)},
		"include":            {"categories"},
		"fields[categories]": {"title"},
	}
	body, err := a.doRequest(ctx, a.baseURL+"/anime?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var resp listResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &provider.ErrUpstream{Provider: provider.NameKitsu, Cause: fmt.Errorf("parsing search response: %w", err)}
	}

	categories := categoryTitles(resp.Included)
	records := make([]anime.Record, 0, len(resp.Data))
	for i := range resp.Data {
		records = append(records, *toRecord(&resp.Data[i], categories))
	}

	a.logger.Debug("search completed",
		slog.String("query", query),
		slog.Int("results", len(records)))

	return records, nil
}

// GetByID fetches one title by its Kitsu id.
func (a *Adapter) GetByID(ctx context.Context, id string) (*anime.Record, error) {
	if !isNumericID(id) {
		return nil, &provider.ErrNotFound{Provider: provider.NameKitsu, ID: id}
	}

	params := url.Values{
		"include":            {"categories"},
		"fields[categories]": {"title"},
	}
	reqURL := fmt.Sprintf("%s/anime/%s?%s", a.baseURL, url.PathEscape(id), params.Encode())
	body, err := a.doRequest(ctx, reqURL)
	if err != nil {
		return nil, err
	}

	var resp singleResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &provider.ErrUpstream{Provider: provider.NameKitsu, Cause: fmt.Errorf("parsing anime response: %w", err)}
	}
	if resp.Data.ID == "" {
		return nil, &provider.ErrNotFound{Provider: provider.NameKitsu, ID: id}
	}

	return toRecord(&resp.Data, categoryTitles(resp.Included)), nil
}

// GetTop fetches a page of titles ranked by user count.
func (a *Adapter) GetTop(ctx context.Context, page, limit int) ([]anime.Record, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}

	params := url.Values{
		"sort":         {"-userCount"},
		"page[limit]":  {strconv.Itoa(limit)},
		"page[offset]": {strconv.Itoa((page - 1) * limit)},
	}
	return a.list(ctx, a.baseURL+"/anime?"+params.Encode())
}

// GetSeasonal fetches a page of titles for a broadcast season.
func (a *Adapter) GetSeasonal(ctx context.Context, year int, season provider.Season, page int) ([]anime.Record, error) {
	if page < 1 {
		page = 1
	}
	const perPage = 20

	params := url.Values{
		"filter[seasonYear]": {strconv.Itoa(year)},
		"filter[season]":     {string(season)},
		"page[limit]":        {strconv.Itoa(perPage)},
		"page[offset]":       {strconv.Itoa((page - 1) * perPage)},
	}
	return a.list(ctx, a.baseURL+"/anime?"+params.Encode())
}

func (a *Adapter) list(ctx context.Context, reqURL string) ([]anime.Record, error) {
	body, err := a.doRequest(ctx, reqURL)
	if err != nil {
		return nil, err
	}

	var resp listResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &provider.ErrUpstream{Provider: provider.NameKitsu, Cause: fmt.Errorf("parsing list response: %w", err)}
	}

	categories := categoryTitles(resp.Included)
	records := make([]anime.Record, 0, len(resp.Data))
	for i := range resp.Data {
		records = append(records, *toRecord(&resp.Data[i], categories))
	}
	return records, nil
}

// doRequest executes a GET request and returns the response body, waiting
// on the shared rate limiter first.
func (a *Adapter) doRequest(ctx context.Context, reqURL string) ([]byte, error) {
	if err := a.limiter.Wait(ctx, provider.NameKitsu); err != nil {
		return nil, &provider.ErrUnavailable{
			Provider: provider.NameKitsu,
			Cause:    fmt.Errorf("rate limiter: %w", err),
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.api+json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, &provider.ErrUnavailable{Provider: provider.NameKitsu, Cause: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	switch resp.StatusCode {
	case http.StatusOK:
		// continue
	case http.StatusNotFound:
		return nil, &provider.ErrNotFound{Provider: provider.NameKitsu, ID: reqURL}
	case http.StatusTooManyRequests:
		return nil, &provider.ErrRateLimited{Provider: provider.NameKitsu}
	default:
		return nil, &provider.ErrUnavailable{
			Provider: provider.NameKitsu,
			Cause:    fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	return io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
}

// categoryTitles maps included category resource ids to their titles.
func categoryTitles(included []resource) map[string]string {
	if len(included) == 0 {
		return nil
	}
	out := make(map[string]string)
	for _, res := range included {
		if res.Type == "categories" && res.Attributes.Title != "" {
			out[res.ID] = res.Attributes.Title
		}
	}
	return out
}

// toRecord converts a Kitsu anime resource into a normalized record with
// provenance and quality assessed. Kitsu has no studio data.
func toRecord(res *resource, categories map[string]string) *anime.Record {
	attrs := &res.Attributes

	var genres []string
	for _, ref := range res.Relationships.Categories.Data {
		if title, ok := categories[ref.ID]; ok {
			genres = append(genres, title)
		}
	}

	rec := &anime.Record{
		Titles: anime.Titles{
			Main:     attrs.CanonicalTitle,
			English:  attrs.Titles.En,
			Romaji:   attrs.Titles.EnJp,
			Japanese: attrs.Titles.JaJp,
			Synonyms: attrs.AbbreviatedTitles,
		},
		Synopsis:    attrs.Synopsis,
		Episodes:    attrs.EpisodeCount,
		Status:      mapStatus(attrs.Status),
		Type:        mapSubtype(attrs.Subtype),
		DurationMin: attrs.EpisodeLength,
		AiredFrom:   attrs.StartDate,
		AiredTo:     attrs.EndDate,
		Genres:      genres,
		Score:       parseRating(attrs.AverageRating),
		Favorites:   attrs.FavoritesCount,
		AgeRating:   attrs.AgeRating,
		ImageURL:    firstNonEmpty(attrs.PosterImage.Original, attrs.PosterImage.Large),
		BannerURL:   attrs.CoverImage.Original,
		ExternalIDs: map[string]string{"kitsu": res.ID},
		Provenance: anime.Provenance{
			PrimaryProvider: "kitsu",
			ProvidersUsed:   []string{"kitsu"},
		},
	}
	if attrs.YoutubeVideoID != "" {
		rec.TrailerURL = "https://www.youtube.com/watch?v=" + attrs.YoutubeVideoID
	}
	if len(attrs.StartDate) >= 4 {
		if y, err := strconv.Atoi(attrs.StartDate[:4]); err == nil {
			rec.StartYear = y
		}
	}

	anime.AssessQuality(rec)
	rec.Provenance.Confidence = anime.Confidence([]float64{rec.Quality.Score})
	return rec
}

func mapStatus(s string) anime.Status {
	switch s {
	case "current":
		return anime.StatusAiring
	case "finished":
		return anime.StatusFinished
	case "upcoming", "unreleased", "tba":
		return anime.StatusUpcoming
	default:
		return anime.StatusUnknown
	}
}

func mapSubtype(s string) anime.Type {
	switch strings.ToLower(s) {
	case "tv":
		return anime.TypeTV
	case "movie":
		return anime.TypeMovie
	case "ova":
		return anime.TypeOVA
	case "ona":
		return anime.TypeONA
	case "special":
		return anime.TypeSpecial
	case "music":
		return anime.TypeMusic
	default:
		return anime.TypeUnknown
	}
}

// parseRating scales Kitsu's 0-100 percentage string to the shared 0-10
// scale.
func parseRating(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v / 10
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// isNumericID reports whether id is a valid Kitsu id (all digits).
func isNumericID(id string) bool {
	if id == "" {
		return false
	}
	for _, r := range id {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
