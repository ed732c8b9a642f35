// Package jikan implements the provider adapter for the Jikan v4 REST API,
// the unofficial MyAnimeList mirror. No authentication is required.
package jikan

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

const defaultBaseURL = "https://api.jikan.moe/v4"

// Adapter implements provider.Adapter for Jikan.
type Adapter struct {
	client  *http.Client
	limiter *provider.RateLimiterMap
	logger  *slog.Logger
	baseURL string
}

// New creates a Jikan adapter with the default base URL.
func New(limiter *provider.RateLimiterMap, logger *slog.Logger) *Adapter {
	return NewWithBaseURL(limiter, logger, defaultBaseURL)
}

// NewWithBaseURL creates a Jikan adapter with a custom base URL (for testing).
func NewWithBaseURL(limiter *provider.RateLimiterMap, logger *slog.Logger, baseURL string) *Adapter {
	return &Adapter{
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: limiter,
		logger:  logger.With(slog.String("provider", "jikan")),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Name returns the provider identifier.
func (a *Adapter) Name() provider.Name { return provider.NameJikan }

// Search queries Jikan for titles matching the query.
func (a *Adapter) Search(ctx context.Context, query string, limit int) ([]anime.Record, error) {
	if query == "" {
		return nil, nil
	}
	if limit < 1 {
		limit = 10
	}

	params := url.Values{
		"q":     {query},
		"limit": {strconv.Itoa(limit)},
	}
	body, err := a.doRequest(ctx, a.baseURL+"/anime?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var resp listResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &provider.ErrUpstream{Provider: provider.NameJikan, Cause: fmt.Errorf("parsing search response: %w", err)}
	}

	records := make([]anime.Record, 0, len(resp.Data))
	for i := range resp.Data {
		records = append(records, *toRecord(&resp.Data[i]))
	}

	a.logger.Debug("search completed",
		slog.String("query", query),
		slog.Int("results", len(records)))

	return records, nil
}

// GetByID fetches one title by its MAL id.
func (a *Adapter) GetByID(ctx context.Context, id string) (*anime.Record, error) {
	if !isNumericID(id) {
		return nil, &provider.ErrNotFound{Provider: provider.NameJikan, ID: id}
	}

	body, err := a.doRequest(ctx, fmt.Sprintf("%s/anime/%s", a.baseURL, url.PathEscape(id)))
	if err != nil {
		return nil, err
	}

	var resp singleResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &provider.ErrUpstream{Provider: provider.NameJikan, Cause: fmt.Errorf("parsing anime response: %w", err)}
	}
	if resp.Data.MalID == 0 {
		return nil, &provider.ErrNotFound{Provider: provider.NameJikan, ID: id}
	}

	return toRecord(&resp.Data), nil
}

// GetTop fetches a page of top-ranked titles.
func (a *Adapter) GetTop(ctx context.Context, page, limit int) ([]anime.Record, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 25
	}

	params := url.Values{
		"page":  {strconv.Itoa(page)},
		"limit": {strconv.Itoa(limit)},
	}
	body, err := a.doRequest(ctx, a.baseURL+"/top/anime?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var resp listResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &provider.ErrUpstream{Provider: provider.NameJikan, Cause: fmt.Errorf("parsing top response: %w", err)}
	}

	records := make([]anime.Record, 0, len(resp.Data))
	for i := range resp.Data {
		records = append(records, *toRecord(&resp.Data[i]))
	}
	return records, nil
}

// GetSeasonal fetches a page of titles for a broadcast season.
func (a *Adapter) GetSeasonal(ctx context.Context, year int, season provider.Season, page int) ([]anime.Record, error) {
	if page < 1 {
		page = 1
	}

	reqURL := fmt.Sprintf("%s/seasons/%d/%s?page=%d", a.baseURL, year, url.PathEscape(string(season)), page)
	body, err := a.doRequest(ctx, reqURL)
	if err != nil {
		return nil, err
	}

	var resp listResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &provider.ErrUpstream{Provider: provider.NameJikan, Cause: fmt.Errorf("parsing seasonal response: %w", err)}
	}

	records := make([]anime.Record, 0, len(resp.Data))
	for i := range resp.Data {
		records = append(records, *toRecord(&resp.Data[i]))
	}
	return records, nil
}

// GetRelations lists direct relation edges for a title. Jikan has no deep
// relation query; the deep flag is ignored and callers traverse hop by hop.
func (a *Adapter) GetRelations(ctx context.Context, id string, _ bool) ([]provider.Relation, error) {
	if !isNumericID(id) {
		return nil, &provider.ErrNotFound{Provider: provider.NameJikan, ID: id}
	}

	body, err := a.doRequest(ctx, fmt.Sprintf("%s/anime/%s/relations", a.baseURL, url.PathEscape(id)))
	if err != nil {
		return nil, err
	}

	var resp relationsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &provider.ErrUpstream{Provider: provider.NameJikan, Cause: fmt.Errorf("parsing relations response: %w", err)}
	}

	var relations []provider.Relation
	for _, group := range resp.Data {
		relType := normalizeRelationType(group.Relation)
		for _, entry := range group.Entry {
			if entry.Type != "anime" {
				continue
			}
			relations = append(relations, provider.Relation{
				TargetID:    strconv.Itoa(entry.MalID),
				TargetTitle: entry.Name,
				Type:        relType,
				Provider:    provider.NameJikan,
			})
		}
	}
	return relations, nil
}

// doRequest executes a GET request and returns the response body, waiting
// on the shared rate limiter first.
func (a *Adapter) doRequest(ctx context.Context, reqURL string) ([]byte, error) {
	if err := a.limiter.Wait(ctx, provider.NameJikan); err != nil {
		return nil, &provider.ErrUnavailable{
			Provider: provider.NameJikan,
			Cause:    fmt.Errorf("rate limiter: %w", err),
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, &provider.ErrUnavailable{Provider: provider.NameJikan, Cause: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	switch resp.StatusCode {
	case http.StatusOK:
		// continue
	case http.StatusNotFound:
		return nil, &provider.ErrNotFound{Provider: provider.NameJikan, ID: reqURL}
	case http.StatusTooManyRequests:
		return nil, &provider.ErrRateLimited{Provider: provider.NameJikan, RetryAfter: retryAfter(resp)}
	default:
		return nil, &provider.ErrUnavailable{
			Provider: provider.NameJikan,
			Cause:    fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	return io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
}

func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}

// toRecord converts a Jikan anime object into a normalized record with
// provenance and quality assessed.
func toRecord(d *animeData) *anime.Record {
	rec := &anime.Record{
		Titles: anime.Titles{
			Main:     d.Title,
			English:  d.TitleEnglish,
			Japanese: d.TitleJapanese,
			Synonyms: d.TitleSynonyms,
		},
		Synopsis:       strings.TrimSuffix(d.Synopsis, "\n\n[Written by MAL Rewrite]"),
		Episodes:       d.Episodes,
		Status:         mapStatus(d.Status),
		Type:           mapType(d.Type),
		SourceMaterial: strings.ToLower(d.Source),
		DurationMin:    parseDuration(d.Duration),
		StartYear:      d.Year,
		AiredFrom:      dateOnly(d.Aired.From),
		AiredTo:        dateOnly(d.Aired.To),
		Genres:         names(d.Genres),
		Studios:        names(d.Studios),
		Score:          d.Score,
		Favorites:      d.Favorites,
		AgeRating:      mapRating(d.Rating),
		ImageURL:       firstNonEmpty(d.Images.JPG.LargeImageURL, d.Images.JPG.ImageURL),
		TrailerURL:     d.Trailer.URL,
		ExternalIDs:    map[string]string{"jikan": strconv.Itoa(d.MalID)},
		Provenance: anime.Provenance{
			PrimaryProvider: "jikan",
			ProvidersUsed:   []string{"jikan"},
		},
	}
	if rec.StartYear == 0 && len(rec.AiredFrom) >= 4 {
		if y, err := strconv.Atoi(rec.AiredFrom[:4]); err == nil {
			rec.StartYear = y
		}
	}

	anime.AssessQuality(rec)
	rec.Provenance.Confidence = anime.Confidence([]float64{rec.Quality.Score})
	return rec
}

func mapStatus(s string) anime.Status {
	switch strings.ToLower(s) {
	case "currently airing":
		return anime.StatusAiring
	case "finished airing":
		return anime.StatusFinished
	case "not yet aired":
		return anime.StatusUpcoming
	default:
		return anime.StatusUnknown
	}
}

func mapType(s string) anime.Type {
	switch strings.ToLower(s) {
	case "tv":
		return anime.TypeTV
	case "movie":
		return anime.TypeMovie
	case "ova":
		return anime.TypeOVA
	case "ona":
		return anime.TypeONA
	case "special", "tv special":
		return anime.TypeSpecial
	case "music":
		return anime.TypeMusic
	default:
		return anime.TypeUnknown
	}
}

// mapRating keeps the short code before Jikan's descriptive suffix, e.g.
// "R - 17+ (violence & profanity)" becomes "R".
func mapRating(s string) string {
	if s == "" {
		return ""
	}
	code, _, _ := strings.Cut(s, " - ")
	return strings.TrimSpace(code)
}

// parseDuration extracts the leading minute count from strings like
// "24 min per ep" or "1 hr 55 min".
func parseDuration(s string) int {
	if s == "" {
		return 0
	}
	total := 0
	fields := strings.Fields(s)
	for i := 0; i+1 < len(fields); i++ {
		n, err := strconv.Atoi(fields[i])
		if err != nil {
			continue
		}
		switch fields[i+1] {
		case "hr", "hr.":
			total += n * 60
		case "min", "min.":
			total += n
		}
	}
	return total
}

// dateOnly trims an ISO timestamp to its date part.
func dateOnly(s string) string {
	if len(s) >= 10 {
		return s[:10]
	}
	return s
}

func names(list []named) []string {
	if len(list) == 0 {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, n := range list {
		if n.Name != "" {
			out = append(out, n.Name)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// normalizeRelationType maps Jikan's human-readable relation labels onto
// the shared uppercase form, e.g. "Side Story" becomes "SIDE_STORY".
func normalizeRelationType(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", "_")
	return strings.ReplaceAll(s, " ", "_")
}

// isNumericID reports whether id is a valid MAL id (all digits).
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
