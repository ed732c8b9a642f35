// Package anilist implements the provider adapter for the AniList GraphQL
// API. The public endpoint needs no authentication.
package anilist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/kitsurai/torii/internal/anime"
	"github.com/kitsurai/torii/internal/provider"
)

const defaultBaseURL = "https://graphql.anilist.co"

// mediaFields is the selection set shared by every query.
const mediaFields = `
id
title { romaji english native }
synonyms
description(asHtml: false)
episodes
status
format
source
duration
seasonYear
startDate { year month day }
endDate { year month day }
genres
averageScore
favourites
isAdult
coverImage { extraLarge large }
bannerImage
trailer { id site }
studios(isMain: true) { nodes { name } }
`

// Adapter implements provider.Adapter for AniList.
type Adapter struct {
	client  *http.Client
	limiter *provider.RateLimiterMap
	logger  *slog.Logger
	baseURL string
}

// New creates an AniList adapter with the default endpoint.
func New(limiter *provider.RateLimiterMap, logger *slog.Logger) *Adapter {
	return NewWithBaseURL(limiter, logger, defaultBaseURL)
}

// NewWithBaseURL creates an AniList adapter with a custom endpoint (for testing).
func NewWithBaseURL(limiter *provider.RateLimiterMap, logger *slog.Logger, baseURL string) *Adapter {
	return &Adapter{
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: limiter,
		logger:  logger.With(slog.String("provider", "anilist")),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Name returns the provider identifier.
func (a *Adapter) Name() provider.Name { return provider.NameAniList }

// Search queries AniList for titles matching the query.
func (a *Adapter) Search(ctx context.Context, query string, limit int) ([]anime.Record, error) {
	if query == "" {
		return nil, nil
	}
	if limit < 1 {
		limit = 10
	}

	q := fmt.Sprintf(`query ($search: String, $perPage: Int) {
  Page(perPage: $perPage) {
    media(search: $search, type: ANIME) { %s }
  }
}`, mediaFields)

	data, err := a.doQuery(ctx, q, map[string]any{"search": query, "perPage": limit})
	if err != nil {
		return nil, err
	}
	if data.Page == nil {
		return nil, &provider.ErrUpstream{Provider: provider.NameAniList, Cause: fmt.Errorf("missing Page in response")}
	}

	records := make([]anime.Record, 0, len(data.Page.Media))
	for i := range data.Page.Media {
		records = append(records, *toRecord(&data.Page.Media[i]))
	}

	a.logger.Debug("search completed",
		slog.String("query", query),
		slog.Int("results", len(records)))

	return records, nil
}

// GetByID fetches one title by its AniList id.
func (a *Adapter) GetByID(ctx context.Context, id string) (*anime.Record, error) {
	mediaID, err := strconv.Atoi(id)
	if err != nil {
		return nil, &provider.ErrNotFound{Provider: provider.NameAniList, ID: id}
	}

	q := fmt.Sprintf(`query ($id: Int) {
  Media(id: $id, type: ANIME) { %s }
}`, mediaFields)

	data, err := a.doQuery(ctx, q, map[string]any{"id": mediaID})
	if err != nil {
		return nil, err
	}
	if data.Media == nil || data.Media.ID == 0 {
		return nil, &provider.ErrNotFound{Provider: provider.NameAniList, ID: id}
	}
	return toRecord(data.Media), nil
}

// GetTop fetches a page of top-scored titles.
func (a *Adapter) GetTop(ctx context.Context, page, limit int) ([]anime.Record, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 25
	}

	q := fmt.Sprintf(`query ($page: Int, $perPage: Int) {
  Page(page: $page, perPage: $perPage) {
    media(type: ANIME, sort: SCORE_DESC) { %s }
  }
}`, mediaFields)

	data, err := a.doQuery(ctx, q, map[string]any{"page": page, "perPage": limit})
	if err != nil {
		return nil, err
	}
	if data.Page == nil {
		return nil, &provider.ErrUpstream{Provider: provider.NameAniList, Cause: fmt.Errorf("missing Page in response")}
	}

	records := make([]anime.Record, 0, len(data.Page.Media))
	for i := range data.Page.Media {
		records = append(records, *toRecord(&data.Page.Media[i]))
	}
	return records, nil
}

// GetSeasonal fetches a page of titles for a broadcast season.
func (a *Adapter) GetSeasonal(ctx context.Context, year int, season provider.Season, page int) ([]anime.Record, error) {
	if page < 1 {
		page = 1
	}

	q := fmt.Sprintf(`query ($page: Int, $season: MediaSeason, $year: Int) {
  Page(page: $page, perPage: 25) {
    media(type: ANIME, season: $season, seasonYear: $year, sort: POPULARITY_DESC) { %s }
  }
}`, mediaFields)

	data, err := a.doQuery(ctx, q, map[string]any{
		"page":   page,
		"season": strings.ToUpper(string(season)),
		"year":   year,
	})
	if err != nil {
		return nil, err
	}
	if data.Page == nil {
		return nil, &provider.ErrUpstream{Provider: provider.NameAniList, Cause: fmt.Errorf("missing Page in response")}
	}

	records := make([]anime.Record, 0, len(data.Page.Media))
	for i := range data.Page.Media {
		records = append(records, *toRecord(&data.Page.Media[i]))
	}
	return records, nil
}

// GetRelations lists relation edges for a title. With deep set, one extra
// hop of nested edges is resolved in the same query, which is what makes
// AniList the preferred source for franchise traversal.
func (a *Adapter) GetRelations(ctx context.Context, id string, deep bool) ([]provider.Relation, error) {
	mediaID, err := strconv.Atoi(id)
	if err != nil {
		return nil, &provider.ErrNotFound{Provider: provider.NameAniList, ID: id}
	}

	nested := ""
	if deep {
		nested = `
relations {
  edges {
    relationType
    node { id type title { romaji } format startDate { year } }
  }
}`
	}
	q := fmt.Sprintf(`query ($id: Int) {
  Media(id: $id, type: ANIME) {
    id
    relations {
      edges {
        relationType
        node { id type title { romaji } format startDate { year } %s }
      }
    }
  }
}`, nested)

	data, err := a.doQuery(ctx, q, map[string]any{"id": mediaID})
	if err != nil {
		return nil, err
	}
	if data.Media == nil {
		return nil, &provider.ErrNotFound{Provider: provider.NameAniList, ID: id}
	}
	return toRelations(data.Media.Relations), nil
}

// doQuery POSTs a GraphQL query and returns the decoded data payload,
// waiting on the shared rate limiter first.
func (a *Adapter) doQuery(ctx context.Context, query string, variables map[string]any) (*graphqlData, error) {
	if err := a.limiter.Wait(ctx, provider.NameAniList); err != nil {
		return nil, &provider.ErrUnavailable{
			Provider: provider.NameAniList,
			Cause:    fmt.Errorf("rate limiter: %w", err),
		}
	}

	payload, err := json.Marshal(graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, &provider.ErrUnavailable{Provider: provider.NameAniList, Cause: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNotFound:
		// AniList reports not-found as a GraphQL error with a 404 status;
		// decode the body either way.
	case http.StatusTooManyRequests:
		return nil, &provider.ErrRateLimited{Provider: provider.NameAniList, RetryAfter: retryAfter(resp)}
	default:
		return nil, &provider.ErrUnavailable{
			Provider: provider.NameAniList,
			Cause:    fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
	if err != nil {
		return nil, &provider.ErrUnavailable{Provider: provider.NameAniList, Cause: err}
	}

	var decoded graphqlResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, &provider.ErrUpstream{Provider: provider.NameAniList, Cause: fmt.Errorf("parsing response: %w", err)}
	}
	for _, gqlErr := range decoded.Errors {
		if gqlErr.Status == http.StatusNotFound {
			return nil, &provider.ErrNotFound{Provider: provider.NameAniList}
		}
	}
	if len(decoded.Errors) > 0 {
		return nil, &provider.ErrUpstream{
			Provider: provider.NameAniList,
			Cause:    fmt.Errorf("graphql: %s", decoded.Errors[0].Message),
		}
	}
	return &decoded.Data, nil
}

func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}

var htmlTagPattern = regexp.MustCompile(`<[^>]+>`)

// stripMarkup removes the HTML tags AniList leaves in descriptions even
// with asHtml disabled (<br>, <i>, source attributions).
func stripMarkup(s string) string {
	s = strings.ReplaceAll(s, "<br>", "\n")
	s = strings.ReplaceAll(s, "<br/>", "\n")
	s = htmlTagPattern.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// toRecord converts an AniList media object into a normalized record with
// provenance and quality assessed.
func toRecord(m *media) *anime.Record {
	main := m.Title.Romaji
	if main == "" {
		main = m.Title.English
	}

	rec := &anime.Record{
		Titles: anime.Titles{
			Main:     main,
			English:  m.Title.English,
			Romaji:   m.Title.Romaji,
			Native:   m.Title.Native,
			Synonyms: m.Synonyms,
		},
		Synopsis:       stripMarkup(m.Description),
		Episodes:       m.Episodes,
		Status:         mapStatus(m.Status),
		Type:           mapFormat(m.Format),
		SourceMaterial: strings.ToLower(strings.ReplaceAll(m.Source, "_", " ")),
		DurationMin:    m.Duration,
		StartYear:      m.SeasonYear,
		AiredFrom:      m.StartDate.String(),
		AiredTo:        m.EndDate.String(),
		Genres:         m.Genres,
		Studios:        studioNames(m),
		Score:          float64(m.AverageScore) / 10,
		Favorites:      m.Favourites,
		ImageURL:       coverURL(m),
		BannerURL:      m.BannerImage,
		TrailerURL:     trailerURL(m),
		ExternalIDs:    map[string]string{"anilist": strconv.Itoa(m.ID)},
		Provenance: anime.Provenance{
			PrimaryProvider: "anilist",
			ProvidersUsed:   []string{"anilist"},
		},
	}
	if m.IsAdult {
		rec.AgeRating = "R+"
	}
	if rec.StartYear == 0 {
		rec.StartYear = m.StartDate.Year
	}

	anime.AssessQuality(rec)
	rec.Provenance.Confidence = anime.Confidence([]float64{rec.Quality.Score})
	return rec
}

func toRelations(conn *relationConnection) []provider.Relation {
	if conn == nil {
		return nil
	}
	var out []provider.Relation
	for _, edge := range conn.Edges {
		if edge.Node.Type != "" && edge.Node.Type != "ANIME" {
			continue
		}
		rel := provider.Relation{
			TargetID:    strconv.Itoa(edge.Node.ID),
			TargetTitle: edge.Node.Title.Romaji,
			Type:        edge.RelationType,
			Format:      edge.Node.Format,
			StartYear:   edge.Node.StartDate.Year,
			Provider:    provider.NameAniList,
			Relations:   toRelations(edge.Node.Relations),
		}
		out = append(out, rel)
	}
	return out
}

func mapStatus(s string) anime.Status {
	switch s {
	case "RELEASING":
		return anime.StatusAiring
	case "FINISHED":
		return anime.StatusFinished
	case "NOT_YET_RELEASED":
		return anime.StatusUpcoming
	default:
		return anime.StatusUnknown
	}
}

func mapFormat(s string) anime.Type {
	switch s {
	case "TV", "TV_SHORT":
		return anime.TypeTV
	case "MOVIE":
		return anime.TypeMovie
	case "OVA":
		return anime.TypeOVA
	case "ONA":
		return anime.TypeONA
	case "SPECIAL":
		return anime.TypeSpecial
	case "MUSIC":
		return anime.TypeMusic
	default:
		return anime.TypeUnknown
	}
}

func studioNames(m *media) []string {
	if len(m.Studios.Nodes) == 0 {
		return nil
	}
	out := make([]string, 0, len(m.Studios.Nodes))
	for _, node := range m.Studios.Nodes {
		if node.Name != "" {
			out = append(out, node.Name)
		}
	}
	return out
}

func coverURL(m *media) string {
	if m.CoverImage.ExtraLarge != "" {
		return m.CoverImage.ExtraLarge
	}
	return m.CoverImage.Large
}

func trailerURL(m *media) string {
	if m.Trailer.ID == "" {
		return ""
	}
	switch m.Trailer.Site {
	case "youtube":
		return "https://www.youtube.com/watch?v=" + m.Trailer.ID
	case "dailymotion":
		return "https://www.dailymotion.com/video/" + m.Trailer.ID
	default:
		return ""
	}
}

// String formats a fuzzy date as YYYY-MM-DD, dropping unknown components.
func (d fuzzyDate) String() string {
	if d.Year == 0 {
		return ""
	}
	if d.Month == 0 {
		return fmt.Sprintf("%04d", d.Year)
	}
	if d.Day == 0 {
		return fmt.Sprintf("%04d-%02d", d.Year, d.Month)
	}
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}
