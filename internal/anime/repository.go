package anime

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("anime not found")

// ErrDuplicate is returned when an insert collides with an existing
// external id.
var ErrDuplicate = errors.New("anime already exists for external id")

// animeColumns is the ordered column list for SELECT queries.
const animeColumns = `id, title, title_english, title_japanese, title_romaji, title_native,
	synonyms, synopsis, episodes, status, type, source_material,
	duration_minutes, start_year, aired_from, aired_to,
	genres, studios, score, favorites, age_rating,
	image_url, banner_url, trailer_url,
	quality_score, tier, primary_provider, external_ids, providers_used, confidence,
	created_at, updated_at`

// Repository provides catalog persistence backed by SQLite.
type Repository struct {
	db *sql.DB
}

// NewRepository creates an anime repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Save upserts a record keyed by its external ids. If any of the record's
// external ids already belongs to a stored record, that record is updated
// instead of inserting a duplicate. This re-check runs immediately before
// the insert so concurrent ingestion of the same title converges on one row.
func (r *Repository) Save(ctx context.Context, rec *Record) error {
	if existing := r.findByAnyExternalID(ctx, rec.ExternalIDs); existing != nil {
		rec.ID = existing.ID
		rec.CreatedAt = existing.CreatedAt
		return r.Update(ctx, rec)
	}

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO anime (`+animeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, insertArgs(rec)...)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return fmt.Errorf("%w: %v", ErrDuplicate, err)
		}
		return fmt.Errorf("inserting anime: %w", err)
	}
	return nil
}

// Update rewrites an existing record.
func (r *Repository) Update(ctx context.Context, rec *Record) error {
	rec.UpdatedAt = time.Now().UTC()

	result, err := r.db.ExecContext(ctx, `
		UPDATE anime SET
			title = ?, title_english = ?, title_japanese = ?, title_romaji = ?, title_native = ?,
			synonyms = ?, synopsis = ?, episodes = ?, status = ?, type = ?, source_material = ?,
			duration_minutes = ?, start_year = ?, aired_from = ?, aired_to = ?,
			genres = ?, studios = ?, score = ?, favorites = ?, age_rating = ?,
			image_url = ?, banner_url = ?, trailer_url = ?,
			quality_score = ?, tier = ?, primary_provider = ?, external_ids = ?, providers_used = ?, confidence = ?,
			updated_at = ?
		WHERE id = ?
	`,
		rec.Titles.Main, rec.Titles.English, rec.Titles.Japanese, rec.Titles.Romaji, rec.Titles.Native,
		marshalStringSlice(rec.Titles.Synonyms), rec.Synopsis, rec.Episodes, string(rec.Status), string(rec.Type), rec.SourceMaterial,
		rec.DurationMin, rec.StartYear, rec.AiredFrom, rec.AiredTo,
		marshalStringSlice(rec.Genres), marshalStringSlice(rec.Studios), rec.Score, rec.Favorites, rec.AgeRating,
		rec.ImageURL, rec.BannerURL, rec.TrailerURL,
		rec.Quality.Score, string(rec.Tier), rec.Provenance.PrimaryProvider,
		marshalStringMap(rec.ExternalIDs), marshalStringSlice(rec.Provenance.ProvidersUsed), rec.Provenance.Confidence,
		rec.UpdatedAt.Format(time.RFC3339),
		rec.ID,
	)
	if err != nil {
		return fmt.Errorf("updating anime: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, rec.ID)
	}
	return nil
}

// FindByID retrieves a record by primary key.
func (r *Repository) FindByID(ctx context.Context, id string) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+animeColumns+` FROM anime WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting anime by id: %w", err)
	}
	return rec, nil
}

// FindByExternalID retrieves a record by a provider-specific id. Returns
// (nil, nil) when absent.
func (r *Repository) FindByExternalID(ctx context.Context, provider, id string) (*Record, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+animeColumns+` FROM anime WHERE json_extract(external_ids, '$.' || ?) = ?`,
		provider, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting anime by %s id: %w", provider, err)
	}
	return rec, nil
}

// FindByTitleVariations retrieves a record whose main title, any variant, or
// any synonym matches the given title case-insensitively. Returns (nil, nil)
// when absent.
func (r *Repository) FindByTitleVariations(ctx context.Context, title string) (*Record, error) {
	lowered := strings.ToLower(strings.TrimSpace(title))
	if lowered == "" {
		return nil, nil
	}
	row := r.db.QueryRowContext(ctx, `
		SELECT `+animeColumns+` FROM anime
		WHERE lower(title) = ? OR lower(title_english) = ? OR lower(title_romaji) = ?
			OR lower(title_japanese) = ? OR lower(title_native) = ?
			OR lower(synonyms) LIKE ? ESCAPE '\'
		LIMIT 1
	`, lowered, lowered, lowered, lowered, lowered, `%"`+escapeLike(lowered)+`"%`)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting anime by title variation: %w", err)
	}
	return rec, nil
}

// Search finds records by title substring match, best quality first.
func (r *Repository) Search(ctx context.Context, query string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+animeColumns+` FROM anime
		WHERE lower(title) LIKE ? ESCAPE '\' OR lower(title_english) LIKE ? ESCAPE '\'
			OR lower(title_romaji) LIKE ? ESCAPE '\'
		ORDER BY quality_score DESC, title
		LIMIT ?
	`, pattern, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("searching anime: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	return collectRecords(rows)
}

// GetAll returns a page of records ordered by title.
func (r *Repository) GetAll(ctx context.Context, offset, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+animeColumns+` FROM anime ORDER BY title LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing anime: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	return collectRecords(rows)
}

// Delete removes a record by id.
func (r *Repository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM anime WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting anime: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// findByAnyExternalID returns the first stored record sharing any of the
// given external ids, or nil.
func (r *Repository) findByAnyExternalID(ctx context.Context, ids map[string]string) *Record {
	for provider, id := range ids {
		if id == "" {
			continue
		}
		rec, err := r.FindByExternalID(ctx, provider, id)
		if err == nil && rec != nil {
			return rec
		}
	}
	return nil
}

func insertArgs(rec *Record) []any {
	return []any{
		rec.ID, rec.Titles.Main, rec.Titles.English, rec.Titles.Japanese, rec.Titles.Romaji, rec.Titles.Native,
		marshalStringSlice(rec.Titles.Synonyms), rec.Synopsis, rec.Episodes, string(rec.Status), string(rec.Type), rec.SourceMaterial,
		rec.DurationMin, rec.StartYear, rec.AiredFrom, rec.AiredTo,
		marshalStringSlice(rec.Genres), marshalStringSlice(rec.Studios), rec.Score, rec.Favorites, rec.AgeRating,
		rec.ImageURL, rec.BannerURL, rec.TrailerURL,
		rec.Quality.Score, string(rec.Tier), rec.Provenance.PrimaryProvider,
		marshalStringMap(rec.ExternalIDs), marshalStringSlice(rec.Provenance.ProvidersUsed), rec.Provenance.Confidence,
		rec.CreatedAt.Format(time.RFC3339), rec.UpdatedAt.Format(time.RFC3339),
	}
}

// scanRecord scans a database row into a Record.
func scanRecord(row interface{ Scan(...any) error }) (*Record, error) {
	var rec Record
	var synonyms, genres, studios, externalIDs, providersUsed string
	var status, mediaType, tier string
	var createdAt, updatedAt string

	err := row.Scan(
		&rec.ID, &rec.Titles.Main, &rec.Titles.English, &rec.Titles.Japanese, &rec.Titles.Romaji, &rec.Titles.Native,
		&synonyms, &rec.Synopsis, &rec.Episodes, &status, &mediaType, &rec.SourceMaterial,
		&rec.DurationMin, &rec.StartYear, &rec.AiredFrom, &rec.AiredTo,
		&genres, &studios, &rec.Score, &rec.Favorites, &rec.AgeRating,
		&rec.ImageURL, &rec.BannerURL, &rec.TrailerURL,
		&rec.Quality.Score, &tier, &rec.Provenance.PrimaryProvider, &externalIDs, &providersUsed, &rec.Provenance.Confidence,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Titles.Synonyms = unmarshalStringSlice(synonyms)
	rec.Genres = unmarshalStringSlice(genres)
	rec.Studios = unmarshalStringSlice(studios)
	rec.Status = Status(status)
	rec.Type = Type(mediaType)
	rec.Tier = Tier(tier)
	rec.ExternalIDs = unmarshalStringMap(externalIDs)
	rec.Provenance.ProvidersUsed = unmarshalStringSlice(providersUsed)
	rec.CreatedAt = parseTime(createdAt)
	rec.UpdatedAt = parseTime(updatedAt)

	return &rec, nil
}

func collectRecords(rows *sql.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning anime row: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// escapeLike backslash-escapes LIKE wildcards so user input matches
// literally. Queries using it must carry ESCAPE '\'.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	return strings.ReplaceAll(s, "_", `\_`)
}

// parseTime parses RFC3339 or the SQLite datetime format.
func parseTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t
	}
	return time.Time{}
}
