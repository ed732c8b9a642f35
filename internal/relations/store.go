package relations

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// edgeColumns is the ordered column list for SELECT queries.
const edgeColumns = `id, anime_id, target_external_id, relation_type, category, provider, created_at`

// Store persists relation edges in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore creates a relation store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Replace swaps the stored edges of one anime for the given set in a single
// transaction, so readers never see a half-written graph.
func (s *Store) Replace(ctx context.Context, animeID string, edges []Edge) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning relations transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM anime_relations WHERE anime_id = ?`, animeID); err != nil {
		return fmt.Errorf("clearing relations: %w", err)
	}

	now := time.Now().UTC()
	for i := range edges {
		edge := &edges[i]
		if edge.ID == "" {
			edge.ID = uuid.New().String()
		}
		edge.AnimeID = animeID
		edge.CreatedAt = now
		_, err := tx.ExecContext(ctx, `
			INSERT INTO anime_relations (`+edgeColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, edge.ID, edge.AnimeID, edge.TargetExternalID, edge.Type,
			string(edge.Category), edge.Provider, edge.CreatedAt.Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("inserting relation edge: %w", err)
		}
	}
	return tx.Commit()
}

// ListByAnime returns the stored edges of one anime, oldest first.
func (s *Store) ListByAnime(ctx context.Context, animeID string) ([]Edge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+edgeColumns+` FROM anime_relations
		WHERE anime_id = ?
		ORDER BY created_at, target_external_id
	`, animeID)
	if err != nil {
		return nil, fmt.Errorf("listing relations: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var edges []Edge
	for rows.Next() {
		var edge Edge
		var category, createdAt string
		if err := rows.Scan(&edge.ID, &edge.AnimeID, &edge.TargetExternalID,
			&edge.Type, &category, &edge.Provider, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning relation edge: %w", err)
		}
		edge.Category = Category(category)
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			edge.CreatedAt = t
		}
		edges = append(edges, edge)
	}
	return edges, rows.Err()
}

// DeleteByAnime removes all edges of one anime.
func (s *Store) DeleteByAnime(ctx context.Context, animeID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM anime_relations WHERE anime_id = ?`, animeID); err != nil {
		return fmt.Errorf("deleting relations: %w", err)
	}
	return nil
}
