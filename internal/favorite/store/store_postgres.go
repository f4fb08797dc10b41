package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"realhub/internal/favorite/models"
	id "realhub/pkg/domain"
	"realhub/pkg/platform/sentinel"
)

type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const favoriteColumns = `id, user_id, property_id, created_at`

func (s *Postgres) Create(ctx context.Context, f *models.Favorite) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO favorites (`+favoriteColumns+`)
		VALUES ($1,$2,$3,$4)`,
		uuid.UUID(f.ID), uuid.UUID(f.UserID), uuid.UUID(f.PropertyID), f.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert favorite: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, favoriteID id.FavoriteID) (*models.Favorite, error) {
	var f models.Favorite
	var fID, userID, propertyID uuid.UUID
	err := s.db.QueryRowContext(ctx,
		`SELECT `+favoriteColumns+` FROM favorites WHERE id = $1`, uuid.UUID(favoriteID),
	).Scan(&fID, &userID, &propertyID, &f.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find favorite: %w", err)
	}
	f.ID = id.FavoriteID(fID)
	f.UserID = id.UserID(userID)
	f.PropertyID = id.PropertyID(propertyID)
	f.CreatedAt = f.CreatedAt.UTC()
	return &f, nil
}

func (s *Postgres) Delete(ctx context.Context, favoriteID id.FavoriteID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM favorites WHERE id = $1`, uuid.UUID(favoriteID))
	if err != nil {
		return fmt.Errorf("delete favorite: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete favorite: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Postgres) ListByUser(ctx context.Context, userID id.UserID) ([]*models.Favorite, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+favoriteColumns+` FROM favorites
		WHERE user_id = $1 ORDER BY created_at DESC`, uuid.UUID(userID))
	if err != nil {
		return nil, fmt.Errorf("list favorites: %w", err)
	}
	defer rows.Close()

	var out []*models.Favorite
	for rows.Next() {
		var f models.Favorite
		var fID, uID, propertyID uuid.UUID
		if err := rows.Scan(&fID, &uID, &propertyID, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan favorite: %w", err)
		}
		f.ID = id.FavoriteID(fID)
		f.UserID = id.UserID(uID)
		f.PropertyID = id.PropertyID(propertyID)
		f.CreatedAt = f.CreatedAt.UTC()
		out = append(out, &f)
	}
	return out, rows.Err()
}

func (s *Postgres) DeleteByProperty(ctx context.Context, propertyID id.PropertyID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM favorites WHERE property_id = $1`, uuid.UUID(propertyID)); err != nil {
		return fmt.Errorf("delete favorites for property: %w", err)
	}
	return nil
}

func Schema() string {
	return `
CREATE TABLE IF NOT EXISTS favorites (
	id UUID PRIMARY KEY,
	user_id UUID NOT NULL,
	property_id UUID NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	UNIQUE (user_id, property_id)
);
CREATE INDEX IF NOT EXISTS idx_favorites_user ON favorites (user_id);
CREATE INDEX IF NOT EXISTS idx_favorites_property ON favorites (property_id);`
}
