package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"realhub/internal/authz"
	"realhub/internal/property/models"
	"realhub/internal/statemachine"
	id "realhub/pkg/domain"
	"realhub/pkg/platform/sentinel"
)

// Postgres persists properties in PostgreSQL using optimistic version checks.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const propertyColumns = `id, owner_id, title, description, price, property_type, listing_type,
	address, city, state, bedrooms, bathrooms, size_sqm, amenities, status,
	rejection_reason, verified_by, verified_at, featured, active, created_at, updated_at, version`

func (s *Postgres) Create(ctx context.Context, p *models.Property) error {
	var verifiedBy any
	if !p.VerifiedBy.IsNil() {
		verifiedBy = uuid.UUID(p.VerifiedBy)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO properties (`+propertyColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)`,
		uuid.UUID(p.ID), uuid.UUID(p.OwnerID), p.Title, p.Description, p.Price.StringFixed(2),
		string(p.PropertyType), string(p.ListingType), p.Address, p.City, p.State,
		p.Bedrooms, p.Bathrooms, p.SizeSqm.StringFixed(2), pq.Array(p.Amenities), string(p.Status),
		p.RejectionReason, verifiedBy, p.VerifiedAt, p.Featured, p.Active,
		p.CreatedAt, p.UpdatedAt, p.Version,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert property: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, propertyID id.PropertyID) (*models.Property, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+propertyColumns+` FROM properties WHERE id = $1`, uuid.UUID(propertyID))
	return scanProperty(row)
}

func (s *Postgres) Update(ctx context.Context, p *models.Property) error {
	var verifiedBy any
	if !p.VerifiedBy.IsNil() {
		verifiedBy = uuid.UUID(p.VerifiedBy)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE properties SET
			title=$2, description=$3, price=$4, property_type=$5, listing_type=$6,
			address=$7, city=$8, state=$9, bedrooms=$10, bathrooms=$11, size_sqm=$12,
			amenities=$13, status=$14, rejection_reason=$15, verified_by=$16,
			verified_at=$17, featured=$18, active=$19, updated_at=$20, version=version+1
		WHERE id=$1 AND version=$21`,
		uuid.UUID(p.ID), p.Title, p.Description, p.Price.StringFixed(2),
		string(p.PropertyType), string(p.ListingType), p.Address, p.City, p.State,
		p.Bedrooms, p.Bathrooms, p.SizeSqm.StringFixed(2), pq.Array(p.Amenities),
		string(p.Status), p.RejectionReason, verifiedBy, p.VerifiedAt,
		p.Featured, p.Active, p.UpdatedAt, p.Version,
	)
	if err != nil {
		return fmt.Errorf("update property: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update property: %w", err)
	}
	if affected == 0 {
		// Distinguish a missing row from a lost optimistic write.
		var exists bool
		if err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM properties WHERE id=$1)`, uuid.UUID(p.ID)).Scan(&exists); err != nil {
			return fmt.Errorf("update property: %w", err)
		}
		if !exists {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrStaleState
	}
	p.Version++
	return nil
}

func (s *Postgres) Delete(ctx context.Context, propertyID id.PropertyID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM properties WHERE id=$1`, uuid.UUID(propertyID))
	if err != nil {
		return fmt.Errorf("delete property: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete property: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Postgres) List(ctx context.Context, scope authz.Scope, filter Filter) ([]*models.Property, error) {
	var conditions []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if !scope.All {
		var visibility []string
		if !scope.UserID.IsNil() {
			visibility = append(visibility, "owner_id = "+arg(uuid.UUID(scope.UserID)))
		}
		if scope.PublicOnly {
			visibility = append(visibility, "(status = 'verified' AND active)")
		}
		if len(visibility) == 0 {
			return nil, nil
		}
		conditions = append(conditions, "("+strings.Join(visibility, " OR ")+")")
	}
	if !filter.OwnerID.IsNil() {
		conditions = append(conditions, "owner_id = "+arg(uuid.UUID(filter.OwnerID)))
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = "+arg(string(filter.Status)))
	}
	if filter.PropertyType != "" {
		conditions = append(conditions, "property_type = "+arg(string(filter.PropertyType)))
	}
	if filter.ListingType != "" {
		conditions = append(conditions, "listing_type = "+arg(string(filter.ListingType)))
	}
	if filter.MinPrice != nil {
		conditions = append(conditions, "price >= "+arg(filter.MinPrice.StringFixed(2)))
	}
	if filter.MaxPrice != nil {
		conditions = append(conditions, "price <= "+arg(filter.MaxPrice.StringFixed(2)))
	}
	if filter.Location != "" {
		needle := arg("%" + filter.Location + "%")
		conditions = append(conditions,
			"(address ILIKE "+needle+" OR city ILIKE "+needle+" OR state ILIKE "+needle+")")
	}
	if filter.MinBedrooms > 0 {
		conditions = append(conditions, "bedrooms >= "+arg(filter.MinBedrooms))
	}
	if filter.MinBathrooms > 0 {
		conditions = append(conditions, "bathrooms >= "+arg(filter.MinBathrooms))
	}

	query := `SELECT ` + propertyColumns + ` FROM properties`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list properties: %w", err)
	}
	defer rows.Close()

	var out []*models.Property
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProperty(row rowScanner) (*models.Property, error) {
	var p models.Property
	var propertyID, ownerID uuid.UUID
	var verifiedBy uuid.NullUUID
	var verifiedAt sql.NullTime
	var price, sizeSqm string
	var propertyType, listingType, status string
	var amenities pq.StringArray

	err := row.Scan(&propertyID, &ownerID, &p.Title, &p.Description, &price,
		&propertyType, &listingType, &p.Address, &p.City, &p.State,
		&p.Bedrooms, &p.Bathrooms, &sizeSqm, &amenities, &status,
		&p.RejectionReason, &verifiedBy, &verifiedAt, &p.Featured, &p.Active,
		&p.CreatedAt, &p.UpdatedAt, &p.Version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan property: %w", err)
	}

	p.ID = id.PropertyID(propertyID)
	p.OwnerID = id.UserID(ownerID)
	p.PropertyType = models.PropertyType(propertyType)
	p.ListingType = models.ListingType(listingType)
	p.Status = statemachine.Status(status)
	p.Amenities = []string(amenities)
	if verifiedBy.Valid {
		p.VerifiedBy = id.UserID(verifiedBy.UUID)
	}
	if verifiedAt.Valid {
		t := verifiedAt.Time.UTC()
		p.VerifiedAt = &t
	}
	if p.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("parse price: %w", err)
	}
	if p.SizeSqm, err = decimal.NewFromString(sizeSqm); err != nil {
		return nil, fmt.Errorf("parse size: %w", err)
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

// Schema returns the DDL for the properties table; applied by the integration
// test harness and deployment migrations.
func Schema() string {
	return `
CREATE TABLE IF NOT EXISTS properties (
	id UUID PRIMARY KEY,
	owner_id UUID NOT NULL,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	price NUMERIC(12,2) NOT NULL,
	property_type TEXT NOT NULL,
	listing_type TEXT NOT NULL,
	address TEXT NOT NULL DEFAULT '',
	city TEXT NOT NULL DEFAULT '',
	state TEXT NOT NULL DEFAULT '',
	bedrooms INT NOT NULL DEFAULT 0,
	bathrooms INT NOT NULL DEFAULT 0,
	size_sqm NUMERIC(10,2) NOT NULL DEFAULT 0,
	amenities TEXT[] NOT NULL DEFAULT '{}',
	status TEXT NOT NULL,
	rejection_reason TEXT NOT NULL DEFAULT '',
	verified_by UUID,
	verified_at TIMESTAMPTZ,
	featured BOOLEAN NOT NULL DEFAULT FALSE,
	active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	version INT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_properties_owner ON properties (owner_id);
CREATE INDEX IF NOT EXISTS idx_properties_status ON properties (status);`
}
