package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"realhub/internal/authz"
	"realhub/internal/kyc/models"
	"realhub/internal/statemachine"
	id "realhub/pkg/domain"
	"realhub/pkg/platform/sentinel"
	"realhub/pkg/platform/tx"
)

// Postgres persists KYC verifications. Writes join any transaction carried in
// context so the approval side effect on the user row commits atomically.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Postgres) conn(ctx context.Context) dbtx {
	if t, ok := tx.From(ctx); ok {
		return t
	}
	return s.db
}

const kycColumns = `id, user_id, status, submitted_at, reviewed_by, reviewed_at,
	rejection_reason, updated_at, version`

func (s *Postgres) Create(ctx context.Context, v *models.Verification) error {
	_, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO kyc_verifications (`+kycColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		uuid.UUID(v.ID), uuid.UUID(v.UserID), string(v.Status), v.SubmittedAt,
		nullableID(v.ReviewedBy), v.ReviewedAt, v.RejectionReason, v.UpdatedAt, v.Version,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert kyc verification: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, kycID id.KYCID) (*models.Verification, error) {
	row := s.conn(ctx).QueryRowContext(ctx,
		`SELECT `+kycColumns+` FROM kyc_verifications WHERE id = $1`, uuid.UUID(kycID))
	return scanVerification(row)
}

func (s *Postgres) FindByUser(ctx context.Context, userID id.UserID) (*models.Verification, error) {
	row := s.conn(ctx).QueryRowContext(ctx,
		`SELECT `+kycColumns+` FROM kyc_verifications WHERE user_id = $1`, uuid.UUID(userID))
	return scanVerification(row)
}

func (s *Postgres) Update(ctx context.Context, v *models.Verification) error {
	result, err := s.conn(ctx).ExecContext(ctx, `
		UPDATE kyc_verifications SET
			status=$2, submitted_at=$3, reviewed_by=$4, reviewed_at=$5,
			rejection_reason=$6, updated_at=$7, version=version+1
		WHERE id=$1 AND version=$8`,
		uuid.UUID(v.ID), string(v.Status), v.SubmittedAt, nullableID(v.ReviewedBy),
		v.ReviewedAt, v.RejectionReason, v.UpdatedAt, v.Version,
	)
	if err != nil {
		return fmt.Errorf("update kyc verification: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update kyc verification: %w", err)
	}
	if affected == 0 {
		var exists bool
		if err := s.conn(ctx).QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM kyc_verifications WHERE id=$1)`, uuid.UUID(v.ID)).Scan(&exists); err != nil {
			return fmt.Errorf("update kyc verification: %w", err)
		}
		if !exists {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrStaleState
	}
	v.Version++
	return nil
}

func (s *Postgres) List(ctx context.Context, scope authz.Scope, filter Filter) ([]*models.Verification, error) {
	var conditions []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if !scope.All {
		if scope.UserID.IsNil() {
			return nil, nil
		}
		conditions = append(conditions, "user_id = "+arg(uuid.UUID(scope.UserID)))
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = "+arg(string(filter.Status)))
	}

	query := `SELECT ` + kycColumns + ` FROM kyc_verifications`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY submitted_at ASC"

	rows, err := s.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list kyc verifications: %w", err)
	}
	defer rows.Close()

	var out []*models.Verification
	for rows.Next() {
		v, err := scanVerification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVerification(row rowScanner) (*models.Verification, error) {
	var v models.Verification
	var kycID, userID uuid.UUID
	var reviewedBy uuid.NullUUID
	var reviewedAt sql.NullTime
	var status string

	err := row.Scan(&kycID, &userID, &status, &v.SubmittedAt, &reviewedBy,
		&reviewedAt, &v.RejectionReason, &v.UpdatedAt, &v.Version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan kyc verification: %w", err)
	}

	v.ID = id.KYCID(kycID)
	v.UserID = id.UserID(userID)
	v.Status = statemachine.Status(status)
	if reviewedBy.Valid {
		v.ReviewedBy = id.UserID(reviewedBy.UUID)
	}
	if reviewedAt.Valid {
		t := reviewedAt.Time.UTC()
		v.ReviewedAt = &t
	}
	v.SubmittedAt = v.SubmittedAt.UTC()
	v.UpdatedAt = v.UpdatedAt.UTC()
	return &v, nil
}

func nullableID(userID id.UserID) any {
	if userID.IsNil() {
		return nil
	}
	return uuid.UUID(userID)
}

func Schema() string {
	return `
CREATE TABLE IF NOT EXISTS kyc_verifications (
	id UUID PRIMARY KEY,
	user_id UUID NOT NULL UNIQUE,
	status TEXT NOT NULL,
	submitted_at TIMESTAMPTZ NOT NULL,
	reviewed_by UUID,
	reviewed_at TIMESTAMPTZ,
	rejection_reason TEXT NOT NULL DEFAULT '',
	updated_at TIMESTAMPTZ NOT NULL,
	version INT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_kyc_status ON kyc_verifications (status);`
}
