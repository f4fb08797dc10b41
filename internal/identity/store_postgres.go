package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	id "realhub/pkg/domain"
	"realhub/pkg/platform/sentinel"
	"realhub/pkg/platform/tx"
)

// PostgresStore persists users. Writes join any transaction carried in context
// so the KYC review flow can commit the verified flag with the review itself.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) conn(ctx context.Context) dbtx {
	if t, ok := tx.From(ctx); ok {
		return t
	}
	return s.db
}

const userColumns = `id, email, password_hash, full_name, phone_number, address, role, is_verified,
	id_type, id_number, business_name, business_registration_number,
	created_at, updated_at, version`

func (s *PostgresStore) CreateIfEmailAvailable(ctx context.Context, user *User) error {
	_, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		uuid.UUID(user.ID), user.Email, user.PasswordHash, user.FullName, user.PhoneNumber,
		user.Address, string(user.Role), user.Verified, user.IDType, user.IDNumber,
		user.BusinessName, user.BusinessRegistrationNumber,
		user.CreatedAt, user.UpdatedAt, user.Version,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, userID id.UserID) (*User, error) {
	row := s.conn(ctx).QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, uuid.UUID(userID))
	return scanUser(row)
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := s.conn(ctx).QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
	return scanUser(row)
}

func (s *PostgresStore) Update(ctx context.Context, user *User) error {
	result, err := s.conn(ctx).ExecContext(ctx, `
		UPDATE users SET
			email=$2, password_hash=$3, full_name=$4, phone_number=$5, address=$6,
			role=$7, is_verified=$8, id_type=$9, id_number=$10, business_name=$11,
			business_registration_number=$12, updated_at=$13, version=version+1
		WHERE id=$1 AND version=$14`,
		uuid.UUID(user.ID), user.Email, user.PasswordHash, user.FullName, user.PhoneNumber,
		user.Address, string(user.Role), user.Verified, user.IDType, user.IDNumber,
		user.BusinessName, user.BusinessRegistrationNumber, user.UpdatedAt, user.Version,
	)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if affected == 0 {
		var exists bool
		if err := s.conn(ctx).QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM users WHERE id=$1)`, uuid.UUID(user.ID)).Scan(&exists); err != nil {
			return fmt.Errorf("update user: %w", err)
		}
		if !exists {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrStaleState
	}
	user.Version++
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*User, error) {
	rows, err := s.conn(ctx).QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	var user User
	var userID uuid.UUID
	var role string

	err := row.Scan(&userID, &user.Email, &user.PasswordHash, &user.FullName,
		&user.PhoneNumber, &user.Address, &role, &user.Verified, &user.IDType,
		&user.IDNumber, &user.BusinessName, &user.BusinessRegistrationNumber,
		&user.CreatedAt, &user.UpdatedAt, &user.Version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	user.ID = id.UserID(userID)
	user.Role = Role(role)
	user.CreatedAt = user.CreatedAt.UTC()
	user.UpdatedAt = user.UpdatedAt.UTC()
	return &user, nil
}

// Schema returns the DDL for the users table.
func Schema() string {
	return `
CREATE TABLE IF NOT EXISTS users (
	id UUID PRIMARY KEY,
	email TEXT NOT NULL,
	password_hash TEXT NOT NULL DEFAULT '',
	full_name TEXT NOT NULL DEFAULT '',
	phone_number TEXT NOT NULL DEFAULT '',
	address TEXT NOT NULL DEFAULT '',
	role TEXT NOT NULL,
	is_verified BOOLEAN NOT NULL DEFAULT FALSE,
	id_type TEXT NOT NULL DEFAULT '',
	id_number TEXT NOT NULL DEFAULT '',
	business_name TEXT NOT NULL DEFAULT '',
	business_registration_number TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	version INT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users (lower(email));`
}
