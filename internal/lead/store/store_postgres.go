package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"realhub/internal/authz"
	"realhub/internal/lead/models"
	"realhub/internal/statemachine"
	id "realhub/pkg/domain"
	"realhub/pkg/platform/sentinel"
)

type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const leadColumns = `id, property_id, user_id, owner_id, status, message,
	created_at, updated_at, version`

func (s *Postgres) Create(ctx context.Context, l *models.Lead) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO leads (`+leadColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		uuid.UUID(l.ID), uuid.UUID(l.PropertyID), uuid.UUID(l.UserID), uuid.UUID(l.OwnerID),
		string(l.Status), l.Message, l.CreatedAt, l.UpdatedAt, l.Version,
	)
	if err != nil {
		return fmt.Errorf("insert lead: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, leadID id.LeadID) (*models.Lead, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE id = $1`, uuid.UUID(leadID))
	return scanLead(row)
}

func (s *Postgres) Update(ctx context.Context, l *models.Lead) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE leads SET status=$2, message=$3, updated_at=$4, version=version+1
		WHERE id=$1 AND version=$5`,
		uuid.UUID(l.ID), string(l.Status), l.Message, l.UpdatedAt, l.Version,
	)
	if err != nil {
		return fmt.Errorf("update lead: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update lead: %w", err)
	}
	if affected == 0 {
		var exists bool
		if err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM leads WHERE id=$1)`, uuid.UUID(l.ID)).Scan(&exists); err != nil {
			return fmt.Errorf("update lead: %w", err)
		}
		if !exists {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrStaleState
	}
	l.Version++
	return nil
}

func (s *Postgres) List(ctx context.Context, scope authz.Scope, filter Filter) ([]*models.Lead, error) {
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
		participant := arg(uuid.UUID(scope.UserID))
		conditions = append(conditions, "(user_id = "+participant+" OR owner_id = "+participant+")")
	}
	if !filter.PropertyID.IsNil() {
		conditions = append(conditions, "property_id = "+arg(uuid.UUID(filter.PropertyID)))
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = "+arg(string(filter.Status)))
	}

	query := `SELECT ` + leadColumns + ` FROM leads`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	defer rows.Close()

	var out []*models.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Postgres) DeleteByProperty(ctx context.Context, propertyID id.PropertyID) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM lead_messages WHERE lead_id IN (SELECT id FROM leads WHERE property_id = $1)`,
		uuid.UUID(propertyID))
	if err != nil {
		return fmt.Errorf("delete lead messages: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM leads WHERE property_id = $1`, uuid.UUID(propertyID)); err != nil {
		return fmt.Errorf("delete leads: %w", err)
	}
	return nil
}

func (s *Postgres) CreateMessage(ctx context.Context, m *models.Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO lead_messages (id, lead_id, sender_id, receiver_id, content, is_read, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		uuid.UUID(m.ID), uuid.UUID(m.LeadID), uuid.UUID(m.SenderID), uuid.UUID(m.ReceiverID),
		m.Content, m.Read, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert lead message: %w", err)
	}
	return nil
}

func (s *Postgres) FindMessage(ctx context.Context, messageID id.MessageID) (*models.Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, lead_id, sender_id, receiver_id, content, is_read, created_at
		FROM lead_messages WHERE id = $1`, uuid.UUID(messageID))
	return scanMessage(row)
}

func (s *Postgres) UpdateMessage(ctx context.Context, m *models.Message) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE lead_messages SET is_read=$2 WHERE id=$1`, uuid.UUID(m.ID), m.Read)
	if err != nil {
		return fmt.Errorf("update lead message: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update lead message: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Postgres) ListMessages(ctx context.Context, leadID id.LeadID) ([]*models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, lead_id, sender_id, receiver_id, content, is_read, created_at
		FROM lead_messages WHERE lead_id = $1 ORDER BY created_at ASC`, uuid.UUID(leadID))
	if err != nil {
		return nil, fmt.Errorf("list lead messages: %w", err)
	}
	defer rows.Close()

	var out []*models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLead(row rowScanner) (*models.Lead, error) {
	var l models.Lead
	var leadID, propertyID, userID, ownerID uuid.UUID
	var status string

	err := row.Scan(&leadID, &propertyID, &userID, &ownerID, &status, &l.Message,
		&l.CreatedAt, &l.UpdatedAt, &l.Version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan lead: %w", err)
	}

	l.ID = id.LeadID(leadID)
	l.PropertyID = id.PropertyID(propertyID)
	l.UserID = id.UserID(userID)
	l.OwnerID = id.UserID(ownerID)
	l.Status = statemachine.Status(status)
	l.CreatedAt = l.CreatedAt.UTC()
	l.UpdatedAt = l.UpdatedAt.UTC()
	return &l, nil
}

func scanMessage(row rowScanner) (*models.Message, error) {
	var m models.Message
	var messageID, leadID, senderID, receiverID uuid.UUID

	err := row.Scan(&messageID, &leadID, &senderID, &receiverID, &m.Content, &m.Read, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan lead message: %w", err)
	}

	m.ID = id.MessageID(messageID)
	m.LeadID = id.LeadID(leadID)
	m.SenderID = id.UserID(senderID)
	m.ReceiverID = id.UserID(receiverID)
	m.CreatedAt = m.CreatedAt.UTC()
	return &m, nil
}

func Schema() string {
	return `
CREATE TABLE IF NOT EXISTS leads (
	id UUID PRIMARY KEY,
	property_id UUID NOT NULL,
	user_id UUID NOT NULL,
	owner_id UUID NOT NULL,
	status TEXT NOT NULL,
	message TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	version INT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_leads_property ON leads (property_id);
CREATE INDEX IF NOT EXISTS idx_leads_user ON leads (user_id);
CREATE INDEX IF NOT EXISTS idx_leads_owner ON leads (owner_id);
CREATE TABLE IF NOT EXISTS lead_messages (
	id UUID PRIMARY KEY,
	lead_id UUID NOT NULL REFERENCES leads(id) ON DELETE CASCADE,
	sender_id UUID NOT NULL,
	receiver_id UUID NOT NULL,
	content TEXT NOT NULL,
	is_read BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_lead_messages_lead ON lead_messages (lead_id);`
}
