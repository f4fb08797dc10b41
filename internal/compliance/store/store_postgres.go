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
	"realhub/internal/compliance/models"
	"realhub/internal/statemachine"
	id "realhub/pkg/domain"
	"realhub/pkg/platform/sentinel"
	"realhub/pkg/platform/tx"
)

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func conn(ctx context.Context, db *sql.DB) dbtx {
	if t, ok := tx.From(ctx); ok {
		return t
	}
	return db
}

type rowScanner interface {
	Scan(dest ...any) error
}

type RequirementsPostgres struct {
	db *sql.DB
}

func NewRequirementsPostgres(db *sql.DB) *RequirementsPostgres {
	return &RequirementsPostgres{db: db}
}

const requirementColumns = `id, title, description, is_active, created_by, created_at, updated_at, version`

func (s *RequirementsPostgres) Create(ctx context.Context, r *models.Requirement) error {
	_, err := conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO compliance_requirements (`+requirementColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		uuid.UUID(r.ID), r.Title, r.Description, r.Active, uuid.UUID(r.CreatedBy),
		r.CreatedAt, r.UpdatedAt, r.Version,
	)
	if err != nil {
		return fmt.Errorf("insert compliance requirement: %w", err)
	}
	return nil
}

func (s *RequirementsPostgres) FindByID(ctx context.Context, requirementID id.RequirementID) (*models.Requirement, error) {
	row := conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+requirementColumns+` FROM compliance_requirements WHERE id = $1`, uuid.UUID(requirementID))
	return scanRequirement(row)
}

func (s *RequirementsPostgres) Update(ctx context.Context, r *models.Requirement) error {
	result, err := conn(ctx, s.db).ExecContext(ctx, `
		UPDATE compliance_requirements SET
			title=$2, description=$3, is_active=$4, updated_at=$5, version=version+1
		WHERE id=$1 AND version=$6`,
		uuid.UUID(r.ID), r.Title, r.Description, r.Active, r.UpdatedAt, r.Version,
	)
	if err != nil {
		return fmt.Errorf("update compliance requirement: %w", err)
	}
	return finishVersionedWrite(ctx, conn(ctx, s.db), result, "compliance_requirements", uuid.UUID(r.ID), &r.Version)
}

func (s *RequirementsPostgres) List(ctx context.Context, filter RequirementFilter) ([]*models.Requirement, error) {
	query := `SELECT ` + requirementColumns + ` FROM compliance_requirements`
	if filter.ActiveOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := conn(ctx, s.db).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list compliance requirements: %w", err)
	}
	defer rows.Close()

	var out []*models.Requirement
	for rows.Next() {
		r, err := scanRequirement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRequirement(row rowScanner) (*models.Requirement, error) {
	var r models.Requirement
	var requirementID, createdBy uuid.UUID

	err := row.Scan(&requirementID, &r.Title, &r.Description, &r.Active, &createdBy,
		&r.CreatedAt, &r.UpdatedAt, &r.Version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan compliance requirement: %w", err)
	}

	r.ID = id.RequirementID(requirementID)
	r.CreatedBy = id.UserID(createdBy)
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return &r, nil
}

// RecordsPostgres persists compliance records and their checks. Writes join
// any transaction carried in context so a check verdict and the derived record
// status commit together.
type RecordsPostgres struct {
	db *sql.DB
}

func NewRecordsPostgres(db *sql.DB) *RecordsPostgres {
	return &RecordsPostgres{db: db}
}

const recordColumns = `id, property_id, owner_id, compliance_status, reviewed_by, reviewed_at,
	notes, last_inspection_date, next_inspection_date, created_at, updated_at, version`

const checkColumns = `id, property_compliance_id, requirement_id, status, checked_by, checked_at,
	notes, created_at, updated_at, version`

// publicPropertyClause restricts record rows to publicly visible properties.
const publicPropertyClause = `EXISTS (
	SELECT 1 FROM properties p
	WHERE p.id = property_compliance.property_id AND p.status = 'verified' AND p.active)`

func (s *RecordsPostgres) Create(ctx context.Context, r *models.Record) error {
	_, err := conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO property_compliance (`+recordColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		uuid.UUID(r.ID), uuid.UUID(r.PropertyID), uuid.UUID(r.OwnerID), string(r.Status),
		nullableID(r.ReviewedBy), r.ReviewedAt, r.Notes, r.LastInspectionDate,
		r.NextInspectionDate, r.CreatedAt, r.UpdatedAt, r.Version,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert compliance record: %w", err)
	}
	return nil
}

func (s *RecordsPostgres) FindByID(ctx context.Context, complianceID id.ComplianceID) (*models.Record, error) {
	row := conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM property_compliance WHERE id = $1`, uuid.UUID(complianceID))
	return scanRecord(row)
}

func (s *RecordsPostgres) FindByProperty(ctx context.Context, propertyID id.PropertyID) (*models.Record, error) {
	row := conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM property_compliance WHERE property_id = $1`, uuid.UUID(propertyID))
	return scanRecord(row)
}

func (s *RecordsPostgres) Update(ctx context.Context, r *models.Record) error {
	result, err := conn(ctx, s.db).ExecContext(ctx, `
		UPDATE property_compliance SET
			compliance_status=$2, reviewed_by=$3, reviewed_at=$4, notes=$5,
			last_inspection_date=$6, next_inspection_date=$7, updated_at=$8, version=version+1
		WHERE id=$1 AND version=$9`,
		uuid.UUID(r.ID), string(r.Status), nullableID(r.ReviewedBy), r.ReviewedAt,
		r.Notes, r.LastInspectionDate, r.NextInspectionDate, r.UpdatedAt, r.Version,
	)
	if err != nil {
		return fmt.Errorf("update compliance record: %w", err)
	}
	return finishVersionedWrite(ctx, conn(ctx, s.db), result, "property_compliance", uuid.UUID(r.ID), &r.Version)
}

func (s *RecordsPostgres) List(ctx context.Context, scope authz.Scope, filter RecordFilter) ([]*models.Record, error) {
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
			visibility = append(visibility, publicPropertyClause)
		}
		if len(visibility) == 0 {
			return nil, nil
		}
		conditions = append(conditions, "("+strings.Join(visibility, " OR ")+")")
	}
	if filter.Status != "" {
		conditions = append(conditions, "compliance_status = "+arg(string(filter.Status)))
	}
	if !filter.OwnerID.IsNil() {
		conditions = append(conditions, "owner_id = "+arg(uuid.UUID(filter.OwnerID)))
	}

	query := `SELECT ` + recordColumns + ` FROM property_compliance`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"

	rows, err := conn(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list compliance records: %w", err)
	}
	defer rows.Close()

	var out []*models.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *RecordsPostgres) DeleteByProperty(ctx context.Context, propertyID id.PropertyID) error {
	q := conn(ctx, s.db)
	_, err := q.ExecContext(ctx, `
		DELETE FROM property_requirement_checks
		WHERE property_compliance_id IN (SELECT id FROM property_compliance WHERE property_id = $1)`,
		uuid.UUID(propertyID))
	if err != nil {
		return fmt.Errorf("delete requirement checks for property: %w", err)
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM property_compliance WHERE property_id = $1`, uuid.UUID(propertyID)); err != nil {
		return fmt.Errorf("delete compliance record for property: %w", err)
	}
	return nil
}

func (s *RecordsPostgres) CreateCheck(ctx context.Context, c *models.Check) error {
	_, err := conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO property_requirement_checks (`+checkColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		uuid.UUID(c.ID), uuid.UUID(c.ComplianceID), uuid.UUID(c.RequirementID), string(c.Status),
		nullableID(c.CheckedBy), c.CheckedAt, c.Notes, c.CreatedAt, c.UpdatedAt, c.Version,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert requirement check: %w", err)
	}
	return nil
}

func (s *RecordsPostgres) FindCheck(ctx context.Context, checkID id.CheckID) (*models.Check, error) {
	row := conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+checkColumns+` FROM property_requirement_checks WHERE id = $1`, uuid.UUID(checkID))
	return scanCheck(row)
}

func (s *RecordsPostgres) UpdateCheck(ctx context.Context, c *models.Check) error {
	result, err := conn(ctx, s.db).ExecContext(ctx, `
		UPDATE property_requirement_checks SET
			status=$2, checked_by=$3, checked_at=$4, notes=$5, updated_at=$6, version=version+1
		WHERE id=$1 AND version=$7`,
		uuid.UUID(c.ID), string(c.Status), nullableID(c.CheckedBy), c.CheckedAt,
		c.Notes, c.UpdatedAt, c.Version,
	)
	if err != nil {
		return fmt.Errorf("update requirement check: %w", err)
	}
	return finishVersionedWrite(ctx, conn(ctx, s.db), result, "property_requirement_checks", uuid.UUID(c.ID), &c.Version)
}

func (s *RecordsPostgres) ListChecks(ctx context.Context, scope authz.Scope, filter CheckFilter) ([]*models.Check, error) {
	var conditions []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if !scope.All {
		var visibility []string
		if !scope.UserID.IsNil() {
			visibility = append(visibility, "property_compliance.owner_id = "+arg(uuid.UUID(scope.UserID)))
		}
		if scope.PublicOnly {
			visibility = append(visibility, publicPropertyClause)
		}
		if len(visibility) == 0 {
			return nil, nil
		}
		conditions = append(conditions, "("+strings.Join(visibility, " OR ")+")")
	}
	if !filter.ComplianceID.IsNil() {
		conditions = append(conditions, "c.property_compliance_id = "+arg(uuid.UUID(filter.ComplianceID)))
	}
	if !filter.RequirementID.IsNil() {
		conditions = append(conditions, "c.requirement_id = "+arg(uuid.UUID(filter.RequirementID)))
	}
	if filter.Status != "" {
		conditions = append(conditions, "c.status = "+arg(string(filter.Status)))
	}

	query := `SELECT c.id, c.property_compliance_id, c.requirement_id, c.status, c.checked_by,
		c.checked_at, c.notes, c.created_at, c.updated_at, c.version
	FROM property_requirement_checks c
	JOIN property_compliance ON property_compliance.id = c.property_compliance_id`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY c.created_at ASC"

	rows, err := conn(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list requirement checks: %w", err)
	}
	defer rows.Close()

	var out []*models.Check
	for rows.Next() {
		c, err := scanCheck(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanRecord(row rowScanner) (*models.Record, error) {
	var r models.Record
	var complianceID, propertyID, ownerID uuid.UUID
	var reviewedBy uuid.NullUUID
	var reviewedAt, lastInspection, nextInspection sql.NullTime
	var status string

	err := row.Scan(&complianceID, &propertyID, &ownerID, &status, &reviewedBy, &reviewedAt,
		&r.Notes, &lastInspection, &nextInspection, &r.CreatedAt, &r.UpdatedAt, &r.Version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan compliance record: %w", err)
	}

	r.ID = id.ComplianceID(complianceID)
	r.PropertyID = id.PropertyID(propertyID)
	r.OwnerID = id.UserID(ownerID)
	r.Status = models.ComplianceStatus(status)
	if reviewedBy.Valid {
		r.ReviewedBy = id.UserID(reviewedBy.UUID)
	}
	if reviewedAt.Valid {
		t := reviewedAt.Time.UTC()
		r.ReviewedAt = &t
	}
	if lastInspection.Valid {
		t := lastInspection.Time.UTC()
		r.LastInspectionDate = &t
	}
	if nextInspection.Valid {
		t := nextInspection.Time.UTC()
		r.NextInspectionDate = &t
	}
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return &r, nil
}

func scanCheck(row rowScanner) (*models.Check, error) {
	var c models.Check
	var checkID, complianceID, requirementID uuid.UUID
	var checkedBy uuid.NullUUID
	var checkedAt sql.NullTime
	var status string

	err := row.Scan(&checkID, &complianceID, &requirementID, &status, &checkedBy,
		&checkedAt, &c.Notes, &c.CreatedAt, &c.UpdatedAt, &c.Version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan requirement check: %w", err)
	}

	c.ID = id.CheckID(checkID)
	c.ComplianceID = id.ComplianceID(complianceID)
	c.RequirementID = id.RequirementID(requirementID)
	c.Status = statemachine.Status(status)
	if checkedBy.Valid {
		c.CheckedBy = id.UserID(checkedBy.UUID)
	}
	if checkedAt.Valid {
		t := checkedAt.Time.UTC()
		c.CheckedAt = &t
	}
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return &c, nil
}

type ReportsPostgres struct {
	db *sql.DB
}

func NewReportsPostgres(db *sql.DB) *ReportsPostgres {
	return &ReportsPostgres{db: db}
}

const reportColumns = `id, title, description, status, generated_by, created_at, updated_at, version`

func (s *ReportsPostgres) Create(ctx context.Context, r *models.Report) error {
	_, err := conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO compliance_reports (`+reportColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		uuid.UUID(r.ID), r.Title, r.Description, string(r.Status), uuid.UUID(r.GeneratedBy),
		r.CreatedAt, r.UpdatedAt, r.Version,
	)
	if err != nil {
		return fmt.Errorf("insert compliance report: %w", err)
	}
	return nil
}

func (s *ReportsPostgres) FindByID(ctx context.Context, reportID id.ReportID) (*models.Report, error) {
	row := conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+reportColumns+` FROM compliance_reports WHERE id = $1`, uuid.UUID(reportID))
	return scanReport(row)
}

func (s *ReportsPostgres) Update(ctx context.Context, r *models.Report) error {
	result, err := conn(ctx, s.db).ExecContext(ctx, `
		UPDATE compliance_reports SET
			title=$2, description=$3, status=$4, updated_at=$5, version=version+1
		WHERE id=$1 AND version=$6`,
		uuid.UUID(r.ID), r.Title, r.Description, string(r.Status), r.UpdatedAt, r.Version,
	)
	if err != nil {
		return fmt.Errorf("update compliance report: %w", err)
	}
	return finishVersionedWrite(ctx, conn(ctx, s.db), result, "compliance_reports", uuid.UUID(r.ID), &r.Version)
}

func (s *ReportsPostgres) List(ctx context.Context, filter ReportFilter) ([]*models.Report, error) {
	query := `SELECT ` + reportColumns + ` FROM compliance_reports`
	var args []any
	if filter.Status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := conn(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list compliance reports: %w", err)
	}
	defer rows.Close()

	var out []*models.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanReport(row rowScanner) (*models.Report, error) {
	var r models.Report
	var reportID, generatedBy uuid.UUID
	var status string

	err := row.Scan(&reportID, &r.Title, &r.Description, &status, &generatedBy,
		&r.CreatedAt, &r.UpdatedAt, &r.Version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan compliance report: %w", err)
	}

	r.ID = id.ReportID(reportID)
	r.Status = models.ReportStatus(status)
	r.GeneratedBy = id.UserID(generatedBy)
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return &r, nil
}

func nullableID(userID id.UserID) any {
	if userID.IsNil() {
		return nil
	}
	return uuid.UUID(userID)
}

func finishVersionedWrite(ctx context.Context, q dbtx, result sql.Result, table string, rowID uuid.UUID, version *int) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s: %w", table, err)
	}
	if affected == 0 {
		var exists bool
		if err := q.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM `+table+` WHERE id=$1)`, rowID).Scan(&exists); err != nil {
			return fmt.Errorf("update %s: %w", table, err)
		}
		if !exists {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrStaleState
	}
	*version++
	return nil
}

func Schema() string {
	return `
CREATE TABLE IF NOT EXISTS compliance_requirements (
	id UUID PRIMARY KEY,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	created_by UUID NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	version INT NOT NULL
);
CREATE TABLE IF NOT EXISTS property_compliance (
	id UUID PRIMARY KEY,
	property_id UUID NOT NULL UNIQUE,
	owner_id UUID NOT NULL,
	compliance_status TEXT NOT NULL,
	reviewed_by UUID,
	reviewed_at TIMESTAMPTZ,
	notes TEXT NOT NULL DEFAULT '',
	last_inspection_date TIMESTAMPTZ,
	next_inspection_date TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	version INT NOT NULL
);
CREATE TABLE IF NOT EXISTS property_requirement_checks (
	id UUID PRIMARY KEY,
	property_compliance_id UUID NOT NULL REFERENCES property_compliance (id) ON DELETE CASCADE,
	requirement_id UUID NOT NULL,
	status TEXT NOT NULL,
	checked_by UUID,
	checked_at TIMESTAMPTZ,
	notes TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	version INT NOT NULL,
	UNIQUE (property_compliance_id, requirement_id)
);
CREATE TABLE IF NOT EXISTS compliance_reports (
	id UUID PRIMARY KEY,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	generated_by UUID NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	version INT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_property_compliance_owner ON property_compliance (owner_id);
CREATE INDEX IF NOT EXISTS idx_requirement_checks_compliance ON property_requirement_checks (property_compliance_id);`
}
