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
	"realhub/internal/billing/models"
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

// PaymentsPostgres persists payments. Writes join any transaction carried in
// context so settlement commits atomically with the invoice cascade.
type PaymentsPostgres struct {
	db *sql.DB
}

func NewPaymentsPostgres(db *sql.DB) *PaymentsPostgres {
	return &PaymentsPostgres{db: db}
}

const paymentColumns = `id, property_id, payer_id, receiver_id, amount, payment_type,
	payment_method, transaction_id, reference, status, created_at, updated_at,
	completed_at, version`

func (s *PaymentsPostgres) Create(ctx context.Context, p *models.Payment) error {
	_, err := conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO payments (`+paymentColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		uuid.UUID(p.ID), uuid.UUID(p.PropertyID), uuid.UUID(p.PayerID), uuid.UUID(p.ReceiverID),
		p.Amount.StringFixed(2), string(p.Type), string(p.Method), p.TransactionID,
		p.Reference, string(p.Status), p.CreatedAt, p.UpdatedAt, p.CompletedAt, p.Version,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (s *PaymentsPostgres) FindByID(ctx context.Context, paymentID id.PaymentID) (*models.Payment, error) {
	row := conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1`, uuid.UUID(paymentID))
	return scanPayment(row)
}

func (s *PaymentsPostgres) Update(ctx context.Context, p *models.Payment) error {
	result, err := conn(ctx, s.db).ExecContext(ctx, `
		UPDATE payments SET
			status=$2, transaction_id=$3, updated_at=$4, completed_at=$5, version=version+1
		WHERE id=$1 AND version=$6`,
		uuid.UUID(p.ID), string(p.Status), p.TransactionID, p.UpdatedAt, p.CompletedAt, p.Version,
	)
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	return finishVersionedWrite(ctx, conn(ctx, s.db), result, "payments", uuid.UUID(p.ID), &p.Version)
}

func (s *PaymentsPostgres) List(ctx context.Context, scope authz.Scope, filter PaymentFilter) ([]*models.Payment, error) {
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
		party := arg(uuid.UUID(scope.UserID))
		conditions = append(conditions, "(payer_id = "+party+" OR receiver_id = "+party+")")
	}
	if !filter.PropertyID.IsNil() {
		conditions = append(conditions, "property_id = "+arg(uuid.UUID(filter.PropertyID)))
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = "+arg(string(filter.Status)))
	}

	query := `SELECT ` + paymentColumns + ` FROM payments`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"

	rows, err := conn(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var out []*models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPayment(row rowScanner) (*models.Payment, error) {
	var p models.Payment
	var paymentID, propertyID, payerID, receiverID uuid.UUID
	var amount, paymentType, method, status string
	var completedAt sql.NullTime

	err := row.Scan(&paymentID, &propertyID, &payerID, &receiverID, &amount,
		&paymentType, &method, &p.TransactionID, &p.Reference, &status,
		&p.CreatedAt, &p.UpdatedAt, &completedAt, &p.Version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan payment: %w", err)
	}

	p.ID = id.PaymentID(paymentID)
	p.PropertyID = id.PropertyID(propertyID)
	p.PayerID = id.UserID(payerID)
	p.ReceiverID = id.UserID(receiverID)
	p.Type = models.PaymentType(paymentType)
	p.Method = models.PaymentMethod(method)
	p.Status = statemachine.Status(status)
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		p.CompletedAt = &t
	}
	if p.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

// InvoicesPostgres persists invoices; writes join any transaction in context.
type InvoicesPostgres struct {
	db *sql.DB
}

func NewInvoicesPostgres(db *sql.DB) *InvoicesPostgres {
	return &InvoicesPostgres{db: db}
}

const invoiceColumns = `id, property_id, user_id, payment_id, invoice_number, amount,
	description, status, due_date, created_at, updated_at, version`

func (s *InvoicesPostgres) Create(ctx context.Context, i *models.Invoice) error {
	_, err := conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO invoices (`+invoiceColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		uuid.UUID(i.ID), uuid.UUID(i.PropertyID), uuid.UUID(i.UserID), nullablePaymentID(i.PaymentID),
		i.InvoiceNumber, i.Amount.StringFixed(2), i.Description, string(i.Status),
		i.DueDate, i.CreatedAt, i.UpdatedAt, i.Version,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert invoice: %w", err)
	}
	return nil
}

func (s *InvoicesPostgres) FindByID(ctx context.Context, invoiceID id.InvoiceID) (*models.Invoice, error) {
	row := conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, uuid.UUID(invoiceID))
	return scanInvoice(row)
}

func (s *InvoicesPostgres) FindByPayment(ctx context.Context, paymentID id.PaymentID) (*models.Invoice, error) {
	row := conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE payment_id = $1`, uuid.UUID(paymentID))
	return scanInvoice(row)
}

func (s *InvoicesPostgres) Update(ctx context.Context, i *models.Invoice) error {
	result, err := conn(ctx, s.db).ExecContext(ctx, `
		UPDATE invoices SET
			payment_id=$2, status=$3, updated_at=$4, version=version+1
		WHERE id=$1 AND version=$5`,
		uuid.UUID(i.ID), nullablePaymentID(i.PaymentID), string(i.Status), i.UpdatedAt, i.Version,
	)
	if err != nil {
		return fmt.Errorf("update invoice: %w", err)
	}
	return finishVersionedWrite(ctx, conn(ctx, s.db), result, "invoices", uuid.UUID(i.ID), &i.Version)
}

func (s *InvoicesPostgres) List(ctx context.Context, scope authz.Scope, filter InvoiceFilter) ([]*models.Invoice, error) {
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
	if !filter.PropertyID.IsNil() {
		conditions = append(conditions, "property_id = "+arg(uuid.UUID(filter.PropertyID)))
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = "+arg(string(filter.Status)))
	}

	query := `SELECT ` + invoiceColumns + ` FROM invoices`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"

	rows, err := conn(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	defer rows.Close()

	var out []*models.Invoice
	for rows.Next() {
		i, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

func scanInvoice(row rowScanner) (*models.Invoice, error) {
	var i models.Invoice
	var invoiceID, propertyID, userID uuid.UUID
	var paymentID uuid.NullUUID
	var amount, status string

	err := row.Scan(&invoiceID, &propertyID, &userID, &paymentID, &i.InvoiceNumber,
		&amount, &i.Description, &status, &i.DueDate, &i.CreatedAt, &i.UpdatedAt, &i.Version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan invoice: %w", err)
	}

	i.ID = id.InvoiceID(invoiceID)
	i.PropertyID = id.PropertyID(propertyID)
	i.UserID = id.UserID(userID)
	if paymentID.Valid {
		i.PaymentID = id.PaymentID(paymentID.UUID)
	}
	i.Status = statemachine.Status(status)
	if i.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	i.DueDate = i.DueDate.UTC()
	i.CreatedAt = i.CreatedAt.UTC()
	i.UpdatedAt = i.UpdatedAt.UTC()
	return &i, nil
}

// PlansPostgres persists payment plans.
type PlansPostgres struct {
	db *sql.DB
}

func NewPlansPostgres(db *sql.DB) *PlansPostgres {
	return &PlansPostgres{db: db}
}

const planColumns = `id, property_id, owner_id, name, description, frequency,
	duration_months, initial_payment_percentage, is_active, created_at, updated_at, version`

func (s *PlansPostgres) Create(ctx context.Context, p *models.Plan) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payment_plans (`+planColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		uuid.UUID(p.ID), uuid.UUID(p.PropertyID), uuid.UUID(p.OwnerID), p.Name, p.Description,
		string(p.Frequency), p.DurationMonths, p.InitialPaymentPercentage.StringFixed(2),
		p.Active, p.CreatedAt, p.UpdatedAt, p.Version,
	)
	if err != nil {
		return fmt.Errorf("insert payment plan: %w", err)
	}
	return nil
}

func (s *PlansPostgres) FindByID(ctx context.Context, planID id.PlanID) (*models.Plan, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+planColumns+` FROM payment_plans WHERE id = $1`, uuid.UUID(planID))
	return scanPlan(row)
}

func (s *PlansPostgres) Update(ctx context.Context, p *models.Plan) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE payment_plans SET
			name=$2, description=$3, frequency=$4, duration_months=$5,
			initial_payment_percentage=$6, is_active=$7, updated_at=$8, version=version+1
		WHERE id=$1 AND version=$9`,
		uuid.UUID(p.ID), p.Name, p.Description, string(p.Frequency), p.DurationMonths,
		p.InitialPaymentPercentage.StringFixed(2), p.Active, p.UpdatedAt, p.Version,
	)
	if err != nil {
		return fmt.Errorf("update payment plan: %w", err)
	}
	return finishVersionedWrite(ctx, s.db, result, "payment_plans", uuid.UUID(p.ID), &p.Version)
}

func (s *PlansPostgres) List(ctx context.Context, filter PlanFilter) ([]*models.Plan, error) {
	var conditions []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if !filter.PropertyID.IsNil() {
		conditions = append(conditions, "property_id = "+arg(uuid.UUID(filter.PropertyID)))
	}
	if filter.ActiveOnly {
		conditions = append(conditions, "is_active")
	}

	query := `SELECT ` + planColumns + ` FROM payment_plans`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list payment plans: %w", err)
	}
	defer rows.Close()

	var out []*models.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPlan(row rowScanner) (*models.Plan, error) {
	var p models.Plan
	var planID, propertyID, ownerID uuid.UUID
	var frequency, initialPct string

	err := row.Scan(&planID, &propertyID, &ownerID, &p.Name, &p.Description, &frequency,
		&p.DurationMonths, &initialPct, &p.Active, &p.CreatedAt, &p.UpdatedAt, &p.Version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan payment plan: %w", err)
	}

	p.ID = id.PlanID(planID)
	p.PropertyID = id.PropertyID(propertyID)
	p.OwnerID = id.UserID(ownerID)
	p.Frequency = models.Frequency(frequency)
	if p.InitialPaymentPercentage, err = decimal.NewFromString(initialPct); err != nil {
		return nil, fmt.Errorf("parse initial payment percentage: %w", err)
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

// SubscriptionsPostgres persists plan enrollments.
type SubscriptionsPostgres struct {
	db *sql.DB
}

func NewSubscriptionsPostgres(db *sql.DB) *SubscriptionsPostgres {
	return &SubscriptionsPostgres{db: db}
}

const subscriptionColumns = `id, user_id, plan_id, start_date, end_date, status,
	created_at, updated_at, version`

func (s *SubscriptionsPostgres) Create(ctx context.Context, sub *models.Subscription) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subscriptions (`+subscriptionColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		uuid.UUID(sub.ID), uuid.UUID(sub.UserID), uuid.UUID(sub.PlanID),
		sub.StartDate, sub.EndDate, string(sub.Status), sub.CreatedAt, sub.UpdatedAt, sub.Version,
	)
	if err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}
	return nil
}

func (s *SubscriptionsPostgres) FindByID(ctx context.Context, subscriptionID id.SubscriptionID) (*models.Subscription, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1`, uuid.UUID(subscriptionID))
	return scanSubscription(row)
}

func (s *SubscriptionsPostgres) Update(ctx context.Context, sub *models.Subscription) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE subscriptions SET status=$2, updated_at=$3, version=version+1
		WHERE id=$1 AND version=$4`,
		uuid.UUID(sub.ID), string(sub.Status), sub.UpdatedAt, sub.Version,
	)
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	return finishVersionedWrite(ctx, s.db, result, "subscriptions", uuid.UUID(sub.ID), &sub.Version)
}

func (s *SubscriptionsPostgres) List(ctx context.Context, scope authz.Scope, filter SubscriptionFilter) ([]*models.Subscription, error) {
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
	if !filter.PlanID.IsNil() {
		conditions = append(conditions, "plan_id = "+arg(uuid.UUID(filter.PlanID)))
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = "+arg(string(filter.Status)))
	}

	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var out []*models.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func scanSubscription(row rowScanner) (*models.Subscription, error) {
	var sub models.Subscription
	var subscriptionID, userID, planID uuid.UUID
	var status string

	err := row.Scan(&subscriptionID, &userID, &planID, &sub.StartDate, &sub.EndDate,
		&status, &sub.CreatedAt, &sub.UpdatedAt, &sub.Version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan subscription: %w", err)
	}

	sub.ID = id.SubscriptionID(subscriptionID)
	sub.UserID = id.UserID(userID)
	sub.PlanID = id.PlanID(planID)
	sub.Status = statemachine.Status(status)
	sub.StartDate = sub.StartDate.UTC()
	sub.EndDate = sub.EndDate.UTC()
	sub.CreatedAt = sub.CreatedAt.UTC()
	sub.UpdatedAt = sub.UpdatedAt.UTC()
	return &sub, nil
}

func nullablePaymentID(paymentID id.PaymentID) any {
	if paymentID.IsNil() {
		return nil
	}
	return uuid.UUID(paymentID)
}

// finishVersionedWrite resolves the zero-rows case of an optimistic update
// into ErrNotFound or ErrStaleState and bumps the caller's version on success.
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
CREATE TABLE IF NOT EXISTS payments (
	id UUID PRIMARY KEY,
	property_id UUID NOT NULL,
	payer_id UUID NOT NULL,
	receiver_id UUID NOT NULL,
	amount NUMERIC(12,2) NOT NULL,
	payment_type TEXT NOT NULL,
	payment_method TEXT NOT NULL,
	transaction_id TEXT NOT NULL DEFAULT '',
	reference TEXT NOT NULL UNIQUE,
	status TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ,
	version INT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_payments_payer ON payments (payer_id);
CREATE INDEX IF NOT EXISTS idx_payments_receiver ON payments (receiver_id);
CREATE TABLE IF NOT EXISTS invoices (
	id UUID PRIMARY KEY,
	property_id UUID NOT NULL,
	user_id UUID NOT NULL,
	payment_id UUID,
	invoice_number TEXT NOT NULL UNIQUE,
	amount NUMERIC(12,2) NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	due_date TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	version INT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_invoices_user ON invoices (user_id);
CREATE TABLE IF NOT EXISTS payment_plans (
	id UUID PRIMARY KEY,
	property_id UUID NOT NULL,
	owner_id UUID NOT NULL,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	frequency TEXT NOT NULL,
	duration_months INT NOT NULL,
	initial_payment_percentage NUMERIC(5,2) NOT NULL,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	version INT NOT NULL
);
CREATE TABLE IF NOT EXISTS subscriptions (
	id UUID PRIMARY KEY,
	user_id UUID NOT NULL,
	plan_id UUID NOT NULL,
	start_date TIMESTAMPTZ NOT NULL,
	end_date TIMESTAMPTZ NOT NULL,
	status TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	version INT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_subscriptions_user ON subscriptions (user_id);`
}
