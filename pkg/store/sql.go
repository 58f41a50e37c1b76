package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/installments/pkg/models"
)

const planColumns = `id, sale_id, customer_id, product_id, total_price, down_payment, number_of_installments, interest_rate, installment_amount, start_date, end_date, status, total_paid, remaining_balance, created_at, updated_at`

// SQLStore implements Storage on top of database/sql. The SQLite and
// PostgreSQL constructors share it and differ only in schema and placeholders.
type SQLStore struct {
	db          *sql.DB
	dollarBinds bool // Rewrite ? placeholders to $n
}

func (s *SQLStore) bind(query string) string {
	if !s.dollarBinds {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// CreatePlan inserts the plan and all of its installments. A nil plan id is
// replaced with a freshly generated one.
func (s *SQLStore) CreatePlan(ctx context.Context, plan *models.InstallmentPlan) error {
	if plan.ID == uuid.Nil {
		plan.ID = uuid.New()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, s.bind(`INSERT INTO plans (`+planColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		plan.ID.String(), plan.SaleID, plan.CustomerID, plan.ProductID,
		plan.TotalPrice, plan.DownPayment, plan.NumberOfInstallments, plan.InterestRate, plan.InstallmentAmount,
		plan.StartDate.UTC(), plan.EndDate.UTC(), string(plan.Status),
		plan.TotalPaid, plan.RemainingBalance, plan.CreatedAt.UTC(), plan.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to create plan: %w", err)
	}

	for i, payment := range plan.Payments {
		_, err = tx.ExecContext(ctx, s.bind(`INSERT INTO installments (plan_id, idx, due_date, amount_due, amount_paid, payment_date, status, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
			plan.ID.String(), i, payment.DueDate.UTC(), payment.AmountDue, payment.AmountPaid,
			nullTime(payment.PaymentDate), string(payment.Status), payment.UpdatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to create installment %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// GetPlan retrieves a plan and its installments by id.
func (s *SQLStore) GetPlan(ctx context.Context, id uuid.UUID) (*models.InstallmentPlan, error) {
	row := s.db.QueryRowContext(ctx, s.bind(`SELECT `+planColumns+` FROM plans WHERE id = ?`), id.String())
	plan, err := scanPlan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPlanNotFound
		}
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	if err := s.loadInstallments(ctx, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// GetPlansByCustomerID retrieves every plan belonging to a customer.
func (s *SQLStore) GetPlansByCustomerID(ctx context.Context, customerID string) ([]*models.InstallmentPlan, error) {
	return s.queryPlans(ctx, `SELECT `+planColumns+` FROM plans WHERE customer_id = ? ORDER BY created_at`, customerID)
}

// GetAllPlans retrieves all plans.
func (s *SQLStore) GetAllPlans(ctx context.Context) ([]*models.InstallmentPlan, error) {
	return s.queryPlans(ctx, `SELECT `+planColumns+` FROM plans ORDER BY created_at`)
}

// GetPlansByStatus retrieves all plans with the given status.
func (s *SQLStore) GetPlansByStatus(ctx context.Context, status models.PlanStatus) ([]*models.InstallmentPlan, error) {
	return s.queryPlans(ctx, `SELECT `+planColumns+` FROM plans WHERE status = ? ORDER BY created_at`, string(status))
}

// GetOverduePlans retrieves plans with at least one overdue installment.
func (s *SQLStore) GetOverduePlans(ctx context.Context) ([]*models.InstallmentPlan, error) {
	return s.queryPlans(ctx, `SELECT `+planColumns+` FROM plans
		WHERE id IN (SELECT plan_id FROM installments WHERE status = ?) ORDER BY created_at`,
		string(models.InstallmentStatusOverdue))
}

// UpdatePlan rewrites the plan row and every installment row in one
// transaction.
func (s *SQLStore) UpdatePlan(ctx context.Context, plan *models.InstallmentPlan) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, s.bind(`UPDATE plans SET sale_id = ?, customer_id = ?, product_id = ?, total_price = ?, down_payment = ?,
		number_of_installments = ?, interest_rate = ?, installment_amount = ?, start_date = ?, end_date = ?, status = ?,
		total_paid = ?, remaining_balance = ?, updated_at = ? WHERE id = ?`),
		plan.SaleID, plan.CustomerID, plan.ProductID, plan.TotalPrice, plan.DownPayment,
		plan.NumberOfInstallments, plan.InterestRate, plan.InstallmentAmount, plan.StartDate.UTC(), plan.EndDate.UTC(), string(plan.Status),
		plan.TotalPaid, plan.RemainingBalance, plan.UpdatedAt.UTC(), plan.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update plan: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrPlanNotFound
	}

	for i, payment := range plan.Payments {
		_, err = tx.ExecContext(ctx, s.bind(`UPDATE installments SET due_date = ?, amount_due = ?, amount_paid = ?, payment_date = ?, status = ?, updated_at = ?
			WHERE plan_id = ? AND idx = ?`),
			payment.DueDate.UTC(), payment.AmountDue, payment.AmountPaid, nullTime(payment.PaymentDate),
			string(payment.Status), payment.UpdatedAt.UTC(), plan.ID.String(), i,
		)
		if err != nil {
			return fmt.Errorf("failed to update installment %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) queryPlans(ctx context.Context, query string, args ...interface{}) ([]*models.InstallmentPlan, error) {
	rows, err := s.db.QueryContext(ctx, s.bind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query plans: %w", err)
	}
	defer rows.Close()

	plans := []*models.InstallmentPlan{}
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan row: %w", err)
		}
		plans = append(plans, plan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	rows.Close()

	for _, plan := range plans {
		if err := s.loadInstallments(ctx, plan); err != nil {
			return nil, err
		}
	}
	return plans, nil
}

func (s *SQLStore) loadInstallments(ctx context.Context, plan *models.InstallmentPlan) error {
	rows, err := s.db.QueryContext(ctx, s.bind(`SELECT due_date, amount_due, amount_paid, payment_date, status, updated_at
		FROM installments WHERE plan_id = ? ORDER BY idx ASC`), plan.ID.String())
	if err != nil {
		return fmt.Errorf("failed to get installments for plan %s: %w", plan.ID, err)
	}
	defer rows.Close()

	plan.Payments = make([]models.InstallmentPayment, 0, plan.NumberOfInstallments)
	for rows.Next() {
		var payment models.InstallmentPayment
		var paymentDate sql.NullTime
		var status string
		if err := rows.Scan(&payment.DueDate, &payment.AmountDue, &payment.AmountPaid, &paymentDate, &status, &payment.UpdatedAt); err != nil {
			return fmt.Errorf("failed to scan installment row: %w", err)
		}
		if paymentDate.Valid {
			t := paymentDate.Time
			payment.PaymentDate = &t
		}
		if payment.Status, err = models.ParseInstallmentStatus(status); err != nil {
			return err
		}
		plan.Payments = append(plan.Payments, payment)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error during rows iteration for plan installments: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPlan(row rowScanner) (*models.InstallmentPlan, error) {
	var plan models.InstallmentPlan
	var idStr, status string
	err := row.Scan(&idStr, &plan.SaleID, &plan.CustomerID, &plan.ProductID,
		&plan.TotalPrice, &plan.DownPayment, &plan.NumberOfInstallments, &plan.InterestRate, &plan.InstallmentAmount,
		&plan.StartDate, &plan.EndDate, &status, &plan.TotalPaid, &plan.RemainingBalance, &plan.CreatedAt, &plan.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if plan.ID, err = uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("invalid plan id %q: %w", idStr, err)
	}
	if plan.Status, err = models.ParsePlanStatus(status); err != nil {
		return nil, err
	}
	return &plan, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
