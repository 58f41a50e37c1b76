package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/installments/pkg/models"
	"github.com/mcclellann/installments/pkg/store"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Ledger owns the installment plan state machine: plan creation, payment
// application, administrative overrides and the overdue sweep.
type Ledger struct {
	storage store.Storage
	clock   Clock
	log     *logrus.Logger
	locks   *planLocks

	// capOverpayment moves plan totals by the applied (capped) amount
	// instead of the raw payment amount.
	capOverpayment bool
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source.
func WithClock(c Clock) Option {
	return func(l *Ledger) { l.clock = c }
}

// WithLogger sets the logger used for transitions and failures.
func WithLogger(log *logrus.Logger) Option {
	return func(l *Ledger) { l.log = log }
}

// WithCappedOverpayment makes TotalPaid and RemainingBalance track only the
// part of a payment that was applied to the installment. Off by default, in
// which case an overpayment still counts in full toward TotalPaid.
func WithCappedOverpayment(enabled bool) Option {
	return func(l *Ledger) { l.capOverpayment = enabled }
}

// NewLedger creates a new Ledger with a given Storage implementation.
func NewLedger(s store.Storage, opts ...Option) *Ledger {
	l := &Ledger{
		storage: s,
		clock:   SystemClock{},
		log:     logrus.StandardLogger(),
		locks:   newPlanLocks(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// CreatePlanRequest holds the inputs of a new installment plan.
type CreatePlanRequest struct {
	SaleID         string
	CustomerID     string
	ProductID      string
	TotalPrice     decimal.Decimal
	DownPayment    decimal.Decimal
	NumberOfMonths int
	InterestRate   decimal.Decimal // Annual percent
	StartDate      time.Time
}

// Validate checks the request without touching storage.
func (r CreatePlanRequest) Validate() error {
	if r.DownPayment.IsNegative() {
		return validationError("down payment cannot be negative")
	}
	if r.DownPayment.GreaterThan(r.TotalPrice) {
		return validationError("down payment exceeds total price")
	}
	if !r.TotalPrice.Sub(r.DownPayment).IsPositive() {
		return validationError("financed amount must be greater than zero")
	}
	if r.NumberOfMonths <= 0 {
		return validationError("number of months must be greater than zero")
	}
	if r.InterestRate.IsNegative() {
		return validationError("interest rate cannot be negative")
	}
	return nil
}

// CreatePlan validates the request, generates the payment schedule and stores
// the new plan. The down payment counts as already paid.
func (l *Ledger) CreatePlan(ctx context.Context, req CreatePlanRequest) (*models.InstallmentPlan, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := l.clock.Now()
	principal := req.TotalPrice.Sub(req.DownPayment)
	schedule := GenerateSchedule(principal, req.InterestRate, req.NumberOfMonths, req.StartDate)
	for i := range schedule {
		schedule[i].UpdatedAt = now
	}

	plan := &models.InstallmentPlan{
		SaleID:               req.SaleID,
		CustomerID:           req.CustomerID,
		ProductID:            req.ProductID,
		TotalPrice:           req.TotalPrice,
		DownPayment:          req.DownPayment,
		NumberOfInstallments: req.NumberOfMonths,
		InterestRate:         req.InterestRate,
		InstallmentAmount:    schedule[0].AmountDue,
		StartDate:            req.StartDate,
		EndDate:              addMonths(req.StartDate, req.NumberOfMonths),
		Status:               models.PlanStatusActive,
		Payments:             schedule,
		TotalPaid:            req.DownPayment,
		RemainingBalance:     FinancedTotal(principal, req.InterestRate),
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if err := l.storage.CreatePlan(ctx, plan); err != nil {
		l.log.WithError(err).WithField("sale_id", req.SaleID).Error("Failed to store installment plan")
		return nil, fmt.Errorf("failed to store plan: %w", err)
	}

	l.log.WithFields(logrus.Fields{
		"plan_id":            plan.ID,
		"customer_id":        plan.CustomerID,
		"installments":       plan.NumberOfInstallments,
		"installment_amount": plan.InstallmentAmount.StringFixed(2),
	}).Info("Installment plan created")
	return plan, nil
}

// GetPlan retrieves a plan by its ID.
func (l *Ledger) GetPlan(ctx context.Context, id uuid.UUID) (*models.InstallmentPlan, error) {
	return l.loadPlan(ctx, id)
}

// GetAllPlans retrieves all plans.
func (l *Ledger) GetAllPlans(ctx context.Context) ([]*models.InstallmentPlan, error) {
	return l.storage.GetAllPlans(ctx)
}

// GetPlansByCustomerID retrieves the plans of one customer.
func (l *Ledger) GetPlansByCustomerID(ctx context.Context, customerID string) ([]*models.InstallmentPlan, error) {
	return l.storage.GetPlansByCustomerID(ctx, customerID)
}

// GetOverduePlans retrieves plans holding at least one overdue installment.
func (l *Ledger) GetOverduePlans(ctx context.Context) ([]*models.InstallmentPlan, error) {
	return l.storage.GetOverduePlans(ctx)
}

// CheckPayment reports why a payment would be rejected, or nil if it can be
// applied without overpaying. It does not mutate anything and, unlike
// RecordPayment, rejects amounts above the outstanding installment balance.
func (l *Ledger) CheckPayment(ctx context.Context, planID uuid.UUID, index int, amount decimal.Decimal) error {
	plan, err := l.loadPlan(ctx, planID)
	if err != nil {
		return err
	}
	return checkInstallmentPayment(plan, index, amount)
}

func checkInstallmentPayment(plan *models.InstallmentPlan, index int, amount decimal.Decimal) error {
	if index < 0 || index >= len(plan.Payments) {
		return validationError("installment index %d out of range", index).forPlan(plan.ID).atInstallment(index)
	}
	installment := plan.Payments[index]
	if installment.Status == models.InstallmentStatusPaid {
		return stateError(plan.ID, "installment %d is already paid", index).atInstallment(index)
	}
	if !amount.IsPositive() {
		return validationError("payment amount must be positive").forPlan(plan.ID).atInstallment(index)
	}
	if amount.GreaterThan(installment.Outstanding()) {
		return validationError("payment amount %s exceeds outstanding %s", amount.StringFixed(2), installment.Outstanding().StringFixed(2)).
			forPlan(plan.ID).atInstallment(index)
	}
	return nil
}

// ValidatePayment is the boolean form of CheckPayment.
func (l *Ledger) ValidatePayment(ctx context.Context, planID uuid.UUID, index int, amount decimal.Decimal) bool {
	return l.CheckPayment(ctx, planID, index, amount) == nil
}

// RecordPayment applies amount to the installment at index. An installment is
// settled once its paid amount reaches the amount due; any excess is dropped
// at the installment level. The plan completes when every installment is paid.
func (l *Ledger) RecordPayment(ctx context.Context, planID uuid.UUID, index int, amount decimal.Decimal, paymentDate *time.Time) (*models.InstallmentPlan, error) {
	return l.recordPayment(ctx, planID, index, amount, paymentDate, false)
}

// RecordCheckedPayment runs CheckPayment and RecordPayment under the same plan
// lock, so concurrent callers cannot both pass the check and overpay.
func (l *Ledger) RecordCheckedPayment(ctx context.Context, planID uuid.UUID, index int, amount decimal.Decimal, paymentDate *time.Time) (*models.InstallmentPlan, error) {
	return l.recordPayment(ctx, planID, index, amount, paymentDate, true)
}

func (l *Ledger) recordPayment(ctx context.Context, planID uuid.UUID, index int, amount decimal.Decimal, paymentDate *time.Time, checked bool) (*models.InstallmentPlan, error) {
	unlock := l.locks.lock(planID)
	defer unlock()

	plan, err := l.loadPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if checked {
		if err := checkInstallmentPayment(plan, index, amount); err != nil {
			return nil, err
		}
	}
	if plan.Status != models.PlanStatusActive {
		return nil, stateError(planID, "cannot record payment for plan with status %s", plan.Status)
	}
	if index < 0 || index >= len(plan.Payments) {
		return nil, validationError("installment index %d out of range", index).forPlan(planID).atInstallment(index)
	}
	installment := &plan.Payments[index]
	if installment.Status == models.InstallmentStatusPaid {
		return nil, stateError(planID, "installment %d is already paid", index).atInstallment(index)
	}
	if !amount.IsPositive() {
		return nil, validationError("payment amount must be positive").forPlan(planID).atInstallment(index)
	}

	now := l.clock.Now()
	paidAt := now
	if paymentDate != nil {
		paidAt = *paymentDate
	}

	applied := decimal.Min(amount, installment.Outstanding())
	installment.AmountPaid = installment.AmountPaid.Add(amount)
	installment.PaymentDate = &paidAt
	installment.UpdatedAt = now
	if installment.AmountPaid.GreaterThanOrEqual(installment.AmountDue) {
		installment.Status = models.InstallmentStatusPaid
		installment.AmountPaid = installment.AmountDue
	}

	counted := amount
	if l.capOverpayment {
		counted = applied
	}
	plan.TotalPaid = plan.TotalPaid.Add(counted)
	plan.RemainingBalance = decimal.Max(decimal.Zero, plan.RemainingBalance.Sub(counted))
	plan.UpdatedAt = now

	if plan.AllPaid() {
		plan.Status = models.PlanStatusCompleted
	}

	fields := logrus.Fields{
		"plan_id":           planID,
		"installment_index": index,
		"amount":            amount.StringFixed(2),
	}
	if err := l.storage.UpdatePlan(ctx, plan); err != nil {
		l.log.WithError(err).WithFields(fields).Error("Failed to persist payment")
		return nil, fmt.Errorf("failed to update plan %s: %w", planID, err)
	}

	fields["installment_status"] = installment.Status
	fields["status"] = plan.Status
	if amount.GreaterThan(applied) {
		fields["excess"] = amount.Sub(applied).StringFixed(2)
	}
	l.log.WithFields(fields).Info("Installment payment recorded")
	return plan, nil
}

// CompletePlan settles every open installment in full and marks the plan
// Completed, regardless of what was actually collected.
func (l *Ledger) CompletePlan(ctx context.Context, planID uuid.UUID) (*models.InstallmentPlan, error) {
	unlock := l.locks.lock(planID)
	defer unlock()

	plan, err := l.loadPlan(ctx, planID)
	if err != nil {
		return nil, err
	}

	now := l.clock.Now()
	for i := range plan.Payments {
		p := &plan.Payments[i]
		if p.Status == models.InstallmentStatusPaid {
			continue
		}
		p.Status = models.InstallmentStatusPaid
		p.AmountPaid = p.AmountDue
		paidAt := now
		p.PaymentDate = &paidAt
		p.UpdatedAt = now
	}
	plan.Status = models.PlanStatusCompleted
	plan.TotalPaid = plan.TotalPrice
	plan.RemainingBalance = decimal.Zero
	plan.UpdatedAt = now

	if err := l.storage.UpdatePlan(ctx, plan); err != nil {
		l.log.WithError(err).WithField("plan_id", planID).Error("Failed to persist plan completion")
		return nil, fmt.Errorf("failed to update plan %s: %w", planID, err)
	}

	l.log.WithField("plan_id", planID).Info("Installment plan completed by override")
	return plan, nil
}

// UpdateStatus overwrites the plan status. It returns false when the plan
// does not exist.
func (l *Ledger) UpdateStatus(ctx context.Context, planID uuid.UUID, status models.PlanStatus) (bool, error) {
	if !status.Valid() {
		return false, validationError("invalid plan status %q", status)
	}

	unlock := l.locks.lock(planID)
	defer unlock()

	plan, err := l.loadPlan(ctx, planID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if err := checkTransition(plan.Status, status); err != nil {
		return false, (&Error{Kind: ErrInvalidState, Message: err.Error()}).forPlan(planID)
	}

	previous := plan.Status
	plan.Status = status
	plan.UpdatedAt = l.clock.Now()
	if err := l.storage.UpdatePlan(ctx, plan); err != nil {
		if errors.Is(err, store.ErrPlanNotFound) {
			return false, nil
		}
		l.log.WithError(err).WithField("plan_id", planID).Error("Failed to persist status update")
		return false, fmt.Errorf("failed to update plan %s: %w", planID, err)
	}

	l.log.WithFields(logrus.Fields{
		"plan_id": planID,
		"from":    previous,
		"status":  status,
	}).Info("Installment plan status updated")
	return true, nil
}

// checkTransition is the single gate for administrative status changes.
// Every transition between known statuses is currently allowed.
func checkTransition(from, to models.PlanStatus) error {
	switch to {
	case models.PlanStatusActive, models.PlanStatusCompleted, models.PlanStatusDefaulted, models.PlanStatusCancelled:
		return nil
	default:
		return fmt.Errorf("cannot move plan from %s to %s", from, to)
	}
}

// SweepResult reports what one overdue sweep changed.
type SweepResult struct {
	PlansScanned int
	PlansUpdated int
	Failed       int
	Notices      []models.OverdueNotice
}

// SweepOverdue marks every pending installment of an active plan whose due
// date is before now as Overdue. Each modified plan is persisted once. A
// failure on one plan is logged and does not stop the sweep.
func (l *Ledger) SweepOverdue(ctx context.Context, now time.Time) (SweepResult, error) {
	var result SweepResult

	plans, err := l.storage.GetPlansByStatus(ctx, models.PlanStatusActive)
	if err != nil {
		return result, fmt.Errorf("failed to list active plans: %w", err)
	}
	result.PlansScanned = len(plans)

	for _, candidate := range plans {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if !hasPendingDue(candidate, now) {
			continue
		}
		notices, err := l.sweepPlan(ctx, candidate.ID, now)
		if err != nil {
			result.Failed++
			l.log.WithError(err).WithField("plan_id", candidate.ID).Error("Failed to mark installments overdue")
			continue
		}
		if len(notices) > 0 {
			result.PlansUpdated++
			result.Notices = append(result.Notices, notices...)
		}
	}
	return result, nil
}

func (l *Ledger) sweepPlan(ctx context.Context, planID uuid.UUID, now time.Time) ([]models.OverdueNotice, error) {
	unlock := l.locks.lock(planID)
	defer unlock()

	// Reload under the lock so a concurrent payment is not overwritten.
	plan, err := l.loadPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if plan.Status != models.PlanStatusActive {
		return nil, nil
	}

	var notices []models.OverdueNotice
	updatedAt := l.clock.Now()
	for i := range plan.Payments {
		p := &plan.Payments[i]
		if p.Status != models.InstallmentStatusPending || !p.DueDate.Before(now) {
			continue
		}
		p.Status = models.InstallmentStatusOverdue
		p.UpdatedAt = updatedAt
		notices = append(notices, models.OverdueNotice{
			PlanID:           plan.ID,
			CustomerID:       plan.CustomerID,
			SaleID:           plan.SaleID,
			InstallmentIndex: i,
			DueDate:          p.DueDate,
			Outstanding:      p.Outstanding(),
		})
	}
	if len(notices) == 0 {
		return nil, nil
	}

	plan.UpdatedAt = updatedAt
	if err := l.storage.UpdatePlan(ctx, plan); err != nil {
		return nil, fmt.Errorf("failed to update plan %s: %w", planID, err)
	}
	l.log.WithFields(logrus.Fields{
		"plan_id": planID,
		"overdue": len(notices),
	}).Info("Installments marked overdue")
	return notices, nil
}

func hasPendingDue(plan *models.InstallmentPlan, now time.Time) bool {
	for _, p := range plan.Payments {
		if p.Status == models.InstallmentStatusPending && p.DueDate.Before(now) {
			return true
		}
	}
	return false
}

func (l *Ledger) loadPlan(ctx context.Context, id uuid.UUID) (*models.InstallmentPlan, error) {
	plan, err := l.storage.GetPlan(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrPlanNotFound) {
			return nil, notFoundError(id)
		}
		l.log.WithError(err).WithField("plan_id", id).Error("Failed to load installment plan")
		return nil, fmt.Errorf("failed to load plan %s: %w", id, err)
	}
	return plan, nil
}
