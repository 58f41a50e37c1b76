package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PlanStatus is the lifecycle state of an installment plan.
type PlanStatus string

const (
	PlanStatusActive    PlanStatus = "Active"
	PlanStatusCompleted PlanStatus = "Completed"
	PlanStatusDefaulted PlanStatus = "Defaulted"
	PlanStatusCancelled PlanStatus = "Cancelled"
)

// Valid reports whether s is one of the known plan statuses.
func (s PlanStatus) Valid() bool {
	switch s {
	case PlanStatusActive, PlanStatusCompleted, PlanStatusDefaulted, PlanStatusCancelled:
		return true
	default:
		return false
	}
}

// ParsePlanStatus converts a raw status string into a PlanStatus.
func ParsePlanStatus(s string) (PlanStatus, error) {
	status := PlanStatus(s)
	if !status.Valid() {
		return "", fmt.Errorf("invalid plan status %q", s)
	}
	return status, nil
}

// InstallmentStatus is the state of a single scheduled payment.
type InstallmentStatus string

const (
	InstallmentStatusPending InstallmentStatus = "Pending"
	InstallmentStatusPaid    InstallmentStatus = "Paid"
	InstallmentStatusOverdue InstallmentStatus = "Overdue"
)

func (s InstallmentStatus) Valid() bool {
	switch s {
	case InstallmentStatusPending, InstallmentStatusPaid, InstallmentStatusOverdue:
		return true
	default:
		return false
	}
}

// ParseInstallmentStatus converts a raw status string into an InstallmentStatus.
func ParseInstallmentStatus(s string) (InstallmentStatus, error) {
	status := InstallmentStatus(s)
	if !status.Valid() {
		return "", fmt.Errorf("invalid installment status %q", s)
	}
	return status, nil
}

// InstallmentPlan is one financed (layaway) purchase.
type InstallmentPlan struct {
	ID                   uuid.UUID            `json:"id"`
	SaleID               string               `json:"sale_id"`
	CustomerID           string               `json:"customer_id"`
	ProductID            string               `json:"product_id"`
	TotalPrice           decimal.Decimal      `json:"total_price"`
	DownPayment          decimal.Decimal      `json:"down_payment"`
	NumberOfInstallments int                  `json:"number_of_installments"`
	InterestRate         decimal.Decimal      `json:"interest_rate"` // Annual percent, 5 means 5%
	InstallmentAmount    decimal.Decimal      `json:"installment_amount"`
	StartDate            time.Time            `json:"start_date"`
	EndDate              time.Time            `json:"end_date"`
	Status               PlanStatus           `json:"status"`
	Payments             []InstallmentPayment `json:"payments"` // Positional, index 0 is due first
	TotalPaid            decimal.Decimal      `json:"total_paid"`
	RemainingBalance     decimal.Decimal      `json:"remaining_balance"`
	CreatedAt            time.Time            `json:"created_at"`
	UpdatedAt            time.Time            `json:"updated_at"`
}

// InstallmentPayment is one scheduled obligation within a plan.
type InstallmentPayment struct {
	DueDate     time.Time         `json:"due_date"`
	AmountDue   decimal.Decimal   `json:"amount_due"`
	AmountPaid  decimal.Decimal   `json:"amount_paid"`
	PaymentDate *time.Time        `json:"payment_date,omitempty"`
	Status      InstallmentStatus `json:"status"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Outstanding is the amount still owed on this installment.
func (p InstallmentPayment) Outstanding() decimal.Decimal {
	return p.AmountDue.Sub(p.AmountPaid)
}

// AllPaid reports whether every installment of the plan is settled.
func (p *InstallmentPlan) AllPaid() bool {
	for _, payment := range p.Payments {
		if payment.Status != InstallmentStatusPaid {
			return false
		}
	}
	return true
}

// HasOverdue reports whether at least one installment is overdue.
func (p *InstallmentPlan) HasOverdue() bool {
	for _, payment := range p.Payments {
		if payment.Status == InstallmentStatusOverdue {
			return true
		}
	}
	return false
}

// PlanSummary aggregates the installment states of a plan.
type PlanSummary struct {
	PlanID           uuid.UUID       `json:"plan_id"`
	Status           PlanStatus      `json:"status"`
	PaidCount        int             `json:"paid_count"`
	PendingCount     int             `json:"pending_count"`
	OverdueCount     int             `json:"overdue_count"`
	InstallmentsPaid decimal.Decimal `json:"installments_paid"` // Sum of capped per-installment amounts
	TotalPaid        decimal.Decimal `json:"total_paid"`
	RemainingBalance decimal.Decimal `json:"remaining_balance"`

	// Unapplied is TotalPaid minus down payment minus InstallmentsPaid. It is
	// non-zero when overpayments were truncated at the installment level.
	Unapplied decimal.Decimal `json:"unapplied"`
}

// Summary computes a PlanSummary from the current plan state.
func (p *InstallmentPlan) Summary() PlanSummary {
	s := PlanSummary{
		PlanID:           p.ID,
		Status:           p.Status,
		InstallmentsPaid: decimal.Zero,
		TotalPaid:        p.TotalPaid,
		RemainingBalance: p.RemainingBalance,
	}
	for _, payment := range p.Payments {
		switch payment.Status {
		case InstallmentStatusPaid:
			s.PaidCount++
		case InstallmentStatusPending:
			s.PendingCount++
		case InstallmentStatusOverdue:
			s.OverdueCount++
		}
		s.InstallmentsPaid = s.InstallmentsPaid.Add(payment.AmountPaid)
	}
	s.Unapplied = p.TotalPaid.Sub(p.DownPayment).Sub(s.InstallmentsPaid)
	return s
}

// OverdueNotice describes one installment moved to Overdue by a sweep.
type OverdueNotice struct {
	PlanID           uuid.UUID       `json:"plan_id"`
	CustomerID       string          `json:"customer_id"`
	SaleID           string          `json:"sale_id"`
	InstallmentIndex int             `json:"installment_index"`
	DueDate          time.Time       `json:"due_date"`
	Outstanding      decimal.Decimal `json:"outstanding"`
}
