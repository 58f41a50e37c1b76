package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/mcclellann/installments/pkg/models"
)

// ErrPlanNotFound is returned when no plan exists for the requested id.
var ErrPlanNotFound = errors.New("plan not found")

// Storage defines the persistence operations the installment ledger relies on.
type Storage interface {
	CreatePlan(ctx context.Context, plan *models.InstallmentPlan) error
	GetPlan(ctx context.Context, id uuid.UUID) (*models.InstallmentPlan, error)
	GetPlansByCustomerID(ctx context.Context, customerID string) ([]*models.InstallmentPlan, error)
	GetAllPlans(ctx context.Context) ([]*models.InstallmentPlan, error)
	GetPlansByStatus(ctx context.Context, status models.PlanStatus) ([]*models.InstallmentPlan, error)
	// GetOverduePlans returns plans holding at least one overdue installment.
	GetOverduePlans(ctx context.Context) ([]*models.InstallmentPlan, error)
	UpdatePlan(ctx context.Context, plan *models.InstallmentPlan) error

	Close() error
}
