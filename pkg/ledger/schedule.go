package ledger

import (
	"time"

	"github.com/mcclellann/installments/pkg/models"
	"github.com/shopspring/decimal"
)

// GenerateSchedule builds the termMonths installments of a plan. The first
// installment is due one month after startDate. Every entry carries the same
// amount; no final-period remainder correction is applied.
func GenerateSchedule(principal, annualRatePercent decimal.Decimal, termMonths int, startDate time.Time) []models.InstallmentPayment {
	if termMonths < 1 {
		return nil
	}
	amount := InstallmentAmount(principal, annualRatePercent, termMonths)

	schedule := make([]models.InstallmentPayment, 0, termMonths)
	for i := 0; i < termMonths; i++ {
		schedule = append(schedule, models.InstallmentPayment{
			DueDate:    addMonths(startDate, i+1),
			AmountDue:  amount,
			AmountPaid: decimal.Zero,
			Status:     models.InstallmentStatusPending,
		})
	}
	return schedule
}

// addMonths moves t forward n calendar months, clamping the day to the last
// day of the target month. Jan 31 plus one month is Feb 28 (or 29).
func addMonths(t time.Time, n int) time.Time {
	year, month, day := t.Date()
	target := time.Date(year, month+time.Month(n), 1, 0, 0, 0, 0, t.Location())
	lastDay := time.Date(target.Year(), target.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
	return time.Date(target.Year(), target.Month(), min(day, lastDay),
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}
