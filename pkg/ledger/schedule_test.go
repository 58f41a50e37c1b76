package ledger

import (
	"testing"
	"time"

	"github.com/mcclellann/installments/pkg/models"
	"github.com/shopspring/decimal"
)

func TestGenerateSchedule(t *testing.T) {
	principal := decimal.NewFromInt(1000)
	rate := decimal.NewFromInt(5)
	start := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	schedule := GenerateSchedule(principal, rate, 6, start)
	if len(schedule) != 6 {
		t.Fatalf("Expected 6 installments, got %d", len(schedule))
	}

	amount := InstallmentAmount(principal, rate, 6)
	for i, p := range schedule {
		expectedDue := start.AddDate(0, i+1, 0)
		if !p.DueDate.Equal(expectedDue) {
			t.Errorf("Installment %d: expected due date %s, got %s", i, expectedDue, p.DueDate)
		}
		if !p.AmountDue.Equal(amount) {
			t.Errorf("Installment %d: expected amount due %s, got %s", i, amount, p.AmountDue)
		}
		if !p.AmountPaid.IsZero() {
			t.Errorf("Installment %d: expected nothing paid, got %s", i, p.AmountPaid)
		}
		if p.PaymentDate != nil {
			t.Errorf("Installment %d: expected no payment date", i)
		}
		if p.Status != models.InstallmentStatusPending {
			t.Errorf("Installment %d: expected Pending, got %s", i, p.Status)
		}
	}

	if schedule[0].DueDate.Equal(start) {
		t.Error("First installment must not be due on the start date")
	}
}

func TestGenerateSchedule_IsRestartable(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := GenerateSchedule(decimal.NewFromInt(900), decimal.Zero, 3, start)
	b := GenerateSchedule(decimal.NewFromInt(900), decimal.Zero, 3, start)

	a[0].Status = models.InstallmentStatusPaid
	if b[0].Status != models.InstallmentStatusPending {
		t.Error("Schedules must not share state")
	}
	for i := range b {
		if !a[i].DueDate.Equal(b[i].DueDate) || !a[i].AmountDue.Equal(b[i].AmountDue) {
			t.Errorf("Installment %d differs between runs", i)
		}
	}
}

func TestGenerateSchedule_ZeroTerm(t *testing.T) {
	if got := GenerateSchedule(decimal.NewFromInt(100), decimal.Zero, 0, time.Now()); got != nil {
		t.Errorf("Expected no schedule, got %d entries", len(got))
	}
}

func TestGenerateSchedule_MonthEndStartsClamp(t *testing.T) {
	day := func(y int, m time.Month, d int) time.Time {
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	tests := []struct {
		name     string
		start    time.Time
		expected []time.Time
	}{
		{
			name:     "Jan 31 in a common year",
			start:    day(2025, time.January, 31),
			expected: []time.Time{day(2025, time.February, 28), day(2025, time.March, 31), day(2025, time.April, 30)},
		},
		{
			name:     "Jan 30 in a leap year",
			start:    day(2024, time.January, 30),
			expected: []time.Time{day(2024, time.February, 29), day(2024, time.March, 30), day(2024, time.April, 30)},
		},
		{
			name:     "Aug 31 across the year end",
			start:    day(2025, time.August, 31),
			expected: []time.Time{day(2025, time.September, 30), day(2025, time.October, 31), day(2025, time.November, 30), day(2025, time.December, 31), day(2026, time.January, 31), day(2026, time.February, 28)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			schedule := GenerateSchedule(decimal.NewFromInt(600), decimal.Zero, len(tt.expected), tt.start)
			for i, p := range schedule {
				if !p.DueDate.Equal(tt.expected[i]) {
					t.Errorf("Installment %d: expected due date %s, got %s", i, tt.expected[i].Format("2006-01-02"), p.DueDate.Format("2006-01-02"))
				}
			}
		})
	}
}

func TestAddMonths_KeepsTimeOfDay(t *testing.T) {
	start := time.Date(2025, time.March, 31, 14, 30, 0, 0, time.UTC)
	got := addMonths(start, 1)
	want := time.Date(2025, time.April, 30, 14, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Expected %s, got %s", want, got)
	}
	if got := addMonths(start, 0); !got.Equal(start) {
		t.Errorf("Expected zero months to keep %s, got %s", start, got)
	}
}
