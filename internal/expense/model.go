package expense

import (
	"context"
	"fmt"
	"strings"
	"time"

	appErrors "github.com/expense-tracker/backend/errors"
)

const (
	MAX_DESCRIPTION_LENGTH = 255
	MAX_AMOUNT_LIMIT       = 999999999999999999
)

// Expense is one spend record. The date is a calendar day (UTC
// midnight); an update may move it into a different month, which the
// aggregation engine has to account for.
type Expense struct {
	ID          int64
	Description string
	Amount      float64
	Date        time.Time
	CategoryID  int64
	UserID      int64
}

// Category is looked up by its unique name and created on first use.
// Categories are never deleted.
type Category struct {
	ID   int64
	Name string
}

// AggregateExpense is one persisted running total per (user, month).
// Its amount equals the sum of that user's expense amounts dated in
// that month, maintained incrementally, never recomputed by scanning.
type AggregateExpense struct {
	ID     int64
	UserID int64
	Month  YearMonth
	Amount float64
}

// YearMonth identifies one calendar month.
type YearMonth struct {
	Year  int
	Month time.Month
}

func YearMonthOf(date time.Time) YearMonth {
	return YearMonth{Year: date.Year(), Month: date.Month()}
}

// ParseYearMonth parses "yyyy-mm". An empty value means the current
// month.
func ParseYearMonth(value string) (YearMonth, error) {
	if value == "" {
		return YearMonthOf(time.Now().UTC()), nil
	}
	parsed, err := time.Parse("2006-01", value)
	if err != nil {
		return YearMonth{}, fmt.Errorf("%w: %s is not a valid year-month, required format: yyyy-mm", appErrors.ErrInvalidInput, value)
	}
	return YearMonthOf(parsed), nil
}

func (ym YearMonth) String() string {
	return fmt.Sprintf("%04d-%02d", ym.Year, int(ym.Month))
}

// FirstDay returns the first calendar day of the month.
func (ym YearMonth) FirstDay() time.Time {
	return time.Date(ym.Year, ym.Month, 1, 0, 0, 0, 0, time.UTC)
}

// LastDay returns the last calendar day of the month.
func (ym YearMonth) LastDay() time.Time {
	return ym.FirstDay().AddDate(0, 1, -1)
}

// NewExpense is a creation request for one expense.
type NewExpense struct {
	Description  string
	Amount       float64
	Date         time.Time
	CategoryName string
}

func (e NewExpense) Validate() error {
	if strings.TrimSpace(e.Description) == "" {
		return fmt.Errorf("%w: description cannot be empty", appErrors.ErrInvalidInput)
	}
	if len(e.Description) > MAX_DESCRIPTION_LENGTH {
		return fmt.Errorf("%w: description so long, maximum length is %d", appErrors.ErrInvalidInput, MAX_DESCRIPTION_LENGTH)
	}
	if e.Amount < 0 {
		return fmt.Errorf("%w: amount cannot be negative", appErrors.ErrInvalidInput)
	}
	if e.Amount > MAX_AMOUNT_LIMIT {
		return fmt.Errorf("%w: maximum allowed amount per expense is %d", appErrors.ErrInvalidInput, MAX_AMOUNT_LIMIT)
	}
	if e.Date.IsZero() {
		return fmt.Errorf("%w: date is required", appErrors.ErrInvalidInput)
	}
	if strings.TrimSpace(e.CategoryName) == "" {
		return fmt.Errorf("%w: category name cannot be empty", appErrors.ErrInvalidInput)
	}
	return nil
}

// UpdateExpense carries the changed fields of a partial update; nil
// means "leave as is".
type UpdateExpense struct {
	Description  *string
	Amount       *float64
	Date         *time.Time
	CategoryName *string
}

// ExpenseStore is the consumed contract for durable expense records.
// Save assigns the ID on insert; lookups return (nil, nil) on miss.
type ExpenseStore interface {
	SaveExpense(ctx context.Context, e *Expense) (*Expense, error)
	DeleteExpense(ctx context.Context, id int64) error
	FindExpenseByID(ctx context.Context, id int64) (*Expense, error)
	FindExpensesByUserAndDateRange(ctx context.Context, userID int64, from, to time.Time) ([]Expense, error)
	FindExpenseByIDAndUser(ctx context.Context, id, userID int64) (*Expense, error)
}

// AggregateStore is the consumed contract for the running totals, one
// row per (user, month).
type AggregateStore interface {
	FindAggregateByUserAndMonth(ctx context.Context, userID int64, month YearMonth) (*AggregateExpense, error)
	SaveAggregate(ctx context.Context, a *AggregateExpense) (*AggregateExpense, error)
}

// CategoryStore is the consumed contract for categories keyed by
// unique name.
type CategoryStore interface {
	FindCategoryByName(ctx context.Context, name string) (*Category, error)
	SaveCategory(ctx context.Context, c *Category) (*Category, error)
	FindCategoryByID(ctx context.Context, id int64) (*Category, error)
}
