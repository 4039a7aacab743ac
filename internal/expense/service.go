package expense

import (
	"context"
	"fmt"

	appErrors "github.com/expense-tracker/backend/errors"
	"github.com/expense-tracker/backend/internal/auth"
	"github.com/expense-tracker/backend/logging"
)

// UserDirectory is the slice of the identity layer the tracker needs:
// resolving an owner id to a user (cached), to reject expenses for
// users that do not exist.
type UserDirectory interface {
	LoadByID(ctx context.Context, id int64) (auth.User, error)
}

// Tracker is the expense service: CRUD on expense records with the
// aggregation engine kept in lock-step on every mutation.
type Tracker struct {
	expenses   ExpenseStore
	categories CategoryStore
	users      UserDirectory
	engine     *Engine
}

func NewTracker(expenses ExpenseStore, categories CategoryStore, users UserDirectory, engine *Engine) *Tracker {
	return &Tracker{
		expenses:   expenses,
		categories: categories,
		users:      users,
		engine:     engine,
	}
}

// CreateExpenses saves a batch of expenses for one user and folds the
// batch into the monthly aggregates. Items commit one by one; a
// failure partway through leaves the prior items saved and aggregated
// and reports the error. There is no batch rollback.
func (t *Tracker) CreateExpenses(ctx context.Context, userID int64, batch []NewExpense) ([]Expense, error) {
	for _, item := range batch {
		if err := item.Validate(); err != nil {
			return nil, err
		}
	}

	if _, err := t.users.LoadByID(ctx, userID); err != nil {
		return nil, err
	}

	var saved []Expense
	for _, item := range batch {
		category, err := t.findOrCreateCategory(ctx, item.CategoryName)
		if err != nil {
			return t.commitCreated(ctx, userID, saved, err)
		}

		newExpense := &Expense{
			Description: item.Description,
			Amount:      item.Amount,
			Date:        item.Date,
			CategoryID:  category.ID,
			UserID:      userID,
		}

		persisted, err := t.expenses.SaveExpense(ctx, newExpense)
		if err != nil {
			return t.commitCreated(ctx, userID, saved, fmt.Errorf("failed to save expense: %w", err))
		}
		saved = append(saved, *persisted)
	}

	return t.commitCreated(ctx, userID, saved, nil)
}

// commitCreated applies the aggregate deltas for whatever part of the
// batch made it into the store, then reports the batch error, if any.
func (t *Tracker) commitCreated(ctx context.Context, userID int64, saved []Expense, batchErr error) ([]Expense, error) {
	if len(saved) > 0 {
		if err := t.engine.ApplyCreate(ctx, userID, saved); err != nil {
			return nil, err
		}
	}
	if batchErr != nil {
		return nil, batchErr
	}
	return saved, nil
}

// UpdateExpense applies a partial update to one expense owned by
// userID and reconciles the aggregates with the old vs. new state.
func (t *Tracker) UpdateExpense(ctx context.Context, userID, expenseID int64, update UpdateExpense) (Expense, error) {
	existing, err := t.expenses.FindExpenseByID(ctx, expenseID)
	if err != nil {
		return Expense{}, fmt.Errorf("failed to load expense: %w", err)
	}
	if existing == nil {
		return Expense{}, fmt.Errorf("%w: id %d", appErrors.ErrExpenseNotFound, expenseID)
	}
	if existing.UserID != userID {
		return Expense{}, fmt.Errorf("%w: expense %d, user %d", appErrors.ErrExpenseOwnership, expenseID, userID)
	}

	old := *existing
	updated := *existing

	if update.Description != nil {
		updated.Description = *update.Description
	}
	if update.Amount != nil {
		if *update.Amount < 0 {
			return Expense{}, fmt.Errorf("%w: amount cannot be negative", appErrors.ErrInvalidInput)
		}
		updated.Amount = *update.Amount
	}
	if update.Date != nil {
		updated.Date = *update.Date
	}
	if update.CategoryName != nil {
		category, err := t.findOrCreateCategory(ctx, *update.CategoryName)
		if err != nil {
			return Expense{}, err
		}
		updated.CategoryID = category.ID
	}

	persisted, err := t.expenses.SaveExpense(ctx, &updated)
	if err != nil {
		return Expense{}, fmt.Errorf("failed to save updated expense: %w", err)
	}

	if err := t.engine.ApplyUpdate(ctx, old, *persisted); err != nil {
		return Expense{}, err
	}
	return *persisted, nil
}

// DeleteExpense removes one expense owned by userID. The aggregate is
// adjusted first and the record deleted second, so the running total
// is never left ahead of a deletion that already happened.
func (t *Tracker) DeleteExpense(ctx context.Context, userID, expenseID int64) error {
	existing, err := t.expenses.FindExpenseByIDAndUser(ctx, expenseID, userID)
	if err != nil {
		return fmt.Errorf("failed to load expense: %w", err)
	}
	if existing == nil {
		// Distinguish a missing expense from someone else's expense.
		orphan, err := t.expenses.FindExpenseByID(ctx, expenseID)
		if err != nil {
			return fmt.Errorf("failed to load expense: %w", err)
		}
		if orphan == nil {
			return fmt.Errorf("%w: id %d", appErrors.ErrExpenseNotFound, expenseID)
		}
		return fmt.Errorf("%w: expense %d, user %d", appErrors.ErrExpenseOwnership, expenseID, userID)
	}

	if err := t.engine.ApplyDelete(ctx, *existing); err != nil {
		return err
	}

	if err := t.expenses.DeleteExpense(ctx, existing.ID); err != nil {
		return fmt.Errorf("failed to delete expense: %w", err)
	}

	logging.Logger.Infof("deleted expense id=%d user=%d", existing.ID, userID)
	return nil
}

// ExpensesForMonth lists a user's expenses dated inside one calendar
// month.
func (t *Tracker) ExpensesForMonth(ctx context.Context, userID int64, month YearMonth) ([]Expense, error) {
	expenses, err := t.expenses.FindExpensesByUserAndDateRange(ctx, userID, month.FirstDay(), month.LastDay())
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses for %s: %w", month, err)
	}
	return expenses, nil
}

// TotalForMonth returns the stored running total for the month; the
// boolean is false when no aggregate row exists for it.
func (t *Tracker) TotalForMonth(ctx context.Context, userID int64, month YearMonth) (float64, bool, error) {
	return t.engine.TotalForMonth(ctx, userID, month)
}

// CategoryName resolves a category id for response mapping.
func (t *Tracker) CategoryName(ctx context.Context, id int64) (string, error) {
	category, err := t.categories.FindCategoryByID(ctx, id)
	if err != nil {
		return "", fmt.Errorf("failed to load category: %w", err)
	}
	if category == nil {
		return "", fmt.Errorf("%w: category %d", appErrors.ErrInvalidInput, id)
	}
	return category.Name, nil
}

// findOrCreateCategory returns the category with the given name,
// creating it on first use. A concurrent first use can race on the
// unique name; the loser re-reads the winner's row.
func (t *Tracker) findOrCreateCategory(ctx context.Context, name string) (Category, error) {
	category, err := t.categories.FindCategoryByName(ctx, name)
	if err != nil {
		return Category{}, fmt.Errorf("failed to look up category: %w", err)
	}
	if category != nil {
		return *category, nil
	}

	created, err := t.categories.SaveCategory(ctx, &Category{Name: name})
	if err != nil {
		existing, findErr := t.categories.FindCategoryByName(ctx, name)
		if findErr == nil && existing != nil {
			return *existing, nil
		}
		return Category{}, fmt.Errorf("failed to create category: %w", err)
	}
	return *created, nil
}
