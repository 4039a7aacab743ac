package expense

import (
	"context"
	"fmt"
	"sync"

	appErrors "github.com/expense-tracker/backend/errors"
	"github.com/expense-tracker/backend/logging"
)

// Engine keeps the per-(user, month) running totals exactly consistent
// with the expense records under create, update and delete, applying
// incremental deltas only; it never rescans expenses to recompute a
// total.
//
// Store reads and writes are not atomic together, so every
// read-modify-write of one aggregate row runs under a mutex keyed by
// (user, month); two concurrent mutations of the same month serialize
// instead of losing a delta.
type Engine struct {
	aggregates AggregateStore

	mu    sync.Mutex
	locks map[aggregateKey]*sync.Mutex
}

type aggregateKey struct {
	userID int64
	month  YearMonth
}

func NewEngine(aggregates AggregateStore) *Engine {
	return &Engine{
		aggregates: aggregates,
		locks:      make(map[aggregateKey]*sync.Mutex),
	}
}

func (e *Engine) keyLock(key aggregateKey) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()

	lock, ok := e.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[key] = lock
	}
	return lock
}

// ApplyCreate folds a batch of just-created expenses for one user into
// the aggregates: the batch is grouped by calendar month and each
// group's sum is added to that month's row, creating the row when none
// exists. Deltas are always added; re-submitting the same batch adds
// it again.
func (e *Engine) ApplyCreate(ctx context.Context, userID int64, created []Expense) error {
	perMonth := make(map[YearMonth]float64)
	for _, exp := range created {
		perMonth[YearMonthOf(exp.Date)] += exp.Amount
	}

	for month, sum := range perMonth {
		if err := e.add(ctx, userID, month, sum); err != nil {
			return err
		}
	}
	return nil
}

// ApplyUpdate reconciles the aggregates after one expense changed from
// old to new. A same-month change is a single arithmetic correction by
// the amount difference; a cross-month move subtracts from the old
// month and adds to the new one. A category-only change carries a zero
// difference and touches nothing.
func (e *Engine) ApplyUpdate(ctx context.Context, old, updated Expense) error {
	oldMonth := YearMonthOf(old.Date)
	newMonth := YearMonthOf(updated.Date)

	if oldMonth == newMonth {
		difference := updated.Amount - old.Amount
		if difference == 0 {
			return nil
		}
		return e.adjust(ctx, old.UserID, oldMonth, difference)
	}

	if err := e.adjust(ctx, old.UserID, oldMonth, -old.Amount); err != nil {
		return err
	}
	return e.add(ctx, updated.UserID, newMonth, updated.Amount)
}

// ApplyDelete subtracts a to-be-deleted expense from its month's
// aggregate. The caller deletes the expense record afterwards, so a
// crash in between leaves an aggregate briefly behind a still-present
// expense, never a deleted expense with a stale aggregate.
func (e *Engine) ApplyDelete(ctx context.Context, exp Expense) error {
	return e.adjust(ctx, exp.UserID, YearMonthOf(exp.Date), -exp.Amount)
}

// TotalForMonth returns the stored running total. The second return is
// false when no aggregate row exists, which callers must distinguish
// from a stored zero.
func (e *Engine) TotalForMonth(ctx context.Context, userID int64, month YearMonth) (float64, bool, error) {
	aggregate, err := e.aggregates.FindAggregateByUserAndMonth(ctx, userID, month)
	if err != nil {
		return 0, false, fmt.Errorf("failed to load aggregate for %s: %w", month, err)
	}
	if aggregate == nil {
		return 0, false, nil
	}
	return aggregate.Amount, true, nil
}

// add applies a delta, creating the month's row when absent.
func (e *Engine) add(ctx context.Context, userID int64, month YearMonth, delta float64) error {
	key := aggregateKey{userID: userID, month: month}
	lock := e.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	aggregate, err := e.aggregates.FindAggregateByUserAndMonth(ctx, userID, month)
	if err != nil {
		return fmt.Errorf("failed to load aggregate for %s: %w", month, err)
	}

	if aggregate == nil {
		aggregate = &AggregateExpense{UserID: userID, Month: month, Amount: delta}
	} else {
		aggregate.Amount += delta
	}

	if _, err := e.aggregates.SaveAggregate(ctx, aggregate); err != nil {
		return fmt.Errorf("failed to save aggregate for %s: %w", month, err)
	}

	logging.Logger.Debugf("aggregate %s user=%d adjusted by %+f", month, userID, delta)
	return nil
}

// adjust applies a delta to a row that the invariant requires to
// already exist: the month in question holds at least one expense. A
// missing row means the stored data has diverged and the operation
// fails hard instead of fabricating a zero-valued row.
func (e *Engine) adjust(ctx context.Context, userID int64, month YearMonth, delta float64) error {
	key := aggregateKey{userID: userID, month: month}
	lock := e.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	aggregate, err := e.aggregates.FindAggregateByUserAndMonth(ctx, userID, month)
	if err != nil {
		return fmt.Errorf("failed to load aggregate for %s: %w", month, err)
	}
	if aggregate == nil {
		return fmt.Errorf("%w: user %d month %s", appErrors.ErrAggregateConsistency, userID, month)
	}

	aggregate.Amount += delta

	if _, err := e.aggregates.SaveAggregate(ctx, aggregate); err != nil {
		return fmt.Errorf("failed to save aggregate for %s: %w", month, err)
	}

	logging.Logger.Debugf("aggregate %s user=%d adjusted by %+f", month, userID, delta)
	return nil
}
