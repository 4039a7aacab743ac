package expense

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	appErrors "github.com/expense-tracker/backend/errors"
	"github.com/expense-tracker/backend/internal/auth"
)

// Mocks
type mockStores struct {
	expenses   map[int64]Expense
	aggregates map[aggregateKey]AggregateExpense
	categories map[int64]Category
	nextID     int64

	ops []string

	saveExpenseCalls      int
	failSaveExpenseOnCall int
}

func newMockStores() *mockStores {
	return &mockStores{
		expenses:   make(map[int64]Expense),
		aggregates: make(map[aggregateKey]AggregateExpense),
		categories: make(map[int64]Category),
		nextID:     1,
	}
}

func (m *mockStores) allocateID() int64 {
	id := m.nextID
	m.nextID++
	return id
}

func (m *mockStores) SaveExpense(ctx context.Context, e *Expense) (*Expense, error) {
	m.saveExpenseCalls++
	if m.failSaveExpenseOnCall > 0 && m.saveExpenseCalls == m.failSaveExpenseOnCall {
		return nil, fmt.Errorf("storage error")
	}
	saved := *e
	if saved.ID == 0 {
		saved.ID = m.allocateID()
	}
	m.expenses[saved.ID] = saved
	m.ops = append(m.ops, "SaveExpense")
	return &saved, nil
}

func (m *mockStores) DeleteExpense(ctx context.Context, id int64) error {
	m.ops = append(m.ops, "DeleteExpense")
	if _, ok := m.expenses[id]; !ok {
		return fmt.Errorf("%w: id %d", appErrors.ErrExpenseNotFound, id)
	}
	delete(m.expenses, id)
	return nil
}

func (m *mockStores) FindExpenseByID(ctx context.Context, id int64) (*Expense, error) {
	if e, ok := m.expenses[id]; ok {
		found := e
		return &found, nil
	}
	return nil, nil
}

func (m *mockStores) FindExpenseByIDAndUser(ctx context.Context, id, userID int64) (*Expense, error) {
	if e, ok := m.expenses[id]; ok && e.UserID == userID {
		found := e
		return &found, nil
	}
	return nil, nil
}

func (m *mockStores) FindExpensesByUserAndDateRange(ctx context.Context, userID int64, from, to time.Time) ([]Expense, error) {
	var result []Expense
	for _, e := range m.expenses {
		if e.UserID == userID && !e.Date.Before(from) && !e.Date.After(to) {
			result = append(result, e)
		}
	}
	return result, nil
}

func (m *mockStores) SaveAggregate(ctx context.Context, a *AggregateExpense) (*AggregateExpense, error) {
	m.ops = append(m.ops, "SaveAggregate")
	saved := *a
	if saved.ID == 0 {
		saved.ID = m.allocateID()
	}
	m.aggregates[aggregateKey{userID: saved.UserID, month: saved.Month}] = saved
	return &saved, nil
}

func (m *mockStores) FindAggregateByUserAndMonth(ctx context.Context, userID int64, month YearMonth) (*AggregateExpense, error) {
	if a, ok := m.aggregates[aggregateKey{userID: userID, month: month}]; ok {
		found := a
		return &found, nil
	}
	return nil, nil
}

func (m *mockStores) SaveCategory(ctx context.Context, c *Category) (*Category, error) {
	for _, existing := range m.categories {
		if existing.Name == c.Name {
			return nil, fmt.Errorf("category %q already exists", c.Name)
		}
	}
	saved := *c
	if saved.ID == 0 {
		saved.ID = m.allocateID()
	}
	m.categories[saved.ID] = saved
	return &saved, nil
}

func (m *mockStores) FindCategoryByName(ctx context.Context, name string) (*Category, error) {
	for _, c := range m.categories {
		if c.Name == name {
			found := c
			return &found, nil
		}
	}
	return nil, nil
}

func (m *mockStores) FindCategoryByID(ctx context.Context, id int64) (*Category, error) {
	if c, ok := m.categories[id]; ok {
		found := c
		return &found, nil
	}
	return nil, nil
}

func (m *mockStores) aggregateSaves() int {
	count := 0
	for _, op := range m.ops {
		if op == "SaveAggregate" {
			count++
		}
	}
	return count
}

type mockUsers struct {
	validIDs map[int64]bool
}

func (m *mockUsers) LoadByID(ctx context.Context, id int64) (auth.User, error) {
	if m.validIDs[id] {
		return auth.User{ID: id, Email: fmt.Sprintf("user%d@example.com", id)}, nil
	}
	return auth.User{}, fmt.Errorf("%w: id %d", appErrors.ErrUserNotFound, id)
}

func expenseOn(userID int64, amount float64, year int, month time.Month, day int) Expense {
	return Expense{
		Amount: amount,
		Date:   time.Date(year, month, day, 0, 0, 0, 0, time.UTC),
		UserID: userID,
	}
}

func TestApplyCreateBuildsRunningTotal(t *testing.T) {
	store := newMockStores()
	engine := NewEngine(store)
	july := YearMonth{Year: 2026, Month: time.July}

	batch := []Expense{
		expenseOn(1, 2000, 2026, time.July, 3),
		expenseOn(1, 5000, 2026, time.July, 10),
		expenseOn(1, 300, 2026, time.July, 24),
	}
	require.NoError(t, engine.ApplyCreate(context.Background(), 1, batch))

	total, hasRecord, err := engine.TotalForMonth(context.Background(), 1, july)
	require.NoError(t, err)
	require.True(t, hasRecord)
	require.Equal(t, 7300.0, total)

	// One batch, one month, one aggregate write.
	require.Equal(t, 1, store.aggregateSaves())
}

func TestApplyCreateGroupsByMonth(t *testing.T) {
	store := newMockStores()
	engine := NewEngine(store)

	batch := []Expense{
		expenseOn(1, 100, 2026, time.July, 3),
		expenseOn(1, 200, 2026, time.August, 3),
		expenseOn(1, 50, 2026, time.July, 28),
	}
	require.NoError(t, engine.ApplyCreate(context.Background(), 1, batch))

	julyTotal, _, err := engine.TotalForMonth(context.Background(), 1, YearMonth{Year: 2026, Month: time.July})
	require.NoError(t, err)
	require.Equal(t, 150.0, julyTotal)

	augustTotal, _, err := engine.TotalForMonth(context.Background(), 1, YearMonth{Year: 2026, Month: time.August})
	require.NoError(t, err)
	require.Equal(t, 200.0, augustTotal)
}

func TestApplyCreateResubmissionDoubles(t *testing.T) {
	store := newMockStores()
	engine := NewEngine(store)
	july := YearMonth{Year: 2026, Month: time.July}

	batch := []Expense{expenseOn(1, 500, 2026, time.July, 3)}
	require.NoError(t, engine.ApplyCreate(context.Background(), 1, batch))
	require.NoError(t, engine.ApplyCreate(context.Background(), 1, batch))

	total, _, err := engine.TotalForMonth(context.Background(), 1, july)
	require.NoError(t, err)
	require.Equal(t, 1000.0, total, "deltas always add; deduplication is not the engine's job")
}

func TestApplyDeleteSubtracts(t *testing.T) {
	store := newMockStores()
	engine := NewEngine(store)
	july := YearMonth{Year: 2026, Month: time.July}

	require.NoError(t, engine.ApplyCreate(context.Background(), 1, []Expense{
		expenseOn(1, 2000, 2026, time.July, 3),
		expenseOn(1, 5000, 2026, time.July, 10),
		expenseOn(1, 300, 2026, time.July, 24),
	}))

	require.NoError(t, engine.ApplyDelete(context.Background(), expenseOn(1, 5000, 2026, time.July, 10)))

	total, hasRecord, err := engine.TotalForMonth(context.Background(), 1, july)
	require.NoError(t, err)
	require.True(t, hasRecord)
	require.Equal(t, 2300.0, total)
}

func TestApplyDeleteWithoutAggregateRowFailsHard(t *testing.T) {
	store := newMockStores()
	engine := NewEngine(store)

	err := engine.ApplyDelete(context.Background(), expenseOn(1, 100, 2026, time.July, 3))
	require.True(t, errors.Is(err, appErrors.ErrAggregateConsistency))
	require.Empty(t, store.aggregates, "a missing row must never be fabricated")
}

func TestApplyUpdateSameMonthIsSingleDelta(t *testing.T) {
	store := newMockStores()
	engine := NewEngine(store)
	july := YearMonth{Year: 2026, Month: time.July}

	require.NoError(t, engine.ApplyCreate(context.Background(), 1, []Expense{
		expenseOn(1, 2000, 2026, time.July, 3),
	}))
	savesBefore := store.aggregateSaves()

	old := expenseOn(1, 2000, 2026, time.July, 3)
	updated := expenseOn(1, 2500, 2026, time.July, 5)
	require.NoError(t, engine.ApplyUpdate(context.Background(), old, updated))

	total, _, err := engine.TotalForMonth(context.Background(), 1, july)
	require.NoError(t, err)
	require.Equal(t, 2500.0, total)
	require.Equal(t, savesBefore+1, store.aggregateSaves(), "a same-month change is one correction")
}

func TestApplyUpdateZeroDifferenceTouchesNothing(t *testing.T) {
	store := newMockStores()
	engine := NewEngine(store)

	require.NoError(t, engine.ApplyCreate(context.Background(), 1, []Expense{
		expenseOn(1, 2000, 2026, time.July, 3),
	}))
	savesBefore := store.aggregateSaves()

	// Category-only edit: same amount, same month.
	old := expenseOn(1, 2000, 2026, time.July, 3)
	require.NoError(t, engine.ApplyUpdate(context.Background(), old, old))
	require.Equal(t, savesBefore, store.aggregateSaves())
}

func TestApplyUpdateCrossMonthMove(t *testing.T) {
	store := newMockStores()
	engine := NewEngine(store)
	july := YearMonth{Year: 2026, Month: time.July}
	august := YearMonth{Year: 2026, Month: time.August}

	require.NoError(t, engine.ApplyCreate(context.Background(), 1, []Expense{
		expenseOn(1, 2000, 2026, time.July, 3),
		expenseOn(1, 300, 2026, time.July, 24),
	}))

	old := expenseOn(1, 2000, 2026, time.July, 3)
	moved := expenseOn(1, 2000, 2026, time.August, 3)
	require.NoError(t, engine.ApplyUpdate(context.Background(), old, moved))

	julyTotal, julyHas, err := engine.TotalForMonth(context.Background(), 1, july)
	require.NoError(t, err)
	require.True(t, julyHas)
	require.Equal(t, 300.0, julyTotal)

	augustTotal, augustHas, err := engine.TotalForMonth(context.Background(), 1, august)
	require.NoError(t, err)
	require.True(t, augustHas, "the destination month's row is created on demand")
	require.Equal(t, 2000.0, augustTotal)
}

func TestApplyUpdateCrossMonthMissingSourceRowFailsHard(t *testing.T) {
	store := newMockStores()
	engine := NewEngine(store)
	august := YearMonth{Year: 2026, Month: time.August}

	old := expenseOn(1, 2000, 2026, time.July, 3)
	moved := expenseOn(1, 2000, 2026, time.August, 3)
	err := engine.ApplyUpdate(context.Background(), old, moved)
	require.True(t, errors.Is(err, appErrors.ErrAggregateConsistency))

	_, hasRecord, err := engine.TotalForMonth(context.Background(), 1, august)
	require.NoError(t, err)
	require.False(t, hasRecord, "the destination month must not be touched after the source fails")
}

func TestTotalForMonthDistinguishesZeroFromAbsent(t *testing.T) {
	store := newMockStores()
	engine := NewEngine(store)
	july := YearMonth{Year: 2026, Month: time.July}

	_, hasRecord, err := engine.TotalForMonth(context.Background(), 1, july)
	require.NoError(t, err)
	require.False(t, hasRecord)

	// A month can legitimately total zero and still have a row.
	require.NoError(t, engine.ApplyCreate(context.Background(), 1, []Expense{
		expenseOn(1, 0, 2026, time.July, 3),
	}))

	total, hasRecord, err := engine.TotalForMonth(context.Background(), 1, july)
	require.NoError(t, err)
	require.True(t, hasRecord)
	require.Equal(t, 0.0, total)
}

func TestAggregatesAreScopedPerUser(t *testing.T) {
	store := newMockStores()
	engine := NewEngine(store)
	july := YearMonth{Year: 2026, Month: time.July}

	require.NoError(t, engine.ApplyCreate(context.Background(), 1, []Expense{
		expenseOn(1, 100, 2026, time.July, 3),
	}))
	require.NoError(t, engine.ApplyCreate(context.Background(), 2, []Expense{
		expenseOn(2, 900, 2026, time.July, 3),
	}))

	total, _, err := engine.TotalForMonth(context.Background(), 1, july)
	require.NoError(t, err)
	require.Equal(t, 100.0, total)

	total, _, err = engine.TotalForMonth(context.Background(), 2, july)
	require.NoError(t, err)
	require.Equal(t, 900.0, total)
}
