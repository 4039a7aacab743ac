package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	appErrors "github.com/expense-tracker/backend/errors"
	"github.com/expense-tracker/backend/internal/auth"
	"github.com/expense-tracker/backend/internal/expense"
)

func TestSaveUserAssignsIDAndRejectsDuplicateEmail(t *testing.T) {
	store := NewInMemoryStorage()
	ctx := context.Background()

	saved, err := store.SaveUser(ctx, &auth.User{Name: "John", Email: "john@example.com"})
	require.NoError(t, err)
	require.NotZero(t, saved.ID)
	require.False(t, saved.RegistrationDate.IsZero())

	_, err = store.SaveUser(ctx, &auth.User{Name: "Other John", Email: "john@example.com"})
	require.True(t, errors.Is(err, appErrors.ErrDuplicateEmail))
}

func TestSaveUserUpdatePreservesRegistrationDate(t *testing.T) {
	store := NewInMemoryStorage()
	ctx := context.Background()

	saved, err := store.SaveUser(ctx, &auth.User{Name: "John", Email: "john@example.com"})
	require.NoError(t, err)

	changed := *saved
	changed.PasswordHashed = "new-hash"
	updated, err := store.SaveUser(ctx, &changed)
	require.NoError(t, err)
	require.Equal(t, saved.RegistrationDate, updated.RegistrationDate)
	require.Equal(t, "new-hash", updated.PasswordHashed)

	reloaded, err := store.FindByID(ctx, saved.ID)
	require.NoError(t, err)
	require.Equal(t, "new-hash", reloaded.PasswordHashed)
}

func TestFindUserMissesReturnNil(t *testing.T) {
	store := NewInMemoryStorage()
	ctx := context.Background()

	user, err := store.FindByEmail(ctx, "nobody@example.com")
	require.NoError(t, err)
	require.Nil(t, user)

	user, err = store.FindByID(ctx, 404)
	require.NoError(t, err)
	require.Nil(t, user)
}

func TestExpenseRangeQueryIsInclusive(t *testing.T) {
	store := NewInMemoryStorage()
	ctx := context.Background()

	dates := []time.Time{
		time.Date(2026, time.June, 30, 0, 0, 0, 0, time.UTC),
		time.Date(2026, time.July, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, time.July, 31, 0, 0, 0, 0, time.UTC),
		time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC),
	}
	for _, date := range dates {
		_, err := store.SaveExpense(ctx, &expense.Expense{Description: "e", Amount: 1, Date: date, UserID: 1})
		require.NoError(t, err)
	}

	july := expense.YearMonth{Year: 2026, Month: time.July}
	result, err := store.FindExpensesByUserAndDateRange(ctx, 1, july.FirstDay(), july.LastDay())
	require.NoError(t, err)
	require.Len(t, result, 2, "both boundary days belong to the month")
}

func TestDeleteExpense(t *testing.T) {
	store := NewInMemoryStorage()
	ctx := context.Background()

	saved, err := store.SaveExpense(ctx, &expense.Expense{Description: "e", Amount: 1, Date: time.Now(), UserID: 1})
	require.NoError(t, err)

	require.NoError(t, store.DeleteExpense(ctx, saved.ID))
	require.True(t, errors.Is(store.DeleteExpense(ctx, saved.ID), appErrors.ErrExpenseNotFound))

	found, err := store.FindExpenseByID(ctx, saved.ID)
	require.NoError(t, err)
	require.Nil(t, found)
}

func TestSaveAggregateUpsert(t *testing.T) {
	store := NewInMemoryStorage()
	ctx := context.Background()
	july := expense.YearMonth{Year: 2026, Month: time.July}

	missing, err := store.FindAggregateByUserAndMonth(ctx, 1, july)
	require.NoError(t, err)
	require.Nil(t, missing)

	saved, err := store.SaveAggregate(ctx, &expense.AggregateExpense{UserID: 1, Month: july, Amount: 100})
	require.NoError(t, err)
	require.NotZero(t, saved.ID)

	saved.Amount = 250
	_, err = store.SaveAggregate(ctx, saved)
	require.NoError(t, err)

	reloaded, err := store.FindAggregateByUserAndMonth(ctx, 1, july)
	require.NoError(t, err)
	require.Equal(t, 250.0, reloaded.Amount)
}

func TestCategoryUniqueName(t *testing.T) {
	store := NewInMemoryStorage()
	ctx := context.Background()

	saved, err := store.SaveCategory(ctx, &expense.Category{Name: "groceries"})
	require.NoError(t, err)

	_, err = store.SaveCategory(ctx, &expense.Category{Name: "groceries"})
	require.Error(t, err)

	byName, err := store.FindCategoryByName(ctx, "groceries")
	require.NoError(t, err)
	require.Equal(t, saved.ID, byName.ID)
}
