package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	appErrors "github.com/expense-tracker/backend/errors"
	"github.com/expense-tracker/backend/internal/auth"
	"github.com/expense-tracker/backend/internal/expense"
)

// InMemoryStorage backs all four store contracts with slices behind
// one mutex. It is the storage used by tests and local runs; MySQL is
// the durable twin.
type InMemoryStorage struct {
	mu         sync.Mutex
	users      []auth.User
	expenses   []expense.Expense
	aggregates []expense.AggregateExpense
	categories []expense.Category
	nextID     int64
}

func NewInMemoryStorage() *InMemoryStorage {
	return &InMemoryStorage{nextID: 1}
}

func (inMem *InMemoryStorage) GetStorageType() string {
	return "inmemory"
}

func (inMem *InMemoryStorage) allocateID() int64 {
	id := inMem.nextID
	inMem.nextID++
	return id
}

// --- IdentityStore --- //

func (inMem *InMemoryStorage) SaveUser(ctx context.Context, user *auth.User) (*auth.User, error) {
	inMem.mu.Lock()
	defer inMem.mu.Unlock()

	now := time.Now().UTC()

	for i, existing := range inMem.users {
		if existing.ID == user.ID && user.ID != 0 {
			updated := *user
			updated.RegistrationDate = existing.RegistrationDate
			updated.LastModified = now
			inMem.users[i] = updated
			return &updated, nil
		}
	}

	for _, existing := range inMem.users {
		if existing.Email == user.Email {
			return nil, fmt.Errorf("%w: %s", appErrors.ErrDuplicateEmail, user.Email)
		}
	}

	saved := *user
	saved.ID = inMem.allocateID()
	saved.RegistrationDate = now
	saved.LastModified = now
	inMem.users = append(inMem.users, saved)
	return &saved, nil
}

func (inMem *InMemoryStorage) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	inMem.mu.Lock()
	defer inMem.mu.Unlock()

	for _, user := range inMem.users {
		if user.Email == email {
			found := user
			return &found, nil
		}
	}
	return nil, nil
}

func (inMem *InMemoryStorage) FindByID(ctx context.Context, id int64) (*auth.User, error) {
	inMem.mu.Lock()
	defer inMem.mu.Unlock()

	for _, user := range inMem.users {
		if user.ID == id {
			found := user
			return &found, nil
		}
	}
	return nil, nil
}

// --- ExpenseStore --- //

func (inMem *InMemoryStorage) SaveExpense(ctx context.Context, e *expense.Expense) (*expense.Expense, error) {
	inMem.mu.Lock()
	defer inMem.mu.Unlock()

	if e.ID != 0 {
		for i, existing := range inMem.expenses {
			if existing.ID == e.ID {
				saved := *e
				inMem.expenses[i] = saved
				return &saved, nil
			}
		}
	}

	saved := *e
	saved.ID = inMem.allocateID()
	inMem.expenses = append(inMem.expenses, saved)
	return &saved, nil
}

func (inMem *InMemoryStorage) DeleteExpense(ctx context.Context, id int64) error {
	inMem.mu.Lock()
	defer inMem.mu.Unlock()

	for i, existing := range inMem.expenses {
		if existing.ID == id {
			inMem.expenses = append(inMem.expenses[:i], inMem.expenses[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: id %d", appErrors.ErrExpenseNotFound, id)
}

func (inMem *InMemoryStorage) FindExpenseByID(ctx context.Context, id int64) (*expense.Expense, error) {
	inMem.mu.Lock()
	defer inMem.mu.Unlock()

	for _, existing := range inMem.expenses {
		if existing.ID == id {
			found := existing
			return &found, nil
		}
	}
	return nil, nil
}

func (inMem *InMemoryStorage) FindExpenseByIDAndUser(ctx context.Context, id, userID int64) (*expense.Expense, error) {
	inMem.mu.Lock()
	defer inMem.mu.Unlock()

	for _, existing := range inMem.expenses {
		if existing.ID == id && existing.UserID == userID {
			found := existing
			return &found, nil
		}
	}
	return nil, nil
}

func (inMem *InMemoryStorage) FindExpensesByUserAndDateRange(ctx context.Context, userID int64, from, to time.Time) ([]expense.Expense, error) {
	inMem.mu.Lock()
	defer inMem.mu.Unlock()

	var result []expense.Expense
	for _, existing := range inMem.expenses {
		if existing.UserID != userID {
			continue
		}
		if existing.Date.Before(from) || existing.Date.After(to) {
			continue
		}
		result = append(result, existing)
	}
	return result, nil
}

// --- AggregateStore --- //

func (inMem *InMemoryStorage) SaveAggregate(ctx context.Context, a *expense.AggregateExpense) (*expense.AggregateExpense, error) {
	inMem.mu.Lock()
	defer inMem.mu.Unlock()

	if a.ID != 0 {
		for i, existing := range inMem.aggregates {
			if existing.ID == a.ID {
				saved := *a
				inMem.aggregates[i] = saved
				return &saved, nil
			}
		}
	}

	saved := *a
	saved.ID = inMem.allocateID()
	inMem.aggregates = append(inMem.aggregates, saved)
	return &saved, nil
}

func (inMem *InMemoryStorage) FindAggregateByUserAndMonth(ctx context.Context, userID int64, month expense.YearMonth) (*expense.AggregateExpense, error) {
	inMem.mu.Lock()
	defer inMem.mu.Unlock()

	for _, existing := range inMem.aggregates {
		if existing.UserID == userID && existing.Month == month {
			found := existing
			return &found, nil
		}
	}
	return nil, nil
}

// --- CategoryStore --- //

func (inMem *InMemoryStorage) SaveCategory(ctx context.Context, c *expense.Category) (*expense.Category, error) {
	inMem.mu.Lock()
	defer inMem.mu.Unlock()

	for _, existing := range inMem.categories {
		if existing.Name == c.Name {
			return nil, fmt.Errorf("category %q already exists", c.Name)
		}
	}

	saved := *c
	saved.ID = inMem.allocateID()
	inMem.categories = append(inMem.categories, saved)
	return &saved, nil
}

func (inMem *InMemoryStorage) FindCategoryByName(ctx context.Context, name string) (*expense.Category, error) {
	inMem.mu.Lock()
	defer inMem.mu.Unlock()

	for _, existing := range inMem.categories {
		if existing.Name == name {
			found := existing
			return &found, nil
		}
	}
	return nil, nil
}

func (inMem *InMemoryStorage) FindCategoryByID(ctx context.Context, id int64) (*expense.Category, error) {
	inMem.mu.Lock()
	defer inMem.mu.Unlock()

	for _, existing := range inMem.categories {
		if existing.ID == id {
			found := existing
			return &found, nil
		}
	}
	return nil, nil
}
