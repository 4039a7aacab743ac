package api

import (
	"errors"
	"fmt"
	"time"

	appErrors "github.com/expense-tracker/backend/errors"
	"github.com/expense-tracker/backend/internal/expense"
)

const dateLayout = "2006-01-02"

// REQUESTS START:
type RegisterUserRequest struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	MobileNumber string `json:"mobile_number"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ChangePasswordRequest struct {
	NewPassword string `json:"new_password"`
}

type ExpenseRequestItem struct {
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	Date        string  `json:"date"` // yyyy-mm-dd
	Category    string  `json:"category"`
}

type CreateExpensesRequest struct {
	Expenses []ExpenseRequestItem `json:"expenses"`
}

type UpdateExpenseRequest struct {
	Description *string  `json:"description"`
	Amount      *float64 `json:"amount"`
	Date        *string  `json:"date"`
	Category    *string  `json:"category"`
}

//REQUESTS END:

//RESPONSES:

type RegisterResponse struct {
	Message string `json:"message"`
	UserID  int64  `json:"user_id"`
}

type LoginResponse struct {
	Message   string `json:"message"`
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

type ExpenseItem struct {
	ID          int64   `json:"id"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	Date        string  `json:"date"`
	Category    string  `json:"category"`
}

type ExpenseListResponse struct {
	Month    string        `json:"month"`
	Expenses []ExpenseItem `json:"expenses"`
}

type MonthlyTotalResponse struct {
	Month     string  `json:"month"`
	Total     float64 `json:"total"`
	HasRecord bool    `json:"has_record"`
}

func httpStatusFromError(err error) int {
	switch {
	case errors.Is(err, appErrors.ErrUserNotFound),
		errors.Is(err, appErrors.ErrExpenseNotFound):
		return 404 // not found
	case errors.Is(err, appErrors.ErrInvalidInput):
		return 400 // bad request
	case errors.Is(err, appErrors.ErrInvalidCredentials),
		errors.Is(err, appErrors.ErrExpiredToken),
		errors.Is(err, appErrors.ErrMalformedToken),
		errors.Is(err, appErrors.ErrUnknownUser):
		return 401 // unauthorized
	case errors.Is(err, appErrors.ErrExpenseOwnership):
		return 403 // access denied
	case errors.Is(err, appErrors.ErrDuplicateEmail):
		return 409 // conflict
	default:
		return 500 //internal error
	}
}

func (item ExpenseRequestItem) toNewExpense() (expense.NewExpense, error) {
	date, err := time.Parse(dateLayout, item.Date)
	if err != nil {
		return expense.NewExpense{}, fmt.Errorf("%w: date %q is not in yyyy-mm-dd format", appErrors.ErrInvalidInput, item.Date)
	}
	return expense.NewExpense{
		Description:  item.Description,
		Amount:       item.Amount,
		Date:         date,
		CategoryName: item.Category,
	}, nil
}

func (req UpdateExpenseRequest) toUpdate() (expense.UpdateExpense, error) {
	update := expense.UpdateExpense{
		Description:  req.Description,
		Amount:       req.Amount,
		CategoryName: req.Category,
	}
	if req.Date != nil {
		date, err := time.Parse(dateLayout, *req.Date)
		if err != nil {
			return expense.UpdateExpense{}, fmt.Errorf("%w: date %q is not in yyyy-mm-dd format", appErrors.ErrInvalidInput, *req.Date)
		}
		update.Date = &date
	}
	return update, nil
}

func expenseToHTTP(e expense.Expense, categoryName string) ExpenseItem {
	return ExpenseItem{
		ID:          e.ID,
		Description: e.Description,
		Amount:      e.Amount,
		Date:        e.Date.Format(dateLayout),
		Category:    categoryName,
	}
}
