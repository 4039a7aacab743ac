package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/0xcafe-io/iz"
	"github.com/google/uuid"

	appErrors "github.com/expense-tracker/backend/errors"
	"github.com/expense-tracker/backend/internal/auth"
	"github.com/expense-tracker/backend/internal/contextutil"
	"github.com/expense-tracker/backend/internal/expense"
	"github.com/expense-tracker/backend/logging"
)

type Api struct {
	Accounts      *auth.Accounts
	Authenticator *auth.Authenticator
	Issuer        *auth.TokenIssuer
	Validator     *auth.TokenValidator
	Tracker       *expense.Tracker
}

func NewApi(accounts *auth.Accounts, authenticator *auth.Authenticator, issuer *auth.TokenIssuer, validator *auth.TokenValidator, tracker *expense.Tracker) *Api {
	return &Api{
		Accounts:      accounts,
		Authenticator: authenticator,
		Issuer:        issuer,
		Validator:     validator,
		Tracker:       tracker,
	}
}

// requestContext tags the request context with a fresh trace id.
func requestContext(r *iz.Request) context.Context {
	return contextutil.WithTraceID(r.Context(), uuid.NewString())
}

// authorize resolves the bearer token into the calling user and tags
// the context with the resolved id. Token problems surface as the
// token sentinels; anything else is an infrastructure failure and must
// not be reported as an authorization one.
func (api *Api) authorize(ctx context.Context, r *iz.Request) (context.Context, int64, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ctx, 0, fmt.Errorf("%w: Authorization header is required", appErrors.ErrMalformedToken)
	}
	token := strings.TrimPrefix(header, "Bearer ")
	_, userID, err := api.Validator.Validate(ctx, token)
	if err != nil {
		return ctx, 0, err
	}
	return contextutil.WithUserID(ctx, userID), userID, nil
}

func (api *Api) RegisterUserHandler(r *iz.Request) iz.Responder {
	ctx := requestContext(r)

	var registerReq RegisterUserRequest
	if err := json.NewDecoder(r.Body).Decode(&registerReq); err != nil {
		msg := fmt.Sprintf("invalid request body: %s", err.Error())
		return iz.Respond().Status(400).Text(msg)
	}

	newUser := auth.NewUser{
		Name:          registerReq.Name,
		Email:         registerReq.Email,
		PasswordPlain: registerReq.Password,
		MobileNumber:  registerReq.MobileNumber,
	}

	user, err := api.Accounts.Register(ctx, newUser)
	if err != nil {
		msg := fmt.Sprintf("registration failed: %v", err)
		return iz.Respond().Status(httpStatusFromError(err)).Text(msg)
	}

	resp := RegisterResponse{
		Message: "Registration Completed",
		UserID:  user.ID,
	}
	return iz.Respond().Status(201).JSON(resp)
}

func (api *Api) LoginHandler(r *iz.Request) iz.Responder {
	ctx := requestContext(r)

	var loginReq LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&loginReq); err != nil {
		msg := fmt.Sprintf("invalid request body: %s", err.Error())
		return iz.Respond().Status(400).Text(msg)
	}

	principal, err := api.Authenticator.Authenticate(ctx, loginReq.Email, loginReq.Password)
	if err != nil {
		msg := fmt.Sprintf("login failed: %v", err)
		return iz.Respond().Status(httpStatusFromError(err)).Text(msg)
	}

	issued, err := api.Issuer.Issue(principal)
	if err != nil {
		logging.Logger.Errorf("failed to issue token for %s: %v", principal.Email, err)
		return iz.Respond().Status(500).Text("login failed: could not issue token")
	}

	resp := LoginResponse{
		Message:   "Login Successful",
		Token:     issued.Token,
		ExpiresAt: issued.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"),
	}
	return iz.Respond().Status(200).JSON(resp)
}

func (api *Api) ChangePasswordHandler(r *iz.Request) iz.Responder {
	ctx := requestContext(r)

	ctx, userID, err := api.authorize(ctx, r)
	if err != nil {
		msg := fmt.Sprintf("authorization failed: %s", err.Error())
		return iz.Respond().Status(httpStatusFromError(err)).Text(msg)
	}

	var changeReq ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&changeReq); err != nil {
		msg := fmt.Sprintf("invalid request body: %s", err.Error())
		return iz.Respond().Status(400).Text(msg)
	}

	if err := api.Accounts.ChangePassword(ctx, userID, changeReq.NewPassword); err != nil {
		msg := fmt.Sprintf("failed to change password: %v", err)
		return iz.Respond().Status(httpStatusFromError(err)).Text(msg)
	}
	return iz.Respond().Status(200).Text("password changed")
}

func (api *Api) CreateExpensesHandler(r *iz.Request) iz.Responder {
	ctx := requestContext(r)

	ctx, userID, err := api.authorize(ctx, r)
	if err != nil {
		msg := fmt.Sprintf("authorization failed: %s", err.Error())
		return iz.Respond().Status(httpStatusFromError(err)).Text(msg)
	}

	var createReq CreateExpensesRequest
	if err := json.NewDecoder(r.Body).Decode(&createReq); err != nil {
		msg := fmt.Sprintf("invalid request body: %s", err.Error())
		return iz.Respond().Status(400).Text(msg)
	}
	if len(createReq.Expenses) == 0 {
		return iz.Respond().Status(400).Text("at least one expense is required")
	}

	batch := make([]expense.NewExpense, 0, len(createReq.Expenses))
	for _, item := range createReq.Expenses {
		newExpense, err := item.toNewExpense()
		if err != nil {
			return iz.Respond().Status(httpStatusFromError(err)).Text(err.Error())
		}
		batch = append(batch, newExpense)
	}

	created, err := api.Tracker.CreateExpenses(ctx, userID, batch)
	if err != nil {
		msg := fmt.Sprintf("failed to create expenses: %v", err)
		return iz.Respond().Status(httpStatusFromError(err)).Text(msg)
	}

	items, err := api.expensesToHTTP(ctx, created)
	if err != nil {
		return iz.Respond().Status(500).Text(err.Error())
	}
	return iz.Respond().Status(201).JSON(items)
}

func (api *Api) ListExpensesHandler(r *iz.Request) iz.Responder {
	ctx := requestContext(r)

	ctx, userID, err := api.authorize(ctx, r)
	if err != nil {
		msg := fmt.Sprintf("authorization failed: %s", err.Error())
		return iz.Respond().Status(httpStatusFromError(err)).Text(msg)
	}

	params := r.URL.Query()
	month, err := expense.ParseYearMonth(params.Get("month"))
	if err != nil {
		return iz.Respond().Status(httpStatusFromError(err)).Text(err.Error())
	}

	expenses, err := api.Tracker.ExpensesForMonth(ctx, userID, month)
	if err != nil {
		msg := fmt.Sprintf("failed to list expenses: %v", err)
		return iz.Respond().Status(httpStatusFromError(err)).Text(msg)
	}

	items, err := api.expensesToHTTP(ctx, expenses)
	if err != nil {
		return iz.Respond().Status(500).Text(err.Error())
	}
	resp := ExpenseListResponse{
		Month:    month.String(),
		Expenses: items,
	}
	return iz.Respond().Status(200).JSON(resp)
}

func (api *Api) UpdateExpenseHandler(r *iz.Request) iz.Responder {
	ctx := requestContext(r)

	ctx, userID, err := api.authorize(ctx, r)
	if err != nil {
		msg := fmt.Sprintf("authorization failed: %s", err.Error())
		return iz.Respond().Status(httpStatusFromError(err)).Text(msg)
	}

	expenseID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		return iz.Respond().Status(400).Text("invalid expense id")
	}

	var updateReq UpdateExpenseRequest
	if err := json.NewDecoder(r.Body).Decode(&updateReq); err != nil {
		msg := fmt.Sprintf("invalid request body: %s", err.Error())
		return iz.Respond().Status(400).Text(msg)
	}

	update, err := updateReq.toUpdate()
	if err != nil {
		return iz.Respond().Status(httpStatusFromError(err)).Text(err.Error())
	}

	updated, err := api.Tracker.UpdateExpense(ctx, userID, expenseID, update)
	if err != nil {
		msg := fmt.Sprintf("failed to update expense: %v", err)
		return iz.Respond().Status(httpStatusFromError(err)).Text(msg)
	}

	categoryName, err := api.Tracker.CategoryName(ctx, updated.CategoryID)
	if err != nil {
		return iz.Respond().Status(500).Text(err.Error())
	}
	return iz.Respond().Status(200).JSON(expenseToHTTP(updated, categoryName))
}

func (api *Api) DeleteExpenseHandler(r *iz.Request) iz.Responder {
	ctx := requestContext(r)

	ctx, userID, err := api.authorize(ctx, r)
	if err != nil {
		msg := fmt.Sprintf("authorization failed: %s", err.Error())
		return iz.Respond().Status(httpStatusFromError(err)).Text(msg)
	}

	expenseID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		return iz.Respond().Status(400).Text("invalid expense id")
	}

	if err := api.Tracker.DeleteExpense(ctx, userID, expenseID); err != nil {
		msg := fmt.Sprintf("failed to delete expense: %v", err)
		return iz.Respond().Status(httpStatusFromError(err)).Text(msg)
	}
	return iz.Respond().Status(204).Text("")
}

func (api *Api) TotalForMonthHandler(r *iz.Request) iz.Responder {
	ctx := requestContext(r)

	ctx, userID, err := api.authorize(ctx, r)
	if err != nil {
		msg := fmt.Sprintf("authorization failed: %s", err.Error())
		return iz.Respond().Status(httpStatusFromError(err)).Text(msg)
	}

	params := r.URL.Query()
	month, err := expense.ParseYearMonth(params.Get("month"))
	if err != nil {
		return iz.Respond().Status(httpStatusFromError(err)).Text(err.Error())
	}

	total, hasRecord, err := api.Tracker.TotalForMonth(ctx, userID, month)
	if err != nil {
		msg := fmt.Sprintf("failed to get monthly total: %v", err)
		return iz.Respond().Status(httpStatusFromError(err)).Text(msg)
	}

	resp := MonthlyTotalResponse{
		Month:     month.String(),
		Total:     total,
		HasRecord: hasRecord,
	}
	return iz.Respond().Status(200).JSON(resp)
}

func (api *Api) expensesToHTTP(ctx context.Context, expenses []expense.Expense) ([]ExpenseItem, error) {
	// Category names of one month's expenses repeat a lot, resolve each
	// id once per request.
	names := make(map[int64]string)
	items := make([]ExpenseItem, 0, len(expenses))
	for _, e := range expenses {
		name, ok := names[e.CategoryID]
		if !ok {
			resolved, err := api.Tracker.CategoryName(ctx, e.CategoryID)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve category name: %v", err)
			}
			name = resolved
			names[e.CategoryID] = name
		}
		items = append(items, expenseToHTTP(e, name))
	}
	return items, nil
}
