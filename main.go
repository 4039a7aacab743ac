package main

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/0xcafe-io/iz"
	"github.com/rs/cors"

	"github.com/expense-tracker/backend/api"
	"github.com/expense-tracker/backend/internal/auth"
	"github.com/expense-tracker/backend/internal/expense"
	"github.com/expense-tracker/backend/internal/storage"
	"github.com/expense-tracker/backend/logging"
)

const defaultTokenTTL = 30 * time.Minute

var corsConf = cors.New(cors.Options{
	AllowedOrigins:   []string{"*"},
	AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
	AllowedHeaders:   []string{"Authorization", "Content-Type"},
	AllowCredentials: true,
})

func tokenKey() ([]byte, error) {
	secret := os.Getenv("TOKEN_SECRET")
	if secret == "" {
		return nil, fmt.Errorf("TOKEN_SECRET environment variable is required")
	}
	key, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return nil, fmt.Errorf("TOKEN_SECRET is not valid base64: %v", err)
	}
	return key, nil
}

func tokenTTL() time.Duration {
	raw := os.Getenv("TOKEN_TTL")
	if raw == "" {
		return defaultTokenTTL
	}
	ttl, err := time.ParseDuration(raw)
	if err != nil || ttl <= 0 {
		logging.Logger.Warnf("invalid TOKEN_TTL %q, using default %s", raw, defaultTokenTTL)
		return defaultTokenTTL
	}
	return ttl
}

func main() {
	if err := logging.Init("debug"); err != nil {
		fmt.Println("failed to initialize logger:", err)
		return
	}

	logging.Logger.Info("application starting...")

	db, err := storage.Init()
	if err != nil {
		logging.Logger.Errorf("failed to initialize database: %v", err)
		return
	}

	store := storage.NewMySQLStorage(db)

	key, err := tokenKey()
	if err != nil {
		logging.Logger.Errorf("failed to load token key: %v", err)
		return
	}

	directory := auth.NewDirectory(store)
	accounts := auth.NewAccounts(store)
	authenticator := auth.NewAuthenticator(directory)

	issuer, err := auth.NewTokenIssuer(key, tokenTTL())
	if err != nil {
		logging.Logger.Errorf("failed to create token issuer: %v", err)
		return
	}
	validator, err := auth.NewTokenValidator(key, directory)
	if err != nil {
		logging.Logger.Errorf("failed to create token validator: %v", err)
		return
	}

	engine := expense.NewEngine(store)
	tracker := expense.NewTracker(store, store, directory, engine)

	server := http.NewServeMux()
	api := api.NewApi(accounts, authenticator, issuer, validator, tracker)

	// PUBLIC ENDPOINTS.
	server.HandleFunc("POST /public/register", iz.Bind(api.RegisterUserHandler)) // Create User
	server.HandleFunc("POST /public/login", iz.Bind(api.LoginHandler))           // Login User

	// AUTHENTICATED ENDPOINTS.
	server.HandleFunc("POST /api/password", iz.Bind(api.ChangePasswordHandler))       // Change Password
	server.HandleFunc("POST /api/expenses", iz.Bind(api.CreateExpensesHandler))       // Create Expenses (batch)
	server.HandleFunc("GET /api/expenses", iz.Bind(api.ListExpensesHandler))          // List Expenses of a month
	server.HandleFunc("PUT /api/expenses/{id}", iz.Bind(api.UpdateExpenseHandler))    // Update Expense
	server.HandleFunc("DELETE /api/expenses/{id}", iz.Bind(api.DeleteExpenseHandler)) // Delete Expense
	server.HandleFunc("GET /api/expenses/total", iz.Bind(api.TotalForMonthHandler))   // Monthly Total

	port := os.Getenv("APP_PORT")
	if port == "" {
		logging.Logger.Info("APP_PORT environment variable not set, using default port 8080")
		port = "8080"
	}
	fmt.Println("Starting server on port: ", port)
	handlerWithCors := corsConf.Handler(server)
	if err := http.ListenAndServe(":"+port, handlerWithCors); err != nil {
		logging.Logger.Errorf("failed to start server: %v", err)
		return
	}
}
