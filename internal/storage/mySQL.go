package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	appErrors "github.com/expense-tracker/backend/errors"
	"github.com/expense-tracker/backend/internal/auth"
	"github.com/expense-tracker/backend/internal/contextutil"
	"github.com/expense-tracker/backend/internal/expense"
	"github.com/expense-tracker/backend/logging"
)

const mysqlDuplicateEntry = 1062

// Init connects to MySQL using DB_* env variables (or FULL_DSN),
// creates the database when missing and applies pending migrations
// from db/migrations.
func Init() (*sql.DB, error) {
	username := os.Getenv("DB_USER")
	password := os.Getenv("DB_PASS")
	host := os.Getenv("DB_HOST")
	port := os.Getenv("DB_PORT")
	dbname := os.Getenv("DB_NAME")
	fullDsn := os.Getenv("FULL_DSN")

	if dbname == "" {
		dbname = "expense_tracker"
	}

	var adminDsn string
	if fullDsn != "" {
		parts := strings.Split(fullDsn, "/")
		adminDsn = strings.Join(parts[:len(parts)-1], "/") + "/"
	} else {
		if username == "" || password == "" || host == "" || port == "" {
			return nil, fmt.Errorf("missing required DB environment variables")
		}
		adminDsn = fmt.Sprintf("%s:%s@tcp(%s:%s)/?parseTime=true", username, password, host, port)
	}

	logging.Logger.Info("Connecting to MySQL server for initialization...")
	adminDb, err := sql.Open("mysql", adminDsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open admin mysql handle: %v", err)
	}

	connected := false
	for i := 0; i < 15; i++ {
		if err := adminDb.Ping(); err == nil {
			connected = true
			break
		}
		logging.Logger.Warnf("Database not ready, retrying... (%d/15)", i+1)
		time.Sleep(3 * time.Second)
	}
	if !connected {
		adminDb.Close()
		return nil, fmt.Errorf("database unreachable after multiple attempts")
	}

	var dbnameExistence string
	checkDbnameExistQuery := "SELECT SCHEMA_NAME FROM INFORMATION_SCHEMA.SCHEMATA WHERE SCHEMA_NAME = ?"
	err = adminDb.QueryRow(checkDbnameExistQuery, dbname).Scan(&dbnameExistence)

	if err == sql.ErrNoRows {
		logging.Logger.Infof("Database '%s' does not exist, creating...", dbname)
		createDbSql := fmt.Sprintf("CREATE DATABASE `%s` CHARACTER SET utf8mb4 COLLATE utf8mb4_general_ci;", dbname)
		if _, err := adminDb.Exec(createDbSql); err != nil {
			adminDb.Close()
			return nil, fmt.Errorf("failed to create database: %v", err)
		}
	} else if err != nil {
		adminDb.Close()
		return nil, fmt.Errorf("failed to check database existence: %v", err)
	}

	adminDb.Close()

	var finalDsn string
	if fullDsn != "" {
		finalDsn = fullDsn
	} else {
		finalDsn = fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true", username, password, host, port, dbname)
	}

	db, err := sql.Open("mysql", finalDsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database handle: %v", err)
	}

	logging.Logger.Info("Connected to database successfully")
	logging.Logger.Info("Running migrations...")

	if err := runMigrations(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %v", err)
	}

	return db, nil
}

func runMigrations(db *sql.DB) error {
	migrationFiles, err := getMigrationFiles("db/migrations")
	if err != nil {
		return fmt.Errorf("failed to get migration files: %v", err)
	}

	lastAppliedMigration, err := getLastAppliedMigration(db)
	if err != nil {
		return fmt.Errorf("failed to get last applied migration name: %v", err)
	}

	newMigrations := filterNewMigrations(migrationFiles, lastAppliedMigration)
	if len(newMigrations) == 0 {
		logging.Logger.Info("no new migration")
		return nil
	}

	for _, migrationFile := range newMigrations {
		logging.Logger.Info("applying migration: ", migrationFile)
		migrationContent, err := os.ReadFile(filepath.Join("db/migrations/", migrationFile))
		if err != nil {
			return fmt.Errorf("failed to read this '%s' migration file, error: %v", migrationFile, err)
		}

		if err := applyMigration(db, migrationFile, string(migrationContent)); err != nil {
			return fmt.Errorf("failed to apply this '%s' migration file, error: %v", migrationFile, err)
		}
	}

	logging.Logger.Info("all migrations applied successfully")
	return nil
}

func getMigrationFiles(dir string) ([]string, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var migrationFiles []string
	for _, file := range files {
		if !file.IsDir() && strings.HasSuffix(file.Name(), ".sql") {
			migrationFiles = append(migrationFiles, file.Name())
		}
	}

	sort.Strings(migrationFiles)
	return migrationFiles, nil
}

func getLastAppliedMigration(db *sql.DB) (string, error) {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS migration (
        id INT AUTO_INCREMENT PRIMARY KEY,
        migration_name VARCHAR(255) NOT NULL UNIQUE,
        applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
    );`)
	if err != nil {
		return "", err
	}

	var lastMigration string
	err = db.QueryRow("SELECT migration_name FROM migration ORDER BY migration_name DESC LIMIT 1").Scan(&lastMigration)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return lastMigration, err
}

func filterNewMigrations(all []string, lastApplied string) []string {
	if lastApplied == "" {
		return all
	}

	var result []string
	for _, migration := range all {
		if migration > lastApplied {
			result = append(result, migration)
		}
	}
	return result
}

func applyMigration(db *sql.DB, name, sqlContent string) error {
	txn, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	for _, statement := range strings.Split(sqlContent, ";") {
		trimmedStmt := strings.TrimSpace(statement)
		if trimmedStmt == "" {
			continue
		}
		if _, err := txn.Exec(trimmedStmt); err != nil {
			txn.Rollback()
			return fmt.Errorf("migration statement failed: %w\nStatement: %s", err, trimmedStmt)
		}
	}

	if _, err := txn.Exec("INSERT INTO migration (migration_name) VALUES (?)", name); err != nil {
		txn.Rollback()
		return fmt.Errorf("failed to record migration name: %w", err)
	}

	return txn.Commit()
}

type MySQLStorage struct {
	db *sql.DB
}

func NewMySQLStorage(db *sql.DB) *MySQLStorage {
	return &MySQLStorage{db: db}
}

func (mySql *MySQLStorage) GetStorageType() string {
	return "mysql"
}

func isDuplicateEntry(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry
}

// --- IdentityStore --- //

func (mySql *MySQLStorage) SaveUser(ctx context.Context, user *auth.User) (*auth.User, error) {
	traceID := contextutil.TraceIDFromContext(ctx)

	if user.ID != 0 {
		query := "UPDATE user SET name = ?, email = ?, hashed_password = ?, mobile_number = ? WHERE id = ?;"
		if _, err := mySql.db.ExecContext(ctx, query, user.Name, user.Email, user.PasswordHashed, user.MobileNumber, user.ID); err != nil {
			logging.WithTrace(traceID).Errorf("failed to update user in Storage.SaveUser(): %v", err)
			return nil, fmt.Errorf("failed to update user: %v", err)
		}
		saved := *user
		return &saved, nil
	}

	query := "INSERT INTO user (name, email, hashed_password, mobile_number) VALUES (?, ?, ?, ?);"
	result, err := mySql.db.ExecContext(ctx, query, user.Name, user.Email, user.PasswordHashed, user.MobileNumber)
	if err != nil {
		if isDuplicateEntry(err) {
			return nil, fmt.Errorf("%w: %s", appErrors.ErrDuplicateEmail, user.Email)
		}
		logging.WithTrace(traceID).Errorf("failed to save user in Storage.SaveUser(): %v", err)
		return nil, fmt.Errorf("failed to save user: %v", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read inserted user id: %v", err)
	}

	saved := *user
	saved.ID = id
	return &saved, nil
}

func (mySql *MySQLStorage) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	query := `SELECT id, name, email, hashed_password, mobile_number, registration_date, last_modified FROM user WHERE email = ?`

	var user auth.User
	err := mySql.db.QueryRowContext(ctx, query, email).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHashed,
		&user.MobileNumber,
		&user.RegistrationDate,
		&user.LastModified,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query user by email: %v", err)
	}
	return &user, nil
}

func (mySql *MySQLStorage) FindByID(ctx context.Context, id int64) (*auth.User, error) {
	query := `SELECT id, name, email, hashed_password, mobile_number, registration_date, last_modified FROM user WHERE id = ?`

	var user auth.User
	err := mySql.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHashed,
		&user.MobileNumber,
		&user.RegistrationDate,
		&user.LastModified,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query user by id: %v", err)
	}
	return &user, nil
}

// --- ExpenseStore --- //

func (mySql *MySQLStorage) SaveExpense(ctx context.Context, e *expense.Expense) (*expense.Expense, error) {
	traceID := contextutil.TraceIDFromContext(ctx)

	if e.ID != 0 {
		query := "UPDATE expense SET description = ?, amount = ?, date = ?, category_id = ?, user_id = ? WHERE id = ?;"
		if _, err := mySql.db.ExecContext(ctx, query, e.Description, e.Amount, e.Date, e.CategoryID, e.UserID, e.ID); err != nil {
			logging.WithTrace(traceID).Errorf("failed to update expense in Storage.SaveExpense(): %v", err)
			return nil, fmt.Errorf("failed to update expense: %v", err)
		}
		saved := *e
		return &saved, nil
	}

	query := "INSERT INTO expense (description, amount, date, category_id, user_id) VALUES (?, ?, ?, ?, ?);"
	result, err := mySql.db.ExecContext(ctx, query, e.Description, e.Amount, e.Date, e.CategoryID, e.UserID)
	if err != nil {
		logging.WithTrace(traceID).Errorf("failed to save expense in Storage.SaveExpense(): %v", err)
		return nil, fmt.Errorf("failed to save expense: %v", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read inserted expense id: %v", err)
	}

	saved := *e
	saved.ID = id
	return &saved, nil
}

func (mySql *MySQLStorage) DeleteExpense(ctx context.Context, id int64) error {
	traceID := contextutil.TraceIDFromContext(ctx)

	result, err := mySql.db.ExecContext(ctx, "DELETE FROM expense WHERE id = ?;", id)
	if err != nil {
		logging.WithTrace(traceID).Errorf("failed to delete expense in Storage.DeleteExpense(): %v", err)
		return fmt.Errorf("failed to delete expense: %v", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %v", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: id %d", appErrors.ErrExpenseNotFound, id)
	}
	return nil
}

func (mySql *MySQLStorage) FindExpenseByID(ctx context.Context, id int64) (*expense.Expense, error) {
	query := `SELECT id, description, amount, date, category_id, user_id FROM expense WHERE id = ?`
	return mySql.scanExpenseRow(mySql.db.QueryRowContext(ctx, query, id))
}

func (mySql *MySQLStorage) FindExpenseByIDAndUser(ctx context.Context, id, userID int64) (*expense.Expense, error) {
	query := `SELECT id, description, amount, date, category_id, user_id FROM expense WHERE id = ? AND user_id = ?`
	return mySql.scanExpenseRow(mySql.db.QueryRowContext(ctx, query, id, userID))
}

func (mySql *MySQLStorage) scanExpenseRow(row *sql.Row) (*expense.Expense, error) {
	var e expense.Expense
	err := row.Scan(&e.ID, &e.Description, &e.Amount, &e.Date, &e.CategoryID, &e.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query expense: %v", err)
	}
	return &e, nil
}

func (mySql *MySQLStorage) FindExpensesByUserAndDateRange(ctx context.Context, userID int64, from, to time.Time) ([]expense.Expense, error) {
	query := `SELECT id, description, amount, date, category_id, user_id FROM expense WHERE user_id = ? AND date BETWEEN ? AND ? ORDER BY date, id`

	rows, err := mySql.db.QueryContext(ctx, query, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query expenses by date range: %v", err)
	}
	defer rows.Close()

	var result []expense.Expense
	for rows.Next() {
		var e expense.Expense
		if err := rows.Scan(&e.ID, &e.Description, &e.Amount, &e.Date, &e.CategoryID, &e.UserID); err != nil {
			return nil, fmt.Errorf("failed to scan expense row: %v", err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate expense rows: %v", err)
	}
	return result, nil
}

// --- AggregateStore --- //

func (mySql *MySQLStorage) SaveAggregate(ctx context.Context, a *expense.AggregateExpense) (*expense.AggregateExpense, error) {
	traceID := contextutil.TraceIDFromContext(ctx)

	if a.ID != 0 {
		query := "UPDATE aggregate_expense SET amount = ? WHERE id = ?;"
		if _, err := mySql.db.ExecContext(ctx, query, a.Amount, a.ID); err != nil {
			logging.WithTrace(traceID).Errorf("failed to update aggregate in Storage.SaveAggregate(): %v", err)
			return nil, fmt.Errorf("failed to update aggregate: %v", err)
		}
		saved := *a
		return &saved, nil
	}

	query := "INSERT INTO aggregate_expense (user_id, expense_month, expense_year, amount) VALUES (?, ?, ?, ?);"
	result, err := mySql.db.ExecContext(ctx, query, a.UserID, int(a.Month.Month), a.Month.Year, a.Amount)
	if err != nil {
		logging.WithTrace(traceID).Errorf("failed to save aggregate in Storage.SaveAggregate(): %v", err)
		return nil, fmt.Errorf("failed to save aggregate: %v", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read inserted aggregate id: %v", err)
	}

	saved := *a
	saved.ID = id
	return &saved, nil
}

func (mySql *MySQLStorage) FindAggregateByUserAndMonth(ctx context.Context, userID int64, month expense.YearMonth) (*expense.AggregateExpense, error) {
	query := `SELECT id, user_id, expense_month, expense_year, amount FROM aggregate_expense WHERE user_id = ? AND expense_month = ? AND expense_year = ?`

	var a expense.AggregateExpense
	var monthNumber int
	err := mySql.db.QueryRowContext(ctx, query, userID, int(month.Month), month.Year).Scan(
		&a.ID,
		&a.UserID,
		&monthNumber,
		&a.Month.Year,
		&a.Amount,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query aggregate: %v", err)
	}
	a.Month.Month = time.Month(monthNumber)
	return &a, nil
}

// --- CategoryStore --- //

func (mySql *MySQLStorage) SaveCategory(ctx context.Context, c *expense.Category) (*expense.Category, error) {
	traceID := contextutil.TraceIDFromContext(ctx)

	result, err := mySql.db.ExecContext(ctx, "INSERT INTO category (name) VALUES (?);", c.Name)
	if err != nil {
		if isDuplicateEntry(err) {
			return nil, fmt.Errorf("category %q already exists", c.Name)
		}
		logging.WithTrace(traceID).Errorf("failed to save category in Storage.SaveCategory(): %v", err)
		return nil, fmt.Errorf("failed to save category: %v", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read inserted category id: %v", err)
	}

	saved := *c
	saved.ID = id
	return &saved, nil
}

func (mySql *MySQLStorage) FindCategoryByName(ctx context.Context, name string) (*expense.Category, error) {
	var c expense.Category
	err := mySql.db.QueryRowContext(ctx, "SELECT id, name FROM category WHERE name = ?", name).Scan(&c.ID, &c.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query category by name: %v", err)
	}
	return &c, nil
}

func (mySql *MySQLStorage) FindCategoryByID(ctx context.Context, id int64) (*expense.Category, error) {
	var c expense.Category
	err := mySql.db.QueryRowContext(ctx, "SELECT id, name FROM category WHERE id = ?", id).Scan(&c.ID, &c.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query category by id: %v", err)
	}
	return &c, nil
}
