package auth

import (
	"context"
	"fmt"
	"regexp"
	"time"

	appErrors "github.com/expense-tracker/backend/errors"
)

const (
	MAX_LENGTH_NAME     = 255
	MAX_LENGTH_EMAIL    = 255
	MAX_PASSWORD_LENGTH = 72 // bcrypt input limit
)

// User is the durable identity record. Instances handed out by the
// credential cache are immutable snapshots; a password change writes a
// fresh record and never mutates a cached one in place.
type User struct {
	ID               int64
	Name             string
	Email            string
	PasswordHashed   string
	MobileNumber     string
	RegistrationDate time.Time
	LastModified     time.Time
}

type NewUser struct {
	Name          string
	Email         string
	PasswordPlain string
	MobileNumber  string
}

// Principal is the authenticated identity attached to a request. It
// carries the email only, never credentials.
type Principal struct {
	Email string
}

// IdentityStore is the consumed contract for durable user storage.
// Lookups return (nil, nil) when no record exists; the unique-email
// constraint is enforced here and surfaces as ErrDuplicateEmail.
type IdentityStore interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id int64) (*User, error)
	SaveUser(ctx context.Context, user *User) (*User, error)
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9](\.?[a-zA-Z0-9_%+-])*@[a-zA-Z0-9-]+(\.[a-zA-Z0-9-]+)*\.[a-zA-Z]{2,}$`)

func (newUser NewUser) ValidateUserFields() error {
	if newUser.Name == "" {
		return fmt.Errorf("%w: name cannot be empty", appErrors.ErrInvalidInput)
	}
	if len(newUser.Name) > MAX_LENGTH_NAME {
		return fmt.Errorf("%w: name so long, maximum length is %d", appErrors.ErrInvalidInput, MAX_LENGTH_NAME)
	}
	if newUser.Email == "" {
		return fmt.Errorf("%w: email cannot be empty", appErrors.ErrInvalidInput)
	}
	if !emailRegex.MatchString(newUser.Email) {
		return fmt.Errorf("%w: invalid email format, example valid email: john.doe@gmail.com", appErrors.ErrInvalidInput)
	}
	if len(newUser.Email) > MAX_LENGTH_EMAIL {
		return fmt.Errorf("%w: email so long, maximum length is %d", appErrors.ErrInvalidInput, MAX_LENGTH_EMAIL)
	}
	if newUser.PasswordPlain == "" {
		return fmt.Errorf("%w: password cannot be empty", appErrors.ErrInvalidInput)
	}
	if len(newUser.PasswordPlain) > MAX_PASSWORD_LENGTH {
		return fmt.Errorf("%w: password so long, maximum length is %d", appErrors.ErrInvalidInput, MAX_PASSWORD_LENGTH)
	}
	return nil
}
