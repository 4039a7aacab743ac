package auth

import (
	"context"
	"fmt"

	appErrors "github.com/expense-tracker/backend/errors"
	"github.com/expense-tracker/backend/logging"
)

// Accounts owns registration and password changes. It writes through
// the IdentityStore directly; the credential cache catches up on its
// own (see Authenticator for the stale-hash retry that covers the
// window between a password change and cache expiry).
type Accounts struct {
	store IdentityStore
}

func NewAccounts(store IdentityStore) *Accounts {
	return &Accounts{store: store}
}

// Register hashes the password and persists the new user. A taken
// email surfaces as ErrDuplicateEmail from the store.
func (a *Accounts) Register(ctx context.Context, newUser NewUser) (User, error) {
	if err := newUser.ValidateUserFields(); err != nil {
		return User{}, err
	}

	hashedPassword, err := HashPassword(newUser.PasswordPlain)
	if err != nil {
		return User{}, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &User{
		Name:           newUser.Name,
		Email:          newUser.Email,
		PasswordHashed: hashedPassword,
		MobileNumber:   newUser.MobileNumber,
	}

	saved, err := a.store.SaveUser(ctx, user)
	if err != nil {
		return User{}, fmt.Errorf("failed to register user: %w", err)
	}

	logging.Logger.Infof("registered new user id=%d", saved.ID)
	return *saved, nil
}

// ChangePassword re-hashes and saves. It does not evict the credential
// cache: a login arriving before the cached hash expires is absorbed
// by the authenticator's evict-and-retry step.
func (a *Accounts) ChangePassword(ctx context.Context, userID int64, newPassword string) error {
	if newPassword == "" || len(newPassword) > MAX_PASSWORD_LENGTH {
		return fmt.Errorf("%w: new password must be 1-%d characters", appErrors.ErrInvalidInput, MAX_PASSWORD_LENGTH)
	}

	user, err := a.store.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load user for password change: %w", err)
	}
	if user == nil {
		return fmt.Errorf("%w: id %d", appErrors.ErrUserNotFound, userID)
	}

	hashedPassword, err := HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash new password: %w", err)
	}

	updated := *user
	updated.PasswordHashed = hashedPassword

	if _, err := a.store.SaveUser(ctx, &updated); err != nil {
		return fmt.Errorf("failed to save changed password: %w", err)
	}
	return nil
}
