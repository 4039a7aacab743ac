package auth

import (
	"context"
	"fmt"

	appErrors "github.com/expense-tracker/backend/errors"
	"github.com/expense-tracker/backend/logging"
)

// Authenticator verifies submitted credentials against the cached or
// freshly loaded user record.
type Authenticator struct {
	directory *Directory
}

func NewAuthenticator(directory *Directory) *Authenticator {
	return &Authenticator{directory: directory}
}

// Authenticate checks (email, password) and returns the principal on
// success. When the password fails against a record that came from the
// cache, the cached hash may be stale (the password changed before the
// entry expired): the entry is evicted, the record reloaded, and the
// comparison repeated exactly once. A first-hand record that fails the
// comparison fails immediately; there is nothing fresher to retry
// against.
func (a *Authenticator) Authenticate(ctx context.Context, email, password string) (Principal, error) {
	user, cacheHit := a.directory.Peek(email)

	if !cacheHit {
		loaded, err := a.directory.LoadByEmail(ctx, email)
		if err != nil {
			return Principal{}, err
		}
		user = loaded
	}

	if ComparePasswords(user.PasswordHashed, password) {
		return Principal{Email: user.Email}, nil
	}

	if !cacheHit {
		return Principal{}, fmt.Errorf("%w", appErrors.ErrInvalidCredentials)
	}

	logging.Logger.Debugf("password mismatch against cached record, retrying fresh: %s", email)
	a.directory.Evict(email)

	user, err := a.directory.LoadByEmail(ctx, email)
	if err != nil {
		return Principal{}, err
	}

	if !ComparePasswords(user.PasswordHashed, password) {
		return Principal{}, fmt.Errorf("%w", appErrors.ErrInvalidCredentials)
	}

	return Principal{Email: user.Email}, nil
}
