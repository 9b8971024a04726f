package core

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// User is a principal known to the credential store.
type User struct {
	ID           int64  `json:"id" yaml:"id"`
	Username     string `json:"username" yaml:"username"`
	PasswordHash string `json:"-" yaml:"password_hash"`
	Email        string `json:"email" yaml:"email"`
}

// ErrUserNotFound is returned by FindByID when no user carries the id.
var ErrUserNotFound = errors.New("user not found")

// CredentialStore looks up users.
//
// FindByUsername reports an unknown name as (nil, nil). FindByID reports an
// unknown id as ErrUserNotFound; session resolution relies on that to drop
// the principal.
type CredentialStore interface {
	FindByUsername(ctx context.Context, username string) (*User, error)
	FindByID(ctx context.Context, id int64) (*User, error)
}

// Login failure reasons.
const (
	ReasonUnknownUser     = "unknown user"
	ReasonInvalidPassword = "invalid password"
	ReasonLocked          = "too many attempts"
)

// LoginFailure describes a rejected login. It is consumed by a redirect and
// never shown to the client as an HTTP error.
type LoginFailure struct {
	Reason  string
	Message string
}

func (f *LoginFailure) Error() string { return f.Message }

// Authenticate checks username/password against the store. A rejected pair
// returns a *LoginFailure; err is reserved for store failures.
func Authenticate(ctx context.Context, users CredentialStore, username, password string) (*User, *LoginFailure, error) {
	u, err := users.FindByUsername(ctx, username)
	if err != nil {
		return nil, nil, fmt.Errorf("find user %q: %w", username, err)
	}
	if u == nil {
		return nil, &LoginFailure{Reason: ReasonUnknownUser, Message: "Unknown user " + username}, nil
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, &LoginFailure{Reason: ReasonInvalidPassword, Message: "Invalid password"}, nil
	}
	return u, nil, nil
}
