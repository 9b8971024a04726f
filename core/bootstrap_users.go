package core

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"os"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// BootstrapUsers seeds an empty postgres store. Users from seed are inserted
// as-is; with no seed an "admin" account is created with a generated password.
// It is idempotent: a store holding any user is left untouched.
func BootstrapUsers(ctx context.Context, repo UserRepository, cfg Config, seed []User) error {
	if !cfg.BootstrapUsers {
		return nil
	}

	n, err := repo.Count(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	if len(seed) > 0 {
		for _, u := range seed {
			if _, err := repo.Create(ctx, u); err != nil {
				return err
			}
		}
		logrus.WithField("count", len(seed)).Info("seeded users from users file")
		return nil
	}

	username := "admin"
	password, err := generatePassword(32)
	if err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	if _, err := repo.Create(ctx, User{Username: username, PasswordHash: string(hash)}); err != nil {
		return err
	}

	if cfg.InitialAdminPasswordPath != "" {
		if err := os.WriteFile(cfg.InitialAdminPasswordPath, []byte(password+"\n"), 0o600); err != nil {
			return err
		}
		logrus.WithField("path", cfg.InitialAdminPasswordPath).Info("initial admin created; credentials written to file")
	} else {
		logrus.WithFields(logrus.Fields{"username": username, "password": password}).Warn("initial admin created")
	}

	return nil
}

func generatePassword(length int) (string, error) {
	if length <= 0 {
		return "", errors.New("password length must be positive")
	}
	raw := make([]byte, length)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw)[:length], nil
}
