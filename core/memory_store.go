package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// MemoryUserStore is a read-only CredentialStore indexed by id and username.
// It is never mutated after construction, so concurrent readers need no lock.
type MemoryUserStore struct {
	byID   map[int64]User
	byName map[string]User
}

// NewMemoryUserStore indexes users, rejecting duplicate or empty keys.
func NewMemoryUserStore(users []User) (*MemoryUserStore, error) {
	s := &MemoryUserStore{
		byID:   make(map[int64]User, len(users)),
		byName: make(map[string]User, len(users)),
	}
	for _, u := range users {
		if u.ID <= 0 {
			return nil, fmt.Errorf("user %q: id must be positive", u.Username)
		}
		if strings.TrimSpace(u.Username) == "" {
			return nil, fmt.Errorf("user %d: empty username", u.ID)
		}
		if _, dup := s.byID[u.ID]; dup {
			return nil, fmt.Errorf("duplicate user id %d", u.ID)
		}
		if _, dup := s.byName[u.Username]; dup {
			return nil, fmt.Errorf("duplicate username %q", u.Username)
		}
		s.byID[u.ID] = u
		s.byName[u.Username] = u
	}
	return s, nil
}

func (s *MemoryUserStore) FindByUsername(_ context.Context, username string) (*User, error) {
	u, ok := s.byName[username]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (s *MemoryUserStore) FindByID(_ context.Context, id int64) (*User, error) {
	u, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("user %d: %w", id, ErrUserNotFound)
	}
	return &u, nil
}

// Len reports the number of users.
func (s *MemoryUserStore) Len() int { return len(s.byID) }

// usersFile is the YAML layout of USERS_FILE:
//
//	users:
//	  - id: 1
//	    username: bob
//	    email: bob@example.com
//	    password_hash: $2a$10$...
type usersFile struct {
	Users []userEntry `yaml:"users"`
}

type userEntry struct {
	ID           int64  `yaml:"id"`
	Username     string `yaml:"username"`
	Email        string `yaml:"email"`
	PasswordHash string `yaml:"password_hash"`
	Password     string `yaml:"password"`
}

// ParseUsers decodes a users YAML document. Entries with a plaintext
// password are hashed with cost; password_hash wins when both are present.
func ParseUsers(data []byte, cost int) ([]User, error) {
	var doc usersFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse users yaml: %w", err)
	}
	out := make([]User, 0, len(doc.Users))
	for _, e := range doc.Users {
		u := User{ID: e.ID, Username: strings.TrimSpace(e.Username), Email: e.Email, PasswordHash: e.PasswordHash}
		if u.PasswordHash == "" {
			if e.Password == "" {
				return nil, fmt.Errorf("user %q: password or password_hash is required", u.Username)
			}
			logrus.WithField("username", u.Username).Warn("users file carries a plaintext password; store password_hash instead")
			hash, err := bcrypt.GenerateFromPassword([]byte(e.Password), cost)
			if err != nil {
				return nil, fmt.Errorf("hash password for %q: %w", u.Username, err)
			}
			u.PasswordHash = string(hash)
		}
		out = append(out, u)
	}
	return out, nil
}

// LoadUsersFile reads and parses path.
func LoadUsersFile(path string) ([]User, error) {
	if path == "" {
		return nil, errors.New("empty users file path")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read users file: %w", err)
	}
	return ParseUsers(data, bcrypt.DefaultCost)
}
