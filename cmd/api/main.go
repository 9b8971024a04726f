package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
	"github.com/sirupsen/logrus"

	"web-scaffold/core"
)

func main() {
	cfg := core.Load()
	ctx := context.Background()

	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("invalid config: %v", err)
	}
	gin.SetMode(cfg.GinMode)

	logCloser, err := core.SetupLogging(cfg, "web.log")
	if err != nil {
		logrus.Fatalf("failed to setup logging: %v", err)
	}
	defer logCloser.Close()

	users, closeUsers, err := openUserStore(ctx, cfg)
	if err != nil {
		logrus.Fatalf("failed to open user store: %v", err)
	}
	defer closeUsers()

	store, closeSessions, err := openSessionStore(cfg)
	if err != nil {
		logrus.Fatalf("failed to open session store: %v", err)
	}
	defer closeSessions()

	router, err := core.NewRouter(cfg, store, users, core.HTMLRenderer{Ext: cfg.TemplateExt}, core.DefaultRoutes)
	if err != nil {
		logrus.Fatalf("invalid route table: %v", err)
	}
	router.LoadHTMLGlob(filepath.Join(cfg.TemplateDir, "*"+cfg.TemplateExt))

	addr := fmt.Sprintf(":%s", cfg.Port)
	logrus.WithFields(logrus.Fields{
		"addr":            addr,
		"mode":            cfg.GinMode,
		"session_backend": cfg.SessionBackend,
		"user_store":      cfg.UserStore,
	}).Info("starting web server")
	if err := router.Run(addr); err != nil {
		logrus.Fatalf("server failed: %v", err)
	}
}

func openUserStore(ctx context.Context, cfg core.Config) (core.CredentialStore, func(), error) {
	switch cfg.UserStore {
	case "postgres":
		db, err := core.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := core.EnsureUserSchema(ctx, db); err != nil {
			db.Close()
			return nil, nil, err
		}
		repo := core.NewPgUserRepository(db)

		var seed []core.User
		if cfg.UsersFile != "" {
			if seed, err = core.LoadUsersFile(cfg.UsersFile); err != nil {
				logrus.WithError(err).Warn("users file not loaded; bootstrap falls back to a generated admin")
				seed = nil
			}
		}
		if err := core.BootstrapUsers(ctx, repo, cfg, seed); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("bootstrap users: %w", err)
		}
		return repo, db.Close, nil
	default:
		list, err := core.LoadUsersFile(cfg.UsersFile)
		if err != nil {
			return nil, nil, err
		}
		store, err := core.NewMemoryUserStore(list)
		if err != nil {
			return nil, nil, err
		}
		logrus.WithField("count", store.Len()).Info("loaded users")
		return store, func() {}, nil
	}
}

func openSessionStore(cfg core.Config) (sessions.Store, func(), error) {
	switch cfg.SessionBackend {
	case "redis":
		client, err := core.NewRedisClient(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return core.NewRedisStore(client, []byte(cfg.SessionKey)), func() { _ = client.Close() }, nil
	default:
		// Gorilla cookie store for session management.
		return sessions.NewCookieStore([]byte(cfg.SessionKey)), func() {}, nil
	}
}
