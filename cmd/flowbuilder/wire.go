package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/rendis/flowbuilder/internal/catalog"
	"github.com/rendis/flowbuilder/internal/client"
	"github.com/rendis/flowbuilder/internal/credentials"
	"github.com/rendis/flowbuilder/internal/editor"
	"github.com/rendis/flowbuilder/internal/expressions"
	"github.com/rendis/flowbuilder/internal/store"
	"github.com/rendis/flowbuilder/internal/streaming"
	"github.com/rendis/flowbuilder/internal/validation"
)

const saltSize = 16

// runtime is the wired object graph shared by serve and mcp.
type runtime struct {
	cfg       Config
	logger    *slog.Logger
	store     *store.LibSQLStore
	creds     credentials.Supplier
	vault     *credentials.VaultSupplier // nil without FLOWBUILDER_VAULT_KEY
	client    *client.Client
	catalog   *catalog.Service
	refresher *catalog.Refresher
	hub       *streaming.MemoryHub
	session   *editor.Session
}

// build opens the store and wires every component. Close releases it.
func build(ctx context.Context, cfg Config, logger *slog.Logger) (*runtime, error) {
	if err := os.MkdirAll(filepath.Dir(store.LocalPath(cfg.DBPath)), 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	st, err := store.NewLibSQLStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	rt := &runtime{cfg: cfg, logger: logger, store: st}
	if err := st.Migrate(ctx); err != nil {
		rt.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}

	if err := rt.wireCredentials(ctx); err != nil {
		rt.Close()
		return nil, err
	}

	rt.client = client.New(client.Config{
		APIBaseURL:      cfg.APIBaseURL,
		WorkflowBaseURL: cfg.WorkflowBaseURL,
		Retry:           client.DefaultRetryPolicy(),
		Breaker:         client.DefaultBreakerConfig(),
	}, rt.creds, client.WithLogger(logger))

	rt.catalog = catalog.New(rt.client, st, logger)
	rt.refresher, err = catalog.NewRefresher(rt.catalog, cfg.CatalogSchedule, logger)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("catalog schedule: %w", err)
	}

	rule, err := expressions.NewExprEngine().AssignmentRule(cfg.AssignmentRule)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("assignment rule: %w", err)
	}
	cel, err := expressions.NewCELEngine()
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("condition engine: %w", err)
	}
	validator, err := validation.NewWorkflowValidator(cel)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("workflow validator: %w", err)
	}

	rt.hub = streaming.NewMemoryHub()
	rt.session = editor.New(editor.Config{
		ClientID:        cfg.ClientID,
		CompanyID:       cfg.CompanyID,
		AssignmentRule:  rule,
		HistoryCapacity: cfg.HistoryCapacity,
	},
		editor.WithBackend(rt.client),
		editor.WithCatalog(rt.catalog),
		editor.WithHub(rt.hub),
		editor.WithDrafts(st),
		editor.WithValidator(validator),
		editor.WithLogger(logger),
	)
	return rt, nil
}

// wireCredentials uses the encrypted vault when a key is configured and the
// FLOWBUILDER_ACCESS_TOKEN/USER_ID/COMPANY_ID variables otherwise.
func (rt *runtime) wireCredentials(ctx context.Context) error {
	env := credentials.Static{
		AccessToken: os.Getenv("FLOWBUILDER_ACCESS_TOKEN"),
		UserID:      os.Getenv("FLOWBUILDER_USER_ID"),
		CompanyID:   os.Getenv("FLOWBUILDER_COMPANY_ID"),
	}
	if rt.cfg.VaultKey == "" {
		rt.creds = env
		return nil
	}

	salt, err := loadSalt(filepath.Join(filepath.Dir(store.LocalPath(rt.cfg.DBPath)), "vault.salt"))
	if err != nil {
		return fmt.Errorf("vault salt: %w", err)
	}
	aes, err := credentials.NewAESVault(rt.store, credentials.VaultConfig{Passphrase: rt.cfg.VaultKey, Salt: salt})
	if err != nil {
		return fmt.Errorf("open vault: %w", err)
	}
	rt.vault = credentials.NewVaultSupplier(aes)
	if c := credentials.Credentials(env); c.AccessToken != "" || c.UserID != "" || c.CompanyID != "" {
		if _, err := rt.vault.Save(ctx, c); err != nil {
			return fmt.Errorf("seed vault: %w", err)
		}
	}
	rt.creds = rt.vault
	return nil
}

// loadSalt reads the vault salt, creating it on first use.
func loadSalt(path string) ([]byte, error) {
	salt, err := os.ReadFile(path)
	if err == nil && len(salt) == saltSize {
		return salt, nil
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	salt = make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, salt, 0o600); err != nil {
		return nil, err
	}
	return salt, nil
}

// Close stops the refresher and closes the store.
func (rt *runtime) Close() {
	if rt.refresher != nil {
		_ = rt.refresher.Stop()
	}
	if rt.store != nil {
		if err := rt.store.Close(); err != nil {
			rt.logger.Warn("close store", "error", err)
		}
	}
}
