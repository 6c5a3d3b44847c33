package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/PabloGalante/gpt-relay/internal/adapters/llm"
	firestorestore "github.com/PabloGalante/gpt-relay/internal/adapters/storage/firestore"
	memstore "github.com/PabloGalante/gpt-relay/internal/adapters/storage/memory"
	sqlitestore "github.com/PabloGalante/gpt-relay/internal/adapters/storage/sqlite"
	"github.com/PabloGalante/gpt-relay/internal/app/conversation"
	"github.com/PabloGalante/gpt-relay/internal/app/dispatch"
	"github.com/PabloGalante/gpt-relay/internal/app/session"
	"github.com/PabloGalante/gpt-relay/internal/config"
	"github.com/PabloGalante/gpt-relay/internal/domain"
	"github.com/PabloGalante/gpt-relay/internal/observability"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:           "gpt-relay",
	Short:         "Relay chat commands to a completion model with per-user sessions",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		cfg = loaded
		observability.Init(os.Stderr, cfg.LogLevel, cfg.LogFormat)
		return nil
	},
}

func main() {
	rootCmd.AddCommand(serveCmd, consoleCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// sessionStore is what every storage backend provides.
type sessionStore interface {
	domain.SessionStore
	ListSessionsByServer(ctx context.Context, serverID domain.ServerID) ([]*domain.Session, error)
}

// app is the wired core shared by every surface.
type app struct {
	store      sessionStore
	dispatcher *dispatch.Dispatcher
	close      func()
}

func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	log := observability.Logger()

	persona, err := cfg.Persona()
	if err != nil {
		return nil, fmt.Errorf("loading persona: %w", err)
	}
	if !persona.Configured() {
		log.Warn("persona preamble not configured, dan and create persona are disabled")
	}

	llmClient, err := llm.NewFromConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing completion client: %w", err)
	}

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	repo := session.NewRepository(store, persona)
	svc := conversation.NewService(llmClient, repo, persona,
		conversation.WithCompletionTimeout(cfg.CompletionTimeout),
	)

	return &app{
		store:      store,
		dispatcher: dispatch.NewDispatcher(svc, cfg.CommandPrefix),
		close:      closeStore,
	}, nil
}

func openStore(ctx context.Context, cfg *config.Config) (sessionStore, func(), error) {
	log := observability.Logger()

	switch cfg.StorageBackend {
	case config.StorageFirestore:
		log.Info("using firestore storage", "project", cfg.GCPProjectID, "database", cfg.FirestoreDatabaseID)
		fs, err := firestorestore.NewStore(ctx, cfg.GCPProjectID, cfg.FirestoreDatabaseID)
		if err != nil {
			return nil, nil, fmt.Errorf("initializing firestore store: %w", err)
		}
		return fs, closer(fs.Close, "firestore"), nil

	case config.StorageSQLite:
		log.Info("using sqlite storage", "path", cfg.SQLitePath)
		db, err := sqlitestore.NewStore(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("initializing sqlite store: %w", err)
		}
		return db, closer(db.Close, "sqlite"), nil

	default:
		log.Info("using in-memory storage")
		return memstore.NewSessionStore(), func() {}, nil
	}
}

func closer(fn func() error, name string) func() {
	return func() {
		if err := fn(); err != nil {
			observability.WithFields("store", name).Warn("failed to close store", "error", err)
		}
	}
}
