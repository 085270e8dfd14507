package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"go.uber.org/zap"

	"github.com/noah-isme/auth-api/internal/migrations"
	"github.com/noah-isme/auth-api/pkg/config"
	"github.com/noah-isme/auth-api/pkg/database"
	"github.com/noah-isme/auth-api/pkg/logger"
)

const usage = "usage: migrate <migrate|status|rollback>"

type migrator interface {
	Migrate(ctx context.Context) ([]string, error)
	Status(ctx context.Context) ([]database.MigrationState, error)
	Rollback(ctx context.Context) (string, error)
}

func main() {
	os.Exit(execute(os.Args[1:]))
}

// execute returns the process exit code so deferred cleanup and the final
// log flush run before main exits.
func execute(args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, usage)
		return 1
	}

	cfg, err := config.Load()
	if err != nil {
		log.Printf("failed to load config: %v", err)
		return 1
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Printf("failed to init logger: %v", err)
		return 1
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Error("connect database", zap.Error(err))
		return 1
	}
	defer db.Close()

	m, err := database.NewMigrator(db.DB, migrations.Files)
	if err != nil {
		logr.Error("init migrator", zap.Error(err))
		return 1
	}

	if err := run(ctx, args[0], m, os.Stdout); err != nil {
		logr.Error("migration command failed", zap.String("command", args[0]), zap.Error(err))
		return 1
	}
	return 0
}

func run(ctx context.Context, command string, m migrator, out io.Writer) error {
	switch command {
	case "migrate":
		applied, err := m.Migrate(ctx)
		for _, file := range applied {
			fmt.Fprintf(out, "applied %s\n", file)
		}
		if err != nil {
			return err
		}
		if len(applied) == 0 {
			fmt.Fprintln(out, "database is up to date")
		}
		return nil
	case "status":
		states, err := m.Status(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "VERSION\tFILE\tSTATE\tAPPLIED AT")
		for _, st := range states {
			state, appliedAt := "pending", "-"
			if st.Applied {
				state = "applied"
				appliedAt = st.AppliedAt.UTC().Format("2006-01-02 15:04:05")
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", st.Version, st.File, state, appliedAt)
		}
		fmt.Fprintf(w, "\n%d of %d applied\n", database.Applied(states), len(states))
		return w.Flush()
	case "rollback":
		file, err := m.Rollback(ctx)
		if err != nil {
			return err
		}
		if file == "" {
			fmt.Fprintln(out, "nothing to roll back")
			return nil
		}
		fmt.Fprintf(out, "rolled back %s\n", file)
		return nil
	default:
		return fmt.Errorf("unknown command %q; %s", command, usage)
	}
}
