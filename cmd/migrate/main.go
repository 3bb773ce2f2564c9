// Команда migrate управляет схемой базы учёта: up, down и status.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/alcosklad/alcoapp-sub000/internal/storage/postgres"
)

const (
	defaultTimeout = 30 * time.Second
	dsnEnv         = "LEDGER_POSTGRES_DSN"
)

var errUsage = errors.New("usage")

func main() {
	_ = godotenv.Load()

	if err := run(os.Args[1:], os.Getenv, os.Stdout); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run разбирает флаги, подключается к базе и выполняет команду.
func run(args []string, getenv func(string) string, out io.Writer) error {
	flags := flag.NewFlagSet("migrate", flag.ContinueOnError)
	flags.SetOutput(out)
	direction := flags.String("direction", "up", "migration direction: up|down|status")
	steps := flags.Int("steps", 0, "migrations to apply (0 = all) or roll back (default 1)")
	dsn := flags.String("dsn", "", "PostgreSQL DSN (fallback: "+dsnEnv+")")
	if err := flags.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	command := strings.ToLower(strings.TrimSpace(*direction))
	switch command {
	case "up", "down", "status":
	default:
		return fmt.Errorf("%w: unsupported direction %q (use up|down|status)", errUsage, *direction)
	}

	target := strings.TrimSpace(*dsn)
	if target == "" {
		target = strings.TrimSpace(getenv(dsnEnv))
	}
	if target == "" {
		return fmt.Errorf("%w: %s (or -dsn) is required", errUsage, dsnEnv)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	store, err := postgres.Open(ctx, target, postgres.WithApplicationName("ledger-migrate"), postgres.WithMaxOpenConns(2))
	if err != nil {
		return err
	}
	defer store.Close()

	switch command {
	case "up":
		if err := store.MigrateUp(ctx, *steps); err != nil {
			return fmt.Errorf("migrate up: %w", err)
		}
	case "down":
		if err := store.MigrateDown(ctx, *steps); err != nil {
			return fmt.Errorf("migrate down: %w", err)
		}
	}

	state, err := store.MigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("migration status: %w", err)
	}
	printState(out, command, state)
	return nil
}

func printState(out io.Writer, command string, state postgres.MigrationState) {
	_, _ = fmt.Fprintf(out, "%s ok: version=%d applied=%d\n", command, state.Version, state.Applied)
	if len(state.Pending) > 0 {
		_, _ = fmt.Fprintf(out, "pending: %s\n", strings.Join(state.Pending, ", "))
	}
	if len(state.Drifted) > 0 {
		_, _ = fmt.Fprintf(out, "drifted: %s\n", strings.Join(state.Drifted, ", "))
	}
}
