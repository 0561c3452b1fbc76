// Command migrate applies, reverts and lists the embedded schema migrations.
//
//	migrate up
//	migrate down [n]
//	migrate status
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"sovren/internal/platform/config"
	"sovren/internal/platform/logger"
	"sovren/internal/platform/pgmigrate"
	"sovren/internal/platform/postgres"
	"sovren/internal/storage/migrations"
)

const usage = "usage: migrate up | down [n] | status"

func main() {
	log := logger.New(os.Getenv("LOG_LEVEL"), "text")
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.LoadDatabase()
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg)
	if err != nil {
		log.Error("connect", "error", err)
		os.Exit(1)
	}

	err = run(ctx, db, os.Args[1:])
	_ = db.Close()
	if err != nil {
		log.Error("migrate failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, db *sql.DB, args []string) error {
	switch args[0] {
	case "up":
		applied, err := pgmigrate.Up(ctx, db, migrations.FS, ".")
		printNames("applied", applied)
		return err
	case "down":
		steps := 1
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid step count %q", args[1])
			}
			steps = n
		}
		reverted, err := pgmigrate.Down(ctx, db, migrations.FS, ".", steps)
		printNames("reverted", reverted)
		return err
	case "status":
		list, err := pgmigrate.List(ctx, db, migrations.FS, ".")
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "MIGRATION\tAPPLIED AT")
		for _, s := range list {
			at := "pending"
			if s.Applied {
				at = s.AppliedAt.Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%s\t%s\n", s.Name, at)
		}
		return w.Flush()
	default:
		return fmt.Errorf("unknown command %q (%s)", args[0], usage)
	}
}

func printNames(verb string, names []string) {
	if len(names) == 0 {
		fmt.Println("nothing to do")
		return
	}
	for _, n := range names {
		fmt.Printf("%s %s\n", verb, n)
	}
}
