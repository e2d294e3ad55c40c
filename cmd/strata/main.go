package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/logrusorgru/aurora/v3"

	"github.com/strata-db/strata"
	"github.com/strata-db/strata/dberr"
	"github.com/strata-db/strata/internal/cli"
)

const defaultConfigPath = "./strata.yaml"

const usage = `strata - database schema migrations

Usage:
  strata <command> [flags]

Commands:
  init      create a starter strata.yaml in the current directory
  migrate   apply all pending migrations
  rollback  undo the last batch (or -steps migrations)
  reset     undo every applied migration
  refresh   reset, then migrate everything again
  status    show applied and pending migrations
  make      scaffold a new migration file pair

Flags:
  -config   path to the yaml configuration (default ./strata.yaml)
  -steps    limit migrate/rollback to N migrations
  -pretend  report what would run without touching the database
  -name     name for the new migration (make)
  -table    table the new migration targets (make)
  -create   scaffold a CREATE TABLE pair instead of ALTER (make)
`

func main() {
	if len(os.Args) < 2 {
		fmt.Print(usage)
		os.Exit(1)
	}

	command := os.Args[1]

	flags := flag.NewFlagSet(command, flag.ExitOnError)
	configPath := flags.String("config", defaultConfigPath, "path to the yaml configuration")
	steps := flags.Int("steps", 0, "limit the operation to N migrations")
	pretend := flags.Bool("pretend", false, "report what would run without executing")
	name := flags.String("name", "", "name for the new migration")
	table := flags.String("table", "", "table the new migration targets")
	create := flags.Bool("create", false, "scaffold a CREATE TABLE pair")

	if err := flags.Parse(os.Args[2:]); err != nil {
		fail(err)
	}

	if command == "init" {
		if cli.FileExists(*configPath) {
			fail(fmt.Errorf("config file [%s] already exists", *configPath))
		}

		if err := cli.InitCfg(*configPath); err != nil {
			fail(err)
		}

		success("created %s", *configPath)
		return
	}

	app, closer, err := cli.NewFromYaml(*configPath)
	if err != nil {
		fail(err)
	}

	defer func() {
		if closeErr := closer(); closeErr != nil {
			fail(closeErr)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	actionCfg := cli.ActionConfig{Steps: *steps, Pretend: *pretend}

	switch command {
	case "migrate":
		migrated, err := app.Migrate(ctx, actionCfg)
		if err != nil {
			fail(err)
		}

		if len(migrated) == 0 {
			success("nothing to migrate")
			return
		}

		success("migrated %d migration(s)", len(migrated))
	case "rollback":
		rolledBack, err := app.Rollback(ctx, actionCfg)
		if err != nil {
			fail(err)
		}

		if len(rolledBack) == 0 {
			success("nothing to rollback")
			return
		}

		success("rolled back %d migration(s)", len(rolledBack))
	case "reset":
		rolledBack, err := app.Reset(ctx, actionCfg)
		if err != nil {
			fail(err)
		}

		success("rolled back %d migration(s)", len(rolledBack))
	case "refresh":
		rolledBack, migrated, err := app.Refresh(ctx, actionCfg)
		if err != nil {
			fail(err)
		}

		success("rolled back %d and migrated %d migration(s)", len(rolledBack), len(migrated))
	case "status":
		statuses, err := app.Status(ctx)
		if err != nil {
			fail(err)
		}

		printStatuses(statuses)
	case "make":
		if *name == "" {
			fail(fmt.Errorf("migration name is required, pass it with -name"))
		}

		path, err := app.CreateMigration(*name, *table, *create)
		if err != nil {
			fail(err)
		}

		success("created %s", path)
	default:
		fmt.Print(usage)
		os.Exit(1)
	}
}

func printStatuses(statuses []strata.Status) {
	if len(statuses) == 0 {
		success("no migrations found")
		return
	}

	for _, s := range statuses {
		if s.Ran {
			fmt.Printf(
				"%s %s (batch %d, ran at %s)\n",
				aurora.Green("ran     "), s.Name, s.Batch, s.RanAt.Format("2006-01-02 15:04:05"),
			)
		} else {
			fmt.Printf("%s %s\n", aurora.Yellow("pending "), s.Name)
		}
	}
}

func success(format string, args ...interface{}) {
	fmt.Println(aurora.Green("strata: "), fmt.Sprintf(format, args...))
}

func fail(err error) {
	fmt.Println(aurora.Red("strata: "), err.Error())

	if dberr.IsRetryable(err) {
		fmt.Println(aurora.Yellow("strata: "), "the failure looks transient, re-running the command may succeed")
	}

	os.Exit(1)
}
