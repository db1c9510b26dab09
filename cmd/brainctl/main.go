// Command brainctl is a direct, in-process CLI over the same plan
// generation/validation/execution engine the control API serves over HTTP.
// It never makes a network call to a running brainserver; every subcommand
// wires its own appwiring.Bundle and talks to the internal packages
// directly, printing plain structured JSON or text (no tables, colors, or
// progress bars).
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/aqa-systems/brain/internal/appwiring"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		printUsage()
		return nil
	}

	switch args[0] {
	case "generate":
		return cmdGenerate(ctx, args[1:])
	case "validate":
		return cmdValidate(ctx, args[1:])
	case "run":
		return cmdRun(ctx, args[1:])
	case "history":
		return cmdHistory(ctx, args[1:])
	case "plan":
		return cmdPlan(ctx, args[1:])
	case "serve":
		return cmdServe(ctx, args[1:])
	case "-h", "--help", "help":
		printUsage()
		return nil
	default:
		return usageError(fmt.Errorf("unknown command %q", args[0]))
	}
}

func printUsage() {
	fmt.Println(`brainctl — generate, validate, and execute API test plans

Usage:
  brainctl generate --requirement "..." [--swagger file] [--base-url url] [--output file]
  brainctl validate [--strict] <plan.json...>
  brainctl run [--requirement "..."] [--swagger file] [--dry-run] [--report file] <plan.json>
  brainctl history [--limit N] [--status success|failure|error]
  brainctl history show <id>
  brainctl history stats
  brainctl history clear --force
  brainctl plan list
  brainctl plan versions <name>
  brainctl plan diff <name> <version-a> [version-b]
  brainctl plan save --name <name> [--description "..."] <plan.json>
  brainctl plan show [--version N] <name>
  brainctl plan restore <name> <version>
  brainctl serve [--addr :8080]

Flags for a subcommand must come before its positional arguments.`)
}

func usageError(err error) error {
	printUsage()
	return err
}

// openBundle is the shared entrypoint every subcommand uses to wire its
// dependencies; dsn/migrate flags are rarely needed outside brainserver, so
// subcommands pass the zero value unless a flag overrides it.
func openBundle(dsn string, migrate bool) (*appwiring.Bundle, error) {
	return appwiring.Build(appwiring.Options{DSN: dsn, RunMigrations: migrate})
}

func readAllOrEmpty(r io.Reader) ([]byte, error) {
	if r == nil {
		return nil, nil
	}
	return io.ReadAll(r)
}
