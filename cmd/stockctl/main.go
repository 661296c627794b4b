// Package main provides the inventory maintenance CLI.
// Usage: stockctl import counts.csv [-apply] [-actor <uuid>]
//
//	stockctl recalculate
//	stockctl undo <product-id> -actor <uuid>
//	stockctl history <row-pk> [-table products] [-limit 20]
//	stockctl migrate [up|down|status]
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/exec"
	"text/tabwriter"

	"hvacstock/internal/app"
	"hvacstock/internal/config"
	appctx "hvacstock/internal/core/context"
	"hvacstock/internal/core/id"
	"hvacstock/internal/domain/reconciliation"
	"hvacstock/internal/infrastructure/storage/postgres"
	"hvacstock/pkg/logger"
)

const migrationsDir = "db/migrations"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx := context.Background()
	args := os.Args[2:]

	var err error
	switch os.Args[1] {
	case "import":
		err = runImport(ctx, args)
	case "recalculate":
		err = runRecalculate(ctx)
	case "undo":
		err = runUndo(ctx, args)
	case "history":
		err = runHistory(ctx, args)
	case "migrate":
		err = runMigrate(args)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`hvacstock inventory CLI

Usage:
  stockctl <command> [options]

Commands:
  import       Reconcile stock against a SKU,TargetQuantity CSV (dry run unless -apply)
  recalculate  Rebuild cached stock from the movement ledger
  undo         Undo the latest movement of a product
  history      Show audit entries of a row (default table: products)
  migrate      Run goose migrations (up, down, status)
  help         Show this help

Environment Variables:
  DATABASE_URL   Connection string (required)
  JWT_SECRET     Required by the shared configuration

Examples:
  stockctl import counts.csv
  stockctl import counts.csv -apply -actor 0192f1d4-5a1e-7c3b-9f00-2b6d1c0e4a11
  stockctl recalculate
  stockctl undo <product-uuid> -actor <user-uuid>
  stockctl migrate up`)
}

func setup(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Development: cfg.Development(), Service: "stockctl"})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	logger.SetDefault(log)

	return app.New(ctx, cfg)
}

// withActor attaches a trace and the acting user to ctx.
func withActor(ctx context.Context, actor id.ID) context.Context {
	ctx = appctx.StartTrace(ctx, appctx.SourceCLI)
	if id.IsNil(actor) {
		return ctx
	}
	return appctx.WithUser(ctx, &appctx.UserContext{UserID: actor.String()})
}

func parseActor(raw string) (id.ID, error) {
	if raw == "" {
		return id.Nil(), nil
	}
	actor, err := id.Parse(raw)
	if err != nil {
		return id.Nil(), fmt.Errorf("invalid -actor: %w", err)
	}
	return actor, nil
}

func runImport(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: stockctl import <file> [-apply] [-actor <uuid>]")
	}
	path := args[0]

	fs := flag.NewFlagSet("import", flag.ExitOnError)
	apply := fs.Bool("apply", false, "write the changes (default is a dry run)")
	actorFlag := fs.String("actor", "", "acting user id")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	actor, err := parseActor(*actorFlag)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.Importer.Import(withActor(ctx, actor), f, !*apply, actor)
	if err != nil {
		return err
	}
	printImportResult(os.Stdout, result)
	return nil
}

func printImportResult(out io.Writer, r reconciliation.Result) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LINE\tSKU\tNAME\tCURRENT\tTARGET\tDELTA")
	for _, row := range r.Preview.Rows {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\t%+d\n", row.Line, row.SKU, row.Name, row.Current, row.Target, row.Delta)
	}
	_ = w.Flush()

	for _, inv := range r.Preview.Invalid {
		fmt.Fprintf(out, "  line %d (%s): %s %s\n", inv.Line, inv.SKU, inv.Code, inv.Message)
	}

	mode := "applied"
	if r.DryRun {
		mode = "dry run"
	}
	fmt.Fprintf(out, "\n%s: status=%s changes=%d unchanged=%d invalid=%d failed=%d\n",
		mode, r.Status, r.Applied, r.Unchanged, len(r.Preview.Invalid), len(r.Failed))
	for _, f := range r.Failed {
		fmt.Fprintf(out, "  failed line %d (%s): %s %s\n", f.Line, f.SKU, f.Code, f.Message)
	}
	if r.BatchID != nil {
		fmt.Fprintf(out, "batch: %s\n", r.BatchID)
	}
}

func runRecalculate(ctx context.Context) error {
	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	fixed, err := a.Stock.Recalculate(withActor(ctx, id.Nil()))
	if err != nil {
		return err
	}
	fmt.Printf("Recalculated stock aggregates: %d rows corrected\n", fixed)
	return nil
}

func runUndo(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: stockctl undo <product-id> -actor <uuid>")
	}
	productID, err := id.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid product id: %w", err)
	}

	fs := flag.NewFlagSet("undo", flag.ExitOnError)
	actorFlag := fs.String("actor", "", "acting user id (required)")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	if *actorFlag == "" {
		return fmt.Errorf("-actor is required")
	}
	actor, err := parseActor(*actorFlag)
	if err != nil {
		return err
	}

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	m, err := a.Undo.UndoLast(withActor(ctx, actor), productID, actor)
	if err != nil {
		return err
	}
	fmt.Printf("Recorded %s: delta %+d (movement %s)\n", m.Reason, m.Delta, m.ID)
	return nil
}

func runHistory(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: stockctl history <row-pk> [-table products] [-limit 20]")
	}
	rowPK := args[0]

	fs := flag.NewFlagSet("history", flag.ExitOnError)
	table := fs.String("table", "products", "audited table (products, inventory_movements, inventory_settings)")
	limit := fs.Int("limit", 20, "maximum entries")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	records, err := a.AuditSink.History(ctx, *table, rowPK, *limit)
	if err != nil {
		return err
	}
	printHistory(os.Stdout, records)
	return nil
}

func printHistory(out io.Writer, records []postgres.AuditRecord) {
	if len(records) == 0 {
		fmt.Fprintln(out, "No audit entries.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tACTION\tACTOR\tCOMMENT\tAFTER")
	for _, r := range records {
		actor, comment := "-", ""
		if r.ActorID != nil {
			actor = r.ActorID.String()
		}
		if r.Comment != nil {
			comment = *r.Comment
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			r.CreatedAt.Format("2006-01-02 15:04:05"), r.Action, actor, comment, string(r.After))
	}
	_ = w.Flush()
}

// runMigrate shells out to the goose binary against DATABASE_URL.
func runMigrate(args []string) error {
	direction := "up"
	if len(args) > 0 {
		direction = args[0]
	}
	switch direction {
	case "up", "down", "status":
	default:
		return fmt.Errorf("unknown migrate direction %q (want up, down or status)", direction)
	}

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return fmt.Errorf("DATABASE_URL environment variable is required")
	}

	cmd := exec.Command("goose", "-dir", migrationsDir, "postgres", dsn, direction)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("goose %s: %w (is goose installed?)", direction, err)
	}
	return nil
}
