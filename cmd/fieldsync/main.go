package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/fieldsync/fieldsync/internal/api"
	"github.com/fieldsync/fieldsync/internal/config"
	"github.com/fieldsync/fieldsync/internal/driver"
	_ "github.com/fieldsync/fieldsync/internal/driver/mssql"
	_ "github.com/fieldsync/fieldsync/internal/driver/postgres"
	_ "github.com/fieldsync/fieldsync/internal/driver/sqlite"
	"github.com/fieldsync/fieldsync/internal/etl"
	"github.com/fieldsync/fieldsync/internal/feed"
	"github.com/fieldsync/fieldsync/internal/logging"
	"github.com/fieldsync/fieldsync/internal/mapping"
	"github.com/fieldsync/fieldsync/internal/progress"
	"github.com/fieldsync/fieldsync/internal/util"
	"github.com/fieldsync/fieldsync/internal/version"
)

func main() {
	app := &cli.App{
		Name:    version.Name,
		Usage:   version.Description,
		Version: version.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config.yaml",
				Usage:   "Path to configuration file",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Start the HTTP API server",
				Action: serve,
			},
			{
				Name:      "generate-schema",
				Usage:     "Print the DDL plan for a mapping key without executing it",
				ArgsUsage: "<mapping-key>",
				Action:    generateSchema,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "apply",
						Usage: "Execute the generated statements",
					},
				},
			},
			{
				Name:      "run",
				Usage:     "Synchronize rows from a file into the destination",
				ArgsUsage: "<source-file>",
				Action:    runSync,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "keys",
						Usage:    "Comma-separated mapping keys to run",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "Generate SQL without executing",
					},
				},
			},
			{
				Name:  "mappings",
				Usage: "Inspect and manage field mappings",
				Subcommands: []*cli.Command{
					{
						Name:      "list",
						Usage:     "List active mappings for a key",
						ArgsUsage: "<mapping-key>",
						Action:    listMappings,
					},
					{
						Name:      "import",
						Usage:     "Import mappings from a YAML file",
						ArgsUsage: "<mappings-file>",
						Action:    importMappings,
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func setup(c *cli.Context) (*config.Config, mapping.Registry, func(), error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logging.SetLevel(cfg.LogLevel)
	logging.SetFormat(cfg.LogFormat)

	reg, err := mapping.OpenSQLiteRegistry(cfg.RegistryPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open mapping registry: %w", err)
	}
	return cfg, reg, func() { reg.Close() }, nil
}

func openStore(cfg *config.Config) (driver.Store, error) {
	store, err := driver.Open(cfg.Destination.Type, cfg.DestinationDSN(), cfg.Destination.MaxConns)
	if err != nil {
		return nil, fmt.Errorf("failed to open destination: %w", err)
	}
	return store, nil
}

func serve(c *cli.Context) error {
	cfg, reg, closeReg, err := setup(c)
	if err != nil {
		return err
	}
	defer closeReg()

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: api.NewServer(reg, etl.New(reg, store)).Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("listening on %s", cfg.ServerAddr)
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		logging.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}

func generateSchema(c *cli.Context) error {
	key := c.Args().First()
	if key == "" {
		return errors.New("mapping key argument required")
	}
	cfg, reg, closeReg, err := setup(c)
	if err != nil {
		return err
	}
	defer closeReg()

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := c.Context
	plan, err := etl.New(reg, store).Plan(ctx, key)
	if err != nil {
		return err
	}
	fmt.Printf("-- mode: %s, table: %s\n", plan.Mode, plan.Table)
	fmt.Println(plan.SQL())

	if !c.Bool("apply") {
		return nil
	}
	for _, stmt := range plan.Statements {
		if _, err := store.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("executing statement: %w", err)
		}
	}
	fmt.Printf("Applied %d statements\n", len(plan.Statements))
	return nil
}

func runSync(c *cli.Context) error {
	file := c.Args().First()
	if file == "" {
		return errors.New("source file argument required")
	}
	keys := util.SplitCSV(c.String("keys"))
	if len(keys) == 0 {
		return errors.New("at least one mapping key required")
	}

	cfg, reg, closeReg, err := setup(c)
	if err != nil {
		return err
	}
	defer closeReg()

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	rows, err := feed.ReadFile(file)
	if err != nil {
		return err
	}
	if cfg.MaxRows > 0 && len(rows) > cfg.MaxRows {
		rows = rows[:cfg.MaxRows]
	}

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nInterrupted.")
		cancel()
	}()

	orch := etl.New(reg, store)
	dryRun := c.Bool("dry-run")

	tracker := progress.New()
	tracker.SetTotal(int64(len(rows) * len(keys)))

	g, gctx := errgroup.WithContext(ctx)
	reports := make([]*etl.Report, len(keys))
	for i, key := range keys {
		g.Go(func() error {
			last := 0
			rep, err := orch.Run(gctx, key, rows, etl.Options{
				DryRun: dryRun,
				Progress: func(done, total int) {
					tracker.Add(int64(done - last))
					last = done
				},
			})
			if err != nil {
				return fmt.Errorf("run %s: %w", key, err)
			}
			reports[i] = rep
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	tracker.Finish()

	for _, rep := range reports {
		printReport(rep, dryRun)
	}
	return nil
}

func printReport(rep *etl.Report, dryRun bool) {
	fmt.Printf("%s -> %s: received %d, transformed %d, loaded %d, failed %d (%s)\n",
		rep.MappingKey, rep.Table, rep.Received, rep.Transformed, rep.Loaded, rep.Failed,
		rep.Elapsed.Round(time.Millisecond))
	for _, f := range rep.Failures {
		fmt.Printf("  row %d: %s\n", f.Index, f.Reason)
	}
	if dryRun {
		for _, stmt := range rep.Statements {
			fmt.Println(stmt)
		}
	}
}

func listMappings(c *cli.Context) error {
	key := c.Args().First()
	if key == "" {
		return errors.New("mapping key argument required")
	}
	_, reg, closeReg, err := setup(c)
	if err != nil {
		return err
	}
	defer closeReg()

	fms, err := reg.GetActiveMappings(c.Context, key)
	if err != nil {
		return err
	}
	if len(fms) == 0 {
		fmt.Printf("No active mappings for %s\n", key)
		return nil
	}
	for _, fm := range fms {
		kind, params := mapping.EncodeRule(fm.Rule)
		line := fmt.Sprintf("%4d  %-24s -> %-24s %-14s %s", fm.ID, fm.SourceField, fm.DestColumn, fm.Type, kind)
		if len(params) > 0 && kind != mapping.RuleDirect {
			p, _ := json.Marshal(params)
			line += " " + string(p)
		}
		fmt.Println(line)
	}
	return nil
}

func importMappings(c *cli.Context) error {
	file := c.Args().First()
	if file == "" {
		return errors.New("mappings file argument required")
	}
	_, reg, closeReg, err := setup(c)
	if err != nil {
		return err
	}
	defer closeReg()

	mf, err := mapping.LoadFile(file)
	if err != nil {
		return err
	}
	if err := mf.Import(c.Context, reg); err != nil {
		return err
	}
	fmt.Printf("Imported mappings from %s\n", file)
	return nil
}
