package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/digistore-backend/internal/seed"
	"github.com/angelmondragon/digistore-backend/pkg/config"
	"github.com/angelmondragon/digistore-backend/pkg/db"
	"github.com/angelmondragon/digistore-backend/pkg/logger"
	"github.com/angelmondragon/digistore-backend/pkg/migrate"
)

type options struct {
	dir      string
	name     string
	version  string
	fixtures string
}

// offline commands run without a database connection.
var offline = map[string]func(ctx context.Context, opts options) error{
	"create": func(_ context.Context, opts options) error {
		if opts.name == "" {
			return errors.New("missing -name")
		}
		path, err := migrate.CreateSQLMigration(opts.dir, opts.name, time.Now())
		if err != nil {
			return err
		}
		fmt.Println("created migration:", path)
		return nil
	},
	"validate": func(_ context.Context, opts options) error {
		if err := migrate.ValidateDir(opts.dir); err != nil {
			return fmt.Errorf("%s: %w", opts.dir, err)
		}
		for _, d := range []migrate.Dialect{migrate.DialectPostgres, migrate.DialectSQLite} {
			src, err := migrate.Source(d)
			if err != nil {
				return err
			}
			if err := migrate.ValidateFS(src); err != nil {
				return fmt.Errorf("embedded %s set: %w", d, err)
			}
		}
		fmt.Println("migration validation passed")
		return nil
	},
}

// online commands run against the configured database.
var online = map[string]func(ctx context.Context, client *db.Client, dialect migrate.Dialect, opts options, logg *logger.Logger) error{
	"up":     gooseCommand("up"),
	"down":   gooseCommand("down"),
	"status": gooseCommand("status"),
	"version": func(ctx context.Context, client *db.Client, dialect migrate.Dialect, opts options, _ *logger.Logger) error {
		if opts.version == "" {
			return errors.New("missing -version")
		}
		sqlDB, err := client.SQL()
		if err != nil {
			return err
		}
		return migrate.MigrateToVersion(ctx, sqlDB, dialect, opts.version)
	},
	"seed": func(ctx context.Context, client *db.Client, _ migrate.Dialect, opts options, logg *logger.Logger) error {
		fx, err := seed.LoadFile(opts.fixtures)
		if err != nil {
			return err
		}
		res, err := seed.Apply(ctx, client.DB(), fx, time.Now())
		if err != nil {
			return err
		}
		logg.Info(logg.WithFields(ctx, map[string]any{
			"categories":   res.Categories,
			"technologies": res.Technologies,
			"pages":        res.Pages,
		}), "fixtures imported")
		return nil
	},
}

func gooseCommand(command string) func(context.Context, *db.Client, migrate.Dialect, options, *logger.Logger) error {
	return func(ctx context.Context, client *db.Client, dialect migrate.Dialect, _ options, _ *logger.Logger) error {
		sqlDB, err := client.SQL()
		if err != nil {
			return err
		}
		return migrate.Run(ctx, sqlDB, dialect, command)
	}
}

func main() {
	logg := logger.New(logger.Options{ServiceName: "migrate"})
	_ = godotenv.Load()

	var opts options
	cmd := flag.String("cmd", "up", "up|down|status|version|create|validate|seed")
	flag.StringVar(&opts.dir, "dir", migrate.DefaultDir, "migrations directory for create and validate")
	flag.StringVar(&opts.name, "name", "", "migration name for create")
	flag.StringVar(&opts.version, "version", "", "target version (YYYYMMDDHHMMSS) for version")
	flag.StringVar(&opts.fixtures, "file", "fixtures/seed.yaml", "fixture file for seed")
	flag.Parse()

	ctx := logg.WithFields(context.Background(), map[string]any{"cmd": *cmd})

	if run, ok := offline[*cmd]; ok {
		exitOn(ctx, logg, *cmd, run(ctx, opts))
		return
	}
	run, ok := online[*cmd]
	if !ok {
		fmt.Fprintln(os.Stderr, "unknown -cmd value:", *cmd)
		os.Exit(2)
	}

	cfg, err := config.Load()
	exitOn(ctx, logg, "config", err)
	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	dialect := migrate.DialectFor(cfg)
	ctx = logg.WithFields(context.Background(), map[string]any{"env": cfg.App.Env, "cmd": *cmd, "dialect": dialect})

	client, err := db.New(ctx, cfg.DB, db.Options{UseSQLite: cfg.FeatureFlags.UseSQLite}, logg)
	exitOn(ctx, logg, "database", err)

	err = run(ctx, client, dialect, opts, logg)
	if closeErr := client.Close(); closeErr != nil {
		logg.Error(ctx, "error closing database", closeErr)
	}
	exitOn(ctx, logg, *cmd, err)
	logg.Info(ctx, "migrate finished")
}

func exitOn(ctx context.Context, logg *logger.Logger, step string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("migrate %s failed", step), err)
	os.Exit(1)
}
