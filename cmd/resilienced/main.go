// Command resilienced runs the outbox delivery engine and its HTTP API.
//
//	resilienced [-config path/to/config.yml]
//	resilienced [-config path/to/config.yml] token <subject>
//	resilienced -version
//
// The token subcommand prints a signed operator token for the admin API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/kbukum/resilience-core/auth"
	"github.com/kbukum/resilience-core/bootstrap"
	"github.com/kbukum/resilience-core/config"
	"github.com/kbukum/resilience-core/database"
	"github.com/kbukum/resilience-core/observability"
	"github.com/kbukum/resilience-core/outbox"
	"github.com/kbukum/resilience-core/redis"
	"github.com/kbukum/resilience-core/transport/payment"
	"github.com/kbukum/resilience-core/version"
)

const serviceName = "resilienced"

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet(serviceName, flag.ContinueOnError)
	configFile := flags.String("config", "", "path to the YAML config file")
	showVersion := flags.Bool("version", false, "print the build version and exit")
	if err := flags.Parse(args); err != nil {
		return err
	}
	build := version.Get()
	if *showVersion {
		fmt.Println(build.String())
		return nil
	}

	var cfg Config
	var opts []config.LoaderOption
	if *configFile != "" {
		opts = append(opts, config.WithConfigFile(*configFile))
	}
	if err := config.LoadConfig(serviceName, &cfg, opts...); err != nil {
		return err
	}

	if flags.Arg(0) == "token" {
		return printToken(&cfg, flags.Arg(1))
	}
	if cfg.Version == "" {
		cfg.Version = build.Version
	}

	app, err := bootstrap.NewApp(&cfg)
	if err != nil {
		return err
	}

	shutdownTelemetry, err := observability.Init(ctx, cfg.Observability, observability.Service{
		Name:        cfg.Name,
		Version:     cfg.Version,
		Environment: cfg.Environment,
	})
	if err != nil {
		return err
	}
	app.OnStop(shutdownTelemetry)

	db := database.NewComponent(cfg.Database, app.Logger).
		WithAutoMigrate(append(outbox.Models(), &payment.Intent{})...).
		WithMigrations(outbox.Migrations()).
		WithMigrations(payment.Migrations())
	rdb := redis.NewComponent(cfg.Redis, app.Logger)
	if err := app.RegisterComponent(db); err != nil {
		return err
	}
	if err := app.RegisterComponent(rdb); err != nil {
		return err
	}

	app.OnConfigure(func(ctx context.Context, a *bootstrap.App[*Config]) error {
		return wire(ctx, a, db.DB(), rdb.Client())
	})
	return app.Run(ctx)
}

func printToken(cfg *Config, subject string) error {
	if subject == "" {
		return errors.New("usage: resilienced token <subject>")
	}
	cfg.ApplyDefaults()
	if err := cfg.Auth.JWT.Validate(); err != nil {
		return fmt.Errorf("auth.jwt: %w", err)
	}
	ops, err := auth.NewOperators(cfg.Auth)
	if err != nil {
		return err
	}
	token, err := ops.Issue(subject)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
