package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/paravault/internal"
	pkgconfig "github.com/starford/paravault/pkg/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if t := cmd.String("transport"); t != "" {
		cfg.App.Transport = t
		if err := cfg.App.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

func export(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if p := cmd.String("out"); p != "" {
		cfg.Snapshot.Path = p
	}
	if cmd.Bool("drafts") {
		cfg.Snapshot.IncludeDrafts = true
	}

	n, err := internal.Export(ctx, internal.WithConfig(cfg))
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	slog.Info("snapshot written", slog.String("path", cfg.Snapshot.Path), slog.Int("documents", n))
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:    "paravault",
		Usage:   "PARA-organised Markdown vault with link graph, search and safe moves",
		Version: version,
		Action:  run,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "transport",
				Usage:   "Override app.transport (http or mcp)",
				Sources: cli.EnvVars("APP_TRANSPORT"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "export",
				Usage:  "Load the vault and write the renderer snapshot, then exit",
				Action: export,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "out",
						Usage: "SQLite file to write (default snapshot.path)",
					},
					&cli.BoolFlag{
						Name:  "drafts",
						Usage: "Include draft documents",
					},
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
