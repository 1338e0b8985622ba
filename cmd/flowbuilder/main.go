package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/rendis/flowbuilder/internal/logging"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "flowbuilder",
		Usage:   "headless workflow graph editor",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "log-level", Usage: "log level: debug, info, warn, error (overrides settings)"},
			&cli.StringFlag{Name: "db-path", Usage: "database path (overrides settings)"},
		},
		Commands: []*cli.Command{
			serveCommand(),
			mcpCommand(),
			renderCommand(),
			validateCommand(),
			remoteCommand(),
			initCommand(),
			{
				Name:  "version",
				Usage: "print the version",
				Action: func(c *cli.Context) error {
					fmt.Fprintln(c.App.Writer, version)
					return nil
				},
			},
		},
	}
}

// resolveConfig layers global flags over loadConfig.
func resolveConfig(c *cli.Context) Config {
	cfg := loadConfig()
	if v := c.String("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if v := c.String("db-path"); v != "" {
		cfg.DBPath = v
	}
	return cfg
}

func newLogger(w io.Writer, cfg Config) *slog.Logger {
	return logging.New(w, cfg.LogLevel, cfg.LogFormat)
}

// initCommand writes settings.json from flags.
func initCommand() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "write ~/.flowbuilder/settings.json",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "listen-addr", Usage: "panel listen address"},
			&cli.StringFlag{Name: "api-base-url", Usage: "catalog API base URL"},
			&cli.StringFlag{Name: "workflow-base-url", Usage: "workflow API base URL"},
			&cli.StringFlag{Name: "client-id", Usage: "client id stamped on new workflows"},
			&cli.StringFlag{Name: "assignment-rule", Usage: "expr rule over name, type and key that marks assignment tasks"},
		},
		Action: func(c *cli.Context) error {
			cfg := resolveConfig(c)
			for flag, dst := range map[string]*string{
				"listen-addr":       &cfg.ListenAddr,
				"api-base-url":      &cfg.APIBaseURL,
				"workflow-base-url": &cfg.WorkflowBaseURL,
				"client-id":         &cfg.ClientID,
				"assignment-rule":   &cfg.AssignmentRule,
			} {
				if c.IsSet(flag) {
					*dst = c.String(flag)
				}
			}
			path, err := writeSettings(cfg)
			if err != nil {
				return fmt.Errorf("write settings: %w", err)
			}
			fmt.Fprintf(c.App.Writer, "Config written to %s\n", path)
			return nil
		},
	}
}
