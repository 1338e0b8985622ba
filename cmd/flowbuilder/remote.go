package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/rendis/flowbuilder/internal/client"
	"github.com/rendis/flowbuilder/pkg/schema"
)

func remoteCommand() *cli.Command {
	return &cli.Command{
		Name:  "remote",
		Usage: "talk to the workflow backend directly",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "list stored workflows",
				Action: func(c *cli.Context) error {
					return withClient(c, func(cl *client.Client) error {
						list, err := cl.ListWorkflows(c.Context)
						if err != nil {
							return err
						}
						tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
						fmt.Fprintln(tw, "ID\tNAME\tCLIENT")
						for _, w := range list {
							fmt.Fprintf(tw, "%s\t%s\t%s\n", w.ID, w.WorkflowName, w.ClientID)
						}
						return tw.Flush()
					})
				},
			},
			{
				Name:      "export",
				Usage:     "download a stored workflow",
				ArgsUsage: "<id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "format", Value: "json", Usage: "json or yaml"},
					&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "output file (default: stdout)"},
				},
				Action: func(c *cli.Context) error {
					id := c.Args().First()
					if id == "" {
						return cli.Exit("a workflow id is required", 1)
					}
					return withClient(c, func(cl *client.Client) error {
						res, err := cl.ExportWorkflow(c.Context, id, c.String("format"))
						if err != nil {
							return err
						}
						if path := c.String("out"); path != "" {
							return os.WriteFile(path, res.Data, 0o644)
						}
						_, err = c.App.Writer.Write(res.Data)
						return err
					})
				},
			},
			{
				Name:      "import",
				Usage:     "upload a workflow file",
				ArgsUsage: "<file>",
				Action: func(c *cli.Context) error {
					path := c.Args().First()
					if path == "" {
						return cli.Exit("a file is required", 1)
					}
					f, err := os.Open(path)
					if err != nil {
						return err
					}
					defer f.Close()
					return withClient(c, func(cl *client.Client) error {
						res, err := cl.ImportWorkflow(c.Context, filepath.Base(path), f)
						if err != nil {
							return err
						}
						fmt.Fprintln(c.App.Writer, res.Message)
						return nil
					})
				},
			},
			{
				Name:  "health",
				Usage: "check the catalog API",
				Action: func(c *cli.Context) error {
					return withClient(c, func(cl *client.Client) error {
						res, err := cl.Health(c.Context)
						if err != nil {
							return err
						}
						fmt.Fprintln(c.App.Writer, res.Message)
						return nil
					})
				},
			},
		},
	}
}

// withClient wires a runtime for the duration of fn.
func withClient(c *cli.Context, fn func(*client.Client) error) error {
	cfg := resolveConfig(c)
	logger := newLogger(os.Stderr, cfg)
	rt, err := build(c.Context, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(rt.client)
}

func validateRemote(c *cli.Context, doc *schema.WorkflowDocument) error {
	return withClient(c, func(cl *client.Client) error {
		res, err := cl.ValidateWorkflow(c.Context, doc)
		if err != nil {
			return cli.Exit(fmt.Sprintf("%s: %v", res.Message, err), 2)
		}
		fmt.Fprintf(c.App.Writer, "remote: %s\n", res.Message)
		if len(res.Data) > 0 {
			fmt.Fprintf(c.App.Writer, "%s\n", res.Data)
		}
		return nil
	})
}
