package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/rendis/flowbuilder/internal/codec"
	"github.com/rendis/flowbuilder/internal/diagram"
	"github.com/rendis/flowbuilder/internal/expressions"
	"github.com/rendis/flowbuilder/internal/graph"
	"github.com/rendis/flowbuilder/internal/validation"
	"github.com/rendis/flowbuilder/pkg/schema"
)

func renderCommand() *cli.Command {
	return &cli.Command{
		Name:      "render",
		Usage:     "render a workflow document as a diagram",
		ArgsUsage: "<document.json|document.yaml>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: "ascii", Usage: "ascii, mermaid, dot, svg or png"},
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "output file (default: stdout)"},
		},
		Action: func(c *cli.Context) error {
			doc, _, err := readDocument(c.Args().First())
			if err != nil {
				return err
			}
			v, err := newValidator()
			if err != nil {
				return err
			}
			out, err := renderDocument(c.Context, doc, v.Validate(doc, validation.Options{}), c.String("format"))
			if err != nil {
				return err
			}
			if path := c.String("out"); path != "" {
				return os.WriteFile(path, out, 0o644)
			}
			_, err = c.App.Writer.Write(out)
			return err
		},
	}
}

func validateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "check a workflow document",
		ArgsUsage: "<document.json|document.yaml>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "identity", Usage: "also require client id and workflow name, as saving does"},
			&cli.BoolFlag{Name: "remote", Usage: "also run the backend validator"},
		},
		Action: func(c *cli.Context) error {
			doc, warnings, err := readDocument(c.Args().First())
			if err != nil {
				return err
			}
			for _, w := range warnings {
				fmt.Fprintf(c.App.Writer, "load: %s\n", w)
			}
			v, err := newValidator()
			if err != nil {
				return err
			}
			res := v.Validate(doc, validation.Options{RequireIdentity: c.Bool("identity")})
			printFindings(c, res)
			if !res.Valid() {
				return cli.Exit(fmt.Sprintf("%d error(s)", len(res.Errors)), 2)
			}
			if c.Bool("remote") {
				if err := validateRemote(c, doc); err != nil {
					return err
				}
			}
			fmt.Fprintln(c.App.Writer, "ok")
			return nil
		},
	}
}

func printFindings(c *cli.Context, res *schema.ValidationResult) {
	for _, is := range res.Issues() {
		fmt.Fprintf(c.App.Writer, "%-7s %-24s %s\n", is.Severity, is.Path, is.Message)
	}
}

func newValidator() (*validation.WorkflowValidator, error) {
	cel, err := expressions.NewCELEngine()
	if err != nil {
		return nil, err
	}
	return validation.NewWorkflowValidator(cel)
}

// readDocument loads a document the way the editor does, so dropped and
// repaired elements are reported as warnings. YAML files are converted first.
func readDocument(path string) (*schema.WorkflowDocument, []string, error) {
	if path == "" {
		return nil, nil, cli.Exit("a document path is required", 1)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	decode := codec.FromDocument
	if ext := strings.ToLower(filepath.Ext(path)); ext == ".yaml" || ext == ".yml" {
		decode = codec.FromYAML
	}
	loaded, err := decode(data, graph.NewIDAllocator())
	if err != nil {
		return nil, nil, err
	}
	return codec.ToDocument(loaded.Snapshot, loaded.Meta), loaded.Warnings, nil
}

// renderDocument draws doc with findings in format.
func renderDocument(ctx context.Context, doc *schema.WorkflowDocument, findings *schema.ValidationResult, format string) ([]byte, error) {
	model, err := diagram.Build(doc, findings)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(format) {
	case "", "ascii":
		return []byte(diagram.RenderASCII(model)), nil
	case "mermaid":
		return []byte(diagram.RenderMermaid(model)), nil
	case "dot":
		src, err := diagram.RenderDOT(model)
		return []byte(src), err
	case "svg":
		return diagram.RenderSVG(ctx, model)
	case "png":
		return diagram.RenderImage(ctx, model)
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
}
