package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"

	"github.com/goccy/go-json"

	"github.com/GyroZepelix/mithril-forms/internal/formstate"
	"github.com/GyroZepelix/mithril-forms/internal/mcpserver"
	"github.com/GyroZepelix/mithril-forms/internal/openapi"
	"github.com/GyroZepelix/mithril-forms/internal/schema"
)

// dataFlags are shared by the evaluating commands.
type dataFlags struct {
	formFlags
	data   string
	config string
	debug  bool
}

func newDataFlagSet(name, usage string) (*flag.FlagSet, *dataFlags) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	flags := &dataFlags{}
	flags.formFlags.register(fs)
	fs.StringVar(&flags.data, "data", "", "form data file (JSON or YAML), - for stdin")
	fs.StringVar(&flags.config, "config", "", "host configuration file read by bind paths and templates")
	fs.BoolVar(&flags.debug, "debug", false, "log every computed field state to stderr")
	fs.Usage = func() {
		out := fs.Output()
		_, _ = fmt.Fprintf(out, "Usage: formctl %s [flags]\n\n%s\n\nFlags:\n", name, usage)
		fs.PrintDefaults()
	}
	return fs, flags
}

// inputs loads the form plus its data and config.
func (d *dataFlags) inputs(stdin io.Reader) (*schema.Form, map[string]any, map[string]any, error) {
	f, err := d.load()
	if err != nil {
		return nil, nil, nil, err
	}
	data, err := readObject(d.data, stdin)
	if err != nil {
		return nil, nil, nil, err
	}
	config, err := readObject(d.config, stdin)
	if err != nil {
		return nil, nil, nil, err
	}
	return f, data, config, nil
}

func (d *dataFlags) options() formstate.Options {
	opts := formstate.Options{Debug: d.debug}
	if d.debug {
		opts.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return opts
}

func runEval(_ context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	fs, flags := newDataFlagSet("eval", "Compute per-field value, visibility, disabled and required flags and errors.")
	if ok, err := parseFlags(fs, args); !ok {
		return err
	}
	f, data, config, err := flags.inputs(stdin)
	if err != nil {
		return err
	}
	return writeJSON(stdout, formstate.Compute(f.Schema(), data, config, flags.options()))
}

func runSubmit(_ context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	fs, flags := newDataFlagSet("submit", "Finalize a submission. Exits with status 2 when the data has field errors.")
	if ok, err := parseFlags(fs, args); !ok {
		return err
	}
	f, data, config, err := flags.inputs(stdin)
	if err != nil {
		return err
	}

	res := formstate.Finalize(f.Schema(), data, config, flags.options())
	if err := writeJSON(stdout, res); err != nil {
		return err
	}
	if !res.Success {
		return errInvalid
	}
	return nil
}

func runAutoSave(_ context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	fs, flags := newDataFlagSet("autosave", "Print the draft payload an autosave would persist.")
	if ok, err := parseFlags(fs, args); !ok {
		return err
	}
	f, data, _, err := flags.inputs(stdin)
	if err != nil {
		return err
	}
	return writeJSON(stdout, formstate.ExtractAutoSave(f.Schema(), data, flags.options()))
}

func runLint(_ context.Context, args []string, _ io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("lint", flag.ContinueOnError)
	dir := fs.String("dir", "./schema", "schema directory")
	strict := fs.Bool("strict", false, "treat warnings as errors")
	if ok, err := parseFlags(fs, args); !ok {
		return err
	}

	forms, err := schema.LoadSchemas(*dir)
	if err != nil {
		return err
	}

	failed := false
	if err := schema.ValidateSchemas(forms); err != nil {
		var ve *schema.ValidationError
		if !errors.As(err, &ve) {
			return err
		}
		for _, p := range ve.Problems {
			fmt.Fprintf(stdout, "error: %s\n", p)
		}
		failed = true
	}

	warnings := schema.Lint(forms)
	sort.SliceStable(warnings, func(i, j int) bool { return warnings[i].Form < warnings[j].Form })
	for _, w := range warnings {
		fmt.Fprintf(stdout, "warning: %s\n", w)
	}

	if failed || (*strict && len(warnings) > 0) {
		return fmt.Errorf("lint failed for %s", *dir)
	}
	fmt.Fprintf(stdout, "%d form(s) ok, %d warning(s)\n", len(forms), len(warnings))
	return nil
}

func runOpenAPI(ctx context.Context, args []string, _ io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("openapi", flag.ContinueOnError)
	var ff formFlags
	ff.register(fs)
	if ok, err := parseFlags(fs, args); !ok {
		return err
	}

	f, err := ff.load()
	if err != nil {
		return err
	}
	doc, err := openapi.Build(ctx, f)
	if err != nil {
		return err
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding OpenAPI document: %w", err)
	}
	_, err = fmt.Fprintf(stdout, "%s\n", b)
	return err
}

func runMCP(ctx context.Context, args []string, _ io.Reader, _ io.Writer) error {
	fs := flag.NewFlagSet("mcp", flag.ContinueOnError)
	dir := fs.String("dir", "./schema", "schema directory")
	if ok, err := parseFlags(fs, args); !ok {
		return err
	}

	forms, err := schema.LoadSchemas(*dir)
	if err != nil {
		return err
	}
	if err := schema.ValidateSchemas(forms); err != nil {
		return err
	}

	// stdout carries the protocol.
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	logger.Info("serving MCP over stdio", "forms", len(forms))
	return mcpserver.New(forms, logger).Run(ctx)
}
