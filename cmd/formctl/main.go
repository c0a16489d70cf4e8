// Command formctl evaluates form definitions offline: it computes field
// state, finalizes and autosaves payloads, lints definitions, exports
// OpenAPI documents, fills forms interactively and serves the MCP tools.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

// errInvalid marks a finalize run that produced field errors. It exits with
// status 2 so scripts can tell invalid input from usage errors.
var errInvalid = errors.New("submission is invalid")

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error
}

var commands = []command{
	{"eval", "compute the live state of every field", runEval},
	{"submit", "finalize a submission payload", runSubmit},
	{"autosave", "extract the draft payload an autosave would persist", runAutoSave},
	{"lint", "validate definitions and report suspicious constructs", runLint},
	{"openapi", "print the OpenAPI document of a form", runOpenAPI},
	{"fill", "fill a form interactively in the terminal", runFill},
	{"mcp", "serve the form tools over MCP stdio", runMCP},
}

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(1)
	}

	name := os.Args[1]
	switch name {
	case "help", "-h", "--help":
		printUsage(os.Stdout)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for _, c := range commands {
		if c.name != name {
			continue
		}
		err := c.run(ctx, os.Args[2:], os.Stdin, os.Stdout)
		switch {
		case err == nil:
			return
		case errors.Is(err, errInvalid):
			os.Exit(2)
		default:
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", name)
	printUsage(os.Stderr)
	os.Exit(1)
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, "Usage: formctl <command> [flags]\n\nCommands:\n")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-9s %s\n", c.name, c.summary)
	}
	fmt.Fprintf(w, "\nRun 'formctl <command> -h' for command flags.\n")
}
