package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/GyroZepelix/mithril-forms/internal/schema"
)

// formFlags select a form: a single definition file, or a form by name
// from a schema directory.
type formFlags struct {
	file string
	dir  string
	name string
}

func (f *formFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.file, "f", "", "form definition file (YAML)")
	fs.StringVar(&f.dir, "dir", "./schema", "schema directory used with -form")
	fs.StringVar(&f.name, "form", "", "form name to load from -dir")
}

func (f *formFlags) load() (*schema.Form, error) {
	if f.file != "" {
		form, err := schema.ParseFile(f.file)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", f.file, err)
		}
		if err := schema.ValidateSchemas([]schema.Form{form}); err != nil {
			return nil, err
		}
		return &form, nil
	}
	if f.name == "" {
		return nil, errors.New("either -f or -form is required")
	}
	forms, err := schema.LoadSchemas(f.dir)
	if err != nil {
		return nil, err
	}
	if err := schema.ValidateSchemas(forms); err != nil {
		return nil, err
	}
	for i := range forms {
		if forms[i].Name == f.name {
			return &forms[i], nil
		}
	}
	return nil, fmt.Errorf("form %q not found in %s", f.name, f.dir)
}

// readObject reads a JSON or YAML object from path, or from stdin when path
// is "-". An empty path yields nil.
func readObject(path string, stdin io.Reader) (map[string]any, error) {
	if path == "" {
		return nil, nil
	}

	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	var out map[string]any
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" || (path == "-" && data[0] != '{') {
		err = yaml.Unmarshal(data, &out)
	} else {
		err = json.Unmarshal(data, &out)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return out, nil
}

func writeJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	_, err = fmt.Fprintf(w, "%s\n", b)
	return err
}

// parseFlags parses args and turns -h into a clean exit.
func parseFlags(fs *flag.FlagSet, args []string) (bool, error) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
