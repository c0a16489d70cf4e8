package schema

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/GyroZepelix/mithril-forms/internal/form"
)

// LoadSchemas reads all *.yaml and *.yml files from the given directory, parses
// each into a Form, computes the SHA256 hash of the raw file bytes for change
// detection, and returns the forms sorted by name.
//
// An empty directory returns an empty slice with no error.
// A missing directory returns an error.
func LoadSchemas(dir string) ([]Form, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading schema directory %q: %w", dir, err)
	}

	var forms []Form
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		f, err := ParseFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("loading schema file %q: %w", entry.Name(), err)
		}
		forms = append(forms, f)
	}

	sort.Slice(forms, func(i, j int) bool {
		return forms[i].Name < forms[j].Name
	})

	return forms, nil
}

// ParseFile reads and parses a single form file.
func ParseFile(path string) (Form, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Form{}, fmt.Errorf("reading file: %w", err)
	}
	return Parse(data)
}

// Parse decodes one form definition. The decoder uses KnownFields(true) so
// that misspelled keys cause a parse error instead of being ignored. Missing
// labels are derived from field keys.
func Parse(data []byte) (Form, error) {
	var f Form
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return Form{}, fmt.Errorf("parsing YAML: %w", err)
	}

	if f.Label == "" && f.Name != "" {
		f.Label = Humanize(f.Name)
	}
	fillLabels(f.Fields)

	f.Hash = fmt.Sprintf("%x", sha256.Sum256(data))
	f.Source = data
	return f, nil
}

func fillLabels(fields form.Fields) {
	for _, fd := range fields {
		if fd.Label == "" {
			fd.Label = Humanize(fd.Key)
		}
		if fd.ItemSchema != nil {
			fillLabels(fd.ItemSchema.Fields)
		}
	}
}

// Humanize turns a field key into a label: "firstName" and "first_name"
// both become "First Name". Dotted keys use their last segment.
func Humanize(key string) string {
	if i := strings.LastIndexByte(key, '.'); i >= 0 {
		key = key[i+1:]
	}

	var b strings.Builder
	prev := rune(0)
	for _, r := range key {
		switch {
		case r == '_' || r == '-':
			b.WriteByte(' ')
		case unicode.IsUpper(r) && prev != 0 && (unicode.IsLower(prev) || unicode.IsDigit(prev)):
			b.WriteByte(' ')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
		prev = r
	}
	// Casers are stateful and not shared between goroutines.
	return cases.Title(language.English).String(strings.Join(strings.Fields(b.String()), " "))
}
