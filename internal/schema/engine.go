package schema

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"

	"github.com/GyroZepelix/mithril-forms/internal/database"
)

// Engine registers form definitions in the database. It loads registered
// forms from the forms table, diffs them against the YAML definitions and
// applies safe changes (or all changes in dev mode).
type Engine struct {
	db      *database.DB
	devMode bool
}

// NewEngine creates a new schema engine.
func NewEngine(db *database.DB, devMode bool) *Engine {
	return &Engine{
		db:      db,
		devMode: devMode,
	}
}

// registeredForm holds a form record as stored in the forms table.
type registeredForm struct {
	Name   string
	Hash   string
	Source []byte
}

// RefreshResult describes the outcome of a plan or refresh.
type RefreshResult struct {
	// Applied lists every change that was (or would be) applied.
	Applied []Change
	// Breaking lists breaking changes. When it is non-empty and breaking
	// changes are not allowed, nothing was applied.
	Breaking []Change
	// NewForms and UpdatedForms name the forms whose registration changed.
	NewForms     []string
	UpdatedForms []string
}

// Apply compares the given forms against the database state and applies
// changes. The process is:
//  1. Query all registered forms from the forms table.
//  2. For each loaded form, skip it when its hash matches the registered one.
//  3. Diff the rest against the registered definition.
//  4. If any breaking changes and NOT dev mode, return a BreakingChangesError.
//  5. Execute index DDL AND upsert forms rows in a single transaction.
func (e *Engine) Apply(ctx context.Context, forms []Form) error {
	result, changed, err := e.plan(ctx, forms)
	if err != nil {
		return err
	}
	if len(changed) == 0 {
		slog.Info("all forms up to date, no changes to apply")
		return nil
	}
	if len(result.Breaking) > 0 && !e.devMode {
		return &BreakingChangesError{Changes: result.Breaking}
	}
	if err := e.applyInTransaction(ctx, result.Applied, changed); err != nil {
		return fmt.Errorf("applying form changes: %w", err)
	}

	slog.Info("form changes applied",
		"changes", len(result.Applied),
		"breaking", len(result.Breaking),
		"forms_updated", len(changed),
	)
	return nil
}

// Refresh reloads the forms in dir, validates them and applies the changes.
// Breaking changes are applied only in dev mode or when force is set;
// otherwise the result lists them and nothing is written. The loaded forms
// are returned when the refresh was applied.
func (e *Engine) Refresh(ctx context.Context, dir string, force bool) (*RefreshResult, []Form, error) {
	forms, err := LoadSchemas(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("loading forms: %w", err)
	}
	if err := ValidateSchemas(forms); err != nil {
		return nil, nil, err
	}

	result, changed, err := e.plan(ctx, forms)
	if err != nil {
		return nil, nil, err
	}
	if len(result.Breaking) > 0 && !e.devMode && !force {
		return result, nil, nil
	}
	if len(changed) > 0 {
		if err := e.applyInTransaction(ctx, result.Applied, changed); err != nil {
			return nil, nil, fmt.Errorf("applying form changes: %w", err)
		}
	}
	return result, forms, nil
}

func (e *Engine) plan(ctx context.Context, forms []Form) (*RefreshResult, []Form, error) {
	existing, err := e.loadExisting(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("loading registered forms: %w", err)
	}
	result, changed := planChanges(forms, existing)
	return result, changed, nil
}

// planChanges diffs loaded forms against their registered state and returns
// the planned changes plus the forms whose row must be upserted.
func planChanges(forms []Form, existing map[string]registeredForm) (*RefreshResult, []Form) {
	result := &RefreshResult{}
	var changed []Form

	for _, loaded := range forms {
		reg, found := existing[loaded.Name]
		if found && reg.Hash == loaded.Hash {
			slog.Debug("form unchanged, skipping", "form", loaded.Name)
			continue
		}

		var prev *Form
		if found {
			f, err := Parse(reg.Source)
			if err != nil {
				// A stored definition that no longer parses is diffed as empty.
				slog.Warn("registered form source does not parse", "form", loaded.Name, "error", err)
				f = Form{Name: reg.Name}
			}
			prev = &f
			result.UpdatedForms = append(result.UpdatedForms, loaded.Name)
		} else {
			result.NewForms = append(result.NewForms, loaded.Name)
		}

		for _, c := range DiffForm(loaded, prev) {
			result.Applied = append(result.Applied, c)
			if !c.Safe {
				result.Breaking = append(result.Breaking, c)
			}
		}
		changed = append(changed, loaded)
	}
	return result, changed
}

// loadExisting queries all registered forms.
func (e *Engine) loadExisting(ctx context.Context) (map[string]registeredForm, error) {
	rows, err := e.db.Pool().Query(ctx, `SELECT name, schema_hash, source FROM forms`)
	if err != nil {
		return nil, fmt.Errorf("querying forms: %w", err)
	}
	defer rows.Close()

	result := make(map[string]registeredForm)
	for rows.Next() {
		var f registeredForm
		var source string
		if err := rows.Scan(&f.Name, &f.Hash, &source); err != nil {
			return nil, fmt.Errorf("scanning form row: %w", err)
		}
		f.Source = []byte(source)
		result[f.Name] = f
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating form rows: %w", err)
	}
	return result, nil
}

// applyInTransaction executes all DDL statements and upserts forms rows in a
// single transaction.
func (e *Engine) applyInTransaction(ctx context.Context, changes []Change, forms []Form) error {
	return e.db.WithTx(ctx, func(tx pgx.Tx) error {
		for _, c := range changes {
			if c.SQL == "" {
				slog.Debug("registration change", "type", c.Type, "detail", c.Detail)
				continue
			}
			slog.Info("applying form change", "type", c.Type, "detail", c.Detail)
			if _, err := tx.Exec(ctx, c.SQL); err != nil {
				return fmt.Errorf("executing %s on %s.%s: %w", c.Type, c.Form, c.Field, err)
			}
		}

		for _, f := range forms {
			definition, err := json.Marshal(f)
			if err != nil {
				return fmt.Errorf("marshaling definition of %q: %w", f.Name, err)
			}

			_, err = tx.Exec(ctx,
				`INSERT INTO forms (name, label, description, public, schema_hash, source, definition)
				 VALUES ($1, $2, $3, $4, $5, $6, $7)
				 ON CONFLICT (name) DO UPDATE SET
				   label = EXCLUDED.label,
				   description = EXCLUDED.description,
				   public = EXCLUDED.public,
				   schema_hash = EXCLUDED.schema_hash,
				   source = EXCLUDED.source,
				   definition = EXCLUDED.definition,
				   updated_at = now()`,
				f.Name, f.Label, f.Description, f.Public, f.Hash, string(f.Source), definition,
			)
			if err != nil {
				return fmt.Errorf("upserting form %q: %w", f.Name, err)
			}
		}
		return nil
	})
}

// BreakingChangesError is returned when Apply detects breaking changes and
// the engine is not in dev mode.
type BreakingChangesError struct {
	Changes []Change
}

// Error returns a human-readable summary of all breaking changes.
func (e *BreakingChangesError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "form registration blocked: %d breaking change(s) detected (use dev mode to force):\n", len(e.Changes))
	for _, c := range e.Changes {
		fmt.Fprintf(&b, "  - %s\n", c.Detail)
	}
	return b.String()
}
