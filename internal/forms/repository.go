package forms

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Counts holds the number of stored rows for one form.
type Counts struct {
	Submissions int
	Drafts      int
}

// Repository reads per-form statistics.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new forms Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Counts returns submission and draft counts keyed by form name. Forms
// without stored rows are absent.
func (r *Repository) Counts(ctx context.Context) (map[string]Counts, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT form, sum(submissions)::int, sum(drafts)::int FROM (
		   SELECT form, count(*) AS submissions, 0 AS drafts FROM submissions GROUP BY form
		   UNION ALL
		   SELECT form, 0, count(*) FROM drafts GROUP BY form
		 ) c GROUP BY form`)
	if err != nil {
		return nil, fmt.Errorf("counting form rows: %w", err)
	}
	defer rows.Close()

	out := make(map[string]Counts)
	for rows.Next() {
		var name string
		var c Counts
		if err := rows.Scan(&name, &c.Submissions, &c.Drafts); err != nil {
			return nil, fmt.Errorf("scanning form counts: %w", err)
		}
		out[name] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating form counts: %w", err)
	}
	return out, nil
}
