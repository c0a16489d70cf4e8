package search

import (
	"testing"
)

func TestBuildSearchClause_WithSearchableFields(t *testing.T) {
	where, order, headline, args := BuildSearchClause("hello world", []string{"title", "address.city"}, 3)

	vector := `to_tsvector('simple', concat_ws(' ', data->>'title', data #>> ARRAY['address','city']))`
	if want := vector + ` @@ plainto_tsquery('simple', $3)`; where != want {
		t.Errorf("unexpected whereClause:\n  got:  %s\n  want: %s", where, want)
	}

	if want := `ts_rank(` + vector + `, plainto_tsquery('simple', $3)) DESC`; order != want {
		t.Errorf("unexpected orderClause:\n  got:  %s\n  want: %s", order, want)
	}

	// Headline should use the first searchable field ("title").
	expectedHeadline := `ts_headline('simple', coalesce(data->>'title', ''), plainto_tsquery('simple', $3)) AS "_search_headline"`
	if headline != expectedHeadline {
		t.Errorf("unexpected headlineExpr:\n  got:  %s\n  want: %s", headline, expectedHeadline)
	}

	if len(args) != 1 {
		t.Fatalf("expected 1 arg, got %d", len(args))
	}
	if args[0] != "hello world" {
		t.Errorf("expected arg 'hello world', got %v", args[0])
	}
}

func TestBuildSearchClause_NoSearchableFields(t *testing.T) {
	for _, fields := range [][]string{nil, {}} {
		where, order, headline, args := BuildSearchClause("test", fields, 1)
		if where != "" || order != "" || headline != "" || args != nil {
			t.Errorf("BuildSearchClause(%v) = %q, %q, %q, %v; want all empty", fields, where, order, headline, args)
		}
	}
}

func TestBuildSearchClause_QuotesKeys(t *testing.T) {
	where, _, _, _ := BuildSearchClause("x", []string{"it's"}, 1)
	want := `to_tsvector('simple', concat_ws(' ', data->>'it''s')) @@ plainto_tsquery('simple', $1)`
	if where != want {
		t.Errorf("whereClause = %s, want %s", where, want)
	}
}
