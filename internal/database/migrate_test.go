package database

import "testing"

func TestMigrateURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"postgres://u:p@localhost:5432/forms?sslmode=disable", "pgx5://u:p@localhost:5432/forms?sslmode=disable"},
		{"postgresql://localhost/forms", "pgx5://localhost/forms"},
		{"pgx5://localhost/forms", "pgx5://localhost/forms"},
	}
	for _, tt := range tests {
		if got := migrateURL(tt.in); got != tt.want {
			t.Errorf("migrateURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
