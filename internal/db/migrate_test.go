package db

import "testing"

func TestMigrateURL(t *testing.T) {
	cases := map[string]string{
		"postgres://u:p@localhost:5432/dolarbot?sslmode=disable": "pgx5://u:p@localhost:5432/dolarbot?sslmode=disable",
		"postgresql://u@db/dolarbot":                             "pgx5://u@db/dolarbot",
		"pgx5://u@db/dolarbot":                                   "pgx5://u@db/dolarbot",
	}
	for in, want := range cases {
		if got := migrateURL(in); got != want {
			t.Errorf("migrateURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		t.Fatalf("read embedded migrations: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected up and down migration, got %d files", len(entries))
	}
}
