package database

import (
	"reflect"
	"testing"
	"testing/fstest"
)

func TestMigrationNames(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/002_movies.sql":  {Data: []byte("SELECT 2")},
		"migrations/001_schema.sql":  {Data: []byte("SELECT 1")},
		"migrations/README.md":       {Data: []byte("notes")},
		"migrations/old/003_x.sql":   {Data: []byte("SELECT 3")},
		"migrations/010_indexes.sql": {Data: []byte("SELECT 10")},
	}
	got, err := migrationNames(fsys, "migrations")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"001_schema.sql", "002_movies.sql", "010_indexes.sql"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("names = %v, want %v", got, want)
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	names, err := migrationNames(migrationsFS, "migrations")
	if err != nil {
		t.Fatal(err)
	}
	if len(names) == 0 || names[0] != "001_schema.sql" {
		t.Fatalf("names = %v", names)
	}
}

func TestPending(t *testing.T) {
	names := []string{"001_schema.sql", "002_movies.sql", "003_indexes.sql"}
	got := pending(names, []string{"001_schema.sql", "003_indexes.sql"})
	if !reflect.DeepEqual(got, []string{"002_movies.sql"}) {
		t.Fatalf("pending = %v", got)
	}
	if got := pending(names, names); len(got) != 0 {
		t.Fatalf("pending = %v, want none", got)
	}
}
