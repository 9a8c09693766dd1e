package store

import (
	"context"
	"path/filepath"
	"testing"
)

func TestMigrations_FreshDB(t *testing.T) {
	s := newTestStore(t)
	v, err := s.SchemaVersion(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if v != schemaVersion {
		t.Errorf("expected schema version %d, got %d", schemaVersion, v)
	}
}

func TestMigrations_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	for i := 0; i < 2; i++ {
		s, err := NewSQLiteStore(path, testLogger())
		if err != nil {
			t.Fatalf("open #%d: %v", i+1, err)
		}
		if err := runMigrations(context.Background(), s.db, testLogger()); err != nil {
			t.Fatalf("rerun #%d: %v", i+1, err)
		}
		var rows int
		if err := s.db.QueryRow(`SELECT COUNT(*) FROM schema_version`).Scan(&rows); err != nil {
			t.Fatal(err)
		}
		if rows != len(migrations) {
			t.Errorf("expected %d recorded migrations, got %d", len(migrations), rows)
		}
		s.Close()
	}
}

func TestMigrations_Ordered(t *testing.T) {
	for i := 1; i < len(migrations); i++ {
		if migrations[i].Version <= migrations[i-1].Version {
			t.Errorf("migration %d out of order", migrations[i].Version)
		}
	}
}
