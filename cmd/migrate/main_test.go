package main

import (
	"errors"
	"io/fs"
	"strings"
	"testing"

	"github.com/golang-migrate/migrate/v4"
)

func TestResolveDSN(t *testing.T) {
	t.Run("flag wins", func(t *testing.T) {
		t.Setenv(envDSN, "postgres://env/db")
		got, err := resolveDSN("postgres://flag/db")
		if err != nil || got != "postgres://flag/db" {
			t.Errorf("resolveDSN() = %q, %v", got, err)
		}
	})

	t.Run("env", func(t *testing.T) {
		t.Setenv(envDSN, "postgres://env/db")
		got, err := resolveDSN("")
		if err != nil || got != "postgres://env/db" {
			t.Errorf("resolveDSN() = %q, %v", got, err)
		}
	})

	t.Run("config", func(t *testing.T) {
		t.Setenv(envDSN, "")
		t.Setenv("WARDEN_CONFIG_DIR", t.TempDir())
		t.Setenv("WARDEN_ENV", "")
		t.Setenv("WARDEN_DB_NAME", "warden")
		t.Setenv("WARDEN_DB_USER", "warden")
		t.Setenv("WARDEN_DB_HOST", "db.internal")
		t.Setenv("WARDEN_STORAGE_PROVIDER", "memory")

		got, err := resolveDSN("")
		if err != nil {
			t.Fatalf("resolveDSN() error = %v", err)
		}
		if !strings.Contains(got, "@db.internal:5432/warden?") {
			t.Errorf("resolveDSN() = %q", got)
		}
	})
}

func TestEmbeddedMigrationsPaired(t *testing.T) {
	ups, err := fs.Glob(migrations, "migrations/*.up.sql")
	if err != nil {
		t.Fatal(err)
	}
	if len(ups) == 0 {
		t.Fatal("no up migrations embedded")
	}

	for _, up := range ups {
		down := strings.TrimSuffix(up, ".up.sql") + ".down.sql"
		if _, err := fs.Stat(migrations, down); err != nil {
			t.Errorf("%s has no matching %s", up, down)
		}
	}
}

func TestIgnoreNoChange(t *testing.T) {
	if err := ignoreNoChange(migrate.ErrNoChange); err != nil {
		t.Errorf("ErrNoChange should be ignored, got %v", err)
	}

	boom := errors.New("boom")
	if err := ignoreNoChange(boom); !errors.Is(err, boom) {
		t.Errorf("other errors should pass through, got %v", err)
	}
}
