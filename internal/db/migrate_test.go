package migrate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestMigrationsAreOrderedAndVersioned(t *testing.T) {
	migrations, err := Migrations()
	if err != nil {
		t.Fatalf("Migrations returned error: %v", err)
	}
	if len(migrations) == 0 {
		t.Fatalf("expected embedded migrations")
	}
	if migrations[0].Version != "001" {
		t.Fatalf("unexpected first version %q", migrations[0].Version)
	}
	for _, table := range []string{"users", "change_requests", "cr_developers", "tasks"} {
		if !strings.Contains(migrations[0].SQL, "CREATE TABLE IF NOT EXISTS "+table) {
			t.Fatalf("initial migration does not create %s", table)
		}
	}
}

func TestRunSkipsAppliedVersions(t *testing.T) {
	db := &fakeExecutor{applied: map[string]bool{"001": true}}

	if err := Run(context.Background(), db); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(db.execs) != 1 || !strings.Contains(db.execs[0], "schema_migrations") {
		t.Fatalf("expected only the version table to be created, got %v", db.execs)
	}
}

func TestRunAppliesAndRecordsPending(t *testing.T) {
	db := &fakeExecutor{applied: map[string]bool{}}

	if err := Run(context.Background(), db); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(db.execs) != 3 {
		t.Fatalf("expected create table, migration and record, got %d execs", len(db.execs))
	}
	if !strings.Contains(db.execs[1], "CREATE TABLE IF NOT EXISTS users") {
		t.Fatalf("migration body not executed: %q", db.execs[1])
	}
	if !strings.HasPrefix(db.execs[2], "INSERT INTO schema_migrations") {
		t.Fatalf("version not recorded: %q", db.execs[2])
	}
}

func TestRunStopsOnFailure(t *testing.T) {
	db := &fakeExecutor{applied: map[string]bool{}, failOn: "CREATE TABLE IF NOT EXISTS users"}

	err := Run(context.Background(), db)
	if err == nil || !strings.Contains(err.Error(), "execute migration 001_init.sql") {
		t.Fatalf("expected migration failure, got %v", err)
	}
}

type fakeExecutor struct {
	applied map[string]bool
	failOn  string
	execs   []string
}

func (f *fakeExecutor) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, strings.TrimSpace(sql))
	if f.failOn != "" && strings.Contains(sql, f.failOn) {
		return pgconn.CommandTag{}, errors.New("boom")
	}
	return pgconn.CommandTag{}, nil
}

func (f *fakeExecutor) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	version := args[0].(string)
	return fakeRow{scan: func(dest ...any) error {
		if !f.applied[version] {
			return pgx.ErrNoRows
		}
		*(dest[0].(*string)) = version
		return nil
	}}
}

type fakeRow struct {
	scan func(dest ...any) error
}

func (r fakeRow) Scan(dest ...any) error {
	return r.scan(dest...)
}
