package postgres

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/GolovachevS/cr-dashboard/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	createdAt = time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	dueAt     = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
)

func TestStoreCreateChangeRequestSingleTransaction(t *testing.T) {
	ctx := context.Background()
	cr := domain.ChangeRequest{
		ID: "cr-1", Title: "Add search", Status: domain.CRStatusPending,
		OwnerID: "u1", DueDate: dueAt, CreatedAt: createdAt, UpdatedAt: createdAt,
	}
	tasks := []domain.Task{
		{ID: "t1", ChangeRequestID: "cr-1", Description: "Write tests", Status: domain.TaskStatusNotStarted, AssignedTo: "u2"},
		{ID: "t2", ChangeRequestID: "cr-1", Description: "Ship it", Status: domain.TaskStatusNotStarted, AssignedTo: "u3"},
	}

	var statements []string
	committed := false
	tx := &fakeTx{
		execFunc: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			statements = append(statements, sql)
			return pgconn.NewCommandTag("INSERT 0 1"), nil
		},
		commitFunc:   func(context.Context) error { committed = true; return nil },
		rollbackFunc: func(context.Context) error { return pgx.ErrTxClosed },
	}
	begins := 0
	pool := &fakePool{
		beginTxFunc: func(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
			begins++
			return tx, nil
		},
	}

	if err := New(pool).CreateChangeRequest(ctx, cr, []string{"u2", "u3"}, tasks); err != nil {
		t.Fatalf("CreateChangeRequest returned error: %v", err)
	}
	if begins != 1 || !committed {
		t.Fatalf("expected one committed transaction, begins=%d committed=%v", begins, committed)
	}
	if len(statements) != 5 {
		t.Fatalf("expected 1 CR, 2 assignment and 2 task inserts, got %d", len(statements))
	}
	if !strings.Contains(statements[0], "INSERT INTO change_requests") {
		t.Fatalf("change request must be inserted first, got %q", statements[0])
	}
	if !strings.Contains(statements[4], "INSERT INTO tasks") {
		t.Fatalf("tasks must be inserted last, got %q", statements[4])
	}
}

func TestStoreCreateChangeRequestUnknownAssigneeRollsBack(t *testing.T) {
	ctx := context.Background()
	committed, rolledBack := false, false
	tx := &fakeTx{
		execFunc: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			if strings.Contains(sql, "INSERT INTO tasks") {
				return pgconn.CommandTag{}, &pgconn.PgError{Code: "23503", ConstraintName: "tasks_assigned_to_fkey"}
			}
			return pgconn.NewCommandTag("INSERT 0 1"), nil
		},
		commitFunc:   func(context.Context) error { committed = true; return nil },
		rollbackFunc: func(context.Context) error { rolledBack = true; return nil },
	}
	pool := &fakePool{
		beginTxFunc: func(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) { return tx, nil },
	}

	err := New(pool).CreateChangeRequest(ctx,
		domain.ChangeRequest{ID: "cr-1", OwnerID: "u1", Status: domain.CRStatusPending},
		[]string{"u1"},
		[]domain.Task{{ID: "t1", ChangeRequestID: "cr-1", AssignedTo: "ghost"}},
	)
	if !domain.HasCode(err, domain.ErrCodeNotFound) {
		t.Fatalf("expected not found error, got %v", err)
	}
	if committed || !rolledBack {
		t.Fatalf("expected rollback without commit, committed=%v rolledBack=%v", committed, rolledBack)
	}
}

func TestStoreCreateUserDuplicateEmail(t *testing.T) {
	pool := &fakePool{
		queryRowFunc: func(ctx context.Context, sql string, args ...any) pgx.Row {
			return fakeRow{scan: func(dest ...any) error {
				return &pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"}
			}}
		},
	}

	_, err := New(pool).CreateUser(context.Background(), domain.User{ID: "u1", Email: "alice@company.com"})
	var appErr *domain.AppError
	if !errors.As(err, &appErr) || appErr.Code != domain.ErrCodeConflict {
		t.Fatalf("unexpected error: %v", err)
	}
	if appErr.Message != "User with this email already exists" {
		t.Fatalf("unexpected message %q", appErr.Message)
	}
}

func TestStoreUpdateStatusMissingRow(t *testing.T) {
	pool := &fakePool{
		execFunc: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			return pgconn.NewCommandTag("UPDATE 0"), nil
		},
	}
	store := New(pool)

	err := store.UpdateChangeRequestStatus(context.Background(), "cr-1", domain.CRStatusBlocked, createdAt)
	if !domain.HasCode(err, domain.ErrCodeNotFound) {
		t.Fatalf("expected not found for change request, got %v", err)
	}

	err = store.UpdateTaskStatus(context.Background(), "t1", domain.TaskStatusCompleted, createdAt)
	var appErr *domain.AppError
	if !errors.As(err, &appErr) || appErr.Message != "Task not found" {
		t.Fatalf("expected task not found, got %v", err)
	}
}

func TestStoreDeleteChangeRequestRemovesChildrenFirst(t *testing.T) {
	var statements []string
	tx := &fakeTx{
		execFunc: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			statements = append(statements, sql)
			return pgconn.NewCommandTag("DELETE 1"), nil
		},
	}
	pool := &fakePool{
		beginTxFunc: func(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) { return tx, nil },
	}

	if err := New(pool).DeleteChangeRequest(context.Background(), "cr-1"); err != nil {
		t.Fatalf("DeleteChangeRequest returned error: %v", err)
	}
	want := []string{"DELETE FROM tasks", "DELETE FROM cr_developers", "DELETE FROM change_requests"}
	if len(statements) != len(want) {
		t.Fatalf("expected %d statements, got %d", len(want), len(statements))
	}
	for i, prefix := range want {
		if !strings.HasPrefix(statements[i], prefix) {
			t.Fatalf("statement %d: expected %q, got %q", i, prefix, statements[i])
		}
	}
}

func TestStoreDeleteChangeRequestMissing(t *testing.T) {
	tx := &fakeTx{
		execFunc: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			return pgconn.NewCommandTag("DELETE 0"), nil
		},
	}
	pool := &fakePool{
		beginTxFunc: func(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) { return tx, nil },
	}

	err := New(pool).DeleteChangeRequest(context.Background(), "cr-1")
	if !domain.HasCode(err, domain.ErrCodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStoreTransactionFailureLogLevel(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	missing := &fakePool{
		beginTxFunc: func(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
			return &fakeTx{
				execFunc: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
					return pgconn.NewCommandTag("DELETE 0"), nil
				},
			}, nil
		},
	}
	if err := New(missing).DeleteChangeRequest(context.Background(), "cr-1"); err == nil {
		t.Fatal("expected not found")
	}
	if strings.Contains(buf.String(), "transaction failed") {
		t.Fatalf("not found should not be logged above debug, got %q", buf.String())
	}

	broken := &fakePool{
		beginTxFunc: func(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
			return nil, errors.New("connection refused")
		},
	}
	if err := New(broken).DeleteChangeRequest(context.Background(), "cr-1"); err == nil {
		t.Fatal("expected store error")
	}
	if !strings.Contains(buf.String(), "level=ERROR msg=\"transaction failed\"") {
		t.Fatalf("expected error log for store failure, got %q", buf.String())
	}
}

func TestTxFailureLevel(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want slog.Level
	}{
		{name: "not found", err: domain.NewChangeRequestNotFoundError(nil), want: slog.LevelDebug},
		{name: "user reference", err: domain.NewUserReferenceError(errors.New("fk")), want: slog.LevelDebug},
		{name: "conflict", err: domain.NewEmailExistsError(nil), want: slog.LevelDebug},
		{name: "store", err: domain.NewStoreError(errors.New("boom")), want: slog.LevelError},
		{name: "plain", err: errors.New("boom"), want: slog.LevelError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := txFailureLevel(tc.err); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestStoreUpdateChangeRequestDevelopers(t *testing.T) {
	cases := []struct {
		name       string
		developers []string
		wantDelete bool
		wantInsert int
	}{
		{name: "keep current set", developers: nil},
		{name: "replace set", developers: []string{"u4", "u5"}, wantDelete: true, wantInsert: 2},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var statements []string
			tx := &fakeTx{
				execFunc: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
					statements = append(statements, sql)
					return pgconn.NewCommandTag("UPDATE 1"), nil
				},
			}
			pool := &fakePool{
				beginTxFunc: func(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) { return tx, nil },
			}

			cr := domain.ChangeRequest{ID: "cr-1", Title: "Add search", Status: domain.CRStatusInProgress, DueDate: dueAt, UpdatedAt: createdAt}
			if err := New(pool).UpdateChangeRequest(context.Background(), cr, tc.developers); err != nil {
				t.Fatalf("UpdateChangeRequest returned error: %v", err)
			}

			deleted := false
			inserted := 0
			for _, sql := range statements {
				if strings.HasPrefix(sql, "DELETE FROM cr_developers") {
					deleted = true
				}
				if strings.HasPrefix(sql, "INSERT INTO cr_developers") {
					inserted++
				}
			}
			if deleted != tc.wantDelete || inserted != tc.wantInsert {
				t.Fatalf("deleted=%v inserted=%d, want deleted=%v inserted=%d", deleted, inserted, tc.wantDelete, tc.wantInsert)
			}
		})
	}
}

func TestStoreRetriesSerializationFailure(t *testing.T) {
	commits := 0
	tx := &fakeTx{
		execFunc: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			return pgconn.NewCommandTag("DELETE 1"), nil
		},
		commitFunc: func(context.Context) error {
			commits++
			if commits == 1 {
				return &pgconn.PgError{Code: "40001"}
			}
			return nil
		},
	}
	begins := 0
	pool := &fakePool{
		beginTxFunc: func(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
			begins++
			return tx, nil
		},
	}

	if err := New(pool).DeleteChangeRequest(context.Background(), "cr-1"); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if begins != 2 {
		t.Fatalf("expected two attempts, got %d", begins)
	}
}

func TestStoreDoesNotRetryOtherErrors(t *testing.T) {
	begins := 0
	pool := &fakePool{
		beginTxFunc: func(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
			begins++
			return nil, errors.New("connection refused")
		},
	}

	err := New(pool).DeleteChangeRequest(context.Background(), "cr-1")
	if !domain.HasCode(err, domain.ErrCodeStore) {
		t.Fatalf("expected store error, got %v", err)
	}
	if begins != 1 {
		t.Fatalf("expected a single attempt, got %d", begins)
	}
}

func TestStoreListChangeRequestsScansRows(t *testing.T) {
	var gotSQL string
	pool := &fakePool{
		queryFunc: func(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
			gotSQL = sql
			return &fakeRows{data: [][]any{
				{"cr-2", "Newer", "", "blocked", "u1", dueAt, createdAt.Add(time.Hour), createdAt.Add(time.Hour)},
				{"cr-1", "Older", "desc", "pending", "u2", dueAt, createdAt, createdAt},
			}}, nil
		},
	}

	crs, err := New(pool).ListChangeRequests(context.Background())
	if err != nil {
		t.Fatalf("ListChangeRequests returned error: %v", err)
	}
	if !strings.Contains(gotSQL, "ORDER BY created_at DESC") {
		t.Fatalf("expected newest first ordering, got %q", gotSQL)
	}
	if len(crs) != 2 || crs[0].ID != "cr-2" || crs[0].Status != domain.CRStatusBlocked {
		t.Fatalf("unexpected change requests: %+v", crs)
	}
	if !crs[1].DueDate.Equal(dueAt) {
		t.Fatalf("due date not scanned")
	}
}

func TestStoreListAssignmentsSkipsEmptyInput(t *testing.T) {
	pool := &fakePool{}

	assignments, err := New(pool).ListAssignments(context.Background(), nil)
	if err != nil || len(assignments) != 0 {
		t.Fatalf("expected empty result without query, got %v %v", assignments, err)
	}
}

func TestStoreListTasksForwardsIDs(t *testing.T) {
	var gotArgs []any
	pool := &fakePool{
		queryFunc: func(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
			gotArgs = args
			return &fakeRows{data: [][]any{
				{"t1", "cr-1", "Write tests", "completed", "u2", createdAt, createdAt},
			}}, nil
		},
	}

	tasks, err := New(pool).ListTasks(context.Background(), []string{"cr-1", "cr-2"})
	if err != nil {
		t.Fatalf("ListTasks returned error: %v", err)
	}
	ids, ok := gotArgs[0].([]string)
	if !ok || !contains(ids, "cr-2") {
		t.Fatalf("expected id list argument, got %v", gotArgs)
	}
	if len(tasks) != 1 || tasks[0].Status != domain.TaskStatusCompleted {
		t.Fatalf("unexpected tasks: %+v", tasks)
	}
}

func TestStoreGetChangeRequestNoRows(t *testing.T) {
	pool := &fakePool{
		queryRowFunc: func(ctx context.Context, sql string, args ...any) pgx.Row {
			return fakeRow{scan: func(dest ...any) error { return pgx.ErrNoRows }}
		},
	}

	_, err := New(pool).GetChangeRequest(context.Background(), "cr-1")
	var appErr *domain.AppError
	if !errors.As(err, &appErr) || appErr.Message != "Change request not found" {
		t.Fatalf("unexpected error: %v", err)
	}
	if appErr.Status != 404 {
		t.Fatalf("unexpected status %d", appErr.Status)
	}
}

// --- test fakes ---

type fakePool struct {
	beginTxFunc  func(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	queryFunc    func(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	queryRowFunc func(ctx context.Context, sql string, args ...any) pgx.Row
	execFunc     func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (f *fakePool) BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error) {
	return f.beginTxFunc(ctx, txOptions)
}

func (f *fakePool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if f.queryFunc == nil {
		return nil, fmt.Errorf("unexpected Query: %s", sql)
	}
	return f.queryFunc(ctx, sql, args...)
}

func (f *fakePool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if f.queryRowFunc == nil {
		return fakeRow{scan: func(dest ...any) error { return fmt.Errorf("unexpected QueryRow: %s", sql) }}
	}
	return f.queryRowFunc(ctx, sql, args...)
}

func (f *fakePool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if f.execFunc == nil {
		return pgconn.CommandTag{}, fmt.Errorf("unexpected Exec: %s", sql)
	}
	return f.execFunc(ctx, sql, args...)
}

type fakeTx struct {
	queryRowFunc func(ctx context.Context, sql string, args ...any) pgx.Row
	queryFunc    func(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	execFunc     func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	commitFunc   func(ctx context.Context) error
	rollbackFunc func(ctx context.Context) error
}

func (f *fakeTx) Begin(context.Context) (pgx.Tx, error) { panic("not implemented") }

func (f *fakeTx) Conn() *pgx.Conn { return nil }

func (f *fakeTx) Commit(ctx context.Context) error {
	if f.commitFunc != nil {
		return f.commitFunc(ctx)
	}
	return nil
}

func (f *fakeTx) Rollback(ctx context.Context) error {
	if f.rollbackFunc != nil {
		return f.rollbackFunc(ctx)
	}
	return nil
}

func (f *fakeTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}

func (f *fakeTx) LargeObjects() pgx.LargeObjects { panic("not implemented") }

func (f *fakeTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { panic("not implemented") }

func (f *fakeTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}

func (f *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if f.execFunc == nil {
		return pgconn.CommandTag{}, fmt.Errorf("unexpected Exec: %s", sql)
	}
	return f.execFunc(ctx, sql, args...)
}

func (f *fakeTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if f.queryFunc == nil {
		return nil, fmt.Errorf("unexpected Query: %s", sql)
	}
	return f.queryFunc(ctx, sql, args...)
}

func (f *fakeTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if f.queryRowFunc == nil {
		return fakeRow{scan: func(dest ...any) error { return fmt.Errorf("unexpected QueryRow: %s", sql) }}
	}
	return f.queryRowFunc(ctx, sql, args...)
}

type fakeRow struct {
	scan func(dest ...any) error
}

func (r fakeRow) Scan(dest ...any) error {
	return r.scan(dest...)
}

type fakeRows struct {
	data [][]any
	idx  int
	err  error
}

func (r *fakeRows) Close() {}

func (r *fakeRows) Err() error { return r.err }

func (r *fakeRows) CommandTag() pgconn.CommandTag { return pgconn.CommandTag{} }

func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }

func (r *fakeRows) Next() bool {
	if r.idx >= len(r.data) {
		return false
	}
	r.idx++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.data[r.idx-1]
	for i := range dest {
		switch v := dest[i].(type) {
		case *string:
			*v = row[i].(string)
		case *bool:
			*v = row[i].(bool)
		case *time.Time:
			*v = row[i].(time.Time)
		default:
			return fmt.Errorf("unsupported scan dest")
		}
	}
	return nil
}

func (r *fakeRows) Values() ([]any, error) { return nil, nil }

func (r *fakeRows) RawValues() [][]byte { return nil }

func (r *fakeRows) Conn() *pgx.Conn { return nil }

func contains(items []string, candidate string) bool {
	for _, item := range items {
		if item == candidate {
			return true
		}
	}
	return false
}
