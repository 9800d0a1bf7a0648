package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/GolovachevS/cr-dashboard/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const maxTxAttempts = 3

// Store implements the service.Repository interface using PostgreSQL.
type pgxPool interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type Store struct {
	pool pgxPool
}

func New(pool pgxPool) *Store {
	return &Store{pool: pool}
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := s.pool.Query(ctx, queryListUsers)
	if err != nil {
		return nil, classify("list users", err)
	}
	return collectUsers(rows)
}

func (s *Store) ListUsersByIDs(ctx context.Context, ids []string) ([]domain.User, error) {
	if len(ids) == 0 {
		return []domain.User{}, nil
	}
	rows, err := s.pool.Query(ctx, queryListUsersByIDs, ids)
	if err != nil {
		return nil, classify("list users by id", err)
	}
	return collectUsers(rows)
}

func (s *Store) CreateUser(ctx context.Context, user domain.User) (domain.User, error) {
	row := s.pool.QueryRow(ctx, queryInsertUser, user.ID, user.Name, user.Email, user.Avatar, user.CreatedAt, user.UpdatedAt)
	created, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.User{}, domain.NewEmailExistsError(err)
		}
		return domain.User{}, classify("create user", err)
	}
	return created, nil
}

func (s *Store) ListChangeRequests(ctx context.Context) ([]domain.ChangeRequest, error) {
	rows, err := s.pool.Query(ctx, queryListChangeRequests)
	if err != nil {
		return nil, classify("list change requests", err)
	}
	return collectChangeRequests(rows)
}

func (s *Store) ListChangeRequestsForUser(ctx context.Context, userID string) ([]domain.ChangeRequest, error) {
	rows, err := s.pool.Query(ctx, queryListChangeRequestsForUser, userID)
	if err != nil {
		return nil, classify("list change requests for user", err)
	}
	return collectChangeRequests(rows)
}

func (s *Store) GetChangeRequest(ctx context.Context, id string) (domain.ChangeRequest, error) {
	cr, err := scanChangeRequest(s.pool.QueryRow(ctx, queryGetChangeRequest, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ChangeRequest{}, domain.NewChangeRequestNotFoundError(err)
		}
		return domain.ChangeRequest{}, classify("get change request", err)
	}
	return cr, nil
}

func (s *Store) ListAssignments(ctx context.Context, crIDs []string) ([]domain.Assignment, error) {
	if len(crIDs) == 0 {
		return []domain.Assignment{}, nil
	}
	rows, err := s.pool.Query(ctx, queryListAssignments, crIDs)
	if err != nil {
		return nil, classify("list assignments", err)
	}
	defer rows.Close()

	assignments := make([]domain.Assignment, 0)
	for rows.Next() {
		var a domain.Assignment
		if err := rows.Scan(&a.ChangeRequestID, &a.UserID); err != nil {
			return nil, classify("scan assignment", err)
		}
		assignments = append(assignments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list assignments", err)
	}
	return assignments, nil
}

func (s *Store) ListTasks(ctx context.Context, crIDs []string) ([]domain.Task, error) {
	if len(crIDs) == 0 {
		return []domain.Task{}, nil
	}
	rows, err := s.pool.Query(ctx, queryListTasks, crIDs)
	if err != nil {
		return nil, classify("list tasks", err)
	}
	defer rows.Close()

	tasks := make([]domain.Task, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, classify("scan task", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list tasks", err)
	}
	return tasks, nil
}

func (s *Store) GetTask(ctx context.Context, id string) (domain.Task, error) {
	task, err := scanTask(s.pool.QueryRow(ctx, queryGetTask, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Task{}, domain.NewTaskNotFoundError(err)
		}
		return domain.Task{}, classify("get task", err)
	}
	return task, nil
}

// CreateChangeRequest writes the CR row, its developer assignments and its
// tasks in a single transaction.
func (s *Store) CreateChangeRequest(ctx context.Context, cr domain.ChangeRequest, developerIDs []string, tasks []domain.Task) error {
	return s.inTx(ctx, "create change request", func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, queryInsertChangeRequest,
			cr.ID, cr.Title, cr.Description, string(cr.Status), cr.OwnerID, cr.DueDate, cr.CreatedAt, cr.UpdatedAt,
		); err != nil {
			return classify("insert change request", err)
		}

		if err := insertAssignments(ctx, tx, cr.ID, developerIDs); err != nil {
			return err
		}

		for _, task := range tasks {
			if _, err := tx.Exec(ctx, queryInsertTask,
				task.ID, task.ChangeRequestID, task.Description, string(task.Status), task.AssignedTo, task.CreatedAt, task.UpdatedAt,
			); err != nil {
				return classify("insert task", err)
			}
		}
		return nil
	})
}

// UpdateChangeRequest rewrites the editable columns. A non-nil developerIDs
// replaces the assignment set.
func (s *Store) UpdateChangeRequest(ctx context.Context, cr domain.ChangeRequest, developerIDs []string) error {
	return s.inTx(ctx, "update change request", func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, queryUpdateChangeRequest,
			cr.ID, cr.Title, cr.Description, string(cr.Status), cr.DueDate, cr.UpdatedAt,
		)
		if err != nil {
			return classify("update change request", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.NewChangeRequestNotFoundError(nil)
		}

		if developerIDs == nil {
			return nil
		}
		if _, err := tx.Exec(ctx, queryDeleteAssignments, cr.ID); err != nil {
			return classify("delete assignments", err)
		}
		return insertAssignments(ctx, tx, cr.ID, developerIDs)
	})
}

func (s *Store) UpdateChangeRequestStatus(ctx context.Context, id string, status domain.CRStatus, at time.Time) error {
	tag, err := s.pool.Exec(ctx, queryUpdateChangeRequestStatus, id, string(status), at)
	if err != nil {
		return classify("update change request status", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewChangeRequestNotFoundError(nil)
	}
	return nil
}

// DeleteChangeRequest removes children before the parent row.
func (s *Store) DeleteChangeRequest(ctx context.Context, id string) error {
	return s.inTx(ctx, "delete change request", func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, queryDeleteTasks, id); err != nil {
			return classify("delete tasks", err)
		}
		if _, err := tx.Exec(ctx, queryDeleteAssignments, id); err != nil {
			return classify("delete assignments", err)
		}
		tag, err := tx.Exec(ctx, queryDeleteChangeRequest, id)
		if err != nil {
			return classify("delete change request", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.NewChangeRequestNotFoundError(nil)
		}
		return nil
	})
}

func (s *Store) UpdateTaskStatus(ctx context.Context, id string, status domain.TaskStatus, at time.Time) error {
	tag, err := s.pool.Exec(ctx, queryUpdateTaskStatus, id, string(status), at)
	if err != nil {
		return classify("update task status", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewTaskNotFoundError(nil)
	}
	return nil
}

// Helper functions

// inTx runs fn in a transaction, retrying on serialization failures and
// deadlocks.
func (s *Store) inTx(ctx context.Context, op string, fn func(tx pgx.Tx) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = s.runTx(ctx, fn)
		if err == nil {
			return nil
		}
		if !isRetryable(err) || ctx.Err() != nil {
			break
		}
		slog.Warn("retrying transaction",
			slog.String("op", op),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
	}

	slog.Log(ctx, txFailureLevel(err), "transaction failed", slog.String("op", op), slog.String("error", err.Error()))
	return err
}

// txFailureLevel keeps client-facing outcomes such as a missing row or a
// dangling user reference out of the error log.
func txFailureLevel(err error) slog.Level {
	var appErr *domain.AppError
	if errors.As(err, &appErr) && appErr.Code != domain.ErrCodeStore {
		return slog.LevelDebug
	}
	return slog.LevelError
}

func (s *Store) runTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return classify("begin transaction", err)
	}
	defer rollbackTx(ctx, tx)

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return classify("commit transaction", err)
	}
	return nil
}

func insertAssignments(ctx context.Context, tx pgx.Tx, crID string, developerIDs []string) error {
	for _, userID := range developerIDs {
		if _, err := tx.Exec(ctx, queryInsertAssignment, crID, userID); err != nil {
			return classify("insert assignment", err)
		}
	}
	return nil
}

func collectUsers(rows pgx.Rows) ([]domain.User, error) {
	defer rows.Close()

	users := make([]domain.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, classify("scan user", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list users", err)
	}
	return users, nil
}

func collectChangeRequests(rows pgx.Rows) ([]domain.ChangeRequest, error) {
	defer rows.Close()

	crs := make([]domain.ChangeRequest, 0)
	for rows.Next() {
		cr, err := scanChangeRequest(rows)
		if err != nil {
			return nil, classify("scan change request", err)
		}
		crs = append(crs, cr)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list change requests", err)
	}
	return crs, nil
}

func scanUser(row pgx.Row) (domain.User, error) {
	var user domain.User
	if err := row.Scan(&user.ID, &user.Name, &user.Email, &user.Avatar, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return domain.User{}, err
	}
	return user, nil
}

func scanChangeRequest(row pgx.Row) (domain.ChangeRequest, error) {
	var cr domain.ChangeRequest
	var status string
	if err := row.Scan(&cr.ID, &cr.Title, &cr.Description, &status, &cr.OwnerID, &cr.DueDate, &cr.CreatedAt, &cr.UpdatedAt); err != nil {
		return domain.ChangeRequest{}, err
	}
	cr.Status = domain.CRStatus(status)
	return cr, nil
}

func scanTask(row pgx.Row) (domain.Task, error) {
	var task domain.Task
	var status string
	if err := row.Scan(&task.ID, &task.ChangeRequestID, &task.Description, &status, &task.AssignedTo, &task.CreatedAt, &task.UpdatedAt); err != nil {
		return domain.Task{}, err
	}
	task.Status = domain.TaskStatus(status)
	return task, nil
}

// classify maps driver errors onto the domain taxonomy.
func classify(op string, err error) error {
	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		return err
	}
	switch pgCode(err) {
	case "23505":
		return domain.NewConflictError("Duplicate value violates a unique constraint", err)
	case "23503":
		return domain.NewUserReferenceError(err)
	}
	return domain.NewStoreError(fmt.Errorf("%s: %w", op, err))
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isUniqueViolation(err error) bool {
	return pgCode(err) == "23505"
}

func isRetryable(err error) bool {
	code := pgCode(err)
	return code == "40001" || code == "40P01"
}

func rollbackTx(ctx context.Context, tx pgx.Tx) {
	if tx == nil {
		return
	}
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		slog.Warn("rollback failed", slog.String("error", err.Error()))
	}
}
