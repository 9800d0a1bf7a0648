package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/GolovachevS/cr-dashboard/internal/domain"
)

const (
	orderUsers          = "name ASC, id ASC"
	orderChangeRequests = "created_at DESC, id ASC"
	orderTasks          = "created_at ASC, id ASC"

	forUserFilter = `owner_id = ? OR EXISTS (
		SELECT 1 FROM cr_developers d
		WHERE d.change_request_id = change_requests.id AND d.user_id = ?)`
)

// Store implements the service.Repository interface on top of gorm, backing
// the SQLite and libSQL drivers.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	var rows []userRow
	if err := s.db.WithContext(ctx).Order(orderUsers).Find(&rows).Error; err != nil {
		return nil, classify("list users", err)
	}
	return usersToDomain(rows), nil
}

func (s *Store) ListUsersByIDs(ctx context.Context, ids []string) ([]domain.User, error) {
	if len(ids) == 0 {
		return []domain.User{}, nil
	}
	var rows []userRow
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Order(orderUsers).Find(&rows).Error; err != nil {
		return nil, classify("list users by id", err)
	}
	return usersToDomain(rows), nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.User) (domain.User, error) {
	row := toUserRow(user)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.User{}, domain.NewEmailExistsError(err)
		}
		return domain.User{}, classify("create user", err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListChangeRequests(ctx context.Context) ([]domain.ChangeRequest, error) {
	var rows []changeRequestRow
	if err := s.db.WithContext(ctx).Order(orderChangeRequests).Find(&rows).Error; err != nil {
		return nil, classify("list change requests", err)
	}
	return changeRequestsToDomain(rows), nil
}

func (s *Store) ListChangeRequestsForUser(ctx context.Context, userID string) ([]domain.ChangeRequest, error) {
	var rows []changeRequestRow
	err := s.db.WithContext(ctx).
		Where(forUserFilter, userID, userID).
		Order(orderChangeRequests).
		Find(&rows).Error
	if err != nil {
		return nil, classify("list change requests for user", err)
	}
	return changeRequestsToDomain(rows), nil
}

func (s *Store) GetChangeRequest(ctx context.Context, id string) (domain.ChangeRequest, error) {
	var row changeRequestRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ChangeRequest{}, domain.NewChangeRequestNotFoundError(err)
		}
		return domain.ChangeRequest{}, classify("get change request", err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListAssignments(ctx context.Context, crIDs []string) ([]domain.Assignment, error) {
	if len(crIDs) == 0 {
		return []domain.Assignment{}, nil
	}
	var rows []assignmentRow
	err := s.db.WithContext(ctx).
		Where("change_request_id IN ?", crIDs).
		Order("change_request_id, user_id").
		Find(&rows).Error
	if err != nil {
		return nil, classify("list assignments", err)
	}

	assignments := make([]domain.Assignment, 0, len(rows))
	for _, row := range rows {
		assignments = append(assignments, domain.Assignment{ChangeRequestID: row.ChangeRequestID, UserID: row.UserID})
	}
	return assignments, nil
}

func (s *Store) ListTasks(ctx context.Context, crIDs []string) ([]domain.Task, error) {
	if len(crIDs) == 0 {
		return []domain.Task{}, nil
	}
	var rows []taskRow
	if err := s.db.WithContext(ctx).Where("change_request_id IN ?", crIDs).Order(orderTasks).Find(&rows).Error; err != nil {
		return nil, classify("list tasks", err)
	}

	tasks := make([]domain.Task, 0, len(rows))
	for _, row := range rows {
		tasks = append(tasks, row.toDomain())
	}
	return tasks, nil
}

func (s *Store) GetTask(ctx context.Context, id string) (domain.Task, error) {
	var row taskRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Task{}, domain.NewTaskNotFoundError(err)
		}
		return domain.Task{}, classify("get task", err)
	}
	return row.toDomain(), nil
}

func (s *Store) CreateChangeRequest(ctx context.Context, cr domain.ChangeRequest, developerIDs []string, tasks []domain.Task) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := toChangeRequestRow(cr)
		if err := tx.Omit(clause.Associations).Create(&row).Error; err != nil {
			return classify("insert change request", err)
		}

		if err := insertAssignments(tx, cr.ID, developerIDs); err != nil {
			return err
		}

		for _, task := range tasks {
			taskRow := toTaskRow(task)
			if err := tx.Omit(clause.Associations).Create(&taskRow).Error; err != nil {
				return classify("insert task", err)
			}
		}
		return nil
	})
}

// UpdateChangeRequest rewrites the editable columns. A non-nil developerIDs
// replaces the assignment set.
func (s *Store) UpdateChangeRequest(ctx context.Context, cr domain.ChangeRequest, developerIDs []string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&changeRequestRow{}).Where("id = ?", cr.ID).Updates(map[string]any{
			"title":       cr.Title,
			"description": cr.Description,
			"status":      string(cr.Status),
			"due_date":    cr.DueDate,
			"updated_at":  cr.UpdatedAt,
		})
		if result.Error != nil {
			return classify("update change request", result.Error)
		}
		if result.RowsAffected == 0 {
			return domain.NewChangeRequestNotFoundError(nil)
		}

		if developerIDs == nil {
			return nil
		}
		if err := tx.Where("change_request_id = ?", cr.ID).Delete(&assignmentRow{}).Error; err != nil {
			return classify("delete assignments", err)
		}
		return insertAssignments(tx, cr.ID, developerIDs)
	})
}

func (s *Store) UpdateChangeRequestStatus(ctx context.Context, id string, status domain.CRStatus, at time.Time) error {
	result := s.db.WithContext(ctx).Model(&changeRequestRow{}).Where("id = ?", id).Updates(map[string]any{
		"status":     string(status),
		"updated_at": at,
	})
	if result.Error != nil {
		return classify("update change request status", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.NewChangeRequestNotFoundError(nil)
	}
	return nil
}

// DeleteChangeRequest removes children before the parent row.
func (s *Store) DeleteChangeRequest(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("change_request_id = ?", id).Delete(&taskRow{}).Error; err != nil {
			return classify("delete tasks", err)
		}
		if err := tx.Where("change_request_id = ?", id).Delete(&assignmentRow{}).Error; err != nil {
			return classify("delete assignments", err)
		}
		result := tx.Where("id = ?", id).Delete(&changeRequestRow{})
		if result.Error != nil {
			return classify("delete change request", result.Error)
		}
		if result.RowsAffected == 0 {
			return domain.NewChangeRequestNotFoundError(nil)
		}
		return nil
	})
}

func (s *Store) UpdateTaskStatus(ctx context.Context, id string, status domain.TaskStatus, at time.Time) error {
	result := s.db.WithContext(ctx).Model(&taskRow{}).Where("id = ?", id).Updates(map[string]any{
		"status":     string(status),
		"updated_at": at,
	})
	if result.Error != nil {
		return classify("update task status", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.NewTaskNotFoundError(nil)
	}
	return nil
}

func insertAssignments(tx *gorm.DB, crID string, developerIDs []string) error {
	if len(developerIDs) == 0 {
		return nil
	}
	rows := make([]assignmentRow, 0, len(developerIDs))
	for _, userID := range developerIDs {
		rows = append(rows, assignmentRow{ChangeRequestID: crID, UserID: userID})
	}
	if err := tx.Omit(clause.Associations).Create(&rows).Error; err != nil {
		return classify("insert assignments", err)
	}
	return nil
}

func usersToDomain(rows []userRow) []domain.User {
	users := make([]domain.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.toDomain())
	}
	return users
}

func changeRequestsToDomain(rows []changeRequestRow) []domain.ChangeRequest {
	crs := make([]domain.ChangeRequest, 0, len(rows))
	for _, row := range rows {
		crs = append(crs, row.toDomain())
	}
	return crs
}

// classify maps driver errors onto the domain taxonomy. libSQL errors do not
// pass through the sqlite translator, so constraint messages are matched too.
func classify(op string, err error) error {
	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		return err
	}
	switch {
	case isUniqueViolation(err):
		return domain.NewConflictError("Duplicate value violates a unique constraint", err)
	case errors.Is(err, gorm.ErrForeignKeyViolated),
		strings.Contains(err.Error(), "FOREIGN KEY constraint failed"):
		return domain.NewUserReferenceError(err)
	}
	return domain.NewStoreError(fmt.Errorf("%s: %w", op, err))
}

func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(err.Error(), "UNIQUE constraint failed")
}
