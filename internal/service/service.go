package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/GolovachevS/cr-dashboard/internal/domain"
	"github.com/GolovachevS/cr-dashboard/internal/validation"
)

// CreateUserInput carries payload for user registration.
type CreateUserInput struct {
	Name   string `json:"name" validate:"required,min=2,max=255"`
	Email  string `json:"email" validate:"required,email,max=255"`
	Avatar string `json:"avatar" validate:"omitempty,uri"`
}

// TaskInput describes a task created inline with its change request.
type TaskInput struct {
	Description string `json:"description" validate:"required,min=3,max=1000"`
	AssignedTo  string `json:"assigned_to" validate:"required,uuid"`
}

// CreateChangeRequestInput carries payload for CR creation. Any status sent
// by the client is ignored; new CRs always start as pending.
type CreateChangeRequestInput struct {
	Title              string      `json:"title" validate:"required,min=3,max=500"`
	Description        string      `json:"description" validate:"max=2000"`
	OwnerID            string      `json:"owner_id" validate:"required,uuid"`
	AssignedDevelopers []string    `json:"assigned_developers" validate:"required,min=1,dive,uuid"`
	DueDate            string      `json:"due_date" validate:"required"`
	Tasks              []TaskInput `json:"tasks" validate:"omitempty,dive"`
}

// UpdateChangeRequestInput carries payload for a full CR update. A nil
// AssignedDevelopers keeps the current assignments.
type UpdateChangeRequestInput struct {
	Title              string   `json:"title" validate:"required,min=3,max=500"`
	Description        string   `json:"description" validate:"max=2000"`
	Status             string   `json:"status" validate:"required,oneof=pending in-progress completed blocked"`
	DueDate            string   `json:"due_date" validate:"required"`
	AssignedDevelopers []string `json:"assigned_developers" validate:"omitempty,dive,uuid"`
}

// Service orchestrates domain logic.
type Service struct {
	repo Repository
	ids  IDGenerator
	now  func() time.Time
}

// Repository defines required storage methods to satisfy business flows.
// Reads return flat rows; relations are attached by the service.
type Repository interface {
	ListUsers(ctx context.Context) ([]domain.User, error)
	ListUsersByIDs(ctx context.Context, ids []string) ([]domain.User, error)
	CreateUser(ctx context.Context, user domain.User) (domain.User, error)

	ListChangeRequests(ctx context.Context) ([]domain.ChangeRequest, error)
	ListChangeRequestsForUser(ctx context.Context, userID string) ([]domain.ChangeRequest, error)
	GetChangeRequest(ctx context.Context, id string) (domain.ChangeRequest, error)
	ListAssignments(ctx context.Context, crIDs []string) ([]domain.Assignment, error)
	ListTasks(ctx context.Context, crIDs []string) ([]domain.Task, error)
	GetTask(ctx context.Context, id string) (domain.Task, error)

	CreateChangeRequest(ctx context.Context, cr domain.ChangeRequest, developerIDs []string, tasks []domain.Task) error
	UpdateChangeRequest(ctx context.Context, cr domain.ChangeRequest, developerIDs []string) error
	UpdateChangeRequestStatus(ctx context.Context, id string, status domain.CRStatus, at time.Time) error
	DeleteChangeRequest(ctx context.Context, id string) error
	UpdateTaskStatus(ctx context.Context, id string, status domain.TaskStatus, at time.Time) error
}

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides the time source used for timestamps and due date checks.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New returns a configured service.
func New(repo Repository, ids IDGenerator, opts ...Option) *Service {
	if ids == nil {
		ids = NewUUIDGenerator()
	}
	svc := &Service{repo: repo, ids: ids, now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

func (s *Service) ListUsers(ctx context.Context) ([]domain.User, error) {
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	if users == nil {
		users = []domain.User{}
	}
	return users, nil
}

func (s *Service) CreateUser(ctx context.Context, input CreateUserInput) (domain.User, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Email = strings.TrimSpace(input.Email)
	input.Avatar = strings.TrimSpace(input.Avatar)
	if err := validation.Struct(input); err != nil {
		return domain.User{}, err
	}

	now := s.timestamp()
	user, err := s.repo.CreateUser(ctx, domain.User{
		ID:        s.ids.NewID(),
		Name:      input.Name,
		Email:     input.Email,
		Avatar:    input.Avatar,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

func (s *Service) ListChangeRequests(ctx context.Context) ([]domain.ChangeRequest, error) {
	rows, err := s.repo.ListChangeRequests(ctx)
	if err != nil {
		return nil, fmt.Errorf("list change requests: %w", err)
	}
	return s.assemble(ctx, rows)
}

// ListChangeRequestsForUser returns CRs the user owns or is assigned to.
func (s *Service) ListChangeRequestsForUser(ctx context.Context, userID string) ([]domain.ChangeRequest, error) {
	if err := validation.ID("userId", userID); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListChangeRequestsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list change requests for user %s: %w", userID, err)
	}
	return s.assemble(ctx, rows)
}

func (s *Service) GetChangeRequest(ctx context.Context, id string) (domain.ChangeRequest, error) {
	if err := validation.ID("crId", id); err != nil {
		return domain.ChangeRequest{}, err
	}
	return s.load(ctx, id)
}

func (s *Service) CreateChangeRequest(ctx context.Context, input CreateChangeRequestInput) (domain.ChangeRequest, error) {
	input.Title = strings.TrimSpace(input.Title)
	input.Description = strings.TrimSpace(input.Description)
	input.OwnerID = strings.TrimSpace(input.OwnerID)
	input.AssignedDevelopers = validation.UniqueIDs(input.AssignedDevelopers)
	for i := range input.Tasks {
		input.Tasks[i].Description = strings.TrimSpace(input.Tasks[i].Description)
		input.Tasks[i].AssignedTo = strings.TrimSpace(input.Tasks[i].AssignedTo)
	}
	if err := validation.Struct(input); err != nil {
		return domain.ChangeRequest{}, err
	}

	now := s.timestamp()
	dueDate, err := validation.DueDate("due_date", input.DueDate, now, false)
	if err != nil {
		return domain.ChangeRequest{}, err
	}

	cr := domain.ChangeRequest{
		ID:          s.ids.NewID(),
		Title:       input.Title,
		Description: input.Description,
		Status:      domain.CRStatusPending,
		OwnerID:     input.OwnerID,
		DueDate:     dueDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	tasks := make([]domain.Task, 0, len(input.Tasks))
	for _, item := range input.Tasks {
		tasks = append(tasks, domain.Task{
			ID:              s.ids.NewID(),
			ChangeRequestID: cr.ID,
			Description:     item.Description,
			Status:          domain.TaskStatusNotStarted,
			AssignedTo:      item.AssignedTo,
			CreatedAt:       now,
			UpdatedAt:       now,
		})
	}

	if err := s.repo.CreateChangeRequest(ctx, cr, input.AssignedDevelopers, tasks); err != nil {
		return domain.ChangeRequest{}, fmt.Errorf("create change request: %w", err)
	}

	return s.load(ctx, cr.ID)
}

func (s *Service) UpdateChangeRequestStatus(ctx context.Context, id, rawStatus string) (domain.ChangeRequest, error) {
	if err := validation.ID("crId", id); err != nil {
		return domain.ChangeRequest{}, err
	}
	status, err := validation.CRStatus(rawStatus)
	if err != nil {
		return domain.ChangeRequest{}, err
	}

	if err := s.repo.UpdateChangeRequestStatus(ctx, id, status, s.timestamp()); err != nil {
		return domain.ChangeRequest{}, fmt.Errorf("update change request %s status: %w", id, err)
	}

	return s.load(ctx, id)
}

// UpdateChangeRequest replaces the editable fields of a CR. When developers
// are supplied they replace the existing set rather than being merged into it.
func (s *Service) UpdateChangeRequest(ctx context.Context, id string, input UpdateChangeRequestInput) (domain.ChangeRequest, error) {
	if err := validation.ID("crId", id); err != nil {
		return domain.ChangeRequest{}, err
	}

	input.Title = strings.TrimSpace(input.Title)
	input.Description = strings.TrimSpace(input.Description)
	input.AssignedDevelopers = validation.UniqueIDs(input.AssignedDevelopers)
	if err := validation.Struct(input); err != nil {
		return domain.ChangeRequest{}, err
	}
	if input.AssignedDevelopers != nil && len(input.AssignedDevelopers) == 0 {
		return domain.ChangeRequest{}, domain.NewValidationError(`"assigned_developers" must contain at least 1 items`)
	}

	now := s.timestamp()
	dueDate, err := validation.DueDate("due_date", input.DueDate, now, true)
	if err != nil {
		return domain.ChangeRequest{}, err
	}

	cr := domain.ChangeRequest{
		ID:          id,
		Title:       input.Title,
		Description: input.Description,
		Status:      domain.CRStatus(input.Status),
		DueDate:     dueDate,
		UpdatedAt:   now,
	}
	if err := s.repo.UpdateChangeRequest(ctx, cr, input.AssignedDevelopers); err != nil {
		return domain.ChangeRequest{}, fmt.Errorf("update change request %s: %w", id, err)
	}

	return s.load(ctx, id)
}

// DeleteChangeRequest removes a CR together with its tasks and assignments.
func (s *Service) DeleteChangeRequest(ctx context.Context, id string) error {
	if err := validation.ID("crId", id); err != nil {
		return err
	}
	if err := s.repo.DeleteChangeRequest(ctx, id); err != nil {
		return fmt.Errorf("delete change request %s: %w", id, err)
	}
	return nil
}

// ListTasks returns the tasks of a CR, oldest first, with assignees resolved.
func (s *Service) ListTasks(ctx context.Context, crID string) ([]domain.Task, error) {
	if err := validation.ID("crId", crID); err != nil {
		return nil, err
	}
	tasks, err := s.repo.ListTasks(ctx, []string{crID})
	if err != nil {
		return nil, fmt.Errorf("list tasks for %s: %w", crID, err)
	}
	return s.resolveAssignees(ctx, tasks)
}

func (s *Service) UpdateTaskStatus(ctx context.Context, id, rawStatus string) (domain.Task, error) {
	if err := validation.ID("taskId", id); err != nil {
		return domain.Task{}, err
	}
	status, err := validation.TaskStatus(rawStatus)
	if err != nil {
		return domain.Task{}, err
	}

	if err := s.repo.UpdateTaskStatus(ctx, id, status, s.timestamp()); err != nil {
		return domain.Task{}, fmt.Errorf("update task %s status: %w", id, err)
	}

	task, err := s.repo.GetTask(ctx, id)
	if err != nil {
		return domain.Task{}, fmt.Errorf("get task %s: %w", id, err)
	}
	resolved, err := s.resolveAssignees(ctx, []domain.Task{task})
	if err != nil {
		return domain.Task{}, err
	}
	return resolved[0], nil
}

func (s *Service) load(ctx context.Context, id string) (domain.ChangeRequest, error) {
	row, err := s.repo.GetChangeRequest(ctx, id)
	if err != nil {
		return domain.ChangeRequest{}, fmt.Errorf("get change request %s: %w", id, err)
	}
	crs, err := s.assemble(ctx, []domain.ChangeRequest{row})
	if err != nil {
		return domain.ChangeRequest{}, err
	}
	return crs[0], nil
}

func (s *Service) timestamp() time.Time {
	return s.now().UTC()
}
