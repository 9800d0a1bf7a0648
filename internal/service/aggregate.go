package service

import (
	"context"
	"fmt"

	"github.com/GolovachevS/cr-dashboard/internal/domain"
)

// assemble attaches owners, developers and tasks to flat CR rows. Children are
// fetched in bulk by foreign key and grouped in memory, so the same code works
// for every store.
func (s *Service) assemble(ctx context.Context, rows []domain.ChangeRequest) ([]domain.ChangeRequest, error) {
	out := make([]domain.ChangeRequest, 0, len(rows))
	if len(rows) == 0 {
		return out, nil
	}

	crIDs := make([]string, 0, len(rows))
	for _, row := range rows {
		crIDs = append(crIDs, row.ID)
	}

	assignments, err := s.repo.ListAssignments(ctx, crIDs)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	tasks, err := s.repo.ListTasks(ctx, crIDs)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	ids := newIDSet()
	for _, row := range rows {
		ids.add(row.OwnerID)
	}
	for _, a := range assignments {
		ids.add(a.UserID)
	}
	for _, task := range tasks {
		ids.add(task.AssignedTo)
	}

	users, err := s.usersByID(ctx, ids.list)
	if err != nil {
		return nil, err
	}

	developers := make(map[string][]domain.User, len(rows))
	for _, a := range assignments {
		user, ok := users[a.UserID]
		if !ok {
			continue
		}
		developers[a.ChangeRequestID] = append(developers[a.ChangeRequestID], user)
	}

	tasksByCR := make(map[string][]domain.Task, len(rows))
	for _, task := range tasks {
		task.AssignedToUser = userRef(users, task.AssignedTo)
		tasksByCR[task.ChangeRequestID] = append(tasksByCR[task.ChangeRequestID], task)
	}

	for _, cr := range rows {
		cr.Owner = userRef(users, cr.OwnerID)
		cr.AssignedDevelopers = developers[cr.ID]
		if cr.AssignedDevelopers == nil {
			cr.AssignedDevelopers = []domain.User{}
		}
		cr.Tasks = tasksByCR[cr.ID]
		if cr.Tasks == nil {
			cr.Tasks = []domain.Task{}
		}
		cr.Progress = domain.Progress(cr.Tasks)
		out = append(out, cr)
	}

	return out, nil
}

func (s *Service) resolveAssignees(ctx context.Context, tasks []domain.Task) ([]domain.Task, error) {
	out := make([]domain.Task, 0, len(tasks))
	if len(tasks) == 0 {
		return out, nil
	}

	ids := newIDSet()
	for _, task := range tasks {
		ids.add(task.AssignedTo)
	}
	users, err := s.usersByID(ctx, ids.list)
	if err != nil {
		return nil, err
	}

	for _, task := range tasks {
		task.AssignedToUser = userRef(users, task.AssignedTo)
		out = append(out, task)
	}
	return out, nil
}

func (s *Service) usersByID(ctx context.Context, ids []string) (map[string]domain.User, error) {
	if len(ids) == 0 {
		return map[string]domain.User{}, nil
	}
	users, err := s.repo.ListUsersByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list users by id: %w", err)
	}
	byID := make(map[string]domain.User, len(users))
	for _, user := range users {
		byID[user.ID] = user
	}
	return byID, nil
}

func userRef(users map[string]domain.User, id string) *domain.User {
	user, ok := users[id]
	if !ok {
		return nil
	}
	return &user
}

type idSet struct {
	seen map[string]struct{}
	list []string
}

func newIDSet() *idSet {
	return &idSet{seen: make(map[string]struct{})}
}

func (s *idSet) add(id string) {
	if id == "" {
		return
	}
	if _, ok := s.seen[id]; ok {
		return
	}
	s.seen[id] = struct{}{}
	s.list = append(s.list, id)
}
