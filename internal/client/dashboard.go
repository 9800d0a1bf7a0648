package client

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/GolovachevS/cr-dashboard/internal/domain"
)

// Filters narrow the visible change requests. Empty fields match everything.
type Filters struct {
	Status string
	Search string
}

// Summary counts change requests per status.
type Summary struct {
	Total      int
	Pending    int
	InProgress int
	Completed  int
	Blocked    int
	Overdue    int
}

// Dashboard holds the users and change requests last fetched from the API.
// Every mutation goes to the server first and then reloads the lists; local
// state is never patched optimistically.
type Dashboard struct {
	api *Client
	now func() time.Time

	mu      sync.RWMutex
	users   []domain.User
	crs     []domain.ChangeRequest
	filters Filters
}

func NewDashboard(api *Client) *Dashboard {
	return &Dashboard{api: api, now: time.Now}
}

// Load checks the server is up and then fetches users and change requests
// concurrently.
func (d *Dashboard) Load(ctx context.Context) error {
	if err := d.api.Health(ctx); err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	return d.refresh(ctx)
}

func (d *Dashboard) refresh(ctx context.Context) error {
	var (
		users []domain.User
		crs   []domain.ChangeRequest
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		users, err = d.api.ListUsers(gctx)
		if err != nil {
			return fmt.Errorf("fetch users: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		crs, err = d.api.ListChangeRequests(gctx)
		if err != nil {
			return fmt.Errorf("fetch change requests: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	d.mu.Lock()
	d.users = users
	d.crs = crs
	d.mu.Unlock()
	return nil
}

// CreateChangeRequest submits cr, using the first assigned developer as
// owner when none is given.
func (d *Dashboard) CreateChangeRequest(ctx context.Context, cr NewChangeRequest) (domain.ChangeRequest, error) {
	if cr.OwnerID == "" && len(cr.AssignedDevelopers) > 0 {
		cr.OwnerID = cr.AssignedDevelopers[0]
	}
	created, err := d.api.CreateChangeRequest(ctx, cr)
	if err != nil {
		return domain.ChangeRequest{}, err
	}
	return created, d.refresh(ctx)
}

func (d *Dashboard) UpdateStatus(ctx context.Context, id, status string) error {
	if _, err := d.api.UpdateChangeRequestStatus(ctx, id, status); err != nil {
		return err
	}
	return d.refresh(ctx)
}

func (d *Dashboard) Update(ctx context.Context, id string, update ChangeRequestUpdate) error {
	if _, err := d.api.UpdateChangeRequest(ctx, id, update); err != nil {
		return err
	}
	return d.refresh(ctx)
}

func (d *Dashboard) Delete(ctx context.Context, id string) error {
	if err := d.api.DeleteChangeRequest(ctx, id); err != nil {
		return err
	}
	return d.refresh(ctx)
}

func (d *Dashboard) UpdateTaskStatus(ctx context.Context, taskID, status string) error {
	if _, err := d.api.UpdateTaskStatus(ctx, taskID, status); err != nil {
		return err
	}
	return d.refresh(ctx)
}

// Tasks fetches the tasks of one change request, oldest first.
func (d *Dashboard) Tasks(ctx context.Context, crID string) ([]domain.Task, error) {
	return d.api.ListTasks(ctx, crID)
}

// ForUser fetches the change requests a user owns or is assigned to. The
// loaded lists are left untouched.
func (d *Dashboard) ForUser(ctx context.Context, userID string) ([]domain.ChangeRequest, error) {
	return d.api.ListChangeRequestsForUser(ctx, userID)
}

func (d *Dashboard) SetFilters(f Filters) {
	d.mu.Lock()
	d.filters = Filters{Status: strings.TrimSpace(f.Status), Search: strings.TrimSpace(f.Search)}
	d.mu.Unlock()
}

func (d *Dashboard) ClearFilters() {
	d.SetFilters(Filters{})
}

func (d *Dashboard) Users() []domain.User {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]domain.User(nil), d.users...)
}

// Find returns the loaded change request with the given id.
func (d *Dashboard) Find(id string) (domain.ChangeRequest, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, cr := range d.crs {
		if cr.ID == id {
			return cr, true
		}
	}
	return domain.ChangeRequest{}, false
}

// Visible returns the change requests matching the current filters, in
// server order.
func (d *Dashboard) Visible() []domain.ChangeRequest {
	d.mu.RLock()
	defer d.mu.RUnlock()

	search := strings.ToLower(d.filters.Search)
	out := make([]domain.ChangeRequest, 0, len(d.crs))
	for _, cr := range d.crs {
		if d.filters.Status != "" && string(cr.Status) != d.filters.Status {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(cr.Title), search) {
			continue
		}
		out = append(out, cr)
	}
	return out
}

// Summary counts all loaded change requests, ignoring filters.
func (d *Dashboard) Summary() Summary {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return Summarize(d.crs, d.now())
}

// Summarize counts crs per status and how many are overdue at now.
func Summarize(crs []domain.ChangeRequest, now time.Time) Summary {
	s := Summary{Total: len(crs)}
	for _, cr := range crs {
		switch cr.Status {
		case domain.CRStatusPending:
			s.Pending++
		case domain.CRStatusInProgress:
			s.InProgress++
		case domain.CRStatusCompleted:
			s.Completed++
		case domain.CRStatusBlocked:
			s.Blocked++
		}
		if cr.IsOverdue(now) {
			s.Overdue++
		}
	}
	return s
}
