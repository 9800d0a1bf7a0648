package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GolovachevS/cr-dashboard/internal/bootstrap"
	"github.com/GolovachevS/cr-dashboard/internal/config"
	"github.com/GolovachevS/cr-dashboard/internal/domain"
	"github.com/GolovachevS/cr-dashboard/internal/logging"
	"github.com/GolovachevS/cr-dashboard/internal/service"
)

type demoCR struct {
	title       string
	description string
	status      domain.CRStatus
	dueInDays   int
	taskCount   int
}

var demoUsers = []service.CreateUserInput{
	{Name: "Alice Johnson", Email: "alice@company.com", Avatar: "https://api.dicebear.com/7.x/avataaars/svg?seed=Alice"},
	{Name: "Bob Smith", Email: "bob@company.com", Avatar: "https://api.dicebear.com/7.x/avataaars/svg?seed=Bob"},
	{Name: "Carol Davis", Email: "carol@company.com", Avatar: "https://api.dicebear.com/7.x/avataaars/svg?seed=Carol"},
	{Name: "David Wilson", Email: "david@company.com", Avatar: "https://api.dicebear.com/7.x/avataaars/svg?seed=David"},
	{Name: "Eva Martinez", Email: "eva@company.com", Avatar: "https://api.dicebear.com/7.x/avataaars/svg?seed=Eva"},
	{Name: "Frank Brown", Email: "frank@company.com", Avatar: "https://api.dicebear.com/7.x/avataaars/svg?seed=Frank"},
	{Name: "Grace Lee", Email: "grace@company.com", Avatar: "https://api.dicebear.com/7.x/avataaars/svg?seed=Grace"},
	{Name: "Henry Taylor", Email: "henry@company.com", Avatar: "https://api.dicebear.com/7.x/avataaars/svg?seed=Henry"},
	{Name: "Ivy Chen", Email: "ivy@company.com", Avatar: "https://api.dicebear.com/7.x/avataaars/svg?seed=Ivy"},
	{Name: "Jack Morgan", Email: "jack@company.com", Avatar: "https://api.dicebear.com/7.x/avataaars/svg?seed=Jack"},
}

var demoCRs = []demoCR{
	{
		title:       "Implement User Authentication System",
		description: "Add comprehensive user authentication with login, registration, password reset, and session management.",
		status:      domain.CRStatusInProgress,
		dueInDays:   21,
		taskCount:   4,
	},
	{
		title:       "Dashboard Performance Optimization",
		description: "Optimize dashboard loading times and implement caching strategies for better user experience.",
		status:      domain.CRStatusPending,
		dueInDays:   14,
		taskCount:   3,
	},
	{
		title:       "Mobile App API Integration",
		description: "Create REST API endpoints for mobile application integration with proper documentation.",
		status:      domain.CRStatusCompleted,
		dueInDays:   3,
		taskCount:   2,
	},
	{
		title:       "Security Audit Implementation",
		description: "Conduct comprehensive security audit and implement recommended security measures.",
		status:      domain.CRStatusBlocked,
		dueInDays:   7,
		taskCount:   3,
	},
	{
		title:       "Email Notification System",
		description: "Build automated email notification system for user actions and system events.",
		status:      domain.CRStatusInProgress,
		dueInDays:   28,
		taskCount:   4,
	},
}

var taskCycle = []domain.TaskStatus{domain.TaskStatusNotStarted, domain.TaskStatusInProgress, domain.TaskStatusCompleted}

func main() {
	if err := run(); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.SetDefault(logging.New(os.Stdout, cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := bootstrap.OpenRepository(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("open repository: %w", err)
	}
	defer repo.Close()

	summary, err := seed(ctx, service.New(repo, nil))
	if err != nil {
		return err
	}

	slog.Info("seeding completed",
		slog.Int("users", summary.users),
		slog.Int("change_requests", summary.changeRequests),
		slog.Int("skipped", summary.skipped),
		slog.Int("assignments", summary.assignments),
		slog.Int("tasks", summary.tasks),
	)
	return nil
}

type seedSummary struct {
	users          int
	changeRequests int
	skipped        int
	assignments    int
	tasks          int
}

// seed creates the demo users (reusing existing ones by email) and the demo
// change requests whose titles are not present yet, all through the service
// so every write is validated.
func seed(ctx context.Context, svc *service.Service) (seedSummary, error) {
	users, err := ensureUsers(ctx, svc)
	if err != nil {
		return seedSummary{}, err
	}

	existing, err := svc.ListChangeRequests(ctx)
	if err != nil {
		return seedSummary{}, fmt.Errorf("list change requests: %w", err)
	}
	seeded := make(map[string]struct{}, len(existing))
	for _, cr := range existing {
		seeded[cr.Title] = struct{}{}
	}

	summary := seedSummary{users: len(users)}
	for i, demo := range demoCRs {
		if _, ok := seeded[demo.title]; ok {
			summary.skipped++
			continue
		}
		developers := []string{
			users[(i+1)%len(users)].ID,
			users[(i+2)%len(users)].ID,
		}
		if i%2 == 0 {
			developers = append(developers, users[(i+3)%len(users)].ID)
		}

		tasks := make([]service.TaskInput, 0, demo.taskCount)
		for t := 0; t < demo.taskCount; t++ {
			tasks = append(tasks, service.TaskInput{
				Description: fmt.Sprintf("Task %d for %s", t+1, demo.title),
				AssignedTo:  developers[t%len(developers)],
			})
		}

		cr, err := svc.CreateChangeRequest(ctx, service.CreateChangeRequestInput{
			Title:              demo.title,
			Description:        demo.description,
			OwnerID:            users[i%len(users)].ID,
			AssignedDevelopers: developers,
			DueDate:            dueDate(demo.dueInDays),
			Tasks:              tasks,
		})
		if err != nil {
			return seedSummary{}, fmt.Errorf("create %q: %w", demo.title, err)
		}

		if demo.status != domain.CRStatusPending {
			if _, err := svc.UpdateChangeRequestStatus(ctx, cr.ID, string(demo.status)); err != nil {
				return seedSummary{}, fmt.Errorf("set status of %q: %w", demo.title, err)
			}
		}
		for t, task := range cr.Tasks {
			status := taskCycle[(i+t)%len(taskCycle)]
			if status == domain.TaskStatusNotStarted {
				continue
			}
			if _, err := svc.UpdateTaskStatus(ctx, task.ID, string(status)); err != nil {
				return seedSummary{}, fmt.Errorf("set task status: %w", err)
			}
		}

		summary.changeRequests++
		summary.assignments += len(cr.AssignedDevelopers)
		summary.tasks += len(cr.Tasks)
	}
	return summary, nil
}

func ensureUsers(ctx context.Context, svc *service.Service) ([]domain.User, error) {
	existing, err := svc.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	byEmail := make(map[string]domain.User, len(existing))
	for _, user := range existing {
		byEmail[user.Email] = user
	}

	users := make([]domain.User, 0, len(demoUsers))
	for _, input := range demoUsers {
		if user, ok := byEmail[input.Email]; ok {
			users = append(users, user)
			continue
		}
		user, err := svc.CreateUser(ctx, input)
		if err != nil {
			var appErr *domain.AppError
			if errors.As(err, &appErr) && appErr.Code == domain.ErrCodeConflict {
				continue
			}
			return nil, fmt.Errorf("create user %s: %w", input.Email, err)
		}
		users = append(users, user)
	}
	if len(users) == 0 {
		return nil, errors.New("no demo users available")
	}
	return users, nil
}

func dueDate(days int) string {
	return time.Now().UTC().AddDate(0, 0, days).Format("2006-01-02")
}
