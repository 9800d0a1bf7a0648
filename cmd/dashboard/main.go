package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/GolovachevS/cr-dashboard/internal/client"
	"github.com/GolovachevS/cr-dashboard/internal/domain"
	"github.com/GolovachevS/cr-dashboard/internal/logging"
)

const usage = `usage: dashboard [flags] [command]

commands:
  list                             summary and table of change requests (default)
  show <crId>                      one change request with its tasks
  mine <userId>                    change requests a user owns or is assigned to
  create [create flags]            create a change request
  status <crId> <status>           move a change request to another status
  edit <crId> [edit flags]         edit title, description, status, due date or developers
  delete <crId>                    delete a change request and its tasks
  task-status <taskId> <status>    change the status of a task
`

var errUsage = errors.New("invalid arguments")

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		slog.Error("dashboard failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("dashboard", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usage)
		fmt.Fprintln(fs.Output(), "\nflags:")
		fs.PrintDefaults()
	}
	apiURL := fs.String("api", envOr("API_URL", "http://localhost:8080"), "API base URL")
	status := fs.String("status", "", "show only change requests with this status")
	search := fs.String("search", "", "case-insensitive title filter")
	timeout := fs.Duration("timeout", 10*time.Second, "overall request timeout")
	logLevel := fs.String("log-level", envOr("LOG_LEVEL", "warn"), "log level")
	if err := fs.Parse(args); err != nil {
		return err
	}

	slog.SetDefault(logging.New(os.Stderr, *logLevel))

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	dash := client.NewDashboard(client.New(*apiURL))
	if err := dash.Load(ctx); err != nil {
		return fmt.Errorf("load dashboard: %w", err)
	}
	dash.SetFilters(client.Filters{Status: *status, Search: *search})

	cmd := &command{dash: dash, out: out, now: time.Now}
	rest := fs.Args()
	if len(rest) == 0 {
		return cmd.list()
	}

	name, rest := rest[0], rest[1:]
	switch name {
	case "list":
		return cmd.list()
	case "show":
		return cmd.show(ctx, rest)
	case "mine":
		return cmd.mine(ctx, rest)
	case "create":
		return cmd.create(ctx, rest)
	case "status":
		return cmd.status(ctx, rest)
	case "edit":
		return cmd.edit(ctx, rest)
	case "delete":
		return cmd.delete(ctx, rest)
	case "task-status":
		return cmd.taskStatus(ctx, rest)
	}
	return fmt.Errorf("%w: unknown command %q", errUsage, name)
}

// command runs one subcommand against a loaded dashboard. Writes print the
// refreshed table afterwards.
type command struct {
	dash *client.Dashboard
	out  io.Writer
	now  func() time.Time
}

func (c *command) list() error {
	return render(c.out, c.dash.Summary(), c.dash.Visible(), c.now())
}

func (c *command) show(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: show <crId>", errUsage)
	}
	cr, err := c.find(args[0])
	if err != nil {
		return err
	}
	tasks, err := c.dash.Tasks(ctx, cr.ID)
	if err != nil {
		return fmt.Errorf("fetch tasks: %w", err)
	}
	return renderDetail(c.out, cr, tasks, c.now())
}

func (c *command) mine(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: mine <userId>", errUsage)
	}
	crs, err := c.dash.ForUser(ctx, args[0])
	if err != nil {
		return fmt.Errorf("fetch change requests for %s: %w", args[0], err)
	}
	now := c.now()
	return render(c.out, client.Summarize(crs, now), crs, now)
}

func (c *command) create(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	title := fs.String("title", "", "title")
	description := fs.String("description", "", "description")
	owner := fs.String("owner", "", "owner user id (defaults to the first developer)")
	developers := fs.String("developers", "", "comma separated developer ids")
	due := fs.String("due", "", "due date, YYYY-MM-DD or ISO 8601 timestamp")
	var tasks []client.NewTask
	fs.Func("task", "task as <userId>:<description>, repeatable", func(v string) error {
		assignee, desc, ok := strings.Cut(v, ":")
		if !ok {
			return fmt.Errorf("task %q must look like <userId>:<description>", v)
		}
		tasks = append(tasks, client.NewTask{Description: strings.TrimSpace(desc), AssignedTo: strings.TrimSpace(assignee)})
		return nil
	})
	if err := fs.Parse(args); err != nil {
		return err
	}

	cr, err := c.dash.CreateChangeRequest(ctx, client.NewChangeRequest{
		Title:              *title,
		Description:        *description,
		OwnerID:            *owner,
		AssignedDevelopers: splitIDs(*developers),
		DueDate:            *due,
		Tasks:              tasks,
	})
	if err != nil {
		return fmt.Errorf("create change request: %w", err)
	}
	fmt.Fprintf(c.out, "Created %s %q\n\n", cr.ID, cr.Title)
	return c.list()
}

func (c *command) status(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: status <crId> <status>", errUsage)
	}
	if err := c.dash.UpdateStatus(ctx, args[0], args[1]); err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	fmt.Fprintf(c.out, "Change request %s is now %s\n\n", args[0], args[1])
	return c.list()
}

// edit sends a full update built from the loaded change request with the
// given flags applied. Developers are only replaced when -developers is set.
func (c *command) edit(ctx context.Context, args []string) error {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return fmt.Errorf("%w: edit <crId> [flags]", errUsage)
	}
	cr, err := c.find(args[0])
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("edit", flag.ContinueOnError)
	title := fs.String("title", cr.Title, "title")
	description := fs.String("description", cr.Description, "description")
	status := fs.String("status", string(cr.Status), "status")
	due := fs.String("due", cr.DueDate.UTC().Format(time.RFC3339), "due date")
	developers := fs.String("developers", "", "comma separated developer ids, replaces the current set")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	update := client.ChangeRequestUpdate{
		Title:       *title,
		Description: *description,
		Status:      *status,
		DueDate:     *due,
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "developers" {
			update.AssignedDevelopers = splitIDs(*developers)
		}
	})

	if err := c.dash.Update(ctx, cr.ID, update); err != nil {
		return fmt.Errorf("update change request: %w", err)
	}
	fmt.Fprintf(c.out, "Updated %s\n\n", cr.ID)
	return c.list()
}

func (c *command) delete(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: delete <crId>", errUsage)
	}
	if err := c.dash.Delete(ctx, args[0]); err != nil {
		return fmt.Errorf("delete change request: %w", err)
	}
	fmt.Fprintf(c.out, "Deleted %s\n\n", args[0])
	return c.list()
}

func (c *command) taskStatus(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: task-status <taskId> <status>", errUsage)
	}
	if err := c.dash.UpdateTaskStatus(ctx, args[0], args[1]); err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	fmt.Fprintf(c.out, "Task %s is now %s\n\n", args[0], args[1])
	return c.list()
}

func (c *command) find(id string) (domain.ChangeRequest, error) {
	cr, ok := c.dash.Find(id)
	if !ok {
		return domain.ChangeRequest{}, fmt.Errorf("change request %s not found", id)
	}
	return cr, nil
}

func render(out io.Writer, summary client.Summary, crs []domain.ChangeRequest, now time.Time) error {
	fmt.Fprintf(out, "Total %d | Pending %d | In progress %d | Completed %d | Blocked %d | Overdue %d\n\n",
		summary.Total, summary.Pending, summary.InProgress, summary.Completed, summary.Blocked, summary.Overdue)

	if len(crs) == 0 {
		_, err := fmt.Fprintln(out, "No CRs match your current filters.")
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tSTATUS\tOWNER\tDEVELOPERS\tTASKS\tPROGRESS\tDUE")
	for _, cr := range crs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d/%d\t%d%%\t%s\n",
			cr.ID,
			cr.Title,
			cr.Status,
			ownerName(cr),
			developerNames(cr.AssignedDevelopers),
			completedTasks(cr.Tasks), len(cr.Tasks),
			cr.Progress,
			dueLabel(cr, now),
		)
	}
	return tw.Flush()
}

func renderDetail(out io.Writer, cr domain.ChangeRequest, tasks []domain.Task, now time.Time) error {
	fmt.Fprintf(out, "%s\n", cr.Title)
	fmt.Fprintf(out, "ID:          %s\n", cr.ID)
	fmt.Fprintf(out, "Status:      %s\n", cr.Status)
	fmt.Fprintf(out, "Owner:       %s\n", ownerName(cr))
	fmt.Fprintf(out, "Developers:  %s\n", developerNames(cr.AssignedDevelopers))
	fmt.Fprintf(out, "Due:         %s\n", dueLabel(cr, now))
	fmt.Fprintf(out, "Progress:    %d%% (%d/%d tasks)\n", domain.Progress(tasks), completedTasks(tasks), len(tasks))
	if cr.Description != "" {
		fmt.Fprintf(out, "\n%s\n", cr.Description)
	}
	fmt.Fprintln(out)

	if len(tasks) == 0 {
		_, err := fmt.Fprintln(out, "No tasks.")
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TASK\tSTATUS\tASSIGNEE\tDESCRIPTION")
	for _, task := range tasks {
		assignee := task.AssignedTo
		if task.AssignedToUser != nil {
			assignee = task.AssignedToUser.Name
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", task.ID, task.Status, assignee, task.Description)
	}
	return tw.Flush()
}

func ownerName(cr domain.ChangeRequest) string {
	if cr.Owner == nil {
		return "-"
	}
	return cr.Owner.Name
}

func dueLabel(cr domain.ChangeRequest, now time.Time) string {
	due := cr.DueDate.Format("2006-01-02")
	if cr.IsOverdue(now) {
		due += " (overdue)"
	}
	return due
}

func developerNames(users []domain.User) string {
	names := make([]string, 0, len(users))
	for _, user := range users {
		names = append(names, user.Name)
	}
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, ", ")
}

func completedTasks(tasks []domain.Task) int {
	n := 0
	for _, task := range tasks {
		if task.Status == domain.TaskStatusCompleted {
			n++
		}
	}
	return n
}

// splitIDs parses a comma separated id list, dropping blanks.
func splitIDs(raw string) []string {
	ids := make([]string, 0)
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
