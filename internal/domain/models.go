package domain

import (
	"math"
	"time"
)

// CRStatus is the lifecycle state of a change request.
type CRStatus string

const (
	CRStatusPending    CRStatus = "pending"
	CRStatusInProgress CRStatus = "in-progress"
	CRStatusCompleted  CRStatus = "completed"
	CRStatusBlocked    CRStatus = "blocked"
)

// TaskStatus is the state of a single task. It is independent of CRStatus.
type TaskStatus string

const (
	TaskStatusNotStarted TaskStatus = "not-started"
	TaskStatusInProgress TaskStatus = "in-progress"
	TaskStatusCompleted  TaskStatus = "completed"
)

// CRStatuses lists every valid change request status.
var CRStatuses = []CRStatus{CRStatusPending, CRStatusInProgress, CRStatusCompleted, CRStatusBlocked}

// TaskStatuses lists every valid task status.
var TaskStatuses = []TaskStatus{TaskStatusNotStarted, TaskStatusInProgress, TaskStatusCompleted}

// User is a registered person that can own CRs and be assigned work.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Avatar    string    `json:"avatar,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Assignment is a row of the cr_developers join table.
type Assignment struct {
	ChangeRequestID string `json:"change_request_id"`
	UserID          string `json:"user_id"`
}

// Task is a unit of work owned by a change request.
type Task struct {
	ID              string     `json:"id"`
	ChangeRequestID string     `json:"change_request_id"`
	Description     string     `json:"description"`
	Status          TaskStatus `json:"status"`
	AssignedTo      string     `json:"assigned_to"`
	AssignedToUser  *User      `json:"assigned_to_user,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// ChangeRequest is returned to clients with its relations attached.
// Storage layers fill only the flat columns; Owner, AssignedDevelopers,
// Tasks and Progress are attached by the service.
type ChangeRequest struct {
	ID                 string    `json:"id"`
	Title              string    `json:"title"`
	Description        string    `json:"description"`
	Status             CRStatus  `json:"status"`
	OwnerID            string    `json:"owner_id"`
	Owner              *User     `json:"owner"`
	AssignedDevelopers []User    `json:"assignedDevelopers"`
	Tasks              []Task    `json:"tasks"`
	Progress           int       `json:"progress"`
	DueDate            time.Time `json:"due_date"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Progress returns the rounded share of completed tasks, 0 when there are none.
func Progress(tasks []Task) int {
	if len(tasks) == 0 {
		return 0
	}
	completed := 0
	for _, task := range tasks {
		if task.Status == TaskStatusCompleted {
			completed++
		}
	}
	return int(math.Round(100 * float64(completed) / float64(len(tasks))))
}

// IsOverdue reports whether the due date has passed at now.
func (cr ChangeRequest) IsOverdue(now time.Time) bool {
	return cr.DueDate.Before(now)
}
