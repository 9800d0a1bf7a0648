package gormstore

import (
	"time"

	"github.com/GolovachevS/cr-dashboard/internal/domain"
)

// Timestamps are written by the service clock, so gorm's automatic time
// tracking is disabled on every table.

type userRow struct {
	ID        string    `gorm:"primaryKey;type:text"`
	Name      string    `gorm:"size:255;not null"`
	Email     string    `gorm:"size:255;not null;uniqueIndex:users_email_key"`
	Avatar    string    `gorm:"not null;default:''"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime:false"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime:false"`
}

func (userRow) TableName() string { return "users" }

type changeRequestRow struct {
	ID          string    `gorm:"primaryKey;type:text"`
	Title       string    `gorm:"size:500;not null"`
	Description string    `gorm:"not null;default:''"`
	Status      string    `gorm:"not null;default:'pending';check:chk_change_requests_status,status IN ('pending','in-progress','completed','blocked')"`
	OwnerID     string    `gorm:"type:text;not null;index"`
	Owner       *userRow  `gorm:"foreignKey:OwnerID;references:ID"`
	DueDate     time.Time `gorm:"not null"`
	CreatedAt   time.Time `gorm:"not null;index;autoCreateTime:false"`
	UpdatedAt   time.Time `gorm:"not null;autoUpdateTime:false"`
}

func (changeRequestRow) TableName() string { return "change_requests" }

type assignmentRow struct {
	ChangeRequestID string            `gorm:"primaryKey;type:text"`
	ChangeRequest   *changeRequestRow `gorm:"foreignKey:ChangeRequestID;references:ID"`
	UserID          string            `gorm:"primaryKey;type:text;index"`
	User            *userRow          `gorm:"foreignKey:UserID;references:ID"`
}

func (assignmentRow) TableName() string { return "cr_developers" }

type taskRow struct {
	ID              string            `gorm:"primaryKey;type:text"`
	ChangeRequestID string            `gorm:"type:text;not null;index"`
	ChangeRequest   *changeRequestRow `gorm:"foreignKey:ChangeRequestID;references:ID"`
	Description     string            `gorm:"size:1000;not null"`
	Status          string            `gorm:"not null;default:'not-started';check:chk_tasks_status,status IN ('not-started','in-progress','completed')"`
	AssignedTo      string            `gorm:"type:text;not null"`
	Assignee        *userRow          `gorm:"foreignKey:AssignedTo;references:ID"`
	CreatedAt       time.Time         `gorm:"not null;autoCreateTime:false"`
	UpdatedAt       time.Time         `gorm:"not null;autoUpdateTime:false"`
}

func (taskRow) TableName() string { return "tasks" }

func toUserRow(u domain.User) userRow {
	return userRow{ID: u.ID, Name: u.Name, Email: u.Email, Avatar: u.Avatar, CreatedAt: u.CreatedAt, UpdatedAt: u.UpdatedAt}
}

func (r userRow) toDomain() domain.User {
	return domain.User{ID: r.ID, Name: r.Name, Email: r.Email, Avatar: r.Avatar, CreatedAt: r.CreatedAt.UTC(), UpdatedAt: r.UpdatedAt.UTC()}
}

func toChangeRequestRow(cr domain.ChangeRequest) changeRequestRow {
	return changeRequestRow{
		ID:          cr.ID,
		Title:       cr.Title,
		Description: cr.Description,
		Status:      string(cr.Status),
		OwnerID:     cr.OwnerID,
		DueDate:     cr.DueDate,
		CreatedAt:   cr.CreatedAt,
		UpdatedAt:   cr.UpdatedAt,
	}
}

func (r changeRequestRow) toDomain() domain.ChangeRequest {
	return domain.ChangeRequest{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		Status:      domain.CRStatus(r.Status),
		OwnerID:     r.OwnerID,
		DueDate:     r.DueDate.UTC(),
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

func toTaskRow(t domain.Task) taskRow {
	return taskRow{
		ID:              t.ID,
		ChangeRequestID: t.ChangeRequestID,
		Description:     t.Description,
		Status:          string(t.Status),
		AssignedTo:      t.AssignedTo,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
	}
}

func (r taskRow) toDomain() domain.Task {
	return domain.Task{
		ID:              r.ID,
		ChangeRequestID: r.ChangeRequestID,
		Description:     r.Description,
		Status:          domain.TaskStatus(r.Status),
		AssignedTo:      r.AssignedTo,
		CreatedAt:       r.CreatedAt.UTC(),
		UpdatedAt:       r.UpdatedAt.UTC(),
	}
}
