package model

import "time"

// Task represents a single item in the planner. A recurring task keeps its
// schedule in a separate RecurrencePattern row; triggering that pattern
// generates the next occurrence as a fresh one-time task.
type Task struct {
	ID              uint  `gorm:"primaryKey"`
	UserID          uint  `gorm:"index"`
	CategoryID      *uint `gorm:"index"`
	Title           string
	Description     string
	Deadline        *time.Time
	IsCompleted     bool `gorm:"default:false"`
	IsRecurring     bool `gorm:"default:false"`
	LastCompletedAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
