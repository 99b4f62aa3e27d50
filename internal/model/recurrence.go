package model

import "time"

// RecurrencePattern persists a task's recurring schedule.
//
// The unique index on TaskID enforces at most one pattern per task: a second
// create — even one racing a concurrent create — loses at the database, not
// in application code.
type RecurrencePattern struct {
	ID              uint `gorm:"primaryKey"`
	TaskID          uint `gorm:"uniqueIndex"`
	UserID          uint `gorm:"index"`
	Frequency       string
	Interval        int
	DaysOfWeek      string // comma-joined 0..6, weekly only
	DayOfMonth      int
	StartDate       time.Time
	EndDate         *time.Time
	NextRunAt       time.Time `gorm:"index"`
	Status          string    `gorm:"index;default:active"`
	LastTriggeredAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
