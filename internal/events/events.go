// Package events defines the topics and payloads exchanged over the bus
// between the task side of the bot and the recurrence engine.
package events

import "time"

const (
	// TopicTaskCompleted is published when a user marks a task done.
	TopicTaskCompleted = "task.completed"
	// TopicTaskDeleted is published when a task is removed entirely.
	TopicTaskDeleted = "task.deleted"

	// Recurrence lifecycle topics, for external consumers (reports, audit).
	TopicRecurrenceCreated   = "recurrence.created"
	TopicRecurrenceModified  = "recurrence.modified"
	TopicRecurrencePaused    = "recurrence.paused"
	TopicRecurrenceResumed   = "recurrence.resumed"
	TopicRecurrenceStopped   = "recurrence.stopped"
	TopicRecurrenceTriggered = "recurrence.triggered"
)

// StopReason explains why a recurrence ended.
type StopReason string

const (
	StopReasonManual          StopReason = "manual"
	StopReasonEndDateReached  StopReason = "end_date_reached"
)

type TaskCompleted struct {
	TaskID      uint
	UserID      uint
	CompletedAt time.Time
}

type TaskDeleted struct {
	TaskID uint
	UserID uint
}

// RecurrenceLifecycle is the shared payload of created/modified/paused/
// resumed events.
type RecurrenceLifecycle struct {
	PatternID uint
	TaskID    uint
	UserID    uint
	NextRunAt time.Time
}

type RecurrenceStopped struct {
	PatternID uint
	TaskID    uint
	UserID    uint
	Reason    StopReason
}

type RecurrenceTriggered struct {
	PatternID      uint
	OriginalTaskID uint
	NewTaskID      uint
	UserID         uint
	NextRunAt      time.Time
}
