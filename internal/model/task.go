package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	StatusPending    = "Pending"
	StatusInProgress = "In Progress"
	StatusCompleted  = "Completed"
)

const (
	PriorityLow    = "Low"
	PriorityMedium = "Medium"
	PriorityHigh   = "High"
)

// DueDate decodes both RFC3339 timestamps and bare YYYY-MM-DD dates.
// Clients send either shape; it marshals back as RFC3339.
type DueDate struct {
	time.Time
}

func (d *DueDate) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		d.Time = t
		return nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return fmt.Errorf("invalid due_date %q", s)
	}
	d.Time = t
	return nil
}

type Task struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	DueDate     DueDate   `json:"due_date"`
	Priority    string    `json:"priority,omitempty"`
	Overdue     bool      `json:"overdue"`
	OwnerID     uuid.UUID `json:"owner_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type TaskFilter struct {
	Status *string
}

// TaskPatch carries the optional fields of a partial update.
// Nil means "leave unchanged".
type TaskPatch struct {
	Title       *string  `json:"title"`
	Description *string  `json:"description"`
	Status      *string  `json:"status"`
	DueDate     *DueDate `json:"due_date"`
	Priority    *string  `json:"priority"`
}
