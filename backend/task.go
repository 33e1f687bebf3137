// Package backend defines the task model shared by the client and the
// server, and the contract the task CRUD API implements.
package backend

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Priority represents the urgency of a task.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

// ParsePriority parses a priority string (case-insensitive).
func ParsePriority(s string) (Priority, error) {
	switch Priority(strings.ToUpper(strings.TrimSpace(s))) {
	case PriorityLow:
		return PriorityLow, nil
	case PriorityMedium:
		return PriorityMedium, nil
	case PriorityHigh:
		return PriorityHigh, nil
	}
	return "", ErrInvalidPriority(s)
}

// ID identifies a task. A task created while offline carries a local
// placeholder id until the server assigns a remote id; the two cases are
// kept as distinct variants so code cannot confuse one for the other.
type ID struct {
	remote int64
	local  string
}

// RemoteID wraps a server-assigned identifier.
func RemoteID(n int64) ID {
	return ID{remote: n}
}

// LocalID wraps an existing client placeholder identifier.
func LocalID(s string) ID {
	return ID{local: s}
}

// NewLocalID generates a fresh client placeholder identifier.
func NewLocalID() ID {
	return ID{local: uuid.New().String()}
}

// IsZero reports whether the id is unset.
func (id ID) IsZero() bool {
	return id.remote == 0 && id.local == ""
}

// IsLocal reports whether the id is a client placeholder.
func (id ID) IsLocal() bool {
	return id.local != ""
}

// Remote returns the server identifier, if assigned.
func (id ID) Remote() (int64, bool) {
	return id.remote, id.remote != 0
}

// Local returns the placeholder identifier, if this is a local id.
func (id ID) Local() (string, bool) {
	return id.local, id.local != ""
}

// String renders the id for display and map keys.
func (id ID) String() string {
	if id.local != "" {
		return "local:" + id.local
	}
	return fmt.Sprintf("%d", id.remote)
}

type idJSON struct {
	Remote int64  `json:"remote,omitempty"`
	Local  string `json:"local,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (id ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(idJSON{Remote: id.remote, Local: id.local})
}

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(data []byte) error {
	var v idJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	id.remote = v.Remote
	id.local = v.Local
	return nil
}

// Date and time layouts used throughout the wire and storage formats.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// Task represents a dated todo item.
type Task struct {
	ID          ID       `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	DueDate     string   `json:"due_date"`           // calendar date, DateLayout
	DueTime     string   `json:"due_time,omitempty"` // 24h clock, TimeLayout; empty when unset
	Done        bool     `json:"done"`
	Priority    Priority `json:"priority"`
}

// Validate checks the task fields before any mutation is attempted.
func (t *Task) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return ErrEmptyTitle()
	}
	if t.DueDate != "" {
		if _, err := time.Parse(DateLayout, t.DueDate); err != nil {
			return ErrInvalidDate(t.DueDate)
		}
	}
	if t.DueTime != "" {
		if _, err := time.Parse(TimeLayout, t.DueTime); err != nil {
			return ErrInvalidTime(t.DueTime)
		}
	}
	switch t.Priority {
	case PriorityLow, PriorityMedium, PriorityHigh:
	case "":
		t.Priority = PriorityMedium
	default:
		return ErrInvalidPriority(string(t.Priority))
	}
	return nil
}

// DueAt computes the absolute due instant in the given location.
// The second return is false when the task has no due date or time.
func (t *Task) DueAt(loc *time.Location) (time.Time, bool) {
	if t.DueDate == "" || t.DueTime == "" {
		return time.Time{}, false
	}
	d, err := time.Parse(DateLayout, t.DueDate)
	if err != nil {
		return time.Time{}, false
	}
	c, err := time.Parse(TimeLayout, t.DueTime)
	if err != nil {
		return time.Time{}, false
	}
	return time.Date(d.Year(), d.Month(), d.Day(), c.Hour(), c.Minute(), 0, 0, loc), true
}

// Patch is a partial field-change set applied by an update.
// Nil fields are left unchanged.
type Patch struct {
	Title       *string   `json:"title,omitempty"`
	Description *string   `json:"description,omitempty"`
	DueDate     *string   `json:"due_date,omitempty"`
	DueTime     *string   `json:"due_time,omitempty"`
	Done        *bool     `json:"done,omitempty"`
	Priority    *Priority `json:"priority,omitempty"`
}

// IsZero reports whether the patch changes nothing.
func (p Patch) IsZero() bool {
	return p.Title == nil && p.Description == nil && p.DueDate == nil &&
		p.DueTime == nil && p.Done == nil && p.Priority == nil
}

// Apply overlays the patch onto a task.
func (p Patch) Apply(t *Task) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.DueDate != nil {
		t.DueDate = *p.DueDate
	}
	if p.DueTime != nil {
		t.DueTime = *p.DueTime
	}
	if p.Done != nil {
		t.Done = *p.Done
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
}

// Validate checks the patch fields.
func (p Patch) Validate() error {
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return ErrEmptyTitle()
	}
	if p.DueDate != nil && *p.DueDate != "" {
		if _, err := time.Parse(DateLayout, *p.DueDate); err != nil {
			return ErrInvalidDate(*p.DueDate)
		}
	}
	if p.DueTime != nil && *p.DueTime != "" {
		if _, err := time.Parse(TimeLayout, *p.DueTime); err != nil {
			return ErrInvalidTime(*p.DueTime)
		}
	}
	if p.Priority != nil {
		switch *p.Priority {
		case PriorityLow, PriorityMedium, PriorityHigh:
		default:
			return ErrInvalidPriority(string(*p.Priority))
		}
	}
	return nil
}

// SortTasks orders tasks by due date, then due time, then server id
// (creation order). Tasks without a due date sort last.
func SortTasks(tasks []Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		if a.DueDate != b.DueDate {
			if a.DueDate == "" {
				return false
			}
			if b.DueDate == "" {
				return true
			}
			return a.DueDate < b.DueDate
		}
		if a.DueTime != b.DueTime {
			return a.DueTime < b.DueTime
		}
		ar, _ := a.ID.Remote()
		br, _ := b.ID.Remote()
		return ar < br
	})
}
