package models

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

const (
	TaskStatusArchived  = "archived"
	TaskStatusCompleted = "completed"
	TaskTypeFollowUp    = "Follow-up"
)

// StringList accepts either a JSON array of strings or a single
// newline-separated string.
type StringList []string

func (l *StringList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*l = nil
		return nil
	}
	if data[0] == '[' {
		var items []string
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		*l = items
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if strings.TrimSpace(s) == "" {
		*l = nil
		return nil
	}
	*l = strings.Split(s, "\n")
	return nil
}

// Text joins the entries with newlines.
func (l StringList) Text() string {
	return strings.Join(l, "\n")
}

type FollowUp struct {
	ID   ID     `json:"id"`
	Text string `json:"text"`
}

// Task is an owner task as returned by GET /tasks.
type Task struct {
	ID          ID         `json:"id"`
	Name        string     `json:"name"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	DateTime    string     `json:"date_time"`
	Priority    string     `json:"priority"`
	Status      string     `json:"status"`
	Invitee     string     `json:"invitee"`
	TaskType    string     `json:"task_type"`
	Platform    string     `json:"platform"`
	Tags        string     `json:"tags"`
	KeyPoints   StringList `json:"key_points"`
	FollowUps   []FollowUp `json:"follow_ups"`
	MeetingLink string     `json:"meeting_link,omitempty"`
}

// Normalize fills the defaults the dashboard relies on.
func (t *Task) Normalize() {
	if t.Name == "" {
		t.Name = t.Title
	}
	if t.Description == "" && len(t.KeyPoints) > 0 {
		bullets := make([]string, len(t.KeyPoints))
		for i, kp := range t.KeyPoints {
			bullets[i] = "• " + kp
		}
		t.Description = strings.Join(bullets, "\n")
	}
	t.Priority = strings.ToLower(t.Priority)
	if t.Priority == "" {
		t.Priority = "medium"
	}
	if t.Status == "" {
		t.Status = "pending"
	}
	if t.TaskType == "" {
		t.TaskType = "Regular"
	}
	if t.Platform == "" {
		t.Platform = "Zoom"
	}
}

// Due parses DateTime. RFC3339 and a few browser-style layouts are accepted.
func (t *Task) Due(loc *time.Location) (time.Time, bool) {
	raw := strings.TrimSpace(t.DateTime)
	if raw == "" {
		return time.Time{}, false
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts, true
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02 15:04:05", DateLayout} {
		if ts, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

func (t *Task) IsCompleted() bool { return t.Status == TaskStatusCompleted }

func (t *Task) IsArchived() bool { return t.Status == TaskStatusArchived }

// NotificationToggles are the owner's notification switches.
// A nil toggle counts as enabled.
type NotificationToggles struct {
	Reminders *bool `json:"reminders,omitempty"`
	Payments  *bool `json:"payments,omitempty"`
	Overdue   *bool `json:"overdue,omitempty"`
}

func enabled(b *bool) bool { return b == nil || *b }

func (n NotificationToggles) RemindersOn() bool { return enabled(n.Reminders) }
func (n NotificationToggles) PaymentsOn() bool  { return enabled(n.Payments) }
func (n NotificationToggles) OverdueOn() bool   { return enabled(n.Overdue) }

type Settings struct {
	Notifications NotificationToggles `json:"notifications"`
	Branding      Branding            `json:"branding"`
}

type NotificationType string

const (
	NotificationOverdue  NotificationType = "overdue"
	NotificationPayment  NotificationType = "payment"
	NotificationReminder NotificationType = "reminder"
	NotificationNew      NotificationType = "new"
)

type Notification struct {
	ID        string           `json:"id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Time      string           `json:"time,omitempty"`
	BookingID ID               `json:"booking_id,omitempty"`
	TaskID    ID               `json:"task_id,omitempty"`
	Seen      bool             `json:"seen"`
}

// TaskDraft is the autosaved add-task form.
type TaskDraft struct {
	FormData      map[string]any `json:"formData"`
	KeyPointsList []string       `json:"keyPointsList"`
	SavedAt       time.Time      `json:"savedAt"`
}
