package dashboard

import (
	"strings"
	"time"

	"dontforget/internal/models"
)

type Filter string

const (
	FilterAll            Filter = "all"
	FilterDueToday       Filter = "due-today"
	FilterFollowUp       Filter = "follow-up"
	FilterLate           Filter = "late"
	FilterUpcoming       Filter = "upcoming"
	FilterLowPriority    Filter = "low-priority"
	FilterMediumPriority Filter = "medium-priority"
	FilterHighPriority   Filter = "high-priority"
)

// ParseFilter maps unknown values to FilterAll.
func ParseFilter(raw string) Filter {
	switch f := Filter(strings.ToLower(strings.TrimSpace(raw))); f {
	case FilterDueToday, FilterFollowUp, FilterLate, FilterUpcoming,
		FilterLowPriority, FilterMediumPriority, FilterHighPriority:
		return f
	default:
		return FilterAll
	}
}

type Counts struct {
	Total        int `json:"total"`
	DueToday     int `json:"due_today"`
	FollowUp     int `json:"follow_up"`
	Late         int `json:"late"`
	HighPriority int `json:"high_priority"`
	Upcoming     int `json:"upcoming"`
}

type Result struct {
	Filter Filter        `json:"filter"`
	Query  string        `json:"query,omitempty"`
	Tasks  []models.Task `json:"tasks"`
	Counts Counts        `json:"counts"`
}

// Build filters and counts the owner's tasks. Archived tasks never show.
// Dates are bucketed by UTC calendar day, as the owner app does.
func Build(tasks []models.Task, filter Filter, query string, now time.Time) Result {
	now = now.UTC()
	term := strings.ToLower(strings.TrimSpace(query))

	res := Result{Filter: filter, Query: strings.TrimSpace(query), Tasks: []models.Task{}}
	for i := range tasks {
		task := tasks[i]
		if task.IsArchived() {
			continue
		}
		count(&res.Counts, &task, now)
		if matches(&task, filter, now) && contains(&task, term) {
			res.Tasks = append(res.Tasks, task)
		}
	}
	return res
}

type bucket int

const (
	noDate bucket = iota
	dueToday
	late
	upcoming
)

func dateBucket(task *models.Task, now time.Time) bucket {
	if task.IsCompleted() {
		return noDate
	}
	due, ok := task.Due(time.UTC)
	if !ok {
		return noDate
	}
	due = due.UTC()
	switch {
	case due.Format(models.DateLayout) == now.Format(models.DateLayout):
		return dueToday
	case due.Before(now):
		return late
	case due.After(now):
		return upcoming
	}
	return noDate
}

func isFollowUp(task *models.Task) bool {
	return task.TaskType == models.TaskTypeFollowUp || len(task.FollowUps) > 0
}

func isHigh(task *models.Task) bool {
	return task.Priority == "high" || task.Priority == "urgent"
}

func count(c *Counts, task *models.Task, now time.Time) {
	c.Total++
	if isHigh(task) {
		c.HighPriority++
	}
	if isFollowUp(task) {
		c.FollowUp++
	}
	switch dateBucket(task, now) {
	case dueToday:
		c.DueToday++
	case late:
		c.Late++
	case upcoming:
		c.Upcoming++
	}
}

func matches(task *models.Task, filter Filter, now time.Time) bool {
	switch filter {
	case FilterDueToday:
		return dateBucket(task, now) == dueToday
	case FilterFollowUp:
		return isFollowUp(task)
	case FilterLate:
		// A task earlier today is both due today and late.
		if task.IsCompleted() {
			return false
		}
		due, ok := task.Due(time.UTC)
		return ok && due.Before(now)
	case FilterUpcoming:
		if task.IsCompleted() {
			return false
		}
		due, ok := task.Due(time.UTC)
		return ok && due.After(now)
	case FilterLowPriority:
		return task.Priority == "low"
	case FilterMediumPriority:
		return task.Priority == "medium"
	case FilterHighPriority:
		return isHigh(task)
	default:
		return true
	}
}

func contains(task *models.Task, term string) bool {
	if term == "" {
		return true
	}
	parts := []string{
		task.Name, task.Title, task.Description, task.Invitee, task.Tags,
		task.TaskType, task.Platform, task.KeyPoints.Text(),
	}
	for _, f := range task.FollowUps {
		parts = append(parts, f.Text)
	}
	for _, p := range parts {
		if strings.Contains(strings.ToLower(p), term) {
			return true
		}
	}
	return false
}
