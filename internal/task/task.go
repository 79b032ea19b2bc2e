// Package task models checklist lines as immutable Task values and converts
// between the two.
package task

import (
	"path"
	"strings"
	"time"

	"github.com/elcuervo/otx/internal/status"
)

const DateFormat = "2006-01-02"

// Priority is ordinal: lower sorts first. None sits between Medium and Low.
type Priority int

const (
	PriorityHigh Priority = iota + 1
	PriorityMedium
	PriorityNone
	PriorityLow
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	case PriorityLow:
		return "low"
	default:
		return "none"
	}
}

// ParsePriority accepts the names used by String.
func ParsePriority(s string) (Priority, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return PriorityHigh, true
	case "medium":
		return PriorityMedium, true
	case "none":
		return PriorityNone, true
	case "low":
		return PriorityLow, true
	}
	return PriorityNone, false
}

// Recurrence is the rule text of a repeating task together with the dates it
// was anchored on when decoded.
type Recurrence struct {
	Rule      string
	Start     *time.Time
	Scheduled *time.Time
	Due       *time.Time
}

// Location anchors a decoded line inside its document.
type Location struct {
	Path            string
	SectionStart    int
	SectionIndex    int
	PrecedingHeader string
}

// Task is one decoded checklist line. Values are never modified in place;
// every change produces a new Task.
type Task struct {
	Status          status.Status
	Description     string
	Path            string
	Indentation     string
	SectionStart    int
	SectionIndex    int
	PrecedingHeader string
	Tags            []string
	Priority        Priority

	Start     *time.Time
	Scheduled *time.Time
	Due       *time.Time
	Done      *time.Time
	Created   *time.Time

	Recurrence *Recurrence
	BlockLink  string

	OriginalMarkdown string
}

// IsDone reports whether the task's status is classified as completed.
func (t Task) IsDone() bool {
	return t.Status.Completed
}

func (t Task) IsRecurring() bool {
	return t.Recurrence != nil
}

// Filename is the document name without folders or the .md extension.
func (t Task) Filename() string {
	base := path.Base(t.Path)
	if base == "." || base == "/" {
		return ""
	}
	return strings.TrimSuffix(base, ".md")
}

// LinkText is the label used when pointing back at the task's document.
func (t Task) LinkText() string {
	name := t.Filename()
	if name == "" {
		return ""
	}
	if t.PrecedingHeader == "" || t.PrecedingHeader == name {
		return name
	}
	return name + " > " + t.PrecedingHeader
}

// WithPath returns a copy of t moved to path p.
func (t Task) WithPath(p string) Task {
	t.Path = p
	return t
}

// Location returns the anchoring information t was decoded with.
func (t Task) Location() Location {
	return Location{
		Path:            t.Path,
		SectionStart:    t.SectionStart,
		SectionIndex:    t.SectionIndex,
		PrecedingHeader: t.PrecedingHeader,
	}
}

// Date parses an ISO calendar date into UTC midnight.
func Date(value string) (time.Time, error) {
	return time.Parse(DateFormat, value)
}

// StartOfDay truncates t to midnight of its calendar date, in UTC.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func datePtr(t time.Time) *time.Time {
	return &t
}
