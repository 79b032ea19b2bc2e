package task

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/elcuervo/otx/internal/status"
)

// ErrUnknownStatus is returned when a checklist indicator has no configured
// status. It is a configuration problem, not a parse miss.
var ErrUnknownStatus = errors.New("unknown status indicator")

var (
	taskRe       = regexp.MustCompile(`^([\s\t]*)[-*] +\[(.)\] *(.*)`)
	listItemRe   = regexp.MustCompile(`^([\s\t]*)([-*])`)
	blockLinkRe  = regexp.MustCompile(` \^[a-zA-Z0-9-]+$`)
	createdRe    = regexp.MustCompile(`➕ ?(\d{4}-\d{2}-\d{2})`)
	priorityRe   = regexp.MustCompile(`([⏫🔼🔽])$`)
	startRe      = regexp.MustCompile(`🛫 ?(\d{4}-\d{2}-\d{2})$`)
	scheduledRe  = regexp.MustCompile(`[⏳⌛] ?(\d{4}-\d{2}-\d{2})$`)
	dueRe        = regexp.MustCompile(`[📅📆🗓] ?(\d{4}-\d{2}-\d{2})$`)
	doneRe       = regexp.MustCompile(`✅ ?(\d{4}-\d{2}-\d{2})$`)
	recurrenceRe = regexp.MustCompile(`(?i)🔁 ?([a-zA-Z0-9, !]+)$`)
	hashTagRe    = regexp.MustCompile(`(^|\s)#[^ !@#$%^&*(),.?":{}|<>]*`)
)

// maxPasses bounds the suffix loop: one pass per token kind plus a spare.
const maxPasses = 7

const (
	markerPriorityHigh   = "⏫"
	markerPriorityMedium = "🔼"
	markerPriorityLow    = "🔽"
	markerRecurrence     = "🔁"
	markerStart          = "🛫"
	markerScheduled      = "⏳"
	markerDue            = "📅"
	markerDone           = "✅"
	markerCreated        = "➕"
)

// Placement controls where the global filter is written back.
type Placement int

const (
	Prepend Placement = iota
	Append
)

// LayoutOptions hide fields or shorten them to their marker when encoding.
type LayoutOptions struct {
	ShortMode          bool
	HideTaskCount      bool
	HideBacklinks      bool
	HidePriority       bool
	HideStartDate      bool
	HideScheduledDate  bool
	HideDueDate        bool
	HideDoneDate       bool
	HideRecurrenceRule bool
	HideEditButton     bool
}

// Codec decodes and encodes checklist lines for one settings snapshot.
type Codec struct {
	GlobalFilter string
	Placement    Placement
	Registry     *status.Registry
}

// NewCodec returns a codec using the default statuses and no global filter.
func NewCodec() Codec {
	return Codec{Registry: status.NewDefault()}
}

// IsChecklist reports whether line is shaped like "- [c] ...".
func IsChecklist(line string) bool {
	return taskRe.MatchString(line)
}

// Decode parses line into a Task. ok is false when the line is not a
// checklist item or lacks the global filter. An unregistered indicator
// yields ErrUnknownStatus.
func (c Codec) Decode(line string, loc Location) (Task, bool, error) {
	m := taskRe.FindStringSubmatch(line)
	if m == nil {
		return Task{}, false, nil
	}

	body := strings.TrimSpace(m[3])
	if !strings.Contains(body, c.GlobalFilter) {
		return Task{}, false, nil
	}

	description := body
	if c.GlobalFilter != "" {
		description = strings.Replace(description, c.GlobalFilter, "", 1)
	}
	description = strings.TrimSpace(strings.Replace(description, "  ", " ", 1))

	indicator := strings.ToLower(m[2])
	st := c.Registry.ByIndicator(indicator)
	if st.IsEmpty() {
		return Task{}, false, fmt.Errorf("%w: %q", ErrUnknownStatus, indicator)
	}

	t := Task{
		Status:           st,
		Path:             loc.Path,
		Indentation:      m[1],
		SectionStart:     loc.SectionStart,
		SectionIndex:     loc.SectionIndex,
		PrecedingHeader:  loc.PrecedingHeader,
		Priority:         PriorityNone,
		OriginalMarkdown: line,
	}

	if link := blockLinkRe.FindString(description); link != "" {
		t.BlockLink = strings.TrimSpace(link)
		description = strings.TrimSpace(blockLinkRe.ReplaceAllString(description, ""))
	}

	if cm := createdRe.FindStringSubmatchIndex(description); cm != nil {
		if d, err := Date(description[cm[2]:cm[3]]); err == nil {
			t.Created = &d
			description = strings.TrimSpace(description[:cm[0]] + description[cm[1]:])
		}
	}

	var rule string
	for pass := 0; pass < maxPasses; pass++ {
		matched := false

		if pm := priorityRe.FindStringSubmatch(description); pm != nil {
			switch pm[1] {
			case markerPriorityHigh:
				t.Priority = PriorityHigh
			case markerPriorityMedium:
				t.Priority = PriorityMedium
			case markerPriorityLow:
				t.Priority = PriorityLow
			}
			description = strings.TrimSpace(strings.TrimSuffix(description, pm[0]))
			matched = true
		}

		if d, rest, ok := stripDate(doneRe, description); ok {
			t.Done, description, matched = d, rest, true
		}
		if d, rest, ok := stripDate(dueRe, description); ok {
			t.Due, description, matched = d, rest, true
		}
		if d, rest, ok := stripDate(scheduledRe, description); ok {
			t.Scheduled, description, matched = d, rest, true
		}
		if d, rest, ok := stripDate(startRe, description); ok {
			t.Start, description, matched = d, rest, true
		}

		if rm := recurrenceRe.FindStringSubmatch(description); rm != nil {
			rule = strings.TrimSpace(rm[1])
			description = strings.TrimSpace(strings.TrimSuffix(description, rm[0]))
			matched = true
		}

		if !matched {
			break
		}
	}

	if rule != "" {
		t.Recurrence = &Recurrence{Rule: rule, Start: t.Start, Scheduled: t.Scheduled, Due: t.Due}
	}

	for _, tag := range hashTagRe.FindAllString(description, -1) {
		tag = strings.TrimSpace(tag)
		if tag == c.GlobalFilter {
			continue
		}
		t.Tags = append(t.Tags, tag)
	}

	t.Description = description

	return t, true, nil
}

func stripDate(re *regexp.Regexp, description string) (*time.Time, string, bool) {
	m := re.FindStringSubmatch(description)
	if m == nil {
		return nil, description, false
	}

	d, err := Date(m[1])
	if err != nil {
		return nil, description, false
	}

	return &d, strings.TrimSpace(strings.TrimSuffix(description, m[0])), true
}

// Encode renders the body of t (everything after "- [c] ") in canonical
// field order.
func (c Codec) Encode(t Task, layout LayoutOptions) string {
	var b strings.Builder

	description := strings.TrimSpace(t.Description)
	if c.Placement == Append {
		b.WriteString(strings.TrimSpace(description + " " + c.GlobalFilter))
	} else {
		b.WriteString(strings.TrimSpace(c.GlobalFilter + " " + description))
	}

	writeDate := func(marker string, d *time.Time) {
		b.WriteString(" " + marker)
		if !layout.ShortMode {
			b.WriteString(" " + d.Format(DateFormat))
		}
	}

	if t.Created != nil {
		writeDate(markerCreated, t.Created)
	}

	if !layout.HidePriority {
		switch t.Priority {
		case PriorityHigh:
			b.WriteString(" " + markerPriorityHigh)
		case PriorityMedium:
			b.WriteString(" " + markerPriorityMedium)
		case PriorityLow:
			b.WriteString(" " + markerPriorityLow)
		}
	}

	if !layout.HideRecurrenceRule && t.Recurrence != nil {
		b.WriteString(" " + markerRecurrence)
		if !layout.ShortMode {
			b.WriteString(" " + t.Recurrence.Rule)
		}
	}

	if !layout.HideStartDate && t.Start != nil {
		writeDate(markerStart, t.Start)
	}
	if !layout.HideScheduledDate && t.Scheduled != nil {
		writeDate(markerScheduled, t.Scheduled)
	}
	if !layout.HideDueDate && t.Due != nil {
		writeDate(markerDue, t.Due)
	}
	if !layout.HideDoneDate && t.Done != nil {
		writeDate(markerDone, t.Done)
	}

	if t.BlockLink != "" {
		b.WriteString(" " + t.BlockLink)
	}

	return b.String()
}

// FileLine renders t as a full document line for write-back.
func (c Codec) FileLine(t Task) string {
	return t.Indentation + "- [" + t.Status.Indicator + "] " + strings.TrimSpace(c.Encode(t, LayoutOptions{}))
}
