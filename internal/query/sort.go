package query

import (
	"cmp"
	"math"
	"regexp"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/elcuervo/otx/internal/task"
)

// Tie breakers applied after the user's own sort keys.
var defaultSorting = []SortKey{
	{Property: "urgency", Instance: 1},
	{Property: "status", Instance: 1},
	{Property: "due", Instance: 1},
	{Property: "priority", Instance: 1},
	{Property: "path", Instance: 1},
}

var leadingMarkupRe = regexp.MustCompile(`^(\*\*|\*|==|__|_)`)

type comparator func(a, b task.Task) int

// sorter carries the per-evaluation state of a sort. Collators keep
// internal buffers, so one is built per call.
type sorter struct {
	today   time.Time
	text    *collate.Collator
	numeric *collate.Collator
}

func newSorter(now time.Time) *sorter {
	return &sorter{
		today:   task.StartOfDay(now),
		text:    collate.New(language.Und),
		numeric: collate.New(language.Und, collate.Numeric),
	}
}

func sortTasks(tasks []task.Task, keys []SortKey, now time.Time) {
	s := newSorter(now)

	chain := make([]comparator, 0, len(keys)+len(defaultSorting))
	for _, k := range append(slices.Clone(keys), defaultSorting...) {
		chain = append(chain, s.comparator(k))
	}

	slices.SortStableFunc(tasks, func(a, b task.Task) int {
		for _, c := range chain {
			if r := c(a, b); r != 0 {
				return r
			}
		}
		return 0
	})
}

func (s *sorter) comparator(k SortKey) comparator {
	var c comparator

	switch k.Property {
	case "urgency":
		c = func(a, b task.Task) int { return cmp.Compare(Urgency(b, s.today), Urgency(a, s.today)) }
	case "status":
		c = func(a, b task.Task) int { return compareBool(a.IsDone(), b.IsDone()) }
	case "priority":
		c = func(a, b task.Task) int { return cmp.Compare(a.Priority, b.Priority) }
	case "start":
		c = func(a, b task.Task) int { return compareDates(a.Start, b.Start) }
	case "scheduled":
		c = func(a, b task.Task) int { return compareDates(a.Scheduled, b.Scheduled) }
	case "due":
		c = func(a, b task.Task) int { return compareDates(a.Due, b.Due) }
	case "done":
		c = func(a, b task.Task) int { return compareDates(a.Done, b.Done) }
	case "path":
		c = func(a, b task.Task) int { return s.numeric.CompareString(a.Path, b.Path) }
	case "description":
		c = func(a, b task.Task) int {
			return s.text.CompareString(cleanDescription(a.Description), cleanDescription(b.Description))
		}
	case "tag":
		c = func(a, b task.Task) int { return s.compareTags(a, b, k.Instance) }
	default:
		c = func(task.Task, task.Task) int { return 0 }
	}

	if k.Reverse {
		return func(a, b task.Task) int { return -c(a, b) }
	}
	return c
}

// compareBool orders false before true.
func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case a:
		return 1
	default:
		return -1
	}
}

// compareDates orders earlier dates first and missing dates last.
func compareDates(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	return a.Compare(*b)
}

// compareTags compares the instance-th tag of each task. Tasks without that
// many tags sort after tasks that have it.
func (s *sorter) compareTags(a, b task.Task, instance int) int {
	i := instance - 1
	hasA, hasB := len(a.Tags) > i, len(b.Tags) > i

	switch {
	case !hasA && !hasB:
		return 0
	case !hasA:
		return 1
	case !hasB:
		return -1
	}

	return s.numeric.CompareString(strings.TrimPrefix(a.Tags[i], "#"), strings.TrimPrefix(b.Tags[i], "#"))
}

// cleanDescription drops leading link and emphasis markup so that
// "**Call** Jo" sorts next to "Call Jo".
func cleanDescription(d string) string {
	d = strings.TrimSpace(d)

	if strings.HasPrefix(d, "[[") {
		if end := strings.Index(d, "]]"); end > 0 {
			inner := d[2:end]
			if i := strings.Index(inner, "|"); i >= 0 {
				inner = inner[i+1:]
			}
			d = inner + d[end+2:]
		}
	}

	if m := leadingMarkupRe.FindString(d); m != "" {
		d = strings.TrimPrefix(d, m)
		if i := strings.Index(d, m); i >= 0 {
			d = d[:i] + d[i+len(m):]
		}
	}

	return d
}

const (
	dueCoefficient       = 12.0
	scheduledCoefficient = 5.0
	startedCoefficient   = -3.0
	priorityCoefficient  = 6.0
)

// Urgency scores how pressing a task is on the given day. Higher is more
// urgent.
func Urgency(t task.Task, today time.Time) float64 {
	today = task.StartOfDay(today)
	urgency := 0.0

	if t.Due != nil {
		overdue := math.Round(today.Sub(task.StartOfDay(*t.Due)).Hours() / 24)

		var multiplier float64
		switch {
		case overdue >= 7:
			multiplier = 1.0
		case overdue >= -14:
			multiplier = ((overdue+14.0)*0.8)/21.0 + 0.2
		default:
			multiplier = 0.2
		}
		urgency += multiplier * dueCoefficient
	}

	if t.Scheduled != nil && !task.StartOfDay(*t.Scheduled).After(today) {
		urgency += scheduledCoefficient
	}

	if t.Start != nil && task.StartOfDay(*t.Start).After(today) {
		urgency += startedCoefficient
	}

	switch t.Priority {
	case task.PriorityHigh:
		urgency += priorityCoefficient
	case task.PriorityMedium:
		urgency += 0.65 * priorityCoefficient
	case task.PriorityNone:
		urgency += 0.325 * priorityCoefficient
	}

	return urgency
}
