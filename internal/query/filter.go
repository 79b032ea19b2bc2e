package query

import (
	"strings"
	"time"

	"github.com/elcuervo/otx/internal/status"
	"github.com/elcuervo/otx/internal/task"
)

func priorityFilter(m []string) Filter {
	want, _ := task.ParsePriority(m[3])

	switch m[2] {
	case "above":
		return func(t task.Task) bool { return t.Priority < want }
	case "below":
		return func(t task.Task) bool { return t.Priority > want }
	default:
		return func(t task.Task) bool { return t.Priority == want }
	}
}

func compareDay(op string, d, target time.Time) bool {
	switch op {
	case "before":
		return d.Before(target)
	case "after":
		return d.After(target)
	default:
		return d.Equal(target)
	}
}

// dateFilter matches one date field. absentPasses decides the outcome for
// tasks without that date: start filters let them through, the others drop
// them.
func dateFilter(m []string, dates DateParser, field string, absentPasses bool, get func(task.Task) *time.Time) (Filter, string) {
	target, ok := dates.Parse(m[2])
	if !ok {
		return nil, "do not understand " + field + " date"
	}

	op := m[1]

	return func(t task.Task) bool {
		d := get(t)
		if d == nil {
			return absentPasses
		}
		return compareDay(op, *d, target)
	}, ""
}

// happensFilter matches when any of start, scheduled or due satisfies the
// comparison.
func happensFilter(m []string, dates DateParser) (Filter, string) {
	target, ok := dates.Parse(m[2])
	if !ok {
		return nil, "do not understand happens date"
	}

	op := m[1]

	return func(t task.Task) bool {
		for _, d := range []*time.Time{t.Start, t.Scheduled, t.Due} {
			if d != nil && compareDay(op, *d, target) {
				return true
			}
		}
		return false
	}, ""
}

func statusFilter(m []string, registry *status.Registry) (Filter, string) {
	s := registry.ByIndicator(m[2])
	if s.IsEmpty() {
		s = registry.ByName(m[2])
	}
	if s.IsEmpty() {
		return nil, "status you are searching for is not registered in configuration."
	}

	want := strings.ToLower(s.Indicator)

	if m[1] == "is" {
		return func(t task.Task) bool { return strings.ToLower(t.Status.Indicator) == want }, ""
	}
	return func(t task.Task) bool { return strings.ToLower(t.Status.Indicator) != want }, ""
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func textFilter(include bool, needle string, get func(task.Task) string) Filter {
	return func(t task.Task) bool {
		return containsFold(get(t), needle) == include
	}
}

func descriptionFilter(include bool, needle, globalFilter string) Filter {
	return textFilter(include, needle, func(t task.Task) string {
		d := t.Description
		if globalFilter != "" {
			d = strings.Replace(d, globalFilter, "", 1)
		}
		return strings.TrimSpace(d)
	})
}

// headingFilter treats a task without a heading as not including anything.
func headingFilter(include bool, needle string) Filter {
	return func(t task.Task) bool {
		if t.PrecedingHeader == "" {
			return !include
		}
		return containsFold(t.PrecedingHeader, needle) == include
	}
}

func tagFilter(include bool, search string) Filter {
	search = strings.ToLower(strings.TrimPrefix(search, "#"))

	return func(t task.Task) bool {
		found := false
		for _, tag := range t.Tags {
			if strings.Contains(strings.ToLower(tag), search) {
				found = true
				break
			}
		}
		return found == include
	}
}
