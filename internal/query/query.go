// Package query compiles the line-oriented tasks query language into a
// filter, sort, limit and group pipeline and evaluates it over task snapshots.
package query

import (
	"context"
	"errors"
	"hash/adler32"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/elcuervo/otx/internal/dateparse"
	"github.com/elcuervo/otx/internal/status"
	"github.com/elcuervo/otx/internal/task"
)

// ErrInvalidQuery is returned by Apply when the query failed to compile.
var ErrInvalidQuery = errors.New("query has errors")

const (
	doneString           = "done"
	notDoneString        = "not done"
	recurringString      = "is recurring"
	notRecurringString   = "is not recurring"
	excludeSubItemString = "exclude sub-items"
	noStartString        = "no start date"
	hasStartString       = "has start date"
	noScheduledString    = "no scheduled date"
	hasScheduledString   = "has scheduled date"
	noDueString          = "no due date"
	hasDueString         = "has due date"
)

var (
	shortModeRe   = regexp.MustCompile(`^short`)
	priorityRe    = regexp.MustCompile(`^priority (is )?(above|below)? ?(low|none|medium|high)`)
	happensRe     = regexp.MustCompile(`^happens (before|after|on)? ?(.*)`)
	startsRe      = regexp.MustCompile(`^starts (before|after|on)? ?(.*)`)
	scheduledRe   = regexp.MustCompile(`^scheduled (before|after|on)? ?(.*)`)
	dueRe         = regexp.MustCompile(`^due (before|after|on)? ?(.*)`)
	doneRe        = regexp.MustCompile(`^done (before|after|on)? ?(.*)`)
	statusRe      = regexp.MustCompile(`^status (is not|is) (.*)`)
	pathRe        = regexp.MustCompile(`^path (includes|does not include) (.*)`)
	descriptionRe = regexp.MustCompile(`^description (includes|does not include) (.*)`)
	tagRe         = regexp.MustCompile(`^(tag|tags) (includes|does not include|include|do not include) (.*)`)
	headingRe     = regexp.MustCompile(`^heading (includes|does not include) (.*)`)
	limitRe       = regexp.MustCompile(`^limit (to )?(\d+)( tasks?)?`)
	sortByRe      = regexp.MustCompile(`^sort by (urgency|status|priority|start|scheduled|due|done|path|description|tag)( reverse)?[\s]*(\d+)?`)
	groupByRe     = regexp.MustCompile(`^group by (backlink|filename|folder|heading|path|status)`)
	hideRe        = regexp.MustCompile(`^hide (task count|backlink|priority|start date|scheduled date|done date|due date|recurrence rule|edit button)`)
	commentRe     = regexp.MustCompile(`^#.*`)
)

// Engine is implemented by every query flavour the host can render.
type Engine interface {
	Name() string
	Source() string
	SourceHash() string
	Err() string
	Layout() task.LayoutOptions
	Grouping() []Grouping
	Apply(ctx context.Context, tasks []task.Task) (Groups, error)
}

// DateParser resolves the operand of a date filter to a calendar day.
type DateParser interface {
	Parse(text string) (time.Time, bool)
}

// Options is the settings snapshot a query is compiled against.
type Options struct {
	GlobalFilter string
	Registry     *status.Registry
	Dates        DateParser
	Now          func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Registry == nil {
		o.Registry = status.NewDefault()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Dates == nil {
		p := dateparse.New()
		p.Now = o.Now
		o.Dates = p
	}
	return o
}

// Filter reports whether a task is kept.
type Filter func(task.Task) bool

// SortKey is one "sort by" instruction. Instance selects the tag position
// (1-based) when sorting by tag.
type SortKey struct {
	Property string
	Reverse  bool
	Instance int
}

type Grouping struct {
	Property string
}

type pipeline struct {
	filters  []Filter
	sorting  []SortKey
	grouping []Grouping
	limit    int
	limited  bool
}

// Query is a compiled tasks query. It is immutable once parsed; a changed
// source needs a new Parse.
type Query struct {
	source string
	layout task.LayoutOptions
	err    string
	now    func() time.Time

	pipeline *pipeline
}

// Parse compiles source. Problems are reported through Err, never returned;
// the first offending line decides the message.
func Parse(source string, opts Options) *Query {
	opts = opts.withDefaults()

	q := &Query{source: source, now: opts.Now}
	p := &pipeline{}

	fail := func(msg string) {
		if q.err == "" {
			q.err = msg
		}
	}

	for _, raw := range strings.Split(source, "\n") {
		line := strings.TrimSpace(raw)

		switch {
		case line == "":
		case line == doneString:
			p.filters = append(p.filters, func(t task.Task) bool { return t.IsDone() })
		case line == notDoneString:
			p.filters = append(p.filters, func(t task.Task) bool { return !t.IsDone() })
		case line == recurringString:
			p.filters = append(p.filters, func(t task.Task) bool { return t.Recurrence != nil })
		case line == notRecurringString:
			p.filters = append(p.filters, func(t task.Task) bool { return t.Recurrence == nil })
		case line == excludeSubItemString:
			p.filters = append(p.filters, func(t task.Task) bool { return t.Indentation == "" })
		case line == noStartString:
			p.filters = append(p.filters, func(t task.Task) bool { return t.Start == nil })
		case line == hasStartString:
			p.filters = append(p.filters, func(t task.Task) bool { return t.Start != nil })
		case line == noScheduledString:
			p.filters = append(p.filters, func(t task.Task) bool { return t.Scheduled == nil })
		case line == hasScheduledString:
			p.filters = append(p.filters, func(t task.Task) bool { return t.Scheduled != nil })
		case line == noDueString:
			p.filters = append(p.filters, func(t task.Task) bool { return t.Due == nil })
		case line == hasDueString:
			p.filters = append(p.filters, func(t task.Task) bool { return t.Due != nil })
		case shortModeRe.MatchString(line):
			q.layout.ShortMode = true
		case priorityRe.MatchString(line):
			p.filters = append(p.filters, priorityFilter(priorityRe.FindStringSubmatch(line)))
		case happensRe.MatchString(line):
			f, msg := happensFilter(happensRe.FindStringSubmatch(line), opts.Dates)
			add(p, f, msg, fail)
		case startsRe.MatchString(line):
			f, msg := dateFilter(startsRe.FindStringSubmatch(line), opts.Dates, "start", true, func(t task.Task) *time.Time { return t.Start })
			add(p, f, msg, fail)
		case scheduledRe.MatchString(line):
			f, msg := dateFilter(scheduledRe.FindStringSubmatch(line), opts.Dates, "scheduled", false, func(t task.Task) *time.Time { return t.Scheduled })
			add(p, f, msg, fail)
		case dueRe.MatchString(line):
			f, msg := dateFilter(dueRe.FindStringSubmatch(line), opts.Dates, "due", false, func(t task.Task) *time.Time { return t.Due })
			add(p, f, msg, fail)
		case doneRe.MatchString(line):
			f, msg := dateFilter(doneRe.FindStringSubmatch(line), opts.Dates, "done", false, func(t task.Task) *time.Time { return t.Done })
			add(p, f, msg, fail)
		case statusRe.MatchString(line):
			f, msg := statusFilter(statusRe.FindStringSubmatch(line), opts.Registry)
			add(p, f, msg, fail)
		case pathRe.MatchString(line):
			m := pathRe.FindStringSubmatch(line)
			p.filters = append(p.filters, textFilter(m[1] == "includes", m[2], func(t task.Task) string { return t.Path }))
		case descriptionRe.MatchString(line):
			m := descriptionRe.FindStringSubmatch(line)
			p.filters = append(p.filters, descriptionFilter(m[1] == "includes", m[2], opts.GlobalFilter))
		case tagRe.MatchString(line):
			m := tagRe.FindStringSubmatch(line)
			p.filters = append(p.filters, tagFilter(m[2] == "include" || m[2] == "includes", m[3]))
		case headingRe.MatchString(line):
			m := headingRe.FindStringSubmatch(line)
			p.filters = append(p.filters, headingFilter(m[1] == "includes", m[2]))
		case limitRe.MatchString(line):
			n, err := strconv.Atoi(limitRe.FindStringSubmatch(line)[2])
			if err != nil {
				fail("do not understand query limit")
				continue
			}
			p.limit, p.limited = n, true
		case sortByRe.MatchString(line):
			m := sortByRe.FindStringSubmatch(line)
			instance := 1
			if n, err := strconv.Atoi(m[3]); err == nil && n > 0 {
				instance = n
			}
			p.sorting = append(p.sorting, SortKey{Property: m[1], Reverse: m[2] != "", Instance: instance})
		case groupByRe.MatchString(line):
			p.grouping = append(p.grouping, Grouping{Property: groupByRe.FindStringSubmatch(line)[1]})
		case hideRe.MatchString(line):
			applyHide(&q.layout, hideRe.FindStringSubmatch(line)[1])
		case commentRe.MatchString(line):
		default:
			fail("do not understand query: " + line)
		}
	}

	if q.err == "" {
		q.pipeline = p
	}

	return q
}

func add(p *pipeline, f Filter, msg string, fail func(string)) {
	if msg != "" {
		fail(msg)
		return
	}
	p.filters = append(p.filters, f)
}

func applyHide(layout *task.LayoutOptions, option string) {
	switch option {
	case "task count":
		layout.HideTaskCount = true
	case "backlink":
		layout.HideBacklinks = true
	case "priority":
		layout.HidePriority = true
	case "start date":
		layout.HideStartDate = true
	case "scheduled date":
		layout.HideScheduledDate = true
	case "due date":
		layout.HideDueDate = true
	case "done date":
		layout.HideDoneDate = true
	case "recurrence rule":
		layout.HideRecurrenceRule = true
	case "edit button":
		layout.HideEditButton = true
	}
}

func (q *Query) Name() string { return "Query" }

func (q *Query) Source() string { return q.source }

func (q *Query) SourceHash() string { return sourceHash(q.source) }

// Err is the compile error, empty when the query is usable.
func (q *Query) Err() string { return q.err }

func (q *Query) Layout() task.LayoutOptions { return q.layout }

func (q *Query) Grouping() []Grouping {
	if q.pipeline == nil {
		return nil
	}
	return q.pipeline.grouping
}

func (q *Query) Sorting() []SortKey {
	if q.pipeline == nil {
		return nil
	}
	return q.pipeline.sorting
}

// Limit returns the row cap and whether one was set.
func (q *Query) Limit() (int, bool) {
	if q.pipeline == nil {
		return 0, false
	}
	return q.pipeline.limit, q.pipeline.limited
}

// Apply filters, sorts, limits and groups tasks. The input slice is not
// modified.
func (q *Query) Apply(ctx context.Context, tasks []task.Task) (Groups, error) {
	if q.pipeline == nil {
		return Groups{}, ErrInvalidQuery
	}
	if err := ctx.Err(); err != nil {
		return Groups{}, err
	}

	p := q.pipeline

	matched := make([]task.Task, 0, len(tasks))
	for _, t := range tasks {
		if keep(p.filters, t) {
			matched = append(matched, t)
		}
	}

	sortTasks(matched, p.sorting, q.now())

	if p.limited && len(matched) > p.limit {
		matched = matched[:p.limit]
	}

	return groupTasks(matched, p.grouping), nil
}

func keep(filters []Filter, t task.Task) bool {
	for _, f := range filters {
		if !f(t) {
			return false
		}
	}
	return true
}

func sourceHash(source string) string {
	return strconv.FormatUint(uint64(adler32.Checksum([]byte(source))), 10)
}
