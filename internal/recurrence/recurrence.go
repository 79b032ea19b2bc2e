// Package recurrence interprets "every ..." rule text and computes the dates
// of the next occurrence of a repeating task.
package recurrence

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/elcuervo/otx/internal/task"
)

var ErrInvalidRule = errors.New("invalid recurrence rule")

var (
	intervalRe = regexp.MustCompile(`^every (\d+ )?(day|week|month|year)s?(?: on (.+))?$`)
	monthDayRe = regexp.MustCompile(`^the (\d{1,2})(?:st|nd|rd|th)?$`)
	nthDayRe   = regexp.MustCompile(`^the (last|first|second|third|fourth|[1-5](?:st|nd|rd|th)?) (\w+)$`)
)

var ordinals = map[string]int{
	"last":   -1,
	"first":  1,
	"second": 2,
	"third":  3,
	"fourth": 4,
}

var weekdays = map[string]rrule.Weekday{
	"monday":    rrule.MO,
	"tuesday":   rrule.TU,
	"wednesday": rrule.WE,
	"thursday":  rrule.TH,
	"friday":    rrule.FR,
	"saturday":  rrule.SA,
	"sunday":    rrule.SU,
}

// Rule is a parsed recurrence rule.
type Rule struct {
	Text     string
	WhenDone bool
	option   rrule.ROption
}

// Parse understands rules such as "every day", "every 2 weeks",
// "every weekday", "every week on monday, friday", "every month on the 15th",
// "every month on the last", "every month on the last friday" and a trailing
// "when done".
func Parse(text string) (Rule, error) {
	r := Rule{Text: text}

	s := strings.ToLower(strings.Join(strings.Fields(text), " "))
	if rest, ok := strings.CutSuffix(s, " when done"); ok {
		r.WhenDone = true
		s = rest
	}

	if s == "every weekday" {
		r.option = rrule.ROption{Freq: rrule.WEEKLY, Interval: 1, Byweekday: []rrule.Weekday{rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR}}
		return r, nil
	}

	if days, ok := parseWeekdays(strings.TrimPrefix(s, "every ")); ok && strings.HasPrefix(s, "every ") {
		r.option = rrule.ROption{Freq: rrule.WEEKLY, Interval: 1, Byweekday: days}
		return r, nil
	}

	m := intervalRe.FindStringSubmatch(s)
	if m == nil {
		return Rule{}, fmt.Errorf("%w: %q", ErrInvalidRule, text)
	}

	interval := 1
	if n := strings.TrimSpace(m[1]); n != "" {
		v, err := strconv.Atoi(n)
		if err != nil || v < 1 {
			return Rule{}, fmt.Errorf("%w: %q", ErrInvalidRule, text)
		}
		interval = v
	}

	switch m[2] {
	case "day":
		r.option.Freq = rrule.DAILY
	case "week":
		r.option.Freq = rrule.WEEKLY
	case "month":
		r.option.Freq = rrule.MONTHLY
	case "year":
		r.option.Freq = rrule.YEARLY
	}
	r.option.Interval = interval

	if on := m[3]; on != "" {
		switch {
		case on == "the last":
			r.option.Bymonthday = []int{-1}
		case monthDayRe.MatchString(on):
			day, _ := strconv.Atoi(monthDayRe.FindStringSubmatch(on)[1])
			if day < 1 || day > 31 {
				return Rule{}, fmt.Errorf("%w: %q", ErrInvalidRule, text)
			}
			r.option.Bymonthday = []int{day}
		case nthDayRe.MatchString(on) && r.option.Freq == rrule.MONTHLY:
			m := nthDayRe.FindStringSubmatch(on)
			d, ok := weekdays[m[2]]
			if !ok {
				return Rule{}, fmt.Errorf("%w: %q", ErrInvalidRule, text)
			}
			n, ok := ordinals[m[1]]
			if !ok {
				n, _ = strconv.Atoi(strings.TrimRight(m[1], "stndrh"))
			}
			r.option.Byweekday = []rrule.Weekday{d.Nth(n)}
		default:
			days, ok := parseWeekdays(on)
			if !ok {
				return Rule{}, fmt.Errorf("%w: %q", ErrInvalidRule, text)
			}
			r.option.Byweekday = days
		}
	}

	return r, nil
}

func parseWeekdays(s string) ([]rrule.Weekday, bool) {
	var days []rrule.Weekday
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' }) {
		if part == "and" {
			continue
		}
		d, ok := weekdays[part]
		if !ok {
			return nil, false
		}
		days = append(days, d)
	}
	return days, len(days) > 0
}

// After returns the first occurrence strictly after the day of ref.
func (r Rule) After(ref time.Time) (time.Time, bool) {
	opt := r.option
	opt.Dtstart = task.StartOfDay(ref)

	rr, err := rrule.NewRRule(opt)
	if err != nil {
		return time.Time{}, false
	}

	next := rr.After(opt.Dtstart, false)
	if next.IsZero() {
		return time.Time{}, false
	}
	return task.StartOfDay(next), true
}

// Service implements task.Recurrer.
type Service struct{}

func New() Service {
	return Service{}
}

// Next shifts every anchor in from by the distance between the reference
// date (due, else scheduled, else start; today for "when done" rules) and the
// rule's next occurrence after it.
func (Service) Next(text string, from task.Occurrence, today time.Time) (task.Occurrence, bool, error) {
	rule, err := Parse(text)
	if err != nil {
		return task.Occurrence{}, false, err
	}

	ref := reference(from)
	if ref == nil {
		// a dateless "when done" task still comes back, without dates
		return task.Occurrence{}, rule.WhenDone, nil
	}

	base := *ref
	if rule.WhenDone {
		base = task.StartOfDay(today)
	}

	next, ok := rule.After(base)
	if !ok {
		return task.Occurrence{}, false, nil
	}

	shift := int(math.Round(next.Sub(task.StartOfDay(*ref)).Hours() / 24))

	return task.Occurrence{
		Start:     addDays(from.Start, shift),
		Scheduled: addDays(from.Scheduled, shift),
		Due:       addDays(from.Due, shift),
	}, true, nil
}

func reference(o task.Occurrence) *time.Time {
	switch {
	case o.Due != nil:
		return o.Due
	case o.Scheduled != nil:
		return o.Scheduled
	default:
		return o.Start
	}
}

func addDays(d *time.Time, n int) *time.Time {
	if d == nil {
		return nil
	}
	v := d.AddDate(0, 0, n)
	return &v
}
