package task

import (
	"fmt"
	"strings"
	"time"

	"github.com/elcuervo/otx/internal/status"
)

// Occurrence is the set of dates a recurring task is anchored on.
type Occurrence struct {
	Start     *time.Time
	Scheduled *time.Time
	Due       *time.Time
}

// Recurrer computes the dates of the occurrence following from. ok is false
// when the rule yields no further occurrence.
type Recurrer interface {
	Next(rule string, from Occurrence, today time.Time) (next Occurrence, ok bool, err error)
}

// Toggler advances tasks through the status registry.
type Toggler struct {
	Codec       Codec
	Recurrence  Recurrer
	SetDoneDate bool
	Now         func() time.Time
}

func (tg Toggler) now() time.Time {
	if tg.Now != nil {
		return tg.Now()
	}
	return time.Now()
}

// Toggle moves t to the next status in its chain.
func (tg Toggler) Toggle(t Task) ([]Task, error) {
	return tg.ToggleTo(t, status.Empty)
}

// ToggleTo moves t to target, or to the next status in its chain when target
// is Empty. When a recurring task becomes completed the result is
// [next occurrence, toggled task]; otherwise it is [toggled task]. The only
// error is a status with nothing registered after it.
func (tg Toggler) ToggleTo(t Task, target status.Status) ([]Task, error) {
	next := target
	if next.IsEmpty() {
		next = tg.Codec.Registry.Next(t.Status)
	}
	if next.IsEmpty() {
		return nil, fmt.Errorf("%w: no status follows %q", ErrUnknownStatus, t.Status.Indicator)
	}

	var done *time.Time
	var following *Task

	if next.Completed {
		today := StartOfDay(tg.now())
		if tg.SetDoneDate {
			done = datePtr(today)
		}

		if t.Recurrence != nil && tg.Recurrence != nil {
			from := Occurrence{Start: t.Start, Scheduled: t.Scheduled, Due: t.Due}
			// a rule the service cannot interpret completes the task without
			// a successor
			occ, ok, err := tg.Recurrence.Next(t.Recurrence.Rule, from, today)
			if err == nil && ok {
				n := t
				n.Start, n.Scheduled, n.Due = occ.Start, occ.Scheduled, occ.Due
				n.Recurrence = &Recurrence{Rule: t.Recurrence.Rule, Start: occ.Start, Scheduled: occ.Scheduled, Due: occ.Due}
				n.BlockLink = ""
				following = &n
			}
		}
	}

	toggled := t
	toggled.Status = next
	toggled.Done = done

	if following != nil {
		return []Task{*following, toggled}, nil
	}
	return []Task{toggled}, nil
}

// ToggleLine applies an editor-style toggle to a raw line: plain text becomes
// a list item, a list item becomes a checklist item with indicator, a
// checklist item outside the global filter gets indicator, and a managed task
// is toggled to the status registered for indicator. An empty indicator
// moves a managed task to its next status and checks other lines as " ".
// The result may span two lines when a recurring task spawns its next
// occurrence.
func (tg Toggler) ToggleLine(line, path, indicator string) (string, error) {
	t, ok, err := tg.Codec.Decode(line, Location{Path: path})
	if err != nil {
		return "", err
	}

	if ok {
		target := status.Empty
		if indicator != "" {
			if target = tg.Codec.Registry.ByIndicator(indicator); target.IsEmpty() {
				return "", fmt.Errorf("%w: %q", ErrUnknownStatus, indicator)
			}
		}
		tasks, err := tg.ToggleTo(t, target)
		if err != nil {
			return "", err
		}
		lines := make([]string, 0, len(tasks))
		for _, nt := range tasks {
			lines = append(lines, tg.Codec.FileLine(nt))
		}
		return strings.Join(lines, "\n"), nil
	}

	if indicator == "" {
		indicator = " "
	}

	if m := taskRe.FindStringSubmatch(line); m != nil {
		return m[1] + "- [" + indicator + "] " + m[3], nil
	}

	if listItemRe.MatchString(line) {
		return listItemRe.ReplaceAllString(line, "${1}${2} ["+indicator+"]"), nil
	}

	indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
	return indent + "- " + line[len(indent):], nil
}
