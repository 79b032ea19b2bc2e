package task

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/elcuervo/otx/internal/status"
)

type weeklyRecurrer struct {
	calls int
}

func (w *weeklyRecurrer) Next(rule string, from Occurrence, today time.Time) (Occurrence, bool, error) {
	w.calls++
	shift := func(d *time.Time) *time.Time {
		if d == nil {
			return nil
		}
		n := d.AddDate(0, 0, 7)
		return &n
	}
	return Occurrence{Start: shift(from.Start), Scheduled: shift(from.Scheduled), Due: shift(from.Due)}, true, nil
}

type failingRecurrer struct{}

func (failingRecurrer) Next(string, Occurrence, time.Time) (Occurrence, bool, error) {
	return Occurrence{}, false, errors.New("boom")
}

func fixedNow() time.Time {
	return time.Date(2022, 4, 21, 15, 30, 0, 0, time.UTC)
}

func TestToggleSimple(t *testing.T) {
	tg := Toggler{Codec: NewCodec(), SetDoneDate: true, Now: fixedNow}
	tk := Task{Status: status.Todo, Description: "call Jo", Priority: PriorityNone}

	got, err := tg.Toggle(tk)
	if err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].Status != status.Done {
		t.Errorf("Status = %+v, want Done", got[0].Status)
	}
	if got[0].Done == nil || got[0].Done.Format(DateFormat) != "2022-04-21" {
		t.Errorf("Done = %v, want 2022-04-21", got[0].Done)
	}

	back, err := tg.Toggle(got[0])
	if err != nil {
		t.Fatalf("Toggle back: %v", err)
	}
	if back[0].Status != status.Todo || back[0].Done != nil {
		t.Errorf("toggle back = %+v, want Todo without done date", back[0])
	}
}

func TestToggleWithoutDoneDatePolicy(t *testing.T) {
	tg := Toggler{Codec: NewCodec(), Now: fixedNow}

	got, err := tg.Toggle(Task{Status: status.Todo, Description: "x"})
	if err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	if got[0].Done != nil {
		t.Errorf("Done = %v, want nil", got[0].Done)
	}
}

func TestToggleRecurringOrdering(t *testing.T) {
	rec := &weeklyRecurrer{}
	tg := Toggler{Codec: NewCodec(), Recurrence: rec, SetDoneDate: true, Now: fixedNow}

	due := mustDate(t, "2022-04-20")
	tk := Task{
		Status:      status.Todo,
		Description: "water plants",
		Priority:    PriorityNone,
		Due:         due,
		Recurrence:  &Recurrence{Rule: "every week", Due: due},
		BlockLink:   "^plants",
	}

	got, err := tg.Toggle(tk)
	if err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}

	next, toggled := got[0], got[1]

	if next.Status != status.Todo {
		t.Errorf("next.Status = %+v, want Todo", next.Status)
	}
	if next.BlockLink != "" {
		t.Errorf("next.BlockLink = %q, want empty", next.BlockLink)
	}
	if next.Due.Format(DateFormat) != "2022-04-27" {
		t.Errorf("next.Due = %v, want 2022-04-27", next.Due)
	}
	if next.Done != nil {
		t.Errorf("next.Done = %v, want nil", next.Done)
	}

	if toggled.Status != status.Done {
		t.Errorf("toggled.Status = %+v, want Done", toggled.Status)
	}
	if toggled.BlockLink != "^plants" {
		t.Errorf("toggled.BlockLink = %q", toggled.BlockLink)
	}
	if diff := cmp.Diff(due, toggled.Due); diff != "" {
		t.Errorf("toggled due changed (-want +got):\n%s", diff)
	}

	// source task untouched
	if tk.Status != status.Todo || tk.BlockLink != "^plants" || tk.Due.Format(DateFormat) != "2022-04-20" {
		t.Errorf("source task mutated: %+v", tk)
	}
}

func TestToggleRecurringToNotCompleted(t *testing.T) {
	rec := &weeklyRecurrer{}
	tg := Toggler{Codec: NewCodec(), Recurrence: rec, Now: fixedNow}
	tk := Task{Status: status.Todo, Recurrence: &Recurrence{Rule: "every week"}}

	got, err := tg.ToggleTo(tk, status.InProgress)
	if err != nil {
		t.Fatalf("ToggleTo: %v", err)
	}
	if len(got) != 1 || got[0].Status != status.InProgress {
		t.Errorf("got %+v, want single In Progress task", got)
	}
	if rec.calls != 0 {
		t.Errorf("recurrence consulted %d times, want 0", rec.calls)
	}
}

func TestToggleErrors(t *testing.T) {
	tg := Toggler{Codec: NewCodec(), Now: fixedNow}

	orphan := Task{Status: status.Status{Indicator: "!", Name: "Important", NextIndicator: "?"}}
	if _, err := tg.Toggle(orphan); !errors.Is(err, ErrUnknownStatus) {
		t.Errorf("Toggle orphan: err = %v, want ErrUnknownStatus", err)
	}

}

func TestToggleCompletesTaskWithUnreadableRule(t *testing.T) {
	tg := Toggler{Codec: NewCodec(), Recurrence: failingRecurrer{}, Now: fixedNow}

	rec := Task{Status: status.Todo, Description: "pay rent", Recurrence: &Recurrence{Rule: "every month on the last friday"}}
	got, err := tg.Toggle(rec)
	if err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	if len(got) != 1 || got[0].Status != status.Done || got[0].Description != "pay rent" {
		t.Errorf("got %+v, want the completed task alone", got)
	}
}

func TestToggleLine(t *testing.T) {
	tg := Toggler{Codec: NewCodec(), SetDoneDate: true, Now: fixedNow}

	tests := []struct {
		name      string
		line      string
		indicator string
		want      string
	}{
		{"plain text", "buy milk", "x", "- buy milk"},
		{"indented text", "  buy milk", "x", "  - buy milk"},
		{"list item", "- buy milk", "x", "- [x] buy milk"},
		{"task", "- [ ] buy milk", "x", "- [x] buy milk ✅ 2022-04-21"},
		{"task back to todo", "- [x] buy milk ✅ 2022-04-20", " ", "- [ ] buy milk"},
		{"task to next status", "- [ ] buy milk", "", "- [x] buy milk ✅ 2022-04-21"},
		{"list item without indicator", "- buy milk", "", "- [ ] buy milk"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tg.ToggleLine(tt.line, "inbox.md", tt.indicator)
			if err != nil {
				t.Fatalf("ToggleLine: %v", err)
			}
			if got != tt.want {
				t.Errorf("ToggleLine(%q) = %q, want %q", tt.line, got, tt.want)
			}
		})
	}
}

func TestToggleLineOutsideGlobalFilter(t *testing.T) {
	tg := Toggler{Codec: Codec{GlobalFilter: "#task", Registry: status.NewDefault()}, Now: fixedNow}

	got, err := tg.ToggleLine("- [ ] not managed", "inbox.md", "x")
	if err != nil {
		t.Fatalf("ToggleLine: %v", err)
	}
	if got != "- [x] not managed" {
		t.Errorf("ToggleLine = %q", got)
	}
}

func TestToggleLineRecurringWritesTwoLines(t *testing.T) {
	tg := Toggler{Codec: NewCodec(), Recurrence: &weeklyRecurrer{}, Now: fixedNow}

	got, err := tg.ToggleLine("- [ ] water 🔁 every week 📅 2022-04-20", "home.md", "x")
	if err != nil {
		t.Fatalf("ToggleLine: %v", err)
	}

	want := "- [ ] water 🔁 every week 📅 2022-04-27\n- [x] water 🔁 every week 📅 2022-04-20"
	if got != want {
		t.Errorf("ToggleLine = %q, want %q", got, want)
	}
}
