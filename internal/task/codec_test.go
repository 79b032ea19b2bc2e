package task

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/elcuervo/otx/internal/status"
)

var ignoreOriginal = cmp.Options{
	cmpopts.IgnoreFields(Task{}, "OriginalMarkdown"),
	cmpopts.EquateEmpty(),
}

func mustDate(t *testing.T, value string) *time.Time {
	t.Helper()
	d, err := Date(value)
	if err != nil {
		t.Fatalf("Date(%q): %v", value, err)
	}
	return &d
}

func TestDecodeGlobalFilterScenario(t *testing.T) {
	codec := Codec{GlobalFilter: "#task", Registry: status.NewDefault()}
	line := "- [ ] #task call Jo 📅 2022-04-20 ⏫"

	got, ok, err := codec.Decode(line, Location{Path: "inbox.md"})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !ok {
		t.Fatal("expected line to decode")
	}

	want := Task{
		Status:           status.Todo,
		Description:      "call Jo",
		Path:             "inbox.md",
		Priority:         PriorityHigh,
		Due:              mustDate(t, "2022-04-20"),
		OriginalMarkdown: line,
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("Decode mismatch (-want +got):\n%s", diff)
	}

	if enc := codec.Encode(got, LayoutOptions{}); enc != "#task call Jo ⏫ 📅 2022-04-20" {
		t.Errorf("Encode = %q", enc)
	}
}

func TestDecodeNoMatch(t *testing.T) {
	tests := []struct {
		name   string
		filter string
		line   string
	}{
		{"plain text", "", "just some text"},
		{"list item", "", "- not a task"},
		{"missing brackets", "", "- [] nope"},
		{"heading", "", "# - [ ] heading"},
		{"no global filter", "#task", "- [ ] buy milk"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			codec := Codec{GlobalFilter: tt.filter, Registry: status.NewDefault()}
			_, ok, err := codec.Decode(tt.line, Location{})
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if ok {
				t.Errorf("Decode(%q) matched, want no match", tt.line)
			}
		})
	}
}

func TestDecodeUnknownStatus(t *testing.T) {
	codec := NewCodec()

	_, ok, err := codec.Decode("- [?] mystery", Location{})
	if !errors.Is(err, ErrUnknownStatus) {
		t.Fatalf("err = %v, want ErrUnknownStatus", err)
	}
	if ok {
		t.Error("expected ok=false on error")
	}
}

func TestDecodeFields(t *testing.T) {
	codec := NewCodec()

	tests := []struct {
		name string
		line string
		want Task
	}{
		{
			name: "tags stay in description",
			line: "- [ ] Do #work and #home/chores 📅 2022-01-01",
			want: Task{
				Status:      status.Todo,
				Description: "Do #work and #home/chores",
				Tags:        []string{"#work", "#home/chores"},
				Priority:    PriorityNone,
				Due:         mustDate(t, "2022-01-01"),
			},
		},
		{
			name: "block link",
			line: "- [ ] thing 📅 2022-01-01 ^abc-1",
			want: Task{
				Status:      status.Todo,
				Description: "thing",
				Priority:    PriorityNone,
				Due:         mustDate(t, "2022-01-01"),
				BlockLink:   "^abc-1",
			},
		},
		{
			name: "created date anywhere",
			line: "- [ ] thing ➕ 2022-01-01 📅 2022-02-02",
			want: Task{
				Status:      status.Todo,
				Description: "thing",
				Priority:    PriorityNone,
				Created:     mustDate(t, "2022-01-01"),
				Due:         mustDate(t, "2022-02-02"),
			},
		},
		{
			name: "tokens in any order",
			line: "- [x] thing ✅ 2022-01-03 ⏫ 🔁 every week 📅 2022-01-02",
			want: Task{
				Status:      status.Done,
				Description: "thing",
				Priority:    PriorityHigh,
				Due:         mustDate(t, "2022-01-02"),
				Done:        mustDate(t, "2022-01-03"),
				Recurrence:  &Recurrence{Rule: "every week", Due: mustDate(t, "2022-01-02")},
			},
		},
		{
			name: "alternate markers",
			line: "- [ ] thing ⌛ 2022-03-01 📆 2022-03-02 🛫 2022-02-27 🔽",
			want: Task{
				Status:      status.Todo,
				Description: "thing",
				Priority:    PriorityLow,
				Start:       mustDate(t, "2022-02-27"),
				Scheduled:   mustDate(t, "2022-03-01"),
				Due:         mustDate(t, "2022-03-02"),
			},
		},
		{
			name: "indentation and star bullet",
			line: "\t  * [X] nested 🔼",
			want: Task{
				Status:      status.Done,
				Description: "nested",
				Indentation: "\t  ",
				Priority:    PriorityMedium,
			},
		},
		{
			name: "marker in the middle is kept",
			line: "- [ ] ship 📅 2022-01-01 before lunch",
			want: Task{
				Status:      status.Todo,
				Description: "ship 📅 2022-01-01 before lunch",
				Priority:    PriorityNone,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := codec.Decode(tt.line, Location{})
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !ok {
				t.Fatal("expected match")
			}
			if diff := cmp.Diff(tt.want, got, ignoreOriginal); diff != "" {
				t.Errorf("Decode(%q) mismatch (-want +got):\n%s", tt.line, diff)
			}
		})
	}
}

func TestDecodeKeepsLocation(t *testing.T) {
	codec := NewCodec()
	loc := Location{Path: "work/notes.md", SectionStart: 4, SectionIndex: 2, PrecedingHeader: "Today"}

	got, _, err := codec.Decode("- [ ] thing", loc)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Location() != loc {
		t.Errorf("Location() = %+v, want %+v", got.Location(), loc)
	}
	if got.OriginalMarkdown != "- [ ] thing" {
		t.Errorf("OriginalMarkdown = %q", got.OriginalMarkdown)
	}
}

func TestDecodeCollapsesFilterGap(t *testing.T) {
	codec := Codec{GlobalFilter: "#task", Registry: status.NewDefault()}

	got, _, err := codec.Decode("- [ ] call #task Jo", Location{})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Description != "call Jo" {
		t.Errorf("Description = %q, want %q", got.Description, "call Jo")
	}
}

func TestEncodeLayout(t *testing.T) {
	codec := NewCodec()
	base := Task{
		Status:      status.Todo,
		Description: "water plants",
		Priority:    PriorityMedium,
		Start:       mustDate(t, "2022-01-01"),
		Scheduled:   mustDate(t, "2022-01-02"),
		Due:         mustDate(t, "2022-01-03"),
		Done:        mustDate(t, "2022-01-04"),
		Recurrence:  &Recurrence{Rule: "every day"},
		BlockLink:   "^w1",
	}

	tests := []struct {
		name   string
		layout LayoutOptions
		want   string
	}{
		{"full", LayoutOptions{}, "water plants 🔼 🔁 every day 🛫 2022-01-01 ⏳ 2022-01-02 📅 2022-01-03 ✅ 2022-01-04 ^w1"},
		{"short", LayoutOptions{ShortMode: true}, "water plants 🔼 🔁 🛫 ⏳ 📅 ✅ ^w1"},
		{"hidden", LayoutOptions{HidePriority: true, HideRecurrenceRule: true, HideStartDate: true, HideScheduledDate: true, HideDueDate: true, HideDoneDate: true}, "water plants ^w1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := codec.Encode(base, tt.layout); got != tt.want {
				t.Errorf("Encode = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEncodeAppendPlacement(t *testing.T) {
	codec := Codec{GlobalFilter: "#task", Placement: Append, Registry: status.NewDefault()}
	tk := Task{Status: status.Todo, Description: "call Jo", Priority: PriorityNone}

	if got := codec.Encode(tk, LayoutOptions{}); got != "call Jo #task" {
		t.Errorf("Encode = %q", got)
	}
	if got := codec.FileLine(tk); got != "- [ ] call Jo #task" {
		t.Errorf("FileLine = %q", got)
	}
}

func TestRoundTrip(t *testing.T) {
	due := mustDate(t, "2022-04-20")

	tests := []struct {
		name  string
		codec Codec
		task  Task
	}{
		{
			name:  "filter prefix",
			codec: Codec{GlobalFilter: "#task", Registry: status.NewDefault()},
			task: Task{
				Status:          status.Todo,
				Description:     "call Jo",
				Path:            "inbox.md",
				SectionStart:    3,
				SectionIndex:    1,
				PrecedingHeader: "Work",
				Priority:        PriorityHigh,
				Due:             due,
			},
		},
		{
			name:  "every field",
			codec: NewCodec(),
			task: Task{
				Status:      status.Done,
				Description: "water #home plants",
				Path:        "home.md",
				Indentation: "  ",
				Tags:        []string{"#home"},
				Priority:    PriorityLow,
				Start:       mustDate(t, "2022-04-01"),
				Scheduled:   mustDate(t, "2022-04-10"),
				Due:         due,
				Done:        mustDate(t, "2022-04-19"),
				Created:     mustDate(t, "2022-03-30"),
				Recurrence: &Recurrence{
					Rule:      "every week",
					Start:     mustDate(t, "2022-04-01"),
					Scheduled: mustDate(t, "2022-04-10"),
					Due:       due,
				},
				BlockLink: "^plants",
			},
		},
		{
			name:  "filter suffix",
			codec: Codec{GlobalFilter: "#todo", Placement: Append, Registry: status.NewDefault()},
			task: Task{
				Status:      status.InProgress,
				Description: "draft #writing post",
				Tags:        []string{"#writing"},
				Priority:    PriorityMedium,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := tt.codec.FileLine(tt.task)

			got, ok, err := tt.codec.Decode(line, tt.task.Location())
			if err != nil {
				t.Fatalf("Decode(%q): %v", line, err)
			}
			if !ok {
				t.Fatalf("Decode(%q) did not match", line)
			}
			if diff := cmp.Diff(tt.task, got, ignoreOriginal); diff != "" {
				t.Errorf("round trip of %q mismatch (-want +got):\n%s", line, diff)
			}
		})
	}
}

func TestLinkText(t *testing.T) {
	tests := []struct {
		path, header, want string
	}{
		{"work/notes.md", "", "notes"},
		{"work/notes.md", "Today", "notes > Today"},
		{"notes.md", "notes", "notes"},
		{"", "", ""},
	}

	for _, tt := range tests {
		tk := Task{Path: tt.path, PrecedingHeader: tt.header}
		if got := tk.LinkText(); got != tt.want {
			t.Errorf("LinkText(%q, %q) = %q, want %q", tt.path, tt.header, got, tt.want)
		}
	}
}
