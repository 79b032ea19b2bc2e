package status

import (
	"errors"
	"sync"
	"testing"
)

func TestByIndicator(t *testing.T) {
	r := NewDefault()

	tests := []struct {
		indicator string
		want      string
	}{
		{" ", "Todo"},
		{"x", "Done"},
		{"X", "Done"},
		{"/", "In Progress"},
		{"-", "Cancelled"},
		{"?", "EMPTY"},
		{"", "EMPTY"},
	}

	for _, tt := range tests {
		t.Run(tt.indicator, func(t *testing.T) {
			got := r.ByIndicator(tt.indicator)
			if got.Name != tt.want {
				t.Errorf("ByIndicator(%q) = %q, want %q", tt.indicator, got.Name, tt.want)
			}
		})
	}
}

func TestNextCycle(t *testing.T) {
	r := NewDefault()

	if got := r.Next(Todo); got != Done {
		t.Errorf("Next(Todo) = %+v, want Done", got)
	}
	if got := r.Next(Done); got != Todo {
		t.Errorf("Next(Done) = %+v, want Todo", got)
	}
	if got := r.Next(InProgress); got != Done {
		t.Errorf("Next(InProgress) = %+v, want Done", got)
	}
	if got := r.Next(Cancelled); got != Todo {
		t.Errorf("Next(Cancelled) = %+v, want Todo", got)
	}

	dangling := Status{Indicator: "!", Name: "Important", NextIndicator: "?"}
	if got := r.Next(dangling); !got.IsEmpty() {
		t.Errorf("Next with unregistered target = %+v, want Empty", got)
	}
}

func TestAddRejectsInvalid(t *testing.T) {
	r := NewDefault()

	if err := r.Add(Status{Indicator: "ab", Name: "Two"}); !errors.Is(err, ErrInvalidIndicator) {
		t.Errorf("Add two-char indicator: err = %v, want ErrInvalidIndicator", err)
	}
	if err := r.Add(Status{Indicator: "X", Name: "Other done"}); !errors.Is(err, ErrDuplicateIndicator) {
		t.Errorf("Add duplicate indicator: err = %v, want ErrDuplicateIndicator", err)
	}
	if err := r.Add(Status{Indicator: "!", Name: "Important", NextIndicator: "x"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if got := r.ByIndicator("!").Name; got != "Important" {
		t.Errorf("ByIndicator(!) = %q, want Important", got)
	}
	if got := len(r.Statuses()); got != 5 {
		t.Errorf("len(Statuses()) = %d, want 5", got)
	}
}

func TestByName(t *testing.T) {
	r := NewDefault()

	if got := r.ByName("in progress"); got != InProgress {
		t.Errorf("ByName(in progress) = %+v", got)
	}
	if got := r.ByName("nope"); !got.IsEmpty() {
		t.Errorf("ByName(nope) = %+v, want Empty", got)
	}
}

func TestClear(t *testing.T) {
	r := NewDefault()
	r.Clear()

	if got := r.ByIndicator("x"); !got.IsEmpty() {
		t.Errorf("after Clear ByIndicator(x) = %+v, want Empty", got)
	}
	if len(r.Statuses()) != 0 {
		t.Errorf("after Clear Statuses() not empty")
	}
}

func TestSharedReplaceIsWholesale(t *testing.T) {
	shared := NewShared(NewDefault())

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			n := len(shared.Load().Statuses())
			if n != 4 && n != 2 {
				t.Errorf("observed partial registry with %d statuses", n)
				return
			}
		}
	}()

	for i := 0; i < 100; i++ {
		if i%2 == 0 {
			shared.Replace(New(Todo, Done))
		} else {
			shared.Replace(NewDefault())
		}
	}

	close(stop)
	wg.Wait()
}
