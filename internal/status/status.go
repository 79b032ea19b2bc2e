// Package status holds the configurable set of checklist states and the
// transitions between them.
package status

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"unicode/utf8"
)

var (
	ErrInvalidIndicator   = errors.New("indicator must be a single character")
	ErrDuplicateIndicator = errors.New("indicator already registered")
)

// Status is one checklist state, identified by the character between the
// brackets of "- [c]".
type Status struct {
	Indicator     string
	Name          string
	NextIndicator string
	Completed     bool
}

// Empty is returned for indicators that are not registered.
var Empty = Status{Name: "EMPTY"}

func (s Status) IsEmpty() bool {
	return s == Empty
}

var (
	Todo       = Status{Indicator: " ", Name: "Todo", NextIndicator: "x"}
	Done       = Status{Indicator: "x", Name: "Done", NextIndicator: " ", Completed: true}
	InProgress = Status{Indicator: "/", Name: "In Progress", NextIndicator: "x"}
	Cancelled  = Status{Indicator: "-", Name: "Cancelled", NextIndicator: " "}
)

// Defaults returns the built-in statuses.
func Defaults() []Status {
	return []Status{Todo, Done, InProgress, Cancelled}
}

// Registry maps indicators to statuses. Lookups are case-insensitive on the
// indicator.
type Registry struct {
	order  []string
	byChar map[string]Status
}

// New builds a registry from statuses. Invalid or duplicate entries are
// skipped; use Add to observe the error.
func New(statuses ...Status) *Registry {
	r := &Registry{byChar: make(map[string]Status)}
	for _, s := range statuses {
		_ = r.Add(s)
	}
	return r
}

// NewDefault returns a registry holding Defaults.
func NewDefault() *Registry {
	return New(Defaults()...)
}

func (r *Registry) Add(s Status) error {
	if utf8.RuneCountInString(s.Indicator) != 1 {
		return fmt.Errorf("status %q: %w", s.Name, ErrInvalidIndicator)
	}

	key := strings.ToLower(s.Indicator)
	if _, exists := r.byChar[key]; exists {
		return fmt.Errorf("status %q (%q): %w", s.Name, s.Indicator, ErrDuplicateIndicator)
	}

	r.byChar[key] = s
	r.order = append(r.order, key)

	return nil
}

func (r *Registry) Clear() {
	r.order = nil
	r.byChar = make(map[string]Status)
}

// ByIndicator returns the status registered for indicator, or Empty.
func (r *Registry) ByIndicator(indicator string) Status {
	if r == nil {
		return Empty
	}
	if s, ok := r.byChar[strings.ToLower(indicator)]; ok {
		return s
	}
	return Empty
}

// ByName returns the first status whose name matches case-insensitively, or Empty.
func (r *Registry) ByName(name string) Status {
	if r == nil {
		return Empty
	}
	for _, key := range r.order {
		if s := r.byChar[key]; strings.EqualFold(s.Name, name) {
			return s
		}
	}
	return Empty
}

// Next returns the status s transitions to when toggled.
func (r *Registry) Next(s Status) Status {
	return r.ByIndicator(s.NextIndicator)
}

// Statuses returns the registered statuses in insertion order.
func (r *Registry) Statuses() []Status {
	if r == nil {
		return nil
	}
	out := make([]Status, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.byChar[key])
	}
	return out
}

// Shared publishes a registry to concurrent readers. A published registry
// must not be mutated; build a new one and Replace it.
type Shared struct {
	current atomic.Pointer[Registry]
}

func NewShared(r *Registry) *Shared {
	s := &Shared{}
	s.Replace(r)
	return s
}

func (s *Shared) Load() *Registry {
	if r := s.current.Load(); r != nil {
		return r
	}
	return NewDefault()
}

func (s *Shared) Replace(r *Registry) {
	s.current.Store(r)
}
