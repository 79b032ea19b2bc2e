package query

import (
	"path"
	"slices"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/elcuervo/otx/internal/task"
)

// Heading is emitted when a group starts a new value at Level (0 is the
// outermost grouping).
type Heading struct {
	Level int
	Name  string
}

// Group is one bucket of results. Names holds one value per grouping.
type Group struct {
	Names    []string
	Headings []Heading
	Tasks    []task.Task
}

// Groups is the evaluated result of a query.
type Groups struct {
	Groupings []Grouping
	Groups    []Group
}

// TotalCount sums the tasks of every group.
func (g Groups) TotalCount() int {
	total := 0
	for _, group := range g.Groups {
		total += len(group.Tasks)
	}
	return total
}

// Tasks flattens the groups in display order.
func (g Groups) Tasks() []task.Task {
	out := make([]task.Task, 0, g.TotalCount())
	for _, group := range g.Groups {
		out = append(out, group.Tasks...)
	}
	return out
}

// GroupName returns the value a task is bucketed under for property.
func GroupName(property string, t task.Task) string {
	switch property {
	case "backlink":
		if link := t.LinkText(); link != "" {
			return link
		}
		return "Unknown Location"
	case "filename":
		if name := t.Filename(); name != "" {
			return "[[" + name + "]]"
		}
		return "Unknown Location"
	case "folder":
		dir := path.Dir(t.Path)
		if dir == "." || dir == "/" || dir == "" {
			return "/"
		}
		return dir + "/"
	case "heading":
		if t.PrecedingHeader == "" {
			return "(No heading)"
		}
		return t.PrecedingHeader
	case "path":
		return strings.TrimSuffix(t.Path, ".md")
	case "status":
		return t.Status.Name
	}
	return ""
}

// OrderedMap keeps keys in insertion order.
type OrderedMap[K comparable, V any] struct {
	data  map[K]V
	order []K
}

func NewOrderedMap[K comparable, V any]() *OrderedMap[K, V] {
	return &OrderedMap[K, V]{data: make(map[K]V)}
}

func (m *OrderedMap[K, V]) Set(key K, value V) {
	if _, exists := m.data[key]; !exists {
		m.order = append(m.order, key)
	}
	m.data[key] = value
}

func (m *OrderedMap[K, V]) Get(key K) (V, bool) {
	v, ok := m.data[key]
	return v, ok
}

func (m *OrderedMap[K, V]) Keys() []K {
	return m.order
}

// groupTasks buckets sorted tasks, keeping their relative order inside each
// bucket, and orders buckets by their names.
func groupTasks(tasks []task.Task, groupings []Grouping) Groups {
	result := Groups{Groupings: groupings}

	if len(groupings) == 0 {
		result.Groups = []Group{{Tasks: tasks}}
		return result
	}

	buckets := NewOrderedMap[string, *Group]()

	for _, t := range tasks {
		names := make([]string, len(groupings))
		for i, g := range groupings {
			names[i] = GroupName(g.Property, t)
		}

		key := strings.Join(names, "\x00")
		group, ok := buckets.Get(key)
		if !ok {
			group = &Group{Names: names}
			buckets.Set(key, group)
		}
		group.Tasks = append(group.Tasks, t)
	}

	groups := make([]Group, 0, len(buckets.Keys()))
	for _, key := range buckets.Keys() {
		g, _ := buckets.Get(key)
		groups = append(groups, *g)
	}

	c := collate.New(language.Und, collate.Numeric)
	slices.SortStableFunc(groups, func(a, b Group) int {
		for i := range a.Names {
			if r := c.CompareString(a.Names[i], b.Names[i]); r != 0 {
				return r
			}
		}
		return 0
	})

	var previous []string
	for i := range groups {
		changed := previous == nil
		for level, name := range groups[i].Names {
			if !changed && previous[level] != name {
				changed = true
			}
			if changed {
				groups[i].Headings = append(groups[i].Headings, Heading{Level: level, Name: name})
			}
		}
		previous = groups[i].Names
	}

	result.Groups = groups
	return result
}
