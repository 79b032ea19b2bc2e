// Package dateparse turns the date operands of query filters into calendar
// dates.
package dateparse

import (
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"github.com/elcuervo/otx/internal/task"
)

// Parser resolves ISO dates, the relative words today/tomorrow/yesterday and
// English natural language ("next friday", "in 3 days").
type Parser struct {
	Now func() time.Time

	natural *when.Parser
}

func New() *Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	return &Parser{Now: time.Now, natural: w}
}

func (p *Parser) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// Parse returns the start of the day text refers to.
func (p *Parser) Parse(text string) (time.Time, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, false
	}

	if d, err := task.Date(text); err == nil {
		return d, true
	}

	today := task.StartOfDay(p.now())

	switch strings.ToLower(text) {
	case "today":
		return today, true
	case "tomorrow":
		return today.AddDate(0, 0, 1), true
	case "yesterday":
		return today.AddDate(0, 0, -1), true
	}

	if p.natural == nil {
		return time.Time{}, false
	}

	r, err := p.natural.Parse(text, p.now())
	if err != nil || r == nil {
		return time.Time{}, false
	}

	return task.StartOfDay(r.Time), true
}
