package query

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/elcuervo/otx/internal/store"
	"github.com/elcuervo/otx/internal/task"
)

var (
	selectRe     = regexp.MustCompile(`(?i)^\s*select\s`)
	sqlCommentRe = regexp.MustCompile(`(?m)^\s*#.*$\n?`)
)

// SQLQuery evaluates a SQL clause against the "tasks" table built from the
// snapshot. Lines starting with # are directives: "#short", "#hide <field>"
// and "#group by <property>". The remaining text is either a full SELECT
// whose first column is the task id, or a clause appended to
// "SELECT id FROM tasks".
type SQLQuery struct {
	source    string
	statement string
	layout    task.LayoutOptions
	grouping  []Grouping
	err       string
}

func ParseSQL(source string) *SQLQuery {
	q := &SQLQuery{source: source}

	for _, raw := range strings.Split(source, "\n") {
		line := strings.TrimSpace(raw)
		if !strings.HasPrefix(line, "#") {
			continue
		}

		directive := strings.TrimSpace(strings.TrimPrefix(line, "#"))
		switch {
		case shortModeRe.MatchString(directive):
			q.layout.ShortMode = true
		case hideRe.MatchString(directive):
			applyHide(&q.layout, hideRe.FindStringSubmatch(directive)[1])
		case groupByRe.MatchString(directive):
			q.grouping = append(q.grouping, Grouping{Property: groupByRe.FindStringSubmatch(directive)[1]})
		}
	}

	body := strings.TrimSpace(sqlCommentRe.ReplaceAllString(source, ""))
	body = strings.TrimSuffix(body, ";")

	if strings.Contains(body, ";") {
		q.err = "only a single SQL statement is supported"
		return q
	}

	if selectRe.MatchString(body) {
		q.statement = body
	} else {
		q.statement = strings.TrimSpace("SELECT id FROM tasks " + body)
	}

	return q
}

func (q *SQLQuery) Name() string { return "QuerySql" }

func (q *SQLQuery) Source() string { return q.source }

func (q *SQLQuery) SourceHash() string { return sourceHash(q.source) }

func (q *SQLQuery) Err() string { return q.err }

func (q *SQLQuery) Layout() task.LayoutOptions { return q.layout }

func (q *SQLQuery) Grouping() []Grouping { return q.grouping }

// Statement is the SQL actually executed.
func (q *SQLQuery) Statement() string { return q.statement }

// Apply loads tasks into a private in-memory database, runs the statement
// and groups the selected tasks in the order the statement returned them.
func (q *SQLQuery) Apply(ctx context.Context, tasks []task.Task) (Groups, error) {
	if q.err != "" {
		return Groups{}, ErrInvalidQuery
	}

	db, err := store.OpenMemory(ctx)
	if err != nil {
		return Groups{}, err
	}
	defer db.Close()

	if err := db.Load(ctx, tasks); err != nil {
		return Groups{}, err
	}

	ids, err := db.SelectIDs(ctx, q.statement)
	if err != nil {
		return Groups{}, fmt.Errorf("run %q: %w", q.statement, err)
	}

	selected := make([]task.Task, 0, len(ids))
	for _, id := range ids {
		if id < 0 || id >= len(tasks) {
			continue
		}
		selected = append(selected, tasks[id])
	}

	return groupTasks(selected, q.grouping), nil
}
