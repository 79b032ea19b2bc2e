package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/elcuervo/otx/internal/query"
)

const queryFile = "# Weekly\n\n" +
	"```tasks\nnot done\ndue before tomorrow\n```\n\n" +
	"## Work\n\n" +
	"Some prose.\n\n" +
	"```tasks\nnot done\npath includes work\ngroup by filename\n```\n\n" +
	"## Database\n\n" +
	"```task-sql\n#group by status\nWHERE completed = 0 ORDER BY priority\n```\n\n" +
	"```js\nconsole.log(1)\n```\n"

func TestParseQueryBlocks(t *testing.T) {
	got := parseQueryBlocks(queryFile)

	want := []queryBlock{
		{Name: "", Kind: tasksBlock, Source: "not done\ndue before tomorrow\n"},
		{Name: "Work", Kind: tasksBlock, Source: "not done\npath includes work\ngroup by filename\n"},
		{Name: "Database", Kind: sqlBlock, Source: "#group by status\nWHERE completed = 0 ORDER BY priority\n"},
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("parseQueryBlocks() mismatch (-want +got):\n%s", diff)
	}
}

func TestCompileBlocks(t *testing.T) {
	sections := compileBlocks(parseQueryBlocks(queryFile), query.Options{})

	wantNames := []string{"Query", "Query", "QuerySql"}
	if len(sections) != len(wantNames) {
		t.Fatalf("got %d sections, want %d", len(sections), len(wantNames))
	}

	for i, s := range sections {
		if s.Engine.Name() != wantNames[i] {
			t.Errorf("section %d engine = %s, want %s", i, s.Engine.Name(), wantNames[i])
		}
		if s.Engine.Err() != "" {
			t.Errorf("section %d error: %s", i, s.Engine.Err())
		}
	}

	if g := sections[1].Engine.Grouping(); len(g) != 1 || g[0].Property != "filename" {
		t.Errorf("Work grouping = %+v", g)
	}
	if g := sections[2].Engine.Grouping(); len(g) != 1 || g[0].Property != "status" {
		t.Errorf("Database grouping = %+v", g)
	}
}

func TestLoadQueryBlocks(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "tasks.md")
	if err := os.WriteFile(path, []byte(strings.ReplaceAll(queryFile, "\n", "\r\n")), 0o644); err != nil {
		t.Fatal(err)
	}

	empty := filepath.Join(dir, "empty.md")
	if err := os.WriteFile(empty, []byte("# nothing here\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Run("file", func(t *testing.T) {
		blocks, err := loadQueryBlocks(&ResolvedProfile{Query: path, QueryIsFile: true})
		if err != nil {
			t.Fatal(err)
		}
		if len(blocks) != 3 {
			t.Fatalf("got %d blocks, want 3", len(blocks))
		}
		if strings.Contains(blocks[0].Source, "\r") {
			t.Errorf("line endings not normalised: %q", blocks[0].Source)
		}
	})

	t.Run("file without blocks", func(t *testing.T) {
		if _, err := loadQueryBlocks(&ResolvedProfile{Query: empty, QueryIsFile: true}); err == nil {
			t.Error("expected an error for a file without query blocks")
		}
	})

	t.Run("inline", func(t *testing.T) {
		blocks, err := loadQueryBlocks(&ResolvedProfile{Query: "not done; due today"})
		if err != nil {
			t.Fatal(err)
		}
		want := []queryBlock{{Kind: tasksBlock, Source: "not done\ndue today"}}
		if diff := cmp.Diff(want, blocks); diff != "" {
			t.Errorf("inline blocks mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("no query", func(t *testing.T) {
		blocks, err := loadQueryBlocks(&ResolvedProfile{})
		if err != nil {
			t.Fatal(err)
		}
		if len(blocks) != 1 || blocks[0].Source != "" {
			t.Errorf("blocks = %+v, want one empty query", blocks)
		}
	})
}
