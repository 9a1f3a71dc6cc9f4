package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeGo(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLintRepositoryQueries(t *testing.T) {
	violations, err := lint([]string{filepath.Join("..", "..", "sqlinline")})
	if err != nil {
		t.Fatalf("lint: %v", err)
	}
	if len(violations) > 0 {
		var buf bytes.Buffer
		report(&buf, violations)
		t.Fatalf("unexpected violations:\n%s", buf.String())
	}
}

func TestLintFindsMissingAndDuplicateMarkers(t *testing.T) {
	dir := t.TempDir()
	writeGo(t, dir, "a.go", "package q\n\nconst QOne = `--sql 11111111-2222-4333-8444-555555555555\nselect 1`\n\nconst QBare = `select 2`\n")
	writeGo(t, dir, "b.go", "package q\n\nconst QTwo = `--sql 11111111-2222-4333-8444-555555555555\ncreate table if not exists t (id int)`\n\nconst Greeting = \"hello\"\n")

	violations, err := lint([]string{dir})
	if err != nil {
		t.Fatalf("lint: %v", err)
	}
	if len(violations) != 2 {
		t.Fatalf("expected 2 violations, got %+v", violations)
	}
	byName := map[string]string{}
	for _, v := range violations {
		byName[v.name] = v.message
	}
	if !strings.Contains(byName["QBare"], "missing") {
		t.Fatalf("QBare not reported: %+v", violations)
	}
	if !strings.Contains(byName["QTwo"], "QOne") {
		t.Fatalf("duplicate marker not reported: %+v", violations)
	}
}

func TestLintSkipsTestFiles(t *testing.T) {
	dir := t.TempDir()
	writeGo(t, dir, "q_test.go", "package q\n\nconst qFixture = `select 1`\n")
	violations, err := lint([]string{dir})
	if err != nil {
		t.Fatalf("lint: %v", err)
	}
	if len(violations) != 0 {
		t.Fatalf("test files should be skipped: %+v", violations)
	}
}
