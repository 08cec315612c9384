package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func writeTestFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func createSampleRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeTestFile(t, dir, ".rubysense.toml", "builtins = false\n")
	writeTestFile(t, dir, "app/green.rb", `class Green < Base
  def red
  end

  def paint(color)
  end
end
`)
	writeTestFile(t, dir, "lib/base.rb", `class Base
  def shade
  end
end
`)
	return dir
}

func TestRunVersion(t *testing.T) {
	t.Parallel()

	for _, flag := range []string{"-V", "--version"} {
		var stdout, stderr bytes.Buffer
		if err := run([]string{flag}, &stdout, &stderr); err != nil {
			t.Fatalf("run %s: %v", flag, err)
		}
		if got := stdout.String(); got != "rubysense dev\n" {
			t.Errorf("run %s = %q, want %q", flag, got, "rubysense dev\n")
		}
	}
}

func TestRunUnknownCommand(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	if err := run(nil, &stdout, &stderr); err == nil {
		t.Error("expected error without a command")
	}
	err := run([]string{"frobnicate"}, &stdout, &stderr)
	if err == nil || !strings.Contains(err.Error(), "frobnicate") {
		t.Errorf("run frobnicate = %v, want unknown command error", err)
	}
	if !strings.Contains(stderr.String(), "Usage:") {
		t.Error("usage not printed for unknown command")
	}
}

func TestRunOutline(t *testing.T) {
	t.Parallel()
	dir := createSampleRepo(t)

	var stdout, stderr bytes.Buffer
	path := filepath.Join(dir, "app", "green.rb")
	if err := run([]string{"outline", path}, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v\nstderr: %s", err, stderr.String())
	}

	out := stdout.String()
	for _, want := range []string{
		"members[3]{depth,kind,name,line,signature}:",
		"0,class,Green,1,< Base",
		"1,method,Green#red,2",
		"1,method,Green#paint,5,(color)",
		"problems[0]",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("outline missing %q:\n%s", want, out)
		}
	}
}

func TestRunOutlineSyntaxError(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeTestFile(t, dir, "broken.rb", "class Broken\n  def red(\nend\n")

	var stdout, stderr bytes.Buffer
	err := run([]string{"outline", filepath.Join(dir, "broken.rb")}, &stdout, &stderr)
	if err == nil {
		t.Fatal("expected error for a file that does not parse")
	}
	if !strings.Contains(stdout.String(), "members[0]") {
		t.Errorf("failed outline should list no members:\n%s", stdout.String())
	}
	if strings.Contains(stdout.String(), "problems[0]") {
		t.Errorf("failed outline should list problems:\n%s", stdout.String())
	}
}

func TestRunOutlineNoFiles(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	if err := run([]string{"outline"}, &stdout, &stderr); err == nil {
		t.Error("expected error without files")
	}
}

func TestRunCheck(t *testing.T) {
	t.Parallel()
	dir := createSampleRepo(t)

	var stdout, stderr bytes.Buffer
	if err := run([]string{"check", "-root", dir}, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v\nstderr: %s", err, stderr.String())
	}
	out := stdout.String()
	for _, want := range []string{"files: 2\n", "failed: 0\n", "methods: 3\n", "containers: 2\n", "problems[0]"} {
		if !strings.Contains(out, want) {
			t.Errorf("check output missing %q:\n%s", want, out)
		}
	}
}

func TestRunCheckFailures(t *testing.T) {
	t.Parallel()
	dir := createSampleRepo(t)
	writeTestFile(t, dir, "lib/broken.rb", "class Broken\n  def red(\nend\n")

	var stdout, stderr bytes.Buffer
	err := run([]string{"check", dir}, &stdout, &stderr)
	if err == nil || !strings.Contains(err.Error(), "1 file(s) failed") {
		t.Fatalf("run = %v, want failure count", err)
	}
	if !strings.Contains(stdout.String(), "lib/broken.rb") {
		t.Errorf("check should name the broken file:\n%s", stdout.String())
	}
}

func TestRunCheckNotADirectory(t *testing.T) {
	t.Parallel()
	dir := createSampleRepo(t)

	var stdout, stderr bytes.Buffer
	err := run([]string{"check", "-root", filepath.Join(dir, "app", "green.rb")}, &stdout, &stderr)
	if err == nil || !strings.Contains(err.Error(), "not a directory") {
		t.Errorf("run = %v, want not a directory error", err)
	}
}

func TestRunCheckBadConfig(t *testing.T) {
	t.Parallel()
	dir := createSampleRepo(t)
	writeTestFile(t, dir, ".rubysense.toml", "max_candidates = -1\n")

	var stdout, stderr bytes.Buffer
	err := run([]string{"check", "-root", dir}, &stdout, &stderr)
	if err == nil || !strings.Contains(err.Error(), "max_candidates") {
		t.Errorf("run = %v, want config validation error", err)
	}
}

func TestRunCheckConfigFlag(t *testing.T) {
	t.Parallel()
	dir := createSampleRepo(t)
	cfgPath := filepath.Join(t.TempDir(), "alt.toml")
	writeTestFile(t, filepath.Dir(cfgPath), "alt.toml", "builtins = false\nexclude = [\"lib/**\"]\n")

	var stdout, stderr bytes.Buffer
	if err := run([]string{"check", "-root", dir, "-config", cfgPath}, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v\nstderr: %s", err, stderr.String())
	}
	for _, want := range []string{"files: 1\n", "methods: 2\n", "containers: 1\n"} {
		if !strings.Contains(stdout.String(), want) {
			t.Errorf("check with -config missing %q:\n%s", want, stdout.String())
		}
	}

	err := run([]string{"check", "-root", dir, "-config", filepath.Join(dir, "missing.toml")}, &stdout, &stderr)
	if err != nil {
		t.Errorf("missing config file should fall back to defaults: %v", err)
	}
}

func TestRunComplete(t *testing.T) {
	t.Parallel()
	dir := createSampleRepo(t)
	use := filepath.Join(dir, "use.rb")
	writeTestFile(t, dir, "use.rb", "g = Green.new\ng.")

	var stdout, stderr bytes.Buffer
	if err := run([]string{"complete", "-root", dir, use}, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v\nstderr: %s", err, stderr.String())
	}
	out := stdout.String()
	for _, want := range []string{
		"file: use.rb",
		"receiver: g",
		"type: Green",
		"candidates[3]{name,kind,owner,file,line,params,insert}:",
		"paint,method,Green,app/green.rb,5,(color),paint()",
		"red,method,Green,app/green.rb,2,\"\",red",
		"shade,method,Base,lib/base.rb,2,\"\",shade",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("complete output missing %q:\n%s", want, out)
		}
	}
}

func TestRunCompleteOffset(t *testing.T) {
	t.Parallel()
	dir := createSampleRepo(t)
	text := "g = Green.new\ng.r\n"
	writeTestFile(t, dir, "use.rb", text)
	use := filepath.Join(dir, "use.rb")

	var stdout, stderr bytes.Buffer
	offset := strconv.Itoa(strings.Index(text, "g.r") + len("g.r"))
	if err := run([]string{"complete", use, "-offset", offset, "-root", dir}, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v\nstderr: %s", err, stderr.String())
	}
	if !strings.Contains(stdout.String(), "candidates[1]") || !strings.Contains(stdout.String(), "red,method") {
		t.Errorf("completion at offset should only offer red:\n%s", stdout.String())
	}

	stdout.Reset()
	err := run([]string{"complete", "-offset", "4", "-root", dir, use}, &stdout, &stderr)
	if err == nil || !strings.Contains(err.Error(), "not a completion point") {
		t.Errorf("run = %v, want not a completion point", err)
	}
}

func TestReorderArgs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"flags first", []string{"-root", "app", "a.rb"}, []string{"-root", "app", "a.rb"}},
		{"positional first", []string{"a.rb", "-offset", "5"}, []string{"-offset", "5", "a.rb"}},
		{"mixed", []string{"-root", ".", "a.rb", "-offset", "5"}, []string{"-root", ".", "-offset", "5", "a.rb"}},
		{"config", []string{"a.rb", "--config", "x.toml"}, []string{"--config", "x.toml", "a.rb"}},
		{"no flags", []string{"."}, []string{"."}},
		{"no args", nil, nil},
		{"bool flag", []string{"-v", "a.rb"}, []string{"-v", "a.rb"}},
		{"double dash", []string{"-v", "--", "-odd.rb"}, []string{"-v", "-odd.rb"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := reorderArgs(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("len: got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("index %d: got %q, want %q (full: %v)", i, got[i], tt.want[i], got)
					break
				}
			}
		})
	}
}
