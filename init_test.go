package main

import (
	"bytes"
	"errors"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/BurntSushi/toml"

	"github.com/phobologic/rubysense/internal/config"
)

func TestUpsertSection(t *testing.T) {
	t.Parallel()

	section := sentinelStart + "\nv2\n" + sentinelEnd
	old := sentinelStart + "\nv1\n" + sentinelEnd

	tests := []struct {
		name    string
		content string
		want    string
		changed bool
		err     error
	}{
		{"empty", "", section + "\n", true, nil},
		{"append without newline", "# App", "# App\n\n" + section + "\n", true, nil},
		{"append", "# App\n", "# App\n\n" + section + "\n", true, nil},
		{"replace", "# App\n\n" + old + "\n\n## Notes\n", "# App\n\n" + section + "\n\n## Notes\n", true, nil},
		{"current", "# App\n\n" + section + "\n", "# App\n\n" + section + "\n", false, nil},
		{"unterminated", "# App\n" + sentinelStart + "\nv1\n", "", false, errUnterminated},
		{"stray end", "# App\n" + sentinelEnd + "\n", "", false, errStrayEnd},
		{"duplicate", old + "\n" + old + "\n", "", false, errDuplicateSect},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, changed, err := upsertSection(tt.content, section)
			if !errors.Is(err, tt.err) {
				t.Fatalf("err = %v, want %v", err, tt.err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
			if changed != tt.changed {
				t.Errorf("changed = %t, want %t", changed, tt.changed)
			}
		})
	}
}

// tomlBlock returns the body of the fenced toml block in section.
func tomlBlock(t *testing.T, section string) string {
	t.Helper()
	_, rest, ok := strings.Cut(section, "```toml\n")
	if !ok {
		t.Fatalf("no toml block in:\n%s", section)
	}
	body, _, ok := strings.Cut(rest, "```\n")
	if !ok {
		t.Fatalf("unterminated toml block in:\n%s", section)
	}
	return body
}

func TestGuideSectionDefaults(t *testing.T) {
	t.Parallel()

	section, err := guideSection(config.Default())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(section, sentinelStart+"\n") || !strings.HasSuffix(section, "\n"+sentinelEnd) {
		t.Errorf("section not wrapped in sentinels:\n%s", section)
	}
	for _, c := range commands {
		if c.example != "" && !strings.Contains(section, c.example) {
			t.Errorf("section missing %s example %q", c.name, c.example)
		}
	}
	for _, f := range []string{"`-root`", "`-config`", "`-offset`"} {
		if !strings.Contains(section, f) {
			t.Errorf("section missing flag %s", f)
		}
	}
	if strings.Contains(section, "`--root`") {
		t.Error("section lists double-dash spellings")
	}

	var got config.Config
	if _, err := toml.Decode(tomlBlock(t, section), &got); err != nil {
		t.Fatalf("decoding defaults: %v", err)
	}
	want := config.Default()
	if got.MaxFileSize != want.MaxFileSize || got.VisibilityThreshold != want.VisibilityThreshold ||
		got.Builtins != want.Builtins || got.IndexTests != want.IndexTests || got.LogLevel != want.LogLevel {
		t.Errorf("decoded defaults = %+v, want %+v", got, *want)
	}
	if g, w := strings.Join(got.UniversalContainers, ","), strings.Join(want.UniversalContainers, ","); g != w {
		t.Errorf("universal_containers = %q, want %q", g, w)
	}
}

func TestGuideSectionFollowsConfig(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.MaxCandidates = 7
	cfg.Exclude = []string{"db/**"}
	section, err := guideSection(cfg)
	if err != nil {
		t.Fatal(err)
	}
	var got config.Config
	if _, err := toml.Decode(tomlBlock(t, section), &got); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if got.MaxCandidates != 7 || len(got.Exclude) != 1 || got.Exclude[0] != "db/**" {
		t.Errorf("decoded = %+v, want max_candidates 7 and exclude [db/**]", got)
	}
}

func TestUsageMatchesDispatch(t *testing.T) {
	t.Parallel()

	text := usage()
	for _, c := range commands {
		if !strings.Contains(text, c.name+" "+c.args) || !strings.Contains(text, c.summary) {
			t.Errorf("usage missing %s:\n%s", c.name, text)
		}
		var stdout, stderr bytes.Buffer
		if err := run([]string{c.name, "-h"}, &stdout, &stderr); !errors.Is(err, flag.ErrHelp) {
			t.Errorf("run %s -h = %v, want flag.ErrHelp", c.name, err)
		}
	}
}

func TestRunInit(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "CLAUDE.md")
	writeTestFile(t, filepath.Dir(path), "CLAUDE.md", "# App\n")
	read := func() string {
		t.Helper()
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		return string(data)
	}

	var stdout, stderr bytes.Buffer
	if err := run([]string{"init", path, "-check"}, &stdout, &stderr); !errors.Is(err, errStaleSection) {
		t.Fatalf("check before init = %v, want errStaleSection", err)
	}
	if err := run([]string{"init", path}, &stdout, &stderr); err != nil {
		t.Fatalf("init: %v", err)
	}
	written := read()
	if !strings.HasPrefix(written, "# App\n\n"+sentinelStart) {
		t.Errorf("existing content not kept:\n%s", written)
	}
	stdout.Reset()
	if err := run([]string{"init", "-check", path}, &stdout, &stderr); err != nil {
		t.Fatalf("check after init: %v", err)
	}
	if !strings.Contains(stdout.String(), "up to date") {
		t.Errorf("check output = %q", stdout.String())
	}

	tampered := strings.Replace(written, "rubysense outline", "rubysense outlines", 1)
	writeTestFile(t, filepath.Dir(path), "CLAUDE.md", tampered)
	if err := run([]string{"init", "-check", path}, &stdout, &stderr); !errors.Is(err, errStaleSection) {
		t.Errorf("check on edited section = %v, want errStaleSection", err)
	}

	stdout.Reset()
	if err := run([]string{"init", "-dry-run", path}, &stdout, &stderr); err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if stdout.String() != written {
		t.Errorf("dry run output differs from the repaired file:\n%s", stdout.String())
	}
	if read() != tampered {
		t.Error("dry run modified the file")
	}

	if err := run([]string{"init", path}, &stdout, &stderr); err != nil {
		t.Fatalf("second init: %v", err)
	}
	if got := read(); got != written {
		t.Errorf("second init = %q, want %q", got, written)
	}
}

func TestRunInitUnterminated(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	content := "# App\n" + sentinelStart + "\nhand edited\n"
	writeTestFile(t, dir, "CLAUDE.md", content)
	path := filepath.Join(dir, "CLAUDE.md")

	var stdout, stderr bytes.Buffer
	if err := run([]string{"init", path}, &stdout, &stderr); !errors.Is(err, errUnterminated) {
		t.Errorf("init = %v, want errUnterminated", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != content {
		t.Errorf("file changed to %q", data)
	}
}
