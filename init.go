package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog/log"

	"github.com/phobologic/rubysense/internal/config"
)

const (
	sentinelStart = "<!-- rubysense:start -->"
	sentinelEnd   = "<!-- rubysense:end -->"
	defaultGuide  = "CLAUDE.md"
)

var (
	errStaleSection  = errors.New("rubysense section is missing or out of date")
	errUnterminated  = errors.New("rubysense section has no end marker")
	errStrayEnd      = errors.New("rubysense end marker without a start marker")
	errDuplicateSect = errors.New("more than one rubysense section")
)

// runInit writes the rubysense section of an agent guide, replacing an
// earlier version in place.
func runInit(args []string, stdout, stderr io.Writer) error {
	flags := flag.NewFlagSet("rubysense init", flag.ContinueOnError)
	flags.SetOutput(stderr)
	var dryRun, check bool
	flags.BoolVar(&dryRun, "dry-run", false, "print the updated file instead of writing it")
	flags.BoolVar(&check, "check", false, "fail when the section is missing or differs from this build's")
	flags.Usage = func() {
		_, _ = fmt.Fprintf(stderr, "Usage: rubysense init [-dry-run] [-check] [PATH]\n\n"+
			"Write the rubysense section to PATH (default %s). The section lists the\n"+
			"commands and the default %s of this build.\n\nFlags:\n", defaultGuide, config.FileName)
		flags.PrintDefaults()
	}
	if err := flags.Parse(reorderArgs(args)); err != nil {
		return err
	}

	path := defaultGuide
	if flags.NArg() > 0 {
		path = flags.Arg(0)
	}
	section, err := guideSection(config.Default())
	if err != nil {
		return err
	}
	existing, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	updated, changed, err := upsertSection(string(existing), section)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	switch {
	case check:
		if changed {
			return fmt.Errorf("%s: %w", path, errStaleSection)
		}
		_, _ = fmt.Fprintf(stdout, "%s: rubysense section is up to date\n", path)
		return nil
	case dryRun:
		_, _ = fmt.Fprint(stdout, updated)
		return nil
	case !changed:
		log.Debug().Str("path", path).Msg("init: section unchanged")
		_, _ = fmt.Fprintf(stderr, "%s is up to date\n", path)
		return nil
	}
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	_, _ = fmt.Fprintf(stderr, "wrote rubysense section to %s\n", path)
	return nil
}

// guideSection renders the sentinel-wrapped section from the command table,
// the value flags and cfg encoded as TOML.
func guideSection(cfg *config.Config) (string, error) {
	var b strings.Builder
	b.WriteString(sentinelStart + "\n")
	b.WriteString("## rubysense: Ruby outlines and completion\n\n")
	b.WriteString("Run `rubysense` through the Bash tool to list Ruby definitions and the methods\n" +
		"an expression responds to without reading whole files. Check `rubysense -version`\n" +
		"first and skip it when the binary is missing.\n\n")

	width := 0
	for _, c := range commands {
		width = max(width, len(c.example))
	}
	b.WriteString("```bash\n")
	for _, c := range commands {
		if c.example == "" {
			continue
		}
		fmt.Fprintf(&b, "%-*s  # %s\n", width, c.example, c.summary)
	}
	b.WriteString("```\n\n")

	fmt.Fprintf(&b, "Flags taking a value: %s. Run `rubysense <command> -h` for the rest.\n\n",
		strings.Join(valueFlags(), ", "))
	fmt.Fprintf(&b, "`%s` in the project root overrides these defaults; `%s` overrides `log_level`:\n\n",
		config.FileName, config.EnvLogLevel)
	b.WriteString("```toml\n")
	if err := toml.NewEncoder(&b).Encode(cfg); err != nil {
		return "", fmt.Errorf("encoding configuration: %w", err)
	}
	b.WriteString("```\n")
	b.WriteString(sentinelEnd)
	return b.String(), nil
}

// valueFlags returns the single-dash spelling of every flag that takes a
// value, sorted.
func valueFlags() []string {
	var out []string
	for name := range flagsWithValue {
		if !strings.HasPrefix(name, "--") {
			out = append(out, "`"+name+"`")
		}
	}
	sort.Strings(out)
	return out
}

// upsertSection replaces the sentinel block of content with section, or
// appends section after a blank line when content has none. changed is false
// when the block already matches.
func upsertSection(content, section string) (updated string, changed bool, err error) {
	start := strings.Index(content, sentinelStart)
	if start < 0 {
		if strings.Contains(content, sentinelEnd) {
			return "", false, errStrayEnd
		}
		if content != "" {
			if !strings.HasSuffix(content, "\n") {
				content += "\n"
			}
			content += "\n"
		}
		return content + section + "\n", true, nil
	}

	end := strings.Index(content[start:], sentinelEnd)
	if end < 0 {
		return "", false, errUnterminated
	}
	end += start + len(sentinelEnd)
	if strings.Contains(content[end:], sentinelStart) {
		return "", false, errDuplicateSect
	}
	if content[start:end] == section {
		return content, false, nil
	}
	return content[:start] + section + content[end:], true, nil
}
