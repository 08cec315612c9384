// rubysense indexes Ruby sources and answers completion queries over them.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/phobologic/rubysense/internal/analyzer"
	"github.com/phobologic/rubysense/internal/config"
	"github.com/phobologic/rubysense/internal/model"
	"github.com/phobologic/rubysense/internal/parse"
	"github.com/phobologic/rubysense/internal/resolver"
	"github.com/phobologic/rubysense/internal/toon"
	"github.com/phobologic/rubysense/internal/workspace"
)

var version = "dev"

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// command describes a subcommand for the usage text and the generated
// agent guide.
type command struct {
	name    string
	args    string
	summary string
	example string
}

var commands = []command{
	{"outline", "FILE...", "print the structural outline of Ruby files", "rubysense outline app/models/user.rb"},
	{"check", "[-root DIR]", "index a tree and report extraction problems", "rubysense check -root ."},
	{"complete", "-offset N FILE", "list completion candidates at a byte offset", "rubysense complete -offset 120 app/models/user.rb"},
	{"watch", "[-root DIR]", "index a tree and follow changes until interrupted", "rubysense watch -root ."},
	{"init", "[-dry-run] [-check] [PATH]", "write the rubysense section of a CLAUDE.md file", ""},
}

func usage() string {
	var b strings.Builder
	b.WriteString("Usage: rubysense <command> [flags] [args]\n\nCommands:\n")
	for _, c := range commands {
		fmt.Fprintf(&b, "  %-36s %s\n", c.name+" "+c.args, c.summary)
	}
	b.WriteString("\nRun 'rubysense <command> -h' for command flags.\n")
	return b.String()
}

func run(args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		_, _ = fmt.Fprint(stderr, usage())
		return errors.New("no command given")
	}

	switch cmd, rest := args[0], args[1:]; cmd {
	case "-V", "--V", "-version", "--version":
		_, _ = fmt.Fprintf(stdout, "rubysense %s\n", version)
		return nil
	case "-h", "--help", "help":
		_, _ = fmt.Fprint(stdout, usage())
		return nil
	case "outline":
		return runOutline(rest, stdout, stderr)
	case "check":
		return runCheck(rest, stdout, stderr)
	case "complete":
		return runComplete(rest, stdout, stderr)
	case "watch":
		return runWatch(rest, stdout, stderr)
	case "init":
		return runInit(rest, stdout, stderr)
	default:
		_, _ = fmt.Fprint(stderr, usage())
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// common holds the flags shared by the commands that index a tree.
type common struct {
	root       string
	configPath string
	verbose    bool
}

func (c *common) register(fs *flag.FlagSet) {
	fs.StringVar(&c.root, "root", ".", "project root to index")
	fs.StringVar(&c.configPath, "config", "", "configuration file (default ROOT/"+config.FileName+")")
	fs.BoolVar(&c.verbose, "v", false, "log debug output to stderr")
}

// open loads configuration and the workspace for the root.
func (c *common) open(ctx context.Context) (*workspace.Workspace, workspace.Summary, error) {
	root, err := filepath.Abs(c.root)
	if err != nil {
		return nil, workspace.Summary{}, fmt.Errorf("resolving root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, workspace.Summary{}, fmt.Errorf("root path: %w", err)
	}
	if !info.IsDir() {
		return nil, workspace.Summary{}, fmt.Errorf("%s: not a directory", root)
	}

	var cfg *config.Config
	if c.configPath != "" {
		cfg, err = config.Load(c.configPath)
	} else {
		cfg, err = config.LoadDir(root)
	}
	if err != nil {
		return nil, workspace.Summary{}, err
	}
	setLogLevel(cfg, c.verbose)

	ws := workspace.New(root, cfg)
	summary, err := ws.Load(ctx)
	if err != nil {
		return nil, summary, err
	}
	return ws, summary, nil
}

func setLogLevel(cfg *config.Config, verbose bool) {
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		return
	}
	zerolog.SetGlobalLevel(cfg.Level())
}

func runOutline(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("rubysense outline", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var verbose bool
	fs.BoolVar(&verbose, "v", false, "log debug output to stderr")
	if err := fs.Parse(reorderArgs(args)); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("outline: no files given")
	}
	setLogLevel(config.Default(), verbose)

	var failed []error
	for i, path := range fs.Args() {
		src, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		ex := parse.Extract(context.Background(), path, src)
		if i > 0 {
			_, _ = fmt.Fprintln(stdout)
		}
		_, _ = fmt.Fprintln(stdout, toon.EncodeOutline(path, ex.Forest, ex.Problems))
		if err := parse.Err(path, ex); err != nil {
			failed = append(failed, err)
		}
	}
	return errors.Join(failed...)
}

func runCheck(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("rubysense check", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var c common
	c.register(fs)
	if err := fs.Parse(reorderArgs(args)); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		c.root = fs.Arg(0)
	}

	ws, summary, err := c.open(context.Background())
	if err != nil {
		return err
	}
	stats := ws.Cache().Stats()
	_, _ = fmt.Fprintf(stdout, "files: %d\nfailed: %d\nmethods: %d\ncontainers: %d\n",
		summary.Files, summary.Failed, stats.Methods, stats.Containers)
	_, _ = fmt.Fprintln(stdout, toon.EncodeProblems(summary.Paths(), summary.Problems))
	if summary.Failed > 0 {
		return fmt.Errorf("%d file(s) failed to parse", summary.Failed)
	}
	return nil
}

func runComplete(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("rubysense complete", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		c      common
		offset int
		all    bool
	)
	c.register(fs)
	fs.IntVar(&offset, "offset", -1, "caret byte offset (default end of file)")
	fs.BoolVar(&all, "all", false, "list candidates even when the caret is not at a completion point")
	if err := fs.Parse(reorderArgs(args)); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("complete: exactly one file is required")
	}

	file, err := filepath.Abs(fs.Arg(0))
	if err != nil {
		return err
	}
	text, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("reading %s: %w", fs.Arg(0), err)
	}
	if offset < 0 || offset > len(text) {
		offset = len(text)
	}

	ws, _, err := c.open(context.Background())
	if err != nil {
		return err
	}
	rel, err := ws.Rel(file)
	if err != nil {
		return err
	}

	req := analyzer.Analyze(rel, analyzer.Buffer{Text: string(text), Caret: offset})
	if !req.Completable() && !all {
		return fmt.Errorf("offset %d is not a completion point", offset)
	}
	candidates := ws.Resolver().Resolve(req, resolver.Session{})
	inserts := make([]string, len(candidates))
	for i, m := range candidates {
		ins, _ := resolver.Accept(req, m, 0, resolver.Session{})
		inserts[i] = ins.Text
	}
	_, _ = fmt.Fprintln(stdout, toon.EncodeCompletion(req, candidates, inserts))
	return nil
}

func runWatch(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("rubysense watch", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var c common
	c.register(fs)
	if err := fs.Parse(reorderArgs(args)); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		c.root = fs.Arg(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ws, summary, err := c.open(ctx)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(stdout, "watching %s: %d files, %d failed\n", ws.Root(), summary.Files, summary.Failed)

	wt, err := ws.StartWatch(ctx)
	if err != nil {
		return err
	}
	wt.OnEvent(func(path string) {
		reportFile(stdout, path, ws.Cache().Forest(path))
	})
	<-ctx.Done()
	return wt.Close()
}

func reportFile(w io.Writer, path string, forest *model.Forest) {
	if forest == nil {
		_, _ = fmt.Fprintf(w, "removed %s\n", path)
		return
	}
	_, _ = fmt.Fprintf(w, "indexed %s: %d members (generation %d)\n", path, forest.Len(), forest.Generation())
}

// flagsWithValue lists flags that take a value argument.
var flagsWithValue = map[string]bool{
	"-root": true, "--root": true,
	"-config": true, "--config": true,
	"-offset": true, "--offset": true,
}

// reorderArgs moves positional arguments after all flags so Go's flag package
// can parse them correctly (it stops at the first non-flag arg).
func reorderArgs(args []string) []string {
	var flags, positional []string
	for i := 0; i < len(args); i++ {
		if args[i] == "--" {
			positional = append(positional, args[i+1:]...)
			break
		}
		if len(args[i]) > 0 && args[i][0] == '-' {
			flags = append(flags, args[i])
			if flagsWithValue[args[i]] && i+1 < len(args) {
				i++
				flags = append(flags, args[i])
			}
		} else {
			positional = append(positional, args[i])
		}
	}
	return append(flags, positional...)
}
