// Package workspace keeps a symbol cache in step with the Ruby files under a
// project root: it loads them concurrently, re-extracts edited buffers and
// follows the file system.
package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/phobologic/rubysense/internal/builtin"
	"github.com/phobologic/rubysense/internal/cache"
	"github.com/phobologic/rubysense/internal/config"
	"github.com/phobologic/rubysense/internal/discover"
	"github.com/phobologic/rubysense/internal/model"
	"github.com/phobologic/rubysense/internal/parse"
	"github.com/phobologic/rubysense/internal/resolver"
)

// Workspace owns the cache for one project root. Paths handed to its methods
// are slash-separated and relative to the root.
type Workspace struct {
	root     string
	cfg      *config.Config
	cache    *cache.Cache
	resolver *resolver.Resolver

	mu sync.Mutex
	// content hash of the last good extraction per path
	hashes map[string]uint64
}

// Summary reports the outcome of Load.
type Summary struct {
	Files    int
	Failed   int
	Problems map[string][]model.Problem
}

// Paths returns the paths with problems, sorted.
func (s Summary) Paths() []string {
	out := make([]string, 0, len(s.Problems))
	for p := range s.Problems {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// New returns an empty workspace rooted at root. A nil cfg selects defaults.
func New(root string, cfg *config.Config) *Workspace {
	if cfg == nil {
		cfg = config.Default()
	}
	c := cache.New()
	return &Workspace{
		root:  root,
		cfg:   cfg,
		cache: c,
		resolver: resolver.New(c, resolver.Options{
			Threshold:     cfg.VisibilityThreshold,
			MaxCandidates: cfg.MaxCandidates,
			Universal:     cfg.UniversalContainers,
		}),
		hashes: make(map[string]uint64),
	}
}

// Root returns the project root.
func (w *Workspace) Root() string { return w.root }

// Cache returns the workspace's symbol cache.
func (w *Workspace) Cache() *cache.Cache { return w.cache }

// Resolver returns a resolver over the workspace's cache.
func (w *Workspace) Resolver() *resolver.Resolver { return w.resolver }

// Rel converts a path to the slash-separated key used by the cache. Relative
// paths are taken to be relative to the root already.
func (w *Workspace) Rel(path string) (string, error) {
	if !filepath.IsAbs(path) {
		return filepath.ToSlash(filepath.Clean(path)), nil
	}
	root, err := filepath.Abs(w.root)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", fmt.Errorf("%s is outside %s: %w", path, w.root, err)
	}
	return filepath.ToSlash(rel), nil
}

// Load indexes the builtin core types, when enabled, and then every Ruby file
// under the root. Files that fail to parse are reported in the summary and
// do not fail the load.
func (w *Workspace) Load(ctx context.Context) (Summary, error) {
	if w.cfg.Builtins {
		forest, err := builtin.Load()
		if err != nil {
			return Summary{}, fmt.Errorf("loading builtin types: %w", err)
		}
		w.cache.Update(builtin.Path, forest)
	}

	files, err := discover.Files(w.root, discover.Options{
		Exclude:     w.cfg.Exclude,
		MaxFileSize: w.cfg.MaxFileSize,
		SkipTests:   !w.cfg.IndexTests,
	})
	if err != nil {
		return Summary{}, fmt.Errorf("discovering files: %w", err)
	}

	var (
		mu      sync.Mutex
		summary = Summary{Files: len(files), Problems: make(map[string][]model.Problem)}
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, f := range files {
		rel := filepath.ToSlash(f.Path)
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			src, err := os.ReadFile(filepath.Join(w.root, f.Path))
			if err != nil {
				log.Debug().Err(err).Str("path", rel).Msg("workspace: unreadable file")
				return nil
			}
			problems, ok := w.update(ctx, rel, src)
			if len(problems) == 0 && ok {
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			if len(problems) > 0 {
				summary.Problems[rel] = problems
			}
			if !ok {
				summary.Failed++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}
	log.Debug().
		Str("root", w.root).
		Int("files", summary.Files).
		Int("failed", summary.Failed).
		Msg("workspace: loaded")
	return summary, nil
}

// Update re-extracts path from src and returns the extraction's problems.
// Content identical to the last good extraction is skipped. A failed
// extraction keeps the previous forest in the cache.
func (w *Workspace) Update(ctx context.Context, path string, src []byte) []model.Problem {
	problems, _ := w.update(ctx, path, src)
	return problems
}

func (w *Workspace) update(ctx context.Context, path string, src []byte) ([]model.Problem, bool) {
	sum := xxhash.Sum64(src)
	w.mu.Lock()
	prev, seen := w.hashes[path]
	w.mu.Unlock()
	if seen && prev == sum && w.cache.Forest(path) != nil {
		log.Debug().Str("path", path).Msg("workspace: content unchanged")
		return nil, true
	}

	ex := parse.Extract(ctx, path, src)
	if !w.cache.Apply(path, ex) {
		return ex.Problems, false
	}
	w.mu.Lock()
	w.hashes[path] = sum
	w.mu.Unlock()
	return ex.Problems, true
}

// Remove drops path from the cache.
func (w *Workspace) Remove(path string) {
	w.mu.Lock()
	delete(w.hashes, path)
	w.mu.Unlock()
	w.cache.Remove(path)
}

// RemoveTree removes rel and every indexed path below it, returning the
// removed paths.
func (w *Workspace) RemoveTree(rel string) []string {
	var removed []string
	for _, path := range w.cache.Paths() {
		if path == rel || strings.HasPrefix(path, rel+"/") {
			w.Remove(path)
			removed = append(removed, path)
		}
	}
	return removed
}
