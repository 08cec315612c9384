// Package lang provides a language registry mapping file names to tree-sitter
// languages, plus node helpers shared by the extractor.
package lang

import (
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// Language holds tree-sitter configuration for a supported language.
type Language struct {
	Name       string
	Extensions []string
	// FileNames lists extensionless files that belong to the language,
	// such as Rakefile.
	FileNames []string
	lang      *sitter.Language
}

// GetLanguage returns the tree-sitter Language pointer.
func (l *Language) GetLanguage() *sitter.Language {
	return l.lang
}

// NewParser creates a fresh tree-sitter parser for this language.
// Each goroutine must use its own parser (not thread-safe).
func (l *Language) NewParser() *sitter.Parser {
	p := sitter.NewParser()
	p.SetLanguage(l.lang)
	return p
}

// Languages maps language names to their configuration.
// Populated by init() functions in per-language files.
var Languages = map[string]*Language{}

// lookup tables are built lazily after all init() functions have run.
var (
	extensionMap map[string]string
	fileNameMap  map[string]string
	lookupOnce   sync.Once
)

func buildLookup() {
	lookupOnce.Do(func() {
		extensionMap = make(map[string]string)
		fileNameMap = make(map[string]string)
		for _, l := range Languages {
			for _, ext := range l.Extensions {
				extensionMap[ext] = l.Name
			}
			for _, name := range l.FileNames {
				fileNameMap[name] = l.Name
			}
		}
	})
}

// ForExtension returns the language name for a file extension, or "" if unsupported.
func ForExtension(ext string) string {
	buildLookup()
	return extensionMap[ext]
}

// ForPath returns the language for a file path by extension or well-known
// file name, or nil if unsupported.
func ForPath(path string) *Language {
	buildLookup()
	base := filepath.Base(path)
	if name, ok := fileNameMap[base]; ok {
		return Languages[name]
	}
	if name := ForExtension(strings.ToLower(filepath.Ext(base))); name != "" {
		return Languages[name]
	}
	return nil
}

// NodeText returns the source text of a tree-sitter node.
func NodeText(node *sitter.Node, source []byte) string {
	return string(source[node.StartByte():node.EndByte()])
}

// CollapseWhitespace replaces runs of whitespace with a single space and trims.
func CollapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}
