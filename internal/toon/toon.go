// Package toon implements TOON (Token-Oriented Object Notation) encoding of
// outlines and completion results.
package toon

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/phobologic/rubysense/internal/analyzer"
	"github.com/phobologic/rubysense/internal/model"
)

var (
	needsQuoting = regexp.MustCompile(`[,:"\\{}\[\]]`)
	looksNumeric = regexp.MustCompile(`^-?(?:0|[1-9]\d*)(?:\.\d+)?$`)
	keywords     = map[string]struct{}{
		"true":  {},
		"false": {},
		"null":  {},
	}
)

// EncodeOutline renders the members of forest in preorder followed by the
// extraction problems. A nil forest renders no members.
func EncodeOutline(path string, forest *model.Forest, problems []model.Problem) string {
	var parts []string
	parts = append(parts, fmt.Sprintf("file: %s", encodeValue(path)))

	var memberRows [][]string
	if forest != nil {
		forest.Walk(func(m *model.Member) bool {
			memberRows = append(memberRows, []string{
				fmt.Sprintf("%d", len(m.MemberPath())-1),
				m.Kind.String(),
				outlineName(m),
				fmt.Sprintf("%d", m.Line),
				signature(m),
			})
			return true
		})
	}
	parts = append(parts, formatTabular("members", []string{"depth", "kind", "name", "line", "signature"}, memberRows))
	parts = append(parts, encodeProblems(problems))
	return strings.Join(parts, "\n")
}

// EncodeProblems renders problems keyed by path, in the order of paths.
func EncodeProblems(paths []string, problems map[string][]model.Problem) string {
	var rows [][]string
	for _, path := range paths {
		for _, p := range problems[path] {
			rows = append(rows, []string{path, fmt.Sprintf("%d", p.Line), p.Severity.String(), p.Message})
		}
	}
	return formatTabular("problems", []string{"file", "line", "severity", "message"}, rows)
}

// EncodeCompletion renders a classified request and its candidates. inserts,
// when non-nil, holds the text accepting each candidate would insert.
func EncodeCompletion(req *analyzer.Request, candidates []*model.Member, inserts []string) string {
	var parts []string
	parts = append(parts, fmt.Sprintf("file: %s", encodeValue(req.Path)))
	parts = append(parts, fmt.Sprintf("receiver: %s", encodeValue(req.Receiver)))
	parts = append(parts, fmt.Sprintf("type: %s", encodeValue(req.ContainerName)))
	parts = append(parts, fmt.Sprintf("partial: %s", encodeValue(req.Partial)))

	columns := []string{"name", "kind", "owner", "file", "line", "params"}
	if inserts != nil {
		columns = append(columns, "insert")
	}
	var rows [][]string
	for i, m := range candidates {
		row := []string{m.Name, m.Kind.String(), m.Owner(), m.Path, fmt.Sprintf("%d", m.Line), m.Params}
		if inserts != nil {
			row = append(row, inserts[i])
		}
		rows = append(rows, row)
	}
	parts = append(parts, formatTabular("candidates", columns, rows))
	return strings.Join(parts, "\n")
}

func encodeProblems(problems []model.Problem) string {
	var rows [][]string
	for _, p := range problems {
		rows = append(rows, []string{fmt.Sprintf("%d", p.Line), p.Severity.String(), p.Message})
	}
	return formatTabular("problems", []string{"line", "severity", "message"}, rows)
}

func outlineName(m *model.Member) string {
	switch m.Kind {
	case model.KindMethod:
		return m.DisplayName()
	case model.KindModule, model.KindClass:
		return m.FullName()
	case model.KindRoot, model.KindCall, model.KindKeyword:
	}
	return m.Name
}

func signature(m *model.Member) string {
	switch m.Kind {
	case model.KindMethod:
		sig := m.Params
		if len(m.ReturnTypes) > 0 {
			sig += " -> " + strings.Join(m.ReturnTypes, "|")
		}
		return strings.TrimSpace(sig)
	case model.KindClass:
		if m.Superclass != "" {
			return "< " + m.Superclass
		}
	case model.KindRoot, model.KindModule, model.KindCall, model.KindKeyword:
	}
	return ""
}

func formatTabular(name string, columns []string, rows [][]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s[%d]{%s}:", name, len(rows), strings.Join(columns, ","))
	for _, row := range rows {
		encoded := make([]string, len(row))
		for i, cell := range row {
			encoded[i] = encodeValue(cell)
		}
		fmt.Fprintf(&b, "\n  %s", strings.Join(encoded, ","))
	}
	return b.String()
}

func encodeValue(value string) string {
	if value == "" {
		return `""`
	}

	if value != strings.TrimSpace(value) {
		return quote(value)
	}

	if strings.ContainsAny(value, "\n\r\t") {
		return quote(value)
	}

	if _, ok := keywords[strings.ToLower(value)]; ok {
		return quote(value)
	}

	if looksNumeric.MatchString(value) {
		return value
	}

	if needsQuoting.MatchString(value) {
		return quote(value)
	}

	if strings.HasPrefix(value, "-") {
		return quote(value)
	}

	return value
}

func quote(value string) string {
	escaped := strings.ReplaceAll(value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	escaped = strings.ReplaceAll(escaped, "\n", `\n`)
	escaped = strings.ReplaceAll(escaped, "\r", `\r`)
	escaped = strings.ReplaceAll(escaped, "\t", `\t`)
	return `"` + escaped + `"`
}
