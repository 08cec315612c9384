// Package analyzer classifies the text before the caret into a completion
// request. It never parses the buffer; every decision is made by one of the
// small textual rules in rules.go.
package analyzer

import (
	"strings"
	"sync"
)

// Editor is the read-only view of an editing buffer.
type Editor interface {
	LineUpToCaret() string
	CaretPosition() int
	TextWithoutCurrentLine() string
	BufferLength() int
}

// Buffer is an in-memory Editor.
type Buffer struct {
	Text  string
	Caret int
}

func (b Buffer) caret() int {
	switch {
	case b.Caret < 0:
		return 0
	case b.Caret > len(b.Text):
		return len(b.Text)
	}
	return b.Caret
}

func (b Buffer) lineBounds() (start, end int) {
	c := b.caret()
	start = strings.LastIndexByte(b.Text[:c], '\n') + 1
	end = len(b.Text)
	if i := strings.IndexByte(b.Text[c:], '\n'); i >= 0 {
		end = c + i
	}
	return start, end
}

func (b Buffer) LineUpToCaret() string {
	start, _ := b.lineBounds()
	return b.Text[start:b.caret()]
}

func (b Buffer) CaretPosition() int { return b.caret() }

// TextWithoutCurrentLine returns the buffer with the caret line's content
// removed; its line break is kept so line numbers of other lines are stable.
func (b Buffer) TextWithoutCurrentLine() string {
	start, end := b.lineBounds()
	return b.Text[:start] + b.Text[end:]
}

func (b Buffer) BufferLength() int { return len(b.Text) }

// Request is the classified completion context at the caret.
type Request struct {
	Path         string
	Caret        int
	BufferLength int

	// Receiver is the expression before the delimiter, or "" for bare
	// completion.
	Receiver  string
	Delimiter string
	Partial   string

	// ContainerName is the type inferred for the receiver, or "".
	ContainerName string
	// ReceiverIsClass is set when the receiver names a constant, so only
	// class-level methods apply.
	ReceiverIsClass bool
	// LiteralReceiver is set when the receiver is a literal expression.
	LiteralReceiver bool

	// DotCompletion is set at a `.`, `::` or `#` insertion point.
	DotCompletion bool
	// Bare is set for an identifier without a receiver.
	Bare bool
	// ClassNameCandidate is set when the partial looks like a constant.
	ClassNameCandidate bool

	editor   Editor
	textOnce sync.Once
	text     string
}

// Completable reports whether the request is a completion point at all.
func (r *Request) Completable() bool { return r.DotCompletion || r.Bare }

// Text returns the buffer without the caret line. It is read from the editor
// at most once.
func (r *Request) Text() string {
	r.textOnce.Do(func() {
		if r.editor != nil {
			r.text = r.editor.TextWithoutCurrentLine()
		}
	})
	return r.text
}

// Analyze classifies the caret context of the editor showing path.
func Analyze(path string, ed Editor) *Request {
	req := &Request{
		Path:         path,
		Caret:        ed.CaretPosition(),
		BufferLength: ed.BufferLength(),
		editor:       ed,
	}
	line := ed.LineUpToCaret()

	if p, ok := InsertionPoint(line); ok {
		req.DotCompletion = true
		req.Receiver = p.Receiver
		req.Delimiter = p.Delimiter
		req.Partial = p.Partial
		req.LiteralReceiver = p.Literal
		switch {
		case p.Literal:
			req.ContainerName = LiteralType(p.Receiver)
		case LiteralType(p.Receiver) != "":
			// true, false, nil
			req.ContainerName = LiteralType(p.Receiver)
		case IsClassName(p.Receiver):
			req.ContainerName = p.Receiver
			req.ReceiverIsClass = true
			req.ClassNameCandidate = p.Delimiter == "::" && (p.Partial == "" || IsClassNameCandidate(p.Partial))
		case p.Receiver == "self":
			// Resolved against the enclosing member.
		default:
			req.ContainerName = AssignedType(req.Text(), p.Receiver)
		}
		return req
	}

	if partial, ok := BarePartial(line); ok {
		req.Bare = true
		req.Partial = partial
		req.ClassNameCandidate = partial != "" && IsClassNameCandidate(partial)
	}
	return req
}
