package resolver

import (
	"context"
	"strings"
	"testing"

	"github.com/phobologic/rubysense/internal/analyzer"
	"github.com/phobologic/rubysense/internal/cache"
	"github.com/phobologic/rubysense/internal/model"
	"github.com/phobologic/rubysense/internal/parse"
)

func load(t *testing.T, files map[string]string) *cache.Cache {
	t.Helper()
	c := cache.New()
	for path, src := range files {
		ex := parse.Extract(context.Background(), path, []byte(src))
		if ex.Failed() {
			t.Fatalf("extract %s: %v", path, ex.Problems)
		}
		c.Update(path, ex.Forest)
	}
	return c
}

func request(path, text string) *analyzer.Request {
	return analyzer.Analyze(path, analyzer.Buffer{Text: text, Caret: len(text)})
}

func display(members []*model.Member) string {
	parts := make([]string, len(members))
	for i, m := range members {
		parts[i] = m.DisplayName()
	}
	return strings.Join(parts, " ")
}

func nameSet(members []*model.Member) map[string]bool {
	out := make(map[string]bool, len(members))
	for _, m := range members {
		out[m.Name] = true
	}
	return out
}

func TestDuckTypes(t *testing.T) {
	t.Parallel()

	c := load(t, map[string]string{
		"green.rb": "class Green\ndef red\nend\ndef []\nend\nend\n",
		"blue.rb":  "module Blue\ndef red\nend\nend\n",
		"pink.rb":  "class Pink\ndef self.red\nend\nend\n",
	})

	tests := []struct {
		observed []string
		want     string
	}{
		{[]string{"red"}, "Blue Green"},
		{[]string{"red", "[]"}, "Green"},
		{[]string{"red", "[]", "missing"}, ""},
		{nil, ""},
	}
	for _, tt := range tests {
		got := strings.Join(DuckTypes(c, tt.observed), " ")
		if got != tt.want {
			t.Errorf("DuckTypes(%v) = %q, want %q", tt.observed, got, tt.want)
		}
	}
}

func TestDuckTypesMonotonic(t *testing.T) {
	t.Parallel()

	c := load(t, map[string]string{
		"a.rb": "class A\ndef x\nend\ndef y\nend\ndef z\nend\nend\n",
		"b.rb": "class B\ndef x\nend\ndef y\nend\nend\n",
		"c.rb": "class C\ndef x\nend\nend\n",
	})
	observed := []string{"x", "y", "z"}
	prev := DuckTypes(c, observed[:1])
	for i := 2; i <= len(observed); i++ {
		cur := DuckTypes(c, observed[:i])
		allowed := make(map[string]bool)
		for _, typ := range prev {
			allowed[typ] = true
		}
		for _, typ := range cur {
			if !allowed[typ] {
				t.Errorf("DuckTypes(%v) gained %s", observed[:i], typ)
			}
		}
		if len(cur) > len(prev) {
			t.Errorf("DuckTypes(%v) grew from %v to %v", observed[:i], prev, cur)
		}
		prev = cur
	}
}

func TestResolveDuckTyping(t *testing.T) {
	t.Parallel()

	c := load(t, map[string]string{
		"green.rb":  "class Green\ndef red\nend\ndef []\nend\ndef shade\nend\nend\n",
		"blue.rb":   "module Blue\ndef red\nend\nend\n",
		"object.rb": "class Object\ndef inspect\nend\nend\n",
	})
	r := New(c, Options{Universal: []string{"Object"}})

	req := request("use.rb", "y.red\ny.shade\ny.")
	got := nameSet(r.Resolve(req, Session{}))
	for _, want := range []string{"red", "shade", "[]", "inspect"} {
		if !got[want] {
			t.Errorf("candidates for Green-like y missing %s: %v", want, got)
		}
	}

	req = request("use.rb", "z.red\nz.missing\nz.")
	if got := r.Resolve(req, Session{}); len(got) != 0 {
		t.Errorf("empty intersection produced %s", display(got))
	}

	req = request("use.rb", "w.")
	if got := display(r.Resolve(req, Session{})); got != "Object#inspect" {
		t.Errorf("no observations = %q, want universal fallback", got)
	}
}

func TestResolveAssignedClass(t *testing.T) {
	t.Parallel()

	c := load(t, map[string]string{"green.rb": "class Green\ndef red\nend\nend\n"})
	r := New(c, Options{})

	req := request("use.rb", "x = Green.new\nx.")
	if got := display(r.Resolve(req, Session{})); got != "Green#red" {
		t.Errorf("Resolve = %q, want %q", got, "Green#red")
	}
	if !r.HasCompletion(req, Session{}) {
		t.Error("HasCompletion = false, want true")
	}
	if r.HasCompletion(request("use.rb", "x = 1 + "), Session{}) {
		t.Error("HasCompletion after an operator should be false")
	}
}

func TestResolveInheritance(t *testing.T) {
	t.Parallel()

	c := load(t, map[string]string{
		"base.rb":  "class Base\ndef shared\nend\ndef self.build\nend\nend\n",
		"paint.rb": "module Paint\ndef coat\nend\nend\n",
		"green.rb": "class Green < Base\ninclude Paint\ndef red\nend\ndef self.make\nend\nend\n",
		"loop.rb":  "class Loop < Loop\ndef spin\nend\nend\n",
	})
	r := New(c, Options{})

	got := nameSet(r.Resolve(request("use.rb", "g = Green.new\ng."), Session{}))
	for _, want := range []string{"red", "shared", "coat"} {
		if !got[want] {
			t.Errorf("instance candidates missing %s: %v", want, got)
		}
	}
	if got["make"] || got["build"] {
		t.Errorf("instance candidates include class methods: %v", got)
	}

	got = nameSet(r.Resolve(request("use.rb", "Green."), Session{}))
	for _, want := range []string{"make", "build"} {
		if !got[want] {
			t.Errorf("class candidates missing %s: %v", want, got)
		}
	}
	if got["red"] || got["coat"] {
		t.Errorf("class candidates include instance methods: %v", got)
	}

	if got := display(r.Resolve(request("use.rb", "l = Loop.new\nl."), Session{})); got != "Loop#spin" {
		t.Errorf("self-inheriting class = %q, want %q", got, "Loop#spin")
	}
}

func TestResolveNestedConstants(t *testing.T) {
	t.Parallel()

	c := load(t, map[string]string{
		"green.rb": "class Green\nclass Shade\nend\ndef self.make\nend\nend\n",
	})
	r := New(c, Options{})

	got := nameSet(r.Resolve(request("use.rb", "Green::"), Session{}))
	if !got["Shade"] || !got["make"] {
		t.Errorf("Green:: candidates = %v, want Shade and make", got)
	}
	got = nameSet(r.Resolve(request("use.rb", "Green::S"), Session{}))
	if !got["Shade"] || got["make"] {
		t.Errorf("Green::S candidates = %v, want only Shade", got)
	}
}

func TestResolveUnknownContainer(t *testing.T) {
	t.Parallel()

	c := load(t, map[string]string{"object.rb": "class Object\ndef inspect\nend\nend\n"})
	r := New(c, Options{Universal: []string{"Object"}})

	for _, text := range []string{"x = Mystery.new\nx.", "Mystery."} {
		if got := display(r.Resolve(request("use.rb", text), Session{})); got != "Object#inspect" {
			t.Errorf("Resolve(%q) = %q, want universal fallback", text, got)
		}
	}
}

func TestResolveLiteral(t *testing.T) {
	t.Parallel()

	c := load(t, map[string]string{
		"core.rb": "class Array\ndef push(x)\nend\nend\nclass String\ndef upcase\nend\nend\n",
	})
	r := New(c, Options{})

	tests := []struct {
		text string
		want string
	}{
		{"[1, 2].", "Array#push"},
		{"'green'.", "String#upcase"},
		{"[1, 2].p", "Array#push"},
		{"[1, 2].u", ""},
	}
	for _, tt := range tests {
		if got := display(r.Resolve(request("use.rb", tt.text), Session{})); got != tt.want {
			t.Errorf("Resolve(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestResolveRankingAfterAccept(t *testing.T) {
	t.Parallel()

	c := load(t, map[string]string{"green.rb": "class Green\ndef rad\nend\ndef red\nend\ndef rob\nend\nend\n"})
	r := New(c, Options{})
	req := request("use.rb", "x = Green.new\nx.r")

	first := r.Resolve(req, Session{})
	if got, want := display(first), "Green#rad Green#red Green#rob"; got != want {
		t.Fatalf("Resolve = %q, want %q", got, want)
	}

	_, s := Accept(req, first[1], '\n', Session{})
	again := r.Resolve(request("use.rb", "x = Green.new\nx.r"), s)
	if got, want := display(again), "Green#red Green#rad Green#rob"; got != want {
		t.Errorf("after accepting red = %q, want %q", got, want)
	}

	s = s.Keystroke('r')
	if got := r.Resolve(req, s); got[0].Name != "red" {
		t.Errorf("continuation keystroke dropped the memo: %s", display(got))
	}
	s = s.Keystroke(' ')
	if got := r.Resolve(req, s); got[0].Name != "rad" {
		t.Errorf("space kept the memo: %s", display(got))
	}
}

func TestResolveChain(t *testing.T) {
	t.Parallel()

	c := load(t, map[string]string{
		"blue.rb":  "class Blue\ndef green\nGreen.new\nend\nend\n",
		"green.rb": "class Green\ndef red\nend\nend\n",
	})
	r := New(c, Options{})

	req := request("use.rb", "b = Blue.new\nb.g")
	cands := r.Resolve(req, Session{})
	if len(cands) != 1 || cands[0].Name != "green" {
		t.Fatalf("Resolve = %q, want Blue#green", display(cands))
	}
	ins, s := Accept(req, cands[0], '.', Session{})
	if ins.Text != "green." {
		t.Errorf("Insertion.Text = %q, want %q", ins.Text, "green.")
	}
	if got := strings.Join(s.ReturnTypes(), " "); got != "Green" {
		t.Errorf("ReturnTypes = %q, want Green", got)
	}

	chained := request("use.rb", "b = Blue.new\nb.green.")
	if got := display(r.Resolve(chained, s)); got != "Green#red" {
		t.Errorf("chained Resolve = %q, want Green#red", got)
	}
	if got := r.Resolve(chained, s.Keystroke('\n')); len(got) != 0 {
		t.Errorf("reset session still chains: %s", display(got))
	}

	_, s = Accept(req, cands[0], '\t', Session{})
	if len(s.ReturnTypes()) != 0 {
		t.Errorf("tab accept set return types %v", s.ReturnTypes())
	}
}

func TestResolveBare(t *testing.T) {
	t.Parallel()

	src := "class Green\n  def red\n    \n  end\n  def blue\n  end\nend\ndef helper\nend\n"
	c := load(t, map[string]string{"green.rb": src})
	r := New(c, Options{Keywords: []string{"def", "begin"}})
	caret := strings.Index(src, "    \n") + 4

	req := analyzer.Analyze("green.rb", analyzer.Buffer{Text: src, Caret: caret})
	got := nameSet(r.Resolve(req, Session{}))
	for _, want := range []string{"red", "blue", "helper", "def", "begin"} {
		if !got[want] {
			t.Errorf("bare candidates missing %s: %v", want, got)
		}
	}

	stale := analyzer.Analyze("green.rb", analyzer.Buffer{Text: src + "x", Caret: caret})
	got = nameSet(r.Resolve(stale, Session{}))
	if got["red"] || got["blue"] {
		t.Errorf("stale offsets used for enclosing members: %v", got)
	}
	if !got["helper"] || !got["def"] {
		t.Errorf("stale request lost root methods or keywords: %v", got)
	}
}

func TestResolveBareClassName(t *testing.T) {
	t.Parallel()

	c := load(t, map[string]string{
		"green.rb": "class Green\nend\nmodule Grey\nend\nclass Blue\nend\n",
	})
	r := New(c, Options{})

	got := nameSet(r.Resolve(request("use.rb", "x = Gr"), Session{}))
	if !got["Green"] || !got["Grey"] || got["Blue"] {
		t.Errorf("class name candidates = %v, want Green and Grey", got)
	}
}

func TestResolveSelf(t *testing.T) {
	t.Parallel()

	src := "class Green\n  def self.make\n    self.x\n  end\n  def red\n    self.x\n  end\nend\n"
	c := load(t, map[string]string{"green.rb": src})
	r := New(c, Options{})

	classCaret := strings.Index(src, "self.x") + len("self.")
	req := analyzer.Analyze("green.rb", analyzer.Buffer{Text: src, Caret: classCaret})
	if got := display(r.Resolve(req, Session{})); got != "Green.make" {
		t.Errorf("self in class method = %q, want Green.make", got)
	}

	instCaret := strings.LastIndex(src, "self.x") + len("self.")
	req = analyzer.Analyze("green.rb", analyzer.Buffer{Text: src, Caret: instCaret})
	if got := display(r.Resolve(req, Session{})); got != "Green#red" {
		t.Errorf("self in instance method = %q, want Green#red", got)
	}
}

func TestResolveMaxCandidates(t *testing.T) {
	t.Parallel()

	c := load(t, map[string]string{"green.rb": "class Green\ndef a\nend\ndef b\nend\ndef c\nend\nend\n"})
	r := New(c, Options{MaxCandidates: 2})
	if got := display(r.Resolve(request("use.rb", "g = Green.new\ng."), Session{})); got != "Green#a Green#b" {
		t.Errorf("Resolve = %q, want two candidates", got)
	}
}

func TestKeystroke(t *testing.T) {
	t.Parallel()

	s := Session{returnTypes: []string{"Green"}, chainReceiver: "green", accepted: map[string]string{"": "red"}}
	for _, r := range "a_Z9.:#?!@$\b" {
		if got := s.Keystroke(r); len(got.returnTypes) == 0 || len(got.accepted) == 0 {
			t.Errorf("Keystroke(%q) reset the session", r)
		}
	}
	for _, r := range " \t\n(),=+" {
		if got := s.Keystroke(r); len(got.returnTypes) != 0 || len(got.accepted) != 0 {
			t.Errorf("Keystroke(%q) kept the session", r)
		}
	}
}
