package console

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/seanblong/annsearch/internal/query"
)

func TestPromptHandle(t *testing.T) {
	var out bytes.Buffer
	p := NewPrompt(strings.NewReader(""), &out, query.Form{TopN: "5"})

	steps := []struct {
		line   string
		action Action
		want   query.Form
	}{
		{"/top 10", None, query.Form{TopN: "10"}},
		{"/filepath docs/a.pdf", None, query.Form{TopN: "10", Filepath: "docs/a.pdf"}},
		{"/page 3", None, query.Form{TopN: "10", Filepath: "docs/a.pdf", Page: "3"}},
		{"what is ivfflat?", Submit, query.Form{Question: "what is ivfflat?", TopN: "10", Filepath: "docs/a.pdf", Page: "3"}},
		{"/page", None, query.Form{Question: "what is ivfflat?", TopN: "10", Filepath: "docs/a.pdf"}},
		{"/filepath", None, query.Form{Question: "what is ivfflat?", TopN: "10"}},
		{"/quit", Quit, query.Form{Question: "what is ivfflat?", TopN: "10"}},
	}
	for _, s := range steps {
		if got := p.Handle(s.line); got != s.action {
			t.Errorf("Handle(%q) = %v, want %v", s.line, got, s.action)
		}
		if p.Form() != s.want {
			t.Errorf("After %q form = %+v, want %+v", s.line, p.Form(), s.want)
		}
	}
}

func TestPromptEmptyLineSubmits(t *testing.T) {
	p := NewPrompt(strings.NewReader(""), io.Discard, query.Form{Question: "old", TopN: "5"})
	if got := p.Handle(""); got != Submit {
		t.Errorf("Expected Submit, got %v", got)
	}
	if p.Form().Question != "" {
		t.Errorf("Expected question cleared, got %q", p.Form().Question)
	}
}

func TestPromptUnknownCommand(t *testing.T) {
	var out bytes.Buffer
	p := NewPrompt(strings.NewReader(""), &out, query.Form{})
	if got := p.Handle("/frobnicate"); got != None {
		t.Errorf("Expected None, got %v", got)
	}
	if !strings.Contains(out.String(), "unknown command /frobnicate") {
		t.Errorf("Unexpected output %q", out.String())
	}
}

func TestPromptNext(t *testing.T) {
	p := NewPrompt(strings.NewReader("/top 7\nhello\n"), io.Discard, query.Form{})
	a, err := p.Next()
	if err != nil || a != None {
		t.Fatalf("First Next = %v, %v", a, err)
	}
	a, err = p.Next()
	if err != nil || a != Submit {
		t.Fatalf("Second Next = %v, %v", a, err)
	}
	if p.Form().Question != "hello" || p.Form().TopN != "7" {
		t.Errorf("Unexpected form %+v", p.Form())
	}
	if _, err := p.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("Expected EOF, got %v", err)
	}
}

func TestTerminal(t *testing.T) {
	var out bytes.Buffer
	term := NewTerminal(&out, false)
	term.ShowResults("Searching...")
	term.ShowResults("Error: boom\n")
	term.ShowStatus("question required")

	if term.Results() != "Error: boom\n" {
		t.Errorf("Expected last results retained, got %q", term.Results())
	}
	s := out.String()
	if strings.Count(s, separator) != 2 {
		t.Errorf("Expected a separator per render, got %q", s)
	}
	if !strings.Contains(s, "! question required\n") {
		t.Errorf("Missing status line in %q", s)
	}
	if strings.Contains(s, "\x1b[") {
		t.Errorf("Unexpected colour in %q", s)
	}
}

func TestColorEnabled(t *testing.T) {
	if !ColorEnabled("always", nil) {
		t.Error("always should enable colour")
	}
	if ColorEnabled("never", nil) {
		t.Error("never should disable colour")
	}
	if ColorEnabled("auto", nil) {
		t.Error("auto without a file should disable colour")
	}
}
