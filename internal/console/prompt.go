package console

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/seanblong/annsearch/internal/query"
)

type Action int

const (
	// None means the line only changed a field or printed help.
	None Action = iota
	Submit
	Quit
)

const help = `Type a question and press enter to search.
  /top N        results to return (top_n)
  /filepath P   restrict to a file path (empty clears)
  /page N       page filter (empty clears)
  /show         print the current fields
  /help         this text
  /quit         exit`

// Prompt reads the form one line at a time. Field values persist between
// submissions the way input boxes on a page do.
type Prompt struct {
	in   *bufio.Scanner
	out  io.Writer
	form query.Form
}

func NewPrompt(in io.Reader, out io.Writer, initial query.Form) *Prompt {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Prompt{in: sc, out: out, form: initial}
}

func (p *Prompt) Form() query.Form { return p.form }

func (p *Prompt) Help() { fmt.Fprintln(p.out, help) }

// Next reads one line. It returns io.EOF when input ends.
func (p *Prompt) Next() (Action, error) {
	fmt.Fprint(p.out, "search> ")
	if !p.in.Scan() {
		if err := p.in.Err(); err != nil {
			return Quit, err
		}
		return Quit, io.EOF
	}
	return p.Handle(p.in.Text()), nil
}

// Handle applies one input line to the form.
func (p *Prompt) Handle(line string) Action {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "/") {
		p.form.Question = line
		return Submit
	}

	cmd, arg, _ := strings.Cut(trimmed, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "/top":
		p.form.TopN = arg
	case "/filepath":
		p.form.Filepath = arg
	case "/page":
		p.form.Page = arg
	case "/show":
		fmt.Fprintf(p.out, "question=%q top_n=%q filepath=%q page=%q\n",
			p.form.Question, p.form.TopN, p.form.Filepath, p.form.Page)
	case "/quit", "/exit":
		return Quit
	case "/help":
		p.Help()
	default:
		fmt.Fprintf(p.out, "unknown command %s (try /help)\n", cmd)
	}
	return None
}
