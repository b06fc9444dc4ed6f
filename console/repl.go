package console

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"
)

const prompt = "schunk> "

// REPL reads command lines from in and writes each status to out until in is exhausted, the
// operator quits, or ctx is done.
type REPL struct {
	session *Session
	in      io.Reader
	out     io.Writer
	prompt  bool
	warn    *color.Color
	fail    *color.Color
}

// NewREPL returns a REPL over in and out. showPrompt is meant for interactive terminals.
func NewREPL(session *Session, in io.Reader, out io.Writer, showPrompt bool) *REPL {
	r := &REPL{
		session: session,
		in:      in,
		out:     out,
		prompt:  showPrompt,
		warn:    color.New(color.FgYellow),
		fail:    color.New(color.FgRed, color.Bold),
	}
	if session.opts.Colors {
		r.warn.EnableColor()
		r.fail.EnableColor()
	} else {
		r.warn.DisableColor()
		r.fail.DisableColor()
	}
	return r
}

// Run blocks until the input ends, "quit" is entered, or ctx is done.
func (r *REPL) Run(ctx context.Context) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	goutils.PanicCapturingGo(func() {
		defer close(lines)
		scanner := bufio.NewScanner(r.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	})

	for {
		r.showPrompt()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			if hint := r.session.Hint(line); hint.Severity == SeverityWarning {
				r.print(hint)
			}
			st, err := r.session.Execute(ctx, line)
			r.print(st)
			if errors.Is(err, ErrQuit) {
				return nil
			}
		}
	}
}

func (r *REPL) showPrompt() {
	if r.prompt {
		fmt.Fprint(r.out, prompt)
	}
}

func (r *REPL) print(st Status) {
	if st.Text == "" {
		return
	}
	switch st.Severity {
	case SeverityWarning:
		fmt.Fprintln(r.out, r.warn.Sprint(st.Text))
	case SeverityError:
		fmt.Fprintln(r.out, r.fail.Sprint(st.Text))
	default:
		fmt.Fprintln(r.out, st.Text)
	}
}
