package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/chzyer/readline"
	"github.com/pkg/errors"
)

const prompt = "You: "

// errInterrupted is returned when the user presses Ctrl-C at the prompt.
var errInterrupted = errors.New("interrupted")

// lineReader yields one line of input per call. io.EOF ends the session.
type lineReader interface {
	ReadLine(ctx context.Context) (string, error)
	Close() error
}

// editorReader reads through a readline line editor. Closing stdin is the only
// way to wake a pending Readline, so cancellation goes through it.
type editorReader struct {
	stdin *readline.CancelableStdin
	rl    *readline.Instance
}

func newEditorReader(in io.Reader, out io.Writer) (*editorReader, error) {
	stdin := readline.NewCancelableStdin(in)
	cfg := &readline.Config{
		Prompt:       prompt,
		Stdin:        stdin,
		Stdout:       out,
		Stderr:       out,
		HistoryLimit: 200,
	}
	if !isTerminal(in) || !isTerminal(out) {
		cfg.FuncIsTerminal = func() bool { return false }
		cfg.FuncMakeRaw = func() error { return nil }
		cfg.FuncExitRaw = func() error { return nil }
		cfg.FuncGetWidth = func() int { return 80 }
		cfg.FuncOnWidthChanged = func(func()) {}
	}

	rl, err := readline.NewEx(cfg)
	if err != nil {
		stdin.Close()
		return nil, errors.Wrap(err, "start line editor")
	}
	return &editorReader{stdin: stdin, rl: rl}, nil
}

func (e *editorReader) ReadLine(ctx context.Context) (string, error) {
	stop := context.AfterFunc(ctx, func() { e.stdin.Close() })
	defer stop()

	line, err := e.rl.Readline()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	if errors.Is(err, readline.ErrInterrupt) {
		return "", errInterrupted
	}
	return line, err
}

func (e *editorReader) Close() error {
	e.stdin.Close()
	return e.rl.Close()
}

type lineResult struct {
	line string
	err  error
}

// streamReader reads piped input on its own goroutine so that a blocked read
// never holds up cancellation. Lines have no length limit.
type streamReader struct {
	out   io.Writer
	lines chan lineResult
	done  chan struct{}
	once  sync.Once
}

func newStreamReader(in io.Reader, out io.Writer) *streamReader {
	s := &streamReader{
		out:   out,
		lines: make(chan lineResult),
		done:  make(chan struct{}),
	}
	go s.read(bufio.NewReader(in))
	return s
}

func (s *streamReader) read(br *bufio.Reader) {
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			if !s.send(lineResult{line: strings.TrimRight(line, "\r\n")}) {
				return
			}
		}
		if err != nil {
			s.send(lineResult{err: err})
			return
		}
	}
}

func (s *streamReader) send(r lineResult) bool {
	select {
	case s.lines <- r:
		return true
	case <-s.done:
		return false
	}
}

func (s *streamReader) ReadLine(ctx context.Context) (string, error) {
	fmt.Fprint(s.out, prompt)
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-s.lines:
		return r.line, r.err
	}
}

// Close releases the reader goroutine once its pending read returns.
func (s *streamReader) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	return ok && readline.IsTerminal(int(f.Fd()))
}
