// Package prompt asks the operator yes/no questions during interactive
// replay.
package prompt

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
	"golang.org/x/term"
)

// Answer is the operator's decision.
type Answer int

const (
	AnswerNo Answer = iota
	AnswerYes
)

func (a Answer) String() string {
	if a == AnswerYes {
		return "yes"
	}
	return "no"
}

// Confirmer asks a yes/no question.
type Confirmer interface {
	Confirm(question string) (Answer, error)
}

// Static always gives the same answer.
type Static Answer

// Confirm implements Confirmer.
func (s Static) Confirm(string) (Answer, error) { return Answer(s), nil }

// Terminal reads answers from a terminal. A single keypress is enough when
// In is a TTY; otherwise a whole line is read.
type Terminal struct {
	In  *os.File
	Out io.Writer

	once   sync.Once
	reader *bufio.Reader
}

// NewTerminal returns a Terminal bound to stdin and stderr.
func NewTerminal() *Terminal {
	return &Terminal{In: os.Stdin, Out: os.Stderr}
}

// IsInteractive reports whether f is attached to a terminal.
func IsInteractive(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Confirm implements Confirmer. Only y or Y accepts.
func (t *Terminal) Confirm(question string) (Answer, error) {
	fmt.Fprintf(t.Out, "%s [y/N] ", question)

	if IsInteractive(t.In) {
		fd := int(t.In.Fd())
		state, err := term.MakeRaw(fd)
		if err == nil {
			key := make([]byte, 1)
			_, readErr := t.In.Read(key)
			_ = term.Restore(fd, state)
			fmt.Fprintln(t.Out)
			if readErr != nil {
				return AnswerNo, fmt.Errorf("read answer: %w", readErr)
			}
			return parseKey(key[0]), nil
		}
	}

	t.once.Do(func() { t.reader = bufio.NewReader(t.In) })
	line, err := t.reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return AnswerNo, fmt.Errorf("read answer: %w", err)
	}
	return ParseLine(line), nil
}

// ParseLine interprets a typed answer.
func ParseLine(line string) Answer {
	line = strings.TrimSpace(line)
	if line == "" {
		return AnswerNo
	}
	return parseKey(line[0])
}

func parseKey(b byte) Answer {
	if b == 'y' || b == 'Y' {
		return AnswerYes
	}
	return AnswerNo
}
