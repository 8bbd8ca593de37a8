// Package prompt reads short answers from the operator.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Prompt asks questions on out and reads one line per answer from in, it keeps a single
// buffered reader so consecutive answers are not lost.
type Prompt struct {
	in  *bufio.Reader
	out io.Writer
}

func New(in io.Reader, out io.Writer) *Prompt {
	return &Prompt{in: bufio.NewReader(in), out: out}
}

// ReadLine prints question and returns the next line without surrounding whitespace. A final
// line without a line break is accepted, io.EOF is only returned when nothing was read.
func (p *Prompt) ReadLine(question string) (string, error) {
	if question != "" {
		fmt.Fprint(p.out, question)
	}
	line, err := p.in.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimSpace(line), nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Confirm asks a yes/no question that defaults to no, running out of input also means no.
func (p *Prompt) Confirm(question string) (bool, error) {
	answer, err := p.ReadLine(fmt.Sprintf("%s [y/N]: ", question))
	if errors.Is(err, io.EOF) {
		fmt.Fprintln(p.out)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// OpenTerminal returns stdin when it is a terminal, otherwise stdin carries piped data and the
// controlling terminal is opened instead. The returned function closes whatever was opened.
func OpenTerminal(stdin *os.File) (io.Reader, func() error, error) {
	if term.IsTerminal(int(stdin.Fd())) {
		return stdin, func() error { return nil }, nil
	}
	tty, err := os.Open("/dev/tty")
	if err != nil {
		return nil, nil, fmt.Errorf("stdin is not a terminal and /dev/tty is unavailable: %w", err)
	}
	return tty, tty.Close, nil
}
