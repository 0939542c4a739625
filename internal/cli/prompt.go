package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Prompter asks the user for input during a login.
type Prompter interface {
	// Secret reads a value without echo when possible.
	Secret(label string) (string, error)
	Line(label string) (string, error)
}

type terminalPrompter struct {
	in  *os.File
	out io.Writer
	r   *bufio.Reader
}

func newTerminalPrompter(in *os.File, out io.Writer) *terminalPrompter {
	return &terminalPrompter{in: in, out: out, r: bufio.NewReader(in)}
}

func (p *terminalPrompter) Secret(label string) (string, error) {
	fmt.Fprint(p.out, label)
	fd := int(p.in.Fd())
	if !term.IsTerminal(fd) {
		return p.readLine()
	}
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(p.out)
	if err != nil {
		return "", fmt.Errorf("read secret: %w", err)
	}
	return string(raw), nil
}

func (p *terminalPrompter) Line(label string) (string, error) {
	fmt.Fprint(p.out, label)
	return p.readLine()
}

func (p *terminalPrompter) readLine() (string, error) {
	line, err := p.r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}
