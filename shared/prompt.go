package shared

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Prompter reads single-line operator input. Signaling blobs are pasted as
// one line of JSON, so the buffer is sized for large SDP payloads.
type Prompter struct {
	printer *Printer
	scanner *bufio.Scanner
}

func NewPrompter(printer *Printer, in io.Reader) *Prompter {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	return &Prompter{printer: printer, scanner: scanner}
}

// Ask prints question and returns the trimmed answer line.
func (p *Prompter) Ask(question string, ind int) (string, error) {
	if err := p.printer.Write(question+" ", ind); err != nil {
		return "", err
	}
	if !p.scanner.Scan() {
		if err := p.scanner.Err(); err != nil {
			return "", fmt.Errorf("reading input: %w", err)
		}
		return "", io.EOF
	}
	return strings.TrimSpace(p.scanner.Text()), nil
}

// Confirm asks a yes/no question. Anything but y/yes is a no.
func (p *Prompter) Confirm(question string, ind int) (bool, error) {
	answer, err := p.Ask(question+" [y/N]", ind)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}
