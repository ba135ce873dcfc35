// Package ttyio implements kosh's terminal prompts: masked passphrase entry and
// line-oriented input for the interactive REPL, grounded on the teacher's own
// cmd/pm/main.go promptPassword helper.
package ttyio

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// ErrCancelled is returned when the user aborts a prompt (e.g. EOF on stdin, or a
// Ctrl-D at a masked passphrase prompt), matching spec §7's CancelAction error kind:
// "local to UI, never escapes" past the command loop that issued the prompt.
var ErrCancelled = errors.New("ttyio: prompt cancelled")

// Reader wraps an input stream for the REPL's line-oriented prompts, keeping one
// buffered scanner alive across calls the way the teacher's cmd/pm REPL loop does.
type Reader struct {
	scanner *bufio.Scanner
}

// NewReader builds a Reader over stdin.
func NewReader() *Reader {
	return NewReaderFrom(os.Stdin)
}

// NewReaderFrom builds a Reader over an arbitrary stream, letting tests supply a
// strings.Reader instead of the real terminal.
func NewReaderFrom(r io.Reader) *Reader {
	return &Reader{scanner: bufio.NewScanner(r)}
}

// ReadLine prompts on stderr and reads one line from stdin, trimming the trailing
// newline. Returns ErrCancelled at EOF.
func (r *Reader) ReadLine(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return "", fmt.Errorf("ttyio: read line: %w", err)
		}
		return "", ErrCancelled
	}
	return r.scanner.Text(), nil
}

// ReadPassphrase prompts on stderr and reads a masked line from the terminal via
// golang.org/x/term, grounded on the teacher's promptPassword(prompt string)
// helper (term.ReadPassword(int(syscall.Stdin))). The returned slice is owned by
// the caller, who is responsible for zeroing it once no longer needed — see
// Zero below, matching spec §4.1's "K must be zeroed" discipline extended to
// passphrase material in flight.
func ReadPassphrase(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	fd := int(os.Stdin.Fd())
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrCancelled
		}
		return nil, fmt.Errorf("ttyio: read passphrase: %w", err)
	}
	return pw, nil
}

// Zero overwrites b in place, for scrubbing passphrase buffers after use.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// PromptForStore adapts ReadPassphrase to store.PromptFunc's signature
// (func(prompt string) ([]byte, error)), letting cmd/kosh wire a live terminal
// straight into store.Open without an intermediate closure at every call site.
func PromptForStore(prompt string) ([]byte, error) {
	return ReadPassphrase(prompt)
}
