// Package prompt asks the user yes/no questions on a terminal.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Terminal asks questions on Out and reads answers from In.
type Terminal struct {
	In     io.Reader
	Out    io.Writer
	Logger *slog.Logger

	scanner *bufio.Scanner
}

// New returns a Terminal reading from in and writing prompts to out.
func New(in io.Reader, out io.Writer, logger *slog.Logger) *Terminal {
	if logger == nil {
		logger = slog.Default()
	}
	return &Terminal{In: in, Out: out, Logger: logger}
}

// ConfirmOverwrite asks whether filename may be replaced and repeats the
// question until the answer is Y or N, case-insensitively. End of input
// counts as N.
func (t *Terminal) ConfirmOverwrite(filename string) (bool, error) {
	if t.scanner == nil {
		t.scanner = bufio.NewScanner(t.In)
	}
	for {
		if _, err := fmt.Fprintf(t.Out, "%q already exists. Do you want to replace it? (Y/N): ", filename); err != nil {
			return false, fmt.Errorf("write prompt: %w", err)
		}
		if !t.scanner.Scan() {
			fmt.Fprintln(t.Out)
			if err := t.scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
				return false, fmt.Errorf("read answer: %w", err)
			}
			t.logger().Warn("no answer on input, keeping existing file", "file", filename)
			return false, nil
		}
		switch strings.ToUpper(strings.TrimSpace(t.scanner.Text())) {
		case "Y":
			return true, nil
		case "N":
			return false, nil
		}
	}
}

func (t *Terminal) logger() *slog.Logger {
	if t.Logger == nil {
		return slog.Default()
	}
	return t.Logger
}

// Always answers every question with a fixed value.
type Always bool

func (a Always) ConfirmOverwrite(string) (bool, error) { return bool(a), nil }
