package cmd

import (
	"context"
	"errors"
	"io"
	"os"

	"golang.org/x/term"
)

// waitForAnyKey returns after a single key press on in, or when ctx is done.
// A terminal is switched to raw mode so no Enter is needed. Any other reader
// is read one byte at a time; EOF counts as a key press.
func waitForAnyKey(ctx context.Context, in io.Reader) error {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fd := int(f.Fd())
		state, err := term.MakeRaw(fd)
		if err != nil {
			return err
		}
		defer term.Restore(fd, state)
	}

	done := make(chan error, 1)
	go func() {
		// The read cannot be interrupted; on cancellation this goroutine
		// ends with the process.
		var buf [1]byte
		_, err := in.Read(buf[:])
		done <- err
	}()

	select {
	case err := <-done:
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
