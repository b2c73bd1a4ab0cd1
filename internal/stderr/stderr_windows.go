//go:build windows

// Package stderr is a no-op on Windows, whose audio stack does not write
// to the console.
package stderr

import "os"

// Capture never receives any line on Windows.
type Capture struct {
	lines chan string
}

// Start returns an idle capture.
func Start(int) (*Capture, error) {
	return &Capture{lines: make(chan string)}, nil
}

// Lines returns a channel closed by Stop.
func (c *Capture) Lines() <-chan string {
	return c.lines
}

// WriteOriginal writes to stderr.
func (c *Capture) WriteOriginal(msg string) {
	_, _ = os.Stderr.WriteString(msg)
}

// Stop closes Lines.
func (c *Capture) Stop() {
	close(c.lines)
}
