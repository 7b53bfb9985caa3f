// Package progress renders scan progress on the terminal.
package progress

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/lyallcooper/toolbox/internal/types"
	"github.com/schollz/progressbar/v3"
)

const updateInterval = 50 * time.Millisecond

// Bar wraps progressbar with enabled/disabled handling.
// All methods are no-ops when disabled.
type Bar struct {
	bar *progressbar.ProgressBar
	out io.Writer
}

// New creates a percentage bar writing to stderr.
// If enabled=false, returns a Bar where all methods are no-ops.
func New(enabled bool) *Bar {
	return NewWithWriter(enabled, os.Stderr)
}

// NewWithWriter is New with an explicit output
func NewWithWriter(enabled bool, out io.Writer) *Bar {
	if !enabled {
		return &Bar{}
	}

	bar := progressbar.NewOptions(100,
		progressbar.OptionSetWriter(out),
		progressbar.OptionThrottle(updateInterval),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
	)
	return &Bar{bar: bar, out: out}
}

// Report implements dupes.Progress
func (b *Bar) Report(p types.ScanProgress) {
	if b.bar == nil {
		return
	}
	b.bar.Describe(p.Message)
	_ = b.bar.Set(p.Progress)
}

// Finish completes the progress bar and prints a final message.
func (b *Bar) Finish(msg string) {
	if b.bar != nil {
		_ = b.bar.Finish()
		fmt.Fprintln(b.out, "✔ "+msg)
	}
}
