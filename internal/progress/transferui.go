package progress

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"

	"github.com/tangram-vision/datasets-cli/internal/constants"
)

// TransferUI manages one progress bar per in-flight file. The mpb renderer
// runs on its own goroutine, so bars keep refreshing while transfer
// workers are blocked on the network.
//
// The UI is the only writer to the terminal during a transfer; log output
// should be routed through LogWriter so lines print above the bars.
type TransferUI struct {
	progress   *mpb.Progress
	isTerminal bool
	totalFiles int
	started    int32
}

// FileBar is the progress bar of a single file. It implements Sink.
type FileBar struct {
	bar   *mpb.Bar
	ui    *TransferUI
	index int
	path  string
	size  int64

	mu         sync.Mutex
	lastUpdate time.Time
}

// NewTransferUI creates a UI expecting totalFiles bars. On a non-TTY
// stderr the bars are disabled and plain per-file lines are printed
// instead.
func NewTransferUI(totalFiles int) *TransferUI {
	isTerminal := term.IsTerminal(int(os.Stderr.Fd()))

	var p *mpb.Progress
	if isTerminal {
		enableANSI(os.Stderr)
		p = mpb.New(
			mpb.WithOutput(os.Stderr),
			mpb.WithRefreshRate(constants.ProgressRefreshRate),
			mpb.WithWidth(100),
		)
	} else {
		p = mpb.New(mpb.WithOutput(io.Discard))
	}

	return &TransferUI{
		progress:   p,
		isTerminal: isTerminal,
		totalFiles: totalFiles,
	}
}

// AddFileBar creates the bar for one file transfer.
func (u *TransferUI) AddFileBar(path string, size int64) *FileBar {
	index := int(atomic.AddInt32(&u.started, 1))
	label := truncatePath(path, 2)

	fb := &FileBar{
		ui:         u,
		index:      index,
		path:       path,
		size:       size,
		lastUpdate: time.Now(),
	}

	if u.isTerminal {
		fb.bar = u.progress.New(size,
			mpb.BarStyle().
				Lbound("[").
				Filler("█").
				Tip("█").
				Padding("░").
				Rbound("]"),
			mpb.PrependDecorators(
				decor.Name(fmt.Sprintf("[%d/%d] %s", index, u.totalFiles, label), decor.WCSyncSpaceR),
			),
			mpb.AppendDecorators(
				decor.CountersKibiByte("% .1f / % .1f", decor.WCSyncSpace),
				decor.Name("  "),
				decor.Percentage(decor.WCSyncSpace),
				decor.Name("  "),
				decor.EwmaSpeed(decor.SizeB1024(0), "% .1f", 30, decor.WCSyncSpace),
			),
		)
	} else {
		fmt.Fprintf(os.Stderr, "Transferring [%d/%d]: %s (%.1f MiB)\n",
			index, u.totalFiles, label, float64(size)/(1024*1024))
	}

	return fb
}

// Add implements Sink with a byte-count delta. The bar must advance via
// EwmaIncrBy: the EWMA speed decorator is fed only through timed
// increments, so a plain IncrBy would leave the speed column at zero.
func (f *FileBar) Add(delta int64) {
	if f.bar == nil {
		return
	}
	f.bar.EwmaIncrBy(int(delta), f.takeElapsed())
}

// takeElapsed returns the time since the previous delta and resets the
// clock. Workers report concurrently, so the bookkeeping is locked.
func (f *FileBar) takeElapsed() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	elapsed := now.Sub(f.lastUpdate)
	f.lastUpdate = now
	return elapsed
}

// Complete marks the bar finished. Finished bars stay visible so a
// multi-file transfer reads as a scoreboard; on error the bar is frozen
// where it stopped.
func (f *FileBar) Complete(err error) {
	if err == nil {
		if f.bar != nil {
			f.bar.SetCurrent(f.size)
			f.bar.SetTotal(f.size, true)
		}
		return
	}

	if f.bar != nil {
		f.bar.Abort(false)
	}

	msg := fmt.Sprintf("✗ %s: %v\n", truncatePath(f.path, 2), err)
	if f.ui.isTerminal {
		f.ui.progress.Write([]byte(msg))
	} else {
		fmt.Fprint(os.Stderr, msg)
	}
}

// Wait blocks until every bar has completed or aborted and the renderer
// has flushed. Call before printing a final error so the bars finish
// cleanly first.
func (u *TransferUI) Wait() {
	if u.progress != nil {
		u.progress.Wait()
	}
}

// LogWriter returns a writer that prints above the live bars.
func (u *TransferUI) LogWriter() io.Writer {
	if u.progress != nil && u.isTerminal {
		return u.progress
	}
	return os.Stderr
}

// truncatePath shows only the last n components of a path.
func truncatePath(path string, n int) string {
	parts := strings.Split(filepath.ToSlash(path), "/")
	if len(parts) <= n {
		return path
	}
	return "…/" + strings.Join(parts[len(parts)-n:], "/")
}
