package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/sqlassist/sqlassist-go/internal/importer"
)

// ProgressTracker draws one bar per load stage on a terminal.
type ProgressTracker struct {
	mu      sync.Mutex
	enabled bool
	out     io.Writer
	bars    []*barState
	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
}

type barState struct {
	key       string
	label     string
	current   int64
	total     int64
	startTime time.Time
	done      bool
	doneMsg   string
}

// NewProgressTracker creates a tracker drawing to out. A disabled tracker
// ignores every call.
func NewProgressTracker(enabled bool, out io.Writer) *ProgressTracker {
	return &ProgressTracker{
		enabled: enabled,
		out:     out,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// startRenderLoop starts the render loop if not already started.
// Callers hold pt.mu.
func (pt *ProgressTracker) startRenderLoop() {
	if pt.started {
		return
	}
	pt.started = true
	go pt.renderLoop()
}

// renderLoop continuously redraws all progress bars.
func (pt *ProgressTracker) renderLoop() {
	defer close(pt.doneCh)

	// Hide cursor
	fmt.Fprint(pt.out, "\033[?25l")

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	firstRender := true
	for {
		select {
		case <-pt.stopCh:
			fmt.Fprint(pt.out, "\033[?25h")
			return
		case <-ticker.C:
			pt.render(firstRender)
			firstRender = false
		}
	}
}

func (pt *ProgressTracker) render(firstRender bool) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	if len(pt.bars) == 0 {
		return
	}

	// Overwrite the previous frame
	if !firstRender {
		fmt.Fprintf(pt.out, "\033[%dA", len(pt.bars))
	}

	for _, bar := range pt.bars {
		fmt.Fprint(pt.out, "\r\033[K")
		if bar.done {
			fmt.Fprint(pt.out, bar.doneMsg)
		} else {
			pt.drawBar(bar)
		}
		fmt.Fprintln(pt.out)
	}
}

func (pt *ProgressTracker) drawBar(bar *barState) {
	const width = 30

	elapsed := time.Since(bar.startTime)
	var rate float64
	if elapsed.Seconds() > 0 {
		rate = float64(bar.current) / elapsed.Seconds()
	}

	labelColor := color.New(color.FgCyan)
	barColor := color.New(color.FgYellow)

	labelColor.Fprintf(pt.out, "%s ", bar.label)

	if bar.total > 0 {
		percent := float64(bar.current) / float64(bar.total) * 100
		filled := int(float64(width) * percent / 100)
		if filled > width {
			filled = width
		}

		fmt.Fprint(pt.out, "[")
		barColor.Fprint(pt.out, strings.Repeat("█", filled))
		fmt.Fprint(pt.out, strings.Repeat("░", width-filled))
		fmt.Fprint(pt.out, "] ")
		fmt.Fprintf(pt.out, "%5.1f%% %s/%s %s/s",
			percent,
			fmtNum(bar.current),
			fmtNum(bar.total),
			fmtNum(int64(rate)))
	} else {
		spinner := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
		idx := int(time.Now().UnixMilli()/100) % len(spinner)
		fmt.Fprintf(pt.out, "%s %s rows (%s/s)",
			spinner[idx],
			fmtNum(bar.current),
			fmtNum(int64(rate)))
	}
}

// Stop stops the render loop after drawing the final state.
func (pt *ProgressTracker) Stop() {
	pt.mu.Lock()
	started := pt.started
	pt.mu.Unlock()
	if !pt.enabled || !started {
		return
	}

	pt.render(false)

	close(pt.stopCh)
	<-pt.doneCh
}

func (pt *ProgressTracker) findBar(key string) *barState {
	for _, bar := range pt.bars {
		if bar.key == key {
			return bar
		}
	}
	return nil
}

func stageKey(stage importer.Stage, source string) string {
	return string(stage) + ":" + source
}

// Callback returns the importer progress hook for loading source into
// tableName. The write bar's total is the parsed row count.
func (pt *ProgressTracker) Callback(source, tableName string) importer.ProgressCallback {
	if !pt.enabled {
		return nil
	}
	return func(stage importer.Stage, rows int64) {
		pt.mu.Lock()
		defer pt.mu.Unlock()

		bar := pt.findBar(stageKey(stage, source))
		if bar == nil {
			bar = &barState{
				key:       stageKey(stage, source),
				label:     getShortPath(source),
				startTime: time.Now(),
			}
			if stage == importer.StageWrite {
				bar.label += " → " + tableName
				if parse := pt.findBar(stageKey(importer.StageParse, source)); parse != nil {
					bar.total = parse.current
					pt.finishParse(parse, source)
				}
			}
			pt.bars = append(pt.bars, bar)
			pt.startRenderLoop()
		}
		bar.current = rows
	}
}

func (pt *ProgressTracker) finishParse(bar *barState, source string) {
	if bar.done {
		return
	}
	bar.done = true
	bar.doneMsg = color.CyanString("  ✓ Parsed %s (%s rows) in %v",
		getShortPath(source), fmtNum(bar.current), time.Since(bar.startTime).Round(time.Millisecond))
}

// Finish marks the load of source as complete.
func (pt *ProgressTracker) Finish(source, tableName string, rows int64) {
	if !pt.enabled {
		return
	}

	pt.mu.Lock()
	defer pt.mu.Unlock()

	if bar := pt.findBar(stageKey(importer.StageParse, source)); bar != nil {
		pt.finishParse(bar, source)
	}
	if bar := pt.findBar(stageKey(importer.StageWrite, source)); bar != nil {
		bar.current = rows
		bar.done = true
		bar.doneMsg = color.GreenString("✓ Loaded %s rows into '%s'", fmtNum(rows), tableName)
	}
}

// Fail marks every unfinished bar of source as failed.
func (pt *ProgressTracker) Fail(source string, err error) {
	if !pt.enabled {
		return
	}

	pt.mu.Lock()
	defer pt.mu.Unlock()

	for _, stage := range []importer.Stage{importer.StageParse, importer.StageWrite} {
		if bar := pt.findBar(stageKey(stage, source)); bar != nil && !bar.done {
			bar.done = true
			bar.doneMsg = color.YellowString("  ✗ %s %s failed: %v", getShortPath(source), stage, err)
		}
	}
}

func fmtNum(n int64) string {
	if n >= 1000000 {
		return fmt.Sprintf("%.1fM", float64(n)/1000000)
	}
	if n >= 1000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	return fmt.Sprintf("%d", n)
}

func getShortPath(filePath string) string {
	if i := strings.IndexAny(filePath, "?#"); i >= 0 {
		filePath = filePath[:i]
	}
	parts := strings.Split(filePath, "/")
	return parts[len(parts)-1]
}

func isTerminal(f *os.File) bool {
	fileInfo, err := f.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}
