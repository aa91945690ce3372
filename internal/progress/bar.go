package progress

import (
	"fmt"
	"sync"
	"time"

	"musicman/internal/task"
)

// Bar is a simple terminal progress bar driven by task runner events.
type Bar struct {
	label     string
	total     int
	current   int
	mu        sync.Mutex
	startTime time.Time
	lastPrint time.Time
	done      bool
}

// New creates a progress bar for total items. The label is printed in
// front of the bar ("Normalizing", "Scanning").
func New(label string, total int) *Bar {
	return &Bar{
		label:     label,
		total:     total,
		startTime: time.Now(),
		lastPrint: time.Now(),
	}
}

// Observer returns task runner callbacks that drive the bar. Finish is
// wired to the terminal event so the bar closes its line even when the
// run is cancelled or aborts.
func (b *Bar) Observer() task.Observer {
	return task.Observer{
		OnProgress: func(completed, total int) { b.Set(completed) },
		OnFinished: func() { b.Finish() },
	}
}

// Set moves the bar to the given position.
func (b *Bar) Set(current int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.current = current

	// Redraw every 100ms or when complete
	now := time.Now()
	if now.Sub(b.lastPrint) > 100*time.Millisecond || b.current >= b.total {
		b.render()
		b.lastPrint = now
	}
}

// Finish closes the bar line. Safe to call more than once.
func (b *Bar) Finish() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.done {
		b.render()
		fmt.Println()
		b.done = true
	}
}

func (b *Bar) render() {
	if b.done || b.total <= 0 {
		return
	}

	percentage := float64(b.current) / float64(b.total) * 100
	elapsed := time.Since(b.startTime)

	var eta time.Duration
	if b.current > 0 {
		avgTime := elapsed / time.Duration(b.current)
		remaining := b.total - b.current
		eta = avgTime * time.Duration(remaining)
	}

	barWidth := 30
	filled := int(float64(barWidth) * float64(b.current) / float64(b.total))

	bar := ""
	for i := 0; i < barWidth; i++ {
		if i < filled {
			bar += "█"
		} else {
			bar += "░"
		}
	}

	fmt.Printf("\r%s [%s] %d/%d (%.1f%%) - Elapsed: %s - ETA: %s   ",
		b.label,
		bar,
		b.current,
		b.total,
		percentage,
		formatDuration(elapsed),
		formatDuration(eta),
	)
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
