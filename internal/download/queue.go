// Package download maintains a bounded set of concurrently active
// downloads drawn from a pool of requested URLs, with automatic retry of
// transient failures and per-item cancellation.
package download

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ItemState is the lifecycle state of one tracked download.
type ItemState string

const (
	StateQueued    ItemState = "queued"
	StateRunning   ItemState = "running"
	StateSucceeded ItemState = "succeeded"
	StateRetrying  ItemState = "retrying" // transient failure, restarted on a later poll
	StateFailed    ItemState = "failed"   // permanent failure
	StateCancelled ItemState = "cancelled"
)

// Terminal reports whether the state is final.
func (s ItemState) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCancelled
}

// Logger receives the downloader's output lines.
type Logger interface {
	Debug(msg string)
	Warning(msg string)
	Error(msg string)
}

// Fetcher downloads a single URL into dir, reporting output through log.
type Fetcher interface {
	Fetch(ctx context.Context, url, dir string, log Logger) error
}

// Snapshot is an immutable copy of an item's state for observers.
type Snapshot struct {
	ID       string    `json:"id"`
	URL      string    `json:"url"`
	State    ItemState `json:"state"`
	Title    string    `json:"title,omitempty"`
	Message  string    `json:"message,omitempty"`
	Attempts int       `json:"attempts"`
}

type item struct {
	id       string
	url      string
	state    ItemState
	title    string
	message  string
	attempts int
	cancel   context.CancelFunc
}

// Queue admits downloads up to a concurrency ceiling on a fixed polling
// interval. Duplicate URLs collapse to a single item; admission among
// pending items is FIFO.
type Queue struct {
	mu         sync.Mutex
	fetcher    Fetcher
	dir        string
	limit      int
	interval   time.Duration
	autoClose  bool
	onUpdate   func(Snapshot)
	pending    []string
	pendingSet map[string]bool
	items      []*item
}

// NewQueue creates a queue downloading into dir with at most limit
// concurrent fetches.
func NewQueue(fetcher Fetcher, dir string, limit int, interval time.Duration) *Queue {
	if limit < 1 {
		limit = 1
	}
	return &Queue{
		fetcher:    fetcher,
		dir:        dir,
		limit:      limit,
		interval:   interval,
		pendingSet: make(map[string]bool),
	}
}

// SetAutoClose makes terminal items disappear from the set on the poll
// after they finish.
func (q *Queue) SetAutoClose(v bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.autoClose = v
}

// OnUpdate registers a callback invoked with a snapshot whenever an item
// changes state. The callback runs with the queue lock held and must not
// call back into the queue.
func (q *Queue) OnUpdate(fn func(Snapshot)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onUpdate = fn
}

// Add requests downloads for the given URLs. Empty strings are ignored;
// URLs already pending or tracked collapse into the existing item.
func (q *Queue) Add(urls ...string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, url := range urls {
		url = strings.TrimSpace(url)
		if url == "" || q.pendingSet[url] || q.findByURLLocked(url) != nil {
			continue
		}
		q.pending = append(q.pending, url)
		q.pendingSet[url] = true
	}
}

// Run polls the queue at the configured interval until ctx is cancelled.
func (q *Queue) Run(ctx context.Context) {
	ticker := time.NewTicker(q.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			q.CancelAll()
			return
		case <-ticker.C:
			q.Poll(ctx)
		}
	}
}

// Poll performs one scheduling pass: materialize newly requested URLs,
// drop closed terminal items, and start eligible items while the running
// count stays under the limit.
func (q *Queue) Poll(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, url := range q.pending {
		if q.findByURLLocked(url) != nil {
			continue
		}
		it := &item{
			id:    uuid.NewString(),
			url:   url,
			state: StateQueued,
		}
		q.items = append(q.items, it)
		q.notifyLocked(it)
	}
	q.pending = nil
	clear(q.pendingSet)

	if q.autoClose {
		kept := q.items[:0]
		for _, it := range q.items {
			if it.state.Terminal() {
				continue
			}
			kept = append(kept, it)
		}
		q.items = kept
	}

	for _, it := range q.items {
		if it.state != StateQueued && it.state != StateRetrying {
			continue
		}
		if q.runningLocked() >= q.limit {
			break
		}
		q.startLocked(ctx, it)
	}
}

// Cancel cancels one item by ID. A queued item goes terminal at once; a
// running item's context is cancelled and the fetch stops cooperatively.
func (q *Queue) Cancel(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, it := range q.items {
		if it.id != id || it.state.Terminal() {
			continue
		}
		if it.cancel != nil {
			it.cancel()
		}
		it.state = StateCancelled
		it.message = "Download cancelled"
		q.notifyLocked(it)
		return true
	}
	return false
}

// CancelAll cancels every non-terminal item.
func (q *Queue) CancelAll() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, it := range q.items {
		if it.state.Terminal() {
			continue
		}
		if it.cancel != nil {
			it.cancel()
		}
		it.state = StateCancelled
		it.message = "Download cancelled"
		q.notifyLocked(it)
	}
}

// Items returns snapshots of all tracked items in FIFO order.
func (q *Queue) Items() []Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Snapshot, len(q.items))
	for i, it := range q.items {
		out[i] = snapshotLocked(it)
	}
	return out
}

// RunningCount returns the number of items currently running.
func (q *Queue) RunningCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.runningLocked()
}

// Idle reports whether nothing is pending and every item is terminal.
func (q *Queue) Idle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) > 0 {
		return false
	}
	for _, it := range q.items {
		if !it.state.Terminal() {
			return false
		}
	}
	return true
}

func (q *Queue) runningLocked() int {
	n := 0
	for _, it := range q.items {
		if it.state == StateRunning {
			n++
		}
	}
	return n
}

func (q *Queue) findByURLLocked(url string) *item {
	for _, it := range q.items {
		if it.url == url {
			return it
		}
	}
	return nil
}

func (q *Queue) startLocked(ctx context.Context, it *item) {
	it.state = StateRunning
	it.attempts++
	fetchCtx, cancel := context.WithCancel(ctx)
	it.cancel = cancel
	q.notifyLocked(it)

	go func() {
		err := q.fetcher.Fetch(fetchCtx, it.url, q.dir, &itemLogger{q: q, it: it})
		ctxCancelled := fetchCtx.Err() != nil
		cancel()

		q.mu.Lock()
		defer q.mu.Unlock()

		if it.state == StateCancelled {
			// Cancelled while the fetch was in flight; state already final.
			return
		}
		switch {
		case ctxCancelled:
			it.state = StateCancelled
			it.message = "Download cancelled"
		case err != nil:
			it.state = Classify(err.Error())
			it.message = err.Error()
		default:
			it.state = StateSucceeded
			if it.title != "" {
				it.message = "Downloaded: " + it.title
			} else {
				it.message = "Downloaded: " + it.url
			}
		}
		q.notifyLocked(it)
	}()
}

func (q *Queue) notifyLocked(it *item) {
	if q.onUpdate != nil {
		q.onUpdate(snapshotLocked(it))
	}
}

func snapshotLocked(it *item) Snapshot {
	return Snapshot{
		ID:       it.id,
		URL:      it.url,
		State:    it.state,
		Title:    it.title,
		Message:  it.message,
		Attempts: it.attempts,
	}
}

// itemLogger routes downloader output into the owning item: the last
// line becomes the item's status message, and destination lines yield
// the downloaded title.
type itemLogger struct {
	q  *Queue
	it *item
}

func (l *itemLogger) Debug(msg string) {
	l.q.mu.Lock()
	defer l.q.mu.Unlock()

	if title, ok := parseDestination(msg); ok {
		l.it.title = title
	}
	l.it.message = msg
	l.q.notifyLocked(l.it)
}

func (l *itemLogger) Warning(msg string) {
	l.q.mu.Lock()
	defer l.q.mu.Unlock()
	l.it.message = msg
	l.q.notifyLocked(l.it)
}

func (l *itemLogger) Error(msg string) {
	l.q.mu.Lock()
	defer l.q.mu.Unlock()
	l.it.message = msg
	l.q.notifyLocked(l.it)
}

// parseDestination extracts the output file title from a downloader
// "Destination: <path>" line.
func parseDestination(msg string) (string, bool) {
	const marker = "Destination:"
	i := strings.Index(msg, marker)
	if i < 0 {
		return "", false
	}
	path := strings.TrimSpace(msg[i+len(marker):])
	if path == "" {
		return "", false
	}
	base := path[strings.LastIndexByte(path, '/')+1:]
	if dot := strings.LastIndexByte(base, '.'); dot > 0 {
		base = base[:dot]
	}
	return base, true
}

// Classify decides whether a failure message is transient or permanent.
// "unable ..." messages from the downloader are transient network-ish
// failures worth retrying; anything else marked ERROR is permanent.
func Classify(msg string) ItemState {
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "unable") {
		return StateRetrying
	}
	if strings.Contains(msg, "ERROR") {
		return StateFailed
	}
	return StateRetrying
}
