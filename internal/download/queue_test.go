package download

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// stubFetcher is a controllable Fetcher. Each entry in errs is returned
// for the corresponding attempt on that URL; attempts beyond the list
// succeed. When block is non-nil every fetch waits for one token.
type stubFetcher struct {
	mu    sync.Mutex
	errs  map[string][]error
	calls map[string]int
	block chan struct{}
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{
		errs:  make(map[string][]error),
		calls: make(map[string]int),
	}
}

func (f *stubFetcher) Fetch(ctx context.Context, url, dir string, log Logger) error {
	f.mu.Lock()
	f.calls[url]++
	attempt := f.calls[url]
	var err error
	if seq := f.errs[url]; attempt <= len(seq) {
		err = seq[attempt-1]
	}
	f.mu.Unlock()

	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return fmt.Errorf("download cancelled")
		}
	}
	if ctx.Err() != nil {
		return fmt.Errorf("download cancelled")
	}
	return err
}

func (f *stubFetcher) callCount(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

func itemByURL(t *testing.T, q *Queue, url string) Snapshot {
	t.Helper()
	for _, s := range q.Items() {
		if s.URL == url {
			return s
		}
	}
	t.Fatalf("no item for url %s", url)
	return Snapshot{}
}

func TestConcurrencyCap(t *testing.T) {
	f := newStubFetcher()
	f.block = make(chan struct{})

	const limit = 2
	q := NewQueue(f, t.TempDir(), limit, time.Second)
	q.Add("u1", "u2", "u3", "u4", "u5")

	ctx := context.Background()
	q.Poll(ctx)

	require.Eventually(t, func() bool { return q.RunningCount() == limit },
		time.Second, 5*time.Millisecond)

	// Further polls must not admit beyond the cap.
	q.Poll(ctx)
	q.Poll(ctx)
	require.Equal(t, limit, q.RunningCount())

	// Releasing one fetch frees one slot for the next poll.
	f.block <- struct{}{}
	require.Eventually(t, func() bool { return q.RunningCount() == limit-1 },
		time.Second, 5*time.Millisecond)

	q.Poll(ctx)
	require.Eventually(t, func() bool { return q.RunningCount() == limit },
		time.Second, 5*time.Millisecond)

	// Drain the rest.
	close(f.block)
	for i := 0; i < 10; i++ {
		q.Poll(ctx)
		if q.Idle() {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.True(t, q.Idle())
	require.Zero(t, q.RunningCount())
}

func TestDuplicateURLsCollapse(t *testing.T) {
	f := newStubFetcher()
	q := NewQueue(f, t.TempDir(), 3, time.Second)

	q.Add("u1", "u1", " u1 ", "")
	q.Add("u1")
	q.Poll(context.Background())

	require.Len(t, q.Items(), 1)

	// Re-adding a URL that is already tracked is also a no-op.
	q.Add("u1")
	q.Poll(context.Background())
	require.Len(t, q.Items(), 1)
}

func TestRetryableFailureIsRetried(t *testing.T) {
	f := newStubFetcher()
	f.errs["u1"] = []error{errors.New("ERROR: unable to download video data")}

	q := NewQueue(f, t.TempDir(), 1, time.Second)
	q.Add("u1")

	ctx := context.Background()
	q.Poll(ctx)
	require.Eventually(t, func() bool {
		return itemByURL(t, q, "u1").State == StateRetrying
	}, time.Second, 5*time.Millisecond)

	// The next poll restarts it without a new submission.
	q.Poll(ctx)
	require.Eventually(t, func() bool {
		return itemByURL(t, q, "u1").State == StateSucceeded
	}, time.Second, 5*time.Millisecond)

	require.Equal(t, 2, f.callCount("u1"))
	require.Equal(t, 2, itemByURL(t, q, "u1").Attempts)
}

func TestPermanentFailureIsTerminal(t *testing.T) {
	f := newStubFetcher()
	f.errs["u1"] = []error{errors.New("ERROR: Unsupported URL")}

	q := NewQueue(f, t.TempDir(), 1, time.Second)
	q.Add("u1")

	ctx := context.Background()
	q.Poll(ctx)
	require.Eventually(t, func() bool {
		return itemByURL(t, q, "u1").State == StateFailed
	}, time.Second, 5*time.Millisecond)

	q.Poll(ctx)
	q.Poll(ctx)
	require.Equal(t, 1, f.callCount("u1"), "permanently failed item must not restart")
}

func TestCancelRunning(t *testing.T) {
	f := newStubFetcher()
	f.block = make(chan struct{})

	q := NewQueue(f, t.TempDir(), 1, time.Second)
	q.Add("u1")
	q.Poll(context.Background())

	require.Eventually(t, func() bool { return q.RunningCount() == 1 },
		time.Second, 5*time.Millisecond)

	id := itemByURL(t, q, "u1").ID
	require.True(t, q.Cancel(id))

	require.Eventually(t, func() bool {
		return itemByURL(t, q, "u1").State == StateCancelled
	}, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return q.RunningCount() == 0 },
		time.Second, 5*time.Millisecond)
}

func TestCancelQueuedNeverStarts(t *testing.T) {
	f := newStubFetcher()
	f.block = make(chan struct{})

	q := NewQueue(f, t.TempDir(), 1, time.Second)
	q.Add("u1", "u2")

	ctx := context.Background()
	q.Poll(ctx)
	require.Eventually(t, func() bool { return q.RunningCount() == 1 },
		time.Second, 5*time.Millisecond)

	require.True(t, q.Cancel(itemByURL(t, q, "u2").ID))
	close(f.block)

	q.Poll(ctx)
	require.Eventually(t, func() bool {
		return itemByURL(t, q, "u1").State == StateSucceeded
	}, time.Second, 5*time.Millisecond)

	require.Equal(t, StateCancelled, itemByURL(t, q, "u2").State)
	require.Zero(t, f.callCount("u2"))
}

func TestCancelUnknownID(t *testing.T) {
	q := NewQueue(newStubFetcher(), t.TempDir(), 1, time.Second)
	require.False(t, q.Cancel("nope"))
}

func TestAutoCloseRemovesTerminalItems(t *testing.T) {
	f := newStubFetcher()
	q := NewQueue(f, t.TempDir(), 1, time.Second)
	q.SetAutoClose(true)
	q.Add("u1")

	ctx := context.Background()
	q.Poll(ctx)
	require.Eventually(t, func() bool {
		items := q.Items()
		return len(items) == 1 && items[0].State == StateSucceeded
	}, time.Second, 5*time.Millisecond)

	q.Poll(ctx)
	require.Empty(t, q.Items())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		msg  string
		want ItemState
	}{
		{"ERROR: unable to download video data", StateRetrying},
		{"yt-dlp failed: ERROR: unable to extract player response", StateRetrying},
		{"ERROR: Unsupported URL", StateFailed},
		{"ERROR: This video is private", StateFailed},
		{"connection reset by peer", StateRetrying},
	}

	for _, tt := range tests {
		if got := Classify(tt.msg); got != tt.want {
			t.Errorf("Classify(%q) = %s, want %s", tt.msg, got, tt.want)
		}
	}
}

func TestParseDestination(t *testing.T) {
	tests := []struct {
		msg       string
		wantTitle string
		wantOK    bool
	}{
		{"[ExtractAudio] Destination: /tmp/dl/My Song.mp3", "My Song", true},
		{"[download] Destination: /tmp/dl/track.webm", "track", true},
		{"[download] 42.0% of 3.4MiB", "", false},
		{"Destination: ", "", false},
	}

	for _, tt := range tests {
		title, ok := parseDestination(tt.msg)
		if ok != tt.wantOK || title != tt.wantTitle {
			t.Errorf("parseDestination(%q) = (%q, %v), want (%q, %v)",
				tt.msg, title, ok, tt.wantTitle, tt.wantOK)
		}
	}
}

func TestObserverSeesStateTransitions(t *testing.T) {
	f := newStubFetcher()
	q := NewQueue(f, t.TempDir(), 1, time.Second)

	var mu sync.Mutex
	var states []ItemState
	q.OnUpdate(func(s Snapshot) {
		mu.Lock()
		states = append(states, s.State)
		mu.Unlock()
	})

	q.Add("u1")
	q.Poll(context.Background())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(states) >= 3 && states[len(states)-1] == StateSucceeded
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, StateQueued, states[0])
	require.Equal(t, StateRunning, states[1])
}
