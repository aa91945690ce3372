package task

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

// recorder collects events from a single task. Callbacks run on the task
// goroutine, so reads must happen after Wait.
type recorder struct {
	progress [][2]int
	done     int
	finished int
	errs     []error
}

func (rec *recorder) observer() Observer {
	return Observer{
		OnProgress: func(completed, total int) {
			rec.progress = append(rec.progress, [2]int{completed, total})
		},
		OnDone:     func() { rec.done++ },
		OnFinished: func() { rec.finished++ },
		OnError:    func(err error) { rec.errs = append(rec.errs, err) },
	}
}

func TestRunToCompletion(t *testing.T) {
	const k = 7
	items := make([]int, k)
	for i := range items {
		items[i] = i
	}

	var processed []int
	r := New("scan", items, func(i int) error {
		processed = append(processed, i)
		return nil
	})

	rec := &recorder{}
	require.NoError(t, r.Start(rec.observer()))
	require.NoError(t, r.Wait())

	require.Equal(t, items, processed, "items must be processed in order")
	require.Len(t, rec.progress, k)
	for i, p := range rec.progress {
		require.Equal(t, [2]int{i + 1, k}, p)
	}
	require.Equal(t, 1, rec.done, "exactly one done event")
	require.Equal(t, 1, rec.finished, "exactly one finished event")
	require.Empty(t, rec.errs)
	require.Equal(t, k, r.Completed())
}

func TestCancelMidRun(t *testing.T) {
	const k, m = 10, 4
	items := make([]string, k)

	var r *Runner[string]
	n := 0
	r = New("normalize", items, func(string) error {
		n++
		if n == m {
			// Flag set during item m: it is observed before item m+1.
			r.Cancel()
		}
		return nil
	})

	rec := &recorder{}
	require.NoError(t, r.Start(rec.observer()))
	require.NoError(t, r.Wait(), "cancellation is not an error")

	require.Len(t, rec.progress, m)
	require.Equal(t, 0, rec.done, "no done event after cancellation")
	require.Equal(t, 1, rec.finished)
	require.True(t, r.Cancelled())
}

func TestCancelBeforeStart(t *testing.T) {
	r := New("scan", []int{1, 2, 3}, func(int) error {
		t.Fatal("op must not run on a cancelled task")
		return nil
	})
	r.Cancel()

	rec := &recorder{}
	require.NoError(t, r.Start(rec.observer()))
	require.NoError(t, r.Wait())

	require.Empty(t, rec.progress)
	require.Equal(t, 0, rec.done)
	require.Equal(t, 1, rec.finished)
}

func TestSkipFailedContinues(t *testing.T) {
	items := []int{1, 2, 3, 4}
	opErr := errors.New("decode failed")

	r := New("normalize", items, func(i int) error {
		if i%2 == 0 {
			return opErr
		}
		return nil
	})

	rec := &recorder{}
	require.NoError(t, r.Start(rec.observer()))
	require.NoError(t, r.Wait(), "skipped failures are not task failures")

	require.Len(t, rec.progress, len(items), "skipped items still advance progress")
	require.Equal(t, 1, rec.done)
	require.Equal(t, 1, rec.finished)
	require.Equal(t, 2, r.Skipped())
}

func TestAbortOnError(t *testing.T) {
	items := []int{1, 2, 3, 4}
	opErr := errors.New("ffmpeg exited 1")

	r := New("trim", items, func(i int) error {
		if i == 3 {
			return opErr
		}
		return nil
	})
	r.Policy = AbortOnError

	rec := &recorder{}
	require.NoError(t, r.Start(rec.observer()))

	err := r.Wait()
	require.ErrorIs(t, err, opErr)
	require.Len(t, rec.progress, 2, "no progress event for the failed item")
	require.Equal(t, 0, rec.done)
	require.Equal(t, 1, rec.finished)
	require.Len(t, rec.errs, 1)
	require.ErrorIs(t, r.Err(), opErr)
}

func TestStartTwice(t *testing.T) {
	r := New("scan", []int{}, func(int) error { return nil })
	require.NoError(t, r.Start(Observer{}))
	require.Error(t, r.Start(Observer{}))
	require.NoError(t, r.Wait())
}

func TestEmptyItemList(t *testing.T) {
	r := New("scan", []int(nil), func(int) error { return nil })

	rec := &recorder{}
	require.NoError(t, r.Start(rec.observer()))
	require.NoError(t, r.Wait())

	require.Empty(t, rec.progress)
	require.Equal(t, 1, rec.done)
	require.Equal(t, 1, rec.finished)
}

func TestFlagMonotonic(t *testing.T) {
	var f Flag
	require.False(t, f.IsSet())
	f.Set()
	f.Set()
	require.True(t, f.IsSet())
}
