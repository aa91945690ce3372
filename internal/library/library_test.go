package library

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"musicman/internal/task"
)

func taskObserver(counts *[]int) task.Observer {
	return task.Observer{
		OnProgress: func(completed, total int) {
			*counts = append(*counts, completed)
		},
	}
}

func writeFakeSongs(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("not really audio"), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestListFilesSortedAndFiltered(t *testing.T) {
	dir := t.TempDir()
	writeFakeSongs(t, dir, "beta.mp3", "Alpha.mp3", "gamma.wav", "notes.txt", "cover.jpg")

	sc := NewScanner(dir, []string{".mp3", ".wav"}, nil)
	files, err := sc.ListFiles()
	if err != nil {
		t.Fatalf("ListFiles() error: %v", err)
	}

	want := []string{"Alpha.mp3", "beta.mp3", "gamma.wav"}
	if len(files) != len(want) {
		t.Fatalf("got %d files, want %d", len(files), len(want))
	}
	for i, f := range files {
		if filepath.Base(f) != want[i] {
			t.Errorf("files[%d] = %s, want %s", i, filepath.Base(f), want[i])
		}
	}
}

func TestListFilesMissingDir(t *testing.T) {
	sc := NewScanner("/nonexistent/music", []string{".mp3"}, nil)
	if _, err := sc.ListFiles(); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestListFilesNoMatches(t *testing.T) {
	dir := t.TempDir()
	writeFakeSongs(t, dir, "notes.txt")

	sc := NewScanner(dir, []string{".mp3"}, nil)
	if _, err := sc.ListFiles(); err == nil {
		t.Error("expected error when no files match")
	}
}

func TestScanPlaceholderForUndecodable(t *testing.T) {
	dir := t.TempDir()
	writeFakeSongs(t, dir, "broken.mp3")

	sc := NewScanner(dir, []string{".mp3"}, nil)
	songs, err := sc.Scan()
	if err != nil {
		t.Fatalf("Scan() error: %v", err)
	}

	if len(songs) != 1 {
		t.Fatalf("got %d songs, want 1", len(songs))
	}
	if songs[0].Genre != "Unknown" {
		t.Errorf("Genre = %q, want placeholder %q", songs[0].Genre, "Unknown")
	}
	if songs[0].DurationText != FormatDuration(0) {
		t.Errorf("DurationText = %q, want zero duration", songs[0].DurationText)
	}
}

func TestScanPreservesOrderWithWorkers(t *testing.T) {
	dir := t.TempDir()
	writeFakeSongs(t, dir, "a.mp3", "b.mp3", "c.mp3", "d.mp3", "e.mp3")

	sc := NewScanner(dir, []string{".mp3"}, nil)
	sc.Workers = 3
	songs, err := sc.Scan()
	if err != nil {
		t.Fatalf("Scan() error: %v", err)
	}

	want := []string{"a.mp3", "b.mp3", "c.mp3", "d.mp3", "e.mp3"}
	for i, s := range songs {
		if s.Name != want[i] {
			t.Errorf("songs[%d].Name = %s, want %s", i, s.Name, want[i])
		}
	}
}

func TestScanTaskProgress(t *testing.T) {
	dir := t.TempDir()
	writeFakeSongs(t, dir, "a.mp3", "b.mp3", "c.mp3")

	sc := NewScanner(dir, []string{".mp3"}, nil)
	r, collect, err := sc.ScanTask()
	if err != nil {
		t.Fatalf("ScanTask() error: %v", err)
	}

	var counts []int
	obs := taskObserver(&counts)
	if err := r.Start(obs); err != nil {
		t.Fatal(err)
	}
	if err := r.Wait(); err != nil {
		t.Fatal(err)
	}

	if len(counts) != 3 {
		t.Fatalf("got %d progress events, want 3", len(counts))
	}
	songs := collect()
	if len(songs) != 3 || songs[0].Name != "a.mp3" {
		t.Errorf("collect() = %d songs, first %q", len(songs), songs[0].Name)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "   00:00"},
		{59 * time.Second, "   00:59"},
		{3*time.Minute + 24*time.Second, "   03:24"},
		{59*time.Minute + 59*time.Second, "   59:59"},
		{time.Hour, "01:00:00"},
		{time.Hour + 2*time.Minute + 3*time.Second, "01:02:03"},
		{-5 * time.Second, "   00:00"},
	}

	for _, tt := range tests {
		if got := FormatDuration(tt.in); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWatcherFiresOnNewSong(t *testing.T) {
	dir := t.TempDir()

	changed := make(chan struct{}, 1)
	w, err := WatchDir(dir, 50*time.Millisecond, nil, func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	if err != nil {
		t.Fatalf("WatchDir() error: %v", err)
	}
	defer w.Close()

	writeFakeSongs(t, dir, "new.mp3")

	select {
	case <-changed:
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not report the new file")
	}
}

func TestWatcherIgnoresTempSiblings(t *testing.T) {
	dir := t.TempDir()

	changed := make(chan struct{}, 1)
	w, err := WatchDir(dir, 50*time.Millisecond, nil, func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	writeFakeSongs(t, dir, "song_TMP.mp3", "notes.txt")

	select {
	case <-changed:
		t.Fatal("watcher should ignore temp siblings and non-audio files")
	case <-time.After(300 * time.Millisecond):
	}
}
