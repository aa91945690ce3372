// Package library scans a music folder and builds the song list shown to
// the user.
package library

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"musicman/internal/logger"
	"musicman/internal/metadata"
	"musicman/internal/store"
	"musicman/internal/task"
)

// Song is one entry in the library listing.
type Song struct {
	Name         string `json:"name"`
	Path         string `json:"path"`
	DurationText string `json:"duration"`
	Genre        string `json:"genre"`
	Year         string `json:"year"`
	Normalized   bool   `json:"normalized"`

	Duration time.Duration `json:"-"`
}

// Scanner lists a library directory and reads song metadata.
type Scanner struct {
	Dir        string
	Extensions []string
	Workers    int
	Cache      *store.Store // optional
	Log        *logger.Logger
}

// NewScanner creates a scanner with the given directory and extensions.
func NewScanner(dir string, extensions []string, log *logger.Logger) *Scanner {
	return &Scanner{
		Dir:        dir,
		Extensions: extensions,
		Workers:    4,
		Log:        log,
	}
}

// ListFiles returns the paths of all matching files in the library
// directory, sorted case-insensitively by name.
func (sc *Scanner) ListFiles() ([]string, error) {
	entries, err := os.ReadDir(sc.Dir)
	if err != nil {
		return nil, fmt.Errorf("provided directory is not accessible: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := strings.ToLower(e.Name())
		for _, ext := range sc.Extensions {
			if strings.HasSuffix(name, strings.ToLower(ext)) {
				files = append(files, filepath.Join(sc.Dir, e.Name()))
				break
			}
		}
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("no files with given extension(s) %v found in directory", sc.Extensions)
	}

	sort.Slice(files, func(i, j int) bool {
		return strings.ToLower(filepath.Base(files[i])) < strings.ToLower(filepath.Base(files[j]))
	})

	return files, nil
}

// ReadSong reads one song's metadata, consulting the cache first.
// Undecodable files get placeholder metadata rather than failing.
func (sc *Scanner) ReadSong(path string) Song {
	song := Song{
		Name: filepath.Base(path),
		Path: path,
	}

	var info metadata.Info
	if fi, err := os.Stat(path); err == nil && sc.Cache != nil {
		if cached, ok := sc.Cache.Get(path, fi.ModTime()); ok {
			info = cached
		} else {
			info = metadata.Read(path)
			if err := sc.Cache.Put(path, fi.ModTime(), info); err != nil && sc.Log != nil {
				sc.Log.Debug("Failed to cache metadata for %s: %v", path, err)
			}
		}
	} else {
		info = metadata.Read(path)
	}

	song.Duration = info.Duration
	song.DurationText = FormatDuration(info.Duration)
	song.Genre = info.Genre
	song.Year = info.Year
	song.Normalized = info.Normalized
	return song
}

// Scan lists the library and reads all metadata with a bounded number of
// concurrent readers, preserving the listing order.
func (sc *Scanner) Scan() ([]Song, error) {
	files, err := sc.ListFiles()
	if err != nil {
		return nil, err
	}

	if sc.Log != nil {
		sc.Log.Info("Collecting songs and extracting metadata...")
		sc.Log.Info("Found %d song(s)", len(files))
	}

	workers := sc.Workers
	if workers < 1 {
		workers = 1
	}

	songs := make([]Song, len(files))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, path := range files {
		g.Go(func() error {
			songs[i] = sc.ReadSong(path)
			return nil
		})
	}
	g.Wait()

	sc.pruneCache(files)
	return songs, nil
}

// ScanTask returns a task runner that reads metadata one file at a time,
// reporting per-file progress and honoring cancellation. The collect
// function returns the songs read so far; call it after Wait for the full
// ordered list.
func (sc *Scanner) ScanTask() (*task.Runner[string], func() []Song, error) {
	files, err := sc.ListFiles()
	if err != nil {
		return nil, nil, err
	}

	songs := make([]Song, 0, len(files))
	r := task.New("scan", files, func(path string) error {
		songs = append(songs, sc.ReadSong(path))
		return nil
	})

	collect := func() []Song {
		n := r.Completed()
		return songs[:n]
	}
	return r, collect, nil
}

func (sc *Scanner) pruneCache(files []string) {
	if sc.Cache == nil {
		return
	}
	if removed, err := sc.Cache.Prune(files); err != nil {
		if sc.Log != nil {
			sc.Log.Debug("Cache prune failed: %v", err)
		}
	} else if removed > 0 && sc.Log != nil {
		sc.Log.Debug("Pruned %d stale cache entries", removed)
	}
}

// FormatDuration renders a duration as HH:MM:SS, or MM:SS padded to the
// same width for durations under an hour.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Seconds())
	h := total / 3600
	m := (total / 60) % 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("   %02d:%02d", m, s)
}
