package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"musicman/internal/audio"
	"musicman/internal/config"
	"musicman/internal/download"
	"musicman/internal/library"
	"musicman/internal/logger"
	"musicman/internal/metadata"
	"musicman/internal/progress"
	"musicman/internal/shutdown"
	"musicman/internal/store"
	"musicman/internal/task"
	"musicman/pkg/utils"
)

// downloadMaxAttempts caps retries of transient failures when running
// from the CLI, where nobody is around to close the queue.
const downloadMaxAttempts = 3

func main() {
	cfg, cmd, configPath, err := parseArgs()
	if err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR] %v\n", err)
		os.Exit(1)
	}

	sh := shutdown.New()
	sh.Listen()
	defer sh.Wait()

	log := logger.New(cfg.Verbose)
	defer log.Close()

	if !cfg.Verbose {
		logDir := config.GetDefaultLogPath()
		if err := os.MkdirAll(logDir, 0755); err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] Failed to create log directory: %v\n", err)
		} else {
			logFile := filepath.Join(logDir, fmt.Sprintf("musicman_%s.log", time.Now().Format("2006-01-02_15-04-05")))
			if err := log.SetFileLog(logFile); err != nil {
				fmt.Fprintf(os.Stderr, "[WARN] Failed to setup file logging: %v\n", err)
			} else {
				log.Debug("Logging to file: %s", logFile)
			}
		}
	}

	if cfg.Verbose && configPath != "" {
		log.Debug("Loaded configuration from: %s", configPath)
	}

	if err := cfg.Validate(); err != nil {
		log.Error("Configuration error: %v", err)
		os.Exit(1)
	}

	if err := run(sh, cfg, cmd, log); err != nil {
		log.Error("%v", err)
		os.Exit(1)
	}
}

func run(sh *shutdown.Handler, cfg config.Config, cmd command, log *logger.Logger) error {
	switch cmd.name {
	case "list":
		return runList(sh, cfg, log)
	case "edit":
		return runEdit(cmd.args, log)
	case "normalize":
		return runNormalize(sh, cfg, cmd.args, log)
	case "trim":
		return runTrim(sh, cmd.args, log)
	case "download":
		return runDownload(sh, cfg, cmd.args, log)
	default:
		return fmt.Errorf("unknown command: %s (see --help)", cmd.name)
	}
}

// newScanner builds the library scanner, attaching the metadata cache
// when it can be opened. A broken cache downgrades to uncached scans.
func newScanner(sh *shutdown.Handler, cfg config.Config, log *logger.Logger) *library.Scanner {
	sc := library.NewScanner(cfg.LibraryDir, cfg.Extensions, log)
	sc.Workers = cfg.ScanWorkers

	cache, err := store.Open(cfg.CachePath)
	if err != nil {
		log.Warn("Metadata cache unavailable: %v", err)
		return sc
	}
	sh.AddCleanup(func() {
		if err := cache.Close(); err != nil {
			log.Warn("Error closing metadata cache: %v", err)
		}
	})

	sc.Cache = cache
	return sc
}

func runList(sh *shutdown.Handler, cfg config.Config, log *logger.Logger) error {
	sc := newScanner(sh, cfg, log)

	runner, collect, err := sc.ScanTask()
	if err != nil {
		return err
	}
	sh.AddCleanup(runner.Cancel)

	obs, finish := barObserver(cfg.Verbose, log, "Scanning", runner.Total())
	runner.Start(obs)
	runner.Wait()
	finish()

	if runner.Cancelled() {
		return fmt.Errorf("scan cancelled")
	}

	songs := collect()
	for _, s := range songs {
		norm := " "
		if s.Normalized {
			norm = "N"
		}
		log.Info("%s %s  %-40s  %-12s  %s", norm, s.DurationText, s.Name, s.Genre, s.Year)
	}
	log.Info("%d songs", len(songs))
	return nil
}

func runEdit(args []string, log *logger.Logger) error {
	if len(args) < 3 || len(args) > 4 {
		return fmt.Errorf("usage: edit <file> <genre> <year> [new_name]")
	}
	path, genre, year := args[0], args[1], args[2]

	if err := metadata.Write(path, genre, year); err != nil {
		return fmt.Errorf("failed to write tags: %w", err)
	}
	log.Info("Tagged %s: genre=%s year=%s", filepath.Base(path), genre, year)

	if len(args) == 4 {
		name := args[3]
		if filepath.Ext(name) == "" {
			name += filepath.Ext(path)
		}
		dst := filepath.Join(filepath.Dir(path), name)
		if err := utils.MoveFile(path, dst); err != nil {
			// Tags are already written; the rename alone failed.
			log.Status("No changes made to file name: %v", err)
			return nil
		}
		log.Info("Renamed to %s", name)
	}
	return nil
}

func runNormalize(sh *shutdown.Handler, cfg config.Config, args []string, log *logger.Logger) error {
	if err := utils.CheckDependencies(); err != nil {
		return fmt.Errorf("dependency check failed: %w", err)
	}

	files := args
	if len(files) == 0 {
		sc := newScanner(sh, cfg, log)
		var err error
		files, err = sc.ListFiles()
		if err != nil {
			return err
		}
	}

	proc := audio.New(log)
	runner := proc.NormalizeTask(sh.Context(), files)
	sh.AddCleanup(runner.Cancel)

	obs, finish := barObserver(cfg.Verbose, log, "Normalizing", runner.Total())
	runner.Start(obs)
	runner.Wait()
	finish()

	if runner.Cancelled() {
		return fmt.Errorf("normalization cancelled")
	}

	log.Info("=== Normalized %d songs (%d skipped) ===",
		runner.Completed()-runner.Skipped(), runner.Skipped())
	return nil
}

func runTrim(sh *shutdown.Handler, args []string, log *logger.Logger) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: trim <file> <start_secs> <end_secs>")
	}

	if err := utils.CheckDependencies(); err != nil {
		return fmt.Errorf("dependency check failed: %w", err)
	}

	start, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("invalid start time: %s", args[1])
	}
	end, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		return fmt.Errorf("invalid end time: %s", args[2])
	}

	proc := audio.New(log)
	if err := proc.Trim(sh.Context(), args[0], start, end); err != nil {
		return err
	}

	log.Info("Trimmed %s to [%.1fs, %.1fs)", filepath.Base(args[0]), start, end)
	return nil
}

func runDownload(sh *shutdown.Handler, cfg config.Config, urls []string, log *logger.Logger) error {
	if len(urls) == 0 {
		return fmt.Errorf("usage: download <url> [url...]")
	}

	if err := utils.CheckDependencies(); err != nil {
		return fmt.Errorf("dependency check failed: %w", err)
	}

	// Download into a temp dir first so the library never sees partial
	// files; finished tracks are moved over afterwards.
	tmpDir, err := utils.CreateTempDir()
	if err != nil {
		return fmt.Errorf("error creating temporary folder: %w", err)
	}
	log.Debug("Temporary folder: %s", tmpDir)
	sh.AddCleanup(func() {
		if err := utils.Cleanup(tmpDir); err != nil {
			log.Warn("Error during cleanup: %v", err)
		}
	})

	interval := time.Duration(cfg.DownloadPollSecs) * time.Second
	fetcher := &download.YTDLP{CookiesBrowser: cfg.CookiesBrowser}
	q := download.NewQueue(fetcher, tmpDir, cfg.ParallelDownloads, interval)

	q.OnUpdate(func(s download.Snapshot) {
		name := s.Title
		if name == "" {
			name = s.URL
		}
		switch s.State {
		case download.StateRunning:
			log.Status("Downloading: %s", name)
		case download.StateSucceeded:
			log.Status("Done: %s", name)
		case download.StateRetrying:
			log.Status("Retrying (%d): %s", s.Attempts, name)
		case download.StateFailed:
			log.Status("FAILED: %s (%s)", name, s.Message)
		case download.StateCancelled:
			log.Status("Cancelled: %s", name)
		}
	})

	q.Add(urls...)

	ctx := sh.Context()
	for {
		q.Poll(ctx)

		// Give up on items stuck in transient failures.
		for _, s := range q.Items() {
			if s.State == download.StateRetrying && s.Attempts >= downloadMaxAttempts {
				q.Cancel(s.ID)
			}
		}

		if q.Idle() {
			break
		}

		select {
		case <-ctx.Done():
			q.CancelAll()
			return fmt.Errorf("download cancelled")
		case <-time.After(interval):
		}
	}

	var ok, failed int
	for _, s := range q.Items() {
		switch s.State {
		case download.StateSucceeded:
			ok++
		default:
			failed++
		}
	}

	if err := importDownloads(tmpDir, cfg.LibraryDir, log); err != nil {
		return err
	}

	log.Info("=== Downloaded %d/%d songs ===", ok, ok+failed)
	if failed > 0 {
		return fmt.Errorf("%d download(s) did not complete", failed)
	}
	return nil
}

// importDownloads moves finished audio files from the temp folder into
// the library directory.
func importDownloads(tmpDir, libDir string, log *logger.Logger) error {
	files, err := utils.FindAudioFiles(tmpDir)
	if err != nil {
		return fmt.Errorf("failed to collect downloads: %w", err)
	}

	for _, src := range files {
		dst := filepath.Join(libDir, filepath.Base(src))
		if err := utils.MoveFile(src, dst); err != nil {
			return fmt.Errorf("failed to import %s: %w", filepath.Base(src), err)
		}
		log.Info("Imported: %s", filepath.Base(src))
	}
	return nil
}

// barObserver returns task observer callbacks and a finish func. In
// verbose mode there is no bar and both are no-ops.
func barObserver(verbose bool, log *logger.Logger, label string, total int) (obs task.Observer, finish func()) {
	if verbose || total == 0 {
		return task.Observer{}, func() {}
	}

	bar := progress.New(label, total)
	log.SetProgressBar(true)
	return bar.Observer(), func() {
		bar.Finish()
		log.SetProgressBar(false)
	}
}
